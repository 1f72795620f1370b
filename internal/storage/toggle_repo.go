package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidClient возвращается для пустого идентификатора клиента или ключа
var ErrInvalidClient = errors.New("invalid client id or key")

// ToggleRepo хранит сохранённое состояние переключателей клиента.
// Состояние привязано к идентификатору клиента и одному из двух ключей
// (точки или слои). Значение — непрозрачный JSON-блоб, разбором занимается пакет toggles.
type ToggleRepo interface {
	// Load возвращает блоб и false, если для клиента ничего не сохранено
	Load(ctx context.Context, clientID, key string) ([]byte, bool, error)

	// Save перезаписывает блоб
	Save(ctx context.Context, clientID, key string, blob []byte) error

	// Delete удаляет блоб; отсутствие записи не ошибка
	Delete(ctx context.Context, clientID, key string) error

	Close() error
}

// toggleKey строит ключ записи: toggles:{clientID}:{key}
func toggleKey(clientID, key string) (string, error) {
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(key) == "" {
		return "", ErrInvalidClient
	}
	return fmt.Sprintf("toggles:%s:%s", clientID, key), nil
}

// Config выбирает реализацию хранилища переключателей
type Config struct {
	Backend string `yaml:"backend"` // badger | redis | memory
	Path    string `yaml:"path"`    // каталог BadgerDB; пусто — в памяти
}

// New создаёт хранилище по конфигурации. Если BadgerDB не открылась,
// используется хранилище в памяти.
func New(cfg Config, redisCfg *RedisConfig) (ToggleRepo, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryToggleRepo(), nil
	case "redis":
		repo, err := NewRedisToggleRepo(redisCfg)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "", "badger":
		repo, err := NewBadgerToggleRepo(cfg.Path)
		if err != nil {
			return NewMemoryToggleRepo(), fmt.Errorf("badger unavailable, using memory: %w", err)
		}
		return repo, nil
	}
	return nil, fmt.Errorf("unknown toggle storage backend %q", cfg.Backend)
}

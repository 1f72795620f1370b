package toggles

import (
	"context"
	"fmt"

	"github.com/annel0/worldmap/internal/logging"
	"github.com/annel0/worldmap/internal/storage"
)

// State оба набора переключателей клиента
type State struct {
	Points Set `json:"points"`
	Layers Set `json:"layers"`
}

// Store загружает и сохраняет переключатели клиента через ToggleRepo
type Store struct {
	repo storage.ToggleRepo
}

// NewStore создаёт хранилище переключателей
func NewStore(repo storage.ToggleRepo) *Store {
	return &Store{repo: repo}
}

// Load возвращает набор ключа, слитый с набором по умолчанию.
// Повреждённый блоб не ошибка: клиент получает значения по умолчанию.
func (s *Store) Load(ctx context.Context, clientID, key string) (Set, error) {
	defaults, err := Defaults(key)
	if err != nil {
		return nil, err
	}
	blob, found, err := s.repo.Load(ctx, clientID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s toggles: %w", key, err)
	}
	if !found {
		return defaults, nil
	}
	stored, err := Decode(blob)
	if err != nil {
		logging.Warn("client %s: %s toggles reset to defaults: %v", clientID, key, err)
		return defaults, nil
	}
	return Merge(defaults, stored), nil
}

// LoadState возвращает оба набора
func (s *Store) LoadState(ctx context.Context, clientID string) (State, error) {
	points, err := s.Load(ctx, clientID, KeyPoints)
	if err != nil {
		return State{}, err
	}
	layers, err := s.Load(ctx, clientID, KeyLayers)
	if err != nil {
		return State{}, err
	}
	return State{Points: points, Layers: layers}, nil
}

// Update применяет изменения поверх текущего набора и сохраняет результат
func (s *Store) Update(ctx context.Context, clientID, key string, changes []Stored) (Set, error) {
	current, err := s.Load(ctx, clientID, key)
	if err != nil {
		return nil, err
	}
	merged := Merge(current, changes)
	blob, err := Encode(merged)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, clientID, key, blob); err != nil {
		return nil, fmt.Errorf("failed to save %s toggles: %w", key, err)
	}
	return merged, nil
}

// Reset удаляет сохранённое состояние ключа
func (s *Store) Reset(ctx context.Context, clientID, key string) error {
	if _, err := Defaults(key); err != nil {
		return err
	}
	return s.repo.Delete(ctx, clientID, key)
}

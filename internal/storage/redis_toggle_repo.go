package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"` // 0 — без срока
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "worldmap:",
		TTL:       90 * 24 * time.Hour,
	}
}

// RedisToggleRepo хранит переключатели в Redis, общем для нескольких экземпляров сервиса
type RedisToggleRepo struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisToggleRepo подключается к Redis и проверяет соединение
func NewRedisToggleRepo(config *RedisConfig) (*RedisToggleRepo, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisToggleRepo{client: client, keyPrefix: config.KeyPrefix, ttl: config.TTL}, nil
}

func (r *RedisToggleRepo) key(clientID, key string) (string, error) {
	k, err := toggleKey(clientID, key)
	if err != nil {
		return "", err
	}
	return r.keyPrefix + k, nil
}

func (r *RedisToggleRepo) Load(ctx context.Context, clientID, key string) ([]byte, bool, error) {
	k, err := r.key(clientID, key)
	if err != nil {
		return nil, false, err
	}
	blob, err := r.client.Get(ctx, k).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load toggles: %w", err)
	}
	return blob, true, nil
}

func (r *RedisToggleRepo) Save(ctx context.Context, clientID, key string, blob []byte) error {
	k, err := r.key(clientID, key)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, k, blob, r.ttl).Err()
}

func (r *RedisToggleRepo) Delete(ctx context.Context, clientID, key string) error {
	k, err := r.key(clientID, key)
	if err != nil {
		return err
	}
	return r.client.Del(ctx, k).Err()
}

func (r *RedisToggleRepo) Close() error {
	return r.client.Close()
}

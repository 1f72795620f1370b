package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/annel0/worldmap/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisCache реализует Repo поверх Redis. Используется, когда несколько
// экземпляров картографического сервиса должны делить кеш списков и тайлов.
type RedisCache struct {
	client *redis.Client
	config *Config
	prefix string

	requests atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64
}

// NewRedisCache подключается к Redis и проверяет соединение
func NewRedisCache(config *Config) (*RedisCache, error) {
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 30 * time.Second
	}
	if config.MaxTTL == 0 {
		config.MaxTTL = 24 * time.Hour
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.RedisURL,
		Password:     config.RedisPassword,
		DB:           config.RedisDB,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("Redis cache initialized: %s", config.RedisURL)
	return newRedisCacheWithClient(rdb, config), nil
}

func newRedisCacheWithClient(client *redis.Client, config *Config) *RedisCache {
	return &RedisCache{client: client, config: config, prefix: "worldmap:"}
}

// Get получает значение по ключу
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	r.requests.Add(1)

	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err == nil {
		r.hits.Add(1)
		return val, nil
	}

	r.misses.Add(1)
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	logging.Error("Redis Get error for key %s: %v", key, err)
	return nil, fmt.Errorf("redis get error: %w", err)
}

// Set сохраняет значение, TTL ограничен MaxTTL
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl > r.config.MaxTTL {
		ttl = r.config.MaxTTL
	}
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		logging.Error("Redis Set error for key %s: %v", key, err)
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Delete удаляет ключ
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		logging.Error("Redis Delete error for key %s: %v", key, err)
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func (r *RedisCache) Close() error {
	if err := r.client.Close(); err != nil {
		logging.Error("Error closing Redis connection: %v", err)
		return err
	}
	logging.Info("Redis cache closed")
	return nil
}

// GetMetrics возвращает снимок метрик
func (r *RedisCache) GetMetrics() Metrics {
	hits, misses := r.hits.Load(), r.misses.Load()
	return Metrics{
		TotalRequests: r.requests.Load(),
		CacheHits:     hits,
		CacheMisses:   misses,
		HitRatio:      hitRatio(hits, misses),
		LastUpdate:    time.Now(),
	}
}

package cache

import (
	"context"
	"errors"
	"time"
)

// Repo кеш байтовых значений по строковому ключу.
// Используется для тайлов и для списков сущностей бэкенда.
//
// Использование:
//
//	c := NewMemoryCache(cfg)
//	data, err := c.Get(ctx, "tile:overworld/3/4/1/47/12")
//	err = c.Set(ctx, "entities:pins", data, 30*time.Second)
type Repo interface {
	// Get возвращает значение или ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение. TTL = 0 означает отсутствие истечения.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет ключ. Отсутствие ключа не ошибка.
	Delete(ctx context.Context, key string) error

	// Close освобождает ресурсы кеша.
	Close() error

	// GetMetrics возвращает снимок метрик.
	GetMetrics() Metrics
}

// Invalidator рассылает инвалидацию ключей между узлами.
type Invalidator interface {
	PublishInvalidation(ctx context.Context, key string) error
	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error
	Close() error
}

// InvalidationHandler обрабатывает уведомления об инвалидации кеша.
type InvalidationHandler func(key string) error

// Metrics содержит метрики производительности кеша.
type Metrics struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	HitRatio      float64 `json:"hit_ratio"`

	LastUpdate time.Time `json:"last_update"`
}

// Config содержит конфигурацию кеша.
type Config struct {
	// Backend: "memory" (ristretto) или "redis"
	Backend string `yaml:"backend"`

	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Ёмкость in-memory кеша в байтах
	MaxCostBytes int64 `yaml:"max_cost_bytes"`

	DefaultTTL time.Duration `yaml:"default_ttl"`
	MaxTTL     time.Duration `yaml:"max_ttl"`
}

// ErrCacheMiss возвращается, когда ключ не найден.
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss проверяет, является ли ошибка промахом кеша.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// hitRatio считает долю попаданий
func hitRatio(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// New создаёт кеш по конфигурации
func New(cfg Config) (Repo, error) {
	var (
		repo Repo
		err  error
	)
	switch cfg.Backend {
	case "redis":
		repo, err = NewRedisCache(&cfg)
	default:
		repo, err = NewMemoryCache(&cfg)
	}
	if err != nil {
		return nil, err
	}
	return repo, nil
}

package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// MemoryCache кеш процесса на ristretto. Стоимость записи равна длине значения.
type MemoryCache struct {
	store  *ristretto.Cache[string, []byte]
	maxTTL time.Duration

	requests atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64
}

// NewMemoryCache создаёт in-memory кеш
func NewMemoryCache(config *Config) (*MemoryCache, error) {
	maxCost := config.MaxCostBytes
	if maxCost <= 0 {
		maxCost = 64 << 20
	}

	store, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 100_000,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}

	return &MemoryCache{store: store, maxTTL: config.MaxTTL}, nil
}

// Get получает значение по ключу
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.requests.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	val, ok := m.store.Get(key)
	if !ok {
		m.misses.Add(1)
		return nil, ErrCacheMiss
	}
	m.hits.Add(1)
	return val, nil
}

// Set сохраняет значение. Запись становится видимой сразу после возврата.
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.maxTTL > 0 && ttl > m.maxTTL {
		ttl = m.maxTTL
	}
	cost := int64(len(value))
	if cost == 0 {
		cost = 1
	}
	m.store.SetWithTTL(key, value, cost, ttl)
	m.store.Wait()
	return nil
}

// Delete удаляет ключ
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.store.Del(key)
	return nil
}

// Close останавливает фоновые горутины ristretto
func (m *MemoryCache) Close() error {
	m.store.Close()
	return nil
}

// GetMetrics возвращает снимок метрик
func (m *MemoryCache) GetMetrics() Metrics {
	hits, misses := m.hits.Load(), m.misses.Load()
	return Metrics{
		TotalRequests: m.requests.Load(),
		CacheHits:     hits,
		CacheMisses:   misses,
		HitRatio:      hitRatio(hits, misses),
		LastUpdate:    time.Now(),
	}
}

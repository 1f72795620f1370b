package backend

import (
	"context"
	"time"

	"github.com/annel0/worldmap/internal/cache"
	"github.com/annel0/worldmap/internal/entity"
	"github.com/annel0/worldmap/internal/logging"
	"github.com/annel0/worldmap/internal/vec"
)

// Ключи кеша списков
const (
	KeyPins     = "backend:pins"
	KeyProjects = "backend:projects"
	KeyPlayers  = "backend:players"
)

// CachedSource кеширует списки сущностей. Успешный патч инвалидирует список
// проектов; если кеш обёрнут в cache.InvalidatingRepo, инвалидация расходится
// по остальным экземплярам через NATS.
type CachedSource struct {
	inner Source
	cache cache.Repo
	ttl   time.Duration
}

// NewCachedSource оборачивает источник кешем
func NewCachedSource(inner Source, c cache.Repo, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedSource{inner: inner, cache: c, ttl: ttl}
}

func (s *CachedSource) cached(ctx context.Context, key, name string, kind entity.Kind, load func(context.Context) ([]entity.Entity, error)) ([]entity.Entity, error) {
	if data, err := s.cache.Get(ctx, key); err == nil {
		if list, err := decodeList(kind, data); err == nil {
			listCache.WithLabelValues(name, "hit").Inc()
			return list, nil
		}
	} else if !cache.IsCacheMiss(err) {
		logging.Warn("list cache %s unavailable: %v", key, err)
	}
	listCache.WithLabelValues(name, "miss").Inc()

	list, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := encodeList(list); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			logging.Warn("list cache %s not stored: %v", key, err)
		}
	}
	return list, nil
}

func (s *CachedSource) ListPins(ctx context.Context) ([]entity.Entity, error) {
	return s.cached(ctx, KeyPins, "pins", entity.KindPin, s.inner.ListPins)
}

func (s *CachedSource) ListProjects(ctx context.Context) ([]entity.Entity, error) {
	return s.cached(ctx, KeyProjects, "projects", entity.KindProject, s.inner.ListProjects)
}

func (s *CachedSource) ListPlayers(ctx context.Context) ([]entity.Entity, error) {
	return s.cached(ctx, KeyPlayers, "players", entity.KindPlayer, s.inner.ListPlayers)
}

// PatchProjectCoordinates передаёт патч бэкенду и сбрасывает кеш проектов при успехе
func (s *CachedSource) PatchProjectCoordinates(ctx context.Context, id string, pos vec.Vec3) (entity.Entity, error) {
	updated, err := s.inner.PatchProjectCoordinates(ctx, id, pos)
	if err != nil {
		return entity.Entity{}, err
	}
	if err := s.cache.Delete(ctx, KeyProjects); err != nil {
		logging.Warn("projects cache not invalidated: %v", err)
	}
	return updated, nil
}

package storage

import (
	"context"
	"sync"
)

// MemoryToggleRepo реализует ToggleRepo в памяти.
// Используется как fallback и в тестах. Данные теряются при перезапуске.
type MemoryToggleRepo struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryToggleRepo создаёт пустое хранилище
func NewMemoryToggleRepo() *MemoryToggleRepo {
	return &MemoryToggleRepo{data: make(map[string][]byte)}
}

func (r *MemoryToggleRepo) Load(ctx context.Context, clientID, key string) ([]byte, bool, error) {
	k, err := toggleKey(clientID, key)
	if err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	blob, ok := r.data[k]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), blob...), true, nil
}

func (r *MemoryToggleRepo) Save(ctx context.Context, clientID, key string, blob []byte) error {
	k, err := toggleKey(clientID, key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[k] = append([]byte(nil), blob...)
	return nil
}

func (r *MemoryToggleRepo) Delete(ctx context.Context, clientID, key string) error {
	k, err := toggleKey(clientID, key)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, k)
	return nil
}

func (r *MemoryToggleRepo) Close() error { return nil }

// Count возвращает число записей (для отладки)
func (r *MemoryToggleRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

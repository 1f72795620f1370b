package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v3"
)

// BadgerToggleRepo хранит переключатели во встроенной BadgerDB
type BadgerToggleRepo struct {
	db      *badger.DB
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerToggleRepo открывает базу в dataPath/toggles. Пустой путь — база в памяти.
func NewBadgerToggleRepo(dataPath string) (*BadgerToggleRepo, error) {
	var opts badger.Options
	if dataPath == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Join(dataPath, "toggles"))
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}
	return &BadgerToggleRepo{db: db, isReady: true}, nil
}

func (r *BadgerToggleRepo) ready() error {
	if !r.isReady {
		return fmt.Errorf("хранилище не готово")
	}
	return nil
}

func (r *BadgerToggleRepo) Load(ctx context.Context, clientID, key string) ([]byte, bool, error) {
	k, err := toggleKey(clientID, key)
	if err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.ready(); err != nil {
		return nil, false, err
	}

	var blob []byte
	err = r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(k))
		if err != nil {
			return err
		}
		blob, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load toggles: %w", err)
	}
	return blob, true, nil
}

func (r *BadgerToggleRepo) Save(ctx context.Context, clientID, key string, blob []byte) error {
	k, err := toggleKey(clientID, key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.ready(); err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(k), blob)
	})
}

func (r *BadgerToggleRepo) Delete(ctx context.Context, clientID, key string) error {
	k, err := toggleKey(clientID, key)
	if err != nil {
		return err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.ready(); err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(k))
	})
}

// Close закрывает базу
func (r *BadgerToggleRepo) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.isReady {
		return nil
	}
	r.isReady = false
	return r.db.Close()
}

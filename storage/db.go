// Package storage defines the narrow key-value store the plugin core consumes
// (spec.md §6) and provides a LevelDB-backed and an in-memory implementation
// of it.
package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("storage: key not found")

// Store is the external, asynchronous-in-spirit key-value store the core's
// StoreWrapper is built on. Every method may block on I/O; callers that need
// non-blocking semantics run these from a goroutine, which is exactly what
// store.Wrapper does.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// MemStore is an in-memory Store, used by tests and the demo binary.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]string)}
}

func (s *MemStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemStore) Put(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *MemStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemStore) Close() error { return nil }

// LevelDBStore is a persistent Store backed by goleveldb, mirroring the
// LevelDB wrapper the teacher's blockchain node uses for its own state.
type LevelDBStore struct {
	db *leveldb.DB
}

// NewLevelDBStore opens (or creates) a LevelDB database at path.
func NewLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Get(_ context.Context, key string) (string, error) {
	v, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (s *LevelDBStore) Put(_ context.Context, key string, value string) error {
	return s.db.Put([]byte(key), []byte(value), nil)
}

func (s *LevelDBStore) Delete(_ context.Context, key string) error {
	return s.db.Delete([]byte(key), nil)
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

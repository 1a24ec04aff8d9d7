// Package store implements the write-through cache (spec.md §4.1) that sits
// between the account/claim logic and the asynchronous key-value collaborator
// in package storage.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"xrpchan/storage"
)

// entry is a single cached value. Exactly one of str/obj is meaningful,
// selected by isObject; present distinguishes a cached tombstone (key does
// not exist upstream) from an unset cache slot.
type entry struct {
	present  bool
	isObject bool
	str      string
	obj      interface{}
	version  uint64
}

// writeJob is queued in issue order and applied to the backing store by a
// single worker goroutine, giving the wrapper its FIFO write guarantee.
type writeJob struct {
	run func(context.Context) error
}

// Wrapper is a synchronous read / asynchronous write cache over storage.Store.
// It is the StoreWrapper of spec.md §4.1.
type Wrapper struct {
	backing storage.Store
	logger  *slog.Logger

	mu      sync.RWMutex
	cache   map[string]*entry
	version map[string]uint64

	queue    chan writeJob
	wg       sync.WaitGroup
	closed   bool
	closeMu  sync.Mutex
}

// New wraps backing with a write-through cache. The queue depth bounds how
// many writes may be outstanding before Set/Delete block the caller.
func New(backing storage.Store, logger *slog.Logger) *Wrapper {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Wrapper{
		backing: backing,
		logger:  logger,
		cache:   make(map[string]*entry),
		version: make(map[string]uint64),
		queue:   make(chan writeJob, 256),
	}
	go w.drain()
	return w
}

func (w *Wrapper) drain() {
	for job := range w.queue {
		if err := job.run(context.Background()); err != nil {
			w.logger.Error("store write failed", slog.String("error", err.Error()))
		}
		w.wg.Done()
	}
}

func (w *Wrapper) bumpVersion(key string) uint64 {
	w.version[key]++
	return w.version[key]
}

// Load fetches key from the backing store into the cache if it is not
// already cached. It is idempotent: a key already present in the cache is
// left untouched, and a concurrent writer always wins over a fetch that was
// already in flight (spec.md §4.1, §4.2 "writer wins" rule).
func (w *Wrapper) Load(ctx context.Context, key string) error {
	w.mu.RLock()
	_, ok := w.cache[key]
	w.mu.RUnlock()
	if ok {
		return nil
	}

	w.mu.Lock()
	seenVersion := w.version[key]
	w.mu.Unlock()

	value, err := w.backing.Get(ctx, key)
	notFound := err == storage.ErrNotFound

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.cache[key]; ok {
		// A concurrent Set/Delete/Load already populated the cache while our
		// fetch was in flight. The writer wins; discard what we fetched.
		return nil
	}
	if w.version[key] != seenVersion {
		return nil
	}
	if notFound {
		w.cache[key] = &entry{present: false}
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: load %s: %w", key, err)
	}
	w.cache[key] = &entry{present: true, str: value}
	return nil
}

// LoadObject behaves like Load but JSON-decodes the stored string into a
// fresh value produced by newValue on every call.
func (w *Wrapper) LoadObject(ctx context.Context, key string, newValue func() interface{}) error {
	w.mu.RLock()
	_, ok := w.cache[key]
	w.mu.RUnlock()
	if ok {
		return nil
	}

	w.mu.Lock()
	seenVersion := w.version[key]
	w.mu.Unlock()

	raw, err := w.backing.Get(ctx, key)
	notFound := err == storage.ErrNotFound

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.cache[key]; ok {
		return nil
	}
	if w.version[key] != seenVersion {
		return nil
	}
	if notFound {
		w.cache[key] = &entry{present: false, isObject: true}
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: load object %s: %w", key, err)
	}
	target := newValue()
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return fmt.Errorf("store: decode object %s: %w", key, err)
	}
	w.cache[key] = &entry{present: true, isObject: true, obj: target}
	return nil
}

// Get is a synchronous cache read of a string value.
func (w *Wrapper) Get(key string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.cache[key]
	if !ok || !e.present {
		return "", false
	}
	return e.str, true
}

// GetObject is a synchronous cache read of a JSON-decoded value.
func (w *Wrapper) GetObject(key string) (interface{}, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.cache[key]
	if !ok || !e.present {
		return nil, false
	}
	return e.obj, true
}

// Set updates the cache immediately and enqueues the write to persist it.
// Because the queue is a single serial tail, writes to any key preserve
// global program order.
func (w *Wrapper) Set(key, value string) {
	w.mu.Lock()
	w.cache[key] = &entry{present: true, str: value}
	w.bumpVersion(key)
	w.mu.Unlock()
	w.enqueue(func(ctx context.Context) error {
		return w.backing.Put(ctx, key, value)
	})
}

// SetObject marshals value to JSON, updates the cache immediately, and
// enqueues the write.
func (w *Wrapper) SetObject(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: encode object %s: %w", key, err)
	}
	w.mu.Lock()
	w.cache[key] = &entry{present: true, isObject: true, obj: value}
	w.bumpVersion(key)
	w.mu.Unlock()
	w.enqueue(func(ctx context.Context) error {
		return w.backing.Put(ctx, key, string(raw))
	})
	return nil
}

// SetCache writes only the cache, without touching the backing store. This
// is used as an optimistic lock, e.g. marking that a client channel is being
// created so a concurrent caller for the same account short-circuits.
func (w *Wrapper) SetCache(key, value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cache[key] = &entry{present: true, str: value}
	w.bumpVersion(key)
}

// Delete removes key from the cache immediately and enqueues the deletion.
func (w *Wrapper) Delete(key string) {
	w.mu.Lock()
	w.cache[key] = &entry{present: false}
	w.bumpVersion(key)
	w.mu.Unlock()
	w.enqueue(func(ctx context.Context) error {
		return w.backing.Delete(ctx, key)
	})
}

func (w *Wrapper) enqueue(run func(context.Context) error) {
	w.closeMu.Lock()
	if w.closed {
		w.closeMu.Unlock()
		return
	}
	w.wg.Add(1)
	w.closeMu.Unlock()
	w.queue <- writeJob{run: run}
}

// Close drains pending writes and stops the worker goroutine. It does not
// close the backing store; callers that own the backing store's lifecycle
// close it separately.
func (w *Wrapper) Close() {
	w.closeMu.Lock()
	if w.closed {
		w.closeMu.Unlock()
		return
	}
	w.closed = true
	w.closeMu.Unlock()

	w.wg.Wait()
	close(w.queue)
}

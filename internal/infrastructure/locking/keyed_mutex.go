// Package locking provides an in-process implementation of shared.Locker.
package locking

import (
	"context"
	"sync"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

// entry is a one-slot semaphore; refs counts holders plus waiters so the
// entry can be dropped from the map once nobody needs it.
type entry struct {
	sem  chan struct{}
	refs int
}

// KeyedMutex serializes callers per key. Different keys never contend.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*entry)}
}

var _ shared.Locker = (*KeyedMutex)(nil)

// Lock blocks until key is held or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, shared.WrapError("lock", "Acquire", shared.ErrLockTimeout, "lock "+key+" not acquired", ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			k.release(key, e)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, e *entry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}

// Len returns the number of keys currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

// Package lock serializes work per key. The engine holds a key's lock for
// the whole read-compute-write of a balance or business mutation, so two
// requests on the same key never interleave while requests on different
// keys never wait on each other.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrTimeout is returned when the context ends before the lock is granted.
var ErrTimeout = errors.New("lock: acquisition timed out")

// Unlock releases a held lock. It must be called exactly once.
type Unlock func()

// Locker grants exclusive per-key locks.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// Keyed is an in-process Locker. Entries are reference counted and
// dropped once no holder or waiter remains, so memory tracks the number of
// keys in flight rather than every key ever locked.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

// NewKeyed creates an in-process keyed locker.
func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done.
func (k *Keyed) Lock(ctx context.Context, key string) (Unlock, error) {
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
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				k.release(key, e)
			})
		}, nil
	case <-ctx.Done():
		k.release(key, e)
		return nil, errors.Join(ErrTimeout, ctx.Err())
	}
}

// Len returns the number of keys currently held or awaited.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func (k *Keyed) release(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

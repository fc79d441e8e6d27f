// Package lock provides keyed critical sections. The lifecycle services use
// it to serialize read-modify-write updates of a provider's aggregate rating.
//
// Two implementations are available:
//
//   - Local: an in-process keyed mutex, correct for a single replica.
//   - Redis: a lease held with SET NX PX and released only by its owner,
//     for deployments with several replicas.
package lock

import (
	"context"
	"errors"
	"sync"
)

// Locker acquires an exclusive section for key. The returned unlock func
// must be called exactly once. Lock blocks until the section is free or ctx
// is done.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// ErrNotAcquired is returned when ctx ends before the lock is obtained.
var ErrNotAcquired = errors.New("lock not acquired")

type entry struct {
	ch   chan struct{}
	refs int
}

// Local is a keyed mutex. The zero value is ready to use. Entries are
// removed once no goroutine holds or waits for them.
type Local struct {
	mu   sync.Mutex
	keys map[string]*entry
}

// NewLocal returns an empty Local.
func NewLocal() *Local { return &Local{} }

// Lock implements Locker.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.keys == nil {
		l.keys = make(map[string]*entry)
	}
	e, ok := l.keys[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}

// size reports how many keys are tracked.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

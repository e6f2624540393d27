// Package lock serializes mutations of a single photo across requests.
//
// The coordinator's compensation logic is correct for one operation at a
// time. Two requests renaming the same photo at once can interleave their
// record and blob writes; holding a per-photo lease around each mutation
// rules that out. Locking is opt-in (LOCK_BACKEND):
//
//	none  → Noop: every Acquire succeeds immediately (default)
//	local → Local: keyed in-process mutex, one server instance
//	redis → Redis: SET NX PX lease shared by every instance
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrUnavailable is returned (wrapped) when a lease could not be obtained
// before the context ended.
var ErrUnavailable = errors.New("lock: unavailable")

// Locker hands out exclusive leases on string keys.
// The returned release func must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Noop never blocks.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

// Local is a keyed mutex. Each key gets a 1-slot channel used as a
// semaphore, so a waiting Acquire can also give up when ctx is cancelled,
// which sync.Mutex cannot do.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int // holders + waiters; the slot is freed when this drops to 0
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, s)
		return nil, errors.Join(ErrUnavailable, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(key, s)
		})
	}, nil
}

func (l *Local) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Package runlock prevents overlapping pipeline runs within a process and,
// when Redis is configured, across processes.
package runlock

import (
	"context"
	"errors"
	"sync"
)

// ErrRunInProgress is returned when the lock is already held.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Locker acquires named non-blocking locks.
type Locker interface {
	// TryLock returns a release func, or ErrRunInProgress when held elsewhere.
	TryLock(ctx context.Context, name string) (func(), error)
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// TryLock implements Locker.
func (l *Local) TryLock(_ context.Context, name string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[name]; ok {
		return nil, ErrRunInProgress
	}
	l.held[name] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, nil
}

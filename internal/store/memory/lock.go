package memory

import (
	"context"
	"sync"
	"time"

	"github.com/farsight-markets/farsight/internal/domain"
)

// LockManager is an in-process domain.LockManager. Like the redis one it
// fails fast on contention instead of queueing; the TTL is ignored because a
// crashed in-process holder takes the whole process with it.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]struct{}
}

// NewLockManager returns an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]struct{})}
}

// Acquire takes the named lock or fails with ErrLockHeld.
func (l *LockManager) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.locks[key]; held {
		return nil, domain.ErrLockHeld
	}
	l.locks[key] = struct{}{}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.locks, key)
	}, nil
}

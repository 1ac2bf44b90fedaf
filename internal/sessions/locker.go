package sessions

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a session lock cannot be acquired in time.
var ErrLockTimeout = errors.New("session lock timeout")

// DefaultLockTimeout bounds how long a writer waits for a session lock.
const DefaultLockTimeout = 30 * time.Second

// SessionLocker serializes writers per session id. Entries are refcounted and
// removed when the last waiter releases, so the map stays bounded by the
// number of active sessions.
type SessionLocker struct {
	mu      sync.Mutex
	locks   map[string]*sessionLock
	timeout time.Duration
}

type sessionLock struct {
	sem  chan struct{}
	refs int
}

// NewSessionLocker creates a locker. A non-positive timeout uses the default.
func NewSessionLocker(timeout time.Duration) *SessionLocker {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &SessionLocker{
		locks:   make(map[string]*sessionLock),
		timeout: timeout,
	}
}

// Lock acquires the lock for sessionID, waiting up to the configured timeout
// or until ctx is cancelled.
func (l *SessionLocker) Lock(ctx context.Context, sessionID string) error {
	l.mu.Lock()
	entry, ok := l.locks[sessionID]
	if !ok {
		entry = &sessionLock{sem: make(chan struct{}, 1)}
		l.locks[sessionID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(sessionID)
		return ctx.Err()
	case <-timer.C:
		l.release(sessionID)
		return ErrLockTimeout
	}
}

// Unlock releases the lock for sessionID.
func (l *SessionLocker) Unlock(sessionID string) {
	l.mu.Lock()
	entry, ok := l.locks[sessionID]
	l.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-entry.sem:
	default:
	}
	l.release(sessionID)
}

func (l *SessionLocker) release(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[sessionID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, sessionID)
	}
}

package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/logging"
)

// requestLock is a context-aware mutex.
type requestLock struct {
	sem  chan struct{}
	refs int // guarded by Locker.mu
}

func newRequestLock() *requestLock {
	return &requestLock{sem: make(chan struct{}, 1)}
}

// lockWithContext attempts to acquire the lock, respecting context cancellation.
func (l *requestLock) lockWithContext(ctx context.Context) bool {
	select {
	case l.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *requestLock) unlock() {
	select {
	case <-l.sem:
	default:
		// already unlocked
	}
}

// Locker serializes turns per session id. Locks are created on demand and
// dropped once nobody holds or waits for them.
type Locker struct {
	mu     sync.Mutex
	locks  map[string]*requestLock
	logger *zap.SugaredLogger
}

// NewLocker creates a Locker.
func NewLocker(logger *zap.SugaredLogger) *Locker {
	return &Locker{
		locks:  make(map[string]*requestLock),
		logger: logging.OrNop(logger),
	}
}

func (l *Locker) acquire(id string) *requestLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[id]
	if !ok {
		lock = newRequestLock()
		l.locks[id] = lock
	}
	lock.refs++
	return lock
}

func (l *Locker) release(id string, lock *requestLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, id)
	}
}

// Lock blocks until the session is free or ctx is done. The returned func
// releases the lock.
func (l *Locker) Lock(ctx context.Context, id string) (func(), error) {
	lock := l.acquire(id)

	l.logger.Debugw("lock_acquiring", "session", id)
	if !lock.lockWithContext(ctx) {
		l.release(id, lock)
		l.logger.Warnw("lock_timeout", "session", id, "error", ctx.Err())
		return nil, errors.NewBuilder(errors.CodeSessionBusy, "session "+id+" is busy with another request").
			Temporary().
			Wrap(ctx.Err()).
			WithSuggestion("Wait for the previous question to finish and try again").
			Build()
	}
	l.logger.Debugw("lock_acquired", "session", id)

	var once sync.Once
	return func() {
		once.Do(func() {
			lock.unlock()
			l.release(id, lock)
			l.logger.Debugw("lock_released", "session", id)
		})
	}, nil
}

// Held returns the number of sessions with a holder or waiter.
func (l *Locker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

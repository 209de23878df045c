package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flynn-ai/tripwise/internal/logging"
	"github.com/flynn-ai/tripwise/internal/model"
)

type memorySession struct {
	messages []model.Message
	updated  time.Time
}

// MemoryStore keeps sessions in a map. Reads return copies.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	policy   Policy
	logger   *zap.SugaredLogger
	now      func() time.Time
	janitor  *janitor
}

// NewMemoryStore creates an in-memory store. With a TTL set, a janitor
// goroutine sweeps expired sessions until Close.
func NewMemoryStore(policy Policy, logger *zap.SugaredLogger) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*memorySession),
		policy:   policy,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}

	if policy.TTL > 0 {
		s.janitor = startJanitor(policy.sweepEvery(), func() (int, error) { return s.Sweep(), nil }, s.logger)
	}
	return s
}

// Sweep removes expired sessions and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if s.policy.expired(sess.updated, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// live returns the session if it exists and has not expired. Caller holds mu.
func (s *MemoryStore) live(id string) (*memorySession, bool) {
	sess, ok := s.sessions[id]
	if !ok || s.policy.expired(sess.updated, s.now()) {
		return nil, false
	}
	return sess, true
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, id string, msgs ...model.Message) error {
	if err := checkID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(id)
	if !ok {
		sess = &memorySession{}
		s.sessions[id] = sess
	}
	sess.messages = append(sess.messages, msgs...)
	if start := trimStart(sess.messages, s.policy.MaxMessages); start > 0 {
		kept := make([]model.Message, len(sess.messages)-start)
		copy(kept, sess.messages[start:])
		sess.messages = kept
		s.logger.Debugw("session_trimmed", "session", id, "dropped", start, "kept", len(kept))
	}
	sess.updated = s.now()
	return nil
}

// Read implements Store.
func (s *MemoryStore) Read(ctx context.Context, id string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.live(id)
	if !ok {
		return nil, nil
	}
	history := make([]model.Message, len(sess.messages))
	copy(history, sess.messages)
	return history, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[id] = &memorySession{updated: s.now()}
	return nil
}

// Info implements Store.
func (s *MemoryStore) Info(ctx context.Context, id string) (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.live(id)
	if !ok {
		return Info{ID: id}, nil
	}
	return Info{ID: id, MessageCount: len(sess.messages), Exists: true, UpdatedAt: sess.updated}, nil
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	now := s.now()
	for _, sess := range s.sessions {
		if !s.policy.expired(sess.updated, now) {
			n++
		}
	}
	return n
}

// Close stops the janitor.
func (s *MemoryStore) Close() error {
	s.janitor.Stop()
	return nil
}

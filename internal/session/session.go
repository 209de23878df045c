// Package session keeps per-conversation message logs.
//
// A session is an opaque id mapped to an ordered, append-only list of
// messages. Two policies bound a log:
//   - TTL: sessions idle longer than the TTL are treated as absent and
//     removed by a janitor goroutine.
//   - MaxMessages: after an append the oldest messages are dropped and the
//     head advances to the next user message, so an assistant tool-call
//     message is never separated from its results.
package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/flynn-ai/tripwise/internal/config"
	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/model"
)

// Store persists conversation logs. Implementations are safe for concurrent
// use; callers serialize turns on one session with a Locker.
type Store interface {
	// Append adds msgs to the end of the log, creating the session if needed.
	Append(ctx context.Context, id string, msgs ...model.Message) error

	// Read returns a copy of the log. A missing or expired session reads as empty.
	Read(ctx context.Context, id string) ([]model.Message, error)

	// Clear truncates the log. The session keeps existing with no messages.
	Clear(ctx context.Context, id string) error

	// Info describes a session without returning its messages.
	Info(ctx context.Context, id string) (Info, error)

	// Close stops background work and releases resources.
	Close() error
}

// Info summarizes one session.
type Info struct {
	ID           string    `json:"session_id"`
	MessageCount int       `json:"message_count"`
	Exists       bool      `json:"exists"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Policy bounds session lifetime and size. Zero values disable a bound.
type Policy struct {
	TTL           time.Duration
	MaxMessages   int
	SweepInterval time.Duration
}

// DefaultSweepInterval is used when a TTL is set without a sweep interval.
const DefaultSweepInterval = 5 * time.Minute

// PolicyFrom extracts the policy from configuration.
func PolicyFrom(cfg config.SessionConfig) Policy {
	return Policy{
		TTL:           cfg.TTL.Duration,
		MaxMessages:   cfg.MaxMessages,
		SweepInterval: cfg.SweepInterval.Duration,
	}
}

func (p Policy) sweepEvery() time.Duration {
	if p.SweepInterval > 0 {
		return p.SweepInterval
	}
	return DefaultSweepInterval
}

// expired reports whether a session last touched at updated is past its TTL.
func (p Policy) expired(updated, now time.Time) bool {
	return p.TTL > 0 && now.Sub(updated) > p.TTL
}

// New opens the configured backend.
func New(cfg config.SessionConfig, logger *zap.SugaredLogger) (Store, error) {
	policy := PolicyFrom(cfg)

	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(policy, logger), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path, policy, logger)
	}
	return nil, errors.NewBuilder(errors.CodeConfigInvalid, "unknown session backend "+cfg.Backend).
		User().
		WithSuggestion(`Use backend = "memory" or "sqlite"`).
		Build()
}

// trimStart returns the index of the first message to keep so that at most
// max messages remain and the log starts on a user message. When no user
// message follows the cut, the cut moves back to the last user message so
// the newest turn is kept whole even if it alone exceeds max.
func trimStart(msgs []model.Message, max int) int {
	if max <= 0 || len(msgs) <= max {
		return 0
	}

	cut := len(msgs) - max
	for i := cut; i < len(msgs); i++ {
		if msgs[i].Role == model.RoleUser {
			return i
		}
	}
	for i := cut - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleUser {
			return i
		}
	}
	return 0
}

func checkID(id string) error {
	if id == "" {
		return errors.User(errors.CodeInvalidInput, "session id is required")
	}
	return nil
}

package session

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/flynn-ai/tripwise/internal/config"
	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type backend struct {
	name string
	open func(t *testing.T, p Policy, c *clock) Store
}

var backends = []backend{
	{"memory", func(t *testing.T, p Policy, c *clock) Store {
		s := NewMemoryStore(p, nil)
		s.now = c.Now
		t.Cleanup(func() { s.Close() })
		return s
	}},
	{"sqlite", func(t *testing.T, p Policy, c *clock) Store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"), p, nil)
		require.NoError(t, err)
		s.now = c.Now
		t.Cleanup(func() { s.Close() })
		return s
	}},
}

func user(text string) model.Message { return model.Message{Role: model.RoleUser, Content: text} }

func answer(text string) model.Message { return model.Message{Role: model.RoleAssistant, Content: text} }

func toolCall(id, name string) model.Message {
	return model.Message{
		Role:      model.RoleAssistant,
		ToolCalls: []model.ToolCall{{ID: id, Name: name, Arguments: json.RawMessage(`{"city":"Lisbon"}`)}},
	}
}

func toolResult(id, name, text string) model.Message {
	return model.Message{Role: model.RoleTool, ToolCallID: id, Name: name, Content: text}
}

func roles(msgs []model.Message) []model.Role {
	out := make([]model.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			t.Run("missing session reads empty", func(t *testing.T) {
				s := b.open(t, Policy{}, newClock())
				msgs, err := s.Read(ctx, "nope")
				require.NoError(t, err)
				assert.Empty(t, msgs)

				info, err := s.Info(ctx, "nope")
				require.NoError(t, err)
				assert.Equal(t, Info{ID: "nope"}, info)
			})

			t.Run("append and read round trip", func(t *testing.T) {
				s := b.open(t, Policy{}, newClock())
				turn := []model.Message{
					user("Weather in Lisbon?"),
					toolCall("c1", "get_current_weather"),
					toolResult("c1", "get_current_weather", "Sunny, 24°C"),
					answer("It is sunny."),
				}
				require.NoError(t, s.Append(ctx, "s1", turn...))

				got, err := s.Read(ctx, "s1")
				require.NoError(t, err)
				require.Len(t, got, 4)
				assert.Equal(t, turn[0], got[0])
				assert.Equal(t, "c1", got[1].ToolCalls[0].ID)
				assert.JSONEq(t, `{"city":"Lisbon"}`, string(got[1].ToolCalls[0].Arguments))
				assert.Equal(t, turn[2], got[2])
				assert.Equal(t, turn[3], got[3])

				require.NoError(t, s.Append(ctx, "s1", user("And tomorrow?"), answer("Also sunny.")))
				info, err := s.Info(ctx, "s1")
				require.NoError(t, err)
				assert.True(t, info.Exists)
				assert.Equal(t, 6, info.MessageCount)
			})

			t.Run("sessions are isolated", func(t *testing.T) {
				s := b.open(t, Policy{}, newClock())
				require.NoError(t, s.Append(ctx, "a", user("one")))
				require.NoError(t, s.Append(ctx, "b", user("two"), answer("ok")))

				a, _ := s.Read(ctx, "a")
				bb, _ := s.Read(ctx, "b")
				assert.Len(t, a, 1)
				assert.Len(t, bb, 2)
			})

			t.Run("reads are copies", func(t *testing.T) {
				s := b.open(t, Policy{}, newClock())
				require.NoError(t, s.Append(ctx, "s", user("original")))

				got, _ := s.Read(ctx, "s")
				got[0].Content = "changed"

				again, _ := s.Read(ctx, "s")
				assert.Equal(t, "original", again[0].Content)
			})

			t.Run("clear keeps an empty session", func(t *testing.T) {
				s := b.open(t, Policy{}, newClock())
				require.NoError(t, s.Append(ctx, "s", user("hi"), answer("hello")))
				require.NoError(t, s.Clear(ctx, "s"))

				info, err := s.Info(ctx, "s")
				require.NoError(t, err)
				assert.True(t, info.Exists)
				assert.Equal(t, 0, info.MessageCount)

				msgs, _ := s.Read(ctx, "s")
				assert.Empty(t, msgs)
			})

			t.Run("empty id is rejected", func(t *testing.T) {
				s := b.open(t, Policy{}, newClock())
				err := s.Append(ctx, "", user("hi"))
				require.Error(t, err)
				assert.Equal(t, errors.CategoryUser, errors.GetCategory(err))
			})

			t.Run("ttl expires idle sessions", func(t *testing.T) {
				c := newClock()
				s := b.open(t, Policy{TTL: time.Hour, SweepInterval: time.Hour}, c)
				require.NoError(t, s.Append(ctx, "s", user("hi"), answer("hello")))

				c.Advance(30 * time.Minute)
				msgs, _ := s.Read(ctx, "s")
				assert.Len(t, msgs, 2)

				c.Advance(2 * time.Hour)
				msgs, _ = s.Read(ctx, "s")
				assert.Empty(t, msgs)
				info, _ := s.Info(ctx, "s")
				assert.False(t, info.Exists)

				// appending to an expired id starts over
				require.NoError(t, s.Append(ctx, "s", user("back again")))
				msgs, _ = s.Read(ctx, "s")
				require.Len(t, msgs, 1)
				assert.Equal(t, "back again", msgs[0].Content)
			})

			t.Run("max messages never splits a tool group", func(t *testing.T) {
				s := b.open(t, Policy{MaxMessages: 4}, newClock())
				require.NoError(t, s.Append(ctx, "s",
					user("Weather?"),
					toolCall("c1", "get_current_weather"),
					toolResult("c1", "get_current_weather", "Rain"),
					answer("Rainy."),
				))
				require.NoError(t, s.Append(ctx, "s", user("Thanks"), answer("Anytime.")))

				msgs, err := s.Read(ctx, "s")
				require.NoError(t, err)
				assert.Equal(t, []model.Role{model.RoleUser, model.RoleAssistant}, roles(msgs))
				assert.Equal(t, "Thanks", msgs[0].Content)
			})

			t.Run("max messages keeps an oversized newest turn", func(t *testing.T) {
				s := b.open(t, Policy{MaxMessages: 2}, newClock())
				require.NoError(t, s.Append(ctx, "s", user("old"), answer("old answer")))
				require.NoError(t, s.Append(ctx, "s",
					user("Plan Rome"),
					toolCall("c1", "get_weather_forecast"),
					toolResult("c1", "get_weather_forecast", "Clear"),
					answer("Here is the plan."),
				))

				msgs, err := s.Read(ctx, "s")
				require.NoError(t, err)
				require.Len(t, msgs, 4)
				assert.Equal(t, "Plan Rome", msgs[0].Content)
			})
		})
	}
}

func TestTrimStart(t *testing.T) {
	msgs := []model.Message{
		user("1"), toolCall("a", "x"), toolResult("a", "x", "r"), answer("2"),
		user("3"), answer("4"),
	}

	tests := []struct {
		name string
		max  int
		want int
	}{
		{"disabled", 0, 0},
		{"under limit", 10, 0},
		{"cut lands on tool result", 4, 4},
		{"cut lands on user", 2, 4},
		{"no user after cut", 1, 4},
		{"cut lands on tool call", 5, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, trimStart(msgs, tt.max))
		})
	}
}

func TestMemoryJanitor(t *testing.T) {
	s := NewMemoryStore(Policy{TTL: 20 * time.Millisecond, SweepInterval: 5 * time.Millisecond}, nil)
	defer s.Close()

	require.NoError(t, s.Append(context.Background(), "s", user("hi")))
	assert.Equal(t, 1, s.Len())

	assert.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.sessions) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestSQLiteSweep(t *testing.T) {
	c := newClock()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "s.db"), Policy{TTL: time.Hour, SweepInterval: time.Hour}, nil)
	require.NoError(t, err)
	defer s.Close()
	s.now = c.Now

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "old", user("hi")))
	c.Advance(90 * time.Minute)
	require.NoError(t, s.Append(ctx, "new", user("hi")))

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM session_messages`).Scan(&count))
	assert.Equal(t, 1, count, "messages of swept sessions cascade")
}

func TestSQLitePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path, Policy{}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, "s", user("remember me")))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path, Policy{}, nil)
	require.NoError(t, err)
	defer s.Close()

	msgs, err := s.Read(ctx, "s")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "remember me", msgs[0].Content)
}

func TestNew(t *testing.T) {
	cfg := config.Default().Session
	cfg.Path = filepath.Join(t.TempDir(), "sessions.db")

	for _, name := range []string{"memory", "sqlite"} {
		cfg.Backend = name
		s, err := New(cfg, nil)
		require.NoError(t, err, name)
		require.NoError(t, s.Close())
	}

	cfg.Backend = "redis"
	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestLocker(t *testing.T) {
	t.Run("serializes one session", func(t *testing.T) {
		l := NewLocker(nil)
		unlock, err := l.Lock(context.Background(), "s")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = l.Lock(ctx, "s")
		require.Error(t, err)
		assert.Equal(t, errors.CodeSessionBusy, errors.GetCode(err))

		unlock()
		unlock() // idempotent

		again, err := l.Lock(context.Background(), "s")
		require.NoError(t, err)
		again()
		assert.Equal(t, 0, l.Held())
	})

	t.Run("other sessions are not blocked", func(t *testing.T) {
		l := NewLocker(nil)
		unlockA, err := l.Lock(context.Background(), "a")
		require.NoError(t, err)
		defer unlockA()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		unlockB, err := l.Lock(ctx, "b")
		require.NoError(t, err)
		unlockB()
	})

	t.Run("concurrent turns do not overlap", func(t *testing.T) {
		l := NewLocker(nil)
		var (
			wg      sync.WaitGroup
			inside  int
			overlap bool
			mu      sync.Mutex
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := l.Lock(context.Background(), "s")
				if err != nil {
					return
				}
				mu.Lock()
				inside++
				if inside > 1 {
					overlap = true
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				unlock()
			}()
		}
		wg.Wait()
		assert.False(t, overlap)
		assert.Equal(t, 0, l.Held())
	})
}

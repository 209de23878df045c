package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/model"
	"github.com/flynn-ai/tripwise/internal/model/modeltest"
	"github.com/flynn-ai/tripwise/internal/session"
	"github.com/flynn-ai/tripwise/internal/tools"
	"github.com/flynn-ai/tripwise/internal/tools/executor"
	"github.com/flynn-ai/tripwise/internal/tools/schemas"
	"github.com/flynn-ai/tripwise/internal/travel/places"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type weatherStub struct{ calls atomic.Int32 }

func (w *weatherStub) Name() string        { return "get_current_weather" }
func (w *weatherStub) Description() string { return "Get the current weather for a city" }
func (w *weatherStub) Execute(_ context.Context, input map[string]any) (*executor.Result, error) {
	w.calls.Add(1)
	return executor.NewSuccessResult(fmt.Sprintf("Sunny in %s, 24°C", input["city"])), nil
}

type downBackend struct{}

func (downBackend) Name() string     { return "down" }
func (downBackend) Configured() bool { return true }
func (downBackend) Search(context.Context, string, places.Category) (string, error) {
	return "", errors.Temporary(errors.CodeNetworkUnavailable, "places service unreachable")
}

type fixture struct {
	agent   *Agent
	store   *session.MemoryStore
	weather *weatherStub
}

func newFixture(t *testing.T, m model.Model, mutate func(*Config)) *fixture {
	t.Helper()

	weather := &weatherStub{}
	reg := tools.NewRegistry(nil, time.Second)
	reg.Register(weather, schemas.NewSchema(weather.Name(), weather.Description()).
		AddParam("city", "string", "City name", true).
		Build())
	attractions := &executor.SearchPlaces{Finder: places.NewFinder(nil, downBackend{}), Category: places.Attractions}
	reg.Register(attractions, schemas.NewSchema(attractions.Name(), attractions.Description()).
		AddParam("place", "string", "City", true).
		Build())

	store := session.NewMemoryStore(session.Policy{}, nil)
	t.Cleanup(func() { store.Close() })

	cfg := Config{Model: m, Tools: reg, Sessions: store, MaxToolRounds: 4}
	if mutate != nil {
		mutate(&cfg)
	}
	return &fixture{agent: New(cfg), store: store, weather: weather}
}

func (f *fixture) history(t *testing.T, id string) []model.Message {
	t.Helper()
	msgs, err := f.store.Read(context.Background(), id)
	require.NoError(t, err)
	return msgs
}

func TestAskAnswersDirectly(t *testing.T) {
	m := modeltest.New(modeltest.Answer("Lisbon is lovely in May."))
	f := newFixture(t, m, nil)

	reply, err := f.agent.Ask(context.Background(), "", "Is Lisbon nice in May?")
	require.NoError(t, err)

	assert.Equal(t, "Lisbon is lovely in May.", reply.Answer)
	assert.NotEmpty(t, reply.SessionID, "a session id is generated")
	assert.Equal(t, 1, reply.Rounds)
	assert.Equal(t, 10, reply.TokensUsed)
	assert.Empty(t, reply.ToolCalls)

	msgs := f.history(t, reply.SessionID)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "Is Lisbon nice in May?", msgs[0].Content)

	req := m.Requests()[0]
	assert.Contains(t, req.System, "- get_current_weather: Get the current weather for a city")
	assert.Len(t, req.Tools, 2)
}

func TestAskRunsToolsInOrder(t *testing.T) {
	m := modeltest.New(
		modeltest.Call(
			modeltest.ToolCall("c1", "get_current_weather", map[string]any{"city": "Paris"}),
			modeltest.ToolCall("c2", "book_flight", map[string]any{"to": "Paris"}),
			modeltest.ToolCall("c3", "get_current_weather", map[string]any{}),
		),
		func(req *model.Request) (*model.Response, error) {
			msgs := req.Messages
			require.Len(t, msgs, 5)
			call := msgs[1]
			require.True(t, call.HasToolCalls())
			for i, tc := range call.ToolCalls {
				result := msgs[2+i]
				assert.Equal(t, model.RoleTool, result.Role)
				assert.Equal(t, tc.ID, result.ToolCallID, "results follow calls in order")
				assert.Equal(t, tc.Name, result.Name)
			}
			assert.Equal(t, "Sunny in Paris, 24°C", msgs[2].Content)
			assert.Equal(t, `Error: unknown tool "book_flight"`, msgs[3].Content)
			assert.True(t, strings.HasPrefix(msgs[4].Content, "Error: "), "schema violations become observations")
			return modeltest.Answer("Paris will be sunny.")(req)
		},
	)
	f := newFixture(t, m, nil)

	reply, err := f.agent.Ask(context.Background(), "s1", "Weather in Paris?")
	require.NoError(t, err)
	assert.Equal(t, "Paris will be sunny.", reply.Answer)
	assert.Equal(t, 2, reply.Rounds)
	assert.Equal(t, 15, reply.TokensUsed)
	assert.Equal(t, int32(1), f.weather.calls.Load(), "invalid arguments never reach the tool")

	require.Len(t, reply.ToolCalls, 3)
	assert.True(t, reply.ToolCalls[0].Success)
	assert.False(t, reply.ToolCalls[1].Success)
	assert.False(t, reply.ToolCalls[2].Success)

	msgs := f.history(t, "s1")
	want := []model.Role{model.RoleUser, model.RoleAssistant, model.RoleTool, model.RoleTool, model.RoleTool, model.RoleAssistant}
	got := make([]model.Role, len(msgs))
	for i, msg := range msgs {
		got[i] = msg.Role
	}
	assert.Equal(t, want, got)
}

func TestAskWithServiceDown(t *testing.T) {
	m := modeltest.New(
		modeltest.Call(modeltest.ToolCall("c1", "search_attractions", map[string]any{"place": "Kyoto"})),
		func(req *model.Request) (*model.Response, error) {
			last := req.Messages[len(req.Messages)-1]
			assert.True(t, strings.HasPrefix(last.Content, "Unable to search for attractions in Kyoto - service error: "), last.Content)
			return modeltest.Answer("Here is a plan based on general knowledge.")(req)
		},
	)
	f := newFixture(t, m, nil)

	reply, err := f.agent.Ask(context.Background(), "s", "What to see in Kyoto?")
	require.NoError(t, err)
	assert.Equal(t, "Here is a plan based on general knowledge.", reply.Answer)
	require.Len(t, reply.ToolCalls, 1)
	assert.True(t, reply.ToolCalls[0].Success)
	assert.True(t, reply.ToolCalls[0].Degraded)
}

func TestAskContinuesSession(t *testing.T) {
	m := modeltest.New(
		modeltest.Answer("Rome in spring is great."),
		func(req *model.Request) (*model.Response, error) {
			require.Len(t, req.Messages, 3)
			assert.Equal(t, "Where should I go in April?", req.Messages[0].Content)
			assert.Equal(t, "Rome in spring is great.", req.Messages[1].Content)
			return modeltest.Answer("Pack a light jacket.")(req)
		},
	)
	f := newFixture(t, m, nil)
	ctx := context.Background()

	first, err := f.agent.Ask(ctx, "", "Where should I go in April?")
	require.NoError(t, err)
	assert.Len(t, f.history(t, first.SessionID), 2)

	second, err := f.agent.Ask(ctx, first.SessionID, "What should I pack?")
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Len(t, f.history(t, first.SessionID), 4)
}

func TestMaxToolRounds(t *testing.T) {
	loop := modeltest.Call(modeltest.ToolCall("", "get_current_weather", map[string]any{"city": "Oslo"}))

	t.Run("final call forbids tools", func(t *testing.T) {
		m := modeltest.New(loop, loop,
			func(req *model.Request) (*model.Response, error) {
				assert.Equal(t, model.ToolChoiceNone, req.ToolChoice)
				assert.Contains(t, req.System, "Answer now in text")
				return modeltest.Answer("Oslo is chilly.")(req)
			},
		)
		f := newFixture(t, m, func(c *Config) { c.MaxToolRounds = 2 })

		reply, err := f.agent.Ask(context.Background(), "s", "Weather in Oslo?")
		require.NoError(t, err)
		assert.Equal(t, "Oslo is chilly.", reply.Answer)
		assert.Equal(t, 3, reply.Rounds)
		assert.Len(t, reply.ToolCalls, 2)
		assert.Len(t, m.Requests(), 3)
		for _, tc := range reply.ToolCalls {
			assert.NotEmpty(t, tc.CallID, "missing call ids are generated")
		}
	})

	t.Run("silent final call gets a fixed answer", func(t *testing.T) {
		m := modeltest.New(loop, loop)
		m.Fallback = loop
		f := newFixture(t, m, func(c *Config) { c.MaxToolRounds = 2 })

		reply, err := f.agent.Ask(context.Background(), "s", "Weather in Oslo?")
		require.NoError(t, err)
		assert.Equal(t, ExhaustedAnswer, reply.Answer)

		msgs := f.history(t, "s")
		last := msgs[len(msgs)-1]
		assert.Equal(t, model.RoleAssistant, last.Role)
		assert.False(t, last.HasToolCalls(), "stray calls from the final round are dropped")
	})
}

func TestAskFailuresStoreNothing(t *testing.T) {
	tests := []struct {
		name  string
		steps []modeltest.Step
		code  string
	}{
		{
			name: "model error after a tool round",
			steps: []modeltest.Step{
				modeltest.Call(modeltest.ToolCall("c1", "get_current_weather", map[string]any{"city": "Nice"})),
				modeltest.Fail(errors.Temporary(errors.CodeModelUnavailable, "provider down")),
			},
			code: errors.CodeModelUnavailable,
		},
		{
			name: "empty response",
			steps: []modeltest.Step{func(*model.Request) (*model.Response, error) {
				return &model.Response{Message: model.Message{Role: model.RoleAssistant, Content: "  "}}, nil
			}},
			code: errors.CodeModelInvalidResponse,
		},
		{
			name:  "plain error is classified",
			steps: []modeltest.Step{modeltest.Fail(fmt.Errorf("connection reset"))},
			code:  errors.CodeModelUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, modeltest.New(tt.steps...), nil)
			_, err := f.agent.Ask(context.Background(), "s", "Weather in Nice?")
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))

			info, err := f.store.Info(context.Background(), "s")
			require.NoError(t, err)
			assert.False(t, info.Exists)

			_, _, errs, _ := f.agent.Stats().GetMetrics()
			assert.Equal(t, int64(1), errs)
		})
	}
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	m := modeltest.New()
	f := newFixture(t, m, nil)

	_, err := f.agent.Ask(context.Background(), "s", "   ")
	require.Error(t, err)
	assert.Equal(t, errors.CategoryUser, errors.GetCategory(err))
	assert.Empty(t, m.Requests())
}

func TestAskEvents(t *testing.T) {
	m := modeltest.New(
		modeltest.Call(modeltest.ToolCall("c1", "get_current_weather", map[string]any{"city": "Porto"})),
		modeltest.Answer("Warm."),
	)
	f := newFixture(t, m, nil)

	var kinds []EventKind
	_, err := f.agent.AskWithEvents(context.Background(), "s", "Porto weather?", func(e Event) {
		kinds = append(kinds, e.Kind)
		if e.Kind == EventToolDone {
			assert.Equal(t, "get_current_weather", e.Tool)
			assert.True(t, e.Success)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []EventKind{EventThinking, EventToolStart, EventToolDone, EventThinking, EventAnswer}, kinds)
}

// gateModel blocks each call until released and records overlap.
type gateModel struct {
	inflight atomic.Int32
	overlap  atomic.Bool
	release  chan struct{}
}

func (g *gateModel) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	if g.inflight.Add(1) > 1 {
		g.overlap.Store(true)
	}
	defer g.inflight.Add(-1)

	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &model.Response{Message: model.Message{Role: model.RoleAssistant, Content: fmt.Sprintf("answer %d", len(req.Messages))}}, nil
}

func (g *gateModel) IsAvailable() bool          { return true }
func (g *gateModel) Name() string               { return "gate" }
func (g *gateModel) Provider() string           { return "test" }
func (g *gateModel) Status() *model.ModelStatus { return &model.ModelStatus{Name: "gate", Available: true} }

func TestSessionTurnsSerialize(t *testing.T) {
	g := &gateModel{release: make(chan struct{})}
	f := newFixture(t, g, nil)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.agent.Ask(context.Background(), "shared", fmt.Sprintf("question %d", i))
			assert.NoError(t, err)
		}(i)
	}

	g.release <- struct{}{}
	g.release <- struct{}{}
	wg.Wait()

	assert.False(t, g.overlap.Load())
	msgs := f.history(t, "shared")
	require.Len(t, msgs, 4)
	// the second turn saw the first one
	assert.Equal(t, "answer 3", msgs[3].Content)
}

func TestLockTimeout(t *testing.T) {
	locker := session.NewLocker(nil)
	f := newFixture(t, modeltest.New(modeltest.Answer("hi")), func(c *Config) {
		c.Locker = locker
		c.LockTimeout = 20 * time.Millisecond
	})

	unlock, err := locker.Lock(context.Background(), "busy")
	require.NoError(t, err)
	defer unlock()

	_, err = f.agent.Ask(context.Background(), "busy", "Anyone there?")
	require.Error(t, err)
	assert.Equal(t, errors.CodeSessionBusy, errors.GetCode(err))
}

func TestStatus(t *testing.T) {
	f := newFixture(t, modeltest.New(), nil)
	s := f.agent.Status()
	assert.Equal(t, "scripted", s.Model)
	assert.Equal(t, []string{"get_current_weather", "search_attractions"}, s.Tools)
}

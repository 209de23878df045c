// Package agent provides the travel agent's bounded tool-calling loop.
//
// One turn:
//   - locks the session so overlapping questions serialize
//   - reads the history and asks the model for the next step
//   - runs every requested tool in order and feeds the results back
//   - stops on a text answer or after the configured number of rounds
//   - commits the whole turn to the session store only on success
package agent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flynn-ai/tripwise/internal/cost"
	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/logging"
	"github.com/flynn-ai/tripwise/internal/model"
	"github.com/flynn-ai/tripwise/internal/prompt"
	"github.com/flynn-ai/tripwise/internal/session"
	"github.com/flynn-ai/tripwise/internal/stats"
	"github.com/flynn-ai/tripwise/internal/tools"
)

// DefaultMaxToolRounds bounds model calls that may request tools.
const DefaultMaxToolRounds = 10

// ExhaustedAnswer is returned when the model gives no text after the round
// limit.
const ExhaustedAnswer = "I gathered some information but could not finish the plan within my step limit. " +
	"Please try again with a narrower question."

const finalRoundNote = "You have used all available tool calls for this question. " +
	"Answer now in text using the information gathered so far."

// Agent answers travel questions with a tool-calling model.
type Agent struct {
	model     model.Model
	tools     *tools.Registry
	sessions  session.Store
	locker    *session.Locker
	prompt    *prompt.Builder
	stats     *stats.Collector
	cost      *cost.Tracker
	logger    *zap.SugaredLogger
	maxRounds int
	lockWait  time.Duration
}

// Config configures the Agent. Model, Tools and Sessions are required.
type Config struct {
	Model         model.Model
	Tools         *tools.Registry
	Sessions      session.Store
	Locker        *session.Locker
	Prompt        *prompt.Builder
	Stats         *stats.Collector
	Cost          *cost.Tracker
	Logger        *zap.SugaredLogger
	MaxToolRounds int
	LockTimeout   time.Duration // 0 = wait as long as the request context allows
}

// New creates an Agent.
func New(cfg Config) *Agent {
	a := &Agent{
		model:     cfg.Model,
		tools:     cfg.Tools,
		sessions:  cfg.Sessions,
		locker:    cfg.Locker,
		prompt:    cfg.Prompt,
		stats:     cfg.Stats,
		cost:      cfg.Cost,
		logger:    logging.OrNop(cfg.Logger),
		maxRounds: cfg.MaxToolRounds,
		lockWait:  cfg.LockTimeout,
	}
	if a.locker == nil {
		a.locker = session.NewLocker(a.logger)
	}
	if a.prompt == nil {
		a.prompt = prompt.NewBuilder()
	}
	if a.stats == nil {
		a.stats = stats.NewCollector()
	}
	if a.cost == nil {
		a.cost = cost.NewTracker(nil)
	}
	if a.maxRounds <= 0 {
		a.maxRounds = DefaultMaxToolRounds
	}
	return a
}

// Reply is the outcome of one answered question.
type Reply struct {
	Answer     string         `json:"answer"`
	SessionID  string         `json:"session_id"`
	ToolCalls  []ToolCallInfo `json:"tool_calls,omitempty"`
	Rounds     int            `json:"rounds"`
	TokensUsed int            `json:"tokens_used"`
	Cost       float64        `json:"cost_usd"`
	Duration   time.Duration  `json:"-"`
}

// ToolCallInfo represents info about an executed tool.
type ToolCallInfo struct {
	Tool       string `json:"tool"`
	CallID     string `json:"call_id"`
	Success    bool   `json:"success"`
	Degraded   bool   `json:"degraded,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Status represents the agent's status.
type Status struct {
	Model          string   `json:"model"`
	Provider       string   `json:"provider"`
	ModelAvailable bool     `json:"model_available"`
	Tools          []string `json:"tools"`
}

// Ask answers question within the session. An empty sessionID starts a new
// session whose id is returned in the Reply.
func (a *Agent) Ask(ctx context.Context, sessionID, question string) (*Reply, error) {
	return a.AskWithEvents(ctx, sessionID, question, nil)
}

// AskWithEvents is Ask with progress reported to onEvent.
func (a *Agent) AskWithEvents(ctx context.Context, sessionID, question string, onEvent EventFunc) (*Reply, error) {
	start := time.Now()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.NewBuilder(errors.CodeInvalidInput, "question must not be empty").
			User().
			WithSuggestion("Ask something like: Plan a 3-day trip to Lisbon on a medium budget").
			Build()
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	log := logging.WithSession(a.logger, sessionID)

	unlock, err := a.lock(ctx, sessionID)
	if err != nil {
		a.stats.RecordError()
		return nil, err
	}
	defer unlock()

	history, err := a.sessions.Read(ctx, sessionID)
	if err != nil {
		a.stats.RecordError()
		return nil, err
	}

	t := &turn{
		agent:    a,
		history:  history,
		messages: []model.Message{{Role: model.RoleUser, Content: question}},
		reply:    &Reply{SessionID: sessionID},
		emit:     onEvent,
		log:      log,
	}
	if err := t.run(ctx); err != nil {
		a.stats.RecordError()
		log.Warnw("query_failed",
			"error", err,
			"rounds", t.reply.Rounds,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	if err := a.sessions.Append(ctx, sessionID, t.messages...); err != nil {
		a.stats.RecordError()
		return nil, err
	}

	reply := t.reply
	reply.Duration = time.Since(start)
	reply.Cost = a.cost.Record(a.model.Name(), a.model.Provider() == "ollama", reply.TokensUsed)
	a.stats.RecordRequest(reply.TokensUsed, reply.Rounds, reply.Duration)

	log.Infow("query_completed",
		"rounds", reply.Rounds,
		"tool_calls", len(reply.ToolCalls),
		"tokens", reply.TokensUsed,
		"duration_ms", reply.Duration.Milliseconds(),
	)
	t.event(Event{Kind: EventAnswer, Round: reply.Rounds, Text: reply.Answer})
	return reply, nil
}

// Clear empties a session's history. It waits for a running turn on the same
// session so the turn cannot re-add messages afterwards.
func (a *Agent) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.User(errors.CodeInvalidInput, "session_id is required")
	}
	unlock, err := a.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := a.sessions.Clear(ctx, sessionID); err != nil {
		return err
	}
	logging.WithSession(a.logger, sessionID).Infow("session_cleared")
	return nil
}

func (a *Agent) lock(ctx context.Context, sessionID string) (func(), error) {
	if a.lockWait <= 0 {
		return a.locker.Lock(ctx, sessionID)
	}
	lockCtx, cancel := context.WithTimeout(ctx, a.lockWait)
	defer cancel()
	return a.locker.Lock(lockCtx, sessionID)
}

// Model returns the model in use.
func (a *Agent) Model() model.Model { return a.model }

// Tools returns the tool registry.
func (a *Agent) Tools() *tools.Registry { return a.tools }

// Sessions returns the session store.
func (a *Agent) Sessions() session.Store { return a.sessions }

// Stats returns the statistics collector.
func (a *Agent) Stats() *stats.Collector { return a.stats }

// Cost returns the spend tracker.
func (a *Agent) Cost() *cost.Tracker { return a.cost }

// Status reports the model and tool set.
func (a *Agent) Status() *Status {
	st := a.model.Status()
	return &Status{
		Model:          st.Name,
		Provider:       st.Provider,
		ModelAvailable: st.Available,
		Tools:          a.tools.Executors().List(),
	}
}

// ============================================================
// Turn
// ============================================================

// turn holds the messages produced while answering one question. Nothing
// reaches the session store until the turn finishes.
type turn struct {
	agent    *Agent
	history  []model.Message
	messages []model.Message
	reply    *Reply
	emit     EventFunc
	log      *zap.SugaredLogger
}

func (t *turn) event(e Event) {
	if t.emit != nil {
		t.emit(e)
	}
}

func (t *turn) conversation() []model.Message {
	msgs := make([]model.Message, 0, len(t.history)+len(t.messages))
	msgs = append(msgs, t.history...)
	return append(msgs, t.messages...)
}

func (t *turn) run(ctx context.Context) error {
	a := t.agent
	specs := a.tools.Specs()
	system := a.prompt.Build(specs)

	for round := 1; round <= a.maxRounds; round++ {
		t.event(Event{Kind: EventThinking, Round: round})

		resp, err := t.generate(ctx, &model.Request{
			System:   system,
			Messages: t.conversation(),
			Tools:    specs,
		})
		if err != nil {
			return err
		}

		msg := resp.Message
		if len(msg.ToolCalls) == 0 {
			if strings.TrimSpace(msg.Content) == "" {
				return errors.NewBuilder(errors.CodeModelInvalidResponse, a.model.Provider()+" returned an empty response").
					Temporary().
					WithContext("round", round).
					Build()
			}
			t.finish(msg.Content)
			return nil
		}

		calls := withIDs(msg.ToolCalls)
		t.messages = append(t.messages, model.Message{
			Role:      model.RoleAssistant,
			Content:   msg.Content,
			ToolCalls: calls,
		})
		for _, call := range calls {
			t.dispatch(ctx, round, call)
		}
	}

	t.log.Warnw("tool_rounds_exhausted", "max_rounds", a.maxRounds)
	resp, err := t.generate(ctx, &model.Request{
		System:     system + "\n\n" + finalRoundNote,
		Messages:   t.conversation(),
		Tools:      specs,
		ToolChoice: model.ToolChoiceNone,
	})
	if err != nil {
		return err
	}
	answer := resp.Message.Content
	if strings.TrimSpace(answer) == "" {
		answer = ExhaustedAnswer
	}
	t.finish(answer)
	return nil
}

func (t *turn) generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	resp, err := t.agent.model.Generate(ctx, req)
	if err != nil {
		if errors.GetCode(err) == "" && ctx.Err() == nil {
			err = errors.Wrap(err, errors.CodeModelUnavailable, "model request failed", errors.CategoryTemporary)
		}
		return nil, err
	}
	t.reply.Rounds++
	t.reply.TokensUsed += resp.Usage.TotalTokens
	return resp, nil
}

func (t *turn) dispatch(ctx context.Context, round int, call model.ToolCall) {
	t.event(Event{Kind: EventToolStart, Round: round, Tool: call.Name, CallID: call.ID})

	result := t.agent.tools.Dispatch(ctx, call)
	text := result.Text()
	t.messages = append(t.messages, model.Message{
		Role:       model.RoleTool,
		Content:    text,
		ToolCallID: call.ID,
		Name:       call.Name,
	})

	t.reply.ToolCalls = append(t.reply.ToolCalls, ToolCallInfo{
		Tool:       call.Name,
		CallID:     call.ID,
		Success:    result.Success,
		Degraded:   result.Degraded,
		DurationMs: result.DurationMs,
	})
	t.agent.stats.RecordTool(call.Name, !result.Success, result.Degraded)

	t.event(Event{
		Kind:     EventToolDone,
		Round:    round,
		Tool:     call.Name,
		CallID:   call.ID,
		Success:  result.Success,
		Degraded: result.Degraded,
		Text:     text,
	})
}

func (t *turn) finish(answer string) {
	t.messages = append(t.messages, model.Message{Role: model.RoleAssistant, Content: answer})
	t.reply.Answer = answer
}

// withIDs copies calls, giving any call without an id a fresh one so each
// result can be paired with its request.
func withIDs(calls []model.ToolCall) []model.ToolCall {
	out := make([]model.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = "call_" + uuid.NewString()
		}
		if len(c.Arguments) == 0 {
			c.Arguments = []byte("{}")
		}
		out[i] = c
	}
	return out
}

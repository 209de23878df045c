// Package modeltest provides a scripted Model for tests.
package modeltest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/flynn-ai/tripwise/internal/model"
)

// Step produces one response given the request the loop sent.
type Step func(req *model.Request) (*model.Response, error)

// Scripted replays steps in order and records every request.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	requests []*model.Request
	// Fallback answers once steps run out; nil means an error.
	Fallback Step
}

// New returns a Scripted model.
func New(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// Generate implements model.Model.
func (s *Scripted) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	snapshot := *req
	snapshot.Messages = append([]model.Message(nil), req.Messages...)
	s.requests = append(s.requests, &snapshot)
	idx := len(s.requests) - 1
	var step Step
	if idx < len(s.steps) {
		step = s.steps[idx]
	} else {
		step = s.Fallback
	}
	s.mu.Unlock()

	if step == nil {
		return nil, fmt.Errorf("scripted model: no step for call %d", idx+1)
	}
	return step(&snapshot)
}

// Requests returns the recorded requests.
func (s *Scripted) Requests() []*model.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.Request(nil), s.requests...)
}

func (s *Scripted) IsAvailable() bool          { return true }
func (s *Scripted) Name() string               { return "scripted" }
func (s *Scripted) Provider() string           { return "test" }
func (s *Scripted) Status() *model.ModelStatus { return &model.ModelStatus{Name: "scripted", Provider: "test", Available: true} }

// Answer returns a step that replies with text.
func Answer(text string) Step {
	return func(*model.Request) (*model.Response, error) {
		return &model.Response{
			Message: model.Message{Role: model.RoleAssistant, Content: text},
			Usage:   model.Usage{TotalTokens: 10},
		}, nil
	}
}

// Call returns a step that requests tool calls. Each call is name + args.
func Call(calls ...model.ToolCall) Step {
	return func(*model.Request) (*model.Response, error) {
		return &model.Response{
			Message: model.Message{Role: model.RoleAssistant, ToolCalls: calls},
			Usage:   model.Usage{TotalTokens: 5},
		}, nil
	}
}

// ToolCall builds a call with JSON-encoded args.
func ToolCall(id, name string, args map[string]any) model.ToolCall {
	raw, _ := json.Marshal(args)
	return model.ToolCall{ID: id, Name: name, Arguments: raw}
}

// Fail returns a step that fails with err.
func Fail(err error) Step {
	return func(*model.Request) (*model.Response, error) {
		return nil, err
	}
}

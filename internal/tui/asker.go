package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flynn-ai/tripwise/internal/agent"
	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/pdf"
	"github.com/flynn-ai/tripwise/pkg/protocol"
)

// Asker is the conversation backend of the chat UI.
type Asker interface {
	// Ask answers question in the session. progress receives short status
	// lines while the answer is produced; it may never be called.
	Ask(ctx context.Context, sessionID, question string, progress func(string)) (*protocol.QueryResponse, error)
	Clear(ctx context.Context, sessionID string) error
	// Export returns the latest plan of the session as a PDF.
	Export(ctx context.Context, sessionID string) ([]byte, error)
}

// ============================================================
// Local
// ============================================================

// Local runs the agent in-process.
type Local struct {
	Agent *agent.Agent
}

func (l *Local) Ask(ctx context.Context, sessionID, question string, progress func(string)) (*protocol.QueryResponse, error) {
	reply, err := l.Agent.AskWithEvents(ctx, sessionID, question, func(e agent.Event) {
		if progress == nil {
			return
		}
		switch e.Kind {
		case agent.EventThinking:
			progress(fmt.Sprintf("thinking (round %d)", e.Round))
		case agent.EventToolStart:
			progress("calling " + e.Tool)
		case agent.EventToolDone:
			status := "done"
			if !e.Success {
				status = "failed"
			} else if e.Degraded {
				status = "fallback"
			}
			progress(e.Tool + ": " + status)
		}
	})
	if err != nil {
		return nil, err
	}

	resp := &protocol.QueryResponse{
		Answer:    reply.Answer,
		SessionID: reply.SessionID,
		Metadata: protocol.ResponseMeta{
			Model:      l.Agent.Model().Name(),
			Provider:   l.Agent.Model().Provider(),
			Rounds:     reply.Rounds,
			TokensUsed: reply.TokensUsed,
			Cost:       reply.Cost,
			DurationMs: reply.Duration.Milliseconds(),
		},
	}
	for _, tc := range reply.ToolCalls {
		resp.Metadata.ToolCalls = append(resp.Metadata.ToolCalls, protocol.ToolCall{
			Tool: tc.Tool, CallID: tc.CallID, Success: tc.Success, Degraded: tc.Degraded, DurationMs: tc.DurationMs,
		})
	}
	return resp, nil
}

func (l *Local) Clear(ctx context.Context, sessionID string) error {
	return l.Agent.Clear(ctx, sessionID)
}

func (l *Local) Export(ctx context.Context, sessionID string) ([]byte, error) {
	msgs, err := l.Agent.Sessions().Read(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	answer, ok := pdf.LastAnswer(msgs)
	if !ok {
		return nil, errors.User(errors.CodeSessionNoAnswer, "no travel plan in this session yet")
	}
	var buf bytes.Buffer
	if err := pdf.Render(&buf, answer, time.Now()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ============================================================
// Remote
// ============================================================

// Remote talks to a running tripwise server.
type Remote struct {
	BaseURL string
	Client  *http.Client
}

// NewRemote returns a Remote for baseURL.
func NewRemote(baseURL string) *Remote {
	return &Remote{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (r *Remote) Ask(ctx context.Context, sessionID, question string, progress func(string)) (*protocol.QueryResponse, error) {
	if progress != nil {
		progress("waiting for " + r.BaseURL)
	}
	var resp protocol.QueryResponse
	err := r.do(ctx, http.MethodPost, "/query", protocol.QueryRequest{Question: question, SessionID: sessionID}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r *Remote) Clear(ctx context.Context, sessionID string) error {
	var resp protocol.StatusResponse
	return r.do(ctx, http.MethodPost, "/clear-session", protocol.ClearSessionRequest{SessionID: sessionID}, &resp)
}

func (r *Remote) Export(ctx context.Context, sessionID string) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.do(ctx, http.MethodGet, "/generate-pdf/"+url.PathEscape(sessionID), nil, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// do sends body as JSON and decodes the reply into out. A *bytes.Buffer out
// receives the raw body.
func (r *Remote) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := r.Client.Do(req)
	if err != nil {
		return errors.NewBuilder(errors.CodeNetworkUnavailable, "cannot reach "+r.BaseURL).
			Temporary().
			Wrap(err).
			WithSuggestion("Start the server with: tripwise serve").
			Build()
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		var e protocol.ErrorResponse
		if json.NewDecoder(res.Body).Decode(&e) != nil || e.Error == "" {
			e.Error = res.Status
		}
		b := errors.NewBuilder(e.Code, e.Error)
		if res.StatusCode < 500 {
			b = b.User()
		} else {
			b = b.System()
		}
		for _, s := range e.Suggestions {
			b = b.WithSuggestion(s)
		}
		return b.Build()
	}

	if buf, ok := out.(*bytes.Buffer); ok {
		_, err = io.Copy(buf, res.Body)
		return err
	}
	return json.NewDecoder(res.Body).Decode(out)
}

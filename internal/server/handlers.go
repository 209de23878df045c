package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/model"
	"github.com/flynn-ai/tripwise/internal/pdf"
	"github.com/flynn-ai/tripwise/pkg/protocol"
)

func badBody(err error) error {
	return errors.NewBuilder(errors.CodeInvalidInput, "invalid request body: "+err.Error()).
		User().
		Wrap(err).
		Build()
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if t := s.cfg.RequestTimeout.Duration; t > 0 {
		return context.WithTimeout(c.Request.Context(), t)
	}
	return context.WithCancel(c.Request.Context())
}

// POST /query
func (s *Server) handleQuery(c *gin.Context) {
	var req protocol.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badBody(err))
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	reply, err := s.agent.Ask(ctx, strings.TrimSpace(req.SessionID), req.Question)
	if err != nil {
		s.fail(c, err)
		return
	}

	calls := make([]protocol.ToolCall, len(reply.ToolCalls))
	for i, tc := range reply.ToolCalls {
		calls[i] = protocol.ToolCall{
			Tool:       tc.Tool,
			CallID:     tc.CallID,
			Success:    tc.Success,
			Degraded:   tc.Degraded,
			DurationMs: tc.DurationMs,
		}
	}

	m := s.agent.Model()
	c.JSON(http.StatusOK, protocol.QueryResponse{
		Answer:    reply.Answer,
		SessionID: reply.SessionID,
		Metadata: protocol.ResponseMeta{
			Model:      m.Name(),
			Provider:   m.Provider(),
			Rounds:     reply.Rounds,
			TokensUsed: reply.TokensUsed,
			Cost:       reply.Cost,
			DurationMs: reply.Duration.Milliseconds(),
			ToolCalls:  calls,
		},
	})
}

// POST /clear-session
func (s *Server) handleClearSession(c *gin.Context) {
	var req protocol.ClearSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badBody(err))
		return
	}

	id := strings.TrimSpace(req.SessionID)
	if err := s.agent.Clear(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.StatusResponse{
		Status:  "success",
		Message: "Session " + id + " cleared",
	})
}

// GET /session-info/:session_id
func (s *Server) handleSessionInfo(c *gin.Context) {
	info, err := s.agent.Sessions().Info(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.SessionInfo{
		SessionID:    info.ID,
		MessageCount: info.MessageCount,
		Exists:       info.Exists,
	})
}

// GET /generate-pdf/:session_id
func (s *Server) handleGeneratePDF(c *gin.Context) {
	id := c.Param("session_id")
	msgs, err := s.agent.Sessions().Read(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}

	answer, ok := pdf.LastAnswer(msgs)
	if !ok {
		s.fail(c, errors.NewBuilder(errors.CodeSessionNoAnswer, "no travel plan found for session "+id).
			User().
			WithSuggestion("Ask for a travel plan with POST /query first").
			Build())
		return
	}

	now := s.now()
	var buf bytes.Buffer
	if err := pdf.Render(&buf, answer, now); err != nil {
		s.fail(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+pdf.Filename(now)+`"`)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// GET /health
func (s *Server) handleHealth(c *gin.Context) {
	st := s.agent.Model().Status()
	c.JSON(http.StatusOK, protocol.HealthResponse{
		Status:         "healthy",
		Model:          st.Name,
		Provider:       st.Provider,
		ModelAvailable: st.Available,
		ModelError:     st.Error,
		Tools:          len(s.agent.Tools().Specs()),
	})
}

// GET /tools
func (s *Server) handleTools(c *gin.Context) {
	c.JSON(http.StatusOK, protocol.ToolsResponse{Tools: Definitions(s.agent.Tools().Specs())})
}

// GET /stats
func (s *Server) handleStats(c *gin.Context) {
	st := s.agent.Stats().Collect(s.dbPath)
	spend := s.agent.Cost().Snapshot()

	resp := protocol.StatsResponse{
		Requests:     st.RequestCount,
		Tokens:       st.TokenCount,
		Errors:       st.ErrorCount,
		AvgLatencyMs: st.AvgLatencyMs,
		AvgRounds:    st.AvgRounds,
		Goroutines:   st.Goroutines,
		UptimeSec:    int64(s.now().Sub(s.agent.Stats().StartTime()).Seconds()),
		DailyCost:    spend.Daily.CloudCost,
		MonthlyCost:  spend.Monthly.CloudCost,
		LocalRate:    spend.LocalRate,
		Tools:        make(map[string]protocol.ToolStats, len(st.Tools)),
	}
	for name, ts := range st.Tools {
		resp.Tools[name] = protocol.ToolStats{Calls: ts.Calls, Failures: ts.Failures, Degraded: ts.Degraded}
	}
	c.JSON(http.StatusOK, resp)
}

// Definitions flattens tool schemas into wire descriptors.
func Definitions(specs []model.Tool) []protocol.ToolDefinition {
	defs := make([]protocol.ToolDefinition, 0, len(specs))
	for _, spec := range specs {
		def := protocol.ToolDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  map[string]protocol.Parameter{},
		}
		if spec.Parameters != nil {
			required := map[string]bool{}
			for _, r := range spec.Parameters.Required {
				required[r] = true
			}
			for name, prop := range spec.Parameters.Properties {
				def.Parameters[name] = parameter(prop, required[name])
			}
		}
		defs = append(defs, def)
	}
	sort.SliceStable(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func parameter(prop *jsonschema.Schema, required bool) protocol.Parameter {
	p := protocol.Parameter{
		Type:        prop.Type,
		Description: prop.Description,
		Required:    required,
	}
	for _, e := range prop.Enum {
		if s, ok := e.(string); ok {
			p.Enum = append(p.Enum, s)
		}
	}
	if len(prop.Default) > 0 {
		var v any
		if json.Unmarshal(prop.Default, &v) == nil {
			p.Default = v
		}
	}
	return p
}

// Package mcpserver publishes the travel tools over the Model Context Protocol
// so other agents can call them directly.
package mcpserver

import (
	"context"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/flynn-ai/tripwise/internal/agent"
	"github.com/flynn-ai/tripwise/internal/logging"
	"github.com/flynn-ai/tripwise/internal/model"
	"github.com/flynn-ai/tripwise/internal/tools"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// PlanTripTool is the extra tool that runs the full agent.
const PlanTripTool = "plan_trip"

// Options configures New.
type Options struct {
	// Agent, when set, is exposed as the plan_trip tool.
	Agent  *agent.Agent
	Logger *zap.SugaredLogger
}

// PlanTripInput is the argument of plan_trip.
type PlanTripInput struct {
	Question  string `json:"question" jsonschema:"the travel question or planning request"`
	SessionID string `json:"session_id,omitempty" jsonschema:"continue an earlier conversation"`
}

// New returns an MCP server exposing every tool in reg.
func New(reg *tools.Registry, opts Options) *mcp.Server {
	logger := logging.OrNop(opts.Logger)
	srv := mcp.NewServer(&mcp.Implementation{Name: "tripwise", Title: "Tripwise travel tools", Version: Version}, nil)

	for _, spec := range reg.Specs() {
		srv.AddTool(&mcp.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.Parameters,
		}, toolHandler(reg, spec.Name, logger))
	}

	if opts.Agent != nil {
		a := opts.Agent
		mcp.AddTool(srv, &mcp.Tool{
			Name:        PlanTripTool,
			Description: "Ask the travel agent to answer a question or build a complete travel plan",
		}, func(ctx context.Context, _ *mcp.CallToolRequest, in PlanTripInput) (*mcp.CallToolResult, any, error) {
			reply, err := a.Ask(ctx, in.SessionID, in.Question)
			if err != nil {
				return errorResult(err.Error()), nil, nil
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: reply.Answer}},
				Meta:    mcp.Meta{"session_id": reply.SessionID},
			}, nil, nil
		})
	}
	return srv
}

func toolHandler(reg *tools.Registry, name string, logger *zap.SugaredLogger) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call := model.ToolCall{
			ID:        "mcp_" + uuid.NewString(),
			Name:      name,
			Arguments: req.Params.Arguments,
		}
		result := reg.Dispatch(ctx, call)
		logger.Debugw("mcp_tool_call", "tool", name, "success", result.Success, "duration_ms", result.DurationMs)

		if !result.Success {
			return errorResult(result.Text()), nil
		}
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: result.Text()}}}, nil
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

// ServeStdio runs srv over stdin/stdout until ctx ends or the client leaves.
func ServeStdio(ctx context.Context, srv *mcp.Server) error {
	return srv.Run(ctx, &mcp.StdioTransport{})
}

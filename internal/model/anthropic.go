package model

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures the Anthropic Messages API client.
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

// AnthropicClient implements Model using the Anthropic SDK.
type AnthropicClient struct {
	cfg    *AnthropicConfig
	client anthropic.Client
	guard  *guard
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(cfg *AnthropicConfig) *AnthropicClient {
	if cfg == nil {
		return nil
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// retries are handled by the guard
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &AnthropicClient{
		cfg:    cfg,
		client: anthropic.NewClient(opts...),
		guard:  newGuard("anthropic", cfg.MaxRetries),
	}
}

// Generate sends the conversation and returns the next assistant message.
func (c *AnthropicClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if !c.IsAvailable() {
		return nil, notConfigured("anthropic", "ANTHROPIC_API_KEY")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(firstPositive(req.MaxTokens, c.cfg.MaxTokens, 4096)),
		Messages:  toAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if t := firstNonZero(req.Temperature, c.cfg.Temperature); t != 0 {
		params.Temperature = anthropic.Float(t)
	}
	for _, t := range req.Tools {
		schema := schemaMap(t.Parameters)
		var required []string
		if raw, ok := schema["required"].([]any); ok {
			for _, r := range raw {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema["properties"],
					Required:   required,
				},
			},
		})
	}

	if req.ToolChoice == ToolChoiceNone && len(params.Tools) > 0 {
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	}

	return c.guard.do(ctx, func() (*Response, error) {
		msg, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return nil, classify(err, "anthropic", anthropicStatus(err))
		}
		return fromAnthropicMessage(msg), nil
	})
}

// IsAvailable checks if the client is configured.
func (c *AnthropicClient) IsAvailable() bool {
	return c != nil && c.cfg != nil && c.cfg.APIKey != ""
}

// Name returns the model name.
func (c *AnthropicClient) Name() string {
	return c.cfg.Model
}

// Provider returns the backend name.
func (c *AnthropicClient) Provider() string {
	return "anthropic"
}

// Status returns the model status.
func (c *AnthropicClient) Status() *ModelStatus {
	return statusOf(c)
}

// ============================================================
// Conversion
// ============================================================

// toAnthropicMessages converts the log; consecutive tool results are folded
// into one user turn as the Messages API requires.
func toAnthropicMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	var results []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case RoleTool:
			isError := strings.HasPrefix(m.Content, "Error:")
			results = append(results, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, isError))
		case RoleAssistant:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case RoleSystem:
			// carried in params.System
		default:
			flush()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	flush()
	return out
}

func fromAnthropicMessage(msg *anthropic.Message) *Response {
	out := &Response{
		Message: Message{Role: RoleAssistant},
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		Model:        string(msg.Model),
		FinishReason: string(msg.StopReason),
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			out.Message.ToolCalls = append(out.Message.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: arguments(string(block.Input)),
			})
		}
	}
	out.Message.Content = text.String()
	return out
}

func anthropicStatus(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

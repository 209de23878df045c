package model

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GeminiConfig configures the Google Gemini client.
type GeminiConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

// GeminiClient implements Model using the genai SDK.
type GeminiClient struct {
	cfg    *GeminiConfig
	client *genai.Client
	guard  *guard
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, cfg *GeminiConfig) (*GeminiClient, error) {
	c := &GeminiClient{cfg: cfg, guard: newGuard("gemini", cfg.MaxRetries)}
	if cfg.APIKey == "" {
		// reported by Generate
		return c, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, classify(err, "gemini", 0)
	}
	c.client = client
	return c, nil
}

// Generate sends the conversation and returns the next assistant message.
func (c *GeminiClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if !c.IsAvailable() {
		return nil, notConfigured("gemini", "GEMINI_API_KEY")
	}

	genCfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(firstPositive(req.MaxTokens, c.cfg.MaxTokens)),
	}
	if req.System != "" {
		genCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if t := firstNonZero(req.Temperature, c.cfg.Temperature); t != 0 {
		genCfg.Temperature = genai.Ptr(float32(t))
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: schemaMap(t.Parameters),
			})
		}
		genCfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		if req.ToolChoice == ToolChoiceNone {
			genCfg.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeNone,
			}}
		}
	}

	contents := toGeminiContents(req.Messages)

	callCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	return c.guard.do(ctx, func() (*Response, error) {
		resp, err := c.client.Models.GenerateContent(callCtx, c.cfg.Model, contents, genCfg)
		if err != nil {
			return nil, classify(err, "gemini", 0)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return nil, emptyResponse("gemini")
		}
		return fromGeminiResponse(resp, c.cfg.Model), nil
	})
}

// IsAvailable checks if the client is configured.
func (c *GeminiClient) IsAvailable() bool {
	return c != nil && c.client != nil
}

// Name returns the model name.
func (c *GeminiClient) Name() string {
	return c.cfg.Model
}

// Provider returns the backend name.
func (c *GeminiClient) Provider() string {
	return "gemini"
}

// Status returns the model status.
func (c *GeminiClient) Status() *ModelStatus {
	return statusOf(c)
}

// ============================================================
// Conversion
// ============================================================

func toGeminiContents(msgs []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	var results []*genai.Part

	flush := func() {
		if len(results) > 0 {
			out = append(out, &genai.Content{Role: genai.RoleUser, Parts: results})
			results = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case RoleTool:
			results = append(results, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.Name,
				Response: map[string]any{"output": m.Content},
			}})
		case RoleAssistant:
			flush()
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				if err := json.Unmarshal(tc.Arguments, &args); err != nil {
					args = map[string]any{}
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: args,
				}})
			}
			if len(parts) > 0 {
				out = append(out, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}
		case RoleSystem:
			// carried in SystemInstruction
		default:
			flush()
			out = append(out, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	flush()
	return out
}

func fromGeminiResponse(resp *genai.GenerateContentResponse, modelName string) *Response {
	cand := resp.Candidates[0]
	out := &Response{
		Message:      Message{Role: RoleAssistant},
		Model:        modelName,
		FinishReason: string(cand.FinishReason),
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}

	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil {
			args := []byte("{}")
			if part.FunctionCall.Args != nil {
				args, _ = json.Marshal(part.FunctionCall.Args)
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			out.Message.ToolCalls = append(out.Message.ToolCalls, ToolCall{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Arguments: arguments(string(args)),
			})
			continue
		}
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
	}
	out.Message.Content = text.String()
	return out
}

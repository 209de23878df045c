package model

import (
	"context"
	"errors"
	"net/http"
	"time"

	ai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible chat completions client.
// Groq, OpenRouter and Ollama all speak this protocol.
type OpenAIConfig struct {
	Provider    string // openai, groq, openrouter, ollama
	APIKey      string
	BaseURL     string
	Model       string
	KeyEnv      string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

// OpenAIClient implements Model over the chat completions API.
type OpenAIClient struct {
	cfg    *OpenAIConfig
	client *ai.Client
	guard  *guard
}

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(cfg *OpenAIConfig) *OpenAIClient {
	if cfg == nil {
		return nil
	}

	clientCfg := ai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	var transport http.RoundTripper = http.DefaultTransport
	if cfg.Provider == "openrouter" {
		transport = &headerTransport{
			base: transport,
			headers: map[string]string{
				"HTTP-Referer": "https://github.com/flynn-ai/tripwise",
				"X-Title":      "Tripwise",
			},
		}
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout, Transport: transport}

	return &OpenAIClient{
		cfg:    cfg,
		client: ai.NewClientWithConfig(clientCfg),
		guard:  newGuard(cfg.Provider, cfg.MaxRetries),
	}
}

// Generate sends the conversation and returns the next assistant message.
func (c *OpenAIClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if !c.IsAvailable() {
		return nil, notConfigured(c.cfg.Provider, c.cfg.KeyEnv)
	}

	chatReq := ai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    toOpenAIMessages(req),
		MaxTokens:   firstPositive(req.MaxTokens, c.cfg.MaxTokens),
		Temperature: float32(firstNonZero(req.Temperature, c.cfg.Temperature)),
	}
	for _, t := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, ai.Tool{
			Type: ai.ToolTypeFunction,
			Function: &ai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaMap(t.Parameters),
			},
		})
	}

	if req.ToolChoice == ToolChoiceNone && len(chatReq.Tools) > 0 {
		chatReq.ToolChoice = "none"
	}

	return c.guard.do(ctx, func() (*Response, error) {
		resp, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return nil, classify(err, c.cfg.Provider, openAIStatus(err))
		}
		if len(resp.Choices) == 0 {
			return nil, emptyResponse(c.cfg.Provider)
		}
		return fromOpenAIResponse(resp), nil
	})
}

// IsAvailable checks if the client is configured. Ollama needs no key.
func (c *OpenAIClient) IsAvailable() bool {
	if c == nil || c.cfg == nil {
		return false
	}
	return c.cfg.APIKey != "" || c.cfg.Provider == "ollama"
}

// Name returns the model name.
func (c *OpenAIClient) Name() string {
	return c.cfg.Model
}

// Provider returns the backend name.
func (c *OpenAIClient) Provider() string {
	return c.cfg.Provider
}

// Status returns the model status.
func (c *OpenAIClient) Status() *ModelStatus {
	return statusOf(c)
}

// ============================================================
// Conversion
// ============================================================

func toOpenAIMessages(req *Request) []ai.ChatCompletionMessage {
	msgs := make([]ai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, ai.ChatCompletionMessage{Role: ai.ChatMessageRoleSystem, Content: req.System})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			om := ai.ChatCompletionMessage{Role: ai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				om.ToolCalls = append(om.ToolCalls, ai.ToolCall{
					ID:   tc.ID,
					Type: ai.ToolTypeFunction,
					Function: ai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			msgs = append(msgs, om)
		case RoleTool:
			msgs = append(msgs, ai.ChatCompletionMessage{
				Role:       ai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
				Name:       m.Name,
			})
		case RoleSystem:
			msgs = append(msgs, ai.ChatCompletionMessage{Role: ai.ChatMessageRoleSystem, Content: m.Content})
		default:
			msgs = append(msgs, ai.ChatCompletionMessage{Role: ai.ChatMessageRoleUser, Content: m.Content})
		}
	}
	return msgs
}

func fromOpenAIResponse(resp ai.ChatCompletionResponse) *Response {
	choice := resp.Choices[0]
	out := &Response{
		Message: Message{
			Role:    RoleAssistant,
			Content: choice.Message.Content,
		},
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
	}

	for _, tc := range choice.Message.ToolCalls {
		if tc.Type != "" && tc.Type != ai.ToolTypeFunction {
			continue
		}
		out.Message.ToolCalls = append(out.Message.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: arguments(tc.Function.Arguments),
		})
	}
	return out
}

func openAIStatus(err error) int {
	var apiErr *ai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *ai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstNonZero(vals ...float64) float64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

package model

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/flynn-ai/tripwise/internal/config"
	"github.com/flynn-ai/tripwise/internal/errors"
)

var weatherTool = Tool{
	Name:        "get_current_weather",
	Description: "Current weather for a city",
	Parameters: &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"city": {Type: "string"}},
		Required:   []string{"city"},
	},
}

func conversation() []Message {
	return []Message{
		{Role: RoleUser, Content: "Weather in Paris and Rome?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			{ID: "c1", Name: "get_current_weather", Arguments: json.RawMessage(`{"city":"Paris"}`)},
			{ID: "c2", Name: "get_current_weather", Arguments: json.RawMessage(`{"city":"Rome"}`)},
		}},
		{Role: RoleTool, ToolCallID: "c1", Name: "get_current_weather", Content: "Paris: 18C"},
		{Role: RoleTool, ToolCallID: "c2", Name: "get_current_weather", Content: "Error: service down"},
	}
}

func TestOpenAIClient(t *testing.T) {
	var calls atomic.Int32
	var lastBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &lastBody)

		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream hiccup"}}`))
			return
		}
		assert.Equal(t, "Tripwise", r.Header.Get("X-Title"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1", "object": "chat.completion", "model": "mistral-small",
			"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
				"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_9", "type": "function",
					"function": {"name": "get_current_weather", "arguments": "{\"city\":\"Lisbon\"}"}}]
			}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(&OpenAIConfig{
		Provider:   "openrouter",
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Model:      "mistral-small",
		Timeout:    5 * time.Second,
		MaxRetries: 1,
	})

	resp, err := client.Generate(context.Background(), &Request{
		System:   "You are a travel agent.",
		Messages: conversation(),
		Tools:    []Tool{weatherTool},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "502 is retried once")

	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "call_9", resp.Message.ToolCalls[0].ID)
	assert.JSONEq(t, `{"city":"Lisbon"}`, string(resp.Message.ToolCalls[0].Arguments))
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	msgs := lastBody["messages"].([]any)
	require.Len(t, msgs, 5, "system + user + assistant + two tool results")
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "c2", msgs[4].(map[string]any)["tool_call_id"])
	tools := lastBody["tools"].([]any)
	require.Len(t, tools, 1)
}

func TestOpenAIClientErrors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		client := NewOpenAIClient(&OpenAIConfig{Provider: "openai", Model: "gpt-4o-mini", KeyEnv: "OPENAI_API_KEY"})
		_, err := client.Generate(context.Background(), &Request{})
		require.Error(t, err)
		assert.Equal(t, errors.CodeModelUnavailable, errors.GetCode(err))
		assert.Contains(t, errors.FormatUserMessage(err), "OPENAI_API_KEY")
	})

	t.Run("ollama needs no key", func(t *testing.T) {
		client := NewOpenAIClient(&OpenAIConfig{Provider: "ollama", Model: "llama3.1"})
		assert.True(t, client.IsAvailable())
	})

	t.Run("unauthorized is not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
		}))
		defer srv.Close()

		client := NewOpenAIClient(&OpenAIConfig{Provider: "groq", APIKey: "k", BaseURL: srv.URL, Model: "m", MaxRetries: 3})
		_, err := client.Generate(context.Background(), &Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, errors.CategorySystem, errors.GetCategory(err))
	})
}

func TestAnthropicClient(t *testing.T) {
	var lastBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &lastBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-haiku-latest",
			"content": [
				{"type": "text", "text": "Checking the weather."},
				{"type": "tool_use", "id": "toolu_1", "name": "get_current_weather", "input": {"city": "Oslo"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 20, "output_tokens": 7}
		}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient(&AnthropicConfig{APIKey: "k", BaseURL: srv.URL, Model: "claude-3-5-haiku-latest", MaxTokens: 1024})
	resp, err := client.Generate(context.Background(), &Request{
		System:   "You are a travel agent.",
		Messages: conversation(),
		Tools:    []Tool{weatherTool},
	})
	require.NoError(t, err)
	assert.Equal(t, "Checking the weather.", resp.Message.Content)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.Message.ToolCalls[0].ID)
	assert.JSONEq(t, `{"city":"Oslo"}`, string(resp.Message.ToolCalls[0].Arguments))
	assert.Equal(t, 27, resp.Usage.TotalTokens)

	msgs := lastBody["messages"].([]any)
	require.Len(t, msgs, 3, "tool results are folded into one user turn")
	last := msgs[2].(map[string]any)
	assert.Equal(t, "user", last["role"])
	assert.Len(t, last["content"].([]any), 2)
}

func TestToAnthropicMessagesMarksErrors(t *testing.T) {
	msgs := toAnthropicMessages(conversation())
	require.Len(t, msgs, 3)
	raw, err := json.Marshal(msgs[2])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"is_error":true`)
}

func TestToGeminiContents(t *testing.T) {
	contents := toGeminiContents(conversation())
	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	require.Len(t, contents[1].Parts, 2)
	assert.Equal(t, "Paris", contents[1].Parts[0].FunctionCall.Args["city"])
	require.Len(t, contents[2].Parts, 2)
	assert.Equal(t, "c2", contents[2].Parts[1].FunctionResponse.ID)
}

func TestFromGeminiResponse(t *testing.T) {
	resp := fromGeminiResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "Let me look."},
				{FunctionCall: &genai.FunctionCall{Name: "get_weather_forecast", Args: map[string]any{"city": "Kyoto"}}},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: 9},
	}, "gemini-2.0-flash")

	assert.Equal(t, "Let me look.", resp.Message.Content)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.NotEmpty(t, resp.Message.ToolCalls[0].ID, "missing ids are generated")
	assert.Equal(t, 9, resp.Usage.TotalTokens)
}

func TestNew(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"openai", "openai"},
		{"groq", "groq"},
		{"openrouter", "openrouter"},
		{"ollama", "ollama"},
		{"anthropic", "anthropic"},
		{"gemini", "gemini"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := config.Default().LLM
			cfg.Provider = tt.provider
			m, err := New(context.Background(), cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Provider())
			assert.NotEmpty(t, m.Name())

			st := m.Status()
			assert.Equal(t, m.Name(), st.Name)
			assert.Equal(t, m.IsAvailable(), st.Available)
			assert.Equal(t, st.Available, st.Error == "")
		})
	}

	t.Run("unknown provider", func(t *testing.T) {
		cfg := config.Default().LLM
		cfg.Provider = "telepathy"
		_, err := New(context.Background(), cfg)
		require.Error(t, err)
		assert.Equal(t, errors.CategoryUser, errors.GetCategory(err))
	})
}

func TestToolChoiceNone(t *testing.T) {
	var openaiBody, anthropicBody map[string]any

	openaiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &openaiBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Done."}}]}`))
	}))
	defer openaiSrv.Close()

	anthropicSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &anthropicBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m","type":"message","role":"assistant","model":"c",
			"content":[{"type":"text","text":"Done."}],"stop_reason":"end_turn",
			"usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	defer anthropicSrv.Close()

	req := &Request{Messages: conversation(), Tools: []Tool{weatherTool}, ToolChoice: ToolChoiceNone}

	oa := NewOpenAIClient(&OpenAIConfig{Provider: "openai", APIKey: "k", BaseURL: openaiSrv.URL, Model: "m"})
	_, err := oa.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "none", openaiBody["tool_choice"])

	an := NewAnthropicClient(&AnthropicConfig{APIKey: "k", BaseURL: anthropicSrv.URL, Model: "c", MaxTokens: 100})
	_, err = an.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "none"}, anthropicBody["tool_choice"])
}

// Package model provides the provider-neutral chat model interface.
//
// Supports:
// - OpenAI-compatible endpoints (OpenAI, Groq, OpenRouter, Ollama)
// - Anthropic Messages API
// - Google Gemini
//
// One provider is selected at start-up; callers only see Model.
package model

import "context"

// Model is a chat model with tool calling.
type Model interface {
	// Generate runs one inference step over the conversation.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// IsAvailable checks if the model is configured and usable.
	IsAvailable() bool

	// Name returns the model identifier.
	Name() string

	// Provider returns the backend name (openai, anthropic, ...).
	Provider() string

	// Status returns the current status of the model.
	Status() *ModelStatus
}

func statusOf(m Model) *ModelStatus {
	st := &ModelStatus{
		Name:      m.Name(),
		Provider:  m.Provider(),
		Available: m.IsAvailable(),
	}
	if !st.Available {
		st.Error = "API key not configured"
	}
	return st
}

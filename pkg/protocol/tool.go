package protocol

// ToolCall records one tool invocation made while answering a query.
type ToolCall struct {
	Tool       string `json:"tool"`
	CallID     string `json:"call_id"`
	Success    bool   `json:"success"`
	Degraded   bool   `json:"degraded,omitempty"` // answered with fallback text
	DurationMs int64  `json:"duration_ms"`
}

// ToolDefinition describes a tool's capabilities.
type ToolDefinition struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]Parameter `json:"parameters"`
}

// Parameter describes a tool parameter.
type Parameter struct {
	Type        string   `json:"type"` // string, number, integer, array
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"` // For string enums
}

// ToolsResponse lists the tools offered to the model.
type ToolsResponse struct {
	Tools []ToolDefinition `json:"tools"`
}

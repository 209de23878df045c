// Package protocol provides the wire types of the Tripwise HTTP API.
// These types can be imported by clients such as the chat UI.
package protocol

// QueryRequest asks the agent a question within a session.
type QueryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"` // empty starts a new session
}

// QueryResponse carries the agent's final answer.
type QueryResponse struct {
	Answer    string       `json:"answer"`
	SessionID string       `json:"session_id"`
	Metadata  ResponseMeta `json:"metadata"`
}

// ResponseMeta contains metadata about the response.
type ResponseMeta struct {
	Model      string     `json:"model"`
	Provider   string     `json:"provider"`
	Rounds     int        `json:"rounds"`
	TokensUsed int        `json:"tokens_used"`
	Cost       float64    `json:"cost"`
	DurationMs int64      `json:"duration_ms"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ClearSessionRequest names the session to clear.
type ClearSessionRequest struct {
	SessionID string `json:"session_id"`
}

// StatusResponse acknowledges a state change.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SessionInfo describes a stored conversation.
type SessionInfo struct {
	SessionID    string `json:"session_id"`
	MessageCount int    `json:"message_count"`
	Exists       bool   `json:"exists"`
}

// HealthResponse reports liveness and the configured model.
type HealthResponse struct {
	Status         string `json:"status"`
	Model          string `json:"model"`
	Provider       string `json:"provider"`
	ModelAvailable bool   `json:"model_available"`
	ModelError     string `json:"model_error,omitempty"`
	Tools          int    `json:"tools"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error       string   `json:"error"`
	Code        string   `json:"code,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// StatsResponse reports runtime counters and spend.
type StatsResponse struct {
	Requests     int64                `json:"requests"`
	Tokens       int64                `json:"tokens"`
	Errors       int64                `json:"errors"`
	AvgLatencyMs float64              `json:"avg_latency_ms"`
	AvgRounds    float64              `json:"avg_rounds"`
	Goroutines   int                  `json:"goroutines"`
	UptimeSec    int64                `json:"uptime_sec"`
	DailyCost    float64              `json:"daily_cost"`
	MonthlyCost  float64              `json:"monthly_cost"`
	LocalRate    float64              `json:"local_rate"`
	Tools        map[string]ToolStats `json:"tools,omitempty"`
}

// ToolStats counts invocations of one tool.
type ToolStats struct {
	Calls    int64 `json:"calls"`
	Failures int64 `json:"failures"`
	Degraded int64 `json:"degraded"`
}

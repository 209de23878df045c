// Package config provides configuration types for Tripwise.
package config

import (
	"fmt"
	"time"
)

// Config represents the main Tripwise configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	LLM     LLMConfig     `toml:"llm"`
	Agent   AgentConfig   `toml:"agent"`
	Session SessionConfig `toml:"session"`
	Tools   ToolsConfig   `toml:"tools"`
	Log     LogConfig     `toml:"log"`
	Pricing PricingConfig `toml:"pricing"`
	Paths   PathsConfig   `toml:"paths"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr            string   `toml:"addr"`
	CORSOrigins     []string `toml:"cors_origins"`
	StaticDir       string   `toml:"static_dir"` // optional web UI
	RequestTimeout  Duration `toml:"request_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// LLMConfig selects the model provider.
type LLMConfig struct {
	Provider    string            `toml:"provider"` // openai, groq, openrouter, ollama, anthropic, gemini
	Model       string            `toml:"model"`    // empty = provider default
	BaseURL     string            `toml:"base_url"` // empty = provider default
	APIKeys     map[string]string `toml:"api_keys"` // provider -> key
	MaxTokens   int               `toml:"max_tokens"`
	Temperature float64           `toml:"temperature"`
	Timeout     Duration          `toml:"timeout"`
	MaxRetries  int               `toml:"max_retries"`
}

// AgentConfig bounds the tool-calling loop.
type AgentConfig struct {
	MaxToolRounds int      `toml:"max_tool_rounds"`
	ToolTimeout   Duration `toml:"tool_timeout"`
	LockTimeout   Duration `toml:"lock_timeout"` // wait for a busy session
}

// SessionConfig configures conversation memory.
type SessionConfig struct {
	Backend       string   `toml:"backend"` // memory, sqlite
	Path          string   `toml:"path"`    // sqlite database file
	TTL           Duration `toml:"ttl"`     // 0 = never expire
	MaxMessages   int      `toml:"max_messages"`
	SweepInterval Duration `toml:"sweep_interval"`
}

// ToolsConfig holds credentials and limits for the travel services.
type ToolsConfig struct {
	AlphaVantageKey  string   `toml:"alphavantage_api_key"`
	OpenWeatherKey   string   `toml:"openweathermap_api_key"`
	TavilyKey        string   `toml:"tavily_api_key"`
	GooglePlacesKey  string   `toml:"google_places_api_key"`
	PlacesBackends   []string `toml:"places_backends"` // tried in order
	ItineraryDir     string   `toml:"itinerary_dir"`
	HTTPTimeout      Duration `toml:"http_timeout"`
	Retries          int      `toml:"retries"`
	WikivoyageURL    string   `toml:"wikivoyage_url"`
	OpenWeatherURL   string   `toml:"openweathermap_url"`
	AlphaVantageURL  string   `toml:"alphavantage_url"`
	TavilyURL        string   `toml:"tavily_url"`
	GooglePlacesURL  string   `toml:"google_places_url"`
	BreakerThreshold int      `toml:"breaker_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbose bool `toml:"verbose"`
}

// PricingConfig prices model usage for the spend estimate (USD per 1M tokens).
type PricingConfig struct {
	PerMillionTokens map[string]float64 `toml:"per_million_tokens"` // model -> price
}

// PathsConfig contains file path settings.
type PathsConfig struct {
	DataDir string `toml:"data_dir"`
}

// ============================================================
// Providers
// ============================================================

// Provider names a model backend.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderGroq       Provider = "groq"
	ProviderOpenRouter Provider = "openrouter"
	ProviderOllama     Provider = "ollama"
	ProviderAnthropic  Provider = "anthropic"
	ProviderGemini     Provider = "gemini"
)

// ProviderDefaults is the default model, endpoint and key variable of a provider.
type ProviderDefaults struct {
	Model   string
	BaseURL string
	KeyEnv  string
}

var providers = map[Provider]ProviderDefaults{
	ProviderOpenAI:     {Model: "gpt-4o-mini", BaseURL: "https://api.openai.com/v1", KeyEnv: "OPENAI_API_KEY"},
	ProviderGroq:       {Model: "meta-llama/llama-4-scout-17b-16e-instruct", BaseURL: "https://api.groq.com/openai/v1", KeyEnv: "GROQ_API_KEY"},
	ProviderOpenRouter: {Model: "mistralai/mistral-small-3.2-24b-instruct", BaseURL: "https://openrouter.ai/api/v1", KeyEnv: "OPENROUTER_API_KEY"},
	ProviderOllama:     {Model: "llama3.1", BaseURL: "http://localhost:11434/v1"},
	ProviderAnthropic:  {Model: "claude-3-5-haiku-latest", BaseURL: "", KeyEnv: "ANTHROPIC_API_KEY"},
	ProviderGemini:     {Model: "gemini-2.0-flash", BaseURL: "", KeyEnv: "GEMINI_API_KEY"},
}

// Providers returns the supported provider names in a stable order.
func Providers() []Provider {
	return []Provider{ProviderOpenAI, ProviderGroq, ProviderOpenRouter, ProviderOllama, ProviderAnthropic, ProviderGemini}
}

// Defaults returns the defaults for p.
func (p Provider) Defaults() (ProviderDefaults, bool) {
	d, ok := providers[p]
	return d, ok
}

// ResolvedLLM is the effective provider setup after defaults are applied.
type ResolvedLLM struct {
	Provider Provider
	Model    string
	BaseURL  string
	APIKey   string
}

// Resolve fills model, endpoint and key from provider defaults.
func (c LLMConfig) Resolve() (ResolvedLLM, error) {
	p := Provider(c.Provider)
	d, ok := p.Defaults()
	if !ok {
		return ResolvedLLM{}, fmt.Errorf("unknown llm provider %q (want one of %v)", c.Provider, Providers())
	}

	r := ResolvedLLM{
		Provider: p,
		Model:    c.Model,
		BaseURL:  c.BaseURL,
		APIKey:   c.APIKeys[c.Provider],
	}
	if r.Model == "" {
		r.Model = d.Model
	}
	if r.BaseURL == "" {
		r.BaseURL = d.BaseURL
	}
	return r, nil
}

// ============================================================
// Duration
// ============================================================

// Duration is a time.Duration written as a string ("30s", "2h") in TOML.
type Duration struct {
	time.Duration
}

// D wraps a time.Duration.
func D(d time.Duration) Duration {
	return Duration{Duration: d}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Package config handles Tripwise configuration loading and management.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/flynn-ai/tripwise/internal/errors"
)

// Default returns the default configuration.
func Default() *Config {
	dataDir := defaultDataDir()

	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			CORSOrigins:     []string{"*"},
			RequestTimeout:  D(3 * time.Minute),
			ShutdownTimeout: D(10 * time.Second),
		},
		LLM: LLMConfig{
			Provider:    string(ProviderOpenRouter),
			APIKeys:     map[string]string{},
			MaxTokens:   4096,
			Temperature: 0.3,
			Timeout:     D(120 * time.Second),
			MaxRetries:  2,
		},
		Agent: AgentConfig{
			MaxToolRounds: 10,
			ToolTimeout:   D(30 * time.Second),
			LockTimeout:   D(2 * time.Minute),
		},
		Session: SessionConfig{
			Backend:       "memory",
			Path:          filepath.Join(dataDir, "sessions.db"),
			TTL:           D(2 * time.Hour),
			MaxMessages:   200,
			SweepInterval: D(5 * time.Minute),
		},
		Tools: ToolsConfig{
			PlacesBackends:   []string{"google", "tavily", "wikivoyage"},
			ItineraryDir:     "itineraries",
			HTTPTimeout:      D(15 * time.Second),
			Retries:          2,
			WikivoyageURL:    "https://en.wikivoyage.org/wiki",
			OpenWeatherURL:   "https://api.openweathermap.org/data/2.5",
			AlphaVantageURL:  "https://www.alphavantage.co/query",
			TavilyURL:        "https://api.tavily.com/search",
			GooglePlacesURL:  "https://maps.googleapis.com/maps/api/place/textsearch/json",
			BreakerThreshold: 5,
		},
		Pricing: PricingConfig{
			PerMillionTokens: map[string]float64{
				"gpt-4o-mini":                             0.60,
				"mistralai/mistral-small-3.2-24b-instruct": 0.20,
			},
		},
		Paths: PathsConfig{
			DataDir: dataDir,
		},
	}
}

// DefaultPath returns ~/.tripwise/config.toml.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.toml")
}

func defaultDataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".tripwise")
}

// Load loads the configuration from the given path.
// If the file doesn't exist, returns defaults. Environment overrides are
// applied in both cases.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, errors.CodeConfigInvalid, "failed to parse "+configPath, errors.CategoryUser)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, errors.Wrap(err, errors.CodeConfigNotFound, "failed to read "+configPath, errors.CategorySystem)
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.expand()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to the given path.
func (c *Config) Save(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}

	file, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	return toml.NewEncoder(file).Encode(c)
}

// Validate checks provider selection and bounds.
func (c *Config) Validate() error {
	if _, err := c.LLM.Resolve(); err != nil {
		return errors.Wrap(err, errors.CodeConfigInvalid, "invalid [llm] section", errors.CategoryUser)
	}

	switch c.Session.Backend {
	case "memory", "sqlite":
	default:
		return errors.NewBuilder(errors.CodeConfigInvalid, "unknown session backend "+c.Session.Backend).
			User().
			WithSuggestion(`Use backend = "memory" or "sqlite"`).
			Build()
	}

	for _, b := range c.Tools.PlacesBackends {
		switch b {
		case "google", "tavily", "wikivoyage":
		default:
			return errors.User(errors.CodeConfigInvalid, "unknown places backend "+b)
		}
	}

	if c.Agent.MaxToolRounds < 1 {
		return errors.User(errors.CodeConfigInvalid, "agent.max_tool_rounds must be at least 1")
	}
	if c.Session.MaxMessages < 0 || c.Session.TTL.Duration < 0 || c.Tools.Retries < 0 {
		return errors.User(errors.CodeConfigInvalid, "session and tool limits must not be negative")
	}
	return nil
}

// ============================================================
// Environment
// ============================================================

// applyEnv overlays environment variables on top of file values.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set(&c.LLM.Provider, "TRIPWISE_PROVIDER")
	set(&c.LLM.Model, "TRIPWISE_MODEL")
	set(&c.LLM.BaseURL, "TRIPWISE_BASE_URL")
	set(&c.Server.Addr, "TRIPWISE_ADDR")

	if c.LLM.APIKeys == nil {
		c.LLM.APIKeys = map[string]string{}
	}
	for _, p := range Providers() {
		d, _ := p.Defaults()
		if d.KeyEnv == "" {
			continue
		}
		if v, ok := lookup(d.KeyEnv); ok && v != "" && c.LLM.APIKeys[string(p)] == "" {
			c.LLM.APIKeys[string(p)] = v
		}
	}

	setIfEmpty := func(dst *string, key string) {
		if *dst == "" {
			set(dst, key)
		}
	}
	setIfEmpty(&c.Tools.AlphaVantageKey, "ALPHAVANTAGE_API_KEY")
	setIfEmpty(&c.Tools.OpenWeatherKey, "OPENWEATHERMAP_API_KEY")
	setIfEmpty(&c.Tools.TavilyKey, "TAVILY_API_KEY")
	setIfEmpty(&c.Tools.GooglePlacesKey, "GPLACES_API_KEY")
}

// expand resolves "$VAR" references and ~ in paths.
func (c *Config) expand() {
	for k, v := range c.LLM.APIKeys {
		c.LLM.APIKeys[k] = expandEnv(v)
	}
	c.Tools.AlphaVantageKey = expandEnv(c.Tools.AlphaVantageKey)
	c.Tools.OpenWeatherKey = expandEnv(c.Tools.OpenWeatherKey)
	c.Tools.TavilyKey = expandEnv(c.Tools.TavilyKey)
	c.Tools.GooglePlacesKey = expandEnv(c.Tools.GooglePlacesKey)

	c.Paths.DataDir = expandHome(c.Paths.DataDir)
	c.Session.Path = expandHome(c.Session.Path)
	c.Tools.ItineraryDir = expandHome(c.Tools.ItineraryDir)
	c.Server.StaticDir = expandHome(c.Server.StaticDir)
}

func expandEnv(v string) string {
	if strings.HasPrefix(v, "$") {
		return os.ExpandEnv(v)
	}
	return v
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, p[1:])
	}
	return p
}

package cli

import (
	"context"

	"go.uber.org/zap"

	"github.com/flynn-ai/tripwise/internal/agent"
	"github.com/flynn-ai/tripwise/internal/config"
	"github.com/flynn-ai/tripwise/internal/cost"
	"github.com/flynn-ai/tripwise/internal/logging"
	"github.com/flynn-ai/tripwise/internal/model"
	"github.com/flynn-ai/tripwise/internal/prompt"
	"github.com/flynn-ai/tripwise/internal/session"
	"github.com/flynn-ai/tripwise/internal/stats"
	"github.com/flynn-ai/tripwise/internal/tools"
)

// Runtime holds everything a command needs, built once from configuration.
type Runtime struct {
	Config   *config.Config
	Logger   *zap.SugaredLogger
	Model    model.Model
	Tools    *tools.Registry
	Sessions session.Store
	Agent    *agent.Agent
}

// NewRuntime wires config -> model -> tools -> sessions -> agent.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*Runtime, error) {
	logger = logging.OrNop(logger)

	m, err := model.New(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	if !m.IsAvailable() {
		logger.Warnw("model_not_configured",
			"provider", m.Provider(),
			"model", m.Name(),
			"hint", "set the provider API key in the environment or [llm.api_keys]",
		)
	}

	deps, err := tools.NewDeps(cfg.Tools, cfg.Paths.DataDir, logger)
	if err != nil {
		return nil, err
	}
	reg := tools.NewRegistry(logger, cfg.Agent.ToolTimeout.Duration)
	reg.Initialize(deps)

	store, err := session.New(cfg.Session, logger)
	if err != nil {
		return nil, err
	}

	a := agent.New(agent.Config{
		Model:         m,
		Tools:         reg,
		Sessions:      store,
		Locker:        session.NewLocker(logger),
		Prompt:        prompt.NewBuilder(),
		Stats:         stats.NewCollector(),
		Cost:          cost.NewTracker(cfg.Pricing.PerMillionTokens),
		Logger:        logger,
		MaxToolRounds: cfg.Agent.MaxToolRounds,
		LockTimeout:   cfg.Agent.LockTimeout.Duration,
	})

	logger.Debugw("runtime_ready",
		"provider", m.Provider(),
		"model", m.Name(),
		"tools", len(reg.Specs()),
		"session_backend", cfg.Session.Backend,
	)
	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Model:    m,
		Tools:    reg,
		Sessions: store,
		Agent:    a,
	}, nil
}

// DBPath is the session database, or "" for the memory backend.
func (r *Runtime) DBPath() string {
	if r.Config.Session.Backend == "sqlite" {
		return r.Config.Session.Path
	}
	return ""
}

// Close releases the session store and flushes the logger.
func (r *Runtime) Close() error {
	err := r.Sessions.Close()
	_ = r.Logger.Sync()
	return err
}

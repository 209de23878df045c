// Package server exposes the travel agent over HTTP.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flynn-ai/tripwise/internal/agent"
	"github.com/flynn-ai/tripwise/internal/config"
	"github.com/flynn-ai/tripwise/internal/logging"
)

// Server is the HTTP front end of an Agent.
type Server struct {
	agent  *agent.Agent
	cfg    config.ServerConfig
	dbPath string
	logger *zap.SugaredLogger
	engine *gin.Engine
	now    func() time.Time
}

// Options are the optional collaborators of a Server.
type Options struct {
	Logger *zap.SugaredLogger
	// DBPath is reported by /stats when sessions live in SQLite.
	DBPath string
}

// New builds the routes for a.
func New(a *agent.Agent, cfg config.ServerConfig, opts Options) *Server {
	s := &Server{
		agent:  a,
		cfg:    cfg,
		dbPath: opts.DBPath,
		logger: logging.OrNop(opts.Logger),
		now:    time.Now,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(recovery(s.logger), requestLogger(s.logger), cors.New(corsConfig(s.cfg.CORSOrigins)))

	r.POST("/query", s.handleQuery)
	r.POST("/clear-session", s.handleClearSession)
	r.GET("/session-info/:session_id", s.handleSessionInfo)
	r.GET("/generate-pdf/:session_id", s.handleGeneratePDF)
	r.GET("/health", s.handleHealth)
	r.GET("/tools", s.handleTools)
	r.GET("/stats", s.handleStats)

	if s.cfg.StaticDir != "" {
		files := http.FileServer(http.Dir(s.cfg.StaticDir))
		r.NoRoute(gin.WrapH(files))
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("server_listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Infow("server_stopping", "timeout", timeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

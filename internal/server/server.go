// Package server exposes the marker collection over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OCAP2/mapsync/internal/config"
	"github.com/OCAP2/mapsync/pkg/core"
)

// Mutator applies mutations to the shared collection.
type Mutator interface {
	Snapshot(ctx context.Context) (core.Collection, error)
	Create(ctx context.Context, f core.Fields, actor string) (core.Marker, error)
	Patch(ctx context.Context, id string, f core.Fields, actor string) (core.Marker, error)
	Delete(ctx context.Context, id string, actor string) (core.Marker, error)
}

// Server is the HTTP front of the mutation pipeline.
type Server struct {
	cfg      config.ServerConfig
	mutator  Mutator
	logger   *slog.Logger
	version  string
	started  time.Time
	router   *gin.Engine
	shutdown time.Duration
}

// New builds the router and registers every route.
func New(cfg config.ServerConfig, mutator Mutator, logger *slog.Logger, version string) *Server {
	if cfg.ActorHeader == "" {
		cfg.ActorHeader = "X-User"
	}
	if cfg.ActorMaxLen <= 0 {
		cfg.ActorMaxLen = 40
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}

	RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	r.Use(RequestMetrics())

	s := &Server{
		cfg:      cfg,
		mutator:  mutator,
		logger:   logger,
		version:  version,
		started:  time.Now(),
		router:   r,
		shutdown: 5 * time.Second,
	}
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	s.logger.Info("HTTP server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/atlasintel/atlas-engine/internal/config"
	"github.com/atlasintel/atlas-engine/internal/utils"
)

// Server wraps the HTTP listener and lifecycle helpers.
type Server struct {
	cfg        config.ServerConfig
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer constructs an HTTP server bound to the configured address.
func NewServer(cfg config.ServerConfig, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: utils.ComponentLogger(logger, "api"),
	}
}

// Start serves incoming requests until Shutdown is invoked.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("address", s.cfg.Address))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", s.cfg.Address, err)
	}
	return nil
}

// Shutdown attempts a graceful shutdown, closing hard when the context expires.
func (s *Server) Shutdown(ctx context.Context) {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown incomplete, closing", slog.Any("error", err))
		_ = s.httpServer.Close()
	}
}

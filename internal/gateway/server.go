package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/bibekaryal86/gateway-service/internal/config"
	"github.com/bibekaryal86/gateway-service/internal/logging"
)

// Server wraps the inbound HTTP listener.
type Server struct {
	httpServer *http.Server
}

// NewServer builds the listener around the pipeline handler.
func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	logging.Info("gateway listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("gateway shutting down")
	return s.httpServer.Shutdown(ctx)
}

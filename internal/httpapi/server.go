package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server status HTTP server
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return &Server{httpServer: s, logger: logger}
}

// Start blocks until the server stops; a clean shutdown returns nil
func (s *Server) Start() error {
	s.logger.Info("Starting status HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping status HTTP server")
	return s.httpServer.Shutdown(ctx)
}

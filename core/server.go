package core

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// HTTPService runs an http.Server as a suture.Service. Cancelling the
// context shuts the server down gracefully.
type HTTPService struct {
	name   string
	server *http.Server
	logger *zap.Logger
}

func NewHTTPService(name, addr string, handler http.Handler, logger *zap.Logger) *HTTPService {
	return &HTTPService{
		name: name,
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
			MaxHeaderBytes:    1 << 20,
		},
		logger: logger,
	}
}

func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("service", s.name), zap.String("addr", s.server.Addr))
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown failed", zap.String("service", s.name), zap.Error(err))
		return err
	}
	s.logger.Info("stopped", zap.String("service", s.name))
	return ctx.Err()
}

func (s *HTTPService) String() string {
	return s.name
}

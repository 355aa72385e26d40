// Package server owns the HTTP listener lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/smallbiznis-checkout/internal/config"
)

const shutdownTimeout = 10 * time.Second

// HTTPServer serves the gin engine with bounded timeouts.
type HTTPServer struct {
	engine       *gin.Engine
	logger       *zap.Logger
	writeTimeout time.Duration
}

// NewHTTPServer sizes the write timeout to fit a token refresh plus a gateway call.
func NewHTTPServer(engine *gin.Engine, cfg config.Config, logger *zap.Logger) *HTTPServer {
	return &HTTPServer{
		engine:       engine,
		logger:       logger,
		writeTimeout: cfg.StoreTimeout + cfg.TokenRefreshTimeout + 2*cfg.GatewayTimeout + 5*time.Second,
	}
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

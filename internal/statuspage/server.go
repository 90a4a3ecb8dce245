// Package statuspage implements the broker's read-only diagnostic HTTP
// surface and the small set of runtime commands ("sbcat" in the
// original) operators use to inspect and nudge a running daemon.
package statuspage

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/sbrokerd/internal/broker"
	"github.com/marmos91/sbrokerd/internal/logger"
)

// Config holds the status page's listen configuration.
type Config struct {
	Port int
	// MetricsHandler, when set, is mounted at /metrics alongside the
	// status/command surface.
	MetricsHandler http.Handler
}

func (c Config) applyDefaults() Config {
	if c.Port == 0 {
		c.Port = 3744
	}
	return c
}

// Server is the HTTP status/command server fronting a Broker.
type Server struct {
	server       *http.Server
	config       Config
	shutdownOnce sync.Once
}

// NewServer builds a status page server for b. The server is created
// stopped; call Start to begin serving.
func NewServer(config Config, b *broker.Broker) *Server {
	config = config.applyDefaults()

	s := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      newRouter(b, config.MetricsHandler),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	return &Server{server: s, config: config}
}

// Start serves the status page until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("status page listening", "port", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("status page failed: %w", err)
	}
}

// Stop gracefully shuts the server down. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("status page shutdown error: %w", shutdownErr)
		}
	})
	return err
}

// Port returns the TCP port the server listens on.
func (s *Server) Port() int {
	return s.config.Port
}

package mock

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"signflow/pkg/logging"
)

// HTTPServer serves a fake CRM's REST API on a real TCP port, for the CLI and
// for tests that need a URL rather than a handler.
type HTTPServer struct {
	app           *App
	httpServer    *http.Server
	listener      net.Listener
	port          int
	mu            sync.RWMutex
	running       bool
	shutdownError error
}

// NewHTTPServer creates a server for app. It does not listen until started.
func NewHTTPServer(app *App) *HTTPServer {
	return &HTTPServer{app: app}
}

// Start starts the HTTP server on a dynamically allocated port.
// Returns the port number the server is listening on.
func (s *HTTPServer) Start(ctx context.Context) (int, error) {
	if err := s.StartOnPort(ctx, 0); err != nil {
		return 0, err
	}
	return s.Port(), nil
}

// StartOnPort starts the HTTP server on a specific port. Port 0 picks a
// free one.
func (s *HTTPServer) StartOnPort(ctx context.Context, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		if port == 0 || s.port == port {
			return nil
		}
		return fmt.Errorf("server already running on port %d", s.port)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.httpServer = &http.Server{
		Handler:           s.app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info("FakeCRM", "Starting fake CRM API on port %d (workspace %s)", s.port, s.app.Options().WorkspaceID)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.mu.Lock()
			s.shutdownError = err
			s.mu.Unlock()
			logging.Error("FakeCRM", err, "Fake CRM API stopped unexpectedly")
		}
	}()

	s.running = true
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	shutdownCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.httpServer.Close()
		logging.Warn("FakeCRM", "Force closed fake CRM API: %v", err)
	}

	s.running = false
	s.httpServer = nil
	logging.Info("FakeCRM", "Fake CRM API stopped")
	return nil
}

// Port returns the port the server is listening on
func (s *HTTPServer) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// IsRunning returns whether the server is currently running
func (s *HTTPServer) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Endpoint returns the base URL of the API, or "" when stopped.
func (s *HTTPServer) Endpoint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running {
		return ""
	}
	return fmt.Sprintf("http://127.0.0.1:%d", s.port)
}

// GetError returns any error that occurred during server operation
func (s *HTTPServer) GetError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shutdownError
}

// WaitForReady waits for the server to be ready to accept connections
func (s *HTTPServer) WaitForReady(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.IsRunning() {
				conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", s.Port()), 1*time.Second)
				if err == nil {
					conn.Close()
					return nil
				}
			}
		}
	}
}

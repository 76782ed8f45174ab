package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"broker/pkg/config"
	"broker/pkg/logger"
)

const defaultShutdownTimeout = 10 * time.Second

// Server HTTP/1.1 + h2c сервер для ConnectRPC с graceful shutdown
type Server struct {
	http            *http.Server
	shutdownTimeout time.Duration

	mu       sync.Mutex
	hooks    []hook
	listener net.Listener
	ready    chan struct{}
}

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// New создаёт сервер поверх handler
func New(cfg config.HTTPConfig, handler http.Handler) *Server {
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	return &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h2c.NewHandler(handler, &http2.Server{}),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		shutdownTimeout: timeout,
		ready:           make(chan struct{}),
	}
}

// OnShutdown регистрирует освобождение ресурса после остановки HTTP.
// Хуки вызываются в обратном порядке регистрации.
func (s *Server) OnShutdown(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook{name: name, fn: fn})
}

// Run слушает адрес из конфигурации до отмены ctx
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve обслуживает lis до отмены ctx, затем останавливается gracefully
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()
	close(s.ready)

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("Server listening", "addr", lis.Addr().String(), "protocol", "HTTP/1.1 + H2C (ConnectRPC)")
		if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
		logger.Log.Error("Server failed", "error", serveErr)
	case <-ctx.Done():
		logger.Log.Info("Shutting down", "reason", context.Cause(ctx))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("Forcing server stop", "error", err)
		_ = s.http.Close()
	}

	s.runHooks(shutdownCtx)
	logger.Log.Info("Server stopped")

	return serveErr
}

// Addr адрес слушателя, доступен после старта
func (s *Server) Addr() net.Addr {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener.Addr()
}

func (s *Server) runHooks(ctx context.Context) {
	s.mu.Lock()
	hooks := s.hooks
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.fn(ctx); err != nil {
			logger.Log.Warn("Shutdown hook failed", "name", h.name, "error", err)
		}
	}
}

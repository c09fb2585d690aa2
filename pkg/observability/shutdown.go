package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type namedShutdownFunc struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager drains the HTTP server and runs registered cleanup
// functions when the process receives SIGINT or SIGTERM.
type ShutdownManager struct {
	logger          *Logger
	server          *http.Server
	shutdownFuncs   []namedShutdownFunc
	shutdownTimeout time.Duration
	mu              sync.Mutex
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:          logger,
		server:          server,
		shutdownTimeout: timeout,
	}
}

// RegisterShutdownFunc registers a named cleanup step. The name labels the
// log lines when the step runs or fails.
func (sm *ShutdownManager) RegisterShutdownFunc(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.shutdownFuncs = append(sm.shutdownFuncs, namedShutdownFunc{name: name, fn: fn})
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then runs Shutdown.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.Infof("Received signal %s, starting graceful shutdown", sig)

	return sm.Shutdown()
}

// Shutdown drains the HTTP server, then runs every registered cleanup step
// concurrently, all bounded by the manager's timeout.
func (sm *ShutdownManager) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
	defer cancel()

	if sm.server != nil {
		sm.logger.Info("Shutting down HTTP server")
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server shutdown error")
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		sm.logger.Info("HTTP server shutdown complete")
	}

	sm.mu.Lock()
	funcs := sm.shutdownFuncs
	sm.mu.Unlock()

	var wg sync.WaitGroup
	errChan := make(chan error, len(funcs))

	for _, step := range funcs {
		wg.Add(1)
		go func(step namedShutdownFunc) {
			defer wg.Done()
			if err := step.fn(ctx); err != nil {
				sm.logger.WithError(err).Errorf("Shutdown of %s failed", step.name)
				errChan <- fmt.Errorf("%s: %w", step.name, err)
				return
			}
			sm.logger.Infof("Shutdown of %s complete", step.name)
		}(step)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sm.logger.Warn("Shutdown timeout reached, forcing shutdown")
		return fmt.Errorf("shutdown timeout reached")
	}

	close(errChan)
	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with %d errors, first: %w", len(errs), errs[0])
	}

	sm.logger.Info("Graceful shutdown complete")
	return nil
}

package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oshokin/security-zone/internal/logger"
)

// readHeaderTimeout limits slow clients.
const readHeaderTimeout = 10 * time.Second

// NewServer creates an HTTP server for handler on addr.
func NewServer(addr string, handler http.Handler) *http.Server {
	//nolint:exhaustruct // Remaining server settings keep their defaults.
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// RunServer serves until ctx is canceled and then shuts the server down
// within shutdownTimeout.
func RunServer(ctx context.Context, server *http.Server, shutdownTimeout time.Duration) error {
	ctx = logger.WithKV(logger.WithName(ctx, "http"), "address", server.Addr)

	errCh := make(chan error, 1)

	go func() {
		logger.InfoKV(ctx, "HTTP server is listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		logger.InfoKV(ctx, "HTTP server is shutting down")

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP server: %w", err)
		}

		return nil
	case err := <-errCh:
		if err != nil {
			logger.ErrorKV(ctx, "HTTP server failed", "error", err)
			return fmt.Errorf("serve HTTP: %w", err)
		}

		return nil
	}
}

package httpx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/libraryauth/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// Serve runs handler on addr until ctx is cancelled, then shuts the server
// down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger logging.Logger) error {
	listen, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, listen, handler, logger)
}

// ServeListener is Serve over an existing listener.
func ServeListener(ctx context.Context, listen net.Listener, handler http.Handler, logger logging.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// stopped is closed once Shutdown has drained in-flight requests.
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		logger.Info(context.Background(), "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(context.Background(), "HTTP shutdown", "error", err)
		}
	}()

	logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	// Serve returns ErrServerClosed as soon as Shutdown begins; wait for the
	// drain so callers can release what handlers still use.
	if err := srv.Serve(listen); !errors.Is(err, http.ErrServerClosed) {
		_ = srv.Close()
		return err
	}
	<-stopped
	return nil
}

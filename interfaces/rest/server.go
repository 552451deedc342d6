package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/felixgeelhaar/agent-registry/infrastructure/logging"
)

// ServerConfig configures an HTTP listener.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Serve runs handler on cfg.Addr until ctx is done, then shuts down
// gracefully.
func Serve(ctx context.Context, cfg ServerConfig, handler http.Handler) error {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Add(logging.Component("rest")).
			Add(logging.Str("addr", cfg.Addr)).
			Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logging.Info().
		Add(logging.Component("rest")).
		Add(logging.Str("addr", cfg.Addr)).
		Msg("stopped")
	return nil
}

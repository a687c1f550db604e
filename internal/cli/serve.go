package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lazypower/matchmaker/internal/config"
	"github.com/lazypower/matchmaker/internal/logging"
	"github.com/lazypower/matchmaker/internal/match"
	"github.com/lazypower/matchmaker/internal/server"
	"github.com/lazypower/matchmaker/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.New("matchmaker", cfg.Log.Level, cfg.Log.Pretty)

	openCtx, cancelOpen := context.WithTimeout(context.Background(), 30*time.Second)
	backend, desc, err := openBackend(openCtx, cfg)
	cancelOpen()
	if err != nil {
		return err
	}
	defer backend.Close()

	srv := server.New(backend, newEngine(backend, cfg, log), match.NewRecorder(backend), log, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("db", desc).Str("version", VersionString()).Msg("matchmaker serving")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-done:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}

func newEngine(backend store.Backend, cfg config.Config, log zerolog.Logger) *match.Engine {
	eng := match.New(backend, backend, log)
	eng.Limit = cfg.Matching.MaxResults
	eng.Scorer.MaxJitter = cfg.Matching.Jitter
	return eng
}

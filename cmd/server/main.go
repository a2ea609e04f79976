package main

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
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Molian/internal/adapters/auth"
	router "github.com/dkeye/Molian/internal/adapters/http"
	wsignal "github.com/dkeye/Molian/internal/adapters/signal"
	"github.com/dkeye/Molian/internal/adapters/store/gormstore"
	"github.com/dkeye/Molian/internal/adapters/store/pgstore"
	"github.com/dkeye/Molian/internal/app"
	"github.com/dkeye/Molian/internal/app/messager"
	"github.com/dkeye/Molian/internal/app/orch"
	"github.com/dkeye/Molian/internal/config"
)

type closableStore interface {
	messager.Store
	Close() error
}

func openStore(ctx context.Context, db config.DB) (closableStore, error) {
	switch db.Driver {
	case "postgres":
		return pgstore.Open(ctx, db.DSN)
	case "sqlite":
		return gormstore.Open(db.DSN)
	}
	return nil, fmt.Errorf("unknown db driver %q", db.Driver)
}

func setupLogger(cfg *config.Config) {
	if cfg.Mode == "debug" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func serve(ctx context.Context, srv *http.Server, name string) error {
	log.Info().Str("addr", srv.Addr).Str("listener", name).Msg("listening")
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Str("listener", name).Msg("server forced to shutdown")
	}
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	store, err := openStore(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("failed to open store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}()

	verifier := auth.NewJWTVerifier(cfg.Secret, cfg.TokenTTL)

	o := orch.New(app.NewRegistry(), store, app.PolicyFor(cfg.SlowConsumer))
	o.LookupTimeout = cfg.BroadcastTimeout

	ctl := wsignal.NewSignalWSController(o, verifier, wsignal.Options{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
		SendBuffer:     cfg.SendBuffer,
		AllowedOrigins: cfg.AllowedOrigins,
		TypingLimit:    cfg.TypingLimit,
		TypingInterval: cfg.TypingInterval,
	})
	svc := messager.NewService(store, o)

	public := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router.SetupRouter(ctx, cfg, ctl, svc, verifier),
		ReadHeaderTimeout: 10 * time.Second,
	}
	internal := &http.Server{
		Addr:              cfg.InternalAddr,
		Handler:           router.SetupInternalRouter(cfg.Mode, o),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(gctx, public, "public") })
	g.Go(func() error { return serve(gctx, internal, "internal") })
	g.Go(func() error {
		ctl.Typing.Run(gctx, cfg.TypingInterval)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("Shutting down")
	o.Shutdown()
	log.Info().Msg("Server exited gracefully")
}

// Package main is the entry point for the Alexander Library server.
// It serves the catalog, category and reservation API over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/prn-tf/alexander-library/internal/app"
	"github.com/prn-tf/alexander-library/internal/auth"
	"github.com/prn-tf/alexander-library/internal/config"
	"github.com/prn-tf/alexander-library/internal/handler"
	"github.com/prn-tf/alexander-library/internal/logging"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.StringP("config", "c", "", "path to the configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Alexander Library Server %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
		return
	}

	if err := run(*configPath); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	log.Logger = logger

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("database", cfg.Database.Driver).
		Msg("Starting Alexander Library Server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{RunScheduler: true})
	if err != nil {
		return err
	}
	defer a.Close()

	identity := auth.NewIdentityProvider(a.Tokens, a.Repos.User, logger)

	var limiter *handler.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = handler.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize, cfg.RateLimit.ClientTTL, a.Metrics)
		limiter.StartJanitor(ctx)
	}

	routerCfg := handler.RouterConfig{
		BookHandler:        handler.NewBookHandler(a.Catalog, a.Reservations, logger),
		CategoryHandler:    handler.NewCategoryHandler(a.Categories, logger),
		ReservationHandler: handler.NewReservationHandler(a.Reservations, logger),
		UserHandler:        handler.NewUserHandler(a.Users, logger),
		AuthMiddleware:     identity.Middleware(handler.WriteError),
		RateLimiter:        limiter,
		Database:           a.Database,
		Logger:             logger,
	}
	if cfg.Metrics.Enabled {
		routerCfg.Metrics = a.Metrics
		routerCfg.MetricsPath = cfg.Metrics.Path
	}
	router := handler.NewRouter(routerCfg)

	h := router.Handler()
	if cfg.Server.MaxBodySize > 0 {
		h = http.MaxBytesHandler(h, cfg.Server.MaxBodySize)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info().Msg("Server stopped")
	return nil
}

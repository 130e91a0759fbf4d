// Package app assembles the library services from configuration. The
// server and the admin CLI share it so both run the same wiring.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/auth"
	cachememory "github.com/prn-tf/alexander-library/internal/cache/memory"
	cacheredis "github.com/prn-tf/alexander-library/internal/cache/redis"
	"github.com/prn-tf/alexander-library/internal/config"
	"github.com/prn-tf/alexander-library/internal/lock"
	"github.com/prn-tf/alexander-library/internal/metrics"
	"github.com/prn-tf/alexander-library/internal/notify"
	"github.com/prn-tf/alexander-library/internal/repository"
	"github.com/prn-tf/alexander-library/internal/service"

	// Database drivers register themselves with the repository factory.
	_ "github.com/prn-tf/alexander-library/internal/repository/memory"
	_ "github.com/prn-tf/alexander-library/internal/repository/postgres"
	_ "github.com/prn-tf/alexander-library/internal/repository/sqlite"
)

// cacheKeyPrefix namespaces every Redis key written by the library.
const cacheKeyPrefix = "alexander:"

// App holds the assembled services and the resources backing them.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Database repository.Database
	Repos    *repository.Repositories
	Metrics  *metrics.Metrics

	Coordinator  *service.InventoryCoordinator
	Categories   *service.CategoryService
	Catalog      *service.CatalogService
	Reservations *service.ReservationService
	Users        *service.UserService

	// Tokens is nil when no JWT secret is configured.
	Tokens *auth.TokenManager

	locker lock.Locker

	closers []func()
}

// Options tweaks assembly for a particular binary.
type Options struct {
	// SkipMigrate leaves the schema untouched even with auto_migrate set.
	SkipMigrate bool

	// DisableNotifications drops lending events instead of delivering them.
	DisableNotifications bool

	// RunScheduler starts the periodic reminder scheduler when
	// notification.reminder_interval is set.
	RunScheduler bool
}

// New opens the database, the lock and cache backends and builds every
// service. Close releases everything New acquired.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (_ *App, err error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewMetrics(),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// Database
	factory := repository.NewFactory(cfg.Database, logger)
	result, err := factory.Create(ctx)
	if err != nil {
		return nil, err
	}
	a.Database = result.Database
	a.Repos = result.Repos
	a.onClose(func() {
		if err := a.Database.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close database")
		}
	})

	if cfg.Database.AutoMigrate && !opts.SkipMigrate {
		if err := a.Database.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	// Locks and cache
	var (
		locker lock.Locker
		cache  repository.Cache
	)
	if cfg.Redis.Enabled {
		client, err := cacheredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = client.Close() })
		locker = lock.NewRedisLocker(client)
		cache = cacheredis.NewCache(client, cacheKeyPrefix)
		logger.Info().Str("addr", cfg.Redis.Addr()).Msg("Using Redis for locks and cache")
	} else {
		memLocker := lock.NewMemoryLocker()
		memCache := cachememory.NewCache(time.Minute)
		a.onClose(memLocker.Stop)
		a.onClose(memCache.Stop)
		locker, cache = memLocker, memCache
	}
	a.locker = locker

	// Notifications
	var notifier service.Notifier = service.NopNotifier{}
	if cfg.Notification.Enabled && !opts.DisableNotifications {
		dispatcher := notify.NewDispatcher(newSender(cfg.Notification, logger), a.Metrics, notify.DispatcherConfig{
			Workers:     cfg.Notification.Workers,
			QueueSize:   cfg.Notification.QueueSize,
			SendTimeout: cfg.Notification.SendTimeout,
		}, logger)
		dispatcher.Start()
		a.onClose(dispatcher.Stop)
		notifier = dispatcher
	}

	// Services
	a.Coordinator = service.NewInventoryCoordinator(a.Repos, locker, a.Metrics, service.CoordinatorConfig{
		LockTTL:        cfg.Inventory.LockTTL,
		LockRetries:    cfg.Inventory.LockRetries,
		LockRetryDelay: cfg.Inventory.LockRetryDelay,
		MaxAttempts:    cfg.Inventory.MaxConflictRetries,
		BaseDelay:      cfg.Inventory.ConflictBaseDelay,
	}, logger)
	a.Categories = service.NewCategoryService(a.Repos, cache, cfg.Cache.CategoryTTL, logger)
	a.Catalog = service.NewCatalogService(a.Coordinator, a.Repos, a.Categories, logger)
	a.Reservations = service.NewReservationService(a.Coordinator, a.Repos, notifier, logger)
	a.Users = service.NewUserService(a.Repos.User, logger)

	if opts.RunScheduler && cfg.Notification.ReminderInterval > 0 {
		scheduler := NewReminderScheduler(a.Reservations, locker, ReminderConfig{
			Interval: cfg.Notification.ReminderInterval,
			Window:   cfg.Notification.ReminderWindow,
		}, logger)
		scheduler.Start()
		a.onClose(scheduler.Stop)
	}

	if cfg.Auth.JWTSecret != "" {
		a.Tokens, err = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
		if err != nil {
			return nil, err
		}
	}

	return a, nil
}

func newSender(cfg config.NotificationConfig, logger zerolog.Logger) notify.Sender {
	if cfg.Sender == "smtp" {
		return notify.NewSMTPSender(cfg.SMTP, cfg.From)
	}
	return notify.NewLogSender(logger)
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition. Pending
// notifications are drained before the database closes.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

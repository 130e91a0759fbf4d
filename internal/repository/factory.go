// Package repository provides data access layer for Alexander Library.
// This file contains factory functions to create repositories based on configuration.
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/config"
)

// Repositories holds all repository instances.
type Repositories struct {
	User        UserRepository
	Category    CategoryRepository
	Book        BookRepository
	Reservation ReservationRepository
	Tx          TxManager
}

// Database is the handle of an opened backend.
// This interface satisfies handler.DatabaseChecker for health endpoints.
type Database interface {
	Ping(ctx context.Context) error
	Close() error

	// Migrate applies all pending schema migrations.
	Migrate(ctx context.Context) error

	// MigrationVersion returns the highest applied migration version.
	MigrationVersion(ctx context.Context) (int, error)
}

// CreateRepositoriesResult contains the created repositories and database connection.
type CreateRepositoriesResult struct {
	Repos    *Repositories
	Database Database
}

// Opener opens a backend and builds its repositories.
type Opener func(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*CreateRepositoriesResult, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Opener)
)

// RegisterDriver makes a backend available by name. It is called from the
// init function of each backend package and panics on duplicates.
func RegisterDriver(name string, open Opener) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if open == nil {
		panic("repository: RegisterDriver opener is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("repository: RegisterDriver called twice for driver " + name)
	}
	drivers[name] = open
}

// Drivers returns the sorted names of the registered backends.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Factory creates repositories based on configuration.
type Factory struct {
	cfg    config.DatabaseConfig
	logger zerolog.Logger
}

// NewFactory creates a new repository factory.
func NewFactory(cfg config.DatabaseConfig, logger zerolog.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// Driver returns the configured database driver.
func (f *Factory) Driver() string {
	return f.cfg.Driver
}

// IsEmbedded returns true if using embedded database.
func (f *Factory) IsEmbedded() bool {
	return f.cfg.IsEmbedded()
}

// Create opens the configured backend.
func (f *Factory) Create(ctx context.Context) (*CreateRepositoriesResult, error) {
	driversMu.RLock()
	open, ok := drivers[f.cfg.Driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown database driver %q (registered: %v)", f.cfg.Driver, Drivers())
	}

	result, err := open(ctx, f.cfg, f.logger.With().Str("driver", f.cfg.Driver).Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", f.cfg.Driver, err)
	}
	return result, nil
}

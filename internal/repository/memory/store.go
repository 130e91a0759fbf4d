// Package memory provides volatile in-process repositories.
// They back the "memory" database driver and the service tests.
package memory

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/config"
	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

func init() {
	repository.RegisterDriver("memory", func(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.CreateRepositoriesResult, error) {
		store := NewStore()
		logger.Warn().Msg("using in-memory database; data is lost on shutdown")
		return &repository.CreateRepositoriesResult{
			Repos:    store.Repositories(),
			Database: store,
		}, nil
	})
}

// Store holds every table in process memory.
//
// Transactions and writes made outside a transaction are serialized by
// txMu. A transaction rolls back by restoring a snapshot taken at begin.
// Reads outside a transaction observe
// uncommitted writes of a running transaction.
type Store struct {
	txMu sync.Mutex

	mu   sync.RWMutex
	data *dataset
}

type dataset struct {
	users        map[int64]domain.User
	categories   map[int64]domain.Category
	books        map[int64]domain.Book
	reservations map[int64]domain.Reservation

	nextUserID        int64
	nextCategoryID    int64
	nextBookID        int64
	nextReservationID int64
}

func newDataset() *dataset {
	return &dataset{
		users:             make(map[int64]domain.User),
		categories:        make(map[int64]domain.Category),
		books:             make(map[int64]domain.Book),
		reservations:      make(map[int64]domain.Reservation),
		nextUserID:        1,
		nextCategoryID:    1,
		nextBookID:        1,
		nextReservationID: 1,
	}
}

// clone copies the maps. Entities are stored by value and their pointer
// fields are never mutated in place, so a shallow copy is sufficient.
func (d *dataset) clone() *dataset {
	c := *d
	c.users = make(map[int64]domain.User, len(d.users))
	for k, v := range d.users {
		c.users[k] = v
	}
	c.categories = make(map[int64]domain.Category, len(d.categories))
	for k, v := range d.categories {
		c.categories[k] = v
	}
	c.books = make(map[int64]domain.Book, len(d.books))
	for k, v := range d.books {
		c.books[k] = v
	}
	c.reservations = make(map[int64]domain.Reservation, len(d.reservations))
	for k, v := range d.reservations {
		c.reservations[k] = v
	}
	return &c
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: newDataset()}
}

// Repositories returns repositories sharing this store.
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		User:        &userRepository{s: s},
		Category:    &categoryRepository{s: s},
		Book:        &bookRepository{s: s},
		Reservation: &reservationRepository{s: s},
		Tx:          s,
	}
}

type txKey struct{}

// WithTx runs fn in a transaction. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	committed := false
	defer func() {
		if !committed {
			s.mu.Lock()
			s.data = snapshot
			s.mu.Unlock()
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Migrate is a no-op; the schema lives in Go types.
func (s *Store) Migrate(ctx context.Context) error { return nil }

// MigrationVersion always reports zero.
func (s *Store) MigrationVersion(ctx context.Context) (int, error) { return 0, nil }

func (s *Store) read(fn func(d *dataset)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.data)
}

// write applies fn to the live dataset. Outside a transaction it also holds
// txMu, so a concurrent rollback cannot discard the change.
func (s *Store) write(ctx context.Context, fn func(d *dataset) error) error {
	if !s.inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func page[T any](items []*T, opts repository.ListOptions) *repository.ListResult[T] {
	opts = opts.Normalize()
	total := len(items)

	start := opts.Offset
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}

	return &repository.ListResult[T]{
		Items:  items[start:end],
		Total:  int64(total),
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}
}

var (
	_ repository.TxManager = (*Store)(nil)
	_ repository.Database  = (*Store)(nil)
)

package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/lock"
	"github.com/prn-tf/alexander-library/internal/metrics"
	"github.com/prn-tf/alexander-library/internal/pkg/retry"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// Operation names used in logs and metrics.
const (
	opReserve      = "reserve"
	opReturn       = "return"
	opCancel       = "cancel"
	opUpdateBook   = "update_book"
	opAvailability = "set_availability"
	opDeleteBook   = "delete_book"
	opAudit        = "audit"
)

// CoordinatorConfig tunes per-book serialization.
type CoordinatorConfig struct {
	// LockTTL bounds how long a crashed holder can block a book.
	LockTTL time.Duration

	// LockRetries and LockRetryDelay bound the wait for a busy book.
	LockRetries    int
	LockRetryDelay time.Duration

	// MaxAttempts and BaseDelay drive the retry of units of work that
	// lost a version check.
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultCoordinatorConfig returns the configuration used when none is given.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		LockTTL:        10 * time.Second,
		LockRetries:    20,
		LockRetryDelay: 25 * time.Millisecond,
		MaxAttempts:    6,
		BaseDelay:      10 * time.Millisecond,
	}
}

// InventoryCoordinator owns every change to a book's copy count and status
// together with the reservation transition that causes it.
//
// Each operation holds the book's lock and runs as one transaction: the
// book is reloaded, the transition applied, and book plus reservation are
// written with conditional updates. A lost version check rolls back and
// retries the whole unit.
type InventoryCoordinator struct {
	books        repository.BookRepository
	reservations repository.ReservationRepository
	tx           repository.TxManager
	locker       lock.Locker
	metrics      *metrics.Metrics
	cfg          CoordinatorConfig
	now          func() time.Time
	logger       zerolog.Logger
}

// NewInventoryCoordinator creates a new InventoryCoordinator.
func NewInventoryCoordinator(
	repos *repository.Repositories,
	locker lock.Locker,
	m *metrics.Metrics,
	cfg CoordinatorConfig,
	logger zerolog.Logger,
) *InventoryCoordinator {
	return &InventoryCoordinator{
		books:        repos.Book,
		reservations: repos.Reservation,
		tx:           repos.Tx,
		locker:       locker,
		metrics:      m,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.With().Str("service", "inventory").Logger(),
	}
}

// SetClock replaces the time source.
func (c *InventoryCoordinator) SetClock(now func() time.Time) {
	c.now = now
}

// Reserve checks out one copy of the book for user for periodDays days.
//
// Checks run in this order: the period is 7, 14 or 21 days, the user is
// not blacklisted, the book exists, a copy is available and the book is
// AVAILABLE, and the user holds no ACTIVE reservation for the book.
func (c *InventoryCoordinator) Reserve(ctx context.Context, bookID int64, user *domain.User, periodDays int) (*domain.Reservation, *domain.Book, error) {
	if err := domain.ValidateReservationPeriod(periodDays); err != nil {
		return nil, nil, err
	}
	if err := requireActor(user); err != nil {
		return nil, nil, err
	}
	if !user.CanReserve() {
		return nil, nil, domain.ErrUserBlacklisted
	}

	var (
		reservation *domain.Reservation
		book        *domain.Book
	)
	err := c.withBook(ctx, opReserve, bookID, func(ctx context.Context) error {
		b, err := c.books.GetForUpdate(ctx, bookID)
		if err != nil {
			return err
		}
		if !b.CanReserve() {
			return domain.ErrBookNotAvailable
		}

		exists, err := c.reservations.ExistsActive(ctx, user.ID, bookID)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrDuplicateReservation
		}

		now := c.now()
		r, err := domain.NewReservation(user.ID, bookID, periodDays, now)
		if err != nil {
			return err
		}
		if err := b.CheckOutCopy(now); err != nil {
			return err
		}
		if err := c.reservations.Create(ctx, r); err != nil {
			return err
		}
		if err := c.books.Update(ctx, b); err != nil {
			return err
		}

		reservation, book = r, b
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	c.logger.Info().
		Int64("reservation_id", reservation.ID).
		Int64("book_id", bookID).
		Int64("user_id", user.ID).
		Int("available_copies", book.AvailableCopies).
		Time("due_date", reservation.DueDate).
		Msg("book reserved")

	return reservation, book, nil
}

// ReturnCopy marks an ACTIVE reservation RETURNED and releases its copy.
func (c *InventoryCoordinator) ReturnCopy(ctx context.Context, reservationID int64) (*domain.Reservation, *domain.Book, error) {
	res, book, err := c.release(ctx, opReturn, reservationID, nil)
	if err != nil {
		return nil, nil, err
	}

	c.logger.Info().
		Int64("reservation_id", res.ID).
		Int64("book_id", res.BookID).
		Int("available_copies", book.AvailableCopies).
		Msg("book returned")

	return res, book, nil
}

// Cancel marks an ACTIVE reservation CANCELLED and releases its copy.
// actor must own the reservation or be a librarian; that is checked
// before the reservation state.
func (c *InventoryCoordinator) Cancel(ctx context.Context, reservationID int64, actor *domain.User) (*domain.Reservation, *domain.Book, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}

	res, book, err := c.release(ctx, opCancel, reservationID, actor)
	if err != nil {
		return nil, nil, err
	}

	c.logger.Info().
		Int64("reservation_id", res.ID).
		Int64("book_id", res.BookID).
		Int64("actor_id", actor.ID).
		Int("available_copies", book.AvailableCopies).
		Msg("reservation cancelled")

	return res, book, nil
}

// release implements return (actor == nil) and cancel.
func (c *InventoryCoordinator) release(ctx context.Context, op string, reservationID int64, actor *domain.User) (*domain.Reservation, *domain.Book, error) {
	// BookID never changes, so it is safe to read it before locking.
	current, err := c.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, nil, c.classify(op, err)
	}
	if actor != nil && !current.CanBeCancelledBy(actor) {
		return nil, nil, domain.ErrNotReservationOwner
	}

	var (
		reservation *domain.Reservation
		book        *domain.Book
	)
	err = c.withBook(ctx, op, current.BookID, func(ctx context.Context) error {
		r, err := c.reservations.GetByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if !r.IsActive() {
			return domain.ErrReservationNotActive
		}

		b, err := c.books.GetForUpdate(ctx, r.BookID)
		if err != nil {
			return err
		}

		now := c.now()
		if actor == nil {
			err = r.Return(now)
		} else {
			err = r.Cancel(now)
		}
		if err != nil {
			return err
		}
		if err := c.reservations.UpdateStatus(ctx, r, domain.ReservationActive); err != nil {
			return err
		}
		stillActive, err := c.reservations.CountActiveByBook(ctx, b.ID)
		if err != nil {
			return err
		}
		b.ReleaseCopy(stillActive, now)
		if err := c.books.Update(ctx, b); err != nil {
			return err
		}

		reservation, book = r, b
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return reservation, book, nil
}

// UpdateBook applies edit to the book's descriptive fields and, when
// newTotal is not nil, adjusts the number of copies. edit must not touch
// copy counts, status or version.
func (c *InventoryCoordinator) UpdateBook(ctx context.Context, bookID int64, newTotal *int, edit func(b *domain.Book) error) (*domain.Book, error) {
	if newTotal != nil && *newTotal < 1 {
		return nil, domain.ErrInvalidTotalCopies
	}

	var book *domain.Book
	err := c.withBook(ctx, opUpdateBook, bookID, func(ctx context.Context) error {
		b, err := c.books.GetForUpdate(ctx, bookID)
		if err != nil {
			return err
		}

		now := c.now()
		if edit != nil {
			if err := edit(b); err != nil {
				return err
			}
			b.UpdatedAt = now
		}
		if newTotal != nil {
			if err := b.AdjustTotalCopies(*newTotal, now); err != nil {
				return err
			}
		}

		if err := c.books.Update(ctx, b); err != nil {
			return err
		}
		book = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Int64("book_id", bookID).
		Int("total_copies", book.TotalCopies).
		Int("available_copies", book.AvailableCopies).
		Str("status", string(book.Status)).
		Msg("book updated")

	return book, nil
}

// AdjustTotalCopies changes the number of owned copies of a book.
func (c *InventoryCoordinator) AdjustTotalCopies(ctx context.Context, bookID int64, newTotal int) (*domain.Book, error) {
	return c.UpdateBook(ctx, bookID, &newTotal, nil)
}

// SetAvailability forces the book UNAVAILABLE or clears that override.
func (c *InventoryCoordinator) SetAvailability(ctx context.Context, bookID int64, unavailable bool) (*domain.Book, error) {
	var book *domain.Book
	err := c.withBook(ctx, opAvailability, bookID, func(ctx context.Context) error {
		b, err := c.books.GetForUpdate(ctx, bookID)
		if err != nil {
			return err
		}
		b.SetUnavailable(unavailable, c.now())
		if err := c.books.Update(ctx, b); err != nil {
			return err
		}
		book = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Int64("book_id", bookID).
		Str("status", string(book.Status)).
		Msg("book status changed")

	return book, nil
}

// DeleteBook removes a book that has no ACTIVE reservation.
func (c *InventoryCoordinator) DeleteBook(ctx context.Context, bookID int64) error {
	err := c.withBook(ctx, opDeleteBook, bookID, func(ctx context.Context) error {
		if _, err := c.books.GetForUpdate(ctx, bookID); err != nil {
			return err
		}
		active, err := c.reservations.CountActiveByBook(ctx, bookID)
		if err != nil {
			return err
		}
		if active > 0 {
			return domain.ErrBookHasActiveReservations
		}
		return c.books.Delete(ctx, bookID)
	})
	if err != nil {
		return err
	}

	c.logger.Info().Int64("book_id", bookID).Msg("book deleted")
	return nil
}

// AuditResult compares a book's stored copy count with its reservations.
type AuditResult struct {
	BookID             int64
	TotalCopies        int
	AvailableCopies    int
	ActiveReservations int64
	Status             domain.BookStatus
}

// Consistent reports whether the stored counts satisfy the inventory rules.
// A book shrunk below its active reservations holds zero available copies.
func (r AuditResult) Consistent() bool {
	expected := int64(r.TotalCopies) - r.ActiveReservations
	if expected < 0 {
		expected = 0
	}
	if int64(r.AvailableCopies) != expected {
		return false
	}
	switch r.Status {
	case domain.BookStatusUnavailable:
		return true
	case domain.BookStatusReserved:
		return r.AvailableCopies == 0
	default:
		return r.AvailableCopies > 0
	}
}

// Audit reads a book and its active reservations under the book lock.
func (c *InventoryCoordinator) Audit(ctx context.Context, bookID int64) (*AuditResult, error) {
	var result *AuditResult
	err := c.withBook(ctx, opAudit, bookID, func(ctx context.Context) error {
		b, err := c.books.GetForUpdate(ctx, bookID)
		if err != nil {
			return err
		}
		active, err := c.reservations.CountActiveByBook(ctx, bookID)
		if err != nil {
			return err
		}
		result = &AuditResult{
			BookID:             b.ID,
			TotalCopies:        b.TotalCopies,
			AvailableCopies:    b.AvailableCopies,
			ActiveReservations: active,
			Status:             b.Status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// withBook runs fn as one serialized, retried transaction on bookID.
func (c *InventoryCoordinator) withBook(ctx context.Context, op string, bookID int64, fn func(ctx context.Context) error) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordInventoryOp(op, resultLabel(err), time.Since(start))
	}()

	bookLock := lock.NewLock(c.locker, lock.Keys.Book(bookID))
	acquired, err := bookLock.AcquireWithRetry(ctx, c.cfg.LockTTL, c.cfg.LockRetries, c.cfg.LockRetryDelay)
	c.metrics.RecordLockWait(time.Since(start), acquired)
	if err != nil {
		return c.classify(op, err)
	}
	if !acquired {
		c.logger.Warn().Str("op", op).Int64("book_id", bookID).Msg("book lock busy")
		return domain.ErrBookBusy
	}
	defer func() {
		// Release even when the request context is already cancelled.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if relErr := bookLock.Release(releaseCtx); relErr != nil {
			c.logger.Error().Err(relErr).Str("key", bookLock.Key()).Msg("failed to release book lock")
		}
	}()

	err = retry.Do(ctx,
		func(ctx context.Context) error { return c.tx.WithTx(ctx, fn) },
		func(err error) bool { return errors.Is(err, repository.ErrStaleVersion) },
		retry.WithMaxAttempts(c.cfg.MaxAttempts),
		retry.WithBaseDelay(c.cfg.BaseDelay),
		retry.WithOnRetry(func(attempt int, err error) {
			c.metrics.RecordConflictRetry(op)
			c.logger.Debug().Str("op", op).Int64("book_id", bookID).Int("attempt", attempt).Msg("retrying after version conflict")
		}),
	)
	if errors.Is(err, repository.ErrStaleVersion) {
		c.logger.Warn().Str("op", op).Int64("book_id", bookID).Msg("version conflict retries exhausted")
		return domain.ErrConcurrentModification
	}
	if err != nil {
		return c.classify(op, err)
	}
	return nil
}

// classify passes domain errors through and wraps everything else.
func (c *InventoryCoordinator) classify(op string, err error) error {
	if isDomainError(err) {
		return err
	}
	c.logger.Error().Err(err).Str("op", op).Msg("inventory operation failed")
	return internalError(err)
}

// resultLabel maps err to a low-cardinality metric label.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := domain.KindOf(err); kind != nil {
		return strings.ReplaceAll(kind.Error(), " ", "_")
	}
	return "internal"
}

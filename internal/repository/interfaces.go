// Package repository defines data access interfaces for Alexander Library.
// These interfaces abstract database operations, allowing for different implementations
// (PostgreSQL, SQLite, in-memory for testing) while keeping the service layer clean.
package repository

import (
	"context"
	"time"

	"github.com/prn-tf/alexander-library/internal/domain"
)

// =============================================================================
// User Repository
// =============================================================================

// UserRepository defines the interface for user data access.
type UserRepository interface {
	// Create creates a new user.
	// Returns domain.ErrUserAlreadyExists if the email is taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByEmail retrieves a user by email.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Update updates role, name and blacklist flag of an existing user.
	Update(ctx context.Context, user *domain.User) error

	// List returns all users with pagination.
	List(ctx context.Context, opts ListOptions) (*ListResult[domain.User], error)
}

// =============================================================================
// Category Repository
// =============================================================================

// CategoryRepository defines the interface for category data access.
type CategoryRepository interface {
	// Create creates a new category.
	// Returns domain.ErrCategoryAlreadyExists if the name is taken.
	Create(ctx context.Context, category *domain.Category) error

	// GetByID retrieves a category by ID.
	GetByID(ctx context.Context, id int64) (*domain.Category, error)

	// Update updates an existing category.
	Update(ctx context.Context, category *domain.Category) error

	// Delete deletes a category by ID.
	Delete(ctx context.Context, id int64) error

	// ExistsByName checks if another category (id != excludeID) has the name.
	ExistsByName(ctx context.Context, name string, excludeID int64) (bool, error)

	// List returns all categories ordered by name.
	List(ctx context.Context) ([]*domain.Category, error)
}

// =============================================================================
// Book Repository
// =============================================================================

// BookRepository defines the interface for book data access.
type BookRepository interface {
	// Create creates a new book and assigns its ID. Version starts at 1.
	// Returns domain.ErrISBNAlreadyExists if the ISBN is taken.
	Create(ctx context.Context, book *domain.Book) error

	// GetByID retrieves a book by ID.
	GetByID(ctx context.Context, id int64) (*domain.Book, error)

	// GetForUpdate retrieves a book inside a transaction and, where the
	// backend supports it, locks the row until the transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*domain.Book, error)

	// GetByIDs retrieves several books at once. Missing IDs are skipped.
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Book, error)

	// Update persists book if its stored version still equals book.Version,
	// then increments book.Version. Returns ErrStaleVersion otherwise.
	Update(ctx context.Context, book *domain.Book) error

	// Delete deletes a book by ID.
	Delete(ctx context.Context, id int64) error

	// ExistsByISBN checks if another book (id != excludeID) has the ISBN.
	ExistsByISBN(ctx context.Context, isbn string, excludeID int64) (bool, error)

	// CountByCategory returns the number of books in a category.
	CountByCategory(ctx context.Context, categoryID int64) (int64, error)

	// List returns books matching filter, paginated in the store.
	List(ctx context.Context, filter BookFilter, opts ListOptions) (*ListResult[domain.Book], error)
}

// BookFilter narrows a book listing. Text fields match case-insensitive
// substrings; zero values are ignored.
type BookFilter struct {
	Title      string
	Author     string
	Genre      string
	Language   string
	CategoryID int64
	Status     domain.BookStatus
}

// =============================================================================
// Reservation Repository
// =============================================================================

// ReservationRepository defines the interface for reservation data access.
type ReservationRepository interface {
	// Create creates a new reservation and assigns its ID.
	// Returns domain.ErrDuplicateReservation if the user already has an
	// ACTIVE reservation for the same book.
	Create(ctx context.Context, reservation *domain.Reservation) error

	// GetByID retrieves a reservation by ID.
	GetByID(ctx context.Context, id int64) (*domain.Reservation, error)

	// UpdateStatus persists status, return date and updated_at of
	// reservation only if the stored status is still from.
	// Returns ErrStaleVersion otherwise.
	UpdateStatus(ctx context.Context, reservation *domain.Reservation, from domain.ReservationStatus) error

	// ExistsActive checks if the user has an ACTIVE reservation for the book.
	ExistsActive(ctx context.Context, userID, bookID int64) (bool, error)

	// CountActiveByBook returns the number of ACTIVE reservations for a book.
	CountActiveByBook(ctx context.Context, bookID int64) (int64, error)

	// ListByUser returns every reservation of a user, newest first.
	ListByUser(ctx context.Context, userID int64) ([]*domain.Reservation, error)

	// List returns reservations matching filter, newest first, paginated in the store.
	List(ctx context.Context, filter ReservationFilter, opts ListOptions) (*ListResult[domain.Reservation], error)

	// ListActiveDueBefore returns ACTIVE reservations whose due date is before t.
	ListActiveDueBefore(ctx context.Context, t time.Time) ([]*domain.Reservation, error)
}

// ReservationFilter narrows a reservation listing. Zero values are ignored.
type ReservationFilter struct {
	Status domain.ReservationStatus
	UserID int64
	BookID int64
}

// =============================================================================
// Common Types
// =============================================================================

// Default and maximum page sizes for listings.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListOptions contains common options for list operations.
type ListOptions struct {
	// Offset is the number of records to skip.
	Offset int

	// Limit is the maximum number of records to return.
	Limit int
}

// Normalize clamps Offset and Limit into their valid ranges.
func (o ListOptions) Normalize() ListOptions {
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.Limit <= 0 {
		o.Limit = DefaultPageSize
	}
	if o.Limit > MaxPageSize {
		o.Limit = MaxPageSize
	}
	return o
}

// ListResult is a generic paginated list result.
type ListResult[T any] struct {
	// Items is the list of items.
	Items []*T

	// Total is the total number of items (without pagination).
	Total int64

	// Offset is the current offset.
	Offset int

	// Limit is the current limit.
	Limit int
}

// =============================================================================
// Transaction Support
// =============================================================================

// TxManager defines the interface for transaction management.
type TxManager interface {
	// WithTx executes the given function within a transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	// Repositories called with the ctx passed to fn join the transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

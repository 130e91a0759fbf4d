// Package domain contains the core business entities for Alexander Library.
package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every domain error wraps exactly one of these so callers
// (the HTTP layer in particular) can classify failures with errors.Is.
var (
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness or state conflict with existing data.
	ErrConflict = errors.New("conflict")

	// ErrNotAvailable indicates a book has no copy that can be reserved.
	ErrNotAvailable = errors.New("not available")

	// ErrForbidden indicates the actor may not perform the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState indicates a transition that is illegal from the current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrUnauthenticated indicates no valid identity accompanied the request.
	ErrUnauthenticated = errors.New("unauthenticated")
)

var (
	// ===========================================
	// Validation Errors
	// ===========================================

	// ErrInvalidReservationPeriod indicates a period other than 7, 14 or 21 days.
	ErrInvalidReservationPeriod = newKindError(ErrValidation, "reservation period must be 7, 14 or 21 days")

	// ErrInvalidTotalCopies indicates a total copy count below one.
	ErrInvalidTotalCopies = newKindError(ErrValidation, "total copies must be at least 1")

	// ErrInvalidBookStatus indicates an unknown book status value.
	ErrInvalidBookStatus = newKindError(ErrValidation, "invalid book status")

	// ===========================================
	// Not Found Errors
	// ===========================================

	// ErrBookNotFound indicates the requested book does not exist.
	ErrBookNotFound = newKindError(ErrNotFound, "book not found")

	// ErrCategoryNotFound indicates the requested category does not exist.
	ErrCategoryNotFound = newKindError(ErrNotFound, "category not found")

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = newKindError(ErrNotFound, "user not found")

	// ErrReservationNotFound indicates the requested reservation does not exist.
	ErrReservationNotFound = newKindError(ErrNotFound, "reservation not found")

	// ===========================================
	// Conflict Errors
	// ===========================================

	// ErrDuplicateReservation indicates the user already holds an active reservation for the book.
	ErrDuplicateReservation = newKindError(ErrConflict, "user already has an active reservation for this book")

	// ErrISBNAlreadyExists indicates another book carries the same ISBN.
	ErrISBNAlreadyExists = newKindError(ErrConflict, "book with this ISBN already exists")

	// ErrCategoryAlreadyExists indicates another category carries the same name.
	ErrCategoryAlreadyExists = newKindError(ErrConflict, "category with this name already exists")

	// ErrUserAlreadyExists indicates another user carries the same email.
	ErrUserAlreadyExists = newKindError(ErrConflict, "user already exists")

	// ErrBookHasActiveReservations indicates a book cannot be deleted while reserved.
	ErrBookHasActiveReservations = newKindError(ErrConflict, "book has active reservations")

	// ErrCategoryInUse indicates a category cannot be deleted while books reference it.
	ErrCategoryInUse = newKindError(ErrConflict, "category is referenced by books")

	// ErrBookBusy indicates the per-book lock could not be acquired in time.
	ErrBookBusy = newKindError(ErrConflict, "book is being modified by another request")

	// ErrConcurrentModification indicates optimistic retries were exhausted.
	ErrConcurrentModification = newKindError(ErrConflict, "book was modified concurrently")

	// ===========================================
	// Availability Errors
	// ===========================================

	// ErrBookNotAvailable indicates no copy of the book can be reserved.
	ErrBookNotAvailable = newKindError(ErrNotAvailable, "book is not available for reservation")

	// ===========================================
	// Authorization Errors
	// ===========================================

	// ErrUserBlacklisted indicates a blacklisted user tried to reserve.
	ErrUserBlacklisted = newKindError(ErrForbidden, "user is blacklisted")

	// ErrLibrarianRequired indicates the operation needs the LIBRARIAN role.
	ErrLibrarianRequired = newKindError(ErrForbidden, "librarian role required")

	// ErrNotReservationOwner indicates the actor neither owns the reservation nor is a librarian.
	ErrNotReservationOwner = newKindError(ErrForbidden, "not authorized to modify this reservation")

	// ErrCannotBlacklistLibrarian indicates an attempt to blacklist a librarian.
	ErrCannotBlacklistLibrarian = newKindError(ErrForbidden, "librarians cannot be blacklisted")

	// ===========================================
	// State Errors
	// ===========================================

	// ErrReservationNotActive indicates the reservation was already returned or cancelled.
	ErrReservationNotActive = newKindError(ErrInvalidState, "reservation is not active")

	// ===========================================
	// Authentication Errors
	// ===========================================

	// ErrMissingIdentity indicates the request carried no identity at all.
	ErrMissingIdentity = newKindError(ErrUnauthenticated, "authentication required")

	// ErrInvalidToken indicates the identity token could not be verified.
	ErrInvalidToken = newKindError(ErrUnauthenticated, "invalid or expired token")
)

// kindError is a specific domain error classified under one error kind.
type kindError struct {
	kind error
	msg  string
}

func newKindError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g., book id, field name).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}

// KindOf returns the error kind err belongs to, or nil for infrastructure errors.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrValidation,
		ErrNotFound,
		ErrConflict,
		ErrNotAvailable,
		ErrForbidden,
		ErrInvalidState,
		ErrUnauthenticated,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

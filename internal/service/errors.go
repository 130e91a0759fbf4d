// Package service provides business logic services for Alexander Library.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/prn-tf/alexander-library/internal/domain"
)

// ErrInternalError wraps infrastructure failures (database, cache, lock
// backend). Its details are logged but never shown to API clients.
var ErrInternalError = errors.New("internal server error")

// isDomainError reports whether err already carries a domain error kind
// or a context cancellation that callers should see unchanged.
func isDomainError(err error) bool {
	return domain.KindOf(err) != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func internalError(err error) error {
	return fmt.Errorf("%w: %v", ErrInternalError, err)
}

// requireLibrarian returns an error unless actor is an authenticated librarian.
func requireLibrarian(actor *domain.User) error {
	if actor == nil {
		return domain.ErrMissingIdentity
	}
	if !actor.IsLibrarian() {
		return domain.ErrLibrarianRequired
	}
	return nil
}

// requireActor returns an error unless actor is present.
func requireActor(actor *domain.User) error {
	if actor == nil {
		return domain.ErrMissingIdentity
	}
	return nil
}

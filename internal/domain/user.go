// Package domain contains the core business entities for Alexander Library.
// These are pure Go structs with no external dependencies, representing
// the fundamental concepts of the lending system.
package domain

import (
	"time"
)

// Role is the authorization role of a user.
type Role string

const (
	// RoleUser is a regular library member who can reserve books.
	RoleUser Role = "USER"

	// RoleLibrarian can maintain the catalog and manage all reservations.
	RoleLibrarian Role = "LIBRARIAN"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleLibrarian
}

// User represents a registered library member or librarian.
// Identities are resolved by the auth layer and passed explicitly into
// every service operation.
type User struct {
	// ID is the unique identifier for the user (auto-generated).
	ID int64 `json:"id"`

	// Email is the unique email address for the user.
	Email string `json:"email"`

	// Name is the display name. Notifications fall back to Email when empty.
	Name string `json:"name"`

	// Role determines which operations the user may perform.
	Role Role `json:"role"`

	// IsBlacklisted blocks the user from creating new reservations.
	IsBlacklisted bool `json:"is_blacklisted"`

	// CreatedAt is the timestamp when the user was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the timestamp when the user was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUser creates a new User with default values.
func NewUser(email, name string, role Role) *User {
	now := time.Now().UTC()
	return &User{
		Email:     email,
		Name:      name,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsLibrarian returns true if the user holds the LIBRARIAN role.
func (u *User) IsLibrarian() bool {
	return u != nil && u.Role == RoleLibrarian
}

// CanReserve returns true if the user is allowed to create reservations.
func (u *User) CanReserve() bool {
	return !u.IsBlacklisted
}

// DisplayName returns the name used in notifications.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

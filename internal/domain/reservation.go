package domain

import (
	"time"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	// ReservationActive means the user holds a copy of the book.
	ReservationActive ReservationStatus = "ACTIVE"

	// ReservationReturned is terminal: the copy came back.
	ReservationReturned ReservationStatus = "RETURNED"

	// ReservationCancelled is terminal: the reservation was withdrawn.
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// ParseReservationStatus converts s into a ReservationStatus.
func ParseReservationStatus(s string) (ReservationStatus, error) {
	switch ReservationStatus(s) {
	case ReservationActive, ReservationReturned, ReservationCancelled:
		return ReservationStatus(s), nil
	default:
		return "", NewDomainError(ErrValidation, "invalid reservation status", s)
	}
}

// ReservationPeriods lists the allowed lending periods in days.
var ReservationPeriods = []int{7, 14, 21}

// ValidateReservationPeriod checks days against ReservationPeriods.
func ValidateReservationPeriod(days int) error {
	for _, p := range ReservationPeriods {
		if days == p {
			return nil
		}
	}
	return ErrInvalidReservationPeriod
}

// Reservation ties one copy of a book to a user until it is returned or
// cancelled. UserID, BookID and ReservationDate never change after creation.
type Reservation struct {
	ID              int64             `json:"id"`
	UserID          int64             `json:"user_id"`
	BookID          int64             `json:"book_id"`
	ReservationDate time.Time         `json:"reservation_date"`
	DueDate         time.Time         `json:"due_date"`
	ReturnDate      *time.Time        `json:"return_date,omitempty"`
	Status          ReservationStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewReservation creates an ACTIVE reservation starting at now.
func NewReservation(userID, bookID int64, periodDays int, now time.Time) (*Reservation, error) {
	if err := ValidateReservationPeriod(periodDays); err != nil {
		return nil, err
	}
	return &Reservation{
		UserID:          userID,
		BookID:          bookID,
		ReservationDate: now,
		DueDate:         now.AddDate(0, 0, periodDays),
		Status:          ReservationActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// IsActive returns true while the reservation holds a copy.
func (r *Reservation) IsActive() bool {
	return r.Status == ReservationActive
}

// IsOverdue returns true if an active reservation is past its due date.
func (r *Reservation) IsOverdue(now time.Time) bool {
	return r.IsActive() && now.After(r.DueDate)
}

// Return marks the reservation RETURNED at now.
func (r *Reservation) Return(now time.Time) error {
	if !r.IsActive() {
		return ErrReservationNotActive
	}
	r.Status = ReservationReturned
	r.ReturnDate = &now
	r.UpdatedAt = now
	return nil
}

// Cancel marks the reservation CANCELLED. ReturnDate stays nil.
func (r *Reservation) Cancel(now time.Time) error {
	if !r.IsActive() {
		return ErrReservationNotActive
	}
	r.Status = ReservationCancelled
	r.UpdatedAt = now
	return nil
}

// CanBeCancelledBy returns true if actor owns the reservation or is a librarian.
func (r *Reservation) CanBeCancelledBy(actor *User) bool {
	return actor != nil && (actor.ID == r.UserID || actor.IsLibrarian())
}

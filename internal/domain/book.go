package domain

import (
	"time"
)

// BookStatus is the lending status of a book.
type BookStatus string

const (
	// BookStatusAvailable means at least one copy can be reserved.
	BookStatusAvailable BookStatus = "AVAILABLE"

	// BookStatusReserved means every copy is tied to an active reservation.
	BookStatusReserved BookStatus = "RESERVED"

	// BookStatusUnavailable is set administratively and blocks new reservations
	// regardless of the copy count.
	BookStatusUnavailable BookStatus = "UNAVAILABLE"
)

// DefaultLanguage is applied when a book is added without a language.
const DefaultLanguage = "English"

// ParseBookStatus converts s into a BookStatus.
func ParseBookStatus(s string) (BookStatus, error) {
	switch BookStatus(s) {
	case BookStatusAvailable, BookStatusReserved, BookStatusUnavailable:
		return BookStatus(s), nil
	default:
		return "", NewDomainError(ErrInvalidBookStatus, s, "status")
	}
}

// Book is a catalog entry with a fixed number of physical copies.
//
// AvailableCopies always equals TotalCopies minus the number of ACTIVE
// reservations on the book. Status is derived from AvailableCopies unless
// a librarian marked the book UNAVAILABLE. The transition methods below
// maintain both; only the inventory coordinator may call them on a
// persisted book.
type Book struct {
	// ID is the unique identifier for the book (auto-generated).
	ID int64 `json:"id"`

	Title  string `json:"title"`
	Author string `json:"author"`

	// ISBN is optional but globally unique when present.
	ISBN *string `json:"isbn,omitempty"`

	// CategoryID references an existing category.
	CategoryID int64 `json:"category_id"`

	// TotalCopies is the number of physical copies owned (>= 1).
	TotalCopies int `json:"total_copies"`

	// AvailableCopies is the number of copies not tied to an active reservation.
	AvailableCopies int `json:"available_copies"`

	Status      BookStatus `json:"status"`
	Genre       string     `json:"genre,omitempty"`
	Language    string     `json:"language"`
	Description string     `json:"description,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`

	// Version is incremented on every persisted update and used for
	// compare-and-swap writes.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBook creates a new Book with every copy available.
func NewBook(title, author string, categoryID int64, totalCopies int) (*Book, error) {
	if totalCopies < 1 {
		return nil, ErrInvalidTotalCopies
	}
	now := time.Now().UTC()
	return &Book{
		Title:           title,
		Author:          author,
		CategoryID:      categoryID,
		TotalCopies:     totalCopies,
		AvailableCopies: totalCopies,
		Status:          BookStatusAvailable,
		Language:        DefaultLanguage,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// CanReserve returns true if a copy can be checked out right now.
func (b *Book) CanReserve() bool {
	return b.AvailableCopies > 0 && b.Status == BookStatusAvailable
}

// IsUnavailable returns true if the book was administratively withdrawn.
func (b *Book) IsUnavailable() bool {
	return b.Status == BookStatusUnavailable
}

// CheckOutCopy takes one copy for a new reservation.
func (b *Book) CheckOutCopy(now time.Time) error {
	if !b.CanReserve() {
		return ErrBookNotAvailable
	}
	b.AvailableCopies--
	b.refreshStatus()
	b.UpdatedAt = now
	return nil
}

// ReleaseCopy gives back the copy held by a reservation that was returned
// or cancelled. stillActive counts the book's other ACTIVE reservations.
// After a shrink below the active count the copy is absorbed instead, so
// AvailableCopies never exceeds TotalCopies - stillActive.
func (b *Book) ReleaseCopy(stillActive int64, now time.Time) {
	if int64(b.AvailableCopies) < int64(b.TotalCopies)-stillActive {
		b.AvailableCopies++
	}
	b.refreshStatus()
	b.UpdatedAt = now
}

// AdjustTotalCopies changes the number of owned copies. AvailableCopies
// moves by the same delta and is clamped to [0, newTotal].
func (b *Book) AdjustTotalCopies(newTotal int, now time.Time) error {
	if newTotal < 1 {
		return ErrInvalidTotalCopies
	}
	available := b.AvailableCopies + (newTotal - b.TotalCopies)
	if available < 0 {
		available = 0
	}
	if available > newTotal {
		available = newTotal
	}
	b.TotalCopies = newTotal
	b.AvailableCopies = available
	b.refreshStatus()
	b.UpdatedAt = now
	return nil
}

// SetUnavailable forces or clears the administrative UNAVAILABLE status.
// Clearing it derives the status from the copy count again.
func (b *Book) SetUnavailable(unavailable bool, now time.Time) {
	if unavailable {
		b.Status = BookStatusUnavailable
	} else {
		b.Status = statusFor(b.AvailableCopies)
	}
	b.UpdatedAt = now
}

func (b *Book) refreshStatus() {
	if b.Status == BookStatusUnavailable {
		return
	}
	b.Status = statusFor(b.AvailableCopies)
}

func statusFor(available int) BookStatus {
	if available > 0 {
		return BookStatusAvailable
	}
	return BookStatusReserved
}

// ISBNValue returns the ISBN or an empty string.
func (b *Book) ISBNValue() string {
	if b.ISBN == nil {
		return ""
	}
	return *b.ISBN
}

package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBook(t *testing.T) {
	b, err := NewBook("Dune", "Frank Herbert", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, b.AvailableCopies)
	assert.Equal(t, BookStatusAvailable, b.Status)
	assert.Equal(t, DefaultLanguage, b.Language)

	_, err = NewBook("Dune", "Frank Herbert", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidTotalCopies)
}

func TestBook_CheckOutAndRelease(t *testing.T) {
	now := time.Now()
	b, err := NewBook("Dune", "Frank Herbert", 1, 1)
	require.NoError(t, err)

	require.NoError(t, b.CheckOutCopy(now))
	assert.Zero(t, b.AvailableCopies)
	assert.Equal(t, BookStatusReserved, b.Status)
	assert.False(t, b.CanReserve())

	assert.ErrorIs(t, b.CheckOutCopy(now), ErrBookNotAvailable)

	b.ReleaseCopy(0, now)
	assert.Equal(t, 1, b.AvailableCopies)
	assert.Equal(t, BookStatusAvailable, b.Status)

	// Never above the total.
	b.ReleaseCopy(0, now)
	assert.Equal(t, 1, b.AvailableCopies)
}

func TestBook_AdjustTotalCopies(t *testing.T) {
	tests := []struct {
		name          string
		total         int
		checkedOut    int
		newTotal      int
		wantAvailable int
		wantStatus    BookStatus
		wantErr       error
	}{
		{name: "grow", total: 2, checkedOut: 1, newTotal: 4, wantAvailable: 3, wantStatus: BookStatusAvailable},
		{name: "shrink", total: 3, checkedOut: 1, newTotal: 2, wantAvailable: 1, wantStatus: BookStatusAvailable},
		{name: "shrink below active", total: 3, checkedOut: 2, newTotal: 1, wantAvailable: 0, wantStatus: BookStatusReserved},
		{name: "exactly active", total: 3, checkedOut: 2, newTotal: 2, wantAvailable: 0, wantStatus: BookStatusReserved},
		{name: "zero", total: 1, newTotal: 0, wantErr: ErrInvalidTotalCopies},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Now()
			b, err := NewBook("Dune", "Frank Herbert", 1, tt.total)
			require.NoError(t, err)
			for i := 0; i < tt.checkedOut; i++ {
				require.NoError(t, b.CheckOutCopy(now))
			}

			err = b.AdjustTotalCopies(tt.newTotal, now)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.total, b.TotalCopies)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.newTotal, b.TotalCopies)
			assert.Equal(t, tt.wantAvailable, b.AvailableCopies)
			assert.Equal(t, tt.wantStatus, b.Status)
		})
	}
}

func TestBook_ReleaseCopyAfterShrinkBelowActive(t *testing.T) {
	now := time.Now()
	b, err := NewBook("Dune", "Frank Herbert", 1, 3)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, b.CheckOutCopy(now))
	}
	require.NoError(t, b.AdjustTotalCopies(1, now))

	tests := []struct {
		stillActive   int64
		wantAvailable int
		wantStatus    BookStatus
	}{
		{stillActive: 2, wantAvailable: 0, wantStatus: BookStatusReserved},
		{stillActive: 1, wantAvailable: 0, wantStatus: BookStatusReserved},
		{stillActive: 0, wantAvailable: 1, wantStatus: BookStatusAvailable},
	}
	for _, tt := range tests {
		b.ReleaseCopy(tt.stillActive, now)
		assert.Equal(t, tt.wantAvailable, b.AvailableCopies, "still active %d", tt.stillActive)
		assert.Equal(t, tt.wantStatus, b.Status, "still active %d", tt.stillActive)
	}
}

func TestBook_UnavailableOverride(t *testing.T) {
	now := time.Now()
	b, err := NewBook("Dune", "Frank Herbert", 1, 2)
	require.NoError(t, err)

	b.SetUnavailable(true, now)
	assert.True(t, b.IsUnavailable())
	assert.False(t, b.CanReserve())

	// Copy bookkeeping keeps the override.
	b.ReleaseCopy(0, now)
	require.NoError(t, b.AdjustTotalCopies(1, now))
	assert.Equal(t, BookStatusUnavailable, b.Status)

	b.SetUnavailable(false, now)
	assert.Equal(t, BookStatusAvailable, b.Status)
}

func TestReservation_Transitions(t *testing.T) {
	now := time.Date(2025, time.January, 10, 12, 0, 0, 0, time.UTC)

	_, err := NewReservation(1, 1, 10, now)
	require.ErrorIs(t, err, ErrInvalidReservationPeriod)

	r, err := NewReservation(1, 2, 21, now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, 21), r.DueDate)
	assert.False(t, r.IsOverdue(now))
	assert.True(t, r.IsOverdue(now.AddDate(0, 0, 22)))

	later := now.Add(time.Hour)
	require.NoError(t, r.Return(later))
	assert.Equal(t, ReservationReturned, r.Status)
	require.NotNil(t, r.ReturnDate)
	assert.Equal(t, later, *r.ReturnDate)

	assert.ErrorIs(t, r.Return(later), ErrReservationNotActive)
	assert.ErrorIs(t, r.Cancel(later), ErrReservationNotActive)
	assert.False(t, r.IsOverdue(now.AddDate(1, 0, 0)))
}

func TestReservation_CanBeCancelledBy(t *testing.T) {
	r := &Reservation{UserID: 7, Status: ReservationActive}

	assert.True(t, r.CanBeCancelledBy(&User{ID: 7, Role: RoleUser}))
	assert.True(t, r.CanBeCancelledBy(&User{ID: 1, Role: RoleLibrarian}))
	assert.False(t, r.CanBeCancelledBy(&User{ID: 8, Role: RoleUser}))
	assert.False(t, r.CanBeCancelledBy(nil))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{ErrBookNotFound, ErrNotFound},
		{ErrDuplicateReservation, ErrConflict},
		{ErrBookNotAvailable, ErrNotAvailable},
		{ErrUserBlacklisted, ErrForbidden},
		{ErrReservationNotActive, ErrInvalidState},
		{NewDomainError(ErrValidation, "is required", "title"), ErrValidation},
		{errors.New("disk full"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-library/internal/domain"
)

func TestReservationService_ReserveNotifiesAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 2)

	out, err := f.reservations.ReserveBook(ctx, ReserveBookInput{Actor: f.alice, BookID: book.ID, PeriodDays: 14})
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, out.Reservation.UserID)
	assert.Equal(t, 1, out.Book.AvailableCopies)

	require.Len(t, f.notifier.created, 1)
	assert.Equal(t, out.Reservation.ID, f.notifier.created[0].ID)
}

func TestReservationService_FailedReserveDoesNotNotify(t *testing.T) {
	f := newFixture(t)
	book := f.addBook(t, 1)

	_, err := f.reservations.ReserveBook(context.Background(), ReserveBookInput{Actor: f.alice, BookID: book.ID, PeriodDays: 5})
	require.ErrorIs(t, err, domain.ErrInvalidReservationPeriod)
	assert.Empty(t, f.notifier.created)
}

func TestReservationService_ReturnRequiresLibrarian(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 1)

	out, err := f.reservations.ReserveBook(ctx, ReserveBookInput{Actor: f.alice, BookID: book.ID, PeriodDays: 7})
	require.NoError(t, err)

	_, err = f.reservations.ReturnBook(ctx, ReturnBookInput{Actor: f.alice, ReservationID: out.Reservation.ID})
	require.ErrorIs(t, err, domain.ErrLibrarianRequired)

	_, err = f.reservations.ReturnBook(ctx, ReturnBookInput{ReservationID: out.Reservation.ID})
	require.ErrorIs(t, err, domain.ErrMissingIdentity)

	ret, err := f.reservations.ReturnBook(ctx, ReturnBookInput{Actor: f.librarian, ReservationID: out.Reservation.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationReturned, ret.Reservation.Status)
	assert.Equal(t, domain.BookStatusAvailable, ret.Book.Status)
}

func TestReservationService_Cancel(t *testing.T) {
	tests := []struct {
		name    string
		actor   func(f *fixture) *domain.User
		wantErr error
	}{
		{name: "owner", actor: func(f *fixture) *domain.User { return f.alice }},
		{name: "librarian", actor: func(f *fixture) *domain.User { return f.librarian }},
		{name: "other user", actor: func(f *fixture) *domain.User { return f.bob }, wantErr: domain.ErrNotReservationOwner},
		{name: "anonymous", actor: func(f *fixture) *domain.User { return nil }, wantErr: domain.ErrMissingIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			book := f.addBook(t, 1)

			out, err := f.reservations.ReserveBook(ctx, ReserveBookInput{Actor: f.alice, BookID: book.ID, PeriodDays: 7})
			require.NoError(t, err)

			res, err := f.reservations.CancelReservation(ctx, CancelReservationInput{
				Actor:         tt.actor(f),
				ReservationID: out.Reservation.ID,
			})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, f.book(t, book.ID).AvailableCopies)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.ReservationCancelled, res.Reservation.Status)
			assert.Equal(t, 1, res.Book.AvailableCopies)
		})
	}
}

func TestReservationService_Listings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.addBook(t, 2)
	second := f.addBook(t, 2)

	for _, in := range []ReserveBookInput{
		{Actor: f.alice, BookID: first.ID, PeriodDays: 7},
		{Actor: f.alice, BookID: second.ID, PeriodDays: 14},
		{Actor: f.bob, BookID: first.ID, PeriodDays: 21},
	} {
		_, err := f.reservations.ReserveBook(ctx, in)
		require.NoError(t, err)
	}

	mine, err := f.reservations.ListUserReservations(ctx, ListUserReservationsInput{Actor: f.alice})
	require.NoError(t, err)
	require.Len(t, mine.Items, 2)
	for _, d := range mine.Items {
		assert.Equal(t, f.alice.ID, d.Reservation.UserID)
		require.NotNil(t, d.Book)
		assert.Equal(t, d.Reservation.BookID, d.Book.ID)
	}

	_, err = f.reservations.ListAllReservations(ctx, ListAllReservationsInput{Actor: f.alice})
	require.ErrorIs(t, err, domain.ErrLibrarianRequired)

	all, err := f.reservations.ListAllReservations(ctx, ListAllReservationsInput{Actor: f.librarian, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)
	assert.Len(t, all.Items, 2)
	assert.Equal(t, 2, all.Limit)

	byBook, err := f.reservations.ListAllReservations(ctx, ListAllReservationsInput{Actor: f.librarian, BookID: first.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), byBook.Total)
}

func TestReservationService_SendDueReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 3)

	short, err := f.reservations.ReserveBook(ctx, ReserveBookInput{Actor: f.alice, BookID: book.ID, PeriodDays: 7})
	require.NoError(t, err)
	_, err = f.reservations.ReserveBook(ctx, ReserveBookInput{Actor: f.bob, BookID: book.ID, PeriodDays: 21})
	require.NoError(t, err)

	_, err = f.reservations.SendDueReminders(ctx, SendDueRemindersInput{Actor: f.alice, Within: time.Hour})
	require.ErrorIs(t, err, domain.ErrLibrarianRequired)

	_, err = f.reservations.SendDueReminders(ctx, SendDueRemindersInput{Actor: f.librarian})
	require.ErrorIs(t, err, domain.ErrValidation)

	out, err := f.reservations.SendDueReminders(ctx, SendDueRemindersInput{Actor: f.librarian, Within: 8 * 24 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Queued)
	require.Len(t, f.notifier.reminders, 1)
	assert.Equal(t, short.Reservation.ID, f.notifier.reminders[0].ID)
}

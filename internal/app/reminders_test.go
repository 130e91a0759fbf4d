package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/lock"
	"github.com/prn-tf/alexander-library/internal/service"
)

func TestReminderScheduler_RunOnce(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig("memory"), zerolog.Nop(), Options{DisableNotifications: true})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	librarian := createUser(t, a, "librarian@example.com", domain.RoleLibrarian)
	alice := createUser(t, a, "alice@example.com", domain.RoleUser)
	bob := createUser(t, a, "bob@example.com", domain.RoleUser)

	category, err := a.Categories.AddCategory(ctx, service.AddCategoryInput{Actor: librarian, Name: "Fiction"})
	require.NoError(t, err)
	book, err := a.Catalog.AddBook(ctx, service.AddBookInput{
		Actor:       librarian,
		BookDetails: service.BookDetails{Title: "Dune", Author: "Frank Herbert", CategoryID: category.ID, TotalCopies: 2},
	})
	require.NoError(t, err)

	_, err = a.Reservations.ReserveBook(ctx, service.ReserveBookInput{Actor: alice, BookID: book.ID, PeriodDays: 7})
	require.NoError(t, err)
	_, err = a.Reservations.ReserveBook(ctx, service.ReserveBookInput{Actor: bob, BookID: book.ID, PeriodDays: 21})
	require.NoError(t, err)

	scheduler := NewReminderScheduler(a.Reservations, a.locker, ReminderConfig{
		Interval: time.Hour,
		Window:   8 * 24 * time.Hour,
	}, zerolog.Nop())

	t.Run("queues reservations inside the window", func(t *testing.T) {
		run := scheduler.RunOnce(ctx)
		require.NoError(t, run.Err)
		assert.False(t, run.Skipped)
		assert.Equal(t, 1, run.Queued)

		held, err := a.locker.IsHeld(ctx, lock.Keys.Reminders())
		require.NoError(t, err)
		assert.False(t, held, "lock must be released after the run")
	})

	t.Run("skips while another instance holds the lock", func(t *testing.T) {
		acquired, err := a.locker.Acquire(ctx, lock.Keys.Reminders(), time.Minute)
		require.NoError(t, err)
		require.True(t, acquired)
		defer a.locker.Release(ctx, lock.Keys.Reminders())

		run := scheduler.RunOnce(ctx)
		assert.True(t, run.Skipped)
		assert.Zero(t, run.Queued)
	})
}

func TestReminderScheduler_StartStop(t *testing.T) {
	a, err := New(context.Background(), testConfig("memory"), zerolog.Nop(), Options{})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	scheduler := NewReminderScheduler(a.Reservations, a.locker, ReminderConfig{
		Interval: 10 * time.Millisecond,
		Window:   time.Hour,
	}, zerolog.Nop())

	scheduler.Start()
	scheduler.Start()
	time.Sleep(30 * time.Millisecond)
	scheduler.Stop()
	scheduler.Stop()
}

func createUser(t *testing.T, a *App, email string, role domain.Role) *domain.User {
	t.Helper()
	out, err := a.Users.Create(context.Background(), service.CreateUserInput{Email: email, Role: role})
	require.NoError(t, err)
	return out.User
}

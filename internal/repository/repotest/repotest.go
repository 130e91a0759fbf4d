// Package repotest holds the behavioural suite every repository backend must
// pass. Backends call Run from their own tests with a constructor for fresh,
// empty repositories.
package repotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// Opener returns empty repositories. It registers its own cleanup.
type Opener func(t *testing.T) *repository.Repositories

// Run executes the suite against open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, repos *repository.Repositories)
	}{
		{"WithTxRollsBackOnError", testWithTxRollsBack},
		{"NestedTxJoinsOuter", testNestedTx},
		{"UserUniqueEmail", testUserUniqueEmail},
		{"UserUpdateAndList", testUserUpdateAndList},
		{"CategoryLifecycle", testCategoryLifecycle},
		{"CategoryDeleteInUse", testCategoryDeleteInUse},
		{"BookRoundTrip", testBookRoundTrip},
		{"BookUpdateIsCompareAndSwap", testBookCompareAndSwap},
		{"BookUniqueISBN", testBookUniqueISBN},
		{"BookListFiltersAndPaginates", testBookList},
		{"BookDeleteCascades", testBookDeleteCascades},
		{"ReservationActiveUniqueness", testReservationUniqueness},
		{"ReservationListings", testReservationListings},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

// Seed creates a reader, a category and a two-copy book.
func Seed(t *testing.T, repos *repository.Repositories) (*domain.User, *domain.Book) {
	t.Helper()
	ctx := context.Background()

	user := domain.NewUser("reader@example.com", "Reader", domain.RoleUser)
	require.NoError(t, repos.User.Create(ctx, user))

	cat := domain.NewCategory("Fiction", "")
	require.NoError(t, repos.Category.Create(ctx, cat))

	book, err := domain.NewBook("Dune", "Frank Herbert", cat.ID, 2)
	require.NoError(t, err)
	require.NoError(t, repos.Book.Create(ctx, book))
	return user, book
}

func testWithTxRollsBack(t *testing.T, repos *repository.Repositories) {
	user, book := Seed(t, repos)
	ctx := context.Background()

	boom := errors.New("boom")
	err := repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		locked, err := repos.Book.GetForUpdate(ctx, book.ID)
		require.NoError(t, err)

		res, err := domain.NewReservation(user.ID, book.ID, 7, time.Now())
		require.NoError(t, err)
		require.NoError(t, repos.Reservation.Create(ctx, res))

		require.NoError(t, locked.CheckOutCopy(time.Now()))
		require.NoError(t, repos.Book.Update(ctx, locked))
		return boom
	})
	require.ErrorIs(t, err, boom)

	stored, err := repos.Book.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.AvailableCopies)
	assert.Equal(t, int64(1), stored.Version)

	n, err := repos.Reservation.CountActiveByBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testNestedTx(t *testing.T, repos *repository.Repositories) {
	_, book := Seed(t, repos)
	ctx := context.Background()

	err := repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		return repos.Tx.WithTx(ctx, func(ctx context.Context) error {
			b, err := repos.Book.GetForUpdate(ctx, book.ID)
			if err != nil {
				return err
			}
			b.Title = "Dune (2nd ed.)"
			return repos.Book.Update(ctx, b)
		})
	})
	require.NoError(t, err)

	stored, err := repos.Book.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune (2nd ed.)", stored.Title)
}

func testUserUniqueEmail(t *testing.T, repos *repository.Repositories) {
	ctx := context.Background()
	require.NoError(t, repos.User.Create(ctx, domain.NewUser("a@example.com", "A", domain.RoleUser)))

	err := repos.User.Create(ctx, domain.NewUser("a@example.com", "Other", domain.RoleLibrarian))
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)

	_, err = repos.User.GetByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = repos.User.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func testUserUpdateAndList(t *testing.T, repos *repository.Repositories) {
	ctx := context.Background()
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		require.NoError(t, repos.User.Create(ctx, domain.NewUser(email, "", domain.RoleUser)))
	}

	u, err := repos.User.GetByEmail(ctx, "b@example.com")
	require.NoError(t, err)
	u.IsBlacklisted = true
	u.UpdatedAt = time.Now().UTC()
	require.NoError(t, repos.User.Update(ctx, u))

	stored, err := repos.User.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsBlacklisted)
	assert.Equal(t, domain.RoleUser, stored.Role)

	page, err := repos.User.List(ctx, repository.ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "a@example.com", page.Items[0].Email)

	missing := domain.NewUser("x@example.com", "", domain.RoleUser)
	missing.ID = 9999
	assert.ErrorIs(t, repos.User.Update(ctx, missing), domain.ErrUserNotFound)
}

func testCategoryLifecycle(t *testing.T, repos *repository.Repositories) {
	ctx := context.Background()
	poetry := domain.NewCategory("Poetry", "verse")
	require.NoError(t, repos.Category.Create(ctx, poetry))
	require.NoError(t, repos.Category.Create(ctx, domain.NewCategory("History", "")))

	assert.ErrorIs(t, repos.Category.Create(ctx, domain.NewCategory("poetry", "")), domain.ErrCategoryAlreadyExists)

	taken, err := repos.Category.ExistsByName(ctx, "POETRY", 0)
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = repos.Category.ExistsByName(ctx, "Poetry", poetry.ID)
	require.NoError(t, err)
	assert.False(t, taken)

	poetry.Description = "rhyme"
	require.NoError(t, repos.Category.Update(ctx, poetry))
	stored, err := repos.Category.GetByID(ctx, poetry.ID)
	require.NoError(t, err)
	assert.Equal(t, "rhyme", stored.Description)

	all, err := repos.Category.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "History", all[0].Name)

	require.NoError(t, repos.Category.Delete(ctx, poetry.ID))
	_, err = repos.Category.GetByID(ctx, poetry.ID)
	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)
	assert.ErrorIs(t, repos.Category.Delete(ctx, poetry.ID), domain.ErrCategoryNotFound)
}

func testCategoryDeleteInUse(t *testing.T, repos *repository.Repositories) {
	_, book := Seed(t, repos)
	ctx := context.Background()

	assert.ErrorIs(t, repos.Category.Delete(ctx, book.CategoryID), domain.ErrCategoryInUse)

	n, err := repos.Book.CountByCategory(ctx, book.CategoryID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func testBookRoundTrip(t *testing.T, repos *repository.Repositories) {
	_, book := Seed(t, repos)
	ctx := context.Background()

	stored, err := repos.Book.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", stored.Title)
	assert.Nil(t, stored.ISBN)
	assert.Equal(t, 2, stored.TotalCopies)
	assert.Equal(t, 2, stored.AvailableCopies)
	assert.Equal(t, domain.BookStatusAvailable, stored.Status)
	assert.Equal(t, domain.DefaultLanguage, stored.Language)
	assert.Equal(t, int64(1), stored.Version)
	assert.WithinDuration(t, book.CreatedAt, stored.CreatedAt, time.Second)

	many, err := repos.Book.GetByIDs(ctx, []int64{book.ID, 9999})
	require.NoError(t, err)
	assert.Len(t, many, 1)
	assert.Contains(t, many, book.ID)

	empty, err := repos.Book.GetByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = repos.Book.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrBookNotFound)

	orphan, err := domain.NewBook("Orphan", "Nobody", 9999, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, repos.Book.Create(ctx, orphan), domain.ErrCategoryNotFound)
}

func testBookCompareAndSwap(t *testing.T, repos *repository.Repositories) {
	_, book := Seed(t, repos)
	ctx := context.Background()

	first, err := repos.Book.GetByID(ctx, book.ID)
	require.NoError(t, err)
	second, err := repos.Book.GetByID(ctx, book.ID)
	require.NoError(t, err)

	first.Title = "Dune Messiah"
	require.NoError(t, repos.Book.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Title = "Children of Dune"
	assert.ErrorIs(t, repos.Book.Update(ctx, second), repository.ErrStaleVersion)

	gone := *first
	gone.ID = 9999
	assert.ErrorIs(t, repos.Book.Update(ctx, &gone), domain.ErrBookNotFound)
}

func testBookUniqueISBN(t *testing.T, repos *repository.Repositories) {
	_, book := Seed(t, repos)
	ctx := context.Background()

	isbn := "978-0441013593"
	book.ISBN = &isbn
	require.NoError(t, repos.Book.Update(ctx, book))

	other, err := domain.NewBook("Other", "Someone", book.CategoryID, 1)
	require.NoError(t, err)
	dup := isbn
	other.ISBN = &dup
	assert.ErrorIs(t, repos.Book.Create(ctx, other), domain.ErrISBNAlreadyExists)

	exists, err := repos.Book.ExistsByISBN(ctx, isbn, book.ID)
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = repos.Book.ExistsByISBN(ctx, isbn, 0)
	require.NoError(t, err)
	assert.True(t, exists)

	// Books without an ISBN never collide.
	for i := 0; i < 2; i++ {
		b, err := domain.NewBook("No ISBN", "Anon", book.CategoryID, 1)
		require.NoError(t, err)
		require.NoError(t, repos.Book.Create(ctx, b))
	}
}

func testBookList(t *testing.T, repos *repository.Repositories) {
	_, book := Seed(t, repos)
	ctx := context.Background()

	for _, title := range []string{"Dune Messiah", "Emma", "Children of Dune"} {
		b, err := domain.NewBook(title, "Author", book.CategoryID, 1)
		require.NoError(t, err)
		require.NoError(t, repos.Book.Create(ctx, b))
	}

	result, err := repos.Book.List(ctx, repository.BookFilter{Title: "dune"}, repository.ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Total)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "Dune", result.Items[0].Title)

	result, err = repos.Book.List(ctx, repository.BookFilter{Title: "dune"}, repository.ListOptions{Offset: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "Children of Dune", result.Items[0].Title)

	result, err = repos.Book.List(ctx, repository.BookFilter{Author: "HERBERT", CategoryID: book.CategoryID}, repository.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)
	assert.Equal(t, repository.DefaultPageSize, result.Limit)

	result, err = repos.Book.List(ctx, repository.BookFilter{Title: "%"}, repository.ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.Total)
}

func testBookDeleteCascades(t *testing.T, repos *repository.Repositories) {
	user, book := Seed(t, repos)
	ctx := context.Background()

	res, err := domain.NewReservation(user.ID, book.ID, 7, time.Now())
	require.NoError(t, err)
	require.NoError(t, repos.Reservation.Create(ctx, res))
	require.NoError(t, res.Cancel(time.Now()))
	require.NoError(t, repos.Reservation.UpdateStatus(ctx, res, domain.ReservationActive))

	require.NoError(t, repos.Book.Delete(ctx, book.ID))
	_, err = repos.Reservation.GetByID(ctx, res.ID)
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
	assert.ErrorIs(t, repos.Book.Delete(ctx, book.ID), domain.ErrBookNotFound)
}

func testReservationUniqueness(t *testing.T, repos *repository.Repositories) {
	user, book := Seed(t, repos)
	ctx := context.Background()
	now := time.Now().UTC()

	res, err := domain.NewReservation(user.ID, book.ID, 14, now)
	require.NoError(t, err)
	require.NoError(t, repos.Reservation.Create(ctx, res))

	exists, err := repos.Reservation.ExistsActive(ctx, user.ID, book.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	dup, err := domain.NewReservation(user.ID, book.ID, 7, now)
	require.NoError(t, err)
	assert.ErrorIs(t, repos.Reservation.Create(ctx, dup), domain.ErrDuplicateReservation)

	require.NoError(t, res.Return(now))
	require.NoError(t, repos.Reservation.UpdateStatus(ctx, res, domain.ReservationActive))
	assert.ErrorIs(t, repos.Reservation.UpdateStatus(ctx, res, domain.ReservationActive), repository.ErrStaleVersion)

	stored, err := repos.Reservation.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationReturned, stored.Status)
	require.NotNil(t, stored.ReturnDate)
	assert.WithinDuration(t, now, *stored.ReturnDate, time.Second)
	assert.WithinDuration(t, res.DueDate, stored.DueDate, time.Second)

	// A new active reservation is allowed once the previous one ended.
	require.NoError(t, repos.Reservation.Create(ctx, dup))

	missing, err := domain.NewReservation(user.ID, 9999, 7, now)
	require.NoError(t, err)
	assert.ErrorIs(t, repos.Reservation.Create(ctx, missing), domain.ErrBookNotFound)
}

func testReservationListings(t *testing.T, repos *repository.Repositories) {
	user, book := Seed(t, repos)
	ctx := context.Background()
	now := time.Now().UTC()

	other := domain.NewUser("other@example.com", "Other", domain.RoleUser)
	require.NoError(t, repos.User.Create(ctx, other))

	mine, err := domain.NewReservation(user.ID, book.ID, 7, now)
	require.NoError(t, err)
	require.NoError(t, repos.Reservation.Create(ctx, mine))
	theirs, err := domain.NewReservation(other.ID, book.ID, 21, now)
	require.NoError(t, err)
	require.NoError(t, repos.Reservation.Create(ctx, theirs))

	n, err := repos.Reservation.CountActiveByBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	byUser, err := repos.Reservation.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, mine.ID, byUser[0].ID)

	all, err := repos.Reservation.List(ctx, repository.ReservationFilter{BookID: book.ID}, repository.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)
	require.Len(t, all.Items, 2)
	assert.Equal(t, theirs.ID, all.Items[0].ID, "newest first")

	filtered, err := repos.Reservation.List(ctx, repository.ReservationFilter{UserID: other.ID, Status: domain.ReservationActive}, repository.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), filtered.Total)

	due, err := repos.Reservation.ListActiveDueBefore(ctx, now.Add(8*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, mine.ID, due[0].ID)
}

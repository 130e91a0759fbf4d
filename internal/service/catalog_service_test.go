package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-library/internal/cache/memory"
	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

func validBook(categoryID int64) BookDetails {
	return BookDetails{
		Title:       "The Left Hand of Darkness",
		Author:      "Ursula K. Le Guin",
		ISBN:        "978-0441478125",
		CategoryID:  categoryID,
		TotalCopies: 2,
	}
}

func TestCatalogService_AddBook(t *testing.T) {
	tests := []struct {
		name    string
		actor   func(f *fixture) *domain.User
		details func(f *fixture) BookDetails
		wantErr error
	}{
		{
			name:    "success",
			actor:   func(f *fixture) *domain.User { return f.librarian },
			details: func(f *fixture) BookDetails { return validBook(f.category.ID) },
		},
		{
			name:    "regular user",
			actor:   func(f *fixture) *domain.User { return f.alice },
			details: func(f *fixture) BookDetails { return validBook(f.category.ID) },
			wantErr: domain.ErrLibrarianRequired,
		},
		{
			name:  "missing title",
			actor: func(f *fixture) *domain.User { return f.librarian },
			details: func(f *fixture) BookDetails {
				d := validBook(f.category.ID)
				d.Title = "   "
				return d
			},
			wantErr: domain.ErrValidation,
		},
		{
			name:  "zero copies",
			actor: func(f *fixture) *domain.User { return f.librarian },
			details: func(f *fixture) BookDetails {
				d := validBook(f.category.ID)
				d.TotalCopies = 0
				return d
			},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "unknown category",
			actor:   func(f *fixture) *domain.User { return f.librarian },
			details: func(f *fixture) BookDetails { return validBook(999) },
			wantErr: domain.ErrCategoryNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			book, err := f.catalog.AddBook(context.Background(), AddBookInput{
				Actor:       tt.actor(f),
				BookDetails: tt.details(f),
			})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, book.ID)
			assert.Equal(t, 2, book.AvailableCopies)
			assert.Equal(t, domain.BookStatusAvailable, book.Status)
			assert.Equal(t, domain.DefaultLanguage, book.Language)
			assert.Equal(t, "978-0441478125", book.ISBNValue())
		})
	}
}

func TestCatalogService_DuplicateISBN(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.catalog.AddBook(ctx, AddBookInput{Actor: f.librarian, BookDetails: validBook(f.category.ID)})
	require.NoError(t, err)

	_, err = f.catalog.AddBook(ctx, AddBookInput{Actor: f.librarian, BookDetails: validBook(f.category.ID)})
	require.ErrorIs(t, err, domain.ErrISBNAlreadyExists)

	noISBN := validBook(f.category.ID)
	noISBN.ISBN = ""
	for i := 0; i < 2; i++ {
		book, err := f.catalog.AddBook(ctx, AddBookInput{Actor: f.librarian, BookDetails: noISBN})
		require.NoError(t, err)
		assert.Nil(t, book.ISBN)
	}
}

func TestCatalogService_UpdateBookKeepsInventoryConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	book, err := f.catalog.AddBook(ctx, AddBookInput{Actor: f.librarian, BookDetails: validBook(f.category.ID)})
	require.NoError(t, err)

	_, err = f.reservations.ReserveBook(ctx, ReserveBookInput{Actor: f.alice, BookID: book.ID, PeriodDays: 7})
	require.NoError(t, err)

	details := validBook(f.category.ID)
	details.Title = "Left Hand of Darkness"
	details.Language = "Spanish"
	details.TotalCopies = 1

	updated, err := f.catalog.UpdateBook(ctx, UpdateBookInput{Actor: f.librarian, BookID: book.ID, BookDetails: details})
	require.NoError(t, err)
	assert.Equal(t, "Left Hand of Darkness", updated.Title)
	assert.Equal(t, "Spanish", updated.Language)
	assert.Equal(t, 1, updated.TotalCopies)
	assert.Zero(t, updated.AvailableCopies)
	assert.Equal(t, domain.BookStatusReserved, updated.Status)
	f.requireConsistent(t, book.ID)

	other := validBook(f.category.ID)
	other.ISBN = "111"
	second, err := f.catalog.AddBook(ctx, AddBookInput{Actor: f.librarian, BookDetails: other})
	require.NoError(t, err)

	other.ISBN = "978-0441478125"
	_, err = f.catalog.UpdateBook(ctx, UpdateBookInput{Actor: f.librarian, BookID: second.ID, BookDetails: other})
	require.ErrorIs(t, err, domain.ErrISBNAlreadyExists)

	_, err = f.catalog.UpdateBook(ctx, UpdateBookInput{Actor: f.librarian, BookID: 999, BookDetails: validBook(f.category.ID)})
	require.ErrorIs(t, err, domain.ErrBookNotFound)
}

func TestCatalogService_SetBookStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 1)

	updated, err := f.catalog.SetBookStatus(ctx, SetBookStatusInput{Actor: f.librarian, BookID: book.ID, Status: domain.BookStatusUnavailable})
	require.NoError(t, err)
	assert.Equal(t, domain.BookStatusUnavailable, updated.Status)

	_, err = f.reservations.ReserveBook(ctx, ReserveBookInput{Actor: f.alice, BookID: book.ID, PeriodDays: 7})
	require.ErrorIs(t, err, domain.ErrBookNotAvailable)

	// Asking for RESERVED clears the override; the copy count decides.
	updated, err = f.catalog.SetBookStatus(ctx, SetBookStatusInput{Actor: f.librarian, BookID: book.ID, Status: domain.BookStatusReserved})
	require.NoError(t, err)
	assert.Equal(t, domain.BookStatusAvailable, updated.Status)

	_, err = f.catalog.SetBookStatus(ctx, SetBookStatusInput{Actor: f.librarian, BookID: book.ID, Status: "LOST"})
	require.ErrorIs(t, err, domain.ErrInvalidBookStatus)

	_, err = f.catalog.SetBookStatus(ctx, SetBookStatusInput{Actor: f.alice, BookID: book.ID, Status: domain.BookStatusUnavailable})
	require.ErrorIs(t, err, domain.ErrLibrarianRequired)
}

func TestCatalogService_ListBooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, d := range []BookDetails{
		{Title: "Dune", Author: "Frank Herbert", CategoryID: f.category.ID, TotalCopies: 1, Genre: "Space Opera"},
		{Title: "Dune Messiah", Author: "Frank Herbert", CategoryID: f.category.ID, TotalCopies: 1},
		{Title: "Solaris", Author: "Stanislaw Lem", CategoryID: f.category.ID, TotalCopies: 1, Language: "Polish"},
	} {
		_, err := f.catalog.AddBook(ctx, AddBookInput{Actor: f.librarian, BookDetails: d})
		require.NoError(t, err)
	}

	out, err := f.catalog.ListBooks(ctx, ListBooksInput{Filter: repository.BookFilter{Title: "dune"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Total)

	out, err = f.catalog.ListBooks(ctx, ListBooksInput{Filter: repository.BookFilter{Language: "polish"}})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "Solaris", out.Items[0].Title)

	out, err = f.catalog.ListBooks(ctx, ListBooksInput{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Total)
	assert.Len(t, out.Items, 1)

	_, err = f.catalog.ListBooks(ctx, ListBooksInput{Filter: repository.BookFilter{Status: "BROKEN"}})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestCategoryService_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cache := memory.NewCache(time.Minute)
	t.Cleanup(cache.Stop)
	categories := NewCategoryService(f.repos, cache, time.Minute, zerolog.Nop())

	cat, err := categories.AddCategory(ctx, AddCategoryInput{Actor: f.librarian, Name: " Poetry "})
	require.NoError(t, err)
	assert.Equal(t, "Poetry", cat.Name)

	_, err = categories.AddCategory(ctx, AddCategoryInput{Actor: f.librarian, Name: "Poetry"})
	require.ErrorIs(t, err, domain.ErrCategoryAlreadyExists)

	_, err = categories.AddCategory(ctx, AddCategoryInput{Actor: f.alice, Name: "Drama"})
	require.ErrorIs(t, err, domain.ErrLibrarianRequired)

	got, err := categories.GetCategory(ctx, cat.ID)
	require.NoError(t, err)
	assert.Equal(t, "Poetry", got.Name)
	assert.Equal(t, 1, cache.Len())

	_, err = categories.UpdateCategory(ctx, UpdateCategoryInput{Actor: f.librarian, CategoryID: cat.ID, Name: "Verse"})
	require.NoError(t, err)
	assert.Zero(t, cache.Len())

	got, err = categories.GetCategory(ctx, cat.ID)
	require.NoError(t, err)
	assert.Equal(t, "Verse", got.Name)

	_, err = categories.UpdateCategory(ctx, UpdateCategoryInput{Actor: f.librarian, CategoryID: cat.ID, Name: f.category.Name})
	require.ErrorIs(t, err, domain.ErrCategoryAlreadyExists)

	b, err := domain.NewBook("Leaves of Grass", "Walt Whitman", cat.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.repos.Book.Create(ctx, b))

	err = categories.DeleteCategory(ctx, DeleteCategoryInput{Actor: f.librarian, CategoryID: cat.ID})
	require.ErrorIs(t, err, domain.ErrCategoryInUse)

	require.NoError(t, f.coordinator.DeleteBook(ctx, b.ID))
	require.NoError(t, categories.DeleteCategory(ctx, DeleteCategoryInput{Actor: f.librarian, CategoryID: cat.ID}))

	exists, err := categories.Exists(ctx, cat.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUserService_SetBlacklisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.users.SetBlacklisted(ctx, SetBlacklistedInput{Actor: f.alice, UserID: f.bob.ID, Blacklisted: true})
	require.ErrorIs(t, err, domain.ErrLibrarianRequired)

	other := f.createUser(t, "second-librarian@example.com", domain.RoleLibrarian)
	_, err = f.users.SetBlacklisted(ctx, SetBlacklistedInput{Actor: f.librarian, UserID: other.ID, Blacklisted: true})
	require.ErrorIs(t, err, domain.ErrCannotBlacklistLibrarian)

	_, err = f.users.SetBlacklisted(ctx, SetBlacklistedInput{Actor: f.librarian, UserID: 999, Blacklisted: true})
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	bob, err := f.users.SetBlacklisted(ctx, SetBlacklistedInput{Actor: f.librarian, UserID: f.bob.ID, Blacklisted: true})
	require.NoError(t, err)
	assert.True(t, bob.IsBlacklisted)

	book := f.addBook(t, 1)
	_, err = f.reservations.ReserveBook(ctx, ReserveBookInput{Actor: bob, BookID: book.ID, PeriodDays: 7})
	require.ErrorIs(t, err, domain.ErrUserBlacklisted)
	assert.Equal(t, 1, f.book(t, book.ID).AvailableCopies)
}

func TestUserService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.users.Create(ctx, CreateUserInput{Email: " Carol@Example.com ", Name: "Carol"})
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", out.User.Email)
	assert.Equal(t, domain.RoleUser, out.User.Role)

	_, err = f.users.Create(ctx, CreateUserInput{Email: "carol@example.com"})
	require.ErrorIs(t, err, domain.ErrUserAlreadyExists)

	_, err = f.users.Create(ctx, CreateUserInput{Email: "not-an-email"})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.users.Create(ctx, CreateUserInput{Email: "dave@example.com", Role: "ADMIN"})
	require.ErrorIs(t, err, domain.ErrValidation)

	list, err := f.users.List(ctx, ListUsersInput{Actor: f.librarian})
	require.NoError(t, err)
	assert.Equal(t, int64(4), list.Total)
}

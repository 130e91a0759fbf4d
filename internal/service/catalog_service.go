package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// CatalogService maintains books. Every write that touches copy counts or
// status goes through the InventoryCoordinator.
type CatalogService struct {
	coordinator *InventoryCoordinator
	books       repository.BookRepository
	categories  CategoryLookup
	logger      zerolog.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(
	coordinator *InventoryCoordinator,
	repos *repository.Repositories,
	categories CategoryLookup,
	logger zerolog.Logger,
) *CatalogService {
	return &CatalogService{
		coordinator: coordinator,
		books:       repos.Book,
		categories:  categories,
		logger:      logger.With().Str("service", "catalog").Logger(),
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// BookDetails holds the descriptive fields of a book.
type BookDetails struct {
	Title       string `validate:"required,max=255"`
	Author      string `validate:"required,max=255"`
	ISBN        string `validate:"max=32"`
	CategoryID  int64  `validate:"gt=0"`
	TotalCopies int    `validate:"gte=1"`
	Genre       string `validate:"max=100"`
	Language    string `validate:"max=50"`
	Description string `validate:"max=4000"`
	ImageURL    string `validate:"omitempty,url,max=1024"`
}

// AddBookInput contains the data needed to add a book.
type AddBookInput struct {
	Actor *domain.User `validate:"-"`
	BookDetails
}

// UpdateBookInput contains the data needed to replace a book's details.
type UpdateBookInput struct {
	Actor  *domain.User `validate:"-"`
	BookID int64        `validate:"gt=0"`
	BookDetails
}

// SetBookStatusInput contains the data needed to change a book's status.
type SetBookStatusInput struct {
	Actor  *domain.User
	BookID int64
	Status domain.BookStatus
}

// DeleteBookInput contains the data needed to delete a book.
type DeleteBookInput struct {
	Actor  *domain.User
	BookID int64
}

// ListBooksInput contains the filter and page of a catalog listing.
type ListBooksInput struct {
	Filter repository.BookFilter
	Limit  int
	Offset int
}

// ListBooksOutput contains a page of books.
type ListBooksOutput struct {
	Items  []*domain.Book
	Total  int64
	Limit  int
	Offset int
}

// =============================================================================
// Service Methods
// =============================================================================

// AddBook adds a book with every copy available. Librarians only.
func (s *CatalogService) AddBook(ctx context.Context, input AddBookInput) (*domain.Book, error) {
	if err := requireLibrarian(input.Actor); err != nil {
		return nil, err
	}
	input.BookDetails = input.BookDetails.normalized()
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, input.BookDetails, 0); err != nil {
		return nil, err
	}

	book, err := domain.NewBook(input.Title, input.Author, input.CategoryID, input.TotalCopies)
	if err != nil {
		return nil, err
	}
	input.BookDetails.applyTo(book)

	if err := s.books.Create(ctx, book); err != nil {
		return nil, s.passOrWrap(err, "failed to create book")
	}

	s.logger.Info().
		Int64("book_id", book.ID).
		Str("title", book.Title).
		Int("total_copies", book.TotalCopies).
		Msg("book added")

	return book, nil
}

// UpdateBook replaces a book's details and adjusts its copy count in one
// unit. Librarians only.
func (s *CatalogService) UpdateBook(ctx context.Context, input UpdateBookInput) (*domain.Book, error) {
	if err := requireLibrarian(input.Actor); err != nil {
		return nil, err
	}
	input.BookDetails = input.BookDetails.normalized()
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, input.BookDetails, input.BookID); err != nil {
		return nil, err
	}

	total := input.TotalCopies
	details := input.BookDetails
	return s.coordinator.UpdateBook(ctx, input.BookID, &total, func(b *domain.Book) error {
		details.applyTo(b)
		return nil
	})
}

// SetBookStatus forces a book UNAVAILABLE, or clears that state when
// AVAILABLE or RESERVED is requested; the copy count then decides which of
// the two applies. Librarians only.
func (s *CatalogService) SetBookStatus(ctx context.Context, input SetBookStatusInput) (*domain.Book, error) {
	if err := requireLibrarian(input.Actor); err != nil {
		return nil, err
	}
	if _, err := domain.ParseBookStatus(string(input.Status)); err != nil {
		return nil, err
	}
	return s.coordinator.SetAvailability(ctx, input.BookID, input.Status == domain.BookStatusUnavailable)
}

// DeleteBook removes a book without ACTIVE reservations. Librarians only.
func (s *CatalogService) DeleteBook(ctx context.Context, input DeleteBookInput) error {
	if err := requireLibrarian(input.Actor); err != nil {
		return err
	}
	return s.coordinator.DeleteBook(ctx, input.BookID)
}

// GetBook returns a book by ID.
func (s *CatalogService) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	book, err := s.books.GetByID(ctx, id)
	if err != nil {
		return nil, s.passOrWrap(err, "failed to get book")
	}
	return book, nil
}

// ListBooks returns a filtered page of the catalog.
func (s *CatalogService) ListBooks(ctx context.Context, input ListBooksInput) (*ListBooksOutput, error) {
	if input.Filter.Status != "" {
		if _, err := domain.ParseBookStatus(string(input.Filter.Status)); err != nil {
			return nil, err
		}
	}
	opts := repository.ListOptions{Limit: input.Limit, Offset: input.Offset}.Normalize()

	page, err := s.books.List(ctx, input.Filter, opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list books")
		return nil, internalError(err)
	}

	return &ListBooksOutput{
		Items:  page.Items,
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}, nil
}

// checkReferences verifies the category exists and the ISBN is unused by
// any book other than excludeID.
func (s *CatalogService) checkReferences(ctx context.Context, d BookDetails, excludeID int64) error {
	ok, err := s.categories.Exists(ctx, d.CategoryID)
	if err != nil {
		return s.passOrWrap(err, "failed to look up category")
	}
	if !ok {
		return domain.ErrCategoryNotFound
	}

	if d.ISBN == "" {
		return nil
	}
	taken, err := s.books.ExistsByISBN(ctx, d.ISBN, excludeID)
	if err != nil {
		s.logger.Error().Err(err).Str("isbn", d.ISBN).Msg("failed to check isbn")
		return internalError(err)
	}
	if taken {
		return domain.ErrISBNAlreadyExists
	}
	return nil
}

func (s *CatalogService) passOrWrap(err error, msg string) error {
	if isDomainError(err) || errors.Is(err, ErrInternalError) {
		return err
	}
	s.logger.Error().Err(err).Msg(msg)
	return internalError(err)
}

func (d BookDetails) normalized() BookDetails {
	d.Title = strings.TrimSpace(d.Title)
	d.Author = strings.TrimSpace(d.Author)
	d.ISBN = strings.TrimSpace(d.ISBN)
	d.Genre = strings.TrimSpace(d.Genre)
	d.Language = strings.TrimSpace(d.Language)
	if d.Language == "" {
		d.Language = domain.DefaultLanguage
	}
	return d
}

// applyTo copies the descriptive fields onto b. Copy counts are left alone.
func (d BookDetails) applyTo(b *domain.Book) {
	b.Title = d.Title
	b.Author = d.Author
	b.CategoryID = d.CategoryID
	b.Genre = d.Genre
	b.Language = d.Language
	b.Description = d.Description
	b.ImageURL = d.ImageURL
	if d.ISBN == "" {
		b.ISBN = nil
	} else {
		isbn := d.ISBN
		b.ISBN = &isbn
	}
}

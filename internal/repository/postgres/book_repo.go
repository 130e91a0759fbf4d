package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// bookRepository implements repository.BookRepository for PostgreSQL.
type bookRepository struct {
	db *DB
}

type bookRow struct {
	ID              int64     `db:"id"`
	Title           string    `db:"title"`
	Author          string    `db:"author"`
	ISBN            *string   `db:"isbn"`
	CategoryID      int64     `db:"category_id"`
	TotalCopies     int       `db:"total_copies"`
	AvailableCopies int       `db:"available_copies"`
	Status          string    `db:"status"`
	Genre           string    `db:"genre"`
	Language        string    `db:"language"`
	Description     string    `db:"description"`
	ImageURL        string    `db:"image_url"`
	Version         int64     `db:"version"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

const bookColumns = `id, title, author, isbn, category_id, total_copies, available_copies,
	status, genre, language, description, image_url, version, created_at, updated_at`

func (row bookRow) toDomain() *domain.Book {
	return &domain.Book{
		ID:              row.ID,
		Title:           row.Title,
		Author:          row.Author,
		ISBN:            row.ISBN,
		CategoryID:      row.CategoryID,
		TotalCopies:     row.TotalCopies,
		AvailableCopies: row.AvailableCopies,
		Status:          domain.BookStatus(row.Status),
		Genre:           row.Genre,
		Language:        row.Language,
		Description:     row.Description,
		ImageURL:        row.ImageURL,
		Version:         row.Version,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

func collectBooks(rows pgx.Rows) ([]*domain.Book, error) {
	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[bookRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan books: %w", err)
	}
	items := make([]*domain.Book, 0, len(collected))
	for _, row := range collected {
		items = append(items, row.toDomain())
	}
	return items, nil
}

// isbnArg stores empty ISBNs as NULL.
func isbnArg(isbn *string) *string {
	if isbn == nil || *isbn == "" {
		return nil
	}
	return isbn
}

func mapBookWriteError(op string, err error) error {
	switch {
	case isUniqueViolation(err):
		return domain.ErrISBNAlreadyExists
	case isForeignKeyViolation(err):
		return domain.ErrCategoryNotFound
	}
	return fmt.Errorf("failed to %s book: %w", op, err)
}

// Create creates a new book. Version starts at 1.
func (r *bookRepository) Create(ctx context.Context, book *domain.Book) error {
	query := `
		INSERT INTO books (title, author, isbn, category_id, total_copies, available_copies,
			status, genre, language, description, image_url, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13)
		RETURNING id
	`

	err := r.db.q(ctx).QueryRow(ctx, query,
		book.Title,
		book.Author,
		isbnArg(book.ISBN),
		book.CategoryID,
		book.TotalCopies,
		book.AvailableCopies,
		string(book.Status),
		book.Genre,
		book.Language,
		book.Description,
		book.ImageURL,
		book.CreatedAt,
		book.UpdatedAt,
	).Scan(&book.ID)
	if err != nil {
		return mapBookWriteError("create", err)
	}
	book.Version = 1
	return nil
}

// GetByID retrieves a book by ID.
func (r *bookRepository) GetByID(ctx context.Context, id int64) (*domain.Book, error) {
	return r.getOne(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id)
}

// GetForUpdate retrieves a book and locks its row until the transaction ends.
func (r *bookRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Book, error) {
	return r.getOne(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1 FOR UPDATE`, id)
}

func (r *bookRepository) getOne(ctx context.Context, query string, id int64) (*domain.Book, error) {
	rows, err := r.db.q(ctx).Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[bookRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return row.toDomain(), nil
}

// GetByIDs retrieves several books at once.
func (r *bookRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Book, error) {
	out := make(map[int64]*domain.Book, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.q(ctx).Query(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get books: %w", err)
	}
	items, err := collectBooks(rows)
	if err != nil {
		return nil, err
	}
	for _, b := range items {
		out[b.ID] = b
	}
	return out, nil
}

// Update writes book if the stored version still matches.
func (r *bookRepository) Update(ctx context.Context, book *domain.Book) error {
	query := `
		UPDATE books
		SET title = $1, author = $2, isbn = $3, category_id = $4, total_copies = $5,
			available_copies = $6, status = $7, genre = $8, language = $9,
			description = $10, image_url = $11, version = version + 1, updated_at = $12
		WHERE id = $13 AND version = $14
	`

	q := r.db.q(ctx)
	tag, err := q.Exec(ctx, query,
		book.Title,
		book.Author,
		isbnArg(book.ISBN),
		book.CategoryID,
		book.TotalCopies,
		book.AvailableCopies,
		string(book.Status),
		book.Genre,
		book.Language,
		book.Description,
		book.ImageURL,
		book.UpdatedAt,
		book.ID,
		book.Version,
	)
	if err != nil {
		return mapBookWriteError("update", err)
	}
	if tag.RowsAffected() == 0 {
		return staleOrMissing(ctx, q, "books", book.ID, domain.ErrBookNotFound)
	}

	book.Version++
	return nil
}

// staleOrMissing distinguishes a lost conditional update from a missing row.
func staleOrMissing(ctx context.Context, q Querier, table string, id int64, notFound error) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check %s row: %w", table, err)
	}
	if !exists {
		return notFound
	}
	return repository.ErrStaleVersion
}

// Delete deletes a book. Its reservations are removed by ON DELETE CASCADE.
func (r *bookRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.q(ctx).Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookNotFound
	}
	return nil
}

// ExistsByISBN checks if another book has the ISBN.
func (r *bookRepository) ExistsByISBN(ctx context.Context, isbn string, excludeID int64) (bool, error) {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return false, nil
	}
	var exists bool
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM books WHERE isbn = $1 AND id <> $2)`,
		isbn, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check ISBN: %w", err)
	}
	return exists, nil
}

// CountByCategory returns the number of books in a category.
func (r *bookRepository) CountByCategory(ctx context.Context, categoryID int64) (int64, error) {
	var n int64
	if err := r.db.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM books WHERE category_id = $1`, categoryID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count books: %w", err)
	}
	return n, nil
}

// List returns books matching filter, ordered by id.
func (r *bookRepository) List(ctx context.Context, filter repository.BookFilter, opts repository.ListOptions) (*repository.ListResult[domain.Book], error) {
	opts = opts.Normalize()
	page, count, err := r.db.queries.Books(filter, opts)
	if err != nil {
		return nil, err
	}

	q := r.db.q(ctx)
	var total int64
	if err := q.QueryRow(ctx, count.SQL, count.Args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count books: %w", err)
	}

	rows, err := q.Query(ctx, page.SQL, page.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	items, err := collectBooks(rows)
	if err != nil {
		return nil, err
	}

	return &repository.ListResult[domain.Book]{
		Items:  items,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

var _ repository.BookRepository = (*bookRepository)(nil)

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// bookRepository implements repository.BookRepository for SQLite.
type bookRepository struct {
	db *DB
}

type bookRow struct {
	ID              int64          `db:"id"`
	Title           string         `db:"title"`
	Author          string         `db:"author"`
	ISBN            sql.NullString `db:"isbn"`
	CategoryID      int64          `db:"category_id"`
	TotalCopies     int            `db:"total_copies"`
	AvailableCopies int            `db:"available_copies"`
	Status          string         `db:"status"`
	Genre           string         `db:"genre"`
	Language        string         `db:"language"`
	Description     string         `db:"description"`
	ImageURL        string         `db:"image_url"`
	Version         int64          `db:"version"`
	CreatedAt       string         `db:"created_at"`
	UpdatedAt       string         `db:"updated_at"`
}

const bookColumns = `id, title, author, isbn, category_id, total_copies, available_copies,
	status, genre, language, description, image_url, version, created_at, updated_at`

func (row bookRow) toDomain() (*domain.Book, error) {
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime(row.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &domain.Book{
		ID:              row.ID,
		Title:           row.Title,
		Author:          row.Author,
		ISBN:            stringPtr(row.ISBN),
		CategoryID:      row.CategoryID,
		TotalCopies:     row.TotalCopies,
		AvailableCopies: row.AvailableCopies,
		Status:          domain.BookStatus(row.Status),
		Genre:           row.Genre,
		Language:        row.Language,
		Description:     row.Description,
		ImageURL:        row.ImageURL,
		Version:         row.Version,
		CreatedAt:       created,
		UpdatedAt:       updated,
	}, nil
}

func booksFromRows(rows []bookRow) ([]*domain.Book, error) {
	items := make([]*domain.Book, 0, len(rows))
	for _, row := range rows {
		b, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, nil
}

// Create creates a new book. Version starts at 1.
func (r *bookRepository) Create(ctx context.Context, book *domain.Book) error {
	query := `
		INSERT INTO books (title, author, isbn, category_id, total_copies, available_copies,
			status, genre, language, description, image_url, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`

	result, err := r.db.q(ctx).ExecContext(ctx, query,
		book.Title,
		book.Author,
		nullString(book.ISBN),
		book.CategoryID,
		book.TotalCopies,
		book.AvailableCopies,
		string(book.Status),
		book.Genre,
		book.Language,
		book.Description,
		book.ImageURL,
		formatTime(book.CreatedAt),
		formatTime(book.UpdatedAt),
	)
	if err != nil {
		return mapBookWriteError("create", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	book.ID = id
	book.Version = 1
	return nil
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

// GetByID retrieves a book by ID.
func (r *bookRepository) GetByID(ctx context.Context, id int64) (*domain.Book, error) {
	var row bookRow
	err := r.db.q(ctx).GetContext(ctx, &row, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return row.toDomain()
}

// GetForUpdate is GetByID. Transactions begin IMMEDIATE, so the database
// write lock is already held.
func (r *bookRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Book, error) {
	return r.GetByID(ctx, id)
}

// GetByIDs retrieves several books at once.
func (r *bookRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Book, error) {
	out := make(map[int64]*domain.Book, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT `+bookColumns+` FROM books WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build book lookup: %w", err)
	}

	var rows []bookRow
	if err := r.db.q(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get books: %w", err)
	}
	for _, row := range rows {
		b, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out[b.ID] = b
	}
	return out, nil
}

// Update writes book if the stored version still matches.
func (r *bookRepository) Update(ctx context.Context, book *domain.Book) error {
	query := `
		UPDATE books
		SET title = ?, author = ?, isbn = ?, category_id = ?, total_copies = ?,
			available_copies = ?, status = ?, genre = ?, language = ?,
			description = ?, image_url = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	q := r.db.q(ctx)
	result, err := q.ExecContext(ctx, query,
		book.Title,
		book.Author,
		nullString(book.ISBN),
		book.CategoryID,
		book.TotalCopies,
		book.AvailableCopies,
		string(book.Status),
		book.Genre,
		book.Language,
		book.Description,
		book.ImageURL,
		formatTime(book.UpdatedAt),
		book.ID,
		book.Version,
	)
	if err != nil {
		return mapBookWriteError("update", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return staleOrMissing(ctx, q, "books", book.ID, domain.ErrBookNotFound)
	}

	book.Version++
	return nil
}

// staleOrMissing distinguishes a lost conditional update from a missing row.
func staleOrMissing(ctx context.Context, q querier, table string, id int64, notFound error) error {
	var exists bool
	if err := q.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = ?)`, id); err != nil {
		return fmt.Errorf("failed to check %s row: %w", table, err)
	}
	if !exists {
		return notFound
	}
	return repository.ErrStaleVersion
}

// Delete deletes a book. Its reservations are removed by ON DELETE CASCADE.
func (r *bookRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.q(ctx).ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
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
	err := r.db.q(ctx).GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM books WHERE isbn = ? AND id <> ?)`,
		isbn, excludeID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to check ISBN: %w", err)
	}
	return exists, nil
}

// CountByCategory returns the number of books in a category.
func (r *bookRepository) CountByCategory(ctx context.Context, categoryID int64) (int64, error) {
	var n int64
	if err := r.db.q(ctx).GetContext(ctx, &n, `SELECT COUNT(*) FROM books WHERE category_id = ?`, categoryID); err != nil {
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
	if err := q.GetContext(ctx, &total, count.SQL, count.Args...); err != nil {
		return nil, fmt.Errorf("failed to count books: %w", err)
	}

	var rows []bookRow
	if err := q.SelectContext(ctx, &rows, page.SQL, page.Args...); err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	items, err := booksFromRows(rows)
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

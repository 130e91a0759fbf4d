package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// reservationRepository implements repository.ReservationRepository for SQLite.
type reservationRepository struct {
	db *DB
}

type reservationRow struct {
	ID              int64          `db:"id"`
	UserID          int64          `db:"user_id"`
	BookID          int64          `db:"book_id"`
	ReservationDate string         `db:"reservation_date"`
	DueDate         string         `db:"due_date"`
	ReturnDate      sql.NullString `db:"return_date"`
	Status          string         `db:"status"`
	CreatedAt       string         `db:"created_at"`
	UpdatedAt       string         `db:"updated_at"`
}

const reservationColumns = `id, user_id, book_id, reservation_date, due_date, return_date, status, created_at, updated_at`

func (row reservationRow) toDomain() (*domain.Reservation, error) {
	res := &domain.Reservation{
		ID:     row.ID,
		UserID: row.UserID,
		BookID: row.BookID,
		Status: domain.ReservationStatus(row.Status),
	}
	var err error
	if res.ReservationDate, err = parseTime(row.ReservationDate); err != nil {
		return nil, err
	}
	if res.DueDate, err = parseTime(row.DueDate); err != nil {
		return nil, err
	}
	if res.ReturnDate, err = parseNullTime(row.ReturnDate); err != nil {
		return nil, err
	}
	if res.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return nil, err
	}
	if res.UpdatedAt, err = parseTime(row.UpdatedAt); err != nil {
		return nil, err
	}
	return res, nil
}

func reservationsFromRows(rows []reservationRow) ([]*domain.Reservation, error) {
	items := make([]*domain.Reservation, 0, len(rows))
	for _, row := range rows {
		res, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, res)
	}
	return items, nil
}

// Create creates a new reservation. A second ACTIVE reservation for the
// same user and book violates ux_reservations_active.
func (r *reservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	query := `
		INSERT INTO reservations (user_id, book_id, reservation_date, due_date, return_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	q := r.db.q(ctx)
	result, err := q.ExecContext(ctx, query,
		res.UserID,
		res.BookID,
		formatTime(res.ReservationDate),
		formatTime(res.DueDate),
		formatNullTime(res.ReturnDate),
		string(res.Status),
		formatTime(res.CreatedAt),
		formatTime(res.UpdatedAt),
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return domain.ErrDuplicateReservation
		case isForeignKeyViolation(err):
			return r.missingReference(ctx, q, res.BookID)
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	res.ID = id
	return nil
}

// missingReference reports which parent row a failed insert pointed at.
func (r *reservationRepository) missingReference(ctx context.Context, q querier, bookID int64) error {
	var exists bool
	if err := q.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM books WHERE id = ?)`, bookID); err != nil {
		return fmt.Errorf("failed to check book row: %w", err)
	}
	if !exists {
		return domain.ErrBookNotFound
	}
	return domain.ErrUserNotFound
}

// GetByID retrieves a reservation by ID.
func (r *reservationRepository) GetByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	var row reservationRow
	err := r.db.q(ctx).GetContext(ctx, &row, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return row.toDomain()
}

// UpdateStatus writes the status change only if the stored status is still from.
func (r *reservationRepository) UpdateStatus(ctx context.Context, res *domain.Reservation, from domain.ReservationStatus) error {
	q := r.db.q(ctx)
	result, err := q.ExecContext(ctx,
		`UPDATE reservations SET status = ?, return_date = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(res.Status),
		formatNullTime(res.ReturnDate),
		formatTime(res.UpdatedAt),
		res.ID,
		string(from),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReservation
		}
		return fmt.Errorf("failed to update reservation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return staleOrMissing(ctx, q, "reservations", res.ID, domain.ErrReservationNotFound)
	}
	return nil
}

// ExistsActive checks if the user has an ACTIVE reservation for the book.
func (r *reservationRepository) ExistsActive(ctx context.Context, userID, bookID int64) (bool, error) {
	var exists bool
	err := r.db.q(ctx).GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM reservations WHERE user_id = ? AND book_id = ? AND status = ?)`,
		userID, bookID, string(domain.ReservationActive),
	)
	if err != nil {
		return false, fmt.Errorf("failed to check active reservation: %w", err)
	}
	return exists, nil
}

// CountActiveByBook returns the number of ACTIVE reservations for a book.
func (r *reservationRepository) CountActiveByBook(ctx context.Context, bookID int64) (int64, error) {
	var n int64
	err := r.db.q(ctx).GetContext(ctx, &n,
		`SELECT COUNT(*) FROM reservations WHERE book_id = ? AND status = ?`,
		bookID, string(domain.ReservationActive),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count active reservations: %w", err)
	}
	return n, nil
}

// ListByUser returns every reservation of a user, newest first.
func (r *reservationRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Reservation, error) {
	var rows []reservationRow
	err := r.db.q(ctx).SelectContext(ctx, &rows,
		`SELECT `+reservationColumns+` FROM reservations WHERE user_id = ? ORDER BY id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return reservationsFromRows(rows)
}

// List returns reservations matching filter, newest first.
func (r *reservationRepository) List(ctx context.Context, filter repository.ReservationFilter, opts repository.ListOptions) (*repository.ListResult[domain.Reservation], error) {
	opts = opts.Normalize()
	page, count, err := r.db.queries.Reservations(filter, opts)
	if err != nil {
		return nil, err
	}

	q := r.db.q(ctx)
	var total int64
	if err := q.GetContext(ctx, &total, count.SQL, count.Args...); err != nil {
		return nil, fmt.Errorf("failed to count reservations: %w", err)
	}

	var rows []reservationRow
	if err := q.SelectContext(ctx, &rows, page.SQL, page.Args...); err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	items, err := reservationsFromRows(rows)
	if err != nil {
		return nil, err
	}

	return &repository.ListResult[domain.Reservation]{
		Items:  items,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

// ListActiveDueBefore returns ACTIVE reservations due before t, earliest first.
func (r *reservationRepository) ListActiveDueBefore(ctx context.Context, t time.Time) ([]*domain.Reservation, error) {
	var rows []reservationRow
	err := r.db.q(ctx).SelectContext(ctx, &rows,
		`SELECT `+reservationColumns+` FROM reservations WHERE status = ? AND due_date < ? ORDER BY due_date, id`,
		string(domain.ReservationActive), formatTime(t),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due reservations: %w", err)
	}
	return reservationsFromRows(rows)
}

var _ repository.ReservationRepository = (*reservationRepository)(nil)

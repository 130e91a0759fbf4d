package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// reservationRepository implements repository.ReservationRepository for PostgreSQL.
type reservationRepository struct {
	db *DB
}

type reservationRow struct {
	ID              int64      `db:"id"`
	UserID          int64      `db:"user_id"`
	BookID          int64      `db:"book_id"`
	ReservationDate time.Time  `db:"reservation_date"`
	DueDate         time.Time  `db:"due_date"`
	ReturnDate      *time.Time `db:"return_date"`
	Status          string     `db:"status"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

const reservationColumns = `id, user_id, book_id, reservation_date, due_date, return_date, status, created_at, updated_at`

// constraintReservationUser is the user foreign key from the init migration.
const constraintReservationUser = "reservations_user_id_fkey"

func (row reservationRow) toDomain() *domain.Reservation {
	res := &domain.Reservation{
		ID:              row.ID,
		UserID:          row.UserID,
		BookID:          row.BookID,
		ReservationDate: row.ReservationDate.UTC(),
		DueDate:         row.DueDate.UTC(),
		Status:          domain.ReservationStatus(row.Status),
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
	if row.ReturnDate != nil {
		t := row.ReturnDate.UTC()
		res.ReturnDate = &t
	}
	return res
}

func collectReservations(rows pgx.Rows) ([]*domain.Reservation, error) {
	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[reservationRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan reservations: %w", err)
	}
	items := make([]*domain.Reservation, 0, len(collected))
	for _, row := range collected {
		items = append(items, row.toDomain())
	}
	return items, nil
}

// Create creates a new reservation. A second ACTIVE reservation for the
// same user and book violates ux_reservations_active.
func (r *reservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	query := `
		INSERT INTO reservations (user_id, book_id, reservation_date, due_date, return_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := r.db.q(ctx).QueryRow(ctx, query,
		res.UserID,
		res.BookID,
		res.ReservationDate,
		res.DueDate,
		res.ReturnDate,
		string(res.Status),
		res.CreatedAt,
		res.UpdatedAt,
	).Scan(&res.ID)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return domain.ErrDuplicateReservation
		case isForeignKeyViolation(err) && constraintName(err) == constraintReservationUser:
			return domain.ErrUserNotFound
		case isForeignKeyViolation(err):
			return domain.ErrBookNotFound
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

// GetByID retrieves a reservation by ID.
func (r *reservationRepository) GetByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	rows, err := r.db.q(ctx).Query(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[reservationRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return row.toDomain(), nil
}

// UpdateStatus writes the status change only if the stored status is still from.
func (r *reservationRepository) UpdateStatus(ctx context.Context, res *domain.Reservation, from domain.ReservationStatus) error {
	q := r.db.q(ctx)
	tag, err := q.Exec(ctx,
		`UPDATE reservations SET status = $1, return_date = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
		string(res.Status),
		res.ReturnDate,
		res.UpdatedAt,
		res.ID,
		string(from),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReservation
		}
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return staleOrMissing(ctx, q, "reservations", res.ID, domain.ErrReservationNotFound)
	}
	return nil
}

// ExistsActive checks if the user has an ACTIVE reservation for the book.
func (r *reservationRepository) ExistsActive(ctx context.Context, userID, bookID int64) (bool, error) {
	var exists bool
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM reservations WHERE user_id = $1 AND book_id = $2 AND status = $3)`,
		userID, bookID, string(domain.ReservationActive),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check active reservation: %w", err)
	}
	return exists, nil
}

// CountActiveByBook returns the number of ACTIVE reservations for a book.
func (r *reservationRepository) CountActiveByBook(ctx context.Context, bookID int64) (int64, error) {
	var n int64
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM reservations WHERE book_id = $1 AND status = $2`,
		bookID, string(domain.ReservationActive),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active reservations: %w", err)
	}
	return n, nil
}

// ListByUser returns every reservation of a user, newest first.
func (r *reservationRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Reservation, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE user_id = $1 ORDER BY id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return collectReservations(rows)
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
	if err := q.QueryRow(ctx, count.SQL, count.Args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count reservations: %w", err)
	}

	rows, err := q.Query(ctx, page.SQL, page.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	items, err := collectReservations(rows)
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
	rows, err := r.db.q(ctx).Query(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE status = $1 AND due_date < $2 ORDER BY due_date, id`,
		string(domain.ReservationActive), t,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due reservations: %w", err)
	}
	return collectReservations(rows)
}

var _ repository.ReservationRepository = (*reservationRepository)(nil)

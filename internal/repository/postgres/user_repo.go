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

// userRepository implements repository.UserRepository for PostgreSQL.
type userRepository struct {
	db *DB
}

type userRow struct {
	ID            int64     `db:"id"`
	Email         string    `db:"email"`
	Name          string    `db:"name"`
	Role          string    `db:"role"`
	IsBlacklisted bool      `db:"is_blacklisted"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

const userColumns = `id, email, name, role, is_blacklisted, created_at, updated_at`

func (row userRow) toDomain() *domain.User {
	return &domain.User{
		ID:            row.ID,
		Email:         row.Email,
		Name:          row.Name,
		Role:          domain.Role(row.Role),
		IsBlacklisted: row.IsBlacklisted,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

// Create creates a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (email, name, role, is_blacklisted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.db.q(ctx).QueryRow(ctx, query,
		user.Email,
		user.Name,
		string(user.Role),
		user.IsBlacklisted,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail retrieves a user by email, ignoring case.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
}

func (r *userRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	rows, err := r.db.q(ctx).Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[userRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return row.toDomain(), nil
}

// Update updates role, name and blacklist flag of an existing user.
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	tag, err := r.db.q(ctx).Exec(ctx,
		`UPDATE users SET name = $1, role = $2, is_blacklisted = $3, updated_at = $4 WHERE id = $5`,
		user.Name,
		string(user.Role),
		user.IsBlacklisted,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// List returns all users with pagination.
func (r *userRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	opts = opts.Normalize()
	q := r.db.q(ctx)

	var total int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := q.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[userRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}

	items := make([]*domain.User, 0, len(collected))
	for _, row := range collected {
		items = append(items, row.toDomain())
	}

	return &repository.ListResult[domain.User]{
		Items:  items,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

var _ repository.UserRepository = (*userRepository)(nil)

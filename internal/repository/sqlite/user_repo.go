package sqlite

import (
	"context"
	"fmt"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// userRepository implements repository.UserRepository for SQLite.
type userRepository struct {
	db *DB
}

type userRow struct {
	ID            int64  `db:"id"`
	Email         string `db:"email"`
	Name          string `db:"name"`
	Role          string `db:"role"`
	IsBlacklisted bool   `db:"is_blacklisted"`
	CreatedAt     string `db:"created_at"`
	UpdatedAt     string `db:"updated_at"`
}

const userColumns = `id, email, name, role, is_blacklisted, created_at, updated_at`

func (row userRow) toDomain() (*domain.User, error) {
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime(row.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &domain.User{
		ID:            row.ID,
		Email:         row.Email,
		Name:          row.Name,
		Role:          domain.Role(row.Role),
		IsBlacklisted: row.IsBlacklisted,
		CreatedAt:     created,
		UpdatedAt:     updated,
	}, nil
}

// Create creates a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (email, name, role, is_blacklisted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.q(ctx).ExecContext(ctx, query,
		user.Email,
		user.Name,
		string(user.Role),
		boolToInt(user.IsBlacklisted),
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	user.ID = id

	return nil
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByEmail retrieves a user by email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, email)
}

func (r *userRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var row userRow
	if err := r.db.q(ctx).GetContext(ctx, &row, query, arg); err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return row.toDomain()
}

// Update updates role, name and blacklist flag of an existing user.
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET name = ?, role = ?, is_blacklisted = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.q(ctx).ExecContext(ctx, query,
		user.Name,
		string(user.Role),
		boolToInt(user.IsBlacklisted),
		formatTime(user.UpdatedAt),
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

// List returns all users with pagination.
func (r *userRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	opts = opts.Normalize()
	q := r.db.q(ctx)

	var total int64
	if err := q.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	var rows []userRow
	err := q.SelectContext(ctx, &rows,
		`SELECT `+userColumns+` FROM users ORDER BY id LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	items := make([]*domain.User, 0, len(rows))
	for _, row := range rows {
		u, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}

	return &repository.ListResult[domain.User]{
		Items:  items,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

var _ repository.UserRepository = (*userRepository)(nil)

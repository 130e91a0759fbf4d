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

// categoryRepository implements repository.CategoryRepository for PostgreSQL.
type categoryRepository struct {
	db *DB
}

type categoryRow struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

const categoryColumns = `id, name, description, created_at, updated_at`

func (row categoryRow) toDomain() *domain.Category {
	return &domain.Category{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

// Create creates a new category.
func (r *categoryRepository) Create(ctx context.Context, category *domain.Category) error {
	err := r.db.q(ctx).QueryRow(ctx,
		`INSERT INTO categories (name, description, created_at, updated_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		category.Name,
		category.Description,
		category.CreatedAt,
		category.UpdatedAt,
	).Scan(&category.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCategoryAlreadyExists
		}
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// GetByID retrieves a category by ID.
func (r *categoryRepository) GetByID(ctx context.Context, id int64) (*domain.Category, error) {
	rows, err := r.db.q(ctx).Query(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[categoryRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return row.toDomain(), nil
}

// Update updates an existing category.
func (r *categoryRepository) Update(ctx context.Context, category *domain.Category) error {
	tag, err := r.db.q(ctx).Exec(ctx,
		`UPDATE categories SET name = $1, description = $2, updated_at = $3 WHERE id = $4`,
		category.Name,
		category.Description,
		category.UpdatedAt,
		category.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCategoryAlreadyExists
		}
		return fmt.Errorf("failed to update category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCategoryNotFound
	}
	return nil
}

// Delete deletes a category by ID. Books reference categories with
// ON DELETE RESTRICT.
func (r *categoryRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.q(ctx).Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrCategoryInUse
		}
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCategoryNotFound
	}
	return nil
}

// ExistsByName checks if another category has the name, ignoring case.
func (r *categoryRepository) ExistsByName(ctx context.Context, name string, excludeID int64) (bool, error) {
	var exists bool
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM categories WHERE LOWER(name) = LOWER($1) AND id <> $2)`,
		name, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check category name: %w", err)
	}
	return exists, nil
}

// List returns all categories ordered by name.
func (r *categoryRepository) List(ctx context.Context) ([]*domain.Category, error) {
	rows, err := r.db.q(ctx).Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[categoryRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan categories: %w", err)
	}

	items := make([]*domain.Category, 0, len(collected))
	for _, row := range collected {
		items = append(items, row.toDomain())
	}
	return items, nil
}

var _ repository.CategoryRepository = (*categoryRepository)(nil)

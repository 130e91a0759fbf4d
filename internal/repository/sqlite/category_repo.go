package sqlite

import (
	"context"
	"fmt"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// categoryRepository implements repository.CategoryRepository for SQLite.
type categoryRepository struct {
	db *DB
}

type categoryRow struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	CreatedAt   string `db:"created_at"`
	UpdatedAt   string `db:"updated_at"`
}

const categoryColumns = `id, name, description, created_at, updated_at`

func (row categoryRow) toDomain() (*domain.Category, error) {
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime(row.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &domain.Category{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}

// Create creates a new category.
func (r *categoryRepository) Create(ctx context.Context, category *domain.Category) error {
	result, err := r.db.q(ctx).ExecContext(ctx,
		`INSERT INTO categories (name, description, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		category.Name,
		category.Description,
		formatTime(category.CreatedAt),
		formatTime(category.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCategoryAlreadyExists
		}
		return fmt.Errorf("failed to create category: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	category.ID = id
	return nil
}

// GetByID retrieves a category by ID.
func (r *categoryRepository) GetByID(ctx context.Context, id int64) (*domain.Category, error) {
	var row categoryRow
	err := r.db.q(ctx).GetContext(ctx, &row, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return row.toDomain()
}

// Update updates an existing category.
func (r *categoryRepository) Update(ctx context.Context, category *domain.Category) error {
	result, err := r.db.q(ctx).ExecContext(ctx,
		`UPDATE categories SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		category.Name,
		category.Description,
		formatTime(category.UpdatedAt),
		category.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCategoryAlreadyExists
		}
		return fmt.Errorf("failed to update category: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrCategoryNotFound
	}
	return nil
}

// Delete deletes a category by ID. Books reference categories with
// ON DELETE RESTRICT.
func (r *categoryRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.q(ctx).ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrCategoryInUse
		}
		return fmt.Errorf("failed to delete category: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrCategoryNotFound
	}
	return nil
}

// ExistsByName checks if another category has the name, ignoring case.
func (r *categoryRepository) ExistsByName(ctx context.Context, name string, excludeID int64) (bool, error) {
	var exists bool
	err := r.db.q(ctx).GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM categories WHERE name = ? COLLATE NOCASE AND id <> ?)`,
		name, excludeID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to check category name: %w", err)
	}
	return exists, nil
}

// List returns all categories ordered by name.
func (r *categoryRepository) List(ctx context.Context) ([]*domain.Category, error) {
	var rows []categoryRow
	if err := r.db.q(ctx).SelectContext(ctx, &rows, `SELECT `+categoryColumns+` FROM categories ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	items := make([]*domain.Category, 0, len(rows))
	for _, row := range rows {
		c, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, nil
}

var _ repository.CategoryRepository = (*categoryRepository)(nil)

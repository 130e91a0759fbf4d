package service

import (
	"context"
	"errors"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CategoryLookup resolves categories for the catalog.
type CategoryLookup interface {
	Exists(ctx context.Context, id int64) (bool, error)
	Get(ctx context.Context, id int64) (*domain.Category, error)
}

// CategoryService maintains categories and serves cached lookups.
type CategoryService struct {
	categories repository.CategoryRepository
	books      repository.BookRepository
	cache      repository.Cache
	cacheTTL   time.Duration
	logger     zerolog.Logger
}

// NewCategoryService creates a new CategoryService. cache may be nil.
func NewCategoryService(
	repos *repository.Repositories,
	cache repository.Cache,
	cacheTTL time.Duration,
	logger zerolog.Logger,
) *CategoryService {
	return &CategoryService{
		categories: repos.Category,
		books:      repos.Book,
		cache:      cache,
		cacheTTL:   cacheTTL,
		logger:     logger.With().Str("service", "category").Logger(),
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// AddCategoryInput contains the data needed to add a category.
type AddCategoryInput struct {
	Actor       *domain.User `validate:"-"`
	Name        string       `validate:"required,max=100"`
	Description string       `validate:"max=1000"`
}

// UpdateCategoryInput contains the data needed to update a category.
type UpdateCategoryInput struct {
	Actor       *domain.User `validate:"-"`
	CategoryID  int64        `validate:"gt=0"`
	Name        string       `validate:"required,max=100"`
	Description string       `validate:"max=1000"`
}

// DeleteCategoryInput contains the data needed to delete a category.
type DeleteCategoryInput struct {
	Actor      *domain.User
	CategoryID int64
}

// =============================================================================
// Service Methods
// =============================================================================

// AddCategory creates a category with a unique name. Librarians only.
func (s *CategoryService) AddCategory(ctx context.Context, input AddCategoryInput) (*domain.Category, error) {
	if err := requireLibrarian(input.Actor); err != nil {
		return nil, err
	}
	input.Name = strings.TrimSpace(input.Name)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	taken, err := s.categories.ExistsByName(ctx, input.Name, 0)
	if err != nil {
		s.logger.Error().Err(err).Str("name", input.Name).Msg("failed to check category name")
		return nil, internalError(err)
	}
	if taken {
		return nil, domain.ErrCategoryAlreadyExists
	}

	category := domain.NewCategory(input.Name, input.Description)
	if err := s.categories.Create(ctx, category); err != nil {
		if errors.Is(err, domain.ErrCategoryAlreadyExists) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("name", input.Name).Msg("failed to create category")
		return nil, internalError(err)
	}

	s.logger.Info().Int64("category_id", category.ID).Str("name", category.Name).Msg("category created")
	return category, nil
}

// UpdateCategory renames or re-describes a category. Librarians only.
func (s *CategoryService) UpdateCategory(ctx context.Context, input UpdateCategoryInput) (*domain.Category, error) {
	if err := requireLibrarian(input.Actor); err != nil {
		return nil, err
	}
	input.Name = strings.TrimSpace(input.Name)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	category, err := s.categories.GetByID(ctx, input.CategoryID)
	if err != nil {
		return nil, s.passOrWrap(err, "failed to get category")
	}

	taken, err := s.categories.ExistsByName(ctx, input.Name, category.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("name", input.Name).Msg("failed to check category name")
		return nil, internalError(err)
	}
	if taken {
		return nil, domain.ErrCategoryAlreadyExists
	}

	category.Name = input.Name
	category.Description = input.Description
	category.UpdatedAt = time.Now().UTC()

	if err := s.categories.Update(ctx, category); err != nil {
		return nil, s.passOrWrap(err, "failed to update category")
	}
	s.invalidate(ctx, category.ID)

	s.logger.Info().Int64("category_id", category.ID).Str("name", category.Name).Msg("category updated")
	return category, nil
}

// DeleteCategory removes a category no book references. Librarians only.
func (s *CategoryService) DeleteCategory(ctx context.Context, input DeleteCategoryInput) error {
	if err := requireLibrarian(input.Actor); err != nil {
		return err
	}

	if _, err := s.categories.GetByID(ctx, input.CategoryID); err != nil {
		return s.passOrWrap(err, "failed to get category")
	}

	n, err := s.books.CountByCategory(ctx, input.CategoryID)
	if err != nil {
		s.logger.Error().Err(err).Int64("category_id", input.CategoryID).Msg("failed to count books")
		return internalError(err)
	}
	if n > 0 {
		return domain.ErrCategoryInUse
	}

	if err := s.categories.Delete(ctx, input.CategoryID); err != nil {
		return s.passOrWrap(err, "failed to delete category")
	}
	s.invalidate(ctx, input.CategoryID)

	s.logger.Info().Int64("category_id", input.CategoryID).Msg("category deleted")
	return nil
}

// GetCategory returns a category, consulting the cache first.
func (s *CategoryService) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	key := repository.CacheKeys.Category(id)

	if s.cache != nil {
		data, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			var cached domain.Category
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
			s.logger.Warn().Int64("category_id", id).Msg("discarding undecodable cache entry")
		case !errors.Is(err, repository.ErrCacheMiss):
			s.logger.Warn().Err(err).Int64("category_id", id).Msg("category cache read failed")
		}
	}

	category, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, s.passOrWrap(err, "failed to get category")
	}

	if s.cache != nil {
		if data, err := json.Marshal(category); err == nil {
			if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
				s.logger.Warn().Err(err).Int64("category_id", id).Msg("category cache write failed")
			}
		}
	}
	return category, nil
}

// ListCategories returns all categories ordered by name.
func (s *CategoryService) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	items, err := s.categories.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list categories")
		return nil, internalError(err)
	}
	return items, nil
}

// Get implements CategoryLookup.
func (s *CategoryService) Get(ctx context.Context, id int64) (*domain.Category, error) {
	return s.GetCategory(ctx, id)
}

// Exists implements CategoryLookup.
func (s *CategoryService) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := s.GetCategory(ctx, id)
	if errors.Is(err, domain.ErrCategoryNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *CategoryService) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, repository.CacheKeys.Category(id)); err != nil {
		s.logger.Warn().Err(err).Int64("category_id", id).Msg("category cache invalidation failed")
	}
}

func (s *CategoryService) passOrWrap(err error, msg string) error {
	if isDomainError(err) {
		return err
	}
	s.logger.Error().Err(err).Msg(msg)
	return internalError(err)
}

var _ CategoryLookup = (*CategoryService)(nil)

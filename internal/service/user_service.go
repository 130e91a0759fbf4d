package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// UserService handles user management operations.
type UserService struct {
	userRepo repository.UserRepository
	logger   zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(userRepo repository.UserRepository, logger zerolog.Logger) *UserService {
	return &UserService{
		userRepo: userRepo,
		logger:   logger.With().Str("service", "user").Logger(),
	}
}

// CreateUserInput contains the data needed to create a new user.
type CreateUserInput struct {
	Email string      `validate:"required,email,max=255"`
	Name  string      `validate:"max=255"`
	Role  domain.Role `validate:"required,oneof=USER LIBRARIAN"`
}

// CreateUserOutput contains the result of creating a user.
type CreateUserOutput struct {
	User *domain.User
}

// SetBlacklistedInput contains the data needed to change a user's blacklist flag.
type SetBlacklistedInput struct {
	Actor       *domain.User
	UserID      int64
	Blacklisted bool
}

// ListUsersInput contains the page of a user listing.
type ListUsersInput struct {
	Actor  *domain.User
	Limit  int
	Offset int
}

// ListUsersOutput contains a page of users.
type ListUsersOutput struct {
	Items  []*domain.User
	Total  int64
	Limit  int
	Offset int
}

// Create creates a new user account. It is used by the admin CLI to
// bootstrap accounts and takes no actor.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*CreateUserOutput, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Name = strings.TrimSpace(input.Name)
	if input.Role == "" {
		input.Role = domain.RoleUser
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	_, err := s.userRepo.GetByEmail(ctx, input.Email)
	switch {
	case err == nil:
		return nil, domain.ErrUserAlreadyExists
	case !errors.Is(err, domain.ErrUserNotFound):
		s.logger.Error().Err(err).Str("email", input.Email).Msg("failed to check email existence")
		return nil, internalError(err)
	}

	user := domain.NewUser(input.Email, input.Name, input.Role)
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUserAlreadyExists) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("email", input.Email).Msg("failed to create user")
		return nil, internalError(err)
	}

	s.logger.Info().
		Int64("user_id", user.ID).
		Str("email", user.Email).
		Str("role", string(user.Role)).
		Msg("user created")

	return &CreateUserOutput{User: user}, nil
}

// SetBlacklisted blocks or unblocks a user from reserving. Librarians only;
// a librarian cannot be blacklisted.
func (s *UserService) SetBlacklisted(ctx context.Context, input SetBlacklistedInput) (*domain.User, error) {
	if err := requireLibrarian(input.Actor); err != nil {
		return nil, err
	}

	user, err := s.GetByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if input.Blacklisted && user.IsLibrarian() {
		return nil, domain.ErrCannotBlacklistLibrarian
	}
	if user.IsBlacklisted == input.Blacklisted {
		return user, nil
	}

	user.IsBlacklisted = input.Blacklisted
	user.UpdatedAt = time.Now().UTC()
	if err := s.userRepo.Update(ctx, user); err != nil {
		if isDomainError(err) {
			return nil, err
		}
		s.logger.Error().Err(err).Int64("user_id", user.ID).Msg("failed to update user")
		return nil, internalError(err)
	}

	s.logger.Info().
		Int64("user_id", user.ID).
		Int64("actor_id", input.Actor.ID).
		Bool("blacklisted", user.IsBlacklisted).
		Msg("user blacklist changed")

	return user, nil
}

// GetByID retrieves a user by ID.
func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		s.logger.Error().Err(err).Int64("user_id", id).Msg("failed to get user")
		return nil, internalError(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("email", email).Msg("failed to get user")
		return nil, internalError(err)
	}
	return user, nil
}

// List returns a page of users. Librarians only.
func (s *UserService) List(ctx context.Context, input ListUsersInput) (*ListUsersOutput, error) {
	if err := requireLibrarian(input.Actor); err != nil {
		return nil, err
	}

	page, err := s.userRepo.List(ctx, repository.ListOptions{Limit: input.Limit, Offset: input.Offset}.Normalize())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list users")
		return nil, internalError(err)
	}

	return &ListUsersOutput{
		Items:  page.Items,
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}, nil
}

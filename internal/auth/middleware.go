package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/domain"
)

// UserLoader loads the current state of a user.
type UserLoader interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// ErrorWriter renders an error response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

type contextKey struct{}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the user stored by the middleware, or nil.
func UserFromContext(ctx context.Context) *domain.User {
	user, _ := ctx.Value(contextKey{}).(*domain.User)
	return user
}

// IdentityProvider resolves the acting user of a request.
type IdentityProvider struct {
	tokens *TokenManager
	users  UserLoader
	logger zerolog.Logger
}

// NewIdentityProvider creates a new IdentityProvider.
func NewIdentityProvider(tokens *TokenManager, users UserLoader, logger zerolog.Logger) *IdentityProvider {
	return &IdentityProvider{
		tokens: tokens,
		users:  users,
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// Identify verifies the bearer token of r and loads its user fresh, so
// role and blacklist changes apply to the next request.
func (p *IdentityProvider) Identify(r *http.Request) (*domain.User, error) {
	token, ok := bearerToken(r)
	if !ok {
		return nil, domain.ErrMissingIdentity
	}

	id, err := p.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := p.users.GetByID(r.Context(), id)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.NewDomainError(domain.ErrInvalidToken, "unknown user", "")
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Middleware stores the identified user in the request context. Requests
// without an Authorization header pass through anonymously; handlers that
// need a user reject them. A header that fails verification is rejected
// with errWriter.
func (p *IdentityProvider) Middleware(errWriter ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := p.Identify(r)
			if err != nil {
				p.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("authentication failed")
				errWriter(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

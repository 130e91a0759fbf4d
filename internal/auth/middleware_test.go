package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-library/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type mapUsers map[int64]*domain.User

func (m mapUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func TestTokenManager_IssueAndVerify(t *testing.T) {
	m, err := NewTokenManager(testSecret, "alexander-library", time.Hour)
	require.NoError(t, err)

	token, expires, err := m.Issue(&domain.User{ID: 42, Role: domain.RoleUser})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	id, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestTokenManager_Rejects(t *testing.T) {
	m, err := NewTokenManager(testSecret, "alexander-library", time.Hour)
	require.NoError(t, err)
	user := &domain.User{ID: 1}

	expired, err := NewTokenManager(testSecret, "alexander-library", time.Hour)
	require.NoError(t, err)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, _, err := expired.Issue(user)
	require.NoError(t, err)

	other, err := NewTokenManager("ffffffffffffffffffffffffffffffff", "alexander-library", time.Hour)
	require.NoError(t, err)
	forged, _, err := other.Issue(user)
	require.NoError(t, err)

	foreign, err := NewTokenManager(testSecret, "someone-else", time.Hour)
	require.NoError(t, err)
	foreignToken, _, err := foreign.Issue(user)
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":      "not-a-token",
		"expired":      expiredToken,
		"wrong secret": forged,
		"wrong issuer": foreignToken,
		"alg none":     noneToken,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := m.Verify(token)
			require.ErrorIs(t, err, domain.ErrInvalidToken)
			assert.Equal(t, domain.ErrUnauthenticated, domain.KindOf(err))
		})
	}

	_, err = NewTokenManager("", "", time.Hour)
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestMiddleware(t *testing.T) {
	tokens, err := NewTokenManager(testSecret, "", time.Hour)
	require.NoError(t, err)

	alice := &domain.User{ID: 1, Email: "alice@example.com", Role: domain.RoleUser}
	provider := NewIdentityProvider(tokens, mapUsers{1: alice}, zerolog.Nop())

	aliceToken, _, err := tokens.Issue(alice)
	require.NoError(t, err)
	ghostToken, _, err := tokens.Issue(&domain.User{ID: 99})
	require.NoError(t, err)

	var seen *domain.User
	handler := provider.Middleware(func(w http.ResponseWriter, _ *http.Request, err error) {
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   *domain.User
	}{
		{name: "anonymous", wantStatus: http.StatusOK},
		{name: "valid", header: "Bearer " + aliceToken, wantStatus: http.StatusOK, wantUser: alice},
		{name: "lowercase scheme", header: "bearer " + aliceToken, wantStatus: http.StatusOK, wantUser: alice},
		{name: "basic scheme", header: "Basic YWxpY2U6c2VjcmV0", wantStatus: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "deleted user", header: "Bearer " + ghostToken, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantUser, seen)
		})
	}
}

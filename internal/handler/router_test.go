package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-library/internal/auth"
	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/lock"
	"github.com/prn-tf/alexander-library/internal/metrics"
	"github.com/prn-tf/alexander-library/internal/repository"
	"github.com/prn-tf/alexander-library/internal/repository/memory"
	"github.com/prn-tf/alexander-library/internal/service"
)

type apiFixture struct {
	handler   http.Handler
	repos     *repository.Repositories
	tokens    *auth.TokenManager
	librarian *domain.User
	reader    *domain.User
	category  *domain.Category
}

func newAPI(t *testing.T, limiter *RateLimiter) *apiFixture {
	t.Helper()
	logger := zerolog.Nop()
	store := memory.NewStore()
	repos := store.Repositories()
	m := metrics.NewMetrics()

	locker := lock.NewMemoryLocker()
	t.Cleanup(locker.Stop)

	coordinator := service.NewInventoryCoordinator(repos, locker, m, service.DefaultCoordinatorConfig(), logger)
	categories := service.NewCategoryService(repos, nil, time.Minute, logger)
	catalog := service.NewCatalogService(coordinator, repos, categories, logger)
	reservations := service.NewReservationService(coordinator, repos, service.NopNotifier{}, logger)
	users := service.NewUserService(repos.User, logger)

	tokens, err := auth.NewTokenManager("0123456789abcdef0123456789abcdef", "test", time.Hour)
	require.NoError(t, err)
	identity := auth.NewIdentityProvider(tokens, repos.User, logger)

	router := NewRouter(RouterConfig{
		BookHandler:        NewBookHandler(catalog, reservations, logger),
		CategoryHandler:    NewCategoryHandler(categories, logger),
		ReservationHandler: NewReservationHandler(reservations, logger),
		UserHandler:        NewUserHandler(users, logger),
		AuthMiddleware:     identity.Middleware(writeError),
		RateLimiter:        limiter,
		Database:           store,
		Metrics:            m,
		Logger:             logger,
	})

	f := &apiFixture{handler: router.Handler(), repos: repos, tokens: tokens}
	ctx := context.Background()

	f.librarian = domain.NewUser("librarian@example.com", "Libby", domain.RoleLibrarian)
	require.NoError(t, repos.User.Create(ctx, f.librarian))
	f.reader = domain.NewUser("reader@example.com", "Reed", domain.RoleUser)
	require.NoError(t, repos.User.Create(ctx, f.reader))
	f.category = domain.NewCategory("Fiction", "")
	require.NoError(t, repos.Category.Create(ctx, f.category))
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, user *domain.User, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != nil {
		token, _, err := f.tokens.Issue(user)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestRouter_ReservationFlow(t *testing.T) {
	f := newAPI(t, nil)

	rec := f.do(t, http.MethodPost, "/api/books", f.librarian, BookRequest{
		Title: "Dune", Author: "Frank Herbert", CategoryID: f.category.ID, TotalCopies: 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	book := decode[domain.Book](t, rec)
	assert.Equal(t, domain.DefaultLanguage, book.Language)

	reservePath := fmt.Sprintf("/api/books/%d/reserve", book.ID)

	rec = f.do(t, http.MethodPost, reservePath, nil, ReserveRequest{ReservationDays: 14})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, reservePath, f.reader, ReserveRequest{ReservationDays: 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, reservePath, f.reader, ReserveRequest{ReservationDays: 14})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[struct {
		ID     int64                    `json:"id"`
		Status domain.ReservationStatus `json:"status"`
		Book   domain.Book              `json:"book"`
	}](t, rec)
	assert.Equal(t, domain.ReservationActive, res.Status)
	assert.Equal(t, domain.BookStatusReserved, res.Book.Status)

	rec = f.do(t, http.MethodPost, reservePath, f.librarian, ReserveRequest{ReservationDays: 7})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_available", decode[ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodGet, "/api/reservations/mine", f.reader, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[PageResponse[map[string]any]](t, rec)
	assert.Equal(t, int64(1), mine.Total)

	rec = f.do(t, http.MethodGet, "/api/reservations", f.reader, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	returnPath := fmt.Sprintf("/api/reservations/%d/return", res.ID)
	rec = f.do(t, http.MethodPut, returnPath, f.reader, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, returnPath, f.librarian, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPut, returnPath, f.librarian, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/books/%d", book.ID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[domain.Book](t, rec).AvailableCopies)
}

func TestRouter_CatalogAdministration(t *testing.T) {
	f := newAPI(t, nil)

	rec := f.do(t, http.MethodPost, "/api/categories", f.reader, CategoryRequest{Name: "Poetry"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/categories", f.librarian, CategoryRequest{Name: "Poetry"})
	require.Equal(t, http.StatusCreated, rec.Code)
	poetry := decode[domain.Category](t, rec)

	rec = f.do(t, http.MethodPost, "/api/categories", f.librarian, CategoryRequest{Name: "poetry"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/books", f.librarian, BookRequest{Title: "Odes", Author: "Keats", CategoryID: poetry.ID, TotalCopies: 2})
	require.Equal(t, http.StatusCreated, rec.Code)
	book := decode[domain.Book](t, rec)

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/categories/%d", poetry.ID), f.librarian, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/books/%d/status", book.ID), f.librarian, StatusRequest{Status: "UNAVAILABLE"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.BookStatusUnavailable, decode[domain.Book](t, rec).Status)

	rec = f.do(t, http.MethodGet, "/api/books?title=ode&limit=5", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[PageResponse[domain.Book]](t, rec)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 5, page.Limit)

	rec = f.do(t, http.MethodGet, "/api/books?limit=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "limit", decode[ErrorResponse](t, rec).Field)

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/books/%d", book.ID), f.librarian, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/books/%d", book.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/books/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Blacklist(t *testing.T) {
	f := newAPI(t, nil)
	path := fmt.Sprintf("/api/users/%d/blacklist", f.reader.ID)

	rec := f.do(t, http.MethodPut, path, f.reader, BlacklistRequest{Blacklisted: true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, path, f.librarian, BlacklistRequest{Blacklisted: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[domain.User](t, rec).IsBlacklisted)

	// The token still names the user; the flag is reloaded per request.
	rec = f.do(t, http.MethodGet, "/api/users/me", f.reader, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[domain.User](t, rec).IsBlacklisted)

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/users/%d/blacklist", f.librarian.ID), f.librarian, BlacklistRequest{Blacklisted: true})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_MalformedBody(t *testing.T) {
	f := newAPI(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/categories", bytes.NewBufferString("{"))
	token, _, err := f.tokens.Issue(f.librarian)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decode[ErrorResponse](t, rec).Error)
}

func TestRouter_RateLimit(t *testing.T) {
	f := newAPI(t, NewRateLimiter(0.5, 2, time.Minute, nil))

	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodGet, "/api/categories", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/api/categories", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	// Health is never limited.
	rec = f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	f := newAPI(t, nil)

	rec := f.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Database)

	f.do(t, http.MethodGet, "/api/categories", nil, nil)
	rec = f.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alexander_library_http_requests_total")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidReservationPeriod, http.StatusBadRequest},
		{domain.ErrInvalidToken, http.StatusUnauthorized},
		{domain.ErrUserBlacklisted, http.StatusForbidden},
		{domain.ErrBookNotFound, http.StatusNotFound},
		{domain.ErrDuplicateReservation, http.StatusConflict},
		{domain.ErrBookNotAvailable, http.StatusConflict},
		{domain.ErrReservationNotActive, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: %v", service.ErrInternalError, errors.New("db down")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got, _ := statusFor(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

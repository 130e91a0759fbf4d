// Package handler provides the HTTP API of Alexander Library.
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/hlog"

	"github.com/prn-tf/alexander-library/internal/auth"
	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes bounds request bodies when no limit is configured.
const maxBodyBytes = 1 << 20

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// errBadRequest marks malformed requests caught before reaching a service.
var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) (int, string) {
	switch domain.KindOf(err) {
	case domain.ErrValidation:
		return http.StatusBadRequest, "validation_error"
	case domain.ErrUnauthenticated:
		return http.StatusUnauthorized, "unauthenticated"
	case domain.ErrForbidden:
		return http.StatusForbidden, "forbidden"
	case domain.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case domain.ErrConflict:
		return http.StatusConflict, "conflict"
	case domain.ErrNotAvailable:
		return http.StatusConflict, "not_available"
	case domain.ErrInvalidState:
		return http.StatusUnprocessableEntity, "invalid_state"
	}
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest, "bad_request"
	}
	return http.StatusInternalServerError, "internal_error"
}

// WriteError renders err as an ErrorResponse. It satisfies auth.ErrorWriter.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, err)
}

// writeError renders err. Internal failure details are logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)

	resp := ErrorResponse{Error: code, Message: err.Error()}
	var derr *domain.DomainError
	if errors.As(err, &derr) {
		resp.Field = derr.Resource
	}
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		resp.Message = service.ErrInternalError.Error()
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return domain.NewDomainError(errBadRequest, "malformed JSON body", "")
	}
	return nil
}

// idParam parses the numeric URL parameter name.
func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewDomainError(domain.ErrValidation, "must be a positive integer", name)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewDomainError(domain.ErrValidation, "must be a non-negative integer", name)
	}
	return n, nil
}

// queryInt64 parses an optional int64 query parameter.
func queryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, domain.NewDomainError(domain.ErrValidation, "must be a non-negative integer", name)
	}
	return n, nil
}

// pageParams parses limit and offset.
func pageParams(r *http.Request) (limit, offset int, err error) {
	if limit, err = queryInt(r, "limit"); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(r, "offset"); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

// actor returns the authenticated user of r, or nil.
func actor(r *http.Request) *domain.User {
	return auth.UserFromContext(r.Context())
}

// PageResponse wraps one page of a listing.
type PageResponse[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

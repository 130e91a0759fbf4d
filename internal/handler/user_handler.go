package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/service"
)

// UserHandler serves user administration routes.
type UserHandler struct {
	users  *service.UserService
	logger zerolog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *service.UserService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger.With().Str("handler", "user").Logger(),
	}
}

// RegisterRoutes registers user routes.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/users", h.handleList)
	r.Get("/api/users/me", h.handleMe)
	r.Put("/api/users/{id}/blacklist", h.handleBlacklist)
}

// BlacklistRequest is the body of a blacklist change.
type BlacklistRequest struct {
	Blacklisted bool `json:"blacklisted"`
}

func (h *UserHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	user := actor(r)
	if user == nil {
		writeError(w, r, domain.ErrMissingIdentity)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.users.List(r.Context(), service.ListUsersInput{Actor: actor(r), Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PageResponse[*domain.User]{
		Items:  out.Items,
		Total:  out.Total,
		Limit:  out.Limit,
		Offset: out.Offset,
	})
}

func (h *UserHandler) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req BlacklistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.users.SetBlacklisted(r.Context(), service.SetBlacklistedInput{
		Actor:       actor(r),
		UserID:      id,
		Blacklisted: req.Blacklisted,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

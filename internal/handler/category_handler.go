package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/service"
)

// CategoryHandler serves category routes.
type CategoryHandler struct {
	categories *service.CategoryService
	logger     zerolog.Logger
}

// NewCategoryHandler creates a new CategoryHandler.
func NewCategoryHandler(categories *service.CategoryService, logger zerolog.Logger) *CategoryHandler {
	return &CategoryHandler{
		categories: categories,
		logger:     logger.With().Str("handler", "category").Logger(),
	}
}

// RegisterRoutes registers category routes.
func (h *CategoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/categories", h.handleList)
	r.Post("/api/categories", h.handleCreate)
	r.Get("/api/categories/{id}", h.handleGet)
	r.Put("/api/categories/{id}", h.handleUpdate)
	r.Delete("/api/categories/{id}", h.handleDelete)
}

// CategoryRequest is the body of create and update requests.
type CategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *CategoryHandler) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.categories.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []*domain.Category{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CategoryHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	category, err := h.categories.GetCategory(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (h *CategoryHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	category, err := h.categories.AddCategory(r.Context(), service.AddCategoryInput{
		Actor:       actor(r),
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (h *CategoryHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req CategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	category, err := h.categories.UpdateCategory(r.Context(), service.UpdateCategoryInput{
		Actor:       actor(r),
		CategoryID:  id,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (h *CategoryHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.categories.DeleteCategory(r.Context(), service.DeleteCategoryInput{Actor: actor(r), CategoryID: id}); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
	"github.com/prn-tf/alexander-library/internal/service"
)

// BookHandler serves the catalog and the reserve action.
type BookHandler struct {
	catalog      *service.CatalogService
	reservations *service.ReservationService
	logger       zerolog.Logger
}

// NewBookHandler creates a new BookHandler.
func NewBookHandler(catalog *service.CatalogService, reservations *service.ReservationService, logger zerolog.Logger) *BookHandler {
	return &BookHandler{
		catalog:      catalog,
		reservations: reservations,
		logger:       logger.With().Str("handler", "book").Logger(),
	}
}

// RegisterRoutes registers book routes.
func (h *BookHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/books", h.handleList)
	r.Post("/api/books", h.handleCreate)
	r.Get("/api/books/{id}", h.handleGet)
	r.Put("/api/books/{id}", h.handleUpdate)
	r.Put("/api/books/{id}/status", h.handleSetStatus)
	r.Delete("/api/books/{id}", h.handleDelete)
	r.Post("/api/books/{id}/reserve", h.handleReserve)
}

// BookRequest is the body of create and update requests.
type BookRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn"`
	CategoryID  int64  `json:"category_id"`
	TotalCopies int    `json:"total_copies"`
	Genre       string `json:"genre"`
	Language    string `json:"language"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

func (req BookRequest) details() service.BookDetails {
	return service.BookDetails{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		CategoryID:  req.CategoryID,
		TotalCopies: req.TotalCopies,
		Genre:       req.Genre,
		Language:    req.Language,
		Description: req.Description,
		ImageURL:    req.ImageURL,
	}
}

// StatusRequest is the body of a status change.
type StatusRequest struct {
	Status string `json:"status"`
}

// ReserveRequest is the body of a reserve request.
type ReserveRequest struct {
	ReservationDays int `json:"reservation_days"`
}

func (h *BookHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	categoryID, err := queryInt64(r, "category_id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	out, err := h.catalog.ListBooks(r.Context(), service.ListBooksInput{
		Filter: repository.BookFilter{
			Title:      q.Get("title"),
			Author:     q.Get("author"),
			Genre:      q.Get("genre"),
			Language:   q.Get("language"),
			CategoryID: categoryID,
			Status:     domain.BookStatus(q.Get("status")),
		},
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PageResponse[*domain.Book]{
		Items:  out.Items,
		Total:  out.Total,
		Limit:  out.Limit,
		Offset: out.Offset,
	})
}

func (h *BookHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	book, err := h.catalog.GetBook(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	book, err := h.catalog.AddBook(r.Context(), service.AddBookInput{
		Actor:       actor(r),
		BookDetails: req.details(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (h *BookHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req BookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	book, err := h.catalog.UpdateBook(r.Context(), service.UpdateBookInput{
		Actor:       actor(r),
		BookID:      id,
		BookDetails: req.details(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	book, err := h.catalog.SetBookStatus(r.Context(), service.SetBookStatusInput{
		Actor:  actor(r),
		BookID: id,
		Status: domain.BookStatus(req.Status),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.catalog.DeleteBook(r.Context(), service.DeleteBookInput{Actor: actor(r), BookID: id}); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookHandler) handleReserve(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req ReserveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.reservations.ReserveBook(r.Context(), service.ReserveBookInput{
		Actor:      actor(r),
		BookID:     id,
		PeriodDays: req.ReservationDays,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.logger.Debug().Int64("book_id", id).Int64("reservation_id", out.Reservation.ID).Msg("reserve request served")
	writeJSON(w, http.StatusCreated, ReservationResponse{Reservation: out.Reservation, Book: out.Book})
}

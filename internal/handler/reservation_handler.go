package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/service"
)

// defaultReminderWindow is used when a reminder request names no window.
const defaultReminderWindow = 48 * time.Hour

// ReservationHandler serves reservation routes.
type ReservationHandler struct {
	reservations *service.ReservationService
	logger       zerolog.Logger
}

// NewReservationHandler creates a new ReservationHandler.
func NewReservationHandler(reservations *service.ReservationService, logger zerolog.Logger) *ReservationHandler {
	return &ReservationHandler{
		reservations: reservations,
		logger:       logger.With().Str("handler", "reservation").Logger(),
	}
}

// RegisterRoutes registers reservation routes.
func (h *ReservationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/reservations", h.handleListAll)
	r.Get("/api/reservations/mine", h.handleListMine)
	r.Put("/api/reservations/{id}/return", h.handleReturn)
	r.Delete("/api/reservations/{id}", h.handleCancel)
	r.Post("/api/reservations/reminders", h.handleReminders)
}

// ReservationResponse is a reservation with its book.
type ReservationResponse struct {
	*domain.Reservation
	Book *domain.Book `json:"book,omitempty"`
}

// RemindersRequest is the body of a reminder run.
type RemindersRequest struct {
	// WithinHours selects reservations due in the next WithinHours hours.
	WithinHours int `json:"within_hours"`
}

// RemindersResponse reports a reminder run.
type RemindersResponse struct {
	Queued int `json:"queued"`
}

func toReservationPage(out *service.ListReservationsOutput) PageResponse[ReservationResponse] {
	items := make([]ReservationResponse, 0, len(out.Items))
	for _, d := range out.Items {
		items = append(items, ReservationResponse{Reservation: d.Reservation, Book: d.Book})
	}
	return PageResponse[ReservationResponse]{
		Items:  items,
		Total:  out.Total,
		Limit:  out.Limit,
		Offset: out.Offset,
	}
}

func (h *ReservationHandler) handleListAll(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := queryInt64(r, "user_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	bookID, err := queryInt64(r, "book_id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var status domain.ReservationStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		if status, err = domain.ParseReservationStatus(raw); err != nil {
			writeError(w, r, err)
			return
		}
	}

	out, err := h.reservations.ListAllReservations(r.Context(), service.ListAllReservationsInput{
		Actor:  actor(r),
		Status: status,
		UserID: userID,
		BookID: bookID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationPage(out))
}

func (h *ReservationHandler) handleListMine(w http.ResponseWriter, r *http.Request) {
	out, err := h.reservations.ListUserReservations(r.Context(), service.ListUserReservationsInput{Actor: actor(r)})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationPage(out))
}

func (h *ReservationHandler) handleReturn(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.reservations.ReturnBook(r.Context(), service.ReturnBookInput{Actor: actor(r), ReservationID: id})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReservationResponse{Reservation: out.Reservation, Book: out.Book})
}

func (h *ReservationHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.reservations.CancelReservation(r.Context(), service.CancelReservationInput{Actor: actor(r), ReservationID: id})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReservationResponse{Reservation: out.Reservation, Book: out.Book})
}

func (h *ReservationHandler) handleReminders(w http.ResponseWriter, r *http.Request) {
	var req RemindersRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	within := defaultReminderWindow
	if req.WithinHours != 0 {
		within = time.Duration(req.WithinHours) * time.Hour
	}

	out, err := h.reservations.SendDueReminders(r.Context(), service.SendDueRemindersInput{Actor: actor(r), Within: within})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, RemindersResponse{Queued: out.Queued})
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// Notifier receives lending events after they have been committed.
// Implementations must not block and must swallow their own failures.
type Notifier interface {
	NotifyReservationCreated(ctx context.Context, user *domain.User, book *domain.Book, reservation *domain.Reservation)
	NotifyDueReminder(ctx context.Context, user *domain.User, book *domain.Book, reservation *domain.Reservation)
}

// NopNotifier discards every event.
type NopNotifier struct{}

// NotifyReservationCreated does nothing.
func (NopNotifier) NotifyReservationCreated(context.Context, *domain.User, *domain.Book, *domain.Reservation) {
}

// NotifyDueReminder does nothing.
func (NopNotifier) NotifyDueReminder(context.Context, *domain.User, *domain.Book, *domain.Reservation) {
}

// ReservationService orchestrates reserve, return and cancel requests.
// The acting user is always passed in explicitly.
type ReservationService struct {
	coordinator  *InventoryCoordinator
	books        repository.BookRepository
	reservations repository.ReservationRepository
	users        repository.UserRepository
	notifier     Notifier
	now          func() time.Time
	logger       zerolog.Logger
}

// NewReservationService creates a new ReservationService.
func NewReservationService(
	coordinator *InventoryCoordinator,
	repos *repository.Repositories,
	notifier Notifier,
	logger zerolog.Logger,
) *ReservationService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ReservationService{
		coordinator:  coordinator,
		books:        repos.Book,
		reservations: repos.Reservation,
		users:        repos.User,
		notifier:     notifier,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.With().Str("service", "reservation").Logger(),
	}
}

// SetClock replaces the time source used for reminder windows.
func (s *ReservationService) SetClock(now func() time.Time) {
	s.now = now
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// ReserveBookInput contains the data needed to reserve a book.
type ReserveBookInput struct {
	Actor      *domain.User
	BookID     int64
	PeriodDays int
}

// ReserveBookOutput contains the created reservation and the updated book.
type ReserveBookOutput struct {
	Reservation *domain.Reservation
	Book        *domain.Book
}

// ReturnBookInput contains the data needed to return a reserved copy.
type ReturnBookInput struct {
	Actor         *domain.User
	ReservationID int64
}

// ReturnBookOutput contains the returned reservation and the updated book.
type ReturnBookOutput struct {
	Reservation *domain.Reservation
	Book        *domain.Book
}

// CancelReservationInput contains the data needed to cancel a reservation.
type CancelReservationInput struct {
	Actor         *domain.User
	ReservationID int64
}

// CancelReservationOutput contains the cancelled reservation and the updated book.
type CancelReservationOutput struct {
	Reservation *domain.Reservation
	Book        *domain.Book
}

// ListUserReservationsInput contains the data needed to list the actor's reservations.
type ListUserReservationsInput struct {
	Actor *domain.User
}

// ListAllReservationsInput contains the data needed to list every reservation.
type ListAllReservationsInput struct {
	Actor  *domain.User
	Status domain.ReservationStatus
	UserID int64
	BookID int64
	Limit  int
	Offset int
}

// ReservationDetails pairs a reservation with its book. Book is nil if
// the book was deleted.
type ReservationDetails struct {
	Reservation *domain.Reservation
	Book        *domain.Book
}

// ListReservationsOutput contains a page of reservations.
type ListReservationsOutput struct {
	Items  []ReservationDetails
	Total  int64
	Limit  int
	Offset int
}

// SendDueRemindersInput contains the data needed to send due-date reminders.
type SendDueRemindersInput struct {
	Actor *domain.User

	// Within selects ACTIVE reservations due before now+Within.
	Within time.Duration
}

// SendDueRemindersOutput reports how many reminders were handed over.
type SendDueRemindersOutput struct {
	Queued int
}

// =============================================================================
// Service Methods
// =============================================================================

// ReserveBook reserves one copy of a book for the actor and notifies the
// actor after the reservation is committed.
func (s *ReservationService) ReserveBook(ctx context.Context, input ReserveBookInput) (*ReserveBookOutput, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}

	reservation, book, err := s.coordinator.Reserve(ctx, input.BookID, input.Actor, input.PeriodDays)
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyReservationCreated(ctx, input.Actor, book, reservation)

	return &ReserveBookOutput{
		Reservation: reservation,
		Book:        book,
	}, nil
}

// ReturnBook records the return of a reserved copy. Librarians only.
func (s *ReservationService) ReturnBook(ctx context.Context, input ReturnBookInput) (*ReturnBookOutput, error) {
	if err := requireLibrarian(input.Actor); err != nil {
		return nil, err
	}

	reservation, book, err := s.coordinator.ReturnCopy(ctx, input.ReservationID)
	if err != nil {
		return nil, err
	}

	return &ReturnBookOutput{
		Reservation: reservation,
		Book:        book,
	}, nil
}

// CancelReservation cancels an ACTIVE reservation owned by the actor, or
// any ACTIVE reservation when the actor is a librarian.
func (s *ReservationService) CancelReservation(ctx context.Context, input CancelReservationInput) (*CancelReservationOutput, error) {
	reservation, book, err := s.coordinator.Cancel(ctx, input.ReservationID, input.Actor)
	if err != nil {
		return nil, err
	}

	return &CancelReservationOutput{
		Reservation: reservation,
		Book:        book,
	}, nil
}

// ListUserReservations returns every reservation of the actor, newest first.
func (s *ReservationService) ListUserReservations(ctx context.Context, input ListUserReservationsInput) (*ListReservationsOutput, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}

	items, err := s.reservations.ListByUser(ctx, input.Actor.ID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", input.Actor.ID).Msg("failed to list user reservations")
		return nil, internalError(err)
	}

	details, err := s.withBooks(ctx, items)
	if err != nil {
		return nil, err
	}

	return &ListReservationsOutput{
		Items: details,
		Total: int64(len(details)),
		Limit: len(details),
	}, nil
}

// ListAllReservations returns a page of all reservations. Librarians only.
func (s *ReservationService) ListAllReservations(ctx context.Context, input ListAllReservationsInput) (*ListReservationsOutput, error) {
	if err := requireLibrarian(input.Actor); err != nil {
		return nil, err
	}

	filter := repository.ReservationFilter{
		Status: input.Status,
		UserID: input.UserID,
		BookID: input.BookID,
	}
	opts := repository.ListOptions{Limit: input.Limit, Offset: input.Offset}.Normalize()

	page, err := s.reservations.List(ctx, filter, opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list reservations")
		return nil, internalError(err)
	}

	details, err := s.withBooks(ctx, page.Items)
	if err != nil {
		return nil, err
	}

	return &ListReservationsOutput{
		Items:  details,
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}, nil
}

// SendDueReminders hands a reminder for every ACTIVE reservation due
// within input.Within to the notifier. Librarians only.
func (s *ReservationService) SendDueReminders(ctx context.Context, input SendDueRemindersInput) (*SendDueRemindersOutput, error) {
	if err := requireLibrarian(input.Actor); err != nil {
		return nil, err
	}
	if input.Within <= 0 {
		return nil, domain.NewDomainError(domain.ErrValidation, "must be positive", "within")
	}

	queued, err := s.QueueDueReminders(ctx, input.Within)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("actor_id", input.Actor.ID).
		Dur("within", input.Within).
		Int("queued", queued).
		Msg("due reminders queued")

	return &SendDueRemindersOutput{Queued: queued}, nil
}

// QueueDueReminders notifies the holder of every ACTIVE reservation due
// before now+within and returns how many reminders were handed over. It
// performs no actor check and is meant for process-level triggers.
func (s *ReservationService) QueueDueReminders(ctx context.Context, within time.Duration) (int, error) {
	due, err := s.reservations.ListActiveDueBefore(ctx, s.now().Add(within))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list due reservations")
		return 0, internalError(err)
	}

	details, err := s.withBooks(ctx, due)
	if err != nil {
		return 0, err
	}

	users := make(map[int64]*domain.User)
	queued := 0
	for _, d := range details {
		if d.Book == nil {
			continue
		}
		user, ok := users[d.Reservation.UserID]
		if !ok {
			user, err = s.users.GetByID(ctx, d.Reservation.UserID)
			if errors.Is(err, domain.ErrUserNotFound) {
				continue
			}
			if err != nil {
				s.logger.Error().Err(err).Int64("user_id", d.Reservation.UserID).Msg("failed to load user")
				return 0, internalError(err)
			}
			users[user.ID] = user
		}
		s.notifier.NotifyDueReminder(ctx, user, d.Book, d.Reservation)
		queued++
	}
	return queued, nil
}

// withBooks attaches books to reservations with one batch lookup.
func (s *ReservationService) withBooks(ctx context.Context, items []*domain.Reservation) ([]ReservationDetails, error) {
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, r := range items {
		if _, ok := seen[r.BookID]; !ok {
			seen[r.BookID] = struct{}{}
			ids = append(ids, r.BookID)
		}
	}

	books, err := s.books.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Int("books", len(ids)).Msg("failed to load books")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	details := make([]ReservationDetails, 0, len(items))
	for _, r := range items {
		details = append(details, ReservationDetails{Reservation: r, Book: books[r.BookID]})
	}
	return details, nil
}

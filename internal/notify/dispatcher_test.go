package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/metrics"
	"github.com/prn-tf/alexander-library/internal/service"
)

var _ service.Notifier = (*Dispatcher)(nil)

type captureSender struct {
	mu    sync.Mutex
	sent  []Message
	err   error
	block chan struct{}
}

func (s *captureSender) Send(ctx context.Context, msg Message) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return s.err
}

func (s *captureSender) messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

func sample() (*domain.User, *domain.Book, *domain.Reservation) {
	user := &domain.User{ID: 1, Email: "alice@example.com"}
	book := &domain.Book{ID: 2, Title: "Dune", Author: "Frank Herbert"}
	day := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)
	res := &domain.Reservation{
		ID:              3,
		UserID:          1,
		BookID:          2,
		ReservationDate: day,
		DueDate:         day.AddDate(0, 0, 14),
		Status:          domain.ReservationActive,
	}
	return user, book, res
}

func TestBuildMessage(t *testing.T) {
	user, book, res := sample()

	msg, err := BuildMessage(KindReservationCreated, user, book, res)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "Book Reservation Confirmation - Dune", msg.Subject)
	assert.Contains(t, msg.Body, "Dear alice@example.com,")
	assert.Contains(t, msg.Body, "- ISBN: N/A")
	assert.Contains(t, msg.Body, "- Reservation Date: Mar 03, 2025")
	assert.Contains(t, msg.Body, "- Due Date: Mar 17, 2025")

	user.Name = "Alice"
	isbn := "978-0441013593"
	book.ISBN = &isbn
	msg, err = BuildMessage(KindDueReminder, user, book, res)
	require.NoError(t, err)
	assert.Equal(t, "Return Reminder - Dune", msg.Subject)
	assert.True(t, strings.HasPrefix(msg.Body, "Dear Alice,"))
	assert.NotContains(t, msg.Body, "ISBN")

	_, err = BuildMessage("unknown", user, book, res)
	assert.Error(t, err)
}

func TestDispatcher_DeliversQueuedMessages(t *testing.T) {
	sender := &captureSender{}
	m := metrics.NewMetrics()
	d := NewDispatcher(sender, m, DispatcherConfig{Workers: 2, QueueSize: 8}, zerolog.Nop())
	d.Start()

	user, book, res := sample()
	d.NotifyReservationCreated(context.Background(), user, book, res)
	d.NotifyDueReminder(context.Background(), user, book, res)
	d.Stop()

	sent := sender.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues(string(KindReservationCreated), metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues(string(KindDueReminder), metrics.OutcomeSuccess)))
}

func TestDispatcher_SenderFailureIsAbsorbed(t *testing.T) {
	sender := &captureSender{err: errors.New("relay refused")}
	m := metrics.NewMetrics()
	d := NewDispatcher(sender, m, DispatcherConfig{Workers: 1, QueueSize: 4}, zerolog.Nop())
	d.Start()

	user, book, res := sample()
	d.NotifyReservationCreated(context.Background(), user, book, res)
	d.Stop()

	assert.Len(t, sender.messages(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues(string(KindReservationCreated), metrics.OutcomeError)))
}

func TestDispatcher_FullQueueDropsWithoutBlocking(t *testing.T) {
	sender := &captureSender{block: make(chan struct{})}
	m := metrics.NewMetrics()
	d := NewDispatcher(sender, m, DispatcherConfig{Workers: 1, QueueSize: 1}, zerolog.Nop())

	user, book, res := sample()

	// Not started: the single slot fills and the rest are dropped.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			d.NotifyReservationCreated(context.Background(), user, book, res)
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked")
	}

	assert.Equal(t, 4.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues(string(KindReservationCreated), metrics.OutcomeDropped)))

	d.Start()
	close(sender.block)
	d.Stop()
	assert.Len(t, sender.messages(), 1)

	// After Stop every message is dropped.
	d.NotifyReservationCreated(context.Background(), user, book, res)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues(string(KindReservationCreated), metrics.OutcomeDropped)))
}

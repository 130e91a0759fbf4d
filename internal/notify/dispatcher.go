package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/metrics"
)

// DispatcherConfig sizes the delivery pool.
type DispatcherConfig struct {
	// Workers is the number of delivery goroutines.
	Workers int

	// QueueSize bounds pending messages.
	QueueSize int

	// SendTimeout bounds a single delivery.
	SendTimeout time.Duration
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:     2,
		QueueSize:   256,
		SendTimeout: 10 * time.Second,
	}
}

// Dispatcher renders lending events into messages and delivers them on a
// pool of workers. Enqueueing never blocks: when the queue is full the
// message is dropped and counted. Delivery failures are logged only.
type Dispatcher struct {
	sender  Sender
	metrics *metrics.Metrics
	config  DispatcherConfig
	logger  zerolog.Logger

	queue chan Message

	mu      sync.RWMutex
	running bool
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a new Dispatcher. Call Start before use.
func NewDispatcher(sender Sender, m *metrics.Metrics, config DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultDispatcherConfig().SendTimeout
	}
	return &Dispatcher{
		sender:  sender,
		metrics: m,
		config:  config,
		logger:  logger.With().Str("service", "notify").Logger(),
		queue:   make(chan Message, config.QueueSize),
	}
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running || d.stopped {
		return
	}
	d.running = true

	d.logger.Info().
		Int("workers", d.config.Workers).
		Int("queue_size", d.config.QueueSize).
		Msg("Starting notification dispatcher")

	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Stop stops accepting messages, drains the queue and waits for the
// workers to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.running = false
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info().Msg("Notification dispatcher stopped")
}

// NotifyReservationCreated queues a reservation confirmation.
func (d *Dispatcher) NotifyReservationCreated(_ context.Context, user *domain.User, book *domain.Book, res *domain.Reservation) {
	d.enqueue(KindReservationCreated, user, book, res)
}

// NotifyDueReminder queues a due-date reminder.
func (d *Dispatcher) NotifyDueReminder(_ context.Context, user *domain.User, book *domain.Book, res *domain.Reservation) {
	d.enqueue(KindDueReminder, user, book, res)
}

func (d *Dispatcher) enqueue(kind Kind, user *domain.User, book *domain.Book, res *domain.Reservation) {
	if user == nil || book == nil || res == nil {
		return
	}

	msg, err := BuildMessage(kind, user, book, res)
	if err != nil {
		d.logger.Error().Err(err).Str("kind", string(kind)).Int64("reservation_id", res.ID).Msg("failed to render notification")
		d.metrics.RecordNotification(string(kind), metrics.OutcomeError)
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		d.drop(msg, "dispatcher stopped")
		return
	}

	select {
	case d.queue <- msg:
		d.metrics.SetNotificationQueueDepth(len(d.queue))
	default:
		d.drop(msg, "queue full")
	}
}

func (d *Dispatcher) drop(msg Message, reason string) {
	d.logger.Warn().
		Str("message_id", msg.ID).
		Str("kind", string(msg.Kind)).
		Str("reason", reason).
		Msg("notification dropped")
	d.metrics.RecordNotification(string(msg.Kind), metrics.OutcomeDropped)
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.metrics.SetNotificationQueueDepth(len(d.queue))
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("message_id", msg.ID).Msg("notification sender panicked")
			d.metrics.RecordNotification(string(msg.Kind), metrics.OutcomeError)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.config.SendTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, msg); err != nil {
		d.logger.Error().
			Err(err).
			Str("message_id", msg.ID).
			Str("kind", string(msg.Kind)).
			Str("to", msg.To).
			Msg("failed to send notification")
		d.metrics.RecordNotification(string(msg.Kind), metrics.OutcomeError)
		return
	}

	d.logger.Debug().Str("message_id", msg.ID).Str("kind", string(msg.Kind)).Msg("notification sent")
	d.metrics.RecordNotification(string(msg.Kind), metrics.OutcomeSuccess)
}

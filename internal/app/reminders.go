package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/lock"
	"github.com/prn-tf/alexander-library/internal/service"
)

// ReminderConfig contains the reminder schedule.
type ReminderConfig struct {
	// Interval is how often reminders are queued.
	Interval time.Duration

	// Window selects ACTIVE reservations due within this duration.
	Window time.Duration
}

// ReminderScheduler is an optional process-level trigger that periodically
// queues due-date reminders. A run holds a cluster-wide lock so that several servers sharing a database do not
// remind the same reservation twice per interval.
type ReminderScheduler struct {
	reservations *service.ReservationService
	locker       lock.Locker
	config       ReminderConfig
	logger       zerolog.Logger

	// Control
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewReminderScheduler creates a new reminder scheduler.
func NewReminderScheduler(
	reservations *service.ReservationService,
	locker lock.Locker,
	config ReminderConfig,
	logger zerolog.Logger,
) *ReminderScheduler {
	return &ReminderScheduler{
		reservations: reservations,
		locker:       locker,
		config:       config,
		logger:       logger.With().Str("component", "reminders").Logger(),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start begins the schedule. The first run happens after one interval.
func (rs *ReminderScheduler) Start() {
	rs.mu.Lock()
	if rs.running {
		rs.mu.Unlock()
		return
	}
	rs.running = true
	rs.mu.Unlock()

	rs.logger.Info().
		Dur("interval", rs.config.Interval).
		Dur("window", rs.config.Window).
		Msg("Starting reminder scheduler")

	go rs.runLoop()
}

// Stop stops the schedule and waits for a running pass to finish.
func (rs *ReminderScheduler) Stop() {
	rs.mu.Lock()
	if !rs.running {
		rs.mu.Unlock()
		return
	}
	rs.running = false
	rs.mu.Unlock()

	close(rs.stopChan)
	<-rs.doneChan

	rs.logger.Info().Msg("Reminder scheduler stopped")
}

func (rs *ReminderScheduler) runLoop() {
	defer close(rs.doneChan)

	ticker := time.NewTicker(rs.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), rs.config.Interval)
			rs.RunOnce(ctx)
			cancel()
		case <-rs.stopChan:
			return
		}
	}
}

// ReminderRun is the outcome of one scheduled pass.
type ReminderRun struct {
	// Skipped is set when another instance held the reminder lock.
	Skipped bool

	// Queued is the number of reminders handed to the notifier.
	Queued int

	Err error
}

// RunOnce queues reminders once unless another instance is already doing so.
func (rs *ReminderScheduler) RunOnce(ctx context.Context) ReminderRun {
	key := lock.Keys.Reminders()
	lockTTL := rs.config.Interval / 2
	if lockTTL < time.Minute {
		lockTTL = time.Minute
	}

	acquired, err := rs.locker.Acquire(ctx, key, lockTTL)
	if err != nil {
		rs.logger.Error().Err(err).Msg("Failed to acquire reminder lock")
		return ReminderRun{Err: err}
	}
	if !acquired {
		rs.logger.Debug().Msg("Reminder lock held by another process, skipping run")
		return ReminderRun{Skipped: true}
	}
	defer func() {
		if _, err := rs.locker.Release(context.WithoutCancel(ctx), key); err != nil {
			rs.logger.Error().Err(err).Msg("Failed to release reminder lock")
		}
	}()

	queued, err := rs.reservations.QueueDueReminders(ctx, rs.config.Window)
	if err != nil {
		return ReminderRun{Err: err}
	}

	rs.logger.Info().
		Int("queued", queued).
		Dur("window", rs.config.Window).
		Msg("Scheduled reminders queued")
	return ReminderRun{Queued: queued}
}

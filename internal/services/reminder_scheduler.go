package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"companion/internal/clock"
	"companion/internal/logging"
	"companion/internal/models"
)

const reminderLockTTL = 2 * time.Minute

// ReminderScheduler is the delivery loop for explicit reminders. It polls for
// due reminders on a fixed interval and drives each one through the
// pending -> attempting -> delivered state machine. Reminders bypass quiet
// hours, budgets, and the circuit breaker entirely.
type ReminderScheduler struct {
	scheduler gocron.Scheduler
	reminders *ReminderService
	state     *StateService
	notifier  Notifier
	redis     *RedisService // optional, dedupes delivery across instances
	clock     clock.Clock
	cfg       models.ProactiveConfig
	metrics   *Metrics

	instanceID string
}

// NewReminderScheduler creates the reminder loop.
func NewReminderScheduler(reminders *ReminderService, state *StateService, notifier Notifier, cfg models.ProactiveConfig) (*ReminderScheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create reminder scheduler: %w", err)
	}

	return &ReminderScheduler{
		scheduler:  scheduler,
		reminders:  reminders,
		state:      state,
		notifier:   notifier,
		clock:      clock.SystemClock{},
		cfg:        cfg,
		instanceID: uuid.New().String(),
	}, nil
}

// SetRedisService attaches the optional cross-instance delivery lock.
func (s *ReminderScheduler) SetRedisService(redis *RedisService) {
	s.redis = redis
}

// SetMetrics attaches the metrics registry (optional).
func (s *ReminderScheduler) SetMetrics(m *Metrics) {
	s.metrics = m
}

// SetClock overrides the clock (used in tests).
func (s *ReminderScheduler) SetClock(c clock.Clock) {
	s.clock = c
}

// Start registers the polling job and starts the loop.
func (s *ReminderScheduler) Start(ctx context.Context) error {
	log.Println("⏰ Starting reminder scheduler...")

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.cfg.ReminderInterval),
		gocron.NewTask(func() {
			s.RunPass(ctx)
		}),
		gocron.WithName("reminder-pass"),
	)
	if err != nil {
		return fmt.Errorf("failed to register reminder job: %w", err)
	}

	s.scheduler.Start()
	log.Printf("✅ Reminder scheduler started (interval: %s)", s.cfg.ReminderInterval)
	return nil
}

// Stop shuts the loop down.
func (s *ReminderScheduler) Stop() error {
	log.Println("⏹️ Stopping reminder scheduler...")
	return s.scheduler.Shutdown()
}

// RunPass queries due reminders and delivers them one by one. A failure on
// one reminder never blocks the rest of the pass.
func (s *ReminderScheduler) RunPass(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.Ticks.WithLabelValues("reminder").Inc()
	}

	now := s.clock.Now()
	due, err := s.reminders.QueryDue(ctx, now)
	if err != nil {
		logging.WithLoop("reminder").Error("failed to query due reminders", "error", err)
		return
	}

	for _, r := range due {
		if ctx.Err() != nil {
			return
		}
		s.deliverOne(ctx, r, now)
	}
}

func (s *ReminderScheduler) deliverOne(ctx context.Context, r *models.Reminder, now time.Time) {
	logger := logging.WithReminder(logging.WithLoop("reminder"), r.ID, r.Attempts+1)

	if s.redis != nil {
		lockKey := fmt.Sprintf("reminder-lock:%s", r.ID)
		acquired, err := s.redis.AcquireLock(ctx, lockKey, s.instanceID, reminderLockTTL)
		if err != nil {
			logger.Error("failed to acquire reminder lock", "error", err)
			return
		}
		if !acquired {
			logger.Info("reminder held by another instance, skipping")
			return
		}
		defer func() {
			if _, err := s.redis.ReleaseLock(ctx, lockKey, s.instanceID); err != nil {
				logger.Warn("failed to release reminder lock", "error", err)
			}
		}()
	}

	// Cancellation may have landed between the due query and now.
	cancelled, err := s.reminders.IsCancelled(ctx, r.ID)
	if err != nil {
		logger.Error("failed to re-check cancellation", "error", err)
		return
	}
	if cancelled {
		logger.Info("reminder cancelled before delivery, skipping")
		return
	}

	if err := s.reminders.MarkAttempting(ctx, r.ID); err != nil {
		logger.Error("failed to mark reminder attempting", "error", err)
		return
	}

	err = s.notifier.Deliver(ctx, r.UserID, r.Message, DeliveryMeta{
		Type:       "reminder",
		ReminderID: r.ID,
	})
	if err != nil {
		derr := &DeliveryError{Kind: "reminder", Err: err}
		logger.Error("reminder delivery failed, will retry", "error", derr)
		if s.metrics != nil {
			s.metrics.ReminderFailures.Inc()
		}
		if rerr := s.reminders.RecordFailure(ctx, r.ID, err); rerr != nil {
			logger.Error("failed to record delivery failure", "error", rerr)
		}
		return
	}

	deliveredAt := s.clock.Now()
	if err := s.reminders.MarkDelivered(ctx, r.ID, deliveredAt); err != nil {
		logger.Error("delivered but failed to finalize status", "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.ReminderDeliveries.Inc()
	}

	if r.Recurrence != "" {
		next, err := s.reminders.RearmRecurring(ctx, r, deliveredAt)
		if err != nil {
			logger.Error("failed to re-arm recurring reminder", "error", err)
		} else {
			logger.Info("recurring reminder re-armed", "next", next)
		}
	}

	// Stamp the shared state. This blocks on the lock; reminder delivery
	// already happened, so waiting here cannot delay the send.
	err = s.state.WithLock(ctx, func(st *models.ProactiveState) error {
		t := deliveredAt.UTC()
		st.LastReminderAt = &t
		return nil
	})
	if err != nil {
		logger.Error("failed to stamp reminder delivery in state", "error", err)
		return
	}

	logger.Info("reminder delivered")
}

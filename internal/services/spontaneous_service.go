package services

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"companion/internal/clock"
	"companion/internal/logging"
	"companion/internal/models"
)

// Suppression reasons recorded when a spontaneous tick decides not to speak
// before consulting the decision maker.
const (
	suppressLevelOff  = "level_off"
	suppressBrainBusy = "brain_busy"
	suppressBreaker   = "breaker"
	suppressQuiet     = "quiet_hours"
	suppressBudget    = "budget"
)

// SpontaneousService is the loop that lets the assistant speak unprompted.
// Each tick runs in three phases: gate checks under the bounded lock, a
// decision call outside the lock, then re-validation and delivery under the
// lock again. The decision call is the only slow part and never holds the
// shared state.
type SpontaneousService struct {
	scheduler gocron.Scheduler
	state     *StateService
	builder   *ContextBuilder
	decider   SpeakDecider
	notifier  Notifier
	clock     clock.Clock
	cfg       models.ProactiveConfig
	metrics   *Metrics
	userID    string

	// brainBusy is set while the conversational pipeline is mid-response;
	// speaking over the user's own exchange is never worth it.
	brainBusy atomic.Bool
}

// NewSpontaneousService creates the spontaneous loop.
func NewSpontaneousService(state *StateService, builder *ContextBuilder, decider SpeakDecider, notifier Notifier, cfg models.ProactiveConfig, userID string) (*SpontaneousService, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create spontaneous scheduler: %w", err)
	}

	return &SpontaneousService{
		scheduler: scheduler,
		state:     state,
		builder:   builder,
		decider:   decider,
		notifier:  notifier,
		clock:     clock.SystemClock{},
		cfg:       cfg,
		userID:    userID,
	}, nil
}

// SetMetrics attaches the metrics registry (optional).
func (s *SpontaneousService) SetMetrics(m *Metrics) {
	s.metrics = m
}

// SetClock overrides the clock (used in tests).
func (s *SpontaneousService) SetClock(c clock.Clock) {
	s.clock = c
}

// SetBrainProcessing flags that the conversational pipeline is busy. Ticks
// arriving while the flag is set stay silent.
func (s *SpontaneousService) SetBrainProcessing(busy bool) {
	s.brainBusy.Store(busy)
}

// Start registers the tick job and starts the loop.
func (s *SpontaneousService) Start(ctx context.Context) error {
	log.Println("💭 Starting spontaneous loop...")

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.cfg.TickInterval),
		gocron.NewTask(func() {
			s.RunTick(ctx)
		}),
		gocron.WithName("spontaneous-tick"),
	)
	if err != nil {
		return fmt.Errorf("failed to register spontaneous job: %w", err)
	}

	s.scheduler.Start()
	log.Printf("✅ Spontaneous loop started (tick: %s, level: %s)", s.cfg.TickInterval, s.cfg.Level)
	return nil
}

// Stop shuts the loop down. A decision already in flight finishes, notices
// the done context, and discards its result without delivering.
func (s *SpontaneousService) Stop() error {
	log.Println("⏹️ Stopping spontaneous loop...")
	return s.scheduler.Shutdown()
}

// RunTick runs one full spontaneous tick.
func (s *SpontaneousService) RunTick(ctx context.Context) {
	logger := logging.WithLoop("spontaneous")
	if s.metrics != nil {
		s.metrics.Ticks.WithLabelValues("spontaneous").Inc()
	}

	now := s.clock.Now()
	loc, ok := clock.LocationOrUTC(s.cfg.Timezone)
	if !ok {
		logger.Warn("invalid timezone, using UTC", "timezone", s.cfg.Timezone)
	}

	// Phase 1: gates under the bounded lock. A gate-suppressed tick commits
	// watermark rollovers and breaker expiry but nothing else; in particular
	// it does not reset the consecutive-spoken counter.
	var snapshot models.ProactiveState
	var reason string
	err := s.state.TryWithLock(ctx, func(st *models.ProactiveState) error {
		ClearBreakerIfExpired(st, now)
		hour, _, date := clock.LocalParts(now, loc)
		RolloverWatermarks(st, date, hour)
		reason = s.gateReason(*st, now, hour)
		snapshot = *st
		return nil
	})
	if err == ErrLockBusy {
		logger.Debug("state lock busy, skipping tick")
		return
	}
	if err != nil {
		logger.Error("tick gate phase failed", "error", err)
		return
	}
	if reason != "" {
		logger.Debug("tick suppressed", "reason", reason)
		if s.metrics != nil {
			s.metrics.SpontaneousSuppressed.WithLabelValues(reason).Inc()
		}
		return
	}

	// Phase 2: the decision call, outside the lock.
	sctx := s.builder.Build(ctx, snapshot, s.cfg, now)

	dctx, cancel := context.WithTimeout(ctx, s.cfg.DecisionTimeout)
	defer cancel()

	started := time.Now()
	decision, err := s.decider.Decide(dctx, sctx)
	if s.metrics != nil {
		s.metrics.DecisionLatency.Observe(time.Since(started).Seconds())
	}
	if err != nil {
		kind := "error"
		if err == ErrDecisionTimeout {
			kind = "timeout"
		}
		logger.Warn("decision failed, staying silent", "kind", kind, "error", err)
		if s.metrics != nil {
			s.metrics.DecisionErrors.WithLabelValues(kind).Inc()
		}
		s.recordSilent(ctx, logger)
		return
	}

	// Phase 3: re-validate and deliver under the lock. The decision call may
	// have taken long enough for quiet hours to start, the budget to drain,
	// or a shutdown to begin.
	s.finishTick(ctx, decision, loc, logger)
}

// gateReason evaluates the pre-decision gates against current state.
// Returns "" when the tick may proceed to the decision maker.
func (s *SpontaneousService) gateReason(st models.ProactiveState, now time.Time, hour int) string {
	if s.cfg.Level == models.ProactivityOff {
		return suppressLevelOff
	}
	if s.brainBusy.Load() {
		return suppressBrainBusy
	}
	if BreakerTripped(st, now) {
		return suppressBreaker
	}
	if QuietSuppressed(st, s.cfg, now, hour) {
		return suppressQuiet
	}
	loc, _ := clock.LocationOrUTC(s.cfg.Timezone)
	if !EvaluateBudget(st, s.cfg, now, loc).Permits() {
		return suppressBudget
	}
	return ""
}

// recordSilent resets the consecutive-spoken counter after a tick that
// reached the decision maker but produced no message.
func (s *SpontaneousService) recordSilent(ctx context.Context, logger *slog.Logger) {
	err := s.state.TryWithLock(ctx, func(st *models.ProactiveState) error {
		RecordSilentTick(st)
		return nil
	})
	if err != nil && err != ErrLockBusy {
		logger.Error("failed to record silent tick", "error", err)
	}
}

func (s *SpontaneousService) finishTick(ctx context.Context, decision models.SpontaneousDecision, loc *time.Location, logger *slog.Logger) {
	err := s.state.TryWithLock(ctx, func(st *models.ProactiveState) error {
		// A shutdown that began during the decision call discards the result.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		now := s.clock.Now()
		ClearBreakerIfExpired(st, now)
		hour, _, date := clock.LocalParts(now, loc)
		RolloverWatermarks(st, date, hour)

		if !decision.ShouldSpeak {
			logger.Debug("decision: stay silent", "reason", decision.Reason)
			RecordSilentTick(st)
			return nil
		}

		if reason := s.gateReason(*st, now, hour); reason != "" {
			logger.Info("decision invalidated by re-check, staying silent", "reason", reason)
			if s.metrics != nil {
				s.metrics.SpontaneousSuppressed.WithLabelValues(reason).Inc()
			}
			RecordSilentTick(st)
			return nil
		}

		// Greeting dedup: one greeting per window type per local day.
		window, windowOpen := OpenGreetingWindow(s.cfg, hour)
		if decision.MessageType == models.MessageTypeGreeting {
			if !windowOpen {
				logger.Info("greeting outside any window, staying silent")
				RecordSilentTick(st)
				return nil
			}
			if GreetingUsedToday(*st, window, date) {
				logger.Info("greeting window already used today, staying silent", "window", window)
				RecordSilentTick(st)
				return nil
			}
		}

		// Delivery happens inside the lock so the budget accounting and the
		// send commit (or abort) together.
		err := s.notifier.Deliver(ctx, s.userID, decision.Message, DeliveryMeta{Type: "spontaneous"})
		if err != nil {
			derr := &DeliveryError{Kind: "spontaneous", Err: err}
			logger.Error("spontaneous delivery failed, abandoning tick", "error", derr)
			RecordSilentTick(st)
			return nil
		}

		RecordSpontaneousSend(st, now)
		if decision.MessageType == models.MessageTypeGreeting {
			st.LastGreetingType = window
			st.LastGreetingDate = date
		}
		if RecordSpokenTick(st, s.cfg, now) {
			logger.Info("circuit breaker tripped", "until", st.BreakerTrippedUntil)
			if s.metrics != nil {
				s.metrics.BreakerTrips.Inc()
			}
		}
		if s.metrics != nil {
			s.metrics.SpontaneousSent.WithLabelValues(string(decision.MessageType)).Inc()
		}
		logger.Info("spontaneous message sent", "type", decision.MessageType, "reason", decision.Reason)
		return nil
	})
	if err == ErrLockBusy {
		logger.Debug("state lock busy after decision, result discarded")
		return
	}
	if err != nil && ctx.Err() == nil {
		logger.Error("tick delivery phase failed", "error", err)
	}
}

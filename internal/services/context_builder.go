package services

import (
	"context"
	"log/slog"
	"time"

	"companion/internal/clock"
	"companion/internal/models"
)

const maxContextFacts = 5

// ContextBuilder assembles the read-only snapshot handed to the decision
// maker each spontaneous tick.
type ContextBuilder struct {
	memory *MemoryService
}

// NewContextBuilder creates a context builder.
func NewContextBuilder(memory *MemoryService) *ContextBuilder {
	return &ContextBuilder{memory: memory}
}

// Build derives the decision context from a state snapshot taken under the
// lock. It runs outside the lock and never mutates the snapshot.
func (b *ContextBuilder) Build(ctx context.Context, st models.ProactiveState, cfg models.ProactiveConfig, now time.Time) models.SpontaneousContext {
	loc, ok := clock.LocationOrUTC(cfg.Timezone)
	if !ok {
		slog.Warn("falling back to UTC for decision context", "timezone", cfg.Timezone)
	}
	hour, weekday, date := clock.LocalParts(now, loc)
	budget := EvaluateBudget(st, cfg, now, loc)

	minutesSinceMessage := -1
	if st.LastUserMessageAt != nil {
		minutesSinceMessage = int(now.Sub(*st.LastUserMessageAt).Minutes())
	}
	hoursSinceActivity := -1.0
	if st.LastUserActivityAt != nil {
		hoursSinceActivity = now.Sub(*st.LastUserActivityAt).Hours()
	}

	sctx := models.SpontaneousContext{
		LocalTime:               now.In(loc).Format("15:04"),
		Weekday:                 weekday.String(),
		Date:                    date,
		Hour:                    hour,
		Timezone:                cfg.Timezone,
		MinutesSinceUserMessage: minutesSinceMessage,
		HoursSinceUserActivity:  hoursSinceActivity,
		IsQuietHours:            QuietSuppressed(st, cfg, now, hour),
		RemainingThisHour:       budget.RemainingThisHour,
		RemainingToday:          budget.RemainingToday,
		CooldownActive:          budget.CooldownActive,
		Level:                   cfg.Level,
	}

	if window, open := OpenGreetingWindow(cfg, hour); open {
		sctx.OpenGreeting = window
		sctx.GreetingUsedToday = GreetingUsedToday(st, window, date)
	}

	if b.memory != nil {
		facts, err := b.memory.RelevantFacts(ctx, maxContextFacts)
		if err != nil {
			slog.Warn("building context without memory facts", "error", err)
		} else {
			sctx.MemoryFacts = facts
		}
	}

	return sctx
}

package services

import (
	"context"
	"time"

	"companion/internal/models"
)

// ActivityService records user presence signals into the shared state so the
// spontaneous loop can reason about recency. These writes block on the state
// lock; they are driven by API calls, not by ticks.
type ActivityService struct {
	state *StateService
}

// NewActivityService creates the activity recorder.
func NewActivityService(state *StateService) *ActivityService {
	return &ActivityService{state: state}
}

// RecordUserMessage stamps both the message and activity clocks.
func (s *ActivityService) RecordUserMessage(ctx context.Context, at time.Time) error {
	return s.state.WithLock(ctx, func(st *models.ProactiveState) error {
		t := at.UTC()
		st.LastUserMessageAt = &t
		st.LastUserActivityAt = &t
		return nil
	})
}

// RecordUserActivity stamps the activity clock only (presence pings,
// app-open events, anything short of an actual message).
func (s *ActivityService) RecordUserActivity(ctx context.Context, at time.Time) error {
	return s.state.WithLock(ctx, func(st *models.ProactiveState) error {
		t := at.UTC()
		st.LastUserActivityAt = &t
		return nil
	})
}

// SetQuietMode silences spontaneous messages until the given instant.
// A zero time clears the override.
func (s *ActivityService) SetQuietMode(ctx context.Context, until time.Time) error {
	return s.state.WithLock(ctx, func(st *models.ProactiveState) error {
		if until.IsZero() {
			st.QuietModeUntil = nil
			return nil
		}
		t := until.UTC()
		st.QuietModeUntil = &t
		return nil
	})
}

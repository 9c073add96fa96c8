package services

import (
	"time"

	"companion/internal/models"
)

// BreakerCooldownTicks is how many tick intervals the breaker stays tripped.
const BreakerCooldownTicks = 10

// BreakerTripped reports whether the breaker currently suppresses all
// spontaneous speech. A tick observed at or after the trip deadline counts
// as armed again.
func BreakerTripped(st models.ProactiveState, now time.Time) bool {
	return st.BreakerTrippedUntil != nil && now.Before(*st.BreakerTrippedUntil)
}

// ClearBreakerIfExpired re-arms the breaker on the first tick at or past the
// trip deadline: the field is cleared and the consecutive counter zeroed.
// Returns true when the state changed.
func ClearBreakerIfExpired(st *models.ProactiveState, now time.Time) bool {
	if st.BreakerTrippedUntil == nil || now.Before(*st.BreakerTrippedUntil) {
		return false
	}
	st.BreakerTrippedUntil = nil
	st.ConsecutiveTicksWithMessage = 0
	return true
}

// RecordSpokenTick increments the consecutive-spoken counter and trips the
// breaker when it reaches the threshold exactly. Returns true on trip.
func RecordSpokenTick(st *models.ProactiveState, cfg models.ProactiveConfig, now time.Time) bool {
	st.ConsecutiveTicksWithMessage++
	if st.ConsecutiveTicksWithMessage < cfg.BreakerThreshold {
		return false
	}
	until := now.Add(time.Duration(BreakerCooldownTicks) * cfg.TickInterval)
	st.BreakerTrippedUntil = &until
	return true
}

// RecordSilentTick resets the consecutive-spoken counter after a tick that
// produced no message (decision said no, timed out, or failed re-validation).
func RecordSilentTick(st *models.ProactiveState) {
	st.ConsecutiveTicksWithMessage = 0
}

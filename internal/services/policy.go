package services

import (
	"time"

	"companion/internal/clock"
	"companion/internal/models"
)

// BudgetReport is the result of evaluating the spontaneous rate limits at one
// instant. It is computed from state + config alone and never touches storage.
type BudgetReport struct {
	Date string
	Hour int

	// Effective counts after lazy reset: a counter whose watermark does not
	// match the current bucket is treated as zero without being written.
	EffectiveHourCount int
	EffectiveDayCount  int

	RemainingThisHour int
	RemainingToday    int
	CooldownActive    bool
}

// Permits reports whether the rate limits allow a spontaneous message now.
func (r BudgetReport) Permits() bool {
	return r.RemainingToday > 0 && r.RemainingThisHour > 0 && !r.CooldownActive
}

// EvaluateBudget applies the lazy-reset window rules from the user's local
// calendar. The counters themselves are only rewritten on commit, not here.
func EvaluateBudget(st models.ProactiveState, cfg models.ProactiveConfig, now time.Time, loc *time.Location) BudgetReport {
	hour, _, date := clock.LocalParts(now, loc)

	dayCount := st.CountToday
	if st.DailyCountDate != date {
		dayCount = 0
	}
	hourCount := st.CountThisHour
	if st.HourlyCountHr != hour {
		hourCount = 0
	}

	remainingDay := cfg.MaxPerDay - dayCount
	if remainingDay < 0 {
		remainingDay = 0
	}
	remainingHour := cfg.MaxPerHour - hourCount
	if remainingHour < 0 {
		remainingHour = 0
	}

	cooldown := st.LastSpontaneousAt != nil &&
		now.Sub(*st.LastSpontaneousAt) < cfg.MinCooldown

	return BudgetReport{
		Date:               date,
		Hour:               hour,
		EffectiveHourCount: hourCount,
		EffectiveDayCount:  dayCount,
		RemainingThisHour:  remainingHour,
		RemainingToday:     remainingDay,
		CooldownActive:     cooldown,
	}
}

// IsWithinQuietHours reports whether the local hour falls inside the
// configured quiet window, including wrap-around windows like 22 -> 8.
func IsWithinQuietHours(hour, start, end int) bool {
	return clock.InWindow(hour, start, end)
}

// QuietSuppressed reports whether spontaneous speech is currently silenced,
// either by the scheduled quiet hours or by a manual quiet-mode override.
// Reminders ignore this entirely.
func QuietSuppressed(st models.ProactiveState, cfg models.ProactiveConfig, now time.Time, hour int) bool {
	if IsWithinQuietHours(hour, cfg.QuietHoursStart, cfg.QuietHoursEnd) {
		return true
	}
	return st.QuietModeUntil != nil && now.Before(*st.QuietModeUntil)
}

// OpenGreetingWindow returns which greeting window (if any) contains the
// local hour. Windows are checked in day order; they are expected not to
// overlap.
func OpenGreetingWindow(cfg models.ProactiveConfig, hour int) (models.GreetingType, bool) {
	for _, t := range []models.GreetingType{models.GreetingMorning, models.GreetingAfternoon, models.GreetingEvening} {
		w := cfg.Window(t)
		if clock.InWindow(hour, w.Start, w.End) {
			return t, true
		}
	}
	return "", false
}

// GreetingUsedToday reports whether a greeting of the given window type was
// already sent on the given local date.
func GreetingUsedToday(st models.ProactiveState, t models.GreetingType, date string) bool {
	return st.LastGreetingType == t && st.LastGreetingDate == date
}

// RolloverWatermarks normalizes stale counter buckets in place once a new
// local day or hour is observed. Returns true when anything changed; the
// caller commits. This is the only place the lazy reset becomes durable.
func RolloverWatermarks(st *models.ProactiveState, date string, hour int) bool {
	changed := false
	if st.DailyCountDate != date {
		st.DailyCountDate = date
		st.CountToday = 0
		changed = true
	}
	if st.HourlyCountHr != hour {
		st.HourlyCountHr = hour
		st.CountThisHour = 0
		changed = true
	}
	return changed
}

// RecordSpontaneousSend updates the rate-limit bookkeeping after a successful
// spontaneous delivery. Watermarks must already be current (RolloverWatermarks).
func RecordSpontaneousSend(st *models.ProactiveState, now time.Time) {
	sent := now
	st.LastSpontaneousAt = &sent
	st.CountToday++
	st.CountThisHour++
}

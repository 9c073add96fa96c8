package models

import (
	"fmt"
	"time"
)

// ProactivityLevel controls how eager the spontaneous loop is allowed to be.
type ProactivityLevel string

const (
	ProactivityOff    ProactivityLevel = "off"
	ProactivityLow    ProactivityLevel = "low"
	ProactivityMedium ProactivityLevel = "medium"
	ProactivityHigh   ProactivityLevel = "high"
)

// Valid reports whether the level is one of the known values.
func (l ProactivityLevel) Valid() bool {
	switch l {
	case ProactivityOff, ProactivityLow, ProactivityMedium, ProactivityHigh:
		return true
	}
	return false
}

// GreetingType identifies a greeting window.
type GreetingType string

const (
	GreetingMorning   GreetingType = "morning"
	GreetingAfternoon GreetingType = "afternoon"
	GreetingEvening   GreetingType = "evening"
)

// MessageType classifies what kind of spontaneous message the decider chose.
type MessageType string

const (
	MessageTypeGreeting   MessageType = "greeting"
	MessageTypeCheckin    MessageType = "checkin"
	MessageTypeContextual MessageType = "contextual"
	MessageTypeReminder   MessageType = "reminder"
	MessageTypeNone       MessageType = "none"
)

// Valid reports whether the message type is one of the known values.
func (m MessageType) Valid() bool {
	switch m {
	case MessageTypeGreeting, MessageTypeCheckin, MessageTypeContextual, MessageTypeReminder, MessageTypeNone:
		return true
	}
	return false
}

// GreetingWindow is a half-open [Start, End) local-hour range.
type GreetingWindow struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// ProactiveConfig is the immutable per-process tuning for the proactive
// control system. Hours are local to Timezone.
type ProactiveConfig struct {
	TickInterval     time.Duration    `json:"tickInterval" yaml:"tick_interval"`
	ReminderInterval time.Duration    `json:"reminderInterval" yaml:"reminder_interval"`
	MinCooldown      time.Duration    `json:"minCooldown" yaml:"min_cooldown"`
	MaxPerHour       int              `json:"maxPerHour" yaml:"max_per_hour"`
	MaxPerDay        int              `json:"maxPerDay" yaml:"max_per_day"`
	QuietHoursStart  int              `json:"quietHoursStart" yaml:"quiet_hours_start"`
	QuietHoursEnd    int              `json:"quietHoursEnd" yaml:"quiet_hours_end"`
	BreakerThreshold int              `json:"breakerThreshold" yaml:"breaker_threshold"`
	DecisionTimeout  time.Duration    `json:"decisionTimeout" yaml:"decision_timeout"`
	Level            ProactivityLevel `json:"level" yaml:"level"`
	Timezone         string           `json:"timezone" yaml:"timezone"`
	MorningWindow    GreetingWindow   `json:"morningWindow" yaml:"morning_window"`
	AfternoonWindow  GreetingWindow   `json:"afternoonWindow" yaml:"afternoon_window"`
	EveningWindow    GreetingWindow   `json:"eveningWindow" yaml:"evening_window"`
}

// Window returns the configured greeting window for the given type.
func (c ProactiveConfig) Window(t GreetingType) GreetingWindow {
	switch t {
	case GreetingMorning:
		return c.MorningWindow
	case GreetingAfternoon:
		return c.AfternoonWindow
	default:
		return c.EveningWindow
	}
}

// Validate checks hour ranges and enum fields.
func (c ProactiveConfig) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	if c.ReminderInterval <= 0 {
		return fmt.Errorf("reminder interval must be positive")
	}
	if c.MaxPerHour < 0 || c.MaxPerDay < 0 {
		return fmt.Errorf("spontaneous budgets must not be negative")
	}
	if c.BreakerThreshold < 1 {
		return fmt.Errorf("breaker threshold must be at least 1")
	}
	if !c.Level.Valid() {
		return fmt.Errorf("unknown proactivity level %q", c.Level)
	}
	hours := []int{
		c.QuietHoursStart, c.QuietHoursEnd,
		c.MorningWindow.Start, c.MorningWindow.End,
		c.AfternoonWindow.Start, c.AfternoonWindow.End,
		c.EveningWindow.Start, c.EveningWindow.End,
	}
	for _, h := range hours {
		if h < 0 || h > 23 {
			return fmt.Errorf("hour-of-day %d out of range 0-23", h)
		}
	}
	return nil
}

// ProactiveState is the single durable record shared by the reminder
// scheduler and the spontaneous loop. It is always read-modify-written as a
// unit under the state service lock.
type ProactiveState struct {
	LastSpontaneousAt *time.Time `json:"lastSpontaneousAt,omitempty"`
	LastReminderAt    *time.Time `json:"lastReminderAt,omitempty"`

	// Lazily-reset fixed buckets: the counters are only trusted while the
	// matching watermark equals the current local date/hour.
	CountToday     int    `json:"countToday"`
	CountThisHour  int    `json:"countThisHour"`
	DailyCountDate string `json:"dailyCountDate,omitempty"`
	HourlyCountHr  int    `json:"hourlyCountHour"`

	ConsecutiveTicksWithMessage int        `json:"consecutiveTicksWithMessage"`
	BreakerTrippedUntil         *time.Time `json:"breakerTrippedUntil,omitempty"`
	ConsecutiveMutexSkips       int        `json:"consecutiveMutexSkips"`

	LastUserMessageAt  *time.Time `json:"lastUserMessageAt,omitempty"`
	LastUserActivityAt *time.Time `json:"lastUserActivityAt,omitempty"`

	LastGreetingType GreetingType `json:"lastGreetingType,omitempty"`
	LastGreetingDate string       `json:"lastGreetingDate,omitempty"`

	QuietModeUntil *time.Time `json:"quietModeUntil,omitempty"`
}

// InitialProactiveState returns the all-absent starting record.
// HourlyCountHr uses -1 so hour 0 is not mistaken for a live bucket.
func InitialProactiveState() ProactiveState {
	return ProactiveState{HourlyCountHr: -1}
}

// SpontaneousContext is the read-only snapshot handed to the decision maker.
// Built fresh each tick, never persisted.
type SpontaneousContext struct {
	LocalTime    string `json:"localTime"`
	Weekday      string `json:"weekday"`
	Date         string `json:"date"`
	Hour         int    `json:"hour"`
	Timezone     string `json:"timezone"`
	MinutesSinceUserMessage int     `json:"minutesSinceUserMessage"` // -1 when the user never wrote
	HoursSinceUserActivity  float64 `json:"hoursSinceUserActivity"`  // -1 when never active

	IsQuietHours      bool         `json:"isQuietHours"`
	OpenGreeting      GreetingType `json:"openGreetingWindow,omitempty"`
	GreetingUsedToday bool         `json:"greetingUsedToday"`

	RemainingThisHour int  `json:"remainingThisHour"`
	RemainingToday    int  `json:"remainingToday"`
	CooldownActive    bool `json:"cooldownActive"`

	MemoryFacts []string         `json:"memoryFacts,omitempty"`
	Level       ProactivityLevel `json:"proactivityLevel"`
}

// SpontaneousDecision is what the decision maker returns.
type SpontaneousDecision struct {
	ShouldSpeak bool        `json:"should_speak"`
	Reason      string      `json:"reason,omitempty"`
	MessageType MessageType `json:"message_type"`
	Message     string      `json:"message,omitempty"`
}

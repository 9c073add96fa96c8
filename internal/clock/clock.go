package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock abstracts time.Now so loop logic can be tested against a fixed instant.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock is a test clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a manual clock pinned at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the pinned instant.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set pins the clock at t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ErrInvalidTimezone is returned when an IANA timezone string cannot be loaded.
// Callers should fall back to UTC and log a warning rather than fail the tick.
type ErrInvalidTimezone struct {
	Timezone string
	Err      error
}

func (e *ErrInvalidTimezone) Error() string {
	return fmt.Sprintf("invalid timezone %q: %v", e.Timezone, e.Err)
}

func (e *ErrInvalidTimezone) Unwrap() error {
	return e.Err
}

// Location resolves an IANA timezone name. An empty name means UTC.
func Location(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, &ErrInvalidTimezone{Timezone: tz, Err: err}
	}
	return loc, nil
}

// LocationOrUTC resolves tz, falling back to UTC. The second return value is
// false when the fallback was taken.
func LocationOrUTC(tz string) (*time.Location, bool) {
	loc, err := Location(tz)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

// LocalParts converts a UTC instant to the user's wall clock: hour of day
// (0-23), weekday, and calendar date string (2006-01-02).
func LocalParts(at time.Time, loc *time.Location) (hour int, weekday time.Weekday, date string) {
	local := at.In(loc)
	return local.Hour(), local.Weekday(), local.Format("2006-01-02")
}

// InWindow reports whether hour falls inside the half-open window
// [start, end). A wrap-around window (start > end, e.g. 22 -> 8) matches
// hour >= start or hour < end. start == end is an empty window.
func InWindow(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

package services

import (
	"errors"
	"fmt"
)

// ErrLockBusy is returned by bounded lock acquisition when the shared state
// is held by the other loop. The tick is skipped, never blocked.
var ErrLockBusy = errors.New("proactive state lock busy")

// ErrDecisionTimeout marks a decision-maker call that did not answer within
// the configured bound. A timed-out decision never defaults to speaking.
var ErrDecisionTimeout = errors.New("decision timed out")

// ErrReminderNotFound is returned for lookups of unknown reminder IDs.
var ErrReminderNotFound = errors.New("reminder not found")

// ErrMemoryNotFound is returned for lookups of unknown memory fact IDs.
var ErrMemoryNotFound = errors.New("memory fact not found")

// DeliveryError wraps a notification sink failure. Reminder deliveries retry
// on the next tick; spontaneous deliveries abandon the tick.
type DeliveryError struct {
	Kind string // "reminder" or "spontaneous"
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// DataIntegrityError marks a single malformed stored record. The affected
// record is skipped and logged; the loop keeps running.
type DataIntegrityError struct {
	Record string
	Err    error
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity error on %s: %v", e.Record, e.Err)
}

func (e *DataIntegrityError) Unwrap() error {
	return e.Err
}

package models

import (
	"fmt"
	"strings"
	"time"
)

// ReminderStatus is the delivery lifecycle of a reminder.
// pending -> attempting -> delivered; cancellation is terminal at any point.
type ReminderStatus string

const (
	ReminderPending    ReminderStatus = "pending"
	ReminderAttempting ReminderStatus = "attempting"
	ReminderDelivered  ReminderStatus = "delivered"
)

// Reminder is an explicit user-requested message with a trigger time.
// Reminders are never subject to quiet hours or spontaneous budgets.
type Reminder struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	Message     string         `json:"message"`
	TriggerAt   time.Time      `json:"triggerAt"`
	CreatedAt   time.Time      `json:"createdAt"`
	Status      ReminderStatus `json:"status"`
	TriggeredAt *time.Time     `json:"triggeredAt,omitempty"`
	Cancelled   bool           `json:"cancelled"`
	Attempts    int            `json:"attempts"`
	// Recurrence is an optional 5-field cron expression. When set, a
	// delivered reminder is re-armed at the next occurrence instead of
	// becoming terminal.
	Recurrence string `json:"recurrence,omitempty"`
	LastError  string `json:"lastError,omitempty"`
}

// CreateReminderRequest is the API payload for creating a reminder.
type CreateReminderRequest struct {
	Message    string `json:"message"`
	TriggerAt  string `json:"triggerAt"` // RFC3339
	Recurrence string `json:"recurrence,omitempty"`
}

// Validate checks the payload and parses the trigger time.
func (r *CreateReminderRequest) Validate() (time.Time, error) {
	if strings.TrimSpace(r.Message) == "" {
		return time.Time{}, fmt.Errorf("message is required")
	}
	triggerAt, err := time.Parse(time.RFC3339, r.TriggerAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid triggerAt (want RFC3339): %w", err)
	}
	return triggerAt.UTC(), nil
}

// ReminderResponse is the API representation of a reminder.
type ReminderResponse struct {
	ID          string     `json:"id"`
	Message     string     `json:"message"`
	TriggerAt   time.Time  `json:"triggerAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	Status      string     `json:"status"`
	TriggeredAt *time.Time `json:"triggeredAt,omitempty"`
	Cancelled   bool       `json:"cancelled"`
	Attempts    int        `json:"attempts"`
	Recurrence  string     `json:"recurrence,omitempty"`
}

// ToResponse converts a Reminder to its API representation.
func (r *Reminder) ToResponse() *ReminderResponse {
	return &ReminderResponse{
		ID:          r.ID,
		Message:     r.Message,
		TriggerAt:   r.TriggerAt,
		CreatedAt:   r.CreatedAt,
		Status:      string(r.Status),
		TriggeredAt: r.TriggeredAt,
		Cancelled:   r.Cancelled,
		Attempts:    r.Attempts,
		Recurrence:  r.Recurrence,
	}
}

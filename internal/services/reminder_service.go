package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"companion/internal/database"
	"companion/internal/models"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ReminderService owns reminder persistence and the delivery state machine:
// pending -> attempting -> delivered, with cancellation terminal at any point.
type ReminderService struct {
	db *database.DB
}

// NewReminderService creates the reminder store.
func NewReminderService(db *database.DB) *ReminderService {
	return &ReminderService{db: db}
}

// Create stores a new pending reminder.
func (s *ReminderService) Create(ctx context.Context, userID, message string, triggerAt time.Time, recurrence string) (*models.Reminder, error) {
	if recurrence != "" {
		if _, err := cronParser.Parse(recurrence); err != nil {
			return nil, fmt.Errorf("invalid recurrence expression: %w", err)
		}
	}

	r := &models.Reminder{
		ID:         uuid.New().String(),
		UserID:     userID,
		Message:    message,
		TriggerAt:  triggerAt.UTC(),
		CreatedAt:  time.Now().UTC(),
		Status:     models.ReminderPending,
		Recurrence: recurrence,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (id, user_id, message, trigger_at, created_at, status, cancelled, attempts, recurrence, last_error)
		 VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, '')`,
		r.ID, r.UserID, r.Message,
		database.FormatTime(r.TriggerAt), database.FormatTime(r.CreatedAt),
		string(r.Status), r.Recurrence)
	if err != nil {
		return nil, fmt.Errorf("failed to create reminder: %w", err)
	}
	return r, nil
}

// Get returns a reminder by ID.
func (s *ReminderService) Get(ctx context.Context, id string) (*models.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, message, trigger_at, created_at, status, triggered_at, cancelled, attempts, recurrence, last_error
		 FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return nil, ErrReminderNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// List returns all reminders for a user, soonest trigger first.
func (s *ReminderService) List(ctx context.Context, userID string) ([]*models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, message, trigger_at, created_at, status, triggered_at, cancelled, attempts, recurrence, last_error
		 FROM reminders WHERE user_id = ? ORDER BY trigger_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			slog.Warn("skipping malformed reminder row", "error", err)
			continue
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// QueryDue returns undelivered, uncancelled reminders whose trigger time has
// passed. Reminders stuck in attempting from a failed delivery are due again;
// they never revert to pending. Rows with malformed times are skipped and
// logged, never returned and never fatal.
func (s *ReminderService) QueryDue(ctx context.Context, now time.Time) ([]*models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, message, trigger_at, created_at, status, triggered_at, cancelled, attempts, recurrence, last_error
		 FROM reminders
		 WHERE status IN ('pending', 'attempting') AND cancelled = 0
		 ORDER BY trigger_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query due reminders: %w", err)
	}
	defer rows.Close()

	cutoff := now.UTC()
	var due []*models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			slog.Error("skipping reminder with corrupt stored data", "error", err)
			continue
		}
		if !r.TriggerAt.After(cutoff) {
			due = append(due, r)
		}
	}
	return due, rows.Err()
}

// Cancel marks a reminder cancelled. Cancellation is terminal; a delivery
// already in flight will still check this flag before sending.
func (s *ReminderService) Cancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET cancelled = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to cancel reminder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrReminderNotFound
	}
	return nil
}

// IsCancelled re-reads just the cancellation flag.
func (s *ReminderService) IsCancelled(ctx context.Context, id string) (bool, error) {
	var cancelled int
	err := s.db.QueryRowContext(ctx,
		`SELECT cancelled FROM reminders WHERE id = ?`, id).Scan(&cancelled)
	if err == sql.ErrNoRows {
		return false, ErrReminderNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to check reminder cancellation: %w", err)
	}
	return cancelled != 0, nil
}

// MarkAttempting moves a reminder into the attempting state before delivery.
func (s *ReminderService) MarkAttempting(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status = 'attempting' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark reminder attempting: %w", err)
	}
	return nil
}

// MarkDelivered finalizes a successful delivery.
func (s *ReminderService) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status = 'delivered', triggered_at = ?, last_error = '' WHERE id = ?`,
		database.FormatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to mark reminder delivered: %w", err)
	}
	return nil
}

// RecordFailure increments the attempt counter after a failed delivery. The
// reminder stays attempting and will be retried on the next pass.
func (s *ReminderService) RecordFailure(ctx context.Context, id string, deliveryErr error) error {
	msg := ""
	if deliveryErr != nil {
		msg = deliveryErr.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET attempts = attempts + 1, last_error = ? WHERE id = ?`, msg, id)
	if err != nil {
		return fmt.Errorf("failed to record reminder failure: %w", err)
	}
	return nil
}

// RearmRecurring resets a delivered recurring reminder to pending at its next
// cron occurrence after the given instant.
func (s *ReminderService) RearmRecurring(ctx context.Context, r *models.Reminder, after time.Time) (time.Time, error) {
	if strings.TrimSpace(r.Recurrence) == "" {
		return time.Time{}, fmt.Errorf("reminder %s has no recurrence", r.ID)
	}
	sched, err := cronParser.Parse(r.Recurrence)
	if err != nil {
		return time.Time{}, &DataIntegrityError{Record: "reminders.recurrence", Err: err}
	}
	next := sched.Next(after.UTC())

	_, err = s.db.ExecContext(ctx,
		`UPDATE reminders SET status = 'pending', trigger_at = ?, triggered_at = NULL, attempts = 0, last_error = '' WHERE id = ?`,
		database.FormatTime(next), r.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to re-arm recurring reminder: %w", err)
	}
	return next, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReminder(row rowScanner) (*models.Reminder, error) {
	var (
		r           models.Reminder
		triggerAt   string
		createdAt   string
		status      string
		triggeredAt sql.NullString
		cancelled   int
	)
	err := row.Scan(&r.ID, &r.UserID, &r.Message, &triggerAt, &createdAt,
		&status, &triggeredAt, &cancelled, &r.Attempts, &r.Recurrence, &r.LastError)
	if err != nil {
		return nil, err
	}

	trigger, err := database.ParseTime(triggerAt)
	if err != nil {
		return nil, &DataIntegrityError{Record: "reminders.trigger_at", Err: err}
	}
	created, err := database.ParseTime(createdAt)
	if err != nil {
		return nil, &DataIntegrityError{Record: "reminders.created_at", Err: err}
	}

	r.TriggerAt = trigger
	r.CreatedAt = created
	r.Status = models.ReminderStatus(status)
	r.Cancelled = cancelled != 0
	if triggeredAt.Valid {
		t, err := database.ParseTime(triggeredAt.String)
		if err == nil {
			r.TriggeredAt = &t
		}
	}
	return &r, nil
}

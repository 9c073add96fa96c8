package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"companion/internal/clock"
	"companion/internal/database"
	"companion/internal/models"
)

type fakeNotifier struct {
	mu        sync.Mutex
	delivered []DeliveryMeta
	messages  []string
	failWith  error
}

func (f *fakeNotifier) Deliver(ctx context.Context, userID, message string, meta DeliveryMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.delivered = append(f.delivered, meta)
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

func newTestScheduler(t *testing.T, db *database.DB, notifier Notifier, now time.Time) (*ReminderScheduler, *ReminderService, *StateService) {
	t.Helper()
	reminders := NewReminderService(db)
	state := NewStateService(db)
	sched, err := NewReminderScheduler(reminders, state, notifier, testConfig())
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}
	sched.SetClock(clock.NewManualClock(now))
	return sched, reminders, state
}

func TestRunPassDeliversDue(t *testing.T) {
	db := testDB(t)
	notifier := &fakeNotifier{}
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	sched, reminders, state := newTestScheduler(t, db, notifier, now)
	ctx := context.Background()

	r, _ := reminders.Create(ctx, "user-1", "drink water", now.Add(-time.Minute), "")
	reminders.Create(ctx, "user-1", "later", now.Add(time.Hour), "")

	sched.RunPass(ctx)

	if notifier.count() != 1 {
		t.Fatalf("delivered %d reminders, want 1", notifier.count())
	}
	if notifier.delivered[0].Type != "reminder" || notifier.delivered[0].ReminderID != r.ID {
		t.Errorf("delivery meta = %+v", notifier.delivered[0])
	}

	got, err := reminders.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != models.ReminderDelivered {
		t.Errorf("status = %s, want delivered", got.Status)
	}

	st, err := state.Load(ctx)
	if err != nil {
		t.Fatalf("state load failed: %v", err)
	}
	if st.LastReminderAt == nil {
		t.Error("delivery did not stamp LastReminderAt")
	}
}

func TestRunPassFailureStaysAttempting(t *testing.T) {
	db := testDB(t)
	notifier := &fakeNotifier{failWith: errors.New("telegram down")}
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	sched, reminders, _ := newTestScheduler(t, db, notifier, now)
	ctx := context.Background()

	r, _ := reminders.Create(ctx, "user-1", "flaky", now.Add(-time.Minute), "")

	sched.RunPass(ctx)

	got, err := reminders.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != models.ReminderAttempting {
		t.Errorf("status = %s after failed delivery, want attempting", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}

	// Sink recovers; the next pass retries and delivers.
	notifier.mu.Lock()
	notifier.failWith = nil
	notifier.mu.Unlock()

	sched.RunPass(ctx)

	got, _ = reminders.Get(ctx, r.ID)
	if got.Status != models.ReminderDelivered {
		t.Errorf("status = %s after retry, want delivered", got.Status)
	}
}

func TestRunPassSkipsCancelled(t *testing.T) {
	db := testDB(t)
	notifier := &fakeNotifier{}
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	sched, reminders, _ := newTestScheduler(t, db, notifier, now)
	ctx := context.Background()

	r, _ := reminders.Create(ctx, "user-1", "never mind", now.Add(-time.Minute), "")
	if err := reminders.Cancel(ctx, r.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	sched.RunPass(ctx)

	if notifier.count() != 0 {
		t.Errorf("cancelled reminder was delivered")
	}
}

func TestRunPassRearmsRecurring(t *testing.T) {
	db := testDB(t)
	notifier := &fakeNotifier{}
	now := time.Date(2026, 3, 10, 9, 0, 30, 0, time.UTC)
	sched, reminders, _ := newTestScheduler(t, db, notifier, now)
	ctx := context.Background()

	r, err := reminders.Create(ctx, "user-1", "daily standup", now.Add(-time.Minute), "0 9 * * *")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	sched.RunPass(ctx)

	if notifier.count() != 1 {
		t.Fatalf("delivered %d, want 1", notifier.count())
	}

	got, err := reminders.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != models.ReminderPending {
		t.Errorf("status = %s after recurring delivery, want pending", got.Status)
	}
	want := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	if !got.TriggerAt.Equal(want) {
		t.Errorf("next trigger = %v, want %v", got.TriggerAt, want)
	}

	// Not due again until tomorrow.
	sched.RunPass(ctx)
	if notifier.count() != 1 {
		t.Errorf("re-armed reminder delivered again in the same pass window")
	}
}

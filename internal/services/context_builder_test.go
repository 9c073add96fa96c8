package services

import (
	"context"
	"testing"
	"time"

	"companion/internal/models"
)

func TestContextBuilderBuild(t *testing.T) {
	db := testDB(t)
	memory := NewMemoryService(db)
	builder := NewContextBuilder(memory)
	ctx := context.Background()

	for _, fact := range []string{"prefers tea", "works remotely", "runs on Sundays"} {
		if _, err := memory.AddFact(ctx, models.CreateMemoryRequest{Content: fact}); err != nil {
			t.Fatalf("add fact failed: %v", err)
		}
	}

	cfg := testConfig()
	cfg.Timezone = "America/New_York"

	// 2026-03-10 14:30 UTC is 10:30 in New York (EDT).
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	msgAt := now.Add(-90 * time.Minute)
	activityAt := now.Add(-30 * time.Minute)

	st := models.InitialProactiveState()
	st.LastUserMessageAt = &msgAt
	st.LastUserActivityAt = &activityAt
	st.CountThisHour = 1
	st.HourlyCountHr = 10
	st.DailyCountDate = "2026-03-10"
	st.CountToday = 1

	sctx := builder.Build(ctx, st, cfg, now)

	if sctx.Hour != 10 || sctx.LocalTime != "10:30" {
		t.Errorf("local time = %s (hour %d), want 10:30", sctx.LocalTime, sctx.Hour)
	}
	if sctx.Weekday != "Tuesday" || sctx.Date != "2026-03-10" {
		t.Errorf("calendar = %s %s", sctx.Weekday, sctx.Date)
	}
	if sctx.MinutesSinceUserMessage != 90 {
		t.Errorf("minutes since message = %d, want 90", sctx.MinutesSinceUserMessage)
	}
	if sctx.HoursSinceUserActivity < 0.49 || sctx.HoursSinceUserActivity > 0.51 {
		t.Errorf("hours since activity = %f, want 0.5", sctx.HoursSinceUserActivity)
	}
	if sctx.IsQuietHours {
		t.Error("10:30 local flagged as quiet hours")
	}
	if sctx.OpenGreeting != models.GreetingMorning || sctx.GreetingUsedToday {
		t.Errorf("greeting window = %q used=%v, want morning/false", sctx.OpenGreeting, sctx.GreetingUsedToday)
	}
	if sctx.RemainingThisHour != 1 || sctx.RemainingToday != 7 {
		t.Errorf("budgets = %d/%d, want 1/7", sctx.RemainingThisHour, sctx.RemainingToday)
	}
	if len(sctx.MemoryFacts) != 3 {
		t.Errorf("memory facts = %d, want 3", len(sctx.MemoryFacts))
	}
	if sctx.Level != models.ProactivityMedium {
		t.Errorf("level = %s, want medium", sctx.Level)
	}
}

func TestContextBuilderNeverActiveUser(t *testing.T) {
	builder := NewContextBuilder(nil)
	st := models.InitialProactiveState()

	sctx := builder.Build(context.Background(), st, testConfig(), time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))

	if sctx.MinutesSinceUserMessage != -1 {
		t.Errorf("minutes since message = %d for fresh user, want -1", sctx.MinutesSinceUserMessage)
	}
	if sctx.HoursSinceUserActivity != -1 {
		t.Errorf("hours since activity = %f for fresh user, want -1", sctx.HoursSinceUserActivity)
	}
	if len(sctx.MemoryFacts) != 0 {
		t.Errorf("facts = %d without a memory store, want 0", len(sctx.MemoryFacts))
	}
}

package services

import (
	"testing"
	"time"

	"companion/internal/models"
)

func TestRecordSpokenTickTripsAtThreshold(t *testing.T) {
	cfg := testConfig() // threshold 5, tick 5m
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	st := models.InitialProactiveState()
	for i := 1; i <= 4; i++ {
		if RecordSpokenTick(&st, cfg, now) {
			t.Fatalf("breaker tripped at %d consecutive messages, threshold is 5", i)
		}
		if st.BreakerTrippedUntil != nil {
			t.Fatalf("trip deadline set early at %d messages", i)
		}
	}

	if !RecordSpokenTick(&st, cfg, now) {
		t.Fatal("breaker did not trip at exactly 5 consecutive messages")
	}
	if st.BreakerTrippedUntil == nil {
		t.Fatal("trip deadline not set")
	}
	wantUntil := now.Add(10 * cfg.TickInterval)
	if !st.BreakerTrippedUntil.Equal(wantUntil) {
		t.Errorf("trip deadline = %v, want %v (10 tick intervals)", st.BreakerTrippedUntil, wantUntil)
	}
}

func TestRecordSilentTickResetsCounter(t *testing.T) {
	cfg := testConfig()
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	st := models.InitialProactiveState()
	for i := 0; i < 4; i++ {
		RecordSpokenTick(&st, cfg, now)
	}
	RecordSilentTick(&st)

	if st.ConsecutiveTicksWithMessage != 0 {
		t.Errorf("counter = %d after silent tick, want 0", st.ConsecutiveTicksWithMessage)
	}
	// The run starts over; four more messages must not trip.
	for i := 0; i < 4; i++ {
		if RecordSpokenTick(&st, cfg, now) {
			t.Fatal("breaker tripped on restarted run below threshold")
		}
	}
}

func TestBreakerTripped(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	until := now.Add(50 * time.Minute)

	st := models.InitialProactiveState()
	if BreakerTripped(st, now) {
		t.Error("untripped breaker reported tripped")
	}

	st.BreakerTrippedUntil = &until
	if !BreakerTripped(st, now) {
		t.Error("breaker should suppress immediately after tripping")
	}
	if !BreakerTripped(st, until.Add(-time.Second)) {
		t.Error("breaker should suppress one second before the deadline")
	}
	if BreakerTripped(st, until) {
		t.Error("breaker should re-arm exactly at the deadline")
	}
}

func TestClearBreakerIfExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	t.Run("before the deadline nothing changes", func(t *testing.T) {
		st := models.InitialProactiveState()
		until := now.Add(time.Minute)
		st.BreakerTrippedUntil = &until
		st.ConsecutiveTicksWithMessage = 5

		if ClearBreakerIfExpired(&st, now) {
			t.Error("cleared a live breaker")
		}
		if st.BreakerTrippedUntil == nil || st.ConsecutiveTicksWithMessage != 5 {
			t.Error("live breaker state was mutated")
		}
	})

	t.Run("at the deadline the breaker clears and counter zeroes", func(t *testing.T) {
		st := models.InitialProactiveState()
		until := now
		st.BreakerTrippedUntil = &until
		st.ConsecutiveTicksWithMessage = 5

		if !ClearBreakerIfExpired(&st, now) {
			t.Fatal("expected clear at the deadline")
		}
		if st.BreakerTrippedUntil != nil {
			t.Error("trip deadline not cleared")
		}
		if st.ConsecutiveTicksWithMessage != 0 {
			t.Errorf("counter = %d after clear, want 0", st.ConsecutiveTicksWithMessage)
		}
	})

	t.Run("no-op without a trip", func(t *testing.T) {
		st := models.InitialProactiveState()
		st.ConsecutiveTicksWithMessage = 3
		if ClearBreakerIfExpired(&st, now) {
			t.Error("cleared a breaker that never tripped")
		}
		if st.ConsecutiveTicksWithMessage != 3 {
			t.Error("counter changed without a trip")
		}
	})
}

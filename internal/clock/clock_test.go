package clock

import (
	"testing"
	"time"
)

func TestInWindow(t *testing.T) {
	tests := []struct {
		name  string
		hour  int
		start int
		end   int
		want  bool
	}{
		{"inside plain window", 10, 9, 17, true},
		{"at start is inside", 9, 9, 17, true},
		{"at end is outside", 17, 9, 17, false},
		{"before plain window", 8, 9, 17, false},
		{"wrap evening side", 23, 22, 8, true},
		{"wrap at start", 22, 22, 8, true},
		{"wrap morning side", 3, 22, 8, true},
		{"wrap at end is outside", 8, 22, 8, false},
		{"wrap daytime is outside", 9, 22, 8, false},
		{"wrap midday is outside", 15, 22, 8, false},
		{"empty window", 10, 10, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InWindow(tt.hour, tt.start, tt.end); got != tt.want {
				t.Errorf("InWindow(%d, %d, %d) = %v, want %v", tt.hour, tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	if _, err := Location("America/New_York"); err != nil {
		t.Errorf("Expected valid timezone to load, got %v", err)
	}

	loc, err := Location("")
	if err != nil {
		t.Fatalf("Expected empty timezone to resolve, got %v", err)
	}
	if loc != time.UTC {
		t.Errorf("Expected empty timezone to mean UTC, got %v", loc)
	}

	_, err = Location("Not/AZone")
	if err == nil {
		t.Fatal("Expected error for invalid timezone")
	}
	if _, ok := err.(*ErrInvalidTimezone); !ok {
		t.Errorf("Expected *ErrInvalidTimezone, got %T", err)
	}
}

func TestLocationOrUTC(t *testing.T) {
	loc, ok := LocationOrUTC("Not/AZone")
	if ok {
		t.Error("Expected fallback flag for invalid timezone")
	}
	if loc != time.UTC {
		t.Errorf("Expected UTC fallback, got %v", loc)
	}
}

func TestLocalParts(t *testing.T) {
	loc, err := Location("America/New_York")
	if err != nil {
		t.Fatal(err)
	}

	// 14:30 UTC on a winter day is 09:30 in New York (EST, UTC-5).
	at := time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC)
	hour, weekday, date := LocalParts(at, loc)

	if hour != 9 {
		t.Errorf("Expected local hour 9, got %d", hour)
	}
	if weekday != time.Thursday {
		t.Errorf("Expected Thursday, got %v", weekday)
	}
	if date != "2026-01-15" {
		t.Errorf("Expected date 2026-01-15, got %s", date)
	}

	// 02:30 UTC is the previous local day in New York.
	at = time.Date(2026, 1, 15, 2, 30, 0, 0, time.UTC)
	_, _, date = LocalParts(at, loc)
	if date != "2026-01-14" {
		t.Errorf("Expected date rollback to 2026-01-14, got %s", date)
	}
}

func TestLocalPartsAcrossDST(t *testing.T) {
	loc, err := Location("America/New_York")
	if err != nil {
		t.Fatal(err)
	}

	// 2026-03-08 is the US spring-forward date: 06:30 UTC is 01:30 EST,
	// 07:30 UTC is 03:30 EDT (02:30 local does not exist).
	before := time.Date(2026, 3, 8, 6, 30, 0, 0, time.UTC)
	after := time.Date(2026, 3, 8, 7, 30, 0, 0, time.UTC)

	hourBefore, _, _ := LocalParts(before, loc)
	hourAfter, _, _ := LocalParts(after, loc)

	if hourBefore != 1 {
		t.Errorf("Expected hour 1 before spring-forward, got %d", hourBefore)
	}
	if hourAfter != 3 {
		t.Errorf("Expected hour 3 after spring-forward, got %d", hourAfter)
	}
}

func TestManualClock(t *testing.T) {
	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := NewManualClock(start)

	if !clk.Now().Equal(start) {
		t.Errorf("Expected %v, got %v", start, clk.Now())
	}

	clk.Advance(90 * time.Minute)
	if got := clk.Now(); !got.Equal(start.Add(90 * time.Minute)) {
		t.Errorf("Expected advance by 90m, got %v", got)
	}
}

package limits_test

import (
	"testing"
	"time"

	"github.com/helpmaton/billing-api/internal/domain/limits"
)

func TestCalendarWindows(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// Wednesday 2026-08-26 15:30 local time.
	now := time.Date(2026, time.August, 26, 15, 30, 0, 0, loc)

	daily := limits.WindowStart(limits.WindowCalendar, limits.TimeFrameDaily, now, loc)
	if want := time.Date(2026, time.August, 26, 0, 0, 0, 0, loc); !daily.Equal(want) {
		t.Fatalf("daily window start = %v, want %v", daily, want)
	}

	weekly := limits.WindowStart(limits.WindowCalendar, limits.TimeFrameWeekly, now, loc)
	if want := time.Date(2026, time.August, 24, 0, 0, 0, 0, loc); !weekly.Equal(want) {
		t.Fatalf("weekly window start = %v, want %v (Monday)", weekly, want)
	}

	monthly := limits.WindowStart(limits.WindowCalendar, limits.TimeFrameMonthly, now, loc)
	if want := time.Date(2026, time.August, 1, 0, 0, 0, 0, loc); !monthly.Equal(want) {
		t.Fatalf("monthly window start = %v, want %v", monthly, want)
	}
}

func TestCalendarWeeklyOnSunday(t *testing.T) {
	// Sunday belongs to the week that started the previous Monday.
	now := time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)

	weekly := limits.WindowStart(limits.WindowCalendar, limits.TimeFrameWeekly, now, time.UTC)
	if want := time.Date(2026, time.August, 24, 0, 0, 0, 0, time.UTC); !weekly.Equal(want) {
		t.Fatalf("weekly window start = %v, want %v", weekly, want)
	}
}

func TestRollingWindows(t *testing.T) {
	now := time.Date(2026, time.August, 26, 15, 30, 0, 0, time.UTC)

	cases := []struct {
		frame limits.TimeFrame
		want  time.Time
	}{
		{limits.TimeFrameDaily, now.Add(-24 * time.Hour)},
		{limits.TimeFrameWeekly, now.Add(-7 * 24 * time.Hour)},
		{limits.TimeFrameMonthly, now.Add(-30 * 24 * time.Hour)},
	}

	for _, tc := range cases {
		got := limits.WindowStart(limits.WindowRolling, tc.frame, now, time.UTC)
		if !got.Equal(tc.want) {
			t.Fatalf("rolling %s window start = %v, want %v", tc.frame, got, tc.want)
		}
	}
}

func TestWindowStartNilLocation(t *testing.T) {
	now := time.Date(2026, time.August, 26, 15, 30, 0, 0, time.UTC)

	got := limits.WindowStart(limits.WindowCalendar, limits.TimeFrameDaily, now, nil)
	if want := time.Date(2026, time.August, 26, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("nil location should default to UTC: got %v", got)
	}
}

func TestTimeFrameValid(t *testing.T) {
	for _, f := range []limits.TimeFrame{limits.TimeFrameDaily, limits.TimeFrameWeekly, limits.TimeFrameMonthly} {
		if !f.Valid() {
			t.Fatalf("%s should be valid", f)
		}
	}
	if limits.TimeFrame("yearly").Valid() {
		t.Fatal("yearly should be invalid")
	}
}

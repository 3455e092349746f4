package limits

import "time"

// WindowPolicy decides where a time frame's current window begins.
type WindowPolicy string

const (
	// WindowCalendar starts windows at calendar boundaries in the
	// workspace's timezone: midnight, ISO Monday, first of the month.
	WindowCalendar WindowPolicy = "calendar"

	// WindowRolling starts windows a fixed duration before now.
	WindowRolling WindowPolicy = "rolling"
)

// WindowStart returns the beginning of the current window for a time frame.
func WindowStart(policy WindowPolicy, frame TimeFrame, now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	if policy == WindowRolling {
		switch frame {
		case TimeFrameDaily:
			return now.Add(-24 * time.Hour)
		case TimeFrameWeekly:
			return now.Add(-7 * 24 * time.Hour)
		case TimeFrameMonthly:
			return now.Add(-30 * 24 * time.Hour)
		}
		return now
	}

	switch frame {
	case TimeFrameDaily:
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	case TimeFrameWeekly:
		// Monday of the current ISO week
		midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		weekday := int(midnight.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return midnight.AddDate(0, 0, -(weekday - 1))
	case TimeFrameMonthly:
		return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	}
	return now
}

package model

import "time"

// Window is a fixed lookback duration over which an aggregate is computed.
type Window string

const (
	WindowHour    Window = "1h"
	WindowSixHour Window = "6h"
	WindowDay     Window = "1d"
	WindowWeek    Window = "7d"
	WindowMonth   Window = "30d"
	WindowAllTime Window = "allTime"
)

// AllWindows lists every supported window, shortest first.
var AllWindows = []Window{
	WindowHour,
	WindowSixHour,
	WindowDay,
	WindowWeek,
	WindowMonth,
	WindowAllTime,
}

// Lookback returns the window duration. The second return value is false for
// the all-time window, which has no lower boundary.
func (w Window) Lookback() (time.Duration, bool) {
	switch w {
	case WindowHour:
		return time.Hour, true
	case WindowSixHour:
		return 6 * time.Hour, true
	case WindowDay:
		return 24 * time.Hour, true
	case WindowWeek:
		return 7 * 24 * time.Hour, true
	case WindowMonth:
		return 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Start returns the inclusive lower time boundary of the window relative to
// now. For the all-time window it returns the zero time.
func (w Window) Start(now time.Time) time.Time {
	d, bounded := w.Lookback()
	if !bounded {
		return time.Time{}
	}
	return now.Add(-d)
}

func (w Window) IsValid() bool {
	for _, known := range AllWindows {
		if w == known {
			return true
		}
	}
	return false
}

// Package polling backfills from the appview what the stream never delivers:
// engagement counters for recent posts and profiles for placeholder authors.
package polling

import "time"

// Schedule decides when a post's counters are refreshed next, from the
// post's age and its current engagement score. Young posts are polled
// aggressively, quiet ones are retired early, survivors decay onto a tiered
// cadence until the hard stop.
type Schedule struct {
	// HardStop retires every post older than this, whatever its score.
	HardStop time.Duration

	// The early checkpoints. A post that is still at zero engagement at the
	// fourth checkpoint is retired, one at or below LowScoreThreshold at the
	// fifth checkpoint is too.
	Checkpoints       [5]time.Duration
	LowScoreThreshold int64

	// Tiers is the decaying cadence for posts past the checkpoints, ordered
	// by MaxAge ascending. The last tier's MaxAge matches HardStop.
	Tiers []ScheduleTier
}

// ScheduleTier maps a post age band to a refresh interval.
type ScheduleTier struct {
	MaxAge   time.Duration
	Interval time.Duration
}

func DefaultSchedule() Schedule {
	return Schedule{
		HardStop: 168 * time.Hour,
		Checkpoints: [5]time.Duration{
			5 * time.Minute,
			10 * time.Minute,
			20 * time.Minute,
			30 * time.Minute,
			time.Hour,
		},
		LowScoreThreshold: 3,
		Tiers: []ScheduleTier{
			{MaxAge: 24 * time.Hour, Interval: 2 * time.Hour},
			{MaxAge: 48 * time.Hour, Interval: 6 * time.Hour},
			{MaxAge: 72 * time.Hour, Interval: 12 * time.Hour},
			{MaxAge: 168 * time.Hour, Interval: 24 * time.Hour},
		},
	}
}

// Next returns the delay until the post's next refresh. ok false retires the
// post from polling.
func (s Schedule) Next(age time.Duration, score int64) (delay time.Duration, ok bool) {
	if age > s.HardStop {
		return 0, false
	}

	// The first three checkpoints reschedule unconditionally, each onto the
	// following checkpoint.
	for i := 0; i < 3; i++ {
		if age <= s.Checkpoints[i] {
			return s.Checkpoints[i+1] - age, true
		}
	}

	if age <= s.Checkpoints[3] {
		if score == 0 {
			return 0, false
		}
		return s.Checkpoints[4] - age, true
	}

	if age <= s.Checkpoints[4] && score <= s.LowScoreThreshold {
		return 0, false
	}

	for _, tier := range s.Tiers {
		if age <= tier.MaxAge {
			return tier.Interval, true
		}
	}
	return 0, false
}

package polling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduleEarlyCheckpointsRescheduleUnconditionally(t *testing.T) {
	s := DefaultSchedule()

	// A two-minute-old post with zero engagement is still rescheduled, onto
	// the ten-minute checkpoint.
	delay, ok := s.Next(2*time.Minute, 0)
	assert.True(t, ok)
	assert.Equal(t, 8*time.Minute, delay)

	delay, ok = s.Next(7*time.Minute, 0)
	assert.True(t, ok)
	assert.Equal(t, 13*time.Minute, delay)

	delay, ok = s.Next(15*time.Minute, 0)
	assert.True(t, ok)
	assert.Equal(t, 15*time.Minute, delay)
}

func TestScheduleRetiresQuietPosts(t *testing.T) {
	s := DefaultSchedule()

	// Thirty minutes in with zero engagement: retired.
	_, ok := s.Next(29*time.Minute, 0)
	assert.False(t, ok)

	// Same age with any engagement: rescheduled onto the one-hour check.
	delay, ok := s.Next(29*time.Minute, 1)
	assert.True(t, ok)
	assert.Equal(t, 31*time.Minute, delay)

	// One hour in at or below the low-score threshold: retired.
	_, ok = s.Next(50*time.Minute, 3)
	assert.False(t, ok)

	// Above the threshold it survives onto the tiered cadence.
	delay, ok = s.Next(50*time.Minute, 4)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Hour, delay)
}

func TestScheduleTieredDecay(t *testing.T) {
	s := DefaultSchedule()

	delay, ok := s.Next(12*time.Hour, 100)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Hour, delay)

	delay, ok = s.Next(30*time.Hour, 100)
	assert.True(t, ok)
	assert.Equal(t, 6*time.Hour, delay)

	delay, ok = s.Next(60*time.Hour, 100)
	assert.True(t, ok)
	assert.Equal(t, 12*time.Hour, delay)

	delay, ok = s.Next(100*time.Hour, 100)
	assert.True(t, ok)
	assert.Equal(t, 24*time.Hour, delay)
}

func TestScheduleHardStop(t *testing.T) {
	s := DefaultSchedule()
	_, ok := s.Next(169*time.Hour, 1000000)
	assert.False(t, ok)
}

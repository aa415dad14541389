package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTrackerRateLimitsUpdates(t *testing.T) {
	p := NewProgressTracker(nil, "import konto.csv", 100)

	// Inside the interval only the counter moves; nothing is logged.
	before := p.lastLogTime
	p.Update(10)
	assert.Equal(t, int64(10), p.current)
	assert.Equal(t, before, p.lastLogTime)

	// Once the interval has elapsed the next update logs and rearms it.
	p.logInterval = 0
	p.Update(50)
	assert.Equal(t, int64(50), p.current)
	assert.True(t, p.lastLogTime.After(before))

	p.Done()
	assert.Equal(t, int64(50), p.current)
}

func TestProgressTrackerUnknownTotal(t *testing.T) {
	p := NewProgressTracker(nil, "cache sweep", 0)
	p.logInterval = 0
	p.Update(3)
	assert.Equal(t, int64(3), p.current)
	p.Done()
}

func TestProgressTrackerFallsBackToGlobalLogger(t *testing.T) {
	p := NewProgressTracker(nil, "import", 1)
	assert.NotNil(t, p.logger)
	assert.WithinDuration(t, time.Now(), p.startTime, time.Minute)
}

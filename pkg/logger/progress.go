package logger

import (
	"sync"
	"time"
)

// ProgressTracker logs progress of long-running row-oriented operations such
// as statement imports and cache sweeps. It rate-limits output so large files
// do not flood the log.
type ProgressTracker struct {
	logger      Logger
	operation   string
	total       int64
	current     int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mu          sync.Mutex
}

// NewProgressTracker creates a tracker for an operation with a known total.
// A total of zero is allowed for operations of unknown size.
func NewProgressTracker(log Logger, operation string, total int64) *ProgressTracker {
	if log == nil {
		log = GetGlobalLogger()
	}

	tracker := &ProgressTracker{
		logger:      log.WithComponent("progress"),
		operation:   operation,
		total:       total,
		startTime:   time.Now(),
		lastLogTime: time.Now(),
		logInterval: 5 * time.Second,
	}

	tracker.logger.WithFields(Fields{
		"operation": operation,
		"total":     total,
	}).Info("Starting operation")

	return tracker
}

// Update records progress and emits a log line at most once per interval
func (p *ProgressTracker) Update(current int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if time.Since(p.lastLogTime) < p.logInterval {
		return
	}
	p.lastLogTime = time.Now()

	fields := Fields{
		"operation": p.operation,
		"processed": current,
		"elapsed":   time.Since(p.startTime).Round(time.Second).String(),
	}
	if p.total > 0 {
		fields["total"] = p.total
		fields["percent"] = float64(current) / float64(p.total) * 100
	}
	p.logger.WithFields(fields).Info("Operation progress")
}

// Done logs the final counts and duration for the operation
func (p *ProgressTracker) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.WithFields(Fields{
		"operation": p.operation,
		"processed": p.current,
		"elapsed":   time.Since(p.startTime).Round(time.Millisecond).String(),
	}).Info("Operation complete")
}

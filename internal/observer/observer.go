package observer

import (
	"sync"
	"time"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/runner"
)

// Observer watches batch runs and collects submission metrics
type Observer struct {
	stuckThreshold time.Duration

	completions []completion
	stalls      int
	runs        int
	mu          sync.RWMutex
}

type completion struct {
	RunID       string
	Key         domain.Key
	Success     bool
	Duration    time.Duration
	CompletedAt time.Time
}

// Metrics holds aggregated metrics
type Metrics struct {
	Runs           int
	TotalCompleted int
	TotalFailed    int
	Stalls         int
	AvgDuration    time.Duration
	MaxDuration    time.Duration
}

// New creates a new Observer
func New(stuckThreshold time.Duration) *Observer {
	return &Observer{
		stuckThreshold: stuckThreshold,
	}
}

// IsStuck returns true if a submission has been running longer than the threshold
func (o *Observer) IsStuck(rec domain.JobRecord) bool {
	if rec.Status != domain.JobRunning {
		return false
	}
	if rec.StartedAt == nil || o.stuckThreshold <= 0 {
		return false
	}
	return time.Since(*rec.StartedAt) > o.stuckThreshold
}

// Observe consumes runner progress events
func (o *Observer) Observe(p runner.Progress) {
	if p.Index < 0 {
		o.mu.Lock()
		o.runs++
		o.mu.Unlock()
		return
	}
	if p.Stalled {
		o.mu.Lock()
		o.stalls++
		o.mu.Unlock()
		return
	}
	if p.Record.Status.Terminal() {
		o.RecordCompletion(p.RunID, p.Record)
	}
}

// RecordCompletion records a finished submission
func (o *Observer) RecordCompletion(runID string, rec domain.JobRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.completions = append(o.completions, completion{
		RunID:       runID,
		Key:         rec.Item.Key(),
		Success:     rec.Status == domain.JobSuccess,
		Duration:    rec.Duration(),
		CompletedAt: time.Now(),
	})
}

// GetMetrics returns aggregated metrics
func (o *Observer) GetMetrics() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	metrics := Metrics{Runs: o.runs, Stalls: o.stalls}
	var totalDuration time.Duration

	for _, c := range o.completions {
		if c.Success {
			metrics.TotalCompleted++
		} else {
			metrics.TotalFailed++
		}
		totalDuration += c.Duration
		if c.Duration > metrics.MaxDuration {
			metrics.MaxDuration = c.Duration
		}
	}

	if n := len(o.completions); n > 0 {
		metrics.AvgDuration = totalDuration / time.Duration(n)
	}

	return metrics
}

// GetRecentCompletions returns the keys finished within the last duration
func (o *Observer) GetRecentCompletions(since time.Duration) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cutoff := time.Now().Add(-since)
	var result []string

	for _, c := range o.completions {
		if c.CompletedAt.After(cutoff) {
			result = append(result, c.Key.String())
		}
	}

	return result
}

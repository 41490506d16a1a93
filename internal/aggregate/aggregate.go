// Package aggregate classifies the per-item outcome of a batch run into a
// single summary, derives the one notification the user receives and
// invalidates the datasets the run wrote to.
package aggregate

import (
	"fmt"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/cache"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/notify"
)

// Kind is the overall outcome of a run
type Kind string

const (
	AllSuccess Kind = "all_success"
	AllFailed  Kind = "all_failed"
	Partial    Kind = "partial"
)

// Summary is the classified outcome of a run
type Summary struct {
	SuccessCount int
	FailedCount  int
	Kind         Kind
}

// Classify counts terminal records. Records that never finished count as failed.
func Classify(records []domain.JobRecord) Summary {
	var s Summary
	for _, rec := range records {
		if rec.Status == domain.JobSuccess {
			s.SuccessCount++
		} else {
			s.FailedCount++
		}
	}
	switch {
	case s.FailedCount == 0:
		s.Kind = AllSuccess
	case s.SuccessCount == 0:
		s.Kind = AllFailed
	default:
		s.Kind = Partial
	}
	return s
}

// Total returns the number of classified records
func (s Summary) Total() int {
	return s.SuccessCount + s.FailedCount
}

// AnySucceeded reports whether at least one submission went through
func (s Summary) AnySucceeded() bool {
	return s.SuccessCount > 0
}

// Message is the user-facing text, noun names the submitted thing ("export")
func (s Summary) Message(noun string) string {
	switch s.Kind {
	case AllSuccess:
		return fmt.Sprintf("All %d %s tasks were created", s.SuccessCount, noun)
	case AllFailed:
		return fmt.Sprintf("All %d %s tasks failed", s.FailedCount, noun)
	default:
		return fmt.Sprintf("%d %s tasks created, %d failed", s.SuccessCount, noun, s.FailedCount)
	}
}

// NotificationType maps the outcome to a notification severity
func (s Summary) NotificationType() notify.NotificationType {
	switch s.Kind {
	case AllSuccess:
		return notify.NotifySuccess
	case AllFailed:
		return notify.NotifyError
	default:
		return notify.NotifyWarning
	}
}

// Notification builds the single notification for a finished run
func (s Summary) Notification(title, noun, runID string) notify.Notification {
	return notify.Notification{
		Title:   title,
		Message: s.Message(noun),
		Type:    s.NotificationType(),
		RunID:   runID,
		Counts:  &notify.Counts{Succeeded: s.SuccessCount, Failed: s.FailedCount},
	}
}

// Aggregator is the single writer of dataset staleness for a flow
type Aggregator struct {
	gens     *cache.Generations
	datasets []string
}

// New creates an aggregator invalidating datasets after successful writes
func New(gens *cache.Generations, datasets ...string) *Aggregator {
	return &Aggregator{gens: gens, datasets: datasets}
}

// Apply classifies records and marks the datasets stale when anything succeeded
func (a *Aggregator) Apply(records []domain.JobRecord) Summary {
	s := Classify(records)
	if s.AnySucceeded() {
		a.Invalidate()
	}
	return s
}

// Invalidate marks every configured dataset stale
func (a *Aggregator) Invalidate() {
	if a.gens == nil {
		return
	}
	for _, name := range a.datasets {
		a.gens.Invalidate(name)
	}
}

package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a job record is moved out of order
var ErrInvalidTransition = errors.New("invalid job status transition")

// JobStatus represents the lifecycle state of a single submission
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// Terminal reports whether the status can no longer change
func (s JobStatus) Terminal() bool {
	return s == JobSuccess || s == JobFailed
}

// RunPhase represents the state of a whole batch run
type RunPhase string

const (
	PhaseIdle      RunPhase = "idle"
	PhaseRunning   RunPhase = "running"
	PhaseCompleted RunPhase = "completed"
	PhaseFailed    RunPhase = "failed"
)

// JobRecord tracks one item of a batch run
type JobRecord struct {
	Item       SelectionItem
	Status     JobStatus
	Error      string
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// NewJobRecord creates a pending record for an item
func NewJobRecord(item SelectionItem) JobRecord {
	return JobRecord{Item: item, Status: JobPending}
}

// Start moves a pending record to running
func (r *JobRecord) Start(now time.Time) error {
	if r.Status != JobPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, JobRunning)
	}
	r.Status = JobRunning
	r.StartedAt = &now
	return nil
}

// Succeed moves a running record to success
func (r *JobRecord) Succeed(now time.Time) error {
	return r.finish(JobSuccess, "", now)
}

// Fail moves a running record to failed with the captured message
func (r *JobRecord) Fail(msg string, now time.Time) error {
	return r.finish(JobFailed, msg, now)
}

func (r *JobRecord) finish(status JobStatus, msg string, now time.Time) error {
	if r.Status != JobRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, status)
	}
	r.Status = status
	r.Error = msg
	r.FinishedAt = &now
	return nil
}

// Duration returns how long the submission took, zero if it never finished
func (r *JobRecord) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// BatchRun is an ordered, fixed-size list of job records driven by one runner
type BatchRun struct {
	ID         string
	Items      []JobRecord
	Cursor     int
	Phase      RunPhase
	StartedAt  time.Time
	FinishedAt *time.Time
}

// NewBatchRun creates a run with one pending record per item, in order
func NewBatchRun(id string, items []SelectionItem, now time.Time) *BatchRun {
	records := make([]JobRecord, len(items))
	for i, item := range items {
		records[i] = NewJobRecord(item)
	}
	return &BatchRun{
		ID:        id,
		Items:     records,
		Phase:     PhaseIdle,
		StartedAt: now,
	}
}

// Total returns the fixed number of items in the run
func (b *BatchRun) Total() int {
	return len(b.Items)
}

// Done reports whether the run reached a terminal phase
func (b *BatchRun) Done() bool {
	return b.Phase == PhaseCompleted || b.Phase == PhaseFailed
}

// Clone returns a deep copy safe to hand to observers
func (b *BatchRun) Clone() *BatchRun {
	if b == nil {
		return nil
	}
	c := *b
	c.Items = make([]JobRecord, len(b.Items))
	copy(c.Items, b.Items)
	if b.FinishedAt != nil {
		t := *b.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

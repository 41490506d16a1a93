// Package runner executes an ordered list of independent submissions one at
// a time, recording a status per item. A failing item never aborts the run.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
)

// DefaultPace is the fixed delay between two submissions
const DefaultPace = 500 * time.Millisecond

// SubmitFunc submits one item. A false result or an error marks the item failed.
type SubmitFunc func(ctx context.Context, item domain.SelectionItem) (bool, error)

// Progress is emitted whenever a record changes and once when the run ends
type Progress struct {
	RunID   string
	Index   int // -1 for the final event
	Record  domain.JobRecord
	Cursor  int
	Total   int
	Phase   domain.RunPhase
	Stalled bool
}

// Config holds runner settings
type Config struct {
	// Pace is waited between items, never after the last one. Zero disables it.
	Pace time.Duration
	// SubmitTimeout bounds a single submission through its context. Zero disables it.
	SubmitTimeout time.Duration
	// StallAfter reports a submission that is still in flight. Zero disables it.
	StallAfter time.Duration
	// OnProgress receives progress events. Stall events arrive from a timer goroutine.
	OnProgress func(Progress)
	Logger     *log.Logger
	NewID      func() string
}

// Runner is a single-worker submission queue
type Runner struct {
	cfg  Config
	now  func() time.Time
	pool *Pool

	current *domain.BatchRun
	mu      sync.RWMutex
}

// New creates a runner
func New(cfg Config) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.NewString() }
	}
	pool := NewPool(1)
	pool.SetOnChange(recordInFlight)
	return &Runner{cfg: cfg, now: time.Now, pool: pool}
}

// QueueStats describes the submission queue's worker slots
type QueueStats struct {
	Workers  int
	InFlight int
	Peak     int
}

// Stats reports the queue's capacity, current and peak in-flight submissions
func (r *Runner) Stats() QueueStats {
	return QueueStats{
		Workers:  r.pool.Workers(),
		InFlight: r.pool.InFlight(),
		Peak:     r.pool.Peak(),
	}
}

// Snapshot returns a copy of the current or last run, nil if none
func (r *Runner) Snapshot() *domain.BatchRun {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Clone()
}

// Run submits every item strictly in order, waiting for each submission to
// resolve before the next one starts. It always processes all items.
func (r *Runner) Run(ctx context.Context, items []domain.SelectionItem, submit SubmitFunc) *domain.BatchRun {
	run := domain.NewBatchRun(r.cfg.NewID(), items, r.now())
	run.Phase = domain.PhaseRunning

	r.mu.Lock()
	r.current = run
	r.mu.Unlock()

	logger := r.cfg.Logger.With("run", run.ID)
	logger.Info("batch run started", "items", len(items))
	recordRunStart()

	for i := range run.Items {
		r.step(ctx, run, i, submit, logger)
		if i < len(run.Items)-1 {
			r.pace(ctx)
		}
	}

	r.mu.Lock()
	run.Phase = domain.PhaseCompleted
	failed := 0
	for _, rec := range run.Items {
		if rec.Status != domain.JobSuccess {
			run.Phase = domain.PhaseFailed
			failed++
		}
	}
	finished := r.now()
	run.FinishedAt = &finished
	final := Progress{RunID: run.ID, Index: -1, Cursor: run.Cursor, Total: run.Total(), Phase: run.Phase}
	result := run.Clone()
	r.mu.Unlock()

	logger.Info("batch run finished", "phase", result.Phase, "failed", failed, "elapsed", finished.Sub(run.StartedAt).Round(time.Millisecond))
	r.emit(final)
	return result
}

func (r *Runner) step(ctx context.Context, run *domain.BatchRun, i int, submit SubmitFunc, logger *log.Logger) {
	r.mu.Lock()
	rec := &run.Items[i]
	item := rec.Item
	if err := rec.Start(r.now()); err != nil {
		logger.Error("record out of order", "item", item.Key(), "err", err)
	}
	started := r.progressLocked(run, i, false)
	r.mu.Unlock()
	r.emit(started)

	guard := &stallGuard{}
	onStall := func() {
		r.reportStall(run, i, guard, logger)
	}

	begin := time.Now()
	ok, msg := r.invoke(ctx, submit, item, onStall)
	recordSubmission(ok, time.Since(begin).Seconds())

	r.mu.Lock()
	var err error
	if ok {
		err = rec.Succeed(r.now())
	} else {
		err = rec.Fail(msg, r.now())
	}
	if err != nil {
		logger.Error("record out of order", "item", item.Key(), "err", err)
	}
	run.Cursor++
	finished := r.progressLocked(run, i, false)
	r.mu.Unlock()

	// A stall timer that already fired must not report after this point
	guard.mu.Lock()
	guard.done = true
	guard.mu.Unlock()

	if ok {
		logger.Debug("item submitted", "item", item.Key())
	} else {
		logger.Warn("item failed", "item", item.Key(), "err", msg)
	}
	r.emit(finished)
}

// stallGuard orders a late stall report against the end of its step
type stallGuard struct {
	mu   sync.Mutex
	done bool
}

// reportStall emits a Stalled event for item i unless its step has finished
func (r *Runner) reportStall(run *domain.BatchRun, i int, guard *stallGuard, logger *log.Logger) {
	guard.mu.Lock()
	defer guard.mu.Unlock()
	if guard.done {
		return
	}

	r.mu.RLock()
	rec := run.Items[i]
	stalled := r.progressLocked(run, i, true)
	r.mu.RUnlock()
	if rec.Status.Terminal() {
		return
	}

	logger.Warn("submission still in flight", "item", rec.Item.Key(), "after", r.cfg.StallAfter)
	r.emit(stalled)
}

// invoke performs one submission inside the single worker slot
func (r *Runner) invoke(ctx context.Context, submit SubmitFunc, item domain.SelectionItem, onStall func()) (ok bool, msg string) {
	if !r.pool.Acquire() {
		return false, "another submission is still in flight"
	}
	defer r.pool.Release()

	if err := ctx.Err(); err != nil {
		return false, err.Error()
	}
	if r.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.SubmitTimeout)
		defer cancel()
	}
	if r.cfg.StallAfter > 0 {
		timer := time.AfterFunc(r.cfg.StallAfter, onStall)
		defer timer.Stop()
	}

	defer func() {
		if p := recover(); p != nil {
			ok, msg = false, fmt.Sprintf("submission panicked: %v", p)
		}
	}()

	accepted, err := submit(ctx, item)
	switch {
	case err != nil:
		return false, err.Error()
	case !accepted:
		return false, "submission was rejected by the remote service"
	}
	return true, ""
}

func (r *Runner) pace(ctx context.Context) {
	if r.cfg.Pace <= 0 {
		return
	}
	timer := time.NewTimer(r.cfg.Pace)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// progressLocked must be called with r.mu held
func (r *Runner) progressLocked(run *domain.BatchRun, i int, stalled bool) Progress {
	return Progress{
		RunID:   run.ID,
		Index:   i,
		Record:  run.Items[i],
		Cursor:  run.Cursor,
		Total:   run.Total(),
		Phase:   run.Phase,
		Stalled: stalled,
	}
}

func (r *Runner) emit(p Progress) {
	if r.cfg.OnProgress != nil {
		r.cfg.OnProgress(p)
	}
}

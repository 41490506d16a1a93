package flow

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/aggregate"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/cache"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/notify"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/runner"
)

// KindExport tags batch export runs in the history
const KindExport = "export"

// Exporter creates export tasks on the remote service
type Exporter interface {
	SubmitExport(ctx context.Context, req domain.ExportRequest) (bool, error)
	ListSessions(ctx context.Context) ([]domain.Session, error)
}

// ExportConfig wires an export flow
type ExportConfig struct {
	Exporter    Exporter
	Runner      runner.Config
	Notifier    notify.Notifier
	Generations *cache.Generations
	History     History
	Logger      *log.Logger
	// Kind tags the run in the history, KindExport when empty
	Kind string
	// Title is the notification title
	Title string
}

// ExportResult is the outcome of a finished batch export
type ExportResult struct {
	Run     *domain.BatchRun
	Summary aggregate.Summary
}

// ExportFlow runs batch exports of chat sessions, one run at a time
type ExportFlow struct {
	exporter Exporter
	runner   *runner.Runner
	notifier notify.Notifier
	agg      *aggregate.Aggregator
	sessions *cache.Dataset[[]domain.Session]
	history  History
	logger   *log.Logger
	kind     string
	title    string

	mu      sync.Mutex
	running bool
	last    *ExportResult
}

// NewExportFlow creates an export flow
func NewExportFlow(cfg ExportConfig) *ExportFlow {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NoopNotifier{}
	}
	if cfg.Generations == nil {
		cfg.Generations = cache.NewGenerations()
	}
	if cfg.History == nil {
		cfg.History = noHistory{}
	}
	if cfg.Kind == "" {
		cfg.Kind = KindExport
	}
	if cfg.Title == "" {
		cfg.Title = "Batch export"
	}
	if cfg.Runner.Logger == nil {
		cfg.Runner.Logger = cfg.Logger
	}

	return &ExportFlow{
		exporter: cfg.Exporter,
		runner:   runner.New(cfg.Runner),
		notifier: cfg.Notifier,
		agg:      aggregate.New(cfg.Generations, cache.DatasetTasks, cache.DatasetSessions),
		sessions: cache.NewDataset(cfg.Generations, cache.DatasetSessions, cfg.Exporter.ListSessions),
		history:  cfg.History,
		logger:   cfg.Logger,
		kind:     cfg.Kind,
		title:    cfg.Title,
	}
}

// Sessions returns the exportable sessions, re-fetched after a successful run
func (f *ExportFlow) Sessions(ctx context.Context) ([]domain.Session, error) {
	return f.sessions.Get(ctx)
}

// Start validates the selection and options, then runs the batch to completion.
// Validation errors are returned before any network call.
func (f *ExportFlow) Start(ctx context.Context, sessions []domain.Session, opts domain.ExportOptions) (*ExportResult, error) {
	job, err := f.begin(sessions, opts)
	if err != nil {
		return nil, err
	}
	return f.execute(ctx, job), nil
}

// StartAsync is Start in the background. The channel receives the result once.
func (f *ExportFlow) StartAsync(ctx context.Context, sessions []domain.Session, opts domain.ExportOptions) (<-chan *ExportResult, error) {
	job, err := f.begin(sessions, opts)
	if err != nil {
		return nil, err
	}
	done := make(chan *ExportResult, 1)
	go func() {
		done <- f.execute(ctx, job)
	}()
	return done, nil
}

// Running reports whether a run is active
func (f *ExportFlow) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Closable reports whether the progress view may be closed
func (f *ExportFlow) Closable() bool {
	return !f.Running()
}

// Current returns a snapshot of the active or last run, nil when dismissed
func (f *ExportFlow) Current() *domain.BatchRun {
	f.mu.Lock()
	running, last := f.running, f.last
	f.mu.Unlock()
	if running {
		return f.runner.Snapshot()
	}
	if last == nil {
		return nil
	}
	return last.Run.Clone()
}

// QueueStats reports the submission queue's worker usage
func (f *ExportFlow) QueueStats() runner.QueueStats {
	return f.runner.Stats()
}

// Last returns the result of the last finished run, nil when dismissed
func (f *ExportFlow) Last() *ExportResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// Dismiss discards the finished run
func (f *ExportFlow) Dismiss() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return ErrRunActive
	}
	f.last = nil
	return nil
}

type exportJob struct {
	items  []domain.SelectionItem
	lookup map[domain.Key]domain.ExportRequest
}

func (f *ExportFlow) begin(sessions []domain.Session, opts domain.ExportOptions) (*exportJob, error) {
	if len(sessions) == 0 {
		return nil, ErrEmptySelection
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	job := &exportJob{lookup: make(map[domain.Key]domain.ExportRequest, len(sessions))}
	for _, s := range UniqueSessions(sessions) {
		item := s.Item()
		job.items = append(job.items, item)
		job.lookup[item.Key()] = domain.NewExportRequest(s, opts)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return nil, ErrRunActive
	}
	f.running = true
	f.last = nil
	return job, nil
}

func (f *ExportFlow) execute(ctx context.Context, job *exportJob) *ExportResult {
	submit := func(ctx context.Context, item domain.SelectionItem) (bool, error) {
		req, ok := job.lookup[item.Key()]
		if !ok {
			return false, fmt.Errorf("no export request for %s", item.Key())
		}
		return f.exporter.SubmitExport(ctx, req)
	}

	run := f.runner.Run(ctx, job.items, submit)
	summary := f.agg.Apply(run.Items)
	result := &ExportResult{Run: run, Summary: summary}

	if err := f.history.SaveRun(f.kind, run); err != nil {
		f.logger.Error("saving run history", "run", run.ID, "err", err)
	}
	if err := f.notifier.Send(summary.Notification(f.title, "export", run.ID)); err != nil {
		f.logger.Warn("sending notification", "run", run.ID, "err", err)
	}

	f.mu.Lock()
	f.running = false
	f.last = result
	f.mu.Unlock()
	return result
}

// UniqueSessions drops repeated sessions, keeping first occurrences in order.
// Its length is the number of records a run over sessions will have.
func UniqueSessions(sessions []domain.Session) []domain.Session {
	seen := make(map[domain.Key]bool, len(sessions))
	out := make([]domain.Session, 0, len(sessions))
	for _, s := range sessions {
		key := s.Item().Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

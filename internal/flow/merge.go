package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/aggregate"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/cache"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/notify"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/remote"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/runstore"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/selection"
)

const openLocationTimeout = 10 * time.Second

// Merger combines backups on the remote service
type Merger interface {
	ListMergeableBackups(ctx context.Context) ([]domain.BackupGroup, error)
	Merge(ctx context.Context, req domain.MergeRequest) (*domain.MergeResult, error)
	OpenFileLocation(ctx context.Context, path string) error
}

// MergeOptions are passed to the remote merge verbatim
type MergeOptions struct {
	Dedupe bool
	// DeleteSources removes the source backups after merging and cannot be undone
	DeleteSources bool
}

// DefaultMergeOptions keeps sources and drops duplicate messages
func DefaultMergeOptions() MergeOptions {
	return MergeOptions{Dedupe: true}
}

// MergeConfig wires a merge flow
type MergeConfig struct {
	Merger      Merger
	Options     MergeOptions
	Notifier    notify.Notifier
	Generations *cache.Generations
	History     History
	Logger      *log.Logger
}

// MergeFlow merges two or more backups selected from a grouped tree
type MergeFlow struct {
	merger   Merger
	tree     *selection.Tree
	backups  *cache.Dataset[[]domain.BackupGroup]
	agg      *aggregate.Aggregator
	notifier notify.Notifier
	history  History
	logger   *log.Logger

	mu         sync.Mutex
	opts       MergeOptions
	groups     []domain.BackupGroup
	open       bool
	submitting bool
}

// NewMergeFlow creates a merge flow
func NewMergeFlow(cfg MergeConfig) *MergeFlow {
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
	return &MergeFlow{
		merger:   cfg.Merger,
		tree:     selection.New(),
		backups:  cache.NewDataset(cfg.Generations, cache.DatasetBackups, cfg.Merger.ListMergeableBackups),
		agg:      aggregate.New(cfg.Generations, cache.DatasetBackups),
		notifier: cfg.Notifier,
		history:  cfg.History,
		logger:   cfg.Logger,
		opts:     cfg.Options,
	}
}

// Tree returns the selection tree of backups grouped by task
func (f *MergeFlow) Tree() *selection.Tree {
	return f.tree
}

// Discover loads mergeable backups into the tree. Existing selections are kept.
func (f *MergeFlow) Discover(ctx context.Context) ([]domain.BackupGroup, error) {
	groups, err := f.backups.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing mergeable backups: %w", err)
	}

	var items []domain.SelectionItem
	for _, g := range groups {
		items = append(items, g.Items()...)
	}
	f.tree.SetItems(items)

	f.mu.Lock()
	f.groups = groups
	f.mu.Unlock()
	return groups, nil
}

// Groups returns the last discovered backup groups
func (f *MergeFlow) Groups() []domain.BackupGroup {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.BackupGroup(nil), f.groups...)
}

// Options returns the current merge options
func (f *MergeFlow) Options() MergeOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts
}

// SetOptions replaces the merge options
func (f *MergeFlow) SetOptions(opts MergeOptions) {
	f.mu.Lock()
	f.opts = opts
	f.mu.Unlock()
}

// Open marks the merge dialog open
func (f *MergeFlow) Open() {
	f.mu.Lock()
	f.open = true
	f.mu.Unlock()
}

// IsOpen reports whether the merge dialog is open
func (f *MergeFlow) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// Close closes the dialog unless a merge is in flight
func (f *MergeFlow) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitting {
		return ErrRunActive
	}
	f.open = false
	return nil
}

// CanSubmit reports whether at least two backups are selected
func (f *MergeFlow) CanSubmit() bool {
	return f.tree.Count() >= domain.MinMergeSources
}

// Submit merges the selected backups. With fewer than two sources it returns
// ErrTooFewSources without contacting the remote service. On failure the
// selection and options are left as they were.
func (f *MergeFlow) Submit(ctx context.Context) (*domain.MergeResult, error) {
	snap := f.tree.Snapshot()

	f.mu.Lock()
	opts := f.opts
	req := domain.NewMergeRequest(snap.IDs(), opts.Dedupe, opts.DeleteSources)
	if !req.CanSubmit() {
		f.mu.Unlock()
		return nil, ErrTooFewSources
	}
	if f.submitting {
		f.mu.Unlock()
		return nil, ErrRunActive
	}
	f.submitting = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
	}()

	id := uuid.NewString()
	logger := f.logger.With("merge", id)
	logger.Info("merging backups", "sources", len(req.SourceIDs), "dedupe", req.Dedupe, "delete_sources", req.DeleteSources)

	result, err := f.merger.Merge(ctx, req)
	record := runstore.MergeRecord{
		ID:            id,
		SourceIDs:     req.SourceIDs,
		Dedupe:        req.Dedupe,
		DeleteSources: req.DeleteSources,
		Success:       err == nil,
		Result:        result,
		CreatedAt:     time.Now(),
	}

	if err != nil {
		msg := remote.ErrorMessage(err)
		record.Error = msg
		f.save(logger, record)
		logger.Warn("merge failed", "err", msg)
		f.send(logger, notify.Notification{
			Title:   "Merge failed",
			Message: msg,
			Type:    notify.NotifyError,
			RunID:   id,
		})
		return nil, fmt.Errorf("merging backups: %w", err)
	}

	f.tree.Clear()
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
	f.agg.Invalidate()
	f.save(logger, record)

	logger.Info("merge finished", "messages", result.TotalMessages, "deduplicated", result.DeduplicatedMessages, "location", result.Location())
	f.send(logger, notify.Notification{
		Title:    "Merge finished",
		Message:  fmt.Sprintf("Merged %d backups into %d messages", len(req.SourceIDs), result.TotalMessages),
		Type:     notify.NotifySuccess,
		RunID:    id,
		Location: result.Location(),
	})
	return result, nil
}

// OpenLocation reveals path on the service host in the background.
// A failure becomes a notification.
func (f *MergeFlow) OpenLocation(path string) {
	if path == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), openLocationTimeout)
		defer cancel()
		if err := f.merger.OpenFileLocation(ctx, path); err != nil {
			f.logger.Warn("opening file location", "path", path, "err", err)
			f.send(f.logger, notify.Notification{
				Title:    "Could not open location",
				Message:  remote.ErrorMessage(err),
				Type:     notify.NotifyError,
				Location: path,
			})
		}
	}()
}

func (f *MergeFlow) save(logger *log.Logger, record runstore.MergeRecord) {
	if err := f.history.SaveMerge(record); err != nil {
		logger.Error("saving merge history", "err", err)
	}
}

func (f *MergeFlow) send(logger *log.Logger, n notify.Notification) {
	if err := f.notifier.Send(n); err != nil {
		logger.Warn("sending notification", "err", err)
	}
}

package flow

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/notify"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/runstore"
)

var quietLogger = log.New(io.Discard)

type fakeExporter struct {
	mu        sync.Mutex
	results   map[string]bool // by peer uid, missing means true
	calls     []string
	inFlight  int
	peak      int
	block     chan struct{}
	sessions  []domain.Session
	listCalls int
}

func (f *fakeExporter) SubmitExport(ctx context.Context, req domain.ExportRequest) (bool, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.PeerUID)
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	ok, found := f.results[req.PeerUID]
	if !found {
		return true, nil
	}
	return ok, nil
}

func (f *fakeExporter) ListSessions(ctx context.Context) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.sessions, nil
}

func (f *fakeExporter) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeMerger struct {
	mu         sync.Mutex
	groups     []domain.BackupGroup
	listCalls  int
	merges     []domain.MergeRequest
	result     *domain.MergeResult
	err        error
	openErr    error
	openedPath chan string
}

func (f *fakeMerger) ListMergeableBackups(ctx context.Context) ([]domain.BackupGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.groups, nil
}

func (f *fakeMerger) Merge(ctx context.Context, req domain.MergeRequest) (*domain.MergeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merges = append(f.merges, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeMerger) OpenFileLocation(ctx context.Context, path string) error {
	if f.openedPath != nil {
		f.openedPath <- path
	}
	return f.openErr
}

func (f *fakeMerger) mergeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.merges)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	ch   chan notify.Notification
}

func (r *recordingNotifier) Send(n notify.Notification) error {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	ch := r.ch
	r.mu.Unlock()
	if ch != nil {
		ch <- n
	}
	return nil
}

func (r *recordingNotifier) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.sent...)
}

type memHistory struct {
	mu     sync.Mutex
	runs   []*domain.BatchRun
	kinds  []string
	merges []runstore.MergeRecord
}

func (h *memHistory) SaveRun(kind string, run *domain.BatchRun) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.kinds = append(h.kinds, kind)
	h.runs = append(h.runs, run)
	return nil
}

func (h *memHistory) SaveMerge(m runstore.MergeRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.merges = append(h.merges, m)
	return nil
}

var errRemote = errors.New("remote unavailable")

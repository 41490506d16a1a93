package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
)

func sessions(ids ...string) []domain.SelectionItem {
	items := make([]domain.SelectionItem, len(ids))
	for i, id := range ids {
		items[i] = domain.SelectionItem{ID: id, Kind: domain.KindSession}
	}
	return items
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// callLog records submit calls and the maximum number in flight
type callLog struct {
	mu       sync.Mutex
	events   []string
	inFlight int32
	peak     int32
}

func (c *callLog) submit(results map[string]bool) SubmitFunc {
	return func(ctx context.Context, item domain.SelectionItem) (bool, error) {
		n := atomic.AddInt32(&c.inFlight, 1)
		for {
			p := atomic.LoadInt32(&c.peak)
			if n <= p || atomic.CompareAndSwapInt32(&c.peak, p, n) {
				break
			}
		}
		c.mu.Lock()
		c.events = append(c.events, "start:"+item.ID)
		c.mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		c.mu.Lock()
		c.events = append(c.events, "end:"+item.ID)
		c.mu.Unlock()
		atomic.AddInt32(&c.inFlight, -1)
		return results[item.ID], nil
	}
}

func TestRun_MixedResults(t *testing.T) {
	calls := &callLog{}
	r := New(Config{Logger: quietLogger()})

	run := r.Run(context.Background(), sessions("A", "B", "C"), calls.submit(map[string]bool{"A": true, "B": false, "C": true}))

	want := []domain.JobStatus{domain.JobSuccess, domain.JobFailed, domain.JobSuccess}
	if len(run.Items) != len(want) {
		t.Fatalf("records = %d, want %d", len(run.Items), len(want))
	}
	for i, status := range want {
		if run.Items[i].Status != status {
			t.Errorf("item %d status = %s, want %s", i, run.Items[i].Status, status)
		}
	}
	if run.Items[1].Error == "" {
		t.Error("failed record should carry a message")
	}
	if run.Phase != domain.PhaseFailed {
		t.Errorf("phase = %s, want failed", run.Phase)
	}
	if run.Cursor != 3 {
		t.Errorf("cursor = %d, want 3", run.Cursor)
	}

	wantEvents := []string{"start:A", "end:A", "start:B", "end:B", "start:C", "end:C"}
	if fmt.Sprint(calls.events) != fmt.Sprint(wantEvents) {
		t.Errorf("call order = %v, want %v", calls.events, wantEvents)
	}
	if calls.peak != 1 {
		t.Errorf("peak concurrent submissions = %d, want 1", calls.peak)
	}
}

func TestRun_PreservesInputOrder(t *testing.T) {
	ids := []string{"z", "a", "m", "b", "y"}
	var order []string
	r := New(Config{Logger: quietLogger()})

	run := r.Run(context.Background(), sessions(ids...), func(ctx context.Context, item domain.SelectionItem) (bool, error) {
		order = append(order, item.ID)
		return true, nil
	})

	for i, id := range ids {
		if run.Items[i].Item.ID != id || order[i] != id {
			t.Errorf("position %d: record %s, call %s, want %s", i, run.Items[i].Item.ID, order[i], id)
		}
	}
	if run.Phase != domain.PhaseCompleted {
		t.Errorf("phase = %s, want completed", run.Phase)
	}
}

func TestRun_ErrorsAndPanicsDoNotAbort(t *testing.T) {
	r := New(Config{Logger: quietLogger()})

	run := r.Run(context.Background(), sessions("1", "2", "3"), func(ctx context.Context, item domain.SelectionItem) (bool, error) {
		switch item.ID {
		case "1":
			return false, errors.New("network unreachable")
		case "2":
			panic("decoder blew up")
		}
		return true, nil
	})

	if run.Items[0].Error != "network unreachable" {
		t.Errorf("item 1 error = %q", run.Items[0].Error)
	}
	if run.Items[1].Status != domain.JobFailed {
		t.Errorf("item 2 status = %s, want failed", run.Items[1].Status)
	}
	if run.Items[2].Status != domain.JobSuccess {
		t.Errorf("item 3 status = %s, want success", run.Items[2].Status)
	}
}

func TestRun_ProgressEvents(t *testing.T) {
	var events []Progress
	r := New(Config{
		Logger:     quietLogger(),
		OnProgress: func(p Progress) { events = append(events, p) },
	})

	r.Run(context.Background(), sessions("a", "b"), func(ctx context.Context, item domain.SelectionItem) (bool, error) {
		return true, nil
	})

	// running + resolved per item, then the final event
	if len(events) != 5 {
		t.Fatalf("events = %d, want 5", len(events))
	}
	if events[0].Record.Status != domain.JobRunning || events[0].Cursor != 0 {
		t.Errorf("first event = %+v, want running with cursor 0", events[0])
	}
	if events[1].Record.Status != domain.JobSuccess || events[1].Cursor != 1 {
		t.Errorf("second event = %+v, want success with cursor 1", events[1])
	}
	last := events[len(events)-1]
	if last.Index != -1 || last.Phase != domain.PhaseCompleted || last.Cursor != 2 {
		t.Errorf("final event = %+v", last)
	}

	prev := 0
	for _, e := range events {
		if e.Cursor < prev {
			t.Errorf("cursor decreased from %d to %d", prev, e.Cursor)
		}
		prev = e.Cursor
	}
}

func TestRun_PacesBetweenItemsOnly(t *testing.T) {
	pace := 30 * time.Millisecond
	r := New(Config{Pace: pace, Logger: quietLogger()})

	start := time.Now()
	r.Run(context.Background(), sessions("a", "b", "c"), func(ctx context.Context, item domain.SelectionItem) (bool, error) {
		return false, nil
	})
	elapsed := time.Since(start)

	if elapsed < 2*pace {
		t.Errorf("elapsed %v, want at least %v (two gaps)", elapsed, 2*pace)
	}
	if elapsed > 2*pace+500*time.Millisecond {
		t.Errorf("elapsed %v, pacing after the last item is not expected", elapsed)
	}
}

func TestRun_SubmitTimeout(t *testing.T) {
	r := New(Config{SubmitTimeout: 20 * time.Millisecond, Logger: quietLogger()})

	run := r.Run(context.Background(), sessions("slow", "fast"), func(ctx context.Context, item domain.SelectionItem) (bool, error) {
		if item.ID == "slow" {
			<-ctx.Done()
			return false, ctx.Err()
		}
		return true, nil
	})

	if run.Items[0].Status != domain.JobFailed {
		t.Errorf("slow item status = %s, want failed", run.Items[0].Status)
	}
	if run.Items[1].Status != domain.JobSuccess {
		t.Errorf("fast item status = %s, want success", run.Items[1].Status)
	}
}

func TestRun_StallIsReported(t *testing.T) {
	var stalled int32
	r := New(Config{
		StallAfter: 10 * time.Millisecond,
		Logger:     quietLogger(),
		OnProgress: func(p Progress) {
			if p.Stalled {
				atomic.AddInt32(&stalled, 1)
			}
		},
	})

	r.Run(context.Background(), sessions("a"), func(ctx context.Context, item domain.SelectionItem) (bool, error) {
		time.Sleep(50 * time.Millisecond)
		return true, nil
	})

	if atomic.LoadInt32(&stalled) != 1 {
		t.Errorf("stall events = %d, want 1", stalled)
	}
}

func TestReportStall_SkipsFinishedItems(t *testing.T) {
	var events []Progress
	r := New(Config{
		StallAfter: time.Millisecond,
		Logger:     quietLogger(),
		OnProgress: func(p Progress) { events = append(events, p) },
	})
	now := time.Now()

	inFlight := domain.NewBatchRun("r1", sessions("a"), now)
	inFlight.Items[0].Start(now)
	r.reportStall(inFlight, 0, &stallGuard{}, quietLogger())
	if len(events) != 1 || !events[0].Stalled || events[0].Record.Status != domain.JobRunning {
		t.Fatalf("in-flight stall events = %+v", events)
	}

	// Timer fired, but the record was finished before the report got the lock.
	finished := domain.NewBatchRun("r2", sessions("a"), now)
	finished.Items[0].Start(now)
	finished.Items[0].Succeed(now)
	r.reportStall(finished, 0, &stallGuard{}, quietLogger())

	// Timer fired, but the step already passed its end.
	stepDone := domain.NewBatchRun("r3", sessions("a"), now)
	stepDone.Items[0].Start(now)
	r.reportStall(stepDone, 0, &stallGuard{done: true}, quietLogger())

	if len(events) != 1 {
		t.Errorf("late stall reports were emitted: %+v", events[1:])
	}
}

func TestRun_NoStallEventAfterItemFinished(t *testing.T) {
	var mu sync.Mutex
	finished := map[int]bool{}
	var late int32
	r := New(Config{
		StallAfter: time.Millisecond,
		Logger:     quietLogger(),
		OnProgress: func(p Progress) {
			mu.Lock()
			defer mu.Unlock()
			if p.Stalled && (finished[p.Index] || p.Record.Status.Terminal()) {
				atomic.AddInt32(&late, 1)
			}
			if p.Index >= 0 && p.Record.Status.Terminal() {
				finished[p.Index] = true
			}
		},
	})

	// Submissions end right around the stall deadline to exercise the race.
	r.Run(context.Background(), sessions("a", "b", "c", "d", "e", "f"), func(ctx context.Context, item domain.SelectionItem) (bool, error) {
		time.Sleep(time.Millisecond)
		return true, nil
	})
	time.Sleep(20 * time.Millisecond)

	if n := atomic.LoadInt32(&late); n != 0 {
		t.Errorf("%d stall events arrived for finished items", n)
	}
}

func TestRun_CancelledContextStillRecordsEveryItem(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	r := New(Config{Pace: time.Hour, Logger: quietLogger()})

	run := r.Run(ctx, sessions("a", "b", "c"), func(ctx context.Context, item domain.SelectionItem) (bool, error) {
		calls++
		cancel()
		return true, nil
	})

	if calls != 1 {
		t.Errorf("submit calls = %d, want 1", calls)
	}
	if run.Cursor != 3 {
		t.Errorf("cursor = %d, want 3", run.Cursor)
	}
	for i, rec := range run.Items[1:] {
		if rec.Status != domain.JobFailed {
			t.Errorf("item %d status = %s, want failed", i+1, rec.Status)
		}
	}
}

func TestRun_EmptyInput(t *testing.T) {
	r := New(Config{Logger: quietLogger()})
	run := r.Run(context.Background(), nil, func(ctx context.Context, item domain.SelectionItem) (bool, error) {
		t.Fatal("submit must not be called")
		return false, nil
	})
	if run.Total() != 0 || run.Phase != domain.PhaseCompleted {
		t.Errorf("run = %+v", run)
	}
}

func TestSnapshot_TracksCurrentRun(t *testing.T) {
	r := New(Config{Logger: quietLogger(), NewID: func() string { return "fixed" }})
	if r.Snapshot() != nil {
		t.Error("Snapshot before any run should be nil")
	}

	var mid *domain.BatchRun
	r.Run(context.Background(), sessions("a", "b"), func(ctx context.Context, item domain.SelectionItem) (bool, error) {
		if item.ID == "b" {
			mid = r.Snapshot()
		}
		return true, nil
	})

	if mid == nil || mid.Cursor != 1 || mid.Phase != domain.PhaseRunning {
		t.Errorf("mid-run snapshot = %+v", mid)
	}
	if got := r.Snapshot(); got.ID != "fixed" || got.Phase != domain.PhaseCompleted {
		t.Errorf("final snapshot = %+v", got)
	}
}

func TestStats_ReportsQueueUsage(t *testing.T) {
	r := New(Config{Logger: quietLogger()})
	if st := r.Stats(); st != (QueueStats{Workers: 1}) {
		t.Errorf("Stats() before run = %+v", st)
	}

	var during QueueStats
	r.Run(context.Background(), sessions("a", "b"), func(ctx context.Context, item domain.SelectionItem) (bool, error) {
		during = r.Stats()
		return true, nil
	})

	if during.InFlight != 1 {
		t.Errorf("InFlight during submit = %d, want 1", during.InFlight)
	}
	if st := r.Stats(); st.InFlight != 0 || st.Peak != 1 || st.Workers != 1 {
		t.Errorf("Stats() after run = %+v", st)
	}
}

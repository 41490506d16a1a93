package batch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// RunFunc executes one scheduled export
type RunFunc func(ctx context.Context, entry ScheduleEntry) error

// Scheduler manages scheduled batch exports
type Scheduler struct {
	configs map[string]ScheduleEntry
	lastRun map[string]time.Time
	running map[string]bool
	now     func() time.Time
	logger  *log.Logger
	wg      sync.WaitGroup
	mu      sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(entries []ScheduleEntry, logger *log.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &Scheduler{
		lastRun: make(map[string]time.Time),
		running: make(map[string]bool),
		now:     time.Now,
		logger:  logger,
	}
	if err := s.Reload(entries); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseCron parses a five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// Reload replaces the schedules. Run history of kept names is preserved.
func (s *Scheduler) Reload(entries []ScheduleEntry) error {
	configs := make(map[string]ScheduleEntry, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
		configs[e.Name] = e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = configs
	for name := range s.lastRun {
		if _, ok := configs[name]; !ok {
			delete(s.lastRun, name)
		}
	}
	return nil
}

// NextRun returns the next scheduled run time for a schedule
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[name]
	if !ok {
		return time.Time{}
	}

	sched, err := cronParser.Parse(cfg.Cron)
	if err != nil {
		return time.Time{}
	}

	return sched.Next(s.now())
}

// ShouldRun returns true if a schedule is due and not already running
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[name]
	if !ok {
		return false
	}

	if s.running[name] {
		return false
	}

	sched, err := cronParser.Parse(cfg.Cron)
	if err != nil {
		return false
	}

	lastRun := s.lastRun[name]
	if lastRun.IsZero() {
		// First tick after start only fires for slots inside the last minute
		lastRun = s.now().Add(-time.Minute)
	}

	nextRun := sched.Next(lastRun)
	return !s.now().Before(nextRun)
}

// MarkRunning marks a schedule as currently running
func (s *Scheduler) MarkRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = true
}

// MarkComplete marks a schedule as complete
func (s *Scheduler) MarkComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = s.now()
}

// GetConfig returns the entry for a schedule
func (s *Scheduler) GetConfig(name string) (ScheduleEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[name]
	return cfg, ok
}

// ListSchedules returns all schedule names, sorted
func (s *Scheduler) ListSchedules() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.configs))
	for name := range s.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start runs the scheduler loop until ctx is done, then waits for running exports
func (s *Scheduler) Start(ctx context.Context, run RunFunc) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "schedules", len(s.ListSchedules()))
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.runDue(ctx, run)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context, run RunFunc) {
	for _, name := range s.ListSchedules() {
		if !s.ShouldRun(name) {
			continue
		}
		cfg, ok := s.GetConfig(name)
		if !ok {
			continue
		}
		s.MarkRunning(name)
		s.wg.Add(1)
		go func(e ScheduleEntry) {
			defer s.wg.Done()
			defer s.MarkComplete(e.Name)
			s.logger.Info("scheduled export starting", "schedule", e.Name)
			if err := run(ctx, e); err != nil {
				s.logger.Error("scheduled export failed", "schedule", e.Name, "err", err)
			}
		}(cfg)
	}
}

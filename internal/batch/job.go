package batch

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/flow"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/notify"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/observer"
)

// Exporter starts one batch export
type Exporter interface {
	Start(ctx context.Context, sessions []domain.Session, opts domain.ExportOptions) (*flow.ExportResult, error)
}

// ExportJob returns the RunFunc that exports a schedule's sessions through exp.
// The summary notification is only sent for schedules with notify_on_complete.
func ExportJob(exp Exporter, defaults domain.ExportOptions, notifier notify.Notifier) RunFunc {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return func(ctx context.Context, e ScheduleEntry) error {
		sessions, err := e.DomainSessions()
		if err != nil {
			return err
		}
		res, err := exp.Start(ctx, sessions, e.Options(defaults))
		if err != nil {
			return fmt.Errorf("schedule %s: %w", e.Name, err)
		}
		if e.NotifyOnComplete {
			n := res.Summary.Notification("Scheduled export: "+e.Name, "export", res.Run.ID)
			if err := notifier.Send(n); err != nil {
				return fmt.Errorf("schedule %s: notify: %w", e.Name, err)
			}
		}
		return nil
	}
}

// WatchScheduleFile reloads the scheduler whenever path changes.
// An invalid file is logged and the previous schedules stay active.
func WatchScheduleFile(ctx context.Context, s *Scheduler, path string, logger *log.Logger) (*observer.FileWatcher, error) {
	if logger == nil {
		logger = log.Default()
	}
	fw, err := observer.NewFileWatcher(path, func(p string) {
		cfg, err := LoadScheduleConfig(p)
		if err != nil {
			logger.Error("schedule file rejected", "path", p, "err", err)
			return
		}
		if err := s.Reload(cfg.Schedules); err != nil {
			logger.Error("schedule reload failed", "path", p, "err", err)
			return
		}
		logger.Info("schedules reloaded", "path", p, "schedules", len(cfg.Schedules))
	}, logger)
	if err != nil {
		return nil, err
	}
	fw.Start(ctx)
	return fw, nil
}

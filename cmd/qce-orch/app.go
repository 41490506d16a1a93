package main

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/cache"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/config"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/flow"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/logging"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/notify"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/observer"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/remote"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/runner"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/runstore"
)

// app holds everything a command needs, built from one config file
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	client   *remote.Client
	store    *runstore.Store
	notifier notify.Notifier
	gens     *cache.Generations
	obs      *observer.Observer
	defaults domain.ExportOptions

	// progress receives runner events in addition to the observer
	progress func(runner.Progress)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.Log)

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	format, err := domain.ParseExportFormat(cfg.Export.Format)
	if err != nil {
		store.Close()
		return nil, err
	}

	notifiers := []notify.Notifier{notify.NewDesktopNotifier(cfg.Notifications.Desktop)}
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}
	if cfg.Notifications.Log {
		notifiers = append(notifiers, notify.NewLogNotifier(logger))
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		client:   remote.New(cfg.Remote),
		store:    store,
		notifier: notify.NewMultiNotifier(notifiers...),
		gens:     cache.NewGenerations(),
		obs:      observer.New(cfg.Export.StallAfter.Std()),
		defaults: domain.ExportOptions{
			Format:        format,
			Range:         domain.RangeAll,
			DownloadMedia: cfg.Export.DownloadMedia,
		},
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) runnerConfig() runner.Config {
	return runner.Config{
		Pace:          a.cfg.Export.Pace.Std(),
		SubmitTimeout: a.cfg.Export.SubmitTimeout.Std(),
		StallAfter:    a.cfg.Export.StallAfter.Std(),
		Logger:        a.logger,
		OnProgress: func(p runner.Progress) {
			a.obs.Observe(p)
			if a.progress != nil {
				a.progress(p)
			}
		},
	}
}

func (a *app) exportFlow() *flow.ExportFlow {
	return flow.NewExportFlow(flow.ExportConfig{
		Exporter:    a.client,
		Runner:      a.runnerConfig(),
		Notifier:    a.notifier,
		Generations: a.gens,
		History:     a.store,
		Logger:      a.logger,
	})
}

// scheduledExportFlow leaves notifications to the schedule entry
func (a *app) scheduledExportFlow() *flow.ExportFlow {
	return flow.NewExportFlow(flow.ExportConfig{
		Exporter:    a.client,
		Runner:      a.runnerConfig(),
		Notifier:    notify.NoopNotifier{},
		Generations: a.gens,
		History:     a.store,
		Logger:      a.logger.With("source", "schedule"),
		Kind:        "scheduled",
		Title:       "Scheduled export",
	})
}

func (a *app) mergeFlow() *flow.MergeFlow {
	return flow.NewMergeFlow(flow.MergeConfig{
		Merger: a.client,
		Options: flow.MergeOptions{
			Dedupe:        a.cfg.Merge.Dedupe,
			DeleteSources: a.cfg.Merge.DeleteSources,
		},
		Notifier:    a.notifier,
		Generations: a.gens,
		History:     a.store,
		Logger:      a.logger,
	})
}

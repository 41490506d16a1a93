package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/batch"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/flow"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/runner"
	"github.com/hochfrequenz/chat-export-orchestrator/tui"
	"github.com/hochfrequenz/chat-export-orchestrator/web/api"
)

var (
	exportSessions []string
	exportFrom     string
	exportFormat   string
	exportMedia    bool
	exportStart    string
	exportEnd      string

	mergeSources       []string
	mergeDedupe        bool
	mergeDeleteSources bool

	historyLimit int
	servePort    int
	serveNoCron  bool
)

func init() {
	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web API and the export scheduler",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	serveCmd.Flags().BoolVar(&serveNoCron, "no-schedule", false, "do not run scheduled exports")
	rootCmd.AddCommand(serveCmd)

	// tui command
	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch TUI dashboard",
		RunE:  runTUI,
	}
	rootCmd.AddCommand(tuiCmd)

	// export command
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Create one export task per session",
		Long: `Submit export tasks one at a time. Sessions are given as chat_type:peer_uid,
or read from a YAML selection file with --from.`,
		RunE: runExport,
	}
	exportCmd.Flags().StringArrayVarP(&exportSessions, "session", "s", nil, "session as group:UID or friend:UID (repeatable)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "YAML selection file")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "json, txt or html (default from config)")
	exportCmd.Flags().BoolVar(&exportMedia, "media", false, "download media files")
	exportCmd.Flags().StringVar(&exportStart, "start", "", "custom range start (RFC 3339)")
	exportCmd.Flags().StringVar(&exportEnd, "end", "", "custom range end (RFC 3339)")
	rootCmd.AddCommand(exportCmd)

	// merge command
	mergeCmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge two or more backups into one archive",
		RunE:  runMerge,
	}
	mergeCmd.Flags().StringSliceVar(&mergeSources, "source", nil, "backup ids to merge (at least two)")
	mergeCmd.Flags().BoolVar(&mergeDedupe, "dedupe", true, "drop duplicate messages")
	mergeCmd.Flags().BoolVar(&mergeDeleteSources, "delete-sources", false, "delete the source backups afterwards (cannot be undone)")
	rootCmd.AddCommand(mergeCmd)

	// sessions command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "sessions",
		Short: "List exportable sessions",
		RunE:  runSessions,
	})

	// backups command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "backups",
		Short: "List mergeable backups grouped by task",
		RunE:  runBackups,
	})

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent export runs and merges",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of entries")
	rootCmd.AddCommand(historyCmd)

	// schedule command
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show configured export schedules",
		RunE:  runScheduleList,
	}
	scheduleCmd.AddCommand(&cobra.Command{
		Use:   "run NAME",
		Short: "Run one schedule now",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduleNow,
	})
	scheduleCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Run the schedule loop in the foreground",
		RunE:  runScheduleLoop,
	})
	rootCmd.AddCommand(scheduleCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	web := a.cfg.Web
	if servePort != 0 {
		web.Port = servePort
	}

	srv := api.NewServer(api.Config{
		Addr:     web.Addr(),
		Export:   a.exportFlow(),
		Merge:    a.mergeFlow(),
		History:  a.store,
		Observer: a.obs,
		Defaults: a.defaults,
		Logger:   a.logger,
	})
	a.progress = srv.Progress

	var sched *batch.Scheduler
	if !serveNoCron {
		if sched, err = loadScheduler(a); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(ctx)
	})

	if sched != nil {
		fw, err := batch.WatchScheduleFile(ctx, sched, a.cfg.General.SchedulePath, a.logger)
		if err != nil {
			a.logger.Warn("schedule file not watched", "path", a.cfg.General.SchedulePath, "err", err)
		} else {
			defer fw.Stop()
		}
		job := batch.ExportJob(a.scheduledExportFlow(), a.defaults, a.notifier)
		g.Go(func() error {
			return sched.Start(ctx, job)
		})
	}

	fmt.Printf("Starting web API at http://%s\n", web.Addr())
	return g.Wait()
}

func loadScheduler(a *app) (*batch.Scheduler, error) {
	sc, err := batch.LoadScheduleConfig(a.cfg.General.SchedulePath)
	if err != nil {
		return nil, err
	}
	return batch.NewScheduler(sc.Schedules, a.logger)
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// Log lines would tear the alt screen
	a.logger.SetOutput(io.Discard)

	model := tui.NewModel(tui.ModelConfig{
		Export:   a.exportFlow(),
		Merge:    a.mergeFlow(),
		History:  a.store,
		Defaults: a.defaults,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	opts := a.defaults
	var sessions []domain.Session

	if exportFrom != "" {
		sf, err := flow.LoadSelectionFile(exportFrom)
		if err != nil {
			return err
		}
		sessions = append(sessions, sf.Sessions...)
		opts = sf.Options(opts)
	}
	for _, s := range exportSessions {
		session, err := parseSessionArg(s)
		if err != nil {
			return err
		}
		sessions = append(sessions, session)
	}

	if exportFormat != "" {
		if opts.Format, err = domain.ParseExportFormat(exportFormat); err != nil {
			return err
		}
	}
	if exportMedia {
		opts.DownloadMedia = true
	}
	if exportStart != "" || exportEnd != "" {
		start, end, err := parseRange(exportStart, exportEnd)
		if err != nil {
			return err
		}
		opts.Range, opts.StartTime, opts.EndTime = domain.RangeCustom, start, end
	}

	ctx, stop := signalContext()
	defer stop()

	a.progress = func(p runner.Progress) {
		if p.Index < 0 || p.Stalled || !p.Record.Status.Terminal() {
			return
		}
		mark := "✓"
		if p.Record.Status == domain.JobFailed {
			mark = "✗"
		}
		line := fmt.Sprintf("[%d/%d] %s %s", p.Index+1, p.Total, mark, p.Record.Item.DisplayName())
		if p.Record.Error != "" {
			line += ": " + p.Record.Error
		}
		fmt.Println(line)
	}

	res, err := a.exportFlow().Start(ctx, sessions, opts)
	if err != nil {
		return err
	}
	fmt.Println(res.Summary.Message("export"))
	if res.Summary.FailedCount > 0 {
		return fmt.Errorf("%d of %d exports failed", res.Summary.FailedCount, res.Summary.Total())
	}
	return nil
}

// parseSessionArg parses group:UID or friend:UID[:name]
func parseSessionArg(s string) (domain.Session, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || parts[1] == "" {
		return domain.Session{}, fmt.Errorf("invalid session %q (expected group:UID or friend:UID)", s)
	}
	ct, err := domain.ParseChatType(parts[0])
	if err != nil {
		return domain.Session{}, err
	}
	session := domain.Session{ChatType: ct, PeerUID: parts[1], Name: parts[1]}
	if len(parts) == 3 && parts[2] != "" {
		session.Name = parts[2]
	}
	return session, nil
}

func parseRange(start, end string) (*time.Time, *time.Time, error) {
	if start == "" || end == "" {
		return nil, nil, errors.New("--start and --end must be given together")
	}
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return nil, nil, fmt.Errorf("--start: %w", err)
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return nil, nil, fmt.Errorf("--end: %w", err)
	}
	return &s, &e, nil
}

func runMerge(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	m := a.mergeFlow()
	if _, err := m.Discover(ctx); err != nil {
		return err
	}
	tree := m.Tree()
	for _, id := range mergeSources {
		key := domain.Key{Kind: domain.KindBackup, ID: id}
		if _, ok := tree.Item(key); !ok {
			return fmt.Errorf("unknown backup %q (see qce-orch backups)", id)
		}
		if !tree.IsSelected(key) {
			tree.ToggleItem(key)
		}
	}

	m.SetOptions(flow.MergeOptions{Dedupe: mergeDedupe, DeleteSources: mergeDeleteSources})
	res, err := m.Submit(ctx)
	if errors.Is(err, flow.ErrTooFewSources) {
		return fmt.Errorf("select at least %d backups with --source", domain.MinMergeSources)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Merged %d backups: %d messages (%d duplicates removed)\n",
		res.SourceCount, res.TotalMessages, res.DeduplicatedMessages)
	for _, p := range res.OutputPaths {
		fmt.Printf("  %s\n", p)
	}
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sessions, err := a.client.ListSessions(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tNAME")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s:%s\t%s\n", s.ChatType, s.PeerUID, s.Name)
	}
	return w.Flush()
}

func runBackups(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	groups, err := a.client.ListMergeableBackups(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, g := range groups {
		fmt.Fprintf(w, "%s (%d)\t\t\t\n", g.TaskName, len(g.Files))
		for _, f := range g.Files {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", f.ID, f.FileName,
				humanize.Bytes(uint64(f.FileSizeBytes)), humanize.Time(f.Timestamp))
		}
	}
	return w.Flush()
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.store.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tKIND\tPHASE\tOK\tFAILED\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			shortID(r.ID), r.Kind, r.Phase, r.Succeeded, r.Failed, humanize.Time(r.StartedAt))
	}
	w.Flush()

	merges, err := a.store.ListMerges(historyLimit)
	if err != nil {
		return err
	}
	if len(merges) == 0 {
		return nil
	}
	fmt.Println()
	fmt.Fprintln(w, "MERGE\tSOURCES\tRESULT\tWHEN")
	for _, m := range merges {
		result := "ok"
		if !m.Success {
			result = "failed: " + m.Error
		} else if m.Result != nil && m.Result.Location() != "" {
			result = m.Result.Location()
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", shortID(m.ID), len(m.SourceIDs), result, humanize.Time(m.CreatedAt))
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := loadScheduler(a)
	if err != nil {
		return err
	}
	names := sched.ListSchedules()
	if len(names) == 0 {
		fmt.Printf("No schedules in %s\n", a.cfg.General.SchedulePath)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCRON\tSESSIONS\tNEXT RUN")
	for _, name := range names {
		e, _ := sched.GetConfig(name)
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", e.Name, e.Cron, len(e.Sessions), humanize.Time(sched.NextRun(name)))
	}
	return w.Flush()
}

func runScheduleNow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := loadScheduler(a)
	if err != nil {
		return err
	}
	entry, ok := sched.GetConfig(args[0])
	if !ok {
		return fmt.Errorf("unknown schedule %q", args[0])
	}

	ctx, stop := signalContext()
	defer stop()

	job := batch.ExportJob(a.scheduledExportFlow(), a.defaults, a.notifier)
	if err := job(ctx, entry); err != nil {
		return err
	}
	fmt.Printf("Schedule %s finished\n", entry.Name)
	return nil
}

func runScheduleLoop(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := loadScheduler(a)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	fw, err := batch.WatchScheduleFile(ctx, sched, a.cfg.General.SchedulePath, a.logger)
	if err != nil {
		a.logger.Warn("schedule file not watched", "path", a.cfg.General.SchedulePath, "err", err)
	} else {
		defer fw.Stop()
	}

	fmt.Printf("Running %d schedules from %s\n", len(sched.ListSchedules()), a.cfg.General.SchedulePath)
	return sched.Start(ctx, batch.ExportJob(a.scheduledExportFlow(), a.defaults, a.notifier))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fixbench/runner/internal/config"
	"github.com/fixbench/runner/internal/domain"
	"github.com/fixbench/runner/internal/eventlog"
	"github.com/fixbench/runner/internal/metrics"
	"github.com/fixbench/runner/internal/spool"
	"github.com/fixbench/runner/internal/store"
)

var (
	runKeepWorkspace bool
	extractDiffPath  string
	extractOutPath   string
	listLimit        int
	watchSpoolDir    string
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run TASK_FILE",
		Short: "Run one bug-fixing task",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().BoolVar(&runKeepWorkspace, "keep-workspace", false, "keep the working copy after the run")
	rootCmd.AddCommand(runCmd)

	// extract command
	extractCmd := &cobra.Command{
		Use:   "extract EVENTS_FILE",
		Short: "Extract a result record from an execution log",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtract,
	}
	extractCmd.Flags().StringVar(&extractDiffPath, "diff", "", "diff file produced by the run")
	extractCmd.Flags().StringVarP(&extractOutPath, "output", "o", "", "write record to file instead of stdout")
	rootCmd.AddCommand(extractCmd)

	// list command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE:  runList,
	}
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(listCmd)

	// show command
	showCmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show details for a run",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	rootCmd.AddCommand(showCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch [SPOOL_DIR]",
		Short: "Watch a spool directory for task descriptors",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&watchSpoolDir, "spool", "", "spool directory (default: <artifacts_dir>/../spool)")
	rootCmd.AddCommand(watchCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := executePipeline(ctx, cfg, args[0], runKeepWorkspace)
	if err != nil {
		// Infrastructure failure: no result record could be produced.
		return err
	}

	printRecordSummary(rec)

	// An unsuccessful agent run is a valid pipeline outcome, not a
	// process failure, so the exit code stays zero.
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	events, readErr := eventlog.Read(args[0])
	in := metrics.Inputs{
		Events:     events,
		LogCorrupt: readErr != nil,
	}

	if extractDiffPath != "" {
		data, err := os.ReadFile(extractDiffPath)
		if err != nil {
			return err
		}
		in.Diff = string(data)
		in.Dirty = len(data) > 0
	}

	rec := metrics.Extract(in)

	if extractOutPath != "" {
		return metrics.WriteRecord(rec, extractOutPath)
	}

	data, err := metrics.Encode(rec)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := store.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRecent(listLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tTASK\tSTATUS\tSTARTED\tTOKENS\tCOST")
	for _, r := range runs {
		started := "-"
		if !r.StartedAt.IsZero() {
			started = humanize.Time(r.StartedAt)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t$%.4f\n",
			r.ID, r.TaskID, r.Status, started, r.Tokens.Total(), r.CostUSD)
	}
	w.Flush()

	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := store.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	r, err := db.GetRun(args[0])
	if err != nil {
		return fmt.Errorf("run %s: %w", args[0], err)
	}

	fmt.Printf("Run:            %s\n", r.ID)
	fmt.Printf("Task:           %s\n", r.TaskID)
	fmt.Printf("Status:         %s\n", r.Status)
	if r.FailureReason != "" {
		fmt.Printf("Failure reason: %s\n", r.FailureReason)
	}
	fmt.Printf("Started:        %s\n", r.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if !r.FinishedAt.IsZero() {
		fmt.Printf("Finished:       %s\n", r.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Printf("Duration:       %.1fs\n", r.Duration)
	fmt.Printf("Tokens:         %d prompt / %d completion / %d tool\n",
		r.Tokens.Prompt, r.Tokens.Completion, r.Tokens.Tool)
	fmt.Printf("Cost:           $%.4f\n", r.CostUSD)
	fmt.Printf("Patch applied:  %v\n", r.PatchApplied)
	fmt.Printf("Artifacts:      %s\n", r.ArtifactsDir)

	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	spoolDir := watchSpoolDir
	if len(args) > 0 {
		spoolDir = args[0]
	}
	if spoolDir == "" {
		spoolDir = filepath.Join(filepath.Dir(cfg.General.ArtifactsDir), "spool")
	}

	db, err := store.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	janitor, err := spool.NewJanitor(cfg.Retention.Cron, cfg.Retention.KeepDays, db.Prune)
	if err != nil {
		return fmt.Errorf("retention schedule: %w", err)
	}
	go janitor.Start(ctx)

	watcher, err := spool.NewWatcher(spoolDir, func(descriptorPath string) error {
		rec, err := executePipeline(ctx, cfg, descriptorPath, false)
		if err != nil {
			return err
		}
		printRecordSummary(rec)
		return nil
	})
	if err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Printf("Watching %s for task descriptors\n", spoolDir)
	if err := watcher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printRecordSummary(rec *domain.ResultRecord) {
	fmt.Printf("Run %s finished: %s", rec.RunID, rec.Status)
	if rec.FailureReason != "" {
		fmt.Printf(" (%s)", rec.FailureReason)
	}
	fmt.Printf("\n  tokens: %d  cost: $%.4f  duration: %.1fs  patch: %v\n",
		rec.TokenUsage.Total(), rec.EstimatedCost, rec.DurationSeconds, rec.PatchApplied)
}

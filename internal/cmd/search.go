package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/harrison/crew/internal/config"
	"github.com/harrison/crew/internal/crew"
	"github.com/harrison/crew/internal/history"
	"github.com/harrison/crew/internal/logger"
	"github.com/harrison/crew/internal/models"
	"github.com/harrison/crew/internal/report"
	"github.com/harrison/crew/internal/watch"
	"github.com/spf13/cobra"
)

// NewSearchCommand creates the search command
func NewSearchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <path> <term>",
		Short: "Search a directory tree for a term",
		Long: `Search every regular file under <path> for the literal <term>.

Each file that contains the term is reported once, with the number and text
of its first matching line. Symbolic links are reported and skipped, special
files (FIFOs, devices, sockets) are reported as unsupported, and entries that
cannot be read are reported without stopping the run.

Configuration is loaded from $CREW_HOME/config.yaml or .crew/config.yaml.
CLI flags override configuration file settings.

Examples:
  crew search . TODO
  crew search --workers 16 /var/log "connection reset"
  crew search --report out/report.html --report-format html src needle
  crew search --watch --no-history . FIXME`,
		Args: cobra.ExactArgs(2),
		RunE: runSearch,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .crew/config.yaml)")
	cmd.Flags().Int("workers", 0, "Number of workers in the crew")
	cmd.Flags().Int("capacity", 0, "Maximum crew size")
	cmd.Flags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.Flags().String("log-dir", "", "Directory for run log files")
	cmd.Flags().Bool("no-log-file", false, "Do not write a run log file")
	cmd.Flags().Bool("show-misses", false, "Print files searched without a match")
	cmd.Flags().String("report", "", "Write a report of each run to this file")
	cmd.Flags().String("report-format", "", "Report format: markdown, html, json")
	cmd.Flags().Bool("no-history", false, "Do not record runs in the history database")
	cmd.Flags().Bool("watch", false, "Search again whenever the tree changes")

	return cmd
}

// loadConfig loads the file named by --config, or the default config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, nil
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// searchFlags collects the flags set on the command line.
func searchFlags(cmd *cobra.Command) config.Flags {
	var f config.Flags
	flags := cmd.Flags()

	if flags.Changed("workers") {
		v, _ := flags.GetInt("workers")
		f.Workers = &v
	}
	if flags.Changed("capacity") {
		v, _ := flags.GetInt("capacity")
		f.Capacity = &v
	}
	if flags.Changed("log-level") {
		v, _ := flags.GetString("log-level")
		f.LogLevel = &v
	}
	if flags.Changed("log-dir") {
		v, _ := flags.GetString("log-dir")
		f.LogDir = &v
	}
	if flags.Changed("show-misses") {
		v, _ := flags.GetBool("show-misses")
		f.ShowMisses = &v
	}
	if flags.Changed("no-history") {
		v, _ := flags.GetBool("no-history")
		f.NoHistory = &v
	}
	if flags.Changed("report-format") {
		v, _ := flags.GetString("report-format")
		f.ReportFormat = &v
	}
	return f
}

// searchSession owns everything a search needs across one or more runs.
type searchSession struct {
	cfg        *config.Config
	root       string
	term       string
	reportPath string

	console  *logger.ConsoleLogger
	recorder *history.Recorder
	store    *history.Store
	crew     *crew.Crew
}

// runSearch implements the search command logic
func runSearch(cmd *cobra.Command, args []string) error {
	root, term := args[0], args[1]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.MergeWithFlags(searchFlags(cmd))
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	noLogFile, _ := cmd.Flags().GetBool("no-log-file")
	reportPath, _ := cmd.Flags().GetString("report")
	watchTree, _ := cmd.Flags().GetBool("watch")

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s := &searchSession{
		cfg:        cfg,
		root:       root,
		term:       term,
		reportPath: reportPath,
		console:    logger.NewConsoleLogger(cmd.OutOrStdout(), cfg.LogLevel),
		recorder:   history.NewRecorder(),
	}
	s.console.SetShowMisses(cfg.ShowMisses)

	sinks := []crew.Sink{s.console, s.recorder}
	loggers := []crew.Logger{s.console}

	if !noLogFile {
		fileLogger, err := logger.NewFileLoggerWithDirAndLevel(cfg.LogDir, cfg.LogLevel)
		if err != nil {
			return err
		}
		defer fileLogger.Close()
		sinks = append(sinks, fileLogger)
		loggers = append(loggers, fileLogger)
	}

	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.History.DBPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		s.store = store
	}

	c, err := crew.New(cfg.Workers, crew.Tee(sinks...),
		crew.WithCapacity(cfg.Capacity),
		crew.WithMaxPathLength(cfg.MaxPathLength),
		crew.WithLogger(crew.TeeLogger(loggers...)),
	)
	if err != nil {
		return err
	}
	defer c.Close()
	s.crew = c

	if err := s.run(ctx); err != nil {
		return err
	}
	if !watchTree {
		return nil
	}
	return s.watch(ctx)
}

// run performs one search and stores its results.
func (s *searchSession) run(ctx context.Context) error {
	s.recorder.Reset()
	summary, runErr := s.crew.Start(ctx, s.root, s.term)
	if runErr != nil && crew.IsUsageError(runErr) {
		return runErr
	}

	// Results of an interrupted run are still written out.
	saveCtx := context.WithoutCancel(ctx)
	if err := s.save(saveCtx, summary); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("search interrupted: %w", runErr)
	}
	return nil
}

func (s *searchSession) save(ctx context.Context, summary models.RunSummary) error {
	if s.reportPath != "" {
		r := report.Build(summary, s.recorder.Outcomes())
		if err := report.Write(ctx, s.reportPath, s.cfg.Report.Format, r); err != nil {
			return err
		}
		s.console.LogInfo(fmt.Sprintf("Report written to %s", s.reportPath))
	}

	if s.store != nil {
		if err := s.recorder.Flush(ctx, s.store, summary); err != nil {
			return fmt.Errorf("record run %s: %w", summary.RunID, err)
		}
	}
	return nil
}

// watch reruns the search on the same crew after every change under root
// until ctx is cancelled.
func (s *searchSession) watch(ctx context.Context) error {
	tw, err := watch.NewTreeWatcher(s.root, s.ownFiles()...)
	if err != nil {
		return fmt.Errorf("watch %s: %w", s.root, err)
	}
	defer tw.Close()
	// Temp and lock files from report writes and history locking.
	tw.IgnoreNames(".tmp-*", "*.lock")

	s.console.LogInfo(fmt.Sprintf("Watching %s for changes (Ctrl+C to stop)", s.root))
	for {
		select {
		case <-ctx.Done():
			return nil
		case change := <-tw.Changes():
			s.console.LogInfo(fmt.Sprintf("%d paths changed, searching again", len(change.Paths)))
			if err := s.run(ctx); err != nil {
				if errors.Is(err, context.Canceled) || ctx.Err() != nil {
					return nil
				}
				return err
			}
		case err := <-tw.Errors():
			s.console.LogWarn(fmt.Sprintf("watcher: %v", err))
		}
	}
}

// ownFiles lists the files this session writes, so writing them does not
// trigger another run when they live inside the searched tree.
func (s *searchSession) ownFiles() []string {
	paths := []string{s.cfg.LogDir}
	if s.reportPath != "" {
		paths = append(paths, s.reportPath)
	}
	if s.store != nil {
		db := s.cfg.History.DBPath
		paths = append(paths, db, db+"-wal", db+"-shm", db+"-journal")
	}
	if home, err := config.GetCrewHome(); err == nil {
		if _, err := os.Stat(home); err == nil {
			paths = append(paths, filepath.Clean(home))
		}
	}
	return paths
}

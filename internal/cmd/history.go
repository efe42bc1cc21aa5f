package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/harrison/crew/internal/history"
	"github.com/harrison/crew/internal/models"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the 'crew history' command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded search runs",
		Long: `List the most recent search runs recorded in the history database,
newest first. Use 'crew history show <run-id>' to see the outcomes of one run;
any unique prefix of a run id is accepted.`,
		Args: cobra.NoArgs,
		RunE: runHistoryList,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: .crew/config.yaml)")
	cmd.PersistentFlags().String("db", "", "Path to the history database (overrides config)")
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 = all)")

	cmd.AddCommand(newHistoryShowCommand())
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the outcomes of one run",
		Long: `Show the summary of a recorded run followed by its matches, skipped links
and failures. Pass --all to include directories and files without a match.`,
		Args: cobra.ExactArgs(1),
		RunE: runHistoryShow,
	}
	cmd.Flags().Bool("all", false, "Include expanded directories and files without a match")
	return cmd
}

// openHistory opens the history database, or returns nil when none exists yet.
func openHistory(cmd *cobra.Command) (*history.Store, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		dbPath = cfg.History.DBPath
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, nil
	}

	store, err := history.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	output := cmd.OutOrStdout()
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	if store == nil {
		fmt.Fprintln(output, "No runs recorded yet")
		return nil
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(output, "No runs recorded yet")
		return nil
	}

	printRunTable(output, runs)
	return nil
}

func printRunTable(w io.Writer, runs []models.RunSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "RUN\tSTARTED\tROOT\tTERM\tMATCHES\tFILES\tERRORS\tDURATION\tSTATUS\n")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%q\t%d\t%d\t%d\t%s\t%s\n",
			shortID(r.RunID),
			formatTimestamp(r.StartedAt),
			r.Root,
			r.Term,
			r.Matches,
			r.Searched(),
			r.Errors+r.Unsupported,
			formatDuration(r.Duration()),
			runStatus(r),
		)
	}
	tw.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	output := cmd.OutOrStdout()
	all, _ := cmd.Flags().GetBool("all")

	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("get run %s: %w", args[0], history.ErrRunNotFound)
	}
	defer store.Close()

	run, err := store.GetRun(context.Background(), args[0])
	if err != nil {
		return err
	}

	printRun(output, run, all)
	return nil
}

// printRun formats one recorded run with its outcomes in production order.
func printRun(w io.Writer, run *history.Run, all bool) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	s := run.Summary
	cyan.Fprintf(w, "\n=== Run %s ===\n\n", s.RunID)
	fmt.Fprintf(w, "  Root:     %s\n", s.Root)
	fmt.Fprintf(w, "  Term:     %q\n", s.Term)
	fmt.Fprintf(w, "  Workers:  %d\n", s.Workers)
	fmt.Fprintf(w, "  Started:  %s ", formatTimestamp(s.StartedAt))
	gray.Fprintf(w, "(%s ago)\n", formatDuration(time.Since(s.StartedAt)))
	fmt.Fprintf(w, "  Duration: %s\n", formatDuration(s.Duration()))
	fmt.Fprintf(w, "  Status:   %s\n", runStatus(s))
	fmt.Fprintf(w, "  Files:    %d searched, %d matched\n", s.Searched(), s.Matches)
	fmt.Fprintf(w, "  Other:    %d directories, %d links skipped, %d unsupported, %d errors\n\n",
		s.Directories, s.Skipped, s.Unsupported, s.Errors)

	for _, e := range run.Entries {
		switch e.Kind {
		case models.KindMatch:
			green.Fprintf(w, "  MATCH        ")
			fmt.Fprintf(w, "%s:%d: %s\n", e.Path, e.Line, e.Text)
		case models.KindSkipped:
			yellow.Fprintf(w, "  SKIPPED      ")
			fmt.Fprintf(w, "%s\n", e.Path)
		case models.KindUnsupported:
			red.Fprintf(w, "  UNSUPPORTED  ")
			fmt.Fprintf(w, "%s (%s)\n", e.Path, e.FileType)
		case models.KindError:
			red.Fprintf(w, "  ERROR        ")
			fmt.Fprintf(w, "%s\n", e.Error)
		case models.KindExpanded:
			if all {
				gray.Fprintf(w, "  EXPANDED     ")
				fmt.Fprintf(w, "%s (%d entries)\n", e.Path, e.Children)
			}
		case models.KindNoMatch:
			if all {
				gray.Fprintf(w, "  NO_MATCH     ")
				fmt.Fprintf(w, "%s\n", e.Path)
			}
		}
	}
	fmt.Fprintln(w)
}

func runStatus(s models.RunSummary) string {
	switch {
	case s.Aborted:
		return "aborted"
	case s.Errors+s.Unsupported > 0:
		return "partial"
	default:
		return "complete"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatTimestamp formats a timestamp for display
func formatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

// formatDuration formats a duration for human-readable display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	days := int(d.Hours() / 24)
	return fmt.Sprintf("%dd", days)
}

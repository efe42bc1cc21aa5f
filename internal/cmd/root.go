package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for crew
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crew",
		Short: "Concurrent content search over a directory tree",
		Long: `Crew searches every regular file under a directory for a literal term
using a fixed pool of workers that share one work queue.

Directories are expanded into new work items, symbolic links are never
followed, and each file reports at most its first matching line.
Runs are recorded in a local history database and can be written out
as Markdown, HTML or JSON reports.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewSearchCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}

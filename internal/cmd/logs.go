package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/cibox/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the debug log",
	Long: `View and filter the cibox debug log, including rotated backups.

Examples:
  # Show the last 50 entries
  cibox logs

  # Show everything logged for one pipeline
  cibox logs --pipeline provision -n 0

  # Show warnings and errors from the last hour
  cibox logs --level warn --since 1h

  # Entries from a single invocation, as JSON
  cibox logs --run 0b6c... --json`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsDir       string
	logsTail      int
	logsLevel     string
	logsSince     string
	logsGrep      string
	logsContainer string
	logsPipeline  string
	logsRun       string
	logsJSON      bool
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsDir, "dir", "", "Log directory (default: logging.dir)")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show entries since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Only show entries whose message contains this text")
	logsCmd.Flags().StringVar(&logsContainer, "container", "", "Filter by container name")
	logsCmd.Flags().StringVar(&logsPipeline, "pipeline", "", "Filter by pipeline")
	logsCmd.Flags().StringVar(&logsRun, "run", "", "Filter by run id")
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "Print entries as a JSON array")
}

func runLogs(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	dir := logsDir
	if dir == "" {
		dir = viper.GetString("logging.dir")
	}
	if dir == "" {
		fmt.Fprintln(out, "logging.dir is not set; cibox logs to stderr and keeps no log file.")
		return nil
	}

	filter := logging.Filter{
		Container: logsContainer,
		Pipeline:  logsPipeline,
		RunID:     logsRun,
		Contains:  logsGrep,
	}
	if logsLevel != "" {
		filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		duration, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		filter.Since = time.Now().Add(-duration)
	}

	entries, err := logging.ReadEntries(dir)
	if err != nil {
		return err
	}
	entries = logging.FilterEntries(entries, filter)

	// Apply tail limit
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}

	if logsJSON {
		return logging.WriteJSON(out, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
		return nil
	}
	return logging.WriteText(out, entries)
}

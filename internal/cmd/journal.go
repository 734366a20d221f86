package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/gridpilot/internal/journal"
	"github.com/harrison/gridpilot/internal/models"
)

// NewJournalCommand creates the 'gridpilot journal' command group
func NewJournalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect and manage the replay journal",
		Long: `The replay journal remembers where targets were found on pages seen
before, so later runs can act without a visual search. These commands read
and maintain the journal database.`,
	}
	cmd.PersistentFlags().String("db-path", "", "Path to the journal database (default from config)")

	cmd.AddCommand(newJournalShowCommand())
	cmd.AddCommand(newJournalExportCommand())
	cmd.AddCommand(newJournalImportCommand())
	cmd.AddCommand(newJournalCompactCommand())
	cmd.AddCommand(newJournalClearCommand())
	return cmd
}

// openJournalStore opens the database named by --db-path or the config.
// With mustExist a missing database is reported as nil, nil.
func openJournalStore(cmd *cobra.Command, mustExist bool) (*journal.Store, error) {
	dbPath, _ := cmd.Flags().GetString("db-path")
	if dbPath == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		dbPath = cfg.Journal.DBPath
	}
	if dbPath == "" {
		return nil, fmt.Errorf("no journal database configured")
	}
	if mustExist {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			fmt.Fprintf(cmd.OutOrStdout(), "No journal database found at: %s\n", dbPath)
			return nil, nil
		}
	}
	store, err := journal.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open journal store: %w", err)
	}
	return store, nil
}

func newJournalShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show journal statistics and the current replayable entries",
		Args:  cobra.NoArgs,
		RunE:  runJournalShow,
	}
	cmd.Flags().Bool("all", false, "Show the full log, including superseded and failed entries")
	cmd.Flags().String("target", "", "Only show entries whose target contains this text")
	cmd.Flags().Int("limit", 0, "Show at most this many entries (0 = all)")
	return cmd
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	store, err := openJournalStore(cmd, true)
	if err != nil || store == nil {
		return err
	}
	defer store.Close()

	ctx := commandContext(cmd)
	output := cmd.OutOrStdout()

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	cyan.Fprintf(output, "Journal: %s\n", store.Path())
	fmt.Fprintf(output, "  Log entries:   %d\n", stats.LogEntries)
	fmt.Fprintf(output, "  Signatures:    %d\n", stats.Signatures)
	fmt.Fprintf(output, "  Replayable:    %d\n", stats.Successful)
	fmt.Fprintf(output, "  Runs:          %d\n", stats.Runs)
	if !stats.LastWrite.IsZero() {
		fmt.Fprintf(output, "  Last write:    %s\n", stats.LastWrite.Local().Format(time.DateTime))
	}

	all, _ := cmd.Flags().GetBool("all")
	var entries []models.JournalEntry
	if all {
		entries, err = store.LoadLog(ctx)
	} else {
		entries, err = store.LoadCurrent(ctx)
	}
	if err != nil {
		return err
	}

	if filter, _ := cmd.Flags().GetString("target"); filter != "" {
		needle := strings.ToLower(filter)
		kept := entries[:0]
		for _, e := range entries {
			if strings.Contains(strings.ToLower(e.Target), needle) {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if !all {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].RecordedAt.After(entries[j].RecordedAt)
		})
	}
	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	if len(entries) == 0 {
		fmt.Fprintf(output, "\nNo entries.\n")
		return nil
	}

	fmt.Fprintln(output)
	for _, e := range entries {
		mark := green.Sprint("✓")
		if !e.Success {
			mark = red.Sprint("✗")
		}
		fmt.Fprintf(output, "%s %-8s %-40q at %s\n", mark, e.Kind, e.Target, e.Point)
		gray.Fprintf(output, "    %s  page %s  run %s  %s\n",
			shortID(e.Signature), shortID(e.PageFingerprint), shortID(e.RunID), e.RecordedAt.Local().Format(time.DateTime))
	}
	return nil
}

func shortID(s string) string {
	if s == "" {
		return "-"
	}
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

func newJournalExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.jsonl>",
		Short: "Export the journal log as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJournalStore(cmd, true)
			if err != nil || store == nil {
				return err
			}
			defer store.Close()

			ctx := commandContext(cmd)
			j := journal.New()
			if _, err := store.Load(ctx, j); err != nil {
				return err
			}
			n, err := journal.ExportJSONL(ctx, args[0], j)
			if err != nil {
				return fmt.Errorf("export journal: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d %s to %s\n", n, plural(n, "entry", "entries"), args[0])
			return nil
		},
	}
}

func newJournalImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Append an exported journal log to the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			entries, err := journal.ReadJSONL(ctx, args[0])
			if err != nil {
				return fmt.Errorf("import journal: %w", err)
			}

			store, err := openJournalStore(cmd, false)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Append(ctx, entries); err != nil {
				return fmt.Errorf("import journal: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d %s into %s\n", len(entries), plural(len(entries), "entry", "entries"), store.Path())
			return nil
		},
	}
}

func newJournalCompactCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Drop superseded and failed entries from the log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJournalStore(cmd, true)
			if err != nil || store == nil {
				return err
			}
			defer store.Close()

			n, err := store.Compact(commandContext(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s.\n", n, plural(int(n), "entry", "entries"))
			return nil
		},
	}
}

func newJournalClearCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every journal entry",
		Long: `Delete every journal entry. The next run resolves all targets visually.

Examples:
  # Clear the journal (requires confirmation)
  gridpilot journal clear

  # Clear without prompting
  gridpilot journal clear --yes`,
		Args: cobra.NoArgs,
		RunE: runJournalClear,
	}
	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func runJournalClear(cmd *cobra.Command, args []string) error {
	output := cmd.OutOrStdout()

	store, err := openJournalStore(cmd, true)
	if err != nil || store == nil {
		return err
	}
	defer store.Close()

	ctx := commandContext(cmd)
	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		fmt.Fprintf(output, "WARNING: This will delete all %d journal %s from %s.\n",
			stats.LogEntries, plural(stats.LogEntries, "entry", "entries"), store.Path())
		if !confirmAction(cmd.InOrStdin(), output) {
			fmt.Fprintf(output, "Operation cancelled.\n")
			return nil
		}
	}

	if err := store.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintf(output, "Deleted %d %s.\n", stats.LogEntries, plural(stats.LogEntries, "entry", "entries"))
	return nil
}

// confirmAction prompts the user for confirmation
func confirmAction(input io.Reader, output io.Writer) bool {
	scanner := bufio.NewScanner(input)
	fmt.Fprintf(output, "Continue? [y/N]: ")
	if !scanner.Scan() {
		return false
	}
	response := strings.TrimSpace(strings.ToLower(scanner.Text()))
	return response == "y" || response == "yes"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

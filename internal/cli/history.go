package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/guiyumin/biliget/internal/core/downloader"
	"github.com/guiyumin/biliget/internal/core/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show downloaded parts",
}

var historyListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List recent downloads",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := history.OpenDefault()
		if err != nil {
			return err
		}
		defer db.Close()

		records, total, err := db.List(historyLimit, 0)
		if err != nil {
			return err
		}
		printHistory(cmd.OutOrStdout(), records, total)
		return nil
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show download totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := history.OpenDefault()
		if err != nil {
			return err
		}
		defer db.Close()

		s, err := db.Stats()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Completed: %d\n", s.Completed)
		fmt.Fprintf(w, "Failed:    %d\n", s.Failed)
		fmt.Fprintf(w, "Size:      %s\n", humanize.Bytes(uint64(s.TotalBytes)))
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one history record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := history.OpenDefault()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Delete(args[0]); err != nil {
			return fmt.Errorf("record %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all history records",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := history.OpenDefault()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.Clear()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d records\n", n)
		return nil
	},
}

func init() {
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of records to show")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

func printHistory(w io.Writer, records []history.Record, total int) {
	if total == 0 {
		fmt.Fprintln(w, "No downloads yet.")
		return
	}

	for _, r := range records {
		when := r.CompletedAt.Format("2006-01-02 15:04")
		if r.Status == history.StatusFailed {
			failColor.Fprintf(w, "%s  ✗ %s P%d %s: %s", when, r.VideoID, r.Page, r.Title, r.Error)
		} else {
			fmt.Fprintf(w, "%s  ✓ %s P%d %s  %s in %s",
				when, r.VideoID, r.Page, r.Title,
				humanize.Bytes(uint64(r.SizeBytes)), downloader.FormatDuration(r.Duration()))
		}
		dimColor.Fprintf(w, "  %s\n", r.ID)
	}
	if total > len(records) {
		dimColor.Fprintf(w, "(%d of %d shown)\n", len(records), total)
	}
}

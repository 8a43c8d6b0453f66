package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"photosync/internal/history"
	"photosync/internal/index"
	"photosync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status [<destination>]",
	Short: "Show the index and the last run",
	Long: `status summarizes the destination library: how many distinct contents
the index holds, how much they weigh, and how the last run went. It
reads the state directory and writes nothing.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runStatus,
}

func init() {
	statusCmd.Flags().String("state-dir", "", "state directory (default: <destination>/.photosync)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, stateDir, err := resolveStateDir(cmd, args)
	if err != nil {
		return err
	}

	indexPath := filepath.Join(stateDir, indexFileName)
	if fi, statErr := os.Stat(indexPath); statErr == nil {
		// Quarantine warnings from a damaged index would be alarming
		// noise in a read-only command; load silently.
		idx := index.LoadOrNew(indexPath, slog.New(slog.NewTextHandler(io.Discard, nil)))

		aliases := 0
		var stored int64
		for _, e := range idx.Entries() {
			aliases += len(e.Aliases)
			stored += e.Size
		}
		fmt.Printf("index:     %s entries, %s aliases, %s stored\n",
			ui.FormatCount(int64(idx.Len())), ui.FormatCount(int64(aliases)), ui.FormatBytes(stored))
		fmt.Printf("           %s (%s, updated %s)\n",
			indexPath, ui.FormatBytes(fi.Size()), fi.ModTime().Format(time.DateTime))
	} else {
		fmt.Printf("index:     none at %s (run a sync first)\n", indexPath)
	}

	journalPath := filepath.Join(stateDir, journalFileName)
	if _, statErr := os.Stat(journalPath); statErr != nil {
		fmt.Println("last run:  none recorded")
		return nil
	}

	j, err := history.Open(journalPath)
	if err != nil {
		return fmt.Errorf("open run journal: %w", err)
	}
	defer j.Close()

	last, ok, err := j.Last()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("last run:  none recorded")
		return nil
	}

	icon := "✓"
	if last.Status != history.StatusSuccess {
		icon = "✗"
	}
	dry := ""
	if last.DryRun {
		dry = "  (dry run)"
	}
	fmt.Printf("last run:  %s %s  %s  %s → %s%s\n",
		icon, last.StartedAt.Format(time.DateTime), last.Mode, last.Src, last.Dst, dry)
	fmt.Printf("           copied %d  duplicates %d  skipped %d  failed %d  %s\n",
		last.FilesCopied, last.Duplicates, last.FilesSkipped, last.FilesFailed,
		ui.FormatDuration(last.Duration))
	if last.ErrMsg != "" {
		fmt.Printf("           error: %s\n", last.ErrMsg)
	}

	totals, err := j.TotalStats()
	if err != nil {
		return err
	}
	fmt.Printf("runs:      %d recorded, %d ok, %d failed\n", totals.Total, totals.Succeeded, totals.Failed)
	return nil
}

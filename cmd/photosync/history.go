package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"photosync/internal/history"
	"photosync/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:           "history [<destination>]",
	Short:         "List recent runs from the run journal",
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runHistory,
}

func init() {
	historyCmd.Flags().String("state-dir", "", "state directory (default: <destination>/.photosync)")
	historyCmd.Flags().IntP("limit", "l", 20, "number of runs to show")
	historyCmd.Flags().Uint("id", 0, "show one run in full, including failed files")
}

func runHistory(cmd *cobra.Command, args []string) error {
	_, stateDir, err := resolveStateDir(cmd, args)
	if err != nil {
		return err
	}

	journalPath := filepath.Join(stateDir, journalFileName)
	if _, statErr := os.Stat(journalPath); statErr != nil {
		fmt.Println("no runs recorded")
		return nil
	}

	j, err := history.Open(journalPath)
	if err != nil {
		return fmt.Errorf("open run journal: %w", err)
	}
	defer j.Close()

	if id, _ := cmd.Flags().GetUint("id"); id != 0 { //nolint:errcheck // flag name is hardcoded
		return printRun(j, id)
	}

	limit, _ := cmd.Flags().GetInt("limit") //nolint:errcheck // flag name is hardcoded
	runs, err := j.Recent(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	fmt.Printf("%-5s %-19s %-8s %-5s %8s %8s %8s %9s  %s\n",
		"ID", "WHEN", "STATUS", "MODE", "COPIED", "DUP", "FAILED", "TIME", "SRC → DST")
	for _, r := range runs {
		dry := ""
		if r.DryRun {
			dry = "  (dry run)"
		}
		fmt.Printf("%-5d %-19s %-8s %-5s %8d %8d %8d %9s  %s → %s%s\n",
			r.ID, r.StartedAt.Format(time.DateTime), r.Status, r.Mode,
			r.FilesCopied, r.Duplicates, r.FilesFailed,
			ui.FormatDuration(r.Duration), r.Src, r.Dst, dry)
	}
	return nil
}

func printRun(j *history.Journal, id uint) error {
	r, err := j.ByID(id)
	if err != nil {
		return err
	}

	dry := ""
	if r.DryRun {
		dry = "  (dry run)"
	}
	fmt.Printf("run %d: %s\n", r.ID, r.Status)
	fmt.Printf("  started:    %s  (%s)\n", r.StartedAt.Format(time.DateTime), ui.FormatDuration(r.Duration))
	fmt.Printf("  transfer:   %s  %s → %s%s\n", r.Mode, r.Src, r.Dst, dry)
	fmt.Printf("  copied:     %d files, %s\n", r.FilesCopied, ui.FormatBytes(r.BytesCopied))
	fmt.Printf("  duplicates: %d   skipped: %d   moved: %d   adopted: %d   healed: %d\n",
		r.Duplicates, r.FilesSkipped, r.FilesMoved, r.Adopted, r.Healed)
	if r.ErrMsg != "" {
		fmt.Printf("  error:      %s\n", r.ErrMsg)
	}
	if len(r.FileErrors) > 0 {
		fmt.Printf("  failed files (%d):\n", len(r.FileErrors))
		for _, fe := range r.FileErrors {
			fmt.Printf("    %s: %s\n", fe.Path, fe.Err)
		}
	}
	return nil
}

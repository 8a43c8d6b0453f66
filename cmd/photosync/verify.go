package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"photosync/internal/engine"
	"photosync/internal/event"
	"photosync/internal/index"
	"photosync/internal/stats"
	"photosync/internal/ui"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [<destination>]",
	Short: "Re-hash every stored file and compare against the index",
	Long: `verify reads back every destination file the index knows about, hashes
it, and reports entries whose bytes no longer match. It bypasses the
stat cache and modifies nothing. A non-zero exit means the library has
missing or corrupted files.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runVerify,
}

func init() {
	verifyCmd.Flags().String("state-dir", "", "state directory (default: <destination>/.photosync)")
	verifyCmd.Flags().IntP("workers", "n", engine.DefaultWorkers, "hash workers")
	verifyCmd.Flags().BoolP("quiet", "q", false, "print only the final summary")
}

func runVerify(cmd *cobra.Command, args []string) error {
	dst, stateDir, err := resolveStateDir(cmd, args)
	if err != nil {
		return err
	}
	if dst == "" {
		return errors.New("verify needs the destination root, not just --state-dir")
	}

	indexPath := filepath.Join(stateDir, indexFileName)
	if _, statErr := os.Stat(indexPath); statErr != nil {
		return fmt.Errorf("no index at %s (run a sync first)", indexPath)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	idx := index.LoadOrNew(indexPath, logger)
	if idx.Len() == 0 {
		fmt.Println("index is empty, nothing to verify")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workers, _ := cmd.Flags().GetInt("workers") //nolint:errcheck // flag name is hardcoded
	quiet, _ := cmd.Flags().GetBool("quiet")    //nolint:errcheck // flag name is hardcoded

	events := make(chan event.Event, 256)
	presenter := ui.NewPresenter(ui.Config{
		Writer:     os.Stdout,
		ErrWriter:  os.Stderr,
		Quiet:      quiet,
		NoProgress: true,
		Stats:      stats.NewCollector(),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = presenter.Run(events) //nolint:errcheck // presenter error is non-fatal
	}()

	res := engine.Verify(ctx, engine.VerifyConfig{
		Index:   idx,
		DstRoot: dst,
		Workers: workers,
		Events:  events,
	})
	close(events)
	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	ok := int64(idx.Len()) - res.Failed
	fmt.Printf("verified %s entries: %s ok, %d failed (%d missing)\n",
		ui.FormatCount(int64(idx.Len())), ui.FormatCount(ok), res.Failed, res.Missing)
	for _, ve := range res.Errors {
		fmt.Printf("  %s: want %s, got %s\n", ve.DstPath, ve.Want, ve.Got)
	}
	if res.Failed > 0 {
		return &exitError{code: 1}
	}
	return nil
}

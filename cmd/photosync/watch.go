package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"photosync/internal/config"
	"photosync/internal/filter"
	"photosync/internal/logging"
	"photosync/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [flags] [<source> <destination>]",
	Short: "Sync continuously, re-running on every change burst",
	Long: `watch runs one sync pass, then keeps watching the source tree and runs
another pass each time a burst of filesystem changes settles. Bursts
are coalesced: an import of a thousand photos triggers one pass, not a
thousand.`,
	Args:          cobra.MaximumNArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runWatch,
}

var watchRules = filter.Default()

func init() {
	addSyncFlags(watchCmd.Flags(), watchRules)
	watchCmd.Flags().Duration("debounce", config.Default.Debounce,
		"settle window before a change burst triggers a pass")
}

func runWatch(cmd *cobra.Command, args []string) error {
	o, err := resolveSyncOptions(cmd, args, watchRules)
	if err != nil {
		return err
	}

	logger, logClose, err := logging.Setup(logging.Options{Level: logLevel(o), File: o.LogFile})
	if err != nil {
		return err
	}
	defer logClose.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The engine's own writes must not feed back into the watcher.
	var ignore []string
	if within(o.Src, o.Dst) {
		ignore = append(ignore, o.Dst)
	}
	if within(o.Src, o.StateDir) {
		ignore = append(ignore, o.StateDir)
	}

	w, err := watch.New(watch.Config{Root: o.Src, Debounce: o.Debounce, Ignore: ignore, Log: logger})
	if err != nil {
		return err
	}

	watchErr := make(chan error, 1)
	go func() { watchErr <- w.Run(ctx) }()

	logger.Info("watching", "src", o.Src, "dst", o.Dst, "debounce", o.Debounce)

	// First pass picks up whatever changed while we were not running.
	if rep := runSyncPass(ctx, o, logger); rep.Err != nil {
		if errors.Is(rep.Err, context.Canceled) {
			return nil
		}
		return rep.Err
	}

	for {
		select {
		case <-ctx.Done():
			<-watchErr
			return nil
		case err := <-watchErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case <-w.Triggers():
			logger.Debug("change burst settled, syncing")
			if rep := runSyncPass(ctx, o, logger); rep.Err != nil {
				if errors.Is(rep.Err, context.Canceled) {
					continue
				}
				logger.Error("sync failed", "error", rep.Err)
				return rep.Err
			}
		}
	}
}

// within reports whether p lies under root (or is root itself).
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

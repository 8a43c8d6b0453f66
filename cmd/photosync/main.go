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
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"photosync/internal/config"
	"photosync/internal/engine"
	"photosync/internal/event"
	"photosync/internal/filter"
	"photosync/internal/hasher"
	"photosync/internal/history"
	"photosync/internal/logging"
	"photosync/internal/reconcile"
	"photosync/internal/stats"
	"photosync/internal/ui"
)

var version = "dev"

// State directory layout. The directory itself defaults to
// <destination>/.photosync and is shared by every subcommand.
const (
	indexFileName   = "index.json"
	journalFileName = "history.db"
)

func main() {
	os.Exit(run())
}

// filterFlag is a custom pflag.Value that preserves CLI ordering of
// --exclude and --include rules by appending to a shared filter.Chain.
type filterFlag struct {
	rules   *filter.Chain
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "string" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.rules.AddInclude(val)
	}
	return f.rules.AddExclude(val)
}

// ruleFileFlag loads a rule file into the chain at the position the
// flag appears, so file rules interleave with --exclude and --include
// the way they were given.
type ruleFileFlag struct {
	rules *filter.Chain
}

func (*ruleFileFlag) String() string { return "" }
func (*ruleFileFlag) Type() string   { return "file" }

func (f *ruleFileFlag) Set(path string) error {
	return f.rules.LoadFile(path)
}

func run() int {
	rules := filter.Default()

	rootCmd := &cobra.Command{
		Use:   "photosync [flags] [<source> <destination>]",
		Short: "Mirror photos into a deduplicated library",
		Long: `photosync walks a source tree, skips everything that is not a photo or
video, and copies each file whose content the destination library has
never seen. Content is identified by hash, so renames, re-uploads and
same-bytes-different-name duplicates are stored exactly once.

Source and destination come from the arguments, from photosync.yaml, or
from PHOTOSYNC_SRC / PHOTOSYNC_DST.`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if show, _ := cmd.Flags().GetBool("version"); show { //nolint:errcheck // flag name is hardcoded
				fmt.Fprintf(os.Stdout, "photosync %s\n", version)
				return nil
			}

			o, err := resolveSyncOptions(cmd, args, rules)
			if err != nil {
				return err
			}

			logger, logClose, err := logging.Setup(logging.Options{Level: logLevel(o), File: o.LogFile})
			if err != nil {
				return err
			}
			defer logClose.Close()
			slog.SetDefault(logger)

			if o.DryRun {
				logger.Info("dry run mode")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rep := runSyncPass(ctx, o, logger)
			if rep.Err != nil {
				logger.Error("sync failed", "error", rep.Err)
				if rep.Stats.FilesCopied > 0 {
					return &exitError{code: 1} // partial failure
				}
				return &exitError{code: 2} // total failure
			}
			return nil
		},
	}

	rootCmd.Flags().Bool("version", false, "print version and exit")
	addSyncFlags(rootCmd.Flags(), rules)

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(docsCmd)

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

// syncOptions is the fully resolved input for one sync pass, after
// merging the config file, PHOTOSYNC_* environment and CLI flags.
type syncOptions struct {
	Src         string
	Dst         string
	Mode        engine.Mode
	Layout      engine.Layout
	Policy      reconcile.DupPolicy
	Algo        hasher.Algorithm
	Workers     int
	HashWorkers int
	BWLimit     int64
	DryRun      bool
	NoCache     bool
	Quiet       bool
	Verbose     bool
	NoProgress  bool
	Rules       *filter.Chain
	StateDir    string
	LogFile     string
	Debounce    time.Duration
}

// addSyncFlags registers the flag surface shared by the root command
// and watch. Flag defaults mirror config.Default so that help text
// stays honest; the actual merge happens in resolveSyncOptions.
func addSyncFlags(fs *pflag.FlagSet, rules *filter.Chain) {
	fs.String("mode", config.Default.Mode, "transfer mode: copy or move")
	fs.String("layout", config.Default.Layout, "destination layout: date (YYYY/MM) or mirror")
	fs.String("policy", config.Default.Policy, "duplicate policy: alias or copy")
	fs.String("algo", config.Default.Algo, "content hash algorithm: xxh64 or blake3")
	fs.IntP("workers", "n", config.Default.Workers, "copy workers")
	fs.Int("hash-workers", 0, "hash workers (default: same as --workers)")
	fs.String("bwlimit", "", "bandwidth limit (e.g. 100M, 1G)")
	fs.String("min-size", "", "skip files smaller than SIZE (e.g. 100K; default 30K)")
	fs.Var(&filterFlag{rules: rules, include: false}, "exclude", "exclude files matching PATTERN (repeatable)")
	fs.Var(&filterFlag{rules: rules, include: true}, "include", "include files matching PATTERN (repeatable)")
	fs.Var(&ruleFileFlag{rules: rules}, "filter-file", "read include/exclude rules from FILE")
	fs.Bool("dry-run", false, "decide everything, write nothing")
	fs.Bool("no-cache", false, "re-hash every file, ignoring the stat cache")
	fs.String("state-dir", "", "state directory (default: <destination>/.photosync)")
	fs.String("log", "", "write a rotating JSON log to FILE")
	fs.BoolP("quiet", "q", false, "suppress all output except errors")
	fs.BoolP("verbose", "v", false, "verbose output")
	fs.Bool("no-progress", false, "disable periodic progress lines")
}

//nolint:gocyclo // flag-by-flag merge is long but flat
func resolveSyncOptions(cmd *cobra.Command, args []string, rules *filter.Chain) (syncOptions, error) {
	var o syncOptions

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("config unusable, using defaults", "error", err)
		cfg = config.Default
	}

	flags := cmd.Flags()
	strOpt := func(name, cfgVal string) string {
		if flags.Changed(name) {
			v, _ := flags.GetString(name) //nolint:errcheck // flag name is hardcoded
			return v
		}
		return cfgVal
	}
	intOpt := func(name string, cfgVal int) int {
		if flags.Changed(name) {
			v, _ := flags.GetInt(name) //nolint:errcheck // flag name is hardcoded
			return v
		}
		return cfgVal
	}
	boolOpt := func(name string, cfgVal bool) bool {
		if flags.Changed(name) {
			v, _ := flags.GetBool(name) //nolint:errcheck // flag name is hardcoded
			return v
		}
		return cfgVal
	}

	src, dst := cfg.Src, cfg.Dst
	switch len(args) {
	case 2:
		src, dst = args[0], args[1]
	case 1:
		return o, errors.New("need both <source> and <destination>, or neither with src/dst configured")
	}
	if src == "" || dst == "" {
		return o, errors.New("source and destination required (arguments, photosync.yaml, or PHOTOSYNC_SRC/PHOTOSYNC_DST)")
	}
	if o.Src, err = filepath.Abs(src); err != nil {
		return o, fmt.Errorf("resolve source: %w", err)
	}
	if o.Dst, err = filepath.Abs(dst); err != nil {
		return o, fmt.Errorf("resolve destination: %w", err)
	}

	if o.Mode, err = engine.ParseMode(strOpt("mode", cfg.Mode)); err != nil {
		return o, err
	}
	if o.Layout, err = engine.ParseLayout(strOpt("layout", cfg.Layout)); err != nil {
		return o, err
	}
	if o.Policy, err = reconcile.ParsePolicy(strOpt("policy", cfg.Policy)); err != nil {
		return o, err
	}
	if o.Algo, err = hasher.Parse(strOpt("algo", cfg.Algo)); err != nil {
		return o, err
	}

	o.Workers = intOpt("workers", cfg.Workers)
	o.HashWorkers = intOpt("hash-workers", cfg.HashWorkers)
	o.DryRun = boolOpt("dry-run", cfg.DryRun)
	o.NoCache = boolOpt("no-cache", cfg.NoCache)
	o.Quiet = boolOpt("quiet", false)
	o.Verbose = boolOpt("verbose", false)
	o.NoProgress = boolOpt("no-progress", false)

	if bw := strOpt("bwlimit", cfg.BWLimit); bw != "" {
		if o.BWLimit, err = filter.ParseSize(bw); err != nil {
			return o, fmt.Errorf("invalid bwlimit: %w", err)
		}
	}
	if ms := strOpt("min-size", cfg.MinSize); ms != "" {
		n, sizeErr := filter.ParseSize(ms)
		if sizeErr != nil {
			return o, fmt.Errorf("invalid min-size: %w", sizeErr)
		}
		rules.SetMinSize(n)
	}

	// Config-file rules rank below CLI rules: the CLI ones were already
	// appended during flag parsing, and the first match wins.
	for _, p := range cfg.Exclude {
		if err := rules.AddExclude(p); err != nil {
			return o, fmt.Errorf("config exclude %q: %w", p, err)
		}
	}
	for _, p := range cfg.Include {
		if err := rules.AddInclude(p); err != nil {
			return o, fmt.Errorf("config include %q: %w", p, err)
		}
	}
	if len(cfg.IgnoreDirs) > 0 {
		rules.SkipDirs(cfg.IgnoreDirs...)
	}
	o.Rules = rules

	o.StateDir = strOpt("state-dir", cfg.StateDir)
	if o.StateDir == "" {
		o.StateDir = filepath.Join(o.Dst, engine.StateDirName)
	} else if o.StateDir, err = filepath.Abs(o.StateDir); err != nil {
		return o, fmt.Errorf("resolve state dir: %w", err)
	}

	o.LogFile = strOpt("log", cfg.LogFile)

	o.Debounce = cfg.Debounce
	if flags.Changed("debounce") {
		o.Debounce, _ = flags.GetDuration("debounce") //nolint:errcheck // flag name is hardcoded
	}

	return o, nil
}

func logLevel(o syncOptions) slog.Level {
	switch {
	case o.Verbose:
		return slog.LevelDebug
	case o.Quiet:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// runSyncPass runs one engine pass with a presenter attached and
// records the outcome in the run journal. Used by the root command
// (once) and by watch (per trigger).
func runSyncPass(ctx context.Context, o syncOptions, log *slog.Logger) engine.Report {
	collector := stats.NewCollector()
	events := make(chan event.Event, 256)

	// When a log file is configured, tee events through a goroutine
	// that writes one structured record per event before forwarding.
	// Debug level keeps them out of the console and in the file sink.
	presenterEvents := (<-chan event.Event)(events)
	if o.LogFile != "" {
		teed := make(chan event.Event, 256)
		go func() {
			for ev := range events {
				attrs := []slog.Attr{
					slog.String("type", ev.Type.String()),
					slog.String("path", ev.Path),
					slog.Int64("size", ev.Size),
				}
				if ev.Error != nil {
					attrs = append(attrs, slog.String("error", ev.Error.Error()))
				}
				log.LogAttrs(context.Background(), slog.LevelDebug, "photosync.event", attrs...)
				teed <- ev
			}
			close(teed)
		}()
		presenterEvents = teed
	}

	presenter := ui.NewPresenter(ui.Config{
		Writer:     os.Stdout,
		ErrWriter:  os.Stderr,
		IsTTY:      ui.IsTTY(os.Stderr.Fd()),
		Quiet:      o.Quiet,
		Verbose:    o.Verbose,
		NoProgress: o.NoProgress,
		Stats:      collector,
	})

	var presenterErr error
	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		presenterErr = presenter.Run(presenterEvents)
	}()

	started := time.Now()
	rep := engine.Run(ctx, engine.Config{
		Src:         o.Src,
		Dst:         o.Dst,
		Mode:        o.Mode,
		Layout:      o.Layout,
		Policy:      o.Policy,
		Algo:        o.Algo,
		Workers:     o.Workers,
		HashWorkers: o.HashWorkers,
		Rules:       o.Rules,
		BWLimit:     o.BWLimit,
		DryRun:      o.DryRun,
		NoCache:     o.NoCache,
		StatePath:   filepath.Join(o.StateDir, indexFileName),
		Events:      events,
		Stats:       collector,
		Log:         log,
	})
	close(events)
	presenterWg.Wait()
	if presenterErr != nil {
		fmt.Fprintf(os.Stderr, "presenter: %v\n", presenterErr)
	}

	if !o.Quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(os.Stderr, summary)
		}
	}

	appendHistory(o, rep, started, log)
	return rep
}

// appendHistory records the pass in the run journal. The journal lives
// in the state directory; a pass that never created one has nowhere to
// record itself, and dry runs must not create it.
func appendHistory(o syncOptions, rep engine.Report, started time.Time, log *slog.Logger) {
	if _, err := os.Stat(o.StateDir); err != nil {
		return
	}
	path := filepath.Join(o.StateDir, journalFileName)
	j, err := history.Open(path)
	if err != nil {
		log.Warn("run journal unavailable", "path", path, "error", err)
		return
	}
	defer j.Close()

	row := &history.Run{
		Src:          o.Src,
		Dst:          o.Dst,
		Mode:         o.Mode.String(),
		DryRun:       o.DryRun,
		Status:       history.StatusSuccess,
		FilesCopied:  rep.Stats.FilesCopied,
		BytesCopied:  rep.Stats.BytesCopied,
		FilesSkipped: rep.Stats.FilesSkipped,
		Duplicates:   rep.Stats.Duplicates,
		FilesMoved:   rep.Stats.FilesMoved,
		FilesFailed:  rep.Stats.FilesFailed,
		Adopted:      rep.Adopted,
		Healed:       rep.Healed,
		Duration:     rep.Duration,
		StartedAt:    started,
	}
	if rep.Err != nil {
		row.Status = history.StatusFailed
		row.ErrMsg = rep.Err.Error()
	}
	for _, fe := range rep.Errors {
		row.FileErrors = append(row.FileErrors, history.FileError{Path: fe.Path, Err: fe.Err})
	}
	if err := j.Append(row); err != nil {
		log.Warn("append run journal", "error", err)
	}
}

// resolveStateDir locates the state directory for the read-only
// subcommands. The destination root is returned too when one is known;
// it may be empty when only --state-dir was given.
func resolveStateDir(cmd *cobra.Command, args []string) (dst, stateDir string, err error) {
	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		cfg = config.Default
	}

	dst = cfg.Dst
	if len(args) == 1 {
		dst = args[0]
	}
	if dst != "" {
		if dst, err = filepath.Abs(dst); err != nil {
			return "", "", fmt.Errorf("resolve destination: %w", err)
		}
	}

	stateDir, _ = cmd.Flags().GetString("state-dir") //nolint:errcheck // flag name is hardcoded
	if stateDir == "" {
		stateDir = cfg.StateDir
	}
	switch {
	case stateDir != "":
		if stateDir, err = filepath.Abs(stateDir); err != nil {
			return "", "", fmt.Errorf("resolve state dir: %w", err)
		}
	case dst != "":
		stateDir = filepath.Join(dst, engine.StateDirName)
	default:
		return "", "", errors.New("destination required (argument, photosync.yaml, or --state-dir)")
	}
	return dst, stateDir, nil
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

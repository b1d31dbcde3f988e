package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/kb"
	"github.com/roach88/deduce/internal/loader"
	"github.com/roach88/deduce/internal/stream"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	ProgramOptions

	Facts    []string      // fact files streamed into the engine
	Window   time.Duration // overrides stream.window
	Interval time.Duration // overrides stream.interval
	Once     bool          // load the fact files, run one round and exit
}

// WatchUpdate is printed each time a query's answers change.
type WatchUpdate struct {
	Round int64  `json:"round"`
	Error string `json:"error,omitempty"`
	Answer
}

func (u WatchUpdate) String() string {
	if u.Error != "" {
		return fmt.Sprintf("[round %d] %s\n  error: %s", u.Round, u.Query, u.Error)
	}
	return fmt.Sprintf("[round %d] %s", u.Round, u.Answer.String())
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <program> --facts <file>...",
		Short: "Stream fact files into a program and print changing answers",
		Long: `Evaluate a program continuously while fact files change.

Every --facts file is loaded at start and again each time it is written.
Its facts enter the stream with an expiry of now + window; re-writing the
file refreshes them, facts dropped from it expire. The program's own facts
never expire. Each query's answers are printed whenever they change.

Examples:
  deduce watch rules.yaml --facts readings.yaml
  deduce watch rules.cue --facts a.json --facts b.json --window 30s
  deduce watch rules.yaml --facts readings.yaml --once --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to YAML configuration file")
	cmd.Flags().StringArrayVarP(&opts.Queries, "query", "q", nil, "query as a YAML literal list (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Facts, "facts", "f", nil, "fact file to watch (repeatable)")
	cmd.Flags().DurationVar(&opts.Window, "window", 0, "how long streamed facts live (0 keeps the configured window)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "evaluation interval (0 keeps the configured interval)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "load the fact files, evaluate once and exit")
	_ = cmd.MarkFlagRequired("facts")

	return cmd
}

func runWatch(ctx context.Context, opts *WatchOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	prog, cfg, err := opts.load(path)
	if err != nil {
		return formatter.Fail("failed to load program", err)
	}
	if opts.Window > 0 {
		cfg.Stream.Window = opts.Window
	}
	if opts.Interval > 0 {
		cfg.Stream.Interval = opts.Interval
	}
	queries, err := opts.queries(prog)
	if err != nil {
		return formatter.Fail("failed to parse query", err)
	}
	if len(queries) == 0 {
		return formatter.Fail("nothing to watch", NewExitError(ExitCommandError, "program has no queries and no --query was given"))
	}

	base, err := kb.New(prog, cfg, kb.WithLogger(slog.Default()))
	if err != nil {
		return formatter.Fail("invalid program", err)
	}
	engine := stream.New(base, stream.WithLogger(slog.Default()))

	for _, q := range queries {
		engine.Subscribe(q, func(u stream.Update) {
			if err := formatter.Success(newWatchUpdate(q, u)); err != nil {
				slog.Error("failed to write update", "error", err)
			}
		})
	}

	for _, f := range opts.Facts {
		if err := enqueueFile(engine, f); err != nil {
			return formatter.Fail("failed to load facts", err)
		}
	}

	if opts.Once {
		if err := engine.Step(ctx); err != nil {
			return formatter.Fail("evaluation failed", err)
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := newFactWatcher(opts.Facts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to watch fact files", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})
	g.Go(func() error {
		return watcher.Run(gctx, func(file string) {
			if err := enqueueFile(engine, file); err != nil {
				// Keep the facts of the last good load until they expire.
				slog.Error("reload failed", "file", file, "error", err)
			}
		})
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "watch stopped", err)
	}
	return nil
}

func newWatchUpdate(q ir.Query, u stream.Update) WatchUpdate {
	if u.Err != nil {
		return WatchUpdate{Round: u.Round, Error: u.Err.Error(), Answer: Answer{Query: q.String(), Rows: [][]any{}}}
	}
	a := Answer{Query: q.String(), Variables: make([]string, len(u.Variables)), Rows: [][]any{}, tuples: u.Tuples}
	for i, v := range u.Variables {
		a.Variables[i] = v.String()
	}
	for _, t := range u.Tuples {
		a.Rows = append(a.Rows, ir.EncodeTupleValues(t))
	}
	a.Count = len(a.Rows)
	return WatchUpdate{Round: u.Round, Answer: a}
}

func enqueueFile(engine *stream.Engine, file string) error {
	facts, err := loader.LoadFacts(file)
	if err != nil {
		return err
	}
	id, ok := engine.Enqueue(facts)
	if !ok {
		return errors.New("stream engine stopped")
	}
	slog.Debug("facts enqueued", "file", file, "batch", id, "predicates", len(facts))
	return nil
}

// factWatcher reports writes to a fixed set of files. It watches their
// directories, so files replaced by rename (as editors save) keep being
// seen.
type factWatcher struct {
	watcher *fsnotify.Watcher
	files   map[string]bool
}

func newFactWatcher(files []string) (*factWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	fw := &factWatcher{watcher: w, files: make(map[string]bool)}
	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			w.Close()
			return nil, err
		}
		fw.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return fw, nil
}

// Run calls changed with the watched path of every written or recreated
// file until ctx is done. It closes the watcher on return.
func (fw *factWatcher) Run(ctx context.Context, changed func(path string)) error {
	defer fw.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if path := filepath.Clean(ev.Name); fw.files[path] {
				changed(path)
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file watcher error", "error", err)
		}
	}
}

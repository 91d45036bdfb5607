// Package watch rebuilds a project when its files change.
//
// A poller stamps every file under the root at a fixed interval and queues
// the paths that changed. The run loop owns the compiler: it runs the
// first build, then drains the queue into one rebuild at a time, so
// changes that land during a rebuild are picked up by the next one.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"time"

	"github.com/roach88/jsgraph/internal/compilation"
	"github.com/roach88/jsgraph/internal/ctxlog"
	"github.com/roach88/jsgraph/internal/resolve"
)

// DefaultInterval is the poll interval when Options.Interval is zero.
const DefaultInterval = 300 * time.Millisecond

// Compiler runs passes; *compilation.Compiler implements it.
type Compiler interface {
	Build(ctx context.Context) (*compilation.Result, error)
	Rebuild(ctx context.Context, changed []string) (*compilation.Result, error)
}

// Options configure a Watcher.
type Options struct {
	// Root is the absolute directory polled for changes.
	Root     string
	Interval time.Duration
	// SkipDirs are directory names never descended into. Nil means .git
	// and node_modules.
	SkipDirs []string
	// SkipPaths are absolute files and directories never stamped, such as
	// the output directory.
	SkipPaths []string
	// OnPass receives every finished pass. An error stops the watcher.
	OnPass func(ctx context.Context, r *compilation.Result) error
}

// Watcher polls a project and rebuilds it on change.
type Watcher struct {
	compiler Compiler
	fs       resolve.ReadableFS
	opts     Options
	skip     map[string]bool
	skipPath map[string]bool
	queue    *changeQueue
	last     snapshot
	// retry holds the files of a rebuild that failed. They join the next
	// rebuild, so a failure never loses a change.
	retry []string
}

// New creates a watcher over fsys.
func New(c Compiler, fsys resolve.ReadableFS, opts Options) (*Watcher, error) {
	if !path.IsAbs(opts.Root) {
		return nil, fmt.Errorf("watch root %q is not an absolute path", opts.Root)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.SkipDirs == nil {
		opts.SkipDirs = []string{".git", "node_modules"}
	}
	w := &Watcher{
		compiler: c,
		fs:       fsys,
		opts:     opts,
		skip:     make(map[string]bool, len(opts.SkipDirs)),
		skipPath: make(map[string]bool, len(opts.SkipPaths)),
		queue:    newChangeQueue(),
	}
	for _, d := range opts.SkipDirs {
		w.skip[d] = true
	}
	for _, p := range opts.SkipPaths {
		w.skipPath[path.Clean(p)] = true
	}
	return w, nil
}

// Poll scans the root once and queues the files changed since the last
// scan. The first scan only records the baseline.
func (w *Watcher) Poll(ctx context.Context) ([]string, error) {
	next, err := scan(ctx, w.fs, w.opts.Root, w.skip, w.skipPath)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", w.opts.Root, err)
	}
	prev := w.last
	w.last = next
	if prev == nil {
		return nil, nil
	}
	changed := diff(prev, next)
	if len(changed) > 0 {
		w.queue.Enqueue(changed)
	}
	return changed, nil
}

// Run builds the project, then rebuilds it whenever files change, until
// ctx is cancelled. Compiler errors other than cancellation are logged and
// the watcher keeps going; the files of a failed rebuild are rebuilt again
// with the next change. OnPass errors stop it.
func (w *Watcher) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Baseline before the build so edits made during it are seen.
	if _, err := w.Poll(ctx); err != nil {
		return err
	}
	if err := w.pass(ctx, func(ctx context.Context) (*compilation.Result, error) {
		return w.compiler.Build(ctx)
	}); err != nil {
		return err
	}

	pollErr := make(chan error, 1)
	go func() {
		pollErr <- w.poll(ctx)
	}()
	defer w.queue.Close()

	logger.Info("watching", "root", w.opts.Root, "interval", w.opts.Interval)
	for {
		if drained := w.queue.Drain(); len(drained) > 0 {
			changed := mergeChanges(w.retry, drained)
			w.retry = nil
			logger.Debug("files changed", "count", len(changed), "first", changed[0])
			if err := w.pass(ctx, func(ctx context.Context) (*compilation.Result, error) {
				r, err := w.compiler.Rebuild(ctx, changed)
				if err != nil {
					w.retry = changed
				}
				return r, err
			}); err != nil {
				return err
			}
			continue
		}
		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return ctx.Err()
		case err := <-pollErr:
			return err
		case <-w.queue.Wait():
		}
	}
}

func (w *Watcher) poll(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Poll(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
		}
	}
}

func (w *Watcher) pass(ctx context.Context, run func(context.Context) (*compilation.Result, error)) error {
	r, err := run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		ctxlog.FromContext(ctx).Error("compilation failed", "error", err)
		return nil
	}
	if w.opts.OnPass == nil {
		return nil
	}
	if err := w.opts.OnPass(ctx, r); err != nil {
		return fmt.Errorf("handle pass %s: %w", r.ID, err)
	}
	return nil
}

// mergeChanges appends the paths of next missing from prev.
func mergeChanges(prev, next []string) []string {
	if len(prev) == 0 {
		return next
	}
	out := slices.Clone(prev)
	for _, p := range next {
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

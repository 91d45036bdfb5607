package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/jsgraph/internal/compilation"
	"github.com/roach88/jsgraph/internal/config"
	"github.com/roach88/jsgraph/internal/ctxlog"
	"github.com/roach88/jsgraph/internal/resolve"
	"github.com/roach88/jsgraph/internal/watch"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Interval    time.Duration
	MetricsAddr string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Build a project and rebuild it on change",
		Long: `Build the project in dir (default ".") and rebuild it whenever a file
under it changes. Each rebuild only rebuilds the modules a change affects
and re-renders the modules whose output changed.

With --metrics-addr, compiler metrics are served at /metrics.
Stops on SIGINT or SIGTERM.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, projectDir(args), cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", watch.DefaultInterval, "poll interval")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runWatch(opts *WatchOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var reg *prometheus.Registry
	if opts.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
	}
	p, err := openProject(cmd.Context(), dir, registerer(reg))
	if err != nil {
		return outputCommandError(formatter, err)
	}
	defer p.Close()

	var written []string
	w, err := watch.New(p.compiler, resolve.OSFS{}, watch.Options{
		Root:      filepath.ToSlash(p.cfg.Dir),
		Interval:  opts.Interval,
		SkipPaths: skipPaths(p.cfg),
		OnPass: func(ctx context.Context, r *compilation.Result) error {
			names, err := writeAssets(p.cfg.OutputPath, r, written)
			if err != nil {
				return err
			}
			written = names
			summary := summarizeResult(r)
			if r.HasErrors() {
				return formatter.Failure(summary)
			}
			return formatter.Success(summary)
		},
	})
	if err != nil {
		return outputCommandError(formatter, WrapExitError(ExitCommandError, "failed to start watcher", err))
	}

	ctx, logger := ctxlog.With(cmd.Context(), "project", p.cfg.Dir)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(ctx)
	})
	if reg != nil {
		g.Go(func() error {
			return serveMetrics(ctx, opts.MetricsAddr, reg)
		})
	}
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return outputCommandError(formatter, WrapExitError(ExitCommandError, "watch failed", err))
	}
	return nil
}

// skipPaths are the files the watcher must not react to: the output
// directory and the journal with its SQLite sidecar files.
func skipPaths(cfg *config.Config) []string {
	out := []string{filepath.ToSlash(cfg.OutputPath)}
	if cfg.Journal != "" {
		j := filepath.ToSlash(cfg.Journal)
		out = append(out, j, j+"-wal", j+"-shm", j+"-journal")
	}
	return out
}

func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}

// serveMetrics serves reg on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("serving metrics", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

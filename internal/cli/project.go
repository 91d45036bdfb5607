package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/jsgraph/internal/compilation"
	"github.com/roach88/jsgraph/internal/config"
	"github.com/roach88/jsgraph/internal/journal"
	"github.com/roach88/jsgraph/internal/resolve"
)

// project is a loaded config plus the compiler and journal built from it.
type project struct {
	cfg      *config.Config
	compiler *compilation.Compiler
	journal  *journal.Journal
}

// projectDir returns the directory argument, or "." without one.
func projectDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

// loadConfig loads the project config, mapping failures to exit errors.
func loadConfig(dir string) (*config.Config, error) {
	cfg, err := config.Load(dir, nil)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// openProject creates the compiler for dir. Pass numbers continue from the
// journal. reg, when not nil, receives the compiler metrics.
func openProject(ctx context.Context, dir string, reg prometheus.Registerer) (*project, error) {
	cfg, err := loadConfig(dir)
	if err != nil {
		return nil, err
	}
	p := &project{cfg: cfg}

	var options []compilation.Option
	if reg != nil {
		options = append(options, compilation.WithMetrics(compilation.NewMetrics(reg)))
	}
	if cfg.Journal != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal), 0o755); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create journal directory", err)
		}
		j, err := journal.Open(cfg.Journal)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		p.journal = j
		seq, err := j.LastSeq(ctx)
		if err != nil {
			p.Close()
			return nil, WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		options = append(options,
			compilation.WithRecorder(j),
			compilation.WithPassClock(compilation.NewPassClockAt(seq)))
	}

	c, err := compilation.New(resolve.OSFS{}, cfg.Compilation, options...)
	if err != nil {
		p.Close()
		return nil, WrapExitError(ExitCommandError, "invalid compiler options", err)
	}
	p.compiler = c
	return p, nil
}

// Close closes the journal.
func (p *project) Close() error {
	if p.journal == nil {
		return nil
	}
	return p.journal.Close()
}

// writeAssets writes the assets of a pass into the output directory and
// removes the files a previous pass wrote that this one did not.
func writeAssets(dir string, r *compilation.Result, previous []string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	written := make(map[string]bool, len(r.Assets))
	names := make([]string, 0, len(r.Assets))
	for _, a := range r.Assets {
		if err := os.WriteFile(filepath.Join(dir, a.Name), []byte(a.Source), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", a.Name, err)
		}
		written[a.Name] = true
		names = append(names, a.Name)
	}
	for _, name := range previous {
		if written[name] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale %s: %w", name, err)
		}
	}
	return names, nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/jsgraph/internal/ctxlog"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	NoEmit bool
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build [dir]",
		Short: "Build a project once",
		Long: `Build the project in dir (default ".") and write its chunks to the
output directory.

The project is configured by jsgraph.cue in dir; without one the entry is
./src/index.js and output goes to dist/. Exits 1 when the pass reports
errors.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(opts, projectDir(args), cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoEmit, "no-emit", false, "build without writing assets")

	return cmd
}

func runBuild(opts *BuildOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	p, err := openProject(cmd.Context(), dir, nil)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	defer p.Close()

	ctx, logger := ctxlog.With(cmd.Context(), "project", p.cfg.Dir)
	formatter.VerboseLog("Building %d entr(ies) from %s", len(p.cfg.Entries()), p.cfg.Dir)

	r, err := p.compiler.Build(ctx)
	if err != nil {
		return outputCommandError(formatter, WrapExitError(ExitCommandError, "build failed", err))
	}
	if !opts.NoEmit {
		if _, err := writeAssets(p.cfg.OutputPath, r, nil); err != nil {
			return outputCommandError(formatter, WrapExitError(ExitCommandError, "failed to write assets", err))
		}
		logger.Debug("assets written", "dir", p.cfg.OutputPath, "count", len(r.Assets))
	}

	summary := summarizeResult(r)
	if r.HasErrors() {
		if err := formatter.Failure(summary); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("build reported %d error(s)", summary.Errors()))
	}
	return formatter.Success(summary)
}

// outputCommandError prints err and returns it so the exit code survives.
func outputCommandError(f *OutputFormatter, err error) error {
	code := "COMMAND_ERROR"
	if GetExitCode(err) == ExitFailure {
		code = "FAILURE"
	}
	if outErr := f.Error(code, err.Error(), nil); outErr != nil {
		return outErr
	}
	return err
}

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/jsgraph/internal/ident"
	"github.com/roach88/jsgraph/internal/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit  int
	PassID string
	Module string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [dir]",
		Short: "Show the passes recorded in the build journal",
		Long: `List the passes recorded in the project's build journal.

The journal is enabled by the journal field of jsgraph.cue or the
JSGRAPH_JOURNAL environment variable. --pass shows everything recorded
for one pass ("latest" for the newest); --module shows which passes
built, restored, rendered or removed a module.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, projectDir(args), cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of passes to list (0 for all)")
	cmd.Flags().StringVar(&opts.PassID, "pass", "", "show one pass")
	cmd.Flags().StringVar(&opts.Module, "module", "", "show the history of one module identifier")
	cmd.MarkFlagsMutuallyExclusive("pass", "module")

	return cmd
}

func runHistory(opts *HistoryOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := loadConfig(dir)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	if cfg.Journal == "" {
		return outputCommandError(formatter, NewExitError(ExitCommandError, "no journal configured for "+cfg.Dir))
	}
	j, err := journal.Open(cfg.Journal)
	if err != nil {
		return outputCommandError(formatter, WrapExitError(ExitCommandError, "failed to open journal", err))
	}
	defer j.Close()
	formatter.VerboseLog("Reading journal %s", cfg.Journal)

	ctx := cmd.Context()
	switch {
	case opts.PassID != "":
		var detail journal.PassDetail
		if opts.PassID == "latest" {
			detail, err = j.Latest(ctx)
		} else {
			detail, err = j.ReadPass(ctx, opts.PassID)
		}
		if errors.Is(err, journal.ErrPassNotFound) {
			return outputCommandError(formatter, NewExitError(ExitCommandError, fmt.Sprintf("pass %q not found", opts.PassID)))
		}
		if err != nil {
			return outputCommandError(formatter, WrapExitError(ExitCommandError, "failed to read pass", err))
		}
		return formatter.Success(summarizeRecorded(detail))

	case opts.Module != "":
		events, err := j.ModuleHistory(ctx, ident.ModuleIdentifier(opts.Module))
		if err != nil {
			return outputCommandError(formatter, WrapExitError(ExitCommandError, "failed to read module history", err))
		}
		return formatter.Success(ModuleTimeline{Module: opts.Module, Events: events})
	}

	passes, err := j.Passes(ctx, opts.Limit)
	if err != nil {
		return outputCommandError(formatter, WrapExitError(ExitCommandError, "failed to list passes", err))
	}
	return formatter.Success(PassList(passes))
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/hyperdash/internal/cursor"
	"github.com/roach88/hyperdash/internal/hal"
	"github.com/roach88/hyperdash/internal/poller"
	"github.com/roach88/hyperdash/internal/states"
)

// CommandOptions holds flags for the command command.
type CommandOptions struct {
	*RootOptions
	BaseURL string
	Journal string

	// Client allows overriding the network (for testing).
	Client hal.Client
}

// NewCommandCommand creates the command command.
func NewCommandCommand(rootOpts *RootOptions) *cobra.Command {
	return newCommandCommand(&CommandOptions{RootOptions: rootOpts})
}

func newCommandCommand(opts *CommandOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "command <account|order|warehouse> <id> [rel]",
		Short: "Invoke a command offered by a resource",
		Long: `Invoke one of the commands a resource lists under its commands link.

Without a relation, the resource is fetched once and its commands are shown.

Example:
  hyperdash command order 42
  hyperdash command order 42 order-confirmed`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rel := ""
			if len(args) == 3 {
				rel = args[2]
			}
			return runCommand(opts, args[0], args[1], rel, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "API base URL (overrides api.base_url)")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record the invocation to this SQLite journal")

	return cmd
}

func runCommand(opts *CommandOptions, kindArg, id, rel string, cmd *cobra.Command) error {
	kind, err := cursor.ParseKind(kindArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid resource kind", err)
	}

	cfg, err := loadConfig(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	setupLogging(opts.RootOptions, cfg, cmd.ErrOrStderr())

	catalog, err := states.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load state graphs", err)
	}

	sink, closeSink, err := newSink(opts.RootOptions, cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeSink()

	p := poller.New(newClient(opts.Client, cfg), sink, catalog,
		poller.WithBaseURL(cfg.API.BaseURL),
		poller.WithBackfill(false),
	)
	p.Track(kind, id)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if rel == "" {
		report, err := p.Step(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "fetch failed", err)
		}
		if report.Err != nil {
			return WrapExitError(ExitFailure, "fetch failed at "+report.Phase, report.Err)
		}
		return nil
	}

	if _, err := p.Invoke(ctx, rel); err != nil {
		return WrapExitError(ExitFailure, "command failed", err)
	}
	return nil
}

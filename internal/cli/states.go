package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/hyperdash/internal/cursor"
	"github.com/roach88/hyperdash/internal/states"
)

// NewStatesCommand creates the states command.
func NewStatesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "states [account|order|warehouse]",
		Short: "Show the state graphs",
		Long: `Print the state machine of each resource kind, or of one kind.

Example:
  hyperdash states
  hyperdash states order --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStates(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runStates(opts *RootOptions, args []string, cmd *cobra.Command) error {
	catalog, err := states.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load state graphs", err)
	}

	kinds := catalog.Kinds()
	if len(args) == 1 {
		kind, err := cursor.ParseKind(args[0])
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid resource kind", err)
		}
		kinds = []cursor.Kind{kind}
	}

	graphs := make([]*states.Graph, 0, len(kinds))
	for _, k := range kinds {
		g, ok := catalog.Graph(k)
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("no state graph for %s", k))
		}
		graphs = append(graphs, g)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success("", graphs, func(w io.Writer) {
		for _, g := range graphs {
			fmt.Fprint(w, g.String())
		}
	})
}

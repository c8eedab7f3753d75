package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hyperdash/internal/config"
	"github.com/roach88/hyperdash/internal/hal"
	"github.com/roach88/hyperdash/internal/metrics"
	"github.com/roach88/hyperdash/internal/workflow"
)

// StepOptions holds flags for the step command.
type StepOptions struct {
	*RootOptions
	URL     string
	Trigger string

	// Client and RunIDs allow overriding the network and run IDs (for testing).
	Client hal.Client
	RunIDs workflow.RunIDGenerator
}

// NewStepCommand creates the step command.
func NewStepCommand(rootOpts *RootOptions) *cobra.Command {
	return newStepCommand(&StepOptions{RootOptions: rootOpts})
}

func newStepCommand(opts *StepOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step <workflow>",
		Short: "Run a workflow transition once",
		Long: `Run a configured workflow against one resource.

The resource is given either directly with --url, or as a HAL trigger
document (--trigger, "-" for stdin) whose link names the resource.

Example:
  hyperdash step account-pending --url http://localhost:8080/account/v1/accounts/1
  hyperdash step account-pending --trigger event.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "resource URL to run the workflow against")
	cmd.Flags().StringVar(&opts.Trigger, "trigger", "", "HAL trigger document (\"-\" for stdin)")

	return cmd
}

// newRegistry builds the workflow registry from cfg.
func newRegistry(client hal.Client, cfg *config.Config, m *metrics.Collector, ids workflow.RunIDGenerator) (*workflow.Registry, error) {
	execOpts := []workflow.ExecutorOption{workflow.WithMetrics(m)}
	if ids != nil {
		execOpts = append(execOpts, workflow.WithRunIDs(ids))
	}
	registry, err := workflow.NewRegistry(client, workflow.NewExecutor(execOpts...), cfg.Workflows...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid workflows", err)
	}
	return registry, nil
}

func runStep(opts *StepOptions, name string, cmd *cobra.Command) error {
	if (opts.URL == "") == (opts.Trigger == "") {
		return NewExitError(ExitCommandError, "exactly one of --url or --trigger is required")
	}

	cfg, err := loadConfig(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	setupLogging(opts.RootOptions, cfg, cmd.ErrOrStderr())

	registry, err := newRegistry(newClient(opts.Client, cfg), cfg, nil, opts.RunIDs)
	if err != nil {
		return err
	}
	if _, ok := registry.Get(name); !ok {
		return WrapExitError(ExitCommandError, fmt.Sprintf("available: %v", registry.Names()), fmt.Errorf("%w: %q", workflow.ErrUnknownWorkflow, name))
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	var res workflow.Result
	if opts.URL != "" {
		res, err = registry.Start(ctx, name, opts.URL)
	} else {
		body, rerr := readTrigger(opts.Trigger, cmd.InOrStdin())
		if rerr != nil {
			return WrapExitError(ExitCommandError, "failed to read trigger", rerr)
		}
		res, err = registry.Trigger(ctx, name, body)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err != nil {
		if ferr := formatter.Failure(res.RunID, err); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, "workflow "+name+" aborted", err)
	}

	return formatter.Success(res.RunID, res, func(w io.Writer) {
		fmt.Fprintf(w, "Run %s completed\n", res.RunID)
		if status := res.Resource.Status(); status != "" {
			fmt.Fprintf(w, "  status: %s\n", status)
		}
	})
}

func readTrigger(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

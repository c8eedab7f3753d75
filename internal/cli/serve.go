package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/hyperdash/internal/hal"
	"github.com/roach88/hyperdash/internal/metrics"
	"github.com/roach88/hyperdash/internal/trigger"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr    string
	BaseURL string

	// Client allows overriding the network (for testing).
	Client hal.Client
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve workflow triggers over HTTP",
		Long: `Start the trigger server.

POST a HAL trigger document to /v1/workflows/<name> to run a workflow.
GET /v1/workflows lists the configured workflows, /healthz reports
liveness and /metrics exposes Prometheus metrics.

Example:
  hyperdash serve --addr :8081`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":8081", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "API base URL (overrides api.base_url)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	setupLogging(opts.RootOptions, cfg, cmd.ErrOrStderr())

	m := metrics.New()
	registry, err := newRegistry(newClient(opts.Client, cfg), cfg, m, nil)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	slog.Info("trigger server listening", "addr", cfg.Server.Addr, "workflows", registry.Names())
	if err := trigger.New(registry, trigger.WithMetrics(m)).Run(ctx, cfg.Server.Addr); err != nil {
		return WrapExitError(ExitFailure, "trigger server failed", err)
	}
	slog.Info("trigger server stopped")
	return nil
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/hyperdash/internal/clock"
	"github.com/roach88/hyperdash/internal/cursor"
	"github.com/roach88/hyperdash/internal/hal"
	"github.com/roach88/hyperdash/internal/metrics"
	"github.com/roach88/hyperdash/internal/poller"
	"github.com/roach88/hyperdash/internal/replay"
	"github.com/roach88/hyperdash/internal/states"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Once     bool
	BaseURL  string
	Interval time.Duration
	Pace     time.Duration
	Backfill    bool
	Journal     string
	MetricsAddr string

	// Client, Clock and Metrics allow overriding the network, time and
	// collector (for testing).
	Client  hal.Client
	Clock   clock.Clock
	Metrics *metrics.Collector
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return newWatchCommand(&WatchOptions{RootOptions: rootOpts})
}

func newWatchCommand(opts *WatchOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <account|order|warehouse> <id>",
		Short: "Follow a resource and replay its events",
		Long: `Poll a resource and its event feed, showing each new event as it arrives.

On the first poll the resource's history is shown as a table and its latest
event is replayed. Later polls replay only events the feed gained since the
previous poll, one at a time at the configured pace.

Example:
  hyperdash watch account 1
  hyperdash watch order 42 --interval 5s --journal ./hyperdash.db
  hyperdash watch warehouse 3 --once --format json
  hyperdash watch account 1 --metrics-addr :9090`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single poll cycle and exit")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "API base URL (overrides api.base_url)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", poller.DefaultInterval, "time between poll cycles")
	cmd.Flags().DurationVar(&opts.Pace, "pace", replay.DefaultPace, "delay between replayed events")
	cmd.Flags().BoolVar(&opts.Backfill, "backfill", true, "show the history table on first observation")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record the session to this SQLite journal")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics.addr)")

	return cmd
}

func runWatch(opts *WatchOptions, kindArg, id string, cmd *cobra.Command) error {
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

	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	pollerOpts := []poller.Option{
		poller.WithMetrics(m),
		poller.WithBaseURL(cfg.API.BaseURL),
		poller.WithInterval(cfg.Poll.Interval),
		poller.WithPace(cfg.Poll.Pace),
		poller.WithBackfill(cfg.Poll.Backfill),
	}
	if opts.Clock != nil {
		pollerOpts = append(pollerOpts, poller.WithClock(opts.Clock))
	}
	p := poller.New(newClient(opts.Client, cfg), sink, catalog, pollerOpts...)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if cfg.Metrics.Addr != "" {
		stop, err := serveMetrics(ctx, m, cfg.Metrics.Addr)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start metrics server", err)
		}
		defer stop()
	}

	if opts.Once {
		p.Track(kind, id)
		report, err := p.Step(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "poll cycle failed", err)
		}
		if report.Err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("poll cycle failed at %s", report.Phase), report.Err)
		}
		return nil
	}

	slog.Info("watching", "kind", kind, "id", id, "base_url", cfg.API.BaseURL, "interval", cfg.Poll.Interval)
	p.Activate(ctx, kind, id)
	<-ctx.Done()
	p.Deactivate()
	p.Wait()
	slog.Info("watch stopped")
	return nil
}

// serveMetrics serves m on addr in the background. The returned function
// stops the server and waits for it to exit.
func serveMetrics(ctx context.Context, m *metrics.Collector, addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.Serve(ctx, ln); err != nil {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}, nil
}

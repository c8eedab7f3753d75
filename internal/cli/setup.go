package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/hyperdash/internal/config"
	"github.com/roach88/hyperdash/internal/hal"
	"github.com/roach88/hyperdash/internal/journal"
	"github.com/roach88/hyperdash/internal/view"
)

// flagKeys maps config keys to the command flags that override them.
// A command binds only the flags it defines.
var flagKeys = map[string]string{
	"api.base_url":  "base-url",
	"poll.interval": "interval",
	"poll.pace":     "pace",
	"poll.backfill": "backfill",
	"server.addr":   "addr",
	"metrics.addr":  "metrics-addr",
	"journal.path":  "journal",
}

// loadConfig builds the configuration from defaults, --config, HYPERDASH_*
// variables and the command's own flags, in increasing precedence.
func loadConfig(cmd *cobra.Command, opts *RootOptions) (*config.Config, error) {
	v := config.NewViper()
	for key, name := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, WrapExitError(ExitCommandError, "failed to bind flag "+name, err)
			}
		}
	}

	cfg, err := config.Load(v, opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// setupLogging installs the default slog handler. --verbose forces debug.
func setupLogging(opts *RootOptions, cfg *config.Config, w io.Writer) {
	level := cfg.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}

// signalContext returns a context cancelled on SIGINT/SIGTERM or when the
// command's own context ends.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// newClient returns client if set, otherwise an HTTP client honouring
// api.timeout.
func newClient(client hal.Client, cfg *config.Config) hal.Client {
	if client != nil {
		return client
	}
	return hal.NewHTTPClient(hal.WithTimeout(cfg.API.Timeout))
}

// newSink builds the terminal sink for --format and, when journal.path is
// set, tees into the journal. The returned close function closes the journal.
func newSink(opts *RootOptions, cfg *config.Config, w io.Writer) (view.Sink, func(), error) {
	var out view.Sink
	if opts.Format == "json" {
		out = view.NewJSONSink(w)
	} else {
		out = view.NewTextSink(w)
	}

	if cfg.Journal.Path == "" {
		return out, func() {}, nil
	}

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	slog.Debug("journal open", "path", cfg.Journal.Path)
	closeJournal := func() {
		if failures := j.Failures(); failures > 0 {
			slog.Warn("journal entries lost", "count", failures)
		}
		if err := j.Close(); err != nil {
			slog.Error("error closing journal", "error", err)
		}
	}
	return view.Multi{out, j}, closeJournal, nil
}

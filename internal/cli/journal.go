package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/hyperdash/internal/cursor"
	"github.com/roach88/hyperdash/internal/journal"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Journal string
	Events  bool
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal [<account|order|warehouse> <id>]",
		Short: "Inspect a recorded session",
		Long: `Read back a journal written by watch or command.

Without arguments, lists the recorded resources. With a resource, prints
everything shown for it in the order it was shown, or its events with
--events.

Example:
  hyperdash journal --journal ./hyperdash.db
  hyperdash journal order 42 --journal ./hyperdash.db
  hyperdash journal order 42 --journal ./hyperdash.db --events --format json`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 arg(s), received %d", len(args))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "SQLite journal to read (overrides journal.path)")
	cmd.Flags().BoolVar(&opts.Events, "events", false, "list recorded events instead of the transcript")

	return cmd
}

func runJournal(opts *JournalOptions, args []string, cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	setupLogging(opts.RootOptions, cfg, cmd.ErrOrStderr())

	if cfg.Journal.Path == "" {
		return NewExitError(ExitCommandError, "no journal: set --journal or journal.path")
	}

	var ref *cursor.Ref
	if len(args) == 2 {
		kind, err := cursor.ParseKind(args[0])
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid resource kind", err)
		}
		ref = &cursor.Ref{Kind: kind, ID: args[1]}
	}

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	switch {
	case ref == nil:
		refs, err := j.Resources(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		return formatter.Success("", refs, func(w io.Writer) {
			if len(refs) == 0 {
				fmt.Fprintln(w, "No resources recorded")
				return
			}
			for _, r := range refs {
				fmt.Fprintln(w, r)
			}
		})

	case opts.Events:
		events, err := j.Events(ctx, *ref)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		return formatter.Success("", events, func(w io.Writer) {
			for _, ev := range events {
				marker := ""
				if ev.Backfill {
					marker = " (history)"
				}
				fmt.Fprintf(w, "%d  %s  %s%s\n", ev.CreatedAt, ev.Type, ev.Fingerprint[:12], marker)
			}
		})

	default:
		entries, err := j.Transcript(ctx, *ref)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		return formatter.Success("", entries, func(w io.Writer) {
			for _, e := range entries {
				fmt.Fprintln(w, e.Line())
			}
		})
	}
}

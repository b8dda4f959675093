package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/errors"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/models"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/sync/queue"
)

// withApp opens the engine for a one-shot command and reports failures
// through the formatter.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(a *app, out *OutputFormatter) error) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	cfg, err := loadConfig(opts, cmd.ErrOrStderr())
	if err != nil {
		return out.Fail(err)
	}
	a, err := openApp(cmd.Context(), cfg)
	if err != nil {
		return out.Fail(err)
	}

	runErr := fn(a, out)
	if err := a.Close(); err != nil && runErr == nil {
		return out.Fail(errors.Wrap(errors.ErrDatabase, "failed to close store", err))
	}
	return runErr
}

// NewEnqueueCommand creates the enqueue command.
func NewEnqueueCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <action-type> <payload-json>",
		Short: "Queue an action for the next sync",
		Long: fmt.Sprintf(`Queue an action for the next sync.

Known action types: %v. Payloads of known types are checked for their
required fields, then sent to the backend as-is.`, models.ActionTypes),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app, out *OutputFormatter) error {
				actionType, payload := models.ActionType(args[0]), json.RawMessage(args[1])
				if json.Valid(payload) {
					if err := models.ValidatePayload(actionType, payload); err != nil {
						return out.Fail(errors.Wrap(errors.ErrInvalid, "invalid payload", err))
					}
				}
				action, err := a.engine.Enqueue(cmd.Context(), actionType, payload)
				if err != nil {
					return out.Fail(err)
				}
				return out.Success(action, func(w io.Writer) {
					fmt.Fprintf(w, "Queued %s %s (%d pending)\n", action.ActionType, action.ID, a.engine.PendingCount())
				})
			})
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending and dead-lettered actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app, out *OutputFormatter) error {
				status := a.engine.Snapshot()
				return out.Success(status, func(w io.Writer) { printStatus(w, status) })
			})
		},
	}
}

func printStatus(w io.Writer, s queue.Status) {
	fmt.Fprintf(w, "Pending: %d\n", s.PendingCount)
	for _, a := range s.PendingQueue {
		fmt.Fprintf(w, "  %s  %-16s retries=%d\n", a.ID, a.ActionType, a.RetryCount)
	}
	fmt.Fprintf(w, "Failed:  %d\n", s.FailedCount)
	for _, a := range s.FailedQueue {
		fmt.Fprintf(w, "  %s  %-16s retries=%d  %s\n", a.ID, a.ActionType, a.RetryCount, a.LastError)
	}
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay the pending queue against the backend once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app, out *OutputFormatter) error {
				result, err := a.engine.SyncNow(cmd.Context())
				if err != nil {
					return out.Fail(err)
				}
				return out.Success(result, func(w io.Writer) {
					switch result.SkipReason {
					case queue.SkipEmpty:
						fmt.Fprintln(w, "Nothing to sync")
						return
					case queue.SkipInProgress:
						fmt.Fprintln(w, "A sync is already running")
						return
					}
					fmt.Fprintf(w, "Synced %d/%d actions (%d requeued, %d dead-lettered) in %s\n",
						result.Succeeded, result.Total, result.Requeued, result.DeadLettered, result.Duration)
				})
			})
		},
	}
}

// NewRetryCommand creates the retry command.
func NewRetryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <action-id>",
		Short: "Move a dead-lettered action back to the pending queue and sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app, out *OutputFormatter) error {
				found, err := a.engine.Retry(cmd.Context(), args[0])
				if err != nil {
					return out.Fail(err)
				}
				if !found {
					return out.Fail(errors.Newf(errors.ErrNotFound, "no failed action with id %s", args[0]))
				}
				// let the drain Retry started finish before reporting
				a.engine.Close()
				status := a.engine.Snapshot()
				return out.Success(status, func(w io.Writer) {
					fmt.Fprintf(w, "Retried %s\n", args[0])
					printStatus(w, status)
				})
			})
		},
	}
}

// NewDiscardCommand creates the discard command.
func NewDiscardCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <action-id>",
		Short: "Permanently remove a dead-lettered action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app, out *OutputFormatter) error {
				found, err := a.engine.Discard(cmd.Context(), args[0])
				if err != nil {
					return out.Fail(err)
				}
				if !found {
					return out.Fail(errors.Newf(errors.ErrNotFound, "no failed action with id %s", args[0]))
				}
				return out.Success(map[string]string{"discarded": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Discarded %s\n", args[0])
				})
			})
		},
	}
}

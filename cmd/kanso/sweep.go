package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/adapters/notify"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

var errSweepTarget = errors.New("sweep needs exactly one of --user or --all")

type sweepOptions struct {
	UserID string
	All    bool
}

type sweepResult struct {
	UserID     string                  `json:"user_id,omitempty"`
	Recomputed int                     `json:"recomputed"`
	Users      int                     `json:"users,omitempty"`
	Report     *domain.OverdueReport   `json:"report,omitempty"`
	Changes    []domain.SeverityChange `json:"changes"`
}

func newSweepCommand(root *rootOptions) *cobra.Command {
	opts := &sweepOptions{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Recompute streaks once and print the resulting status as JSON",
		Long: `Recompute every habit of one user (--user) or of every active user
(--all), charging freeze days for missed scheduled days, then re-evaluate the
overdue status.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (opts.UserID == "") == !opts.All {
				return errSweepTarget
			}
			return runSweep(cmd.Context(), root, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "user whose habits are recomputed")
	cmd.Flags().BoolVar(&opts.All, "all", false, "sweep every user with an active habit")

	return cmd
}

func runSweep(ctx context.Context, root *rootOptions, opts *sweepOptions, out io.Writer) error {
	changes := notify.NewChannelNotifier(256)

	e, err := newEngine(ctx, root.cfg, root.logger, root.Memory, changes)
	if err != nil {
		return err
	}
	defer e.Close()

	result := sweepResult{UserID: opts.UserID}

	if opts.All {
		n, err := e.worker.Sweep(ctx)
		if err != nil {
			return err
		}
		result.Users = n
	} else {
		n, err := e.streakSvc.RecomputeUser(ctx, opts.UserID, e.today())
		if err != nil {
			return err
		}
		result.Recomputed = n

		e.statusSvc.Invalidate(opts.UserID)
		report, err := e.statusSvc.Status(ctx, opts.UserID, true)
		if err != nil {
			return err
		}
		result.Report = report
	}

	result.Changes = drain(changes)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func drain(n *notify.ChannelNotifier) []domain.SeverityChange {
	out := []domain.SeverityChange{}
	for {
		select {
		case c := <-n.Changes():
			out = append(out, c)
		default:
			return out
		}
	}
}

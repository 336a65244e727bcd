package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/nudge/internal/hint"
	"github.com/dreamware/nudge/internal/lease"
	"github.com/dreamware/nudge/internal/node"
)

// stopWait bounds how long `nudge stop` waits for the lease to clear.
const stopWait = 5 * time.Second

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current leader and its store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, l, err := a.leaderClient()
			if err != nil {
				return err
			}
			var st node.Status
			if err := client.Status(cmd.Context(), &st); err != nil {
				return hint.Unavailable(err)
			}
			return a.emit(st, func(w io.Writer) {
				fmt.Fprintf(w, "leader:   pid %d on %s (instance %s)\n", l.PID, client.URL(), l.Instance)
				fmt.Fprintf(w, "since:    %s\n", l.StartedAt.Local().Format(time.RFC3339))
				if st.Store == nil {
					fmt.Fprintf(w, "role:     %s (no store)\n", st.Role)
					return
				}
				s := st.Store
				fmt.Fprintf(w, "session:  %s\n", s.SessionID)
				fmt.Fprintf(w, "hints:    %d in %d components\n", s.Entries, s.Components)
				fmt.Fprintf(w, "ops:      %d sets, %d lookups, %d searches, %d expired\n",
					s.Ops.Upserts, s.Ops.Lookups, s.Ops.Searches, s.Ops.Evictions)
			})
		},
	}
}

func newStopCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the leader; its hints are discarded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, l, err := a.leaderClient()
			if err != nil {
				return err
			}
			if err := client.Shutdown(cmd.Context()); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), stopWait)
			defer cancel()
			if err := waitReleased(ctx, lease.NewFile(a.cfg.Leader.LeasePath), l.Instance); err != nil {
				a.log.Warn().Err(err).Int("pid", l.PID).Msg("leader did not release its lease")
			}
			fmt.Fprintf(a.out, "stopped leader pid %d\n", l.PID)
			return nil
		},
	}
}

// waitReleased polls until the lease no longer names instance.
func waitReleased(ctx context.Context, f *lease.File, instance string) error {
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		l, err := f.Read()
		if errors.Is(err, lease.ErrNoLease) || (err == nil && l.Instance != instance) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

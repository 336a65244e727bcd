package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/nudge/internal/lease"
	"github.com/dreamware/nudge/internal/leader"
	"github.com/dreamware/nudge/internal/mcpserver"
	"github.com/dreamware/nudge/internal/node"
	"github.com/dreamware/nudge/internal/storage"
)

func newServeCommand(a *app) *cobra.Command {
	var stdio bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Join the election and serve MCP on stdio",
		Long: `Join the leader election and serve the hint tools over MCP on stdin/stdout.

The first process to start leads: it binds the loopback port, writes the lease
and owns the store. Later processes follow and forward every call to it. When
the leader exits, a follower takes over with an empty store.

With --stdio=false the process only takes part in the election, which is
useful for running a long-lived leader in the background.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), stdio)
		},
	}
	cmd.Flags().BoolVar(&stdio, "stdio", true, "serve MCP on stdin/stdout")
	return cmd
}

func (a *app) serve(ctx context.Context, stdio bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx, shutdown := context.WithCancel(ctx)
	defer shutdown()

	cfg := a.cfg
	n := node.New(node.Options{
		Host:           cfg.Server.Host,
		RequestTimeout: cfg.Server.RequestTimeout,
		SweepInterval:  cfg.Store.SweepInterval,
		Limits: storage.Limits{
			MaxComponents:       cfg.Store.MaxComponents,
			MaxKeysPerComponent: cfg.Store.MaxKeysPerComponent,
			MaxTotalEntries:     cfg.Store.MaxTotalEntries,
		},
		SecretGuard: cfg.Store.SecretGuard,
		Shutdown:    shutdown,
		Logger:      a.log,
	})
	monitor := leader.New(n, lease.NewFile(cfg.Leader.LeasePath), leader.Config{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		PortAttempts:  cfg.Server.PortAttempts,
		ProbeInterval: cfg.Leader.ProbeInterval,
		ProbeTimeout:  cfg.Leader.ProbeTimeout,
		MaxFailures:   cfg.Leader.MaxFailures,
	}, leader.WithInstance(n.Instance()), leader.WithLogger(a.log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return monitor.Run(gctx)
	})

	if stdio {
		g.Go(func() error {
			select {
			case <-monitor.Ready():
			case <-gctx.Done():
				return nil
			}
			srv := mcpserver.New(n.Handler(), mcpserver.Options{Version: version, Logger: a.log})
			err := mcpserver.ServeStdio(gctx, srv)
			// the agent closed stdio; this process has nobody left to serve
			shutdown()
			return err
		})
	}

	a.log.Info().
		Str("instance", n.Instance()).
		Bool("stdio", stdio).
		Str("lease", cfg.Leader.LeasePath).
		Msg("nudge serve started")
	err := g.Wait()
	a.log.Info().Msg("nudge serve stopped")
	return err
}

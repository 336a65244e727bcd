package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/slices"

	"github.com/dreamware/nudge/internal/config"
	"github.com/dreamware/nudge/internal/hint"
	"github.com/dreamware/nudge/internal/lease"
	"github.com/dreamware/nudge/internal/logging"
	"github.com/dreamware/nudge/internal/rpc"
)

// outputFormats are the values accepted by --format.
var outputFormats = []string{"text", "json", "yaml"}

// app is the state shared by every subcommand.
type app struct {
	out    io.Writer
	errOut io.Writer

	v          *viper.Viper
	configPath string
	format     string

	cfg *config.Config
	log zerolog.Logger
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut, v: config.New()}

	cmd := &cobra.Command{
		Use:   "nudge",
		Short: "Shared, short-lived hints for agents and humans",
		Long: `nudge keeps a small in-memory cache of hints: how to build, test or run a
component, and under which branch, directory or environment that applies.

One "nudge serve" process leads and owns the store; every other process
forwards to it. The store lives as long as its leader.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default: nudge.yaml in . or ~/.config/nudge)")
	flags.Int("port", 8765, "first loopback port a leader tries")
	flags.String("log-level", "info", "log level (debug|info|warn|error)")
	flags.String("lease", "", "lease file location (default: per-OS path)")
	flags.StringVar(&a.format, "format", "text", "output format (text|json|yaml)")
	_ = a.v.BindPFlag("server.port", flags.Lookup("port"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("leader.lease_path", flags.Lookup("lease"))

	cmd.AddCommand(
		newServeCommand(a),
		newSetCommand(a),
		newGetCommand(a),
		newQueryCommand(a),
		newDeleteCommand(a),
		newListCommand(a),
		newBumpCommand(a),
		newExportCommand(a),
		newImportCommand(a),
		newStatusCommand(a),
		newStopCommand(a),
	)
	return cmd
}

// setup loads configuration and builds the logger.
func (a *app) setup() error {
	if !slices.Contains(outputFormats, a.format) {
		return usageError(fmt.Sprintf("invalid format %q: must be one of %v", a.format, outputFormats), nil)
	}
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return usageError("load config", err)
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, a.errOut)
	if err != nil {
		return usageError("configure logging", err)
	}
	a.cfg = cfg
	a.log = log
	return nil
}

// leaderClient returns a client for the leader named in the lease.
func (a *app) leaderClient() (*rpc.Client, lease.Lease, error) {
	l, err := lease.NewFile(a.cfg.Leader.LeasePath).Read()
	if err != nil {
		return nil, lease.Lease{}, hint.Unavailable(fmt.Errorf("no nudge server running (start one with `nudge serve`): %w", err))
	}
	return rpc.NewClient(a.cfg.Server.Host, l.Port, a.cfg.Server.RequestTimeout), l, nil
}

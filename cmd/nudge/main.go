// Package main implements the nudge binary: a hint cache shared by every
// agent and terminal on one machine.
//
// One process at a time leads and owns the in-memory store; every other
// process forwards to it over a loopback JSON-RPC endpoint. Agents talk to
// `nudge serve`, which speaks MCP on stdio. Humans use the other
// subcommands, which call the current leader directly.
//
//	┌──────────┐ stdio  ┌─────────────┐  loopback  ┌─────────────┐
//	│  agent   │───────►│ nudge serve │───────────►│ nudge serve │
//	└──────────┘  MCP   │  follower   │  JSON-RPC  │   leader    │
//	                    └─────────────┘            │   store     │
//	┌──────────┐                                   │             │
//	│ terminal │──── nudge get / set / query ─────►│             │
//	└──────────┘                                   └─────────────┘
//
// Configuration:
//   - nudge.yaml in ., $XDG_CONFIG_HOME/nudge or ~/.config/nudge
//   - NUDGE_* environment variables (NUDGE_SERVER_PORT, NUDGE_LOG_LEVEL, ...)
//   - --config, --port, --log-level flags
//
// Example usage:
//
//	# register with an MCP client
//	nudge serve
//
//	# record and recall a hint from a shell
//	nudge set api test "go test ./..." --tag ci --branch 'feature/*'
//	nudge query --tag ci
package main

import (
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd := newRootCommand(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "nudge:", err)
		os.Exit(exitCode(err))
	}
}

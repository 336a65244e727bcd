// Package node hosts the store for one nudge process.
//
// A Node is driven by the leadership monitor:
//
//	┌───────────────────────────────────────────────┐
//	│                     Node                      │
//	├───────────────────────────────────────────────┤
//	│  LEADER                                       │
//	│    storage.Store   - the only writable store  │
//	│    http.Server     - POST / /health /status   │
//	│    sweeper         - TTL eviction loop        │
//	│    router → rpc.Local                         │
//	├───────────────────────────────────────────────┤
//	│  CANDIDATE (Lead called, claim pending)       │
//	│    http.Server     - /health only             │
//	│    router → UNAVAILABLE                       │
//	├───────────────────────────────────────────────┤
//	│  FOLLOWER                                     │
//	│    router → rpc.Client (leader endpoint)      │
//	├───────────────────────────────────────────────┤
//	│  UNBOUND                                      │
//	│    router → UNAVAILABLE                       │
//	└───────────────────────────────────────────────┘
//
// Local transports talk to Handler() and never learn which role is active.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dreamware/nudge/internal/guard"
	"github.com/dreamware/nudge/internal/lease"
	"github.com/dreamware/nudge/internal/leader"
	"github.com/dreamware/nudge/internal/router"
	"github.com/dreamware/nudge/internal/rpc"
	"github.com/dreamware/nudge/internal/storage"
)

// Options configures a Node.
type Options struct {
	// Host is the interface followers dial to reach the leader.
	Host string
	// Instance identifies this process in the lease and on /health.
	Instance string
	// RequestTimeout bounds every forwarded call.
	RequestTimeout time.Duration
	// SweepInterval is the TTL sweep period while leading.
	SweepInterval time.Duration
	Limits        storage.Limits
	// SecretGuard enables the secret-looking-value check on writes.
	SecretGuard bool
	// Shutdown is called when POST /shutdown arrives. Nil disables the route.
	Shutdown func()
	Logger   zerolog.Logger
}

// Status is served on GET /status and printed by `nudge status`.
type Status struct {
	Role     leader.Role         `json:"role"`
	Instance string              `json:"instance"`
	PID      int                 `json:"pid"`
	Port     int                 `json:"port,omitempty"`
	Leader   *lease.Lease        `json:"leader,omitempty"`
	Store    *storage.StoreStats `json:"store,omitempty"`
}

// Node implements leader.Host.
type Node struct {
	opts   Options
	router *router.Router
	served *router.Router // behind POST /, bound only once promoted
	log    zerolog.Logger

	mu        sync.Mutex // serialises role changes
	srv       *http.Server
	stopSweep context.CancelFunc
	sweepDone chan struct{}

	// Read by /health and /status while a role change drains the server.
	stateMu sync.RWMutex
	role    leader.Role
	store   *storage.Store
	port    int
	leader  *lease.Lease
}

var _ leader.Host = (*Node)(nil)

// New creates an unbound Node.
func New(opts Options) *Node {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Instance == "" {
		opts.Instance = uuid.NewString()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = rpc.DefaultTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = storage.DefaultSweepInterval
	}
	if opts.Limits == (storage.Limits{}) {
		opts.Limits = storage.DefaultLimits()
	}
	return &Node{
		opts:   opts,
		router: router.New(),
		served: router.New(),
		log:    opts.Logger.With().Str("component", "node").Logger(),
		role:   leader.RoleUnbound,
	}
}

// Handler returns the call surface for local transports.
func (n *Node) Handler() rpc.Handler { return n.router }

// Instance returns the id of this process.
func (n *Node) Instance() string { return n.opts.Instance }

// Lead answers health probes on ln. Calls stay refused until Promote.
func (n *Node) Lead(ln net.Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()

	port := ln.Addr().(*net.TCPAddr).Port
	n.srv = &http.Server{
		Handler: rpc.NewServer(n.served, rpc.ServerOptions{
			Health:   n.health,
			Status:   func() any { return n.Status() },
			Shutdown: n.opts.Shutdown,
			Logger:   n.opts.Logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := n.srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.log.Error().Err(err).Msg("serve")
		}
	}()
	n.setState(leader.RoleUnbound, nil, port, nil)
	n.log.Debug().Int("port", port).Msg("answering probes, claim pending")
}

// Promote creates a fresh store and starts accepting calls, locally and on
// the endpoint opened by Lead.
func (n *Node) Promote() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.srv == nil || n.stopSweep != nil {
		return
	}

	storeOpts := []storage.Option{
		storage.WithLimits(n.opts.Limits),
		storage.WithLogger(n.opts.Logger),
	}
	if !n.opts.SecretGuard {
		storeOpts = append(storeOpts, storage.WithGuard(guard.New(guard.WithSecretPredicate(nil))))
	}
	store := storage.New(storeOpts...)
	local := rpc.NewLocal(store)

	sweepCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		store.Run(sweepCtx, n.opts.SweepInterval)
	}()
	n.stopSweep = cancel
	n.sweepDone = done

	n.stateMu.RLock()
	port := n.port
	n.stateMu.RUnlock()
	n.setState(leader.RoleLeader, store, port, nil)
	n.served.Bind("local", local)
	n.router.Bind("local", local)
	n.log.Info().Int("port", port).Str("session", store.SessionID()).Msg("serving store")
}

// Follow forwards every call to the leader in l.
func (n *Node) Follow(l lease.Lease) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()

	client := rpc.NewClient(n.opts.Host, l.Port, n.opts.RequestTimeout)
	n.setState(leader.RoleFollower, nil, 0, &l)
	n.router.Bind(fmt.Sprintf("leader@%d", l.Port), client)
	n.log.Info().Str("leader", client.URL()).Msg("forwarding to leader")
}

// StepDown stops serving and leaves calls unrouted.
func (n *Node) StepDown() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
	n.setState(leader.RoleUnbound, nil, 0, nil)
	n.router.Unbind()
}

// stopLocked tears down leader state. The store is dropped with it.
func (n *Node) stopLocked() {
	if n.srv == nil {
		return
	}
	n.router.Unbind()
	n.served.Unbind()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.srv.Shutdown(ctx); err != nil {
		n.log.Warn().Err(err).Msg("server shutdown")
	}
	if n.stopSweep != nil {
		n.stopSweep()
		<-n.sweepDone
	}

	n.log.Info().Msg("stopped serving store")
	n.srv = nil
	n.stopSweep = nil
	n.sweepDone = nil
	n.setState(leader.RoleUnbound, nil, 0, nil)
}

func (n *Node) setState(role leader.Role, store *storage.Store, port int, l *lease.Lease) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	n.role = role
	n.store = store
	n.port = port
	n.leader = l
}

func (n *Node) health() rpc.Health {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	return rpc.Health{
		PID:      os.Getpid(),
		Instance: n.opts.Instance,
		Role:     string(n.role),
		Port:     n.port,
	}
}

// Status reports the role and, while leading, store statistics.
func (n *Node) Status() Status {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	st := Status{
		Role:     n.role,
		Instance: n.opts.Instance,
		PID:      os.Getpid(),
		Port:     n.port,
	}
	if n.leader != nil {
		l := *n.leader
		st.Leader = &l
	}
	if n.store != nil {
		stats := n.store.Stats()
		st.Store = &stats
	}
	return st
}

package leader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/dreamware/nudge/internal/lease"
	"github.com/dreamware/nudge/internal/rpc"
)

// Role is the position of this process in the election.
type Role string

const (
	RoleUnbound  Role = "unbound"
	RoleLeader   Role = "leader"
	RoleFollower Role = "follower"
)

// Host carries out role changes. Calls are made from the monitor goroutine
// one at a time.
type Host interface {
	// Lead starts answering health probes on ln without accepting calls.
	// The host owns ln from here on.
	Lead(ln net.Listener)
	// Promote makes the host authoritative after Lead: it creates the store
	// and starts accepting calls. Only called once the lease is ours.
	Promote()
	// Follow forwards every call to the leader recorded in l.
	Follow(l lease.Lease)
	// StepDown stops serving and drops any leader or follower binding.
	StepDown()
}

// Config tunes election and probing.
type Config struct {
	Host          string        // Interface to bind, normally 127.0.0.1
	Port          int           // First port tried; 0 binds an ephemeral port
	PortAttempts  int           // Successive ports tried on conflict
	ProbeInterval time.Duration // Time between checks
	ProbeTimeout  time.Duration // Bound on a single liveness probe
	MaxFailures   int           // Consecutive failed probes before re-election
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.PortAttempts <= 0 {
		c.PortAttempts = 10
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 2 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = time.Second
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 3
	}
	return c
}

// ProbeFunc checks that the leader recorded in l is serving.
type ProbeFunc func(ctx context.Context, l lease.Lease) error

// Status is a snapshot of the monitor state.
type Status struct {
	Role     Role         `json:"role"`
	Instance string       `json:"instance"`
	Leader   *lease.Lease `json:"leader,omitempty"`
	Since    time.Time    `json:"since"`
	Strikes  int          `json:"probe_failures"`
}

// Monitor runs the election for one process.
type Monitor struct {
	host     Host
	file     *lease.File
	cfg      Config
	instance string
	pid      int
	probe    ProbeFunc
	alive    func(pid int) bool
	listen   func(addr string) (net.Listener, error)
	log      zerolog.Logger
	ready    chan struct{}
	once     sync.Once

	mu      sync.RWMutex
	role    Role
	current *lease.Lease // lease being followed, or our own while leading
	since   time.Time
	strikes int
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInstance sets the instance id written to the lease. Defaults to a
// random UUID.
func WithInstance(id string) Option { return func(m *Monitor) { m.instance = id } }

// WithProbe replaces the HTTP liveness probe.
func WithProbe(p ProbeFunc) Option { return func(m *Monitor) { m.probe = p } }

// WithProcessCheck replaces the pid liveness check.
func WithProcessCheck(alive func(pid int) bool) Option {
	return func(m *Monitor) { m.alive = alive }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Monitor) { m.log = l.With().Str("component", "leader").Logger() }
}

// New creates a Monitor that reports role changes to host.
func New(host Host, file *lease.File, cfg Config, opts ...Option) *Monitor {
	m := &Monitor{
		host:     host,
		file:     file,
		cfg:      cfg.withDefaults(),
		instance: uuid.NewString(),
		pid:      os.Getpid(),
		alive:    lease.ProcessAlive,
		listen: func(addr string) (net.Listener, error) {
			return net.Listen("tcp", addr)
		},
		log:   zerolog.Nop(),
		role:  RoleUnbound,
		ready: make(chan struct{}),
	}
	m.probe = m.httpProbe(rpc.NewHTTPClient(m.cfg.ProbeTimeout))
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Instance returns the id this process records in the lease.
func (m *Monitor) Instance() string { return m.instance }

// Ready is closed once the first election has finished, whatever its
// outcome.
func (m *Monitor) Ready() <-chan struct{} { return m.ready }

// Role returns the current role.
func (m *Monitor) Role() Role {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.role
}

// Status returns a copy of the monitor state.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Status{Role: m.role, Instance: m.instance, Since: m.since, Strikes: m.strikes}
	if m.current != nil {
		l := *m.current
		s.Leader = &l
	}
	return s
}

// Run elects, then keeps the role current until ctx is cancelled. On exit a
// leader releases its lease so followers can take over without waiting for
// probes to fail.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.file.EnsureDir(); err != nil {
		return err
	}

	var wg conc.WaitGroup
	defer wg.Wait()
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	changed := m.watch(watchCtx, &wg)

	m.elect(ctx)
	m.once.Do(func() { close(m.ready) })

	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	m.log.Info().
		Str("instance", m.instance).
		Str("lease", m.file.Path()).
		Dur("interval", m.cfg.ProbeInterval).
		Msg("leadership monitor started")

	for {
		select {
		case <-ctx.Done():
			m.resign()
			return nil
		case <-ticker.C:
			m.check(ctx)
		case <-changed:
			m.check(ctx)
		}
	}
}

// check advances the state machine by one step.
func (m *Monitor) check(ctx context.Context) {
	switch m.Role() {
	case RoleUnbound:
		m.elect(ctx)
	case RoleLeader:
		m.reassert(ctx)
	case RoleFollower:
		m.probeLeader(ctx)
	}
}

// elect follows a valid recorded leader or tries to become leader.
func (m *Monitor) elect(ctx context.Context) {
	cur, err := m.file.Read()
	if err != nil && !errors.Is(err, lease.ErrNoLease) {
		m.log.Warn().Err(err).Msg("read lease")
	}
	if err == nil && cur.Instance != m.instance && m.valid(ctx, cur) {
		m.follow(cur)
		return
	}

	ln, port, err := m.bind()
	if err != nil {
		m.log.Warn().Err(err).Msg("no port available, staying unbound")
		m.host.StepDown()
		m.setUnbound()
		return
	}
	self := lease.Lease{PID: m.pid, Port: port, Instance: m.instance, StartedAt: time.Now().UTC()}
	m.host.Lead(ln)

	won, err := m.file.Claim(ctx, self, func(l lease.Lease) bool { return m.valid(ctx, l) })
	switch {
	case errors.Is(err, lease.ErrHeld):
		m.log.Info().Int("port", won.Port).Msg("lost lease race")
		m.host.StepDown()
		m.follow(won)
	case err != nil:
		m.log.Warn().Err(err).Msg("claim lease")
		m.host.StepDown()
		m.setUnbound()
	default:
		m.host.Promote()
		m.setRole(RoleLeader, &self)
		m.log.Info().Int("port", port).Msg("elected leader")
	}
}

// reassert keeps our lease on disk while leading.
func (m *Monitor) reassert(ctx context.Context) {
	self := m.Status().Leader
	if self == nil {
		m.elect(ctx)
		return
	}
	won, err := m.file.Claim(ctx, *self, func(l lease.Lease) bool { return m.valid(ctx, l) })
	switch {
	case errors.Is(err, lease.ErrHeld):
		m.log.Warn().Str("leader", won.Instance).Int("port", won.Port).Msg("lease taken over, stepping down")
		m.host.StepDown()
		m.follow(won)
	case err != nil:
		m.log.Warn().Err(err).Msg("reassert lease")
	}
}

// probeLeader checks the followed leader and counts strikes.
func (m *Monitor) probeLeader(ctx context.Context) {
	cur, err := m.file.Read()
	if err != nil {
		m.log.Info().Msg("lease gone, running election")
		m.elect(ctx)
		return
	}

	followed := m.Status().Leader
	if followed == nil || followed.Instance != cur.Instance {
		if m.valid(ctx, cur) {
			m.follow(cur)
		} else {
			m.elect(ctx)
		}
		return
	}

	if m.alive != nil && !m.alive(cur.PID) {
		m.log.Info().Int("pid", cur.PID).Msg("leader process exited")
		m.elect(ctx)
		return
	}

	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	err = m.probe(pctx, cur)
	cancel()
	if err == nil {
		m.resetStrikes()
		return
	}

	strikes := m.strike()
	m.log.Warn().Err(err).
		Int("attempt", strikes).
		Int("max", m.cfg.MaxFailures).
		Msg("leader probe failed")
	if strikes >= m.cfg.MaxFailures {
		m.elect(ctx)
	}
}

// valid reports whether l names a live, answering leader.
func (m *Monitor) valid(ctx context.Context, l lease.Lease) bool {
	if m.alive != nil && !m.alive(l.PID) {
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	return m.probe(pctx, l) == nil
}

func (m *Monitor) follow(l lease.Lease) {
	m.mu.Lock()
	same := m.role == RoleFollower && m.current != nil && m.current.Instance == l.Instance
	if !same {
		m.role = RoleFollower
		m.current = &l
		m.since = time.Now()
	}
	m.strikes = 0
	m.mu.Unlock()

	if !same {
		m.host.Follow(l)
		m.log.Info().Str("leader", l.Instance).Int("port", l.Port).Msg("following leader")
	}
}

// resign releases the lease if we hold it and stops serving.
func (m *Monitor) resign() {
	if m.Role() == RoleLeader {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ProbeTimeout)
		if _, err := m.file.Release(ctx, m.instance); err != nil {
			m.log.Warn().Err(err).Msg("release lease")
		}
		cancel()
	}
	m.host.StepDown()
	m.setRole(RoleUnbound, nil)
	m.log.Info().Msg("leadership monitor stopped")
}

// bind listens on the first free port starting at cfg.Port.
func (m *Monitor) bind() (net.Listener, int, error) {
	attempts := m.cfg.PortAttempts
	if m.cfg.Port == 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		port := m.cfg.Port
		if port != 0 {
			port += i
		}
		ln, err := m.listen(net.JoinHostPort(m.cfg.Host, strconv.Itoa(port)))
		if err != nil {
			lastErr = err
			m.log.Debug().Err(err).Int("port", port).Msg("port busy")
			continue
		}
		return ln, ln.Addr().(*net.TCPAddr).Port, nil
	}
	return nil, 0, fmt.Errorf("bind %s:%d-%d: %w", m.cfg.Host, m.cfg.Port, m.cfg.Port+attempts-1, lastErr)
}

// watch relays changes of the lease file. Without a watcher the monitor
// still works from the ticker alone.
func (m *Monitor) watch(ctx context.Context, wg *conc.WaitGroup) <-chan struct{} {
	changed := make(chan struct{}, 1)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		m.log.Warn().Err(err).Msg("lease watcher unavailable")
		return changed
	}
	if err := w.Add(filepath.Dir(m.file.Path())); err != nil {
		w.Close()
		m.log.Warn().Err(err).Msg("lease watcher unavailable")
		return changed
	}

	name := filepath.Base(m.file.Path())
	wg.Go(func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != name {
					continue
				}
				select {
				case changed <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				m.log.Debug().Err(err).Msg("lease watcher")
			}
		}
	})
	return changed
}

// httpProbe checks GET /health and that the answering process is the one
// named in the lease.
func (m *Monitor) httpProbe(client *http.Client) ProbeFunc {
	return func(ctx context.Context, l lease.Lease) error {
		h, err := rpc.Probe(ctx, client, m.cfg.Host, l.Port)
		if err != nil {
			return err
		}
		if l.Instance != "" && h.Instance != l.Instance {
			return fmt.Errorf("port %d answered by instance %q, lease names %q", l.Port, h.Instance, l.Instance)
		}
		return nil
	}
}

func (m *Monitor) setRole(r Role, current *lease.Lease) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.role != r {
		m.since = time.Now()
	}
	m.role = r
	m.current = current
	m.strikes = 0
}

func (m *Monitor) setUnbound() { m.setRole(RoleUnbound, nil) }

func (m *Monitor) strike() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strikes++
	return m.strikes
}

func (m *Monitor) resetStrikes() {
	m.mu.Lock()
	m.strikes = 0
	m.mu.Unlock()
}

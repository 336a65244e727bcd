package storage

import (
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"

	"github.com/dreamware/nudge/internal/guard"
	"github.com/dreamware/nudge/internal/hint"
	"github.com/dreamware/nudge/internal/rank"
	"github.com/dreamware/nudge/internal/ttl"
)

// DefaultSearchLimit applies when a search does not name a limit
const DefaultSearchLimit = 10

// Limits bounds the size of the store
// A zero field disables that bound
type Limits struct {
	MaxComponents       int // Distinct components
	MaxKeysPerComponent int // Keys within one component
	MaxTotalEntries     int // Entries across all components
}

// DefaultLimits returns the standard bounds of 500 components, 200 keys per
// component and 5000 entries overall
func DefaultLimits() Limits {
	return Limits{
		MaxComponents:       500,
		MaxKeysPerComponent: 200,
		MaxTotalEntries:     5000,
	}
}

// record pairs a stored entry with its parsed TTL rule
type record struct {
	entry *hint.Entry
	ttl   ttl.Rule
}

func (r *record) live(now time.Time) bool {
	return !r.ttl.Expired(r.entry.UpdatedAt, now)
}

// Store is the authoritative hint store held by the leader
// All methods are safe for concurrent use; mutations take an exclusive lock
// and reads share a read lock, so no reader sees a half-written entry
type Store struct {
	mu         sync.RWMutex                  // Protects components and total
	components map[string]map[string]*record // component -> key -> record
	total      int                           // Entries across all components, expired included

	limits    Limits
	clock     Clock
	guard     *guard.Guard
	log       zerolog.Logger
	sessionID string
	startedAt time.Time
	ops       counters
}

// Option configures a Store
type Option func(*Store)

// WithLimits sets the size bounds
func WithLimits(l Limits) Option { return func(s *Store) { s.limits = l } }

// WithClock sets the time source
func WithClock(c Clock) Option { return func(s *Store) { s.clock = c } }

// WithGuard sets the secret and path policy
func WithGuard(g *guard.Guard) Option { return func(s *Store) { s.guard = g } }

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l.With().Str("component", "store").Logger() }
}

// WithSessionID fixes the session identifier reported by exports
func WithSessionID(id string) Option { return func(s *Store) { s.sessionID = id } }

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		components: make(map[string]map[string]*record),
		limits:     DefaultLimits(),
		clock:      SystemClock{},
		guard:      guard.New(),
		log:        zerolog.Nop(),
		sessionID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.clock.Now()
	return s
}

// SessionID returns the identifier of this store instance
func (s *Store) SessionID() string { return s.sessionID }

// UpsertRequest carries the arguments of an upsert
type UpsertRequest struct {
	Component       string
	Key             string
	Value           hint.Value
	Meta            hint.Meta
	ExpectedVersion *int64 // nil skips the check; 0 requires the key to be absent
	AllowSecret     bool   // Honoured only together with sensitivity=secret
}

// prepared is an upsert that passed every stateless check
type prepared struct {
	req  UpsertRequest
	rule ttl.Rule
}

// prepare runs the stateless checks in order: shape, secret, then paths
func (s *Store) prepare(req UpsertRequest) (prepared, error) {
	if req.Component == "" {
		return prepared{}, hint.FieldError(hint.CodeInvalid, "component", "component is required")
	}
	if req.Key == "" {
		return prepared{}, hint.FieldError(hint.CodeInvalid, "key", "key is required")
	}
	if err := req.Value.Validate(); err != nil {
		return prepared{}, err
	}
	if err := req.Meta.Validate(); err != nil {
		return prepared{}, err
	}
	rule, err := ttl.Parse(req.Meta.TTL)
	if err != nil {
		return prepared{}, err
	}
	if err := s.guard.CheckSecret(req.Value, req.Meta, req.AllowSecret); err != nil {
		return prepared{}, err
	}
	v, err := s.guard.NormalizeValue(req.Value)
	if err != nil {
		return prepared{}, err
	}
	if err := s.guard.CheckScope(req.Meta.Scope); err != nil {
		return prepared{}, err
	}
	req.Value = v.Clone()
	req.Meta = req.Meta.Clone()
	return prepared{req: req, rule: rule}, nil
}

// Upsert creates or replaces the entry at (component, key)
// On update the creation time, use count and last-used time carry over and
// the version grows by one; a new entry starts at version 1
func (s *Store) Upsert(req UpsertRequest) (*hint.Entry, error) {
	p, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, _, err := s.upsertLocked(p, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.ops.upserts.Add(1)
	return rec.entry.Clone(), nil
}

// upsertLocked applies a prepared upsert and reports whether it created
// the entry. Callers hold s.mu
func (s *Store) upsertLocked(p prepared, now time.Time) (*record, bool, error) {
	req := p.req
	comp := s.components[req.Component]
	existing := comp[req.Key]
	if existing != nil && !existing.live(now) {
		// Expired but not yet swept: treat as absent
		s.dropLocked(req.Component, req.Key)
		comp = s.components[req.Component]
		existing = nil
	}

	if req.ExpectedVersion != nil {
		var current int64
		if existing != nil {
			current = existing.entry.Version
		}
		if *req.ExpectedVersion != current {
			s.ops.conflicts.Add(1)
			return nil, false, hint.VersionConflict(*req.ExpectedVersion, current)
		}
	}

	if existing != nil {
		e := existing.entry
		e.Value = req.Value
		e.Meta = req.Meta
		e.Version++
		e.UpdatedAt = now
		existing.ttl = p.rule
		return existing, false, nil
	}

	if err := s.checkQuotaLocked(req.Component, now); err != nil {
		return nil, false, err
	}
	comp = s.components[req.Component]
	if comp == nil {
		comp = make(map[string]*record)
		s.components[req.Component] = comp
	}
	rec := &record{
		entry: &hint.Entry{
			Component: req.Component,
			Key:       req.Key,
			Value:     req.Value,
			Meta:      req.Meta,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		},
		ttl: p.rule,
	}
	comp[req.Key] = rec
	s.total++
	return rec, true, nil
}

// checkQuotaLocked is consulted only when a new key is about to be created.
// Expired entries keep their slots until swept, so a limit that looks
// reached is re-checked after evicting them.
func (s *Store) checkQuotaLocked(component string, now time.Time) error {
	err := s.quotaLocked(component)
	if err == nil || s.sweepLocked(now) == 0 {
		return err
	}
	return s.quotaLocked(component)
}

func (s *Store) quotaLocked(component string) error {
	comp := s.components[component]
	l := s.limits
	if comp == nil && l.MaxComponents > 0 && len(s.components) >= l.MaxComponents {
		return hint.QuotaExceeded(hint.QuotaCauseComponent, l.MaxComponents)
	}
	if l.MaxKeysPerComponent > 0 && len(comp) >= l.MaxKeysPerComponent {
		return hint.QuotaExceeded(hint.QuotaCauseKey, l.MaxKeysPerComponent)
	}
	if l.MaxTotalEntries > 0 && s.total >= l.MaxTotalEntries {
		return hint.QuotaExceeded(hint.QuotaCauseTotal, l.MaxTotalEntries)
	}
	return nil
}

// dropLocked deletes one entry and its component once empty
func (s *Store) dropLocked(component, key string) {
	comp := s.components[component]
	if _, ok := comp[key]; !ok {
		return
	}
	delete(comp, key)
	s.total--
	if len(comp) == 0 {
		delete(s.components, component)
	}
}

// getLocked returns the live record at (component, key) or nil
func (s *Store) getLocked(component, key string, now time.Time) *record {
	rec := s.components[component][key]
	if rec == nil || !rec.live(now) {
		return nil
	}
	return rec
}

// Lookup scores the single entry at (component, key) against ctx
// An entry whose scope rejects ctx is still returned, with Matched false
// and a zero score; only a missing or expired entry is NOT_FOUND
func (s *Store) Lookup(component, key string, ctx hint.Context) (hint.Match, error) {
	s.ops.lookups.Add(1)
	now := s.clock.Now()

	s.mu.RLock()
	rec := s.getLocked(component, key, now)
	var e *hint.Entry
	if rec != nil {
		e = rec.entry.Clone()
	}
	s.mu.RUnlock()

	if e == nil {
		return hint.Match{}, hint.NotFound(component, key)
	}
	return rank.Score(e, ctx, now), nil
}

// SearchQuery filters a search
// Every non-empty filter must hold; Tags matches entries carrying any of
// the listed tags and Pattern is a regular expression over the value text
type SearchQuery struct {
	Component string
	Keys      []string
	Tags      []string
	Pattern   string
	Context   hint.Context
	Limit     int
}

// Search returns the top eligible entries for q, best first
func (s *Store) Search(q SearchQuery) ([]hint.Match, error) {
	var re *regexp.Regexp
	if q.Pattern != "" {
		var err error
		if re, err = regexp.Compile(q.Pattern); err != nil {
			return nil, hint.FieldError(hint.CodeInvalid, "pattern", "invalid pattern: %v", err)
		}
	}
	if q.Limit < 0 {
		return nil, hint.FieldError(hint.CodeInvalid, "limit", "limit must be positive")
	}
	limit := q.Limit
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	s.ops.searches.Add(1)
	now := s.clock.Now()

	var candidates []*hint.Entry
	s.mu.RLock()
	for name, comp := range s.components {
		if q.Component != "" && name != q.Component {
			continue
		}
		for key, rec := range comp {
			if !rec.live(now) {
				continue
			}
			if len(q.Keys) > 0 && !slices.Contains(q.Keys, key) {
				continue
			}
			e := rec.entry
			if len(q.Tags) > 0 && !slices.ContainsFunc(q.Tags, e.Meta.HasTag) {
				continue
			}
			if re != nil && !re.MatchString(e.Value.SearchText()) {
				continue
			}
			candidates = append(candidates, e.Clone())
		}
	}
	s.mu.RUnlock()

	matches := make([]hint.Match, 0, len(candidates))
	for _, e := range candidates {
		if m := rank.Score(e, q.Context, now); m.Explain.Matched {
			matches = append(matches, m)
		}
	}
	rank.Sort(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Remove deletes the entry at (component, key) and returns it
func (s *Store) Remove(component, key string) (*hint.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getLocked(component, key, s.clock.Now())
	if rec == nil {
		return nil, hint.NotFound(component, key)
	}
	s.dropLocked(component, key)
	s.ops.removes.Add(1)
	return rec.entry.Clone(), nil
}

// Reinforce records delta uses of the entry and stamps its last-used time
// Reinforcement is usage bookkeeping, so the version does not change
func (s *Store) Reinforce(component, key string, delta int64) (*hint.Entry, error) {
	if delta < 1 {
		return nil, hint.FieldError(hint.CodeInvalid, "delta", "delta must be at least 1, got %d", delta)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	rec := s.getLocked(component, key, now)
	if rec == nil {
		return nil, hint.NotFound(component, key)
	}
	rec.entry.UseCount += delta
	rec.entry.LastUsedAt = &now
	s.ops.reinforces.Add(1)
	return rec.entry.Clone(), nil
}

// ComponentInfo summarises one component
type ComponentInfo struct {
	Name       string `json:"name"`
	EntryCount int    `json:"hint_count"`
}

// Enumerate lists every component holding live entries, sorted by name
func (s *Store) Enumerate() []ComponentInfo {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ComponentInfo, 0, len(s.components))
	for name, comp := range s.components {
		n := 0
		for _, rec := range comp {
			if rec.live(now) {
				n++
			}
		}
		if n > 0 {
			out = append(out, ComponentInfo{Name: name, EntryCount: n})
		}
	}
	slices.SortFunc(out, func(a, b ComponentInfo) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

// Stats returns storage statistics
func (s *Store) Stats() StoreStats {
	info := s.Enumerate()
	entries := 0
	for _, c := range info {
		entries += c.EntryCount
	}
	return StoreStats{
		SessionID:  s.sessionID,
		StartedAt:  s.startedAt,
		Components: len(info),
		Entries:    entries,
		Ops:        s.ops.snapshot(),
	}
}

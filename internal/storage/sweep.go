package storage

import (
	"context"
	"time"
)

// DefaultSweepInterval is how often Run evicts expired entries
const DefaultSweepInterval = 30 * time.Second

// sweep removes every entry past its effective expiry and returns how many
// were evicted. Session-scoped and TTL-less entries are never evicted.
func (s *Store) sweep() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

// sweepLocked evicts entries expired at now. Callers hold s.mu
func (s *Store) sweepLocked(now time.Time) int {
	evicted := 0
	for name, comp := range s.components {
		for key, rec := range comp {
			if rec.live(now) {
				continue
			}
			s.dropLocked(name, key)
			evicted++
			s.log.Debug().
				Str("hint_component", name).
				Str("key", key).
				Str("ttl", rec.ttl.String()).
				Msg("evicted expired hint")
		}
	}
	if evicted > 0 {
		s.ops.evictions.Add(uint64(evicted))
	}
	return evicted
}

// Run sweeps expired entries every interval until ctx is cancelled
// It blocks, so callers start it in its own goroutine
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Debug().Dur("interval", interval).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("sweeper stopped")
			return
		case <-ticker.C:
			if n := s.sweep(); n > 0 {
				s.log.Info().Int("evicted", n).Msg("ttl sweep")
			}
		}
	}
}

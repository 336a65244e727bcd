package storage

import (
	"sync/atomic"
	"time"
)

// OperationStats tracks operation counts
type OperationStats struct {
	Upserts    uint64 `json:"upserts"`    // Successful upserts
	Lookups    uint64 `json:"lookups"`    // Lookup calls
	Searches   uint64 `json:"searches"`   // Search calls
	Removes    uint64 `json:"removes"`    // Successful removes
	Reinforces uint64 `json:"reinforces"` // Successful reinforcements
	Exports    uint64 `json:"exports"`    // Export calls
	Imports    uint64 `json:"imports"`    // Import calls that passed the schema check
	Evictions  uint64 `json:"evictions"`  // Entries removed by the sweeper
	Conflicts  uint64 `json:"conflicts"`  // Upserts rejected on version mismatch
}

// StoreStats contains statistics about the store
type StoreStats struct {
	SessionID  string         `json:"session_id"`  // Identifier of this store instance
	StartedAt  time.Time      `json:"started_at"`  // When the store was created
	Components int            `json:"components"`  // Live components
	Entries    int            `json:"entries"`     // Live entries
	Ops        OperationStats `json:"ops"`         // Operation counters
}

type counters struct {
	upserts, lookups, searches, removes, reinforces atomic.Uint64
	exports, imports, evictions, conflicts          atomic.Uint64
}

func (c *counters) snapshot() OperationStats {
	return OperationStats{
		Upserts:    c.upserts.Load(),
		Lookups:    c.lookups.Load(),
		Searches:   c.searches.Load(),
		Removes:    c.removes.Load(),
		Reinforces: c.reinforces.Load(),
		Exports:    c.exports.Load(),
		Imports:    c.imports.Load(),
		Evictions:  c.evictions.Load(),
		Conflicts:  c.conflicts.Load(),
	}
}

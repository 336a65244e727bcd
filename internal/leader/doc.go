// Package leader decides, per process, whether this process owns the store
// or forwards to the process that does.
//
// # Roles
//
//	            no lease / stale lease
//	  UNBOUND ─────────────────────────────► LEADER
//	     │                                     ▲  │
//	     │ lease answers probe                 │  │ another live leader
//	     ▼                                     │  ▼ holds the lease
//	  FOLLOWER ──── probe fails MaxFailures ───┘  FOLLOWER
//	               times, or lease vanishes
//
// A Monitor performs the first election synchronously from Run, then
// re-checks on every ProbeInterval tick and whenever the lease file
// changes on disk (fsnotify on the lease directory).
//
// # Election
//
//  1. Read the lease. If it names another instance that is alive and answers
//     its /health probe with the same instance id, follow it.
//  2. Otherwise bind the configured port, moving up one port at a time on
//     conflict, and answer health probes on it (Host.Lead). Calls are still
//     refused with UNAVAILABLE.
//  3. Claim the lease under its advisory lock. If another instance won the
//     race in the meantime, stop serving (Host.StepDown) and follow the
//     winner. Otherwise create the store and accept calls (Host.Promote).
//
// Health is answered before the claim so that a competing claimer probing
// the freshly written lease always gets an answer. No call is accepted
// until the claim succeeds, so a lost race never drops an acknowledged
// write.
//
// # Failure detection
//
// Followers probe the leader each tick. A dead pid triggers an election
// immediately; a live pid that does not answer counts a strike and the
// election happens after MaxFailures consecutive strikes. Calls forwarded
// during that window fail with a retryable UNAVAILABLE error.
//
// A leader re-asserts its lease each tick. A deleted lease is rewritten; a
// lease taken over by another live leader makes it step down and follow.
//
// This is best-effort single-writer coordination over a local file, not
// consensus. Two leaders can coexist for at most one tick after a lease is
// deleted out from under a healthy leader.
//
// # Usage
//
//	m := leader.New(host, lease.NewFile(lease.DefaultPath()), leader.Config{Port: 8765})
//	if err := m.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package leader

// Package lease stores the record that names the current leader.
//
// The lease is a small JSON document at a fixed per-OS path:
//
//	{"pid": 4242, "port": 8765, "instance": "3f1c...", "started": "2025-06-01T10:00:00Z"}
//
// It is the only state shared between processes and it is disposable:
// deleting it forces a new election and nothing else is lost.
//
// # Claiming
//
// Claim serialises competing writers with an advisory lock on a sibling
// file (<path>.lock). Under that lock the current record is read and handed
// to a caller-supplied validity check; the claim succeeds only when there is
// no record, the record is ours, or the check rejects it. The record itself
// is written to a temporary file and renamed into place so readers never
// see a torn document.
//
// The lock only orders claims. Readers do not take it, and a leader that
// dies without releasing simply leaves a stale record for the next claimer
// to overwrite.
//
// # Locations
//
//	linux, darwin   /tmp/nudge/server.pid
//	windows         %LOCALAPPDATA%\nudge\server.pid
package lease

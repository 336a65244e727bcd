// Package rpc defines the nudge call surface and carries it over the
// loopback network endpoint.
//
// # Call surface
//
// Handler is the eight-method interface every transport speaks:
//
//	nudge.set_hint         SetHint        upsert one entry
//	nudge.get_hint         GetHint        score one entry against a context
//	nudge.query            Query          ranked search
//	nudge.delete_hint      DeleteHint     remove one entry
//	nudge.list_components  ListComponents component names and live counts
//	nudge.bump             Bump           record usage
//	nudge.export           Export         portable snapshot
//	nudge.import           Import         merge or replace from a snapshot
//
// Local implements Handler directly over a storage.Store and is what the
// leader routes to. Client implements Handler by forwarding every call to the
// leader's endpoint, which is what a follower routes to. Because both share
// the same parameter and result types, a forwarded call returns exactly what
// a local call would.
//
// # Wire protocol
//
// The endpoint binds to 127.0.0.1 and speaks JSON-RPC 2.0 over HTTP:
//
//	POST /          JSON-RPC request → response
//	GET  /health    {"status":"ok","pid":...,"instance":...,"role":...,"port":...}
//	GET  /status    role, lease and store statistics
//	POST /shutdown  asks the process to exit
//
// Business errors travel as JSON-RPC errors whose numeric code is
// hint.Code.RPCCode and whose data carries the symbolic code and offending
// field, so Client rebuilds the same *hint.Error the leader produced.
//
// # Failure handling
//
// Client never retries. A connection failure, timeout or non-200 response
// becomes a hint.CodeUnavailable error, which is the only retryable code;
// callers can therefore tell "rejected by policy" from "leader unreachable".
package rpc

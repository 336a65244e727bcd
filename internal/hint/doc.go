// Package hint defines the data model shared by every layer of nudge: the
// stored Entry and its Value and Meta, the Scope an entry is restricted to,
// the caller Context that scope is evaluated against, and the error taxonomy
// surfaced to callers on both transports.
//
// # Entries
//
// An Entry is keyed by (component, key). Exactly one live entry exists per
// pair. The Version counter starts at 1 and grows by one on every successful
// mutation of the pair; UseCount and LastUsedAt only change through
// reinforcement, never through reads.
//
// # Values
//
// A Value is one of five kinds:
//
//	string    "make build"
//	command   {"type":"command","cmd":"make build","shell":"bash"}
//	path      {"type":"path","abs":"/opt/tools/bin"}
//	template  {"type":"template","format":"mustache","body":"..."}
//	json      {"type":"json","data":{...}}
//
// A plain JSON string decodes to the string kind; objects are discriminated by
// their "type" field.
//
// # Errors
//
// Every business failure is an *Error carrying a Code. Callers branch on the
// code with IsCode, and on IsRetryable to tell "rejected by policy" apart from
// "leader unreachable".
package hint

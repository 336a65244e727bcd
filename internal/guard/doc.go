// Package guard holds the safety predicates applied to a hint before it is
// stored: the secret detector and the path and glob validators.
//
// The secret detector is pluggable. A Guard is built with a SecretPredicate
// (DefaultDetector unless overridden) and the store consults it on every
// upsert. A value that looks like a credential is rejected with
// SECRET_REJECTED unless the caller both marks the hint sensitivity=secret
// and passes the explicit override. Rejections name the offending field and
// the pattern that fired, never the value.
//
// Path values must be absolute and free of ".." segments; they are cleaned
// before storage. cwd_glob patterns must be well formed, at most 500
// characters, and free of ".." segments. Both failures surface as
// SCOPE_INVALID.
package guard

// Package ttl parses hint lifetime expressions.
//
// A TTL is either empty (the entry never expires), the sentinel "session"
// (the entry lives as long as the leader process that holds it), or an
// ISO-8601 duration such as "PT2H" or "P1DT30M". Expiry is measured from
// the entry's last update.
package ttl

import (
	"strings"
	"time"

	"github.com/sosodev/duration"

	"github.com/dreamware/nudge/internal/hint"
)

// Session is the sentinel expression for process-lifetime entries.
const Session = "session"

// Rule is a parsed TTL expression.
type Rule struct {
	expr     string
	session  bool
	duration time.Duration
	bounded  bool
}

// Parse converts a TTL expression into a Rule. Unparseable or negative
// durations fail with an INVALID error naming meta.ttl.
func Parse(expr string) (Rule, error) {
	expr = strings.TrimSpace(expr)
	switch {
	case expr == "":
		return Rule{}, nil
	case strings.EqualFold(expr, Session):
		return Rule{expr: Session, session: true}, nil
	}

	d, err := duration.Parse(strings.ToUpper(expr))
	if err != nil {
		return Rule{}, hint.FieldError(hint.CodeInvalid, "meta.ttl", "invalid ttl %q: expected %q or an ISO-8601 duration", expr, Session)
	}
	if d.Negative {
		return Rule{}, hint.FieldError(hint.CodeInvalid, "meta.ttl", "ttl %q must not be negative", expr)
	}
	return Rule{expr: expr, duration: d.ToTimeDuration(), bounded: true}, nil
}

// MustParse is Parse for expressions known to be valid. It panics otherwise.
func MustParse(expr string) Rule {
	r, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the expression the rule was parsed from.
func (r Rule) String() string { return r.expr }

// IsSession reports whether the rule is the session sentinel.
func (r Rule) IsSession() bool { return r.session }

// Duration returns the lifetime and whether the rule has one at all.
func (r Rule) Duration() (time.Duration, bool) { return r.duration, r.bounded }

// ExpiresAt returns the instant an entry updated at updated stops being
// live. ok is false for rules that never expire.
func (r Rule) ExpiresAt(updated time.Time) (at time.Time, ok bool) {
	if !r.bounded {
		return time.Time{}, false
	}
	return updated.Add(r.duration), true
}

// Expired reports whether an entry last updated at updated is past its
// lifetime at now. The boundary instant counts as expired.
func (r Rule) Expired(updated, now time.Time) bool {
	at, ok := r.ExpiresAt(updated)
	return ok && !now.Before(at)
}

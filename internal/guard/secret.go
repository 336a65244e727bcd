package guard

import "regexp"

// SecretPredicate inspects text and reports the name of the first secret
// pattern it recognises.
type SecretPredicate interface {
	Detect(text string) (pattern string, found bool)
}

// SecretPredicateFunc adapts a function to SecretPredicate.
type SecretPredicateFunc func(text string) (string, bool)

func (f SecretPredicateFunc) Detect(text string) (string, bool) { return f(text) }

// PatternDetector matches text against a list of named regular expressions.
type PatternDetector struct {
	patterns []namedPattern
}

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

// NewPatternDetector compiles the given name→expression pairs, in order.
func NewPatternDetector(pairs ...[2]string) (*PatternDetector, error) {
	d := &PatternDetector{}
	for _, p := range pairs {
		re, err := regexp.Compile(p[1])
		if err != nil {
			return nil, err
		}
		d.patterns = append(d.patterns, namedPattern{name: p[0], re: re})
	}
	return d, nil
}

var defaultPatterns = [][2]string{
	{"aws-access-key", `AKIA[0-9A-Z]{16}`},
	{"hex-api-key", `\b[0-9a-fA-F]{32,64}\b`},
	{"jwt", `\beyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`},
	{"private-key", `-----BEGIN [A-Z ]+ PRIVATE KEY-----`},
	{"password-assignment", `(?:password|passwd|pwd|secret|token)\s*[:=]\s*['"]?[\w\-.@]{8,}`},
	{"connection-string", `(?i)(?:mongodb|postgres|mysql|redis)://[^:]+:[^@]+@`},
}

// DefaultDetector returns the built-in credential detector.
func DefaultDetector() *PatternDetector {
	d, err := NewPatternDetector(defaultPatterns...)
	if err != nil {
		panic(err)
	}
	return d
}

// Detect implements SecretPredicate.
func (d *PatternDetector) Detect(text string) (string, bool) {
	for _, p := range d.patterns {
		if p.re.MatchString(text) {
			return p.name, true
		}
	}
	return "", false
}

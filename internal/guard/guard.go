package guard

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/exp/slices"

	"github.com/dreamware/nudge/internal/hint"
)

// MaxGlobLength bounds the size of a single cwd_glob pattern.
const MaxGlobLength = 500

// Guard applies the secret and path policies to incoming hints.
type Guard struct {
	secrets SecretPredicate
}

// Option configures a Guard.
type Option func(*Guard)

// WithSecretPredicate replaces the secret detector. A nil predicate
// disables secret detection.
func WithSecretPredicate(p SecretPredicate) Option {
	return func(g *Guard) { g.secrets = p }
}

// New returns a Guard using DefaultDetector unless overridden.
func New(opts ...Option) *Guard {
	g := &Guard{secrets: DefaultDetector()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckSecret rejects values that look like credentials. The check is
// skipped only when allowSecret is set and the hint is declared secret.
func (g *Guard) CheckSecret(v hint.Value, meta hint.Meta, allowSecret bool) error {
	if g.secrets == nil {
		return nil
	}
	if allowSecret && meta.Sensitivity == hint.SensitivitySecret {
		return nil
	}
	for _, f := range scanFields(v) {
		if name, found := g.secrets.Detect(f.text); found {
			return &hint.Error{
				Code:    hint.CodeSecretRejected,
				Field:   f.name,
				Message: "value looks like a secret; set sensitivity=secret and allow_secret to store it",
				Data:    map[string]any{"pattern": name},
			}
		}
	}
	return nil
}

type scanField struct {
	name string
	text string
}

func scanFields(v hint.Value) []scanField {
	switch v.Kind {
	case hint.KindCommand:
		return []scanField{{"value.cmd", v.Cmd}}
	case hint.KindPath:
		return []scanField{{"value.abs", v.Abs}}
	case hint.KindTemplate:
		fields := []scanField{{"value.body", v.Body}}
		keys := make([]string, 0, len(v.Defaults))
		for k := range v.Defaults {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fields = append(fields, scanField{"value.defaults." + k, v.Defaults[k]})
		}
		return fields
	case hint.KindJSON:
		return []scanField{{"value.data", v.SearchText()}}
	default:
		return []scanField{{"value", v.Text}}
	}
}

// NormalizeValue validates and cleans the path carried by a path value.
// Other kinds are returned unchanged.
func (g *Guard) NormalizeValue(v hint.Value) (hint.Value, error) {
	if v.Kind != hint.KindPath {
		return v, nil
	}
	clean, err := ValidatePath(v.Abs)
	if err != nil {
		return v, err
	}
	v.Abs = clean
	return v, nil
}

// CheckScope validates every cwd_glob pattern of scope.
func (g *Guard) CheckScope(scope *hint.Scope) error {
	if scope == nil {
		return nil
	}
	for _, p := range scope.CwdGlob {
		if err := ValidateGlob(p); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePath requires an absolute path without ".." segments and returns
// it cleaned.
func ValidatePath(p string) (string, error) {
	if p == "" {
		return "", hint.FieldError(hint.CodeScopeInvalid, "value.abs", "path must not be empty")
	}
	if hasTraversal(p) {
		return "", hint.FieldError(hint.CodeScopeInvalid, "value.abs", "path traversal (..) not allowed")
	}
	if !isAbs(p) {
		return "", hint.FieldError(hint.CodeScopeInvalid, "value.abs", "path must be absolute")
	}
	return filepath.Clean(p), nil
}

// ValidateGlob checks a cwd_glob pattern for syntax, length and traversal.
func ValidateGlob(p string) error {
	const field = "meta.scope.cwd_glob"
	switch {
	case p == "":
		return hint.FieldError(hint.CodeScopeInvalid, field, "glob pattern must not be empty")
	case len(p) > MaxGlobLength:
		return hint.FieldError(hint.CodeScopeInvalid, field, "glob pattern too long (max %d characters)", MaxGlobLength)
	case hasTraversal(p):
		return hint.FieldError(hint.CodeScopeInvalid, field, "glob pattern must not contain ..")
	case !doublestar.ValidatePattern(filepath.ToSlash(p)):
		return hint.FieldError(hint.CodeScopeInvalid, field, "malformed glob pattern")
	}
	return nil
}

func hasTraversal(p string) bool {
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

// isAbs accepts host-absolute paths plus POSIX and drive-letter forms.
func isAbs(p string) bool {
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return true
	}
	return len(p) >= 3 && isLetter(p[0]) && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}

func isLetter(b byte) bool {
	return ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// Sanitize renders text for display. Secret text keeps only its first and
// last four characters.
func Sanitize(text string, secret bool) string {
	if !secret {
		return text
	}
	r := []rune(text)
	if len(r) <= 8 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:4]) + strings.Repeat("*", len(r)-8) + string(r[len(r)-4:])
}

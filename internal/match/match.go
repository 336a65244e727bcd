// Package match decides whether a hint's scope applies to a caller context.
//
// Eligibility is the conjunction of every declared scope clause. A clause
// that needs a context field the caller did not supply fails; clauses the
// scope does not declare impose nothing. Evaluation is pure and does not
// touch the store.
package match

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/exp/slices"

	"github.com/dreamware/nudge/internal/hint"
)

// Result is the outcome of evaluating a scope. Reasons lists every clause
// that passed when Eligible is true, or the first clause that failed.
type Result struct {
	Eligible bool
	Reasons  []string
}

// Evaluate checks scope against ctx.
func Evaluate(scope *hint.Scope, ctx hint.Context) Result {
	if scope.Empty() {
		return Result{Eligible: true, Reasons: []string{"no scope constraints"}}
	}

	var reasons []string
	fail := func(format string, args ...any) Result {
		return Result{Eligible: false, Reasons: []string{fmt.Sprintf(format, args...)}}
	}

	if len(scope.CwdGlob) > 0 {
		if ctx.Cwd == "" {
			return fail("cwd_glob requires cwd in context")
		}
		pattern, ok := matchCwd(scope.CwdGlob, ctx.Cwd)
		if !ok {
			return fail("cwd %s does not match %s", ctx.Cwd, strings.Join(scope.CwdGlob, ", "))
		}
		reasons = append(reasons, "cwd matches "+pattern)
	}

	if len(scope.Repo) > 0 {
		if ctx.Repo == "" {
			return fail("repo scope requires repo in context")
		}
		if !scope.Repo.Contains(ctx.Repo) {
			return fail("repo %s not in scope", ctx.Repo)
		}
		reasons = append(reasons, "repo matches")
	}

	if len(scope.Branch) > 0 {
		if ctx.Branch == "" {
			return fail("branch scope requires branch in context")
		}
		pattern, ok := matchBranch(scope.Branch, ctx.Branch)
		if !ok {
			return fail("branch %s not in [%s]", ctx.Branch, strings.Join(scope.Branch, ", "))
		}
		reasons = append(reasons, fmt.Sprintf("branch matches %s", pattern))
	}

	if len(scope.OS) > 0 {
		if ctx.OS == "" {
			return fail("os scope requires os in context")
		}
		os := strings.ToLower(ctx.OS)
		if !slices.ContainsFunc(scope.OS, func(o string) bool { return strings.ToLower(o) == os }) {
			return fail("os %s not in [%s]", os, strings.Join(scope.OS, ", "))
		}
		reasons = append(reasons, "os is "+os)
	}

	for _, name := range scope.EnvRequired {
		if _, ok := ctx.Env[name]; !ok {
			return fail("required env var %s not set", name)
		}
		reasons = append(reasons, "env "+name+" present")
	}

	for _, name := range sortedKeys(scope.EnvMatch) {
		val, ok := ctx.Env[name]
		if !ok {
			return fail("env var %s not set", name)
		}
		if !scope.EnvMatch[name].Contains(val) {
			return fail("env %s=%s not in allowed values", name, val)
		}
		reasons = append(reasons, fmt.Sprintf("env %s=%s", name, val))
	}

	return Result{Eligible: true, Reasons: reasons}
}

// Specificity counts the populated clauses of scope. The cwd, repo, branch
// and os clauses count once each; every variable named by env_required or
// env_match counts once.
func Specificity(scope *hint.Scope) int {
	if scope == nil {
		return 0
	}
	n := 0
	for _, populated := range []bool{
		len(scope.CwdGlob) > 0,
		len(scope.Repo) > 0,
		len(scope.Branch) > 0,
		len(scope.OS) > 0,
	} {
		if populated {
			n++
		}
	}
	seen := make(map[string]bool, len(scope.EnvRequired)+len(scope.EnvMatch))
	for _, name := range scope.EnvRequired {
		seen[name] = true
	}
	for name := range scope.EnvMatch {
		seen[name] = true
	}
	return n + len(seen)
}

func matchCwd(patterns []string, cwd string) (string, bool) {
	cwd = filepath.ToSlash(cwd)
	for _, p := range patterns {
		p = filepath.ToSlash(p)
		if ok, err := doublestar.Match(p, cwd); err == nil && ok {
			return p, true
		}
	}
	return "", false
}

// matchBranch supports exact names and a single trailing wildcard, so
// "hotfix/*" matches "hotfix/login" and "release*" matches "release-1.2".
func matchBranch(patterns []string, branch string) (string, bool) {
	for _, p := range patterns {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(branch, prefix) {
				return p, true
			}
			continue
		}
		if p == branch {
			return p, true
		}
	}
	return "", false
}

func sortedKeys(m map[string]hint.StringSet) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

package main

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/dreamware/nudge/internal/hint"
)

// gitTimeout bounds each git invocation during context detection.
const gitTimeout = 2 * time.Second

// contextFlags lets the user override or disable detection.
type contextFlags struct {
	none   bool
	cwd    string
	repo   string
	branch string
	os     string
	files  []string
}

// detectContext describes the shell nudge runs in: working directory, OS,
// git repository and branch, and the environment.
func detectContext(ctx context.Context, f contextFlags) *hint.Context {
	if f.none {
		return nil
	}
	c := &hint.Context{
		Cwd:       f.cwd,
		Repo:      f.repo,
		Branch:    f.branch,
		OS:        f.os,
		Env:       environ(),
		FilesOpen: f.files,
	}
	if c.Cwd == "" {
		c.Cwd, _ = os.Getwd()
	}
	if c.OS == "" {
		c.OS = runtime.GOOS
	}
	if c.Repo == "" {
		c.Repo = detectRepo(ctx, c.Cwd)
	}
	if c.Branch == "" {
		c.Branch = git(ctx, c.Cwd, "rev-parse", "--abbrev-ref", "HEAD")
		if c.Branch == "HEAD" {
			c.Branch = ""
		}
	}
	return c
}

// detectRepo prefers the origin URL and falls back to the toplevel path.
func detectRepo(ctx context.Context, dir string) string {
	if url := git(ctx, dir, "config", "--get", "remote.origin.url"); url != "" {
		return url
	}
	if top := git(ctx, dir, "rev-parse", "--show-toplevel"); top != "" {
		return "file://" + top
	}
	return ""
}

// git runs a git subcommand and returns its trimmed output, or "" on any
// failure.
func git(ctx context.Context, dir string, args ...string) string {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k != "" {
			env[k] = v
		}
	}
	return env
}

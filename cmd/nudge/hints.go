package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dreamware/nudge/internal/hint"
	"github.com/dreamware/nudge/internal/rpc"
)

type setFlags struct {
	kind       string
	shell      string
	pathOS     []string
	tmplFormat string
	defaults   map[string]string

	reason     string
	tags       []string
	priority   int
	confidence float64
	ttl        string
	secret     bool
	source     string
	addedBy    string

	cwdGlob     []string
	repo        []string
	branch      []string
	os          []string
	envRequired []string
	envMatch    []string

	expectedVersion int64
}

func newSetCommand(a *app) *cobra.Command {
	f := &setFlags{}
	cmd := &cobra.Command{
		Use:   "set <component> <key> <value>",
		Short: "Create or replace a hint",
		Long: `Create or replace a hint.

Examples:
  nudge set api test "go test ./..." --tag ci
  nudge set web dev "npm run dev" --kind command --shell sh --branch 'feature/*'
  nudge set infra kubeconfig /etc/kube/dev.yaml --kind path --path-os linux
  nudge set api deploy '{"region":"eu-west-1"}' --kind json --ttl PT2H
  nudge set api token "$API_TOKEN" --secret`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := f.params(cmd, args)
			if err != nil {
				return err
			}
			client, _, err := a.leaderClient()
			if err != nil {
				return err
			}
			res, err := client.SetHint(cmd.Context(), p)
			if err != nil {
				return err
			}
			res.Hint = redact(res.Hint)
			return a.emit(res, func(w io.Writer) {
				fmt.Fprintf(w, "stored %s/%s v%d\n", res.Hint.Component, res.Hint.Key, res.Hint.Version)
			})
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.kind, "kind", "string", "value kind (string|command|path|template|json)")
	fl.StringVar(&f.shell, "shell", "", "shell for command values (bash|sh|powershell|cmd)")
	fl.StringSliceVar(&f.pathOS, "path-os", nil, "operating systems a path value applies to")
	fl.StringVar(&f.tmplFormat, "template-format", string(hint.FormatInterpolate), "template syntax (mustache|handlebars|jinja|interpolate)")
	fl.StringToStringVar(&f.defaults, "default", nil, "template default as name=value")

	fl.StringVar(&f.reason, "reason", "", "why this hint exists")
	fl.StringSliceVar(&f.tags, "tag", nil, "tag (repeatable)")
	fl.IntVar(&f.priority, "priority", hint.DefaultPriority, "priority 1-10")
	fl.Float64Var(&f.confidence, "confidence", hint.DefaultConfidence, "confidence 0-1")
	fl.StringVar(&f.ttl, "ttl", "", "ISO-8601 duration such as PT2H, or session")
	fl.BoolVar(&f.secret, "secret", false, "mark the value secret and store it even if it looks like one")
	fl.StringVar(&f.source, "source", string(hint.SourceUser), "provenance (user|agent|tool-output|file-import)")
	fl.StringVar(&f.addedBy, "added-by", os.Getenv("USER"), "who added the hint")

	fl.StringSliceVar(&f.cwdGlob, "cwd-glob", nil, "only match under these directories (glob, repeatable)")
	fl.StringSliceVar(&f.repo, "repo", nil, "only match in these repositories")
	fl.StringSliceVar(&f.branch, "branch", nil, "only match on these branches (trailing * allowed)")
	fl.StringSliceVar(&f.os, "os", nil, "only match on these operating systems")
	fl.StringSliceVar(&f.envRequired, "env-required", nil, "only match when these variables are set")
	fl.StringArrayVar(&f.envMatch, "env-match", nil, "only match when NAME=value (repeatable, values accumulate)")

	fl.Int64Var(&f.expectedVersion, "expected-version", 0, "fail unless the stored version equals this (0: must not exist)")
	return cmd
}

// params builds the call from flags. Optional numbers are only sent when
// given, so the leader applies its own defaults.
func (f *setFlags) params(cmd *cobra.Command, args []string) (rpc.SetHintParams, error) {
	value, err := buildValue(f, args[2])
	if err != nil {
		return rpc.SetHintParams{}, err
	}

	meta := hint.Meta{
		Reason:  f.reason,
		Tags:    f.tags,
		TTL:     f.ttl,
		Source:  hint.Source(f.source),
		AddedBy: f.addedBy,
	}
	if cmd.Flags().Changed("priority") {
		p := f.priority
		meta.Priority = &p
	}
	if cmd.Flags().Changed("confidence") {
		c := f.confidence
		meta.Confidence = &c
	}
	if f.secret {
		meta.Sensitivity = hint.SensitivitySecret
	}

	scope := &hint.Scope{
		CwdGlob:     f.cwdGlob,
		Repo:        hint.StringSet(f.repo),
		Branch:      f.branch,
		OS:          f.os,
		EnvRequired: f.envRequired,
	}
	for _, kv := range f.envMatch {
		name, val, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return rpc.SetHintParams{}, usageError(fmt.Sprintf("--env-match %q: want NAME=value", kv), nil)
		}
		if scope.EnvMatch == nil {
			scope.EnvMatch = make(map[string]hint.StringSet)
		}
		scope.EnvMatch[name] = append(scope.EnvMatch[name], val)
	}
	if !scope.Empty() {
		meta.Scope = scope
	}

	p := rpc.SetHintParams{
		Component:   args[0],
		Key:         args[1],
		Value:       value,
		Meta:        meta,
		AllowSecret: f.secret,
	}
	if cmd.Flags().Changed("expected-version") {
		v := f.expectedVersion
		p.ExpectedVersion = &v
	}
	return p, nil
}

func buildValue(f *setFlags, raw string) (hint.Value, error) {
	switch hint.ValueKind(f.kind) {
	case hint.KindString:
		return hint.StringValue(raw), nil
	case hint.KindCommand:
		return hint.CommandValue(raw, hint.Shell(f.shell)), nil
	case hint.KindPath:
		return hint.PathValue(raw, f.pathOS...), nil
	case hint.KindTemplate:
		return hint.TemplateValue(hint.TemplateFormat(f.tmplFormat), raw, f.defaults), nil
	case hint.KindJSON:
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return hint.Value{}, usageError("json value", err)
		}
		return hint.JSONValue(data), nil
	}
	return hint.Value{}, usageError(fmt.Sprintf("unknown --kind %q", f.kind), nil)
}

func addContextFlags(cmd *cobra.Command, c *contextFlags) {
	fl := cmd.Flags()
	fl.BoolVar(&c.none, "no-context", false, "send no context; scoped hints will not match")
	fl.StringVar(&c.cwd, "cwd", "", "working directory (default: current)")
	fl.StringVar(&c.repo, "in-repo", "", "repository (default: detected from git)")
	fl.StringVar(&c.branch, "on-branch", "", "branch (default: detected from git)")
	fl.StringVar(&c.os, "on-os", "", "operating system (default: this one)")
	fl.StringSliceVar(&c.files, "file", nil, "files currently open")
}

func newGetCommand(a *app) *cobra.Command {
	var cf contextFlags
	cmd := &cobra.Command{
		Use:   "get <component> <key>",
		Short: "Show one hint and whether it applies here",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.leaderClient()
			if err != nil {
				return err
			}
			res, err := client.GetHint(cmd.Context(), rpc.GetHintParams{
				Component: args[0],
				Key:       args[1],
				Context:   detectContext(ctxOf(cmd), cf),
			})
			if err != nil {
				return err
			}
			res.Hint = redact(res.Hint)
			return a.emit(res, func(w io.Writer) {
				writeEntry(w, res.Hint)
				writeExplain(w, res.MatchExplain)
			})
		},
	}
	addContextFlags(cmd, &cf)
	return cmd
}

func newQueryCommand(a *app) *cobra.Command {
	var (
		cf contextFlags
		p  rpc.QueryParams
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List the hints that apply here, best first",
		Long: `List the hints whose scope matches the current context, best first.

Examples:
  nudge query
  nudge query --component api --tag ci
  nudge query --pattern 'docker|podman' --limit 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.leaderClient()
			if err != nil {
				return err
			}
			p.Context = detectContext(ctxOf(cmd), cf)
			res, err := client.Query(cmd.Context(), p)
			if err != nil {
				return err
			}
			for i := range res.Hints {
				res.Hints[i].Hint = redact(res.Hints[i].Hint)
			}
			return a.emit(res, func(w io.Writer) {
				if len(res.Hints) == 0 {
					fmt.Fprintln(w, "no matching hints")
					return
				}
				for i, h := range res.Hints {
					if i > 0 {
						fmt.Fprintln(w)
					}
					writeEntry(w, h.Hint)
					writeExplain(w, h.MatchExplain)
				}
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&p.Component, "component", "", "only this component")
	fl.StringSliceVar(&p.Keys, "key", nil, "only these keys")
	fl.StringSliceVar(&p.Tags, "tag", nil, "hints carrying any of these tags")
	fl.StringVar(&p.Pattern, "pattern", "", "regular expression matched against the value text")
	fl.IntVar(&p.Limit, "limit", 0, "maximum results (default 10)")
	addContextFlags(cmd, &cf)
	return cmd
}

func newDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <component> <key>",
		Aliases: []string{"rm"},
		Short:   "Delete a hint",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.leaderClient()
			if err != nil {
				return err
			}
			res, err := client.DeleteHint(cmd.Context(), rpc.DeleteHintParams{Component: args[0], Key: args[1]})
			if err != nil {
				return err
			}
			res.Previous = redact(res.Previous)
			return a.emit(res, func(w io.Writer) {
				fmt.Fprintf(w, "deleted %s/%s (was v%d)\n", args[0], args[1], res.Previous.Version)
			})
		},
	}
}

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List components and their hint counts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.leaderClient()
			if err != nil {
				return err
			}
			res, err := client.ListComponents(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(res, func(w io.Writer) {
				if len(res.Components) == 0 {
					fmt.Fprintln(w, "no hints stored")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "COMPONENT\tHINTS")
				for _, c := range res.Components {
					fmt.Fprintf(tw, "%s\t%d\n", c.Name, c.EntryCount)
				}
				tw.Flush()
			})
		},
	}
}

func newBumpCommand(a *app) *cobra.Command {
	var delta int64
	cmd := &cobra.Command{
		Use:   "bump <component> <key>",
		Short: "Record that a hint was useful",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.leaderClient()
			if err != nil {
				return err
			}
			res, err := client.Bump(cmd.Context(), rpc.BumpParams{Component: args[0], Key: args[1], Delta: &delta})
			if err != nil {
				return err
			}
			res.Hint = redact(res.Hint)
			return a.emit(res, func(w io.Writer) {
				fmt.Fprintf(w, "%s/%s used %d times\n", res.Hint.Component, res.Hint.Key, res.Hint.UseCount)
			})
		},
	}
	cmd.Flags().Int64Var(&delta, "delta", 1, "uses to add")
	return cmd
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

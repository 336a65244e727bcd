package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dreamware/nudge/internal/guard"
	"github.com/dreamware/nudge/internal/hint"
)

// emit writes v as JSON or YAML, or calls text for the human format.
func (a *app) emit(v any, text func(w io.Writer)) error {
	switch a.format {
	case "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		return writeYAML(a.out, v)
	default:
		text(a.out)
		return nil
	}
}

// writeYAML renders v through its JSON form so field names and order match
// the JSON output.
func writeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	blockStyle(&doc)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle drops the flow style yaml picks up from JSON input.
func blockStyle(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style = 0
	}
	if n.Kind == yaml.ScalarNode && n.Style == yaml.DoubleQuotedStyle && !needsQuotes(n.Value) {
		n.Style = 0
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// needsQuotes reports whether a string scalar would change type or meaning
// if written plain.
func needsQuotes(s string) bool {
	if s == "" || strings.ContainsAny(s, ":#{}[]&*!|>'\"%@`\n") {
		return true
	}
	var probe any
	if err := yaml.Unmarshal([]byte(s), &probe); err != nil {
		return true
	}
	_, isString := probe.(string)
	return !isString
}

// redact masks the value of secret entries for display.
func redact(e *hint.Entry) *hint.Entry {
	if e == nil || e.Meta.Sensitivity != hint.SensitivitySecret {
		return e
	}
	c := e.Clone()
	v := &c.Value
	v.Text = guard.Sanitize(v.Text, true)
	v.Cmd = guard.Sanitize(v.Cmd, true)
	v.Abs = guard.Sanitize(v.Abs, true)
	v.Body = guard.Sanitize(v.Body, true)
	for k, d := range v.Defaults {
		v.Defaults[k] = guard.Sanitize(d, true)
	}
	if v.Data != nil {
		v.Data = "[redacted]"
	}
	return c
}

// displayValue is the one-line rendering of a value.
func displayValue(v hint.Value) string {
	switch v.Kind {
	case hint.KindCommand:
		if v.Shell != "" {
			return fmt.Sprintf("$ %s  (%s)", v.Cmd, v.Shell)
		}
		return "$ " + v.Cmd
	case hint.KindPath:
		if len(v.OS) > 0 {
			return fmt.Sprintf("%s  (%s)", v.Abs, strings.Join(v.OS, ", "))
		}
		return v.Abs
	case hint.KindTemplate:
		return fmt.Sprintf("%s  [%s template]", v.Body, v.Format)
	case hint.KindJSON:
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(v.Data); err != nil {
			return fmt.Sprint(v.Data)
		}
		return strings.TrimSpace(buf.String())
	}
	return v.Text
}

func writeEntry(w io.Writer, e *hint.Entry) {
	e = redact(e)
	fmt.Fprintf(w, "%s/%s  v%d\n", e.Component, e.Key, e.Version)
	fmt.Fprintf(w, "  value:  %s\n", displayValue(e.Value))
	if e.Meta.Reason != "" {
		fmt.Fprintf(w, "  reason: %s\n", e.Meta.Reason)
	}
	if len(e.Meta.Tags) > 0 {
		fmt.Fprintf(w, "  tags:   %s\n", strings.Join(e.Meta.Tags, ", "))
	}
	if e.Meta.TTL != "" {
		fmt.Fprintf(w, "  ttl:    %s\n", e.Meta.TTL)
	}
	if e.UseCount > 0 {
		fmt.Fprintf(w, "  used:   %d\n", e.UseCount)
	}
}

func writeExplain(w io.Writer, x hint.Explanation) {
	state := "matched"
	if !x.Matched {
		state = "not matched"
	}
	fmt.Fprintf(w, "  %s, score %.2f\n", state, x.Score)
	for _, r := range x.Reasons {
		fmt.Fprintf(w, "    - %s\n", r)
	}
}

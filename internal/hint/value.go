package hint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ValueKind discriminates the shape of a Value.
type ValueKind string

const (
	KindString   ValueKind = "string"
	KindCommand  ValueKind = "command"
	KindPath     ValueKind = "path"
	KindTemplate ValueKind = "template"
	KindJSON     ValueKind = "json"
)

// Shell names the interpreter a command value is meant for.
type Shell string

const (
	ShellBash       Shell = "bash"
	ShellSh         Shell = "sh"
	ShellPowershell Shell = "powershell"
	ShellCmd        Shell = "cmd"
)

// TemplateFormat names the templating dialect of a template value.
type TemplateFormat string

const (
	FormatMustache    TemplateFormat = "mustache"
	FormatHandlebars  TemplateFormat = "handlebars"
	FormatJinja       TemplateFormat = "jinja"
	FormatInterpolate TemplateFormat = "interpolate"
)

// OS names accepted in path values and scopes.
var knownOS = map[string]bool{"linux": true, "darwin": true, "windows": true}

// KnownOS reports whether name is one of the accepted OS names.
func KnownOS(name string) bool { return knownOS[name] }

// Value is the payload of a hint. Only the fields belonging to Kind are
// meaningful.
type Value struct {
	Kind ValueKind

	// KindString
	Text string

	// KindCommand
	Cmd   string
	Shell Shell

	// KindPath
	Abs string
	OS  []string

	// KindTemplate
	Format   TemplateFormat
	Body     string
	Defaults map[string]string

	// KindJSON
	Data any
}

func StringValue(s string) Value { return Value{Kind: KindString, Text: s} }

func CommandValue(cmd string, shell Shell) Value {
	return Value{Kind: KindCommand, Cmd: cmd, Shell: shell}
}

func PathValue(abs string, os ...string) Value {
	return Value{Kind: KindPath, Abs: abs, OS: os}
}

func TemplateValue(format TemplateFormat, body string, defaults map[string]string) Value {
	return Value{Kind: KindTemplate, Format: format, Body: body, Defaults: defaults}
}

func JSONValue(data any) Value { return Value{Kind: KindJSON, Data: data} }

// SearchText returns the searchable text of the value: the string itself, the
// command line, the path, the template body, or the compact JSON encoding
// of structured data.
func (v Value) SearchText() string {
	switch v.Kind {
	case KindString:
		return v.Text
	case KindCommand:
		return v.Cmd
	case KindPath:
		return v.Abs
	case KindTemplate:
		return v.Body
	case KindJSON:
		b, err := json.Marshal(v.Data)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return ""
}

// Validate checks the kind-specific shape of the value.
func (v Value) Validate() error {
	switch v.Kind {
	case KindString:
		if v.Text == "" {
			return FieldError(CodeInvalid, "value", "value must not be empty")
		}
	case KindCommand:
		if v.Cmd == "" {
			return FieldError(CodeInvalid, "value.cmd", "command must not be empty")
		}
		switch v.Shell {
		case "", ShellBash, ShellSh, ShellPowershell, ShellCmd:
		default:
			return FieldError(CodeInvalid, "value.shell", "unknown shell %q", v.Shell)
		}
	case KindPath:
		if v.Abs == "" {
			return FieldError(CodeInvalid, "value.abs", "path must not be empty")
		}
		for _, o := range v.OS {
			if !KnownOS(o) {
				return FieldError(CodeInvalid, "value.os", "unknown os %q", o)
			}
		}
	case KindTemplate:
		if v.Body == "" {
			return FieldError(CodeInvalid, "value.body", "template body must not be empty")
		}
		switch v.Format {
		case "", FormatMustache, FormatHandlebars, FormatJinja, FormatInterpolate:
		default:
			return FieldError(CodeInvalid, "value.format", "unknown template format %q", v.Format)
		}
	case KindJSON:
		if v.Data == nil {
			return FieldError(CodeInvalid, "value.data", "json value requires data")
		}
	default:
		return FieldError(CodeInvalid, "value", "unknown value type %q", v.Kind)
	}
	return nil
}

// Clone returns a deep copy of the value.
func (v Value) Clone() Value {
	c := v
	if v.OS != nil {
		c.OS = append([]string(nil), v.OS...)
	}
	if v.Defaults != nil {
		c.Defaults = make(map[string]string, len(v.Defaults))
		for k, d := range v.Defaults {
			c.Defaults[k] = d
		}
	}
	c.Data = cloneAny(v.Data)
	return c
}

func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneAny(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneAny(e)
		}
		return s
	default:
		return v
	}
}

type valueWire struct {
	Type     ValueKind         `json:"type"`
	Cmd      string            `json:"cmd,omitempty"`
	Shell    Shell             `json:"shell,omitempty"`
	Abs      string            `json:"abs,omitempty"`
	OS       []string          `json:"os,omitempty"`
	Format   TemplateFormat    `json:"format,omitempty"`
	Body     string            `json:"body,omitempty"`
	Defaults map[string]string `json:"defaults,omitempty"`
	Data     any               `json:"data,omitempty"`
}

// MarshalJSON encodes string values as bare JSON strings and every other
// kind as a "type"-discriminated object.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString, "":
		return json.Marshal(v.Text)
	case KindCommand:
		return json.Marshal(valueWire{Type: v.Kind, Cmd: v.Cmd, Shell: v.Shell})
	case KindPath:
		return json.Marshal(valueWire{Type: v.Kind, Abs: v.Abs, OS: v.OS})
	case KindTemplate:
		return json.Marshal(valueWire{Type: v.Kind, Format: v.Format, Body: v.Body, Defaults: v.Defaults})
	case KindJSON:
		return json.Marshal(valueWire{Type: v.Kind, Data: v.Data})
	}
	return nil, fmt.Errorf("unknown value kind %q", v.Kind)
}

// UnmarshalJSON accepts either a JSON string or a typed object.
func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = StringValue(s)
		return nil
	}
	if len(b) == 0 || b[0] != '{' {
		return FieldError(CodeInvalid, "value", "value must be a string or a typed object")
	}
	var w valueWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	switch w.Type {
	case KindCommand:
		*v = CommandValue(w.Cmd, w.Shell)
	case KindPath:
		*v = PathValue(w.Abs, w.OS...)
	case KindTemplate:
		*v = TemplateValue(w.Format, w.Body, w.Defaults)
	case KindJSON:
		*v = JSONValue(w.Data)
	case KindString:
		// {"type":"string","data":"..."} is tolerated for symmetry.
		s, _ := w.Data.(string)
		*v = StringValue(s)
	default:
		return FieldError(CodeInvalid, "value.type", "unknown value type %q", w.Type)
	}
	return nil
}

// DecodeValue converts a loosely typed value, as received from a tool call
// or a decoded JSON document, into a Value.
func DecodeValue(raw any) (Value, error) {
	var v Value
	if raw == nil {
		return v, FieldError(CodeInvalid, "value", "value is required")
	}
	if s, ok := raw.(string); ok {
		return StringValue(s), nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return v, FieldError(CodeInvalid, "value", "value is not encodable: %v", err)
	}
	if err := json.Unmarshal(b, &v); err != nil {
		var he *Error
		if errors.As(err, &he) {
			return v, he
		}
		return v, FieldError(CodeInvalid, "value", "malformed value: %v", err)
	}
	return v, nil
}

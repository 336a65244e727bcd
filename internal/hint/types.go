package hint

import (
	"encoding/json"
	"math"
	"time"
)

// Sensitivity classifies whether a value is known to contain a secret.
type Sensitivity string

const (
	SensitivityNormal Sensitivity = "normal"
	SensitivitySecret Sensitivity = "secret"
)

// Source records where a hint came from.
type Source string

const (
	SourceUser       Source = "user"
	SourceAgent      Source = "agent"
	SourceToolOutput Source = "tool-output"
	SourceFileImport Source = "file-import"
)

const (
	DefaultPriority   = 5
	DefaultConfidence = 0.5
)

// StringSet holds one or more strings. It decodes from either a JSON string
// or an array of strings, and encodes a single element back to a string.
type StringSet []string

func (s StringSet) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]string(s))
}

func (s *StringSet) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*s = StringSet{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return FieldError(CodeInvalid, "scope", "expected a string or a list of strings")
	}
	*s = many
	return nil
}

// Contains reports whether v is a member of the set.
func (s StringSet) Contains(v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

// Scope restricts where an entry applies. Every present clause must hold for
// a context to be eligible; an absent clause imposes nothing.
type Scope struct {
	CwdGlob     []string             `json:"cwd_glob,omitempty"`
	Repo        StringSet            `json:"repo,omitempty"`
	Branch      []string             `json:"branch,omitempty"`
	OS          []string             `json:"os,omitempty"`
	EnvRequired []string             `json:"env_required,omitempty"`
	EnvMatch    map[string]StringSet `json:"env_match,omitempty"`
}

// Empty reports whether the scope has no clauses.
func (s *Scope) Empty() bool {
	return s == nil || (len(s.CwdGlob) == 0 && len(s.Repo) == 0 && len(s.Branch) == 0 &&
		len(s.OS) == 0 && len(s.EnvRequired) == 0 && len(s.EnvMatch) == 0)
}

func (s *Scope) Clone() *Scope {
	if s == nil {
		return nil
	}
	c := &Scope{
		CwdGlob:     cloneStrings(s.CwdGlob),
		Repo:        StringSet(cloneStrings(s.Repo)),
		Branch:      cloneStrings(s.Branch),
		OS:          cloneStrings(s.OS),
		EnvRequired: cloneStrings(s.EnvRequired),
	}
	if s.EnvMatch != nil {
		c.EnvMatch = make(map[string]StringSet, len(s.EnvMatch))
		for k, v := range s.EnvMatch {
			c.EnvMatch[k] = StringSet(cloneStrings(v))
		}
	}
	return c
}

// Meta is the descriptive and policy metadata attached to an entry.
type Meta struct {
	Reason      string      `json:"reason,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Priority    *int        `json:"priority,omitempty"`
	Confidence  *float64    `json:"confidence,omitempty"`
	TTL         string      `json:"ttl,omitempty"`
	Sensitivity Sensitivity `json:"sensitivity,omitempty"`
	Scope       *Scope      `json:"scope,omitempty"`
	Source      Source      `json:"source,omitempty"`
	AddedBy     string      `json:"added_by,omitempty"`
}

// EffectivePriority returns the priority, or DefaultPriority when unset.
func (m Meta) EffectivePriority() int {
	if m.Priority == nil {
		return DefaultPriority
	}
	return *m.Priority
}

// EffectiveConfidence returns the confidence, or DefaultConfidence when
// unset. An explicit zero is honoured.
func (m Meta) EffectiveConfidence() float64 {
	if m.Confidence == nil {
		return DefaultConfidence
	}
	return *m.Confidence
}

// HasTag reports whether the entry carries tag.
func (m Meta) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Validate checks the structural shape of the metadata. TTL syntax and
// scope safety are checked by their own packages.
func (m Meta) Validate() error {
	for _, t := range m.Tags {
		if t == "" {
			return FieldError(CodeInvalid, "meta.tags", "tags must not be empty")
		}
	}
	if m.Priority != nil && (*m.Priority < 1 || *m.Priority > 10) {
		return FieldError(CodeInvalid, "meta.priority", "priority must be between 1 and 10, got %d", *m.Priority)
	}
	if m.Confidence != nil {
		c := *m.Confidence
		if math.IsNaN(c) || c < 0 || c > 1 {
			return FieldError(CodeInvalid, "meta.confidence", "confidence must be between 0 and 1, got %v", c)
		}
	}
	switch m.Sensitivity {
	case "", SensitivityNormal, SensitivitySecret:
	default:
		return FieldError(CodeInvalid, "meta.sensitivity", "unknown sensitivity %q", m.Sensitivity)
	}
	switch m.Source {
	case "", SourceUser, SourceAgent, SourceToolOutput, SourceFileImport:
	default:
		return FieldError(CodeInvalid, "meta.source", "unknown source %q", m.Source)
	}
	if m.Scope != nil {
		for _, o := range m.Scope.OS {
			if !KnownOS(o) {
				return FieldError(CodeInvalid, "meta.scope.os", "unknown os %q", o)
			}
		}
		for k := range m.Scope.EnvMatch {
			if k == "" {
				return FieldError(CodeInvalid, "meta.scope.env_match", "environment variable name must not be empty")
			}
		}
	}
	return nil
}

func (m Meta) Clone() Meta {
	c := m
	c.Tags = cloneStrings(m.Tags)
	if m.Priority != nil {
		p := *m.Priority
		c.Priority = &p
	}
	if m.Confidence != nil {
		f := *m.Confidence
		c.Confidence = &f
	}
	c.Scope = m.Scope.Clone()
	return c
}

// DecodeMeta converts loosely typed metadata into a Meta.
func DecodeMeta(raw any) (Meta, error) {
	var m Meta
	if raw == nil {
		return m, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return m, FieldError(CodeInvalid, "meta", "meta is not encodable: %v", err)
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, FieldError(CodeInvalid, "meta", "malformed meta: %v", err)
	}
	return m, nil
}

// Context describes the caller's situation at query time.
type Context struct {
	Cwd       string            `json:"cwd,omitempty"`
	Repo      string            `json:"repo,omitempty"`
	Branch    string            `json:"branch,omitempty"`
	OS        string            `json:"os,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	FilesOpen []string          `json:"files_open,omitempty"`
}

// Entry is one stored hint.
type Entry struct {
	Component  string     `json:"component"`
	Key        string     `json:"key"`
	Value      Value      `json:"value"`
	Meta       Meta       `json:"meta"`
	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	UseCount   int64      `json:"use_count"`
}

// Clone returns a deep copy so callers never share state with the store.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Value = e.Value.Clone()
	c.Meta = e.Meta.Clone()
	if e.LastUsedAt != nil {
		t := *e.LastUsedAt
		c.LastUsedAt = &t
	}
	return &c
}

// Explanation is the human-readable account of an eligibility and score
// decision.
type Explanation struct {
	Matched bool     `json:"matched"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

// Match is one ranked search result.
type Match struct {
	Entry   *Entry      `json:"hint"`
	Score   float64     `json:"score"`
	Explain Explanation `json:"explain"`
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

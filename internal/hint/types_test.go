package hint

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeStringSet(t *testing.T) {
	var s Scope
	require.NoError(t, json.Unmarshal([]byte(`{"repo":"a","env_match":{"CI":["1","true"],"X":"y"}}`), &s))
	assert.Equal(t, StringSet{"a"}, s.Repo)
	assert.Equal(t, StringSet{"1", "true"}, s.EnvMatch["CI"])
	assert.Equal(t, StringSet{"y"}, s.EnvMatch["X"])

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"repo":"a","env_match":{"CI":["1","true"],"X":"y"}}`, string(out))
}

func TestScopeEmpty(t *testing.T) {
	var nilScope *Scope
	assert.True(t, nilScope.Empty())
	assert.True(t, (&Scope{}).Empty())
	assert.False(t, (&Scope{OS: []string{"linux"}}).Empty())
}

func TestMetaDefaults(t *testing.T) {
	var m Meta
	assert.Equal(t, DefaultPriority, m.EffectivePriority())
	assert.Equal(t, DefaultConfidence, m.EffectiveConfidence())

	zero := 0.0
	m.Confidence = &zero
	assert.Equal(t, 0.0, m.EffectiveConfidence())
}

func TestMetaValidate(t *testing.T) {
	p := func(i int) *int { return &i }
	f := func(x float64) *float64 { return &x }

	tests := []struct {
		name  string
		meta  Meta
		field string
	}{
		{"ok", Meta{Priority: p(10), Confidence: f(1)}, ""},
		{"priority low", Meta{Priority: p(0)}, "meta.priority"},
		{"priority high", Meta{Priority: p(11)}, "meta.priority"},
		{"confidence", Meta{Confidence: f(1.5)}, "meta.confidence"},
		{"sensitivity", Meta{Sensitivity: "high"}, "meta.sensitivity"},
		{"source", Meta{Source: "robot"}, "meta.source"},
		{"empty tag", Meta{Tags: []string{""}}, "meta.tags"},
		{"scope os", Meta{Scope: &Scope{OS: []string{"beos"}}}, "meta.scope.os"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var he *Error
			require.ErrorAs(t, err, &he)
			assert.Equal(t, CodeInvalid, he.Code)
			assert.Equal(t, tt.field, he.Field)
		})
	}
}

func TestEntryCloneIsIndependent(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	prio := 7
	e := &Entry{
		Component:  "c",
		Key:        "k",
		Value:      StringValue("v"),
		Meta:       Meta{Tags: []string{"a"}, Priority: &prio, Scope: &Scope{Branch: []string{"main"}}},
		LastUsedAt: &now,
	}
	c := e.Clone()
	c.Meta.Tags[0] = "b"
	*c.Meta.Priority = 1
	c.Meta.Scope.Branch[0] = "dev"
	*c.LastUsedAt = now.Add(time.Hour)

	assert.Equal(t, "a", e.Meta.Tags[0])
	assert.Equal(t, 7, *e.Meta.Priority)
	assert.Equal(t, "main", e.Meta.Scope.Branch[0])
	assert.Equal(t, now, *e.LastUsedAt)
}

func TestDecodeMeta(t *testing.T) {
	m, err := DecodeMeta(map[string]any{"tags": []any{"x"}, "priority": 9, "scope": map[string]any{"repo": "r"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, m.Tags)
	assert.Equal(t, 9, m.EffectivePriority())
	assert.Equal(t, StringSet{"r"}, m.Scope.Repo)

	_, err = DecodeMeta(map[string]any{"priority": "high"})
	assert.True(t, IsCode(err, CodeInvalid))
}

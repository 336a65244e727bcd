package rank

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/nudge/internal/hint"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func entry(key string, updated time.Time) *hint.Entry {
	return &hint.Entry{
		Component: "svc",
		Key:       key,
		Value:     hint.StringValue("v"),
		Version:   1,
		CreatedAt: updated,
		UpdatedAt: updated,
	}
}

func TestScoreDefaults(t *testing.T) {
	// Fresh entry, no scope, no usage: 0.2*0.5 + 0.2*0.5 + 0.1*1.
	m := Score(entry("k", now), hint.Context{}, now)
	require.True(t, m.Explain.Matched)
	assert.InDelta(t, 0.30, m.Score, 1e-9)
	assert.Equal(t, 0.3, m.Explain.Score)
	assert.Contains(t, m.Explain.Reasons, "no scope constraints")
}

func TestScoreIneligible(t *testing.T) {
	e := entry("k", now)
	e.Meta.Scope = &hint.Scope{Branch: []string{"dev"}}

	m := Score(e, hint.Context{Branch: "main"}, now)
	assert.False(t, m.Explain.Matched)
	assert.Zero(t, m.Score)
	assert.Equal(t, []string{"branch main not in [dev]"}, m.Explain.Reasons)
}

func TestFrecency(t *testing.T) {
	assert.Zero(t, Frecency(0, nil, now))
	used := now
	assert.Zero(t, Frecency(0, &used, now))
	assert.InDelta(t, 1-math.Exp(-1), Frecency(10, &used, now), 1e-9)

	week := now.Add(-168 * time.Hour)
	assert.InDelta(t, (1-math.Exp(-1))*math.Exp(-1), Frecency(10, &week, now), 1e-9)
}

// Higher use count and more recent use never rank lower.
func TestRankingMonotonicity(t *testing.T) {
	base := now.Add(-time.Hour)
	earlier := now.Add(-48 * time.Hour)

	tests := []struct {
		name   string
		better func(*hint.Entry)
		worse  func(*hint.Entry)
	}{
		{"use count", func(e *hint.Entry) { e.UseCount = 5; e.LastUsedAt = &base }, func(e *hint.Entry) { e.UseCount = 2; e.LastUsedAt = &base }},
		{"last use", func(e *hint.Entry) { e.UseCount = 3; e.LastUsedAt = &base }, func(e *hint.Entry) { e.UseCount = 3; e.LastUsedAt = &earlier }},
		{"used vs never", func(e *hint.Entry) { e.UseCount = 1; e.LastUsedAt = &earlier }, func(e *hint.Entry) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := entry("a", base), entry("b", base)
			tt.better(a)
			tt.worse(b)
			ma, mb := Score(a, hint.Context{}, now), Score(b, hint.Context{}, now)
			assert.GreaterOrEqual(t, ma.Score, mb.Score)

			ms := []hint.Match{mb, ma}
			Sort(ms)
			assert.Equal(t, "a", ms[0].Entry.Key)
		})
	}
}

func TestSpecificityRaisesScore(t *testing.T) {
	plain := entry("plain", now)
	scoped := entry("scoped", now)
	scoped.Meta.Scope = &hint.Scope{Branch: []string{"dev"}, OS: []string{"linux"}}

	ctx := hint.Context{Branch: "dev", OS: "linux"}
	assert.Greater(t, Score(scoped, ctx, now).Score, Score(plain, ctx, now).Score)
}

func TestSortTieBreaks(t *testing.T) {
	older := now.Add(-time.Hour)
	ms := []hint.Match{
		{Entry: entry("b", older), Score: 0.5},
		{Entry: entry("a", older), Score: 0.5},
		{Entry: entry("z", now), Score: 0.5},
		{Entry: entry("y", older), Score: 0.9},
	}
	other := entry("a", older)
	other.Component = "alpha"
	ms = append(ms, hint.Match{Entry: other, Score: 0.5})

	Sort(ms)

	var got []string
	for _, m := range ms {
		got = append(got, m.Entry.Component+"/"+m.Entry.Key)
	}
	assert.Equal(t, []string{"svc/y", "svc/z", "alpha/a", "svc/a", "svc/b"}, got)
}

func TestExplanationReasons(t *testing.T) {
	e := entry("k", now)
	used := now.Add(-2 * time.Minute)
	e.UseCount = 4
	e.LastUsedAt = &used
	p, c := 9, 0.9
	e.Meta.Priority = &p
	e.Meta.Confidence = &c

	m := Score(e, hint.Context{}, now)
	assert.Contains(t, m.Explain.Reasons, "recently used (2m ago)")
	assert.Contains(t, m.Explain.Reasons, "used 4 times")
	assert.Contains(t, m.Explain.Reasons, "high priority (9/10)")
	assert.Contains(t, m.Explain.Reasons, "high confidence (0.9)")
}

func TestLastUsedPhrase(t *testing.T) {
	assert.Equal(t, "used 30 minutes ago", lastUsedPhrase(30*time.Minute))
	assert.Equal(t, "used 3 hours ago", lastUsedPhrase(3*time.Hour))
	assert.Equal(t, "used yesterday", lastUsedPhrase(30*time.Hour))
	assert.Equal(t, "used 4 days ago", lastUsedPhrase(100*time.Hour))
}

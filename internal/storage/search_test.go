package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/nudge/internal/hint"
)

func TestLookupScenario(t *testing.T) {
	s, _ := newTestStore()
	_, err := s.Upsert(UpsertRequest{
		Component: "http-proxy",
		Key:       "build",
		Value:     hint.CommandValue("make build", hint.ShellBash),
		Meta:      hint.Meta{Scope: &hint.Scope{Branch: []string{"dev"}}},
	})
	require.NoError(t, err)

	m, err := s.Lookup("http-proxy", "build", hint.Context{Branch: "dev"})
	require.NoError(t, err)
	assert.True(t, m.Explain.Matched)
	assert.Greater(t, m.Score, 0.0)
	assert.Contains(t, m.Explain.Reasons, "branch matches dev")

	// Found but ineligible: the entry comes back unmatched with a zero score.
	m, err = s.Lookup("http-proxy", "build", hint.Context{Branch: "main"})
	require.NoError(t, err)
	assert.False(t, m.Explain.Matched)
	assert.Zero(t, m.Score)
	assert.Equal(t, "build", m.Entry.Key)

	// Lookups are reads and never touch usage.
	assert.Zero(t, m.Entry.UseCount)
	assert.Nil(t, m.Entry.LastUsedAt)
}

func seedSearch(t *testing.T) (*Store, *ManualClock) {
	t.Helper()
	s, clock := newTestStore()
	high := 9

	reqs := []UpsertRequest{
		{Component: "api", Key: "test", Value: hint.CommandValue("go test ./...", hint.ShellBash), Meta: hint.Meta{Tags: []string{"ci", "go"}}},
		{Component: "api", Key: "lint", Value: hint.CommandValue("golangci-lint run", hint.ShellBash), Meta: hint.Meta{Tags: []string{"ci"}, Priority: &high}},
		{Component: "api", Key: "deploy", Value: hint.StringValue("ship it"), Meta: hint.Meta{Scope: &hint.Scope{Branch: []string{"main"}}}},
		{Component: "web", Key: "test", Value: hint.CommandValue("npm test", hint.ShellSh), Meta: hint.Meta{Tags: []string{"js"}}},
	}
	for _, r := range reqs {
		_, err := s.Upsert(r)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	return s, clock
}

func keysOf(ms []hint.Match) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Entry.Component+"/"+m.Entry.Key)
	}
	return out
}

func TestSearch(t *testing.T) {
	s, _ := seedSearch(t)

	tests := []struct {
		name string
		q    SearchQuery
		want []string
	}{
		{"component", SearchQuery{Component: "web"}, []string{"web/test"}},
		{"keys", SearchQuery{Keys: []string{"test"}}, []string{"web/test", "api/test"}},
		{"any tag", SearchQuery{Tags: []string{"go", "js"}}, []string{"web/test", "api/test"}},
		{"pattern", SearchQuery{Pattern: `^go(langci)?`}, []string{"api/lint", "api/test"}},
		{"scope filters ineligible", SearchQuery{Component: "api", Context: hint.Context{Branch: "dev"}}, []string{"api/lint", "api/test"}},
		{"scope passes eligible", SearchQuery{Keys: []string{"deploy"}, Context: hint.Context{Branch: "main"}}, []string{"api/deploy"}},
		{"limit", SearchQuery{Component: "api", Limit: 1}, []string{"api/lint"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Search(tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, keysOf(res))
			for _, m := range res {
				assert.True(t, m.Explain.Matched)
			}
		})
	}
}

func TestSearchDefaultLimit(t *testing.T) {
	s, _ := newTestStore()
	for i := 0; i < DefaultSearchLimit+5; i++ {
		put(t, s, "c", string(rune('a'+i)), "v")
	}
	res, err := s.Search(SearchQuery{})
	require.NoError(t, err)
	assert.Len(t, res, DefaultSearchLimit)
}

func TestSearchRejectsBadInput(t *testing.T) {
	s, _ := seedSearch(t)

	_, err := s.Search(SearchQuery{Pattern: "("})
	assert.True(t, hint.IsCode(err, hint.CodeInvalid))

	_, err = s.Search(SearchQuery{Limit: -1})
	assert.True(t, hint.IsCode(err, hint.CodeInvalid))
}

func TestSearchReinforcedRanksFirst(t *testing.T) {
	s, _ := newTestStore()
	put(t, s, "c", "a", "v")
	put(t, s, "c", "b", "v")

	_, err := s.Reinforce("c", "b", 5)
	require.NoError(t, err)

	res, err := s.Search(SearchQuery{Component: "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c/b", "c/a"}, keysOf(res))
}

func TestStats(t *testing.T) {
	s, _ := seedSearch(t)
	_, _ = s.Lookup("api", "test", hint.Context{})
	_, _ = s.Search(SearchQuery{})

	st := s.Stats()
	assert.Equal(t, "sess-1", st.SessionID)
	assert.Equal(t, 2, st.Components)
	assert.Equal(t, 4, st.Entries)
	assert.Equal(t, uint64(4), st.Ops.Upserts)
	assert.Equal(t, uint64(1), st.Ops.Lookups)
	assert.Equal(t, uint64(1), st.Ops.Searches)
}

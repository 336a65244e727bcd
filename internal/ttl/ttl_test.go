package ttl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/nudge/internal/hint"
)

func TestParse(t *testing.T) {
	tests := []struct {
		expr    string
		want    time.Duration
		bounded bool
		session bool
	}{
		{"", 0, false, false},
		{"session", 0, false, true},
		{"SESSION", 0, false, true},
		{"PT2H", 2 * time.Hour, true, false},
		{"pt30m", 30 * time.Minute, true, false},
		{"P1DT1H", 25 * time.Hour, true, false},
		{"PT0S", 0, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			r, err := Parse(tt.expr)
			require.NoError(t, err)
			d, bounded := r.Duration()
			assert.Equal(t, tt.want, d)
			assert.Equal(t, tt.bounded, bounded)
			assert.Equal(t, tt.session, r.IsSession())
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, expr := range []string{"2h", "forever", "-PT1H"} {
		t.Run(expr, func(t *testing.T) {
			_, err := Parse(expr)
			var he *hint.Error
			require.ErrorAs(t, err, &he)
			assert.Equal(t, hint.CodeInvalid, he.Code)
			assert.Equal(t, "meta.ttl", he.Field)
		})
	}
}

func TestExpired(t *testing.T) {
	updated := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r := MustParse("PT2H")

	assert.False(t, r.Expired(updated, updated.Add(time.Hour)))
	assert.True(t, r.Expired(updated, updated.Add(2*time.Hour)))
	assert.True(t, r.Expired(updated, updated.Add(3*time.Hour)))

	at, ok := r.ExpiresAt(updated)
	assert.True(t, ok)
	assert.Equal(t, updated.Add(2*time.Hour), at)
}

func TestSessionNeverExpires(t *testing.T) {
	updated := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, expr := range []string{"session", ""} {
		r := MustParse(expr)
		assert.False(t, r.Expired(updated, updated.Add(24*365*time.Hour)), expr)
	}
}

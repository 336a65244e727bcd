// Package rank scores eligible hints and orders search results.
//
// The composite score is
//
//	0.30·frecency + 0.20·(priority/10) + 0.20·confidence + 0.20·specificity + 0.10·recency
//
// where every term lies in [0, 1]:
//
//   - frecency = (1 - e^(-uses/10)) · e^(-hoursSinceLastUse/168), 0 when never used
//   - specificity = min(populatedScopeClauses/5, 1)
//   - recency = e^(-hoursSinceUpdate/168)
//
// Unset priority counts as 5 and unset confidence as 0.5. The weights are
// fixed so that ordering is reproducible across processes.
package rank

import (
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/nudge/internal/hint"
	"github.com/dreamware/nudge/internal/match"
)

const (
	WeightFrecency    = 0.30
	WeightPriority    = 0.20
	WeightConfidence  = 0.20
	WeightSpecificity = 0.20
	WeightRecency     = 0.10

	// decay constant, in hours, shared by frecency and recency
	decayHours = 168.0
	// usage saturates around ten uses.
	usageScale = 10.0
	// scopes with five or more clauses are maximally specific.
	specificityCap = 5.0
)

// Breakdown holds the individual terms of a score.
type Breakdown struct {
	Frecency    float64
	Priority    float64
	Confidence  float64
	Specificity float64
	Recency     float64
}

// Total returns the weighted sum of the terms.
func (b Breakdown) Total() float64 {
	return WeightFrecency*b.Frecency +
		WeightPriority*b.Priority +
		WeightConfidence*b.Confidence +
		WeightSpecificity*b.Specificity +
		WeightRecency*b.Recency
}

// dominant names the term contributing the most to the total.
func (b Breakdown) dominant() (string, float64) {
	terms := []struct {
		name string
		v    float64
	}{
		{"frecency", WeightFrecency * b.Frecency},
		{"priority", WeightPriority * b.Priority},
		{"confidence", WeightConfidence * b.Confidence},
		{"scope specificity", WeightSpecificity * b.Specificity},
		{"recency", WeightRecency * b.Recency},
	}
	best := terms[0]
	for _, t := range terms[1:] {
		if t.v > best.v {
			best = t
		}
	}
	return best.name, best.v
}

// Frecency combines use count and time since last use.
func Frecency(uses int64, lastUsed *time.Time, now time.Time) float64 {
	if uses <= 0 || lastUsed == nil {
		return 0
	}
	freq := 1 - math.Exp(-float64(uses)/usageScale)
	return freq * decay(now.Sub(*lastUsed))
}

// Recency decays with time since the last update.
func Recency(updated, now time.Time) float64 {
	return decay(now.Sub(updated))
}

// Specificity normalises a clause count into [0, 1].
func Specificity(clauses int) float64 {
	return math.Min(float64(clauses)/specificityCap, 1)
}

func decay(elapsed time.Duration) float64 {
	if elapsed < 0 {
		elapsed = 0
	}
	return math.Exp(-elapsed.Hours() / decayHours)
}

// Compute returns the score terms for e at now.
func Compute(e *hint.Entry, now time.Time) Breakdown {
	return Breakdown{
		Frecency:    Frecency(e.UseCount, e.LastUsedAt, now),
		Priority:    float64(e.Meta.EffectivePriority()) / 10,
		Confidence:  e.Meta.EffectiveConfidence(),
		Specificity: Specificity(match.Specificity(e.Meta.Scope)),
		Recency:     Recency(e.UpdatedAt, now),
	}
}

// Score evaluates e against ctx and returns a ranked Match. Ineligible
// entries score zero and carry the failing clause as their only reason.
func Score(e *hint.Entry, ctx hint.Context, now time.Time) hint.Match {
	res := match.Evaluate(e.Meta.Scope, ctx)
	if !res.Eligible {
		return hint.Match{
			Entry:   e,
			Explain: hint.Explanation{Matched: false, Reasons: res.Reasons},
		}
	}

	b := Compute(e, now)
	score := b.Total()
	reasons := append([]string(nil), res.Reasons...)
	reasons = append(reasons, usageReasons(e, now)...)
	if p := e.Meta.EffectivePriority(); p >= 8 {
		reasons = append(reasons, fmt.Sprintf("high priority (%d/10)", p))
	}
	if c := e.Meta.EffectiveConfidence(); c >= 0.8 {
		reasons = append(reasons, fmt.Sprintf("high confidence (%.1f)", c))
	}
	name, v := b.dominant()
	reasons = append(reasons, fmt.Sprintf("top signal: %s (%.2f)", name, v))

	return hint.Match{
		Entry: e,
		Score: score,
		Explain: hint.Explanation{
			Matched: true,
			Score:   math.Round(score*100) / 100,
			Reasons: reasons,
		},
	}
}

func usageReasons(e *hint.Entry, now time.Time) []string {
	if e.UseCount <= 0 {
		return nil
	}
	var out []string
	if e.LastUsedAt != nil {
		out = append(out, lastUsedPhrase(now.Sub(*e.LastUsedAt)))
	}
	times := "times"
	if e.UseCount == 1 {
		times = "time"
	}
	return append(out, fmt.Sprintf("used %d %s", e.UseCount, times))
}

func lastUsedPhrase(ago time.Duration) string {
	if ago < 0 {
		ago = 0
	}
	switch {
	case ago < 5*time.Minute:
		return fmt.Sprintf("recently used (%dm ago)", int(ago.Minutes()))
	case ago < time.Hour:
		return fmt.Sprintf("used %d minutes ago", int(ago.Minutes()))
	case ago < 24*time.Hour:
		return fmt.Sprintf("used %d hours ago", int(ago.Hours()))
	case ago < 48*time.Hour:
		return "used yesterday"
	default:
		return fmt.Sprintf("used %d days ago", int(ago.Hours()/24))
	}
}

// Sort orders matches by descending score, then most recently updated,
// then key, then component, giving a total order.
func Sort(matches []hint.Match) {
	slices.SortFunc(matches, compare)
}

func compare(a, b hint.Match) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	}
	if c := b.Entry.UpdatedAt.Compare(a.Entry.UpdatedAt); c != 0 {
		return c
	}
	if c := strings.Compare(a.Entry.Key, b.Entry.Key); c != 0 {
		return c
	}
	return strings.Compare(a.Entry.Component, b.Entry.Component)
}

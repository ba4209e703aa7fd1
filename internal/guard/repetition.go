// Package guard detects near-duplicate responses against recent channel
// history, so the agent does not loop on one phrase.
package guard

import (
	"github.com/agnivade/levenshtein"
)

// RepetitionGuard compares candidate responses against recent history using
// normalized edit distance. It is a pure value: no side effects, safe to
// share.
type RepetitionGuard struct {
	threshold float64
	lookback  int
}

// New creates a guard. threshold is the similarity in [0,1] at or above
// which a candidate counts as repetitive; lookback caps how many recent
// responses are compared.
func New(threshold float64, lookback int) RepetitionGuard {
	return RepetitionGuard{threshold: threshold, lookback: lookback}
}

// IsRepetitive reports whether candidate is too similar to any of the
// recent responses (most recent first). Empty-string comparisons score 0 so
// an empty history never produces false positives.
func (g RepetitionGuard) IsRepetitive(candidate string, recent []string) bool {
	n := len(recent)
	if g.lookback > 0 && n > g.lookback {
		n = g.lookback
	}
	for i := 0; i < n; i++ {
		if Similarity(candidate, recent[i]) >= g.threshold {
			return true
		}
	}
	return false
}

// Similarity returns 1 - editDistance/maxLen in [0,1]. Either side being
// empty yields 0.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	la, lb := len([]rune(a)), len([]rune(b))
	max := la
	if lb > max {
		max = lb
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(max)
}

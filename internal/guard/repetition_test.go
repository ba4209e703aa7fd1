package guard

import "testing"

func TestSimilarityIdentical(t *testing.T) {
	if s := Similarity("hello world", "hello world"); s != 1 {
		t.Fatalf("Similarity = %v, want 1", s)
	}
}

func TestSimilarityEmptySides(t *testing.T) {
	if s := Similarity("", "hello"); s != 0 {
		t.Fatalf("Similarity(\"\", x) = %v, want 0", s)
	}
	if s := Similarity("hello", ""); s != 0 {
		t.Fatalf("Similarity(x, \"\") = %v, want 0", s)
	}
}

func TestSimilarityDisjoint(t *testing.T) {
	if s := Similarity("aaaa", "zzzz"); s != 0 {
		t.Fatalf("Similarity of disjoint strings = %v, want 0", s)
	}
}

func TestSimilarityNearDuplicate(t *testing.T) {
	s := Similarity("I love streaming games", "I love streaming game")
	if s < 0.9 {
		t.Fatalf("near-duplicate similarity = %v, want >= 0.9", s)
	}
}

func TestIsRepetitiveMatchesRecent(t *testing.T) {
	g := New(0.9, 3)
	recent := []string{"that was so much fun", "hello everyone"}

	if !g.IsRepetitive("that was so much fun", recent) {
		t.Fatal("exact duplicate not flagged")
	}
	if g.IsRepetitive("completely different reply about trains", recent) {
		t.Fatal("novel response flagged")
	}
}

func TestIsRepetitiveHonorsLookback(t *testing.T) {
	g := New(0.9, 1)
	recent := []string{"newest response", "old duplicate target"}

	// Only the single most recent entry is compared.
	if g.IsRepetitive("old duplicate target", recent) {
		t.Fatal("entry beyond lookback was compared")
	}
	if !g.IsRepetitive("newest response", recent) {
		t.Fatal("entry within lookback not compared")
	}
}

func TestIsRepetitiveEmptyHistory(t *testing.T) {
	g := New(0.5, 5)
	if g.IsRepetitive("anything", nil) {
		t.Fatal("empty history flagged a response")
	}
}

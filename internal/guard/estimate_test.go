package guard

import "testing"

func TestCharEstimator(t *testing.T) {
	tests := []struct {
		per  int
		text string
		want int
	}{
		{4, "", 0},
		{4, "abc", 1},
		{4, "abcd", 1},
		{4, "abcde", 2},
		{0, "abcdefgh", 2},
		{2, "éééé", 2},
	}
	for _, tt := range tests {
		if got := (CharEstimator{CharsPerToken: tt.per}).Estimate(tt.text); got != tt.want {
			t.Errorf("Estimate(%q, per=%d) = %d, want %d", tt.text, tt.per, got, tt.want)
		}
	}
}

type stubEstimator int

func (s stubEstimator) Estimate(string) int { return int(s) }

func TestTiktokenEstimator_Fallback(t *testing.T) {
	e := NewTiktokenEstimator("no_such_encoding", quietLogger())
	e.Fallback = stubEstimator(42)
	if got := e.Estimate("hello"); got != 42 {
		t.Errorf("Estimate = %d, want fallback value", got)
	}
}

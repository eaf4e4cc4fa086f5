package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func items[T any](in []Scored[T]) []T {
	out := make([]T, len(in))
	for i, s := range in {
		out[i] = s.Item
	}
	return out
}

func TestRank_DescendingWithStableTies(t *testing.T) {
	got := Rank([]string{"a", "b", "c", "d"}, []float64{0.2, 0.9, 0.2, 0.9}, Options[string]{})
	assert.Equal(t, []string{"b", "d", "a", "c"}, items(got))
}

func TestRank_Deterministic(t *testing.T) {
	cands := []string{"p", "q", "r", "s", "t"}
	scores := []float64{0.5, 0.5, 0.5, 0.1, 0.5}
	first := Rank(cands, scores, Options[string]{K: 3})
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Rank(cands, scores, Options[string]{K: 3}))
	}
	assert.Equal(t, []string{"p", "q", "r"}, items(first))
}

func TestRank_ExcludesSelfEvenWhenBest(t *testing.T) {
	self := "me"
	got := TopK([]string{"me", "x", "y"}, []float64{1, 0.3, 0.4}, PeerTopK, func(s string) bool { return s == self })
	assert.Equal(t, []string{"y", "x"}, items(got))
}

func TestRank_Threshold(t *testing.T) {
	got := Rank([]string{"a", "b", "c"}, []float64{0.49, 0.5, 0.8}, Options[string]{MinScore: Threshold(DefaultThreshold)})
	assert.Equal(t, []string{"c", "b"}, items(got))
}

func TestRank_NoCapWhenKIsZero(t *testing.T) {
	got := Rank([]int{1, 2, 3, 4, 5}, []float64{1, 2, 3, 4, 5}, Options[int]{})
	assert.Len(t, got, 5)
}

func TestRank_MismatchedLengthsUsesShorter(t *testing.T) {
	got := Rank([]string{"a", "b", "c"}, []float64{0.1, 0.2}, Options[string]{})
	assert.Equal(t, []string{"b", "a"}, items(got))
}

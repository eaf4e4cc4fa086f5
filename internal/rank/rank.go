// Package rank orders scored candidates into a deterministic top-K.
package rank

import "sort"

const (
	// PeerTopK caps peer matching results.
	PeerTopK = 3
	// TeamTopK caps candidates per role in the team builder.
	TeamTopK = 3
	// DefaultThreshold is the minimum similarity for semantic matches.
	DefaultThreshold = 0.5
)

// Scored pairs a candidate with its similarity score.
type Scored[T any] struct {
	Item  T       `json:"item"`
	Score float64 `json:"score"`
}

// Options control what Rank keeps.
type Options[T any] struct {
	// K caps the result length; 0 or less means no cap.
	K int
	// Exclude drops candidates before ranking, typically the query subject.
	Exclude func(T) bool
	// MinScore, when set, drops candidates scoring below it.
	MinScore *float64
}

// Threshold returns a MinScore value.
func Threshold(v float64) *float64 { return &v }

// Rank returns candidates ordered by score descending. Ties keep input order.
// candidates and scores are paired by index; extra entries on either side
// are ignored.
func Rank[T any](candidates []T, scores []float64, opts Options[T]) []Scored[T] {
	n := min(len(candidates), len(scores))
	out := make([]Scored[T], 0, n)
	for i := 0; i < n; i++ {
		c := candidates[i]
		if opts.Exclude != nil && opts.Exclude(c) {
			continue
		}
		if opts.MinScore != nil && scores[i] < *opts.MinScore {
			continue
		}
		out = append(out, Scored[T]{Item: c, Score: scores[i]})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	if opts.K > 0 && len(out) > opts.K {
		out = out[:opts.K]
	}
	return out
}

// TopK is Rank with only a cap and an exclusion.
func TopK[T any](candidates []T, scores []float64, k int, exclude func(T) bool) []Scored[T] {
	return Rank(candidates, scores, Options[T]{K: k, Exclude: exclude})
}

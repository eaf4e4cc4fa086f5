// Package similarity scores vectors against each other with cosine similarity.
package similarity

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Float is the element type of a comparable vector.
type Float interface {
	~float32 | ~float64
}

// Cosine returns dot(a,b) / (|a|*|b|). Empty vectors, vectors of different
// length, and zero-magnitude vectors all score 0.
func Cosine[T Float](a, b []T) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Against scores query against every candidate, in candidate order.
func Against[T Float](query []T, candidates [][]T) []float64 {
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		out[i] = Cosine(query, c)
	}
	return out
}

// parallelThreshold is the pool size below which rows are computed inline.
const parallelThreshold = 64

// Scorer computes pairwise matrices, spreading rows over a bounded goroutine
// pool for large pools.
type Scorer struct {
	pool *ants.Pool
}

// NewScorer creates a Scorer with size workers. size <= 0 uses half the CPUs.
func NewScorer(size int) (*Scorer, error) {
	if size <= 0 {
		size = runtime.NumCPU() / 2
		if size < 1 {
			size = 1
		}
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("creating scoring pool: %w", err)
	}
	return &Scorer{pool: pool}, nil
}

// Release stops the worker pool.
func (s *Scorer) Release() {
	if s != nil && s.pool != nil {
		s.pool.Release()
	}
}

// Matrix returns the full pairwise similarity matrix of vectors.
// Each row is independent, so the result equals the sequential computation.
func (s *Scorer) Matrix(vectors [][]float64) [][]float64 {
	n := len(vectors)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}

	row := func(i int) {
		for j := range vectors {
			m[i][j] = Cosine(vectors[i], vectors[j])
		}
	}

	if s == nil || s.pool == nil || n < parallelThreshold {
		for i := range vectors {
			row(i)
		}
		return m
	}

	var wg sync.WaitGroup
	for i := range vectors {
		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			row(i)
		}); err != nil {
			// Pool closed or overloaded: compute inline.
			row(i)
			wg.Done()
		}
	}
	wg.Wait()
	return m
}

// Matrix computes the pairwise matrix without a worker pool.
func Matrix(vectors [][]float64) [][]float64 {
	var s *Scorer
	return s.Matrix(vectors)
}

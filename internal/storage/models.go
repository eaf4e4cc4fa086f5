package storage

import (
	"errors"

	"github.com/kalambet/colab/internal/filter"
	"github.com/kalambet/colab/internal/model"
	"github.com/kalambet/colab/internal/rank"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ScoredProfile is a profile ranked by a matching procedure.
type ScoredProfile = rank.Scored[model.Profile]

// MatchParams are the inputs of the match_profiles procedure.
type MatchParams struct {
	Embedding   []float32
	Constraints filter.Constraints
	// Threshold is the minimum cosine similarity a profile needs.
	Threshold float64
	// Limit caps the result; 0 means no cap.
	Limit int
}

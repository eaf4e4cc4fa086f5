// Package reputation reports a profile's reliability: the mean of the
// ratings teammates gave it.
package reputation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/colab/internal/cache"
	"github.com/kalambet/colab/internal/metrics"
)

// TTL is how long a computed score is reused.
const TTL = 5 * time.Minute

const (
	LabelNoReviews = "No Reviews"
	LabelNoData    = "No data"
)

// Store provides the rating aggregate.
type Store interface {
	AverageRating(ctx context.Context, email string) (float64, bool, error)
}

type score struct {
	value float64
	ok    bool
}

// Service caches reliability scores.
type Service struct {
	store   Store
	cache   *cache.TTL[string, score]
	metrics *metrics.Collector
}

func NewService(store Store, m *metrics.Collector) *Service {
	return NewServiceWithClock(store, cache.RealClock(), m)
}

func NewServiceWithClock(store Store, clock cache.Clock, m *metrics.Collector) *Service {
	return &Service{
		store:   store,
		cache:   cache.NewWithClock[string, score](clock, TTL),
		metrics: m,
	}
}

// Score returns the mean rating for email. ok is false when nobody has
// reviewed the profile yet.
func (s *Service) Score(ctx context.Context, email string) (float64, bool, error) {
	if v, hit := s.cache.Get(email); hit {
		s.metrics.CacheLookup("reputation", true)
		return v.value, v.ok, nil
	}
	s.metrics.CacheLookup("reputation", false)

	avg, ok, err := s.store.AverageRating(ctx, email)
	if err != nil {
		return 0, false, fmt.Errorf("loading rating for %s: %w", email, err)
	}
	s.cache.Set(email, score{value: avg, ok: ok})
	return avg, ok, nil
}

// Label formats the score for display. Lookup failures degrade to "No data".
func (s *Service) Label(ctx context.Context, email string) string {
	v, ok, err := s.Score(ctx, email)
	if err != nil {
		slog.Warn("reliability lookup failed", "email", email, "error", err)
		s.metrics.CollaboratorFailed("reputation")
		return LabelNoData
	}
	return FormatLabel(v, ok)
}

// FormatLabel renders a score as "4.5/5", or "No Reviews" when ok is false.
func FormatLabel(v float64, ok bool) string {
	if !ok {
		return LabelNoReviews
	}
	return fmt.Sprintf("%.1f/5", v)
}

// Clear drops every cached score. Review writes call it.
func (s *Service) Clear() { s.cache.Clear() }

package vectorize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kalambet/colab/internal/cache"
	"github.com/kalambet/colab/internal/metrics"
)

// EmbeddingTTL is how long an embedding stays cached for a given text.
const EmbeddingTTL = time.Hour

// embedTimeout bounds one provider call.
const embedTimeout = 15 * time.Second

// ErrEmptyText is returned by Embed for blank input.
var ErrEmptyText = errors.New("empty text")

// Provider produces a dense vector for text. Implemented by engine.Engine.
type Provider interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Embedder wraps a Provider with a per-text cache.
type Embedder struct {
	provider Provider
	model    string
	cache    *cache.TTL[string, []float32]
	group    singleflight.Group
	metrics  *metrics.Collector
}

// NewEmbedder creates an Embedder using the given provider and model name.
func NewEmbedder(p Provider, model string, m *metrics.Collector) *Embedder {
	return NewEmbedderWithCache(p, model, cache.New[string, []float32](EmbeddingTTL), m)
}

// NewEmbedderWithCache creates an Embedder with a caller-owned cache (for testing).
func NewEmbedderWithCache(p Provider, model string, c *cache.TTL[string, []float32], m *metrics.Collector) *Embedder {
	return &Embedder{provider: p, model: model, cache: c, metrics: m}
}

// Embed returns the embedding for text. The cache is keyed by the exact
// input; newlines are replaced with spaces only in what is sent to the
// provider. Concurrent misses for the same text share one provider call.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if vec, ok := e.cache.Get(text); ok {
		e.metrics.CacheLookup("embedding", true)
		return vec, nil
	}
	e.metrics.CacheLookup("embedding", false)

	v, err, _ := e.group.Do(text, func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, embedTimeout)
		defer cancel()
		vec, err := e.provider.Embed(callCtx, e.model, normalizeNewlines(text))
		if err != nil {
			return nil, fmt.Errorf("embedding text: %w", err)
		}
		if len(vec) == 0 {
			return nil, errors.New("embedding text: provider returned an empty vector")
		}
		e.cache.Set(text, vec)
		return vec, nil
	})
	if err != nil {
		e.metrics.CollaboratorFailed("embedding")
		return nil, err
	}
	return v.([]float32), nil
}

// VectorizeOne is the soft form of Embed: any failure is logged and yields nil,
// which callers treat as "cannot vectorize".
func (e *Embedder) VectorizeOne(ctx context.Context, text string) []float32 {
	vec, err := e.Embed(ctx, text)
	if err != nil {
		if !errors.Is(err, ErrEmptyText) {
			slog.Warn("vectorization failed", "error", err)
		}
		return nil
	}
	return vec
}

// EmbedBatch returns embeddings for multiple texts concurrently, in input
// order. Entries that fail are nil; the batch itself never fails.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 {
		return nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, text := range texts {
		g.Go(func() error {
			results[i] = e.VectorizeOne(gCtx, text)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ClearCache drops every cached embedding.
func (e *Embedder) ClearCache() { e.cache.Clear() }

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

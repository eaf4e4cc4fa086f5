package engine

import (
	"context"
	"fmt"
	"io"
)

// Config selects and configures a backend.
type Config struct {
	Provider string // "openai" or "ollama"
	BaseURL  string
	APIKey   string
}

// New returns the Engine for cfg.Provider.
func New(cfg Config) (Engine, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIEngine(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL})
	case "ollama":
		return NewOllamaEngine(cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown engine provider %q", cfg.Provider)
	}
}

// EnsureReady checks that the Engine is reachable. Backends that host models
// locally get any missing model pulled, with progress written to w.
func EnsureReady(ctx context.Context, e Engine, models []string, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("inference engine is not running; please ensure the backend is started")
	}

	mm, ok := e.(ModelManager)
	if !ok {
		return nil
	}

	seen := make(map[string]bool, len(models))
	for _, model := range models {
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true

		if mm.HasModel(ctx, model) {
			fmt.Fprintf(w, "model %s: ready\n", model)
			continue
		}

		fmt.Fprintf(w, "model %s: pulling...\n", model)
		err := mm.PullModel(ctx, model, func(p PullProgress) {
			if p.Total > 0 {
				pct := float64(p.Completed) / float64(p.Total) * 100
				fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, pct)
			} else {
				fmt.Fprintf(w, "  %s\n", p.Status)
			}
		})
		if err != nil {
			return fmt.Errorf("pulling model %s: %w", model, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}
	return nil
}

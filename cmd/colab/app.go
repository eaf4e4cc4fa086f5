package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kalambet/colab/internal/api"
	"github.com/kalambet/colab/internal/config"
	"github.com/kalambet/colab/internal/directory"
	"github.com/kalambet/colab/internal/engine"
	"github.com/kalambet/colab/internal/github"
	"github.com/kalambet/colab/internal/intent"
	"github.com/kalambet/colab/internal/matching"
	"github.com/kalambet/colab/internal/metrics"
	"github.com/kalambet/colab/internal/report"
	"github.com/kalambet/colab/internal/reputation"
	"github.com/kalambet/colab/internal/similarity"
	"github.com/kalambet/colab/internal/storage"
	"github.com/kalambet/colab/internal/storage/supabase"
	"github.com/kalambet/colab/internal/vectorize"
)

const sessionIdle = 2 * time.Hour

// recordStore is what both storage backends provide.
type recordStore interface {
	directory.Store
	matching.Procedures
	reputation.Store
	Close() error
}

var (
	_ recordStore = (*storage.Store)(nil)
	_ recordStore = (*supabase.Store)(nil)
)

func openStore(cfg config.Config) (recordStore, error) {
	if cfg.Storage.Backend == "supabase" {
		s, err := supabase.Open(cfg.Supabase.URL, cfg.Supabase.Key)
		if err != nil {
			return nil, fmt.Errorf("connecting to supabase: %w", err)
		}
		return s, nil
	}
	s, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return s, nil
}

// app is the wired service graph behind `colab serve` and `colab mcp`.
type app struct {
	deps   api.Deps
	store  recordStore
	scorer *similarity.Scorer
}

func buildApp(ctx context.Context, cfg config.Config, progress io.Writer) (*app, error) {
	eng, err := engine.New(engine.Config{
		Provider: cfg.Engine.Provider,
		BaseURL:  cfg.Engine.BaseURL,
		APIKey:   cfg.Engine.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating inference engine: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, []string{cfg.Engine.IntentModel, cfg.Engine.ReportModel, cfg.Engine.EmbedModel}, progress); err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	scorer, err := similarity.NewScorer(0)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating scorer pool: %w", err)
	}

	m := metrics.NewCollector("colab")
	embedder := vectorize.NewEmbedder(eng, cfg.Engine.EmbedModel, m)
	dir := directory.New(store, embedder, directory.Options{ProfileTTL: cfg.ProfileTTL(), Metrics: m})
	rep := reputation.NewService(store, m)
	dir.InvalidateWith(rep)
	gh := github.NewAnalyzer(github.NewClient(cfg.GitHub.BaseURL, cfg.GitHub.Token), m)

	svc := matching.NewService(matching.Deps{
		Directory:  dir,
		Embedder:   embedder,
		Extractor:  intent.NewExtractor(eng, cfg.Engine.IntentModel),
		Procedures: store,
		Reputation: rep,
		GitHub:     gh,
		Reporter:   report.NewGenerator(eng, cfg.Engine.ReportModel, m),
		Scorer:     scorer,
		Metrics:    m,
	}, matching.Options{
		Threshold:  cfg.Matching.Threshold,
		PeerTopK:   cfg.Matching.PeerTopK,
		TeamTopK:   cfg.Matching.TeamTopK,
		ServerSide: cfg.Storage.Backend == "supabase",
	})

	return &app{
		deps: api.Deps{
			Directory:  dir,
			Matching:   svc,
			Sessions:   matching.NewSessions(sessionIdle),
			Reputation: rep,
			GitHub:     gh,
			Metrics:    m,
		},
		store:  store,
		scorer: scorer,
	}, nil
}

func (a *app) Close() error {
	a.scorer.Release()
	return a.store.Close()
}

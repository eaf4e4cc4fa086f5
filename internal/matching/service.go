// Package matching orchestrates the match flows: lexical peer matching,
// semantic role matching, the conversational recruiter search and the
// dream-team builder.
package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/colab/internal/directory"
	"github.com/kalambet/colab/internal/filter"
	"github.com/kalambet/colab/internal/intent"
	"github.com/kalambet/colab/internal/metrics"
	"github.com/kalambet/colab/internal/model"
	"github.com/kalambet/colab/internal/rank"
	"github.com/kalambet/colab/internal/report"
	"github.com/kalambet/colab/internal/similarity"
	"github.com/kalambet/colab/internal/storage"
	"github.com/kalambet/colab/internal/vectorize"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProjectNotFound = errors.New("project not found")
	// ErrVectorization is the directory's sentinel, so callers can check
	// either package.
	ErrVectorization = directory.ErrVectorization
)

// Directory is the snapshot source.
type Directory interface {
	Profiles(ctx context.Context) ([]model.Profile, error)
	Project(ctx context.Context, id string) (model.Project, error)
}

// Embedder returns a dense vector, or nil when the text cannot be vectorized.
type Embedder interface {
	VectorizeOne(ctx context.Context, text string) []float32
}

// IntentExtractor parses recruiter queries.
type IntentExtractor interface {
	Extract(ctx context.Context, query string) intent.SearchIntent
}

// Procedures are the ranking procedures the record store runs.
type Procedures interface {
	MatchProfiles(ctx context.Context, p storage.MatchParams) ([]storage.ScoredProfile, error)
	MatchProfilesForProject(ctx context.Context, embedding []float32, role model.Role) ([]storage.ScoredProfile, error)
}

// Reputation labels a profile's reliability.
type Reputation interface {
	Label(ctx context.Context, email string) string
}

// CodeAnalyzer summarizes a code-hosting handle.
type CodeAnalyzer interface {
	Summary(ctx context.Context, user string) string
}

// Reporter streams a narrative report for a briefing.
type Reporter interface {
	Stream(ctx context.Context, briefing string) <-chan report.Chunk
}

// Deps are the collaborators of a Service.
type Deps struct {
	Directory  Directory
	Embedder   Embedder
	Extractor  IntentExtractor
	Procedures Procedures
	Reputation Reputation
	GitHub     CodeAnalyzer
	Reporter   Reporter
	Scorer     *similarity.Scorer
	Metrics    *metrics.Collector
}

// Options tune ranking.
type Options struct {
	// Threshold is the minimum similarity for semantic matches; 0 uses rank.DefaultThreshold.
	Threshold float64
	PeerTopK  int
	TeamTopK  int
	// ServerSide runs semantic matching in the store's match_profiles
	// procedure instead of over the in-memory snapshot.
	ServerSide bool
}

// Service runs the match flows.
type Service struct {
	deps Deps
	opts Options
}

func NewService(deps Deps, opts Options) *Service {
	if opts.Threshold == 0 {
		opts.Threshold = rank.DefaultThreshold
	}
	if opts.PeerTopK <= 0 {
		opts.PeerTopK = rank.PeerTopK
	}
	if opts.TeamTopK <= 0 {
		opts.TeamTopK = rank.TeamTopK
	}
	return &Service{deps: deps, opts: opts}
}

// Match is a ranked candidate. Reliability and GitHub are filled by the
// flows that show them.
type Match struct {
	Profile     model.Profile `json:"profile"`
	Score       float64       `json:"score"`
	Reliability string        `json:"reliability,omitempty"`
	GitHub      string        `json:"github_analysis,omitempty"`
}

func toMatches(scored []rank.Scored[model.Profile]) []Match {
	out := make([]Match, len(scored))
	for i, s := range scored {
		out[i] = Match{Profile: s.Item, Score: s.Score}
	}
	return out
}

// PeerMatches ranks every other profile by lexical similarity of their
// skills and goals to those of email. The vocabulary is fitted on the whole
// pool for this request only. Pools of fewer than two profiles yield no
// matches without looking up email.
func (s *Service) PeerMatches(ctx context.Context, email string) (matches []Match, err error) {
	started := time.Now()
	defer func() { s.deps.Metrics.ObserveMatch("peer", outcome(err), started) }()

	profiles, err := s.deps.Directory.Profiles(ctx)
	if err != nil {
		return nil, err
	}
	if len(profiles) < 2 {
		return []Match{}, nil
	}
	email = strings.TrimSpace(email)
	subject := -1
	for i, p := range profiles {
		if p.Email == email {
			subject = i
			break
		}
	}
	if subject < 0 {
		return nil, fmt.Errorf("%s: %w", email, ErrProfileNotFound)
	}

	texts := make([]string, len(profiles))
	for i, p := range profiles {
		texts[i] = p.Skills + " " + p.Goals
	}
	matrix := s.deps.Scorer.Matrix(vectorize.NewLexical(texts).Vectors())

	scored := rank.TopK(profiles, matrix[subject], s.opts.PeerTopK, func(p model.Profile) bool {
		return p.Email == email
	})
	return toMatches(scored), nil
}

// SemanticQuery describes a semantic role search.
type SemanticQuery struct {
	Text        string
	Constraints filter.Constraints
	// Threshold of 0 uses the service default.
	Threshold float64
	// Limit of 0 returns every match above the threshold.
	Limit        int
	ExcludeEmail string
}

// SemanticMatch embeds q.Text once and ranks the profiles that pass the
// constraints by cosine similarity with their skills embedding. Profiles
// saved without an embedding are embedded on the fly.
func (s *Service) SemanticMatch(ctx context.Context, q SemanticQuery) (matches []Match, err error) {
	started := time.Now()
	defer func() { s.deps.Metrics.ObserveMatch("semantic", outcome(err), started) }()

	threshold := q.Threshold
	if threshold == 0 {
		threshold = s.opts.Threshold
	}

	query := s.deps.Embedder.VectorizeOne(ctx, q.Text)
	if query == nil {
		return nil, ErrVectorization
	}

	exclude := func(p model.Profile) bool {
		return q.ExcludeEmail != "" && p.Email == q.ExcludeEmail
	}

	if s.opts.ServerSide {
		scored, err := s.deps.Procedures.MatchProfiles(ctx, storage.MatchParams{
			Embedding:   query,
			Constraints: q.Constraints,
			Threshold:   threshold,
		})
		if err != nil {
			return nil, fmt.Errorf("running match procedure: %w", err)
		}
		var kept []model.Profile
		var scores []float64
		for _, sp := range scored {
			kept = append(kept, sp.Item)
			scores = append(scores, sp.Score)
		}
		return toMatches(rank.Rank(kept, scores, rank.Options[model.Profile]{K: q.Limit, Exclude: exclude})), nil
	}

	profiles, err := s.deps.Directory.Profiles(ctx)
	if err != nil {
		return nil, err
	}
	pool := filter.Apply(profiles, q.Constraints)

	vecs := make([][]float32, len(pool))
	for i, p := range pool {
		vecs[i] = p.SkillsEmbedding
		if vecs[i] == nil && strings.TrimSpace(p.Skills) != "" {
			vecs[i] = s.deps.Embedder.VectorizeOne(ctx, p.Skills)
		}
	}

	scored := rank.Rank(pool, similarity.Against(query, vecs), rank.Options[model.Profile]{
		K:        q.Limit,
		Exclude:  exclude,
		MinScore: rank.Threshold(threshold),
	})
	return toMatches(scored), nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrVectorization):
		return "vectorization_failed"
	case errors.Is(err, ErrProfileNotFound), errors.Is(err, ErrProjectNotFound):
		return "not_found"
	default:
		return "error"
	}
}

package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/colab/internal/filter"
	"github.com/kalambet/colab/internal/model"
	"github.com/kalambet/colab/internal/rank"
	"github.com/kalambet/colab/internal/report"
	"github.com/kalambet/colab/internal/similarity"
	"github.com/kalambet/colab/internal/storage"
)

const enrichConcurrency = 8

// RoleCandidates are the proposed teammates for one open role.
type RoleCandidates struct {
	Role       model.Role `json:"role"`
	Candidates []Match    `json:"candidates"`
}

// Team is the dream-team proposal for a project.
type Team struct {
	Project  model.Project    `json:"project"`
	Roles    []RoleCandidates `json:"roles"`
	Briefing string           `json:"briefing"`
}

// BuildTeam proposes up to TeamTopK candidates for each distinct open role of
// the project, in first-seen order, enriched with reliability and GitHub
// summaries. The project leader is never proposed. Unless the store ranks
// server-side, profiles without a stored skills embedding are embedded on the
// fly and ranked alongside the procedure's results.
func (s *Service) BuildTeam(ctx context.Context, projectID string) (team *Team, err error) {
	started := time.Now()
	defer func() { s.deps.Metrics.ObserveMatch("team", outcome(err), started) }()

	project, err := s.deps.Directory.Project(ctx, projectID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", projectID, ErrProjectNotFound)
	}
	if err != nil {
		return nil, err
	}

	embedding := project.Embedding
	if embedding == nil {
		embedding = s.deps.Embedder.VectorizeOne(ctx, project.EmbeddingText())
		if embedding == nil {
			return nil, ErrVectorization
		}
	}

	var pending []model.Profile
	if !s.opts.ServerSide {
		var lerr error
		if pending, lerr = s.unembedded(ctx); lerr != nil {
			slog.Warn("loading profiles without embeddings failed", "project", project.ID, "error", lerr)
		}
	}

	roles := project.OpenRoles()
	out := &Team{Project: project, Roles: make([]RoleCandidates, len(roles))}
	for i, role := range roles {
		out.Roles[i] = RoleCandidates{Role: role, Candidates: []Match{}}

		scored, err := s.deps.Procedures.MatchProfilesForProject(ctx, embedding, role)
		if err != nil {
			slog.Warn("team match failed for role", "project", project.ID, "role", role, "error", err)
			s.deps.Metrics.CollaboratorFailed("store")
			continue
		}
		scored = s.withEmbeddedOnTheFly(ctx, scored, pending, role, embedding)
		for _, sp := range scored {
			if sp.Item.Email == project.LeaderEmail {
				continue
			}
			out.Roles[i].Candidates = append(out.Roles[i].Candidates, Match{Profile: sp.Item, Score: sp.Score})
			if len(out.Roles[i].Candidates) == s.opts.TeamTopK {
				break
			}
		}
	}

	s.enrich(ctx, out.Roles)
	out.Briefing = report.BuildBriefing(project.Title, project.Description, sections(out.Roles))
	return out, nil
}

func (s *Service) unembedded(ctx context.Context) ([]model.Profile, error) {
	profiles, err := s.deps.Directory.Profiles(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Profile
	for _, p := range profiles {
		if len(p.SkillsEmbedding) == 0 && strings.TrimSpace(p.Skills) != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// withEmbeddedOnTheFly scores the role's profiles from pending against query
// and merges them into scored, keeping score order. Profiles whose skills
// cannot be vectorized are left out.
func (s *Service) withEmbeddedOnTheFly(ctx context.Context, scored []storage.ScoredProfile, pending []model.Profile, role model.Role, query []float32) []storage.ScoredProfile {
	var extra []model.Profile
	var vecs [][]float32
	for _, p := range filter.Apply(pending, filter.Constraints{Role: role}) {
		if v := s.deps.Embedder.VectorizeOne(ctx, p.Skills); v != nil {
			extra = append(extra, p)
			vecs = append(vecs, v)
		}
	}
	if len(extra) == 0 {
		return scored
	}

	candidates := make([]model.Profile, 0, len(scored)+len(extra))
	scores := make([]float64, 0, len(scored)+len(extra))
	for _, sp := range scored {
		candidates = append(candidates, sp.Item)
		scores = append(scores, sp.Score)
	}
	candidates = append(candidates, extra...)
	scores = append(scores, similarity.Against(query, vecs)...)
	return rank.Rank(candidates, scores, rank.Options[model.Profile]{})
}

// enrich fills reliability and GitHub summaries concurrently. Both
// collaborators degrade to placeholders on their own.
func (s *Service) enrich(ctx context.Context, roles []RoleCandidates) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i := range roles {
		for j := range roles[i].Candidates {
			m := &roles[i].Candidates[j]
			g.Go(func() error {
				m.Reliability = s.deps.Reputation.Label(gctx, m.Profile.Email)
				m.GitHub = s.deps.GitHub.Summary(gctx, m.Profile.GitHubUsername)
				return nil
			})
		}
	}
	_ = g.Wait()
}

func sections(roles []RoleCandidates) []report.RoleSection {
	out := make([]report.RoleSection, len(roles))
	for i, r := range roles {
		out[i] = report.RoleSection{Role: r.Role}
		for _, m := range r.Candidates {
			out[i].Candidates = append(out[i].Candidates, report.Candidate{
				Name:        m.Profile.Name,
				Email:       m.Profile.Email,
				Skills:      m.Profile.Skills,
				Reliability: m.Reliability,
				GitHub:      m.GitHub,
			})
		}
	}
	return out
}

// StreamReport streams the narrative report for team.
func (s *Service) StreamReport(ctx context.Context, team *Team) <-chan report.Chunk {
	return s.deps.Reporter.Stream(ctx, team.Briefing)
}

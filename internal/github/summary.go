package github

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kalambet/colab/internal/cache"
	"github.com/kalambet/colab/internal/metrics"
)

// SummaryTTL is how long a summary is reused for the same handle.
const SummaryTTL = 10 * time.Minute

const (
	NoRepos      = "This user has no public repositories."
	NoLanguages  = "No public, non-forked repositories with a detected language."
	NoHandle     = "No GitHub provided."
	Unavailable  = "No data"
	topLanguages = 3
)

// Summarize reports the total repository count and the three most used
// languages among non-forked repositories. Ties keep first-seen order.
func Summarize(repos []Repo) string {
	if len(repos) == 0 {
		return NoRepos
	}

	type langCount struct {
		lang  string
		count int
	}
	var counts []langCount
	index := make(map[string]int)
	for _, r := range repos {
		if r.Fork || r.Language == "" {
			continue
		}
		i, ok := index[r.Language]
		if !ok {
			i = len(counts)
			index[r.Language] = i
			counts = append(counts, langCount{lang: r.Language})
		}
		counts[i].count++
	}
	if len(counts) == 0 {
		return NoLanguages
	}

	sort.SliceStable(counts, func(i, j int) bool { return counts[i].count > counts[j].count })

	var sb strings.Builder
	fmt.Fprintf(&sb, "*GitHub Analysis: %d Public Repos*\n", len(repos))
	for _, c := range counts[:min(topLanguages, len(counts))] {
		noun := "repos"
		if c.count == 1 {
			noun = "repo"
		}
		fmt.Fprintf(&sb, "* *%s:* %d %s\n", c.lang, c.count, noun)
	}
	return sb.String()
}

// Lister lists a user's public repositories.
type Lister interface {
	ListPublicRepos(ctx context.Context, user string) ([]Repo, error)
}

// Analyzer produces cached summaries.
type Analyzer struct {
	lister  Lister
	cache   *cache.TTL[string, string]
	metrics *metrics.Collector
}

func NewAnalyzer(l Lister, m *metrics.Collector) *Analyzer {
	return NewAnalyzerWithClock(l, cache.RealClock(), m)
}

func NewAnalyzerWithClock(l Lister, clock cache.Clock, m *metrics.Collector) *Analyzer {
	return &Analyzer{lister: l, cache: cache.NewWithClock[string, string](clock, SummaryTTL), metrics: m}
}

// Summary returns the summary for user. An empty handle yields NoHandle and
// a failed lookup yields Unavailable; neither is cached.
func (a *Analyzer) Summary(ctx context.Context, user string) string {
	user = strings.TrimSpace(user)
	if user == "" {
		return NoHandle
	}
	if s, ok := a.cache.Get(user); ok {
		a.metrics.CacheLookup("github", true)
		return s
	}
	a.metrics.CacheLookup("github", false)

	repos, err := a.lister.ListPublicRepos(ctx, user)
	if err != nil {
		slog.Warn("github lookup failed", "user", user, "error", err)
		a.metrics.CollaboratorFailed("github")
		return Unavailable
	}
	s := Summarize(repos)
	a.cache.Set(user, s)
	return s
}

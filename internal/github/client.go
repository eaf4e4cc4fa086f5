// Package github summarizes a user's public repositories as evidence of the
// skills on their profile.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const (
	DefaultBaseURL = "https://api.github.com"
	requestTimeout = 10 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
)

// Repo is the part of a repository listing the summary needs.
type Repo struct {
	Name     string `json:"name"`
	Language string `json:"language"`
	Fork     bool   `json:"fork"`
}

// StatusError is returned for non-200 responses. RateLimited is set for 429
// and for 403 with an exhausted X-RateLimit-Remaining quota.
type StatusError struct {
	Status      int
	RateLimited bool
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github: HTTP %d", e.Status)
}

func isRateLimit(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.RateLimited
}

func rateLimited(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return resp.Header.Get("X-RateLimit-Remaining") == "0"
	}
	return false
}

// Client lists repositories through the GitHub REST API. Calls go through a
// circuit breaker so an unreachable API fails fast.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a client. An empty baseURL uses the public API; token is optional.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: requestTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "github",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				// A missing user is an answer and a rate limit is retried; neither is an outage.
				var se *StatusError
				if err == nil || !errors.As(err, &se) {
					return err == nil
				}
				return se.Status == http.StatusNotFound || se.RateLimited
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// ListPublicRepos returns up to 100 public repositories of user. Rate-limited
// responses are retried with exponential backoff.
func (c *Client) ListPublicRepos(ctx context.Context, user string) ([]Repo, error) {
	var lastErr error
	for attempt := range maxRetries {
		out, err := c.breaker.Execute(func() (any, error) {
			return c.list(ctx, user)
		})
		if err == nil {
			return out.([]Repo), nil
		}
		if !isRateLimit(err) {
			return nil, err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (c *Client) list(ctx context.Context, user string) ([]Repo, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/users/%s/repos?per_page=100", c.baseURL, url.PathEscape(user))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing repos for %s: %w", user, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode, RateLimited: rateLimited(resp)}
	}

	var repos []Repo
	if err := json.NewDecoder(resp.Body).Decode(&repos); err != nil {
		return nil, fmt.Errorf("decoding repos: %w", err)
	}
	return repos, nil
}

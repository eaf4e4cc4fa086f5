// Package intent turns a recruiter's free-text query into structured search
// criteria with a single constrained completion call.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/colab/internal/engine"
	"github.com/kalambet/colab/internal/filter"
	"github.com/kalambet/colab/internal/model"
)

const extractionTimeout = 10 * time.Second

// Chatter is the completion capability the Extractor needs. Implemented by engine.Engine.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, opts engine.ChatOptions) (string, error)
}

// SearchIntent is the structured form of a recruiter query. Nil fields mean
// the query did not say.
type SearchIntent struct {
	Role         *model.Role  `json:"role"`
	Availability []model.Slot `json:"availability"`
	SkillsQuery  *string      `json:"skills_query"`
}

// Ambiguous reports whether the intent lacks a role or a skills query, in
// which case the caller should ask for clarification instead of searching.
func (i SearchIntent) Ambiguous() bool {
	return i.Role == nil || i.SkillsQuery == nil
}

// Constraints converts the intent into filter constraints.
func (i SearchIntent) Constraints() filter.Constraints {
	var c filter.Constraints
	if i.Role != nil {
		c.Role = *i.Role
	}
	c.Availability = append(c.Availability, i.Availability...)
	return c
}

// Extractor asks a completion model for a SearchIntent.
type Extractor struct {
	client Chatter
	model  string
}

// NewExtractor creates an Extractor using the given client and model name.
func NewExtractor(client Chatter, model string) *Extractor {
	return &Extractor{client: client, model: model}
}

// Extract parses query into a SearchIntent. On any failure (timeout,
// malformed output, provider error) it returns the zero SearchIntent, which
// is Ambiguous.
func (e *Extractor) Extract(ctx context.Context, query string) SearchIntent {
	if strings.TrimSpace(query) == "" {
		return SearchIntent{}
	}

	ctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	raw, err := e.client.Chat(ctx, e.model, BuildPrompt(query), engine.ChatOptions{
		Temperature: engine.Temperature(0),
		JSON:        true,
		Schema:      intentSchema(),
	})
	if err != nil {
		slog.Warn("intent extraction chat failed", "error", err)
		return SearchIntent{}
	}

	result, err := Parse(raw)
	if err != nil {
		slog.Warn("failed to parse intent from model response", "error", err, "response", raw)
		return SearchIntent{}
	}
	return result
}

// rawIntent accepts the loose shapes models produce.
type rawIntent struct {
	Role         *string         `json:"role"`
	Availability json.RawMessage `json:"availability"`
	SkillsQuery  *string         `json:"skills_query"`
}

// Parse decodes a model response into a SearchIntent, clamping the role to
// the known roles and availability to the known slots. Unknown values are
// dropped rather than rejected.
func Parse(raw string) (SearchIntent, error) {
	obj, err := extractJSONObject(raw)
	if err != nil {
		return SearchIntent{}, err
	}

	var r rawIntent
	if err := json.Unmarshal([]byte(obj), &r); err != nil {
		return SearchIntent{}, fmt.Errorf("unmarshal intent: %w", err)
	}

	var out SearchIntent
	if r.Role != nil {
		if role, ok := model.ParseRole(*r.Role); ok {
			out.Role = &role
		}
	}
	out.Availability = clampSlots(r.Availability)
	if r.SkillsQuery != nil {
		if q := strings.TrimSpace(*r.SkillsQuery); q != "" {
			out.SkillsQuery = &q
		}
	}
	return out, nil
}

func clampSlots(raw json.RawMessage) []model.Slot {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var single string
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil
		}
		list = []string{single}
	}

	var out []model.Slot
	seen := make(map[model.Slot]bool)
	for _, s := range list {
		slot, ok := model.ParseSlot(s)
		if !ok || seen[slot] {
			continue
		}
		seen[slot] = true
		out = append(out, slot)
	}
	return out
}

// extractJSONObject strips markdown code fences and returns the outermost
// {...} span of s.
func extractJSONObject(resp string) (string, error) {
	s := strings.TrimSpace(resp)
	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", errors.New("no JSON object in response")
	}
	return s[start : end+1], nil
}

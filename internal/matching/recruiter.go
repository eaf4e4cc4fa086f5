package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/colab/internal/intent"
)

// EventType identifies a recruiter event.
type EventType string

const (
	EventIntent        EventType = "intent"
	EventClarification EventType = "clarification"
	EventWarning       EventType = "warning"
	EventResults       EventType = "results"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"

	// ClarificationText asks the user to restate an ambiguous query.
	ClarificationText    = "I had trouble understanding that. Can you be more specific about the *role* and *skills* you need?"
	vectorizationWarning = "Could not generate AI embedding for your search."
)

// RecruiterEvent is one step of a recruiter search, in emission order.
type RecruiterEvent struct {
	Type    EventType            `json:"type"`
	Message string               `json:"message,omitempty"`
	Intent  *intent.SearchIntent `json:"intent,omitempty"`
	Matches []Match              `json:"matches,omitempty"`
}

// Confirmation restates an unambiguous intent to the user.
func Confirmation(in intent.SearchIntent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Okay, I'm searching for a *%s* with skills in *'%s'*", *in.Role, *in.SkillsQuery)
	if len(in.Availability) > 0 {
		slots := make([]string, len(in.Availability))
		for i, s := range in.Availability {
			slots[i] = string(s)
		}
		fmt.Fprintf(&b, " who is available on *%s*.", strings.Join(slots, ", "))
	} else {
		b.WriteString(".")
	}
	return b.String()
}

// RecruiterSearch handles one user turn of a recruiter conversation. An
// ambiguous query emits a clarification and stops. Otherwise it emits the
// confirmation, searches, and emits the results with reliability labels. The
// results are kept on the session.
func (s *Service) RecruiterSearch(ctx context.Context, sess *Session, query string, emit func(RecruiterEvent)) (err error) {
	started := time.Now()
	defer func() { s.deps.Metrics.ObserveMatch("recruiter", outcome(err), started) }()

	sess.addTurn(roleUser, query)

	in := s.deps.Extractor.Extract(ctx, query)
	if in.Ambiguous() {
		sess.addTurn(roleAssistant, ClarificationText)
		emit(RecruiterEvent{Type: EventClarification, Message: ClarificationText})
		return nil
	}

	confirm := Confirmation(in)
	sess.addTurn(roleAssistant, confirm)
	emit(RecruiterEvent{Type: EventIntent, Message: confirm, Intent: &in})

	matches, err := s.SemanticMatch(ctx, SemanticQuery{
		Text:         *in.SkillsQuery,
		Constraints:  in.Constraints(),
		ExcludeEmail: sess.OwnerEmail,
	})
	if errors.Is(err, ErrVectorization) {
		slog.Warn("recruiter search could not vectorize query", "session", sess.ID)
		sess.setResults(nil)
		emit(RecruiterEvent{Type: EventWarning, Message: vectorizationWarning})
		emit(RecruiterEvent{Type: EventResults, Matches: []Match{}})
		return nil
	}
	if err != nil {
		return err
	}

	for i := range matches {
		matches[i].Reliability = s.deps.Reputation.Label(ctx, matches[i].Profile.Email)
	}
	sess.setResults(matches)
	emit(RecruiterEvent{Type: EventResults, Matches: matches})
	return nil
}

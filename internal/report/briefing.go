// Package report assembles the dream-team briefing for a project and streams
// a narrative report generated from it.
package report

import (
	"fmt"
	"strings"

	"github.com/kalambet/colab/internal/model"
)

// Candidate is one proposed teammate as it appears in the briefing.
type Candidate struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Skills      string `json:"skills"`
	Reliability string `json:"reliability"`
	GitHub      string `json:"github_analysis"`
}

// RoleSection lists the candidates found for one role.
type RoleSection struct {
	Role       model.Role  `json:"role"`
	Candidates []Candidate `json:"candidates"`
}

// BuildBriefing renders the plain-text briefing handed to the narrative
// model. Sections appear in the given order.
func BuildBriefing(title, description string, roles []RoleSection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project Title: %s\n", title)
	fmt.Fprintf(&b, "Project Description: %s\n\n", description)
	b.WriteString("Here are the roles to fill and the top candidates found by the AI search:\n\n")

	for _, r := range roles {
		fmt.Fprintf(&b, "--- ROLE: %s ---\n", r.Role)
		if len(r.Candidates) == 0 {
			b.WriteString("No candidates found.\n\n")
			continue
		}
		for i, c := range r.Candidates {
			fmt.Fprintf(&b, "Candidate %d: %s (Email: %s)\n", i+1, c.Name, c.Email)
			fmt.Fprintf(&b, "Skills: %s\n", c.Skills)
			fmt.Fprintf(&b, "Reliability: %s\n", c.Reliability)
			fmt.Fprintf(&b, "GitHub Analysis: %s\n", c.GitHub)
			b.WriteString("\n")
		}
	}
	return b.String()
}

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

// matchView is the subset of a match the CLI renders.
type matchView struct {
	Profile struct {
		Email          string `json:"email"`
		Name           string `json:"name"`
		PrimaryRole    string `json:"primary_role"`
		Skills         string `json:"skills"`
		GitHubUsername string `json:"github_username"`
		Availability   struct {
			Weekdays bool `json:"weekdays"`
			Weekends bool `json:"weekends"`
			Evenings bool `json:"evenings"`
		} `json:"availability"`
	} `json:"profile"`
	Score       float64 `json:"score"`
	Reliability string  `json:"reliability"`
	GitHub      string  `json:"github_analysis"`
}

func (m matchView) slots() string {
	var s []string
	a := m.Profile.Availability
	if a.Weekdays {
		s = append(s, "weekdays")
	}
	if a.Weekends {
		s = append(s, "weekends")
	}
	if a.Evenings {
		s = append(s, "evenings")
	}
	if len(s) == 0 {
		return "-"
	}
	return strings.Join(s, ", ")
}

// printMatches renders ranked matches, one block per candidate.
func printMatches(w io.Writer, matches []matchView) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "No matches found.")
		return
	}
	for i, m := range matches {
		fmt.Fprintf(w, "\n%s %s <%s> [score: %.3f]\n",
			colorize(colorBold, fmt.Sprintf("%d.", i+1)), m.Profile.Name, m.Profile.Email, m.Score)
		fmt.Fprintf(w, "   Role: %s   Available: %s\n", m.Profile.PrimaryRole, m.slots())
		if m.Reliability != "" {
			fmt.Fprintf(w, "   Reliability: %s\n", m.Reliability)
		}
		if m.GitHub != "" {
			fmt.Fprintf(w, "   GitHub: %s\n", m.GitHub)
		}
		skills := m.Profile.Skills
		if len([]rune(skills)) > 200 {
			skills = string([]rune(skills)[:200]) + "..."
		}
		fmt.Fprintf(w, "   Skills: %s\n", skills)
	}
}

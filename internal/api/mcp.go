package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/colab/internal/matching"
	"github.com/kalambet/colab/internal/report"
)

const maxToolLimit = 50

// NewMCPServer creates an MCP server exposing the match flows as tools and
// the pitch board as a resource.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"colab",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("colab: find study peers, search for teammates by role and skills, and assemble project teams."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("find_peers",
			mcp.WithDescription("Find the people whose skills and goals are most similar to a user's profile."),
			mcp.WithString("email", mcp.Description("Email of the profile to match"), mcp.Required()),
		),
		mcpFindPeers(deps),
	)

	s.AddTool(
		mcp.NewTool("find_teammates",
			mcp.WithDescription("Semantic search over profiles by required skills, with optional role and availability filters."),
			mcp.WithString("query", mcp.Description("Skills needed, in free text"), mcp.Required()),
			mcp.WithString("role", mcp.Description("Developer, Designer, Project Manager, Researcher or Presenter")),
			mcp.WithArray("availability", mcp.Description("Any of weekdays, weekends, evenings")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default all above threshold)")),
		),
		mcpFindTeammates(deps),
	)

	s.AddTool(
		mcp.NewTool("recruiter_search",
			mcp.WithDescription("Conversational teammate search. Pass the returned session_id back to continue the conversation."),
			mcp.WithString("query", mcp.Description("What kind of teammate you are looking for"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Existing recruiter session to continue")),
			mcp.WithString("owner_email", mcp.Description("Email of the searcher, excluded from results")),
		),
		mcpRecruiterSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("build_team",
			mcp.WithDescription("Propose a dream team for a project's open roles, optionally with a written report."),
			mcp.WithString("project_id", mcp.Description("Project ID"), mcp.Required()),
			mcp.WithBoolean("report", mcp.Description("Also generate the narrative team report")),
		),
		mcpBuildTeam(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"colab://board",
			"Project Board",
			mcp.WithResourceDescription("All project pitches, newest first, with leader names and role status"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceBoard(deps),
	)

	return s
}

func mcpFindPeers(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		email, err := req.RequireString("email")
		if err != nil {
			return mcpError("email is required"), nil
		}
		matches, err := deps.Matching.PeerMatches(ctx, email)
		if err != nil {
			return mcpError(fmt.Sprintf("peer matching failed: %v", err)), nil
		}
		return mcpJSON(matches)
	}
}

func mcpFindTeammates(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		limit := req.GetInt("limit", 0)
		if limit < 0 {
			limit = 0
		}
		if limit > maxToolLimit {
			limit = maxToolLimit
		}

		q, err := SearchRequest{
			Query:        query,
			Role:         req.GetString("role", ""),
			Availability: req.GetStringSlice("availability", nil),
			Limit:        limit,
		}.semanticQuery()
		if err != nil {
			return mcpError(err.Error()), nil
		}

		matches, err := deps.Matching.SemanticMatch(ctx, q)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		for i := range matches {
			matches[i].Reliability = deps.Reputation.Label(ctx, matches[i].Profile.Email)
		}
		return mcpJSON(matches)
	}
}

func mcpRecruiterSearch(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		var sess *matching.Session
		if id := req.GetString("session_id", ""); id != "" {
			s, ok := deps.Sessions.Get(id)
			if !ok {
				return mcpError(fmt.Sprintf("session %s not found", id)), nil
			}
			sess = s
		} else {
			sess = deps.Sessions.Create(req.GetString("owner_email", ""))
		}

		var events []matching.RecruiterEvent
		err = deps.Matching.RecruiterSearch(ctx, sess, query, func(ev matching.RecruiterEvent) {
			events = append(events, ev)
		})
		if err != nil {
			return mcpError(fmt.Sprintf("recruiter search failed: %v", err)), nil
		}

		return mcpJSON(struct {
			SessionID string                    `json:"session_id"`
			Events    []matching.RecruiterEvent `json:"events"`
		}{SessionID: sess.ID, Events: events})
	}
}

func mcpBuildTeam(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("project_id")
		if err != nil {
			return mcpError("project_id is required"), nil
		}
		team, err := deps.Matching.BuildTeam(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("building team failed: %v", err)), nil
		}

		out := struct {
			*matching.Team
			Report string `json:"report,omitempty"`
		}{Team: team}
		if req.GetBool("report", false) {
			text, err := report.Collect(deps.Matching.StreamReport(ctx, team))
			if err != nil {
				return mcpError(fmt.Sprintf("team built but report generation failed: %v", err)), nil
			}
			out.Report = text
		}
		return mcpJSON(out)
	}
}

func mcpResourceBoard(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		board, err := deps.Directory.Board(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load board: %w", err)
		}
		b, err := json.Marshal(board)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal board: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/colab/internal/directory"
	"github.com/kalambet/colab/internal/intent"
	"github.com/kalambet/colab/internal/matching"
	"github.com/kalambet/colab/internal/model"
	"github.com/kalambet/colab/internal/report"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	result, err := h(context.Background(), makeCallToolRequest(name, args))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return result
}

func TestMCPServer_RegistersTools(t *testing.T) {
	f := newFixture(t, stubReporter{})
	s := NewMCPServer(f.deps)
	tools := s.ListTools()
	for _, name := range []string{"find_peers", "find_teammates", "recruiter_search", "build_team"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestMCPTool_FindPeers(t *testing.T) {
	f := newFixture(t, stubReporter{})
	f.seed(t)

	result := callTool(t, mcpFindPeers(f.deps), "find_peers", map[string]interface{}{"email": "ana@example.com"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	var matches []matching.Match
	if err := json.Unmarshal([]byte(toolText(t, result)), &matches); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(matches) != 2 || matches[0].Profile.Email != "ben@example.com" {
		t.Errorf("matches = %+v", matches)
	}
}

func TestMCPTool_FindPeers_MissingEmail(t *testing.T) {
	f := newFixture(t, stubReporter{})
	result := callTool(t, mcpFindPeers(f.deps), "find_peers", map[string]interface{}{})
	if !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestMCPTool_FindTeammates(t *testing.T) {
	f := newFixture(t, stubReporter{})
	f.seed(t)

	result := callTool(t, mcpFindTeammates(f.deps), "find_teammates", map[string]interface{}{
		"query": "Go services",
		"role":  "developer",
		"limit": 1,
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	var matches []matching.Match
	if err := json.Unmarshal([]byte(toolText(t, result)), &matches); err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Profile.PrimaryRole != model.RoleDeveloper {
		t.Fatalf("matches = %+v", matches)
	}
	if matches[0].Reliability == "" {
		t.Error("reliability not filled")
	}
}

func TestMCPTool_FindTeammates_UnknownRole(t *testing.T) {
	f := newFixture(t, stubReporter{})
	result := callTool(t, mcpFindTeammates(f.deps), "find_teammates", map[string]interface{}{
		"query": "Go",
		"role":  "Wizard",
	})
	if !result.IsError || !strings.Contains(toolText(t, result), "role") {
		t.Fatalf("expected role error, got %q", toolText(t, result))
	}
}

func TestMCPTool_RecruiterSearch_ContinuesSession(t *testing.T) {
	f := newFixture(t, stubReporter{})
	f.seed(t)
	h := mcpRecruiterSearch(f.deps)

	result := callTool(t, h, "recruiter_search", map[string]interface{}{"query": "someone"})
	var first struct {
		SessionID string                    `json:"session_id"`
		Events    []matching.RecruiterEvent `json:"events"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &first); err != nil {
		t.Fatal(err)
	}
	if first.SessionID == "" || len(first.Events) != 1 || first.Events[0].Type != matching.EventClarification {
		t.Fatalf("first turn = %+v", first)
	}

	role, skills := model.RoleDesigner, "Figma"
	f.extractor.intent = intent.SearchIntent{Role: &role, SkillsQuery: &skills}
	result = callTool(t, h, "recruiter_search", map[string]interface{}{"query": "a figma designer", "session_id": first.SessionID})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	sess, ok := f.deps.Sessions.Get(first.SessionID)
	if !ok {
		t.Fatal("session lost")
	}
	if got := len(sess.Transcript()); got != 4 {
		t.Errorf("transcript turns = %d, want 4", got)
	}
	if res := sess.Results(); len(res) != 1 || res[0].Profile.Email != "cat@example.com" {
		t.Errorf("results = %+v", res)
	}
}

func TestMCPTool_RecruiterSearch_UnknownSession(t *testing.T) {
	f := newFixture(t, stubReporter{})
	result := callTool(t, mcpRecruiterSearch(f.deps), "recruiter_search", map[string]interface{}{"query": "x", "session_id": "nope"})
	if !result.IsError {
		t.Fatal("expected error for unknown session")
	}
}

func TestMCPTool_BuildTeam_WithReport(t *testing.T) {
	f := newFixture(t, stubReporter{chunks: []report.Chunk{{Text: "Meet "}, {Text: "the team."}}})
	f.seed(t)
	p, err := f.deps.Directory.CreateProject(context.Background(), directory.ProjectInput{
		LeaderEmail: "cat@example.com",
		Title:       "Study buddy",
		Description: "A Go app",
		Roles:       []string{"Developer"},
	})
	if err != nil {
		t.Fatal(err)
	}

	result := callTool(t, mcpBuildTeam(f.deps), "build_team", map[string]interface{}{"project_id": p.ID, "report": true})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	var out struct {
		Roles  []matching.RoleCandidates `json:"roles"`
		Report string                    `json:"report"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatal(err)
	}
	if out.Report != "Meet the team." {
		t.Errorf("report = %q", out.Report)
	}
	if len(out.Roles) != 1 || len(out.Roles[0].Candidates) != 2 {
		t.Errorf("roles = %+v", out.Roles)
	}
}

func TestMCPTool_BuildTeam_UnknownProject(t *testing.T) {
	f := newFixture(t, stubReporter{})
	result := callTool(t, mcpBuildTeam(f.deps), "build_team", map[string]interface{}{"project_id": "missing"})
	if !result.IsError || !strings.Contains(toolText(t, result), "not found") {
		t.Fatalf("expected not found error, got %q", toolText(t, result))
	}
}

func TestMCPResource_Board(t *testing.T) {
	f := newFixture(t, stubReporter{})
	f.seed(t)
	if _, err := f.deps.Directory.CreateProject(context.Background(), directory.ProjectInput{
		LeaderEmail: "ana@example.com",
		Title:       "Portfolio site",
		Description: "Static site",
		Roles:       []string{"Designer"},
	}); err != nil {
		t.Fatal(err)
	}

	contents, err := mcpResourceBoard(f.deps)(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "colab://board"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	var board []directory.BoardEntry
	if err := json.Unmarshal([]byte(text), &board); err != nil {
		t.Fatal(err)
	}
	if len(board) != 1 || board[0].LeaderName != "Ana" {
		t.Errorf("board = %+v", board)
	}
}

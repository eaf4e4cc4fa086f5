package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/colab/internal/directory"
	"github.com/kalambet/colab/internal/filter"
	"github.com/kalambet/colab/internal/matching"
	"github.com/kalambet/colab/internal/metrics"
	"github.com/kalambet/colab/internal/model"
	"github.com/kalambet/colab/internal/validation"
)

// Deps holds what the REST handlers need.
type Deps struct {
	Directory  *directory.Directory
	Matching   *matching.Service
	Sessions   *matching.Sessions
	Reputation matching.Reputation
	GitHub     matching.CodeAnalyzer
	Metrics    *metrics.Collector
}

// NewHandler returns the REST API: the directory, the match flows, the
// recruiter sessions, /health and /metrics.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Route("/profiles", func(r chi.Router) {
		r.Get("/", handleListProfiles(deps))
		r.Put("/", handleUpsertProfile(deps))
		r.Get("/{email}", handleGetProfile(deps))
		r.Get("/{email}/peers", handlePeers(deps))
	})

	r.Route("/projects", func(r chi.Router) {
		r.Get("/", handleBoard(deps))
		r.Post("/", handleCreateProject(deps))
		r.Get("/{id}", handleGetProject(deps))
		r.Post("/{id}/team", handleBuildTeam(deps))
		r.Get("/{id}/report", handleTeamReport(deps))
	})
	r.Patch("/roles/{id}", handleSetRoleStatus(deps))

	r.Post("/search", handleSearch(deps))

	r.Route("/recruiter/sessions", func(r chi.Router) {
		r.Post("/", handleCreateSession(deps))
		r.Get("/{id}", handleGetSession(deps))
		r.Delete("/{id}", handleDeleteSession(deps))
		r.Post("/{id}/messages", handleRecruiterMessage(deps))
		r.Post("/{id}/select", handleSelect(deps))
	})

	r.Post("/reviews", handleSubmitReview(deps))
	r.Post("/messages", handleSendMessage(deps))
	r.Get("/messages", handleConversation(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// ProfileView is a profile with its reputation and code-hosting summary.
type ProfileView struct {
	model.Profile
	Reliability string `json:"reliability"`
	GitHub      string `json:"github_analysis"`
}

func handleListProfiles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profiles, err := deps.Directory.Profiles(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profiles)
	}
}

func handleUpsertProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in directory.ProfileInput
		if !decodeBody(w, r, &in) {
			return
		}
		p, err := deps.Directory.UpsertProfile(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleGetProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Directory.Profile(r.Context(), chi.URLParam(r, "email"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ProfileView{
			Profile:     p,
			Reliability: deps.Reputation.Label(r.Context(), p.Email),
			GitHub:      deps.GitHub.Summary(r.Context(), p.GitHubUsername),
		})
	}
}

func handlePeers(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matches, err := deps.Matching.PeerMatches(r.Context(), chi.URLParam(r, "email"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, matches)
	}
}

// SearchRequest is a semantic role search.
type SearchRequest struct {
	Query        string   `json:"query"`
	Role         string   `json:"role"`
	Availability []string `json:"availability"`
	Threshold    float64  `json:"threshold"`
	Limit        int      `json:"limit"`
	ExcludeEmail string   `json:"exclude_email"`
}

// semanticQuery converts the request, rejecting unknown roles and slots.
func (req SearchRequest) semanticQuery() (matching.SemanticQuery, error) {
	var fields []validation.FieldError
	if strings.TrimSpace(req.Query) == "" {
		fields = append(fields, validation.FieldError{Field: "query", Message: "is required"})
	}
	var c filter.Constraints
	if strings.TrimSpace(req.Role) != "" {
		role, ok := model.ParseRole(req.Role)
		if !ok {
			fields = append(fields, validation.FieldError{Field: "role", Message: "must be a known role"})
		}
		c.Role = role
	}
	for _, s := range req.Availability {
		slot, ok := model.ParseSlot(s)
		if !ok {
			fields = append(fields, validation.FieldError{Field: "availability", Message: "must be weekdays, weekends or evenings"})
			continue
		}
		c.Availability = append(c.Availability, slot)
	}
	if req.Limit < 0 {
		fields = append(fields, validation.FieldError{Field: "limit", Message: "must not be negative"})
	}
	if len(fields) > 0 {
		return matching.SemanticQuery{}, &validation.Error{Fields: fields}
	}
	return matching.SemanticQuery{
		Text:         req.Query,
		Constraints:  c,
		Threshold:    req.Threshold,
		Limit:        req.Limit,
		ExcludeEmail: strings.TrimSpace(req.ExcludeEmail),
	}, nil
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		q, err := req.semanticQuery()
		if err != nil {
			writeError(w, err)
			return
		}
		matches, err := deps.Matching.SemanticMatch(r.Context(), q)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, matches)
	}
}

func handleBoard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		board, err := deps.Directory.Board(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, board)
	}
}

func handleCreateProject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in directory.ProjectInput
		if !decodeBody(w, r, &in) {
			return
		}
		p, err := deps.Directory.CreateProject(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func handleGetProject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Directory.Project(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleSetRoleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status string `json:"status"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if err := deps.Directory.SetRoleStatus(r.Context(), chi.URLParam(r, "id"), model.RoleStatus(req.Status)); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleBuildTeam(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		team, err := deps.Matching.BuildTeam(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, team)
	}
}

// handleTeamReport builds the team and streams the narrative report as
// server-sent events: one "team" event, unnamed text chunks, then "done"
// or "error".
func handleTeamReport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		team, err := deps.Matching.BuildTeam(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		sse, ok := newSSEWriter(w)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		sse.event("team", team)
		for chunk := range deps.Matching.StreamReport(r.Context(), team) {
			if chunk.Err != nil {
				sse.event("error", map[string]any{
					"error": map[string]any{"message": "report generation failed", "type": "server_error"},
				})
				return
			}
			sse.event("", map[string]string{"text": chunk.Text})
		}
		sse.event("done", map[string]any{})
	}
}

type sessionView struct {
	ID         string           `json:"id"`
	OwnerEmail string           `json:"owner_email"`
	Transcript []matching.Turn  `json:"transcript"`
	Results    []matching.Match `json:"results"`
	Selected   string           `json:"selected,omitempty"`
}

func viewSession(s *matching.Session) sessionView {
	return sessionView{
		ID:         s.ID,
		OwnerEmail: s.OwnerEmail,
		Transcript: s.Transcript(),
		Results:    s.Results(),
		Selected:   s.Selected(),
	}
}

func handleCreateSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OwnerEmail string `json:"owner_email"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		s := deps.Sessions.Create(strings.TrimSpace(req.OwnerEmail))
		writeJSON(w, http.StatusCreated, viewSession(s))
	}
}

func session(deps Deps, w http.ResponseWriter, r *http.Request) (*matching.Session, bool) {
	s, ok := deps.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		httpError(w, http.StatusNotFound, "not_found_error", "session %s not found", chi.URLParam(r, "id"))
	}
	return s, ok
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s, ok := session(deps, w, r); ok {
			writeJSON(w, http.StatusOK, viewSession(s))
		}
	}
}

func handleDeleteSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Sessions.Delete(chi.URLParam(r, "id"))
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleRecruiterMessage runs one recruiter turn and streams its events as
// newline-delimited JSON. A failure after streaming started is reported as
// a final {"type":"error"} line.
func handleRecruiterMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(deps, w, r)
		if !ok {
			return
		}
		var req struct {
			Query string `json:"query"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		out, ok := newNDJSONWriter(w)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}
		err := deps.Matching.RecruiterSearch(r.Context(), s, req.Query, func(ev matching.RecruiterEvent) {
			out.write(ev)
		})
		if err != nil {
			out.write(map[string]string{"type": "error", "message": "search failed"})
		}
	}
}

func handleSelect(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(deps, w, r)
		if !ok {
			return
		}
		var req struct {
			Email string `json:"email"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if err := s.Select(strings.TrimSpace(req.Email)); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewSession(s))
	}
}

func handleSubmitReview(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in directory.ReviewInput
		if !decodeBody(w, r, &in) {
			return
		}
		rev, err := deps.Directory.SubmitReview(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rev)
	}
}

func handleSendMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in directory.MessageInput
		if !decodeBody(w, r, &in) {
			return
		}
		m, err := deps.Directory.SendMessage(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

func handleConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, b := r.URL.Query().Get("a"), r.URL.Query().Get("b")
		if a == "" || b == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query parameters a and b are required")
			return
		}
		msgs, err := deps.Directory.Conversation(r.Context(), a, b)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

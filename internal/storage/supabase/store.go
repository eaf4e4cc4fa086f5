// Package supabase implements the record store on a hosted Supabase project
// through its PostgREST API. Matching runs server-side in the
// match_profiles and match_profiles_for_project SQL functions.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"github.com/kalambet/colab/internal/model"
	"github.com/kalambet/colab/internal/rank"
	"github.com/kalambet/colab/internal/storage"
)

const (
	tableProfiles = "profiles"
	tableProjects = "projects"
	tableRoles    = "project_roles"
	tableReviews  = "team_reviews"
	tableMessages = "messages"
)

// Client is the subset of the Supabase client the store calls.
type Client interface {
	From(table string) *postgrest.QueryBuilder
	Rpc(name, count string, rpcBody interface{}) string
}

// DefaultTimeout bounds each PostgREST call.
const DefaultTimeout = 10 * time.Second

// Store is a record store backed by Supabase tables.
type Store struct {
	client  Client
	timeout time.Duration
}

// Open connects to the Supabase project at url with the given service key.
func Open(url, key string) (*Store, error) {
	if url == "" || key == "" {
		return nil, errors.New("supabase: url and key are required")
	}
	client, err := supa.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return New(client), nil
}

// New wraps an existing client.
func New(c Client) *Store {
	return &Store{client: c, timeout: DefaultTimeout}
}

// WithTimeout sets the per-call deadline.
func (s *Store) WithTimeout(d time.Duration) *Store {
	s.timeout = d
	return s
}

// call runs fn until it returns, ctx is done or the per-call deadline
// passes. The client takes no context, so an abandoned request finishes in
// the background and its result is dropped.
func (s *Store) call(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// rpc calls a SQL function and decodes its result into v.
func (s *Store) rpc(ctx context.Context, name string, params map[string]any, v any) error {
	var raw string
	if err := s.call(ctx, func() error {
		raw = s.client.Rpc(name, "", params)
		return nil
	}); err != nil {
		return err
	}
	return decodeRPC(raw, v)
}

// Close is a no-op; the REST client holds no connection.
func (s *Store) Close() error { return nil }

// vector decodes pgvector columns, which PostgREST returns as a string like
// "[0.1,0.2]", and encodes as a plain JSON array.
type vector []float32

func (v *vector) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = nil
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	var out []float32
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("decoding vector: %w", err)
	}
	*v = out
	return nil
}

type profileRow struct {
	Email                string     `json:"email"`
	Name                 string     `json:"name"`
	PrimaryRole          string     `json:"primary_role"`
	Skills               string     `json:"skills"`
	Goals                string     `json:"goals"`
	AvailabilityWeekdays bool       `json:"availability_weekdays"`
	AvailabilityWeekends bool       `json:"availability_weekends"`
	AvailabilityEvenings bool       `json:"availability_evenings"`
	GitHubUsername       *string    `json:"github_username"`
	SkillsEmbedding      vector     `json:"skills_embedding"`
	CreatedAt            *time.Time `json:"created_at,omitempty"`
	UpdatedAt            *time.Time `json:"updated_at,omitempty"`

	// Similarity is only set on match procedure results.
	Similarity *float64 `json:"similarity,omitempty"`
}

func toProfileRow(p model.Profile) profileRow {
	r := profileRow{
		Email:                p.Email,
		Name:                 p.Name,
		PrimaryRole:          string(p.PrimaryRole),
		Skills:               p.Skills,
		Goals:                p.Goals,
		AvailabilityWeekdays: p.Availability.Weekdays,
		AvailabilityWeekends: p.Availability.Weekends,
		AvailabilityEvenings: p.Availability.Evenings,
		SkillsEmbedding:      vector(p.SkillsEmbedding),
	}
	if p.GitHubUsername != "" {
		r.GitHubUsername = &p.GitHubUsername
	}
	updated := time.Now().UTC()
	if !p.UpdatedAt.IsZero() {
		updated = p.UpdatedAt
	}
	r.UpdatedAt = &updated
	return r
}

func (r profileRow) toModel() model.Profile {
	p := model.Profile{
		Email:       r.Email,
		Name:        r.Name,
		PrimaryRole: model.Role(r.PrimaryRole),
		Skills:      r.Skills,
		Goals:       r.Goals,
		Availability: model.Availability{
			Weekdays: r.AvailabilityWeekdays,
			Weekends: r.AvailabilityWeekends,
			Evenings: r.AvailabilityEvenings,
		},
		SkillsEmbedding: []float32(r.SkillsEmbedding),
	}
	if r.GitHubUsername != nil {
		p.GitHubUsername = *r.GitHubUsername
	}
	if r.CreatedAt != nil {
		p.CreatedAt = *r.CreatedAt
	}
	if r.UpdatedAt != nil {
		p.UpdatedAt = *r.UpdatedAt
	}
	return p
}

// UpsertProfile inserts or replaces the profile keyed by email.
func (s *Store) UpsertProfile(ctx context.Context, p model.Profile) error {
	row := toProfileRow(p)
	err := s.call(ctx, func() error {
		_, _, err := s.client.From(tableProfiles).Upsert(row, "email", "minimal", "").Execute()
		return err
	})
	if err != nil {
		return fmt.Errorf("upserting profile %s: %w", p.Email, err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, email string) (model.Profile, error) {
	var rows []profileRow
	err := s.call(ctx, func() error {
		_, err := s.client.From(tableProfiles).Select("*", "", false).Eq("email", email).ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return model.Profile{}, fmt.Errorf("getting profile %s: %w", email, err)
	}
	if len(rows) == 0 {
		return model.Profile{}, storage.ErrNotFound
	}
	return rows[0].toModel(), nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	var rows []profileRow
	err := s.call(ctx, func() error {
		_, err := s.client.From(tableProfiles).Select("*", "", false).
			Order("created_at", &postgrest.OrderOpts{Ascending: true}).ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	out := make([]model.Profile, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

type roleRow struct {
	ID        string `json:"id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	RoleName  string `json:"role_name"`
	Status    string `json:"status,omitempty"`
}

type projectRow struct {
	ID               string     `json:"id,omitempty"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
	LeaderEmail      string     `json:"leader_email"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Status           string     `json:"status,omitempty"`
	ProjectEmbedding vector     `json:"project_embedding"`
	Roles            []roleRow  `json:"project_roles,omitempty"`
}

func (r projectRow) toModel() model.Project {
	p := model.Project{
		ID:          r.ID,
		LeaderEmail: r.LeaderEmail,
		Title:       r.Title,
		Description: r.Description,
		Status:      model.ProjectStatus(r.Status),
		Embedding:   []float32(r.ProjectEmbedding),
	}
	if r.CreatedAt != nil {
		p.CreatedAt = *r.CreatedAt
	}
	for _, rr := range r.Roles {
		p.Roles = append(p.Roles, model.RoleRequest{
			ID:        rr.ID,
			ProjectID: r.ID,
			RoleName:  model.Role(rr.RoleName),
			Status:    model.RoleStatus(rr.Status),
		})
	}
	return p
}

// CreateProject inserts the project and then its roles. PostgREST offers no
// cross-table transaction, so a failed role insert deletes the project row.
func (s *Store) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = model.ProjectOpen
	}
	row := projectRow{
		ID:               p.ID,
		CreatedAt:        &p.CreatedAt,
		LeaderEmail:      p.LeaderEmail,
		Title:            p.Title,
		Description:      p.Description,
		Status:           string(p.Status),
		ProjectEmbedding: vector(p.Embedding),
	}
	err := s.call(ctx, func() error {
		_, _, err := s.client.From(tableProjects).Insert(row, false, "", "minimal", "").Execute()
		return err
	})
	if err != nil {
		return model.Project{}, fmt.Errorf("inserting project: %w", err)
	}

	roles := make([]roleRow, len(p.Roles))
	for i := range p.Roles {
		r := &p.Roles[i]
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.Status == "" {
			r.Status = model.RoleOpen
		}
		r.ProjectID = p.ID
		roles[i] = roleRow{ID: r.ID, ProjectID: p.ID, RoleName: string(r.RoleName), Status: string(r.Status)}
	}
	if len(roles) > 0 {
		err := s.call(ctx, func() error {
			_, _, err := s.client.From(tableRoles).Insert(roles, false, "", "minimal", "").Execute()
			return err
		})
		if err != nil {
			_ = s.call(context.WithoutCancel(ctx), func() error {
				_, _, err := s.client.From(tableProjects).Delete("minimal", "").Eq("id", p.ID).Execute()
				return err
			})
			return model.Project{}, fmt.Errorf("inserting project roles: %w", err)
		}
	}
	return p, nil
}

const projectSelect = "*, project_roles ( id, role_name, status )"

func (s *Store) GetProject(ctx context.Context, id string) (model.Project, error) {
	var rows []projectRow
	err := s.call(ctx, func() error {
		_, err := s.client.From(tableProjects).Select(projectSelect, "", false).Eq("id", id).ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return model.Project{}, fmt.Errorf("getting project %s: %w", id, err)
	}
	if len(rows) == 0 {
		return model.Project{}, storage.ErrNotFound
	}
	return rows[0].toModel(), nil
}

func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	var rows []projectRow
	err := s.call(ctx, func() error {
		_, err := s.client.From(tableProjects).Select(projectSelect, "", false).
			Order("created_at", &postgrest.OrderOpts{Ascending: false}).ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	out := make([]model.Project, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *Store) SetRoleStatus(ctx context.Context, roleID string, status model.RoleStatus) error {
	var rows []roleRow
	err := s.call(ctx, func() error {
		_, err := s.client.From(tableRoles).Update(map[string]string{"status": string(status)}, "representation", "").
			Eq("id", roleID).ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return fmt.Errorf("updating role %s: %w", roleID, err)
	}
	if len(rows) == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type reviewRow struct {
	ID                string    `json:"id"`
	ProjectID         string    `json:"project_id"`
	ReviewerEmail     string    `json:"reviewer_email"`
	RevieweeEmail     string    `json:"reviewee_email"`
	ReliabilityRating int       `json:"reliability_rating"`
	CreatedAt         time.Time `json:"created_at"`
}

func (s *Store) InsertReview(ctx context.Context, r model.Review) (model.Review, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	row := reviewRow{
		ID:                r.ID,
		ProjectID:         r.ProjectID,
		ReviewerEmail:     r.ReviewerEmail,
		RevieweeEmail:     r.RevieweeEmail,
		ReliabilityRating: r.Rating,
		CreatedAt:         r.CreatedAt,
	}
	err := s.call(ctx, func() error {
		_, _, err := s.client.From(tableReviews).Insert(row, false, "", "minimal", "").Execute()
		return err
	})
	if err != nil {
		return model.Review{}, fmt.Errorf("inserting review: %w", err)
	}
	return r, nil
}

// AverageRating calls get_average_rating, which returns null for a profile
// without reviews.
func (s *Store) AverageRating(ctx context.Context, email string) (float64, bool, error) {
	var v *float64
	if err := s.rpc(ctx, "get_average_rating", map[string]any{"user_email": email}, &v); err != nil {
		return 0, false, fmt.Errorf("get_average_rating: %w", err)
	}
	if v == nil {
		return 0, false, nil
	}
	return *v, true, nil
}

type messageRow struct {
	ID            string    `json:"id"`
	SenderEmail   string    `json:"sender_email"`
	ReceiverEmail string    `json:"receiver_email"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s *Store) InsertMessage(ctx context.Context, m model.Message) (model.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	row := messageRow{ID: m.ID, SenderEmail: m.SenderEmail, ReceiverEmail: m.ReceiverEmail, Message: m.Body, CreatedAt: m.CreatedAt}
	err := s.call(ctx, func() error {
		_, _, err := s.client.From(tableMessages).Insert(row, false, "", "minimal", "").Execute()
		return err
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("inserting message: %w", err)
	}
	return m, nil
}

func (s *Store) Conversation(ctx context.Context, a, b string) ([]model.Message, error) {
	filter := fmt.Sprintf(`and(sender_email.eq."%s",receiver_email.eq."%s"),and(sender_email.eq."%s",receiver_email.eq."%s")`, a, b, b, a)
	var rows []messageRow
	err := s.call(ctx, func() error {
		_, err := s.client.From(tableMessages).Select("*", "", false).Or(filter, "").
			Order("created_at", &postgrest.OrderOpts{Ascending: true}).ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	out := make([]model.Message, len(rows))
	for i, r := range rows {
		out[i] = model.Message{ID: r.ID, SenderEmail: r.SenderEmail, ReceiverEmail: r.ReceiverEmail, Body: r.Message, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

// MatchProfiles calls match_profiles. Availability slots are passed as
// independent flags; a role of "" matches any role.
func (s *Store) MatchProfiles(ctx context.Context, p storage.MatchParams) ([]storage.ScoredProfile, error) {
	slots := model.AvailabilityOf(p.Constraints.Availability...)
	params := map[string]any{
		"query_embedding": vector(p.Embedding),
		"match_threshold": p.Threshold,
		"role_query":      nullable(string(p.Constraints.Role)),
		"weekdays_query":  slots.Weekdays,
		"weekends_query":  slots.Weekends,
		"evenings_query":  slots.Evenings,
	}
	var rows []profileRow
	if err := s.rpc(ctx, "match_profiles", params, &rows); err != nil {
		return nil, fmt.Errorf("match_profiles: %w", err)
	}
	return rankRows(rows, rank.Options[model.Profile]{K: p.Limit, MinScore: rank.Threshold(p.Threshold)}), nil
}

// MatchProfilesForProject calls match_profiles_for_project.
func (s *Store) MatchProfilesForProject(ctx context.Context, embedding []float32, role model.Role) ([]storage.ScoredProfile, error) {
	params := map[string]any{
		"p_project_embedding": vector(embedding),
		"p_role_query":        string(role),
	}
	var rows []profileRow
	if err := s.rpc(ctx, "match_profiles_for_project", params, &rows); err != nil {
		return nil, fmt.Errorf("match_profiles_for_project: %w", err)
	}
	return rankRows(rows, rank.Options[model.Profile]{}), nil
}

func rankRows(rows []profileRow, opts rank.Options[model.Profile]) []storage.ScoredProfile {
	profiles := make([]model.Profile, len(rows))
	scores := make([]float64, len(rows))
	for i, r := range rows {
		profiles[i] = r.toModel()
		if r.Similarity != nil {
			scores[i] = *r.Similarity
		}
	}
	return rank.Rank(profiles, scores, opts)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// decodeRPC unmarshals an RPC response. The client reports failures as a
// JSON error object in place of the result.
func decodeRPC(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("empty response")
	}
	if strings.HasPrefix(raw, "{") {
		var e struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		if json.Unmarshal([]byte(raw), &e) == nil && e.Message != "" {
			return fmt.Errorf("%s (%s)", e.Message, e.Code)
		}
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

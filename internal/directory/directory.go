// Package directory is the read/write surface over the record store. It
// validates input, computes embeddings on write and serves cached snapshots
// that every write invalidates.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/colab/internal/cache"
	"github.com/kalambet/colab/internal/metrics"
	"github.com/kalambet/colab/internal/model"
	"github.com/kalambet/colab/internal/storage"
	"github.com/kalambet/colab/internal/validation"
)

const (
	DefaultProfileTTL = time.Minute
	MinProfileTTL     = time.Minute
	MaxProfileTTL     = 5 * time.Minute
	projectTTL        = time.Minute
	snapshotKey       = "all"
)

var (
	// ErrSelfReview is returned when a reviewer rates themselves.
	ErrSelfReview = errors.New("cannot review yourself")
	// ErrVectorization is returned when text that must be embedded cannot be.
	ErrVectorization = errors.New("could not compute embedding")
)

// Store is the record store the directory writes through.
type Store interface {
	UpsertProfile(ctx context.Context, p model.Profile) error
	GetProfile(ctx context.Context, email string) (model.Profile, error)
	ListProfiles(ctx context.Context) ([]model.Profile, error)
	CreateProject(ctx context.Context, p model.Project) (model.Project, error)
	GetProject(ctx context.Context, id string) (model.Project, error)
	ListProjects(ctx context.Context) ([]model.Project, error)
	SetRoleStatus(ctx context.Context, roleID string, status model.RoleStatus) error
	InsertReview(ctx context.Context, r model.Review) (model.Review, error)
	InsertMessage(ctx context.Context, m model.Message) (model.Message, error)
	Conversation(ctx context.Context, a, b string) ([]model.Message, error)
}

// Embedder computes embeddings; nil means the text could not be vectorized.
type Embedder interface {
	VectorizeOne(ctx context.Context, text string) []float32
}

// Options tune a Directory.
type Options struct {
	// ProfileTTL is clamped to [MinProfileTTL, MaxProfileTTL]; zero uses the default.
	ProfileTTL time.Duration
	Clock      cache.Clock
	Metrics    *metrics.Collector
}

// Directory serves profiles, projects, reviews and messages.
type Directory struct {
	store    Store
	embedder Embedder
	metrics  *metrics.Collector

	profiles *cache.TTL[string, []model.Profile]
	projects *cache.TTL[string, []model.Project]
	group    cache.Group
}

func New(store Store, embedder Embedder, opts Options) *Directory {
	ttl := opts.ProfileTTL
	if ttl == 0 {
		ttl = DefaultProfileTTL
	}
	ttl = min(max(ttl, MinProfileTTL), MaxProfileTTL)
	clock := opts.Clock
	if clock == nil {
		clock = cache.RealClock()
	}

	d := &Directory{
		store:    store,
		embedder: embedder,
		metrics:  opts.Metrics,
		profiles: cache.NewWithClock[string, []model.Profile](clock, ttl),
		projects: cache.NewWithClock[string, []model.Project](clock, projectTTL),
	}
	d.group.Add(d.profiles, d.projects)
	return d
}

// InvalidateWith registers further caches to clear on every write, such as
// the reputation cache.
func (d *Directory) InvalidateWith(cs ...cache.Clearer) {
	d.group.Add(cs...)
}

// Invalidate clears every cache derived from the store.
func (d *Directory) Invalidate() {
	d.group.Invalidate()
}

// ProfileInput is a profile as submitted by its owner.
type ProfileInput struct {
	Email          string   `json:"email" validate:"required,email"`
	Name           string   `json:"name" validate:"required"`
	PrimaryRole    string   `json:"primary_role" validate:"required,colab_role"`
	Skills         string   `json:"skills"`
	Goals          string   `json:"goals"`
	Availability   []string `json:"availability" validate:"dive,colab_slot"`
	GitHubUsername string   `json:"github_username"`
}

func (in *ProfileInput) normalize() {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.PrimaryRole = strings.TrimSpace(in.PrimaryRole)
	in.GitHubUsername = strings.TrimSpace(in.GitHubUsername)
}

// UpsertProfile validates in, embeds its skills text and stores it keyed by
// email. Blank skills or an embedding failure store a nil embedding; the
// profile is then skipped by semantic matching until it is saved again.
func (d *Directory) UpsertProfile(ctx context.Context, in ProfileInput) (model.Profile, error) {
	in.normalize()
	if err := validation.Struct(in); err != nil {
		return model.Profile{}, err
	}

	role, _ := model.ParseRole(in.PrimaryRole)
	var slots []model.Slot
	for _, s := range in.Availability {
		slot, _ := model.ParseSlot(s)
		slots = append(slots, slot)
	}

	p := model.Profile{
		Email:          in.Email,
		Name:           in.Name,
		PrimaryRole:    role,
		Skills:         in.Skills,
		Goals:          in.Goals,
		Availability:   model.AvailabilityOf(slots...),
		GitHubUsername: in.GitHubUsername,
		UpdatedAt:      time.Now().UTC(),
	}
	if strings.TrimSpace(p.Skills) != "" {
		p.SkillsEmbedding = d.embedder.VectorizeOne(ctx, p.Skills)
		if p.SkillsEmbedding == nil {
			slog.Warn("storing profile without skills embedding", "email", p.Email)
		}
	}

	if err := d.store.UpsertProfile(ctx, p); err != nil {
		return model.Profile{}, fmt.Errorf("saving profile: %w", err)
	}
	d.Invalidate()
	return p, nil
}

// Profile returns one profile, or an error wrapping storage.ErrNotFound.
func (d *Directory) Profile(ctx context.Context, email string) (model.Profile, error) {
	return d.store.GetProfile(ctx, strings.TrimSpace(email))
}

// Profiles returns the cached profile snapshot in creation order.
func (d *Directory) Profiles(ctx context.Context) ([]model.Profile, error) {
	return snapshot(d, d.profiles, "profiles", func() ([]model.Profile, error) {
		return d.store.ListProfiles(ctx)
	})
}

func snapshot[T any](d *Directory, c *cache.TTL[string, []T], name string, load func() ([]T, error)) ([]T, error) {
	if v, ok := c.Get(snapshotKey); ok {
		d.metrics.CacheLookup(name, true)
		return v, nil
	}
	d.metrics.CacheLookup(name, false)
	v, err := load()
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	c.Set(snapshotKey, v)
	return v, nil
}

// ProjectInput is a new project pitch.
type ProjectInput struct {
	LeaderEmail string   `json:"leader_email" validate:"required,email"`
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description" validate:"required"`
	Roles       []string `json:"roles" validate:"required,min=1,dive,colab_role"`
}

// CreateProject stores a pitch with its role requests. The leader must have
// a profile. If the pitch cannot be embedded nothing is stored and the error
// wraps ErrVectorization.
func (d *Directory) CreateProject(ctx context.Context, in ProjectInput) (model.Project, error) {
	in.LeaderEmail = strings.TrimSpace(in.LeaderEmail)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validation.Struct(in); err != nil {
		return model.Project{}, err
	}

	if _, err := d.store.GetProfile(ctx, in.LeaderEmail); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Project{}, &validation.Error{Fields: []validation.FieldError{
				{Field: "leader_email", Message: "has no profile"},
			}}
		}
		return model.Project{}, fmt.Errorf("checking leader: %w", err)
	}

	p := model.Project{
		LeaderEmail: in.LeaderEmail,
		Title:       in.Title,
		Description: in.Description,
	}
	for _, r := range in.Roles {
		role, _ := model.ParseRole(r)
		p.Roles = append(p.Roles, model.RoleRequest{RoleName: role})
	}

	p.Embedding = d.embedder.VectorizeOne(ctx, p.EmbeddingText())
	if p.Embedding == nil {
		return model.Project{}, fmt.Errorf("project %q: %w", p.Title, ErrVectorization)
	}

	created, err := d.store.CreateProject(ctx, p)
	if err != nil {
		return model.Project{}, fmt.Errorf("saving project: %w", err)
	}
	d.Invalidate()
	return created, nil
}

// Project returns one project with its roles.
func (d *Directory) Project(ctx context.Context, id string) (model.Project, error) {
	return d.store.GetProject(ctx, id)
}

// Projects returns the cached project list, newest first.
func (d *Directory) Projects(ctx context.Context) ([]model.Project, error) {
	return snapshot(d, d.projects, "projects", func() ([]model.Project, error) {
		return d.store.ListProjects(ctx)
	})
}

// SetRoleStatus marks a role request open or filled.
func (d *Directory) SetRoleStatus(ctx context.Context, roleID string, status model.RoleStatus) error {
	if status != model.RoleOpen && status != model.RoleFilled {
		return &validation.Error{Fields: []validation.FieldError{{Field: "status", Message: fmt.Sprintf("%q is not a role status", status)}}}
	}
	if err := d.store.SetRoleStatus(ctx, roleID, status); err != nil {
		return err
	}
	d.Invalidate()
	return nil
}

// BoardEntry is a project as listed on the pitch board.
type BoardEntry struct {
	Project    model.Project `json:"project"`
	LeaderName string        `json:"leader_name"`
}

// Board lists projects newest first with their leader's display name. A
// leader without a profile is shown by email.
func (d *Directory) Board(ctx context.Context) ([]BoardEntry, error) {
	projects, err := d.Projects(ctx)
	if err != nil {
		return nil, err
	}
	profiles, err := d.Profiles(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(profiles))
	for _, p := range profiles {
		names[p.Email] = p.Name
	}

	out := make([]BoardEntry, len(projects))
	for i, p := range projects {
		name, ok := names[p.LeaderEmail]
		if !ok {
			name = p.LeaderEmail
		}
		out[i] = BoardEntry{Project: p, LeaderName: name}
	}
	return out, nil
}

// ReviewInput is a reliability rating of a teammate.
type ReviewInput struct {
	ProjectID     string `json:"project_id" validate:"required"`
	ReviewerEmail string `json:"reviewer_email" validate:"required,email"`
	RevieweeEmail string `json:"reviewee_email" validate:"required,email"`
	Rating        int    `json:"rating" validate:"gte=1,lte=5"`
}

func (d *Directory) SubmitReview(ctx context.Context, in ReviewInput) (model.Review, error) {
	in.ReviewerEmail = strings.TrimSpace(in.ReviewerEmail)
	in.RevieweeEmail = strings.TrimSpace(in.RevieweeEmail)
	if err := validation.Struct(in); err != nil {
		return model.Review{}, err
	}
	if strings.EqualFold(in.ReviewerEmail, in.RevieweeEmail) {
		return model.Review{}, ErrSelfReview
	}

	r, err := d.store.InsertReview(ctx, model.Review{
		ProjectID:     in.ProjectID,
		ReviewerEmail: in.ReviewerEmail,
		RevieweeEmail: in.RevieweeEmail,
		Rating:        in.Rating,
	})
	if err != nil {
		return model.Review{}, fmt.Errorf("saving review: %w", err)
	}
	d.Invalidate()
	return r, nil
}

// MessageInput is a direct message.
type MessageInput struct {
	SenderEmail   string `json:"sender_email" validate:"required,email"`
	ReceiverEmail string `json:"receiver_email" validate:"required,email"`
	Body          string `json:"message" validate:"required"`
}

func (d *Directory) SendMessage(ctx context.Context, in MessageInput) (model.Message, error) {
	in.SenderEmail = strings.TrimSpace(in.SenderEmail)
	in.ReceiverEmail = strings.TrimSpace(in.ReceiverEmail)
	if err := validation.Struct(in); err != nil {
		return model.Message{}, err
	}
	if strings.TrimSpace(in.Body) == "" {
		return model.Message{}, &validation.Error{Fields: []validation.FieldError{{Field: "message", Message: "is required"}}}
	}
	m, err := d.store.InsertMessage(ctx, model.Message{
		SenderEmail:   in.SenderEmail,
		ReceiverEmail: in.ReceiverEmail,
		Body:          in.Body,
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("saving message: %w", err)
	}
	return m, nil
}

// Conversation returns the messages between a and b, oldest first.
func (d *Directory) Conversation(ctx context.Context, a, b string) ([]model.Message, error) {
	return d.store.Conversation(ctx, strings.TrimSpace(a), strings.TrimSpace(b))
}

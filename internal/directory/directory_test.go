package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/colab/internal/model"
	"github.com/kalambet/colab/internal/storage"
	"github.com/kalambet/colab/internal/validation"
)

type mockEmbedder struct {
	vec   []float32
	calls []string
}

func (m *mockEmbedder) VectorizeOne(_ context.Context, text string) []float32 {
	m.calls = append(m.calls, text)
	return m.vec
}

type mockClock struct{ now time.Time }

func (c *mockClock) Now() time.Time { return c.now }

type countingClearer struct{ n int }

func (c *countingClearer) Clear() { c.n++ }

func newTestDirectory(t *testing.T, emb *mockEmbedder) (*Directory, *storage.Store) {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, emb, Options{}), s
}

func validProfile(email string) ProfileInput {
	return ProfileInput{
		Email:        email,
		Name:         "  Ana  ",
		PrimaryRole:  "developer",
		Skills:       "Go\nPostgres",
		Availability: []string{"weekends", "Evenings"},
	}
}

func TestUpsertProfile_NormalizesAndEmbeds(t *testing.T) {
	emb := &mockEmbedder{vec: []float32{1, 2}}
	d, s := newTestDirectory(t, emb)
	ctx := context.Background()

	in := validProfile(" ana@example.com ")
	in.GitHubUsername = "  "
	p, err := d.UpsertProfile(ctx, in)
	if err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	if p.Email != "ana@example.com" || p.Name != "Ana" || p.PrimaryRole != model.RoleDeveloper {
		t.Errorf("profile = %+v", p)
	}
	if p.GitHubUsername != "" {
		t.Errorf("GitHubUsername = %q, want empty", p.GitHubUsername)
	}
	if !p.Availability.Weekends || !p.Availability.Evenings || p.Availability.Weekdays {
		t.Errorf("availability = %+v", p.Availability)
	}
	if len(emb.calls) != 1 || emb.calls[0] != "Go\nPostgres" {
		t.Errorf("embedder calls = %q", emb.calls)
	}

	stored, err := s.GetProfile(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if len(stored.SkillsEmbedding) != 2 {
		t.Errorf("stored embedding = %v", stored.SkillsEmbedding)
	}
}

func TestUpsertProfile_BlankSkillsSkipsEmbedding(t *testing.T) {
	emb := &mockEmbedder{vec: []float32{1}}
	d, _ := newTestDirectory(t, emb)

	in := validProfile("bo@example.com")
	in.Skills = "   "
	p, err := d.UpsertProfile(context.Background(), in)
	if err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	if p.SkillsEmbedding != nil || len(emb.calls) != 0 {
		t.Errorf("embedding computed for blank skills: %v %q", p.SkillsEmbedding, emb.calls)
	}
}

func TestUpsertProfile_EmbeddingFailureStillStores(t *testing.T) {
	d, s := newTestDirectory(t, &mockEmbedder{})
	ctx := context.Background()

	if _, err := d.UpsertProfile(ctx, validProfile("cy@example.com")); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	stored, err := s.GetProfile(ctx, "cy@example.com")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if stored.SkillsEmbedding != nil {
		t.Errorf("embedding = %v, want nil", stored.SkillsEmbedding)
	}
}

func TestUpsertProfile_Invalid(t *testing.T) {
	d, _ := newTestDirectory(t, &mockEmbedder{})
	tests := []struct {
		name string
		edit func(*ProfileInput)
	}{
		{"missing email", func(in *ProfileInput) { in.Email = "  " }},
		{"missing name", func(in *ProfileInput) { in.Name = "" }},
		{"unknown role", func(in *ProfileInput) { in.PrimaryRole = "Wizard" }},
		{"unknown slot", func(in *ProfileInput) { in.Availability = []string{"mornings"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validProfile("dee@example.com")
			tt.edit(&in)
			if _, err := d.UpsertProfile(context.Background(), in); !errors.Is(err, validation.ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestProfiles_CachedUntilWrite(t *testing.T) {
	emb := &mockEmbedder{vec: []float32{1}}
	d, s := newTestDirectory(t, emb)
	ctx := context.Background()

	if _, err := d.UpsertProfile(ctx, validProfile("a@example.com")); err != nil {
		t.Fatal(err)
	}
	first, err := d.Profiles(ctx)
	if err != nil || len(first) != 1 {
		t.Fatalf("Profiles = %v, %v", first, err)
	}

	// A write behind the directory's back is not visible until invalidation.
	if err := s.UpsertProfile(ctx, model.Profile{Email: "ghost@example.com", Name: "G", PrimaryRole: model.RoleDesigner}); err != nil {
		t.Fatal(err)
	}
	cached, _ := d.Profiles(ctx)
	if len(cached) != 1 {
		t.Fatalf("cached snapshot changed: %d profiles", len(cached))
	}

	if _, err := d.UpsertProfile(ctx, validProfile("b@example.com")); err != nil {
		t.Fatal(err)
	}
	fresh, _ := d.Profiles(ctx)
	if len(fresh) != 3 {
		t.Errorf("after write: %d profiles, want 3", len(fresh))
	}
}

func TestProfiles_TTLExpires(t *testing.T) {
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	clock := &mockClock{now: time.Unix(0, 0)}
	d := New(s, &mockEmbedder{}, Options{ProfileTTL: time.Hour, Clock: clock})
	ctx := context.Background()

	d.Profiles(ctx)
	s.UpsertProfile(ctx, model.Profile{Email: "x@example.com", Name: "X", PrimaryRole: model.RoleDeveloper})

	// TTL is clamped to MaxProfileTTL.
	clock.now = clock.now.Add(MaxProfileTTL)
	got, _ := d.Profiles(ctx)
	if len(got) != 1 {
		t.Errorf("profiles after max TTL = %d, want 1", len(got))
	}
}

func TestCreateProject(t *testing.T) {
	emb := &mockEmbedder{vec: []float32{0.5}}
	d, _ := newTestDirectory(t, emb)
	ctx := context.Background()

	if _, err := d.UpsertProfile(ctx, validProfile("lead@example.com")); err != nil {
		t.Fatal(err)
	}
	p, err := d.CreateProject(ctx, ProjectInput{
		LeaderEmail: "lead@example.com",
		Title:       "Bot",
		Description: "A helpful bot",
		Roles:       []string{"Developer", "designer"},
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.ID == "" || len(p.Roles) != 2 || p.Roles[1].RoleName != model.RoleDesigner {
		t.Errorf("project = %+v", p)
	}
	if last := emb.calls[len(emb.calls)-1]; last != "Title: Bot\nDescription: A helpful bot" {
		t.Errorf("embedded text = %q", last)
	}

	board, err := d.Board(ctx)
	if err != nil {
		t.Fatalf("Board: %v", err)
	}
	if len(board) != 1 || board[0].LeaderName != "Ana" {
		t.Errorf("board = %+v", board)
	}
}

func TestCreateProject_Failures(t *testing.T) {
	emb := &mockEmbedder{vec: []float32{1}}
	d, _ := newTestDirectory(t, emb)
	ctx := context.Background()
	if _, err := d.UpsertProfile(ctx, validProfile("lead@example.com")); err != nil {
		t.Fatal(err)
	}
	valid := ProjectInput{LeaderEmail: "lead@example.com", Title: "T", Description: "D", Roles: []string{"Developer"}}

	noRoles := valid
	noRoles.Roles = nil
	if _, err := d.CreateProject(ctx, noRoles); !errors.Is(err, validation.ErrInvalid) {
		t.Errorf("no roles: err = %v, want ErrInvalid", err)
	}

	unknownLeader := valid
	unknownLeader.LeaderEmail = "nobody@example.com"
	if _, err := d.CreateProject(ctx, unknownLeader); !errors.Is(err, validation.ErrInvalid) {
		t.Errorf("unknown leader: err = %v, want ErrInvalid", err)
	}

	emb.vec = nil
	if _, err := d.CreateProject(ctx, valid); !errors.Is(err, ErrVectorization) {
		t.Errorf("embedding failure: err = %v, want ErrVectorization", err)
	}
	projects, _ := d.Projects(ctx)
	if len(projects) != 0 {
		t.Errorf("projects stored despite failures: %d", len(projects))
	}
}

func TestSubmitReview(t *testing.T) {
	d, _ := newTestDirectory(t, &mockEmbedder{})
	ctx := context.Background()
	rep := &countingClearer{}
	d.InvalidateWith(rep)

	_, err := d.SubmitReview(ctx, ReviewInput{ProjectID: "p", ReviewerEmail: "a@example.com", RevieweeEmail: "A@example.com", Rating: 4})
	if !errors.Is(err, ErrSelfReview) {
		t.Errorf("self review: err = %v, want ErrSelfReview", err)
	}
	_, err = d.SubmitReview(ctx, ReviewInput{ProjectID: "p", ReviewerEmail: "a@example.com", RevieweeEmail: "b@example.com", Rating: 0})
	if !errors.Is(err, validation.ErrInvalid) {
		t.Errorf("rating 0: err = %v, want ErrInvalid", err)
	}
	if rep.n != 0 {
		t.Errorf("rejected reviews invalidated caches %d times", rep.n)
	}

	if _, err := d.SubmitReview(ctx, ReviewInput{ProjectID: "p", ReviewerEmail: "a@example.com", RevieweeEmail: "b@example.com", Rating: 5}); err != nil {
		t.Fatalf("SubmitReview: %v", err)
	}
	if rep.n != 1 {
		t.Errorf("reputation cache cleared %d times, want 1", rep.n)
	}
}

func TestMessages(t *testing.T) {
	d, _ := newTestDirectory(t, &mockEmbedder{})
	ctx := context.Background()

	if _, err := d.SendMessage(ctx, MessageInput{SenderEmail: "a@example.com", ReceiverEmail: "b@example.com", Body: "  "}); !errors.Is(err, validation.ErrInvalid) {
		t.Errorf("blank message: err = %v, want ErrInvalid", err)
	}
	if _, err := d.SendMessage(ctx, MessageInput{SenderEmail: "a@example.com", ReceiverEmail: "b@example.com", Body: "hi"}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.SendMessage(ctx, MessageInput{SenderEmail: "b@example.com", ReceiverEmail: "a@example.com", Body: "hey"}); err != nil {
		t.Fatal(err)
	}
	msgs, err := d.Conversation(ctx, "a@example.com", "b@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Body != "hi" || msgs[1].Body != "hey" {
		t.Errorf("conversation = %+v", msgs)
	}
}

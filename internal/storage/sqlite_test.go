package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/colab/internal/filter"
	"github.com/kalambet/colab/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_project_roles_project", "idx_projects_created", "idx_team_reviews_reviewee", "idx_messages_pair"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestFloat32Codec(t *testing.T) {
	in := []float32{0.25, -1, 3.5}
	out, err := decodeFloat32s(encodeFloat32s(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}

	if encodeFloat32s(nil) != nil {
		t.Error("nil vector should encode to NULL")
	}
	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func testProfile(email string, role model.Role, emb []float32, slots ...model.Slot) model.Profile {
	return model.Profile{
		Email:           email,
		Name:            strings.ToUpper(email[:1]) + email[1:strings.Index(email, "@")],
		PrimaryRole:     role,
		Skills:          "skills of " + email,
		Availability:    model.AvailabilityOf(slots...),
		SkillsEmbedding: emb,
	}
}

func TestUpsertAndGetProfile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := testProfile("ana@example.com", model.RoleDeveloper, []float32{1, 0}, model.SlotWeekends)
	p.GitHubUsername = "ana"
	if err := s.UpsertProfile(ctx, p); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}

	got, err := s.GetProfile(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.Name != "Ana" || got.PrimaryRole != model.RoleDeveloper || got.GitHubUsername != "ana" {
		t.Errorf("got %+v", got)
	}
	if !got.Availability.Weekends || got.Availability.Weekdays {
		t.Errorf("availability = %+v", got.Availability)
	}
	if len(got.SkillsEmbedding) != 2 || got.SkillsEmbedding[0] != 1 {
		t.Errorf("embedding = %v", got.SkillsEmbedding)
	}
}

func TestUpsertProfile_UpdatesInPlace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := testProfile("bo@example.com", model.RoleDesigner, nil)
	first.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.UpsertProfile(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := testProfile("bo@example.com", model.RoleProjectManager, []float32{0, 1})
	second.Skills = "roadmaps"
	if err := s.UpsertProfile(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	all, err := s.ListProfiles(ctx)
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("profiles = %d, want 1", len(all))
	}
	got := all[0]
	if got.PrimaryRole != model.RoleProjectManager || got.Skills != "roadmaps" {
		t.Errorf("profile not updated: %+v", got)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt = %v, want original %v", got.CreatedAt, first.CreatedAt)
	}
}

func TestGetProfileNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetProfile(context.Background(), "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListProfiles_CreationOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, email := range []string{"c@example.com", "a@example.com", "b@example.com"} {
		p := testProfile(email, model.RoleDeveloper, nil)
		p.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.UpsertProfile(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListProfiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, p := range all {
		got = append(got, p.Email)
	}
	want := []string{"c@example.com", "a@example.com", "b@example.com"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestCreateAndGetProject(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.CreateProject(ctx, model.Project{
		LeaderEmail: "lead@example.com",
		Title:       "Hackathon bot",
		Description: "A bot",
		Embedding:   []float32{0.5, 0.5},
		Roles: []model.RoleRequest{
			{RoleName: model.RoleDeveloper},
			{RoleName: model.RoleDesigner},
		},
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if created.ID == "" || created.Status != model.ProjectOpen {
		t.Errorf("defaults not applied: %+v", created)
	}

	got, err := s.GetProject(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if len(got.Roles) != 2 || got.Roles[0].RoleName != model.RoleDeveloper || got.Roles[1].RoleName != model.RoleDesigner {
		t.Fatalf("roles = %+v", got.Roles)
	}
	for _, r := range got.Roles {
		if r.Status != model.RoleOpen || r.ProjectID != created.ID {
			t.Errorf("role = %+v", r)
		}
	}
	if len(got.Embedding) != 2 {
		t.Errorf("embedding = %v", got.Embedding)
	}

	if err := s.SetRoleStatus(ctx, got.Roles[0].ID, model.RoleFilled); err != nil {
		t.Fatalf("SetRoleStatus: %v", err)
	}
	got, _ = s.GetProject(ctx, created.ID)
	if open := got.OpenRoles(); len(open) != 1 || open[0] != model.RoleDesigner {
		t.Errorf("OpenRoles() = %v, want [Designer]", open)
	}

	if err := s.SetRoleStatus(ctx, "missing", model.RoleFilled); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetRoleStatus(missing) = %v, want ErrNotFound", err)
	}
	if _, err := s.GetProject(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProject(missing) = %v, want ErrNotFound", err)
	}
}

func TestListProjects_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, title := range []string{"old", "mid", "new"} {
		_, err := s.CreateProject(ctx, model.Project{
			LeaderEmail: "lead@example.com",
			Title:       title,
			Description: "d",
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
			Roles:       []model.RoleRequest{{RoleName: model.RoleDeveloper}},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(all) != 3 || all[0].Title != "new" || all[2].Title != "old" {
		t.Fatalf("order = %+v", all)
	}
	if len(all[1].Roles) != 1 {
		t.Errorf("roles not loaded: %+v", all[1])
	}
}

func TestAverageRating(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.AverageRating(ctx, "rev@example.com"); err != nil || ok {
		t.Fatalf("AverageRating with no reviews = ok %v, err %v", ok, err)
	}

	for i, rating := range []int{4, 5} {
		_, err := s.InsertReview(ctx, model.Review{
			ProjectID:     "p1",
			ReviewerEmail: fmt.Sprintf("r%d@example.com", i),
			RevieweeEmail: "rev@example.com",
			Rating:        rating,
		})
		if err != nil {
			t.Fatalf("InsertReview: %v", err)
		}
	}

	avg, ok, err := s.AverageRating(ctx, "rev@example.com")
	if err != nil || !ok {
		t.Fatalf("AverageRating: ok %v err %v", ok, err)
	}
	if avg != 4.5 {
		t.Errorf("avg = %v, want 4.5", avg)
	}
}

func TestInsertReview_RejectsOutOfRange(t *testing.T) {
	s := openTestStore(t)
	_, err := s.InsertReview(context.Background(), model.Review{
		ProjectID: "p1", ReviewerEmail: "a@example.com", RevieweeEmail: "b@example.com", Rating: 6,
	})
	if err == nil {
		t.Fatal("expected CHECK constraint failure for rating 6")
	}
}

func TestConversation_BothDirectionsOldestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	send := func(from, to, body string, offset time.Duration) {
		t.Helper()
		if _, err := s.InsertMessage(ctx, model.Message{
			SenderEmail: from, ReceiverEmail: to, Body: body, CreatedAt: at.Add(offset),
		}); err != nil {
			t.Fatalf("InsertMessage: %v", err)
		}
	}
	send("a@example.com", "b@example.com", "hi", 0)
	send("b@example.com", "a@example.com", "hello", time.Second)
	send("a@example.com", "c@example.com", "other thread", 2*time.Second)
	send("a@example.com", "b@example.com", "join us?", 1500*time.Millisecond)

	msgs, err := s.Conversation(ctx, "b@example.com", "a@example.com")
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	var got []string
	for _, m := range msgs {
		got = append(got, m.Body)
	}
	want := "hi|hello|join us?"
	if strings.Join(got, "|") != want {
		t.Errorf("conversation = %v, want %s", got, want)
	}
}

func TestMatchProfiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	profiles := []model.Profile{
		testProfile("close@example.com", model.RoleDeveloper, []float32{1, 0}, model.SlotWeekends),
		testProfile("near@example.com", model.RoleDeveloper, []float32{0.8, 0.6}, model.SlotEvenings),
		testProfile("far@example.com", model.RoleDeveloper, []float32{0, 1}, model.SlotWeekends),
		testProfile("design@example.com", model.RoleDesigner, []float32{1, 0}, model.SlotWeekends),
		testProfile("noemb@example.com", model.RoleDeveloper, nil, model.SlotWeekends),
	}
	for _, p := range profiles {
		if err := s.UpsertProfile(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.MatchProfiles(ctx, MatchParams{
		Embedding:   []float32{1, 0},
		Constraints: filter.Constraints{Role: model.RoleDeveloper},
		Threshold:   0.5,
	})
	if err != nil {
		t.Fatalf("MatchProfiles: %v", err)
	}
	if len(got) != 2 || got[0].Item.Email != "close@example.com" || got[1].Item.Email != "near@example.com" {
		t.Fatalf("matches = %+v", got)
	}
	if math.Abs(got[1].Score-0.8) > 1e-6 {
		t.Errorf("near score = %v, want 0.8", got[1].Score)
	}

	got, err = s.MatchProfiles(ctx, MatchParams{
		Embedding:   []float32{1, 0},
		Constraints: filter.Constraints{Role: model.RoleDeveloper, Availability: []model.Slot{model.SlotEvenings}},
		Threshold:   0.5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Item.Email != "near@example.com" {
		t.Errorf("evening matches = %+v", got)
	}
}

func TestMatchProfilesForProject_NoThreshold(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, p := range []model.Profile{
		testProfile("far@example.com", model.RoleDeveloper, []float32{0, 1}),
		testProfile("close@example.com", model.RoleDeveloper, []float32{1, 0}),
		testProfile("pm@example.com", model.RoleProjectManager, []float32{1, 0}),
	} {
		if err := s.UpsertProfile(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.MatchProfilesForProject(ctx, []float32{1, 0}, model.RoleDeveloper)
	if err != nil {
		t.Fatalf("MatchProfilesForProject: %v", err)
	}
	if len(got) != 2 || got[0].Item.Email != "close@example.com" || got[1].Item.Email != "far@example.com" {
		t.Errorf("matches = %+v", got)
	}
}

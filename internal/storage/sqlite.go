package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kalambet/colab/internal/filter"
	"github.com/kalambet/colab/internal/model"
	"github.com/kalambet/colab/internal/rank"
	"github.com/kalambet/colab/internal/similarity"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding profiles, projects, reviews and messages.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "colab.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Profiles ---

const profileColumns = `email, name, primary_role, skills, goals,
	availability_weekdays, availability_weekends, availability_evenings,
	github_username, skills_embedding, created_at, updated_at`

// UpsertProfile inserts p or replaces the stored profile with the same email.
// The original creation time is kept on update.
func (s *Store) UpsertProfile(ctx context.Context, p model.Profile) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	var handle any
	if p.GitHubUsername != "" {
		handle = p.GitHubUsername
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = excluded.name,
			primary_role = excluded.primary_role,
			skills = excluded.skills,
			goals = excluded.goals,
			availability_weekdays = excluded.availability_weekdays,
			availability_weekends = excluded.availability_weekends,
			availability_evenings = excluded.availability_evenings,
			github_username = excluded.github_username,
			skills_embedding = excluded.skills_embedding,
			updated_at = excluded.updated_at`,
		p.Email, p.Name, string(p.PrimaryRole), p.Skills, p.Goals,
		boolInt(p.Availability.Weekdays), boolInt(p.Availability.Weekends), boolInt(p.Availability.Evenings),
		handle, encodeFloat32s(p.SkillsEmbedding), formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting profile %s: %w", p.Email, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (model.Profile, error) {
	var (
		p                            model.Profile
		role                         string
		weekdays, weekends, evenings int
		handle                       sql.NullString
		emb                          []byte
		createdAt, updatedAt         string
	)
	if err := row.Scan(&p.Email, &p.Name, &role, &p.Skills, &p.Goals,
		&weekdays, &weekends, &evenings, &handle, &emb, &createdAt, &updatedAt); err != nil {
		return model.Profile{}, err
	}
	p.PrimaryRole = model.Role(role)
	p.Availability = model.Availability{Weekdays: weekdays != 0, Weekends: weekends != 0, Evenings: evenings != 0}
	p.GitHubUsername = handle.String

	var err error
	if p.SkillsEmbedding, err = decodeFloat32s(emb); err != nil {
		return model.Profile{}, fmt.Errorf("decoding embedding for %s: %w", p.Email, err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Profile{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Profile{}, err
	}
	return p, nil
}

// GetProfile returns the profile for email or ErrNotFound.
func (s *Store) GetProfile(ctx context.Context, email string) (model.Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Profile{}, ErrNotFound
	}
	if err != nil {
		return model.Profile{}, fmt.Errorf("getting profile %s: %w", email, err)
	}
	return p, nil
}

// ListProfiles returns every profile in creation order.
func (s *Store) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var out []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Projects ---

// CreateProject stores p and its role requests in one transaction. Missing
// IDs, timestamps and statuses are filled in; the stored project is returned.
func (s *Store) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.Status == "" {
		p.Status = model.ProjectOpen
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Project{}, fmt.Errorf("beginning project transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, created_at, leader_email, title, description, status, project_embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, formatTime(p.CreatedAt), p.LeaderEmail, p.Title, p.Description, string(p.Status), encodeFloat32s(p.Embedding),
	); err != nil {
		return model.Project{}, fmt.Errorf("inserting project: %w", err)
	}

	for i := range p.Roles {
		r := &p.Roles[i]
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.Status == "" {
			r.Status = model.RoleOpen
		}
		r.ProjectID = p.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO project_roles (id, project_id, position, role_name, status)
			VALUES (?, ?, ?, ?, ?)`,
			r.ID, p.ID, i, string(r.RoleName), string(r.Status),
		); err != nil {
			return model.Project{}, fmt.Errorf("inserting role %s: %w", r.RoleName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Project{}, fmt.Errorf("committing project: %w", err)
	}
	return p, nil
}

func scanProject(row rowScanner) (model.Project, error) {
	var (
		p         model.Project
		status    string
		emb       []byte
		createdAt string
	)
	if err := row.Scan(&p.ID, &createdAt, &p.LeaderEmail, &p.Title, &p.Description, &status, &emb); err != nil {
		return model.Project{}, err
	}
	p.Status = model.ProjectStatus(status)

	var err error
	if p.Embedding, err = decodeFloat32s(emb); err != nil {
		return model.Project{}, fmt.Errorf("decoding embedding for project %s: %w", p.ID, err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Project{}, err
	}
	return p, nil
}

func (s *Store) loadRoles(ctx context.Context, projectID string) ([]model.RoleRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, role_name, status FROM project_roles
		WHERE project_id = ? ORDER BY position ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading roles for %s: %w", projectID, err)
	}
	defer rows.Close()

	var out []model.RoleRequest
	for rows.Next() {
		var r model.RoleRequest
		var role, status string
		if err := rows.Scan(&r.ID, &r.ProjectID, &role, &status); err != nil {
			return nil, err
		}
		r.RoleName = model.Role(role)
		r.Status = model.RoleStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

const projectColumns = `id, created_at, leader_email, title, description, status, project_embedding`

// GetProject returns the project with its roles, or ErrNotFound.
func (s *Store) GetProject(ctx context.Context, id string) (model.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Project{}, ErrNotFound
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("getting project %s: %w", id, err)
	}
	if p.Roles, err = s.loadRoles(ctx, p.ID); err != nil {
		return model.Project{}, err
	}
	return p, nil
}

// ListProjects returns every project with its roles, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// The single connection must be released before the role queries run.
	rows.Close()

	for i := range out {
		if out[i].Roles, err = s.loadRoles(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SetRoleStatus updates one role request. Returns ErrNotFound if no role has that ID.
func (s *Store) SetRoleStatus(ctx context.Context, roleID string, status model.RoleStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE project_roles SET status = ? WHERE id = ?`, string(status), roleID)
	if err != nil {
		return fmt.Errorf("updating role %s: %w", roleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Reviews ---

func (s *Store) InsertReview(ctx context.Context, r model.Review) (model.Review, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_reviews (id, project_id, reviewer_email, reviewee_email, reliability_rating, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.ReviewerEmail, r.RevieweeEmail, r.Rating, formatTime(r.CreatedAt),
	)
	if err != nil {
		return model.Review{}, fmt.Errorf("inserting review: %w", err)
	}
	return r, nil
}

// AverageRating returns the mean reliability rating of email. ok is false
// when the profile has no reviews.
func (s *Store) AverageRating(ctx context.Context, email string) (avg float64, ok bool, err error) {
	var v sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT AVG(reliability_rating) FROM team_reviews WHERE reviewee_email = ?`, email,
	).Scan(&v); err != nil {
		return 0, false, fmt.Errorf("averaging ratings for %s: %w", email, err)
	}
	return v.Float64, v.Valid, nil
}

// --- Messages ---

func (s *Store) InsertMessage(ctx context.Context, m model.Message) (model.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_email, receiver_email, message, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.SenderEmail, m.ReceiverEmail, m.Body, formatTime(m.CreatedAt),
	)
	if err != nil {
		return model.Message{}, fmt.Errorf("inserting message: %w", err)
	}
	return m, nil
}

// Conversation returns the messages exchanged between a and b in either
// direction, oldest first.
func (s *Store) Conversation(ctx context.Context, a, b string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_email, receiver_email, message, created_at FROM messages
		WHERE (sender_email = ? AND receiver_email = ?) OR (sender_email = ? AND receiver_email = ?)
		ORDER BY created_at ASC, rowid ASC`, a, b, b, a)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.SenderEmail, &m.ReceiverEmail, &m.Body, &createdAt); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Match procedures ---

// MatchProfiles ranks profiles by cosine similarity between their skills
// embedding and p.Embedding, after the role and availability constraints.
// Profiles without an embedding are skipped.
func (s *Store) MatchProfiles(ctx context.Context, p MatchParams) ([]ScoredProfile, error) {
	profiles, err := s.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	return scoreProfiles(filter.Apply(embedded(profiles), p.Constraints), p.Embedding, rank.Options[model.Profile]{
		K:        p.Limit,
		MinScore: rank.Threshold(p.Threshold),
	}), nil
}

// MatchProfilesForProject ranks every profile whose primary role equals role
// against a project embedding. No threshold applies.
func (s *Store) MatchProfilesForProject(ctx context.Context, embedding []float32, role model.Role) ([]ScoredProfile, error) {
	profiles, err := s.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	return scoreProfiles(filter.Apply(embedded(profiles), filter.Constraints{Role: role}), embedding,
		rank.Options[model.Profile]{}), nil
}

func embedded(profiles []model.Profile) []model.Profile {
	out := profiles[:0:0]
	for _, p := range profiles {
		if len(p.SkillsEmbedding) > 0 {
			out = append(out, p)
		}
	}
	return out
}

func scoreProfiles(profiles []model.Profile, query []float32, opts rank.Options[model.Profile]) []ScoredProfile {
	vecs := make([][]float32, len(profiles))
	for i, p := range profiles {
		vecs[i] = p.SkillsEmbedding
	}
	return rank.Rank(profiles, similarity.Against(query, vecs), opts)
}

// Package model holds the records shared by the matcher, the record stores
// and the HTTP layer.
package model

import (
	"strings"
	"time"
)

// Role is a team function a profile can fill or a project can request.
type Role string

const (
	RoleDeveloper      Role = "Developer"
	RoleDesigner       Role = "Designer"
	RoleProjectManager Role = "Project Manager"
	RoleResearcher     Role = "Researcher"
	RolePresenter      Role = "Presenter"
)

// Roles lists every known role in display order.
var Roles = []Role{RoleDeveloper, RoleDesigner, RoleProjectManager, RoleResearcher, RolePresenter}

// ParseRole maps s onto a known role, ignoring case and surrounding spaces.
func ParseRole(s string) (Role, bool) {
	s = strings.TrimSpace(s)
	for _, r := range Roles {
		if strings.EqualFold(s, string(r)) {
			return r, true
		}
	}
	return "", false
}

// Slot is an availability window.
type Slot string

const (
	SlotWeekdays Slot = "weekdays"
	SlotWeekends Slot = "weekends"
	SlotEvenings Slot = "evenings"
)

// Slots lists every known slot in canonical order.
var Slots = []Slot{SlotWeekdays, SlotWeekends, SlotEvenings}

// ParseSlot maps s onto a known slot, ignoring case and surrounding spaces.
func ParseSlot(s string) (Slot, bool) {
	s = strings.TrimSpace(s)
	for _, sl := range Slots {
		if strings.EqualFold(s, string(sl)) {
			return sl, true
		}
	}
	return "", false
}

// Availability holds independent availability flags.
type Availability struct {
	Weekdays bool `json:"weekdays"`
	Weekends bool `json:"weekends"`
	Evenings bool `json:"evenings"`
}

// Has reports whether the slot is set.
func (a Availability) Has(s Slot) bool {
	switch s {
	case SlotWeekdays:
		return a.Weekdays
	case SlotWeekends:
		return a.Weekends
	case SlotEvenings:
		return a.Evenings
	}
	return false
}

// Slots returns the set flags in canonical order.
func (a Availability) Slots() []Slot {
	var out []Slot
	for _, s := range Slots {
		if a.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

// AvailabilityOf builds flags from a slot list.
func AvailabilityOf(slots ...Slot) Availability {
	var a Availability
	for _, s := range slots {
		switch s {
		case SlotWeekdays:
			a.Weekdays = true
		case SlotWeekends:
			a.Weekends = true
		case SlotEvenings:
			a.Evenings = true
		}
	}
	return a
}

// Profile is a person in the directory. Email is the identity key.
type Profile struct {
	Email          string       `json:"email"`
	Name           string       `json:"name"`
	PrimaryRole    Role         `json:"primary_role"`
	Skills         string       `json:"skills"`
	Goals          string       `json:"goals"`
	Availability   Availability `json:"availability"`
	GitHubUsername string       `json:"github_username,omitempty"`

	// SkillsEmbedding is the dense vector of Skills at the time of the last upsert.
	SkillsEmbedding []float32 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectOpen     ProjectStatus = "Open"
	ProjectFilled   ProjectStatus = "Filled"
	ProjectArchived ProjectStatus = "Archived"
)

// RoleStatus is the fulfillment state of a role request.
type RoleStatus string

const (
	RoleOpen   RoleStatus = "Open"
	RoleFilled RoleStatus = "Filled"
)

// Project is a pitch looking for teammates.
type Project struct {
	ID          string        `json:"id"`
	CreatedAt   time.Time     `json:"created_at"`
	LeaderEmail string        `json:"leader_email"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      ProjectStatus `json:"status"`
	Embedding   []float32     `json:"-"`
	Roles       []RoleRequest `json:"roles"`
}

// EmbeddingText is the text the project embedding is computed from.
func (p Project) EmbeddingText() string {
	return ProjectEmbeddingText(p.Title, p.Description)
}

// ProjectEmbeddingText formats a title and description for embedding.
func ProjectEmbeddingText(title, description string) string {
	return "Title: " + title + "\nDescription: " + description
}

// OpenRoles returns the distinct open role names in first-seen order.
func (p Project) OpenRoles() []Role {
	seen := make(map[Role]bool)
	var out []Role
	for _, r := range p.Roles {
		if r.Status == RoleFilled || seen[r.RoleName] {
			continue
		}
		seen[r.RoleName] = true
		out = append(out, r.RoleName)
	}
	return out
}

// RoleRequest is one role a project needs.
type RoleRequest struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	RoleName  Role       `json:"role_name"`
	Status    RoleStatus `json:"status"`
}

// Review is one reliability rating of a teammate on a project.
type Review struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	ReviewerEmail string    `json:"reviewer_email"`
	RevieweeEmail string    `json:"reviewee_email"`
	Rating        int       `json:"rating"`
	CreatedAt     time.Time `json:"created_at"`
}

// Message is a direct message between two profiles.
type Message struct {
	ID            string    `json:"id"`
	SenderEmail   string    `json:"sender_email"`
	ReceiverEmail string    `json:"receiver_email"`
	Body          string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
}

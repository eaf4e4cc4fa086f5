// Package filter applies hard role and availability constraints to profiles.
package filter

import "github.com/kalambet/colab/internal/model"

// Constraints are the hard requirements a candidate must meet.
// A zero Role or an empty Availability disables that check.
type Constraints struct {
	Role         model.Role   `json:"role,omitempty"`
	Availability []model.Slot `json:"availability,omitempty"`
}

// IsZero reports whether no constraint is set.
func (c Constraints) IsZero() bool {
	return c.Role == "" && len(c.Availability) == 0
}

// Passes reports whether p satisfies c. Role must match exactly; availability
// passes when p has at least one of the requested slots.
func Passes(p model.Profile, c Constraints) bool {
	if c.Role != "" && p.PrimaryRole != c.Role {
		return false
	}
	if len(c.Availability) == 0 {
		return true
	}
	for _, s := range c.Availability {
		if p.Availability.Has(s) {
			return true
		}
	}
	return false
}

// Apply returns the profiles that pass c, preserving input order.
func Apply(profiles []model.Profile, c Constraints) []model.Profile {
	if c.IsZero() {
		return profiles
	}
	out := make([]model.Profile, 0, len(profiles))
	for _, p := range profiles {
		if Passes(p, c) {
			out = append(out, p)
		}
	}
	return out
}

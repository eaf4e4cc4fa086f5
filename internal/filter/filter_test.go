package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kalambet/colab/internal/model"
)

func profile(email string, role model.Role, slots ...model.Slot) model.Profile {
	return model.Profile{Email: email, PrimaryRole: role, Availability: model.AvailabilityOf(slots...)}
}

func TestPasses_UnspecifiedRolePassesAll(t *testing.T) {
	for _, r := range model.Roles {
		assert.True(t, Passes(profile("x", r), Constraints{}), "role %s", r)
	}
}

func TestPasses_RoleIsExact(t *testing.T) {
	c := Constraints{Role: model.RoleDeveloper}
	assert.True(t, Passes(profile("a", model.RoleDeveloper), c))
	assert.False(t, Passes(profile("b", model.RoleDesigner), c))
}

func TestPasses_AvailabilityIsOr(t *testing.T) {
	c := Constraints{Availability: []model.Slot{model.SlotWeekends, model.SlotEvenings}}
	assert.True(t, Passes(profile("a", model.RoleDeveloper, model.SlotEvenings), c))
	assert.True(t, Passes(profile("b", model.RoleDeveloper, model.SlotWeekends), c))
	assert.False(t, Passes(profile("c", model.RoleDeveloper, model.SlotWeekdays), c))
	assert.False(t, Passes(profile("d", model.RoleDeveloper), c))
}

func TestApply_Scenario(t *testing.T) {
	pool := []model.Profile{
		profile("a", model.RoleDeveloper, model.SlotWeekdays),
		profile("b", model.RoleDesigner, model.SlotWeekends),
		profile("c", model.RoleDeveloper, model.SlotWeekends),
	}
	got := Apply(pool, Constraints{Role: model.RoleDeveloper, Availability: []model.Slot{model.SlotWeekends}})
	if assert.Len(t, got, 1) {
		assert.Equal(t, "c", got[0].Email)
	}
}

func TestApply_PreservesOrder(t *testing.T) {
	pool := []model.Profile{
		profile("z", model.RoleDesigner, model.SlotEvenings),
		profile("y", model.RoleDeveloper),
		profile("x", model.RoleDesigner, model.SlotEvenings),
	}
	got := Apply(pool, Constraints{Role: model.RoleDesigner})
	assert.Equal(t, []string{"z", "x"}, []string{got[0].Email, got[1].Email})
}

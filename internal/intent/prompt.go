package intent

import (
	"fmt"
	"strings"

	"github.com/kalambet/colab/internal/engine"
	"github.com/kalambet/colab/internal/model"
)

const systemPromptTemplate = `You are an assistant helping a student find project teammates.
Your job is to extract search criteria from the user's text.
You must ONLY respond with a single, valid JSON object.

The user is looking for three things:
1. role: The specific role they need. Must be one of: %s.
2. availability: A list of availability slots. Must be zero or more of: %s.
3. skills_query: The text describing the skills they need.

If the user's text is unclear, return a JSON object with all values as null.`

// SystemPrompt returns the extraction instructions listing the known roles and slots.
func SystemPrompt() string {
	roles := make([]string, len(model.Roles))
	for i, r := range model.Roles {
		roles[i] = string(r)
	}
	slots := make([]string, len(model.Slots))
	for i, s := range model.Slots {
		slots[i] = string(s)
	}
	return fmt.Sprintf(systemPromptTemplate, strings.Join(roles, ", "), strings.Join(slots, ", "))
}

// BuildPrompt constructs the chat messages for intent extraction. The call is
// single-shot: earlier turns of a recruiter conversation are not included.
func BuildPrompt(query string) []engine.Message {
	return []engine.Message{
		{Role: engine.RoleSystem, Content: SystemPrompt()},
		{Role: engine.RoleUser, Content: query},
	}
}

// intentSchema constrains output on backends that accept a JSON schema.
func intentSchema() *engine.Schema {
	roles := make([]string, len(model.Roles))
	for i, r := range model.Roles {
		roles[i] = string(r)
	}
	slots := make([]string, len(model.Slots))
	for i, s := range model.Slots {
		slots[i] = string(s)
	}
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"role":         {Type: "string", Description: "The role needed", Enum: roles},
			"availability": {Type: "array", Description: "Requested availability slots", Items: &engine.SchemaProperty{Type: "string", Enum: slots}},
			"skills_query": {Type: "string", Description: "Text describing the skills needed"},
		},
		Required: []string{"role", "availability", "skills_query"},
	}
}

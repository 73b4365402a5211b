package client

import (
	"embed"
	"strings"
)

// embeddedPrompts holds the built-in prompt templates so packaged executables
// can load them without needing access to the source tree.
//
//go:embed prompts/*.txt
var embeddedPrompts embed.FS

func loadPrompt(name string) string {
	data, err := embeddedPrompts.ReadFile("prompts/" + name + ".txt")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// personaPrompt returns the elicitation system prompt for a persona,
// falling back to the default persona when the ID has no template.
func personaPrompt(personaID string) string {
	id := strings.TrimSpace(strings.ToLower(personaID))
	if id != "" {
		if p := loadPrompt("persona_" + id); p != "" {
			return p
		}
	}
	return loadPrompt("persona_default")
}

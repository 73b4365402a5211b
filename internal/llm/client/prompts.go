package client

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"evermore/internal/models"
)

var styleGuidance = map[models.WritingStyle]string{
	models.StyleVivid:          "Paint scenes with rich sensory detail so the reader can see, hear, and feel each moment.",
	models.StyleEmotional:      "Lead with feeling. Let the emotional weight of each memory carry the narrative.",
	models.StyleConversational: "Write the way the author would tell it aloud to a close friend, warm and unhurried.",
	models.StyleConcise:        "Keep every sentence earning its place. Trim ornament, keep the heart.",
	models.StyleDocumentary:    "Ground the story in facts, dates, and places, narrated with a steady observational voice.",
}

var lengthGuidance = map[models.LengthPreference]string{
	models.LengthShorter: "Aim for a noticeably shorter piece than the original story.",
	models.LengthSimilar: "Keep the final piece roughly the same length as the original story.",
	models.LengthLonger:  "Expand well beyond the original story, weaving in the new detail gathered from the author.",
}

func fill(template string, pairs ...string) string {
	return strings.NewReplacer(pairs...).Replace(template)
}

func historyMessages(history []models.ChatMessage) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		if m.Status != models.MessageComplete {
			continue
		}
		switch m.Role {
		case models.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		default:
			msgs = append(msgs, schema.UserMessage(m.Content))
		}
	}
	return msgs
}

// ElicitationMessages builds the conversation sent for one assistant turn of
// the detail-gathering chat, persona system prompt first.
func ElicitationMessages(personaID, storyContent string, history []models.ChatMessage, userText string) []*schema.Message {
	system := fill(personaPrompt(personaID), "{{STORY}}", storyContent)
	msgs := []*schema.Message{schema.SystemMessage(system)}
	msgs = append(msgs, historyMessages(history)...)
	if userText != "" {
		msgs = append(msgs, schema.UserMessage(userText))
	}
	return msgs
}

// SummaryMessages builds the non-streaming summarization request over the
// full elicitation conversation.
func SummaryMessages(storyContent string, history []models.ChatMessage) []*schema.Message {
	var transcript strings.Builder
	for _, m := range history {
		if m.Status != models.MessageComplete {
			continue
		}
		transcript.WriteString(string(m.Role))
		transcript.WriteString(": ")
		transcript.WriteString(m.Content)
		transcript.WriteString("\n\n")
	}
	system := loadPrompt("summary_system")
	user := fill(loadPrompt("summary_user"),
		"{{STORY}}", storyContent,
		"{{TRANSCRIPT}}", strings.TrimSpace(transcript.String()),
	)
	return []*schema.Message{schema.SystemMessage(system), schema.UserMessage(user)}
}

// DraftMessages builds the fresh-draft generation request.
func DraftMessages(storyContent, summary string, style models.WritingStyle, length models.LengthPreference) []*schema.Message {
	system := loadPrompt("draft_system")
	user := fill(loadPrompt("draft_user"),
		"{{STORY}}", storyContent,
		"{{SUMMARY}}", summary,
		"{{STYLE}}", styleGuidance[style],
		"{{LENGTH}}", lengthGuidance[length],
	)
	return []*schema.Message{schema.SystemMessage(system), schema.UserMessage(user)}
}

// RevisionMessages builds a revise-the-draft request seeded with the current
// draft content and the author's free-text instruction.
func RevisionMessages(draft, instruction string) []*schema.Message {
	system := loadPrompt("revision_system")
	user := fill(loadPrompt("revision_user"),
		"{{DRAFT}}", draft,
		"{{INSTRUCTION}}", instruction,
	)
	return []*schema.Message{schema.SystemMessage(system), schema.UserMessage(user)}
}

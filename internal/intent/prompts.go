package intent

import (
	"fmt"
	"strings"

	"github.com/MrWong99/portalvoice/internal/catalog"
)

// DefaultPersona is used when no persona is configured.
const DefaultPersona = "You are the assistant of a public-service portal. Answer questions about the portal and its services helpfully and concisely. Never answer with \"I don't know\"."

const contactRule = "Never give out phone numbers or email addresses, even when asked, because that information may be outdated."

const topicPrompt = `Identify which portal features the user's message refers to.
Reply with JSON only, no explanation and no markdown:
{"topics":["<feature keyword>", ...]}
Each topic is a short lowercase keyword or phrase naming a portal feature, for example "pendaftaran perkara" or "jadwal sidang".
If the message does not refer to any portal feature, reply with exactly: null`

const closeRule = `If the user asks to close the opened page or website, reply with JSON only:
{"action":"close_link","answer":"<short spoken confirmation>"}`

// topicSystemPrompt returns the system prompt of the topic pass.
func topicSystemPrompt() string {
	return topicPrompt
}

// answerSystemPrompt returns the system prompt of the answer pass. matches
// may be empty; the first match is the one the model is told to open.
func answerSystemPrompt(persona string, matches []catalog.Match) string {
	if persona == "" {
		persona = DefaultPersona
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n")
	b.WriteString(contactRule)
	b.WriteString("\n\n")

	if len(matches) > 0 {
		b.WriteString("These portal features match the user's message, best match first:\n")
		for _, m := range matches {
			fmt.Fprintf(&b, "- %s: %s\n", m.Entry.Name, m.Entry.URL)
		}
		top := matches[0].Entry
		fmt.Fprintf(&b, "\nIf the user wants to open or see %q, reply with JSON only:\n", top.Name)
		fmt.Fprintf(&b, `{"action":"open_link","url":%q,"answer":"<short spoken answer>"}`, top.URL)
		b.WriteString("\nNever open a link that is not listed above.\n")
		b.WriteString(closeRule)
		b.WriteString("\nFor any other question, answer normally in plain text.")
		return b.String()
	}

	b.WriteString("Answer in plain, speakable text without markdown, lists or links.\n")
	b.WriteString(closeRule)
	return b.String()
}

// Package prompt provides the reference [memory.PromptTemplates]
// implementation used by the composition root when no custom prompt
// rendering is supplied.
package prompt

import (
	"fmt"
	"strings"

	"github.com/danja/semem/pkg/memory"
)

var _ memory.PromptTemplates = (*Templates)(nil)

// conceptExtractionInstruction is the system message sent alongside every
// concept-extraction request. It asks for a bare JSON array of short
// strings; [manager.Manager.ExtractConcepts] tolerates prose wrapped around
// the array in the reply.
const conceptExtractionInstruction = `Extract the key concepts discussed in the following text. ` +
	`Respond with a JSON array of short lowercase strings, e.g. ["ai","memory"], and nothing else.`

// Templates is a pure, side-effect-free [memory.PromptTemplates]
// implementation. Sections of the rendered system prompt that have no
// content (no high-priority instruction, no assembled context) are omitted
// rather than rendered as empty headers.
type Templates struct{}

// New returns a ready-to-use Templates.
func New() *Templates {
	return &Templates{}
}

// ConceptPrompt implements [memory.PromptTemplates].
func (Templates) ConceptPrompt(_ string, text string) []memory.ChatMessage {
	return []memory.ChatMessage{
		{Role: "system", Content: conceptExtractionInstruction},
		{Role: "user", Content: text},
	}
}

// ChatPrompt implements [memory.PromptTemplates]. The system message
// combines the caller-supplied high-priority instruction with a "Relevant
// Context" section built from the Context Assembler's output; either half
// is omitted when empty.
func (Templates) ChatPrompt(_ string, system, assembledContext, userQuery string) []memory.ChatMessage {
	var sb strings.Builder

	system = strings.TrimSpace(system)
	assembledContext = strings.TrimSpace(assembledContext)

	switch {
	case system != "" && assembledContext != "":
		sb.WriteString(system)
		fmt.Fprintf(&sb, "\n\n%s", assembledContext)
	case system != "":
		sb.WriteString(system)
	case assembledContext != "":
		sb.WriteString(assembledContext)
	}

	messages := make([]memory.ChatMessage, 0, 2)
	if sb.Len() > 0 {
		messages = append(messages, memory.ChatMessage{Role: "system", Content: sb.String()})
	}
	messages = append(messages, memory.ChatMessage{Role: "user", Content: userQuery})
	return messages
}

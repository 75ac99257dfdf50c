package chain

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/ragbot/ragbot-go/internal/budget"
	"github.com/ragbot/ragbot-go/internal/memory"
	"github.com/ragbot/ragbot-go/internal/rag"
)

// systemPrompt is the base system prompt injected into every conversation.
// It restricts the model to the retrieved document context and the prior
// conversation, and tells it to admit when the answer is not in either.
const systemPrompt = `You are a helpful assistant that answers questions about the user's uploaded documents.

Answer using ONLY the document excerpts provided below and the prior conversation.
If the answer cannot be found in the excerpts or the conversation, say that you
don't know — do not guess and do not use outside knowledge.

When you use information from an excerpt, mention which source it came from.
Keep answers concise and directly address the question.`

// buildContextBlock formats retrieved chunks into a system message that
// provides the model with the relevant document excerpts for this question.
func buildContextBlock(chunks []rag.Chunk) string {
	var sb strings.Builder
	sb.WriteString("## Document Context\n\n" +
		"The following excerpts were retrieved from the uploaded documents " +
		"for the current question.\n\n")
	for i, c := range chunks {
		fmt.Fprintf(&sb, "### Source %d: %s (page %d)\n%s\n\n", i+1, c.Source, c.Page, c.Text)
	}
	return sb.String()
}

// buildMessages assembles the full prompt for one turn in a fixed order:
// system prompt, retrieved context, conversation history, current question.
// History is trimmed oldest-first to fit the token budget; the other three
// parts are never trimmed.
func buildMessages(query string, chunks []rag.Chunk, turns []memory.Turn, maxTokens int) []*schema.Message {
	fixed := []*schema.Message{schema.SystemMessage(systemPrompt)}
	if len(chunks) > 0 {
		fixed = append(fixed, schema.SystemMessage(buildContextBlock(chunks)))
	}
	user := schema.UserMessage(query)

	var history []*schema.Message
	for _, t := range turns {
		switch t.Role {
		case memory.RoleUser:
			history = append(history, schema.UserMessage(t.Text))
		case memory.RoleAssistant:
			history = append(history, schema.AssistantMessage(t.Text, nil))
		}
	}
	history = budget.TrimHistory(append(fixed, user), history, maxTokens)

	messages := make([]*schema.Message, 0, len(fixed)+len(history)+1)
	messages = append(messages, fixed...)
	messages = append(messages, history...)
	messages = append(messages, user)
	return messages
}

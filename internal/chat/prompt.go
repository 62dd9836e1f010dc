package chat

import "strings"

const preamble = "The following is a friendly conversation between a human and an AI. " +
	"The AI is talkative and provides lots of specific details from its context. " +
	"If the AI does not know the answer to a question, it truthfully says it does not know.\n" +
	"Current conversation:\n"

// BuildPrompt renders the query with as much client history as fits in half
// of maxTokens, measured in characters. History is taken oldest first and
// stops at the first exchange that would overflow the budget.
func BuildPrompt(in Input, maxTokens int) string {
	var b strings.Builder
	b.WriteString(preamble)

	budget := maxTokens / 2
	used := 0
	for _, h := range in.History {
		used += len(h.Q) + len(h.A)
		if used > budget {
			break
		}
		b.WriteString("Human: ")
		b.WriteString(h.Q)
		b.WriteString("\nAI: ")
		b.WriteString(h.A)
		b.WriteString("\n")
	}

	b.WriteString("Human: ")
	b.WriteString(in.Query)
	b.WriteString("\nAI:")
	return b.String()
}

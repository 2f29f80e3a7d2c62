package engine

import (
	"strings"
)

// Prompt is a system instruction plus the user turn. Raw-completion backends
// render it with Render; chat backends send the two parts as messages.
type Prompt struct {
	System string
	User   string
}

// Render formats the prompt in ChatML, leaving the assistant turn open.
func (p Prompt) Render() string {
	var b strings.Builder
	b.WriteString("<|im_start|>system\n")
	b.WriteString(p.System)
	b.WriteString("\n<|im_end|>\n<|im_start|>user\n")
	b.WriteString(p.User)
	b.WriteString("\n<|im_end|>\n<|im_start|>assistant\n")
	return b.String()
}

// preview clips s for log events.
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func classifyPrompt(t *Taxonomy, question string) Prompt {
	var b strings.Builder
	b.WriteString("You are a STRICT classifier.\n\n")
	b.WriteString("Choose the best word to match the user question.\n")
	for _, c := range t.Categories {
		b.WriteString("- ")
		b.WriteString(c.display())
		b.WriteString("\n")
	}
	b.WriteString("\nReply with that single word only.")
	return Prompt{System: b.String(), User: strings.TrimSpace(question)}
}

func answerPrompt(t *Taxonomy, question, category string) Prompt {
	var b strings.Builder
	b.WriteString("You are an assistant")
	if c, ok := t.lookup(category); ok {
		b.WriteString(". The question has been classified as: ")
		b.WriteString(c.display())
	}
	b.WriteString(".\nAnswer the user's question concisely, in the language of the question.\n\n")
	b.WriteString("STRICT OUTPUT:\nWrite ONLY the final answer. No category, no preamble, no explanations.")
	return Prompt{System: b.String(), User: strings.TrimSpace(question)}
}

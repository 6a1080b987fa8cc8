package orchestrate

import (
	"fmt"
	"strings"

	"github.com/docuchat-io/docuchat/internal/retrieve"
)

// HistoryTurn is one prior exchange supplied to prompt assembly.
type HistoryTurn struct {
	UserMessage string
	BotResponse string
}

type promptInput struct {
	SystemPrompt string
	Language     string
	Passages     []retrieve.Passage
	History      []HistoryTurn
	UserMessage  string
}

const defaultSystemPrompt = "You are a helpful assistant. Answer using only the provided context. " +
	"If the context does not contain the answer, say you do not know. Never invent facts."

// buildPrompt assembles the provider-independent prompt. History is trimmed
// oldest-first to historyBudget runes before context is added; if the whole
// prompt still exceeds promptBudget, passages are dropped last-ranked-first.
// The returned slice holds the passages that actually made it into the
// prompt, so callers cite only text the model saw.
func buildPrompt(in promptInput, promptBudget, historyBudget int) (prompt string, kept []retrieve.Passage) {
	history := trimHistory(in.History, historyBudget)
	kept = in.Passages
	for {
		prompt = renderPrompt(in, kept, history)
		if promptBudget <= 0 || len([]rune(prompt)) <= promptBudget || len(kept) == 0 {
			break
		}
		kept = kept[:len(kept)-1]
	}
	return prompt, kept
}

// trimHistory drops the oldest turns until the rendered history fits budget.
func trimHistory(history []HistoryTurn, budget int) []HistoryTurn {
	if budget <= 0 {
		return history
	}
	for len(history) > 0 {
		size := 0
		for _, turn := range history {
			size += len([]rune(turn.UserMessage)) + len([]rune(turn.BotResponse))
		}
		if size <= budget {
			break
		}
		history = history[1:]
	}
	return history
}

func renderPrompt(in promptInput, passages []retrieve.Passage, history []HistoryTurn) string {
	var sb strings.Builder

	system := strings.TrimSpace(in.SystemPrompt)
	if system == "" {
		system = defaultSystemPrompt
	}
	sb.WriteString(system)
	sb.WriteString("\n")
	if in.Language != "" {
		fmt.Fprintf(&sb, "Respond in language: %s.\n", in.Language)
	}

	if len(passages) > 0 {
		sb.WriteString("\nContext:\n")
		for _, p := range passages {
			fmt.Fprintf(&sb, "[source: %s #%d]\n%s\n\n", sourceName(p), p.Ordinal, p.Text)
		}
	}

	if len(history) > 0 {
		sb.WriteString("\nConversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", turn.UserMessage, turn.BotResponse)
		}
	}

	fmt.Fprintf(&sb, "\nUser: %s\nAssistant:", in.UserMessage)
	return sb.String()
}

func sourceName(p retrieve.Passage) string {
	if p.Filename != "" {
		return p.Filename
	}
	return p.DocumentID
}

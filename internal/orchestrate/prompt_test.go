package orchestrate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docuchat-io/docuchat/internal/retrieve"
)

func TestBuildPromptContainsAllSections(t *testing.T) {
	prompt, kept := buildPrompt(promptInput{
		SystemPrompt: "You answer questions about widgets.",
		Language:     "de",
		Passages: []retrieve.Passage{
			{Filename: "manual.txt", Ordinal: 3, Text: "widgets spin clockwise", Score: 0.9},
		},
		History: []HistoryTurn{
			{UserMessage: "hi", BotResponse: "hello"},
		},
		UserMessage: "which way do widgets spin?",
	}, 0, 0)

	require.Len(t, kept, 1)
	require.Contains(t, prompt, "You answer questions about widgets.")
	require.Contains(t, prompt, "Respond in language: de.")
	require.Contains(t, prompt, "[source: manual.txt #3]")
	require.Contains(t, prompt, "widgets spin clockwise")
	require.Contains(t, prompt, "User: hi\nAssistant: hello")
	require.True(t, strings.HasSuffix(prompt, "User: which way do widgets spin?\nAssistant:"))
}

func TestBuildPromptNoContext(t *testing.T) {
	prompt, kept := buildPrompt(promptInput{
		UserMessage: "anything at all?",
	}, 0, 0)

	require.Empty(t, kept)
	require.NotContains(t, prompt, "Context:")
	require.Contains(t, prompt, defaultSystemPrompt)
}

func TestBuildPromptTrimsHistoryOldestFirst(t *testing.T) {
	history := []HistoryTurn{
		{UserMessage: "oldest question here", BotResponse: strings.Repeat("a", 100)},
		{UserMessage: "middle question here", BotResponse: strings.Repeat("b", 100)},
		{UserMessage: "newest question here", BotResponse: strings.Repeat("c", 100)},
	}
	prompt, _ := buildPrompt(promptInput{
		History:     history,
		UserMessage: "next",
	}, 0, 260)

	require.NotContains(t, prompt, "oldest question here")
	require.Contains(t, prompt, "middle question here")
	require.Contains(t, prompt, "newest question here")
}

func TestBuildPromptDropsPassagesLastRankedFirst(t *testing.T) {
	passages := []retrieve.Passage{
		{Filename: "a.txt", Text: "best ranked passage " + strings.Repeat("x", 200), Score: 0.95},
		{Filename: "b.txt", Text: "second ranked passage " + strings.Repeat("y", 200), Score: 0.9},
		{Filename: "c.txt", Text: "worst ranked passage " + strings.Repeat("z", 200), Score: 0.8},
	}
	full, _ := buildPrompt(promptInput{Passages: passages, UserMessage: "q"}, 0, 0)
	budget := len([]rune(full)) - 50

	prompt, kept := buildPrompt(promptInput{Passages: passages, UserMessage: "q"}, budget, 0)
	require.Len(t, kept, 2)
	require.Equal(t, "a.txt", kept[0].Filename)
	require.Equal(t, "b.txt", kept[1].Filename)
	require.Contains(t, prompt, "best ranked passage")
	require.NotContains(t, prompt, "worst ranked passage")
}

func TestBuildPromptBudgetSmallerThanAllPassages(t *testing.T) {
	passages := []retrieve.Passage{
		{Filename: "a.txt", Text: strings.Repeat("x", 500), Score: 0.9},
	}
	prompt, kept := buildPrompt(promptInput{Passages: passages, UserMessage: "q"}, 100, 0)

	require.Empty(t, kept, "all passages dropped means no context used")
	require.Contains(t, prompt, "User: q")
}

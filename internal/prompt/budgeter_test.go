package prompt

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"chatty/internal/config"
	"chatty/internal/persona"
)

func testMessagesConfig() config.MessagesConfig {
	return config.MessagesConfig{
		MaxTokens:       200,
		Prompt:          "You are {NAME}.\n",
		PersonaPrompt:   "Persona: ",
		NewChatPrefix:   "New messages:\n",
		ChatPrefix:      "## ",
		ChatDelimiter:   `"`,
		ResponsePrefix:  "{NAME} says:",
		DatetimePrompt:  "It is {TIME} on {DATE}.\n",
		IncludeDatetime: false,
	}
}

func testPersona() *persona.Persona {
	return &persona.Persona{Name: "Chatty", Directive: "A cheerful streamer."}
}

func newTestBudgeter(t *testing.T, cfg config.MessagesConfig) *Budgeter {
	t.Helper()
	b, err := New(cfg, testPersona(), false, slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func TestBudgeterFailsWhenPreambleExceedsBudget(t *testing.T) {
	cfg := testMessagesConfig()
	cfg.MaxTokens = 10
	cfg.Prompt = strings.Repeat("word ", 50)

	_, err := New(cfg, testPersona(), false, slog.Default())
	if err == nil {
		t.Fatal("expected budget error for oversized preamble")
	}
	if !strings.Contains(err.Error(), "exceeds token budget") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestBudgeterAcceptsWithinBudget(t *testing.T) {
	b := newTestBudgeter(t, testMessagesConfig())

	res := b.Build([]Entry{
		{Author: "alice", Text: "hello there"},
		{Author: "bob", Text: "hi chatty"},
	}, nil)

	if res.Accepted != 2 {
		t.Fatalf("Accepted = %d, want 2", res.Accepted)
	}
	if !strings.Contains(res.Prompt, "## alice\nhello there\"\n") {
		t.Fatalf("prompt missing formatted alice entry:\n%s", res.Prompt)
	}
	aliceIdx := strings.Index(res.Prompt, "alice")
	bobIdx := strings.Index(res.Prompt, "bob")
	if aliceIdx < 0 || bobIdx < 0 || aliceIdx > bobIdx {
		t.Fatalf("messages out of chronological order:\n%s", res.Prompt)
	}
	if !strings.HasSuffix(res.Prompt, "Chatty says:") {
		t.Fatalf("prompt does not end with response prefix:\n%s", res.Prompt)
	}
}

func TestBudgeterStopsAtFirstOversizedMessage(t *testing.T) {
	cfg := testMessagesConfig()
	cfg.MaxTokens = 40
	b := newTestBudgeter(t, cfg)

	big := strings.Repeat("lorem ", 100)
	res := b.Build([]Entry{
		{Author: "alice", Text: "short one"},
		{Author: "bob", Text: big},
		{Author: "carol", Text: "also short"},
	}, nil)

	// Acceptance is a prefix of the batch: carol cannot jump past bob.
	if res.Accepted != 1 {
		t.Fatalf("Accepted = %d, want 1", res.Accepted)
	}
	if strings.Contains(res.Prompt, "carol") {
		t.Fatalf("later message leapfrogged an oversized one:\n%s", res.Prompt)
	}
}

func TestBudgeterHistoryChronologicalAndBounded(t *testing.T) {
	cfg := testMessagesConfig()
	cfg.MaxTokens = 60
	b := newTestBudgeter(t, cfg)

	history := []Entry{
		{Author: "Chatty", Text: "oldest reply " + strings.Repeat("pad ", 40)},
		{Author: "Chatty", Text: "middle reply"},
		{Author: "Chatty", Text: "newest reply"},
	}
	res := b.Build([]Entry{{Author: "alice", Text: "hi"}}, history)

	if res.Accepted != 1 {
		t.Fatalf("Accepted = %d, want 1", res.Accepted)
	}
	// The oversized oldest entry is cut; the kept span reads oldest-first.
	if strings.Contains(res.Prompt, "oldest reply") {
		t.Fatalf("oversized history entry included:\n%s", res.Prompt)
	}
	mid := strings.Index(res.Prompt, "middle reply")
	newest := strings.Index(res.Prompt, "newest reply")
	if mid < 0 || newest < 0 || mid > newest {
		t.Fatalf("history out of chronological order:\n%s", res.Prompt)
	}
	// History precedes the new-chat marker, new messages follow it.
	marker := strings.Index(res.Prompt, "New messages:")
	if marker < 0 || newest > marker || strings.Index(res.Prompt, "alice") < marker {
		t.Fatalf("history/new ordering wrong:\n%s", res.Prompt)
	}
}

func TestBudgeterSkipsEmptyHistoryEntries(t *testing.T) {
	b := newTestBudgeter(t, testMessagesConfig())

	res := b.Build([]Entry{{Author: "alice", Text: "hi"}}, []Entry{{}, {Author: "Chatty", Text: "ok"}})
	if res.Accepted != 1 {
		t.Fatalf("Accepted = %d, want 1", res.Accepted)
	}
	if !strings.Contains(res.Prompt, "ok") {
		t.Fatalf("valid history entry missing:\n%s", res.Prompt)
	}
}

func TestBudgeterRendersDatetime(t *testing.T) {
	cfg := testMessagesConfig()
	cfg.IncludeDatetime = true
	b := newTestBudgeter(t, cfg)
	b.now = func() time.Time {
		return time.Date(2024, time.March, 5, 14, 30, 0, 0, time.UTC)
	}

	res := b.Build([]Entry{{Author: "alice", Text: "hi"}}, nil)
	if !strings.Contains(res.Prompt, "It is 2:30 PM on Tuesday, March 5, 2024.") {
		t.Fatalf("datetime not rendered:\n%s", res.Prompt)
	}
}

func TestBudgeterDeterministic(t *testing.T) {
	b := newTestBudgeter(t, testMessagesConfig())
	in := []Entry{{Author: "a", Text: "one"}, {Author: "b", Text: "two"}}

	first := b.Build(in, nil)
	second := b.Build(in, nil)
	if first.Prompt != second.Prompt || first.Accepted != second.Accepted {
		t.Fatal("identical inputs produced different prompts")
	}
}

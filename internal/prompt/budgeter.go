// Package prompt assembles bounded-size generation prompts from new
// messages and rolling history under an approximate token budget.
package prompt

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chatty/internal/config"
	"chatty/internal/persona"
)

// Entries are counted in whitespace-delimited words; this is the sole cost
// unit, no real tokenizer is involved.
const budgetMargin = 2

// fixedOverhead mirrors the historical margin reserved for the response
// prefix line and sampling artifacts.
const fixedOverhead = 16

// Entry is one line of conversation fed to the budgeter: a chat message,
// a historical response, or a synthetic narrated event.
type Entry struct {
	Author string
	Text   string
}

// Result is the outcome of a build: the assembled prompt and how many of
// the new messages fit within budget. Accepted == 0 means the caller should
// not dequeue anything yet.
type Result struct {
	Prompt   string
	Accepted int
	Tokens   int
}

// Budgeter deterministically builds prompts for one configured persona.
type Budgeter struct {
	logger *slog.Logger

	maxTokens      int
	preambleTokens int

	personaPrompt  string
	chatPrompt     string
	datetimePrompt string
	includeDate    bool
	newChatPrefix  string
	chatPrefix     string
	chatDelimiter  string
	responsePrefix string

	now func() time.Time
}

// New builds a Budgeter from config and persona. It fails when the fixed
// preamble alone exhausts the token budget, so a misconfigured budget
// surfaces at startup rather than at runtime.
func New(cfg config.MessagesConfig, p *persona.Persona, drawingEnabled bool, logger *slog.Logger) (*Budgeter, error) {
	resolve := func(s string) string {
		return strings.ReplaceAll(p.InsertName(s), "{DELIMITER}", cfg.ChatDelimiter)
	}

	drawPrompt := ""
	if drawingEnabled {
		drawPrompt = resolve(cfg.DrawAvailablePrompt)
	}

	b := &Budgeter{
		logger:         logger,
		maxTokens:      cfg.MaxTokens,
		personaPrompt:  cfg.PersonaPrompt + p.Directive + "\n",
		chatPrompt:     resolve(cfg.Prompt) + resolve(cfg.SafetyPrompt) + resolve(cfg.LimitationsPrompt) + drawPrompt + cfg.ChatHistoryPrefix,
		datetimePrompt: resolve(cfg.DatetimePrompt),
		includeDate:    cfg.IncludeDatetime,
		newChatPrefix:  resolve(cfg.NewChatPrefix),
		chatPrefix:     cfg.ChatPrefix,
		chatDelimiter:  cfg.ChatDelimiter,
		responsePrefix: resolve(cfg.ResponsePrefix),
		now:            time.Now,
	}

	b.preambleTokens = fixedOverhead +
		countTokens(b.personaPrompt) +
		countTokens(b.chatPrompt) +
		countTokens(b.datetimePrompt) +
		countTokens(b.newChatPrefix) +
		countTokens(b.responsePrefix)

	if b.budget() <= 0 {
		return nil, &BudgetError{MaxTokens: cfg.MaxTokens, PreambleTokens: b.preambleTokens}
	}
	return b, nil
}

// BudgetError reports a preamble that cannot fit the configured budget.
type BudgetError struct {
	MaxTokens      int
	PreambleTokens int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("prompt preamble exceeds token budget: preamble needs %d of %d max tokens",
		e.PreambleTokens, e.MaxTokens)
}

// PreambleTokens returns the fixed word cost of the preamble.
func (b *Budgeter) PreambleTokens() int { return b.preambleTokens }

func (b *Budgeter) budget() int {
	return b.maxTokens - b.preambleTokens - budgetMargin
}

// Build walks newMessages in chronological order, accepting each message
// that still fits the budget and stopping at the first that does not. It
// then walks historyMessages backwards (most recent first), prepending each
// that still fits. The final prompt restores chronological order: preamble,
// accepted history, accepted new messages, response prefix.
//
// Nil-ish (empty author and text) history entries are skipped, not fatal.
func (b *Budgeter) Build(newMessages, historyMessages []Entry) Result {
	budget := b.budget()

	var lines []string
	tokens := 0
	accepted := 0

	for _, m := range newMessages {
		txt := b.formatEntry(m)
		cost := countTokens(txt)
		if tokens+cost > budget {
			b.logger.Warn("max tokens reached, unable to add enqueued message", "accepted", accepted)
			break
		}
		lines = append(lines, txt)
		tokens += cost
		accepted++
	}

	histAdded := 0
	for i := len(historyMessages) - 1; i >= 0; i-- {
		m := historyMessages[i]
		if m.Author == "" && m.Text == "" {
			b.logger.Warn("skipping empty history entry")
			continue
		}
		txt := b.formatEntry(m)
		cost := countTokens(txt)
		if tokens+cost > budget {
			b.logger.Warn("max tokens reached, unable to add historical message", "added", histAdded)
			break
		}
		// Prepending while walking backwards leaves the history span in
		// chronological order.
		lines = append([]string{txt}, lines...)
		tokens += cost
		histAdded++
	}

	var sb strings.Builder
	if b.includeDate {
		now := b.now()
		dt := strings.ReplaceAll(b.datetimePrompt, "{DATE}", now.Format("Monday, January 2, 2006"))
		dt = strings.ReplaceAll(dt, "{TIME}", now.Format("3:04 PM"))
		sb.WriteString(dt)
	}
	sb.WriteString(b.personaPrompt)
	sb.WriteString(b.chatPrompt)
	for _, l := range lines[:histAdded] {
		sb.WriteString(l)
	}
	sb.WriteString(b.newChatPrefix)
	for _, l := range lines[histAdded:] {
		sb.WriteString(l)
	}
	sb.WriteString("\n")
	sb.WriteString(b.responsePrefix)

	b.logger.Debug("prompt built", "tokens", tokens, "accepted", accepted, "history", histAdded)
	return Result{Prompt: sb.String(), Accepted: accepted, Tokens: tokens + b.preambleTokens}
}

func (b *Budgeter) formatEntry(e Entry) string {
	return b.chatPrefix + e.Author + "\n" + e.Text + b.chatDelimiter + "\n"
}

func countTokens(s string) int {
	return len(strings.Fields(s))
}

// Package sanitize implements inbound moderation and outbound response
// cleanup: wordlist rejection, mention/URL/bracket stripping, and
// turn-delimiter trimming.
package sanitize

import (
	"log/slog"
	"regexp"
	"strings"

	"chatty/internal/config"
)

var (
	mentionRe = regexp.MustCompile(`@\S+`)
	urlRe     = regexp.MustCompile(`(?:https?|ftp)://\S+`)
	bracketRe = regexp.MustCompile(`\[.*?\]`)
	actionRe  = regexp.MustCompile(`\*.*?\*`)
)

// Sanitizer moderates inbound messages and scrubs outbound responses.
// Construction compiles the wordlist once; Sanitizer is read-only after
// that and safe to share.
type Sanitizer struct {
	rejectProfanity bool
	wordlist        []string
	replacement     string
	removeActions   bool
	personaName     string
	chatDelimiter   string
	logger          *slog.Logger
}

// New builds a Sanitizer for the given persona and delimiter.
func New(cfg config.SanitizerConfig, personaName, chatDelimiter string, logger *slog.Logger) *Sanitizer {
	words := make([]string, 0, len(cfg.Wordlist))
	for _, w := range cfg.Wordlist {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words = append(words, w)
		}
	}
	return &Sanitizer{
		rejectProfanity: cfg.RejectProfanity,
		wordlist:        words,
		replacement:     cfg.ProfanityReplacement,
		removeActions:   cfg.RemoveActions,
		personaName:     personaName,
		chatDelimiter:   chatDelimiter,
		logger:          logger,
	}
}

// ShouldReject reports whether a message or response violates the
// configured wordlist policy.
func (s *Sanitizer) ShouldReject(text string) bool {
	if !s.rejectProfanity || len(s.wordlist) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, w := range s.wordlist {
		if strings.Contains(lower, w) {
			s.logger.Debug("wordlist match", "word", w)
			return true
		}
	}
	return false
}

// Replacement returns the fixed text substituted for rejected responses.
func (s *Sanitizer) Replacement() string { return s.replacement }

// Sanitize scrubs a finished response: the persona's own speaker prefix,
// platform mentions, URLs, bracketed asides, and (optionally) *actions*.
func (s *Sanitizer) Sanitize(text string) string {
	text = strings.ReplaceAll(text, s.personaName+":", "")
	text = mentionRe.ReplaceAllString(text, "")
	text = urlRe.ReplaceAllString(text, "")
	text = bracketRe.ReplaceAllString(text, "")
	if s.removeActions {
		text = actionRe.ReplaceAllString(text, "")
	}
	return text
}

// TrimResponse cuts the response at the first chat delimiter so the agent
// never speaks past the end of its own turn, and trims whitespace.
func (s *Sanitizer) TrimResponse(text string) string {
	if s.chatDelimiter != "" {
		if end := strings.Index(text, s.chatDelimiter); end > 0 {
			text = text[:end]
		}
	}
	return strings.TrimSpace(text)
}

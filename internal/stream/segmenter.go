// Package stream segments a live token stream into well-formed text chunks
// at punctuation and enclosure boundaries, so playback and display can start
// before the full response has been generated.
package stream

import (
	"log/slog"
	"strings"
)

// State is the segmenter lifecycle for one generation turn.
type State int

const (
	// Idle means no generation is in progress.
	Idle State = iota
	// Streaming means tokens are being accumulated.
	Streaming
	// Aborted means the turn ended early; late tokens are discarded until
	// the next Reset.
	Aborted
)

// Config tunes the segmenter. ChunkDelimiters are the characters that may
// close a chunk; IllegalTokens abort the turn outright; ChatDelimiter and
// SpeakerPrefix mark the end of the agent's turn in raw model output.
type Config struct {
	ChunkDelimiters []string
	IllegalTokens   []string
	ChatDelimiter   string
	SpeakerPrefix   string
	Logger          *slog.Logger
}

// Segmenter consumes one active generation's token stream and emits chunk
// and token events. It is not safe for concurrent use; each channel
// coordinator owns exactly one and feeds it from a single goroutine.
type Segmenter struct {
	cfg    Config
	logger *slog.Logger

	onChunk func(string)
	onToken func(string)

	tokens     []string
	enclosures []byte
	state      State
}

var enclosurePairs = map[byte]byte{'(': ')', '[': ']', '{': '}'}

// New creates a Segmenter. onChunk receives completed chunks; onToken
// receives every accepted token for live partial display. Either callback
// may be nil.
func New(cfg Config, onChunk, onToken func(string)) *Segmenter {
	lgr := cfg.Logger
	if lgr == nil {
		lgr = slog.Default()
	}
	return &Segmenter{cfg: cfg, logger: lgr, onChunk: onChunk, onToken: onToken}
}

// State returns the current lifecycle state.
func (s *Segmenter) State() State { return s.state }

// Reset prepares the segmenter for a new generation turn.
func (s *Segmenter) Reset() {
	s.clear()
	s.state = Idle
}

// Push processes one streamed token. Tokens received after an abort are
// discarded until Reset.
func (s *Segmenter) Push(token string) {
	if s.state == Aborted {
		return
	}
	s.state = Streaming

	// Illegal content aborts the turn; whatever accumulated before it is
	// emitted, trimmed at the illegal boundary.
	if idx, ok := s.earliestIllegal(token); ok {
		if prefix := strings.TrimRight(token[:idx], " \t"); prefix != "" {
			s.accept(prefix)
		}
		s.logger.Warn("illegal token in stream, aborting turn", "token", token)
		s.emitChunk()
		s.state = Aborted
		return
	}

	// The chat delimiter or a hallucinated speaker prefix ends this
	// agent's turn: accept the prefix before it, then abort.
	if idx, ok := s.earliestTurnEnd(token); ok {
		if prefix := token[:idx]; prefix != "" {
			s.accept(prefix)
		}
		s.emitChunk()
		s.state = Aborted
		return
	}

	exempt := s.followsNumeral()
	s.accept(token)
	closed := s.trackEnclosures(token)

	if len(s.enclosures) > 0 {
		// Never split inside an open enclosure.
		return
	}
	if closed {
		s.emitChunk()
		return
	}
	if exempt {
		// Don't break a numbered-list marker like "1." into its own chunk.
		return
	}

	if di := s.delimiterIndex(token); di >= 0 {
		// A multi-character token can bundle the end of one sentence with
		// the start of the next ("! How"); split there and re-feed the rest.
		if len(token) > 1 && di+1 < len(token) && token[di+1] == ' ' {
			s.tokens[len(s.tokens)-1] = token[:di+1]
			s.emitChunk()
			if rest := token[di+2:]; rest != "" {
				s.state = Streaming
				s.Push(rest)
			}
			return
		}
		s.emitChunk()
	}
}

// End flushes any buffered tokens as a final chunk and returns to Idle.
// An empty buffer emits nothing.
func (s *Segmenter) End() {
	if s.state == Streaming {
		s.emitChunk()
	}
	s.clear()
	s.state = Idle
}

// Abort discards the buffered tokens and marks the stream aborted so late
// in-flight tokens are dropped until the next Reset.
func (s *Segmenter) Abort() {
	s.clear()
	s.state = Aborted
}

func (s *Segmenter) accept(token string) {
	s.tokens = append(s.tokens, token)
	if s.onToken != nil {
		s.onToken(token)
	}
}

func (s *Segmenter) emitChunk() {
	chunk := strings.Join(s.tokens, "")
	s.tokens = s.tokens[:0]
	s.enclosures = s.enclosures[:0]
	if chunk == "" {
		s.logger.Debug("refusing to emit empty chunk")
		return
	}
	if s.onChunk != nil {
		s.onChunk(chunk)
	}
}

func (s *Segmenter) clear() {
	s.tokens = s.tokens[:0]
	s.enclosures = s.enclosures[:0]
}

// followsNumeral reports whether the last buffered token is a standalone
// numeral, which exempts the next token from delimiter splitting.
func (s *Segmenter) followsNumeral() bool {
	if len(s.tokens) == 0 {
		return false
	}
	prev := strings.TrimSpace(s.tokens[len(s.tokens)-1])
	if prev == "" {
		return false
	}
	for i := 0; i < len(prev); i++ {
		if prev[i] < '0' || prev[i] > '9' {
			return false
		}
	}
	return true
}

// trackEnclosures updates the nesting stack with the token's brackets and
// reports whether the token closed the outermost enclosure.
func (s *Segmenter) trackEnclosures(token string) bool {
	closedOutermost := false
	for i := 0; i < len(token); i++ {
		c := token[i]
		if _, ok := enclosurePairs[c]; ok {
			s.enclosures = append(s.enclosures, c)
			continue
		}
		if len(s.enclosures) > 0 && enclosurePairs[s.enclosures[len(s.enclosures)-1]] == c {
			s.enclosures = s.enclosures[:len(s.enclosures)-1]
			if len(s.enclosures) == 0 {
				closedOutermost = true
			}
		}
	}
	return closedOutermost
}

func (s *Segmenter) earliestIllegal(token string) (int, bool) {
	best := -1
	for _, ill := range s.cfg.IllegalTokens {
		if ill == "" {
			continue
		}
		if i := strings.Index(token, ill); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best, best >= 0
}

func (s *Segmenter) earliestTurnEnd(token string) (int, bool) {
	best := -1
	for _, marker := range []string{s.cfg.ChatDelimiter, s.cfg.SpeakerPrefix} {
		if marker == "" {
			continue
		}
		if i := strings.Index(token, marker); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best, best >= 0
}

func (s *Segmenter) delimiterIndex(token string) int {
	best := -1
	for _, d := range s.cfg.ChunkDelimiters {
		if d == "" {
			continue
		}
		if i := strings.Index(token, d); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

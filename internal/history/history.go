// Package history keeps the per-channel log of the agent's own responses
// and narrated side events, keyed by response id.
package history

import (
	"fmt"
)

// ChannelHistory is an append-only response log for one channel. Responses
// and events accumulate under the current response id until the id
// advances, so several side events between generation turns merge into one
// historical slot instead of leaving sparse gaps.
//
// Not safe for concurrent use; owned by a single channel coordinator.
type ChannelHistory struct {
	personaName string
	entries     map[int]string
	lastID      int
}

// New creates an empty history. personaName is used to narrate events in
// the third person.
func New(personaName string) *ChannelHistory {
	return &ChannelHistory{
		personaName: personaName,
		entries:     make(map[int]string),
	}
}

// AddResponse records response text under the current response id,
// concatenating onto any text already there.
func (h *ChannelHistory) AddResponse(text string) {
	if prev, ok := h.entries[h.lastID]; ok && prev != "" {
		h.entries[h.lastID] = prev + " " + text
		return
	}
	h.entries[h.lastID] = text
}

// AddEvent records a narrated third-person event, e.g. "drew an image",
// wrapped so it reads as an action rather than dialogue.
func (h *ChannelHistory) AddEvent(event string) {
	wrapped := fmt.Sprintf("*%s %s*", h.personaName, event)
	if prev, ok := h.entries[h.lastID]; ok && prev != "" {
		h.entries[h.lastID] = prev + "\n" + wrapped + "\n"
		return
	}
	h.entries[h.lastID] = wrapped
}

// Response returns the entry recorded under the given id, if any.
func (h *ChannelHistory) Response(id int) (string, bool) {
	text, ok := h.entries[id]
	return text, ok
}

// Recent returns up to n entries, most recent first. n <= 0 returns all.
func (h *ChannelHistory) Recent(n int) []string {
	if n <= 0 {
		n = len(h.entries)
	}
	out := make([]string, 0, n)
	for id := h.lastID; id >= 0 && len(out) < n; id-- {
		if text, ok := h.entries[id]; ok {
			out = append(out, text)
		}
	}
	return out
}

// LastResponseID returns the current response id.
func (h *ChannelHistory) LastResponseID() int { return h.lastID }

// SetLastResponseID advances the current response id. Negative ids are a
// programmer error and leave the history unchanged.
func (h *ChannelHistory) SetLastResponseID(id int) error {
	if id < 0 {
		return fmt.Errorf("invalid response id %d", id)
	}
	h.lastID = id
	return nil
}

// Prune drops entries below floor, never touching ids at or above it. The
// caller keeps floor at the lowest id still referenced by pending work.
func (h *ChannelHistory) Prune(floor int) {
	for id := range h.entries {
		if id < floor {
			delete(h.entries, id)
		}
	}
}

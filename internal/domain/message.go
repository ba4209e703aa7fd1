package domain

import (
	"strings"
	"time"
)

// AttachmentKind classifies message media.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
)

// Attachment is a piece of media carried by a ChatMessage. Payload and
// Caption are filled asynchronously by the captioning collaborator;
// Processing gates prompt flushes while the caption is still outstanding.
type Attachment struct {
	Kind        AttachmentKind
	SourceURL   string
	ContentHash string
	Payload     []byte
	Caption     string
	Processing  bool
}

// ChatMessage is the unified inbound message record from any surface.
// It is owned by a single channel coordinator and never mutated
// concurrently; DirectReply is set during wake-word detection.
type ChatMessage struct {
	Author      string
	Text        string
	Timestamp   time.Time
	ChannelID   string
	DirectReply bool
	Attachments []Attachment
}

// DisplayText returns the message text with attachment captions folded in,
// e.g. "look at this\n[image:a cat in a hat]".
func (m *ChatMessage) DisplayText() string {
	if len(m.Attachments) == 0 {
		return m.Text
	}
	var sb strings.Builder
	sb.WriteString(m.Text)
	for _, a := range m.Attachments {
		sb.WriteString("\n[")
		sb.WriteString(string(a.Kind))
		sb.WriteString(":")
		sb.WriteString(a.Caption)
		sb.WriteString("]")
	}
	return sb.String()
}

// OutboundKind classifies events fanned out to surfaces.
type OutboundKind string

const (
	OutboundMessage OutboundKind = "message"
	OutboundTyping  OutboundKind = "typing"
	OutboundImage   OutboundKind = "image"
)

// Outbound is an event routed from a channel coordinator to the surfaces.
// Every registered surface sees every event; a surface acts only on events
// whose ChannelID it owns.
type Outbound struct {
	ChannelID string
	Kind      OutboundKind
	Text      string
	Image     []byte
}

// Package chat contains the per-channel conversation coordinators and the
// dispatcher that routes bus traffic to them. A coordinator is an actor: it
// owns all mutable state for one channel and processes every event on a
// single goroutine.
package chat

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"chatty/internal/config"
	"chatty/internal/domain"
	"chatty/internal/draw"
	"chatty/internal/guard"
	"chatty/internal/history"
	"chatty/internal/metrics"
	"chatty/internal/overlay"
	"chatty/internal/prompt"
	"chatty/internal/sanitize"
	"chatty/internal/store"
	"chatty/internal/stream"
	"chatty/internal/voice"
)

// Generator is the coordinator's view of the generation gateway.
type Generator interface {
	Submit(channelID, prompt string) int
	StopGeneration()
}

// Deps are the collaborators shared by all coordinators. DrawManager,
// Speaker, Overlay and Transcript may be nil when the corresponding feature
// is disabled.
type Deps struct {
	Config      config.MessagesConfig
	Voice       config.VoiceConfig
	PersonaName string
	Budgeter    *prompt.Budgeter
	Sanitizer   *sanitize.Sanitizer
	Generator   Generator
	Bus         domain.MessageBus
	DrawManager *draw.Manager
	Speaker     *voice.Speaker
	Overlay     *overlay.Output
	Transcript  *store.SQLiteStore
	Logger      *slog.Logger
}

type inboundEvent struct{ msg domain.ChatMessage }
type tokenEvent struct{ token string }
type responseEvent struct{ full string }
type captionEvent struct {
	msg     *domain.ChatMessage
	idx     int
	caption string
	err     error
}
type drawEvent struct {
	prompt string
	image  []byte
	err    error
}

// Coordinator runs the conversation loop for a single channel: batching
// inbound messages, deciding when to respond, submitting prompts, and
// post-processing responses.
type Coordinator struct {
	channelID string
	deps      Deps
	cfg       config.MessagesConfig
	logger    *slog.Logger

	inbox chan any

	pending []*domain.ChatMessage
	hist    *history.ChannelHistory
	seg     *stream.Segmenter
	guard   guard.RepetitionGuard

	awaiting       bool
	throttled      bool
	lastResponseAt time.Time
	rng            *rand.Rand
}

// NewCoordinator creates a coordinator for one channel. Run must be started
// before events are delivered.
func NewCoordinator(channelID string, deps Deps) *Coordinator {
	c := &Coordinator{
		channelID:      channelID,
		deps:           deps,
		cfg:            deps.Config,
		logger:         deps.Logger.With("channel", channelID),
		inbox:          make(chan any, 64),
		hist:           history.New(deps.PersonaName),
		guard:          guard.New(deps.Config.Repetition.Threshold, deps.Config.Repetition.Lookback),
		lastResponseAt: time.Now(),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	c.seg = stream.New(stream.Config{
		ChunkDelimiters: deps.Config.ChunkDelimiters,
		IllegalTokens:   deps.Config.IllegalTokens,
		ChatDelimiter:   deps.Config.ChatDelimiter,
		SpeakerPrefix:   deps.Config.ChatPrefix,
		Logger:          c.logger,
	}, c.onChunk, nil)
	return c
}

// Deliver posts an inbound message to the coordinator's actor loop.
func (c *Coordinator) Deliver(msg domain.ChatMessage) {
	c.post(inboundEvent{msg: msg})
}

// DeliverToken posts a streamed token.
func (c *Coordinator) DeliverToken(token string) {
	c.post(tokenEvent{token: token})
}

// DeliverResponse posts a completed generation turn.
func (c *Coordinator) DeliverResponse(full string) {
	c.post(responseEvent{full: full})
}

func (c *Coordinator) post(ev any) {
	select {
	case c.inbox <- ev:
	default:
		c.logger.Warn("coordinator inbox full, dropping event")
	}
}

// Run processes events until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	metrics.ActiveChannels.Inc()
	defer metrics.ActiveChannels.Dec()

	ticker := time.NewTicker(c.cfg.ResponseInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.inbox:
			c.handle(ev)
		case <-ticker.C:
			c.flush(false)
		}
	}
}

func (c *Coordinator) handle(ev any) {
	switch e := ev.(type) {
	case inboundEvent:
		c.receiveMessage(e.msg)
	case tokenEvent:
		c.receiveToken(e.token)
	case responseEvent:
		c.receiveResponse(e.full)
	case captionEvent:
		c.applyCaption(e)
	case drawEvent:
		c.applyDrawing(e)
	}
}

// receiveMessage moderates, tags and enqueues one inbound message.
func (c *Coordinator) receiveMessage(msg domain.ChatMessage) {
	metrics.MessagesTotal.Inc()

	if c.deps.Sanitizer.ShouldReject(msg.Text) {
		metrics.MessagesRejected.Inc()
		c.logger.Debug("message rejected by moderation", "author", msg.Author)
		return
	}

	msg.DirectReply = c.isDirectReply(msg.Text)

	if c.deps.Transcript != nil {
		if err := c.deps.Transcript.RecordInbound(context.Background(), msg.ChannelID, msg.Author, msg.Text); err != nil {
			c.logger.Warn("transcript write failed", "err", err)
		}
	}

	m := &msg
	c.startCaptioning(m)

	c.pending = append(c.pending, m)
	if c.cfg.ChatMaxBatchSize > 0 && len(c.pending) > c.cfg.ChatMaxBatchSize {
		dropped := len(c.pending) - c.cfg.ChatMaxBatchSize
		c.pending = c.pending[dropped:]
		c.logger.Debug("batch overflow, dropped oldest messages", "dropped", dropped)
	}

	if msg.DirectReply {
		c.flush(true)
	}
}

func (c *Coordinator) isDirectReply(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, strings.ToLower(c.deps.PersonaName)) {
		return true
	}
	for _, w := range c.cfg.WakeWords {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// startCaptioning kicks off async caption requests for image attachments.
// The message stays ineligible for flushing until every caption lands.
func (c *Coordinator) startCaptioning(msg *domain.ChatMessage) {
	if c.deps.DrawManager == nil || !c.deps.DrawManager.CaptionsEnabled() {
		return
	}
	for i := range msg.Attachments {
		att := &msg.Attachments[i]
		if att.Kind != domain.AttachmentImage || len(att.Payload) == 0 {
			continue
		}
		att.Processing = true
		idx := i
		payload := att.Payload
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			caption, err := c.deps.DrawManager.Caption(ctx, payload)
			c.post(captionEvent{msg: msg, idx: idx, caption: caption, err: err})
		}()
	}
}

func (c *Coordinator) applyCaption(e captionEvent) {
	if e.idx >= len(e.msg.Attachments) {
		return
	}
	att := &e.msg.Attachments[e.idx]
	att.Processing = false
	if e.err != nil {
		c.logger.Warn("attachment captioning failed", "err", e.err)
		return
	}
	att.Caption = e.caption
}

// flush builds and submits a prompt from the pending batch if the channel
// is eligible to respond. forced bypasses the selective-response roll.
func (c *Coordinator) flush(forced bool) {
	if c.awaiting || len(c.pending) == 0 {
		return
	}
	if c.deps.Speaker != nil && c.deps.Voice.BlockWhileSpeaking && c.deps.Speaker.Busy() {
		return
	}

	c.dropExpired()
	if len(c.pending) == 0 {
		return
	}
	for _, m := range c.pending {
		for _, a := range m.Attachments {
			if a.Processing {
				return
			}
		}
		if m.DirectReply {
			forced = true
		}
	}
	// Without a wake word the batch stays queued for a later direct reply to
	// pick up; it must not be consumed here.
	if c.cfg.RequireWakeWord && !forced {
		return
	}

	respond := forced || !c.cfg.SelectiveResponse || c.rng.Float64() < c.responseChance()

	entries := make([]prompt.Entry, len(c.pending))
	for i, m := range c.pending {
		entries[i] = prompt.Entry{Author: m.Author, Text: m.DisplayText()}
	}

	var histEntries []prompt.Entry
	if c.cfg.IncludeResponsesInHistory && !c.throttled {
		recent := c.hist.Recent(c.cfg.ChatHistoryLength)
		// Recent is most-recent-first; the budgeter expects chronological.
		for i := len(recent) - 1; i >= 0; i-- {
			histEntries = append(histEntries, prompt.Entry{Author: c.deps.PersonaName, Text: recent[i]})
		}
	}
	if c.cfg.Repetition.ThrottleScope == "next-turn" {
		c.throttled = false
	}

	result := c.deps.Budgeter.Build(entries, histEntries)
	if result.Accepted == 0 {
		c.logger.Warn("no pending message fits the token budget, dropping oldest")
		c.pending = c.pending[1:]
		return
	}
	// The accepted span is dequeued now, regardless of how the turn ends;
	// a failed or declined turn costs the batch rather than replaying it.
	c.pending = c.pending[result.Accepted:]

	if err := c.hist.SetLastResponseID(c.hist.LastResponseID() + 1); err != nil {
		c.logger.Error("response id advance failed", "err", err)
	}

	if !respond {
		c.logger.Debug("selective response declined the batch", "batch", result.Accepted)
		return
	}

	c.seg.Reset()
	c.awaiting = true
	c.deps.Bus.SendOutbound(domain.Outbound{ChannelID: c.channelID, Kind: domain.OutboundTyping})
	depth := c.deps.Generator.Submit(c.channelID, result.Prompt)
	c.logger.Debug("prompt submitted", "tokens", result.Tokens, "batch", result.Accepted, "depth", depth)
}

// dropExpired removes pending messages older than the response-expire
// window. An expired batch never generates a response.
func (c *Coordinator) dropExpired() {
	expire := c.cfg.ResponseExpire()
	if expire <= 0 {
		return
	}
	kept := c.pending[:0]
	for _, m := range c.pending {
		if time.Since(m.Timestamp) <= expire {
			kept = append(kept, m)
		}
	}
	if dropped := len(c.pending) - len(kept); dropped > 0 {
		c.logger.Debug("expired pending messages", "dropped", dropped)
	}
	c.pending = kept
}

// responseChance ramps from base-chance to max-chance as silence since the
// last response grows, saturating after chance-ramp-up.
func (c *Coordinator) responseChance() float64 {
	base, max := c.cfg.BaseChance, c.cfg.MaxChance
	ramp := c.cfg.ChanceRampUp()
	if ramp <= 0 {
		return base
	}
	frac := float64(time.Since(c.lastResponseAt)) / float64(ramp)
	if frac > 1 {
		frac = 1
	}
	return base + frac*(max-base)
}

func (c *Coordinator) receiveToken(token string) {
	if !c.awaiting {
		return
	}
	before := c.seg.State()
	c.seg.Push(token)
	if c.seg.State() == stream.Aborted && before != stream.Aborted {
		// The stream crossed a turn boundary or produced illegal content;
		// anything further is wasted backend work.
		c.deps.Generator.StopGeneration()
	}
}

// onChunk handles a completed well-formed chunk from the segmenter. Chunks
// feed live playback; the chat response is sent once the turn completes.
func (c *Coordinator) onChunk(chunk string) {
	if c.deps.Speaker != nil && c.deps.Voice.StreamSpeech {
		c.deps.Speaker.Speak(strings.TrimSpace(chunk))
	}
}

// receiveResponse post-processes a completed generation turn: trim,
// sanitize, guard against repetition, commit to history, fan out.
func (c *Coordinator) receiveResponse(full string) {
	if !c.awaiting {
		return
	}
	c.awaiting = false
	c.seg.End()

	text := c.deps.Sanitizer.TrimResponse(full)
	text = strings.TrimSpace(c.deps.Sanitizer.Sanitize(text))
	if text == "" {
		c.logger.Debug("empty response, nothing to emit")
		return
	}

	if c.deps.Sanitizer.ShouldReject(text) {
		metrics.ResponsesBlocked.Inc()
		c.logger.Info("response rejected by moderation")
		text = c.deps.Sanitizer.Replacement()
		if text == "" {
			return
		}
	} else if c.guard.IsRepetitive(text, c.hist.Recent(c.cfg.Repetition.Lookback)) {
		metrics.ResponsesBlocked.Inc()
		c.logger.Info("response blocked as repetitive")
		if c.cfg.Repetition.ThrottleScope != "off" {
			c.throttled = true
		}
		text = c.cfg.Repetition.Fallback
		if text == "" {
			return
		}
	} else if c.cfg.Repetition.ThrottleScope == "persistent" {
		c.throttled = false
	}

	c.hist.AddResponse(text)
	if c.cfg.PruneThreshold > 0 {
		c.hist.Prune(c.hist.LastResponseID() - c.cfg.PruneThreshold)
	}
	c.lastResponseAt = time.Now()

	c.emit(text)
	if c.deps.Speaker != nil && !c.deps.Voice.StreamSpeech {
		c.deps.Speaker.Speak(text)
	}
	c.maybeDraw(text)
}

func (c *Coordinator) emit(text string) {
	metrics.ResponsesTotal.Inc()
	c.deps.Bus.SendOutbound(domain.Outbound{
		ChannelID: c.channelID,
		Kind:      domain.OutboundMessage,
		Text:      text,
	})
	if c.deps.Overlay != nil {
		c.deps.Overlay.WriteResponse(text)
	}
	if c.deps.Transcript != nil {
		if err := c.deps.Transcript.RecordOutbound(context.Background(), c.channelID, c.deps.PersonaName, text); err != nil {
			c.logger.Warn("transcript write failed", "err", err)
		}
	}
}

// maybeDraw checks the response for drawing intent and starts a render.
func (c *Coordinator) maybeDraw(text string) {
	if c.deps.DrawManager == nil {
		return
	}
	p, ok := c.deps.DrawManager.ExtractPrompt(text)
	if !ok {
		return
	}
	c.deps.DrawManager.Request(p, func(image []byte, err error) {
		c.post(drawEvent{prompt: p, image: image, err: err})
	})
}

func (c *Coordinator) applyDrawing(e drawEvent) {
	if e.err != nil || len(e.image) == 0 {
		return
	}
	c.hist.AddEvent("drew an image")
	if c.deps.Overlay != nil {
		c.deps.Overlay.WritePrompt(e.prompt)
	}
	c.deps.Bus.SendOutbound(domain.Outbound{
		ChannelID: c.channelID,
		Kind:      domain.OutboundImage,
		Image:     e.image,
		Text:      e.prompt,
	})
}

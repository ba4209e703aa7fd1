package bus

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"chatty/internal/domain"
)

func TestPublishSubscribe(t *testing.T) {
	b := New(10, slog.Default())
	defer b.Close()

	b.Publish(domain.ChatMessage{Author: "alice", Text: "hi", ChannelID: "twitch:chan"})

	select {
	case msg := <-b.Subscribe():
		if msg.Author != "alice" || msg.ChannelID != "twitch:chan" {
			t.Fatalf("got %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestOutboundBroadcastsToAllSurfaces(t *testing.T) {
	b := New(10, slog.Default())
	defer b.Close()

	var mu sync.Mutex
	seen := map[string]int{}
	for _, name := range []string{"twitch", "discord"} {
		name := name
		b.OnOutbound(name, func(out domain.Outbound) {
			mu.Lock()
			seen[name]++
			mu.Unlock()
		})
	}

	b.SendOutbound(domain.Outbound{ChannelID: "twitch:chan", Kind: domain.OutboundMessage, Text: "hi"})

	mu.Lock()
	defer mu.Unlock()
	if seen["twitch"] != 1 || seen["discord"] != 1 {
		t.Fatalf("broadcast counts = %v, want every surface to see the event", seen)
	}
}

func TestPublishAfterCloseDoesNotPanic(t *testing.T) {
	b := New(1, slog.Default())
	b.Close()
	b.Publish(domain.ChatMessage{Author: "late"})
	b.Close()
}

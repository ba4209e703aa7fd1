package history

import (
	"reflect"
	"strings"
	"testing"
)

func TestAddResponseConcatenatesUnderCurrentID(t *testing.T) {
	h := New("Chatty")
	h.AddResponse("first part")
	h.AddResponse("second part")

	got, ok := h.Response(0)
	if !ok || got != "first part second part" {
		t.Fatalf("Response(0) = %q, %v", got, ok)
	}
}

func TestAddEventNarratesInThirdPerson(t *testing.T) {
	h := New("Chatty")
	h.AddEvent("drew an image")

	got, _ := h.Response(0)
	if got != "*Chatty drew an image*" {
		t.Fatalf("event entry = %q", got)
	}

	h.AddResponse("and said hi")
	h.SetLastResponseID(1)
	h.AddEvent("sneezed")
	got, _ = h.Response(1)
	if !strings.Contains(got, "*Chatty sneezed*") {
		t.Fatalf("second slot = %q", got)
	}
}

func TestEventsMergeIntoCurrentSlot(t *testing.T) {
	h := New("Chatty")
	h.AddResponse("hello chat")
	h.AddEvent("drew an image")

	got, _ := h.Response(0)
	if !strings.HasPrefix(got, "hello chat") || !strings.Contains(got, "*Chatty drew an image*") {
		t.Fatalf("merged slot = %q", got)
	}
}

func TestRecentMostRecentFirst(t *testing.T) {
	h := New("Chatty")
	for i, text := range []string{"zero", "one", "two"} {
		h.SetLastResponseID(i)
		h.AddResponse(text)
	}

	got := h.Recent(2)
	want := []string{"two", "one"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Recent(2) = %q, want %q", got, want)
	}

	all := h.Recent(0)
	if len(all) != 3 {
		t.Fatalf("Recent(0) returned %d entries, want 3", len(all))
	}
}

func TestSetLastResponseIDRejectsNegative(t *testing.T) {
	h := New("Chatty")
	h.SetLastResponseID(4)
	if err := h.SetLastResponseID(-1); err == nil {
		t.Fatal("negative id accepted")
	}
	if h.LastResponseID() != 4 {
		t.Fatalf("id changed after rejected set: %d", h.LastResponseID())
	}
}

func TestPruneKeepsFloorAndAbove(t *testing.T) {
	h := New("Chatty")
	for i := 0; i < 5; i++ {
		h.SetLastResponseID(i)
		h.AddResponse("entry")
	}

	h.Prune(3)
	for i := 0; i < 3; i++ {
		if _, ok := h.Response(i); ok {
			t.Fatalf("entry %d survived prune", i)
		}
	}
	for i := 3; i < 5; i++ {
		if _, ok := h.Response(i); !ok {
			t.Fatalf("entry %d pruned, should be kept", i)
		}
	}
}

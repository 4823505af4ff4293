package moderation

import (
	"testing"
	"time"
)

func TestRecentMessagesPrunesExpiredEntries(t *testing.T) {
	t.Parallel()

	window, err := NewRecentMessages(16)
	if err != nil {
		t.Fatalf("new window: %v", err)
	}
	now := time.Now().UnixMilli()
	window.nowMs = func() int64 { return now }

	window.Observe(Message{SenderID: 1, ChatID: -1, Text: "old", SentAtMs: now - 2*windowSpan.Milliseconds()})
	window.Observe(Message{SenderID: 1, ChatID: -1, Text: "fresh", SentAtMs: now - time.Second.Milliseconds()})

	snapshot := window.Snapshot(-1, 1)
	if len(snapshot) != 1 || snapshot[0].Text != "fresh" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	// Advance past the window: everything ages out.
	window.nowMs = func() int64 { return now + 2*windowSpan.Milliseconds() }
	if snapshot := window.Snapshot(-1, 1); len(snapshot) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snapshot)
	}
}

func TestRecentMessagesBoundsSenders(t *testing.T) {
	t.Parallel()

	window, err := NewRecentMessages(2)
	if err != nil {
		t.Fatalf("new window: %v", err)
	}
	now := time.Now().UnixMilli()
	window.nowMs = func() int64 { return now }

	for _, sender := range []int64{1, 2, 3} {
		window.Observe(Message{SenderID: sender, ChatID: -1, Text: "hi", SentAtMs: now})
	}

	if snapshot := window.Snapshot(-1, 1); len(snapshot) != 0 {
		t.Fatalf("expected oldest sender evicted, got %+v", snapshot)
	}
	if snapshot := window.Snapshot(-1, 3); len(snapshot) != 1 {
		t.Fatalf("expected newest sender kept, got %+v", snapshot)
	}
}

func TestRecentMessagesIsolatesSenders(t *testing.T) {
	t.Parallel()

	window, err := NewRecentMessages(16)
	if err != nil {
		t.Fatalf("new window: %v", err)
	}
	now := time.Now().UnixMilli()
	window.nowMs = func() int64 { return now }

	window.Observe(Message{SenderID: 1, ChatID: -1, Text: "one", SentAtMs: now})
	window.Observe(Message{SenderID: 1, ChatID: -2, Text: "other chat", SentAtMs: now})

	if snapshot := window.Snapshot(-1, 1); len(snapshot) != 1 || snapshot[0].Text != "one" {
		t.Fatalf("windows must be keyed per chat and sender, got %+v", snapshot)
	}
}

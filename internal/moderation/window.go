package moderation

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Message is the transient view of an inbound chat message used by the
// spam heuristics. Nothing here is persisted.
type Message struct {
	SenderID int64
	ChatID   int64
	Text     string
	SentAtMs int64
}

// windowSpan bounds how far back the per-sender message window reaches.
const windowSpan = 60 * time.Second

type senderKey struct {
	chatID int64
	userID int64
}

// RecentMessages keeps a bounded, per-sender sliding window of recent
// messages. Senders are evicted LRU-style, entries older than windowSpan
// are pruned on every access. State is process-local and resets on
// restart.
type RecentMessages struct {
	mu    sync.Mutex
	cache *lru.Cache[senderKey, []Message]
	nowMs func() int64
}

func NewRecentMessages(maxSenders int) (*RecentMessages, error) {
	cache, err := lru.New[senderKey, []Message](maxSenders)
	if err != nil {
		return nil, err
	}
	return &RecentMessages{
		cache: cache,
		nowMs: func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Observe records a message in its sender's window, pruning expired
// entries first.
func (w *RecentMessages) Observe(msg Message) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := senderKey{chatID: msg.ChatID, userID: msg.SenderID}
	window, _ := w.cache.Get(key)
	window = pruneWindow(window, w.nowMs())
	window = append(window, msg)
	w.cache.Add(key, window)
}

// Snapshot returns a copy of the sender's live window.
func (w *RecentMessages) Snapshot(chatID, userID int64) []Message {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := senderKey{chatID: chatID, userID: userID}
	window, ok := w.cache.Get(key)
	if !ok {
		return nil
	}
	window = pruneWindow(window, w.nowMs())
	w.cache.Add(key, window)

	snapshot := make([]Message, len(window))
	copy(snapshot, window)
	return snapshot
}

func pruneWindow(window []Message, nowMs int64) []Message {
	cutoff := nowMs - windowSpan.Milliseconds()
	kept := window[:0]
	for _, msg := range window {
		if msg.SentAtMs > cutoff {
			kept = append(kept, msg)
		}
	}
	return kept
}

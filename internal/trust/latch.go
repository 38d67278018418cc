package trust

import (
	"sync"
	"sync/atomic"
)

// Latch records, per conversation, whether untrusted content has ever been
// seen. The flag is monotonic: once a conversation is marked untrusted it
// stays untrusted until an operator clears it — trust does not heal. Safe
// for concurrent tool calls racing within the same conversation.
type Latch struct {
	conversations sync.Map // map[string]*atomic.Bool
}

// NewLatch creates an empty latch.
func NewLatch() *Latch {
	return &Latch{}
}

// MarkUntrusted latches the conversation as untrusted.
func (l *Latch) MarkUntrusted(conversationID string) {
	if conversationID == "" {
		return
	}
	v, _ := l.conversations.LoadOrStore(conversationID, &atomic.Bool{})
	v.(*atomic.Bool).Store(true)
}

// IsUntrusted reports whether the conversation has ever been marked
// untrusted.
func (l *Latch) IsUntrusted(conversationID string) bool {
	if conversationID == "" {
		return false
	}
	v, ok := l.conversations.Load(conversationID)
	return ok && v.(*atomic.Bool).Load()
}

// Clear removes the latch for a conversation. Explicit operator action only.
func (l *Latch) Clear(conversationID string) {
	l.conversations.Delete(conversationID)
}

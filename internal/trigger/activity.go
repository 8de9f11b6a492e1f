package trigger

import (
	"sync"
	"time"
)

// ActivityWindow tracks the assistant's last reply time per chat. It only
// extends the "actively conversing" eligibility window; it is overwritten on
// every assistant reply. Safe for concurrent use.
type ActivityWindow struct {
	mu        sync.Mutex
	lastReply map[string]time.Time
}

// NewActivityWindow creates an empty ActivityWindow.
func NewActivityWindow() *ActivityWindow {
	return &ActivityWindow{lastReply: make(map[string]time.Time)}
}

// MarkReply records that the assistant replied in the chat at t.
func (a *ActivityWindow) MarkReply(chatID string, t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastReply[chatID] = t
}

// LastReply returns the assistant's last reply time for the chat, or the
// zero time when it has never replied.
func (a *ActivityWindow) LastReply(chatID string) time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastReply[chatID]
}

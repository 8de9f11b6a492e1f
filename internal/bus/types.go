// Package bus defines the message types exchanged between the webhook
// gateway and the dispatch engine, plus inbound deduplication.
package bus

import (
	"strings"
	"time"
)

// ContentKind is the resolved shape of an inbound message's content union.
// The webhook payload nests the text differently per message type; the
// gateway resolves it once at ingestion so downstream code never re-inspects
// the raw payload.
type ContentKind string

const (
	KindConversation ContentKind = "conversation"
	KindExtendedText ContentKind = "extended_text"
	KindOther        ContentKind = "other"
)

// InboundMessage represents one chat event received from the messaging
// provider. Immutable once built by the gateway.
type InboundMessage struct {
	ID         string      // provider message ID, dedup key
	ChatID     string      // remote JID (direct or group)
	SenderName string      // display name ("pushName")
	SenderID   string      // sender JID ("participant" in groups, ChatID in DMs)
	FromMe     bool        // authored by the assistant's own account
	Kind       ContentKind // resolved content union tag
	Text       string      // extracted text, empty when Kind is KindOther
	Mentions   []string    // explicitly @mentioned JIDs, if any
	Timestamp  time.Time   // arrival time
}

// IsGroup reports whether the message belongs to a group conversation.
// WhatsApp groups have chat IDs ending in "@g.us".
func (m InboundMessage) IsGroup() bool {
	return strings.HasSuffix(m.ChatID, "@g.us")
}

// OutboundMessage is one segment to deliver back to a conversation.
type OutboundMessage struct {
	ChatID   string
	Text     string
	Mentions []string // JIDs to tag, used for mediation callouts
}

// Status is the terminal outcome of processing one inbound event.
type Status string

const (
	StatusIgnoredSelf      Status = "ignored_self"
	StatusDuplicate        Status = "duplicate"
	StatusIgnoredNoText    Status = "ignored_no_text"
	StatusIgnoredNoTrigger Status = "ignored_no_trigger"
	StatusBlockedSafety    Status = "blocked_safety"
	StatusOK               Status = "ok"
)

// Package trigger decides whether the assistant should respond to a group
// message at all. Direct chats bypass gating entirely; group chats respond
// only to an explicit command, a trigger keyword, an @mention, or a message
// arriving inside the active-conversation window after the assistant's last
// reply.
package trigger

import (
	"strings"
	"time"
)

// Reason records which condition authorized a response, for logging only —
// evaluation order never changes the boolean outcome.
type Reason string

const (
	ReasonDirect       Reason = "direct_chat"
	ReasonCommand      Reason = "admin_command"
	ReasonKeyword      Reason = "keyword"
	ReasonMention      Reason = "mention"
	ReasonActiveWindow Reason = "active_window"
	ReasonNone         Reason = "none"
)

// defaultKeywords are the lexical triggers: assistant name variants plus the
// generic help/bot/therapist/AI words, matched case-insensitively as
// substrings.
var defaultKeywords = []string{
	"nósdois", "nosdois", "nós dois",
	"ajuda", "bot", "terapeuta", "inteligência",
}

// resetCommands clear the conversation memory. They are handled as a
// side-channel command and always authorize a response.
var resetCommands = map[string]bool{
	"/reset":  true,
	"/limpar": true,
}

// IsResetCommand reports whether text is an exact reset directive
// (trimmed, lowercased).
func IsResetCommand(text string) bool {
	return resetCommands[strings.ToLower(strings.TrimSpace(text))]
}

// Evaluator applies the group-gating rules.
type Evaluator struct {
	keywords []string
	window   time.Duration // active-conversation window after an assistant reply
}

// NewEvaluator creates an Evaluator with the default keyword set and the
// given active window.
func NewEvaluator(window time.Duration) *Evaluator {
	return &Evaluator{keywords: defaultKeywords, window: window}
}

// Evaluate returns whether the assistant should respond and which trigger
// fired. lastReply is the zero time when the assistant has never replied in
// this chat.
func (e *Evaluator) Evaluate(text string, isGroup bool, mentions []string, lastReply, now time.Time) (bool, Reason) {
	// Direct chats always respond — gating applies to groups only.
	if !isGroup {
		return true, ReasonDirect
	}

	if IsResetCommand(text) {
		return true, ReasonCommand
	}

	lower := strings.ToLower(text)
	for _, kw := range e.keywords {
		if strings.Contains(lower, kw) {
			return true, ReasonKeyword
		}
	}

	if len(mentions) > 0 {
		return true, ReasonMention
	}

	if !lastReply.IsZero() && now.Sub(lastReply) < e.window {
		return true, ReasonActiveWindow
	}

	return false, ReasonNone
}

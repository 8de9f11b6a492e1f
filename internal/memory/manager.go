// Package memory keeps a bounded, in-memory record of recent conversation
// turns per chat. Sessions are capped at a fixed number of turns and reaped
// lazily after an idle TTL — there is no background sweeper.
package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one recorded utterance in a conversation.
type Turn struct {
	Role      Role
	Speaker   string
	Text      string
	Timestamp time.Time
}

type session struct {
	turns     []Turn // FIFO, at most capacity entries
	updatedAt time.Time
}

// Manager handles session lifecycle and lookup. Safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
	capacity int
	ttl      time.Duration

	now func() time.Time // injectable for tests
}

// NewManager creates a Manager holding at most capacity turns per chat,
// expiring sessions idle longer than ttl.
func NewManager(capacity int, ttl time.Duration) *Manager {
	if capacity <= 0 {
		capacity = 20
	}
	return &Manager{
		sessions: make(map[string]*session),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// AddTurn appends a turn to the chat's session, evicting the oldest turn
// when the capacity is exceeded. Idle sessions for other chats are reaped
// opportunistically before the insert.
func (m *Manager) AddTurn(chatID string, role Role, speaker, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	s, ok := m.sessions[chatID]
	if !ok {
		s = &session{turns: make([]Turn, 0, m.capacity)}
		m.sessions[chatID] = s
	}

	if len(s.turns) >= m.capacity {
		s.turns = s.turns[1:]
	}
	s.turns = append(s.turns, Turn{Role: role, Speaker: speaker, Text: text, Timestamp: now})
	s.updatedAt = now
}

// Recent returns the chat's turns oldest-to-newest, or nil if no session
// exists. The returned slice is a copy.
func (m *Manager) Recent(chatID string) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep(m.now())

	s, ok := m.sessions[chatID]
	if !ok {
		return nil
	}
	turns := make([]Turn, len(s.turns))
	copy(turns, s.turns)
	return turns
}

// Formatted renders the chat's history as the block fed to the generator.
// Empty string when there is no history.
func (m *Manager) Formatted(chatID string) string {
	turns := m.Recent(chatID)
	if len(turns) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("--- Histórico Recente ---\n")
	for _, t := range turns {
		fmt.Fprintf(&b, "[%s]: %s\n", t.Speaker, t.Text)
	}
	b.WriteString("-------------------------")
	return b.String()
}

// Clear deletes the chat's session outright (explicit reset command).
func (m *Manager) Clear(chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, chatID)
}

// sweep removes sessions idle past the TTL. Caller holds the lock.
func (m *Manager) sweep(now time.Time) {
	for id, s := range m.sessions {
		if now.Sub(s.updatedAt) > m.ttl {
			delete(m.sessions, id)
		}
	}
}

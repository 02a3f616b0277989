package chat

import (
	"fmt"
	"sync"
	"time"
)

// Status is the per-recipient delivery state of a message.
type Status string

const (
	StatusSent     Status = "SENT"
	StatusReceived Status = "RECEIVED"
	StatusRead     Status = "READ"
)

// ParseStatus validates a delivery status string read from storage.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusSent, StatusReceived, StatusRead:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: unknown delivery status %q", ErrCorruptState, s)
	}
}

// DeletedContent replaces the content of a deleted message. The message and
// its delivery history stay addressable by id.
const DeletedContent = "DELETED"

// Message is a single room entry. Sender and timestamp are immutable;
// content changes only through Edit and Delete. The delivery map is seeded
// once at send time from the room's participant snapshot and afterwards only
// ever moves RECEIVED → READ.
type Message struct {
	id     int64
	sender *User
	sentAt time.Time

	mu       sync.RWMutex
	content  string
	delivery map[string]Status
}

// NewMessage creates a message without delivery entries; callers seed them
// with the participant snapshot taken at send time.
func NewMessage(id int64, sender *User, content string, sentAt time.Time) *Message {
	return &Message{
		id:       id,
		sender:   sender,
		sentAt:   sentAt,
		content:  content,
		delivery: make(map[string]Status),
	}
}

// RestoreMessage rebuilds a message and its delivery map from storage.
func RestoreMessage(id int64, sender *User, content string, sentAt time.Time, delivery map[string]Status) *Message {
	m := NewMessage(id, sender, content, sentAt)
	for name, st := range delivery {
		m.delivery[name] = st
	}
	return m
}

func (m *Message) ID() int64         { return m.id }
func (m *Message) Sender() *User     { return m.sender }
func (m *Message) SentAt() time.Time { return m.sentAt }

func (m *Message) Content() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.content
}

// Seed assigns the initial delivery states: SENT for the sender, RECEIVED
// for every other recipient present at send time. Users joining the room
// later never get an entry.
func (m *Message) Seed(recipients []*User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range recipients {
		if u.Username == m.sender.Username {
			m.delivery[u.Username] = StatusSent
		} else {
			m.delivery[u.Username] = StatusReceived
		}
	}
}

// Status returns the delivery state for a user. ok is false when the user
// had no entry at send time.
func (m *Message) Status(username string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.delivery[username]
	return st, ok
}

// MarkRead transitions RECEIVED → READ for the given user and reports
// whether anything changed. READ stays READ, SENT never transitions, and a
// missing entry is left missing.
func (m *Message) MarkRead(username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delivery[username] != StatusReceived {
		return false
	}
	m.delivery[username] = StatusRead
	return true
}

// Edit replaces the content in place. Delivery state is untouched: a message
// already read stays read.
func (m *Message) Edit(content string) {
	m.mu.Lock()
	m.content = content
	m.mu.Unlock()
}

// Delete replaces the content with the deletion marker, preserving the
// delivery history.
func (m *Message) Delete() {
	m.Edit(DeletedContent)
}

// Deleted reports whether the message content was replaced by Delete.
func (m *Message) Deleted() bool {
	return m.Content() == DeletedContent
}

// Delivery returns a copy of the full delivery map.
func (m *Message) Delivery() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Status, len(m.delivery))
	for name, st := range m.delivery {
		out[name] = st
	}
	return out
}

func (m *Message) String() string {
	return "[" + m.sentAt.Format(time.RFC3339) + "] " + m.sender.Username + ": " + m.Content()
}

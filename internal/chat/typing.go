package chat

import (
	"sort"
	"sync"
)

// TypingTracker keeps the transient set of users currently typing per room.
// Purely in-memory; nothing here is persisted.
type TypingTracker struct {
	mu     sync.Mutex
	byRoom map[int64]map[string]struct{}
}

// NewTypingTracker creates an empty tracker.
func NewTypingTracker() *TypingTracker {
	return &TypingTracker{byRoom: make(map[int64]map[string]struct{})}
}

// Start records a user as typing in a room. Idempotent.
func (t *TypingTracker) Start(roomID int64, username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.byRoom[roomID]
	if !ok {
		set = make(map[string]struct{})
		t.byRoom[roomID] = set
	}
	set[username] = struct{}{}
}

// Stop clears a user's typing state in a room. Idempotent.
func (t *TypingTracker) Stop(roomID int64, username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if set, ok := t.byRoom[roomID]; ok {
		delete(set, username)
		if len(set) == 0 {
			delete(t.byRoom, roomID)
		}
	}
}

// Typing returns a sorted snapshot of users typing in a room.
func (t *TypingTracker) Typing(roomID int64) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.byRoom[roomID]
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

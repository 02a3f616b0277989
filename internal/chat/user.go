package chat

import (
	"fmt"
	"sync"
)

// Presence is a user's current availability.
type Presence string

const (
	PresenceOnline  Presence = "ONLINE"
	PresenceOffline Presence = "OFFLINE"
)

// ParsePresence validates a presence string read from storage.
func ParsePresence(s string) (Presence, error) {
	switch Presence(s) {
	case PresenceOnline, PresenceOffline:
		return Presence(s), nil
	default:
		return "", fmt.Errorf("%w: unknown presence %q", ErrCorruptState, s)
	}
}

// User is a registered account. The username is the identity key and never
// changes; presence flips on login/logout. Rooms and messages hold references
// to the same User value, so a presence change is visible everywhere.
type User struct {
	Username string

	mu       sync.Mutex
	presence Presence
}

// NewUser creates a user in the given presence state.
func NewUser(username string, presence Presence) *User {
	return &User{Username: username, presence: presence}
}

// Presence returns the user's current presence.
func (u *User) Presence() Presence {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.presence
}

// SetPresence updates the user's presence.
func (u *User) SetPresence(p Presence) {
	u.mu.Lock()
	u.presence = p
	u.mu.Unlock()
}

func (u *User) String() string {
	return u.Username + " (" + string(u.Presence()) + ")"
}

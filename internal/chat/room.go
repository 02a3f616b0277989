package chat

import (
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
)

// RoomType discriminates the two room variants.
type RoomType string

const (
	RoomTypeGroup   RoomType = "GROUP"
	RoomTypePrivate RoomType = "PRIVATE"
)

// ParseRoomType validates a room type string read from storage.
func ParseRoomType(s string) (RoomType, error) {
	switch RoomType(s) {
	case RoomTypeGroup, RoomTypePrivate:
		return RoomType(s), nil
	default:
		return "", fmt.Errorf("%w: unknown room type %q", ErrCorruptState, s)
	}
}

// Room is a conversation holding a participant set and an ordered message
// log. Each room is an independently lockable unit: one mutator at a time,
// readers concurrent with each other.
type Room interface {
	ID() int64
	Name() string
	Type() RoomType

	// Participants returns a snapshot sorted by username.
	Participants() []*User
	IsParticipant(username string) bool
	EmptySlots() int

	// AddParticipant and RemoveParticipant enforce the variant's membership
	// rules. Private rooms reject every membership change.
	AddParticipant(u *User) error
	RemoveParticipant(username string) error

	// Messages returns a snapshot of the log in send order.
	Messages() []*Message
	AppendMessage(m *Message)

	// Search yields messages whose content contains keyword
	// case-insensitively, in room order. The sequence is restartable and
	// never mutates the room.
	Search(keyword string) iter.Seq[*Message]
}

// room carries the state shared by both variants.
type room struct {
	id int64

	mu           sync.RWMutex
	name         string
	participants map[string]*User
	messages     []*Message
}

func newRoom(id int64, name string) room {
	return room{
		id:           id,
		name:         name,
		participants: make(map[string]*User),
	}
}

func (r *room) ID() int64 { return r.id }

func (r *room) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

// Rename replaces the room name. Name policy is the caller's job.
func (r *room) Rename(name string) {
	r.mu.Lock()
	r.name = name
	r.mu.Unlock()
}

func (r *room) Participants() []*User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*User, 0, len(r.participants))
	for _, u := range r.participants {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (r *room) IsParticipant(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.participants[username]
	return ok
}

func (r *room) Messages() []*Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Message, len(r.messages))
	copy(out, r.messages)
	return out
}

func (r *room) AppendMessage(m *Message) {
	r.mu.Lock()
	r.messages = append(r.messages, m)
	r.mu.Unlock()
}

func (r *room) Search(keyword string) iter.Seq[*Message] {
	snapshot := r.Messages()
	needle := strings.ToLower(keyword)
	return func(yield func(*Message) bool) {
		for _, m := range snapshot {
			if !strings.Contains(strings.ToLower(m.Content()), needle) {
				continue
			}
			if !yield(m) {
				return
			}
		}
	}
}

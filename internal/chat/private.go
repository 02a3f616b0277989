package chat

import "fmt"

// PrivateRoom is a two-party conversation. Its participant pair is fixed at
// construction and every later membership change is rejected.
type PrivateRoom struct {
	room
}

// NewPrivateRoom creates a private chat between two distinct users.
func NewPrivateRoom(id int64, a, b *User) (*PrivateRoom, error) {
	if a.Username == b.Username {
		return nil, fmt.Errorf("%w: private chat needs two distinct users", ErrInvalidArgument)
	}
	p := &PrivateRoom{room: newRoom(id, "DM: "+a.Username+"-"+b.Username)}
	p.participants[a.Username] = a
	p.participants[b.Username] = b
	return p, nil
}

// RestorePrivate rebuilds a private chat from stored participants.
func RestorePrivate(id int64, name string, a, b *User) (*PrivateRoom, error) {
	if a.Username == b.Username {
		return nil, fmt.Errorf("%w: private room %d has duplicate participants", ErrCorruptState, id)
	}
	p := &PrivateRoom{room: newRoom(id, name)}
	p.participants[a.Username] = a
	p.participants[b.Username] = b
	return p, nil
}

func (p *PrivateRoom) Type() RoomType { return RoomTypePrivate }

// EmptySlots is always zero: capacity is fixed at two, filled at creation.
func (p *PrivateRoom) EmptySlots() int { return 0 }

// AddParticipant always fails; a private chat never grows.
func (p *PrivateRoom) AddParticipant(*User) error {
	return ErrRoomFull
}

// RemoveParticipant always fails; a private chat never shrinks.
func (p *PrivateRoom) RemoveParticipant(string) error {
	return fmt.Errorf("%w: private chats do not support membership changes", ErrInvalidArgument)
}

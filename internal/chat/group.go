package chat

import "fmt"

// Role is a privilege level inside a group room, totally ordered
// OWNER > ADMIN > MEMBER.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

var roleRank = map[Role]int{RoleMember: 0, RoleAdmin: 1, RoleOwner: 2}

// AtLeast reports whether r grants at least the privileges of other.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

// ParseRole validates a role string read from storage.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleOwner, RoleAdmin, RoleMember:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrCorruptState, s)
	}
}

// GroupCapacity is the fixed participant limit of every group room.
const GroupCapacity = 50

// GroupRoom is a room with a role hierarchy. The owner is a dedicated
// immutable field rather than a role-map entry, so exactly-one-OWNER holds
// structurally: the roles map only ever contains ADMIN and MEMBER entries
// for non-owner participants.
type GroupRoom struct {
	room
	owner string
	roles map[string]Role
}

// NewGroupRoom creates a group with the creator as sole participant and
// permanent owner.
func NewGroupRoom(id int64, name string, creator *User) *GroupRoom {
	g := &GroupRoom{
		room:  newRoom(id, name),
		owner: creator.Username,
		roles: make(map[string]Role),
	}
	g.participants[creator.Username] = creator
	return g
}

// RestoreGroup rebuilds a group from stored participants and roles. Exactly
// one participant must carry the OWNER role; anything else is corrupt.
func RestoreGroup(id int64, name string, members map[*User]Role) (*GroupRoom, error) {
	g := &GroupRoom{
		room:  newRoom(id, name),
		roles: make(map[string]Role),
	}
	for u, role := range members {
		g.participants[u.Username] = u
		if role == RoleOwner {
			if g.owner != "" {
				return nil, fmt.Errorf("%w: group %d has multiple owners", ErrCorruptState, id)
			}
			g.owner = u.Username
			continue
		}
		g.roles[u.Username] = role
	}
	if g.owner == "" {
		return nil, fmt.Errorf("%w: group %d has no owner", ErrCorruptState, id)
	}
	if len(g.participants) > GroupCapacity {
		return nil, fmt.Errorf("%w: group %d exceeds capacity", ErrCorruptState, id)
	}
	return g, nil
}

func (g *GroupRoom) Type() RoomType { return RoomTypeGroup }

// Owner returns the username of the group's permanent owner.
func (g *GroupRoom) Owner() string { return g.owner }

func (g *GroupRoom) EmptySlots() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return GroupCapacity - len(g.participants)
}

// AddParticipant admits a user as MEMBER. Authorization is the permission
// engine's job; this only enforces capacity and uniqueness.
func (g *GroupRoom) AddParticipant(u *User) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.participants[u.Username]; ok {
		return fmt.Errorf("%s: %w", u.Username, ErrAlreadyExists)
	}
	if len(g.participants) >= GroupCapacity {
		return ErrRoomFull
	}
	g.participants[u.Username] = u
	g.roles[u.Username] = RoleMember
	return nil
}

// RemoveParticipant drops a user from the participant set and the role map.
// The owner can never be removed.
func (g *GroupRoom) RemoveParticipant(username string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if username == g.owner {
		return ErrCannotRemoveOwner
	}
	if _, ok := g.participants[username]; !ok {
		return ErrTargetNotParticipant
	}
	delete(g.participants, username)
	delete(g.roles, username)
	return nil
}

// Role returns a participant's role, deriving OWNER from the owner field.
func (g *GroupRoom) Role(username string) (Role, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if username == g.owner {
		return RoleOwner, true
	}
	r, ok := g.roles[username]
	return r, ok
}

// SetRole assigns ADMIN or MEMBER to a non-owner participant. OWNER is not
// assignable, and the owner's role cannot be changed.
func (g *GroupRoom) SetRole(username string, role Role) error {
	if role == RoleOwner {
		return fmt.Errorf("%w: role OWNER is fixed at creation", ErrInvalidArgument)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if username == g.owner {
		return fmt.Errorf("%w: the owner's role cannot change", ErrInvalidArgument)
	}
	if _, ok := g.participants[username]; !ok {
		return ErrTargetNotParticipant
	}
	g.roles[username] = role
	return nil
}

// Roles returns the full username → role roster, owner included.
func (g *GroupRoom) Roles() map[string]Role {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]Role, len(g.roles)+1)
	out[g.owner] = RoleOwner
	for name, role := range g.roles {
		out[name] = role
	}
	return out
}

// Package rooms holds the room model and the group permission engine.
package rooms

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/termchat/termchat-server/internal/chat"
	"github.com/termchat/termchat-server/internal/service/users"
	"github.com/termchat/termchat-server/internal/store"
)

// NameScope controls how far group-name uniqueness reaches.
type NameScope string

const (
	// NameScopeMember rejects a duplicate name only when the creator already
	// belongs to a group of that name.
	NameScopeMember NameScope = "member"
	// NameScopeGlobal requires group names to be unique across all groups.
	NameScopeGlobal NameScope = "global"
)

// ParseNameScope validates a configured scope value.
func ParseNameScope(s string) (NameScope, error) {
	switch NameScope(strings.ToLower(s)) {
	case NameScopeMember, NameScopeGlobal:
		return NameScope(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("%w: unknown group_name_scope %q", chat.ErrInvalidArgument, s)
	}
}

// Service owns the live room set and enforces the role hierarchy on every
// group mutation. Per-room locking lives inside the rooms themselves; the
// service mutex only guards the room index.
type Service struct {
	store store.RoomStore
	users *users.Service
	scope NameScope
	log   *zerolog.Logger

	mu    sync.RWMutex
	rooms map[int64]chat.Room
}

// New creates the service and restores rooms, participants, and roles from
// the store. Unknown role or type strings abort the restore with
// chat.ErrCorruptState.
func New(ctx context.Context, st store.RoomStore, userSvc *users.Service, scope NameScope, logger *zerolog.Logger) (*Service, error) {
	s := &Service{
		store: st,
		users: userSvc,
		scope: scope,
		log:   logger,
		rooms: make(map[int64]chat.Room),
	}

	ids, err := st.ListRoomIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore rooms: %w", err)
	}
	for _, id := range ids {
		rec, err := st.FindRoomByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("restore room %d: %w", id, err)
		}
		room, err := s.rebuild(rec)
		if err != nil {
			return nil, err
		}
		s.rooms[id] = room
	}
	if len(ids) > 0 {
		logger.Info().Int("count", len(ids)).Msg("restored rooms from store")
	}
	return s, nil
}

func (s *Service) rebuild(rec *store.RoomRecord) (chat.Room, error) {
	switch rec.Type {
	case chat.RoomTypeGroup:
		members := make(map[*chat.User]chat.Role, len(rec.Participants))
		for _, p := range rec.Participants {
			u, err := s.users.Get(p.Username)
			if err != nil {
				return nil, fmt.Errorf("%w: room %d references unknown user %s", chat.ErrCorruptState, rec.ID, p.Username)
			}
			members[u] = p.Role
		}
		return chat.RestoreGroup(rec.ID, rec.Name, members)
	case chat.RoomTypePrivate:
		if len(rec.Participants) != 2 {
			return nil, fmt.Errorf("%w: private room %d has %d participants", chat.ErrCorruptState, rec.ID, len(rec.Participants))
		}
		a, err := s.users.Get(rec.Participants[0].Username)
		if err != nil {
			return nil, fmt.Errorf("%w: room %d references unknown user %s", chat.ErrCorruptState, rec.ID, rec.Participants[0].Username)
		}
		b, err := s.users.Get(rec.Participants[1].Username)
		if err != nil {
			return nil, fmt.Errorf("%w: room %d references unknown user %s", chat.ErrCorruptState, rec.ID, rec.Participants[1].Username)
		}
		return chat.RestorePrivate(rec.ID, rec.Name, a, b)
	default:
		return nil, fmt.Errorf("%w: room %d has unknown type %q", chat.ErrCorruptState, rec.ID, rec.Type)
	}
}

// Get returns a live room by id.
func (s *Service) Get(id int64) (chat.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room %d: %w", id, chat.ErrNotFound)
	}
	return room, nil
}

// Group returns a live group room by id; private rooms are rejected.
func (s *Service) Group(id int64) (*chat.GroupRoom, error) {
	room, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	g, ok := room.(*chat.GroupRoom)
	if !ok {
		return nil, fmt.Errorf("%w: room %d is not a group", chat.ErrInvalidArgument, id)
	}
	return g, nil
}

// CreateGroup allocates a group with the creator as permanent owner.
// Duplicate names are rejected within the configured scope.
func (s *Service) CreateGroup(ctx context.Context, name, creator string) (*chat.GroupRoom, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty group name", chat.ErrInvalidArgument)
	}

	u, err := s.users.Get(creator)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkName(name, creator); err != nil {
		return nil, err
	}

	id, err := s.store.CreateRoom(ctx, name, chat.RoomTypeGroup, chat.GroupCapacity)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddParticipant(ctx, id, creator, chat.RoleOwner); err != nil {
		return nil, err
	}

	g := chat.NewGroupRoom(id, name, u)
	s.rooms[id] = g
	s.log.Info().Int64("room_id", id).Str("name", name).Str("owner", creator).Msg("group created")
	return g, nil
}

// checkName enforces the duplicate-name policy. Caller holds s.mu.
func (s *Service) checkName(name, creator string) error {
	for _, room := range s.rooms {
		g, ok := room.(*chat.GroupRoom)
		if !ok || g.Name() != name {
			continue
		}
		if s.scope == NameScopeGlobal || g.IsParticipant(creator) {
			return fmt.Errorf("group %s: %w", name, chat.ErrAlreadyExists)
		}
	}
	return nil
}

// CreatePrivate allocates a two-party chat between distinct users.
func (s *Service) CreatePrivate(ctx context.Context, userA, userB string) (*chat.PrivateRoom, error) {
	a, err := s.users.Get(userA)
	if err != nil {
		return nil, err
	}
	b, err := s.users.Get(userB)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the pair before allocating a row.
	if userA == userB {
		return nil, fmt.Errorf("%w: private chat needs two distinct users", chat.ErrInvalidArgument)
	}

	id, err := s.store.CreateRoom(ctx, "DM: "+userA+"-"+userB, chat.RoomTypePrivate, 2)
	if err != nil {
		return nil, err
	}
	p, err := chat.NewPrivateRoom(id, a, b)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddParticipant(ctx, id, userA, chat.RoleMember); err != nil {
		return nil, err
	}
	if err := s.store.AddParticipant(ctx, id, userB, chat.RoleMember); err != nil {
		return nil, err
	}

	s.rooms[id] = p
	s.log.Info().Int64("room_id", id).Str("user_a", userA).Str("user_b", userB).Msg("private chat created")
	return p, nil
}

// AddMember admits target into a group. The actor must hold ADMIN or OWNER.
func (s *Service) AddMember(ctx context.Context, roomID int64, actor, target string) error {
	g, err := s.Group(roomID)
	if err != nil {
		return err
	}
	if err := s.requireRole(g, actor, chat.RoleAdmin); err != nil {
		return err
	}

	u, err := s.users.Get(target)
	if err != nil {
		return err
	}

	// Validate before the write-through: a membership row must never exist
	// for an admission the room would reject.
	if g.IsParticipant(target) {
		return fmt.Errorf("%s: %w", target, chat.ErrAlreadyExists)
	}
	if g.EmptySlots() == 0 {
		return chat.ErrRoomFull
	}
	if err := s.store.AddParticipant(ctx, roomID, target, chat.RoleMember); err != nil {
		return err
	}
	if err := g.AddParticipant(u); err != nil {
		return err
	}
	s.log.Info().Int64("room_id", roomID).Str("actor", actor).Str("target", target).Msg("member added")
	return nil
}

// Kick removes target from a group. The actor must hold ADMIN or OWNER, and
// the owner can never be kicked, whatever the actor's role.
func (s *Service) Kick(ctx context.Context, roomID int64, actor, target string) error {
	g, err := s.Group(roomID)
	if err != nil {
		return err
	}
	if err := s.requireRole(g, actor, chat.RoleAdmin); err != nil {
		return err
	}

	role, ok := g.Role(target)
	if !ok {
		return fmt.Errorf("%s: %w", target, chat.ErrTargetNotParticipant)
	}
	if role == chat.RoleOwner {
		return chat.ErrCannotRemoveOwner
	}
	if err := s.store.RemoveParticipant(ctx, roomID, target); err != nil {
		return err
	}
	if err := g.RemoveParticipant(target); err != nil {
		return err
	}
	s.log.Info().Int64("room_id", roomID).Str("actor", actor).Str("target", target).Msg("member kicked")
	return nil
}

// Promote raises target to ADMIN. Only the owner may promote; promoting an
// existing admin is a no-op.
func (s *Service) Promote(ctx context.Context, roomID int64, actor, target string) error {
	return s.setRole(ctx, roomID, actor, target, chat.RoleAdmin)
}

// Demote lowers target to MEMBER. Only the owner may demote, and the
// owner's own role is untouchable.
func (s *Service) Demote(ctx context.Context, roomID int64, actor, target string) error {
	return s.setRole(ctx, roomID, actor, target, chat.RoleMember)
}

func (s *Service) setRole(ctx context.Context, roomID int64, actor, target string, role chat.Role) error {
	g, err := s.Group(roomID)
	if err != nil {
		return err
	}
	if err := s.requireRole(g, actor, chat.RoleOwner); err != nil {
		return err
	}

	current, ok := g.Role(target)
	if !ok {
		return fmt.Errorf("%s: %w", target, chat.ErrTargetNotParticipant)
	}
	if current == role {
		return nil
	}
	if current == chat.RoleOwner {
		return fmt.Errorf("%w: the owner's role cannot change", chat.ErrInvalidArgument)
	}
	if err := s.store.UpdateParticipantRole(ctx, roomID, target, role); err != nil {
		return err
	}
	if err := g.SetRole(target, role); err != nil {
		return err
	}
	s.log.Info().Int64("room_id", roomID).Str("actor", actor).Str("target", target).Str("role", string(role)).Msg("role changed")
	return nil
}

// Rename replaces a group's name. Only the owner may rename; the new name
// passes the same duplicate policy as creation.
func (s *Service) Rename(ctx context.Context, roomID int64, actor, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty group name", chat.ErrInvalidArgument)
	}

	g, err := s.Group(roomID)
	if err != nil {
		return err
	}
	if err := s.requireRole(g, actor, chat.RoleOwner); err != nil {
		return err
	}
	if g.Name() == name {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkName(name, actor); err != nil {
		return err
	}
	if err := s.store.UpdateRoomName(ctx, roomID, name); err != nil {
		return err
	}
	g.Rename(name)
	s.log.Info().Int64("room_id", roomID).Str("actor", actor).Str("name", name).Msg("group renamed")
	return nil
}

// DeleteGroup removes a group from the live set and the store, messages
// included. Only the owner may delete. The removed group is returned so the
// caller can retire any state indexed on its messages.
func (s *Service) DeleteGroup(ctx context.Context, roomID int64, actor string) (*chat.GroupRoom, error) {
	g, err := s.Group(roomID)
	if err != nil {
		return nil, err
	}
	if err := s.requireRole(g, actor, chat.RoleOwner); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteRoom(ctx, roomID); err != nil {
		return nil, err
	}
	delete(s.rooms, roomID)
	s.log.Info().Int64("room_id", roomID).Str("actor", actor).Msg("group deleted")
	return g, nil
}

// requireRole denies actors below min. Actors outside the room are denied
// the same way: they hold no role at all.
func (s *Service) requireRole(g *chat.GroupRoom, actor string, min chat.Role) error {
	role, ok := g.Role(actor)
	if !ok || !role.AtLeast(min) {
		return fmt.Errorf("%s: %w", actor, chat.ErrUnauthorized)
	}
	return nil
}

// Roles returns the full roster of a group. Deliberately ungated: the
// roster is public to any caller.
func (s *Service) Roles(roomID int64) (map[string]chat.Role, error) {
	g, err := s.Group(roomID)
	if err != nil {
		return nil, err
	}
	return g.Roles(), nil
}

// EmptySlots returns the remaining capacity of a room.
func (s *Service) EmptySlots(roomID int64) (int, error) {
	room, err := s.Get(roomID)
	if err != nil {
		return 0, err
	}
	return room.EmptySlots(), nil
}

// RoomsWithMember lists the rooms a user belongs to.
func (s *Service) RoomsWithMember(ctx context.Context, username string) ([]store.RoomSummary, error) {
	return s.store.RoomsWithMember(ctx, username)
}

// List returns every live room in id order.
func (s *Service) List() []chat.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

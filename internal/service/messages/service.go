// Package messages implements message creation and the per-recipient
// delivery/read state machine.
package messages

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/termchat/termchat-server/internal/chat"
	"github.com/termchat/termchat-server/internal/service/rooms"
	"github.com/termchat/termchat-server/internal/service/users"
	"github.com/termchat/termchat-server/internal/store"
)

// StatusEntry pairs a message with the asking user's delivery state.
type StatusEntry struct {
	Message *chat.Message
	Status  chat.Status
}

// Service appends messages to rooms, seeds and advances delivery state, and
// answers the derived read/unread queries. Messages live inside their rooms;
// the service only keeps an id index for EDIT/DELETE lookups.
type Service struct {
	store store.MessageStore
	rooms *rooms.Service
	users *users.Service
	log   *zerolog.Logger
	now   func() time.Time

	mu   sync.RWMutex
	byID map[int64]*chat.Message
}

// New creates the tracker and restores each live room's message log from
// the store.
func New(ctx context.Context, st store.MessageStore, roomSvc *rooms.Service, userSvc *users.Service, logger *zerolog.Logger) (*Service, error) {
	s := &Service{
		store: st,
		rooms: roomSvc,
		users: userSvc,
		log:   logger,
		now:   time.Now,
		byID:  make(map[int64]*chat.Message),
	}

	for _, room := range roomSvc.List() {
		recs, err := st.ListMessagesByRoom(ctx, room.ID())
		if err != nil {
			return nil, fmt.Errorf("restore messages for room %d: %w", room.ID(), err)
		}
		for _, rec := range recs {
			sender, err := userSvc.Get(rec.Sender)
			if err != nil {
				return nil, fmt.Errorf("%w: message %d has unknown sender %s", chat.ErrCorruptState, rec.ID, rec.Sender)
			}
			m := chat.RestoreMessage(rec.ID, sender, rec.Content, rec.SentAt, rec.Delivery)
			room.AppendMessage(m)
			s.byID[rec.ID] = m
		}
	}
	return s, nil
}

// Send appends a message to a room. The sender must be a participant; the
// delivery map is seeded from the participant snapshot taken now, so users
// joining later never get an entry.
func (s *Service) Send(ctx context.Context, roomID int64, sender, content string) (*chat.Message, error) {
	room, err := s.rooms.Get(roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsParticipant(sender) {
		return nil, fmt.Errorf("%s: %w", sender, chat.ErrNotAParticipant)
	}
	senderUser, err := s.users.Get(sender)
	if err != nil {
		return nil, err
	}

	sentAt := s.now()
	id, err := s.store.CreateMessage(ctx, roomID, sender, content, sentAt)
	if err != nil {
		return nil, err
	}

	m := chat.NewMessage(id, senderUser, content, sentAt)
	m.Seed(room.Participants())
	if err := s.store.SeedDeliveryStatuses(ctx, id, m.Delivery()); err != nil {
		return nil, err
	}
	room.AppendMessage(m)

	s.mu.Lock()
	s.byID[id] = m
	s.mu.Unlock()

	s.log.Debug().Int64("room_id", roomID).Int64("message_id", id).Str("sender", sender).Msg("message sent")
	return m, nil
}

// ReadAll marks every RECEIVED message in the room as READ for the user.
// Re-reading is a no-op and READ never goes back. Returns how many messages
// actually transitioned.
func (s *Service) ReadAll(ctx context.Context, roomID int64, username string) (int, error) {
	room, err := s.rooms.Get(roomID)
	if err != nil {
		return 0, err
	}
	if !room.IsParticipant(username) {
		return 0, fmt.Errorf("%s: %w", username, chat.ErrNotAParticipant)
	}

	read := 0
	for _, m := range room.Messages() {
		if !m.MarkRead(username) {
			continue
		}
		if err := s.store.SetDeliveryStatus(ctx, m.ID(), username, chat.StatusRead); err != nil {
			return read, err
		}
		read++
	}
	return read, nil
}

// Unread returns the user's messages still in RECEIVED state, in room order.
func (s *Service) Unread(roomID int64, username string) ([]*chat.Message, error) {
	room, err := s.rooms.Get(roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsParticipant(username) {
		return nil, fmt.Errorf("%s: %w", username, chat.ErrNotAParticipant)
	}

	var out []*chat.Message
	for _, m := range room.Messages() {
		if st, ok := m.Status(username); ok && st == chat.StatusReceived {
			out = append(out, m)
		}
	}
	return out, nil
}

// UnreadCount counts the user's messages still in RECEIVED state.
func (s *Service) UnreadCount(roomID int64, username string) (int, error) {
	unread, err := s.Unread(roomID, username)
	if err != nil {
		return 0, err
	}
	return len(unread), nil
}

// StatusReport lists (message, status) pairs for messages where the user
// has a delivery entry, in room order.
func (s *Service) StatusReport(roomID int64, username string) ([]StatusEntry, error) {
	room, err := s.rooms.Get(roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsParticipant(username) {
		return nil, fmt.Errorf("%s: %w", username, chat.ErrNotAParticipant)
	}

	var out []StatusEntry
	for _, m := range room.Messages() {
		if st, ok := m.Status(username); ok {
			out = append(out, StatusEntry{Message: m, Status: st})
		}
	}
	return out, nil
}

// Edit replaces a message's content in place. Delivery state is untouched.
func (s *Service) Edit(ctx context.Context, messageID int64, content string) error {
	m, err := s.get(messageID)
	if err != nil {
		return err
	}
	if err := s.store.UpdateMessageContent(ctx, messageID, content); err != nil {
		return err
	}
	m.Edit(content)
	return nil
}

// Delete replaces a message's content with the deletion marker. The message
// and its delivery history stay addressable by id.
func (s *Service) Delete(ctx context.Context, messageID int64) error {
	m, err := s.get(messageID)
	if err != nil {
		return err
	}
	if err := s.store.UpdateMessageContent(ctx, messageID, chat.DeletedContent); err != nil {
		return err
	}
	m.Delete()
	s.log.Info().Int64("message_id", messageID).Msg("message deleted")
	return nil
}

// DropRoom retires the id index entries of a room's messages after the room
// itself is gone. The store rows are deleted with the room.
func (s *Service) DropRoom(room chat.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range room.Messages() {
		delete(s.byID, m.ID())
	}
}

func (s *Service) get(messageID int64) (*chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[messageID]
	if !ok {
		return nil, fmt.Errorf("message %d: %w", messageID, chat.ErrNotFound)
	}
	return m, nil
}

// Search yields the room's messages containing keyword, case-insensitively,
// in room order.
func (s *Service) Search(roomID int64, keyword string) (iter.Seq[*chat.Message], error) {
	room, err := s.rooms.Get(roomID)
	if err != nil {
		return nil, err
	}
	return room.Search(keyword), nil
}

// History returns up to limit most recent messages of a room, oldest first.
// limit <= 0 returns everything.
func (s *Service) History(roomID int64, limit int) ([]*chat.Message, error) {
	room, err := s.rooms.Get(roomID)
	if err != nil {
		return nil, err
	}
	msgs := room.Messages()
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

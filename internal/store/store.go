package store

import (
	"context"
	"time"

	"github.com/termchat/termchat-server/internal/chat"
)

// Participant is one membership row of a room.
type Participant struct {
	Username string
	Role     chat.Role
}

// RoomRecord is a stored room with its membership rows.
type RoomRecord struct {
	ID           int64
	Name         string
	Type         chat.RoomType
	Capacity     int
	Participants []Participant
	CreatedAt    time.Time
}

// RoomSummary identifies a room in member listings.
type RoomSummary struct {
	ID   int64
	Name string
}

// MessageRecord is a stored message with its delivery rows.
type MessageRecord struct {
	ID       int64
	RoomID   int64
	Sender   string
	Content  string
	SentAt   time.Time
	Delivery map[string]chat.Status
}

// SessionRecord is a stored user session. LogoutAt is nil while active.
type SessionRecord struct {
	ID        int64
	Username  string
	Token     string
	IPAddress string
	LoginAt   time.Time
	LogoutAt  *time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser inserts a new user row.
	CreateUser(ctx context.Context, username string, presence chat.Presence) error

	// UpdateUserPresence updates the stored presence of a user.
	UpdateUserPresence(ctx context.Context, username string, presence chat.Presence) error

	// FindUserByUsername retrieves one user, or chat.ErrNotFound.
	FindUserByUsername(ctx context.Context, username string) (*chat.User, error)

	// ListUsers returns all users ordered by username.
	ListUsers(ctx context.Context) ([]*chat.User, error)
}

// RoomStore handles room and membership persistence.
type RoomStore interface {
	// CreateRoom inserts a room row and returns its assigned id.
	CreateRoom(ctx context.Context, name string, typ chat.RoomType, capacity int) (int64, error)

	// FindRoomByID retrieves a room with its membership rows, or chat.ErrNotFound.
	FindRoomByID(ctx context.Context, id int64) (*RoomRecord, error)

	// ListRoomIDs returns all room ids in creation order.
	ListRoomIDs(ctx context.Context) ([]int64, error)

	// RoomsWithMember lists the rooms a user belongs to.
	RoomsWithMember(ctx context.Context, username string) ([]RoomSummary, error)

	// AddParticipant inserts a membership row.
	AddParticipant(ctx context.Context, roomID int64, username string, role chat.Role) error

	// RemoveParticipant deletes a membership row.
	RemoveParticipant(ctx context.Context, roomID int64, username string) error

	// UpdateParticipantRole rewrites the role on a membership row.
	UpdateParticipantRole(ctx context.Context, roomID int64, username string, role chat.Role) error

	// UpdateRoomName renames a room.
	UpdateRoomName(ctx context.Context, roomID int64, name string) error

	// DeleteRoom removes a room together with its membership, message, and
	// delivery rows.
	DeleteRoom(ctx context.Context, roomID int64) error
}

// MessageStore handles message and delivery-status persistence.
type MessageStore interface {
	// CreateMessage inserts a message row and returns its assigned id.
	CreateMessage(ctx context.Context, roomID int64, sender, content string, sentAt time.Time) (int64, error)

	// FindMessageByID retrieves one message with its delivery rows, or chat.ErrNotFound.
	FindMessageByID(ctx context.Context, id int64) (*MessageRecord, error)

	// ListMessagesByRoom returns a room's messages in send order, delivery
	// rows included.
	ListMessagesByRoom(ctx context.Context, roomID int64) ([]*MessageRecord, error)

	// UpdateMessageContent rewrites a message body.
	UpdateMessageContent(ctx context.Context, id int64, content string) error

	// SetDeliveryStatus rewrites one recipient's delivery row.
	SetDeliveryStatus(ctx context.Context, id int64, username string, status chat.Status) error

	// SeedDeliveryStatuses inserts the initial delivery rows of a message.
	SeedDeliveryStatuses(ctx context.Context, id int64, statuses map[string]chat.Status) error
}

// SessionStore handles session persistence.
type SessionStore interface {
	// CreateSession inserts an active session row and returns its assigned id.
	CreateSession(ctx context.Context, s *SessionRecord) (int64, error)

	// ListActiveSessions returns the active session per username.
	ListActiveSessions(ctx context.Context) (map[string]*SessionRecord, error)

	// ListInactiveSessions returns closed sessions per username, oldest first.
	ListInactiveSessions(ctx context.Context) (map[string][]*SessionRecord, error)

	// EndActiveSession stamps the logout time on a user's active session.
	EndActiveSession(ctx context.Context, username string, logoutAt time.Time) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore
	SessionStore

	// Close closes the underlying database connection.
	Close() error
}

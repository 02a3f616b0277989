package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/termchat/termchat-server/internal/chat"
	"github.com/termchat/termchat-server/internal/store"
)

// schema is applied on every open; all statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	presence TEXT NOT NULL DEFAULT 'OFFLINE'
);

CREATE TABLE IF NOT EXISTS chatrooms (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	type       TEXT NOT NULL,
	capacity   INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chat_participants (
	room_id  INTEGER NOT NULL REFERENCES chatrooms(id),
	username TEXT NOT NULL REFERENCES users(username),
	role     TEXT NOT NULL,
	PRIMARY KEY (room_id, username)
);

CREATE TABLE IF NOT EXISTS messages (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id INTEGER NOT NULL REFERENCES chatrooms(id),
	sender  TEXT NOT NULL,
	content TEXT NOT NULL,
	sent_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS message_delivery_status (
	message_id INTEGER NOT NULL REFERENCES messages(id),
	username   TEXT NOT NULL,
	status     TEXT NOT NULL,
	PRIMARY KEY (message_id, username)
);

CREATE TABLE IF NOT EXISTS user_sessions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	username   TEXT NOT NULL REFERENCES users(username),
	token      TEXT NOT NULL,
	ip_address TEXT NOT NULL,
	login_at   DATETIME NOT NULL,
	logout_at  DATETIME
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a reduced schema or seed rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser inserts a new user row.
func (s *SQLiteStore) CreateUser(ctx context.Context, username string, presence chat.Presence) error {
	query := `INSERT INTO users (username, presence) VALUES (?, ?)`
	if _, err := s.db.ExecContext(ctx, query, username, string(presence)); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UpdateUserPresence updates the stored presence of a user.
func (s *SQLiteStore) UpdateUserPresence(ctx context.Context, username string, presence chat.Presence) error {
	query := `UPDATE users SET presence = ? WHERE username = ?`
	res, err := s.db.ExecContext(ctx, query, string(presence), username)
	if err != nil {
		return fmt.Errorf("update user presence: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %s: %w", username, chat.ErrNotFound)
	}
	return nil
}

// FindUserByUsername retrieves a user by username.
func (s *SQLiteStore) FindUserByUsername(ctx context.Context, username string) (*chat.User, error) {
	query := `SELECT username, presence FROM users WHERE username = ?`

	var name, presence string
	err := s.db.QueryRowContext(ctx, query, username).Scan(&name, &presence)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", username, chat.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	p, err := chat.ParsePresence(presence)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", username, err)
	}
	return chat.NewUser(name, p), nil
}

// ListUsers returns all users ordered by username.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*chat.User, error) {
	query := `SELECT username, presence FROM users ORDER BY username`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*chat.User
	for rows.Next() {
		var name, presence string
		if err := rows.Scan(&name, &presence); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		p, err := chat.ParsePresence(presence)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", name, err)
		}
		users = append(users, chat.NewUser(name, p))
	}
	return users, rows.Err()
}

// ==== RoomStore implementation ====

// CreateRoom inserts a room row and returns its assigned id.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string, typ chat.RoomType, capacity int) (int64, error) {
	query := `INSERT INTO chatrooms (name, type, capacity) VALUES (?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, name, string(typ), capacity)
	if err != nil {
		return 0, fmt.Errorf("insert room: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// FindRoomByID retrieves a room with its membership rows.
func (s *SQLiteStore) FindRoomByID(ctx context.Context, id int64) (*store.RoomRecord, error) {
	query := `SELECT id, name, type, capacity, created_at FROM chatrooms WHERE id = ?`

	var rec store.RoomRecord
	var typ string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&rec.ID, &rec.Name, &typ, &rec.Capacity, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %d: %w", id, chat.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	rec.Type, err = chat.ParseRoomType(typ)
	if err != nil {
		return nil, fmt.Errorf("room %d: %w", id, err)
	}

	rec.Participants, err = s.listParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) listParticipants(ctx context.Context, roomID int64) ([]store.Participant, error) {
	query := `SELECT username, role FROM chat_participants WHERE room_id = ? ORDER BY username`

	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var participants []store.Participant
	for rows.Next() {
		var username, role string
		if err := rows.Scan(&username, &role); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		r, err := chat.ParseRole(role)
		if err != nil {
			return nil, fmt.Errorf("room %d participant %s: %w", roomID, username, err)
		}
		participants = append(participants, store.Participant{Username: username, Role: r})
	}
	return participants, rows.Err()
}

// ListRoomIDs returns all room ids in creation order.
func (s *SQLiteStore) ListRoomIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chatrooms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query room ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan room id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RoomsWithMember lists the rooms a user belongs to.
func (s *SQLiteStore) RoomsWithMember(ctx context.Context, username string) ([]store.RoomSummary, error) {
	query := `
		SELECT r.id, r.name
		FROM chatrooms r
		JOIN chat_participants p ON p.room_id = r.id
		WHERE p.username = ?
		ORDER BY r.id
	`
	rows, err := s.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("query rooms with member: %w", err)
	}
	defer rows.Close()

	var out []store.RoomSummary
	for rows.Next() {
		var sum store.RoomSummary
		if err := rows.Scan(&sum.ID, &sum.Name); err != nil {
			return nil, fmt.Errorf("scan room summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// AddParticipant inserts a membership row.
func (s *SQLiteStore) AddParticipant(ctx context.Context, roomID int64, username string, role chat.Role) error {
	query := `INSERT INTO chat_participants (room_id, username, role) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, roomID, username, string(role)); err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

// RemoveParticipant deletes a membership row.
func (s *SQLiteStore) RemoveParticipant(ctx context.Context, roomID int64, username string) error {
	query := `DELETE FROM chat_participants WHERE room_id = ? AND username = ?`
	if _, err := s.db.ExecContext(ctx, query, roomID, username); err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	return nil
}

// UpdateParticipantRole rewrites the role on a membership row.
func (s *SQLiteStore) UpdateParticipantRole(ctx context.Context, roomID int64, username string, role chat.Role) error {
	query := `UPDATE chat_participants SET role = ? WHERE room_id = ? AND username = ?`
	if _, err := s.db.ExecContext(ctx, query, string(role), roomID, username); err != nil {
		return fmt.Errorf("update participant role: %w", err)
	}
	return nil
}

// UpdateRoomName renames a room.
func (s *SQLiteStore) UpdateRoomName(ctx context.Context, roomID int64, name string) error {
	query := `UPDATE chatrooms SET name = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, name, roomID)
	if err != nil {
		return fmt.Errorf("update room name: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("room %d: %w", roomID, chat.ErrNotFound)
	}
	return nil
}

// DeleteRoom removes a room together with its membership, message, and
// delivery rows.
func (s *SQLiteStore) DeleteRoom(ctx context.Context, roomID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	statements := []string{
		`DELETE FROM message_delivery_status WHERE message_id IN (SELECT id FROM messages WHERE room_id = ?)`,
		`DELETE FROM messages WHERE room_id = ?`,
		`DELETE FROM chat_participants WHERE room_id = ?`,
	}
	for _, query := range statements {
		if _, err := tx.ExecContext(ctx, query, roomID); err != nil {
			tx.Rollback()
			return fmt.Errorf("delete room rows: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM chatrooms WHERE id = ?`, roomID)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("delete room: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		tx.Rollback()
		return fmt.Errorf("room %d: %w", roomID, chat.ErrNotFound)
	}
	return tx.Commit()
}

// ==== MessageStore implementation ====

// CreateMessage inserts a message row and returns its assigned id.
func (s *SQLiteStore) CreateMessage(ctx context.Context, roomID int64, sender, content string, sentAt time.Time) (int64, error) {
	query := `INSERT INTO messages (room_id, sender, content, sent_at) VALUES (?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, roomID, sender, content, sentAt)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// FindMessageByID retrieves one message with its delivery rows.
func (s *SQLiteStore) FindMessageByID(ctx context.Context, id int64) (*store.MessageRecord, error) {
	query := `SELECT id, room_id, sender, content, sent_at FROM messages WHERE id = ?`

	var rec store.MessageRecord
	err := s.db.QueryRowContext(ctx, query, id).Scan(&rec.ID, &rec.RoomID, &rec.Sender, &rec.Content, &rec.SentAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, chat.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	rec.Delivery, err = s.listDelivery(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) listDelivery(ctx context.Context, messageID int64) (map[string]chat.Status, error) {
	query := `SELECT username, status FROM message_delivery_status WHERE message_id = ?`

	rows, err := s.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("query delivery rows: %w", err)
	}
	defer rows.Close()

	delivery := make(map[string]chat.Status)
	for rows.Next() {
		var username, status string
		if err := rows.Scan(&username, &status); err != nil {
			return nil, fmt.Errorf("scan delivery row: %w", err)
		}
		st, err := chat.ParseStatus(status)
		if err != nil {
			return nil, fmt.Errorf("message %d recipient %s: %w", messageID, username, err)
		}
		delivery[username] = st
	}
	return delivery, rows.Err()
}

// ListMessagesByRoom returns a room's messages in send order.
func (s *SQLiteStore) ListMessagesByRoom(ctx context.Context, roomID int64) ([]*store.MessageRecord, error) {
	query := `SELECT id, room_id, sender, content, sent_at FROM messages WHERE room_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*store.MessageRecord
	for rows.Next() {
		var rec store.MessageRecord
		if err := rows.Scan(&rec.ID, &rec.RoomID, &rec.Sender, &rec.Content, &rec.SentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rec := range msgs {
		delivery, err := s.listDelivery(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		rec.Delivery = delivery
	}
	return msgs, nil
}

// UpdateMessageContent rewrites a message body.
func (s *SQLiteStore) UpdateMessageContent(ctx context.Context, id int64, content string) error {
	query := `UPDATE messages SET content = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, content, id)
	if err != nil {
		return fmt.Errorf("update message content: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("message %d: %w", id, chat.ErrNotFound)
	}
	return nil
}

// SetDeliveryStatus rewrites one recipient's delivery row.
func (s *SQLiteStore) SetDeliveryStatus(ctx context.Context, id int64, username string, status chat.Status) error {
	query := `UPDATE message_delivery_status SET status = ? WHERE message_id = ? AND username = ?`
	if _, err := s.db.ExecContext(ctx, query, string(status), id, username); err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}
	return nil
}

// SeedDeliveryStatuses inserts the initial delivery rows of a message.
func (s *SQLiteStore) SeedDeliveryStatuses(ctx context.Context, id int64, statuses map[string]chat.Status) error {
	query := `INSERT INTO message_delivery_status (message_id, username, status) VALUES (?, ?, ?)`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for username, st := range statuses {
		if _, err := tx.ExecContext(ctx, query, id, username, string(st)); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert delivery row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delivery rows: %w", err)
	}
	return nil
}

// ==== SessionStore implementation ====

// CreateSession inserts an active session row and returns its assigned id.
func (s *SQLiteStore) CreateSession(ctx context.Context, rec *store.SessionRecord) (int64, error) {
	query := `INSERT INTO user_sessions (username, token, ip_address, login_at) VALUES (?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, rec.Username, rec.Token, rec.IPAddress, rec.LoginAt)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) querySessions(ctx context.Context, where string) ([]*store.SessionRecord, error) {
	query := `SELECT id, username, token, ip_address, login_at, logout_at FROM user_sessions ` + where + ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*store.SessionRecord
	for rows.Next() {
		var rec store.SessionRecord
		var logoutAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Username, &rec.Token, &rec.IPAddress, &rec.LoginAt, &logoutAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if logoutAt.Valid {
			t := logoutAt.Time
			rec.LogoutAt = &t
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// ListActiveSessions returns the active session per username.
func (s *SQLiteStore) ListActiveSessions(ctx context.Context) (map[string]*store.SessionRecord, error) {
	sessions, err := s.querySessions(ctx, `WHERE logout_at IS NULL`)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*store.SessionRecord, len(sessions))
	for _, rec := range sessions {
		out[rec.Username] = rec
	}
	return out, nil
}

// ListInactiveSessions returns closed sessions per username, oldest first.
func (s *SQLiteStore) ListInactiveSessions(ctx context.Context) (map[string][]*store.SessionRecord, error) {
	sessions, err := s.querySessions(ctx, `WHERE logout_at IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]*store.SessionRecord)
	for _, rec := range sessions {
		out[rec.Username] = append(out[rec.Username], rec)
	}
	return out, nil
}

// EndActiveSession stamps the logout time on a user's active session.
func (s *SQLiteStore) EndActiveSession(ctx context.Context, username string, logoutAt time.Time) error {
	query := `UPDATE user_sessions SET logout_at = ? WHERE username = ? AND logout_at IS NULL`
	res, err := s.db.ExecContext(ctx, query, logoutAt, username)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("active session for %s: %w", username, chat.ErrNotFound)
	}
	return nil
}

// Package cli is the line-command surface: it tokenizes input, dispatches
// each command to the core services, and renders results as text.
package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/termchat/termchat-server/internal/audit"
	"github.com/termchat/termchat-server/internal/chat"
	"github.com/termchat/termchat-server/internal/service/messages"
	"github.com/termchat/termchat-server/internal/service/rooms"
	"github.com/termchat/termchat-server/internal/service/sessions"
	"github.com/termchat/termchat-server/internal/service/users"
)

var (
	errNotLoggedIn = errors.New("not logged in, use LOGIN <username> first")
	errUsage       = errors.New("usage")
)

const helpText = `Commands:
  REGISTER <user>                       create an account
  LOGIN <user> / LOGOUT                 open or close a session
  CREATE GROUP <name>                   create a group (you become OWNER)
  CREATE PRIVATE <user>                 create a private chat with <user>
  SEND <room> <text>                    send a message
  SEARCH <room> <keyword>               search messages
  ADD_TO <room> <user>                  add a member (ADMIN or OWNER)
  KICK <room> <user>                    kick a member (ADMIN or OWNER)
  PROMOTE <room> <user>                 make a member ADMIN (OWNER only)
  DEMOTE <room> <user>                  make an ADMIN a MEMBER (OWNER only)
  RENAME <room> <name>                  rename a group (OWNER only)
  ROLES <room>                          show the role roster
  READ <room>                           mark all messages read
  UNREAD <room> / UNREAD_CNT <room>     unread messages / their count
  MSG_STATUS <room>                     your delivery status per message
  EDIT <msg-id> <text>                  edit a message
  DELETE MSG <msg-id>                   delete a message (content replaced)
  DELETE GROUP <room>                   delete a group (OWNER only)
  SHOW ROOMS|MSG <room>|PARTICIPANTS <room>|EMPTY_SLOTS <room>
  SHOW_ALL USERS|ROOMS|ACTIVE_SESSIONS|INACTIVE_SESSIONS
  TYPING_START <room> / TYPING_STOP <room> / TYPING <room>
  HELP / EXIT`

// Dispatcher resolves command lines into calls against the core services
// and renders either the success payload or the failure reason. It tracks
// at most one bound user per REPL, like the source console did.
type Dispatcher struct {
	users    *users.Service
	rooms    *rooms.Service
	messages *messages.Service
	sessions *sessions.Service
	typing   *chat.TypingTracker
	audit    *audit.Log
	history  int
	log      *zerolog.Logger

	mu      sync.Mutex
	current string
}

// NewDispatcher wires the command surface.
func NewDispatcher(
	userSvc *users.Service,
	roomSvc *rooms.Service,
	messageSvc *messages.Service,
	sessionSvc *sessions.Service,
	auditLog *audit.Log,
	historyLimit int,
	logger *zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		users:    userSvc,
		rooms:    roomSvc,
		messages: messageSvc,
		sessions: sessionSvc,
		typing:   chat.NewTypingTracker(),
		audit:    auditLog,
		history:  historyLimit,
		log:      logger,
	}
}

// CurrentUser returns the username bound to this REPL, or "".
func (d *Dispatcher) CurrentUser() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Execute runs one command line and returns the rendered output. exit is
// true when the user asked to quit.
func (d *Dispatcher) Execute(ctx context.Context, line string) (out string, exit bool) {
	tokens, err := Tokenize(line)
	if err != nil {
		return renderError(err), false
	}
	if len(tokens) == 0 {
		return "", false
	}

	cmd := strings.ToUpper(tokens[0])
	d.audit.Record(cmd, strings.Join(tokens[1:], " "))

	if cmd == "EXIT" || cmd == "QUIT" {
		return "Bye", true
	}

	out, err = d.dispatch(ctx, cmd, tokens[1:])
	if err != nil {
		if errors.Is(err, errUsage) {
			return "Usage error: " + err.Error(), false
		}
		if errors.Is(err, errNotLoggedIn) {
			return "Error: " + errNotLoggedIn.Error(), false
		}
		d.log.Debug().Err(err).Str("command", cmd).Msg("command failed")
		return renderError(err), false
	}
	return out, false
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd string, args []string) (string, error) {
	switch cmd {
	case "HELP":
		return helpText, nil
	case "REGISTER":
		return d.register(ctx, args)
	case "LOGIN":
		return d.login(ctx, args)
	case "LOGOUT":
		return d.logout(ctx)
	case "CREATE":
		return d.create(ctx, args)
	case "SEND":
		return d.send(ctx, args)
	case "SEARCH":
		return d.search(args)
	case "ADD_TO":
		return d.membership(ctx, args, d.rooms.AddMember, "Added %s to room %d")
	case "KICK":
		return d.membership(ctx, args, d.rooms.Kick, "Kicked %s from room %d")
	case "PROMOTE":
		return d.membership(ctx, args, d.rooms.Promote, "Promoted %s to ADMIN in room %d")
	case "DEMOTE":
		return d.membership(ctx, args, d.rooms.Demote, "Demoted %s to MEMBER in room %d")
	case "RENAME":
		return d.rename(ctx, args)
	case "ROLES":
		return d.roles(args)
	case "READ":
		return d.read(ctx, args)
	case "UNREAD":
		return d.unread(args)
	case "UNREAD_CNT":
		return d.unreadCount(args)
	case "MSG_STATUS":
		return d.msgStatus(args)
	case "EDIT":
		return d.edit(ctx, args)
	case "DELETE":
		return d.delete(ctx, args)
	case "SHOW":
		return d.show(ctx, args)
	case "SHOW_ALL":
		return d.showAll(args)
	case "TYPING_START":
		return d.typingStart(args)
	case "TYPING_STOP":
		return d.typingStop(args)
	case "TYPING":
		return d.typingList(args)
	default:
		return "", fmt.Errorf("%w: unknown command %s, try HELP", errUsage, cmd)
	}
}

// requireLogin returns the bound username or errNotLoggedIn.
func (d *Dispatcher) requireLogin() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == "" {
		return "", errNotLoggedIn
	}
	return d.current, nil
}

func parseID(token, what string) (int64, error) {
	id, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", chat.ErrInvalidArgument, what, token)
	}
	return id, nil
}

func (d *Dispatcher) register(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: REGISTER <username>", errUsage)
	}
	u, err := d.users.Register(ctx, args[0])
	if err != nil {
		return "", err
	}
	return "Registered " + u.Username, nil
}

func (d *Dispatcher) login(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: LOGIN <username>", errUsage)
	}

	d.mu.Lock()
	bound := d.current
	d.mu.Unlock()
	if bound != "" {
		return "", fmt.Errorf("%w: already logged in as %s, LOGOUT first", chat.ErrInvalidArgument, bound)
	}

	session, err := d.sessions.Login(ctx, args[0])
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	d.current = args[0]
	d.mu.Unlock()

	return fmt.Sprintf("Logged in as %s (session %d)\n%s",
		args[0], session.ID, renderPresence(args[0], chat.PresenceOnline)), nil
}

func (d *Dispatcher) logout(ctx context.Context) (string, error) {
	username, err := d.requireLogin()
	if err != nil {
		return "", err
	}
	if err := d.sessions.Logout(ctx, username); err != nil {
		return "", err
	}

	d.mu.Lock()
	d.current = ""
	d.mu.Unlock()

	return "Logged out\n" + renderPresence(username, chat.PresenceOffline), nil
}

func (d *Dispatcher) create(ctx context.Context, args []string) (string, error) {
	username, err := d.requireLogin()
	if err != nil {
		return "", err
	}
	if len(args) != 2 {
		return "", fmt.Errorf("%w: CREATE GROUP <name> | CREATE PRIVATE <username>", errUsage)
	}

	switch strings.ToUpper(args[0]) {
	case "GROUP":
		g, err := d.rooms.CreateGroup(ctx, args[1], username)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Created group %q with id %d, you are OWNER", g.Name(), g.ID()), nil
	case "PRIVATE":
		p, err := d.rooms.CreatePrivate(ctx, username, args[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Created private chat %q with id %d", p.Name(), p.ID()), nil
	default:
		return "", fmt.Errorf("%w: CREATE GROUP <name> | CREATE PRIVATE <username>", errUsage)
	}
}

func (d *Dispatcher) send(ctx context.Context, args []string) (string, error) {
	username, err := d.requireLogin()
	if err != nil {
		return "", err
	}
	if len(args) != 2 {
		return "", fmt.Errorf("%w: SEND <room> <text>", errUsage)
	}
	roomID, err := parseID(args[0], "room id")
	if err != nil {
		return "", err
	}
	m, err := d.messages.Send(ctx, roomID, username, args[1])
	if err != nil {
		return "", err
	}
	d.typing.Stop(roomID, username)
	return fmt.Sprintf("Sent message %d", m.ID()), nil
}

func (d *Dispatcher) search(args []string) (string, error) {
	if _, err := d.requireLogin(); err != nil {
		return "", err
	}
	if len(args) != 2 {
		return "", fmt.Errorf("%w: SEARCH <room> <keyword>", errUsage)
	}
	roomID, err := parseID(args[0], "room id")
	if err != nil {
		return "", err
	}
	seq, err := d.messages.Search(roomID, args[1])
	if err != nil {
		return "", err
	}

	var lines []string
	for m := range seq {
		lines = append(lines, renderMessage(m))
	}
	if len(lines) == 0 {
		return "No messages match", nil
	}
	return strings.Join(lines, "\n"), nil
}

// membership factors ADD_TO, KICK, PROMOTE, and DEMOTE: all take a room and
// a target and differ only in the service call.
func (d *Dispatcher) membership(ctx context.Context, args []string, op func(context.Context, int64, string, string) error, okFormat string) (string, error) {
	username, err := d.requireLogin()
	if err != nil {
		return "", err
	}
	if len(args) != 2 {
		return "", fmt.Errorf("%w: expected <room> <username>", errUsage)
	}
	roomID, err := parseID(args[0], "room id")
	if err != nil {
		return "", err
	}
	if err := op(ctx, roomID, username, args[1]); err != nil {
		return "", err
	}
	return fmt.Sprintf(okFormat, args[1], roomID), nil
}

func (d *Dispatcher) rename(ctx context.Context, args []string) (string, error) {
	username, err := d.requireLogin()
	if err != nil {
		return "", err
	}
	if len(args) != 2 {
		return "", fmt.Errorf("%w: RENAME <room> <name>", errUsage)
	}
	roomID, err := parseID(args[0], "room id")
	if err != nil {
		return "", err
	}
	if err := d.rooms.Rename(ctx, roomID, username, args[1]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Renamed room %d to %q", roomID, args[1]), nil
}

func (d *Dispatcher) roles(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: ROLES <room>", errUsage)
	}
	roomID, err := parseID(args[0], "room id")
	if err != nil {
		return "", err
	}
	roster, err := d.rooms.Roles(roomID)
	if err != nil {
		return "", err
	}
	return renderRoles(roster), nil
}

func (d *Dispatcher) read(ctx context.Context, args []string) (string, error) {
	username, err := d.requireLogin()
	if err != nil {
		return "", err
	}
	if len(args) != 1 {
		return "", fmt.Errorf("%w: READ <room>", errUsage)
	}
	roomID, err := parseID(args[0], "room id")
	if err != nil {
		return "", err
	}
	n, err := d.messages.ReadAll(ctx, roomID, username)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Marked %d message(s) read", n), nil
}

func (d *Dispatcher) unread(args []string) (string, error) {
	username, err := d.requireLogin()
	if err != nil {
		return "", err
	}
	if len(args) != 1 {
		return "", fmt.Errorf("%w: UNREAD <room>", errUsage)
	}
	roomID, err := parseID(args[0], "room id")
	if err != nil {
		return "", err
	}
	msgs, err := d.messages.Unread(roomID, username)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "No unread messages", nil
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, renderMessage(m))
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Dispatcher) unreadCount(args []string) (string, error) {
	username, err := d.requireLogin()
	if err != nil {
		return "", err
	}
	if len(args) != 1 {
		return "", fmt.Errorf("%w: UNREAD_CNT <room>", errUsage)
	}
	roomID, err := parseID(args[0], "room id")
	if err != nil {
		return "", err
	}
	n, err := d.messages.UnreadCount(roomID, username)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(n), nil
}

func (d *Dispatcher) msgStatus(args []string) (string, error) {
	username, err := d.requireLogin()
	if err != nil {
		return "", err
	}
	if len(args) != 1 {
		return "", fmt.Errorf("%w: MSG_STATUS <room>", errUsage)
	}
	roomID, err := parseID(args[0], "room id")
	if err != nil {
		return "", err
	}
	entries, err := d.messages.StatusReport(roomID, username)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "No messages", nil
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, renderMessageWithStatus(e.Message, e.Status))
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Dispatcher) edit(ctx context.Context, args []string) (string, error) {
	if _, err := d.requireLogin(); err != nil {
		return "", err
	}
	if len(args) != 2 {
		return "", fmt.Errorf("%w: EDIT <msg-id> <text>", errUsage)
	}
	messageID, err := parseID(args[0], "message id")
	if err != nil {
		return "", err
	}
	if err := d.messages.Edit(ctx, messageID, args[1]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Edited message %d", messageID), nil
}

func (d *Dispatcher) delete(ctx context.Context, args []string) (string, error) {
	username, err := d.requireLogin()
	if err != nil {
		return "", err
	}
	if len(args) != 2 {
		return "", fmt.Errorf("%w: DELETE MSG <msg-id> | DELETE GROUP <room>", errUsage)
	}

	switch strings.ToUpper(args[0]) {
	case "MSG":
		messageID, err := parseID(args[1], "message id")
		if err != nil {
			return "", err
		}
		if err := d.messages.Delete(ctx, messageID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Deleted message %d", messageID), nil
	case "GROUP":
		roomID, err := parseID(args[1], "room id")
		if err != nil {
			return "", err
		}
		g, err := d.rooms.DeleteGroup(ctx, roomID, username)
		if err != nil {
			return "", err
		}
		d.messages.DropRoom(g)
		return fmt.Sprintf("Deleted group %d", roomID), nil
	default:
		return "", fmt.Errorf("%w: DELETE MSG <msg-id> | DELETE GROUP <room>", errUsage)
	}
}

func (d *Dispatcher) show(ctx context.Context, args []string) (string, error) {
	username, err := d.requireLogin()
	if err != nil {
		return "", err
	}
	if len(args) == 0 {
		return "", fmt.Errorf("%w: SHOW ROOMS | MSG <room> | PARTICIPANTS <room> | EMPTY_SLOTS <room>", errUsage)
	}

	switch strings.ToUpper(args[0]) {
	case "ROOMS":
		summaries, err := d.rooms.RoomsWithMember(ctx, username)
		if err != nil {
			return "", err
		}
		if len(summaries) == 0 {
			return "You are not part of any room", nil
		}
		lines := make([]string, 0, len(summaries))
		for _, sum := range summaries {
			lines = append(lines, fmt.Sprintf("%d: %s", sum.ID, sum.Name))
		}
		return strings.Join(lines, "\n"), nil
	case "MSG":
		if len(args) != 2 {
			return "", fmt.Errorf("%w: SHOW MSG <room>", errUsage)
		}
		roomID, err := parseID(args[1], "room id")
		if err != nil {
			return "", err
		}
		msgs, err := d.messages.History(roomID, d.history)
		if err != nil {
			return "", err
		}
		if len(msgs) == 0 {
			return "No messages", nil
		}
		lines := make([]string, 0, len(msgs))
		for _, m := range msgs {
			lines = append(lines, renderMessage(m))
		}
		return strings.Join(lines, "\n"), nil
	case "PARTICIPANTS":
		if len(args) != 2 {
			return "", fmt.Errorf("%w: SHOW PARTICIPANTS <room>", errUsage)
		}
		roomID, err := parseID(args[1], "room id")
		if err != nil {
			return "", err
		}
		room, err := d.rooms.Get(roomID)
		if err != nil {
			return "", err
		}
		lines := []string{}
		for _, u := range room.Participants() {
			lines = append(lines, u.String())
		}
		return strings.Join(lines, "\n"), nil
	case "EMPTY_SLOTS":
		if len(args) != 2 {
			return "", fmt.Errorf("%w: SHOW EMPTY_SLOTS <room>", errUsage)
		}
		roomID, err := parseID(args[1], "room id")
		if err != nil {
			return "", err
		}
		slots, err := d.rooms.EmptySlots(roomID)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(slots), nil
	default:
		return "", fmt.Errorf("%w: SHOW ROOMS | MSG <room> | PARTICIPANTS <room> | EMPTY_SLOTS <room>", errUsage)
	}
}

func (d *Dispatcher) showAll(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: SHOW_ALL USERS | ROOMS | ACTIVE_SESSIONS | INACTIVE_SESSIONS", errUsage)
	}

	switch strings.ToUpper(args[0]) {
	case "USERS":
		var lines []string
		for _, u := range d.users.List() {
			lines = append(lines, u.String())
		}
		if len(lines) == 0 {
			return "No users", nil
		}
		return strings.Join(lines, "\n"), nil
	case "ROOMS":
		var lines []string
		for _, room := range d.rooms.List() {
			lines = append(lines, fmt.Sprintf("%d: %s (%s)", room.ID(), room.Name(), room.Type()))
		}
		if len(lines) == 0 {
			return "No rooms", nil
		}
		return strings.Join(lines, "\n"), nil
	case "ACTIVE_SESSIONS":
		active := d.sessions.Active()
		if len(active) == 0 {
			return "No active sessions", nil
		}
		names := make([]string, 0, len(active))
		for name := range active {
			names = append(names, name)
		}
		sort.Strings(names)
		lines := make([]string, 0, len(names))
		for _, name := range names {
			lines = append(lines, renderSession(active[name]))
		}
		return strings.Join(lines, "\n"), nil
	case "INACTIVE_SESSIONS":
		inactive := d.sessions.Inactive()
		if len(inactive) == 0 {
			return "No inactive sessions", nil
		}
		names := make([]string, 0, len(inactive))
		for name := range inactive {
			names = append(names, name)
		}
		sort.Strings(names)
		var lines []string
		for _, name := range names {
			for _, session := range inactive[name] {
				lines = append(lines, renderSession(session))
			}
		}
		return strings.Join(lines, "\n"), nil
	default:
		return "", fmt.Errorf("%w: SHOW_ALL USERS | ROOMS | ACTIVE_SESSIONS | INACTIVE_SESSIONS", errUsage)
	}
}

func (d *Dispatcher) typingRoom(args []string) (int64, string, error) {
	username, err := d.requireLogin()
	if err != nil {
		return 0, "", err
	}
	if len(args) != 1 {
		return 0, "", fmt.Errorf("%w: expected <room>", errUsage)
	}
	roomID, err := parseID(args[0], "room id")
	if err != nil {
		return 0, "", err
	}
	room, err := d.rooms.Get(roomID)
	if err != nil {
		return 0, "", err
	}
	if !room.IsParticipant(username) {
		return 0, "", fmt.Errorf("%s: %w", username, chat.ErrNotAParticipant)
	}
	return roomID, username, nil
}

func (d *Dispatcher) typingStart(args []string) (string, error) {
	roomID, username, err := d.typingRoom(args)
	if err != nil {
		return "", err
	}
	d.typing.Start(roomID, username)
	return "", nil
}

func (d *Dispatcher) typingStop(args []string) (string, error) {
	roomID, username, err := d.typingRoom(args)
	if err != nil {
		return "", err
	}
	d.typing.Stop(roomID, username)
	return "", nil
}

func (d *Dispatcher) typingList(args []string) (string, error) {
	roomID, _, err := d.typingRoom(args)
	if err != nil {
		return "", err
	}
	typing := d.typing.Typing(roomID)
	if len(typing) == 0 {
		return "Nobody is typing", nil
	}
	return "Typing: " + strings.Join(typing, " ") + " ...", nil
}

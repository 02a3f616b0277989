package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/termchat/termchat-server/internal/chat"
)

// renderError turns a domain failure into the single line shown to the
// user. The core never formats output; this is the only place reasons
// become text.
func renderError(err error) string {
	switch {
	case errors.Is(err, chat.ErrUnauthorized):
		return "Denied: insufficient role for this operation"
	case errors.Is(err, chat.ErrCannotRemoveOwner):
		return "Denied: cannot kick the group owner"
	case errors.Is(err, chat.ErrTargetNotParticipant):
		return "Denied: target is not a participant of this room"
	case errors.Is(err, chat.ErrNotAParticipant):
		return "Denied: you are not a participant of this room"
	case errors.Is(err, chat.ErrRoomFull):
		return "Denied: room is full"
	case errors.Is(err, chat.ErrAlreadyExists):
		return "Error: already exists (" + err.Error() + ")"
	case errors.Is(err, chat.ErrNotFound):
		return "Error: not found (" + err.Error() + ")"
	case errors.Is(err, chat.ErrInvalidArgument):
		return "Error: " + err.Error()
	case errors.Is(err, chat.ErrCorruptState):
		return "Error: storage returned corrupt state, see server log"
	default:
		return "Error: " + err.Error()
	}
}

func renderMessage(m *chat.Message) string {
	return fmt.Sprintf("#%d [%s] %s: %s",
		m.ID(), m.SentAt().Format(time.RFC3339), m.Sender().Username, m.Content())
}

func renderMessageWithStatus(m *chat.Message, st chat.Status) string {
	return renderMessage(m) + " [" + string(st) + "]"
}

func renderRoles(roles map[string]chat.Role) string {
	names := make([]string, 0, len(roles))
	for name := range roles {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("User: %s, Role: %s", name, roles[name]))
	}
	return strings.Join(lines, "\n")
}

func renderSession(s *chat.Session) string {
	return s.String()
}

func renderPresence(username string, p chat.Presence) string {
	return username + " is " + string(p)
}

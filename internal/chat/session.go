package chat

import (
	"fmt"
	"time"
)

// Session is one bounded interval of a user's logged-in presence. It is
// created on login and closed exactly once on logout; closed sessions are
// never reopened.
type Session struct {
	ID        int64
	Token     string
	Username  string
	IPAddress string
	LoginAt   time.Time
	logoutAt  *time.Time
}

// NewSession creates an active session.
func NewSession(id int64, token, username, ip string, loginAt time.Time) *Session {
	return &Session{
		ID:        id,
		Token:     token,
		Username:  username,
		IPAddress: ip,
		LoginAt:   loginAt,
	}
}

// RestoreSession rebuilds a session from storage; logoutAt is nil for an
// active session.
func RestoreSession(id int64, token, username, ip string, loginAt time.Time, logoutAt *time.Time) *Session {
	s := NewSession(id, token, username, ip, loginAt)
	s.logoutAt = logoutAt
	return s
}

// Active reports whether the session has not been closed yet.
func (s *Session) Active() bool { return s.logoutAt == nil }

// LogoutAt returns the close time, or the zero time while active.
func (s *Session) LogoutAt() time.Time {
	if s.logoutAt == nil {
		return time.Time{}
	}
	return *s.logoutAt
}

// Close stamps the logout time. Closing an already closed session is an
// error: the active → inactive transition is one-way and happens once.
func (s *Session) Close(at time.Time) error {
	if s.logoutAt != nil {
		return fmt.Errorf("%w: session %d already closed", ErrInvalidArgument, s.ID)
	}
	s.logoutAt = &at
	return nil
}

func (s *Session) String() string {
	out := fmt.Sprintf("Session-%d for %s from %s started at %s",
		s.ID, s.Username, s.IPAddress, s.LoginAt.Format(time.RFC3339))
	if s.logoutAt != nil {
		return out + ", ended at " + s.logoutAt.Format(time.RFC3339)
	}
	return out + ", active"
}

// Package sessions tracks login/logout bookkeeping: one active session per
// user plus the historical list of closed ones.
package sessions

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/termchat/termchat-server/internal/chat"
	"github.com/termchat/termchat-server/internal/service/users"
	"github.com/termchat/termchat-server/internal/store"
)

// Policy decides what a second login does while a session is active.
type Policy string

const (
	// PolicySupersede closes the active session as a logout would, then
	// opens a fresh one.
	PolicySupersede Policy = "supersede"
	// PolicyReject refuses the second login.
	PolicyReject Policy = "reject"
)

// ParsePolicy validates a configured policy value.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(s)) {
	case PolicySupersede, PolicyReject:
		return Policy(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("%w: unknown session_policy %q", chat.ErrInvalidArgument, s)
	}
}

// Service is the session tracker. At most one active session exists per
// user; everything serializes on one mutex so concurrent logins cannot race
// presence or the active set.
type Service struct {
	store  store.SessionStore
	users  *users.Service
	policy Policy
	log    *zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	active  map[string]*chat.Session
	history map[string][]*chat.Session
}

// New creates the tracker and restores active and historical sessions from
// the store.
func New(ctx context.Context, st store.SessionStore, userSvc *users.Service, policy Policy, logger *zerolog.Logger) (*Service, error) {
	s := &Service{
		store:   st,
		users:   userSvc,
		policy:  policy,
		log:     logger,
		now:     time.Now,
		active:  make(map[string]*chat.Session),
		history: make(map[string][]*chat.Session),
	}

	activeRecs, err := st.ListActiveSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore active sessions: %w", err)
	}
	for username, rec := range activeRecs {
		s.active[username] = chat.RestoreSession(rec.ID, rec.Token, rec.Username, rec.IPAddress, rec.LoginAt, nil)
	}

	inactiveRecs, err := st.ListInactiveSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore inactive sessions: %w", err)
	}
	for username, recs := range inactiveRecs {
		for _, rec := range recs {
			s.history[username] = append(s.history[username],
				chat.RestoreSession(rec.ID, rec.Token, rec.Username, rec.IPAddress, rec.LoginAt, rec.LogoutAt))
		}
	}
	return s, nil
}

// Login opens a session for the user and flips presence to ONLINE. With an
// active session already present, PolicyReject fails with AlreadyExists and
// PolicySupersede closes the old session first.
func (s *Service) Login(ctx context.Context, username string) (*chat.Session, error) {
	if _, err := s.users.Get(username); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.active[username]; ok {
		if s.policy == PolicyReject {
			return nil, fmt.Errorf("active session for %s: %w", username, chat.ErrAlreadyExists)
		}
		if err := s.close(ctx, current); err != nil {
			return nil, err
		}
		s.log.Debug().Str("username", username).Int64("session_id", current.ID).Msg("superseded active session")
	}

	rec := &store.SessionRecord{
		Username:  username,
		Token:     uuid.NewString(),
		IPAddress: randomIP(),
		LoginAt:   s.now(),
	}
	id, err := s.store.CreateSession(ctx, rec)
	if err != nil {
		return nil, err
	}

	session := chat.NewSession(id, rec.Token, username, rec.IPAddress, rec.LoginAt)
	s.active[username] = session

	if err := s.users.SetPresence(ctx, username, chat.PresenceOnline); err != nil {
		return nil, err
	}
	s.log.Info().Str("username", username).Int64("session_id", id).Str("ip", rec.IPAddress).Msg("logged in")
	return session, nil
}

// Logout closes the user's active session and flips presence to OFFLINE.
// Fails with NotFound when no session is active.
func (s *Service) Logout(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.active[username]
	if !ok {
		return fmt.Errorf("active session for %s: %w", username, chat.ErrNotFound)
	}
	if err := s.close(ctx, session); err != nil {
		return err
	}
	if err := s.users.SetPresence(ctx, username, chat.PresenceOffline); err != nil {
		return err
	}
	s.log.Info().Str("username", username).Int64("session_id", session.ID).Msg("logged out")
	return nil
}

// close stamps the logout time and moves the session into history.
// Caller holds s.mu.
func (s *Service) close(ctx context.Context, session *chat.Session) error {
	at := s.now()
	if err := session.Close(at); err != nil {
		return err
	}
	if err := s.store.EndActiveSession(ctx, session.Username, at); err != nil {
		return err
	}
	delete(s.active, session.Username)
	s.history[session.Username] = append(s.history[session.Username], session)
	return nil
}

// Active returns the username → active session snapshot.
func (s *Service) Active() map[string]*chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*chat.Session, len(s.active))
	for username, session := range s.active {
		out[username] = session
	}
	return out
}

// Inactive returns closed sessions per username in logout order.
func (s *Service) Inactive() map[string][]*chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]*chat.Session, len(s.history))
	for username, sessions := range s.history {
		out[username] = append([]*chat.Session(nil), sessions...)
	}
	return out
}

// IsActive reports whether the user has an active session.
func (s *Service) IsActive(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[username]
	return ok
}

// randomIP fabricates the synthetic address recorded on each session.
func randomIP() string {
	return fmt.Sprintf("%d.%d.%d.%d",
		rand.IntN(256), rand.IntN(256), rand.IntN(256), rand.IntN(256))
}

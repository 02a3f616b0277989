// Package users holds the user registry: unique usernames and presence.
package users

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/termchat/termchat-server/internal/chat"
	"github.com/termchat/termchat-server/internal/store"
)

// Service is the authoritative in-memory user registry, written through to
// the store. All mutations serialize on one mutex so concurrent logins for
// the same user cannot race presence updates.
type Service struct {
	store store.UserStore
	log   *zerolog.Logger

	mu    sync.Mutex
	users map[string]*chat.User
}

// New creates the registry and restores known users from the store.
func New(ctx context.Context, st store.UserStore, logger *zerolog.Logger) (*Service, error) {
	existing, err := st.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore users: %w", err)
	}

	users := make(map[string]*chat.User, len(existing))
	for _, u := range existing {
		users[u.Username] = u
	}
	if len(users) > 0 {
		logger.Info().Int("count", len(users)).Msg("restored users from store")
	}

	return &Service{store: st, log: logger, users: users}, nil
}

// Register creates a user in OFFLINE state. Duplicate usernames are
// rejected.
func (s *Service) Register(ctx context.Context, username string) (*chat.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: empty username", chat.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return nil, fmt.Errorf("user %s: %w", username, chat.ErrAlreadyExists)
	}

	if err := s.store.CreateUser(ctx, username, chat.PresenceOffline); err != nil {
		return nil, err
	}

	u := chat.NewUser(username, chat.PresenceOffline)
	s.users[username] = u
	s.log.Debug().Str("username", username).Msg("user registered")
	return u, nil
}

// Get returns the registered user or chat.ErrNotFound.
func (s *Service) Get(username string) (*chat.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", username, chat.ErrNotFound)
	}
	return u, nil
}

// SetPresence flips a user's presence and writes it through.
func (s *Service) SetPresence(ctx context.Context, username string, p chat.Presence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return fmt.Errorf("user %s: %w", username, chat.ErrNotFound)
	}
	if err := s.store.UpdateUserPresence(ctx, username, p); err != nil {
		return err
	}
	u.SetPresence(p)
	return nil
}

// List returns all users sorted by username.
func (s *Service) List() []*chat.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*chat.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

package sessions

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/termchat/termchat-server/internal/chat"
	"github.com/termchat/termchat-server/internal/service/users"
	"github.com/termchat/termchat-server/internal/store/sqlite"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestService(t *testing.T, policy Policy, names ...string) (*Service, *users.Service, *sqlite.SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	userSvc, err := users.New(ctx, st, testLogger())
	require.NoError(t, err)
	for _, name := range names {
		_, err := userSvc.Register(ctx, name)
		require.NoError(t, err)
	}

	svc, err := New(ctx, st, userSvc, policy, testLogger())
	require.NoError(t, err)
	return svc, userSvc, st
}

func TestLoginLogoutLifecycle(t *testing.T) {
	svc, userSvc, _ := newTestService(t, PolicySupersede, "alice")
	ctx := context.Background()

	first, err := svc.Login(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, first.Active())
	assert.NotEmpty(t, first.Token)
	assert.NotEmpty(t, first.IPAddress)
	assert.True(t, svc.IsActive("alice"))

	u, err := userSvc.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, chat.PresenceOnline, u.Presence())

	require.NoError(t, svc.Logout(ctx, "alice"))
	assert.False(t, svc.IsActive("alice"))
	assert.False(t, first.Active())
	assert.False(t, first.LogoutAt().IsZero())
	u, err = userSvc.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, chat.PresenceOffline, u.Presence())

	// login → logout → login leaves exactly one active and one closed.
	second, err := svc.Login(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.Token, second.Token)

	active := svc.Active()
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active["alice"].ID)

	inactive := svc.Inactive()
	require.Len(t, inactive["alice"], 1)
	assert.Equal(t, first.ID, inactive["alice"][0].ID)
	assert.False(t, inactive["alice"][0].Active())
}

func TestLogin_UnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t, PolicySupersede)
	_, err := svc.Login(context.Background(), "ghost")
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestLogout_WithoutSession(t *testing.T) {
	svc, _, _ := newTestService(t, PolicySupersede, "alice")
	err := svc.Logout(context.Background(), "alice")
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestSecondLogin_Supersede(t *testing.T) {
	svc, _, _ := newTestService(t, PolicySupersede, "alice")
	ctx := context.Background()

	first, err := svc.Login(ctx, "alice")
	require.NoError(t, err)
	second, err := svc.Login(ctx, "alice")
	require.NoError(t, err)

	assert.False(t, first.Active(), "superseded session must be closed")
	assert.True(t, second.Active())

	active := svc.Active()
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active["alice"].ID)
	require.Len(t, svc.Inactive()["alice"], 1)
}

func TestSecondLogin_Reject(t *testing.T) {
	svc, _, _ := newTestService(t, PolicyReject, "alice")
	ctx := context.Background()

	first, err := svc.Login(ctx, "alice")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice")
	assert.ErrorIs(t, err, chat.ErrAlreadyExists)
	assert.True(t, first.Active(), "rejected login must leave the session untouched")
}

func TestRestoreFromStore(t *testing.T) {
	ctx := context.Background()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	userSvc, err := users.New(ctx, st, testLogger())
	require.NoError(t, err)
	for _, name := range []string{"alice", "bob"} {
		_, err := userSvc.Register(ctx, name)
		require.NoError(t, err)
	}

	svc, err := New(ctx, st, userSvc, PolicySupersede, testLogger())
	require.NoError(t, err)
	_, err = svc.Login(ctx, "alice")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, "bob"))

	restoredUsers, err := users.New(ctx, st, testLogger())
	require.NoError(t, err)
	restored, err := New(ctx, st, restoredUsers, PolicySupersede, testLogger())
	require.NoError(t, err)

	assert.True(t, restored.IsActive("alice"))
	assert.False(t, restored.IsActive("bob"))
	require.Len(t, restored.Inactive()["bob"], 1)

	// Logout of a restored session works against the same store row.
	require.NoError(t, restored.Logout(ctx, "alice"))
	assert.False(t, restored.IsActive("alice"))
}

func TestParsePolicy(t *testing.T) {
	for _, valid := range []string{"supersede", "REJECT"} {
		if _, err := ParsePolicy(valid); err != nil {
			t.Fatalf("ParsePolicy(%q): %v", valid, err)
		}
	}
	_, err := ParsePolicy("queue")
	assert.ErrorIs(t, err, chat.ErrInvalidArgument)
}

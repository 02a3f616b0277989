package app

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/termchat/termchat-server/internal/config"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	cfg.AuditPath = ""
	cfg.ShutdownTimeout = 100 * time.Millisecond

	logger := zerolog.Nop()
	a, err := New(context.Background(), &cfg, &logger)
	require.NoError(t, err)
	return a
}

func TestRun_ExecutesUntilExit(t *testing.T) {
	a := newTestApp(t)

	in := strings.NewReader("REGISTER alice\nLOGIN alice\nEXIT\n")
	var out bytes.Buffer
	require.NoError(t, a.Run(context.Background(), in, &out))

	assert.Contains(t, out.String(), "Registered alice")
	assert.Contains(t, out.String(), "Logged in as alice")
	assert.Contains(t, out.String(), "Bye")
}

func TestRun_StopsOnEOF(t *testing.T) {
	a := newTestApp(t)

	var out bytes.Buffer
	require.NoError(t, a.Run(context.Background(), strings.NewReader("REGISTER alice\n"), &out))
	assert.Contains(t, out.String(), "Registered alice")
}

func TestRun_StopsOnCancellation(t *testing.T) {
	a := newTestApp(t)

	// A pipe with no writes keeps the reader blocked; only cancellation can
	// end the run.
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, r, io.Discard) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop on cancellation")
	}
}

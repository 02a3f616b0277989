// Package app wires the store, services, and command surface together and
// runs the interactive loop.
package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/termchat/termchat-server/internal/audit"
	"github.com/termchat/termchat-server/internal/config"
	"github.com/termchat/termchat-server/internal/service/messages"
	"github.com/termchat/termchat-server/internal/service/rooms"
	"github.com/termchat/termchat-server/internal/service/sessions"
	"github.com/termchat/termchat-server/internal/service/users"
	"github.com/termchat/termchat-server/internal/store"
	"github.com/termchat/termchat-server/internal/store/sqlite"
	"github.com/termchat/termchat-server/internal/transport/cli"
)

// App holds the wired services and the command dispatcher.
type App struct {
	dispatcher *cli.Dispatcher
	store      store.Store
	shutdown   time.Duration
	log        *zerolog.Logger
}

// New constructs the application: opens the store, restores state into the
// services, and builds the dispatcher.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	policy, err := sessions.ParsePolicy(cfg.SessionPolicy)
	if err != nil {
		return nil, err
	}
	scope, err := rooms.ParseNameScope(cfg.GroupNameScope)
	if err != nil {
		return nil, err
	}

	st, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DBPath).Msg("database initialized")

	userSvc, err := users.New(ctx, st, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	roomSvc, err := rooms.New(ctx, st, userSvc, scope, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	messageSvc, err := messages.New(ctx, st, roomSvc, userSvc, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	sessionSvc, err := sessions.New(ctx, st, userSvc, policy, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	auditLog := audit.New(cfg.AuditPath, logger)
	dispatcher := cli.NewDispatcher(userSvc, roomSvc, messageSvc, sessionSvc, auditLog, cfg.HistoryLimit, logger)

	return &App{
		dispatcher: dispatcher,
		store:      st,
		shutdown:   cfg.ShutdownTimeout,
		log:        logger,
	}, nil
}

// Dispatcher exposes the command surface, mainly for tests.
func (a *App) Dispatcher() *cli.Dispatcher {
	return a.dispatcher
}

// Run reads command lines from in and writes rendered output to out until
// EOF, an EXIT command, or context cancellation. On cancellation the
// in-flight command gets up to the configured shutdown timeout to finish
// before the store is closed underneath it.
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	defer a.cleanup()

	done := make(chan error, 1)
	go func() {
		done <- a.loop(ctx, lines, scanErr, out)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		a.log.Info().Msg("shutting down")
		select {
		case err := <-done:
			return err
		case <-time.After(a.shutdown):
			a.log.Warn().Dur("timeout", a.shutdown).Msg("shutdown timeout exceeded, abandoning in-flight command")
			return nil
		}
	}
}

func (a *App) loop(ctx context.Context, lines <-chan string, scanErr <-chan error, out io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("read input: %w", err)
				}
				return nil
			}
			output, exit := a.dispatcher.Execute(ctx, line)
			if output != "" {
				fmt.Fprintln(out, output)
			}
			if exit {
				return nil
			}
		}
	}
}

// cleanup closes the store.
func (a *App) cleanup() {
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close store")
	} else {
		a.log.Info().Msg("store closed")
	}
}

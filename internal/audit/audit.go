// Package audit appends executed commands to a CSV trail.
package audit

import (
	"encoding/csv"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Log writes one CSV record per executed command:
// entry id, command, description, timestamp. Failures are logged and
// swallowed; auditing never blocks command handling.
type Log struct {
	path string
	log  *zerolog.Logger

	mu sync.Mutex
}

// New creates an audit log writing to path. An empty path disables auditing.
func New(path string, logger *zerolog.Logger) *Log {
	return &Log{path: path, log: logger}
}

// Record appends one entry to the trail.
func (l *Log) Record(command, description string) {
	if l.path == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		l.log.Warn().Err(err).Str("path", l.path).Msg("failed to open audit file")
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	record := []string{
		uuid.NewString(),
		command,
		description,
		time.Now().Format("2006-01-02 15:04:05"),
	}
	if err := w.Write(record); err != nil {
		l.log.Warn().Err(err).Msg("failed to write audit record")
		return
	}
	w.Flush()
	if err := w.Error(); err != nil {
		l.log.Warn().Err(err).Msg("failed to flush audit record")
	}
}

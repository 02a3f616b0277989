package audit

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAppendsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")
	logger := zerolog.Nop()
	l := New(path, &logger)

	l.Record("REGISTER", "alice")
	l.Record("LOGIN", "alice")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Len(t, records[0], 4)
	assert.NotEmpty(t, records[0][0], "entry id")
	assert.Equal(t, "REGISTER", records[0][1])
	assert.Equal(t, "alice", records[0][2])
	assert.NotEmpty(t, records[0][3], "timestamp")
	assert.Equal(t, "LOGIN", records[1][1])
}

func TestEmptyPathDisablesAuditing(t *testing.T) {
	logger := zerolog.Nop()
	l := New("", &logger)
	l.Record("REGISTER", "alice") // must not panic or create files
}

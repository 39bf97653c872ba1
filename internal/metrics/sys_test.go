package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestReporter_Health(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.db"), make([]byte, 2048), 0o600))

	h := NewReporter(pinger{}, dir).Health(context.Background())
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "2.0 kB", h.DataDiskSize)
	assert.Positive(t, h.Goroutines)
}

func TestReporter_Health_DatabaseDown(t *testing.T) {
	h := NewReporter(pinger{err: errors.New("database is closed")}, t.TempDir()).Health(context.Background())
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, "database is closed", h.Database)
	assert.Equal(t, "0 B", h.DataDiskSize)
}

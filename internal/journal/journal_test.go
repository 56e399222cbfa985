package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestJournal opens a journal in a temp dir and closes it at cleanup.
func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.RegisterReactor(ctx, "r1", "counter"))
	require.NoError(t, j.WriteCommit(ctx, "r1", 1, KindInitial, 0))
	require.NoError(t, j.Close())

	for i := 0; i < 3; i++ {
		j, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		entries, err := j.ReadEntries(ctx, "r1")
		require.NoError(t, err)
		assert.Len(t, entries, 1, "data survives reopen")
		j.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	j := createTestJournal(t)

	assert.NoError(t, j.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, j.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, j.verifyPragma("busy_timeout", "5000"))
	assert.Error(t, j.verifyPragma("foreign_keys", "0"))
}

func TestOpen_SchemaVersion(t *testing.T) {
	j := createTestJournal(t)

	v, err := j.schemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, v)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "journal.db"))
	assert.Error(t, err)
}

func TestClose_NilDB(t *testing.T) {
	var j Journal
	assert.NoError(t, j.Close())
}

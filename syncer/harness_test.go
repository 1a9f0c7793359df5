package syncer

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/fishman08/gainius-sub000/store"
)

// newTestEnv wires a local store, a durable queue and an engine over one
// in-memory SQLite database, the same single-file layout a device uses.
func newTestEnv(t *testing.T) (*store.SQLStore, *SQLiteQueue, *Engine) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// One connection so every statement sees the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	local, err := store.NewSQLStore(db)
	require.NoError(t, err)
	queue, err := NewSQLiteQueue(db)
	require.NoError(t, err)
	return local, queue, NewEngine(queue, nil)
}

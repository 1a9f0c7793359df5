package syncer

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func TestEnsureDeviceIDStableAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gainius.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	first, err := EnsureDeviceID(db)
	require.NoError(t, err)
	_, err = uuid.Parse(first)
	require.NoError(t, err, "device id is a UUID")

	again, err := EnsureDeviceID(db)
	require.NoError(t, err)
	require.Equal(t, first, again)
	require.NoError(t, db.Close())

	db, err = sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	reopened, err := EnsureDeviceID(db)
	require.NoError(t, err)
	require.Equal(t, first, reopened, "identity survives restart")
}

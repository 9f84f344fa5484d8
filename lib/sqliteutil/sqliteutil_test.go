package sqliteutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSchema = `CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT NOT NULL);`

func TestIsRemote(t *testing.T) {
	require.True(t, IsRemote("libsql://db.turso.io"))
	require.True(t, IsRemote("https://db.turso.io"))
	require.False(t, IsRemote("landmash.db"))
	require.False(t, IsRemote(":memory:"))
}

func TestOpenDB(t *testing.T) {
	_, err := OpenDB(testSchema, "")
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "nested", "landmash.db")
	db, err := OpenDB(testSchema, path)
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO kv (k, v) VALUES ('a', 'b')")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// reopening must not fail on the existing schema
	db, err = OpenDB(testSchema, path)
	require.NoError(t, err)
	defer db.Close()

	var v string
	require.NoError(t, db.QueryRow("SELECT v FROM kv WHERE k = 'a'").Scan(&v))
	require.Equal(t, "b", v)
}

package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floorcore/config"
)

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
}

func TestOpenSQLiteMigratesAndWrites(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	assert.Equal(t, "sqlite", db.Driver())
	assert.Equal(t, "sqlite", db.Dialect().Name())

	wc := &Workcenter{Code: "SAW-1", Name: "Saw line 1", Enabled: true}
	require.NoError(t, db.CreateWorkcenter(wc))
	require.NotZero(t, wc.ID)

	got, err := db.GetWorkcenter(wc.ID)
	require.NoError(t, err)
	assert.Equal(t, "SAW-1", got.Code)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t WHERE a=$1 AND b=$2", Rebind("SELECT * FROM t WHERE a=? AND b=?"))
	assert.Equal(t, "no placeholders", Rebind("no placeholders"))
}

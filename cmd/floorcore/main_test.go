package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"floorcore/config"
	"floorcore/store"
)

func TestAdminCredentials(t *testing.T) {
	u, p, err := adminCredentials("alice:s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", u)
	assert.Equal(t, "s3cret", p)

	for _, bad := range []string{"", "alice", "alice:", ":s3cret"} {
		_, _, err := adminCredentials(bad)
		assert.Error(t, err, bad)
	}
}

func TestAdminUserBootstrap(t *testing.T) {
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, db.CreateAdminUser("alice", string(hash)))

	user, err := db.GetAdminUser("alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret")))
}

package persistence

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewave/gatewave-go/pkg/wire"
)

func TestTokenStore(t *testing.T) {
	t.Run("SaveAndLoad", func(t *testing.T) {
		store := NewTokenStore(filepath.Join(t.TempDir(), "session.json"))

		session := &Session{
			Username:     "user@example.com",
			RefreshToken: "refresh-token-1",
			Endpoints: &wire.Endpoints{
				GraphQL: map[string]wire.EndpointPair{
					wire.ServiceDevice: {
						HTTPS: "https://api.gatewave.example/graphql",
						WSS:   "wss://feed.gatewave.example/graphql",
					},
				},
			},
		}
		require.NoError(t, store.Save(session))

		got, err := store.Load()
		require.NoError(t, err)
		require.NotNil(t, got)

		assert.Equal(t, SessionVersion, got.Version)
		assert.False(t, got.SavedAt.IsZero())
		assert.Equal(t, "user@example.com", got.Username)
		assert.Equal(t, "refresh-token-1", got.RefreshToken)

		require.NotNil(t, got.Endpoints)
		pair, err := got.Endpoints.Service(wire.ServiceDevice)
		require.NoError(t, err)
		assert.Equal(t, "wss://feed.gatewave.example/graphql", pair.WSS)
	})

	t.Run("LoadNonExistent", func(t *testing.T) {
		store := NewTokenStore(filepath.Join(t.TempDir(), "missing.json"))

		got, err := store.Load()
		require.NoError(t, err)
		assert.Nil(t, got, "missing file means no saved session")
	})

	t.Run("CreatesParentDirectories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "session.json")
		store := NewTokenStore(path)

		require.NoError(t, store.Save(&Session{RefreshToken: "tok"}))

		_, err := os.Stat(path)
		require.NoError(t, err)
	})

	t.Run("OwnerOnlyPermissions", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("file modes are not meaningful on windows")
		}
		path := filepath.Join(t.TempDir(), "session.json")
		store := NewTokenStore(path)

		require.NoError(t, store.Save(&Session{RefreshToken: "tok"}))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("SaveOverwrites", func(t *testing.T) {
		store := NewTokenStore(filepath.Join(t.TempDir(), "session.json"))

		require.NoError(t, store.Save(&Session{RefreshToken: "first"}))
		require.NoError(t, store.Save(&Session{RefreshToken: "second"}))

		got, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, "second", got.RefreshToken)
	})

	t.Run("SaveLeavesNoTempFiles", func(t *testing.T) {
		dir := t.TempDir()
		store := NewTokenStore(filepath.Join(dir, "session.json"))

		require.NoError(t, store.Save(&Session{RefreshToken: "tok"}))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "session.json", entries[0].Name())
	})

	t.Run("SavedAtPreserved", func(t *testing.T) {
		store := NewTokenStore(filepath.Join(t.TempDir(), "session.json"))

		saved := time.Date(2024, time.May, 1, 10, 0, 0, 0, time.UTC)
		require.NoError(t, store.Save(&Session{RefreshToken: "tok", SavedAt: saved}))

		got, err := store.Load()
		require.NoError(t, err)
		assert.True(t, got.SavedAt.Equal(saved))
	})

	t.Run("Clear", func(t *testing.T) {
		store := NewTokenStore(filepath.Join(t.TempDir(), "session.json"))

		require.NoError(t, store.Save(&Session{RefreshToken: "tok"}))
		require.NoError(t, store.Clear())

		got, err := store.Load()
		require.NoError(t, err)
		assert.Nil(t, got)

		// Clearing an already cleared store is not an error.
		require.NoError(t, store.Clear())
	})

	t.Run("LoadCorruptFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

		_, err := NewTokenStore(path).Load()
		assert.Error(t, err)
	})
}

package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gatewave/gatewave-go/pkg/wire"
)

// SessionVersion is the current version of the session file format.
const SessionVersion = 1

// Session is what survives between runs: enough to come back without a
// password prompt or a fresh endpoint lookup.
type Session struct {
	// Version is the session file format version.
	Version int `json:"version"`

	// SavedAt is when the session was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Username the refresh token was issued to.
	Username string `json:"username,omitempty"`

	// RefreshToken re-authenticates without the password.
	RefreshToken string `json:"refresh_token,omitempty"`

	// Endpoints is the cached service directory.
	Endpoints *wire.Endpoints `json:"endpoints,omitempty"`
}

// TokenStore manages persistence of a session to a JSON file.
type TokenStore struct {
	mu   sync.Mutex
	path string
}

// NewTokenStore creates a store backed by the given path. The file and any
// missing parent directories are created on first Save.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Save persists the session to disk with owner-only permissions.
func (s *TokenStore) Save(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	session.Version = SessionVersion
	if session.SavedAt.IsZero() {
		session.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}

	return writeFileAtomic(s.path, data, 0600)
}

// Load reads the session from disk.
// Returns nil, nil if the file doesn't exist (no saved session).
func (s *TokenStore) Load() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	session := &Session{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, err
	}

	return session, nil
}

// Clear removes the session file.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// writeFileAtomic writes through a temp file and rename, so a crash mid-write
// never leaves a truncated credential file behind.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// TokenStore persists the bearer token across restarts. The original system
// kept the token in two places (local storage plus a cookie for route
// gating) and every write site updated both by hand; here a single Save is
// the only writer and it updates both backing stores, so they cannot drift.
type TokenStore interface {
	// Save writes the token to every backing store.
	Save(token string) error
	// Load returns the persisted token, empty when none exists.
	Load() (string, error)
	// Clear removes the token from every backing store.
	Clear() error
}

// FileTokenStore stores the token in a primary file plus a mirror file read
// by the route-gating layer. Writes go through a temp file and rename so a
// crash never leaves a torn token behind.
type FileTokenStore struct {
	tokenPath  string
	mirrorPath string
}

// NewFileTokenStore creates a file-backed token store.
// If dir is empty, uses ~/.kitly/
func NewFileTokenStore(dir string) (*FileTokenStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".kitly")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create token directory: %w", err)
	}

	return &FileTokenStore{
		tokenPath:  filepath.Join(dir, "token"),
		mirrorPath: filepath.Join(dir, "token.cookie"),
	}, nil
}

// Save writes the token to both backing stores
func (s *FileTokenStore) Save(token string) error {
	if err := writeFileAtomic(s.tokenPath, []byte(token)); err != nil {
		return err
	}
	if err := writeFileAtomic(s.mirrorPath, []byte(token)); err != nil {
		// Keep the stores consistent: nothing or both
		os.Remove(s.tokenPath)
		return err
	}
	return nil
}

// Load reads the token from the primary store
func (s *FileTokenStore) Load() (string, error) {
	data, err := os.ReadFile(s.tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return string(data), nil
}

// Clear removes the token from both backing stores
func (s *FileTokenStore) Clear() error {
	if err := os.Remove(s.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	if err := os.Remove(s.mirrorPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token mirror: %w", err)
	}
	return nil
}

// writeFileAtomic writes via a temp file and rename
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save token: %w", err)
	}

	return nil
}

// MemoryTokenStore is an in-memory TokenStore for tests
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

func (s *MemoryTokenStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryTokenStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

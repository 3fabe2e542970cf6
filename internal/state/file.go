package state

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps one {userID}.json per user under dir. Writes are atomic
// (temp file, fsync, rename) and serialized per user by a keyed mutex, so a
// crash never leaves a half-written document and concurrent merges for one
// user cannot lose keys.
type FileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "estados"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// userLock returns the mutex for one user, creating it on first use.
func (s *FileStore) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *FileStore) path(userID string) (string, error) {
	name := sanitizeID(userID)
	if name == "" || name == "." || !filepath.IsLocal(name) {
		return "", os.ErrInvalid
	}
	return filepath.Join(s.dir, name+".json"), nil
}

// Get returns the stored document, or an empty map when the user has none.
// An unreadable or corrupt file is logged and treated as absent.
func (s *FileStore) Get(ctx context.Context, userID string) (map[string]any, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()
	return s.read(userID), nil
}

func (s *FileStore) read(userID string) map[string]any {
	path, err := s.path(userID)
	if err != nil {
		slog.Warn("invalid state user id", "user_id", userID)
		return map[string]any{}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("state read failed", "user_id", userID, "error", err)
		}
		return map[string]any{}
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		slog.Warn("state file corrupt", "user_id", userID, "error", err)
		return map[string]any{}
	}
	if data == nil {
		data = map[string]any{}
	}
	return data
}

// Put merges data into the user's document and writes it atomically.
func (s *FileStore) Put(ctx context.Context, userID string, data map[string]any) error {
	path, err := s.path(userID)
	if err != nil {
		return err
	}

	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	doc := merge(s.read(userID), data)
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: temp file → rename
	tmpFile, err := os.CreateTemp(s.dir, "state-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(raw); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

// Delete removes the user's document. Deleting an absent user is not an
// error.
func (s *FileStore) Delete(ctx context.Context, userID string) error {
	path, err := s.path(userID)
	if err != nil {
		return err
	}
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error { return nil }

func sanitizeID(userID string) string {
	r := strings.NewReplacer(":", "_", "/", "_", `\`, "_")
	return r.Replace(userID)
}

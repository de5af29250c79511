package intentcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const pendingFileName = "pending_signup.json"

// FileStore implements Store with file-backed storage, the durable equivalent
// of the browser's local storage. The pending-signup slot is one JSON file;
// sent-link markers are empty marker files keyed by lowercased email.
type FileStore struct {
	dataDir string
	mutex   sync.Mutex
}

// NewFileStore creates a new file-backed intent cache.
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{dataDir: dataDir}, nil
}

// Save overwrites the pending-signup slot with a fresh timestamp.
func (s *FileStore) Save(ctx context.Context, email, intent string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	pending := PendingSignup{
		Email:     email,
		Intent:    intent,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to marshal pending signup: %w", err)
	}

	tempFile := filepath.Join(s.dataDir, pendingFileName+".tmp")
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, filepath.Join(s.dataDir, pendingFileName)); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Take reads and atomically clears the slot. A corrupted record is treated as
// absent and deleted.
func (s *FileStore) Take(ctx context.Context) (*PendingSignup, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	filePath := filepath.Join(s.dataDir, pendingFileName)
	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pending signup: %w", err)
	}

	// Clear the slot regardless of what it held.
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to clear pending signup: %w", err)
	}

	var pending PendingSignup
	if err := json.Unmarshal(data, &pending); err != nil {
		// Fail safe, not loud: an unparsable record is as good as none.
		slog.Warn("Discarding corrupted pending signup record", "error", err)
		return nil, nil
	}

	return &pending, nil
}

// MarkSent flags that a confirmation link was sent to email.
func (s *FileStore) MarkSent(ctx context.Context, email string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return os.WriteFile(s.sentPath(email), []byte("1"), 0644)
}

// WasSent reports whether a confirmation link was already sent to email.
func (s *FileStore) WasSent(ctx context.Context, email string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := os.Stat(s.sentPath(email))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ClearSent removes the marker for email.
func (s *FileStore) ClearSent(ctx context.Context, email string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := os.Remove(s.sentPath(email)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *FileStore) sentPath(email string) string {
	// Lowercased email keys the marker; base64-free sanitizing keeps the
	// filename portable.
	key := strings.ToLower(email)
	key = strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(key)
	return filepath.Join(s.dataDir, "link_sent_"+key)
}

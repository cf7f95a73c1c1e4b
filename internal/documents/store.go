// Package documents stores submission evidence. A stored document is
// addressed by an opaque reference of the form "<scheme>://<location>".
package documents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store persists evidence files.
type Store interface {
	// Store writes data under key and returns the document reference.
	Store(ctx context.Context, key string, data []byte) (string, error)
	// Get reads a document by the reference Store returned.
	Get(ctx context.Context, ref string) ([]byte, error)
}

const fileScheme = "fs://"

// FileStore keeps documents under a base directory on local disk.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a document store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure document dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) Store(_ context.Context, key string, data []byte) (string, error) {
	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create document dir: %w", err)
	}

	// Write to temp, then rename
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to commit document: %w", err)
	}
	return fileScheme + filepath.ToSlash(key), nil
}

func (s *FileStore) Get(_ context.Context, ref string) ([]byte, error) {
	key, ok := strings.CutPrefix(ref, fileScheme)
	if !ok {
		return nil, fmt.Errorf("not a file document reference: %s", ref)
	}
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", ref, err)
	}
	return data, nil
}

// resolve maps a key into baseDir, refusing keys that escape it.
func (s *FileStore) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid document key: %q", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

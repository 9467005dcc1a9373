// Package checkpoint persists the index of the last finalized source row.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	apperrors "animebot/backend/pkg/errors"
)

// FileStore keeps the checkpoint as a single decimal integer in a file.
// Saved values never decrease.
type FileStore struct {
	path string

	mu   sync.Mutex
	last int64
}

// NewFileStore creates a store for path. The file is not touched until Init
// or Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the checkpoint file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the saved index, or 0 when no checkpoint exists.
func (s *FileStore) Load() (int64, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read checkpoint %s: %w", s.path, err)
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return 0, nil
	}
	index, err := strconv.ParseInt(text, 10, 64)
	if err != nil || index < 0 {
		return 0, fmt.Errorf("checkpoint %s holds %q, want a non-negative integer", s.path, text)
	}

	s.mu.Lock()
	if index > s.last {
		s.last = index
	}
	s.mu.Unlock()
	return index, nil
}

// Init loads the checkpoint and, on a first run, creates the file at 0.
func (s *FileStore) Init() (int64, error) {
	index, err := s.Load()
	if err != nil {
		return 0, err
	}
	if _, err := os.Stat(s.path); !errors.Is(err, os.ErrNotExist) {
		return index, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(0); err != nil {
		return 0, apperrors.NewCheckpointWriteError(s.path, 0, err)
	}
	return 0, nil
}

// Save durably records index. A value at or below the last saved one is
// ignored. The file is replaced atomically, so a crash leaves either the old
// or the new value.
func (s *FileStore) Save(index int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index <= s.last {
		return nil
	}
	if err := s.write(index); err != nil {
		return apperrors.NewCheckpointWriteError(s.path, index, err)
	}
	s.last = index
	return nil
}

func (s *FileStore) write(index int64) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.WriteString(strconv.FormatInt(index, 10) + "\n"); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return err
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}
	return nil
}

// Reset removes the checkpoint so the next run starts from the first row.
func (s *FileStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint %s: %w", s.path, err)
	}
	s.last = 0
	return nil
}

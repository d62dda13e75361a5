// Package checkpoint persists the titles that have been fully synchronized so
// an interrupted batch resumes where it stopped.
package checkpoint

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gofrs/flock"

	"github.com/drallgood/anilist-bookmark-sync/internal/logger"
	"github.com/drallgood/anilist-bookmark-sync/internal/util"
)

// DefaultFile is the default checkpoint path
const DefaultFile = "progress.txt"

// ErrLocked is returned by Lock when another process holds the checkpoint
var ErrLocked = errors.New("checkpoint is locked by another process")

// Store reads and writes the checkpoint file: one title per line
type Store struct {
	path   string
	lock   *flock.Flock
	logger *logger.Logger
}

// NewStore creates a store for path
func NewStore(path string, log *logger.Logger) *Store {
	if path == "" {
		path = DefaultFile
	}
	if log == nil {
		log = logger.Get()
	}

	return &Store{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: log.With(map[string]interface{}{"component": "checkpoint"}),
	}
}

// Path returns the checkpoint file path
func (s *Store) Path() string {
	return s.path
}

// Load reads the checkpoint. A missing file is an empty set.
func (s *Store) Load() (*Set, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("No checkpoint found, starting fresh", map[string]interface{}{
				"path": s.path,
			})
			return NewSet(), nil
		}
		return nil, fmt.Errorf("failed to read checkpoint %q: %w", s.path, err)
	}

	set := NewSet()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if title := strings.TrimSpace(scanner.Text()); title != "" {
			set.Add(title)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %q: %w", s.path, err)
	}

	s.logger.Info("Checkpoint loaded", map[string]interface{}{
		"path":   s.path,
		"titles": set.Len(),
	})
	return set, nil
}

// Persist rewrites the checkpoint with the full set
func (s *Store) Persist(set *Set) error {
	var buf bytes.Buffer
	for _, title := range set.Titles() {
		buf.WriteString(title)
		buf.WriteByte('\n')
	}

	if err := util.WriteFileAtomic(s.path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to persist checkpoint: %w", err)
	}

	s.logger.Debug("Checkpoint persisted", map[string]interface{}{
		"path":   s.path,
		"titles": set.Len(),
	})
	return nil
}

// Lock takes an exclusive lock on the checkpoint without blocking
func (s *Store) Lock() error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire checkpoint lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLocked, s.lock.Path())
	}
	return nil
}

// Unlock releases the lock taken by Lock
func (s *Store) Unlock() error {
	if err := s.lock.Unlock(); err != nil {
		return fmt.Errorf("release checkpoint lock: %w", err)
	}
	return nil
}

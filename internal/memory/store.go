// Package memory keeps the rolling per-user prompt history.
//
// The whole mapping lives in memory and is written to a single JSON file
// ({"<user id>": ["prompt", ...]}) after every mutation. Writes go to a
// temporary file in the same directory which is then renamed over the
// target, so a crash never leaves a half-written history behind.
package memory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// History maps a user id to that user's prompts, oldest first.
type History map[string][]string

// Store owns the history mapping and its backing file.
type Store struct {
	path    string
	logger  *slog.Logger
	mu      sync.Mutex
	history History
}

// Open loads the history file at path. A missing or empty file yields an
// empty history; unparseable content is returned as a *StorageError.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		path:    path,
		logger:  log.With(slog.String("component", "memory")),
		history: History{},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.logger.Info("history loaded", slog.String("path", path), slog.Int("users", len(s.history)))
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &StorageError{Op: "load", Path: s.path, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var history History
	if err := json.Unmarshal(data, &history); err != nil {
		return &StorageError{Op: "load", Path: s.path, Err: err}
	}
	for user, prompts := range history {
		if prompts == nil {
			delete(history, user)
		}
	}
	if history != nil {
		s.history = history
	}
	return nil
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the user's prompts; unknown users get an empty slice.
func (s *Store) Get(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prompts := s.history[userID]
	out := make([]string, len(prompts))
	copy(out, prompts)
	return out
}

// Users returns every user id with stored history, sorted.
func (s *Store) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.history))
	for user := range s.history {
		users = append(users, user)
	}
	sort.Strings(users)
	return users
}

// Append adds prompt to the user's history, drops the oldest entries while
// the history is longer than limit, and persists the whole mapping.
// A limit below 1 is treated as 1.
func (s *Store) Append(userID, prompt string, limit int) error {
	if limit < 1 {
		limit = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.history[userID]
	prompts := make([]string, 0, len(current)+1)
	prompts = append(prompts, current...)
	prompts = append(prompts, prompt)
	if over := len(prompts) - limit; over > 0 {
		prompts = prompts[over:]
	}
	next := s.history.clone()
	next[userID] = prompts
	return s.commitLocked(next)
}

// Clear removes the user's history and persists the mapping.
func (s *Store) Clear(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.history[userID]; !ok {
		return nil
	}
	next := s.history.clone()
	delete(next, userID)
	return s.commitLocked(next)
}

// Writable checks that the history directory accepts new files.
func (s *Store) Writable() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}
	f, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// commitLocked persists next and only then makes it the in-memory state, so a
// failed write leaves Get answering from what is on disk.
func (s *Store) commitLocked(next History) error {
	if err := writeFileAtomic(s.path, next); err != nil {
		s.logger.Error("history save failed", slog.String("path", s.path), slog.Any("error", err))
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}
	s.history = next
	return nil
}

// clone copies the mapping. Prompt slices are shared; they are never
// modified in place.
func (h History) clone() History {
	out := make(History, len(h)+1)
	for k, v := range h {
		out[k] = v
	}
	return out
}

func writeFileAtomic(path string, history History) error {
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
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
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

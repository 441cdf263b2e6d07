// Package fallback implements the synchronous, quota-limited key/value store
// Inkwell uses when no durable backend is available. The same store format
// is what older Inkwell releases wrote everything to, so it doubles as the
// legacy source for migration.
//
// Every mutation is applied to memory and then flushed to a JSON file
// before the call returns. An empty path keeps the store in memory only.
package fallback

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klubi/inkwell/internal/store"
)

// DefaultQuotaBytes mirrors the usual 5 MiB browser localStorage budget.
const DefaultQuotaBytes = 5 << 20

// ErrQuotaExceeded is returned when a write would push the store past its
// quota. It wraps store.ErrQuotaExceeded.
var ErrQuotaExceeded = fmt.Errorf("local storage is full; delete unused projects or images to free space: %w", store.ErrQuotaExceeded)

// Store is a thread-safe synchronous key/value store.
type Store struct {
	mu    sync.RWMutex
	path  string
	quota int
	data  map[string]string
	used  int
}

// Open loads the store at path, creating an empty one if the file does not
// exist. A quota of zero or less means DefaultQuotaBytes.
func Open(path string, quota int) (*Store, error) {
	if quota <= 0 {
		quota = DefaultQuotaBytes
	}
	s := &Store{
		path:  path,
		quota: quota,
		data:  make(map[string]string),
	}
	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	}
	for k, v := range s.data {
		s.used += len(k) + len(v)
	}
	return s, nil
}

// NewMemory returns a store that never touches disk.
func NewMemory(quota int) *Store {
	s, _ := Open("", quota)
	return s
}

// GetItem returns the value stored at key.
func (s *Store) GetItem(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// SetItem stores value at key and flushes to disk. It returns
// ErrQuotaExceeded, leaving the store unchanged, when the write does not fit.
func (s *Store) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, existed := s.data[key]
	delta := len(key) + len(value)
	if existed {
		delta -= len(key) + len(old)
	}
	if delta > 0 && s.used+delta > s.quota {
		return ErrQuotaExceeded
	}

	s.data[key] = value
	s.used += delta
	if err := s.flush(); err != nil {
		if existed {
			s.data[key] = old
		} else {
			delete(s.data, key)
		}
		s.used -= delta
		return err
	}
	return nil
}

// RemoveItem deletes key. Removing an absent key is a no-op.
func (s *Store) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.data[key]
	if !ok {
		return nil
	}
	delete(s.data, key)
	s.used -= len(key) + len(old)
	return s.flush()
}

// Clear deletes every key.
func (s *Store) Clear() error {
	return s.ClearPrefix("")
}

// ClearPrefix deletes every key starting with prefix.
func (s *Store) ClearPrefix(prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			s.used -= len(k) + len(v)
		}
	}
	return s.flush()
}

// Keys returns the sorted keys starting with prefix.
func (s *Store) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// UsedBytes returns the key plus value bytes counted against the quota.
func (s *Store) UsedBytes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

// flush writes the whole map to disk through a temp file and rename so a
// crash never leaves a torn file. Must be called with s.mu held.
func (s *Store) flush() error {
	if s.path == "" {
		return nil
	}
	raw, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(s.path), err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

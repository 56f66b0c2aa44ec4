// Package localstore keeps small string values on the current device, the
// way a browser keeps localStorage.
package localstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/natefinch/atomic"

	"multisigcheck/internal/utils"
)

// FileName is the state file created inside the state directory.
const FileName = "local_state.json"

// Store is a key/value map mirrored to a JSON file. Every write rewrites the
// file atomically, so a crash never leaves a half-written state file.
type Store struct {
	filePath string
	mu       sync.RWMutex
	data     map[string]string
}

// Open loads dir/local_state.json, creating dir if needed. A missing file is an
// empty store; an undecodable file is a KindMalformed error.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	s := &Store{
		filePath: filepath.Join(dir, FileName),
		data:     map[string]string{},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemory returns a store that is never written to disk.
func NewMemory() *Store {
	return &Store{data: map[string]string{}}
}

// Path is the backing file, empty for memory stores.
func (s *Store) Path() string { return s.filePath }

// Get returns the value stored under key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores value under key and persists the whole map.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.data[key]
	s.data[key] = value
	if err := s.flush(); err != nil {
		if had {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.data[key]
	if !had {
		return nil
	}
	delete(s.data, key)
	if err := s.flush(); err != nil {
		s.data[key] = prev
		return err
	}
	return nil
}

// Keys lists stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read local state: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.data); err != nil {
		return utils.Wrap(utils.KindMalformed, "load local state", err)
	}
	if s.data == nil {
		s.data = map[string]string{}
	}
	return nil
}

// flush must be called with mu held.
func (s *Store) flush() error {
	if s.filePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(s.filePath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write local state: %w", err)
	}
	return nil
}

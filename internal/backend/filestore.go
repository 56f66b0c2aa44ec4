package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"multisigcheck/internal/remote"
)

const (
	reportsDir = "reports"
	usersDir   = "users"
)

// FileStorage keeps one JSON file per record. With a seal key, records are
// written as AES-GCM sealed ".json.enc" files bound to their path.
type FileStorage struct {
	dir string
	key []byte
	mu  sync.Mutex
}

func OpenFileStorage(dir string, sealKey []byte) (*FileStorage, error) {
	if dir == "" {
		return nil, errors.New("storage directory is required")
	}
	if sealKey != nil && len(sealKey) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	for _, sub := range []string{reportsDir, usersDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o700); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	return &FileStorage{dir: dir, key: sealKey}, nil
}

func (s *FileStorage) Close() error { return nil }

func (s *FileStorage) CreateReport(_ context.Context, r remote.Report) error {
	if err := validateReport(&r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exists(reportsDir, r.ID) {
		return ErrConflict
	}
	return s.write(reportsDir, r.ID, r)
}

func (s *FileStorage) GetReport(_ context.Context, id string) (*remote.Report, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var r remote.Report
	if err := s.read(reportsDir, id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *FileStorage) PutUserChecklist(_ context.Context, c remote.UserChecklist) error {
	if !validID(c.UserID) {
		return fmt.Errorf("%w: bad user id", ErrInvalid)
	}
	if c.CompletedItems == nil {
		c.CompletedItems = []string{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(usersDir, c.UserID, c)
}

func (s *FileStorage) GetUserChecklist(_ context.Context, userID string) (*remote.UserChecklist, error) {
	if !validID(userID) {
		return nil, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var c remote.UserChecklist
	if err := s.read(usersDir, userID, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *FileStorage) path(kind, id string, sealed bool) string {
	name := id + ".json"
	if sealed {
		name += ".enc"
	}
	return filepath.Join(s.dir, kind, name)
}

func (s *FileStorage) exists(kind, id string) bool {
	for _, sealed := range []bool{true, false} {
		if _, err := os.Stat(s.path(kind, id, sealed)); err == nil {
			return true
		}
	}
	return false
}

func associatedData(kind, id string) []byte { return []byte(kind + "/" + id) }

func (s *FileStorage) write(kind, id string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	sealed := s.key != nil
	if sealed {
		if data, err = EncryptAESGCM(s.key, data, associatedData(kind, id)); err != nil {
			return fmt.Errorf("seal %s/%s: %w", kind, id, err)
		}
	}
	if err := atomic.WriteFile(s.path(kind, id, sealed), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s/%s: %w", kind, id, err)
	}
	// A record rewritten in the other format must not leave a stale twin.
	_ = os.Remove(s.path(kind, id, !sealed))
	return nil
}

// read prefers the sealed file and falls back to plaintext, so records
// written before a key was configured stay readable.
func (s *FileStorage) read(kind, id string, out any) error {
	blob, err := os.ReadFile(s.path(kind, id, true))
	sealed := err == nil
	if errors.Is(err, fs.ErrNotExist) {
		blob, err = os.ReadFile(s.path(kind, id, false))
	}
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s/%s: %w", kind, id, err)
	}
	if sealed {
		if s.key == nil {
			return fmt.Errorf("read %s/%s: record is sealed but no key is configured", kind, id)
		}
		if blob, err = DecryptAESGCM(s.key, blob, associatedData(kind, id)); err != nil {
			return fmt.Errorf("open %s/%s: %w", kind, id, err)
		}
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("decode %s/%s: %w", kind, id, err)
	}
	return nil
}

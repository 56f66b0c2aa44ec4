// Package backend is the HTTP service behind shared reports and per-user
// checklist sync.
package backend

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"multisigcheck/internal/remote"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
	ErrInvalid  = errors.New("invalid record")
)

// Storage persists reports and user checklists. Reports are write-once.
type Storage interface {
	CreateReport(ctx context.Context, r remote.Report) error
	GetReport(ctx context.Context, id string) (*remote.Report, error)
	PutUserChecklist(ctx context.Context, c remote.UserChecklist) error
	GetUserChecklist(ctx context.Context, userID string) (*remote.UserChecklist, error)
	Close() error
}

// Storage drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// OpenStorage opens the named driver. path is a directory for the file driver
// and a database file for sqlite. sealKey, when set, encrypts file records.
func OpenStorage(driver, path string, sealKey []byte) (Storage, error) {
	switch driver {
	case DriverFile, "":
		return OpenFileStorage(path, sealKey)
	case DriverSQLite:
		return OpenSQLiteStorage(path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

func validID(id string) bool { return idPattern.MatchString(id) }

func validateReport(r *remote.Report) error {
	r.Name = strings.TrimSpace(r.Name)
	if !validID(r.ID) {
		return fmt.Errorf("%w: bad report id", ErrInvalid)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if r.CompletedItems == nil {
		r.CompletedItems = []string{}
	}
	return nil
}

package backend

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"multisigcheck/internal/remote"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStorage persists reports and user checklists in SQLite.
type SQLiteStorage struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLiteStorage opens the database at path and creates missing tables.
func OpenSQLiteStorage(path string) (*SQLiteStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStorage{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStorage) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStorage) CreateReport(ctx context.Context, r remote.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateReport(&r); err != nil {
		return err
	}
	items, err := json.Marshal(r.CompletedItems)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO multisig_reports (id, name, completed_items, profile, reviewer, transaction_hash, catalog_version, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, string(items), r.Profile, r.Reviewer, r.TransactionHash, r.Version, toMillis(r.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetReport(ctx context.Context, id string) (*remote.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, completed_items, profile, reviewer, transaction_hash, catalog_version, created_at
FROM multisig_reports WHERE id = ?`, id)

	var (
		r         remote.Report
		items     string
		createdAt int64
	)
	if err := row.Scan(&r.ID, &r.Name, &items, &r.Profile, &r.Reviewer, &r.TransactionHash, &r.Version, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	if err := json.Unmarshal([]byte(items), &r.CompletedItems); err != nil {
		return nil, fmt.Errorf("decode report items: %w", err)
	}
	r.CreatedAt = fromMillis(createdAt)
	return &r, nil
}

func (s *SQLiteStorage) PutUserChecklist(ctx context.Context, c remote.UserChecklist) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validID(c.UserID) {
		return fmt.Errorf("%w: bad user id", ErrInvalid)
	}
	if c.CompletedItems == nil {
		c.CompletedItems = []string{}
	}
	items, err := json.Marshal(c.CompletedItems)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO user_checklists (user_id, completed_items, profile, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
    completed_items = excluded.completed_items,
    profile = excluded.profile,
    updated_at = excluded.updated_at`,
		c.UserID, string(items), c.Profile, toMillis(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put user checklist: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetUserChecklist(ctx context.Context, userID string) (*remote.UserChecklist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT user_id, completed_items, profile, updated_at
FROM user_checklists WHERE user_id = ?`, userID)

	var (
		c         remote.UserChecklist
		items     string
		updatedAt int64
	)
	if err := row.Scan(&c.UserID, &items, &c.Profile, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user checklist: %w", err)
	}
	if err := json.Unmarshal([]byte(items), &c.CompletedItems); err != nil {
		return nil, fmt.Errorf("decode user checklist items: %w", err)
	}
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
		return true
	default:
		return false
	}
}

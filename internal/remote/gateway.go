// Package remote is the client side of the backend that stores shared reports
// and per-user checklist state.
package remote

import (
	"context"
	"time"

	"multisigcheck/internal/utils"
)

var (
	// ErrNotFound is returned when a report or user record does not exist.
	ErrNotFound = utils.New(utils.KindNotFound, "remote", "record not found")
	// ErrNotConfigured is returned by operations that need a backend when none is set up.
	ErrNotConfigured = utils.New(utils.KindNotConfigured, "remote", "remote storage is not configured")
	// ErrConflict is returned when a report id is already taken.
	ErrConflict = utils.New(utils.KindRemote, "remote", "report id already exists")
)

// Report is an immutable shared snapshot of a checklist.
type Report struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	CompletedItems  []string  `json:"completeditems"`
	Profile         string    `json:"profile"`
	Reviewer        string    `json:"reviewer,omitempty"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	Version         string    `json:"version,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// UserChecklist is the per-account copy of a user's progress.
type UserChecklist struct {
	UserID         string    `json:"user_id"`
	CompletedItems []string  `json:"completeditems"`
	Profile        string    `json:"profile"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Gateway is the logical contract the checklist core consumes.
type Gateway interface {
	// Configured reports whether a backend is available at all.
	Configured() bool
	// CreateReport stores r under r.ID and returns the id.
	CreateReport(ctx context.Context, r Report) (string, error)
	// GetReportByID returns ErrNotFound for unknown ids.
	GetReportByID(ctx context.Context, id string) (*Report, error)
	// SaveUserChecklist upserts the record keyed by userID.
	SaveUserChecklist(ctx context.Context, userID string, completed []string, profile string) error
	// GetUserChecklist returns ErrNotFound when the user has no record.
	GetUserChecklist(ctx context.Context, userID string) (*UserChecklist, error)
}

// Disabled is the gateway used when no backend is configured. Reads resolve
// to not-found, saves are no-ops and report creation fails.
type Disabled struct{}

func (Disabled) Configured() bool { return false }

func (Disabled) CreateReport(context.Context, Report) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) GetReportByID(context.Context, string) (*Report, error) {
	return nil, ErrNotFound
}

func (Disabled) SaveUserChecklist(context.Context, string, []string, string) error {
	return nil
}

func (Disabled) GetUserChecklist(context.Context, string) (*UserChecklist, error) {
	return nil, ErrNotFound
}

// Package stores provides persistence for image test run history.
package stores

import (
	"context"
	"time"
)

// RunStatus represents the status of an image test run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run represents one image's test run.
type Run struct {
	ID          string     `json:"id"`
	Image       string     `json:"image"`
	Zones       string     `json:"zones"` // JSON array of zone names
	Status      RunStatus  `json:"status"`
	Passes      int        `json:"passes"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Attempt represents a single deployment attempt within a run.
type Attempt struct {
	ID          int64     `json:"id"`
	RunID       string    `json:"run_id"`
	Zone        string    `json:"zone"`
	Pass        int       `json:"pass"`
	Deployment  string    `json:"deployment"`
	Outcome     string    `json:"outcome"`
	RawError    *string   `json:"raw_error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Store defines the interface for the run-history persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	FinishRun(ctx context.Context, id string, status RunStatus, passes int, errText *string, completedAt time.Time) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)

	// Attempt operations
	AppendAttempt(ctx context.Context, attempt *Attempt) error
	ListAttemptsByRun(ctx context.Context, runID string) ([]*Attempt, error)

	// Utility
	HealthCheck(ctx context.Context) error
}

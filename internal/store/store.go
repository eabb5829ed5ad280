// Package store persists run records. Two backends are provided: SQLite
// for single-machine use and Postgres for shared deployments.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/scriptify-labs/worker-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	JobType string          `json:"job_type,omitempty"`
	Status  model.RunStatus `json:"status,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for runs.
type Store interface {
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// UpdateRunStatus moves a run between non-terminal states.
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error

	// MarkRunStarted records the transition to STARTED with its timestamp.
	MarkRunStarted(ctx context.Context, runID string, at time.Time) error

	// FinishRun records a terminal state with result or error and the
	// finish timestamp.
	FinishRun(ctx context.Context, runID string, status model.RunStatus, result json.RawMessage, errMsg string, at time.Time) error

	// CountByStatus returns run counts grouped by status.
	CountByStatus(ctx context.Context) (map[model.RunStatus]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Pool is the subset of pgxpool.Pool the postgres store uses. pgxmock
// implements the same set, which is what makes the store testable without
// a server.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

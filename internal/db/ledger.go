package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Stage statuses
const (
	StageStatusCompleted = "completed"
	StageStatusFailed    = "failed"
	StageStatusSkipped   = "skipped"
)

// Run is one pipeline execution
type Run struct {
	ID               uuid.UUID      `json:"id"`
	Status           string         `json:"status"`
	BenchmarkVersion string         `json:"benchmark_version"`
	Parameters       map[string]any `json:"parameters,omitempty"`
	ErrorMessage     *string        `json:"error_message,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// StageRecord is the outcome of one pipeline stage
type StageRecord struct {
	Stage        string    `json:"stage"`
	Category     string    `json:"category"`
	Status       string    `json:"status"`
	DurationMs   int64     `json:"duration_ms"`
	Rows         int       `json:"rows"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// ArtifactRecord points at a published artifact
type ArtifactRecord struct {
	Name      string    `json:"name"`
	URI       string    `json:"uri"`
	SHA256    string    `json:"sha256"`
	Size      int64     `json:"size"`
	Rows      int       `json:"rows"`
	CreatedAt time.Time `json:"created_at"`
}

// RunLedger records runs, their stages and their published artifacts.
// DB (Postgres) and SQLite implement it.
type RunLedger interface {
	StartRun(ctx context.Context, runID uuid.UUID, benchmarkVersion string, params map[string]any) error
	RecordStage(ctx context.Context, runID uuid.UUID, stage StageRecord) error
	RecordArtifacts(ctx context.Context, runID uuid.UUID, artifacts []ArtifactRecord) error
	CompleteRun(ctx context.Context, runID uuid.UUID, status string, errorMessage *string) error
	GetRun(ctx context.Context, runID uuid.UUID) (*Run, error)
	ListStages(ctx context.Context, runID uuid.UUID) ([]StageRecord, error)
	ListArtifacts(ctx context.Context, runID uuid.UUID) ([]ArtifactRecord, error)
	Close() error
}

// schemaStatements create the ledger tables. The DDL is portable between
// Postgres and SQLite.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS pipeline_runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		benchmark_version TEXT NOT NULL,
		parameters TEXT,
		error_message TEXT,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS run_stages (
		run_id TEXT NOT NULL REFERENCES pipeline_runs(id),
		stage TEXT NOT NULL,
		category TEXT NOT NULL,
		status TEXT NOT NULL,
		duration_ms BIGINT NOT NULL,
		rows_out INTEGER NOT NULL,
		error_message TEXT,
		recorded_at TIMESTAMP NOT NULL,
		PRIMARY KEY (run_id, stage)
	)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		run_id TEXT NOT NULL REFERENCES pipeline_runs(id),
		name TEXT NOT NULL,
		uri TEXT NOT NULL,
		sha256 TEXT NOT NULL,
		size_bytes BIGINT NOT NULL,
		rows_out INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (run_id, name)
	)`,
}

// Package db provides the run ledger: PostgreSQL (pgx) and SQLite stores that
// record pipeline runs, stage outcomes and published artifacts.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

var _ RunLedger = (*DB)(nil)

// Connect establishes a connection pool to the database and creates the
// ledger tables if needed
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate ledger: %w", err)
		}
	}
	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

// StartRun creates a pipeline run record in the running state
func (db *DB) StartRun(ctx context.Context, runID uuid.UUID, benchmarkVersion string, params map[string]any) error {
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return err
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, status, benchmark_version, parameters, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		runID.String(), RunStatusRunning, benchmarkVersion, paramsJSON, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// RecordStage upserts the outcome of a stage
func (db *DB) RecordStage(ctx context.Context, runID uuid.UUID, stage StageRecord) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO run_stages (run_id, stage, category, status, duration_ms, rows_out, error_message, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (run_id, stage) DO UPDATE SET
		   category = excluded.category, status = excluded.status, duration_ms = excluded.duration_ms,
		   rows_out = excluded.rows_out, error_message = excluded.error_message, recorded_at = excluded.recorded_at`,
		runID.String(), stage.Stage, stage.Category, stage.Status, stage.DurationMs, stage.Rows, stage.ErrorMessage, stampOf(stage.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record stage %s: %w", stage.Stage, err)
	}
	return nil
}

// RecordArtifacts upserts the published artifacts of a run in one transaction
func (db *DB) RecordArtifacts(ctx context.Context, runID uuid.UUID, artifacts []ArtifactRecord) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, a := range artifacts {
		_, err := tx.Exec(ctx,
			`INSERT INTO artifacts (run_id, name, uri, sha256, size_bytes, rows_out, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (run_id, name) DO UPDATE SET
			   uri = excluded.uri, sha256 = excluded.sha256, size_bytes = excluded.size_bytes,
			   rows_out = excluded.rows_out, created_at = excluded.created_at`,
			runID.String(), a.Name, a.URI, a.SHA256, a.Size, a.Rows, stampOf(a.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to save artifact %s: %w", a.Name, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit artifacts: %w", err)
	}
	return nil
}

// CompleteRun marks a pipeline run as finished with status
func (db *DB) CompleteRun(ctx context.Context, runID uuid.UUID, status string, errorMessage *string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, error_message = $2, completed_at = $3 WHERE id = $4`,
		status, errorMessage, time.Now().UTC(), runID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// GetRun retrieves a run by ID. It returns nil, nil when the run does not exist.
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	var run Run
	var id string
	var paramsJSON *string
	err := db.pool.QueryRow(ctx,
		`SELECT id, status, benchmark_version, parameters, error_message, started_at, completed_at
		 FROM pipeline_runs WHERE id = $1`,
		runID.String(),
	).Scan(&id, &run.Status, &run.BenchmarkVersion, &paramsJSON, &run.ErrorMessage, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	run.Parameters = unmarshalParams(paramsJSON)
	return &run, nil
}

// ListStages returns the recorded stages of a run in recording order
func (db *DB) ListStages(ctx context.Context, runID uuid.UUID) ([]StageRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT stage, category, status, duration_ms, rows_out, error_message, recorded_at
		 FROM run_stages WHERE run_id = $1 ORDER BY recorded_at, stage`,
		runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	var out []StageRecord
	for rows.Next() {
		var s StageRecord
		if err := rows.Scan(&s.Stage, &s.Category, &s.Status, &s.DurationMs, &s.Rows, &s.ErrorMessage, &s.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListArtifacts returns the artifacts of a run ordered by name
func (db *DB) ListArtifacts(ctx context.Context, runID uuid.UUID) ([]ArtifactRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT name, uri, sha256, size_bytes, rows_out, created_at
		 FROM artifacts WHERE run_id = $1 ORDER BY name`,
		runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var out []ArtifactRecord
	for rows.Next() {
		var a ArtifactRecord
		if err := rows.Scan(&a.Name, &a.URI, &a.SHA256, &a.Size, &a.Rows, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func marshalParams(params map[string]any) (*string, error) {
	if params == nil {
		return nil, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parameters: %w", err)
	}
	s := string(b)
	return &s, nil
}

func unmarshalParams(s *string) map[string]any {
	if s == nil {
		return nil
	}
	var out map[string]any
	_ = json.Unmarshal([]byte(*s), &out)
	return out
}

func stampOf(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

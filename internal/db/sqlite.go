package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLite is a file-backed run ledger for single-host runs
type SQLite struct {
	db   *sql.DB
	path string
}

var _ RunLedger = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the ledger database at path
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite ledger path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite ledger: %w", err)
	}
	// One writer; the ledger is appended to from the pipeline goroutine only.
	db.SetMaxOpenConns(1)

	for _, stmt := range append([]string{"PRAGMA foreign_keys = ON"}, schemaStatements...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate ledger: %w", err)
		}
	}
	return &SQLite{db: db, path: path}, nil
}

// Path returns the database file path
func (s *SQLite) Path() string { return s.path }

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

// StartRun creates a pipeline run record in the running state
func (s *SQLite) StartRun(ctx context.Context, runID uuid.UUID, benchmarkVersion string, params map[string]any) error {
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, status, benchmark_version, parameters, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		runID.String(), RunStatusRunning, benchmarkVersion, paramsJSON, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// RecordStage upserts the outcome of a stage
func (s *SQLite) RecordStage(ctx context.Context, runID uuid.UUID, stage StageRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_stages (run_id, stage, category, status, duration_ms, rows_out, error_message, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
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
func (s *SQLite) RecordArtifacts(ctx context.Context, runID uuid.UUID, artifacts []ArtifactRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, a := range artifacts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO artifacts (run_id, name, uri, sha256, size_bytes, rows_out, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (run_id, name) DO UPDATE SET
			   uri = excluded.uri, sha256 = excluded.sha256, size_bytes = excluded.size_bytes,
			   rows_out = excluded.rows_out, created_at = excluded.created_at`,
			runID.String(), a.Name, a.URI, a.SHA256, a.Size, a.Rows, stampOf(a.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to save artifact %s: %w", a.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit artifacts: %w", err)
	}
	return nil
}

// CompleteRun marks a pipeline run as finished with status
func (s *SQLite) CompleteRun(ctx context.Context, runID uuid.UUID, status string, errorMessage *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		status, errorMessage, time.Now().UTC(), runID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// GetRun retrieves a run by ID. It returns nil, nil when the run does not exist.
func (s *SQLite) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	var run Run
	var id string
	var paramsJSON, errMsg sql.NullString
	var completed sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, benchmark_version, parameters, error_message, started_at, completed_at
		 FROM pipeline_runs WHERE id = ?`,
		runID.String(),
	).Scan(&id, &run.Status, &run.BenchmarkVersion, &paramsJSON, &errMsg, &run.StartedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	if paramsJSON.Valid {
		run.Parameters = unmarshalParams(&paramsJSON.String)
	}
	if errMsg.Valid {
		run.ErrorMessage = &errMsg.String
	}
	if completed.Valid {
		run.CompletedAt = &completed.Time
	}
	return &run, nil
}

// ListStages returns the recorded stages of a run in recording order
func (s *SQLite) ListStages(ctx context.Context, runID uuid.UUID) ([]StageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, category, status, duration_ms, rows_out, error_message, recorded_at
		 FROM run_stages WHERE run_id = ? ORDER BY recorded_at, stage`,
		runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	var out []StageRecord
	for rows.Next() {
		var st StageRecord
		var errMsg sql.NullString
		if err := rows.Scan(&st.Stage, &st.Category, &st.Status, &st.DurationMs, &st.Rows, &errMsg, &st.RecordedAt); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			st.ErrorMessage = &errMsg.String
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListArtifacts returns the artifacts of a run ordered by name
func (s *SQLite) ListArtifacts(ctx context.Context, runID uuid.UUID) ([]ArtifactRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, uri, sha256, size_bytes, rows_out, created_at
		 FROM artifacts WHERE run_id = ? ORDER BY name`,
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

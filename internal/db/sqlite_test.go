package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLite(t *testing.T) *SQLite {
	t.Helper()
	ledger, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func TestSQLite_RunLifecycle(t *testing.T) {
	ledger := setupSQLite(t)
	ctx := context.Background()
	runID := uuid.New()

	// 1. Start
	err := ledger.StartRun(ctx, runID, "2024.1", map[string]any{"threshold": 3.0})
	require.NoError(t, err)

	run, err := ledger.GetRun(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, runID, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Equal(t, "2024.1", run.BenchmarkVersion)
	assert.Equal(t, 3.0, run.Parameters["threshold"])
	assert.Nil(t, run.CompletedAt)

	// 2. Stages
	require.NoError(t, ledger.RecordStage(ctx, runID, StageRecord{
		Stage: "clean", Category: "cleaning", Status: StageStatusCompleted, DurationMs: 12, Rows: 40,
		RecordedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	msg := "boom"
	require.NoError(t, ledger.RecordStage(ctx, runID, StageRecord{
		Stage: "metrics", Category: "metrics", Status: StageStatusFailed, ErrorMessage: &msg,
		RecordedAt: time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC),
	}))

	stages, err := ledger.ListStages(ctx, runID)
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, "clean", stages[0].Stage)
	assert.Equal(t, 40, stages[0].Rows)
	assert.Nil(t, stages[0].ErrorMessage)
	require.NotNil(t, stages[1].ErrorMessage)
	assert.Equal(t, "boom", *stages[1].ErrorMessage)

	// 3. Complete
	require.NoError(t, ledger.CompleteRun(ctx, runID, RunStatusFailed, &msg))
	run, err = ledger.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, "boom", *run.ErrorMessage)
	assert.NotNil(t, run.CompletedAt)
}

func TestSQLite_RecordStageUpserts(t *testing.T) {
	ledger := setupSQLite(t)
	ctx := context.Background()
	runID := uuid.New()
	require.NoError(t, ledger.StartRun(ctx, runID, "v", nil))

	require.NoError(t, ledger.RecordStage(ctx, runID, StageRecord{Stage: "unify", Category: "unify", Status: StageStatusSkipped}))
	require.NoError(t, ledger.RecordStage(ctx, runID, StageRecord{Stage: "unify", Category: "unify", Status: StageStatusCompleted, Rows: 7}))

	stages, err := ledger.ListStages(ctx, runID)
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, StageStatusCompleted, stages[0].Status)
	assert.Equal(t, 7, stages[0].Rows)
}

func TestSQLite_RecordArtifacts(t *testing.T) {
	ledger := setupSQLite(t)
	ctx := context.Background()
	runID := uuid.New()
	require.NoError(t, ledger.StartRun(ctx, runID, "v", nil))

	err := ledger.RecordArtifacts(ctx, runID, []ArtifactRecord{
		{Name: "workforce_clean.parquet", URI: "file:///out/workforce_clean.parquet", SHA256: "aa", Size: 10, Rows: 3},
		{Name: "quality_report.json", URI: "file:///out/quality_report.json", SHA256: "bb", Size: 20},
	})
	require.NoError(t, err)

	// Re-publishing replaces rather than duplicates
	err = ledger.RecordArtifacts(ctx, runID, []ArtifactRecord{
		{Name: "quality_report.json", URI: "s3://bucket/run/quality_report.json", SHA256: "cc", Size: 21},
	})
	require.NoError(t, err)

	arts, err := ledger.ListArtifacts(ctx, runID)
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.Equal(t, "quality_report.json", arts[0].Name)
	assert.Equal(t, "s3://bucket/run/quality_report.json", arts[0].URI)
	assert.Equal(t, "cc", arts[0].SHA256)
	assert.Equal(t, "workforce_clean.parquet", arts[1].Name)
	assert.Equal(t, 3, arts[1].Rows)
}

func TestSQLite_GetRunNotFound(t *testing.T) {
	ledger := setupSQLite(t)
	run, err := ledger.GetRun(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestSQLite_CompleteUnknownRun(t *testing.T) {
	ledger := setupSQLite(t)
	err := ledger.CompleteRun(context.Background(), uuid.New(), RunStatusCompleted, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_ReopenKeepsRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	runID := uuid.New()

	first, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.StartRun(ctx, runID, "v", nil))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer second.Close()
	run, err := second.GetRun(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, path, second.Path())
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ledger driver")
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "")
	require.Error(t, err)
}

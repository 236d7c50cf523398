package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/balloon.report/internal/monitoring"
	"github.com/banshee-data/balloon.report/internal/tracks"
)

func init() {
	monitoring.SetLogger(nil)
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := NewDB(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestNewDBMigratesToLatest(t *testing.T) {
	database := setupTestDB(t)

	version, dirty, err := database.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Re-running is a no-op.
	require.NoError(t, database.MigrateUp())
}

func TestMigrateDownAndUp(t *testing.T) {
	database := setupTestDB(t)

	require.NoError(t, database.MigrateDown())
	version, _, err := database.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, database.MigrateUp())
	version, _, err = database.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestPragmasApplied(t *testing.T) {
	database := setupTestDB(t)

	var journalMode string
	require.NoError(t, database.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, database.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)
}

func TestRecordAndGetRun(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 4, 5, 6, 7, 890, time.UTC)
	stored, err := database.RecordRun(ctx, RunReport{
		CreatedAt:         created,
		Source:            "frames.json",
		Solver:            "greedy",
		Frames:            22,
		Tracks:            9,
		UnmatchedHours:    []int{3, 17},
		TotalMatches:      120,
		AverageDistanceKm: 42.5,
		AverageConfidence: 0.96,
		LongestTrackHours: 21,
		TotalDistanceKm:   4800,
		SinglePointTracks: 2,
	})
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)

	got, err := database.GetRun(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, got)
}

func TestGetRunNotFound(t *testing.T) {
	database := setupTestDB(t)
	_, err := database.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, database.DeleteRun(context.Background(), "missing"), ErrNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, offset := range []time.Duration{time.Hour, 0, 2 * time.Hour, 500 * time.Millisecond} {
		_, err := database.RecordRun(ctx, RunReport{CreatedAt: base.Add(offset), Source: string(rune('a' + i))})
		require.NoError(t, err)
	}

	runs, err := database.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 4)
	assert.Equal(t, []string{"c", "a", "d", "b"}, []string{runs[0].Source, runs[1].Source, runs[2].Source, runs[3].Source})
	assert.Equal(t, []int{}, runs[0].UnmatchedHours)

	limited, err := database.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	require.NoError(t, database.DeleteRun(ctx, runs[0].ID))
	runs, err = database.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestSummarize(t *testing.T) {
	res := &tracks.Result{
		Tracks: []*tracks.Track{
			{ID: "track-1", Points: make([]tracks.TrackPoint, 3), DurationHours: 2, TotalDistanceKm: 100},
			{ID: "track-2", Points: make([]tracks.TrackPoint, 1)},
		},
		UnmatchedHours:  []int{4},
		MatchStatistics: tracks.MatchStatistics{TotalMatches: 2, AverageDistanceKm: 50, AverageConfidence: 0.9},
	}
	r := Summarize(res, 3, "api", "hungarian")

	assert.Equal(t, 2, r.Tracks)
	assert.Equal(t, 3, r.Frames)
	assert.Equal(t, []int{4}, r.UnmatchedHours)
	assert.Equal(t, 2.0, r.LongestTrackHours)
	assert.Equal(t, 100.0, r.TotalDistanceKm)
	assert.Equal(t, 1, r.SinglePointTracks)
	assert.Equal(t, "hungarian", r.Solver)
	assert.Equal(t, 0.9, r.AverageConfidence)
}

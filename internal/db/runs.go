package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/balloon.report/internal/tracks"
)

// ErrNotFound is returned when a run report does not exist.
var ErrNotFound = errors.New("run not found")

// timeLayout has a fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RunReport summarises one reconstruction run.
type RunReport struct {
	ID                string    `json:"id"`
	CreatedAt         time.Time `json:"createdAt"`
	Source            string    `json:"source"`
	Solver            string    `json:"solver"`
	Frames            int       `json:"frames"`
	Tracks            int       `json:"tracks"`
	UnmatchedHours    []int     `json:"unmatchedHours"`
	TotalMatches      int       `json:"totalMatches"`
	AverageDistanceKm float64   `json:"averageDistance"`
	AverageConfidence float64   `json:"averageConfidence"`
	LongestTrackHours float64   `json:"longestTrackHours"`
	TotalDistanceKm   float64   `json:"totalDistance"`
	SinglePointTracks int       `json:"singlePointTracks"`
}

// Summarize builds a report from a reconstruction result. frames is the
// number of hours that produced a usable frame.
func Summarize(res *tracks.Result, frames int, source, solver string) RunReport {
	r := RunReport{
		Source:            source,
		Solver:            solver,
		Frames:            frames,
		Tracks:            len(res.Tracks),
		UnmatchedHours:    append([]int{}, res.UnmatchedHours...),
		TotalMatches:      res.MatchStatistics.TotalMatches,
		AverageDistanceKm: res.MatchStatistics.AverageDistanceKm,
		AverageConfidence: res.MatchStatistics.AverageConfidence,
	}
	for _, t := range res.Tracks {
		if t.DurationHours > r.LongestTrackHours {
			r.LongestTrackHours = t.DurationHours
		}
		r.TotalDistanceKm += t.TotalDistanceKm
		if t.Len() == 1 {
			r.SinglePointTracks++
		}
	}
	return r
}

// RecordRun stores r, assigning a new ID and creation time when they are
// unset, and returns the stored report.
func (db *DB) RecordRun(ctx context.Context, r RunReport) (RunReport, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.UnmatchedHours == nil {
		r.UnmatchedHours = []int{}
	}
	unmatched, err := json.Marshal(r.UnmatchedHours)
	if err != nil {
		return RunReport{}, fmt.Errorf("failed to encode unmatched hours: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO runs (
			run_id, created_at, source, solver, frames, tracks, unmatched_hours,
			total_matches, average_distance, average_confidence,
			longest_track_hours, total_distance, single_point_tracks
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt.UTC().Format(timeLayout), r.Source, r.Solver, r.Frames, r.Tracks, string(unmatched),
		r.TotalMatches, r.AverageDistanceKm, r.AverageConfidence,
		r.LongestTrackHours, r.TotalDistanceKm, r.SinglePointTracks,
	)
	if err != nil {
		return RunReport{}, fmt.Errorf("failed to record run: %w", err)
	}
	return r, nil
}

const selectRuns = `SELECT run_id, created_at, source, solver, frames, tracks, unmatched_hours,
	total_matches, average_distance, average_confidence,
	longest_track_hours, total_distance, single_point_tracks FROM runs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunReport, error) {
	var (
		r         RunReport
		createdAt string
		unmatched string
	)
	if err := row.Scan(
		&r.ID, &createdAt, &r.Source, &r.Solver, &r.Frames, &r.Tracks, &unmatched,
		&r.TotalMatches, &r.AverageDistanceKm, &r.AverageConfidence,
		&r.LongestTrackHours, &r.TotalDistanceKm, &r.SinglePointTracks,
	); err != nil {
		return RunReport{}, err
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return RunReport{}, fmt.Errorf("failed to parse created_at %q: %w", createdAt, err)
	}
	r.CreatedAt = t
	if err := json.Unmarshal([]byte(unmatched), &r.UnmatchedHours); err != nil {
		return RunReport{}, fmt.Errorf("failed to decode unmatched hours: %w", err)
	}
	return r, nil
}

// GetRun returns the report with the given ID.
func (db *DB) GetRun(ctx context.Context, id string) (RunReport, error) {
	r, err := scanRun(db.QueryRowContext(ctx, selectRuns+` WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return RunReport{}, ErrNotFound
	}
	if err != nil {
		return RunReport{}, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns up to limit reports, newest first. A non-positive limit
// defaults to 100.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]RunReport, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, selectRuns+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunReport{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// DeleteRun removes a report.
func (db *DB) DeleteRun(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

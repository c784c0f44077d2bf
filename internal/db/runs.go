package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/pendulum.report/internal/oscillation"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Peak list kinds stored in run_peaks.
const (
	PeakKindCandidate = "candidate"
	PeakKindFiltered  = "filtered"
)

// Run is one stored acquisition. Samples, Candidates and Peaks are only
// populated by GetRun.
type Run struct {
	ID          string                  `json:"id"`
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  time.Time               `json:"finished_at"`
	Source      string                  `json:"source"`
	Config      json.RawMessage         `json:"config,omitempty"`
	Geometry    oscillation.Geometry    `json:"geometry"`
	Params      oscillation.Parameters  `json:"params"`
	Diagnostics oscillation.Diagnostics `json:"diagnostics"`
	Warning     string                  `json:"warning,omitempty"`
	Notes       string                  `json:"notes,omitempty"`
	Frames      int                     `json:"frames"`
	LostFrames  int                     `json:"lost_frames"`

	Samples    []oscillation.Sample `json:"samples,omitempty"`
	Candidates []oscillation.Peak   `json:"candidates,omitempty"`
	Peaks      []oscillation.Peak   `json:"peaks,omitempty"`
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	sec := int64(s)
	return time.Unix(sec, int64((s-float64(sec))*1e9)).UTC()
}

// RecordRun stores r and its series in one transaction. An empty ID is
// replaced with a new UUID, which is also written back to r.
func (db *DB) RecordRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	cfg := r.Config
	if len(cfg) == 0 {
		cfg = json.RawMessage("{}")
	}
	diag, err := json.Marshal(r.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (
			run_id, started_unix, finished_unix, source, config_json,
			length_m, scale, equilibrium,
			amplitude_m, angular_frequency, damping, quality_factor,
			experimental_period, theoretical_period, relative_error_pct, initial_position,
			diagnostics_json, warning, notes, frames, lost_frames
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, unixSeconds(r.StartedAt), unixSeconds(r.FinishedAt), r.Source, string(cfg),
		r.Geometry.Length, r.Geometry.Scale, r.Geometry.Equilibrium,
		r.Params.Amplitude, r.Params.AngularFrequency, r.Params.Damping, r.Params.QualityFactor,
		r.Params.ExperimentalPeriod, r.Params.TheoreticalPeriod, r.Params.RelativeError, r.Params.InitialPosition,
		string(diag), r.Warning, r.Notes, r.Frames, r.LostFrames,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if err := insertSeries(ctx, tx, `INSERT INTO run_samples (run_id, seq, t, x) VALUES (?, ?, ?, ?)`, r.ID, r.Samples); err != nil {
		return fmt.Errorf("failed to insert samples: %w", err)
	}
	peakSQL := `INSERT INTO run_peaks (run_id, kind, seq, t, x) VALUES (?, '` + PeakKindCandidate + `', ?, ?, ?)`
	if err := insertSeries(ctx, tx, peakSQL, r.ID, r.Candidates); err != nil {
		return fmt.Errorf("failed to insert candidate peaks: %w", err)
	}
	peakSQL = `INSERT INTO run_peaks (run_id, kind, seq, t, x) VALUES (?, '` + PeakKindFiltered + `', ?, ?, ?)`
	if err := insertSeries(ctx, tx, peakSQL, r.ID, r.Peaks); err != nil {
		return fmt.Errorf("failed to insert filtered peaks: %w", err)
	}

	return tx.Commit()
}

func insertSeries(ctx context.Context, tx *sql.Tx, query, runID string, series []oscillation.Sample) error {
	if len(series) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, s := range series {
		if _, err := stmt.ExecContext(ctx, runID, i, s.Time, s.Position); err != nil {
			return err
		}
	}
	return nil
}

const runColumns = `run_id, started_unix, finished_unix, source, config_json,
	length_m, scale, equilibrium,
	amplitude_m, angular_frequency, damping, quality_factor,
	experimental_period, theoretical_period, relative_error_pct, initial_position,
	diagnostics_json, warning, notes, frames, lost_frames`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r                 Run
		started, finished float64
		cfg, diag         string
	)
	err := row.Scan(
		&r.ID, &started, &finished, &r.Source, &cfg,
		&r.Geometry.Length, &r.Geometry.Scale, &r.Geometry.Equilibrium,
		&r.Params.Amplitude, &r.Params.AngularFrequency, &r.Params.Damping, &r.Params.QualityFactor,
		&r.Params.ExperimentalPeriod, &r.Params.TheoreticalPeriod, &r.Params.RelativeError, &r.Params.InitialPosition,
		&diag, &r.Warning, &r.Notes, &r.Frames, &r.LostFrames,
	)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = fromUnixSeconds(started)
	r.FinishedAt = fromUnixSeconds(finished)
	r.Config = json.RawMessage(cfg)
	if err := json.Unmarshal([]byte(diag), &r.Diagnostics); err != nil {
		return Run{}, fmt.Errorf("failed to decode diagnostics for run %s: %w", r.ID, err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first, without their series.
// A non-positive limit returns every run.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_unix DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the given ID including its samples and peaks.
func (db *DB) GetRun(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, err
	}

	if r.Samples, err = db.series(ctx, `SELECT t, x FROM run_samples WHERE run_id = ? ORDER BY seq`, id); err != nil {
		return Run{}, fmt.Errorf("failed to load samples: %w", err)
	}
	if r.Candidates, err = db.series(ctx, `SELECT t, x FROM run_peaks WHERE run_id = ? AND kind = ? ORDER BY seq`, id, PeakKindCandidate); err != nil {
		return Run{}, fmt.Errorf("failed to load candidate peaks: %w", err)
	}
	if r.Peaks, err = db.series(ctx, `SELECT t, x FROM run_peaks WHERE run_id = ? AND kind = ? ORDER BY seq`, id, PeakKindFiltered); err != nil {
		return Run{}, fmt.Errorf("failed to load filtered peaks: %w", err)
	}
	return r, nil
}

func (db *DB) series(ctx context.Context, query string, args ...any) ([]oscillation.Sample, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []oscillation.Sample
	for rows.Next() {
		var s oscillation.Sample
		if err := rows.Scan(&s.Time, &s.Position); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetRunNotes replaces the free-text notes of a run.
func (db *DB) SetRunNotes(ctx context.Context, id, notes string) error {
	res, err := db.ExecContext(ctx, `UPDATE runs SET notes = ? WHERE run_id = ?`, notes, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// DeleteRun removes a run and its series.
func (db *DB) DeleteRun(ctx context.Context, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM run_samples WHERE run_id = ?`,
		`DELETE FROM run_peaks WHERE run_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return tx.Commit()
}

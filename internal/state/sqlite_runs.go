package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// CreateRun records a new run in the running state.
func (s *SQLiteStore) CreateRun(tool, version string, startedAt time.Time) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	run := &Run{
		ID:        generateID(),
		Tool:      tool,
		Version:   version,
		Status:    RunStatusRunning,
		StartedAt: startedAt.UTC(),
	}

	s.logger.Debug("creating run", slog.String("id", run.ID), slog.String("tool", tool))

	_, err := s.db.Exec(
		`INSERT INTO runs (id, tool, version, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Tool, run.Version, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return run, nil
}

// AddParameters appends parameters to a run, after any already recorded.
func (s *SQLiteStore) AddParameters(runID string, params []Parameter) (err error) {
	if s.db == nil {
		return errNotOpened
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var next int
	if err = tx.QueryRow(
		`SELECT COALESCE(MAX(position) + 1, 0) FROM run_parameters WHERE run_id = ?`, runID,
	).Scan(&next); err != nil {
		return fmt.Errorf("failed to read parameter position: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO run_parameters (run_id, position, name, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare parameter insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, p := range params {
		if _, err = stmt.Exec(runID, next+i, p.Name, p.Value); err != nil {
			return fmt.Errorf("failed to add parameter %s: %w", p.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit parameters: %w", err)
	}
	return nil
}

// CompleteRun stamps the final status of a run.
func (s *SQLiteStore) CompleteRun(runID string, completedAt time.Time, c Completion) error {
	if s.db == nil {
		return errNotOpened
	}

	var errMsg sql.NullString
	if c.Error != "" {
		errMsg = sql.NullString{String: c.Error, Valid: true}
	}

	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ?, out_path = ?, metadata_path = ? WHERE id = ?`,
		string(c.Status), completedAt.UTC(), errMsg, c.OutPath, c.MetadataPath, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// GetRun retrieves a run and its parameters by ID.
func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	run, err := scanRun(s.db.QueryRow(
		`SELECT id, tool, version, status, started_at, completed_at, error, out_path, metadata_path
		 FROM runs WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if run.Parameters, err = s.parameters(id); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns retrieves the most recent runs up to the given limit, newest first.
func (s *SQLiteStore) ListRuns(limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.Query(
		`SELECT id, tool, version, status, started_at, completed_at, error, out_path, metadata_path
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	for _, run := range runs {
		if run.Parameters, err = s.parameters(run.ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *SQLiteStore) parameters(runID string) ([]Parameter, error) {
	rows, err := s.db.Query(
		`SELECT name, value FROM run_parameters WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get run parameters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var params []Parameter
	for rows.Next() {
		var p Parameter
		if err := rows.Scan(&p.Name, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan run parameter: %w", err)
		}
		params = append(params, p)
	}
	return params, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var status string
	var completedAt sql.NullTime
	var errMsg sql.NullString

	if err := row.Scan(&run.ID, &run.Tool, &run.Version, &status, &run.StartedAt,
		&completedAt, &errMsg, &run.OutPath, &run.MetadataPath); err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	return run, nil
}

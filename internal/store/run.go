// Package store persists pipeline run history in the local database.
package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Run statuses.
const (
	RunStatusRunning = "running"
	RunStatusOK      = "ok"
	RunStatusError   = "error"
)

// Run is one recorded pipeline execution.
type Run struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Families     int
	RowsUploaded int
	Status       string
	Error        string
}

type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

const runCols = `id, started_at, finished_at, families, rows_uploaded, status, error`

func scanRun(scanner interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	var finished sql.NullTime
	err := scanner.Scan(&r.ID, &r.StartedAt, &finished, &r.Families, &r.RowsUploaded, &r.Status, &r.Error)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

// Create records the start of a run.
func (s *RunStore) Create(id string, startedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)`,
		id, startedAt.UTC(), RunStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Finish records the outcome of a run.
func (s *RunStore) Finish(id string, finishedAt time.Time, families, rowsUploaded int, status, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, families = ?, rows_uploaded = ?, status = ?, error = ? WHERE id = ?`,
		finishedAt.UTC(), families, rowsUploaded, status, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func (s *RunStore) GetByID(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runCols+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRecent returns the most recent runs, newest first.
func (s *RunStore) ListRecent(limit int) ([]Run, error) {
	rows, err := s.db.Query(`SELECT `+runCols+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

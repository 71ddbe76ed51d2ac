// Package store persists detection tables to SQLite databases and CSV files.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"cellseg/pkg/segmentation"
)

// schema.sql defines the runs table and the per-run detections table.
//
//go:embed schema.sql
var schemaSQL string

// DB is a detection database.
type DB struct {
	*sql.DB
}

// Run is one recorded analysis.
type Run struct {
	ID        string
	CreatedAt time.Time
	Config    string
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &DB{db}, nil
}

// StartRun records a new run with its serialized configuration and returns
// the run id.
func (db *DB) StartRun(config string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(`INSERT INTO runs (run_id, created_at, config) VALUES (?, ?, ?)`,
		id, time.Now().UnixNano(), config)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// Runs returns every run, oldest first.
func (db *DB) Runs() ([]Run, error) {
	rows, err := db.Query(`SELECT run_id, created_at, config FROM runs ORDER BY created_at, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var created int64
		if err := rows.Scan(&r.ID, &created, &r.Config); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(0, created)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// InsertDetections stores dets under runID in a single transaction.
func (db *DB) InsertDetections(runID string, dets []segmentation.Detection) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO detections (run_id, frame, position, label, x, y, signal, median, area)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range dets {
		if _, err := stmt.Exec(runID, d.Frame, d.Position, d.Label, d.X, d.Y, d.Signal, d.Median, d.Area); err != nil {
			return fmt.Errorf("failed to insert detection frame %d label %d: %w", d.Frame, d.Label, err)
		}
	}
	return tx.Commit()
}

// Detections returns the detections of runID ordered by position, frame and
// label.
func (db *DB) Detections(runID string) ([]segmentation.Detection, error) {
	rows, err := db.Query(`
		SELECT frame, position, label, x, y, signal, median, area
		FROM detections
		WHERE run_id = ?
		ORDER BY position, frame, label
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dets []segmentation.Detection
	for rows.Next() {
		var d segmentation.Detection
		if err := rows.Scan(&d.Frame, &d.Position, &d.Label, &d.X, &d.Y, &d.Signal, &d.Median, &d.Area); err != nil {
			return nil, err
		}
		dets = append(dets, d)
	}
	return dets, rows.Err()
}

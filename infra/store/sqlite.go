package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/scanplan/core/model"
)

// SQLiteStore keeps the schedule in a SQLite table keyed by scan id.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS schedule (
        scan_id TEXT PRIMARY KEY,
        patient_id TEXT NOT NULL,
        scan_type TEXT NOT NULL,
        machine TEXT NOT NULL,
        start_time TEXT NOT NULL,
        end_time TEXT NOT NULL,
        priority INTEGER NOT NULL,
        duration INTEGER NOT NULL
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads the schedule ordered by machine and start.
func (s *SQLiteStore) Load(ctx context.Context) ([]model.ScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scan_id, patient_id, scan_type, machine, start_time, end_time, priority, duration
         FROM schedule ORDER BY machine, start_time, scan_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.ScheduleEntry
	for rows.Next() {
		var e model.ScheduleEntry
		var start, end string
		if err := rows.Scan(&e.ScanID, &e.PatientID, &e.ScanType, &e.Machine, &start, &end, &e.Priority, &e.Duration); err != nil {
			return nil, corrupt(err)
		}
		if e.Start, err = time.Parse(time.RFC3339, start); err != nil {
			return nil, corrupt(fmt.Errorf("scan %s start_time: %w", e.ScanID, err))
		}
		if e.End, err = time.Parse(time.RFC3339, end); err != nil {
			return nil, corrupt(fmt.Errorf("scan %s end_time: %w", e.ScanID, err))
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Save replaces the schedule in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, entries []model.ScheduleEntry) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM schedule`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO schedule (scan_id, patient_id, scan_type, machine, start_time, end_time, priority, duration)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, e := range entries {
		if _, err = stmt.ExecContext(ctx, e.ScanID, e.PatientID, e.ScanType, e.Machine,
			e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), e.Priority, e.Duration); err != nil {
			return fmt.Errorf("insert %s: %w", e.ScanID, err)
		}
	}
	return tx.Commit()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

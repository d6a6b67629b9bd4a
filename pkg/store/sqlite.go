package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register driver

	"github.com/blingblang/atlas-fluvial/pkg/pipeline"
)

// RunRecord is one row of the run-history ledger.
type RunRecord struct {
	ID          string
	Status      string
	FailedStage string
	Filename    string
	URL         string
	SizeBytes   int64
	Error       string
	Lat         float64
	Lon         float64
	GeneratedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

// SQLite persists terminal runs. It implements pipeline.History.
type SQLite struct {
	db *sql.DB
}

// Open opens the database at path and runs migrations.
func Open(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Enable WAL mode for better concurrency and set busy timeout
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Single connection avoids SQLITE_BUSY on concurrent writes
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		failed_stage TEXT,
		filename TEXT,
		url TEXT,
		size_bytes INTEGER,
		error TEXT,
		lat REAL,
		lon REAL,
		generated_at TEXT,
		started_at TEXT,
		finished_at TEXT
	)`)
	return err
}

// RecordRun implements pipeline.History.
func (s *SQLite) RecordRun(ctx context.Context, run *pipeline.RunState) error {
	var filename, url string
	var sizeBytes int64
	if run.Artifact != nil {
		filename = run.Artifact.Filename
		url = run.Artifact.URL
		sizeBytes = run.Artifact.SizeBytes
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO runs
		(id, status, failed_stage, filename, url, size_bytes, error, lat, lon, generated_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		string(run.Status),
		string(run.FailedStage),
		filename,
		url,
		sizeBytes,
		run.LastError,
		run.Request.Anchor.Lat,
		run.Request.Anchor.Lon,
		run.Request.GeneratedAt.UTC().Format(time.RFC3339),
		run.StartedAt.UTC().Format(time.RFC3339),
		run.FinishedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// RecentRuns returns the most recent terminal runs, newest first.
func (s *SQLite) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, status, failed_stage, filename, url, size_bytes, error, lat, lon, generated_at, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		var generatedAt, startedAt, finishedAt string
		if err := rows.Scan(&r.ID, &r.Status, &r.FailedStage, &r.Filename, &r.URL,
			&r.SizeBytes, &r.Error, &r.Lat, &r.Lon, &generatedAt, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		r.GeneratedAt, _ = time.Parse(time.RFC3339, generatedAt)
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/moffa90/go-arimu/batch"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id         TEXT PRIMARY KEY,
    port       TEXT NOT NULL,
    device     TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    ended_at   INTEGER,
    error      TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_device ON runs (device, started_at);

CREATE TABLE IF NOT EXISTS transfers (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id   TEXT NOT NULL REFERENCES runs(id),
    file     TEXT NOT NULL,
    subject  TEXT NOT NULL,
    bytes    INTEGER NOT NULL,
    obtained BOOLEAN NOT NULL,
    reason   TEXT,
    at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transfers_run ON transfers (run_id);

CREATE TABLE IF NOT EXISTS deletions (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id  TEXT NOT NULL REFERENCES runs(id),
    file    TEXT NOT NULL,
    deleted BOOLEAN NOT NULL,
    at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS time_syncs (
    id     INTEGER PRIMARY KEY AUTOINCREMENT,
    port   TEXT NOT NULL,
    device TEXT NOT NULL,
    sent   INTEGER NOT NULL,
    echoed INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_time_syncs_device ON time_syncs (device, sent);
`

// Store is a sqlite journal of synchronizer runs.
// It implements batch.Recorder.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ batch.Recorder = (*Store)(nil)

// Open opens or creates the journal at path. ":memory:" gives a private
// in-memory journal.
//
// Example:
//
//	store, err := journal.Open("arimu.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//	syncer := batch.New(batch.WithRecorder(store))
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// one connection: each :memory: connection is a separate database, and
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records the start of a device run and returns its ID.
func (s *Store) BeginRun(ctx context.Context, port, device string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, port, device, started_at) VALUES (?, ?, ?, ?)",
		id, port, device, s.now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return id, nil
}

// EndRun records the end of a run and the error that ended it, if any.
func (s *Store) EndRun(ctx context.Context, runID string, runErr error) error {
	var msg sql.NullString
	if runErr != nil {
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET ended_at = ?, error = ? WHERE id = ?",
		s.now().UnixNano(), msg, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// RecordTransfer records one file of a run's plan.
func (s *Store) RecordTransfer(ctx context.Context, runID string, t batch.Transfer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transfers (run_id, file, subject, bytes, obtained, reason, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, t.File, t.Subject, t.Bytes, t.Obtained, t.Reason, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record transfer: %w", err)
	}
	return nil
}

// RecordDeletion records one DELETEFILE outcome.
func (s *Store) RecordDeletion(ctx context.Context, runID, file string, deleted bool) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO deletions (run_id, file, deleted, at) VALUES (?, ?, ?, ?)",
		runID, file, deleted, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record deletion: %w", err)
	}
	return nil
}

// RecordTimeSync records the time sent to a unit and the time it echoed.
func (s *Store) RecordTimeSync(ctx context.Context, port, device string, sent, echoed time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO time_syncs (port, device, sent, echoed) VALUES (?, ?, ?, ?)",
		port, device, sent.UnixNano(), echoed.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record time sync: %w", err)
	}
	return nil
}

// FileRecord is one journaled transfer.
type FileRecord struct {
	RunID    string
	Port     string
	File     string
	Subject  string
	Bytes    int64
	Obtained bool
	Reason   string
	At       time.Time
}

// Files returns every transfer journaled for device, oldest first.
func (s *Store) Files(ctx context.Context, device string) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.run_id, r.port, t.file, t.subject, t.bytes, t.obtained, COALESCE(t.reason, ''), t.at
		FROM transfers t JOIN runs r ON r.id = t.run_id
		WHERE r.device = ?
		ORDER BY t.id ASC`, device)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var f FileRecord
		var at int64
		if err := rows.Scan(&f.RunID, &f.Port, &f.File, &f.Subject, &f.Bytes, &f.Obtained, &f.Reason, &at); err != nil {
			return nil, err
		}
		f.At = time.Unix(0, at)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Deletions returns the files deleted from device, oldest first.
func (s *Store) Deletions(ctx context.Context, device string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.file FROM deletions d JOIN runs r ON r.id = d.run_id
		WHERE r.device = ? AND d.deleted
		ORDER BY d.id ASC`, device)
	if err != nil {
		return nil, fmt.Errorf("failed to query deletions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var file string
		if err := rows.Scan(&file); err != nil {
			return nil, err
		}
		out = append(out, file)
	}
	return out, rows.Err()
}

// TimeSync is one journaled SETTIME.
type TimeSync struct {
	Port   string
	Sent   time.Time
	Echoed time.Time
}

// Skew is how far the echoed time was from the time sent.
func (t TimeSync) Skew() time.Duration {
	return t.Echoed.Sub(t.Sent)
}

// TimeSyncs returns every time sync journaled for device, oldest first.
func (s *Store) TimeSyncs(ctx context.Context, device string) ([]TimeSync, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT port, sent, echoed FROM time_syncs WHERE device = ? ORDER BY id ASC", device)
	if err != nil {
		return nil, fmt.Errorf("failed to query time syncs: %w", err)
	}
	defer rows.Close()

	var out []TimeSync
	for rows.Next() {
		var ts TimeSync
		var sent, echoed int64
		if err := rows.Scan(&ts.Port, &sent, &echoed); err != nil {
			return nil, err
		}
		ts.Sent = time.Unix(0, sent)
		ts.Echoed = time.Unix(0, echoed)
		out = append(out, ts)
	}
	return out, rows.Err()
}

package accesslog

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS access_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	ts             INTEGER NOT NULL,
	request_id     TEXT,
	method         TEXT NOT NULL,
	path           TEXT NOT NULL,
	protocol       TEXT,
	response_code  INTEGER,
	bytes_received INTEGER,
	bytes_sent     INTEGER,
	duration_ms    INTEGER,
	remote_address TEXT,
	upstream_host  TEXT,
	failure_reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_access_log_ts ON access_log(ts);
`

const insertStatement = `
INSERT INTO access_log (
	ts, request_id, method, path, protocol, response_code,
	bytes_received, bytes_sent, duration_ms,
	remote_address, upstream_host, failure_reason
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQLiteLog stores entries in a SQLite database for querying and bounded
// retention.
type SQLiteLog struct {
	db     *sql.DB
	insert *sql.Stmt
	mu     sync.Mutex
	logger *slog.Logger
}

// NewSQLiteLog opens (creating if needed) the database at path and prepares
// the schema. WAL mode keeps writers from blocking the admin queries.
func NewSQLiteLog(path string, logger *slog.Logger) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("accesslog: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("accesslog: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("accesslog: create schema: %w", err)
	}
	insert, err := db.Prepare(insertStatement)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("accesslog: prepare insert: %w", err)
	}
	return &SQLiteLog{db: db, insert: insert, logger: logger}, nil
}

// Close releases the database.
func (s *SQLiteLog) Close() error {
	s.insert.Close()
	return s.db.Close()
}

// Log implements Log. Insert failures are logged, never propagated.
func (s *SQLiteLog) Log(entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.insert.Exec(
		entry.Timestamp.UnixMilli(),
		entry.RequestID,
		entry.Method,
		entry.Path,
		entry.Protocol,
		entry.ResponseCode,
		entry.BytesReceived,
		entry.BytesSent,
		entry.Duration.Milliseconds(),
		entry.RemoteAddress,
		entry.UpstreamHost,
		entry.FailureReason,
	)
	if err != nil {
		s.logger.Warn("access log insert failed", "err", err)
	}
}

// Count returns the number of stored entries.
func (s *SQLiteLog) Count() (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM access_log").Scan(&count)
	return count, err
}

// PruneOlderThan deletes entries with a timestamp before cutoff and returns
// how many were removed.
func (s *SQLiteLog) PruneOlderThan(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec("DELETE FROM access_log WHERE ts < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("accesslog: prune: %w", err)
	}
	return result.RowsAffected()
}

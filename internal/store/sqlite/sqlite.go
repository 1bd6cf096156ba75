package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/wirecall/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS call_records (
	id           TEXT PRIMARY KEY,
	direction    TEXT NOT NULL,
	address      TEXT NOT NULL DEFAULT '',
	one_to_one   BOOLEAN NOT NULL DEFAULT 0,
	reason       TEXT NOT NULL,
	reason_code  TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	connected_at DATETIME,
	ended_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_call_records_ended_at ON call_records (ended_at);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; ":memory:" needs it to keep its data.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate creates the call history tables if they do not exist.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== CallStore implementation ====

// SaveCallRecord inserts or replaces a call record.
func (s *SQLiteStore) SaveCallRecord(ctx context.Context, rec *store.CallRecord) error {
	query := `
		INSERT OR REPLACE INTO call_records
			(id, direction, address, one_to_one, reason, reason_code, created_at, connected_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var connectedAt sql.NullTime
	if rec.ConnectedAt != nil {
		connectedAt = sql.NullTime{Time: rec.ConnectedAt.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Direction,
		rec.Address,
		rec.OneToOne,
		rec.Reason,
		rec.ReasonCode,
		rec.CreatedAt.UTC(),
		connectedAt,
		rec.EndedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert call record: %w", err)
	}
	return nil
}

// GetCallRecord retrieves a call record by ID.
func (s *SQLiteStore) GetCallRecord(ctx context.Context, id string) (*store.CallRecord, error) {
	query := `
		SELECT id, direction, address, one_to_one, reason, reason_code, created_at, connected_at, ended_at
		FROM call_records
		WHERE id = ?
	`
	rec, err := scanCallRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("call record %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query call record: %w", err)
	}
	return rec, nil
}

// ListCallRecords lists call records, most recently ended first.
func (s *SQLiteStore) ListCallRecords(ctx context.Context, limit int) ([]*store.CallRecord, error) {
	query := `
		SELECT id, direction, address, one_to_one, reason, reason_code, created_at, connected_at, ended_at
		FROM call_records
		ORDER BY ended_at DESC, id
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query call records: %w", err)
	}
	defer rows.Close()

	var records []*store.CallRecord
	for rows.Next() {
		rec, err := scanCallRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCallRecord(row scanner) (*store.CallRecord, error) {
	var rec store.CallRecord
	var connectedAt sql.NullTime
	var createdAt, endedAt time.Time

	if err := row.Scan(
		&rec.ID,
		&rec.Direction,
		&rec.Address,
		&rec.OneToOne,
		&rec.Reason,
		&rec.ReasonCode,
		&createdAt,
		&connectedAt,
		&endedAt,
	); err != nil {
		return nil, err
	}

	rec.CreatedAt = createdAt
	rec.EndedAt = endedAt
	if connectedAt.Valid {
		t := connectedAt.Time
		rec.ConnectedAt = &t
	}
	return &rec, nil
}

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// CallRecord is the persisted summary of a finished call.
type CallRecord struct {
	ID         string
	Direction  string // "incoming" or "outgoing"
	Address    string
	OneToOne   bool
	Reason     string // disconnect kind, e.g. "remote_left"
	ReasonCode string // raw engine reason for error disconnects
	CreatedAt  time.Time
	// ConnectedAt is nil for calls that never connected.
	ConnectedAt *time.Time
	EndedAt     time.Time
}

// CallStore defines call history operations.
type CallStore interface {
	// SaveCallRecord inserts or replaces a call record.
	SaveCallRecord(ctx context.Context, rec *CallRecord) error

	// GetCallRecord retrieves a call record by ID.
	GetCallRecord(ctx context.Context, id string) (*CallRecord, error)

	// ListCallRecords lists the most recently ended calls first.
	// A non-positive limit returns every record.
	ListCallRecords(ctx context.Context, limit int) ([]*CallRecord, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	CallStore

	// Close closes the underlying database connection.
	Close() error
}

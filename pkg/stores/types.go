package stores

import (
	"context"
	"errors"
	"time"

	"github.com/openfroyo/chainstage/pkg/engine"
)

// ErrConflict is returned when the durable record changed underneath a store
// since it was last read.
var ErrConflict = errors.New("record changed since it was loaded")

// RecordStore persists a DeploymentRecord and the pending-transaction journal
// that belongs to it.
type RecordStore interface {
	engine.PendingJournal

	// Load returns the stored record. A store that has never been written
	// yields an empty record.
	Load(ctx context.Context) (*engine.Record, error)

	// Save replaces the stored record.
	Save(ctx context.Context, record *engine.Record) error

	// ApplyUpdate persists a single step result.
	ApplyUpdate(ctx context.Context, update *engine.Update) error

	Close() error
}

// Backend names a RecordStore implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
)

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Run is one orchestrator invocation as kept in the run history.
type Run struct {
	ID        string         `json:"id"`
	Network   string         `json:"network"`
	Outcome   engine.Outcome `json:"outcome"`
	Step      *string        `json:"step,omitempty"`
	Role      *string        `json:"role,omitempty"`
	TxHash    *string        `json:"tx_hash,omitempty"`
	Address   *string        `json:"address,omitempty"`
	ErrorCode *string        `json:"error_code,omitempty"`
	Error     *string        `json:"error,omitempty"`
	Skipped   int            `json:"skipped"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// Event is a persisted orchestrator event.
type Event struct {
	ID        int64      `json:"id"`
	EventID   string     `json:"event_id"`
	RunID     string     `json:"run_id"`
	Type      string     `json:"type"`
	Step      *string    `json:"step,omitempty"`
	Role      *string    `json:"role,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// EventFilter narrows GetEvents. Nil fields match everything.
type EventFilter struct {
	RunID *string
	Type  *string
	Level *EventLevel
	Limit int
}

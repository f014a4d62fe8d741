package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openfroyo/chainstage/pkg/engine"
	"github.com/openfroyo/chainstage/pkg/ledger"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps the record, the pending journal and the run history in
// one SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens a separate database.
	if isMemory(cfg.Path) {
		cfg.MaxOpenConns, cfg.MaxIdleConns = 1, 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// Init opens the database connection and enables WAL mode for file
// databases.
func (s *SQLiteStore) Init(ctx context.Context) error {
	pragmas := "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if !isMemory(s.cfg.Path) {
		pragmas += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	sep := "?"
	if strings.Contains(s.cfg.Path, "?") {
		sep = "&"
	}

	db, err := sql.Open("sqlite", s.cfg.Path+sep+pragmas)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

// Load reads the record from the roles table.
func (s *SQLiteStore) Load(ctx context.Context) (*engine.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role, address, initialized FROM roles`)
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	defer rows.Close()

	record := engine.NewRecord()
	for rows.Next() {
		var (
			name        string
			address     sql.NullString
			initialized bool
		)
		if err := rows.Scan(&name, &address, &initialized); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}

		role, err := engine.ParseRole(name)
		if err != nil {
			return nil, err
		}
		e := engine.Entry{Initialized: initialized}
		if address.Valid && address.String != "" {
			addr, err := parseAddress(address.String)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", name, err)
			}
			e.Address = &addr
		}
		record.Set(role, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}
	return record, nil
}

// Save replaces the whole record in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, record *engine.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM roles`); err != nil {
		return fmt.Errorf("failed to clear roles: %w", err)
	}

	now := time.Now().UTC()
	entries := record.Entries()
	for _, role := range record.Roles() {
		e := entries[role]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO roles (role, address, initialized, updated_at) VALUES (?, ?, ?, ?)`,
			string(role), addressValue(e.Address), e.Initialized, now,
		); err != nil {
			return fmt.Errorf("failed to save role %s: %w", role, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit record: %w", err)
	}
	return nil
}

// ApplyUpdate merges one step result. An address in the update replaces the
// stored one; initialization is never cleared.
func (s *SQLiteStore) ApplyUpdate(ctx context.Context, update *engine.Update) error {
	if update == nil {
		return nil
	}

	query := `
		INSERT INTO roles (role, address, initialized, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(role) DO UPDATE SET
			address = COALESCE(excluded.address, roles.address),
			initialized = MAX(roles.initialized, excluded.initialized),
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query,
		string(update.Role), addressValue(update.Address), update.Initialized, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to apply update for %s: %w", update.Role, err)
	}
	return nil
}

// RecordPending journals a submitted transaction under key.
func (s *SQLiteStore) RecordPending(ctx context.Context, key string, tx *ledger.PendingTransaction) error {
	query := `
		INSERT INTO pending (key, role, hash, from_address, to_address, nonce, contract_address, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			role = excluded.role,
			hash = excluded.hash,
			from_address = excluded.from_address,
			to_address = excluded.to_address,
			nonce = excluded.nonce,
			contract_address = excluded.contract_address,
			submitted_at = excluded.submitted_at
	`

	entry := newPendingEntry(tx)
	if _, err := s.db.ExecContext(ctx, query,
		key,
		entry.Role,
		entry.Hash,
		entry.From,
		nullString(entry.To),
		int64(entry.Nonce),
		nullString(entry.ContractAddress),
		entry.SubmittedAt,
	); err != nil {
		return fmt.Errorf("failed to record pending transaction: %w", err)
	}
	return nil
}

// Pending returns the journaled transaction for key, or nil.
func (s *SQLiteStore) Pending(ctx context.Context, key string) (*ledger.PendingTransaction, error) {
	query := `
		SELECT role, hash, from_address, to_address, nonce, contract_address, submitted_at
		FROM pending WHERE key = ?
	`

	var (
		entry    PendingEntry
		role     sql.NullString
		to       sql.NullString
		contract sql.NullString
		nonce    int64
	)
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&role,
		&entry.Hash,
		&entry.From,
		&to,
		&nonce,
		&contract,
		&entry.SubmittedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending transaction: %w", err)
	}

	entry.Role = role.String
	entry.To = to.String
	entry.ContractAddress = contract.String
	entry.Nonce = uint64(nonce)

	tx, err := entry.transaction()
	if err != nil {
		return nil, fmt.Errorf("pending %s: %w", key, err)
	}
	return tx, nil
}

// ClearPending drops the journal entry for key.
func (s *SQLiteStore) ClearPending(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to clear pending transaction: %w", err)
	}
	return nil
}

// Publish appends an orchestrator event to the event log.
func (s *SQLiteStore) Publish(ctx context.Context, ev *engine.Event) error {
	var details *string
	if len(ev.Details) > 0 {
		b, err := json.Marshal(ev.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal event details: %w", err)
		}
		d := string(b)
		details = &d
	}

	return s.AppendEvent(ctx, &Event{
		EventID:   ev.ID,
		RunID:     ev.RunID,
		Type:      string(ev.Type),
		Step:      optional(ev.Step),
		Role:      optional(string(ev.Role)),
		Level:     EventLevel(ev.Level),
		Message:   ev.Message,
		Details:   details,
		Timestamp: ev.Timestamp,
	})
}

// AppendEvent appends a new event to the log
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO events (event_id, run_id, type, step, role, level, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if event.Level == "" {
		event.Level = EventLevelInfo
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	result, err := s.db.ExecContext(ctx, query,
		event.EventID,
		event.RunID,
		event.Type,
		event.Step,
		event.Role,
		event.Level,
		event.Message,
		event.Details,
		event.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}

	event.ID = id
	return nil
}

// GetEvents retrieves events matching filter, oldest first.
func (s *SQLiteStore) GetEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	query := `
		SELECT id, event_id, run_id, type, step, role, level, message, details, timestamp
		FROM events
		WHERE (? IS NULL OR run_id = ?)
		  AND (? IS NULL OR type = ?)
		  AND (? IS NULL OR level = ?)
		ORDER BY id ASC
		LIMIT ?
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, query,
		filter.RunID, filter.RunID,
		filter.Type, filter.Type,
		filter.Level, filter.Level,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event := &Event{}
		if err := rows.Scan(
			&event.ID,
			&event.EventID,
			&event.RunID,
			&event.Type,
			&event.Step,
			&event.Role,
			&event.Level,
			&event.Message,
			&event.Details,
			&event.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// RecordRun stores the outcome of one invocation.
func (s *SQLiteStore) RecordRun(ctx context.Context, report *engine.Report) error {
	run := &Run{
		ID:        report.RunID,
		Network:   report.Network,
		Outcome:   report.Outcome,
		Skipped:   report.Skipped,
		StartedAt: report.StartedAt,
		Duration:  report.Duration,
	}
	if report.Step != nil {
		run.Step = optional(report.Step.Name)
		run.Role = optional(string(report.Step.Role))
	}
	if report.Receipt != nil {
		run.TxHash = optional(report.Receipt.TxHash.Hex())
	}
	if report.Update != nil && report.Update.Address != nil {
		run.Address = optional(report.Update.Address.Hex())
	}
	if report.Error != nil {
		run.ErrorCode = optional(report.Error.Code)
		run.Error = optional(report.Error.Error())
	}
	return s.CreateRun(ctx, run)
}

// CreateRun inserts a run row.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, network, outcome, step, role, tx_hash, address, error_code, error, skipped, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	if _, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Network,
		string(run.Outcome),
		run.Step,
		run.Role,
		run.TxHash,
		run.Address,
		run.ErrorCode,
		run.Error,
		run.Skipped,
		run.StartedAt.UTC(),
		run.Duration.Milliseconds(),
	); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, network, outcome, step, role, tx_hash, address, error_code, error, skipped, started_at, duration_ms
		FROM runs WHERE id = ?
	`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `
		SELECT id, network, outcome, step, role, tx_hash, address, error_code, error, skipped, started_at, duration_ms
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run      Run
		outcome  string
		duration int64
	)
	if err := row.Scan(
		&run.ID,
		&run.Network,
		&outcome,
		&run.Step,
		&run.Role,
		&run.TxHash,
		&run.Address,
		&run.ErrorCode,
		&run.Error,
		&run.Skipped,
		&run.StartedAt,
		&duration,
	); err != nil {
		return nil, err
	}
	run.Outcome = engine.Outcome(outcome)
	run.Duration = time.Duration(duration) * time.Millisecond
	return &run, nil
}

func addressValue(addr *common.Address) any {
	if addr == nil || *addr == (common.Address{}) {
		return nil
	}
	return addr.Hex()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

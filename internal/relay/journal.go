package relay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nerrad567/influxline/internal/infrastructure/config"
)

// Journal storage constants.
const (
	// dirPermissions is the permission mode for the journal directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the journal file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying journal connectivity.
	connectionTimeout = 5 * time.Second
)

// journalSchema holds batches that failed delivery. The payload is the
// serialized line-protocol body, ready to resend as-is.
const journalSchema = `
CREATE TABLE IF NOT EXISTS pending_batches (
    id         TEXT PRIMARY KEY,
    payload    TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_batches_created ON pending_batches(created_at);
`

// Journal is the SQLite-backed dead-letter store for failed batches.
//
// Batches are keyed by a random id and drained oldest-first, so the
// write order to InfluxDB roughly follows the original receive order.
//
// Thread Safety: Safe for concurrent use; the connection pool is
// capped at a single connection because SQLite has one writer.
type Journal struct {
	db   *sql.DB
	path string
}

// OpenJournal opens or creates the journal database.
//
// It performs the following setup:
//  1. Creates the journal directory if it doesn't exist
//  2. Opens the database file with WAL mode and a busy timeout
//  3. Verifies the connection and applies the schema
//  4. Sets appropriate file permissions (0600)
//
// Parameters:
//   - cfg: Journal configuration
//
// Returns:
//   - *Journal: Connected journal
//   - error: If connection or schema setup fails
func OpenJournal(cfg config.JournalConfig) (*Journal, error) {
	// Ensure directory exists
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	// Build connection string with pragmas
	// See: https://github.com/mattn/go-sqlite3#connection-string
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying journal connection: %w", err)
	}

	if _, err := db.ExecContext(ctx, journalSchema); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("applying journal schema: %w", err)
	}

	// Set file permissions (owner read/write only)
	_ = os.Chmod(cfg.Path, filePermissions)

	return &Journal{
		db:   db,
		path: cfg.Path,
	}, nil
}

// PendingBatch is a journaled batch awaiting redelivery.
type PendingBatch struct {
	// ID is the random identifier assigned at enqueue time.
	ID string

	// Payload is the serialized line-protocol body.
	Payload string

	// Created is when the batch was journaled.
	Created time.Time
}

// Enqueue stores a failed batch for later redelivery.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - payload: Serialized line-protocol body
//
// Returns:
//   - error: If the insert fails
func (j *Journal) Enqueue(ctx context.Context, payload string) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO pending_batches (id, payload, created_at) VALUES (?, ?, ?)",
		uuid.NewString(), payload, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("enqueueing batch: %w", err)
	}
	return nil
}

// Next returns the oldest journaled batch, or nil when the journal is
// empty. The batch stays in the journal until Remove is called.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - *PendingBatch: Oldest batch, nil when empty
//   - error: If the query fails
func (j *Journal) Next(ctx context.Context) (*PendingBatch, error) {
	var (
		batch   PendingBatch
		created int64
	)
	err := j.db.QueryRowContext(ctx,
		"SELECT id, payload, created_at FROM pending_batches ORDER BY created_at, id LIMIT 1",
	).Scan(&batch.ID, &batch.Payload, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}

	batch.Created = time.Unix(0, created)
	return &batch, nil
}

// Remove deletes a delivered batch from the journal.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - id: Batch identifier from Next
//
// Returns:
//   - error: If the delete fails
func (j *Journal) Remove(ctx context.Context, id string) error {
	_, err := j.db.ExecContext(ctx, "DELETE FROM pending_batches WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("removing batch %s: %w", id, err)
	}
	return nil
}

// Len returns the number of batches waiting in the journal.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - int: Pending batch count
//   - error: If the query fails
func (j *Journal) Len(ctx context.Context) (int, error) {
	var count int
	err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_batches").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting journal batches: %w", err)
	}
	return count, nil
}

// Path returns the filesystem path to the journal file.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the journal database.
//
// Returns:
//   - error: If closing fails
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("closing journal: %w", err)
	}
	return nil
}

// Package store implements the local durability layer C10 writes to:
// a sqlite-backed table mapping client order IDs to venue order IDs,
// plus a table of msgpack-encoded pending executions that were
// submitted but not yet confirmed. The execution pipeline records a
// pending execution before submitting and the venue order ID after a
// confirmation; nothing in the bot reads either table back, so a
// restart neither resumes confirmation polling nor short-circuits a
// resubmit. Grounded on the teacher's
// internal/state/sqlite.Store (the KV schema and sql.Open("sqlite",
// path) wiring) and internal/hl/exchange's msgpack encoding pattern
// for compact binary payloads.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	_ "modernc.org/sqlite"

	"gridbot/internal/types"
)

// ErrNotFound is returned by GetVenueOrderID when no record exists for
// the given key.
var ErrNotFound = errors.New("store: not found")

// PendingExecution is the durable record of a trade intent that has
// been submitted to the venue but not yet confirmed. The execution
// pipeline deletes it after a confirmed outcome; failed or timed-out
// submissions leave it in place.
type PendingExecution struct {
	ClientOrderID string
	LevelID       string
	Side          types.Side
	ExpectedPrice decimal.Decimal
	Size          decimal.Decimal
	Signature     string
	SubmittedAt   time.Time
}

// Store wraps a single sqlite database holding the idempotency cache
// and the pending-execution table. Both tables are local-node state,
// never shared across bot instances, matching the teacher's
// single-process KV store scope.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS idempotency (
		client_order_id TEXT PRIMARY KEY,
		venue_order_id  TEXT NOT NULL
	)`); err != nil {
		return err
	}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS pending_executions (
		client_order_id TEXT PRIMARY KEY,
		payload         BLOB NOT NULL
	)`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// GetVenueOrderID looks up a previously recorded venue order ID for a
// client order ID.
func (s *Store) GetVenueOrderID(ctx context.Context, clientOrderID string) (string, error) {
	var venueOrderID string
	err := s.db.QueryRowContext(ctx, `SELECT venue_order_id FROM idempotency WHERE client_order_id = ?`, clientOrderID).Scan(&venueOrderID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return venueOrderID, nil
}

// PutVenueOrderID records the venue order ID a client order ID
// resolved to, idempotently.
func (s *Store) PutVenueOrderID(ctx context.Context, clientOrderID, venueOrderID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO idempotency (client_order_id, venue_order_id) VALUES (?, ?)
		ON CONFLICT(client_order_id) DO UPDATE SET venue_order_id = excluded.venue_order_id`, clientOrderID, venueOrderID)
	return err
}

// PutPending durably records a submitted-but-unconfirmed execution,
// msgpack-encoded for compactness, mirroring the binary encoding the
// teacher's exchange client uses for its own wire payloads.
func (s *Store) PutPending(ctx context.Context, p PendingExecution) error {
	payload, err := msgpack.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO pending_executions (client_order_id, payload) VALUES (?, ?)
		ON CONFLICT(client_order_id) DO UPDATE SET payload = excluded.payload`, p.ClientOrderID, payload)
	return err
}

// DeletePending removes a pending execution; the execution pipeline
// calls it after a confirmed outcome.
func (s *Store) DeletePending(ctx context.Context, clientOrderID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_executions WHERE client_order_id = ?`, clientOrderID)
	return err
}

// ListPending returns every pending execution still on record.
func (s *Store) ListPending(ctx context.Context) ([]PendingExecution, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM pending_executions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []PendingExecution
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var p PendingExecution
		if err := msgpack.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

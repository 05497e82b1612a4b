// Package journal implements the append-only trade/snapshot journal:
// an async, channel-queued writer over a Timescale-style Postgres
// store that records every filled trade and every grid reposition,
// so post-hoc analysis never has to trust in-memory state alone.
// Grounded directly on the teacher's internal/timescale.Writer —
// same channel-queue-plus-drop-counter shape, same pgx/v5/stdlib
// driver, same bounded per-write timeout — adapted from candle/
// position-snapshot schemas to filled-trade/grid-snapshot schemas.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"gridbot/internal/types"
)

const writeTimeout = 3 * time.Second

// Config mirrors the journal tunables named in the configuration
// surface.
type Config struct {
	Enabled         bool
	DSN             string
	Schema          string
	QueueSize       int
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// GridSnapshotRecord is one reposition event, flattened for storage.
type GridSnapshotRecord struct {
	Time           time.Time
	Generation     uint64
	AnchorPrice    float64
	SpacingPercent float64
	LevelCount     int
}

// Writer owns the async write queues and the underlying Postgres
// connection. A nil *Writer is a valid no-op journal, so callers
// never need a separate enabled/disabled branch at call sites.
type Writer struct {
	db     *sql.DB
	log    *zap.Logger
	schema string

	trades     chan types.FilledTrade
	snapshots  chan GridSnapshotRecord
	started    atomic.Bool
	dropTrade  atomic.Uint64
	dropSnap   atomic.Uint64
}

// New opens the journal's database connection and ensures its schema
// exists. Returns (nil, nil) when disabled, so New+Start+EnqueueX+Close
// all tolerate an absent journal without a nil check at the call site.
func New(cfg Config, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("journal dsn is required when enabled")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	w := &Writer{
		db:        db,
		log:       log,
		schema:    schema,
		trades:    make(chan types.FilledTrade, queueSize),
		snapshots: make(chan GridSnapshotRecord, queueSize),
	}
	if err := w.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// Start launches the background write loop. Safe to call at most
// once; subsequent calls are no-ops.
func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// EnqueueTrade queues a filled trade for the write loop, dropping it
// (and counting the drop) if the queue is saturated rather than
// blocking the tick loop.
func (w *Writer) EnqueueTrade(trade types.FilledTrade) {
	if w == nil {
		return
	}
	select {
	case w.trades <- trade:
	default:
		if w.dropTrade.Add(1) == 1 && w.log != nil {
			w.log.Warn("journal trade queue full, dropping")
		}
	}
}

// EnqueueSnapshot queues a grid reposition event for the write loop.
func (w *Writer) EnqueueSnapshot(rec GridSnapshotRecord) {
	if w == nil {
		return
	}
	select {
	case w.snapshots <- rec:
	default:
		if w.dropSnap.Add(1) == 1 && w.log != nil {
			w.log.Warn("journal snapshot queue full, dropping")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case trade := <-w.trades:
			w.writeTrade(ctx, trade)
		case rec := <-w.snapshots:
			w.writeSnapshot(ctx, rec)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		side TEXT NOT NULL,
		expected_price DOUBLE PRECISION NOT NULL,
		executed_price DOUBLE PRECISION NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		fees DOUBLE PRECISION NOT NULL,
		pnl DOUBLE PRECISION NOT NULL,
		tx_id TEXT NOT NULL,
		PRIMARY KEY (ts, tx_id)
	)`, w.table("filled_trades"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		generation BIGINT NOT NULL,
		anchor_price DOUBLE PRECISION NOT NULL,
		spacing_percent DOUBLE PRECISION NOT NULL,
		level_count INTEGER NOT NULL,
		PRIMARY KEY (ts, generation)
	)`, w.table("grid_snapshots"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("journal timescaledb extension unavailable, continuing without hypertables", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("filled_trades"))); err != nil && w.log != nil {
		w.log.Warn("journal filled_trades hypertable create failed", zap.Error(err))
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("grid_snapshots"))); err != nil && w.log != nil {
		w.log.Warn("journal grid_snapshots hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeTrade(ctx context.Context, trade types.FilledTrade) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (ts, side, expected_price, executed_price, size, fees, pnl, tx_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT (ts, tx_id) DO NOTHING`, w.table("filled_trades"))
	if _, err := w.db.ExecContext(ctx, query,
		trade.Timestamp,
		trade.Side.String(),
		trade.ExpectedPrice.InexactFloat64(),
		trade.ExecutedPrice.InexactFloat64(),
		trade.Size.InexactFloat64(),
		trade.Fees.InexactFloat64(),
		trade.PnL.InexactFloat64(),
		trade.TxID,
	); err != nil && w.log != nil {
		w.log.Warn("journal trade insert failed", zap.Error(err))
	}
}

func (w *Writer) writeSnapshot(ctx context.Context, rec GridSnapshotRecord) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (ts, generation, anchor_price, spacing_percent, level_count)
		VALUES ($1,$2,$3,$4,$5) ON CONFLICT (ts, generation) DO NOTHING`, w.table("grid_snapshots"))
	if _, err := w.db.ExecContext(ctx, query,
		rec.Time,
		rec.Generation,
		rec.AnchorPrice,
		rec.SpacingPercent,
		rec.LevelCount,
	); err != nil && w.log != nil {
		w.log.Warn("journal snapshot insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}

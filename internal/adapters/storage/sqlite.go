package storage

// sqlite.go — durable accounting store.
//
// Tables:
//   capital_state — single-row global capital record (id=1)
//   positions     — durable mirror of ledger positions, keyed by trade_id
//   trades        — full economic record per round trip; realized PnL truth
//   run_epochs    — one row per bot run
//   capital_locks — transient reservations, cleared on close or orphan sweep

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/032383justin/dlmm-bot-sub006/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS capital_state (
    id                 INTEGER PRIMARY KEY CHECK (id = 1),
    initial_capital    REAL NOT NULL DEFAULT 0,
    available_balance  REAL NOT NULL DEFAULT 0,
    locked_balance     REAL NOT NULL DEFAULT 0,
    total_realized_pnl REAL NOT NULL DEFAULT 0,
    updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    trade_id      TEXT PRIMARY KEY,
    pool_address  TEXT NOT NULL,
    tier          TEXT NOT NULL,
    size_usd      REAL NOT NULL,
    entry_price   REAL NOT NULL DEFAULT 0,
    fees_accrued  REAL NOT NULL DEFAULT 0,
    opened_at     DATETIME NOT NULL,
    closed_at     DATETIME,
    exit_reason   TEXT,
    pnl_usd       REAL NOT NULL DEFAULT 0,
    run_id        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS positions_open ON positions(closed_at) WHERE closed_at IS NULL;
CREATE INDEX IF NOT EXISTS positions_run  ON positions(run_id);

CREATE TABLE IF NOT EXISTS trades (
    id                    TEXT PRIMARY KEY,
    pool_address          TEXT NOT NULL,
    status                TEXT NOT NULL DEFAULT 'open',
    entry_asset_value_usd REAL NOT NULL DEFAULT 0,
    exit_asset_value_usd  REAL NOT NULL DEFAULT 0,
    entry_fees_paid       REAL NOT NULL DEFAULT 0,
    exit_fees_paid        REAL NOT NULL DEFAULT 0,
    entry_slippage_usd    REAL NOT NULL DEFAULT 0,
    exit_slippage_usd     REAL NOT NULL DEFAULT 0,
    pnl_net               REAL NOT NULL DEFAULT 0,
    exit_reason           TEXT,
    run_id                TEXT NOT NULL,
    created_at            DATETIME NOT NULL,
    exit_time             DATETIME
);

CREATE INDEX IF NOT EXISTS trades_status ON trades(status);
CREATE INDEX IF NOT EXISTS trades_run    ON trades(run_id, status);

CREATE TABLE IF NOT EXISTS run_epochs (
    run_id           TEXT PRIMARY KEY,
    started_at       DATETIME NOT NULL,
    starting_capital REAL NOT NULL,
    parent_run_id    TEXT,
    status           TEXT NOT NULL DEFAULT 'active'
);

CREATE INDEX IF NOT EXISTS run_epochs_started ON run_epochs(started_at DESC);

CREATE TABLE IF NOT EXISTS capital_locks (
    trade_id TEXT PRIMARY KEY,
    amount   REAL NOT NULL
);
`

// SQLiteStore implements ports.Store using SQLite (pure Go, no CGo).
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the database at the given path and applies the
// schema. Use ":memory:" for tests.
func New(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.New: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.New: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ─── Capital state ───────────────────────────────────────────────────────────

// LoadCapitalState reads the single capital_state row. A missing row is not
// an error — it returns a zero record, which the reconciler treats as a
// first boot.
func (s *SQLiteStore) LoadCapitalState(ctx context.Context) (domain.CapitalRecord, error) {
	var rec domain.CapitalRecord
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT initial_capital, available_balance, locked_balance, total_realized_pnl, updated_at
		FROM capital_state WHERE id = 1`).Scan(
		&rec.InitialCapital, &rec.AvailableBalance, &rec.LockedBalance,
		&rec.TotalRealizedPnL, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return domain.CapitalRecord{}, nil
	}
	if err != nil {
		return rec, fmt.Errorf("storage.LoadCapitalState: %w", err)
	}
	rec.UpdatedAt = parseStoredTime(updatedAt)
	return rec, nil
}

// SaveCapitalState upserts the single capital_state row.
func (s *SQLiteStore) SaveCapitalState(ctx context.Context, rec domain.CapitalRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO capital_state (id, initial_capital, available_balance, locked_balance, total_realized_pnl, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  initial_capital    = excluded.initial_capital,
		  available_balance  = excluded.available_balance,
		  locked_balance     = excluded.locked_balance,
		  total_realized_pnl = excluded.total_realized_pnl,
		  updated_at         = excluded.updated_at`,
		rec.InitialCapital, rec.AvailableBalance, rec.LockedBalance,
		rec.TotalRealizedPnL, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveCapitalState: %w", err)
	}
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

// parseStoredTime handles both RFC3339 and the plain DATETIME format SQLite
// may hand back depending on how the value was bound.
func parseStoredTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, _ = time.Parse("2006-01-02 15:04:05", s)
	}
	return t
}

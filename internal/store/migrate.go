package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

func (s *SQLiteStore) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`
CREATE TABLE IF NOT EXISTS trades (
  id TEXT PRIMARY KEY,
  strategy TEXT NOT NULL,
  symbol TEXT NOT NULL,
  side TEXT NOT NULL,
  direction TEXT NOT NULL,
  quantity REAL NOT NULL,
  price REAL NOT NULL,
  leverage INTEGER NOT NULL,
  realized_pnl REAL,
  metadata TEXT,
  executed_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol_ts ON trades(symbol, executed_at DESC);`,
		`
CREATE TABLE IF NOT EXISTS signals (
  id TEXT PRIMARY KEY,
  strategy TEXT NOT NULL,
  symbol TEXT NOT NULL,
  direction TEXT NOT NULL,
  strength REAL NOT NULL,
  allocation_pct REAL NOT NULL,
  priority REAL NOT NULL,
  shadow INTEGER NOT NULL DEFAULT 0,
  version_id TEXT,
  created_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS alerts (
  id TEXT PRIMARY KEY,
  level TEXT NOT NULL,
  kind TEXT NOT NULL,
  symbol TEXT,
  message TEXT NOT NULL,
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(created_at DESC);`,
		`
CREATE TABLE IF NOT EXISTS system_state (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS allocation_snapshots (
  version_id TEXT NOT NULL,
  strategy TEXT NOT NULL,
  allocation_pct REAL NOT NULL,
  created_at TEXT NOT NULL,
  PRIMARY KEY (version_id, strategy)
);`,
		`
CREATE TABLE IF NOT EXISTS positions_current (
  symbol TEXT PRIMARY KEY,
  side TEXT NOT NULL,
  size REAL NOT NULL,
  entry_price REAL NOT NULL,
  leverage INTEGER NOT NULL,
  unrealized_pnl REAL NOT NULL,
  margin_used REAL NOT NULL,
  strategy TEXT NOT NULL,
  stop_loss REAL NOT NULL DEFAULT 0,
  take_profit REAL NOT NULL DEFAULT 0,
  updated_at TEXT NOT NULL
);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "migrate: %.60s", stmt)
		}
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/perpbot/goperp/internal/domain"
)

func (s *SQLiteStore) SaveTrade(ctx context.Context, t *domain.Trade) error {
	var meta []byte
	if len(t.Metadata) > 0 {
		meta, _ = json.Marshal(t.Metadata)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO trades (id,strategy,symbol,side,direction,quantity,price,leverage,realized_pnl,metadata,executed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
`, t.ID, string(t.Strategy), t.Symbol, string(t.Side), string(t.Direction),
		t.Quantity, t.Price, t.Leverage, t.RealizedPnL, nullableString(meta),
		t.ExecutedAt.Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) ListTrades(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
SELECT id,strategy,symbol,side,direction,quantity,price,leverage,realized_pnl,metadata,executed_at
FROM trades`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol=?`
		args = append(args, symbol)
	}
	query += ` ORDER BY executed_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		var strategy, side, direction, executed string
		var meta sql.NullString
		if err := rows.Scan(&t.ID, &strategy, &t.Symbol, &side, &direction,
			&t.Quantity, &t.Price, &t.Leverage, &t.RealizedPnL, &meta, &executed); err != nil {
			return nil, err
		}
		t.Strategy = domain.StrategyID(strategy)
		t.Side = domain.PositionSide(side)
		t.Direction = domain.Direction(direction)
		if meta.Valid && meta.String != "" {
			_ = json.Unmarshal([]byte(meta.String), &t.Metadata)
		}
		t.ExecutedAt, _ = time.Parse(time.RFC3339Nano, executed)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveSignal(ctx context.Context, a *domain.AggregatedSignal) error {
	shadow := 0
	if a.Shadow {
		shadow = 1
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO signals (id,strategy,symbol,direction,strength,allocation_pct,priority,shadow,version_id,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
`, a.Signal.ID, string(a.Signal.Strategy), a.Signal.Symbol, string(a.Signal.Direction),
		a.Signal.Strength, a.AllocationPct, a.Priority, shadow, a.VersionID,
		a.Signal.CreatedAt.Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) SaveAlert(ctx context.Context, a *domain.Alert) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO alerts (id,level,kind,symbol,message,created_at)
VALUES (?,?,?,?,?,?)
`, a.ID, string(a.Level), a.Kind, a.Symbol, a.Message, a.CreatedAt.Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, limit int) ([]*domain.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id,level,kind,symbol,message,created_at
FROM alerts ORDER BY created_at DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Alert
	for rows.Next() {
		var a domain.Alert
		var level, created string
		var symbol sql.NullString
		if err := rows.Scan(&a.ID, &level, &a.Kind, &symbol, &a.Message, &created); err != nil {
			return nil, err
		}
		a.Level = domain.AlertLevel(level)
		a.Symbol = symbol.String
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetSystemState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO system_state (key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at
`, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) GetSystemState(ctx context.Context, key string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM system_state WHERE key=?`, key)
	var v string
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (s *SQLiteStore) SaveAllocationSnapshot(ctx context.Context, versionID string, allocations map[domain.StrategyID]float64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for id, pct := range allocations {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO allocation_snapshots (version_id,strategy,allocation_pct,created_at) VALUES (?,?,?,?)
ON CONFLICT(version_id,strategy) DO UPDATE SET allocation_pct=excluded.allocation_pct
`, versionID, string(id), pct, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ReplacePositions 整表替换当前仓位快照，与跟踪器的 resync 语义一致。
func (s *SQLiteStore) ReplacePositions(ctx context.Context, positions []*domain.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM positions_current`); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, p := range positions {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO positions_current (symbol,side,size,entry_price,leverage,unrealized_pnl,margin_used,strategy,stop_loss,take_profit,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
`, p.Symbol, string(p.Side), p.Size, p.EntryPrice, p.Leverage,
			p.UnrealizedPnL, p.MarginUsed, string(p.Strategy), p.StopLoss, p.TakeProfit, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

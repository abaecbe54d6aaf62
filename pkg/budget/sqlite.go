package budget

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS ledgers (
	id                TEXT PRIMARY KEY,
	period_start      INTEGER NOT NULL,
	period_end        INTEGER NOT NULL,
	total_budget_usd  REAL NOT NULL,
	current_spend_usd REAL NOT NULL,
	spend_by_backend  TEXT NOT NULL,
	calls             INTEGER NOT NULL DEFAULT 0,
	updated_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledgers_start ON ledgers(period_start);
`

// SQLiteStore persists ledgers in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the ledger database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure ledger database: %w", err)
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Latest(ctx context.Context) (*Ledger, error) {
	ledgers, err := s.History(ctx, 1)
	if err != nil || len(ledgers) == 0 {
		return nil, err
	}
	return ledgers[0], nil
}

func (s *SQLiteStore) Save(ctx context.Context, l *Ledger) error {
	byBackend, err := json.Marshal(l.SpendByBackend)
	if err != nil {
		return fmt.Errorf("marshal spend by backend: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledgers (id, period_start, period_end, total_budget_usd, current_spend_usd, spend_by_backend, calls, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_budget_usd = excluded.total_budget_usd,
			current_spend_usd = excluded.current_spend_usd,
			spend_by_backend = excluded.spend_by_backend,
			calls = excluded.calls,
			updated_at = excluded.updated_at`,
		l.ID, l.PeriodStart.UnixNano(), l.PeriodEnd.UnixNano(), l.TotalBudgetUSD,
		l.CurrentSpendUSD, string(byBackend), l.Calls, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save ledger %s: %w", l.ID, err)
	}
	return nil
}

func (s *SQLiteStore) History(ctx context.Context, limit int) ([]*Ledger, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, period_start, period_end, total_budget_usd, current_spend_usd, spend_by_backend, calls
		FROM ledgers ORDER BY period_start DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledgers: %w", err)
	}
	defer rows.Close()

	var out []*Ledger
	for rows.Next() {
		var (
			l          Ledger
			start, end int64
			byBackend  string
		)
		if err := rows.Scan(&l.ID, &start, &end, &l.TotalBudgetUSD, &l.CurrentSpendUSD, &byBackend, &l.Calls); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		l.PeriodStart = time.Unix(0, start).UTC()
		l.PeriodEnd = time.Unix(0, end).UTC()
		if err := json.Unmarshal([]byte(byBackend), &l.SpendByBackend); err != nil {
			return nil, fmt.Errorf("unmarshal spend for %s: %w", l.ID, err)
		}
		if l.SpendByBackend == nil {
			l.SpendByBackend = make(map[string]float64)
		}
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("list ledgers: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"stockbt/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

// SQLiteStore implements ResultStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		symbol       TEXT NOT NULL,
		company_name TEXT NOT NULL DEFAULT '',
		strategy     TEXT NOT NULL,
		start_ms     INTEGER NOT NULL,
		end_ms       INTEGER NOT NULL,
		initial_cash REAL NOT NULL,
		final_equity REAL NOT NULL,
		return_pct   REAL,
		num_trades   INTEGER NOT NULL,
		request      TEXT,
		stats        TEXT,
		created_ms   INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS runs_created ON runs (created_ms DESC)`,
	`CREATE TABLE IF NOT EXISTS trades (
		run_id      TEXT NOT NULL,
		seq         INTEGER NOT NULL,
		symbol      TEXT NOT NULL,
		size        REAL NOT NULL,
		entry_bar   INTEGER NOT NULL,
		exit_bar    INTEGER NOT NULL,
		entry_ms    INTEGER NOT NULL,
		exit_ms     INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		exit_price  REAL NOT NULL,
		pnl         REAL NOT NULL,
		return_pct  REAL NOT NULL,
		commission  REAL NOT NULL,
		exit_reason TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS equity (
		run_id       TEXT NOT NULL,
		seq          INTEGER NOT NULL,
		ts_ms        INTEGER NOT NULL,
		equity       REAL NOT NULL,
		drawdown_pct REAL NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer at a time; SQLite serialises writes anyway.
	db.SetMaxOpenConns(1)

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// ResultStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts the run, its trades and its equity curve in one
// transaction. An empty ID is filled with a new UUID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, symbol, company_name, strategy, start_ms, end_ms, initial_cash, final_equity,
		 return_pct, num_trades, request, stats, created_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Symbol, run.CompanyName, run.Strategy,
		run.Start.UnixMilli(), run.End.UnixMilli(), run.InitialCash, run.FinalEquity,
		nullFloat(run.ReturnPct), run.NumTrades, string(run.Request), string(run.Stats),
		run.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	for i, t := range run.Trades {
		_, err = tx.ExecContext(ctx, `INSERT INTO trades
			(run_id, seq, symbol, size, entry_bar, exit_bar, entry_ms, exit_ms,
			 entry_price, exit_price, pnl, return_pct, commission, exit_reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, t.Symbol, t.Size, t.EntryBar, t.ExitBar,
			t.EntryTime.UnixMilli(), t.ExitTime.UnixMilli(),
			t.EntryPrice, t.ExitPrice, t.PnL, t.ReturnPct, t.Commission, string(t.ExitReason))
		if err != nil {
			return fmt.Errorf("inserting trade %d of run %s: %w", i, run.ID, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO equity (run_id, seq, ts_ms, equity, drawdown_pct) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, p := range run.Equity {
		if _, err := stmt.ExecContext(ctx, run.ID, i, p.Time.UnixMilli(), p.Equity, p.DrawdownPct); err != nil {
			return fmt.Errorf("inserting equity point %d of run %s: %w", i, run.ID, err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, symbol, company_name, strategy, start_ms, end_ms, initial_cash,
	final_equity, return_pct, num_trades, request, stats, created_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		r                       RunRecord
		startMs, endMs, created int64
		ret                     sql.NullFloat64
		request, stats          sql.NullString
	)
	err := row.Scan(&r.ID, &r.Symbol, &r.CompanyName, &r.Strategy, &startMs, &endMs,
		&r.InitialCash, &r.FinalEquity, &ret, &r.NumTrades, &request, &stats, &created)
	if err != nil {
		return nil, err
	}
	r.Start = time.UnixMilli(startMs).UTC()
	r.End = time.UnixMilli(endMs).UTC()
	r.CreatedAt = time.UnixMilli(created).UTC()
	r.ReturnPct = math.NaN()
	if ret.Valid {
		r.ReturnPct = ret.Float64
	}
	if request.Valid && request.String != "" {
		r.Request = []byte(request.String)
	}
	if stats.Valid && stats.String != "" {
		r.Stats = []byte(stats.String)
	}
	return &r, nil
}

// GetRun retrieves a run with its trades and equity curve.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT symbol, size, entry_bar, exit_bar, entry_ms, exit_ms,
		entry_price, exit_price, pnl, return_pct, commission, exit_reason
		FROM trades WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			t               domain.Trade
			entryMs, exitMs int64
			reason          string
		)
		if err := rows.Scan(&t.Symbol, &t.Size, &t.EntryBar, &t.ExitBar, &entryMs, &exitMs,
			&t.EntryPrice, &t.ExitPrice, &t.PnL, &t.ReturnPct, &t.Commission, &reason); err != nil {
			return nil, err
		}
		t.EntryTime = time.UnixMilli(entryMs).UTC()
		t.ExitTime = time.UnixMilli(exitMs).UTC()
		t.ExitReason = domain.ExitReason(reason)
		run.Trades = append(run.Trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	eqRows, err := s.db.QueryContext(ctx,
		`SELECT ts_ms, equity, drawdown_pct FROM equity WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer eqRows.Close()
	for eqRows.Next() {
		var (
			p  domain.EquityPoint
			ts int64
		)
		if err := eqRows.Scan(&ts, &p.Equity, &p.DrawdownPct); err != nil {
			return nil, err
		}
		p.Time = time.UnixMilli(ts).UTC()
		run.Equity = append(run.Equity, p)
	}
	return run, eqRows.Err()
}

// ListRuns returns run summaries, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_ms DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run together with its trades and equity points.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM trades WHERE run_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM equity WHERE run_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// nullFloat stores NaN and infinities as NULL.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

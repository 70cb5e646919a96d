package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"llmarena/internal/domain"
	"llmarena/internal/sim"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS competitors (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	config_json TEXT,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	competitor_id TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	cash REAL NOT NULL,
	positions_json TEXT,
	realized_pnl REAL DEFAULT 0,
	equity REAL NOT NULL,
	FOREIGN KEY (competitor_id) REFERENCES competitors(id)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_competitor ON snapshots(competitor_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON snapshots(timestamp);

CREATE TABLE IF NOT EXISTS run_logs (
	id TEXT PRIMARY KEY,
	competitor_id TEXT NOT NULL,
	session_date TEXT NOT NULL,
	session_type TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	llm_calls_json TEXT,
	strategist_proposal_json TEXT,
	trade_plan_json TEXT,
	fills_json TEXT,
	errors_json TEXT,
	snapshot_before_json TEXT,
	snapshot_after_json TEXT,
	FOREIGN KEY (competitor_id) REFERENCES competitors(id)
);
CREATE INDEX IF NOT EXISTS idx_run_logs_competitor ON run_logs(competitor_id);
CREATE INDEX IF NOT EXISTS idx_run_logs_date ON run_logs(session_date);
CREATE UNIQUE INDEX IF NOT EXISTS idx_run_logs_session
	ON run_logs(competitor_id, session_date, session_type);

CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	competitor_id TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	ticker TEXT NOT NULL,
	side TEXT NOT NULL,
	qty INTEGER NOT NULL,
	price REAL NOT NULL,
	fees REAL DEFAULT 0,
	slippage REAL DEFAULT 0,
	notional REAL NOT NULL,
	FOREIGN KEY (competitor_id) REFERENCES competitors(id)
);
CREATE INDEX IF NOT EXISTS idx_trades_competitor ON trades(competitor_id);
CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);
CREATE INDEX IF NOT EXISTS idx_trades_ticker ON trades(ticker);

CREATE TABLE IF NOT EXISTS call_counters (
	provider TEXT NOT NULL,
	date TEXT NOT NULL,
	count INTEGER DEFAULT 0,
	PRIMARY KEY (provider, date)
);
`

// Init creates the schema if it does not exist.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Competitors
// ---------------------------------------------------------------------------

// SaveCompetitor inserts or replaces a competitor row.
func (s *SQLiteStore) SaveCompetitor(ctx context.Context, c domain.Competitor) error {
	configJSON, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding competitor config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO competitors (id, name, provider, model, config_json)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Provider, c.Model, string(configJSON))
	if err != nil {
		return fmt.Errorf("saving competitor %s: %w", c.ID, err)
	}
	return nil
}

// GetCompetitor returns a competitor by ID, or nil if not found.
func (s *SQLiteStore) GetCompetitor(ctx context.Context, id string) (*domain.Competitor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT config_json FROM competitors WHERE id = ?`, id)

	var configJSON string
	if err := row.Scan(&configJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("loading competitor %s: %w", id, err)
	}

	var c domain.Competitor
	if err := json.Unmarshal([]byte(configJSON), &c); err != nil {
		return nil, fmt.Errorf("decoding competitor %s: %w", id, err)
	}
	return &c, nil
}

// ListCompetitors returns all competitors ordered by ID.
func (s *SQLiteStore) ListCompetitors(ctx context.Context) ([]domain.Competitor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT config_json FROM competitors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing competitors: %w", err)
	}
	defer rows.Close()

	var out []domain.Competitor
	for rows.Next() {
		var configJSON string
		if err := rows.Scan(&configJSON); err != nil {
			return nil, err
		}
		var c domain.Competitor
		if err := json.Unmarshal([]byte(configJSON), &c); err != nil {
			return nil, fmt.Errorf("decoding competitor: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

// SaveSnapshot appends a portfolio snapshot.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, competitorID string, snap domain.Snapshot) error {
	positionsJSON, err := json.Marshal(snap.Positions)
	if err != nil {
		return fmt.Errorf("encoding positions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (competitor_id, timestamp, cash, positions_json, realized_pnl, equity)
		VALUES (?, ?, ?, ?, ?, ?)`,
		competitorID, snap.Timestamp.UTC().Format(time.RFC3339Nano),
		snap.Cash, string(positionsJSON), snap.RealizedPnL, snap.Equity())
	if err != nil {
		return fmt.Errorf("saving snapshot for %s: %w", competitorID, err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot, or nil if none exists.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context, competitorID string) (*domain.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT timestamp, cash, positions_json, realized_pnl FROM snapshots
		WHERE competitor_id = ?
		ORDER BY timestamp DESC LIMIT 1`, competitorID)

	snap, err := scanSnapshot(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest snapshot for %s: %w", competitorID, err)
	}
	return snap, nil
}

// EquityCurve returns all snapshots for a competitor, oldest first.
func (s *SQLiteStore) EquityCurve(ctx context.Context, competitorID string) ([]domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, cash, positions_json, realized_pnl FROM snapshots
		WHERE competitor_id = ?
		ORDER BY timestamp ASC`, competitorID)
	if err != nil {
		return nil, fmt.Errorf("loading equity curve for %s: %w", competitorID, err)
	}
	defer rows.Close()

	var out []domain.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

func scanSnapshot(scan func(...any) error) (*domain.Snapshot, error) {
	var (
		ts            string
		cash          float64
		positionsJSON sql.NullString
		realizedPnL   float64
	)
	if err := scan(&ts, &cash, &positionsJSON, &realizedPnL); err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot timestamp %q: %w", ts, err)
	}

	var positions []domain.Position
	if positionsJSON.Valid && positionsJSON.String != "" {
		if err := json.Unmarshal([]byte(positionsJSON.String), &positions); err != nil {
			return nil, fmt.Errorf("decoding positions: %w", err)
		}
	}

	return &domain.Snapshot{
		Timestamp:   t,
		Cash:        cash,
		Positions:   positions,
		RealizedPnL: realizedPnL,
	}, nil
}

// ---------------------------------------------------------------------------
// Run logs
// ---------------------------------------------------------------------------

// SaveRunLog inserts or replaces a run log. The unique session index makes a
// duplicate (competitor, date, type) overwrite rather than double-log.
func (s *SQLiteStore) SaveRunLog(ctx context.Context, log *domain.RunLog) error {
	callsJSON, err := json.Marshal(log.LLMCalls)
	if err != nil {
		return fmt.Errorf("encoding llm calls: %w", err)
	}
	fillsJSON, err := json.Marshal(log.Fills)
	if err != nil {
		return fmt.Errorf("encoding fills: %w", err)
	}
	errorsJSON, err := json.Marshal(log.Errors)
	if err != nil {
		return fmt.Errorf("encoding errors: %w", err)
	}

	marshalOpt := func(v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}

	var proposalJSON, planJSON, beforeJSON, afterJSON any
	if log.Proposal != nil {
		if proposalJSON, err = marshalOpt(log.Proposal); err != nil {
			return fmt.Errorf("encoding proposal: %w", err)
		}
	}
	if log.TradePlan != nil {
		if planJSON, err = marshalOpt(log.TradePlan); err != nil {
			return fmt.Errorf("encoding trade plan: %w", err)
		}
	}
	if log.Before != nil {
		if beforeJSON, err = marshalOpt(log.Before); err != nil {
			return fmt.Errorf("encoding snapshot before: %w", err)
		}
	}
	if log.After != nil {
		if afterJSON, err = marshalOpt(log.After); err != nil {
			return fmt.Errorf("encoding snapshot after: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO run_logs (
			id, competitor_id, session_date, session_type, timestamp,
			llm_calls_json, strategist_proposal_json, trade_plan_json,
			fills_json, errors_json, snapshot_before_json, snapshot_after_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.RunID, log.CompetitorID, log.SessionDate, string(log.SessionType),
		log.Timestamp.UTC().Format(time.RFC3339Nano),
		string(callsJSON), proposalJSON, planJSON,
		string(fillsJSON), string(errorsJSON), beforeJSON, afterJSON)
	if err != nil {
		return fmt.Errorf("saving run log %s: %w", log.RunID, err)
	}
	return nil
}

// GetRunLog returns a run log by ID, or nil if not found.
func (s *SQLiteStore) GetRunLog(ctx context.Context, runID string) (*domain.RunLog, error) {
	row := s.db.QueryRowContext(ctx, runLogSelect+` WHERE id = ?`, runID)
	log, err := scanRunLog(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading run log %s: %w", runID, err)
	}
	return log, nil
}

// ListRunLogs returns run logs filtered by competitor and/or session date,
// newest first.
func (s *SQLiteStore) ListRunLogs(ctx context.Context, competitorID, sessionDate string, limit int) ([]domain.RunLog, error) {
	query := runLogSelect + ` WHERE 1=1`
	var args []any
	if competitorID != "" {
		query += ` AND competitor_id = ?`
		args = append(args, competitorID)
	}
	if sessionDate != "" {
		query += ` AND session_date = ?`
		args = append(args, sessionDate)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing run logs: %w", err)
	}
	defer rows.Close()

	var out []domain.RunLog
	for rows.Next() {
		log, err := scanRunLog(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *log)
	}
	return out, rows.Err()
}

const runLogSelect = `
	SELECT id, competitor_id, session_date, session_type, timestamp,
	       llm_calls_json, strategist_proposal_json, trade_plan_json,
	       fills_json, errors_json, snapshot_before_json, snapshot_after_json
	FROM run_logs`

func scanRunLog(scan func(...any) error) (*domain.RunLog, error) {
	var (
		log                                          domain.RunLog
		sessionType, ts                              string
		callsJSON, proposalJSON, planJSON            sql.NullString
		fillsJSON, errorsJSON, beforeJSON, afterJSON sql.NullString
	)
	err := scan(&log.RunID, &log.CompetitorID, &log.SessionDate, &sessionType, &ts,
		&callsJSON, &proposalJSON, &planJSON,
		&fillsJSON, &errorsJSON, &beforeJSON, &afterJSON)
	if err != nil {
		return nil, err
	}

	log.SessionType = domain.SessionType(sessionType)
	if log.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return nil, fmt.Errorf("parsing run log timestamp %q: %w", ts, err)
	}

	unmarshalOpt := func(ns sql.NullString, out any) error {
		if !ns.Valid || ns.String == "" {
			return nil
		}
		return json.Unmarshal([]byte(ns.String), out)
	}

	if err := unmarshalOpt(callsJSON, &log.LLMCalls); err != nil {
		return nil, fmt.Errorf("decoding llm calls: %w", err)
	}
	if proposalJSON.Valid && proposalJSON.String != "" {
		log.Proposal = &domain.StrategistProposal{}
		if err := json.Unmarshal([]byte(proposalJSON.String), log.Proposal); err != nil {
			return nil, fmt.Errorf("decoding proposal: %w", err)
		}
	}
	if planJSON.Valid && planJSON.String != "" {
		log.TradePlan = &domain.TradePlan{}
		if err := json.Unmarshal([]byte(planJSON.String), log.TradePlan); err != nil {
			return nil, fmt.Errorf("decoding trade plan: %w", err)
		}
	}
	if err := unmarshalOpt(fillsJSON, &log.Fills); err != nil {
		return nil, fmt.Errorf("decoding fills: %w", err)
	}
	if err := unmarshalOpt(errorsJSON, &log.Errors); err != nil {
		return nil, fmt.Errorf("decoding errors: %w", err)
	}
	if beforeJSON.Valid && beforeJSON.String != "" {
		log.Before = &domain.Snapshot{}
		if err := json.Unmarshal([]byte(beforeJSON.String), log.Before); err != nil {
			return nil, fmt.Errorf("decoding snapshot before: %w", err)
		}
	}
	if afterJSON.Valid && afterJSON.String != "" {
		log.After = &domain.Snapshot{}
		if err := json.Unmarshal([]byte(afterJSON.String), log.After); err != nil {
			return nil, fmt.Errorf("decoding snapshot after: %w", err)
		}
	}
	return &log, nil
}

// ---------------------------------------------------------------------------
// Trades
// ---------------------------------------------------------------------------

// SaveTrade appends an executed fill to the trades table.
func (s *SQLiteStore) SaveTrade(ctx context.Context, competitorID string, fill domain.Fill) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (competitor_id, timestamp, ticker, side, qty, price, fees, slippage, notional)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		competitorID, fill.Timestamp.UTC().Format(time.RFC3339Nano),
		fill.Ticker, string(fill.Side), fill.Qty, fill.FillPrice,
		fill.Fees, fill.Slippage, fill.Notional)
	if err != nil {
		return fmt.Errorf("saving trade for %s: %w", competitorID, err)
	}
	return nil
}

// Trades returns executed trades, newest first. competitorID may be empty to
// return trades for all competitors.
func (s *SQLiteStore) Trades(ctx context.Context, competitorID string, limit int) ([]TradeRow, error) {
	query := `SELECT id, competitor_id, timestamp, ticker, side, qty, price, fees, slippage, notional
		FROM trades WHERE 1=1`
	var args []any
	if competitorID != "" {
		query += ` AND competitor_id = ?`
		args = append(args, competitorID)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRow
	for rows.Next() {
		var t TradeRow
		if err := rows.Scan(&t.ID, &t.CompetitorID, &t.Timestamp, &t.Ticker,
			&t.Side, &t.Qty, &t.Price, &t.Fees, &t.Slippage, &t.Notional); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Session tracking and call counters
// ---------------------------------------------------------------------------

// HasRunToday reports whether a run log exists for the session key.
func (s *SQLiteStore) HasRunToday(ctx context.Context, competitorID, sessionDate string, sessionType domain.SessionType) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM run_logs
		WHERE competitor_id = ? AND session_date = ? AND session_type = ?`,
		competitorID, sessionDate, string(sessionType))

	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("checking run for %s: %w", competitorID, err)
	}
	return count > 0, nil
}

// DailyCallCount returns the number of billed LLM calls for a provider on a
// date (YYYY-MM-DD).
func (s *SQLiteStore) DailyCallCount(ctx context.Context, provider, date string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT count FROM call_counters WHERE provider = ? AND date = ?`, provider, date)

	var count int
	if err := row.Scan(&count); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("loading call count for %s: %w", provider, err)
	}
	return count, nil
}

// IncrementCallCount adds n to the provider's daily counter, creating the
// row if needed.
func (s *SQLiteStore) IncrementCallCount(ctx context.Context, provider, date string, n int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO call_counters (provider, date, count) VALUES (?, ?, ?)
		ON CONFLICT(provider, date) DO UPDATE SET count = count + ?`,
		provider, date, n, n)
	if err != nil {
		return fmt.Errorf("incrementing call count for %s: %w", provider, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Leaderboard
// ---------------------------------------------------------------------------

// Leaderboard computes per-competitor standings sorted by total return.
func (s *SQLiteStore) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	competitors, err := s.ListCompetitors(ctx)
	if err != nil {
		return nil, err
	}

	var board []LeaderboardEntry
	for _, c := range competitors {
		curve, err := s.EquityCurve(ctx, c.ID)
		if err != nil {
			return nil, err
		}

		entry := LeaderboardEntry{
			CompetitorID: c.ID,
			Name:         c.Name,
			Provider:     c.Provider,
			Model:        c.Model,
		}

		row := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM trades WHERE competitor_id = ?`, c.ID)
		if err := row.Scan(&entry.NumTrades); err != nil {
			return nil, fmt.Errorf("counting trades for %s: %w", c.ID, err)
		}

		if len(curve) > 0 {
			equities := make([]float64, len(curve))
			for i, snap := range curve {
				equities[i] = snap.Equity()
			}
			m := sim.ComputeMetrics(equities, c.InitialCash, entry.NumTrades, 0)
			entry.CurrentEquity = m.EndingEquity
			entry.TotalReturn = m.TotalReturn
			entry.MaxDrawdown = m.MaxDrawdown
		}

		board = append(board, entry)
	}

	sort.Slice(board, func(i, j int) bool {
		return board[i].TotalReturn > board[j].TotalReturn
	})
	return board, nil
}

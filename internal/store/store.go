// Package store persists arena state: competitors, portfolio snapshots, run
// logs, executed trades, and daily LLM call counters. SQLite is the system
// of record; Parquet files are the analytics export format.
package store

import (
	"context"

	"llmarena/internal/domain"
)

// TradeRow is one executed trade as persisted in the trades table.
type TradeRow struct {
	ID           int64
	CompetitorID string
	Timestamp    string // RFC 3339
	Ticker       string
	Side         string
	Qty          int
	Price        float64
	Fees         float64
	Slippage     float64
	Notional     float64
}

// LeaderboardEntry summarizes one competitor's standing.
type LeaderboardEntry struct {
	CompetitorID  string
	Name          string
	Provider      string
	Model         string
	CurrentEquity float64
	TotalReturn   float64
	MaxDrawdown   float64
	NumTrades     int
}

// Store is the persistence surface used by the orchestrator and CLI.
type Store interface {
	// Init creates the schema if it does not exist.
	Init(ctx context.Context) error
	Close() error

	SaveCompetitor(ctx context.Context, c domain.Competitor) error
	GetCompetitor(ctx context.Context, id string) (*domain.Competitor, error)
	ListCompetitors(ctx context.Context) ([]domain.Competitor, error)

	SaveSnapshot(ctx context.Context, competitorID string, snap domain.Snapshot) error
	LatestSnapshot(ctx context.Context, competitorID string) (*domain.Snapshot, error)
	EquityCurve(ctx context.Context, competitorID string) ([]domain.Snapshot, error)

	SaveRunLog(ctx context.Context, log *domain.RunLog) error
	GetRunLog(ctx context.Context, runID string) (*domain.RunLog, error)
	ListRunLogs(ctx context.Context, competitorID, sessionDate string, limit int) ([]domain.RunLog, error)

	SaveTrade(ctx context.Context, competitorID string, fill domain.Fill) error
	Trades(ctx context.Context, competitorID string, limit int) ([]TradeRow, error)

	// HasRunToday reports whether a run log exists for the session key.
	// This is the idempotency check behind the gate and the orchestrator.
	HasRunToday(ctx context.Context, competitorID, sessionDate string, sessionType domain.SessionType) (bool, error)

	DailyCallCount(ctx context.Context, provider, date string) (int, error)
	IncrementCallCount(ctx context.Context, provider, date string, n int) error

	Leaderboard(ctx context.Context) ([]LeaderboardEntry, error)
}

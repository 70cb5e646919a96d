package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"
)

// Exporter writes arena history to Parquet files for offline analysis.
type Exporter struct {
	store   Store
	dataDir string
}

// NewExporter creates an Exporter rooted at the given output directory.
func NewExporter(s Store, dataDir string) *Exporter {
	return &Exporter{store: s, dataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// TradeRecord is the Parquet schema for executed trades.
type TradeRecord struct {
	CompetitorID string  `parquet:"competitor_id"`
	Timestamp    string  `parquet:"timestamp"` // RFC 3339
	Ticker       string  `parquet:"ticker"`
	Side         string  `parquet:"side"`
	Qty          int64   `parquet:"qty"`
	Price        float64 `parquet:"price"`
	Fees         float64 `parquet:"fees"`
	Slippage     float64 `parquet:"slippage"`
	Notional     float64 `parquet:"notional"`
}

// EquityRecord is the Parquet schema for equity curve points.
type EquityRecord struct {
	CompetitorID string  `parquet:"competitor_id"`
	Timestamp    int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Cash         float64 `parquet:"cash"`
	RealizedPnL  float64 `parquet:"realized_pnl"`
	Equity       float64 `parquet:"equity"`
}

// ---------------------------------------------------------------------------
// Export operations
// ---------------------------------------------------------------------------

// ExportAll writes trades and equity curves for every competitor. Returns the
// paths written.
func (e *Exporter) ExportAll(ctx context.Context) ([]string, error) {
	competitors, err := e.store.ListCompetitors(ctx)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, c := range competitors {
		p, err := e.ExportTrades(ctx, c.ID)
		if err != nil {
			return paths, err
		}
		if p != "" {
			paths = append(paths, p)
		}

		p, err = e.ExportEquityCurve(ctx, c.ID)
		if err != nil {
			return paths, err
		}
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// ExportTrades writes all of a competitor's trades to
// <dataDir>/<competitor>/trades.parquet. Returns "" when there is nothing
// to write.
func (e *Exporter) ExportTrades(ctx context.Context, competitorID string) (string, error) {
	rows, err := e.store.Trades(ctx, competitorID, 1_000_000)
	if err != nil {
		return "", fmt.Errorf("loading trades for %s: %w", competitorID, err)
	}
	if len(rows) == 0 {
		return "", nil
	}

	records := make([]TradeRecord, 0, len(rows))
	for _, t := range rows {
		records = append(records, TradeRecord{
			CompetitorID: t.CompetitorID,
			Timestamp:    t.Timestamp,
			Ticker:       t.Ticker,
			Side:         t.Side,
			Qty:          int64(t.Qty),
			Price:        t.Price,
			Fees:         t.Fees,
			Slippage:     t.Slippage,
			Notional:     t.Notional,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})

	path := filepath.Join(e.dataDir, competitorID, "trades.parquet")
	if err := writeParquetFile(path, records); err != nil {
		return "", fmt.Errorf("writing trades for %s: %w", competitorID, err)
	}
	return path, nil
}

// ExportEquityCurve writes a competitor's snapshot history to
// <dataDir>/<competitor>/equity.parquet. Returns "" when there is nothing
// to write.
func (e *Exporter) ExportEquityCurve(ctx context.Context, competitorID string) (string, error) {
	curve, err := e.store.EquityCurve(ctx, competitorID)
	if err != nil {
		return "", fmt.Errorf("loading equity curve for %s: %w", competitorID, err)
	}
	if len(curve) == 0 {
		return "", nil
	}

	records := make([]EquityRecord, 0, len(curve))
	for _, snap := range curve {
		records = append(records, EquityRecord{
			CompetitorID: competitorID,
			Timestamp:    snap.Timestamp.UnixMilli(),
			Cash:         snap.Cash,
			RealizedPnL:  snap.RealizedPnL,
			Equity:       snap.Equity(),
		})
	}

	path := filepath.Join(e.dataDir, competitorID, "equity.parquet")
	if err := writeParquetFile(path, records); err != nil {
		return "", fmt.Errorf("writing equity curve for %s: %w", competitorID, err)
	}
	return path, nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

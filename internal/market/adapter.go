package market

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"llmarena/internal/domain"
)

// Adapter provides market data and calendar knowledge for one market.
type Adapter interface {
	// MarketType identifies the market this adapter serves.
	MarketType() domain.MarketType

	// DailyBars returns up to days daily OHLCV bars for a ticker, oldest
	// first.
	DailyBars(ctx context.Context, ticker string, days int) ([]domain.Bar, error)

	// SessionTimes returns the open and close instants for the given day.
	// ok is false on non-trading days.
	SessionTimes(ctx context.Context, day time.Time) (open, close time.Time, ok bool, err error)

	// IsTradingDay reports whether the market trades on the given day.
	IsTradingDay(ctx context.Context, day time.Time) (bool, error)

	// LatestPrice returns the most recent trade or quote price.
	LatestPrice(ctx context.Context, ticker string) (float64, error)

	// Headlines returns recent news headlines for a ticker. Markets without
	// a news source return an empty slice.
	Headlines(ctx context.Context, ticker string, limit int) ([]string, error)
}

// Enricher supplies the fundamental data sections of an equity briefing:
// company fundamentals, the earnings calendar, and insider transactions.
type Enricher interface {
	Fundamentals(ctx context.Context, ticker string) (*Fundamentals, error)
	EarningsCalendar(ctx context.Context, ticker string) (*EarningsEvent, error)
	InsiderActivity(ctx context.Context, ticker string) (*InsiderActivity, error)
}

// LatestPrices fetches prices for all tickers, skipping failures. The
// result only contains tickers that resolved; callers treat a missing entry
// as "no reference price".
func LatestPrices(ctx context.Context, a Adapter, tickers []string) map[string]float64 {
	logger := slog.Default().With("component", "market")

	prices := make(map[string]float64, len(tickers))
	for _, ticker := range tickers {
		ticker = strings.ToUpper(ticker)
		price, err := a.LatestPrice(ctx, ticker)
		if err != nil {
			logger.Warn("price fetch failed", "ticker", ticker, "err", err)
			continue
		}
		if price > 0 {
			prices[ticker] = price
		}
	}
	return prices
}

// BuildBriefings assembles briefings for all tickers. Fetch failures yield
// an empty briefing for that ticker rather than an error; a missing feed
// should degrade the prompt, not abort the session.
func BuildBriefings(ctx context.Context, a Adapter, tickers []string, date string, historyDays, headlineLimit int) []Briefing {
	logger := slog.Default().With("component", "market")

	briefings := make([]Briefing, 0, len(tickers))
	for _, ticker := range tickers {
		ticker = strings.ToUpper(ticker)

		bars, err := a.DailyBars(ctx, ticker, historyDays)
		if err != nil {
			logger.Warn("bar fetch failed", "ticker", ticker, "err", err)
			bars = nil
		}

		headlines, err := a.Headlines(ctx, ticker, headlineLimit)
		if err != nil {
			logger.Warn("news fetch failed", "ticker", ticker, "err", err)
			headlines = nil
		}

		briefings = append(briefings, BuildBriefing(ticker, date, bars, headlines))
	}
	return briefings
}

// EnrichBriefings attaches fundamentals, earnings, and insider data to each
// briefing in place. A failed fetch leaves that section empty; fundamental
// data is extra context, never a precondition.
func EnrichBriefings(ctx context.Context, e Enricher, briefings []Briefing) {
	logger := slog.Default().With("component", "market")

	for i := range briefings {
		b := &briefings[i]

		fundamentals, err := e.Fundamentals(ctx, b.Ticker)
		if err != nil {
			logger.Warn("fundamentals fetch failed", "ticker", b.Ticker, "err", err)
		} else {
			b.Fundamentals = fundamentals
		}

		earnings, err := e.EarningsCalendar(ctx, b.Ticker)
		if err != nil {
			logger.Warn("earnings calendar fetch failed", "ticker", b.Ticker, "err", err)
		} else {
			b.Earnings = earnings
		}

		insider, err := e.InsiderActivity(ctx, b.Ticker)
		if err != nil {
			logger.Warn("insider transactions fetch failed", "ticker", b.Ticker, "err", err)
		} else {
			b.Insider = insider
		}
	}
}

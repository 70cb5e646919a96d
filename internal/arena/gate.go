// Package arena orchestrates trading sessions: the Gate decides whether a
// session should run right now, and the Runner drives each competitor through
// the agent pipeline and the simulated broker.
package arena

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"llmarena/internal/domain"
	"llmarena/internal/market"
	"llmarena/internal/store"
)

// Session window tolerances.
const (
	openEarly    = 5 * time.Minute
	openLate     = 30 * time.Minute
	closeEarly   = 30 * time.Minute
	closeLate    = 5 * time.Minute
	cryptoWindow = 10 * time.Minute

	// NextSession scans at most this many days ahead.
	maxScanDays = 7
)

// Gate decides whether a trading session should run at a given instant. It
// combines the market's calendar with an idempotency backstop against the
// run-log store.
type Gate struct {
	adapters    map[domain.MarketType]market.Adapter
	store       store.Store
	competitors []domain.Competitor
	log         *slog.Logger
}

// NewGate creates a Gate over the given market adapters and competitors.
func NewGate(adapters map[domain.MarketType]market.Adapter, st store.Store, competitors []domain.Competitor) *Gate {
	return &Gate{
		adapters:    adapters,
		store:       st,
		competitors: competitors,
		log:         slog.Default().With("component", "gate"),
	}
}

// ShouldRun reports whether the session may run at now. The reason is "OK"
// for an eligible session; a false result with an empty error carries a
// machine-readable reason: "not_trading_day", "no_session",
// "outside_window", or "already_ran".
func (g *Gate) ShouldRun(ctx context.Context, marketType domain.MarketType, sessionType domain.SessionType, now time.Time) (bool, string, error) {
	adapter, ok := g.adapters[marketType]
	if !ok {
		return false, "", fmt.Errorf("no adapter for market %s", marketType)
	}

	trading, err := adapter.IsTradingDay(ctx, now)
	if err != nil {
		return false, "", fmt.Errorf("checking trading day: %w", err)
	}
	if !trading {
		return false, "not_trading_day", nil
	}

	open, close, haveSession, err := adapter.SessionTimes(ctx, now)
	if err != nil {
		return false, "", fmt.Errorf("loading session times: %w", err)
	}
	if !haveSession {
		return false, "no_session", nil
	}

	if !inWindow(marketType, sessionType, open, close, now) {
		return false, "outside_window", nil
	}

	// Idempotency backstop. If any competitor already has a run log for this
	// session key, a previous invocation got at least partway through, so the
	// gate fails closed rather than double-run.
	sessionDate := now.Format("2006-01-02")
	for _, c := range g.competitors {
		ran, err := g.store.HasRunToday(ctx, c.ID, sessionDate, sessionType)
		if err != nil {
			return false, "", fmt.Errorf("checking run log for %s: %w", c.ID, err)
		}
		if ran {
			g.log.Info("session already ran", "competitor", c.ID,
				"date", sessionDate, "session", sessionType)
			return false, "already_ran", nil
		}
	}

	return true, "OK", nil
}

// inWindow applies the per-market session window. Exchange-traded markets get
// asymmetric windows biased toward the inside of the trading day; crypto
// sessions are symmetric around the configured instants.
func inWindow(marketType domain.MarketType, sessionType domain.SessionType, open, close, now time.Time) bool {
	if marketType == domain.MarketCrypto {
		target := open
		if sessionType == domain.SessionClose {
			target = close
		}
		diff := now.Sub(target)
		if diff < 0 {
			diff = -diff
		}
		return diff <= cryptoWindow
	}

	switch sessionType {
	case domain.SessionOpen:
		return !now.Before(open.Add(-openEarly)) && !now.After(open.Add(openLate))
	case domain.SessionClose:
		return !now.Before(close.Add(-closeEarly)) && !now.After(close.Add(closeLate))
	}
	return false
}

// NextSession describes the next upcoming session instant.
type NextSession struct {
	Market      domain.MarketType
	SessionType domain.SessionType
	Time        time.Time
}

// NextSession scans from now through the next seven days and returns the
// earliest session instant that has not yet passed, across all configured
// markets. ok is false when no market has a session in that horizon.
func (g *Gate) NextSession(ctx context.Context, now time.Time) (NextSession, bool, error) {
	// Deterministic market order.
	markets := make([]domain.MarketType, 0, len(g.adapters))
	for mt := range g.adapters {
		markets = append(markets, mt)
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i] < markets[j] })

	var best NextSession
	found := false

	for dayOffset := 0; dayOffset <= maxScanDays; dayOffset++ {
		day := now.AddDate(0, 0, dayOffset)

		for _, mt := range markets {
			adapter := g.adapters[mt]

			trading, err := adapter.IsTradingDay(ctx, day)
			if err != nil {
				return NextSession{}, false, fmt.Errorf("checking trading day: %w", err)
			}
			if !trading {
				continue
			}

			open, close, haveSession, err := adapter.SessionTimes(ctx, day)
			if err != nil {
				return NextSession{}, false, fmt.Errorf("loading session times: %w", err)
			}
			if !haveSession {
				continue
			}

			for _, cand := range []NextSession{
				{Market: mt, SessionType: domain.SessionOpen, Time: open},
				{Market: mt, SessionType: domain.SessionClose, Time: close},
			} {
				if cand.Time.Before(now) {
					continue
				}
				if !found || cand.Time.Before(best.Time) {
					best = cand
					found = true
				}
			}
		}

		// Sessions only get later on subsequent days.
		if found {
			return best, true, nil
		}
	}

	return NextSession{}, false, nil
}

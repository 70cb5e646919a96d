package arena

// Shared test fakes: an in-memory store, a scripted market adapter, and a
// scripted model client.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"llmarena/internal/domain"
	"llmarena/internal/llm"
	"llmarena/internal/store"
)

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

var _ store.Store = (*memStore)(nil)

type memStore struct {
	competitors map[string]domain.Competitor
	snapshots   map[string][]domain.Snapshot
	runLogs     []*domain.RunLog
	trades      map[string][]domain.Fill
	counters    map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		competitors: make(map[string]domain.Competitor),
		snapshots:   make(map[string][]domain.Snapshot),
		trades:      make(map[string][]domain.Fill),
		counters:    make(map[string]int),
	}
}

func (m *memStore) Init(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

func (m *memStore) SaveCompetitor(_ context.Context, c domain.Competitor) error {
	m.competitors[c.ID] = c
	return nil
}

func (m *memStore) GetCompetitor(_ context.Context, id string) (*domain.Competitor, error) {
	c, ok := m.competitors[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memStore) ListCompetitors(context.Context) ([]domain.Competitor, error) {
	var out []domain.Competitor
	for _, c := range m.competitors {
		out = append(out, c)
	}
	return out, nil
}

func (m *memStore) SaveSnapshot(_ context.Context, competitorID string, snap domain.Snapshot) error {
	m.snapshots[competitorID] = append(m.snapshots[competitorID], snap)
	return nil
}

func (m *memStore) LatestSnapshot(_ context.Context, competitorID string) (*domain.Snapshot, error) {
	snaps := m.snapshots[competitorID]
	if len(snaps) == 0 {
		return nil, nil
	}
	snap := snaps[len(snaps)-1]
	return &snap, nil
}

func (m *memStore) EquityCurve(_ context.Context, competitorID string) ([]domain.Snapshot, error) {
	return m.snapshots[competitorID], nil
}

func (m *memStore) SaveRunLog(_ context.Context, log *domain.RunLog) error {
	m.runLogs = append(m.runLogs, log)
	return nil
}

func (m *memStore) GetRunLog(_ context.Context, runID string) (*domain.RunLog, error) {
	for _, l := range m.runLogs {
		if l.RunID == runID {
			return l, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListRunLogs(_ context.Context, competitorID, sessionDate string, limit int) ([]domain.RunLog, error) {
	var out []domain.RunLog
	for _, l := range m.runLogs {
		if competitorID != "" && l.CompetitorID != competitorID {
			continue
		}
		if sessionDate != "" && l.SessionDate != sessionDate {
			continue
		}
		out = append(out, *l)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) SaveTrade(_ context.Context, competitorID string, fill domain.Fill) error {
	m.trades[competitorID] = append(m.trades[competitorID], fill)
	return nil
}

func (m *memStore) Trades(_ context.Context, competitorID string, limit int) ([]store.TradeRow, error) {
	var out []store.TradeRow
	for _, f := range m.trades[competitorID] {
		out = append(out, store.TradeRow{
			CompetitorID: competitorID,
			Ticker:       f.Ticker,
			Side:         string(f.Side),
			Qty:          f.Qty,
			Price:        f.FillPrice,
			Notional:     f.Notional,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) HasRunToday(_ context.Context, competitorID, sessionDate string, sessionType domain.SessionType) (bool, error) {
	for _, l := range m.runLogs {
		if l.CompetitorID == competitorID && l.SessionDate == sessionDate && l.SessionType == sessionType {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) DailyCallCount(_ context.Context, provider, date string) (int, error) {
	return m.counters[provider+"|"+date], nil
}

func (m *memStore) IncrementCallCount(_ context.Context, provider, date string, n int) error {
	m.counters[provider+"|"+date] += n
	return nil
}

func (m *memStore) Leaderboard(context.Context) ([]store.LeaderboardEntry, error) {
	return nil, nil
}

// ---------------------------------------------------------------------------
// Scripted market adapter
// ---------------------------------------------------------------------------

type stubAdapter struct {
	marketType  domain.MarketType
	open, close time.Time
	haveSession bool
	tradingDay  bool
	prices      map[string]float64
	bars        map[string][]domain.Bar
}

func (s *stubAdapter) MarketType() domain.MarketType { return s.marketType }

func (s *stubAdapter) DailyBars(_ context.Context, ticker string, _ int) ([]domain.Bar, error) {
	return s.bars[ticker], nil
}

func (s *stubAdapter) SessionTimes(_ context.Context, day time.Time) (time.Time, time.Time, bool, error) {
	if !s.haveSession {
		return time.Time{}, time.Time{}, false, nil
	}
	open := time.Date(day.Year(), day.Month(), day.Day(), s.open.Hour(), s.open.Minute(), 0, 0, day.Location())
	close := time.Date(day.Year(), day.Month(), day.Day(), s.close.Hour(), s.close.Minute(), 0, 0, day.Location())
	return open, close, true, nil
}

func (s *stubAdapter) IsTradingDay(context.Context, time.Time) (bool, error) {
	return s.tradingDay, nil
}

func (s *stubAdapter) LatestPrice(_ context.Context, ticker string) (float64, error) {
	p, ok := s.prices[ticker]
	if !ok {
		return 0, fmt.Errorf("no price for %s", ticker)
	}
	return p, nil
}

func (s *stubAdapter) Headlines(context.Context, string, int) ([]string, error) {
	return nil, nil
}

func equityStub(prices map[string]float64) *stubAdapter {
	return &stubAdapter{
		marketType:  domain.MarketUSEquity,
		open:        time.Date(0, 1, 1, 9, 30, 0, 0, time.UTC),
		close:       time.Date(0, 1, 1, 16, 0, 0, 0, time.UTC),
		haveSession: true,
		tradingDay:  true,
		prices:      prices,
	}
}

// ---------------------------------------------------------------------------
// Scripted model client
// ---------------------------------------------------------------------------

type scriptedClient struct {
	responses []string // per call; "" means a transport error
	calls     int
	requests  []llm.Request
}

func (c *scriptedClient) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.requests = append(c.requests, req)
	idx := c.calls
	c.calls++
	if idx >= len(c.responses) {
		return nil, errors.New("no scripted response")
	}
	if c.responses[idx] == "" {
		return nil, errors.New("simulated transport error")
	}
	return &llm.Response{Content: c.responses[idx], PromptTokens: 10, CompletionTokens: 5, LatencyMS: 3}, nil
}

func (c *scriptedClient) Provider() string { return "openrouter" }
func (c *scriptedClient) Model() string    { return "test/model" }

const validProposal = `{
	"session_date": "2026-03-02",
	"session_type": "OPEN",
	"market_summary": "tech strength",
	"proposals": [
		{"ticker": "AAPL", "action": "BUY", "confidence": 0.8, "rationale": "uptrend"}
	]
}`

const validPlan = `{
	"reasoning": "approved AAPL buy",
	"risk_assessment": "concentration within limits",
	"orders": [
		{"ticker": "AAPL", "side": "BUY", "qty": 10, "order_type": "MARKET"}
	]
}`

const holdPlan = `{
	"reasoning": "no conviction",
	"risk_assessment": "flat",
	"orders": []
}`

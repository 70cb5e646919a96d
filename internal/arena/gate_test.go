package arena

import (
	"context"
	"testing"
	"time"

	"llmarena/internal/domain"
	"llmarena/internal/market"
	"llmarena/internal/store"
)

func testGate(adapter market.Adapter, st store.Store) *Gate {
	return NewGate(
		map[domain.MarketType]market.Adapter{adapter.MarketType(): adapter},
		st,
		[]domain.Competitor{{ID: "gpt", Provider: "openrouter"}},
	)
}

func TestGateOpenWindow(t *testing.T) {
	g := testGate(equityStub(nil), newMemStore())
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"five minutes early", day.Add(9*time.Hour + 25*time.Minute), true},
		{"at the open", day.Add(9*time.Hour + 30*time.Minute), true},
		{"thirty minutes after", day.Add(10 * time.Hour), true},
		{"six minutes early", day.Add(9*time.Hour + 24*time.Minute), false},
		{"too late", day.Add(10*time.Hour + 1*time.Minute), false},
	}

	for _, tt := range tests {
		ok, reason, err := g.ShouldRun(ctx, domain.MarketUSEquity, domain.SessionOpen, tt.now)
		if err != nil {
			t.Fatalf("%s: ShouldRun failed: %v", tt.name, err)
		}
		if ok != tt.want {
			t.Errorf("%s: ok = %v (reason %q), want %v", tt.name, ok, reason, tt.want)
		}
		if ok && reason != "OK" {
			t.Errorf("%s: reason = %q, want OK", tt.name, reason)
		}
		if !ok && reason != "outside_window" {
			t.Errorf("%s: reason = %q, want outside_window", tt.name, reason)
		}
	}
}

func TestGateCloseWindow(t *testing.T) {
	g := testGate(equityStub(nil), newMemStore())
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		now  time.Time
		want bool
	}{
		{day.Add(15*time.Hour + 30*time.Minute), true},  // 30m before close
		{day.Add(16*time.Hour + 5*time.Minute), true},   // 5m after close
		{day.Add(15*time.Hour + 29*time.Minute), false}, // too early
		{day.Add(16*time.Hour + 6*time.Minute), false},  // too late
	}

	for _, tt := range tests {
		ok, _, err := g.ShouldRun(ctx, domain.MarketUSEquity, domain.SessionClose, tt.now)
		if err != nil {
			t.Fatalf("ShouldRun failed: %v", err)
		}
		if ok != tt.want {
			t.Errorf("at %v: ok = %v, want %v", tt.now, ok, tt.want)
		}
	}
}

func TestGateNotTradingDay(t *testing.T) {
	adapter := equityStub(nil)
	adapter.tradingDay = false
	g := testGate(adapter, newMemStore())

	ok, reason, err := g.ShouldRun(context.Background(), domain.MarketUSEquity,
		domain.SessionOpen, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ShouldRun failed: %v", err)
	}
	if ok || reason != "not_trading_day" {
		t.Errorf("ok = %v, reason = %q, want closed with not_trading_day", ok, reason)
	}
}

func TestGateCryptoWindow(t *testing.T) {
	adapter := &stubAdapter{
		marketType:  domain.MarketCrypto,
		open:        time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC),
		close:       time.Date(0, 1, 1, 12, 0, 0, 0, time.UTC),
		haveSession: true,
		tradingDay:  true,
	}
	g := testGate(adapter, newMemStore())
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		session domain.SessionType
		now     time.Time
		want    bool
	}{
		{domain.SessionOpen, day.Add(5 * time.Minute), true},
		{domain.SessionOpen, day.Add(10 * time.Minute), true},
		{domain.SessionOpen, day.Add(11 * time.Minute), false},
		{domain.SessionClose, day.Add(11*time.Hour + 51*time.Minute), true},
		{domain.SessionClose, day.Add(13 * time.Hour), false},
	}

	for _, tt := range tests {
		ok, _, err := g.ShouldRun(ctx, domain.MarketCrypto, tt.session, tt.now)
		if err != nil {
			t.Fatalf("ShouldRun failed: %v", err)
		}
		if ok != tt.want {
			t.Errorf("%s at %v: ok = %v, want %v", tt.session, tt.now, ok, tt.want)
		}
	}
}

func TestGateAlreadyRanBackstop(t *testing.T) {
	st := newMemStore()
	g := testGate(equityStub(nil), st)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	st.SaveRunLog(ctx, &domain.RunLog{
		RunID:        "r1",
		CompetitorID: "gpt",
		SessionDate:  "2026-03-02",
		SessionType:  domain.SessionOpen,
		Timestamp:    now,
	})

	ok, reason, err := g.ShouldRun(ctx, domain.MarketUSEquity, domain.SessionOpen, now)
	if err != nil {
		t.Fatalf("ShouldRun failed: %v", err)
	}
	if ok || reason != "already_ran" {
		t.Errorf("ok = %v, reason = %q, want closed with already_ran", ok, reason)
	}

	// The CLOSE session is a separate key and stays open.
	ok, reason, err = g.ShouldRun(ctx, domain.MarketUSEquity, domain.SessionClose,
		time.Date(2026, 3, 2, 15, 45, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ShouldRun failed: %v", err)
	}
	if !ok || reason != "OK" {
		t.Errorf("ok = %v, reason = %q, want open with OK", ok, reason)
	}
}

func TestNextSession(t *testing.T) {
	g := testGate(equityStub(nil), newMemStore())
	ctx := context.Background()

	// Before the open: next session is today's open.
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	next, ok, err := g.NextSession(ctx, now)
	if err != nil {
		t.Fatalf("NextSession failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a session in the scan horizon")
	}
	if next.SessionType != domain.SessionOpen || next.Time.Hour() != 9 || next.Time.Minute() != 30 {
		t.Errorf("next = %+v, want today's 09:30 OPEN", next)
	}

	// Between open and close: next session is today's close.
	now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	next, ok, err = g.NextSession(ctx, now)
	if err != nil || !ok {
		t.Fatalf("NextSession failed: ok=%v err=%v", ok, err)
	}
	if next.SessionType != domain.SessionClose || next.Time.Hour() != 16 {
		t.Errorf("next = %+v, want today's 16:00 CLOSE", next)
	}

	// After the close: next session rolls to tomorrow's open.
	now = time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)
	next, ok, err = g.NextSession(ctx, now)
	if err != nil || !ok {
		t.Fatalf("NextSession failed: ok=%v err=%v", ok, err)
	}
	if next.SessionType != domain.SessionOpen || next.Time.Day() != 3 {
		t.Errorf("next = %+v, want tomorrow's OPEN", next)
	}
}

func TestNextSessionNoTradingDays(t *testing.T) {
	adapter := equityStub(nil)
	adapter.tradingDay = false
	g := testGate(adapter, newMemStore())

	_, ok, err := g.NextSession(context.Background(), time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NextSession failed: %v", err)
	}
	if ok {
		t.Error("no trading days in horizon, ok should be false")
	}
}

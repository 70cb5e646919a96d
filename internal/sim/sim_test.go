package sim

import (
	"math"
	"testing"
	"time"

	"llmarena/internal/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFillEngineBuy(t *testing.T) {
	e := NewFillEngine(10, 10) // 0.1% slippage, 0.1% fees
	ts := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

	order := domain.Order{Ticker: "AAPL", Side: domain.SideBuy, Qty: 10, Type: domain.OrderMarket}
	fill := e.Fill(order, 100.0, ts)

	if !almostEqual(fill.FillPrice, 100.10) {
		t.Errorf("FillPrice = %v, want 100.10", fill.FillPrice)
	}
	if !almostEqual(fill.Notional, 1001.0) {
		t.Errorf("Notional = %v, want 1001.0", fill.Notional)
	}
	if !almostEqual(fill.Fees, 1.001) {
		t.Errorf("Fees = %v, want 1.001", fill.Fees)
	}
	if !almostEqual(fill.Slippage, 1.0) {
		t.Errorf("Slippage = %v, want 1.0", fill.Slippage)
	}
}

func TestFillEngineSellSlippageNegative(t *testing.T) {
	e := NewFillEngine(10, 10)

	order := domain.Order{Ticker: "AAPL", Side: domain.SideSell, Qty: 5, Type: domain.OrderMarket}
	fill := e.Fill(order, 200.0, time.Now())

	if !almostEqual(fill.FillPrice, 199.80) {
		t.Errorf("FillPrice = %v, want 199.80", fill.FillPrice)
	}
	if fill.Slippage >= 0 {
		t.Errorf("sell Slippage = %v, want negative", fill.Slippage)
	}
	if !almostEqual(fill.Slippage, -1.0) {
		t.Errorf("Slippage = %v, want -1.0", fill.Slippage)
	}
}

func TestFillEngineZeroParams(t *testing.T) {
	e := NewFillEngine(0, 0)
	order := domain.Order{Ticker: "BTC-USD", Side: domain.SideBuy, Qty: 1, Type: domain.OrderMarket}
	fill := e.Fill(order, 50000.0, time.Now())

	if !almostEqual(fill.FillPrice, 50000.0) || !almostEqual(fill.Fees, 0) || !almostEqual(fill.Slippage, 0) {
		t.Errorf("zero-parameter fill altered price or charged fees: %+v", fill)
	}
}

func TestBrokerBuyThenSell(t *testing.T) {
	b := NewBroker(100000, 0, 0, 1.0) // no slippage or fees for clean numbers
	ts := time.Now()

	buy := domain.Order{Ticker: "aapl", Side: domain.SideBuy, Qty: 100, Type: domain.OrderMarket}
	fill, reason := b.Execute(buy, 100.0, ts)
	if fill == nil {
		t.Fatalf("buy rejected: %s", reason)
	}
	if !almostEqual(b.Cash(), 90000) {
		t.Errorf("cash after buy = %v, want 90000", b.Cash())
	}
	if got := b.PositionQty("AAPL"); got != 100 {
		t.Errorf("position qty = %d, want 100", got)
	}

	sell := domain.Order{Ticker: "AAPL", Side: domain.SideSell, Qty: 100, Type: domain.OrderMarket}
	fill, reason = b.Execute(sell, 110.0, ts)
	if fill == nil {
		t.Fatalf("sell rejected: %s", reason)
	}
	if !almostEqual(b.Cash(), 101000) {
		t.Errorf("cash after sell = %v, want 101000", b.Cash())
	}
	if !almostEqual(b.RealizedPnL(), 1000) {
		t.Errorf("realized PnL = %v, want 1000", b.RealizedPnL())
	}
	if b.Position("AAPL") != nil {
		t.Error("fully closed position should be removed from the ledger")
	}
}

func TestBrokerAverageIn(t *testing.T) {
	b := NewBroker(100000, 0, 0, 1.0)
	ts := time.Now()

	b.Execute(domain.Order{Ticker: "MSFT", Side: domain.SideBuy, Qty: 10, Type: domain.OrderMarket}, 100.0, ts)
	b.Execute(domain.Order{Ticker: "MSFT", Side: domain.SideBuy, Qty: 10, Type: domain.OrderMarket}, 200.0, ts)

	pos := b.Position("MSFT")
	if pos == nil {
		t.Fatal("position missing after two buys")
	}
	if pos.Qty != 20 {
		t.Errorf("qty = %d, want 20", pos.Qty)
	}
	if !almostEqual(pos.AvgCost, 150.0) {
		t.Errorf("avg cost = %v, want 150.0", pos.AvgCost)
	}
}

func TestBrokerInsufficientCash(t *testing.T) {
	b := NewBroker(1000, 0, 0, 1.0)

	order := domain.Order{Ticker: "AAPL", Side: domain.SideBuy, Qty: 100, Type: domain.OrderMarket}
	fill, reason := b.Execute(order, 100.0, time.Now())

	if fill != nil {
		t.Fatal("buy beyond available cash should be rejected")
	}
	if reason == "" {
		t.Error("rejection should carry a reason")
	}
	if !almostEqual(b.Cash(), 1000) {
		t.Errorf("rejected order mutated cash: %v", b.Cash())
	}
}

func TestBrokerCashBuffer(t *testing.T) {
	// Exactly affordable at face value but not with the 0.5% buffer.
	b := NewBroker(10000, 0, 0, 1.0)

	order := domain.Order{Ticker: "AAPL", Side: domain.SideBuy, Qty: 100, Type: domain.OrderMarket}
	if ok, _ := b.Validate(order, 100.0); ok {
		t.Error("order costing exactly the cash balance should fail the buffered check")
	}
}

func TestBrokerConcentrationLimit(t *testing.T) {
	b := NewBroker(100000, 0, 0, 0.25)

	// 30k of a 100k portfolio exceeds the 25% cap.
	order := domain.Order{Ticker: "NVDA", Side: domain.SideBuy, Qty: 300, Type: domain.OrderMarket}
	fill, reason := b.Execute(order, 100.0, time.Now())
	if fill != nil {
		t.Fatalf("concentrated buy should be rejected, got fill %+v", fill)
	}
	if reason == "" {
		t.Error("rejection should carry a reason")
	}

	// A 20k position passes.
	order.Qty = 200
	fill, reason = b.Execute(order, 100.0, time.Now())
	if fill == nil {
		t.Fatalf("order within limit rejected: %s", reason)
	}
}

func TestBrokerSellMoreThanHeld(t *testing.T) {
	b := NewBroker(100000, 0, 0, 1.0)
	ts := time.Now()

	b.Execute(domain.Order{Ticker: "AAPL", Side: domain.SideBuy, Qty: 10, Type: domain.OrderMarket}, 100.0, ts)

	sell := domain.Order{Ticker: "AAPL", Side: domain.SideSell, Qty: 20, Type: domain.OrderMarket}
	fill, _ := b.Execute(sell, 100.0, ts)
	if fill != nil {
		t.Fatal("sell of more shares than held should be rejected")
	}
	if got := b.PositionQty("AAPL"); got != 10 {
		t.Errorf("rejected sell mutated position: qty = %d, want 10", got)
	}
}

func TestBrokerSellUnheldTicker(t *testing.T) {
	b := NewBroker(100000, 0, 0, 1.0)

	sell := domain.Order{Ticker: "TSLA", Side: domain.SideSell, Qty: 1, Type: domain.OrderMarket}
	if fill, _ := b.Execute(sell, 100.0, time.Now()); fill != nil {
		t.Fatal("short sale should be rejected")
	}
}

func TestBrokerRejectsNonPositive(t *testing.T) {
	b := NewBroker(100000, 0, 0, 1.0)

	if ok, _ := b.Validate(domain.Order{Ticker: "AAPL", Side: domain.SideBuy, Qty: 0, Type: domain.OrderMarket}, 100.0); ok {
		t.Error("zero quantity should be rejected")
	}
	if ok, _ := b.Validate(domain.Order{Ticker: "AAPL", Side: domain.SideBuy, Qty: 10, Type: domain.OrderMarket}, 0); ok {
		t.Error("zero reference price should be rejected")
	}
	if ok, _ := b.Validate(domain.Order{Ticker: "AAPL", Side: domain.SideBuy, Qty: -5, Type: domain.OrderMarket}, 100.0); ok {
		t.Error("negative quantity should be rejected")
	}
}

func TestBrokerExecuteAllMissingPrice(t *testing.T) {
	b := NewBroker(100000, 0, 0, 1.0)

	orders := []domain.Order{
		{Ticker: "AAPL", Side: domain.SideBuy, Qty: 10, Type: domain.OrderMarket},
		{Ticker: "XXXX", Side: domain.SideBuy, Qty: 10, Type: domain.OrderMarket},
	}
	prices := map[string]float64{"AAPL": 100.0}

	fills, rejections := b.ExecuteAll(orders, prices, time.Now())
	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(fills))
	}
	if len(rejections) != 1 {
		t.Fatalf("rejections = %d, want 1", len(rejections))
	}
	if fills[0].Ticker != "AAPL" {
		t.Errorf("filled ticker = %s, want AAPL", fills[0].Ticker)
	}
}

func TestBrokerInvariantsWithFees(t *testing.T) {
	b := NewBroker(10000, 10, 10, 1.0)
	ts := time.Now()

	b.Execute(domain.Order{Ticker: "AAPL", Side: domain.SideBuy, Qty: 50, Type: domain.OrderMarket}, 100.0, ts)
	b.Execute(domain.Order{Ticker: "AAPL", Side: domain.SideSell, Qty: 30, Type: domain.OrderMarket}, 105.0, ts)

	if b.Cash() < 0 {
		t.Errorf("cash went negative: %v", b.Cash())
	}
	snap := b.Snapshot(ts)
	for _, p := range snap.Positions {
		if p.Qty <= 0 {
			t.Errorf("position %s has non-positive qty %d", p.Ticker, p.Qty)
		}
	}
}

func TestBrokerLoad(t *testing.T) {
	b := NewBroker(100000, 0, 0, 1.0)
	b.Load(55000, 1234.5, []domain.Position{
		{Ticker: "aapl", Qty: 100, AvgCost: 150, CurrentPrice: 160},
	})

	if !almostEqual(b.Cash(), 55000) {
		t.Errorf("cash = %v, want 55000", b.Cash())
	}
	if !almostEqual(b.RealizedPnL(), 1234.5) {
		t.Errorf("realized PnL = %v, want 1234.5", b.RealizedPnL())
	}
	pos := b.Position("AAPL")
	if pos == nil || pos.Qty != 100 {
		t.Fatalf("loaded position not found or wrong qty: %+v", pos)
	}

	snap := b.Snapshot(time.Now())
	if !almostEqual(snap.Equity(), 55000+100*160) {
		t.Errorf("equity = %v, want %v", snap.Equity(), 55000.0+100*160)
	}
}

func TestBrokerUpdatePrices(t *testing.T) {
	b := NewBroker(100000, 0, 0, 1.0)
	b.Execute(domain.Order{Ticker: "AAPL", Side: domain.SideBuy, Qty: 10, Type: domain.OrderMarket}, 100.0, time.Now())

	b.UpdatePrices(map[string]float64{"aapl": 120.0, "MSFT": 300.0})

	pos := b.Position("AAPL")
	if !almostEqual(pos.CurrentPrice, 120.0) {
		t.Errorf("current price = %v, want 120.0", pos.CurrentPrice)
	}
	if !almostEqual(pos.UnrealizedPnL(), 200.0) {
		t.Errorf("unrealized PnL = %v, want 200.0", pos.UnrealizedPnL())
	}
}

func TestComputeMetrics(t *testing.T) {
	curve := []float64{100000, 105000, 102000, 110000}
	m := ComputeMetrics(curve, 100000, 7, 50000)

	if !almostEqual(m.TotalReturn, 0.10) {
		t.Errorf("TotalReturn = %v, want 0.10", m.TotalReturn)
	}
	if !almostEqual(m.TotalReturnAbs, 10000) {
		t.Errorf("TotalReturnAbs = %v, want 10000", m.TotalReturnAbs)
	}
	// Trough 102000 after peak 105000.
	wantDD := (105000.0 - 102000.0) / 105000.0
	if !almostEqual(m.MaxDrawdown, wantDD) {
		t.Errorf("MaxDrawdown = %v, want %v", m.MaxDrawdown, wantDD)
	}
	if !almostEqual(m.PeakEquity, 110000) {
		t.Errorf("PeakEquity = %v, want 110000", m.PeakEquity)
	}
	if m.NumTrades != 7 {
		t.Errorf("NumTrades = %d, want 7", m.NumTrades)
	}
	if m.SharpeRatio == 0 {
		t.Error("SharpeRatio should be nonzero for a non-flat curve")
	}
}

func TestComputeMetricsEmptyCurve(t *testing.T) {
	m := ComputeMetrics(nil, 100000, 0, 0)
	if !almostEqual(m.StartingEquity, 100000) {
		t.Errorf("StartingEquity = %v, want 100000", m.StartingEquity)
	}
	if m.TotalReturn != 0 || m.MaxDrawdown != 0 {
		t.Errorf("empty curve should yield zero metrics: %+v", m)
	}
}

func TestComputeMetricsFlatCurve(t *testing.T) {
	m := ComputeMetrics([]float64{100000, 100000, 100000}, 100000, 0, 0)
	if m.SharpeRatio != 0 {
		t.Errorf("flat curve Sharpe = %v, want 0", m.SharpeRatio)
	}
	if m.MaxDrawdown != 0 {
		t.Errorf("flat curve drawdown = %v, want 0", m.MaxDrawdown)
	}
}

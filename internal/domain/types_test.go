package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestPositionMath(t *testing.T) {
	p := Position{Ticker: "AAPL", Qty: 100, AvgCost: 150, CurrentPrice: 160}

	if got := p.MarketValue(); got != 16000 {
		t.Errorf("MarketValue = %v, want 16000", got)
	}
	if got := p.UnrealizedPnL(); got != 1000 {
		t.Errorf("UnrealizedPnL = %v, want 1000", got)
	}

	zero := Position{Ticker: "AAPL"}
	if got := zero.UnrealizedPnL(); got != 0 {
		t.Errorf("zero-qty UnrealizedPnL = %v, want 0", got)
	}
}

func TestSnapshotEquity(t *testing.T) {
	s := Snapshot{
		Timestamp: time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC),
		Cash:      50000,
		Positions: []Position{
			{Ticker: "AAPL", Qty: 100, AvgCost: 150, CurrentPrice: 160},
			{Ticker: "MSFT", Qty: 10, AvgCost: 400, CurrentPrice: 390},
		},
	}

	if got := s.PositionsValue(); got != 16000+3900 {
		t.Errorf("PositionsValue = %v, want 19900", got)
	}
	if got := s.Equity(); got != 69900 {
		t.Errorf("Equity = %v, want 69900", got)
	}
	if got := s.UnrealizedPnL(); math.Abs(got-900) > 1e-9 {
		t.Errorf("UnrealizedPnL = %v, want 900", got)
	}

	empty := Snapshot{Cash: 1000}
	if got := empty.Equity(); got != 1000 {
		t.Errorf("cash-only Equity = %v, want 1000", got)
	}
}

func TestProposalActionable(t *testing.T) {
	p := StrategistProposal{
		Proposals: []TickerProposal{
			{Ticker: "AAPL", Action: ActionBuy, Confidence: 0.8},
			{Ticker: "MSFT", Action: ActionHold, Confidence: 0.5},
			{Ticker: "NVDA", Action: ActionSell, Confidence: 0.7},
		},
	}

	got := p.Actionable()
	if len(got) != 2 {
		t.Fatalf("Actionable = %d proposals, want 2", len(got))
	}
	if got[0].Ticker != "AAPL" || got[1].Ticker != "NVDA" {
		t.Errorf("Actionable = %+v", got)
	}
}

func TestTradePlanIsHold(t *testing.T) {
	hold := TradePlan{Reasoning: "no conviction"}
	if !hold.IsHold() {
		t.Error("empty orders should be a hold")
	}

	active := TradePlan{Orders: []Order{{Ticker: "AAPL", Side: SideBuy, Qty: 10, Type: OrderMarket}}}
	if active.IsHold() {
		t.Error("plan with orders is not a hold")
	}
}

func TestRunLogJSONFieldNames(t *testing.T) {
	log := RunLog{
		RunID:        "r1",
		CompetitorID: "gpt",
		SessionDate:  "2026-03-02",
		SessionType:  SessionOpen,
		LLMCalls:     []LLMCall{{CallType: "strategist", Success: true}},
	}

	data, err := json.Marshal(log)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, key := range []string{"run_id", "competitor_id", "session_date", "session_type", "llm_calls"} {
		if _, ok := m[key]; !ok {
			t.Errorf("serialized run log missing %q", key)
		}
	}
	// Optional sections are omitted when unset.
	if _, ok := m["strategist_proposal"]; ok {
		t.Error("nil proposal should be omitted")
	}
}

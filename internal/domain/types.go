// Package domain defines the core data types shared across the arena:
// orders, fills, positions, portfolio snapshots, agent outputs, and the
// per-session run log.
package domain

import "time"

// ---------------------------------------------------------------------------
// Markets and sessions
// ---------------------------------------------------------------------------

// MarketType identifies a market an arena can trade.
type MarketType string

const (
	MarketUSEquity MarketType = "us_equity"
	MarketCrypto   MarketType = "crypto"
)

// SessionType identifies which evaluation window a session belongs to.
type SessionType string

const (
	SessionOpen  SessionType = "OPEN"
	SessionClose SessionType = "CLOSE"
)

// Bar is a single daily OHLCV bar.
type Bar struct {
	Ticker    string    `json:"ticker"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// ---------------------------------------------------------------------------
// Orders and fills
// ---------------------------------------------------------------------------

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType is the execution type of an order. Only market orders are
// supported.
type OrderType string

const OrderMarket OrderType = "MARKET"

// Order is a trading order produced by a RiskGuard decision. Immutable once
// created.
type Order struct {
	Ticker string    `json:"ticker"`
	Side   OrderSide `json:"side"`
	Qty    int       `json:"qty"`
	Type   OrderType `json:"order_type"`
}

// Fill is the realized outcome of executing an order, including slippage and
// fees. Derived deterministically from an Order and a reference price.
type Fill struct {
	Ticker    string    `json:"ticker"`
	Side      OrderSide `json:"side"`
	Qty       int       `json:"qty"`
	Type      OrderType `json:"order_type"`
	FillPrice float64   `json:"fill_price"`
	Fees      float64   `json:"fees"`
	Slippage  float64   `json:"slippage"`
	Notional  float64   `json:"notional"`
	Timestamp time.Time `json:"timestamp"`
}

// ---------------------------------------------------------------------------
// Portfolio state
// ---------------------------------------------------------------------------

// Position is a holding in a single security, owned by exactly one
// competitor's ledger. A position with qty == 0 is removed from the ledger
// rather than kept as residue.
type Position struct {
	Ticker       string  `json:"ticker"`
	Qty          int     `json:"qty"`
	AvgCost      float64 `json:"avg_cost"`
	CurrentPrice float64 `json:"current_price"`
}

// MarketValue returns the position's value at the current price.
func (p Position) MarketValue() float64 {
	return float64(p.Qty) * p.CurrentPrice
}

// UnrealizedPnL returns the open profit or loss against average cost.
func (p Position) UnrealizedPnL() float64 {
	if p.Qty == 0 {
		return 0
	}
	return (p.CurrentPrice - p.AvgCost) * float64(p.Qty)
}

// Snapshot is an immutable point-in-time capture of a ledger.
type Snapshot struct {
	Timestamp   time.Time  `json:"timestamp"`
	Cash        float64    `json:"cash"`
	Positions   []Position `json:"positions"`
	RealizedPnL float64    `json:"realized_pnl"`
}

// PositionsValue returns the total market value of all positions.
func (s Snapshot) PositionsValue() float64 {
	var total float64
	for _, p := range s.Positions {
		total += p.MarketValue()
	}
	return total
}

// Equity returns cash plus the value of all positions.
func (s Snapshot) Equity() float64 {
	return s.Cash + s.PositionsValue()
}

// UnrealizedPnL returns the total open profit or loss across positions.
func (s Snapshot) UnrealizedPnL() float64 {
	var total float64
	for _, p := range s.Positions {
		total += p.UnrealizedPnL()
	}
	return total
}

// ---------------------------------------------------------------------------
// Agent outputs
// ---------------------------------------------------------------------------

// ProposedAction is a Strategist recommendation for a single ticker. Unlike
// OrderSide it includes HOLD as an explicit option.
type ProposedAction string

const (
	ActionBuy  ProposedAction = "BUY"
	ActionSell ProposedAction = "SELL"
	ActionHold ProposedAction = "HOLD"
)

// TickerProposal is the Strategist's recommendation for one ticker.
type TickerProposal struct {
	Ticker              string         `json:"ticker"`
	Action              ProposedAction `json:"action"`
	Confidence          float64        `json:"confidence"`
	Rationale           string         `json:"rationale"`
	TargetAllocationPct *float64       `json:"target_allocation_pct,omitempty"`
}

// StrategistProposal is the full Strategist output for one session. It is
// read-only input to the RiskGuard and is never executed directly.
type StrategistProposal struct {
	SessionDate   string           `json:"session_date"`
	SessionType   string           `json:"session_type"`
	MarketSummary string           `json:"market_summary"`
	Proposals     []TickerProposal `json:"proposals"`
}

// Actionable returns the proposals that are BUY or SELL.
func (p *StrategistProposal) Actionable() []TickerProposal {
	var out []TickerProposal
	for _, tp := range p.Proposals {
		if tp.Action != ActionHold {
			out = append(out, tp)
		}
	}
	return out
}

// TradePlan is the RiskGuard output: the final trading decision. An empty
// orders list is a valid HOLD decision, not an error.
type TradePlan struct {
	Reasoning      string  `json:"reasoning"`
	RiskAssessment string  `json:"risk_assessment"`
	Orders         []Order `json:"orders"`
}

// IsHold reports whether the plan contains no orders.
func (p *TradePlan) IsHold() bool { return len(p.Orders) == 0 }

// ---------------------------------------------------------------------------
// Run logging
// ---------------------------------------------------------------------------

// LLMCall records a single model API call made during a session, including
// retries and repair calls. Every logged call counts against the provider's
// daily budget.
type LLMCall struct {
	CallType         string `json:"call_type"` // "strategist", "risk_guard", or "repair"
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	LatencyMS        int64  `json:"latency_ms"`
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
	RawResponse      string `json:"raw_response,omitempty"`
}

// RunLog is the append-only audit record of one session for one competitor.
// The (competitor, date, session type) tuple is the idempotency key.
type RunLog struct {
	RunID        string              `json:"run_id"`
	CompetitorID string              `json:"competitor_id"`
	SessionDate  string              `json:"session_date"`
	SessionType  SessionType         `json:"session_type"`
	Timestamp    time.Time           `json:"timestamp"`
	LLMCalls     []LLMCall           `json:"llm_calls"`
	Proposal     *StrategistProposal `json:"strategist_proposal,omitempty"`
	TradePlan    *TradePlan          `json:"trade_plan,omitempty"`
	Fills        []Fill              `json:"fills"`
	Errors       []string            `json:"errors"`
	Before       *Snapshot           `json:"snapshot_before,omitempty"`
	After        *Snapshot           `json:"snapshot_after,omitempty"`
}

// Competitor describes one configured (provider, model) pairing with its own
// simulated account.
type Competitor struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	InitialCash     float64 `json:"initial_cash"`
	MaxPositionPct  float64 `json:"max_position_pct"`
	MaxOrdersPerRun int     `json:"max_orders_per_run"`
}

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"llmarena/internal/domain"
	"llmarena/internal/llm"
)

const riskGuardSystemPrompt = `You are the Risk Guard, a conservative portfolio risk manager who validates trading proposals.

Your job is to review the Strategist's proposals and decide which trades to APPROVE or VETO.
You then output a final TradePlan with orders to execute.

CRITICAL RULES:
1. Output ONLY valid JSON matching the provided schema.
2. DO NOT use markdown code blocks (e.g. ` + "```json" + `). Output RAW JSON only.
3. VETO any proposal that violates constraints:
   - BUY orders must have sufficient cash (qty * price < available_cash)
   - SELL orders must have sufficient shares (qty <= current_position)
   - No single position should exceed %.0f%% of portfolio
4. VETO low-confidence proposals (confidence < 0.5).
5. VETO if the Strategist seems to hallucinate (proposes trade for unknown ticker).
6. Convert APPROVED proposals to Order objects with concrete quantities.
7. Empty orders list = HOLD (no trades this session).
8. Long-only trading: You cannot short sell. Only SELL what you own.

POSITION SIZING GUIDE:
- For BUY: Calculate qty as (cash * target_allocation_pct / 100) / estimated_price
- Round down to whole shares
- Ensure total position value does not exceed the maximum position size

Current Portfolio:
%s

Trading Constraints:
- Maximum orders this session: %d
- Maximum position size: %.0f%% of portfolio
- Available cash: $%.2f
- Current equity: $%.2f

Current Prices (for sizing):
%s

You must respond with a JSON object matching this schema:
%s`

const riskGuardUserPrompt = `Review the following Strategist proposals and decide what trades to execute.

=== STRATEGIST PROPOSALS ===
%s

=== CURRENT POSITIONS ===
%s

For each proposal, decide:
1. APPROVE -> Convert to an Order with specific quantity
2. VETO -> Do not include in orders (explain in reasoning)

Output your TradePlan as JSON with:
- reasoning: Explain your decisions (which proposals approved/vetoed and why)
- risk_assessment: Key risks in executing these trades
- orders: List of approved Order objects (or empty list for HOLD)

Remember: Output ONLY the RAW JSON object. Do not use markdown formatting.`

// RiskGuard validates Strategist proposals against the portfolio and sizes
// the approved ones into concrete orders.
type RiskGuard struct {
	client llm.Client
}

// NewRiskGuard creates a RiskGuard backed by the given model client.
func NewRiskGuard(client llm.Client) *RiskGuard {
	return &RiskGuard{client: client}
}

// Client returns the underlying model client, for repair escalation.
func (g *RiskGuard) Client() llm.Client { return g.client }

// RiskGuardInput is the context for one RiskGuard invocation.
type RiskGuardInput struct {
	Proposal       *domain.StrategistProposal
	Snapshot       domain.Snapshot
	Prices         map[string]float64
	MaxOrders      int
	MaxPositionPct float64 // fraction, e.g. 0.25
}

// Invoke calls the model once and parses its output. On parse failure the
// plan is nil and the Result preserves the raw response for repair.
func (g *RiskGuard) Invoke(ctx context.Context, in RiskGuardInput) (*domain.TradePlan, Result) {
	portfolio := fmt.Sprintf(
		"Cash: $%.2f\nPositions Value: $%.2f\nTotal Equity: $%.2f\nUnrealized P&L: $%.2f",
		in.Snapshot.Cash, in.Snapshot.PositionsValue(), in.Snapshot.Equity(), in.Snapshot.UnrealizedPnL())

	positions := "No current positions."
	if len(in.Snapshot.Positions) > 0 {
		var lines []string
		for _, p := range in.Snapshot.Positions {
			lines = append(lines, fmt.Sprintf(
				"- %s: %d shares @ $%.2f avg cost, current $%.2f, P&L $%.2f",
				p.Ticker, p.Qty, p.AvgCost, p.CurrentPrice, p.UnrealizedPnL()))
		}
		positions = strings.Join(lines, "\n")
	}

	prices := "No prices available."
	if len(in.Prices) > 0 {
		var lines []string
		for ticker, price := range in.Prices {
			lines = append(lines, fmt.Sprintf("- %s: $%.2f", ticker, price))
		}
		prices = strings.Join(lines, "\n")
	}

	proposalJSON, err := json.MarshalIndent(in.Proposal, "", "  ")
	if err != nil {
		return nil, Result{Err: fmt.Sprintf("encode proposal: %v", err)}
	}

	maxPct := in.MaxPositionPct * 100

	req := llm.Request{
		Prompt: fmt.Sprintf(riskGuardUserPrompt, proposalJSON, positions),
		SystemPrompt: fmt.Sprintf(riskGuardSystemPrompt,
			maxPct, portfolio, in.MaxOrders, maxPct,
			in.Snapshot.Cash, in.Snapshot.Equity(), prices, TradePlanSchema),
		JSONMode:    true,
		MaxTokens:   4096,
		Temperature: 0.5,
	}

	var plan domain.TradePlan
	result := generateAndParse(ctx, g.client, req, &plan)
	if !result.Success {
		return nil, result
	}
	return &plan, result
}

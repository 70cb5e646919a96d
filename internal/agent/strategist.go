package agent

import (
	"context"
	"fmt"
	"strings"

	"llmarena/internal/domain"
	"llmarena/internal/llm"
)

const strategistSystemPrompt = `You are the Strategist, a senior trading analyst at a top investment firm.

You receive market briefings with authoritative data from multiple sources:
- Price data and history (from the exchange)
- Technical indicators (computed from standard formulas)
- News headlines (from news sources)

YOUR ROLE:
Analyze ALL provided data like a professional trader and propose clear trading actions.
You must synthesize the technical and sentiment signals for each ticker.

CRITICAL RULES:
1. Output ONLY valid JSON matching the provided schema.
2. DO NOT use markdown code blocks (e.g. ` + "```json" + `). Output RAW JSON only.
3. For each ticker, propose exactly one action: BUY, SELL, or HOLD.
4. Your confidence should reflect the strength and alignment of signals:
   - 0.8-1.0: Strong alignment across technical and sentiment signals
   - 0.6-0.8: Most signals agree, minor conflicts
   - 0.4-0.6: Mixed signals, unclear direction
   - Below 0.4: Conflicting signals or insufficient data (recommend HOLD)
5. Your rationale should briefly explain your key reasoning (1-3 sentences).
6. For BUY proposals, suggest target_allocation_pct based on conviction.
7. Base analysis ONLY on provided data. Do not assume or invent information.

ANALYSIS FRAMEWORK:

Technical Analysis:
- RSI: Below 30 = oversold (potential buy), Above 70 = overbought (potential sell)
- MACD: Positive histogram = bullish momentum, Negative = bearish
- Moving Averages: Price above MA20/MA50 = bullish trend structure
- Price History: Look for patterns, support/resistance levels, volume trends

News & Sentiment:
- Positive news on products/earnings = bullish
- Regulatory/legal issues = bearish
- Sector/macro trends affect all stocks

You must respond with a JSON object matching this schema:
%s`

const strategistUserPrompt = `Analyze the following market briefings for trading session %s on %s.

Review each ticker's data carefully, including price history, technical
indicators, and recent news.

%s

For EACH ticker, provide:
1. Your proposed action (BUY, SELL, or HOLD)
2. Your confidence level (0.0 to 1.0)
3. A brief rationale explaining your decision

Remember: Output ONLY the RAW JSON object. Do not use markdown formatting.`

// Strategist proposes trading actions from market briefings. It is the
// first agent in the pipeline; its output is advice, never orders.
type Strategist struct {
	client llm.Client
}

// NewStrategist creates a Strategist backed by the given model client.
func NewStrategist(client llm.Client) *Strategist {
	return &Strategist{client: client}
}

// Client returns the underlying model client, for repair escalation.
func (s *Strategist) Client() llm.Client { return s.client }

// StrategistInput is the context for one Strategist invocation.
type StrategistInput struct {
	Briefings   []string // rendered per-ticker market briefings
	SessionDate string   // YYYY-MM-DD
	SessionType domain.SessionType
}

// Invoke calls the model once and parses its output. On parse failure the
// proposal is nil and the Result preserves the raw response for repair.
func (s *Strategist) Invoke(ctx context.Context, in StrategistInput) (*domain.StrategistProposal, Result) {
	briefings := "No market data provided."
	if len(in.Briefings) > 0 {
		briefings = strings.Join(in.Briefings, "\n\n")
	}

	req := llm.Request{
		Prompt:       fmt.Sprintf(strategistUserPrompt, in.SessionType, in.SessionDate, briefings),
		SystemPrompt: fmt.Sprintf(strategistSystemPrompt, StrategistProposalSchema),
		JSONMode:     true,
		MaxTokens:    4096,
		Temperature:  0.7,
	}

	var proposal domain.StrategistProposal
	result := generateAndParse(ctx, s.client, req, &proposal)
	if !result.Success {
		return nil, result
	}
	return &proposal, result
}

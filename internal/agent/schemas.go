package agent

// JSON schemas embedded in agent prompts so models know the exact output
// shape. Also reused by the repair call.

// StrategistProposalSchema describes the Strategist's expected output.
const StrategistProposalSchema = `{
  "type": "object",
  "properties": {
    "session_date": {"type": "string", "description": "YYYY-MM-DD"},
    "session_type": {"type": "string", "enum": ["OPEN", "CLOSE"]},
    "market_summary": {"type": "string", "description": "Brief overall market assessment"},
    "proposals": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "ticker": {"type": "string"},
          "action": {"type": "string", "enum": ["BUY", "SELL", "HOLD"]},
          "confidence": {"type": "number", "minimum": 0.0, "maximum": 1.0},
          "rationale": {"type": "string", "description": "1-3 sentence explanation"},
          "target_allocation_pct": {"type": "number", "description": "Suggested allocation for BUY, percent of portfolio"}
        },
        "required": ["ticker", "action", "confidence", "rationale"]
      }
    }
  },
  "required": ["session_date", "session_type", "proposals"]
}`

// TradePlanSchema describes the RiskGuard's expected output.
const TradePlanSchema = `{
  "type": "object",
  "properties": {
    "reasoning": {"type": "string", "description": "Which proposals were approved or vetoed and why"},
    "risk_assessment": {"type": "string", "description": "Key risks in executing these trades"},
    "orders": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "ticker": {"type": "string"},
          "side": {"type": "string", "enum": ["BUY", "SELL"]},
          "qty": {"type": "integer", "minimum": 1},
          "order_type": {"type": "string", "enum": ["MARKET"]}
        },
        "required": ["ticker", "side", "qty", "order_type"]
      }
    }
  },
  "required": ["reasoning", "risk_assessment", "orders"]
}`

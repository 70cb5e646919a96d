// Package sim implements the simulated brokerage: deterministic fills with
// slippage and fees, a long-only cash ledger per competitor, and portfolio
// performance metrics.
package sim

import (
	"time"

	"llmarena/internal/domain"
)

// FillEngine computes order fills with configurable slippage and fees. All
// methods are pure; the engine holds no state beyond its parameters.
type FillEngine struct {
	SlippageBps float64
	FeeBps      float64
}

// NewFillEngine creates a FillEngine. 10 bps = 0.1%.
func NewFillEngine(slippageBps, feeBps float64) *FillEngine {
	return &FillEngine{SlippageBps: slippageBps, FeeBps: feeBps}
}

// SlippagePerShare returns the signed per-share slippage at basePrice.
// Positive for BUY (pay more), negative for SELL (receive less).
func (e *FillEngine) SlippagePerShare(basePrice float64, side domain.OrderSide) float64 {
	amount := basePrice * e.SlippageBps / 10000.0
	if side == domain.SideSell {
		return -amount
	}
	return amount
}

// FillPrice returns the execution price after slippage.
func (e *FillEngine) FillPrice(basePrice float64, side domain.OrderSide) float64 {
	return basePrice + e.SlippagePerShare(basePrice, side)
}

// Fees returns the transaction fee on a notional value.
func (e *FillEngine) Fees(notional float64) float64 {
	return notional * e.FeeBps / 10000.0
}

// Fill produces the fill for an order at basePrice. Fees are charged on the
// post-slippage notional. The Slippage field records the total signed dollar
// slippage across the whole order.
func (e *FillEngine) Fill(order domain.Order, basePrice float64, ts time.Time) domain.Fill {
	fillPrice := e.FillPrice(basePrice, order.Side)
	notional := float64(order.Qty) * fillPrice

	return domain.Fill{
		Ticker:    order.Ticker,
		Side:      order.Side,
		Qty:       order.Qty,
		Type:      order.Type,
		FillPrice: fillPrice,
		Fees:      e.Fees(notional),
		Slippage:  e.SlippagePerShare(basePrice, order.Side) * float64(order.Qty),
		Notional:  notional,
		Timestamp: ts,
	}
}

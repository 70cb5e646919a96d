package sim

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"llmarena/internal/domain"
)

// Broker is the simulated ledger for a single competitor. Long only, no
// leverage: cash never goes negative and every open position has qty > 0.
// Not safe for concurrent use; the orchestrator serializes access.
type Broker struct {
	cash        float64
	initialCash float64
	positions   map[string]*domain.Position
	realizedPnL float64

	maxPositionPct float64
	engine         *FillEngine

	fillHistory []domain.Fill

	logger *slog.Logger
}

// NewBroker creates a Broker with the given starting cash, fill parameters,
// and maximum position size as a fraction of portfolio equity.
func NewBroker(initialCash, slippageBps, feeBps, maxPositionPct float64) *Broker {
	return &Broker{
		cash:           initialCash,
		initialCash:    initialCash,
		positions:      make(map[string]*domain.Position),
		maxPositionPct: maxPositionPct,
		engine:         NewFillEngine(slippageBps, feeBps),
		logger:         slog.Default().With("component", "sim_broker"),
	}
}

// Cash returns the current cash balance.
func (b *Broker) Cash() float64 { return b.cash }

// RealizedPnL returns the cumulative realized profit and loss.
func (b *Broker) RealizedPnL() float64 { return b.realizedPnL }

// Position returns the position for a ticker, or nil if not held.
func (b *Broker) Position(ticker string) *domain.Position {
	return b.positions[strings.ToUpper(ticker)]
}

// PositionQty returns the held quantity for a ticker, zero if not held.
func (b *Broker) PositionQty(ticker string) int {
	if p := b.Position(ticker); p != nil {
		return p.Qty
	}
	return 0
}

// FillHistory returns all fills applied since creation or Reset.
func (b *Broker) FillHistory() []domain.Fill { return b.fillHistory }

// UpdatePrices refreshes the current price of any held position present in
// the prices map. Unknown tickers are ignored.
func (b *Broker) UpdatePrices(prices map[string]float64) {
	for ticker, price := range prices {
		if p, ok := b.positions[strings.ToUpper(ticker)]; ok {
			p.CurrentPrice = price
		}
	}
}

// Snapshot captures the current ledger state. Positions are copied and
// sorted by ticker so snapshots are stable for persistence and comparison.
func (b *Broker) Snapshot(ts time.Time) domain.Snapshot {
	positions := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		positions = append(positions, *p)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Ticker < positions[j].Ticker
	})
	return domain.Snapshot{
		Timestamp:   ts,
		Cash:        b.cash,
		Positions:   positions,
		RealizedPnL: b.realizedPnL,
	}
}

// Validate checks whether an order could execute against the current ledger
// at referencePrice. It returns (false, reason) on rejection and never
// mutates state. The BUY cash check adds a 0.5% buffer for fees and
// slippage.
func (b *Broker) Validate(order domain.Order, referencePrice float64) (bool, string) {
	ticker := strings.ToUpper(order.Ticker)

	if order.Qty <= 0 {
		return false, "order quantity must be positive"
	}
	if referencePrice <= 0 {
		return false, fmt.Sprintf("invalid reference price: %v", referencePrice)
	}

	switch order.Side {
	case domain.SideBuy:
		estimatedCost := float64(order.Qty) * referencePrice * 1.005
		if estimatedCost > b.cash {
			return false, fmt.Sprintf("insufficient cash: need $%.2f, have $%.2f", estimatedCost, b.cash)
		}

		equity := b.Snapshot(time.Now()).Equity()
		if equity > 0 {
			newPositionValue := float64(order.Qty) * referencePrice
			if pos := b.positions[ticker]; pos != nil {
				newPositionValue += pos.MarketValue()
			}
			positionPct := newPositionValue / (equity + estimatedCost)
			if positionPct > b.maxPositionPct {
				return false, fmt.Sprintf("position would exceed max %.0f%%: %.1f%%",
					b.maxPositionPct*100, positionPct*100)
			}
		}

	case domain.SideSell:
		pos := b.positions[ticker]
		held := 0
		if pos != nil {
			held = pos.Qty
		}
		if held < order.Qty {
			return false, fmt.Sprintf("insufficient shares: need %d, have %d", order.Qty, held)
		}

	default:
		return false, fmt.Sprintf("unknown order side: %q", order.Side)
	}

	return true, ""
}

// Execute validates and applies an order at basePrice. A rejected order
// returns (nil, reason) and leaves the ledger untouched; there are no
// partial fills.
func (b *Broker) Execute(order domain.Order, basePrice float64, ts time.Time) (*domain.Fill, string) {
	ticker := strings.ToUpper(order.Ticker)

	ok, reason := b.Validate(order, basePrice)
	if !ok {
		b.logger.Warn("order rejected",
			"ticker", ticker, "side", order.Side, "qty", order.Qty, "reason", reason)
		return nil, reason
	}

	fill := b.engine.Fill(order, basePrice, ts)

	if order.Side == domain.SideBuy {
		b.applyBuy(ticker, fill)
	} else {
		b.applySell(ticker, fill)
	}

	b.fillHistory = append(b.fillHistory, fill)
	return &fill, ""
}

// ExecuteAll applies orders sequentially against the prices map. Orders with
// no reference price are rejected, not guessed. Returns the fills that
// executed and a parallel list of rejection messages for those that did not.
func (b *Broker) ExecuteAll(orders []domain.Order, prices map[string]float64, ts time.Time) ([]domain.Fill, []string) {
	var fills []domain.Fill
	var rejections []string

	for _, order := range orders {
		ticker := strings.ToUpper(order.Ticker)
		price, ok := prices[ticker]
		if !ok {
			msg := fmt.Sprintf("%s: no reference price available", ticker)
			b.logger.Warn("order skipped", "ticker", ticker, "reason", "no price")
			rejections = append(rejections, msg)
			continue
		}

		fill, reason := b.Execute(order, price, ts)
		if fill == nil {
			rejections = append(rejections, fmt.Sprintf("%s: %s", ticker, reason))
			continue
		}
		fills = append(fills, *fill)
	}

	return fills, rejections
}

func (b *Broker) applyBuy(ticker string, fill domain.Fill) {
	totalCost := fill.Notional + fill.Fees

	if pos, ok := b.positions[ticker]; ok {
		newQty := pos.Qty + fill.Qty
		pos.AvgCost = (pos.AvgCost*float64(pos.Qty) + fill.FillPrice*float64(fill.Qty)) / float64(newQty)
		pos.Qty = newQty
		pos.CurrentPrice = fill.FillPrice
	} else {
		b.positions[ticker] = &domain.Position{
			Ticker:       ticker,
			Qty:          fill.Qty,
			AvgCost:      fill.FillPrice,
			CurrentPrice: fill.FillPrice,
		}
	}

	b.cash -= totalCost
}

func (b *Broker) applySell(ticker string, fill domain.Fill) {
	pos := b.positions[ticker]

	proceeds := fill.Notional - fill.Fees
	costBasis := pos.AvgCost * float64(fill.Qty)
	b.realizedPnL += proceeds - costBasis
	b.cash += proceeds

	pos.Qty -= fill.Qty
	pos.CurrentPrice = fill.FillPrice

	// Fully closed positions are deleted rather than kept at zero.
	if pos.Qty <= 0 {
		delete(b.positions, ticker)
	}
}

// Load replaces the ledger state with persisted values. Used when
// rehydrating a competitor's broker from its latest snapshot after a
// restart.
func (b *Broker) Load(cash, realizedPnL float64, positions []domain.Position) {
	b.cash = cash
	b.realizedPnL = realizedPnL
	b.positions = make(map[string]*domain.Position, len(positions))
	for _, p := range positions {
		pos := p
		b.positions[strings.ToUpper(p.Ticker)] = &pos
	}
}

// Reset restores the broker to its initial state.
func (b *Broker) Reset() {
	b.cash = b.initialCash
	b.positions = make(map[string]*domain.Position)
	b.realizedPnL = 0
	b.fillHistory = nil
}

// Package market provides market data for the arena: adapters for each
// tradable market, deterministic technical features, and the rendered
// briefings that agents receive. Features are pure computation; all
// interpretation is left to the model.
package market

import (
	"math"
	"sort"

	"llmarena/internal/domain"
)

// Features holds deterministic indicators computed from daily bars. Pointer
// fields are nil when the series is too short to compute them.
type Features struct {
	Ticker string
	Date   string // YYYY-MM-DD of the latest bar

	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64

	Return1D  *float64
	Return5D  *float64
	Return20D *float64

	Volatility20D *float64 // annualized

	RSI14 *float64

	MACDLine      *float64
	MACDSignal    *float64
	MACDHistogram *float64

	MA20            *float64
	MA20DistancePct *float64
	MA50            *float64
	MA50DistancePct *float64
}

// ComputeFeatures derives Features from daily OHLCV bars. Bars are sorted by
// timestamp; fewer than two bars yield a Features with only the ticker set.
func ComputeFeatures(ticker string, bars []domain.Bar) Features {
	f := Features{Ticker: ticker}
	if len(bars) < 2 {
		return f
	}

	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	latest := sorted[len(sorted)-1]
	f.Date = latest.Timestamp.Format("2006-01-02")
	f.Open = latest.Open
	f.High = latest.High
	f.Low = latest.Low
	f.Close = latest.Close
	f.Volume = latest.Volume

	closes := make([]float64, len(sorted))
	for i, b := range sorted {
		closes[i] = b.Close
	}

	f.Return1D = nReturn(closes, 1)
	f.Return5D = nReturn(closes, 5)
	f.Return20D = nReturn(closes, 20)

	if len(closes) >= 21 {
		returns := pctChanges(closes)
		tail := returns[len(returns)-20:]
		vol := sampleStddev(tail) * math.Sqrt(tradingDaysPerYear)
		f.Volatility20D = &vol
	}

	f.RSI14 = rsi(closes, 14)
	f.MACDLine, f.MACDSignal, f.MACDHistogram = macd(closes, 12, 26, 9)

	if ma := movingAverage(closes, 20); ma != nil {
		f.MA20 = ma
		dist := (f.Close - *ma) / *ma
		f.MA20DistancePct = &dist
	}
	if ma := movingAverage(closes, 50); ma != nil {
		f.MA50 = ma
		dist := (f.Close - *ma) / *ma
		f.MA50DistancePct = &dist
	}

	return f
}

const tradingDaysPerYear = 252

// nReturn computes the fractional return over the trailing n bars.
func nReturn(closes []float64, n int) *float64 {
	if len(closes) < n+1 {
		return nil
	}
	current := closes[len(closes)-1]
	past := closes[len(closes)-1-n]
	if past == 0 {
		return nil
	}
	r := (current - past) / past
	return &r
}

func pctChanges(closes []float64) []float64 {
	var out []float64
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		out = append(out, (closes[i]-closes[i-1])/closes[i-1])
	}
	return out
}

// rsi computes the relative strength index from simple averages of gains
// and losses over the trailing window.
func rsi(closes []float64, period int) *float64 {
	if len(closes) < period+1 {
		return nil
	}

	var gainSum, lossSum float64
	for i := len(closes) - period; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}

	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	var v float64
	switch {
	case avgLoss == 0 && avgGain > 0:
		v = 100
	case avgLoss == 0:
		v = 50
	default:
		rs := avgGain / avgLoss
		v = 100 - 100/(1+rs)
	}
	return &v
}

// macd computes the MACD line, signal line, and histogram from exponential
// moving averages.
func macd(closes []float64, fast, slow, signal int) (*float64, *float64, *float64) {
	if len(closes) < slow+signal {
		return nil, nil, nil
	}

	emaFast := ema(closes, fast)
	emaSlow := ema(closes, slow)

	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = emaFast[i] - emaSlow[i]
	}
	signalLine := ema(line, signal)

	l := line[len(line)-1]
	s := signalLine[len(signalLine)-1]
	h := l - s
	return &l, &s, &h
}

// ema computes the exponential moving average series with smoothing
// 2/(span+1), seeded from the first value.
func ema(values []float64, span int) []float64 {
	alpha := 2.0 / float64(span+1)
	out := make([]float64, len(values))
	for i, v := range values {
		if i == 0 {
			out[i] = v
			continue
		}
		out[i] = alpha*v + (1-alpha)*out[i-1]
	}
	return out
}

func movingAverage(closes []float64, window int) *float64 {
	if len(closes) < window {
		return nil
	}
	var sum float64
	for _, c := range closes[len(closes)-window:] {
		sum += c
	}
	ma := sum / float64(window)
	return &ma
}

func sampleStddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	m := sum / float64(len(xs))
	var sumSq float64
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}

package sim

import "math"

// tradingDaysPerYear is the annualization factor for daily equity curves.
const tradingDaysPerYear = 252

// EquityMetrics summarizes the performance of an equity curve.
type EquityMetrics struct {
	TotalReturn    float64 // fraction, e.g. 0.12 for +12%
	TotalReturnAbs float64 // dollars
	MaxDrawdown    float64 // fraction, reported as a positive number
	Volatility     float64 // annualized
	SharpeRatio    float64 // annualized; zero when undefined
	NumTrades      int
	Turnover       float64 // total traded value / average equity
	StartingEquity float64
	EndingEquity   float64
	PeakEquity     float64
}

// ComputeMetrics derives performance metrics from a daily equity curve.
// An empty curve yields zero metrics with StartingEquity set to
// initialEquity.
func ComputeMetrics(equityCurve []float64, initialEquity float64, numTrades int, totalTradedValue float64) EquityMetrics {
	if len(equityCurve) == 0 {
		return EquityMetrics{StartingEquity: initialEquity, NumTrades: numTrades}
	}

	starting := equityCurve[0]
	ending := equityCurve[len(equityCurve)-1]

	m := EquityMetrics{
		TotalReturnAbs: ending - starting,
		NumTrades:      numTrades,
		StartingEquity: starting,
		EndingEquity:   ending,
	}
	if starting > 0 {
		m.TotalReturn = m.TotalReturnAbs / starting
	}

	var sum float64
	for _, e := range equityCurve {
		if e > m.PeakEquity {
			m.PeakEquity = e
		}
		sum += e
	}
	avgEquity := sum / float64(len(equityCurve))
	if avgEquity > 0 {
		m.Turnover = totalTradedValue / avgEquity
	}

	m.MaxDrawdown = maxDrawdown(equityCurve)

	if len(equityCurve) > 1 {
		returns := dailyReturns(equityCurve)
		if len(returns) > 0 {
			m.Volatility = stddev(returns) * math.Sqrt(tradingDaysPerYear)
			if m.Volatility > 0 {
				m.SharpeRatio = mean(returns) * tradingDaysPerYear / m.Volatility
			}
		}
	}

	return m
}

// maxDrawdown returns the largest peak-to-trough decline as a positive
// fraction of the peak.
func maxDrawdown(curve []float64) float64 {
	if len(curve) < 2 {
		return 0
	}

	var maxDD, runningMax float64
	for _, e := range curve {
		if e > runningMax {
			runningMax = e
		}
		if runningMax > 0 {
			if dd := (runningMax - e) / runningMax; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func dailyReturns(curve []float64) []float64 {
	var returns []float64
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1]
		if prev == 0 {
			continue
		}
		r := (curve[i] - prev) / prev
		if !math.IsInf(r, 0) && !math.IsNaN(r) {
			returns = append(returns, r)
		}
	}
	return returns
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var sumSq float64
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

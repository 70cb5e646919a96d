package market

import (
	"fmt"
	"strings"

	"llmarena/internal/domain"
)

// Briefing is the rendered market context for one ticker, combining
// deterministic features, recent price history, and news headlines. No
// interpretive signals; the agents do the analysis.
type Briefing struct {
	Ticker    string
	Date      string
	Features  Features
	History   []domain.Bar // oldest first
	Headlines []string

	// Optional sections, filled by an Enricher for equity tickers.
	Fundamentals *Fundamentals
	Earnings     *EarningsEvent
	Insider      *InsiderActivity
}

const (
	maxHistoryRows = 30
	maxInsiderRows = 10
)

// PromptString renders the briefing in a terminal-style format for the
// Strategist prompt.
func (b *Briefing) PromptString() string {
	var sb strings.Builder
	f := b.Features

	divider := strings.Repeat("=", 80)
	sub := strings.Repeat("-", 40)

	header := b.Ticker
	if fd := b.Fundamentals; fd != nil {
		if fd.CompanyName != "" {
			header += " - " + fd.CompanyName
		}
		if fd.Sector != "" {
			header += " (" + fd.Sector + ")"
		}
	}
	fmt.Fprintf(&sb, "%s\nMARKET BRIEFING: %s\nSession Date: %s\n%s\n", divider, header, b.Date, divider)

	fmt.Fprintf(&sb, "\n%s\nPRICE DATA (Source: Exchange)\n%s\n", sub, sub)
	fmt.Fprintf(&sb, "Open: $%.2f | High: $%.2f | Low: $%.2f | Close: $%.2f\n", f.Open, f.High, f.Low, f.Close)
	fmt.Fprintf(&sb, "Volume: %d\n", f.Volume)
	if fd := b.Fundamentals; fd != nil && fd.High52W > 0 && fd.Low52W > 0 {
		fromHigh := (f.Close - fd.High52W) / fd.High52W * 100
		fmt.Fprintf(&sb, "52-Week Range: $%.2f - $%.2f (%+.1f%% from high)\n", fd.Low52W, fd.High52W, fromHigh)
	}

	if f.Return1D != nil {
		fmt.Fprintf(&sb, "\n%s\nRETURNS (Computed from price data)\n%s\n", sub, sub)
		parts := []string{fmt.Sprintf("1-Day: %+.2f%%", *f.Return1D*100)}
		if f.Return5D != nil {
			parts = append(parts, fmt.Sprintf("5-Day: %+.2f%%", *f.Return5D*100))
		}
		if f.Return20D != nil {
			parts = append(parts, fmt.Sprintf("20-Day: %+.2f%%", *f.Return20D*100))
		}
		sb.WriteString(strings.Join(parts, " | ") + "\n")
		if f.Volatility20D != nil {
			fmt.Fprintf(&sb, "Volatility (20-day annualized): %.1f%%\n", *f.Volatility20D*100)
		}
	}

	fmt.Fprintf(&sb, "\n%s\nTECHNICAL INDICATORS (Computed using standard formulas)\n%s\n", sub, sub)
	if f.RSI14 != nil {
		fmt.Fprintf(&sb, "RSI (14-period): %.1f\n", *f.RSI14)
	}
	if f.MACDLine != nil {
		fmt.Fprintf(&sb, "MACD: Line=%.3f, Signal=%.3f, Histogram=%+.3f\n", *f.MACDLine, *f.MACDSignal, *f.MACDHistogram)
	}
	var maParts []string
	if f.MA20 != nil {
		maParts = append(maParts, fmt.Sprintf("MA(20): $%.2f (%+.1f%%)", *f.MA20, *f.MA20DistancePct*100))
	}
	if f.MA50 != nil {
		maParts = append(maParts, fmt.Sprintf("MA(50): $%.2f (%+.1f%%)", *f.MA50, *f.MA50DistancePct*100))
	}
	if len(maParts) > 0 {
		sb.WriteString("Moving Averages: " + strings.Join(maParts, " | ") + "\n")
	}

	if fd := b.Fundamentals; fd != nil {
		fmt.Fprintf(&sb, "\n%s\nFUNDAMENTALS (Source: SEC Filings)\n%s\n", sub, sub)

		var val []string
		if fd.MarketCap > 0 {
			val = append(val, "Market Cap: "+formatMarketCap(fd.MarketCap))
		}
		if fd.PERatio > 0 {
			val = append(val, fmt.Sprintf("P/E (TTM): %.1f", fd.PERatio))
		}
		if fd.ForwardPE > 0 {
			val = append(val, fmt.Sprintf("Forward P/E: %.1f", fd.ForwardPE))
		}
		if fd.PEGRatio > 0 {
			val = append(val, fmt.Sprintf("PEG: %.2f", fd.PEGRatio))
		}
		if len(val) > 0 {
			sb.WriteString("Valuation: " + strings.Join(val, " | ") + "\n")
		}
		if fd.EPS != 0 {
			fmt.Fprintf(&sb, "Earnings: EPS (TTM): $%.2f\n", fd.EPS)
		}

		var prof []string
		if fd.ProfitMargin != 0 {
			prof = append(prof, fmt.Sprintf("Profit Margin: %.1f%%", fd.ProfitMargin*100))
		}
		if fd.OperatingMargin != 0 {
			prof = append(prof, fmt.Sprintf("Operating Margin: %.1f%%", fd.OperatingMargin*100))
		}
		if fd.RevenueGrowth != 0 {
			prof = append(prof, fmt.Sprintf("Revenue Growth: %.1f%%", fd.RevenueGrowth*100))
		}
		if len(prof) > 0 {
			sb.WriteString("Profitability: " + strings.Join(prof, " | ") + "\n")
		}

		var health []string
		if fd.DividendYield > 0 {
			health = append(health, fmt.Sprintf("Dividend Yield: %.2f%%", fd.DividendYield*100))
		}
		if fd.Beta > 0 {
			health = append(health, fmt.Sprintf("Beta: %.2f", fd.Beta))
		}
		if len(health) > 0 {
			sb.WriteString("Financial Health: " + strings.Join(health, " | ") + "\n")
		}
	}

	if e := b.Earnings; e != nil && e.NextEarningsDate != "" {
		fmt.Fprintf(&sb, "\n%s\nEARNINGS CALENDAR (Source: Company IR)\n%s\n", sub, sub)
		if e.DaysToEarnings > 0 {
			fmt.Fprintf(&sb, "Next Earnings: %s (%d days away)\n", e.NextEarningsDate, e.DaysToEarnings)
		} else {
			fmt.Fprintf(&sb, "Next Earnings: %s\n", e.NextEarningsDate)
		}
	}

	if ins := b.Insider; ins != nil && len(ins.Transactions) > 0 {
		fmt.Fprintf(&sb, "\n%s\nINSIDER TRANSACTIONS (Source: SEC Form 4)\n%s\n", sub, sub)
		fmt.Fprintf(&sb, "Recent Activity: %d buys, %d sells\n\n", ins.Buys90D, ins.Sells90D)
		sb.WriteString("Date        Insider               Title            Type  Shares      Value\n")
		txs := ins.Transactions
		if len(txs) > maxInsiderRows {
			txs = txs[:maxInsiderRows]
		}
		for _, tr := range txs {
			value := "N/A"
			if tr.Value > 0 {
				value = fmt.Sprintf("$%.0f", tr.Value)
			}
			fmt.Fprintf(&sb, "%-11s %-21s %-16s %-5s %-11d %s\n",
				tr.Date, clip(tr.Name, 20), clip(tr.Title, 15), tr.Type, tr.Shares, value)
		}
	}

	if len(b.History) > 0 {
		fmt.Fprintf(&sb, "\n%s\nPRICE HISTORY (most recent last)\n%s\n", sub, sub)
		history := b.History
		if len(history) > maxHistoryRows {
			history = history[len(history)-maxHistoryRows:]
		}
		sb.WriteString("Date        Open      High      Low       Close     Volume\n")
		for _, bar := range history {
			fmt.Fprintf(&sb, "%s  %-8.2f  %-8.2f  %-8.2f  %-8.2f  %d\n",
				bar.Timestamp.Format("2006-01-02"), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
		}
	}

	if len(b.Headlines) > 0 {
		fmt.Fprintf(&sb, "\n%s\nRECENT NEWS (Source: news wire)\n%s\n", sub, sub)
		for _, h := range b.Headlines {
			fmt.Fprintf(&sb, "- %s\n", h)
		}
	}

	return sb.String()
}

func formatMarketCap(v float64) string {
	switch {
	case v >= 1e12:
		return fmt.Sprintf("$%.2fT", v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	default:
		return fmt.Sprintf("$%.0fM", v/1e6)
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// BuildBriefing assembles a Briefing from bars and headlines. Either input
// may be empty; a briefing is still produced so one failed fetch never
// blocks a session.
func BuildBriefing(ticker, date string, bars []domain.Bar, headlines []string) Briefing {
	return Briefing{
		Ticker:    strings.ToUpper(ticker),
		Date:      date,
		Features:  ComputeFeatures(strings.ToUpper(ticker), bars),
		History:   bars,
		Headlines: headlines,
	}
}

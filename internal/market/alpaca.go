package market

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"llmarena/internal/domain"
	"llmarena/internal/news"
	"llmarena/internal/util"
)

// Compile-time interface check.
var _ Adapter = (*EquityAdapter)(nil)

// EquityAdapter serves US equity data from the Alpaca market-data and
// trading-calendar APIs.
type EquityAdapter struct {
	md      *marketdata.Client
	trading *alpaca.Client
	feed    string
	tz      *time.Location
	retries int
	backoff time.Duration
	log     *slog.Logger
}

// NewEquityAdapter creates an EquityAdapter with the given Alpaca
// credentials. baseURL selects the trading API used for calendar queries
// (paper or live); feed selects the market-data feed ("iex" or "sip").
func NewEquityAdapter(apiKey, apiSecret, baseURL, feed string) (*EquityAdapter, error) {
	tz, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("loading ET timezone: %w", err)
	}
	if feed == "" {
		feed = "iex"
	}

	return &EquityAdapter{
		md: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		feed:    feed,
		tz:      tz,
		retries: 3,
		backoff: 500 * time.Millisecond,
		log:     slog.Default().With("adapter", "us_equity"),
	}, nil
}

// MarketType returns MarketUSEquity.
func (a *EquityAdapter) MarketType() domain.MarketType { return domain.MarketUSEquity }

// DailyBars fetches daily OHLCV bars, oldest first. The lookback window is
// padded for weekends and holidays so roughly days trading bars come back.
func (a *EquityAdapter) DailyBars(ctx context.Context, ticker string, days int) ([]domain.Bar, error) {
	ticker = strings.ToUpper(ticker)
	end := time.Now().In(a.tz)
	start := end.AddDate(0, 0, -(days*3/2 + 7))

	var raw []marketdata.Bar
	err := util.Retry(ctx, a.retries, a.backoff, func() error {
		var err error
		raw, err = a.md.GetBars(ticker, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
			Feed:      marketdata.Feed(a.feed),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", ticker, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, domain.Bar{
			Ticker:    ticker,
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    int64(b.Volume),
		})
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}

// SessionTimes queries the Alpaca trading calendar for the day's open and
// close in market time. ok is false on weekends and holidays.
func (a *EquityAdapter) SessionTimes(ctx context.Context, day time.Time) (time.Time, time.Time, bool, error) {
	day = day.In(a.tz)

	var calendar []alpaca.CalendarDay
	err := util.Retry(ctx, a.retries, a.backoff, func() error {
		var err error
		calendar, err = a.trading.GetCalendar(alpaca.GetCalendarRequest{
			Start: day,
			End:   day,
		})
		return err
	})
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("GetCalendar: %w", err)
	}

	want := day.Format("2006-01-02")
	for _, cd := range calendar {
		if cd.Date != want {
			continue
		}
		open, err := time.ParseInLocation("2006-01-02 15:04", cd.Date+" "+cd.Open, a.tz)
		if err != nil {
			return time.Time{}, time.Time{}, false, fmt.Errorf("parsing open time %q: %w", cd.Open, err)
		}
		close, err := time.ParseInLocation("2006-01-02 15:04", cd.Date+" "+cd.Close, a.tz)
		if err != nil {
			return time.Time{}, time.Time{}, false, fmt.Errorf("parsing close time %q: %w", cd.Close, err)
		}
		return open, close, true, nil
	}
	return time.Time{}, time.Time{}, false, nil
}

// IsTradingDay reports whether the calendar has a session for the day.
func (a *EquityAdapter) IsTradingDay(ctx context.Context, day time.Time) (bool, error) {
	_, _, ok, err := a.SessionTimes(ctx, day)
	return ok, err
}

// LatestPrice returns the most recent trade price.
func (a *EquityAdapter) LatestPrice(ctx context.Context, ticker string) (float64, error) {
	ticker = strings.ToUpper(ticker)

	var trade *marketdata.Trade
	err := util.Retry(ctx, a.retries, a.backoff, func() error {
		var err error
		trade, err = a.md.GetLatestTrade(ticker, marketdata.GetLatestTradeRequest{
			Feed: marketdata.Feed(a.feed),
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("GetLatestTrade %s: %w", ticker, err)
	}
	if trade == nil || trade.Price <= 0 {
		return 0, fmt.Errorf("no latest trade for %s", ticker)
	}
	return trade.Price, nil
}

// Headlines fetches recent news headlines from the Alpaca news API.
func (a *EquityAdapter) Headlines(ctx context.Context, ticker string, limit int) ([]string, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -7)
	return news.FetchHeadlines(ctx, a.md, strings.ToUpper(ticker), start, end, limit)
}

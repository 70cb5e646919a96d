package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"llmarena/internal/domain"
	"llmarena/internal/news"
	"llmarena/internal/util"
)

// Compile-time interface check.
var _ Adapter = (*CryptoAdapter)(nil)

const coinGeckoBaseURL = "https://api.coingecko.com/api/v3"

// coinIDs maps common tickers to CoinGecko coin identifiers. A static map
// avoids burning API calls on symbol search.
var coinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"XRP":   "ripple",
	"SOL":   "solana",
	"BNB":   "binancecoin",
	"DOGE":  "dogecoin",
	"ADA":   "cardano",
	"DOT":   "polkadot",
	"LINK":  "chainlink",
	"LTC":   "litecoin",
	"BCH":   "bitcoin-cash",
	"XLM":   "stellar",
	"USDT":  "tether",
	"USDC":  "usd-coin",
	"AVAX":  "avalanche-2",
	"UNI":   "uniswap",
	"MATIC": "matic-network",
	"TRX":   "tron",
	"ETC":   "ethereum-classic",
	"FIL":   "filecoin",
}

// CryptoAdapter serves crypto market data from the CoinGecko public API.
// Crypto trades around the clock; sessions are two configured daily times.
type CryptoAdapter struct {
	baseURL      string
	apiKey       string // optional demo key
	sessionTimes []string
	tz           *time.Location
	http         *http.Client
	limiter      *util.RateLimiter
	log          *slog.Logger
}

// NewCryptoAdapter creates a CryptoAdapter. sessionTimes are two "HH:MM"
// strings interpreted in tzName (default UTC); apiKey may be empty. The
// free CoinGecko tier allows roughly 10-30 requests per minute, so calls
// are rate limited.
func NewCryptoAdapter(apiKey string, sessionTimes []string, tzName string) (*CryptoAdapter, error) {
	if tzName == "" {
		tzName = "UTC"
	}
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", tzName, err)
	}
	if len(sessionTimes) == 0 {
		sessionTimes = []string{"00:00", "12:00"}
	}
	for _, st := range sessionTimes {
		if _, err := time.Parse("15:04", st); err != nil {
			return nil, fmt.Errorf("invalid session time %q: %w", st, err)
		}
	}

	return &CryptoAdapter{
		baseURL:      coinGeckoBaseURL,
		apiKey:       apiKey,
		sessionTimes: sessionTimes,
		tz:           tz,
		http:         &http.Client{Timeout: 10 * time.Second},
		limiter:      util.NewRateLimiter(10),
		log:          slog.Default().With("adapter", "crypto"),
	}, nil
}

// MarketType returns MarketCrypto.
func (a *CryptoAdapter) MarketType() domain.MarketType { return domain.MarketCrypto }

// coinID resolves a ticker like "BTC", "BTC-USD", or "BTC/USDT" to a
// CoinGecko identifier.
func coinID(ticker string) (string, error) {
	clean := strings.ToUpper(ticker)
	if idx := strings.Index(clean, "/"); idx > 0 {
		clean = clean[:idx]
	}
	clean = strings.TrimSuffix(clean, "-USD")

	id, ok := coinIDs[clean]
	if !ok {
		return "", fmt.Errorf("no CoinGecko ID for ticker %q", ticker)
	}
	return id, nil
}

func (a *CryptoAdapter) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	if a.apiKey != "" {
		if params == nil {
			params = url.Values{}
		}
		params.Set("x_cg_demo_api_key", a.apiKey)
	}

	u := a.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coingecko: HTTP %d on %s", resp.StatusCode, path)
	}
	return json.Unmarshal(body, out)
}

// DailyBars fetches daily OHLC candles from the CoinGecko OHLC endpoint.
// CoinGecko does not return per-candle volume on the free tier, so Volume
// is zero.
func (a *CryptoAdapter) DailyBars(ctx context.Context, ticker string, days int) ([]domain.Bar, error) {
	id, err := coinID(ticker)
	if err != nil {
		return nil, err
	}

	// The OHLC endpoint only accepts fixed ranges.
	rangeDays := "90"
	switch {
	case days <= 30:
		rangeDays = "30"
	case days <= 90:
		rangeDays = "90"
	default:
		rangeDays = "180"
	}

	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("days", rangeDays)

	var raw [][]float64 // [ms, open, high, low, close]
	if err := a.get(ctx, "/coins/"+id+"/ohlc", params, &raw); err != nil {
		return nil, fmt.Errorf("fetching OHLC for %s: %w", ticker, err)
	}

	ticker = strings.ToUpper(ticker)
	bars := make([]domain.Bar, 0, len(raw))
	for _, row := range raw {
		if len(row) < 5 {
			continue
		}
		bars = append(bars, domain.Bar{
			Ticker:    ticker,
			Timestamp: time.UnixMilli(int64(row[0])).UTC(),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
		})
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}

// SessionTimes returns the two configured daily session instants. Crypto
// always trades, so ok is always true.
func (a *CryptoAdapter) SessionTimes(_ context.Context, day time.Time) (time.Time, time.Time, bool, error) {
	day = day.In(a.tz)

	parse := func(hhmm string) time.Time {
		t, _ := time.Parse("15:04", hhmm)
		return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, a.tz)
	}

	open := parse(a.sessionTimes[0])
	var close time.Time
	if len(a.sessionTimes) >= 2 {
		close = parse(a.sessionTimes[1])
	} else {
		close = open.Add(12 * time.Hour)
	}
	return open, close, true, nil
}

// IsTradingDay always reports true.
func (a *CryptoAdapter) IsTradingDay(context.Context, time.Time) (bool, error) {
	return true, nil
}

// LatestPrice returns the current USD price from the simple-price endpoint.
func (a *CryptoAdapter) LatestPrice(ctx context.Context, ticker string) (float64, error) {
	id, err := coinID(ticker)
	if err != nil {
		return 0, err
	}

	params := url.Values{}
	params.Set("ids", id)
	params.Set("vs_currencies", "usd")

	var out map[string]map[string]float64
	if err := a.get(ctx, "/simple/price", params, &out); err != nil {
		return 0, fmt.Errorf("fetching price for %s: %w", ticker, err)
	}

	price := out[id]["usd"]
	if price <= 0 {
		return 0, fmt.Errorf("no price for %s", ticker)
	}
	return price, nil
}

// Headlines fetches recent crypto headlines from Google News RSS; CoinGecko
// has no news endpoint.
func (a *CryptoAdapter) Headlines(ctx context.Context, ticker string, limit int) ([]string, error) {
	clean := strings.ToUpper(ticker)
	if idx := strings.Index(clean, "/"); idx > 0 {
		clean = clean[:idx]
	}
	clean = strings.TrimSuffix(clean, "-USD")
	return news.FetchGoogleHeadlines(ctx, clean+" crypto", limit)
}

package market

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"llmarena/internal/util"
)

const alphaVantageBaseURL = "https://www.alphavantage.co/query"

// Compile-time interface check.
var _ Enricher = (*AlphaVantageClient)(nil)

// Fundamentals carries company info and valuation metrics sourced from SEC
// filings. A zero value means the metric was unavailable.
type Fundamentals struct {
	CompanyName     string
	Sector          string
	Industry        string
	MarketCap       float64
	PERatio         float64 // trailing
	ForwardPE       float64
	PEGRatio        float64
	EPS             float64 // trailing twelve months
	ProfitMargin    float64
	OperatingMargin float64
	RevenueGrowth   float64 // quarterly, year over year
	DividendYield   float64
	High52W         float64
	Low52W          float64
	Beta            float64
}

// EarningsEvent is the next scheduled earnings report for a ticker.
type EarningsEvent struct {
	NextEarningsDate string // YYYY-MM-DD
	DaysToEarnings   int
}

// InsiderTransaction is one SEC Form 4 filing row.
type InsiderTransaction struct {
	Date   string // YYYY-MM-DD
	Name   string
	Title  string
	Type   string // "Buy" or "Sell"
	Shares int
	Price  float64
	Value  float64
}

// InsiderActivity aggregates recent insider transactions. The counts cover
// the trailing 90 days; interpretation is left to the agents.
type InsiderActivity struct {
	Transactions []InsiderTransaction
	Buys90D      int
	Sells90D     int
}

// AlphaVantageClient fetches company fundamentals, the earnings calendar,
// and insider transactions from the Alpha Vantage REST API. The free tier
// allows 5 requests per minute, so calls are rate limited.
type AlphaVantageClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *util.RateLimiter
	log     *slog.Logger
	now     func() time.Time
}

// NewAlphaVantageClient creates a client; apiKey must be non-empty.
func NewAlphaVantageClient(apiKey string) *AlphaVantageClient {
	return &AlphaVantageClient{
		apiKey:  apiKey,
		baseURL: alphaVantageBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: util.NewRateLimiter(5),
		log:     slog.Default().With("component", "alphavantage"),
		now:     time.Now,
	}
}

func (c *AlphaVantageClient) get(ctx context.Context, function, ticker string, extra url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("function", function)
	params.Set("symbol", strings.ToUpper(ticker))
	params.Set("apikey", c.apiKey)
	for k, vs := range extra {
		for _, v := range vs {
			params.Add(k, v)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alphavantage: HTTP %d on %s", resp.StatusCode, function)
	}
	return body, nil
}

// avFloat parses an Alpha Vantage numeric field. The API reports missing
// values as "None" or "-", which map to zero.
func avFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

type avOverview struct {
	Name            string `json:"Name"`
	Sector          string `json:"Sector"`
	Industry        string `json:"Industry"`
	MarketCap       string `json:"MarketCapitalization"`
	PERatio         string `json:"PERatio"`
	ForwardPE       string `json:"ForwardPE"`
	PEGRatio        string `json:"PEGRatio"`
	EPS             string `json:"EPS"`
	ProfitMargin    string `json:"ProfitMargin"`
	OperatingMargin string `json:"OperatingMarginTTM"`
	RevenueGrowth   string `json:"QuarterlyRevenueGrowthYOY"`
	DividendYield   string `json:"DividendYield"`
	High52W         string `json:"52WeekHigh"`
	Low52W          string `json:"52WeekLow"`
	Beta            string `json:"Beta"`
}

// Fundamentals fetches the company overview for a ticker.
func (c *AlphaVantageClient) Fundamentals(ctx context.Context, ticker string) (*Fundamentals, error) {
	body, err := c.get(ctx, "OVERVIEW", ticker, nil)
	if err != nil {
		return nil, err
	}

	var raw avOverview
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("alphavantage: decode overview: %w", err)
	}
	// Unknown symbols and throttled requests come back as an empty object or
	// a note, both without a company name.
	if raw.Name == "" {
		return nil, fmt.Errorf("alphavantage: no overview data for %s", ticker)
	}

	return &Fundamentals{
		CompanyName:     raw.Name,
		Sector:          raw.Sector,
		Industry:        raw.Industry,
		MarketCap:       avFloat(raw.MarketCap),
		PERatio:         avFloat(raw.PERatio),
		ForwardPE:       avFloat(raw.ForwardPE),
		PEGRatio:        avFloat(raw.PEGRatio),
		EPS:             avFloat(raw.EPS),
		ProfitMargin:    avFloat(raw.ProfitMargin),
		OperatingMargin: avFloat(raw.OperatingMargin),
		RevenueGrowth:   avFloat(raw.RevenueGrowth),
		DividendYield:   avFloat(raw.DividendYield),
		High52W:         avFloat(raw.High52W),
		Low52W:          avFloat(raw.Low52W),
		Beta:            avFloat(raw.Beta),
	}, nil
}

// EarningsCalendar fetches the next scheduled earnings date for a ticker.
// Returns nil without error when no report is scheduled in the horizon.
func (c *AlphaVantageClient) EarningsCalendar(ctx context.Context, ticker string) (*EarningsEvent, error) {
	extra := url.Values{}
	extra.Set("horizon", "3month")

	// This endpoint only speaks CSV: symbol,name,reportDate,...
	body, err := c.get(ctx, "EARNINGS_CALENDAR", ticker, extra)
	if err != nil {
		return nil, err
	}

	records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("alphavantage: decode earnings calendar: %w", err)
	}

	today := c.now().UTC().Truncate(24 * time.Hour)
	for i, rec := range records {
		if i == 0 || len(rec) < 3 {
			continue
		}
		reportDate, err := time.Parse("2006-01-02", rec[2])
		if err != nil || reportDate.Before(today) {
			continue
		}
		return &EarningsEvent{
			NextEarningsDate: rec[2],
			DaysToEarnings:   int(reportDate.Sub(today).Hours() / 24),
		}, nil
	}
	return nil, nil
}

type avInsiderResponse struct {
	Data []struct {
		TransactionDate       string `json:"transaction_date"`
		Executive             string `json:"executive"`
		ExecutiveTitle        string `json:"executive_title"`
		AcquisitionOrDisposal string `json:"acquisition_or_disposal"`
		Shares                string `json:"shares"`
		SharePrice            string `json:"share_price"`
	} `json:"data"`
}

// maxInsiderTransactions caps how many Form 4 rows are kept per ticker.
const maxInsiderTransactions = 20

// InsiderActivity fetches recent insider transactions for a ticker.
func (c *AlphaVantageClient) InsiderActivity(ctx context.Context, ticker string) (*InsiderActivity, error) {
	body, err := c.get(ctx, "INSIDER_TRANSACTIONS", ticker, nil)
	if err != nil {
		return nil, err
	}

	var raw avInsiderResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("alphavantage: decode insider transactions: %w", err)
	}

	cutoff := c.now().AddDate(0, 0, -90)
	activity := &InsiderActivity{}
	for _, row := range raw.Data {
		if len(activity.Transactions) >= maxInsiderTransactions {
			break
		}

		kind := "Sell"
		if strings.EqualFold(row.AcquisitionOrDisposal, "A") {
			kind = "Buy"
		}
		shares := int(avFloat(row.Shares))
		price := avFloat(row.SharePrice)

		tr := InsiderTransaction{
			Date:   row.TransactionDate,
			Name:   row.Executive,
			Title:  row.ExecutiveTitle,
			Type:   kind,
			Shares: shares,
			Price:  price,
			Value:  float64(shares) * price,
		}
		activity.Transactions = append(activity.Transactions, tr)

		if when, err := time.Parse("2006-01-02", row.TransactionDate); err == nil && !when.Before(cutoff) {
			if kind == "Buy" {
				activity.Buys90D++
			} else {
				activity.Sells90D++
			}
		}
	}
	return activity, nil
}

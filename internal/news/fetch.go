// Package news fetches recent headlines for briefing prompts from the
// Alpaca news API and Google News RSS.
package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// FetchHeadlines returns up to limit recent headlines for a symbol from the
// Alpaca news API, newest first.
func FetchHeadlines(ctx context.Context, mdc *marketdata.Client, symbol string, start, end time.Time, limit int) ([]string, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	articles, err := mdc.GetNews(marketdata.GetNewsRequest{
		Symbols:    []string{symbol},
		Start:      start,
		End:        end,
		TotalLimit: limit,
		Sort:       marketdata.SortDesc,
	})
	if err != nil {
		return nil, fmt.Errorf("GetNews %s: %w", symbol, err)
	}

	headlines := make([]string, 0, len(articles))
	for _, a := range articles {
		if h := StripHTML(a.Headline); h != "" {
			headlines = append(headlines, h)
		}
	}
	return headlines, nil
}

type rssResponse struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	PubDate string `xml:"pubDate"`
}

// FetchGoogleHeadlines returns up to limit headlines from Google News RSS
// for a free-text query. Used for markets without a dedicated news API.
func FetchGoogleHeadlines(ctx context.Context, query string, limit int) ([]string, error) {
	q := url.QueryEscape(query)
	u := "https://news.google.com/rss/search?q=" + q + "&hl=en-US&gl=US&ceid=US:en"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google news: HTTP %d", resp.StatusCode)
	}

	var rss rssResponse
	if err := xml.NewDecoder(resp.Body).Decode(&rss); err != nil {
		return nil, fmt.Errorf("google news: decode RSS: %w", err)
	}

	var headlines []string
	for _, item := range rss.Channel.Items {
		if len(headlines) >= limit {
			break
		}
		headline := item.Title
		// Google appends the publisher after " - ".
		if idx := strings.LastIndex(headline, " - "); idx > 0 {
			headline = headline[:idx]
		}
		if headline = StripHTML(headline); headline != "" {
			headlines = append(headlines, headline)
		}
	}
	return headlines, nil
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes HTML tags and normalizes whitespace.
func StripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// Package marketdata provides the HTTP client for the external market data
// service: current quotes, daily close history, and FX rates.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmercier/folio/internal/clientdata"
	"github.com/jmercier/folio/internal/domain"
)

// Client talks to the market data service. Responses are cached in
// history.db through clientdata; stale cache entries back stop-gap reads
// when the service is unreachable.
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new market data client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(baseURL string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 15 * time.Second},
		log:       log.With().Str("client", "marketdata").Logger(),
		cacheRepo: cacheRepo,
	}
}

type quoteResponse struct {
	Quotes []domain.Quote `json:"quotes"`
}

type seriesResponse struct {
	Points []domain.PricePoint `json:"points"`
}

type rateResponse struct {
	Rate float64 `json:"rate"`
}

// cachedRate is the structure stored in the rates cache.
type cachedRate struct {
	Rate float64 `msgpack:"rate"`
}

// FetchQuotes returns current quotes for the requested symbols. The result
// may be partial: symbols the service has no data for are simply absent.
// When the request fails, cached quotes (fresh or stale) fill in what they
// can.
func (c *Client) FetchQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	if len(symbols) == 0 {
		return map[string]domain.Quote{}, nil
	}

	quotes := make(map[string]domain.Quote, len(symbols))

	// Serve fresh cache hits without a request.
	var missing []string
	for _, symbol := range symbols {
		if c.cacheRepo == nil {
			missing = append(missing, symbol)
			continue
		}
		var q domain.Quote
		found, err := c.cacheRepo.GetIfFresh("quotes_cache", symbol, &q)
		if err == nil && found {
			quotes[symbol] = q
			continue
		}
		missing = append(missing, symbol)
	}
	if len(missing) == 0 {
		return quotes, nil
	}

	endpoint := fmt.Sprintf("%s/v1/quotes?symbols=%s", c.baseURL, url.QueryEscape(strings.Join(missing, ",")))
	var result quoteResponse
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		// Fall back to stale cache per symbol; a fully empty result is an error.
		stale := 0
		for _, symbol := range missing {
			if q, ok := c.staleQuote(symbol); ok {
				quotes[symbol] = q
				stale++
			}
		}
		if len(quotes) == 0 {
			return nil, fmt.Errorf("quote fetch failed: %w", err)
		}
		c.log.Warn().Err(err).Int("stale", stale).Msg("Quote fetch failed, using cached quotes")
		return quotes, nil
	}

	for _, q := range result.Quotes {
		quotes[q.Symbol] = q
		if c.cacheRepo != nil {
			if err := c.cacheRepo.Store("quotes_cache", q.Symbol, q, clientdata.TTLQuote); err != nil {
				c.log.Warn().Err(err).Str("symbol", q.Symbol).Msg("Failed to cache quote")
			}
		}
	}

	c.log.Debug().
		Int("requested", len(symbols)).
		Int("returned", len(quotes)).
		Msg("Fetched quotes")
	return quotes, nil
}

// FetchDailyCloses returns the daily close series for a symbol in [from, to].
// Symbols with no data yield an empty slice, not an error.
func (c *Client) FetchDailyCloses(ctx context.Context, symbol string, from, to time.Time) ([]domain.PricePoint, error) {
	endpoint := fmt.Sprintf("%s/v1/chart/%s?from=%s&to=%s",
		c.baseURL, url.PathEscape(symbol), domain.DayKey(from), domain.DayKey(to))

	var result seriesResponse
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return nil, fmt.Errorf("chart fetch failed for %s: %w", symbol, err)
	}
	return result.Points, nil
}

// FetchLiveRate returns the current rate for a currency pair such as
// "USDJPY". Stale cached rates back a failed request.
func (c *Client) FetchLiveRate(ctx context.Context, pair string) (float64, error) {
	endpoint := fmt.Sprintf("%s/v1/fx/%s", c.baseURL, url.PathEscape(pair))

	var result rateResponse
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		if rate, ok := c.staleRate(pair); ok {
			c.log.Warn().Err(err).Str("pair", pair).Float64("rate", rate).Msg("Rate fetch failed, using stale cached rate")
			return rate, nil
		}
		return 0, fmt.Errorf("rate fetch failed for %s: %w", pair, err)
	}
	if result.Rate <= 0 {
		return 0, fmt.Errorf("no rate returned for %s", pair)
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("rates_cache", pair, cachedRate{Rate: result.Rate}, clientdata.TTLExchangeRate); err != nil {
			c.log.Warn().Err(err).Str("pair", pair).Msg("Failed to cache rate")
		}
	}
	return result.Rate, nil
}

// FetchHistoricalRateSeries returns the daily rate series for a currency
// pair in [from, to].
func (c *Client) FetchHistoricalRateSeries(ctx context.Context, pair string, from, to time.Time) ([]domain.PricePoint, error) {
	endpoint := fmt.Sprintf("%s/v1/fx/%s/history?from=%s&to=%s",
		c.baseURL, url.PathEscape(pair), domain.DayKey(from), domain.DayKey(to))

	var result seriesResponse
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return nil, fmt.Errorf("rate history fetch failed for %s: %w", pair, err)
	}
	return result.Points, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) staleQuote(symbol string) (domain.Quote, bool) {
	if c.cacheRepo == nil {
		return domain.Quote{}, false
	}
	var q domain.Quote
	found, err := c.cacheRepo.Get("quotes_cache", symbol, &q)
	if err != nil || !found {
		return domain.Quote{}, false
	}
	return q, true
}

func (c *Client) staleRate(pair string) (float64, bool) {
	if c.cacheRepo == nil {
		return 0, false
	}
	var cached cachedRate
	found, err := c.cacheRepo.Get("rates_cache", pair, &cached)
	if err != nil || !found || cached.Rate <= 0 {
		return 0, false
	}
	return cached.Rate, true
}

package stooq

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/arena/backend/internal/contracts"
	"github.com/wonny/arena/backend/internal/marketdata"
	"github.com/wonny/arena/backend/pkg/config"
	"github.com/wonny/arena/backend/pkg/httputil"
	"github.com/wonny/arena/backend/pkg/logger"
)

// Saver is the slice of the price repository the client writes through.
type Saver interface {
	SaveBatch(ctx context.Context, prices []*marketdata.DailyPrice) error
}

// Client downloads daily bars from Stooq.
// Implements contracts.Downloader.
// ⭐ SSOT: Stooq 호출 및 레이트 리밋 관리는 이 클라이언트에서만
type Client struct {
	config     *config.Config
	logger     *logger.Logger
	httpClient *httputil.Client
	saver      Saver

	// Client-side budget on top of the shared redis window; Stooq blocks
	// scrapers that burst.
	limiter *rate.Limiter
}

// NewClient creates a new Stooq client
func NewClient(cfg *config.Config, log *logger.Logger, httpClient *httputil.Client, saver Saver) *Client {
	perSecond := rate.Limit(float64(cfg.Stooq.RateLimit) / cfg.Stooq.RateWindow.Seconds())

	return &Client{
		config:     cfg,
		logger:     log.WithField("module", "stooq"),
		httpClient: httpClient,
		saver:      saver,
		limiter:    rate.NewLimiter(perSecond, 1),
	}
}

// Download fetches the missing bars per symbol and persists them. The
// outcome is always terminal: success, per-symbol failure, or rate
// limited; the client never blocks indefinitely.
func (c *Client) Download(ctx context.Context, missing map[string][]time.Time, requested []time.Time) (*contracts.DownloadResult, error) {
	result := &contracts.DownloadResult{}

	requestedSet := make(map[time.Time]bool, len(requested))
	for _, d := range requested {
		requestedSet[marketdata.Day(d)] = true
	}

	// Requested dates take precedence over lookback padding: symbols
	// whose gaps overlap the requested set spend the budget first.
	symbols := prioritize(missing, requestedSet)

	for _, symbol := range symbols {
		dates := missing[symbol]

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		bars, err := c.fetchDaily(ctx, symbol, dates[0], dates[len(dates)-1])
		if err == errRateLimited {
			c.logger.WithField("symbol", symbol).Warn("Vendor rate limit reached, stopping download pass")
			result.RateLimited = true
			break
		}
		if err != nil {
			c.logger.WithFields(map[string]interface{}{
				"symbol": symbol,
				"error":  err.Error(),
			}).Warn("Symbol download failed")
			result.Failed = append(result.Failed, symbol)
			continue
		}

		if err := c.saver.SaveBatch(ctx, bars); err != nil {
			return nil, fmt.Errorf("save bars for %s: %w", symbol, err)
		}

		result.Downloaded = append(result.Downloaded, symbol)
	}

	c.logger.WithFields(map[string]interface{}{
		"downloaded":   len(result.Downloaded),
		"failed":       len(result.Failed),
		"rate_limited": result.RateLimited,
	}).Info("Download pass finished")

	return result, nil
}

var errRateLimited = fmt.Errorf("stooq: rate limited")

// fetchDaily downloads bars for one symbol over [from, to].
// Tries the CSV endpoint first, falls back to scraping the historical
// data page when Stooq serves HTML instead.
func (c *Client) fetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]*marketdata.DailyPrice, error) {
	fullURL := fmt.Sprintf(
		"%s/q/d/l/?s=%s&d1=%s&d2=%s&i=d",
		c.config.Stooq.BaseURL,
		vendorSymbol(symbol),
		from.Format("20060102"),
		to.Format("20060102"),
	)

	resp, err := c.httpClient.Get(ctx, fullURL)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body failed: %w", err)
	}

	text := string(body)
	if strings.Contains(text, "Exceeded the daily hits limit") {
		return nil, errRateLimited
	}

	bars, err := parseCSV(symbol, text)
	if err == nil {
		return bars, nil
	}

	// Stooq occasionally serves the quote page instead of CSV
	bars, herr := parseHistoryHTML(symbol, text)
	if herr != nil {
		return nil, fmt.Errorf("parse response failed: %w", err)
	}

	c.logger.WithField("symbol", symbol).Debug("Fell back to HTML history table")
	return bars, nil
}

// vendorSymbol maps a plain US ticker to Stooq's notation (aapl.us).
func vendorSymbol(symbol string) string {
	s := strings.ToLower(symbol)
	if strings.Contains(s, ".") {
		return s
	}
	return s + ".us"
}

// prioritize orders symbols so those with missing requested dates come
// before symbols that only lack padding dates. Ties break alphabetically
// for a deterministic pass.
func prioritize(missing map[string][]time.Time, requested map[time.Time]bool) []string {
	symbols := make([]string, 0, len(missing))
	for s := range missing {
		symbols = append(symbols, s)
	}

	overlap := func(symbol string) int {
		n := 0
		for _, d := range missing[symbol] {
			if requested[marketdata.Day(d)] {
				n++
			}
		}
		return n
	}

	sort.Slice(symbols, func(i, j int) bool {
		oi, oj := overlap(symbols[i]), overlap(symbols[j])
		if oi != oj {
			return oi > oj
		}
		return symbols[i] < symbols[j]
	})

	return symbols
}

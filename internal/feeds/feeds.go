package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Rate is a quoted exchange rate with its observation time.
type Rate struct {
	Rate decimal.Decimal `json:"rate"`
	AsOf time.Time       `json:"as_of"`
}

// fallbackRates are last-resort constants per pair, used before any live
// fetch has succeeded. After the first success the last-known live rate wins.
var fallbackRates = map[string]decimal.Decimal{
	"EUR/USD": decimal.RequireFromString("1.08"),
	"GBP/USD": decimal.RequireFromString("1.27"),
	"USD/JPY": decimal.RequireFromString("149.50"),
	"XAU/USD": decimal.RequireFromString("2300"),
	"ETH/USD": decimal.RequireFromString("3000"),
}

// RateFeed is one read-only external price service. Unavailability is never a
// hard failure: the feed falls back to the last-known rate, or the fallback
// constant when nothing was ever fetched.
type RateFeed struct {
	name    string
	baseURL string
	client  *http.Client

	mu   sync.RWMutex
	last map[string]Rate
}

func newFeed(name, baseURL string) *RateFeed {
	return &RateFeed{
		name:    name,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				IdleConnTimeout:       10 * time.Second,
				TLSHandshakeTimeout:   5 * time.Second,
				ResponseHeaderTimeout: 5 * time.Second,
			},
		},
		last: make(map[string]Rate),
	}
}

// NewForexFeed returns the fiat FX rate feed.
func NewForexFeed(baseURL string) *RateFeed {
	return newFeed("forex", baseURL)
}

// NewCryptoFeed returns the crypto/commodity rate feed.
func NewCryptoFeed(baseURL string) *RateFeed {
	return newFeed("crypto", baseURL)
}

type rateResponse struct {
	Rate string `json:"rate"`
	AsOf int64  `json:"as_of"`
}

// Rate returns the current rate for pair (e.g. "EUR/USD"). It never fails;
// callers always get a usable number.
func (f *RateFeed) Rate(ctx context.Context, pair string) Rate {
	live, err := f.fetch(ctx, pair)
	if err == nil {
		f.mu.Lock()
		f.last[pair] = live
		f.mu.Unlock()
		return live
	}

	f.mu.RLock()
	cached, ok := f.last[pair]
	f.mu.RUnlock()
	if ok {
		log.Warnf("%s feed unavailable for %s, using last-known rate: %v", f.name, pair, err)
		return cached
	}

	fallback, ok := fallbackRates[pair]
	if !ok {
		fallback = decimal.NewFromInt(1)
	}
	log.Warnf("%s feed unavailable for %s, using fallback constant: %v", f.name, pair, err)
	return Rate{Rate: fallback, AsOf: time.Now()}
}

func (f *RateFeed) fetch(ctx context.Context, pair string) (Rate, error) {
	if f.baseURL == "" {
		return Rate{}, fmt.Errorf("%s feed has no endpoint configured", f.name)
	}

	url := fmt.Sprintf("%s/rate/%s", f.baseURL, strings.Replace(pair, "/", "-", 1))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Rate{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Rate{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Rate{}, fmt.Errorf("%s feed returned status %d", f.name, resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Rate{}, fmt.Errorf("decode %s feed response: %w", f.name, err)
	}
	rate, err := decimal.NewFromString(body.Rate)
	if err != nil {
		return Rate{}, fmt.Errorf("parse %s feed rate: %w", f.name, err)
	}
	return Rate{Rate: rate, AsOf: time.Unix(body.AsOf, 0)}, nil
}

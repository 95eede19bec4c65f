package currency

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foodsafe/storefront/internal/resilience"
)

// RateFetcher loads the latest rates for a base currency.
type RateFetcher interface {
	Fetch(ctx context.Context, base string) (Snapshot, error)
}

// Fetcher reads rates from an HTTP API answering GET {BaseURL}/latest?base=GBP
// with {"base":"GBP","date":"2026-01-02","rates":{"EUR":1.17}}.
type Fetcher struct {
	HTTP    *resilience.HTTPClient
	BaseURL string
	APIKey  string
	Now     func() time.Time
}

type latestResponse struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Fetch implements RateFetcher.
func (f Fetcher) Fetch(ctx context.Context, base string) (Snapshot, error) {
	if f.HTTP == nil {
		return Snapshot{}, errors.New("currency: fetcher http client not configured")
	}
	if strings.TrimSpace(f.BaseURL) == "" {
		return Snapshot{}, errors.New("currency: FX_API_URL not configured")
	}
	base = normalizeCode(base)
	endpoint := strings.TrimRight(f.BaseURL, "/") + "/latest?base=" + url.QueryEscape(base)
	headers := map[string]string{}
	if f.APIKey != "" {
		headers["Authorization"] = "Bearer " + f.APIKey
	}
	var payload latestResponse
	if err := f.HTTP.DoJSON(ctx, http.MethodGet, endpoint, headers, nil, &payload); err != nil {
		return Snapshot{}, fmt.Errorf("fetch rates: %w", err)
	}
	if len(payload.Rates) == 0 {
		return Snapshot{}, errors.New("fetch rates: empty rate table")
	}
	if got := normalizeCode(payload.Base); got != "" && got != base {
		return Snapshot{}, fmt.Errorf("fetch rates: base mismatch %s != %s", got, base)
	}
	rates := make(map[string]decimal.Decimal, len(payload.Rates))
	for code, rate := range payload.Rates {
		code = normalizeCode(code)
		if code == base || !rate.IsPositive() {
			continue
		}
		rates[code] = rate
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return Snapshot{
		Base:      base,
		Date:      payload.Date,
		Rates:     rates,
		FetchedAt: now().UTC(),
		Source:    SourceLive,
	}, nil
}

package currency

import (
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SourceLive    = "live"
	SourceCache   = "cache"
	SourceDefault = "default"
)

// Snapshot is an immutable set of exchange rates relative to Base.
type Snapshot struct {
	Base      string                     `json:"base"`
	Date      string                     `json:"date"`
	Rates     map[string]decimal.Decimal `json:"rates"`
	FetchedAt time.Time                  `json:"fetchedAt"`
	Source    string                     `json:"source"`
	Stale     bool                       `json:"stale,omitempty"` // set on reads past the cache ttl
}

// defaultRates are the fallback GBP rates used until a live fetch succeeds.
var defaultRates = map[string]string{
	"EUR": "1.17",
	"USD": "1.27",
	"AUD": "1.93",
	"CAD": "1.72",
	"NZD": "2.09",
	"CHF": "1.12",
	"NOK": "13.45",
	"SEK": "13.30",
	"DKK": "8.73",
}

// DefaultSnapshot returns the built-in rates for base.
func DefaultSnapshot(base string) Snapshot {
	rates := make(map[string]decimal.Decimal, len(defaultRates))
	for code, v := range defaultRates {
		rates[code] = decimal.RequireFromString(v)
	}
	return Snapshot{Base: normalizeCode(base), Rates: rates, Source: SourceDefault}
}

// Clone returns a deep copy so callers cannot mutate a shared snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Rates = maps.Clone(s.Rates)
	if out.Rates == nil {
		out.Rates = map[string]decimal.Decimal{}
	}
	return out
}

// Currencies lists the base plus every currency with a rate, sorted.
func (s Snapshot) Currencies() []string {
	out := []string{normalizeCode(s.Base)}
	for code := range s.Rates {
		if code != out[0] {
			out = append(out, code)
		}
	}
	slices.Sort(out[1:])
	return out
}

// Expired reports whether the snapshot is older than ttl. Default snapshots
// never expire because they carry no fetch time.
func (s Snapshot) Expired(now time.Time, ttl time.Duration) bool {
	if s.FetchedAt.IsZero() || ttl <= 0 {
		return false
	}
	return now.Sub(s.FetchedAt) >= ttl
}

package currency_test

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/foodsafe/storefront/internal/currency"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestFriendlyRoundBuckets(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"under five rounds up to .99", "3.20", "3.99"},
		{"under five whole number", "4.00", "3.99"},
		{"just under five", "4.999", "4.99"},
		{"high fraction", "12.97", "12.99"},
		{"fraction exactly .95 is mid band", "12.95", "12.99"},
		{"mid band", "12.46", "12.99"},
		{"fraction exactly .45 falls through", "12.45", "12.99"},
		{"low band", "12.20", "12.99"},
		{"fraction exactly .05 is not near whole", "12.05", "12.99"},
		{"near whole rounds to integer", "12.04", "12"},
		{"exactly five", "5.00", "5"},
		{"zero", "0", "0"},
		{"negative", "-3.50", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := currency.FriendlyRound(dec(tc.in))
			require.Truef(t, dec(tc.want).Equal(got), "FriendlyRound(%s) = %s, want %s", tc.in, got, tc.want)
		})
	}
}

func TestConvertCanonicalReturnsInputUnchanged(t *testing.T) {
	c := currency.Converter{Canonical: "GBP"}
	price := dec("12.34")
	got := c.Convert(price, "gbp", map[string]decimal.Decimal{"GBP": dec("2")})
	require.True(t, price.Equal(got))
}

func TestConvertAppliesRateAndFriendlyRounding(t *testing.T) {
	c := currency.Converter{Canonical: "GBP"}
	rates := map[string]decimal.Decimal{"EUR": dec("1.17"), "USD": dec("1.27")}
	require.Equal(t, "11.99", c.Convert(dec("10.00"), "EUR", rates).StringFixed(2))
	require.Equal(t, "2.99", c.Convert(dec("2.00"), "USD", rates).StringFixed(2))
}

func TestConvertMissingRateFallsBackToCanonicalPrice(t *testing.T) {
	var buf bytes.Buffer
	c := currency.Converter{Canonical: "GBP", Logger: zerolog.New(&buf)}
	got := c.Convert(dec("19.99"), "JPY", map[string]decimal.Decimal{"EUR": dec("1.17")})
	require.Equal(t, "19.99", got.StringFixed(2))
	require.Contains(t, buf.String(), "exchange rate missing")
	require.Contains(t, buf.String(), `"currency":"JPY"`)
}

func TestConvertToleratesNilAndEmptyRates(t *testing.T) {
	c := currency.Converter{Canonical: "GBP", Logger: zerolog.Nop()}
	for _, rates := range []map[string]decimal.Decimal{nil, {}} {
		require.Equal(t, "19.99", c.Convert(dec("19.99"), "EUR", rates).StringFixed(2))
		require.Equal(t, "5.99", c.Exact(dec("5.99"), "EUR", rates).StringFixed(2))
	}
}

func TestExactRoundsToPennies(t *testing.T) {
	c := currency.Converter{Canonical: "GBP"}
	rates := map[string]decimal.Decimal{"EUR": dec("1.17")}
	require.Equal(t, "7.01", c.Exact(dec("5.99"), "EUR", rates).StringFixed(2))
	require.Equal(t, "1.40", c.Exact(dec("1.20"), "EUR", rates).StringFixed(2))
	require.Equal(t, "1.20", c.Exact(dec("1.20"), "GBP", rates).StringFixed(2))
}

func TestDefaultSnapshotCoversDisplayCurrencies(t *testing.T) {
	snap := currency.DefaultSnapshot("gbp")
	require.Equal(t, "GBP", snap.Base)
	require.Equal(t, currency.SourceDefault, snap.Source)
	require.Equal(t, "GBP", snap.Currencies()[0])
	for _, code := range []string{"EUR", "USD", "AUD", "CAD", "NZD", "CHF", "NOK", "SEK", "DKK"} {
		rate, ok := snap.Rates[code]
		require.Truef(t, ok, "missing default rate for %s", code)
		require.True(t, rate.IsPositive())
	}
}

func TestSnapshotCloneIsIndependent(t *testing.T) {
	snap := currency.DefaultSnapshot("GBP")
	clone := snap.Clone()
	clone.Rates["EUR"] = dec("9")
	require.Equal(t, "1.17", snap.Rates["EUR"].String())
}

package currency_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/foodsafe/storefront/internal/currency"
)

func newHandler() *currency.Handler {
	return &currency.Handler{
		Cache:     currency.NewCache(nil, "GBP", time.Hour, zerolog.Nop()),
		Converter: currency.Converter{Canonical: "GBP"},
	}
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Data
}

func TestConvertHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	newHandler().Convert(rr, httptest.NewRequest(http.MethodGet, "/api/v1/currency/convert?amount=10&to=eur", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	data := decodeData(t, rr)
	require.Equal(t, "EUR", data["currency"])
	require.Equal(t, "11.99", data["converted"])
	require.Equal(t, "€11.99", data["display"])
}

func TestConvertHandlerUnknownCurrencyShowsCanonical(t *testing.T) {
	rr := httptest.NewRecorder()
	newHandler().Convert(rr, httptest.NewRequest(http.MethodGet, "/api/v1/currency/convert?amount=10&to=JPY", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	data := decodeData(t, rr)
	require.Equal(t, "GBP", data["currency"])
	require.Equal(t, "£10.00", data["display"])
}

func TestConvertHandlerValidatesInput(t *testing.T) {
	for _, target := range []string{
		"/api/v1/currency/convert?amount=abc&to=EUR",
		"/api/v1/currency/convert?amount=-1&to=EUR",
		"/api/v1/currency/convert?amount=1&to=EURO",
	} {
		rr := httptest.NewRecorder()
		newHandler().Convert(rr, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestRatesHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	newHandler().Rates(rr, httptest.NewRequest(http.MethodGet, "/api/v1/currency/rates", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	data := decodeData(t, rr)
	require.Equal(t, "GBP", data["base"])
	require.Equal(t, currency.SourceDefault, data["source"])
	rates := data["rates"].(map[string]any)
	require.Equal(t, "1.17", rates["EUR"])
}

package vat_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/foodsafe/storefront/internal/vat"
)

func TestValidateKnownCountries(t *testing.T) {
	cases := []struct {
		in      string
		valid   bool
		country string
	}{
		{"GB123456789", true, "GB"},
		{"gb 123 456 789 012", true, "GB"},
		{"GB12345", false, ""},
		{"DE123456789", true, "DE"},
		{"DE12345678", false, ""},
		{"ATU12345678", true, "AT"},
		{"FR12345678901", true, "FR"},
		{"NL123456789B01", true, "NL"},
		{"IE1234567WA", true, "IE"},
		{"EL123456789", true, "EL"},
		{"ESX1234567X", true, "ES"},
		{"CHE123456789MWST", true, "CH"},
		{"NO123456789MVA", true, "NO"},
		{"US123456789", true, "US"},
		{"CA123456789RT0001", true, "CA"},
		{"AU12345678901", true, "AU"},
		{"NZ12345678", true, "NZ"},
		{"NZ1234567", false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			res := vat.Validate(tc.in)
			require.Equal(t, tc.valid, res.IsValid, res.Error)
			require.Equal(t, tc.country, res.Country)
			if !tc.valid {
				require.Contains(t, res.Error, "invalid VAT number format for")
			}
		})
	}
}

func TestValidateRejectsEmptyAndShort(t *testing.T) {
	res := vat.Validate("")
	require.False(t, res.IsValid)
	require.Contains(t, res.Error, "required")

	res = vat.Validate("   \t")
	require.False(t, res.IsValid)
	require.Contains(t, res.Error, "required")

	res = vat.Validate(" g b 1")
	require.False(t, res.IsValid)
	require.Equal(t, vat.ErrTooShort, res.Error)
}

func TestValidateUnknownPrefixUsesGenericPattern(t *testing.T) {
	res := vat.Validate("ZA4012345678")
	require.True(t, res.IsValid)
	require.Equal(t, "ZA", res.Country)

	res = vat.Validate("ZA12-34")
	require.False(t, res.IsValid)
	require.Equal(t, vat.ErrInvalidFormat, res.Error)

	res = vat.Validate("1234567")
	require.False(t, res.IsValid)
	require.Equal(t, vat.ErrInvalidFormat, res.Error)

	res = vat.Validate("ZA" + "123456789012345678901")
	require.False(t, res.IsValid)
}

func TestValidateErrorNamesCountry(t *testing.T) {
	res := vat.Validate("GB12345")
	require.Equal(t, "invalid VAT number format for GB", res.Error)
	require.Equal(t, "GB12345", res.Normalized)
}

func TestFormat(t *testing.T) {
	require.Equal(t, "GB 123 456 789", vat.Format("gb123456789"))
	require.Equal(t, "GB 123 456 789 012", vat.Format("GB123456789012"))
	require.Equal(t, "DE 123456789", vat.Format(" de 123 456 789 "))
	require.Equal(t, "GB 12345", vat.Format("GB12345"))
	require.Equal(t, "G", vat.Format("g"))
}

func TestFormatIsIdempotent(t *testing.T) {
	for _, in := range []string{"GB123456789", "GB123456789012", "NL123456789B01", "CHE123456789MWST"} {
		once := vat.Format(in)
		require.Equal(t, once, vat.Format(once))
	}
}

func TestKnownCountriesCoverage(t *testing.T) {
	known := vat.KnownCountries()
	require.Len(t, known, 26)
	require.Contains(t, known, "GB")
	require.Contains(t, known, "NO")
}

func TestValidateHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/vat/validate", strings.NewReader(`{"vatNumber":"gb 123456789"}`))
	vat.ValidateHandler(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"data":{"isValid":true,"country":"GB","error":"","normalized":"GB123456789","formatted":"GB 123 456 789"}}`, rr.Body.String())

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/vat/validate", strings.NewReader(`{"vatNumber":""}`))
	vat.ValidateHandler(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"isValid":false`)
	require.Contains(t, rr.Body.String(), "required")
}

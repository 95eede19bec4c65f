package vat

import "regexp"

// patterns maps a two-letter prefix to the full-number format for that
// jurisdiction. Greece uses its VIES prefix EL.
var patterns = map[string]*regexp.Regexp{
	"GB": regexp.MustCompile(`^GB(\d{9}|\d{12})$`),

	"AT": regexp.MustCompile(`^ATU\d{8}$`),
	"BE": regexp.MustCompile(`^BE[01]\d{9}$`),
	"BG": regexp.MustCompile(`^BG\d{9,10}$`),
	"CY": regexp.MustCompile(`^CY\d{8}[A-Z]$`),
	"CZ": regexp.MustCompile(`^CZ\d{8,10}$`),
	"DE": regexp.MustCompile(`^DE\d{9}$`),
	"DK": regexp.MustCompile(`^DK\d{8}$`),
	"EE": regexp.MustCompile(`^EE\d{9}$`),
	"EL": regexp.MustCompile(`^EL\d{9}$`),
	"ES": regexp.MustCompile(`^ES[A-Z0-9]\d{7}[A-Z0-9]$`),
	"FI": regexp.MustCompile(`^FI\d{8}$`),
	"FR": regexp.MustCompile(`^FR[A-HJ-NP-Z0-9]{2}\d{9}$`),
	"HR": regexp.MustCompile(`^HR\d{11}$`),
	"HU": regexp.MustCompile(`^HU\d{8}$`),
	"IE": regexp.MustCompile(`^IE\d{7}[A-W][A-I]?$|^IE\d[A-Z+*]\d{5}[A-W]$`),
	"IT": regexp.MustCompile(`^IT\d{11}$`),
	"LU": regexp.MustCompile(`^LU\d{8}$`),
	"NL": regexp.MustCompile(`^NL\d{9}B\d{2}$`),
	"PL": regexp.MustCompile(`^PL\d{10}$`),

	"US": regexp.MustCompile(`^US\d{9}$`),
	"CA": regexp.MustCompile(`^CA\d{9}(RT\d{4})?$`),
	"AU": regexp.MustCompile(`^AU\d{11}$`),
	"NZ": regexp.MustCompile(`^NZ\d{8,9}$`),
	"CH": regexp.MustCompile(`^CHE\d{9}(MWST|TVA|IVA)?$`),
	"NO": regexp.MustCompile(`^NO\d{9}(MVA)?$`),
}

// fallback accepts unknown jurisdictions: a two-letter prefix and 4-20
// alphanumerics.
var fallback = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{4,20}$`)

// KnownCountries lists the prefixes that have a dedicated format.
func KnownCountries() []string {
	out := make([]string, 0, len(patterns))
	for code := range patterns {
		out = append(out, code)
	}
	return out
}

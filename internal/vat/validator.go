// Package vat performs purely syntactic validation and display formatting of
// VAT and sales-tax registration numbers. It never contacts a registry.
package vat

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// ErrRequired is reported for empty input.
	ErrRequired = "VAT number is required"
	// ErrTooShort is reported when fewer than four characters remain after normalisation.
	ErrTooShort = "VAT number is too short"
	// ErrInvalidFormat is reported when an unknown prefix fails the generic format.
	ErrInvalidFormat = "invalid VAT number format"
)

// Result describes the outcome of a validation.
type Result struct {
	IsValid    bool   `json:"isValid"`
	Country    string `json:"country,omitempty"`
	Normalized string `json:"normalized,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Normalize trims, removes all internal whitespace and upper-cases.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Validate checks raw against the pattern for its two-letter prefix, or the
// generic pattern when the prefix is unknown.
func Validate(raw string) Result {
	if strings.TrimSpace(raw) == "" {
		return Result{Error: ErrRequired}
	}
	normalized := Normalize(raw)
	if len(normalized) < 4 {
		return Result{Normalized: normalized, Error: ErrTooShort}
	}
	country := normalized[:2]
	if pattern, ok := patterns[country]; ok {
		if !pattern.MatchString(normalized) {
			return Result{Normalized: normalized, Error: fmt.Sprintf("invalid VAT number format for %s", country)}
		}
		return Result{IsValid: true, Country: country, Normalized: normalized}
	}
	if !fallback.MatchString(normalized) {
		return Result{Normalized: normalized, Error: ErrInvalidFormat}
	}
	return Result{IsValid: true, Country: country, Normalized: normalized}
}

// Format renders a number for display. UK numbers of 9 or 12 digits are grouped
// in threes ("GB 123 456 789"); everything else gets a single space after the
// prefix. Spaces are stripped first, so formatting is idempotent.
func Format(raw string) string {
	normalized := Normalize(raw)
	if len(normalized) <= 2 {
		return normalized
	}
	prefix, rest := normalized[:2], normalized[2:]
	if prefix == "GB" && isDigits(rest) && (len(rest) == 9 || len(rest) == 12) {
		groups := make([]string, 0, 5)
		groups = append(groups, prefix)
		for i := 0; i < len(rest); i += 3 {
			groups = append(groups, rest[i:i+3])
		}
		return strings.Join(groups, " ")
	}
	return prefix + " " + rest
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

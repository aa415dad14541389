// Package normalize provides the deterministic, pure functions that turn
// locale-specific source values into canonical form: amounts into minor-unit
// integers, dates into calendar days, and free-text vendor strings into
// matching keys. Import deduplication keys are derived here as well.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// AmountLocale declares which decimal separator a source format uses.
// Every parser fixes its locale up front; amount parsing never guesses.
type AmountLocale int

const (
	// DecimalComma is the German/European convention: "1.234,56"
	DecimalComma AmountLocale = iota
	// DecimalDot is the US/UK convention: "1,234.56"
	DecimalDot
)

// String returns the string representation of AmountLocale
func (l AmountLocale) String() string {
	if l == DecimalComma {
		return "decimal-comma"
	}
	return "decimal-dot"
}

// ParseAmountMinor parses a locale-specific amount string into signed minor
// currency units. It rejects unparseable input, amounts with more than two
// decimal places, and conflicting sign markers.
func ParseAmountMinor(s string, locale AmountLocale) (int64, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return 0, fmt.Errorf("amount string cannot be empty")
	}

	// Strip currency symbols and their spacing
	for _, sym := range []string{"€", "$", "£", "EUR", "USD", "GBP"} {
		cleaned = strings.ReplaceAll(cleaned, sym, "")
	}
	cleaned = strings.TrimSpace(cleaned)

	negative, cleaned, err := extractSign(cleaned)
	if err != nil {
		return 0, err
	}
	if cleaned == "" {
		return 0, fmt.Errorf("amount '%s' has no digits", s)
	}

	switch locale {
	case DecimalComma:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	case DecimalDot:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	default:
		return 0, fmt.Errorf("unknown amount locale: %d", locale)
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("invalid amount format '%s': %w", s, err)
	}

	minor := d.Mul(decimal.NewFromInt(100))
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount '%s' has more than two decimal places", s)
	}

	value := minor.IntPart()
	if negative {
		value = -value
	}
	return value, nil
}

// extractSign strips sign markers from an amount string and reports whether
// the value is negative. Leading minus, trailing minus (common in bank
// exports), and accounting parentheses are all accepted; combining any of
// them with an explicit plus is rejected as sign-ambiguous.
func extractSign(s string) (bool, string, error) {
	negative := false
	positive := false

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimPrefix(s, "-")
	}
	if strings.HasSuffix(s, "-") {
		negative = true
		s = strings.TrimSuffix(s, "-")
	}
	if strings.HasPrefix(s, "+") {
		positive = true
		s = strings.TrimPrefix(s, "+")
	}

	if negative && positive {
		return false, "", fmt.Errorf("amount has conflicting sign markers")
	}
	if strings.ContainsAny(s, "+-()") {
		return false, "", fmt.Errorf("amount has conflicting sign markers")
	}

	return negative, strings.TrimSpace(s), nil
}

// Date formats tried in order by ParseDate. German day-first formats come
// before ISO so that "14.01.2025" is never misread.
var dateFormats = []string{
	"02.01.2006",
	"02.01.06",
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"02-01-2006",
	"2006/01/02",
	"Jan 2, 2006",
}

// ParseDate parses a date string into a canonical UTC calendar day.
// If formats are supplied only those are tried; otherwise the default
// ordered list is used.
func ParseDate(s string, formats ...string) (time.Time, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	tryFormats := formats
	if len(tryFormats) == 0 {
		tryFormats = dateFormats
	}

	var lastErr error
	for _, format := range tryFormats {
		if t, err := time.Parse(format, cleaned); err == nil {
			return Day(t), nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// Day truncates a time to its calendar day at midnight UTC
func Day(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// legalSuffixes are company-form tokens dropped during text normalization so
// that "ACME GmbH" and "acme" compare equal.
var legalSuffixes = map[string]bool{
	"gmbh": true, "ag": true, "kg": true, "ohg": true, "ug": true,
	"ek": true, "ev": true, "inc": true, "ltd": true, "llc": true,
	"corp": true, "co": true, "bv": true, "sarl": true,
}

var diacriticsRemover = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Text normalizes a vendor/description string into the canonical matching
// key: lowercase, diacritics stripped, punctuation replaced by spaces, legal
// company suffixes removed, whitespace collapsed.
func Text(s string) string {
	lowered := strings.ToLower(strings.TrimSpace(s))
	if lowered == "" {
		return ""
	}

	if stripped, _, err := transform.String(diacriticsRemover, lowered); err == nil {
		lowered = stripped
	}

	var builder strings.Builder
	builder.Grow(len(lowered))
	for _, r := range lowered {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune(' ')
		}
	}

	var tokens []string
	for _, token := range strings.Fields(builder.String()) {
		if legalSuffixes[token] {
			continue
		}
		tokens = append(tokens, token)
	}

	return strings.Join(tokens, " ")
}

// Tokens returns the normalized token set of a string, for token-level
// similarity scoring.
func Tokens(s string) []string {
	normalized := Text(s)
	if normalized == "" {
		return nil
	}
	return strings.Fields(normalized)
}

// DedupKey derives the deduplication key for an imported row. Two imports of
// the same file produce identical keys, so a unique index on the key makes
// re-import a no-op. The raw-row ordinal keeps genuinely identical rows
// within one file distinct.
func DedupKey(source string, bookingDate time.Time, amountMinor int64, description string, ordinal int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s|%d",
		source,
		Day(bookingDate).Format("2006-01-02"),
		amountMinor,
		Text(description),
		ordinal,
	)
	return hex.EncodeToString(h.Sum(nil))
}

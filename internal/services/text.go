package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	slugSeparator     = regexp.MustCompile(`[^a-z0-9]+`)
	numberPattern     = regexp.MustCompile(`-?\d+(\.\d+)?`)

	// Prices are rendered the way the storefront shows them (es-AR grouping)
	pricePrinter = message.NewPrinter(language.MustParse("es-AR"))
)

// NormalizeWhitespace collapses runs of whitespace and trims the result
func NormalizeWhitespace(value string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(value, " "))
}

// FoldDiacritics strips combining marks (á -> a, ñ -> n)
func FoldDiacritics(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return folded
}

// NormalizeName is the comparison form of a dish name: lowercase, no diacritics,
// single spaces.
func NormalizeName(value string) string {
	return NormalizeWhitespace(FoldDiacritics(strings.ToLower(value)))
}

// Slugify turns a name into a lowercase dash-separated ASCII slug
func Slugify(value string) string {
	slug := slugSeparator.ReplaceAllString(FoldDiacritics(strings.ToLower(value)), "-")
	return strings.Trim(slug, "-")
}

// TextToNumber parses a locale-formatted amount where '.' groups thousands and ','
// separates decimals ("12.500" -> 12500, "1.234,50" -> 1234.5).
func TextToNumber(value string) (float64, bool) {
	if value == "" {
		return 0, false
	}
	normalized := strings.ReplaceAll(value, ".", "")
	normalized = strings.Replace(normalized, ",", ".", 1)
	match := numberPattern.FindString(normalized)
	if match == "" {
		return 0, false
	}
	number, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return number, true
}

// FormatPrice renders a whole-peso amount with es-AR grouping
func FormatPrice(value float64) string {
	return pricePrinter.Sprintf("%d", int64(math.Round(value)))
}

// RoundPrice is the price component of dedup keys and catalog ids
func RoundPrice(value float64) int64 {
	return int64(math.Round(value))
}

func wordCount(value string) int {
	return len(strings.Fields(value))
}

func hasLetter(value string) bool {
	for _, r := range value {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

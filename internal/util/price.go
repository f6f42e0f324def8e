package util

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var priceRegex = regexp.MustCompile(`\$\s?(\d+(?:\.\d{1,2})?)`)

// FormatPrice renders a dollar amount in the canonical "$X.XX" form.
// Zero and negative amounts render as "Free".
func FormatPrice(amount float64) string {
	if amount <= 0 {
		return "Free"
	}
	return fmt.Sprintf("$%.2f", amount)
}

// ParsePrice extracts the first dollar amount from free text.
// Returns 0 and false when no amount is present.
func ParsePrice(s string) (float64, bool) {
	m := priceRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParsePriceAfter extracts the first dollar amount following the given
// marker phrase (case-insensitive), e.g. "now $4.99".
func ParsePriceAfter(s, marker string) (float64, bool) {
	idx := strings.Index(strings.ToLower(s), strings.ToLower(marker))
	if idx < 0 {
		return 0, false
	}
	return ParsePrice(s[idx:])
}

// SavingsPercent computes the rounded discount percentage, clamped to [0, 100].
// A free sale price is always 100; a missing original price is 0.
func SavingsPercent(original, sale float64) int {
	if sale <= 0 {
		return 100
	}
	if original <= 0 || sale >= original {
		return 0
	}
	return int(math.Round((original - sale) / original * 100))
}

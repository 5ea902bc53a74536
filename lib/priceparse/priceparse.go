// Package priceparse turns rendered page text into price candidates.
//
// Vendor pages show several amounts at once (adult/child tiers, a
// struck-through original price, the discounted price, promotional
// copy). Absent a vendor-specific selector the lowest plausible amount
// is the best proxy for "price to book at", so selection is minimum
// over the surviving candidates. This deliberately keeps the known
// false-low behavior of matching struck-through or promotional
// amounts; tightening that requires per-vendor selectors.
package priceparse

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// currency marker is optional on purpose: rendered pages frequently
// put the symbol in a sibling element, leaving the amount bare.
var amountRegex = regexp.MustCompile(`(A\$|AU\$|US\$|\$|¥|￥|€|£|CNY|USD|AUD)\s?([0-9]{1,3}(?:,[0-9]{3})+|[0-9]+)(\.[0-9]{1,2})?|([0-9]{1,3}(?:,[0-9]{3})+|[0-9]+)(\.[0-9]{1,2})?`)

// Candidate is a single normalized amount token found in page text.
type Candidate struct {
	// Price is the canonical decimal amount with currency markers
	// and thousands separators stripped.
	Price decimal.Decimal
	// Raw is the exact substring the token was parsed from.
	Raw string
	// HasCurrency reports whether the token carried an explicit
	// currency symbol or code.
	HasCurrency bool
}

type Options struct {
	// MinPrice is the plausibility floor: amounts strictly below it
	// are discarded as non-prices (page counters, quantities, ...).
	// Zero amounts are always discarded.
	MinPrice decimal.Decimal
}

// Candidates scans text for every amount token and normalizes each to
// a decimal. No plausibility filtering happens here; see Extract.
func Candidates(text string) []Candidate {
	var out []Candidate
	for _, groups := range amountRegex.FindAllStringSubmatch(text, -1) {
		currency := groups[1]
		integer := groups[2]
		fraction := groups[3]
		if integer == "" {
			integer = groups[4]
			fraction = groups[5]
		}
		if integer == "" {
			continue
		}

		normalized := strings.ReplaceAll(integer, ",", "") + fraction
		price, err := decimal.NewFromString(normalized)
		if err != nil {
			continue
		}

		out = append(out, Candidate{
			Price:       price,
			Raw:         strings.Trim(groups[0], " "),
			HasCurrency: currency != "",
		})
	}
	return out
}

var yearLike = regexp.MustCompile(`^(19|20)[0-9]{2}$`)

func plausible(c Candidate, opts Options) bool {
	if c.Price.IsZero() || c.Price.IsNegative() {
		return false
	}
	if c.Price.LessThan(opts.MinPrice) {
		return false
	}
	// a bare 4-digit token in the calendar-year range with no
	// currency marker, separator or fraction is far more likely a
	// copyright stamp or date than a price
	if !c.HasCurrency && yearLike.MatchString(c.Raw) {
		return false
	}
	return true
}

// Extract returns the minimum plausible amount in text. The false
// return is the "page did not parse" outcome, not an error.
func Extract(text string, opts Options) (Candidate, bool) {
	var best Candidate
	found := false
	for _, c := range Candidates(text) {
		if !plausible(c, opts) {
			continue
		}
		if !found || c.Price.LessThan(best.Price) {
			best = c
			found = true
		}
	}
	return best, found
}

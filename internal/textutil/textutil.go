// Package textutil normalizes amount and date strings pulled out of
// statement text. Both parsers are total: malformed input degrades to the
// zero value instead of failing the surrounding parse.
package textutil

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// currencyTokens are stripped before numeric parsing. Longer tokens first so
// "руб." wins over "руб".
var currencyTokens = []string{
	"руб.", "руб", "RUB", "₽",
	"USD", "$",
	"EUR", "€",
	"GBP", "£",
}

var (
	groupedDotsRe = regexp.MustCompile(`^-?\d{1,3}(\.\d{3})+$`)
	amountRe      = regexp.MustCompile(`-?\d+(\.\d+)?`)
)

// ParseAmount converts a statement amount string into a decimal. Currency
// tokens and thousands separators (space, or dot used as a group separator)
// are stripped, and a decimal comma becomes a decimal point. Anything that
// still fails to parse yields zero.
func ParseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}

	for _, tok := range currencyTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.TrimSpace(s)

	if strings.Contains(s, ",") {
		// Comma is the decimal separator, dots and spaces group thousands.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, " ", "")
		if strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	} else {
		s = strings.ReplaceAll(s, " ", "")
		if groupedDotsRe.MatchString(s) {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	m := amountRe.FindString(s)
	if m == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// dateLayouts are tried in order; day-first formats come before the
// month-first fallback since statements are predominantly European.
var dateLayouts = []string{
	"02.01.2006",
	"02/01/2006",
	"2006-01-02",
	"02-01-2006",
	"02.01.06",
	"02/01/06",
	"01/02/2006",
	"2 January 2006",
	"January 2, 2006",
}

// ParseDate converts a statement date string into a time.Time, trying a list
// of explicit layouts before giving up. The zero time.Time is returned on
// total failure and acts as the "unset" sentinel throughout the module.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

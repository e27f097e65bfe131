// Package core holds the domain model: expense records, attachment slots,
// the working session, and the parsing rules shared by every template layout.
//
// This file contains amount normalization for raw spreadsheet cells.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// NormalizeAmount parses a raw cell value into a signed amount in currency
// units. It tolerates thousands separators, a dollar sign, surrounding
// whitespace, and accounting-style parentheses for negatives:
//
//	NormalizeAmount("$1,234.56") -> 1234.56
//	NormalizeAmount("(500)")     -> -500
//	NormalizeAmount("")          -> 0
//	NormalizeAmount("abc")       -> 0
//
// Anything that does not parse to a finite number normalizes to 0. Callers
// treat 0 as "no expense on this row" and skip it; malformed cells are never
// an error.
func NormalizeAmount(raw string) float64 {
	clean := strings.ReplaceAll(raw, ",", "")
	clean = strings.ReplaceAll(clean, "$", "")
	clean = strings.TrimSpace(clean)
	if strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")") {
		clean = "-" + clean[1:len(clean)-1]
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

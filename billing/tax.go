package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the VAT percentage applied when a contract has none.
const DefaultTaxRate = 9

// Tolerance is the absolute difference, in currency units, under which two
// amounts are considered equal.
var Tolerance = decimal.New(1, -2)

var hundred = decimal.NewFromInt(100)

// ParseAmount parses a decimal string that may carry comma thousands
// separators. ok is false for blank or non-numeric input.
func ParseAmount(s string) (d decimal.Decimal, ok bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// AmountOrZero parses s, substituting zero for anything unparseable.
func AmountOrZero(s string) decimal.Decimal {
	d, _ := ParseAmount(s)
	return d
}

// FormatAmount renders d with exactly two decimals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// TaxIncluded returns amount × (1 + rate/100). Invalid input yields "".
func TaxIncluded(amount string, rate int) string {
	d, ok := ParseAmount(amount)
	if !ok || rate < 0 {
		return ""
	}
	return FormatAmount(d.Mul(decimal.NewFromInt(int64(100 + rate))).Div(hundred))
}

// TaxExcluded returns amount / (1 + rate/100). Invalid input yields "".
func TaxExcluded(amount string, rate int) string {
	d, ok := ParseAmount(amount)
	if !ok || rate < 0 {
		return ""
	}
	return FormatAmount(d.Mul(hundred).Div(decimal.NewFromInt(int64(100 + rate))))
}

// PaymentRatio returns payment / contractAmount × 100. The ratio is advisory:
// it is "" unless both operands parse and are positive.
func PaymentRatio(payment, contractAmount string) string {
	pay, ok := ParseAmount(payment)
	if !ok || !pay.IsPositive() {
		return ""
	}
	total, ok := ParseAmount(contractAmount)
	if !ok || !total.IsPositive() {
		return ""
	}
	return FormatAmount(pay.Mul(hundred).Div(total))
}

func rateOrDefault(rate int) int {
	if rate <= 0 {
		return DefaultTaxRate
	}
	return rate
}

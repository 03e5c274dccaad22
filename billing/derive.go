package billing

import (
	"fmt"

	"github.com/fakeman1232/Contract-Ledger-app/model"
)

// Normalize fills defaults and recomputes derived fields before a contract is
// saved: tax-included billing from tax-excluded billing, tax-excluded payment
// from tax-included payment, and the payment ratio. A derived total whose
// base is blank or not a number is cleared; totals derived from a base that
// is not positive are kept as entered.
func Normalize(c *model.Contract) *model.Contract {
	out := c.Clone()
	out.TaxRate = rateOrDefault(out.TaxRate)
	if !out.Category.Valid() {
		out.Category = model.CategoryLabor
	}

	if d, ok := ParseAmount(out.TotalBillingTaxExcluded); !ok {
		out.TotalBillingTaxIncluded = ""
	} else if d.IsPositive() {
		out.TotalBillingTaxIncluded = TaxIncluded(out.TotalBillingTaxExcluded, out.TaxRate)
	}
	if d, ok := ParseAmount(out.TotalPaymentTaxIncluded); !ok {
		out.TotalPaymentTaxExcluded = ""
	} else if d.IsPositive() {
		out.TotalPaymentTaxExcluded = TaxExcluded(out.TotalPaymentTaxIncluded, out.TaxRate)
	}
	out.PaymentRatio = PaymentRatio(out.TotalPaymentTaxIncluded, out.ContractAmount)
	return out
}

// SetPaymentMonth records a tax-included payment for month and recomputes
// the cumulative payment totals and the payment ratio from the ledger.
func SetPaymentMonth(c *model.Contract, month, amount string) *model.Contract {
	out := c.Clone()
	out.MonthlyPayment.Set(month, amount)

	total := Sum(out.MonthlyPayment)
	out.TotalPaymentTaxIncluded = FormatAmount(total)
	out.TotalPaymentTaxExcluded = TaxExcluded(out.TotalPaymentTaxIncluded, rateOrDefault(out.TaxRate))
	out.PaymentRatio = PaymentRatio(out.TotalPaymentTaxIncluded, out.ContractAmount)
	return out
}

// CheckDerived reports the first derived total that drifted from its base by
// more than Tolerance, or that is set while its base is blank. Fully blank
// pairs are not checked.
func CheckDerived(c *model.Contract) error {
	rate := rateOrDefault(c.TaxRate)
	if c.TotalBillingTaxExcluded == "" && c.TotalBillingTaxIncluded != "" {
		return fmt.Errorf("billing tax included %s without a tax-excluded total", c.TotalBillingTaxIncluded)
	}
	if c.TotalPaymentTaxIncluded == "" && c.TotalPaymentTaxExcluded != "" {
		return fmt.Errorf("payment tax excluded %s without a tax-included total", c.TotalPaymentTaxExcluded)
	}
	if c.TotalBillingTaxExcluded != "" && c.TotalBillingTaxIncluded != "" {
		want := AmountOrZero(TaxIncluded(c.TotalBillingTaxExcluded, rate))
		got := AmountOrZero(c.TotalBillingTaxIncluded)
		if want.Sub(got).Abs().GreaterThan(Tolerance) {
			return fmt.Errorf("billing tax included %s, expected %s", got, want)
		}
	}
	if c.TotalPaymentTaxIncluded != "" && c.TotalPaymentTaxExcluded != "" {
		want := AmountOrZero(TaxExcluded(c.TotalPaymentTaxIncluded, rate))
		got := AmountOrZero(c.TotalPaymentTaxExcluded)
		if want.Sub(got).Abs().GreaterThan(Tolerance) {
			return fmt.Errorf("payment tax excluded %s, expected %s", got, want)
		}
	}
	return nil
}

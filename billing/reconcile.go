package billing

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/fakeman1232/Contract-Ledger-app/model"
)

// Verdict compares a ledger sum with a stored cumulative total.
type Verdict struct {
	Calculated decimal.Decimal
	Stored     decimal.Decimal
	Difference decimal.Decimal
	IsMatch    bool
}

// Reconcile checks the billing ledger against the stored tax-excluded total.
// An unparseable stored total counts as zero.
func Reconcile(l model.MonthlyLedger, storedTotal string) Verdict {
	calculated := Sum(l)
	stored := AmountOrZero(storedTotal)
	diff := calculated.Sub(stored)
	return Verdict{
		Calculated: calculated,
		Stored:     stored,
		Difference: diff,
		IsMatch:    diff.Abs().LessThanOrEqual(Tolerance),
	}
}

// MarshalJSON renders the amounts as fixed two-decimal strings.
func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Calculated string `json:"calculated"`
		Stored     string `json:"stored"`
		Difference string `json:"difference"`
		IsMatch    bool   `json:"is_match"`
	}{
		Calculated: FormatAmount(v.Calculated),
		Stored:     FormatAmount(v.Stored),
		Difference: FormatAmount(v.Difference),
		IsMatch:    v.IsMatch,
	})
}

// SyncBillingTotal overwrites the cumulative billing totals of c with the
// ledger sum. A non-positive sum clears them.
func SyncBillingTotal(c *model.Contract) *model.Contract {
	out := c.Clone()
	total := Sum(out.MonthlyBilling)
	if !total.IsPositive() {
		out.TotalBillingTaxExcluded = ""
		out.TotalBillingTaxIncluded = ""
		return out
	}
	out.TotalBillingTaxExcluded = FormatAmount(total)
	out.TotalBillingTaxIncluded = TaxIncluded(out.TotalBillingTaxExcluded, rateOrDefault(out.TaxRate))
	return out
}

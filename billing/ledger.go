package billing

import (
	"github.com/shopspring/decimal"

	"github.com/fakeman1232/Contract-Ledger-app/model"
)

// Sum totals every parseable entry of the ledger. Blank and non-numeric
// entries are skipped.
func Sum(l model.MonthlyLedger) decimal.Decimal {
	total := decimal.Zero
	for _, month := range l.Months() {
		if d, ok := ParseAmount(l[month]); ok {
			total = total.Add(d)
		}
	}
	return total
}

// TimelineResult describes what GenerateTimeline did to a contract.
type TimelineResult struct {
	Contract *model.Contract   `json:"contract"`
	Months   []string          `json:"months"`
	Filled   map[string]string `json:"filled,omitempty"`
	Dropped  map[string]string `json:"dropped,omitempty"`
	Verdict  Verdict           `json:"verdict"`
}

// GenerateTimeline lays the months from start to end over both ledgers of c.
// A month keeps its existing non-blank value, otherwise takes the pending
// amount, otherwise stays blank. Months outside the range are left alone.
// Pending billing is always cleared; pending months outside the range are
// reported in Dropped. Cumulative totals are not touched.
func GenerateTimeline(c *model.Contract, start, end string) (*TimelineResult, error) {
	months, err := Timeline(start, end)
	if err != nil {
		return nil, err
	}

	out := c.Clone()
	pending := c.PendingBilling.Clone()
	res := &TimelineResult{Months: months}

	for _, m := range months {
		if out.MonthlyBilling[m] == "" {
			amount, ok := pending.Entries[m]
			out.MonthlyBilling.Set(m, amount)
			if ok && amount != "" {
				if res.Filled == nil {
					res.Filled = make(map[string]string)
				}
				res.Filled[m] = amount
			}
		}
		if _, ok := out.MonthlyPayment[m]; !ok {
			out.MonthlyPayment.Set(m, "")
		}
		delete(pending.Entries, m)
	}
	if len(pending.Entries) > 0 {
		res.Dropped = pending.Entries
	}
	out.PendingBilling.Clear()

	res.Contract = out
	res.Verdict = Reconcile(out.MonthlyBilling, out.TotalBillingTaxExcluded)
	return res, nil
}

// SetMonth overwrites one month of a ledger. Cumulative totals are left as
// they are; use SyncBillingTotal to realign them.
func SetMonth(l model.MonthlyLedger, month, amount string) model.MonthlyLedger {
	out := l.Clone()
	out.Set(month, amount)
	return out
}

package billing

import (
	"strings"

	"github.com/fakeman1232/Contract-Ledger-app/model"
)

// Action tells the caller what to persist.
type Action string

const (
	ActionUpdate Action = "updated"
	ActionCreate Action = "created"
)

// MergeOptions carries the caller's context for staging new contracts.
type MergeOptions struct {
	// Category is the view the upload came from; "" or invalid means labor.
	Category model.Category
	// DocumentName names the contract when no supplier was extracted.
	DocumentName string
	// CurrentMonth keys the pending entry of a new contract whose statement
	// had no period.
	CurrentMonth Month
}

// MergeInstruction is the outcome of Merge. For ActionUpdate, Contract is an
// updated copy of existing[Index]; for ActionCreate it is a new contract
// without an id.
type MergeInstruction struct {
	Action   Action
	Index    int
	Contract *model.Contract
}

// Merge folds facts into the project's contracts. A contract matches when its
// supplier equals the extracted supplier exactly and it belongs to projectID;
// the first match in existing wins. Neither existing nor facts is modified.
func Merge(projectID string, existing []*model.Contract, facts ExtractedFacts, opts MergeOptions) MergeInstruction {
	if facts.Supplier != "" {
		for i, c := range existing {
			if c.Supplier == facts.Supplier && c.ProjectID == projectID {
				return MergeInstruction{Action: ActionUpdate, Index: i, Contract: mergeInto(c, facts)}
			}
		}
	}
	return MergeInstruction{Action: ActionCreate, Index: -1, Contract: stage(projectID, facts, opts)}
}

func mergeInto(c *model.Contract, facts ExtractedFacts) *model.Contract {
	out := c.Clone()
	if facts.ContractNumber != "" {
		out.ContractNumber = facts.ContractNumber
	}

	// Cumulative billing only grows; a smaller reading is a stale statement.
	current := AmountOrZero(out.TotalBillingTaxExcluded)
	incoming := AmountOrZero(facts.CumulativeAmount)
	if incoming.GreaterThan(current) {
		out.TotalBillingTaxExcluded = FormatAmount(incoming)
	}
	if current.IsPositive() || incoming.IsPositive() {
		out.TotalBillingTaxIncluded = TaxIncluded(out.TotalBillingTaxExcluded, rateOrDefault(out.TaxRate))
	}

	if facts.PeriodAmount != "" && facts.Period != "" {
		if len(out.MonthlyBilling) > 0 {
			out.MonthlyBilling.Set(facts.Period, facts.PeriodAmount)
		} else {
			out.PendingBilling.Add(facts.Period, facts.PeriodAmount)
		}
	}
	return out
}

func stage(projectID string, facts ExtractedFacts, opts MergeOptions) *model.Contract {
	category := opts.Category
	if !category.Valid() {
		category = model.CategoryLabor
	}
	name := facts.Supplier
	if name == "" {
		name = strings.TrimSuffix(opts.DocumentName, ".pdf")
	}

	c := &model.Contract{
		ProjectID:      projectID,
		ContractName:   name,
		Supplier:       facts.Supplier,
		ContractNumber: facts.ContractNumber,
		TaxRate:        DefaultTaxRate,
		Category:       category,
		MonthlyBilling: model.MonthlyLedger{},
		MonthlyPayment: model.MonthlyLedger{},
	}
	if d, ok := ParseAmount(facts.CumulativeAmount); ok {
		c.TotalBillingTaxExcluded = FormatAmount(d)
		c.TotalBillingTaxIncluded = TaxIncluded(c.TotalBillingTaxExcluded, c.TaxRate)
	}
	if facts.PeriodAmount != "" {
		period := facts.Period
		if period == "" && opts.CurrentMonth.Year != 0 {
			period = opts.CurrentMonth.String()
		}
		if period != "" {
			c.PendingBilling.Add(period, facts.PeriodAmount)
		}
	}
	return c
}

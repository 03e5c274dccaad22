package billing

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/fakeman1232/Contract-Ledger-app/model"
)

// Totals aggregates contract amount, tax-included billing and tax-included
// payment over a set of contracts.
type Totals struct {
	Count          int
	ContractAmount decimal.Decimal
	Billing        decimal.Decimal
	Payment        decimal.Decimal
}

func (t *Totals) add(c *model.Contract) {
	t.Count++
	t.ContractAmount = t.ContractAmount.Add(AmountOrZero(c.ContractAmount))
	t.Billing = t.Billing.Add(AmountOrZero(c.TotalBillingTaxIncluded))
	t.Payment = t.Payment.Add(AmountOrZero(c.TotalPaymentTaxIncluded))
}

func (t Totals) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"count":           t.Count,
		"contract_amount": FormatAmount(t.ContractAmount),
		"billing":         FormatAmount(t.Billing),
		"payment":         FormatAmount(t.Payment),
	})
}

// Summary is the project overview: overall totals and totals per category.
type Summary struct {
	Total      Totals                    `json:"total"`
	ByCategory map[model.Category]Totals `json:"by_category"`
}

// Summarize aggregates contracts. Contracts with an unknown category count
// toward the overall total only.
func Summarize(contracts []*model.Contract) Summary {
	s := Summary{ByCategory: make(map[model.Category]Totals, len(model.Categories))}
	for _, cat := range model.Categories {
		s.ByCategory[cat] = Totals{}
	}
	for _, c := range contracts {
		s.Total.add(c)
		if t, ok := s.ByCategory[c.Category]; ok {
			t.add(c)
			s.ByCategory[c.Category] = t
		}
	}
	return s
}

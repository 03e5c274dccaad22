package model

import (
	"time"
)

// Category classifies a contract within a project.
type Category string

const (
	CategoryLabor        Category = "labor"        // 劳务分包
	CategoryProfessional Category = "professional" // 专业分包
	CategoryTechnology   Category = "technology"   // 技术服务
	CategoryMaterial     Category = "material"     // 物资租赁
)

// Categories lists every valid category in display order.
var Categories = []Category{CategoryLabor, CategoryProfessional, CategoryTechnology, CategoryMaterial}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Label returns the Chinese display name.
func (c Category) Label() string {
	switch c {
	case CategoryLabor:
		return "劳务分包"
	case CategoryProfessional:
		return "专业分包"
	case CategoryTechnology:
		return "技术服务"
	case CategoryMaterial:
		return "物资租赁"
	}
	return string(c)
}

// Contract is a subcontract with its cumulative totals and monthly ledgers.
// Monetary fields are decimal strings as entered or extracted.
type Contract struct {
	ID             string   `json:"id"`
	ProjectID      string   `json:"project_id"`
	ContractName   string   `json:"contract_name"`
	Supplier       string   `json:"supplier"`
	ContractNumber string   `json:"contract_number"`
	ContractAmount string   `json:"contract_amount"`
	BidMethod      string   `json:"bid_method"`
	SignDate       string   `json:"sign_date"`
	TaxRate        int      `json:"tax_rate"`
	Category       Category `json:"category"`

	TotalBillingTaxExcluded string `json:"total_billing_tax_excluded"`
	TotalBillingTaxIncluded string `json:"total_billing_tax_included"`
	TotalPaymentTaxExcluded string `json:"total_payment_tax_excluded"`
	TotalPaymentTaxIncluded string `json:"total_payment_tax_included"`
	PaymentRatio            string `json:"payment_ratio"`

	MonthlyBilling MonthlyLedger  `json:"monthly_billing"`
	MonthlyPayment MonthlyLedger  `json:"monthly_payment"`
	PendingBilling PendingBilling `json:"pending_billing"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of c.
func (c *Contract) Clone() *Contract {
	cp := *c
	cp.MonthlyBilling = c.MonthlyBilling.Clone()
	cp.MonthlyPayment = c.MonthlyPayment.Clone()
	cp.PendingBilling = c.PendingBilling.Clone()
	return &cp
}

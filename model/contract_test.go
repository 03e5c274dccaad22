package model

import "testing"

func TestCategory(t *testing.T) {
	tests := []struct {
		category Category
		valid    bool
		label    string
	}{
		{CategoryLabor, true, "劳务分包"},
		{CategoryProfessional, true, "专业分包"},
		{CategoryTechnology, true, "技术服务"},
		{CategoryMaterial, true, "物资租赁"},
		{"overview", false, "overview"},
		{"", false, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			if got := tt.category.Valid(); got != tt.valid {
				t.Errorf("Expected valid %v, got %v", tt.valid, got)
			}
			if got := tt.category.Label(); got != tt.label {
				t.Errorf("Expected label %s, got %s", tt.label, got)
			}
		})
	}
}

func TestContractClone(t *testing.T) {
	c := &Contract{
		ID:             "c1",
		MonthlyBilling: MonthlyLedger{"2025-01": "100"},
		MonthlyPayment: MonthlyLedger{"2025-01": ""},
	}
	c.PendingBilling.Add("2025-02", "50")

	cp := c.Clone()
	cp.MonthlyBilling.Set("2025-01", "999")
	cp.MonthlyPayment.Set("2025-01", "1")
	cp.PendingBilling.Add("2025-03", "1")

	if c.MonthlyBilling["2025-01"] != "100" || c.MonthlyPayment["2025-01"] != "" {
		t.Error("Expected ledgers of the original to be unchanged")
	}
	if len(c.PendingBilling.Entries) != 1 {
		t.Errorf("Expected 1 pending entry, got %d", len(c.PendingBilling.Entries))
	}
	if cp.ID != "c1" {
		t.Errorf("Expected c1, got %s", cp.ID)
	}
}

package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestMonthlyLedgerMonths(t *testing.T) {
	l := MonthlyLedger{"2025-10": "1", "2024-12": "", "2025-02": "3"}

	expected := []string{"2024-12", "2025-02", "2025-10"}
	if got := l.Months(); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestMonthlyLedgerClone(t *testing.T) {
	var nilLedger MonthlyLedger
	if cp := nilLedger.Clone(); cp == nil {
		t.Error("Expected non-nil clone of nil ledger")
	}

	l := MonthlyLedger{"2025-01": "100"}
	cp := l.Clone()
	cp.Set("2025-01", "200")
	if l["2025-01"] != "100" {
		t.Errorf("Expected original untouched, got %s", l["2025-01"])
	}
}

func TestPendingBilling(t *testing.T) {
	var p PendingBilling
	p.Add("2025-06", "500")
	p.Add("2025-07", "600")
	p.Add("2025-06", "550")

	if !p.HasPending {
		t.Error("Expected HasPending after Add")
	}
	expected := map[string]string{"2025-06": "550", "2025-07": "600"}
	if !reflect.DeepEqual(p.Entries, expected) {
		t.Errorf("Expected %v, got %v", expected, p.Entries)
	}

	cp := p.Clone()
	cp.Clear()
	if !p.HasPending || len(p.Entries) != 2 {
		t.Error("Expected clone to be independent")
	}
	if cp.HasPending || cp.Entries != nil {
		t.Errorf("Expected cleared pending, got %+v", cp)
	}
}

func TestPendingBillingJSON(t *testing.T) {
	data, err := json.Marshal(PendingBilling{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(data) != `{"has_pending":false}` {
		t.Errorf("Expected empty pending JSON, got %s", data)
	}
}

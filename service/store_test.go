package service

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/fakeman1232/Contract-Ledger-app/config"
	"github.com/fakeman1232/Contract-Ledger-app/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(&config.StoreConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "ledger.db")})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustProject(t *testing.T, s *Store, name string) *model.Project {
	t.Helper()
	p := &model.Project{Name: name, CreatedBy: "alice"}
	if err := s.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	return p
}

func TestOpenStoreUnsupportedDriver(t *testing.T) {
	if _, err := OpenStore(&config.StoreConfig{Driver: "mysql"}); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}

func TestSqliteDSN(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"ledger.db", "ledger.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"},
		{"file:ledger.db?cache=shared", "file:ledger.db?cache=shared&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"},
		{"ledger.db?_pragma=foreign_keys(1)", "ledger.db?_pragma=foreign_keys(1)"},
	}
	for _, tt := range tests {
		if got := sqliteDSN(tt.in); got != tt.expected {
			t.Errorf("Expected %s, got %s", tt.expected, got)
		}
	}
}

func TestStoreProjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := mustProject(t, s, "Metro Line 3")
	if p.ID == "" {
		t.Fatal("Expected project id to be assigned")
	}

	got, err := s.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got.Name != "Metro Line 3" || got.CreatedBy != "alice" {
		t.Errorf("Unexpected project %+v", got)
	}

	projects, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	if len(projects) != 1 {
		t.Errorf("Expected 1 project, got %d", len(projects))
	}

	if _, err := s.GetProject(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteProject(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStoreContractRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustProject(t, s, "P")

	c := &model.Contract{
		ProjectID:               p.ID,
		ContractName:            "ACME labor",
		Supplier:                "ACME",
		ContractAmount:          "10,000",
		TaxRate:                 9,
		Category:                model.CategoryLabor,
		TotalBillingTaxExcluded: "1000.00",
		TotalBillingTaxIncluded: "1090.00",
		MonthlyBilling:          model.MonthlyLedger{"2025-01": "100", "2025-02": ""},
		MonthlyPayment:          model.MonthlyLedger{"2025-01": ""},
	}
	c.PendingBilling.Add("2025-03", "300")

	if err := s.CreateContract(ctx, c); err != nil {
		t.Fatalf("CreateContract failed: %v", err)
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		t.Fatal("Expected id and created_at to be assigned")
	}

	got, err := s.GetContract(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetContract failed: %v", err)
	}
	if !reflect.DeepEqual(got.MonthlyBilling, c.MonthlyBilling) {
		t.Errorf("Expected billing %v, got %v", c.MonthlyBilling, got.MonthlyBilling)
	}
	if !reflect.DeepEqual(got.MonthlyPayment, c.MonthlyPayment) {
		t.Errorf("Expected payment %v, got %v", c.MonthlyPayment, got.MonthlyPayment)
	}
	if !got.PendingBilling.HasPending || got.PendingBilling.Entries["2025-03"] != "300" {
		t.Errorf("Expected pending 2025-03=300, got %+v", got.PendingBilling)
	}
	if got.TotalBillingTaxIncluded != "1090.00" || got.ContractAmount != "10,000" {
		t.Errorf("Unexpected totals %+v", got)
	}

	got.MonthlyBilling = model.MonthlyLedger{"2025-02": "50"}
	got.PendingBilling.Clear()
	got.ContractNumber = "PS-2"
	if err := s.SaveContract(ctx, got); err != nil {
		t.Fatalf("SaveContract failed: %v", err)
	}

	again, err := s.GetContract(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetContract failed: %v", err)
	}
	if !reflect.DeepEqual(again.MonthlyBilling, model.MonthlyLedger{"2025-02": "50"}) {
		t.Errorf("Expected replaced ledger, got %v", again.MonthlyBilling)
	}
	if again.PendingBilling.HasPending {
		t.Errorf("Expected pending cleared, got %+v", again.PendingBilling)
	}
	if again.ContractNumber != "PS-2" {
		t.Errorf("Expected PS-2, got %s", again.ContractNumber)
	}
	if again.CreatedBy != c.CreatedBy {
		t.Errorf("Expected created_by kept, got %s", again.CreatedBy)
	}
}

func TestStoreSaveMissingContract(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveContract(context.Background(), &model.Contract{ID: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStoreListContractsOrderAndFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustProject(t, s, "P")
	other := mustProject(t, s, "Other")

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	contracts := []*model.Contract{
		{ID: "b", ProjectID: p.ID, Supplier: "B", Category: model.CategoryLabor, CreatedAt: base},
		{ID: "a", ProjectID: p.ID, Supplier: "A", Category: model.CategoryMaterial, CreatedAt: base},
		{ID: "c", ProjectID: p.ID, Supplier: "C", Category: model.CategoryLabor, CreatedAt: base.Add(-time.Hour)},
		{ID: "x", ProjectID: other.ID, Supplier: "X", Category: model.CategoryLabor, CreatedAt: base},
	}
	for _, c := range contracts {
		if err := s.CreateContract(ctx, c); err != nil {
			t.Fatalf("CreateContract failed: %v", err)
		}
	}

	all, err := s.ListContracts(ctx, p.ID, "")
	if err != nil {
		t.Fatalf("ListContracts failed: %v", err)
	}
	var ids []string
	for _, c := range all {
		ids = append(ids, c.ID)
		if c.MonthlyBilling == nil || c.MonthlyPayment == nil {
			t.Errorf("Expected non-nil ledgers for %s", c.ID)
		}
	}
	if !reflect.DeepEqual(ids, []string{"c", "a", "b"}) {
		t.Errorf("Expected [c a b], got %v", ids)
	}

	labor, err := s.ListContracts(ctx, p.ID, model.CategoryLabor)
	if err != nil {
		t.Fatalf("ListContracts failed: %v", err)
	}
	if len(labor) != 2 {
		t.Errorf("Expected 2 labor contracts, got %d", len(labor))
	}

	empty, err := s.ListContracts(ctx, "none", "")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("Expected empty non-nil slice, got %v (%v)", empty, err)
	}
}

func TestStoreDeleteCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustProject(t, s, "P")

	c := &model.Contract{
		ProjectID:      p.ID,
		Supplier:       "ACME",
		MonthlyBilling: model.MonthlyLedger{"2025-01": "1"},
		MonthlyPayment: model.MonthlyLedger{"2025-01": "2"},
	}
	if err := s.CreateContract(ctx, c); err != nil {
		t.Fatalf("CreateContract failed: %v", err)
	}
	st := &model.Statement{ProjectID: p.ID, Filename: "a.pdf", Status: model.StatusPending}
	if err := s.CreateStatement(ctx, st); err != nil {
		t.Fatalf("CreateStatement failed: %v", err)
	}

	if err := s.DeleteContract(ctx, c.ID); err != nil {
		t.Fatalf("DeleteContract failed: %v", err)
	}
	if _, err := s.GetContract(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	var n int64
	s.db.Table(billingTable).Where("contract_id = ?", c.ID).Count(&n)
	if n != 0 {
		t.Errorf("Expected billing rows removed, got %d", n)
	}

	c2 := &model.Contract{ProjectID: p.ID, Supplier: "B", MonthlyBilling: model.MonthlyLedger{"2025-02": "5"}}
	if err := s.CreateContract(ctx, c2); err != nil {
		t.Fatalf("CreateContract failed: %v", err)
	}
	if err := s.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProject failed: %v", err)
	}
	if _, err := s.GetContract(ctx, c2.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected contract removed with project, got %v", err)
	}
	if _, err := s.GetStatement(ctx, st.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected statement removed with project, got %v", err)
	}
	s.db.Table(billingTable).Where("contract_id = ?", c2.ID).Count(&n)
	if n != 0 {
		t.Errorf("Expected billing rows removed with project, got %d", n)
	}
}

func TestStoreStatements(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st := &model.Statement{ProjectID: "p1", Filename: "june.pdf", Pages: 2, Status: model.StatusPending, UploadedBy: "alice"}
	if err := s.CreateStatement(ctx, st); err != nil {
		t.Fatalf("CreateStatement failed: %v", err)
	}

	st.Status = model.StatusCompleted
	st.MineruTaskID = "task-1"
	st.Facts = &model.Facts{Supplier: "ACME", Period: "2025-06"}
	if err := s.SaveStatement(ctx, st); err != nil {
		t.Fatalf("SaveStatement failed: %v", err)
	}

	got, err := s.GetStatementByTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetStatementByTask failed: %v", err)
	}
	if got.ID != st.ID || got.Status != model.StatusCompleted || got.Pages != 2 {
		t.Errorf("Unexpected statement %+v", got)
	}
	if got.Facts == nil || got.Facts.Supplier != "ACME" {
		t.Errorf("Expected facts to round trip, got %+v", got.Facts)
	}

	if _, err := s.GetStatementByTask(ctx, "task-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := s.SaveStatement(ctx, &model.Statement{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fakeman1232/Contract-Ledger-app/config"
	"github.com/fakeman1232/Contract-Ledger-app/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

const (
	billingTable = "monthly_billings"
	paymentTable = "monthly_payments"
)

type projectRow struct {
	ID          string `gorm:"primaryKey;size:36"`
	Name        string `gorm:"not null"`
	Description string
	CreatedBy   string
	CreatedAt   time.Time
}

func (projectRow) TableName() string { return "projects" }

type contractRow struct {
	ID             string `gorm:"primaryKey;size:36"`
	ProjectID      string `gorm:"size:36;not null;index"`
	ContractName   string
	Supplier       string `gorm:"index"`
	ContractNumber string
	ContractAmount string
	BidMethod      string
	SignDate       string
	TaxRate        int
	Category       string `gorm:"size:32;index"`

	TotalBillingTaxExcluded string
	TotalBillingTaxIncluded string
	TotalPaymentTaxExcluded string
	TotalPaymentTaxIncluded string
	PaymentRatio            string

	// PendingBilling is model.PendingBilling as JSON.
	PendingBilling string `gorm:"type:text"`

	CreatedBy string
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (contractRow) TableName() string { return "contracts" }

// ledgerRow backs both monthly ledgers. Blank amounts are stored so a
// generated timeline keeps its empty months.
type ledgerRow struct {
	ContractID string `gorm:"primaryKey;size:36"`
	Month      string `gorm:"primaryKey;size:7"`
	Amount     string
}

type statementRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	ProjectID    string `gorm:"size:36;not null;index"`
	Filename     string
	ObjectName   string
	Category     string
	Pages        int
	Status       string `gorm:"size:16"`
	MineruTaskID string `gorm:"index"`
	Facts        string `gorm:"type:text"`
	ContractID   string `gorm:"size:36"`
	Action       string
	ErrorMsg     string
	UploadedBy   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (statementRow) TableName() string { return "statements" }

// Store persists projects, contracts with their ledgers, and statements.
type Store struct {
	db *gorm.DB
}

// OpenStore connects to the configured database and creates missing tables.
func OpenStore(cfg *config.StoreConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(sqliteDSN(cfg.DSN))
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Driver, err)
	}
	if cfg.Driver != "postgres" {
		// sqlite allows a single writer
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	s, err := NewStore(db)
	if err != nil {
		return nil, err
	}
	slog.Info("store opened", "driver", cfg.Driver)
	return s, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// NewStore wraps an open connection and creates missing tables.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&projectRow{}, &contractRow{}, &statementRow{}); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	for _, table := range []string{billingTable, paymentTable} {
		if err := db.Table(table).AutoMigrate(&ledgerRow{}); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", table, err)
		}
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Projects

func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	row := projectRow{ID: p.ID, Name: p.Name, Description: p.Description, CreatedBy: p.CreatedBy, CreatedAt: p.CreatedAt}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) ListProjects(ctx context.Context) ([]*model.Project, error) {
	var rows []projectRow
	if err := s.db.WithContext(ctx).Order("created_at DESC, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Project, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var row projectRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toModel(), nil
}

// DeleteProject removes the project with its contracts, ledgers and
// statements.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&projectRow{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		contractIDs := tx.Model(&contractRow{}).Select("id").Where("project_id = ?", id)
		for _, table := range []string{billingTable, paymentTable} {
			if err := tx.Table(table).Where("contract_id IN (?)", contractIDs).Delete(&ledgerRow{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(&contractRow{}, "project_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&statementRow{}, "project_id = ?", id).Error
	})
}

func (r projectRow) toModel() *model.Project {
	return &model.Project{ID: r.ID, Name: r.Name, Description: r.Description, CreatedBy: r.CreatedBy, CreatedAt: r.CreatedAt}
}

// Contracts

// ListContracts returns the project's contracts oldest first, ties broken by
// id. An empty category returns every category.
func (s *Store) ListContracts(ctx context.Context, projectID string, category model.Category) ([]*model.Contract, error) {
	db := s.db.WithContext(ctx)
	q := db.Where("project_id = ?", projectID)
	if category != "" {
		q = q.Where("category = ?", string(category))
	}
	var rows []contractRow
	if err := q.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []*model.Contract{}, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	billing, err := loadLedgers(db, billingTable, ids)
	if err != nil {
		return nil, err
	}
	payment, err := loadLedgers(db, paymentTable, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*model.Contract, len(rows))
	for i, r := range rows {
		c := r.toModel()
		c.MonthlyBilling = ledgerOrEmpty(billing[r.ID])
		c.MonthlyPayment = ledgerOrEmpty(payment[r.ID])
		out[i] = c
	}
	return out, nil
}

func (s *Store) GetContract(ctx context.Context, id string) (*model.Contract, error) {
	db := s.db.WithContext(ctx)
	var row contractRow
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	billing, err := loadLedgers(db, billingTable, []string{id})
	if err != nil {
		return nil, err
	}
	payment, err := loadLedgers(db, paymentTable, []string{id})
	if err != nil {
		return nil, err
	}
	c := row.toModel()
	c.MonthlyBilling = ledgerOrEmpty(billing[id])
	c.MonthlyPayment = ledgerOrEmpty(payment[id])
	return c, nil
}

// CreateContract assigns an id and timestamps and stores c with its ledgers.
func (s *Store) CreateContract(ctx context.Context, c *model.Contract) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	row, err := contractToRow(c)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		return writeLedgers(tx, c)
	})
}

// SaveContract overwrites an existing contract and replaces its ledgers.
func (s *Store) SaveContract(ctx context.Context, c *model.Contract) error {
	c.UpdatedAt = time.Now()
	row, err := contractToRow(c)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&contractRow{}).Where("id = ?", c.ID).
			Select("*").Omit("id", "created_at", "created_by").Updates(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		for _, table := range []string{billingTable, paymentTable} {
			if err := tx.Table(table).Where("contract_id = ?", c.ID).Delete(&ledgerRow{}).Error; err != nil {
				return err
			}
		}
		return writeLedgers(tx, c)
	})
}

// DeleteContract removes the contract and both of its ledgers.
func (s *Store) DeleteContract(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&contractRow{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		for _, table := range []string{billingTable, paymentTable} {
			if err := tx.Table(table).Where("contract_id = ?", id).Delete(&ledgerRow{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func contractToRow(c *model.Contract) (*contractRow, error) {
	pending, err := json.Marshal(c.PendingBilling)
	if err != nil {
		return nil, fmt.Errorf("encode pending billing: %w", err)
	}
	return &contractRow{
		ID:                      c.ID,
		ProjectID:               c.ProjectID,
		ContractName:            c.ContractName,
		Supplier:                c.Supplier,
		ContractNumber:          c.ContractNumber,
		ContractAmount:          c.ContractAmount,
		BidMethod:               c.BidMethod,
		SignDate:                c.SignDate,
		TaxRate:                 c.TaxRate,
		Category:                string(c.Category),
		TotalBillingTaxExcluded: c.TotalBillingTaxExcluded,
		TotalBillingTaxIncluded: c.TotalBillingTaxIncluded,
		TotalPaymentTaxExcluded: c.TotalPaymentTaxExcluded,
		TotalPaymentTaxIncluded: c.TotalPaymentTaxIncluded,
		PaymentRatio:            c.PaymentRatio,
		PendingBilling:          string(pending),
		CreatedBy:               c.CreatedBy,
		CreatedAt:               c.CreatedAt,
		UpdatedAt:               c.UpdatedAt,
	}, nil
}

func (r contractRow) toModel() *model.Contract {
	c := &model.Contract{
		ID:                      r.ID,
		ProjectID:               r.ProjectID,
		ContractName:            r.ContractName,
		Supplier:                r.Supplier,
		ContractNumber:          r.ContractNumber,
		ContractAmount:          r.ContractAmount,
		BidMethod:               r.BidMethod,
		SignDate:                r.SignDate,
		TaxRate:                 r.TaxRate,
		Category:                model.Category(r.Category),
		TotalBillingTaxExcluded: r.TotalBillingTaxExcluded,
		TotalBillingTaxIncluded: r.TotalBillingTaxIncluded,
		TotalPaymentTaxExcluded: r.TotalPaymentTaxExcluded,
		TotalPaymentTaxIncluded: r.TotalPaymentTaxIncluded,
		PaymentRatio:            r.PaymentRatio,
		CreatedBy:               r.CreatedBy,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
	if r.PendingBilling != "" {
		var p model.PendingBilling
		if err := json.Unmarshal([]byte(r.PendingBilling), &p); err != nil {
			slog.Warn("ignoring unreadable pending billing", "contract_id", r.ID, "error", err)
		} else if p.HasPending && len(p.Entries) > 0 {
			c.PendingBilling = p
		}
	}
	return c
}

func writeLedgers(tx *gorm.DB, c *model.Contract) error {
	for table, ledger := range map[string]model.MonthlyLedger{billingTable: c.MonthlyBilling, paymentTable: c.MonthlyPayment} {
		if len(ledger) == 0 {
			continue
		}
		rows := make([]ledgerRow, 0, len(ledger))
		for _, month := range ledger.Months() {
			rows = append(rows, ledgerRow{ContractID: c.ID, Month: month, Amount: ledger[month]})
		}
		if err := tx.Table(table).Create(&rows).Error; err != nil {
			return fmt.Errorf("write %s: %w", table, err)
		}
	}
	return nil
}

func loadLedgers(db *gorm.DB, table string, contractIDs []string) (map[string]model.MonthlyLedger, error) {
	var rows []ledgerRow
	if err := db.Table(table).Where("contract_id IN ?", contractIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	out := make(map[string]model.MonthlyLedger)
	for _, r := range rows {
		l, ok := out[r.ContractID]
		if !ok {
			l = model.MonthlyLedger{}
			out[r.ContractID] = l
		}
		l.Set(r.Month, r.Amount)
	}
	return out, nil
}

func ledgerOrEmpty(l model.MonthlyLedger) model.MonthlyLedger {
	if l == nil {
		return model.MonthlyLedger{}
	}
	return l
}

// Statements

func (s *Store) CreateStatement(ctx context.Context, st *model.Statement) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	now := time.Now()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now
	row, err := statementToRow(st)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *Store) SaveStatement(ctx context.Context, st *model.Statement) error {
	st.UpdatedAt = time.Now()
	row, err := statementToRow(st)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&statementRow{}).Where("id = ?", st.ID).
		Select("*").Omit("id", "created_at").Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetStatement(ctx context.Context, id string) (*model.Statement, error) {
	var row statementRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toModel(), nil
}

// GetStatementByTask finds the statement a MinerU task was created for.
func (s *Store) GetStatementByTask(ctx context.Context, taskID string) (*model.Statement, error) {
	var row statementRow
	if err := s.db.WithContext(ctx).First(&row, "mineru_task_id = ?", taskID).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toModel(), nil
}

// SetStatementTask records the parser task of a statement without touching
// its other columns, which a callback may already have advanced.
func (s *Store) SetStatementTask(ctx context.Context, id, taskID string) error {
	res := s.db.WithContext(ctx).Model(&statementRow{}).Where("id = ?", id).
		Updates(map[string]any{"mineru_task_id": taskID, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func statementToRow(st *model.Statement) (*statementRow, error) {
	var facts string
	if st.Facts != nil {
		b, err := json.Marshal(st.Facts)
		if err != nil {
			return nil, fmt.Errorf("encode facts: %w", err)
		}
		facts = string(b)
	}
	return &statementRow{
		ID:           st.ID,
		ProjectID:    st.ProjectID,
		Filename:     st.Filename,
		ObjectName:   st.ObjectName,
		Category:     string(st.Category),
		Pages:        st.Pages,
		Status:       st.Status,
		MineruTaskID: st.MineruTaskID,
		Facts:        facts,
		ContractID:   st.ContractID,
		Action:       st.Action,
		ErrorMsg:     st.ErrorMsg,
		UploadedBy:   st.UploadedBy,
		CreatedAt:    st.CreatedAt,
		UpdatedAt:    st.UpdatedAt,
	}, nil
}

func (r statementRow) toModel() *model.Statement {
	st := &model.Statement{
		ID:           r.ID,
		ProjectID:    r.ProjectID,
		Filename:     r.Filename,
		ObjectName:   r.ObjectName,
		Category:     model.Category(r.Category),
		Pages:        r.Pages,
		Status:       r.Status,
		MineruTaskID: r.MineruTaskID,
		ContractID:   r.ContractID,
		Action:       r.Action,
		ErrorMsg:     r.ErrorMsg,
		UploadedBy:   r.UploadedBy,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.Facts != "" {
		var f model.Facts
		if err := json.Unmarshal([]byte(r.Facts), &f); err == nil {
			st.Facts = &f
		}
	}
	return st
}

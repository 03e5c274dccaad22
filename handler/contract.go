package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fakeman1232/Contract-Ledger-app/billing"
	"github.com/fakeman1232/Contract-Ledger-app/middleware"
	"github.com/fakeman1232/Contract-Ledger-app/model"
	"github.com/fakeman1232/Contract-Ledger-app/pkg/logger"
	"github.com/fakeman1232/Contract-Ledger-app/service"
)

// ProjectLocker serializes writes to the contracts of one project.
type ProjectLocker interface {
	WithProjectLock(projectID string, fn func() error) error
}

type ContractHandler struct {
	store  *service.Store
	locker ProjectLocker
}

func NewContractHandler(store *service.Store, locker ProjectLocker) *ContractHandler {
	return &ContractHandler{store: store, locker: locker}
}

// ContractRequest is the editable part of a contract. Ledgers left out of an
// update are kept.
type ContractRequest struct {
	ContractName            string              `json:"contract_name" binding:"required"`
	Supplier                string              `json:"supplier"`
	ContractNumber          string              `json:"contract_number"`
	ContractAmount          string              `json:"contract_amount"`
	BidMethod               string              `json:"bid_method"`
	SignDate                string              `json:"sign_date"`
	TaxRate                 int                 `json:"tax_rate"`
	Category                model.Category      `json:"category"`
	TotalBillingTaxExcluded string              `json:"total_billing_tax_excluded"`
	TotalPaymentTaxIncluded string              `json:"total_payment_tax_included"`
	MonthlyBilling          model.MonthlyLedger `json:"monthly_billing"`
	MonthlyPayment          model.MonthlyLedger `json:"monthly_payment"`
}

type TimelineRequest struct {
	Start string `json:"start" binding:"required"`
	End   string `json:"end" binding:"required"`
}

type AmountRequest struct {
	Amount string `json:"amount"`
}

func (r *ContractRequest) apply(c *model.Contract) error {
	if r.Category != "" && !r.Category.Valid() {
		return fmt.Errorf("%w: %q", errInvalidCategory, r.Category)
	}
	c.ContractName = r.ContractName
	c.Supplier = r.Supplier
	c.ContractNumber = r.ContractNumber
	c.ContractAmount = r.ContractAmount
	c.BidMethod = r.BidMethod
	c.SignDate = r.SignDate
	c.TaxRate = r.TaxRate
	if r.Category != "" {
		c.Category = r.Category
	}
	c.TotalBillingTaxExcluded = r.TotalBillingTaxExcluded
	c.TotalPaymentTaxIncluded = r.TotalPaymentTaxIncluded
	if r.MonthlyBilling != nil {
		l, err := canonicalLedger(r.MonthlyBilling)
		if err != nil {
			return err
		}
		c.MonthlyBilling = l
	}
	if r.MonthlyPayment != nil {
		l, err := canonicalLedger(r.MonthlyPayment)
		if err != nil {
			return err
		}
		c.MonthlyPayment = l
	}
	return nil
}

// canonicalLedger rewrites month keys as YYYY-MM.
func canonicalLedger(l model.MonthlyLedger) (model.MonthlyLedger, error) {
	out := make(model.MonthlyLedger, len(l))
	for k, v := range l {
		m, err := billing.ParseMonth(k)
		if err != nil {
			return nil, err
		}
		out[m.String()] = v
	}
	return out, nil
}

// List returns the project's contracts, optionally for one category.
func (h *ContractHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := c.Param("id")
	category, ok := categoryParam(c, c.Query("category"))
	if !ok {
		return
	}
	if _, err := h.store.GetProject(ctx, projectID); err != nil {
		respondError(c, err, "Project not found")
		return
	}
	contracts, err := h.store.ListContracts(ctx, projectID, category)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": contracts})
}

// Create adds a contract entered by hand.
func (h *ContractHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := c.Param("id")

	var req ContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if _, err := h.store.GetProject(ctx, projectID); err != nil {
		respondError(c, err, "Project not found")
		return
	}

	contract := &model.Contract{
		ProjectID:      projectID,
		MonthlyBilling: model.MonthlyLedger{},
		MonthlyPayment: model.MonthlyLedger{},
	}
	if err := req.apply(contract); err != nil {
		respondError(c, err, "")
		return
	}
	contract = billing.Normalize(contract)
	contract.CreatedBy = middleware.GetUsername(c)

	err := h.locker.WithProjectLock(projectID, func() error {
		return h.store.CreateContract(ctx, contract)
	})
	if err != nil {
		respondError(c, err, "")
		return
	}
	logger.Info(ctx, "contract created", "project_id", projectID, "contract_id", contract.ID)
	c.JSON(http.StatusCreated, contract)
}

func (h *ContractHandler) Get(c *gin.Context) {
	contract, err := h.store.GetContract(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Contract not found")
		return
	}
	c.JSON(http.StatusOK, contract)
}

// Update replaces the editable fields and recomputes the derived ones.
func (h *ContractHandler) Update(c *gin.Context) {
	var req ContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	saved, ok := h.modify(c, func(contract *model.Contract) (*model.Contract, error) {
		if err := req.apply(contract); err != nil {
			return nil, err
		}
		return billing.Normalize(contract), nil
	})
	if ok {
		c.JSON(http.StatusOK, saved)
	}
}

func (h *ContractHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.store.DeleteContract(ctx, id); err != nil {
		respondError(c, err, "Contract not found")
		return
	}
	logger.Info(ctx, "contract deleted", "contract_id", id)
	c.JSON(http.StatusOK, gin.H{"message": "Contract deleted"})
}

// Timeline lays out the months from start to end over both ledgers, moving
// pending billing into place.
func (h *ContractHandler) Timeline(c *gin.Context) {
	var req TimelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var result *billing.TimelineResult
	saved, ok := h.modify(c, func(contract *model.Contract) (*model.Contract, error) {
		res, err := billing.GenerateTimeline(contract, req.Start, req.End)
		if err != nil {
			return nil, err
		}
		result = res
		return res.Contract, nil
	})
	if !ok {
		return
	}
	result.Contract = saved
	if len(result.Dropped) > 0 {
		logger.Warn(c.Request.Context(), "pending billing outside timeline dropped",
			"contract_id", result.Contract.ID, "months", len(result.Dropped))
	}
	c.JSON(http.StatusOK, result)
}

// SetBilling overwrites one month of the billing ledger. The cumulative
// totals are not recomputed; the response carries the reconciliation verdict.
func (h *ContractHandler) SetBilling(c *gin.Context) {
	month, amount, ok := monthAmount(c)
	if !ok {
		return
	}
	saved, ok := h.modify(c, func(contract *model.Contract) (*model.Contract, error) {
		out := contract.Clone()
		out.MonthlyBilling = billing.SetMonth(out.MonthlyBilling, month, amount)
		return out, nil
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"contract": saved,
		"verdict":  billing.Reconcile(saved.MonthlyBilling, saved.TotalBillingTaxExcluded),
	})
}

// SetPayment overwrites one month of the payment ledger and recomputes the
// payment totals and ratio.
func (h *ContractHandler) SetPayment(c *gin.Context) {
	month, amount, ok := monthAmount(c)
	if !ok {
		return
	}
	saved, ok := h.modify(c, func(contract *model.Contract) (*model.Contract, error) {
		return billing.SetPaymentMonth(contract, month, amount), nil
	})
	if ok {
		c.JSON(http.StatusOK, saved)
	}
}

// Reconciliation compares the billing ledger with the stored cumulative total.
func (h *ContractHandler) Reconciliation(c *gin.Context) {
	contract, err := h.store.GetContract(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Contract not found")
		return
	}
	c.JSON(http.StatusOK, billing.Reconcile(contract.MonthlyBilling, contract.TotalBillingTaxExcluded))
}

// Sync realigns the cumulative billing totals with the ledger.
func (h *ContractHandler) Sync(c *gin.Context) {
	saved, ok := h.modify(c, func(contract *model.Contract) (*model.Contract, error) {
		return billing.SyncBillingTotal(contract), nil
	})
	if ok {
		c.JSON(http.StatusOK, saved)
	}
}

// modify loads the contract named by the id parameter, applies fn under the
// project lock and saves the result. On failure the error response has
// already been written.
func (h *ContractHandler) modify(c *gin.Context, fn func(*model.Contract) (*model.Contract, error)) (*model.Contract, bool) {
	ctx := c.Request.Context()
	id := c.Param("id")

	current, err := h.store.GetContract(ctx, id)
	if err != nil {
		respondError(c, err, "Contract not found")
		return nil, false
	}

	var saved *model.Contract
	err = h.locker.WithProjectLock(current.ProjectID, func() error {
		// reload under the lock so a concurrent merge is not lost
		contract, err := h.store.GetContract(ctx, id)
		if err != nil {
			return err
		}
		out, err := fn(contract)
		if err != nil {
			return err
		}
		out.ID = contract.ID
		out.ProjectID = contract.ProjectID
		out.CreatedBy = contract.CreatedBy
		out.CreatedAt = contract.CreatedAt
		if err := billing.CheckDerived(out); err != nil {
			logger.Warn(ctx, "derived totals out of line", "contract_id", id, "error", err)
		}
		if err := h.store.SaveContract(ctx, out); err != nil {
			return err
		}
		saved = out
		return nil
	})
	if err != nil {
		respondError(c, err, "Contract not found")
		return nil, false
	}

	logger.Info(ctx, "contract updated", "contract_id", id, "route", c.FullPath())
	return saved, true
}

// monthAmount reads the :month parameter and the amount body. A blank amount
// clears the month.
func monthAmount(c *gin.Context) (string, string, bool) {
	m, err := billing.ParseMonth(c.Param("month"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", false
	}
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return "", "", false
	}
	if req.Amount == "" {
		return m.String(), "", true
	}
	d, ok := billing.ParseAmount(req.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid amount %q", req.Amount)})
		return "", "", false
	}
	return m.String(), billing.FormatAmount(d), true
}

package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fakeman1232/Contract-Ledger-app/billing"
	"github.com/fakeman1232/Contract-Ledger-app/model"
	"github.com/fakeman1232/Contract-Ledger-app/pkg/logger"
	"github.com/fakeman1232/Contract-Ledger-app/service"
)

var errInvalidCategory = errors.New("invalid category")

// respondError maps service and billing errors to a status code. notFound is
// the message used for service.ErrNotFound.
func respondError(c *gin.Context, err error, notFound string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
	case errors.Is(err, service.ErrInvalidDocument),
		errors.Is(err, service.ErrNoSupplier),
		errors.Is(err, errInvalidCategory),
		errors.Is(err, billing.ErrInvalidMonth),
		errors.Is(err, billing.ErrInvalidRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		logger.Error(c.Request.Context(), "request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// categoryParam reads an optional category. An empty value is allowed and
// means every category.
func categoryParam(c *gin.Context, raw string) (model.Category, bool) {
	category := model.Category(raw)
	if category != "" && !category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category"})
		return "", false
	}
	return category, true
}

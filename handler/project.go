package handler

import (
	"bytes"
	"context"
	"mime"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fakeman1232/Contract-Ledger-app/billing"
	"github.com/fakeman1232/Contract-Ledger-app/middleware"
	"github.com/fakeman1232/Contract-Ledger-app/model"
	"github.com/fakeman1232/Contract-Ledger-app/pkg/logger"
	"github.com/fakeman1232/Contract-Ledger-app/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ObjectRemover deletes stored statement files.
type ObjectRemover interface {
	DeletePrefix(ctx context.Context, prefix string) error
}

type ProjectHandler struct {
	store   *service.Store
	objects ObjectRemover
	now     func() time.Time
}

// NewProjectHandler builds the project endpoints. objects may be nil, in
// which case stored files are left behind on project deletion.
func NewProjectHandler(store *service.Store, objects ObjectRemover) *ProjectHandler {
	return &ProjectHandler{store: store, objects: objects, now: time.Now}
}

type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func (h *ProjectHandler) List(c *gin.Context) {
	projects, err := h.store.ListProjects(c.Request.Context())
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (h *ProjectHandler) Create(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	p := &model.Project{
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   middleware.GetUsername(c),
	}
	if err := h.store.CreateProject(c.Request.Context(), p); err != nil {
		respondError(c, err, "")
		return
	}
	logger.Info(c.Request.Context(), "project created", "project_id", p.ID)
	c.JSON(http.StatusCreated, p)
}

func (h *ProjectHandler) Get(c *gin.Context) {
	p, err := h.store.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Project not found")
		return
	}
	c.JSON(http.StatusOK, p)
}

// Delete removes the project with everything in it, including the uploaded
// statement files.
func (h *ProjectHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.store.DeleteProject(ctx, id); err != nil {
		respondError(c, err, "Project not found")
		return
	}
	if h.objects != nil {
		if err := h.objects.DeletePrefix(ctx, service.ProjectPrefix(id)); err != nil {
			logger.Warn(ctx, "failed to delete project files", "project_id", id, "error", err)
		}
	}
	logger.Info(ctx, "project deleted", "project_id", id)
	c.JSON(http.StatusOK, gin.H{"message": "Project deleted"})
}

// Summary returns contract statistics overall and per category.
func (h *ProjectHandler) Summary(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.store.GetProject(ctx, id); err != nil {
		respondError(c, err, "Project not found")
		return
	}
	contracts, err := h.store.ListContracts(ctx, id, "")
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, billing.Summarize(contracts))
}

// Export sends the contract ledger as an XLSX workbook.
func (h *ProjectHandler) Export(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	category, ok := categoryParam(c, c.Query("category"))
	if !ok {
		return
	}
	if _, err := h.store.GetProject(ctx, id); err != nil {
		respondError(c, err, "Project not found")
		return
	}
	contracts, err := h.store.ListContracts(ctx, id, category)
	if err != nil {
		respondError(c, err, "")
		return
	}

	var buf bytes.Buffer
	if err := service.WriteLedgerWorkbook(&buf, contracts); err != nil {
		respondError(c, err, "")
		return
	}
	filename := service.ExportFilename(category, h.now().Format("2006-01-02"))
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	logger.Info(ctx, "ledger exported", "contracts", len(contracts), "bytes", buf.Len())
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fakeman1232/Contract-Ledger-app/middleware"
	"github.com/fakeman1232/Contract-Ledger-app/model"
	"github.com/fakeman1232/Contract-Ledger-app/service"
)

// StatementProcessor ingests billing statements into a project.
type StatementProcessor interface {
	Submit(ctx context.Context, projectID, username string, category model.Category, up service.Upload) (*model.Statement, error)
	SubmitBatch(ctx context.Context, projectID, username string, category model.Category, uploads []service.Upload) ([]service.BatchItem, error)
	ProcessText(ctx context.Context, projectID, username string, category model.Category, filename, text string) (*model.Statement, *model.Contract, error)
}

type StatementHandler struct {
	store     *service.Store
	processor StatementProcessor
	maxSize   int64
}

// NewStatementHandler builds the statement endpoints. maxSize limits each
// uploaded file in bytes.
func NewStatementHandler(store *service.Store, processor StatementProcessor, maxSize int64) *StatementHandler {
	return &StatementHandler{store: store, processor: processor, maxSize: maxSize}
}

type TextStatementRequest struct {
	Text     string         `json:"text" binding:"required"`
	Category model.Category `json:"category"`
	Filename string         `json:"filename"`
}

var errFileTooLarge = errors.New("file too large")

// Upload accepts one PDF statement and queues it for parsing.
func (h *StatementHandler) Upload(c *gin.Context) {
	category, ok := categoryParam(c, c.PostForm("category"))
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	up, err := h.readUpload(header)
	if err != nil {
		h.rejectUpload(c, err)
		return
	}

	st, err := h.processor.Submit(c.Request.Context(), c.Param("id"), middleware.GetUsername(c), category, up)
	if err != nil {
		respondError(c, err, "Project not found")
		return
	}
	c.JSON(http.StatusAccepted, st)
}

// UploadBatch accepts several PDF statements. Files are merged in the order
// they were sent.
func (h *StatementHandler) UploadBatch(c *gin.Context) {
	category, ok := categoryParam(c, c.PostForm("category"))
	if !ok {
		return
	}
	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}

	uploads := make([]service.Upload, 0, len(form.File["files"]))
	for _, header := range form.File["files"] {
		up, err := h.readUpload(header)
		if err != nil {
			h.rejectUpload(c, fmt.Errorf("%s: %w", header.Filename, err))
			return
		}
		uploads = append(uploads, up)
	}

	items, err := h.processor.SubmitBatch(c.Request.Context(), c.Param("id"), middleware.GetUsername(c), category, uploads)
	if err != nil {
		respondError(c, err, "Project not found")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"items": items})
}

// SubmitText merges statement text that was extracted elsewhere.
func (h *StatementHandler) SubmitText(c *gin.Context) {
	var req TextStatementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	category, ok := categoryParam(c, string(req.Category))
	if !ok {
		return
	}

	st, contract, err := h.processor.ProcessText(c.Request.Context(), c.Param("id"), middleware.GetUsername(c), category, req.Filename, req.Text)
	if errors.Is(err, service.ErrNoSupplier) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "statement": st})
		return
	}
	if err != nil {
		respondError(c, err, "Project not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"statement": st, "contract": contract})
}

// Get returns the processing status and extracted facts of a statement.
func (h *StatementHandler) Get(c *gin.Context) {
	st, err := h.store.GetStatement(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Statement not found")
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *StatementHandler) readUpload(header *multipart.FileHeader) (service.Upload, error) {
	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		return service.Upload{}, fmt.Errorf("%w: only PDF files are allowed", service.ErrInvalidDocument)
	}
	if h.maxSize > 0 && header.Size > h.maxSize {
		return service.Upload{}, errFileTooLarge
	}

	file, err := header.Open()
	if err != nil {
		return service.Upload{}, err
	}
	defer file.Close()

	var r io.Reader = file
	if h.maxSize > 0 {
		r = io.LimitReader(file, h.maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return service.Upload{}, err
	}
	if h.maxSize > 0 && int64(len(data)) > h.maxSize {
		return service.Upload{}, errFileTooLarge
	}
	return service.Upload{Filename: filepath.Base(header.Filename), Data: data}, nil
}

func (h *StatementHandler) rejectUpload(c *gin.Context, err error) {
	if errors.Is(err, errFileTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}
	respondError(c, err, "")
}

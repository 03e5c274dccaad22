package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fakeman1232/Contract-Ledger-app/pkg/logger"
	"github.com/fakeman1232/Contract-Ledger-app/service"
)

// CallbackVerifier checks the signature of parser callbacks.
type CallbackVerifier interface {
	ChecksumRequired() bool
	VerifyCallback(checksum, content string) bool
}

// TaskCompleter finishes the statement belonging to a parse task.
type TaskCompleter interface {
	CompleteTask(ctx context.Context, taskID, dataID, state, zipURL, errMsg string) error
}

type CallbackHandler struct {
	verifier  CallbackVerifier
	completer TaskCompleter
}

func NewCallbackHandler(verifier CallbackVerifier, completer TaskCompleter) *CallbackHandler {
	return &CallbackHandler{verifier: verifier, completer: completer}
}

type CallbackRequest struct {
	Checksum string `json:"checksum"`
	Content  string `json:"content" binding:"required"`
}

// HandleCallback receives callback from MinerU
func (h *CallbackHandler) HandleCallback(c *gin.Context) {
	ctx := c.Request.Context()

	var req CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if h.verifier.ChecksumRequired() && !h.verifier.VerifyCallback(req.Checksum, req.Content) {
		logger.Warn(ctx, "callback checksum mismatch")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid checksum"})
		return
	}

	var content service.MineruTaskStatus
	if err := json.Unmarshal([]byte(req.Content), &content); err != nil || content.TaskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content format"})
		return
	}

	logger.Info(ctx, "parse callback received", "task_id", content.TaskID, "state", content.State)
	err := h.completer.CompleteTask(ctx, content.TaskID, content.DataID, content.State, content.FullZipURL, content.ErrorMsg)
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Statement not found"})
		return
	}
	if err != nil {
		respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Callback received"})
}

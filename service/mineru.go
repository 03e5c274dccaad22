package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fakeman1232/Contract-Ledger-app/config"
	"github.com/fakeman1232/Contract-Ledger-app/pkg/logger"
)

// Task states reported by MinerU.
const (
	TaskDone       = "done"
	TaskFailed     = "failed"
	TaskRunning    = "running"
	TaskPending    = "pending"
	TaskConverting = "converting"
)

// maxResultSize bounds the result archive download.
const maxResultSize = 256 << 20

// ErrTaskTimeout is returned when a parse task does not finish within the
// configured number of polls.
var ErrTaskTimeout = errors.New("mineru task polling timeout")

// MineruService turns a stored PDF into text through the MinerU API.
type MineruService struct {
	config     *config.MineruConfig
	httpClient *http.Client
}

// MineruTaskRequest represents the request to create an extraction task
type MineruTaskRequest struct {
	URL          string `json:"url"`
	ModelVersion string `json:"model_version"`
	Callback     string `json:"callback,omitempty"`
	Seed         string `json:"seed,omitempty"`
	DataID       string `json:"data_id,omitempty"`
}

type mineruEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"msg"`
	TraceID string          `json:"trace_id"`
	Data    json.RawMessage `json:"data"`
}

// MineruTaskStatus is the data part of a task query or callback.
type MineruTaskStatus struct {
	TaskID          string `json:"task_id"`
	DataID          string `json:"data_id"`
	State           string `json:"state"`
	FullZipURL      string `json:"full_zip_url,omitempty"`
	ErrorMsg        string `json:"err_msg,omitempty"`
	ExtractProgress struct {
		ExtractedPages int `json:"extracted_pages"`
		TotalPages     int `json:"total_pages"`
	} `json:"extract_progress"`
}

func NewMineruService(cfg *config.MineruConfig) *MineruService {
	return &MineruService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// CallbackEnabled reports whether MinerU pushes results to us instead of
// being polled.
func (s *MineruService) CallbackEnabled() bool {
	return s.config.CallbackURL != ""
}

// CreateTask submits documentURL for parsing and returns the task id.
func (s *MineruService) CreateTask(ctx context.Context, documentURL, dataID string) (string, error) {
	reqBody := MineruTaskRequest{
		URL:          documentURL,
		ModelVersion: s.config.ModelVersion,
		DataID:       dataID,
	}
	if s.CallbackEnabled() {
		reqBody.Callback = s.config.CallbackURL
		reqBody.Seed = s.config.Seed
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var data struct {
		TaskID string `json:"task_id"`
	}
	if err := s.call(ctx, http.MethodPost, "/extract/task", bytes.NewReader(payload), &data); err != nil {
		return "", err
	}
	if data.TaskID == "" {
		return "", errors.New("MinerU API returned no task id")
	}
	return data.TaskID, nil
}

// GetTaskStatus queries the status of a task
func (s *MineruService) GetTaskStatus(ctx context.Context, taskID string) (*MineruTaskStatus, error) {
	var status MineruTaskStatus
	if err := s.call(ctx, http.MethodGet, "/extract/task/"+taskID, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (s *MineruService) call(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)
	req.Header.Set("Accept", "*/*")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env mineruEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	if env.Code != 0 {
		return fmt.Errorf("MinerU API error %d: %s", env.Code, env.Message)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to parse response data: %w", err)
	}
	return nil
}

// WaitForResult polls the task until it is done and returns the result
// archive URL. Failed polls are retried within the attempt budget.
func (s *MineruService) WaitForResult(ctx context.Context, taskID string) (string, error) {
	interval := s.config.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= s.config.PollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		status, err := s.GetTaskStatus(ctx, taskID)
		if err != nil {
			logger.Warn(ctx, "mineru poll failed", "task_id", taskID, "attempt", attempt, "error", err)
			continue
		}

		switch status.State {
		case TaskDone:
			if status.FullZipURL == "" {
				return "", fmt.Errorf("task %s finished without a result archive", taskID)
			}
			return status.FullZipURL, nil
		case TaskFailed:
			return "", fmt.Errorf("task %s failed: %s", taskID, status.ErrorMsg)
		default:
			logger.Debug(ctx, "mineru task in progress",
				"task_id", taskID,
				"state", status.State,
				"extracted_pages", status.ExtractProgress.ExtractedPages,
				"total_pages", status.ExtractProgress.TotalPages,
			)
		}
	}
	return "", ErrTaskTimeout
}

// FetchResultText downloads the result archive and returns the document text.
func (s *MineruService) FetchResultText(ctx context.Context, zipURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, zipURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download result: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResultSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read result: %w", err)
	}
	if len(data) > maxResultSize {
		return "", fmt.Errorf("result archive exceeds %d bytes", maxResultSize)
	}
	logger.Debug(ctx, "mineru result downloaded", "bytes", len(data))
	return ResultText(data)
}

// ExtractText runs a document through MinerU end to end by polling.
func (s *MineruService) ExtractText(ctx context.Context, documentURL, dataID string) (string, error) {
	taskID, err := s.CreateTask(ctx, documentURL, dataID)
	if err != nil {
		return "", err
	}
	zipURL, err := s.WaitForResult(ctx, taskID)
	if err != nil {
		return "", err
	}
	return s.FetchResultText(ctx, zipURL)
}

// ChecksumRequired reports whether callbacks must carry a valid checksum.
func (s *MineruService) ChecksumRequired() bool {
	return s.config.Seed != ""
}

// VerifyCallback checks checksum = SHA256(uid + seed + content).
func (s *MineruService) VerifyCallback(checksum, content string) bool {
	sum := sha256.Sum256([]byte(s.config.UID + s.config.Seed + content))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(checksum), []byte(expected)) == 1
}

package service

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fakeman1232/Contract-Ledger-app/config"
)

func writeEnvelope(w http.ResponseWriter, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": msg, "data": data})
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Failed to create %s: %v", name, err)
		}
		f.Write([]byte(content))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}
	return buf.Bytes()
}

func testMineruConfig(url string) *config.MineruConfig {
	return &config.MineruConfig{
		APIURL:       url,
		APIToken:     "test-token",
		ModelVersion: "vlm",
		PollInterval: time.Millisecond,
		PollAttempts: 5,
	}
}

func TestMineruServiceCreateTask(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/extract/task" {
			t.Errorf("Expected /extract/task, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Error("Expected Authorization header")
		}
		var req MineruTaskRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.URL != "http://minio/a.pdf" || req.DataID != "stmt-1" || req.ModelVersion != "vlm" {
			t.Errorf("Unexpected request %+v", req)
		}
		if req.Callback != "" {
			t.Errorf("Expected no callback, got '%s'", req.Callback)
		}
		writeEnvelope(w, 0, "ok", map[string]string{"task_id": "task-123"})
	}))
	defer server.Close()

	svc := NewMineruService(testMineruConfig(server.URL))
	if svc.CallbackEnabled() {
		t.Error("Expected callback to be disabled")
	}
	taskID, err := svc.CreateTask(context.Background(), "http://minio/a.pdf", "stmt-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if taskID != "task-123" {
		t.Errorf("Expected task ID 'task-123', got '%s'", taskID)
	}
}

func TestMineruServiceCreateTaskWithCallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req MineruTaskRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Callback != "http://callback.test" {
			t.Errorf("Expected callback URL, got '%s'", req.Callback)
		}
		if req.Seed != "test-seed" {
			t.Errorf("Expected seed, got '%s'", req.Seed)
		}
		writeEnvelope(w, 0, "ok", map[string]string{"task_id": "task-456"})
	}))
	defer server.Close()

	cfg := testMineruConfig(server.URL)
	cfg.CallbackURL = "http://callback.test"
	cfg.Seed = "test-seed"
	svc := NewMineruService(cfg)

	if !svc.CallbackEnabled() {
		t.Error("Expected callback to be enabled")
	}
	if _, err := svc.CreateTask(context.Background(), "http://minio/a.pdf", "stmt-1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestMineruServiceErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"api error", func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, -60012, "task not found", nil)
		}},
		{"invalid json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>bad gateway</html>"))
		}},
		{"missing task id", func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, 0, "ok", map[string]string{})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			if _, err := NewMineruService(testMineruConfig(server.URL)).CreateTask(context.Background(), "u", "d"); err == nil {
				t.Error("Expected error")
			}
		})
	}

	unreachable := NewMineruService(testMineruConfig("http://127.0.0.1:1"))
	if _, err := unreachable.GetTaskStatus(context.Background(), "task-1"); err == nil {
		t.Error("Expected error for network failure")
	}
}

func TestMineruServiceWaitForResult(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract/task/task-1" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		switch polls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
		case 2:
			writeEnvelope(w, 0, "ok", map[string]any{"task_id": "task-1", "state": TaskRunning,
				"extract_progress": map[string]int{"extracted_pages": 1, "total_pages": 2}})
		default:
			writeEnvelope(w, 0, "ok", map[string]string{"task_id": "task-1", "state": TaskDone, "full_zip_url": "http://cdn/result.zip"})
		}
	}))
	defer server.Close()

	zipURL, err := NewMineruService(testMineruConfig(server.URL)).WaitForResult(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if zipURL != "http://cdn/result.zip" {
		t.Errorf("Expected result URL, got '%s'", zipURL)
	}
	if polls.Load() != 3 {
		t.Errorf("Expected 3 polls, got %d", polls.Load())
	}
}

func TestMineruServiceWaitForResultFailures(t *testing.T) {
	failed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "ok", map[string]string{"state": TaskFailed, "err_msg": "file too large"})
	}))
	defer failed.Close()
	_, err := NewMineruService(testMineruConfig(failed.URL)).WaitForResult(context.Background(), "t")
	if err == nil || !strings.Contains(err.Error(), "file too large") {
		t.Errorf("Expected task failure, got %v", err)
	}

	running := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "ok", map[string]string{"state": TaskRunning})
	}))
	defer running.Close()
	_, err = NewMineruService(testMineruConfig(running.URL)).WaitForResult(context.Background(), "t")
	if !errors.Is(err, ErrTaskTimeout) {
		t.Errorf("Expected ErrTaskTimeout, got %v", err)
	}

	cfg := testMineruConfig(running.URL)
	cfg.PollInterval = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewMineruService(cfg).WaitForResult(ctx, "t")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestMineruServiceExtractText(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"stmt-1/stmt-1_content_list.json": `[{"type":"text","text":"分包方：ACME 计价编号：PS-1","page_idx":0}]`,
	})

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/extract/task", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "ok", map[string]string{"task_id": "task-9"})
	})
	mux.HandleFunc("/extract/task/task-9", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "ok", map[string]string{"state": TaskDone, "full_zip_url": server.URL + "/result.zip"})
	})
	mux.HandleFunc("/result.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	})

	text, err := NewMineruService(testMineruConfig(server.URL)).ExtractText(context.Background(), "http://minio/a.pdf", "stmt-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if text != "分包方：ACME 计价编号：PS-1" {
		t.Errorf("Unexpected text %q", text)
	}
}

func TestMineruServiceFetchResultTextHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	if _, err := NewMineruService(testMineruConfig(server.URL)).FetchResultText(context.Background(), server.URL+"/x.zip"); err == nil {
		t.Error("Expected error for HTTP 403")
	}
}

func TestMineruServiceVerifyCallback(t *testing.T) {
	cfg := &config.MineruConfig{Seed: "test-seed", UID: "uid-1"}
	svc := NewMineruService(cfg)

	content := `{"task_id":"t","state":"done"}`
	sum := sha256.Sum256([]byte("uid-1" + "test-seed" + content))
	checksum := hex.EncodeToString(sum[:])

	if !svc.VerifyCallback(checksum, content) {
		t.Error("Expected valid checksum to verify")
	}
	if svc.VerifyCallback(checksum, content+" ") {
		t.Error("Expected tampered content to fail")
	}
	if svc.VerifyCallback("invalid-checksum", content) {
		t.Error("Expected false for invalid checksum")
	}
}

func TestMineruServiceChecksumRequired(t *testing.T) {
	if NewMineruService(&config.MineruConfig{}).ChecksumRequired() {
		t.Error("Expected no checksum without a seed")
	}
	if !NewMineruService(&config.MineruConfig{Seed: "s"}).ChecksumRequired() {
		t.Error("Expected checksum with a seed")
	}
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fakeman1232/Contract-Ledger-app/config"
	"github.com/fakeman1232/Contract-Ledger-app/model"
	"github.com/fakeman1232/Contract-Ledger-app/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memObjects keeps uploads in memory and records removed prefixes.
type memObjects struct {
	mu      sync.Mutex
	data    map[string][]byte
	removed []string
}

func newMemObjects() *memObjects {
	return &memObjects{data: make(map[string][]byte)}
}

func (m *memObjects) UploadFile(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[objectName] = b
	return nil
}

func (m *memObjects) GetPresignedURL(ctx context.Context, objectName string) (string, error) {
	return "mem://" + objectName, nil
}

func (m *memObjects) DeleteFile(ctx context.Context, objectName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, objectName)
	return nil
}

func (m *memObjects) DeletePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, prefix)
	for name := range m.data {
		if strings.HasPrefix(name, prefix) {
			delete(m.data, name)
		}
	}
	return nil
}

// stubParser reads the statement text back from the stored "PDF".
type stubParser struct {
	objects  *memObjects
	callback bool
}

func (p *stubParser) CreateTask(ctx context.Context, documentURL, dataID string) (string, error) {
	return "task-" + dataID, nil
}

func (p *stubParser) WaitForResult(ctx context.Context, taskID string) (string, error) {
	return "", errors.New("polling disabled in handler tests")
}

func (p *stubParser) FetchResultText(ctx context.Context, zipURL string) (string, error) {
	p.objects.mu.Lock()
	defer p.objects.mu.Unlock()
	data, ok := p.objects.data[strings.TrimPrefix(zipURL, "mem://")]
	if !ok {
		return "", errors.New("object not found")
	}
	return strings.TrimPrefix(string(data), "%PDF-"), nil
}

func (p *stubParser) CallbackEnabled() bool { return p.callback }

type stubInspector struct{}

func (stubInspector) Inspect(data []byte) (int, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return 0, service.ErrInvalidDocument
	}
	return 1, nil
}

type testEnv struct {
	store    *service.Store
	objects  *memObjects
	ingestor *service.Ingestor
	project  *model.Project
	router   *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := service.OpenStore(&config.StoreConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	objects := newMemObjects()
	parser := &stubParser{objects: objects, callback: true}
	ingestor := service.NewIngestor(store, objects, parser, stubInspector{}, &config.UploadConfig{BatchConcurrency: 2})
	t.Cleanup(ingestor.Close)

	project := &model.Project{Name: "一号楼", CreatedBy: "tester"}
	if err := store.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}

	env := &testEnv{store: store, objects: objects, ingestor: ingestor, project: project}
	env.router = env.newRouter(1 << 20)
	return env
}

// newRouter wires every ledger route behind a fake authenticated user.
func (e *testEnv) newRouter(maxUpload int64) *gin.Engine {
	projects := NewProjectHandler(e.store, e.objects)
	projects.now = func() time.Time { return time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC) }
	contracts := NewContractHandler(e.store, e.ingestor)
	statements := NewStatementHandler(e.store, e.ingestor, maxUpload)

	router := gin.New()
	api := router.Group("/api")
	api.Use(func(c *gin.Context) {
		c.Set("username", "tester")
		c.Set("role", "admin")
		c.Next()
	})
	api.GET("/projects", projects.List)
	api.POST("/projects", projects.Create)
	api.GET("/projects/:id", projects.Get)
	api.DELETE("/projects/:id", projects.Delete)
	api.GET("/projects/:id/summary", projects.Summary)
	api.GET("/projects/:id/export", projects.Export)
	api.GET("/projects/:id/contracts", contracts.List)
	api.POST("/projects/:id/contracts", contracts.Create)
	api.POST("/projects/:id/statements", statements.Upload)
	api.POST("/projects/:id/statements/batch", statements.UploadBatch)
	api.POST("/projects/:id/statements/text", statements.SubmitText)
	api.GET("/statements/:id", statements.Get)
	api.GET("/contracts/:id", contracts.Get)
	api.PUT("/contracts/:id", contracts.Update)
	api.DELETE("/contracts/:id", contracts.Delete)
	api.POST("/contracts/:id/timeline", contracts.Timeline)
	api.PUT("/contracts/:id/billing/:month", contracts.SetBilling)
	api.PUT("/contracts/:id/payment/:month", contracts.SetPayment)
	api.GET("/contracts/:id/reconciliation", contracts.Reconciliation)
	api.POST("/contracts/:id/sync", contracts.Sync)
	return router
}

// createContract stores a contract in the test project directly.
func (e *testEnv) createContract(t *testing.T, c *model.Contract) *model.Contract {
	t.Helper()
	c.ProjectID = e.project.ID
	if c.Category == "" {
		c.Category = model.CategoryLabor
	}
	if c.TaxRate == 0 {
		c.TaxRate = 9
	}
	if c.MonthlyBilling == nil {
		c.MonthlyBilling = model.MonthlyLedger{}
	}
	if c.MonthlyPayment == nil {
		c.MonthlyPayment = model.MonthlyLedger{}
	}
	if err := e.store.CreateContract(context.Background(), c); err != nil {
		t.Fatalf("Failed to create contract: %v", err)
	}
	return c
}

func performJSON(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
	}
}

func statementText(supplier, period, amount, cumulative string) string {
	return "分包方：" + supplier + " 计价编号：PS-1\n" + period + "\n本期计价金额 " + amount + " 元\n开累计价金额 " + cumulative + " 元"
}

func waitForStatement(t *testing.T, store *service.Store, id string) *model.Statement {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := store.GetStatement(context.Background(), id)
		if err == nil && (st.Status == model.StatusCompleted || st.Status == model.StatusFailed) {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Statement %s did not finish", id)
	return nil
}

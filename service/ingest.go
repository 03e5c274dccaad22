package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fakeman1232/Contract-Ledger-app/billing"
	"github.com/fakeman1232/Contract-Ledger-app/config"
	"github.com/fakeman1232/Contract-Ledger-app/model"
	"github.com/fakeman1232/Contract-Ledger-app/pkg/logger"
)

// ErrNoSupplier marks a statement whose text names no supplier and which
// matches no contract, so the contract has to be entered by hand.
var ErrNoSupplier = errors.New("no supplier found in statement")

// ObjectStorage keeps the uploaded PDFs.
type ObjectStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	GetPresignedURL(ctx context.Context, objectName string) (string, error)
	DeleteFile(ctx context.Context, objectName string) error
}

// DocumentParser converts a stored document into text.
type DocumentParser interface {
	CreateTask(ctx context.Context, documentURL, dataID string) (string, error)
	WaitForResult(ctx context.Context, taskID string) (string, error)
	FetchResultText(ctx context.Context, zipURL string) (string, error)
	CallbackEnabled() bool
}

// DocumentInspector validates an upload and counts its pages.
type DocumentInspector interface {
	Inspect(data []byte) (int, error)
}

// Upload is one statement file received from a client.
type Upload struct {
	Filename string
	Data     []byte
}

// BatchItem reports the outcome of one file in a batch upload.
type BatchItem struct {
	Filename  string           `json:"filename"`
	Statement *model.Statement `json:"statement,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Ingestor turns uploaded statements into contract updates: it stores the
// PDF, has it parsed, extracts the billing facts and merges them into the
// project's contracts.
type Ingestor struct {
	store       *Store
	objects     ObjectStorage
	parser      DocumentParser
	inspector   DocumentInspector
	concurrency int

	locks projectLocks
	now   func() time.Time

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestor(store *Store, objects ObjectStorage, parser DocumentParser, inspector DocumentInspector, cfg *config.UploadConfig) *Ingestor {
	base, cancel := context.WithCancel(context.Background())
	concurrency := cfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Ingestor{
		store:       store,
		objects:     objects,
		parser:      parser,
		inspector:   inspector,
		concurrency: concurrency,
		locks:       projectLocks{m: make(map[string]*sync.Mutex)},
		now:         time.Now,
		base:        base,
		cancel:      cancel,
	}
}

// Close stops background processing and waits for it to return.
func (in *Ingestor) Close() {
	in.cancel()
	in.wg.Wait()
}

// Submit validates and stores one statement, then parses and merges it in
// the background. The returned statement is pending.
func (in *Ingestor) Submit(ctx context.Context, projectID, username string, category model.Category, up Upload) (*model.Statement, error) {
	if _, err := in.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	st, err := in.prepare(ctx, projectID, username, category, up)
	if err != nil {
		return nil, err
	}
	if err := in.store.CreateStatement(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to record statement: %w", err)
	}
	logger.Info(ctx, "statement uploaded", "statement_id", st.ID, "pages", st.Pages)

	work := *st
	in.background(ctx, func(bg context.Context) {
		in.process(bg, &work)
	})
	return st, nil
}

// SubmitBatch validates and stores the files concurrently, then processes
// them one after another in upload order so that each merge sees the
// contracts produced by the previous one. Files that fail validation are
// reported and skipped.
func (in *Ingestor) SubmitBatch(ctx context.Context, projectID, username string, category model.Category, uploads []Upload) ([]BatchItem, error) {
	if _, err := in.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	items := make([]BatchItem, len(uploads))
	prepared := make([]*model.Statement, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)
	for i, up := range uploads {
		items[i].Filename = up.Filename
		g.Go(func() error {
			st, err := in.prepare(gctx, projectID, username, category, up)
			if err != nil {
				items[i].Error = err.Error()
				return nil
			}
			prepared[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var queue []*model.Statement
	for i, st := range prepared {
		if st == nil {
			continue
		}
		if err := in.store.CreateStatement(ctx, st); err != nil {
			items[i].Error = fmt.Sprintf("failed to record statement: %v", err)
			continue
		}
		items[i].Statement = st
		work := *st
		queue = append(queue, &work)
	}
	logger.Info(ctx, "statement batch uploaded", "files", len(uploads), "accepted", len(queue))

	in.background(ctx, func(bg context.Context) {
		for _, st := range queue {
			if bg.Err() != nil {
				return
			}
			in.process(bg, st)
		}
	})
	return items, nil
}

// prepare validates the upload and stores the PDF.
func (in *Ingestor) prepare(ctx context.Context, projectID, username string, category model.Category, up Upload) (*model.Statement, error) {
	pages, err := in.inspector.Inspect(up.Data)
	if err != nil {
		return nil, err
	}

	st := &model.Statement{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Filename:   up.Filename,
		Category:   category,
		Pages:      pages,
		Status:     model.StatusPending,
		UploadedBy: username,
	}
	st.ObjectName = StatementObjectName(projectID, st.ID, up.Filename)
	if err := in.objects.UploadFile(ctx, st.ObjectName, bytes.NewReader(up.Data), int64(len(up.Data)), "application/pdf"); err != nil {
		return nil, err
	}
	return st, nil
}

func (in *Ingestor) background(ctx context.Context, fn func(context.Context)) {
	bg := logger.Detach(in.base, ctx)
	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		fn(bg)
	}()
}

// process sends the statement to the parser. Without a callback it waits
// for the result and merges it; otherwise CompleteTask finishes the job.
func (in *Ingestor) process(ctx context.Context, st *model.Statement) {
	ctx = logger.WithProjectID(ctx, st.ProjectID)

	st.Status = model.StatusProcessing
	if err := in.store.SaveStatement(ctx, st); err != nil {
		logger.Error(ctx, "failed to update statement", "statement_id", st.ID, "error", err)
		return
	}

	documentURL, err := in.objects.GetPresignedURL(ctx, st.ObjectName)
	if err != nil {
		in.fail(ctx, st, err)
		return
	}
	taskID, err := in.parser.CreateTask(ctx, documentURL, st.ID)
	if err != nil {
		in.fail(ctx, st, err)
		return
	}
	st.MineruTaskID = taskID
	if err := in.store.SetStatementTask(ctx, st.ID, taskID); err != nil {
		logger.Error(ctx, "failed to update statement", "statement_id", st.ID, "error", err)
		return
	}
	logger.Info(ctx, "parse task created", "statement_id", st.ID, "task_id", taskID)

	if in.parser.CallbackEnabled() {
		return
	}
	zipURL, err := in.parser.WaitForResult(ctx, taskID)
	if err != nil {
		in.fail(ctx, st, err)
		return
	}
	in.finish(ctx, st, zipURL)
}

// CompleteTask is called when the parser reports a final task state. Repeated
// reports for a finished statement are ignored. A report can arrive before
// the task id has been recorded, so dataID, the statement id sent with the
// task, is used when no statement carries taskID yet.
func (in *Ingestor) CompleteTask(ctx context.Context, taskID, dataID, state, zipURL, errMsg string) error {
	st, err := in.statementForTask(ctx, taskID, dataID)
	if err != nil {
		return err
	}
	if st.Status == model.StatusCompleted || st.Status == model.StatusFailed {
		return nil
	}

	switch state {
	case TaskDone:
		in.background(ctx, func(bg context.Context) {
			in.finish(logger.WithProjectID(bg, st.ProjectID), st, zipURL)
		})
	case TaskFailed:
		in.fail(ctx, st, fmt.Errorf("task %s failed: %s", taskID, errMsg))
	}
	return nil
}

func (in *Ingestor) statementForTask(ctx context.Context, taskID, dataID string) (*model.Statement, error) {
	st, err := in.store.GetStatementByTask(ctx, taskID)
	if !errors.Is(err, ErrNotFound) || dataID == "" {
		return st, err
	}
	st, err = in.store.GetStatement(ctx, dataID)
	if err != nil {
		return nil, err
	}
	if st.MineruTaskID != "" && st.MineruTaskID != taskID {
		return nil, fmt.Errorf("%w: statement %s belongs to task %s", ErrNotFound, dataID, st.MineruTaskID)
	}
	if st.MineruTaskID == "" {
		if err := in.store.SetStatementTask(ctx, st.ID, taskID); err != nil {
			return nil, err
		}
		st.MineruTaskID = taskID
		logger.Info(ctx, "parse task matched by data id", "statement_id", st.ID, "task_id", taskID)
	}
	return st, nil
}

func (in *Ingestor) finish(ctx context.Context, st *model.Statement, zipURL string) {
	text, err := in.parser.FetchResultText(ctx, zipURL)
	if err != nil {
		in.fail(ctx, st, err)
		return
	}
	if _, err := in.apply(ctx, st, text); err != nil {
		in.fail(ctx, st, err)
	}
}

// ProcessText extracts and merges statement text that is already available,
// synchronously. The statement record is returned together with the
// contract it produced.
func (in *Ingestor) ProcessText(ctx context.Context, projectID, username string, category model.Category, filename, text string) (*model.Statement, *model.Contract, error) {
	if _, err := in.store.GetProject(ctx, projectID); err != nil {
		return nil, nil, err
	}
	st := &model.Statement{
		ProjectID:  projectID,
		Filename:   filename,
		Category:   category,
		Status:     model.StatusProcessing,
		UploadedBy: username,
	}
	if err := in.store.CreateStatement(ctx, st); err != nil {
		return nil, nil, fmt.Errorf("failed to record statement: %w", err)
	}

	ctx = logger.WithProjectID(ctx, projectID)
	c, err := in.apply(ctx, st, text)
	if err != nil {
		in.fail(ctx, st, err)
		return st, nil, err
	}
	return st, c, nil
}

// apply extracts facts from text, merges them under the project lock and
// records the outcome on the statement.
func (in *Ingestor) apply(ctx context.Context, st *model.Statement, text string) (*model.Contract, error) {
	facts := billing.Extract(text)
	st.Facts = &facts

	unlock := in.locks.lock(st.ProjectID)
	defer unlock()

	existing, err := in.store.ListContracts(ctx, st.ProjectID, "")
	if err != nil {
		return nil, err
	}
	inst := billing.Merge(st.ProjectID, existing, facts, billing.MergeOptions{
		Category:     st.Category,
		DocumentName: st.Filename,
		CurrentMonth: billing.MonthOf(in.now()),
	})

	c := inst.Contract
	switch inst.Action {
	case billing.ActionUpdate:
		if err := in.store.SaveContract(ctx, c); err != nil {
			return nil, fmt.Errorf("failed to update contract: %w", err)
		}
	case billing.ActionCreate:
		if c.Supplier == "" {
			return nil, ErrNoSupplier
		}
		c.CreatedBy = st.UploadedBy
		if err := in.store.CreateContract(ctx, c); err != nil {
			return nil, fmt.Errorf("failed to create contract: %w", err)
		}
	}

	st.ContractID = c.ID
	st.Action = string(inst.Action)
	st.Status = model.StatusCompleted
	st.ErrorMsg = ""
	if err := in.store.SaveStatement(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to update statement: %w", err)
	}
	logger.Info(ctx, "statement merged",
		"statement_id", st.ID,
		"contract_id", c.ID,
		"action", inst.Action,
		"supplier", facts.Supplier,
		"period", facts.Period,
	)
	return c, nil
}

func (in *Ingestor) fail(ctx context.Context, st *model.Statement, cause error) {
	logger.Warn(ctx, "statement processing failed", "statement_id", st.ID, "error", cause)
	st.Status = model.StatusFailed
	st.ErrorMsg = cause.Error()
	// the request or server may already be gone
	if err := in.store.SaveStatement(context.WithoutCancel(ctx), st); err != nil {
		logger.Error(ctx, "failed to update statement", "statement_id", st.ID, "error", err)
	}
}

// WithProjectLock runs fn while holding the merge lock of projectID, so that
// manual contract edits and statement merges do not overwrite each other.
func (in *Ingestor) WithProjectLock(projectID string, fn func() error) error {
	unlock := in.locks.lock(projectID)
	defer unlock()
	return fn()
}

// projectLocks serializes merges per project.
type projectLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *projectLocks) lock(projectID string) func() {
	l.mu.Lock()
	m, ok := l.m[projectID]
	if !ok {
		m = &sync.Mutex{}
		l.m[projectID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

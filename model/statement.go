package model

import (
	"time"
)

// Statement is an uploaded billing statement and the outcome of processing it.
type Statement struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Filename     string    `json:"filename"`
	ObjectName   string    `json:"object_name,omitempty"`
	Category     Category  `json:"category"`
	Pages        int       `json:"pages"`
	Status       string    `json:"status"` // pending, processing, completed, failed
	MineruTaskID string    `json:"mineru_task_id,omitempty"`
	Facts        *Facts    `json:"facts,omitempty"`
	ContractID   string    `json:"contract_id,omitempty"`
	Action       string    `json:"action,omitempty"` // created, updated
	ErrorMsg     string    `json:"error_msg,omitempty"`
	UploadedBy   string    `json:"uploaded_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Facts is the persisted copy of what was extracted from a statement.
type Facts struct {
	Supplier         string `json:"supplier,omitempty"`
	ContractNumber   string `json:"contract_number,omitempty"`
	Period           string `json:"period,omitempty"`
	PeriodAmount     string `json:"period_amount,omitempty"`
	YearToDateAmount string `json:"year_to_date_amount,omitempty"`
	CumulativeAmount string `json:"cumulative_amount,omitempty"`
}

// Statement status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

package qc

import (
	"time"

	"github.com/google/uuid"
)

// Result is one QC test outcome recorded against a batch.
type Result struct {
	ID         uuid.UUID `json:"id"`
	BatchID    uuid.UUID `json:"batchId"`
	BatchCode  string    `json:"batchCode,omitempty"`
	TestType   string    `json:"testType"`
	Result     string    `json:"result"`
	Passed     bool      `json:"passed"`
	Notes      string    `json:"notes,omitempty"`
	TestedBy   int64     `json:"testedBy"`
	TesterName string    `json:"testerName,omitempty"`
	TestedAt   time.Time `json:"testedAt"`
}

// CreateInput carries a new QC result.
type CreateInput struct {
	BatchID  uuid.UUID `json:"batchId" validate:"required"`
	TestType string    `json:"testType" validate:"required,max=128"`
	Result   string    `json:"result" validate:"required,max=256"`
	Passed   *bool     `json:"passed" validate:"required"`
	Notes    string    `json:"notes" validate:"max=2000"`
}

// FailureAlert describes the alert raised when a result fails.
type FailureAlert struct {
	BatchID     uuid.UUID `json:"batchId"`
	BatchCode   string    `json:"batchCode"`
	ResultID    uuid.UUID `json:"resultId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
}

package batches

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a batch.
type Status string

// Batch statuses.
const (
	StatusActive     Status = "active"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusOnHold     Status = "on_hold"
	StatusRejected   Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInProgress, StatusCompleted, StatusOnHold, StatusRejected:
		return true
	}
	return false
}

// Open reports whether the batch is still on the line.
func (s Status) Open() bool {
	return s == StatusActive || s == StatusInProgress || s == StatusOnHold
}

// StageCount is the number of latex process stages.
const StageCount = 5

var stageNames = [StageCount]string{
	"Field Latex Collection",
	"Dilution and Stabilization",
	"Centrifugation",
	"Final Stabilization",
	"Storage & Dispatch",
}

// StageName returns the display name for a stage number.
func StageName(stage int) string {
	if stage < 1 || stage > StageCount {
		return fmt.Sprintf("Stage %d", stage)
	}
	return stageNames[stage-1]
}

// Glove product types.
const (
	ProductSurgicalGlove    = "Surgical Glove"
	ProductExaminationGlove = "Examination Glove"
)

// GloveProductTypes lists the product types treated as glove batches.
func GloveProductTypes() []string {
	return []string{ProductSurgicalGlove, ProductExaminationGlove}
}

// Batch is one production run.
type Batch struct {
	ID                 uuid.UUID `json:"id"`
	BatchCode          string    `json:"batchCode"`
	ProductType        string    `json:"productType"`
	Shift              string    `json:"shift"`
	OperatorID         int64     `json:"operatorId"`
	OperatorName       string    `json:"operatorName,omitempty"`
	Status             Status    `json:"status"`
	CurrentStage       int       `json:"currentStage"`
	StagesCompleted    int       `json:"stagesCompleted"`
	ProgressPercentage int       `json:"progressPercentage"`
	Notes              string    `json:"notes,omitempty"`
	StartDate          time.Time `json:"startDate"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Stage is the recorded payload of one latex process stage.
type Stage struct {
	ID          uuid.UUID       `json:"id"`
	BatchID     uuid.UUID       `json:"batchId"`
	BatchCode   string          `json:"batchCode,omitempty"`
	StageNumber int             `json:"stageNumber"`
	StageName   string          `json:"stageName"`
	Data        json.RawMessage `json:"data"`
	CompletedAt time.Time       `json:"completedAt"`
}

// GloveBatch projects a glove batch together with its stage-1 payload.
type GloveBatch struct {
	ID             uuid.UUID       `json:"id"`
	GloveBatchID   string          `json:"gloveBatchId"`
	LatexBatchID   string          `json:"latexBatchId"`
	ProductType    string          `json:"productType"`
	Status         Status          `json:"status"`
	ManufacturedAt time.Time       `json:"manufacturingDate"`
	ContinuousData json.RawMessage `json:"continuousData"`
	ProcessData    json.RawMessage `json:"processData"`
	QCData         json.RawMessage `json:"qcData"`
}

// GloveData is the stage-1 payload stored for glove batches.
type GloveData struct {
	LatexBatchID   string          `json:"latexBatchId"`
	ContinuousData json.RawMessage `json:"continuousData,omitempty"`
	ProcessData    json.RawMessage `json:"processData,omitempty"`
	QCData         json.RawMessage `json:"qcData,omitempty"`
}

// Progress is the batch position after a stage has been recorded.
type Progress struct {
	CurrentStage    int
	StagesCompleted int
	Percentage      int
	Status          Status
}

// ProgressAfter computes the batch progress once stage has been completed.
// The caller validates 1 <= stage <= StageCount.
func ProgressAfter(stage int, current Status) Progress {
	next := stage + 1
	if next > StageCount {
		next = StageCount
	}
	status := current
	if stage == StageCount {
		status = StatusCompleted
	} else if current == StatusActive {
		status = StatusInProgress
	}
	return Progress{
		CurrentStage:    next,
		StagesCompleted: stage,
		Percentage:      int(math.Round(float64(stage) / StageCount * 100)),
		Status:          status,
	}
}

// ListFilters narrows batch listings.
type ListFilters struct {
	Status      Status
	ProductType string
	Limit       int
	Offset      int
}

// CreateBatchInput carries the fields of a new batch.
type CreateBatchInput struct {
	BatchCode   string `json:"batchCode" validate:"required,max=64"`
	ProductType string `json:"productType" validate:"required,max=128"`
	Shift       string `json:"shift" validate:"required,max=32"`
	Notes       string `json:"notes" validate:"max=2000"`
}

// UpdateBatchInput carries a partial batch update.
type UpdateBatchInput struct {
	Status *Status `json:"status"`
	Notes  *string `json:"notes" validate:"omitempty,max=2000"`
	Shift  *string `json:"shift" validate:"omitempty,max=32"`
}

// RecordStageInput records one latex process stage.
type RecordStageInput struct {
	BatchID     uuid.UUID       `json:"batchId" validate:"required"`
	StageNumber int             `json:"stageNumber" validate:"required,min=1,max=5"`
	Data        json.RawMessage `json:"data"`
}

// FieldLatexInput records the field collection stage of a batch.
type FieldLatexInput struct {
	BatchID uuid.UUID       `json:"batchId" validate:"required"`
	Data    json.RawMessage `json:"data" validate:"required"`
}

// CreateGloveInput creates a glove batch and its stage-1 payload.
type CreateGloveInput struct {
	GloveBatchID   string          `json:"gloveBatchId" validate:"required,max=64"`
	LatexBatchID   string          `json:"latexBatchId" validate:"max=64"`
	ProductType    string          `json:"productType" validate:"required,oneof='Surgical Glove' 'Examination Glove'"`
	ContinuousData json.RawMessage `json:"continuousData"`
	ProcessData    json.RawMessage `json:"processData"`
	QCData         json.RawMessage `json:"qcData"`
}

package alerts

import (
	"time"

	"github.com/google/uuid"
)

// Severity ranks how urgently an alert needs attention.
type Severity string

// Severities.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Status is the alert lifecycle state.
type Status string

// Alert statuses.
const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusAcknowledged, StatusResolved:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusActive:       {StatusAcknowledged, StatusResolved},
	StatusAcknowledged: {StatusResolved},
}

// CanTransition reports whether an alert may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Alert is a production or quality alert.
type Alert struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Severity     Severity   `json:"severity"`
	Source       string     `json:"source"`
	BatchID      *uuid.UUID `json:"batchId,omitempty"`
	Status       Status     `json:"status"`
	AssignedTo   *int64     `json:"assignedTo,omitempty"`
	AssigneeName string     `json:"assigneeName,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Sources of alerts.
const (
	SourceManual = "manual"
	SourceQC     = "qc"
)

// CreateInput carries a manually raised alert.
type CreateInput struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Severity    Severity   `json:"severity" validate:"required"`
	BatchID     *uuid.UUID `json:"batchId"`
	AssignedTo  *int64     `json:"assignedTo" validate:"omitempty,gt=0"`
}

// PatchInput changes the status or the assignee of an alert.
type PatchInput struct {
	Status     *Status `json:"status"`
	AssignedTo *int64  `json:"assignedTo" validate:"omitempty,gt=0"`
}

// RaiseInput is used by background jobs to open an alert.
type RaiseInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Severity    Severity   `json:"severity"`
	Source      string     `json:"source"`
	BatchID     *uuid.UUID `json:"batchId,omitempty"`
}

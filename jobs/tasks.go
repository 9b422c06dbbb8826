package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAlertRaise opens an alert for a failing QC result.
	TaskAlertRaise = "alert:raise"
	// TaskDashboardWarmup recomputes the cached dashboard metrics.
	TaskDashboardWarmup = "dashboard:warmup"
)

// AlertRaisePayload describes the alert a failing QC result opens.
type AlertRaisePayload struct {
	BatchID     uuid.UUID `json:"batchId"`
	BatchCode   string    `json:"batchCode"`
	ResultID    uuid.UUID `json:"resultId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    string    `json:"severity"`
}

// NewAlertRaiseTask constructs an alert raise task. The result id doubles as
// the task id so a retried enqueue cannot open the alert twice.
func NewAlertRaiseTask(payload AlertRaisePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAlertRaise, data,
		asynq.MaxRetry(3),
		asynq.Queue(QueueDefault),
		asynq.TaskID("qc-alert-"+payload.ResultID.String()),
	), nil
}

// DashboardWarmupPayload carries the reason a warmup was requested.
type DashboardWarmupPayload struct {
	Reason string `json:"reason"`
}

// NewDashboardWarmupTask constructs a dashboard warmup task.
func NewDashboardWarmupTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(DashboardWarmupPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardWarmup, data, asynq.MaxRetry(3), asynq.Queue(QueueDefault)), nil
}

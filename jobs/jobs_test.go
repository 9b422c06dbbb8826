package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diptrack/diptrack/internal/alerts"
	jobmetrics "github.com/diptrack/diptrack/internal/jobs"
	"github.com/diptrack/diptrack/internal/platform/httpx"
	"github.com/diptrack/diptrack/internal/qc"
)

type raiserStub struct {
	inputs []alerts.RaiseInput
	err    error
}

func (r *raiserStub) Raise(ctx context.Context, input alerts.RaiseInput) (alerts.Alert, error) {
	r.inputs = append(r.inputs, input)
	if r.err != nil {
		return alerts.Alert{}, r.err
	}
	return alerts.Alert{ID: uuid.New(), Title: input.Title, Severity: input.Severity, Status: alerts.StatusActive}, nil
}

func newMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func TestAlertRaiseJob(t *testing.T) {
	raiser := &raiserStub{}
	job := NewAlertRaiseJob(raiser, nil, newMetrics())
	batchID := uuid.New()
	task, err := NewAlertRaiseTask(AlertRaisePayload{BatchID: batchID, ResultID: uuid.New(), Title: "QC failure on batch B-1"})
	require.NoError(t, err)
	assert.Equal(t, TaskAlertRaise, task.Type())

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, raiser.inputs, 1)
	assert.Equal(t, alerts.SeverityHigh, raiser.inputs[0].Severity)
	assert.Equal(t, alerts.SourceQC, raiser.inputs[0].Source)
	require.NotNil(t, raiser.inputs[0].BatchID)
	assert.Equal(t, batchID, *raiser.inputs[0].BatchID)
}

func TestAlertRaiseJobSkipsRetryForBadPayload(t *testing.T) {
	job := NewAlertRaiseJob(&raiserStub{}, nil, newMetrics())
	err := job.Handle(context.Background(), asynq.NewTask(TaskAlertRaise, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskAlertRaise, []byte(`{"title":""}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAlertRaiseJobRetriesStoreErrors(t *testing.T) {
	raiser := &raiserStub{err: errors.New("db down")}
	job := NewAlertRaiseJob(raiser, nil, newMetrics())
	task, err := NewAlertRaiseTask(AlertRaisePayload{ResultID: uuid.New(), Title: "t"})
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	raiser.err = fmt.Errorf("bad severity: %w", httpx.ErrValidation)
	assert.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}

type warmerStub struct {
	calls int
	err   error
}

func (w *warmerStub) Warm(ctx context.Context) error {
	w.calls++
	return w.err
}

func TestDashboardWarmupJob(t *testing.T) {
	warmer := &warmerStub{}
	job := NewDashboardWarmupJob(warmer, nil, newMetrics())
	task, err := NewDashboardWarmupTask("test")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskDashboardWarmup, nil)))
	assert.Equal(t, 2, warmer.calls)

	assert.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskDashboardWarmup, []byte("["))), asynq.SkipRetry)

	warmer.err = errors.New("redis down")
	assert.Error(t, job.Handle(context.Background(), task))
}

type enqueueSpy struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (e *enqueueSpy) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	e.opts = append(e.opts, opts)
	if e.err != nil {
		return nil, e.err
	}
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (e *enqueueSpy) Close() error { return nil }

func TestClientEnqueueFailureAlert(t *testing.T) {
	spy := &enqueueSpy{}
	client := NewClientWith(spy)
	alert := qc.FailureAlert{BatchID: uuid.New(), BatchCode: "B-7", ResultID: uuid.New(), Title: "QC failure on batch B-7"}
	require.NoError(t, client.EnqueueFailureAlert(context.Background(), alert))
	require.Len(t, spy.tasks, 1)
	assert.Equal(t, TaskAlertRaise, spy.tasks[0].Type())

	var payload AlertRaisePayload
	require.NoError(t, json.Unmarshal(spy.tasks[0].Payload(), &payload))
	assert.Equal(t, alert.ResultID, payload.ResultID)
	assert.Equal(t, "B-7", payload.BatchCode)

	spy.err = asynq.ErrTaskIDConflict
	assert.NoError(t, client.EnqueueFailureAlert(context.Background(), alert))

	spy.err = errors.New("redis down")
	assert.Error(t, client.EnqueueFailureAlert(context.Background(), alert))
}

type inspectorStub struct {
	info *asynq.QueueInfo
	err  error
}

func (i inspectorStub) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return i.info, i.err
}

func TestHealthHandler(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", h.MountRoutes)
		res := httptest.NewRecorder()
		r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return res
	}

	res := serve(NewHandler(inspectorStub{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Failed: 1}}, nil))
	require.Equal(t, http.StatusOK, res.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Pending)
	assert.Equal(t, 1, body.Failed)

	res = serve(NewHandler(inspectorStub{err: errors.New("down")}, nil))
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)

	res = serve(NewHandler(nil, nil))
	assert.Equal(t, http.StatusOK, res.Code)
}

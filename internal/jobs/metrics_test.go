package jobmetrics

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("dashboard:warmup").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("dashboard:warmup").End(boom), boom)
	dropped := fmt.Errorf("bad payload: %w", asynq.SkipRetry)
	assert.ErrorIs(t, m.Track("alert:raise").End(dropped), asynq.SkipRetry)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("dashboard:warmup", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("dashboard:warmup", StatusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("alert:raise", StatusDropped)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.runs.WithLabelValues("alert:raise", StatusFailure)))
}

func TestAddAlerts(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddAlerts("high", 2)
	m.AddAlerts("high", 0)
	m.AddAlerts("", 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.raised.WithLabelValues("high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.raised.WithLabelValues("unknown")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.AddAlerts("low", 1)
		_ = nilMetrics.Track("x").End(nil)
	})
}

type stubInspector struct {
	queues []string
	infos  map[string]*asynq.QueueInfo
	err    error
}

func (s stubInspector) Queues() ([]string, error) { return s.queues, s.err }

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := s.infos[queue]
	if !ok {
		return nil, errors.New("queue not found")
	}
	return info, nil
}

func TestQueueCollector(t *testing.T) {
	collector := NewQueueCollector(stubInspector{
		queues: []string{"default", "ghost"},
		infos: map[string]*asynq.QueueInfo{
			"default": {Queue: "default", Pending: 3, Active: 1, Retry: 2, Latency: 1500 * time.Millisecond},
		},
	})

	expected := `
# HELP diptrack_jobs_queue_latency_seconds Age of the oldest pending task per queue.
# TYPE diptrack_jobs_queue_latency_seconds gauge
diptrack_jobs_queue_latency_seconds{queue="default"} 1.5
# HELP diptrack_jobs_queue_scrape_errors 1 when the last queue inspection failed.
# TYPE diptrack_jobs_queue_scrape_errors gauge
diptrack_jobs_queue_scrape_errors 1
# HELP diptrack_jobs_queue_tasks Tasks held in each queue by state.
# TYPE diptrack_jobs_queue_tasks gauge
diptrack_jobs_queue_tasks{queue="default",state="active"} 1
diptrack_jobs_queue_tasks{queue="default",state="archived"} 0
diptrack_jobs_queue_tasks{queue="default",state="pending"} 3
diptrack_jobs_queue_tasks{queue="default",state="retry"} 2
diptrack_jobs_queue_tasks{queue="default",state="scheduled"} 0
`
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected)))
}

func TestQueueCollectorInspectorDown(t *testing.T) {
	collector := NewQueueCollector(stubInspector{err: errors.New("redis down")})
	assert.Equal(t, 1, testutil.CollectAndCount(collector))
}

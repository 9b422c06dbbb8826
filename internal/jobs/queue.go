package jobmetrics

import (
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// QueueInspector is the part of *asynq.Inspector the queue collector reads.
type QueueInspector interface {
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

var _ QueueInspector = (*asynq.Inspector)(nil)

// QueueCollector reports task counts per queue and state at scrape time.
type QueueCollector struct {
	inspector QueueInspector
	tasks     *prometheus.Desc
	latency   *prometheus.Desc
	errors    *prometheus.Desc
}

// NewQueueCollector builds a collector over inspector.
func NewQueueCollector(inspector QueueInspector) *QueueCollector {
	return &QueueCollector{
		inspector: inspector,
		tasks: prometheus.NewDesc("diptrack_jobs_queue_tasks",
			"Tasks held in each queue by state.", []string{"queue", "state"}, nil),
		latency: prometheus.NewDesc("diptrack_jobs_queue_latency_seconds",
			"Age of the oldest pending task per queue.", []string{"queue"}, nil),
		errors: prometheus.NewDesc("diptrack_jobs_queue_scrape_errors",
			"1 when the last queue inspection failed.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *QueueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tasks
	ch <- c.latency
	ch <- c.errors
}

// Collect implements prometheus.Collector.
func (c *QueueCollector) Collect(ch chan<- prometheus.Metric) {
	failed := 0.0
	defer func() {
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.GaugeValue, failed)
	}()

	queues, err := c.inspector.Queues()
	if err != nil {
		failed = 1
		return
	}
	for _, queue := range queues {
		info, err := c.inspector.GetQueueInfo(queue)
		if err != nil {
			failed = 1
			continue
		}
		states := map[string]int{
			"pending":   info.Pending,
			"active":    info.Active,
			"scheduled": info.Scheduled,
			"retry":     info.Retry,
			"archived":  info.Archived,
		}
		for state, n := range states {
			ch <- prometheus.MustNewConstMetric(c.tasks, prometheus.GaugeValue, float64(n), queue, state)
		}
		ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, info.Latency.Seconds(), queue)
	}
}

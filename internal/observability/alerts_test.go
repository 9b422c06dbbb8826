package observability

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertSpec struct {
	Groups []struct {
		Name  string      `yaml:"name"`
		Rules []alertRule `yaml:"rules"`
	} `yaml:"groups"`
}

var metricName = regexp.MustCompile(`diptrack_[a-z_]+`)

// exportedSeries are the families the web process and worker publish.
var exportedSeries = map[string]bool{
	"diptrack_http_requests_total":           true,
	"diptrack_http_request_duration_seconds": true,
	"diptrack_http_requests_in_flight":       true,
	"diptrack_authz_decisions_total":         true,
	"diptrack_dashboard_cache_lookups_total": true,
	"diptrack_jobs_runs_total":               true,
	"diptrack_jobs_duration_seconds":         true,
	"diptrack_jobs_alerts_raised_total":      true,
	"diptrack_jobs_queue_tasks":              true,
	"diptrack_jobs_queue_latency_seconds":    true,
}

func TestAlertRules(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "diptrack.yml"))
	require.NoError(t, err)

	var spec alertSpec
	require.NoError(t, yaml.Unmarshal(data, &spec))
	require.Len(t, spec.Groups, 1)
	assert.Equal(t, "diptrack", spec.Groups[0].Name)

	expected := map[string]string{
		"HighErrorRate":  "critical",
		"ForbiddenSpike": "warning",
		"JobFailures":    "warning",
		"QueueBacklog":   "warning",
	}
	rules := spec.Groups[0].Rules
	require.Len(t, rules, len(expected))

	for _, rule := range rules {
		severity, ok := expected[rule.Alert]
		require.True(t, ok, "unexpected rule %q", rule.Alert)
		assert.Equal(t, severity, rule.Labels["severity"], rule.Alert)
		assert.NotEmpty(t, rule.Annotations["summary"], rule.Alert)
		assert.NotEmpty(t, rule.Annotations["description"], rule.Alert)
		assert.Regexp(t, `^docs/runbook\.md#`, rule.Annotations["runbook"], rule.Alert)

		for _, name := range metricName.FindAllString(rule.Expr, -1) {
			assert.True(t, exportedSeries[name], "%s references unknown series %s", rule.Alert, name)
		}
	}
}

func TestHTTPSeriesMatchRules(t *testing.T) {
	m := NewMetrics()
	m.RecordDecision("manage_users", "forbidden")
	body := scrape(t, m)
	for _, name := range []string{"diptrack_http_requests_in_flight", "diptrack_authz_decisions_total"} {
		assert.Contains(t, body, name)
	}
}

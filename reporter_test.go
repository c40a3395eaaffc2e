package bettertest

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/bettertest/metrics"
	"github.com/ethereum-optimism/infra/bettertest/runner"
)

func TestDefaultMetricsReporter(t *testing.T) {
	reporter := NewDefaultMetricsReporter()
	reporter.ReportResults(&runner.RunnerResult{
		RunID:    "reporter-run",
		Total:    3,
		Passed:   2,
		Parallel: true,
		Duration: 2 * time.Second,
	})

	count, err := testutil.GatherAndCount(metrics.Registry, "bettertest_run_tests_total", "bettertest_run_duration_seconds")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 2)
}

package bettertest

import (
	"github.com/ethereum-optimism/infra/bettertest/metrics"
	"github.com/ethereum-optimism/infra/bettertest/runner"
)

// MetricsReporter is responsible for reporting metrics from test results.
type MetricsReporter interface {
	ReportResults(result *runner.RunnerResult)
}

// DefaultMetricsReporter records run totals in the prometheus registry.
type DefaultMetricsReporter struct{}

// NewDefaultMetricsReporter creates a new DefaultMetricsReporter.
func NewDefaultMetricsReporter() *DefaultMetricsReporter {
	return &DefaultMetricsReporter{}
}

// ReportResults reports the test results to metrics systems.
func (r *DefaultMetricsReporter) ReportResults(result *runner.RunnerResult) {
	metrics.RecordRun(result.RunID, result.Parallel, result.Total, result.Passed, result.Duration)
}

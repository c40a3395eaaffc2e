package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/bettertest/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "bettertest"
)

var (
	Debug                = false
	validResults         = []types.TestStatus{types.TestStatusPass, types.TestStatusFail}
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

	// Registry holds every bettertest collector and is what the metrics server exposes
	Registry = prometheus.NewRegistry()
	factory  = promauto.With(Registry)

	errorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	stagesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "stages_total",
		Help:      "Count of executed toolchain stages",
	}, []string{
		"run_id",
		"stage",
		"result",
	})

	stageDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "stage_duration_seconds",
		Help:      "Duration of toolchain stages",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{
		"stage",
	})

	testCasesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "testcases_total",
		Help:      "Count of completed test cases",
	}, []string{
		"run_id",
		"result",
	})

	runTestsTotal = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_tests_total",
		Help:      "Number of test cases in a run",
	}, []string{
		"run_id",
	})

	runTestsPassed = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_tests_passed",
		Help:      "Number of passed test cases in a run",
	}, []string{
		"run_id",
	})

	runDuration = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall clock duration of a run",
	}, []string{
		"run_id",
		"mode",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordStage records the outcome of a single toolchain stage
func RecordStage(runID string, stage types.Stage, failed bool, duration time.Duration) {
	result := types.TestStatusPass
	if failed {
		result = types.TestStatusFail
	}
	if Debug {
		log.Debug("metric inc",
			"m", "stages_total",
			"run_id", runID,
			"stage", stage,
			"result", result)
	}
	stagesTotal.WithLabelValues(runID, stage.String(), string(result)).Inc()
	stageDuration.WithLabelValues(stage.String()).Observe(duration.Seconds())
}

// RecordTestCase records the final outcome of a test case
func RecordTestCase(runID string, result types.TestStatus) {
	if !isValidResult(result) {
		log.Error("RecordTestCase - invalid result", "result", result)
		return
	}
	testCasesTotal.WithLabelValues(runID, string(result)).Inc()
}

// RecordRun records the totals of a completed run
func RecordRun(runID string, parallel bool, total int, passed int, duration time.Duration) {
	mode := "sequential"
	if parallel {
		mode = "parallel"
	}
	runTestsTotal.WithLabelValues(runID).Set(float64(total))
	runTestsPassed.WithLabelValues(runID).Set(float64(passed))
	runDuration.WithLabelValues(runID, mode).Set(duration.Seconds())
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}

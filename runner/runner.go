package runner

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/bettertest/process"
	"github.com/ethereum-optimism/infra/bettertest/toolchain"
	"github.com/ethereum-optimism/infra/bettertest/types"
)

// FragmentSink consumes report fragments in the order they are drained
type FragmentSink interface {
	Consume(fragment types.ReportFragment) error
}

// FragmentSinkFunc adapts a function to a FragmentSink
type FragmentSinkFunc func(fragment types.ReportFragment) error

func (f FragmentSinkFunc) Consume(fragment types.ReportFragment) error {
	return f(fragment)
}

// RunnerResult captures the outcome of a complete run
type RunnerResult struct {
	RunID    string
	Total    int
	Passed   int
	Status   types.TestStatus
	Duration time.Duration
	Parallel bool

	// StageFailures counts failed test cases by the stage that stopped them
	StageFailures map[types.Stage]int
}

// Failed returns the number of failed test cases
func (r *RunnerResult) Failed() int {
	return r.Total - r.Passed
}

func (r *RunnerResult) record(f types.ReportFragment) {
	if f.Passed() {
		r.Passed++
		return
	}
	r.Status = types.TestStatusFail
	if f.Outcome != nil {
		r.StageFailures[f.Outcome.Stage]++
	}
}

// TestRunner schedules test cases through the pipeline and forwards every
// fragment to a sink
type TestRunner interface {
	RunAll(ctx context.Context, cases []types.TestCase, sink FragmentSink) (*RunnerResult, error)
}

// Config holds configuration for creating a new runner
type Config struct {
	Toolchain   toolchain.Toolchain
	CmdRunner   process.Runner    // defaults to process.NewExecRunner()
	Log         log.Logger
	RunID       string            // generated when empty
	Parallel    bool              // run test cases on a worker pool
	Concurrency int               // worker count in parallel mode, 0 picks one automatically
	Progress    ProgressIndicator // defaults to a no-op indicator
}

type runner struct {
	pipeline    *Pipeline
	log         log.Logger
	runID       string
	parallel    bool
	concurrency int
	ui          ProgressIndicator
	tracer      trace.Tracer
}

// NewTestRunner creates a new test runner instance
func NewTestRunner(cfg Config) (TestRunner, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency cannot be negative: %d", cfg.Concurrency)
	}
	if cfg.CmdRunner == nil {
		cfg.CmdRunner = process.NewExecRunner()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	if cfg.Progress == nil {
		cfg.Progress = NewNoOpProgressIndicator()
	}

	pipeline, err := NewPipeline(cfg.Toolchain, cfg.CmdRunner, cfg.Log, cfg.RunID)
	if err != nil {
		return nil, err
	}

	return &runner{
		pipeline:    pipeline,
		log:         cfg.Log,
		runID:       cfg.RunID,
		parallel:    cfg.Parallel,
		concurrency: cfg.Concurrency,
		ui:          cfg.Progress,
		tracer:      otel.Tracer("bettertest runner"),
	}, nil
}

// RunAll runs every test case and hands each fragment to sink. In sequential
// mode fragments reach the sink in discovery order; in parallel mode they
// arrive in completion order. A cancelled context stops dispatching new test
// cases and returns the partial result together with the context error.
func (r *runner) RunAll(ctx context.Context, cases []types.TestCase, sink FragmentSink) (*RunnerResult, error) {
	ctx, span := r.tracer.Start(ctx, "run all tests")
	defer span.End()
	span.SetAttributes(attribute.Int("tests", len(cases)), attribute.Bool("parallel", r.parallel))

	start := time.Now()
	result := &RunnerResult{
		RunID:         r.runID,
		Total:         len(cases),
		Status:        types.TestStatusPass,
		Parallel:      r.parallel,
		StageFailures: make(map[types.Stage]int),
	}

	r.ui.StartRun(len(cases))
	defer r.ui.Stop()

	results := NewResultChannel(len(cases))
	consume := func(f types.ReportFragment) error {
		result.record(f)
		r.ui.CompleteTest(f.Name, f.Status)
		return sink.Consume(f)
	}

	var err error
	if r.parallel && len(cases) > 0 {
		err = r.runParallel(ctx, cases, results, consume)
	} else {
		err = r.runSequential(ctx, cases, results, consume)
	}
	result.Duration = time.Since(start)

	r.log.Info("Test run finished", "runID", r.runID, "passed", result.Passed,
		"total", result.Total, "duration", result.Duration)
	return result, err
}

func (r *runner) runSequential(ctx context.Context, cases []types.TestCase, results *ResultChannel, consume func(types.ReportFragment) error) error {
	r.log.Info("Running tests sequentially", "totalTests", len(cases))
	for _, tc := range cases {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("test run interrupted: %w", err)
		}
		r.ui.StartTest(tc.Name())
		r.pipeline.Run(ctx, tc, results)
		if err := results.Drain(consume); err != nil {
			return fmt.Errorf("failed to consume report fragment: %w", err)
		}
	}
	return nil
}

// determineConcurrency resolves the worker count for numWorkItems test cases
func (r *runner) determineConcurrency(numWorkItems int) int {
	if r.concurrency > 0 {
		if r.concurrency > numWorkItems {
			r.log.Debug("Capping concurrency at number of tests",
				"requested", r.concurrency, "tests", numWorkItems)
			return max(numWorkItems, 1)
		}
		if r.concurrency > MaxReasonableConcurrency {
			r.log.Warn("Very high concurrency requested", "concurrency", r.concurrency,
				"recommendation", "Consider using lower values to avoid resource exhaustion")
		}
		return r.concurrency
	}

	concurrency := min(runtime.NumCPU(), MaxReasonableConcurrency, numWorkItems)
	return max(concurrency, 1)
}

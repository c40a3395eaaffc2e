package bettertest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ethereum-optimism/infra/bettertest/discovery"
	"github.com/ethereum-optimism/infra/bettertest/exitcodes"
	"github.com/ethereum-optimism/infra/bettertest/logging"
	"github.com/ethereum-optimism/infra/bettertest/metrics"
	"github.com/ethereum-optimism/infra/bettertest/process"
	"github.com/ethereum-optimism/infra/bettertest/reporting"
	"github.com/ethereum-optimism/infra/bettertest/runner"
)

// Harness implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &Harness{}

// Harness builds the compiler, runs every discovered test case through the
// toolchain once and writes the console output and JUnit report.
type Harness struct {
	config    *Config
	version   string
	cmdRunner process.Runner
	reporter  MetricsReporter
	result    *runner.RunnerResult

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
	exit             func(code int)
}

func New(config *Config, version string, shutdownCallback func(error)) (*Harness, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		return nil, errors.New("logger is required")
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	cmdRunner := config.CmdRunner
	if cmdRunner == nil {
		cmdRunner = process.NewExecRunner()
	}

	config.Log.Debug("Creating harness with config",
		"testDir", config.TestDir,
		"outputDir", config.OutputDir,
		"report", config.ReportPath,
		"compiler", config.Toolchain.Compiler,
		"parallel", config.Parallel,
		"concurrency", config.Concurrency)

	return &Harness{
		config:           config,
		version:          version,
		cmdRunner:        cmdRunner,
		reporter:         NewDefaultMetricsReporter(),
		shutdownCallback: shutdownCallback,
		exit:             os.Exit,
	}, nil
}

// Start runs the whole test session. It returns a RuntimeError for fatal
// setup problems or an interrupted run, and a TestFailureError when any test
// case failed.
// Start implements the cliapp.Lifecycle interface.
func (h *Harness) Start(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			h.config.Log.Error("Runtime error occurred", "error", r)
			_, _ = fmt.Fprintf(os.Stderr, "Exception encountered: %v\n", r)
			if err := h.config.Terminal.Restore(); err != nil {
				h.config.Log.Warn("Failed to restore terminal", "error", err)
			}
			h.exit(exitcodes.RuntimeErr)
		}
	}()

	h.running.Store(true)
	h.config.Log.Info("Starting bettertest", "version", h.version)

	result, err := h.run(ctx)
	if err != nil {
		h.config.Log.Error("Runtime error running tests", "error", err)
		return NewRuntimeError(err)
	}
	h.result = result

	if result.Passed < result.Total {
		h.config.Log.Warn("Test run completed with failures", "failed", result.Failed(), "total", result.Total)
		return NewTestFailureError(fmt.Sprintf("%d of %d test cases failed", result.Failed(), result.Total))
	}

	go func() {
		h.shutdownCallback(nil)
	}()
	return nil
}

func (h *Harness) run(ctx context.Context) (*runner.RunnerResult, error) {
	ctx, span := otel.Tracer("bettertest").Start(ctx, "test session")
	defer span.End()

	chain := h.config.Toolchain
	if err := chain.BuildCompiler(ctx, h.cmdRunner, h.config.Log); err != nil {
		metrics.RecordErrorDetails("build", err)
		return nil, err
	}
	compiler, err := chain.CheckCompiler()
	if err != nil {
		metrics.RecordErrorDetails("compiler", err)
		return nil, err
	}
	h.config.Log.Debug("Using compiler", "path", compiler)

	cases, err := discovery.Discover(discovery.Config{
		Log:          h.config.Log,
		TestDir:      h.config.TestDir,
		OutputDir:    h.config.OutputDir,
		DriverSuffix: chain.DriverSuffix,
	})
	if err != nil {
		metrics.RecordErrorDetails("discovery", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("tests", len(cases)))

	transcript, err := logging.NewTranscript(h.config.stdout(), h.config.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	defer func() {
		if err := transcript.Close(); err != nil {
			h.config.Log.Warn("Failed to write transcript", "path", transcript.Path(), "error", err)
		}
	}()

	report, err := reporting.CreateJUnitFile(h.config.ReportPath)
	if err != nil {
		return nil, err
	}
	if err := report.Open(); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to write report header: %w", err), report.Abort())
	}

	progress := runner.NewNoOpProgressIndicator()
	if h.config.ShowProgress {
		progress = runner.NewConsoleProgressIndicator(h.config.Log, h.config.ProgressInterval)
	}

	runID := uuid.New().String()
	testRunner, err := runner.NewTestRunner(runner.Config{
		Toolchain:   chain,
		CmdRunner:   h.cmdRunner,
		Log:         h.config.Log,
		RunID:       runID,
		Parallel:    h.config.Parallel,
		Concurrency: h.config.Concurrency,
		Progress:    progress,
	})
	if err != nil {
		return nil, errors.Join(err, report.Abort())
	}

	console := reporting.NewConsoleWriter(transcript)
	result, err := testRunner.RunAll(ctx, cases, reporting.MultiSink{console, report})
	if err != nil {
		// Leave the partial document as it is; it holds every drained fragment.
		return nil, errors.Join(err, report.Abort())
	}

	if err := report.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish report %s: %w", report.Path(), err)
	}
	h.printSummary(transcript, result)

	h.reporter.ReportResults(result)
	h.config.Log.Info("Test run completed", "run_id", runID, "status", result.Status,
		"passed", result.Passed, "total", result.Total, "stageFailures", result.StageFailures,
		"report", report.Path())
	return result, nil
}

func (h *Harness) printSummary(out io.Writer, result *runner.RunnerResult) {
	console := reporting.NewConsoleWriter(out)
	if err := console.PrintSummary(result.Passed, result.Total); err != nil {
		h.config.Log.Warn("Failed to print summary", "error", err)
	}
	if h.config.ShowTable {
		reporting.PrintStageTable(out, result, h.config.Colored)
	}
}

// Result returns the outcome of the last completed run, if any
func (h *Harness) Result() *runner.RunnerResult {
	return h.result
}

// Stop implements the cliapp.Lifecycle interface.
func (h *Harness) Stop(ctx context.Context) error {
	if !h.running.Load() {
		return nil
	}
	h.running.Store(false)
	h.config.Log.Info("bettertest stopped")
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (h *Harness) Stopped() bool {
	return !h.running.Load()
}


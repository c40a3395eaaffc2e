package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/bettertest/metrics"
	"github.com/ethereum-optimism/infra/bettertest/process"
	"github.com/ethereum-optimism/infra/bettertest/toolchain"
	"github.com/ethereum-optimism/infra/bettertest/types"
)

// Pipeline runs the compile, assemble, link and simulate stages for one test case
// at a time. A Pipeline holds no per-test state and may be shared by workers.
type Pipeline struct {
	toolchain toolchain.Toolchain
	cmdRunner process.Runner
	log       log.Logger
	runID     string
	tracer    trace.Tracer
}

// NewPipeline creates a pipeline driving the given toolchain
func NewPipeline(chain toolchain.Toolchain, cmdRunner process.Runner, logger log.Logger, runID string) (*Pipeline, error) {
	if cmdRunner == nil {
		return nil, fmt.Errorf("command runner is required")
	}
	if logger == nil {
		logger = log.New()
	}
	return &Pipeline{
		toolchain: chain,
		cmdRunner: cmdRunner,
		log:       logger.New("component", "pipeline"),
		runID:     runID,
		tracer:    otel.Tracer("bettertest pipeline"),
	}, nil
}

// Run executes every stage of tc in order, stopping at the first failure, and
// puts exactly one fragment describing the outcome on results. The return value
// only says whether the test case passed.
func (p *Pipeline) Run(ctx context.Context, tc types.TestCase, results *ResultChannel) bool {
	ctx, span := p.tracer.Start(ctx, fmt.Sprintf("test %s", tc.RelPath))
	defer span.End()

	fragment := p.execute(ctx, tc)
	span.SetAttributes(attribute.String("status", string(fragment.Status)))
	metrics.RecordTestCase(p.runID, fragment.Status)

	results.Put(fragment)
	return fragment.Passed()
}

func (p *Pipeline) execute(ctx context.Context, tc types.TestCase) types.ReportFragment {
	if err := p.prepare(tc); err != nil {
		// Nothing can run without a log directory; blame the first stage.
		p.log.Error("Failed to prepare test output", "test", tc.RelPath, "error", err)
		return types.NewFailFragment(tc, types.StageOutcome{
			Stage:    types.StageCompile,
			ExitCode: -1,
			Captures: types.CaptureFilesFor(tc.LogBase, types.StageCompile),
		})
	}

	for _, stage := range types.Stages {
		outcome := p.runStage(ctx, stage, tc)
		if outcome.Failed {
			p.log.Debug("Test case failed", "test", tc.RelPath, "stage", stage, "exitCode", outcome.ExitCode)
			return types.NewFailFragment(tc, outcome)
		}
	}

	p.log.Debug("Test case passed", "test", tc.RelPath)
	return types.NewPassFragment(tc)
}

// prepare creates the mirrored log directory and removes whatever a previous
// run of the same test case left behind, so no stage can reuse stale output.
func (p *Pipeline) prepare(tc types.TestCase) error {
	if err := os.MkdirAll(filepath.Dir(tc.LogBase), logDirPerm); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	for _, path := range tc.StaleFiles() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove stale file %s: %w", path, err)
		}
	}
	return nil
}

// runStage runs a single stage with its output captured to files
func (p *Pipeline) runStage(ctx context.Context, stage types.Stage, tc types.TestCase) types.StageOutcome {
	ctx, span := p.tracer.Start(ctx, fmt.Sprintf("stage %s", stage))
	defer span.End()

	outcome := types.StageOutcome{Stage: stage}
	cmd := p.toolchain.CommandFor(stage, tc)

	var code int
	start := time.Now()
	if stage.HasCaptureFiles() {
		outcome.Captures = types.CaptureFilesFor(tc.LogBase, stage)
		code = p.runCaptured(ctx, cmd, outcome.Captures)
	} else {
		code = p.runSimulation(ctx, cmd, tc)
	}
	duration := time.Since(start)

	outcome.ExitCode = code
	outcome.Failed = code != 0
	span.SetAttributes(attribute.Int("exit_code", code))
	metrics.RecordStage(p.runID, stage, outcome.Failed, duration)

	p.log.Trace("Stage finished", "test", tc.RelPath, "stage", stage,
		"exitCode", code, "duration", duration)
	return outcome
}

// runCaptured runs cmd with stdout and stderr written to the capture pair.
// Failures to start the process are written to the stderr capture and reported as exit code -1.
func (p *Pipeline) runCaptured(ctx context.Context, cmd process.Command, captures types.CaptureFiles) int {
	stdout, err := os.Create(captures.Stdout)
	if err != nil {
		p.log.Error("Failed to create stdout capture file", "path", captures.Stdout, "error", err)
		return -1
	}
	defer stdout.Close()

	stderr, err := os.Create(captures.Stderr)
	if err != nil {
		p.log.Error("Failed to create stderr capture file", "path", captures.Stderr, "error", err)
		return -1
	}
	defer stderr.Close()

	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return p.run(ctx, cmd, stderr)
}

// runSimulation runs the simulator with its combined output written to the simulation log
func (p *Pipeline) runSimulation(ctx context.Context, cmd process.Command, tc types.TestCase) int {
	logFile, err := os.Create(tc.SimulationLogPath())
	if err != nil {
		p.log.Error("Failed to create simulation log", "path", tc.SimulationLogPath(), "error", err)
		return -1
	}
	defer logFile.Close()

	tail := newTailBuffer(defaultOutputTailBytes)
	out := io.MultiWriter(logFile, tail)
	cmd.Stdout = out
	cmd.Stderr = out

	code := p.run(ctx, cmd, out)
	if code != 0 {
		p.log.Debug("Simulation failed", "test", tc.RelPath, "exitCode", code,
			"outputBytes", tail.TotalBytes(), "truncated", tail.Truncated(), "output", tail.String())
	}
	return code
}

func (p *Pipeline) run(ctx context.Context, cmd process.Command, diag io.Writer) int {
	p.log.Debug("Running command", "command", cmd.String())
	code, err := p.cmdRunner.Run(ctx, cmd)
	if err != nil {
		p.log.Warn("Command could not be run", "command", cmd.String(), "error", err)
		_, _ = fmt.Fprintf(diag, "bettertest: %v\n", err)
		return -1
	}
	return code
}

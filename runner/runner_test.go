package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/bettertest/process"
	"github.com/ethereum-optimism/infra/bettertest/toolchain"
	"github.com/ethereum-optimism/infra/bettertest/types"
)

const (
	fakeCompiler  = "fake-cc"
	fakeAssembler = "fake-as"
	fakeLinker    = "fake-ld"
	fakeSimulator = "fake-spike"
)

// scriptedRunner stands in for the toolchain. failures maps a test name
// fragment to the stage that should fail for it.
type scriptedRunner struct {
	failures map[string]types.Stage
	delay    time.Duration

	mu      sync.Mutex
	calls   []process.Command
	running atomic.Int32
	peak    atomic.Int32
}

func (s *scriptedRunner) Run(ctx context.Context, cmd process.Command) (int, error) {
	s.mu.Lock()
	s.calls = append(s.calls, cmd)
	s.mu.Unlock()

	cur := s.running.Add(1)
	defer s.running.Add(-1)
	for {
		peak := s.peak.Load()
		if cur <= peak || s.peak.CompareAndSwap(peak, cur) {
			break
		}
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return -1, ctx.Err()
		}
	}

	stage := stageOf(cmd)
	if cmd.Stdout != nil {
		_, _ = fmt.Fprintf(cmd.Stdout, "%s output\n", stage)
	}
	for marker, failing := range s.failures {
		if failing == stage && strings.Contains(strings.Join(cmd.Args, " "), marker) {
			if cmd.Stderr != nil {
				_, _ = fmt.Fprintf(cmd.Stderr, "%s failed\n", stage)
			}
			return 1, nil
		}
	}
	return 0, nil
}

func (s *scriptedRunner) commands() []process.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]process.Command(nil), s.calls...)
}

func stageOf(cmd process.Command) types.Stage {
	switch cmd.Name {
	case fakeCompiler:
		return types.StageCompile
	case fakeAssembler:
		return types.StageAssemble
	case fakeLinker:
		return types.StageLink
	default:
		return types.StageSimulate
	}
}

func testToolchain() toolchain.Toolchain {
	chain := toolchain.Default()
	chain.Compiler = fakeCompiler
	chain.Assembler = fakeAssembler
	chain.Linker = fakeLinker
	chain.Simulator = fakeSimulator
	return chain
}

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

// makeCases builds test cases for driver paths relative to a temporary corpus
func makeCases(t *testing.T, rels ...string) ([]types.TestCase, string) {
	t.Helper()
	root := t.TempDir()
	out := filepath.Join(t.TempDir(), "output")

	var cases []types.TestCase
	for _, rel := range rels {
		driver := filepath.Join(root, filepath.FromSlash(rel))
		tc, err := types.NewTestCase(driver, root, out, types.DefaultDriverSuffix)
		require.NoError(t, err)
		cases = append(cases, tc)
	}
	return cases, out
}

type collectingSink struct {
	fragments []types.ReportFragment
}

func (c *collectingSink) Consume(f types.ReportFragment) error {
	c.fragments = append(c.fragments, f)
	return nil
}

func newRunner(t *testing.T, cmdRunner process.Runner, parallel bool, concurrency int) TestRunner {
	t.Helper()
	r, err := NewTestRunner(Config{
		Toolchain:   testToolchain(),
		CmdRunner:   cmdRunner,
		Log:         testLogger(),
		RunID:       "test-run",
		Parallel:    parallel,
		Concurrency: concurrency,
	})
	require.NoError(t, err)
	return r
}

func TestPipelineStopsAtFirstFailure(t *testing.T) {
	cases, _ := makeCases(t, "a/x_driver.c")
	tc := cases[0]
	fake := &scriptedRunner{failures: map[string]types.Stage{"x.c": types.StageCompile}}

	p, err := NewPipeline(testToolchain(), fake, testLogger(), "run")
	require.NoError(t, err)

	results := NewResultChannel(1)
	passed := p.Run(context.Background(), tc, results)
	assert.False(t, passed)
	require.Equal(t, 1, results.Len())

	var got []types.ReportFragment
	require.NoError(t, results.Drain(func(f types.ReportFragment) error {
		got = append(got, f)
		return nil
	}))
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Outcome)
	assert.Equal(t, types.StageCompile, got[0].Outcome.Stage)
	assert.Equal(t, fmt.Sprintf("%s\n\t> Fail: see %s.compiler.stderr.log and %s.compiler.stdout.log",
		tc.Source, tc.LogBase, tc.LogBase), got[0].Line)

	assert.Len(t, fake.commands(), 1, "no stage may run after a failure")

	stderr, err := os.ReadFile(tc.LogBase + ".compiler.stderr.log")
	require.NoError(t, err)
	assert.Equal(t, "compile failed\n", string(stderr))

	for _, stage := range []types.Stage{types.StageAssemble, types.StageLink} {
		files := types.CaptureFilesFor(tc.LogBase, stage)
		assert.NoFileExists(t, files.Stdout)
		assert.NoFileExists(t, files.Stderr)
	}
	assert.NoFileExists(t, tc.SimulationLogPath())
}

func TestPipelinePassWritesCapturesAndSimulationLog(t *testing.T) {
	cases, _ := makeCases(t, "a/x_driver.c")
	tc := cases[0]
	fake := &scriptedRunner{}

	p, err := NewPipeline(testToolchain(), fake, testLogger(), "run")
	require.NoError(t, err)

	results := NewResultChannel(1)
	assert.True(t, p.Run(context.Background(), tc, results))

	cmds := fake.commands()
	require.Len(t, cmds, 4)
	for i, stage := range types.Stages {
		assert.Equal(t, stage, stageOf(cmds[i]))
	}

	for _, stage := range []types.Stage{types.StageCompile, types.StageAssemble, types.StageLink} {
		files := types.CaptureFilesFor(tc.LogBase, stage)
		assert.FileExists(t, files.Stdout)
		assert.FileExists(t, files.Stderr)
	}
	sim, err := os.ReadFile(tc.SimulationLogPath())
	require.NoError(t, err)
	assert.Equal(t, "simulate output\n", string(sim))
}

func TestPipelineStartFailureIsStageFailure(t *testing.T) {
	cases, _ := makeCases(t, "x_driver.c")
	tc := cases[0]

	failing := &startFailureRunner{err: fmt.Errorf("executable file not found")}
	p, err := NewPipeline(testToolchain(), failing, testLogger(), "run")
	require.NoError(t, err)

	results := NewResultChannel(1)
	assert.False(t, p.Run(context.Background(), tc, results))

	stderr, err := os.ReadFile(tc.LogBase + ".compiler.stderr.log")
	require.NoError(t, err)
	assert.Contains(t, string(stderr), "executable file not found")
}

type startFailureRunner struct {
	err error
}

func (s *startFailureRunner) Run(context.Context, process.Command) (int, error) {
	return -1, s.err
}

func TestPipelineRerunRemovesStaleFiles(t *testing.T) {
	cases, _ := makeCases(t, "a/x_driver.c")
	tc := cases[0]
	ctx := context.Background()

	p, err := NewPipeline(testToolchain(), &scriptedRunner{}, testLogger(), "run")
	require.NoError(t, err)
	require.True(t, p.Run(ctx, tc, NewResultChannel(1)))

	// Pretend the previous run also produced artifacts
	for _, artifact := range tc.Artifacts() {
		require.NoError(t, os.WriteFile(artifact, []byte("stale"), 0o644))
	}

	failing := &scriptedRunner{failures: map[string]types.Stage{"x.c": types.StageCompile}}
	p, err = NewPipeline(testToolchain(), failing, testLogger(), "run")
	require.NoError(t, err)
	require.False(t, p.Run(ctx, tc, NewResultChannel(1)))

	for _, artifact := range tc.Artifacts() {
		assert.NoFileExists(t, artifact)
	}
	assert.NoFileExists(t, tc.SimulationLogPath())
	assert.NoFileExists(t, types.CaptureFilesFor(tc.LogBase, types.StageLink).Stdout)
}

func TestRunAllSequential(t *testing.T) {
	cases, _ := makeCases(t, "a/x_driver.c", "a/y_driver.c")
	fake := &scriptedRunner{failures: map[string]types.Stage{"y_driver": types.StageSimulate}}
	sink := &collectingSink{}

	result, err := newRunner(t, fake, false, 0).RunAll(context.Background(), cases, sink)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed())
	assert.Equal(t, types.TestStatusFail, result.Status)
	assert.Equal(t, 1, result.StageFailures[types.StageSimulate])
	assert.Equal(t, "test-run", result.RunID)

	require.Len(t, sink.fragments, 2)
	assert.Equal(t, cases[0].Source, sink.fragments[0].Name)
	assert.Equal(t, cases[1].Source, sink.fragments[1].Name)
	assert.Equal(t, fmt.Sprintf("%s\n\t> Pass", cases[0].Source), sink.fragments[0].Line)
	assert.Equal(t, fmt.Sprintf("%s\n\t> Fail: simulation did not exit with exitcode 0", cases[1].Source), sink.fragments[1].Line)
	assert.NotContains(t, sink.fragments[1].XML, "Pass")
}

func TestRunAllSequentialDrainsAfterEveryTest(t *testing.T) {
	cases, _ := makeCases(t, "a_driver.c", "b_driver.c", "c_driver.c")
	fake := &scriptedRunner{}

	var seenBeforeNextTest []int
	sink := FragmentSinkFunc(func(types.ReportFragment) error {
		// Each compile command belongs to a distinct test case.
		compiles := 0
		for _, cmd := range fake.commands() {
			if stageOf(cmd) == types.StageCompile {
				compiles++
			}
		}
		seenBeforeNextTest = append(seenBeforeNextTest, compiles)
		return nil
	})

	_, err := newRunner(t, fake, false, 0).RunAll(context.Background(), cases, sink)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seenBeforeNextTest)
}

func TestRunAllEmpty(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			sink := &collectingSink{}
			result, err := newRunner(t, &scriptedRunner{}, parallel, 0).RunAll(context.Background(), nil, sink)
			require.NoError(t, err)
			assert.Equal(t, 0, result.Total)
			assert.Equal(t, 0, result.Passed)
			assert.Equal(t, types.TestStatusPass, result.Status)
			assert.Empty(t, sink.fragments)
		})
	}
}

func TestRunAllParallel(t *testing.T) {
	rels := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		rels = append(rels, fmt.Sprintf("dir%d/t%02d_driver.c", i%3, i))
	}
	cases, _ := makeCases(t, rels...)
	fake := &scriptedRunner{
		delay: 5 * time.Millisecond,
		failures: map[string]types.Stage{
			"t03.c":        types.StageCompile,
			"t07_driver.o": types.StageLink,
		},
	}
	sink := &collectingSink{}

	result, err := newRunner(t, fake, true, 4).RunAll(context.Background(), cases, sink)
	require.NoError(t, err)

	assert.True(t, result.Parallel)
	assert.Equal(t, 12, result.Total)
	assert.Equal(t, 10, result.Passed)
	assert.Equal(t, 1, result.StageFailures[types.StageCompile])
	assert.Equal(t, 1, result.StageFailures[types.StageLink])
	assert.LessOrEqual(t, fake.peak.Load(), int32(4))

	require.Len(t, sink.fragments, 12)
	names := make(map[string]int)
	for _, f := range sink.fragments {
		names[f.Name]++
	}
	for _, tc := range cases {
		assert.Equal(t, 1, names[tc.Source], "exactly one fragment per test case")
	}
}

func TestRunAllParallelSinkIsNotCalledConcurrently(t *testing.T) {
	rels := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		rels = append(rels, fmt.Sprintf("t%02d_driver.c", i))
	}
	cases, _ := makeCases(t, rels...)

	var inSink atomic.Int32
	var overlap atomic.Bool
	sink := FragmentSinkFunc(func(types.ReportFragment) error {
		if inSink.Add(1) > 1 {
			overlap.Store(true)
		}
		time.Sleep(time.Millisecond)
		inSink.Add(-1)
		return nil
	})

	result, err := newRunner(t, &scriptedRunner{delay: time.Millisecond}, true, 8).RunAll(context.Background(), cases, sink)
	require.NoError(t, err)
	assert.Equal(t, 20, result.Passed)
	assert.False(t, overlap.Load())
}

// panickingRunner panics for any command mentioning marker
type panickingRunner struct {
	scriptedRunner
	marker string
}

func (p *panickingRunner) Run(ctx context.Context, cmd process.Command) (int, error) {
	if strings.Contains(strings.Join(cmd.Args, " "), p.marker) {
		panic("toolchain exploded")
	}
	return p.scriptedRunner.Run(ctx, cmd)
}

func TestRunAllParallelWorkerPanicReachesCaller(t *testing.T) {
	cases, _ := makeCases(t, "t00_driver.c", "t01_driver.c", "t02_driver.c", "t03_driver.c")
	sink := &collectingSink{}
	r := newRunner(t, &panickingRunner{marker: "t02.c"}, true, 2)

	assert.PanicsWithValue(t, "toolchain exploded", func() {
		_, _ = r.RunAll(context.Background(), cases, sink)
	})
	for _, f := range sink.fragments {
		assert.NotContains(t, f.Name, "t02", "the panicking test case produced no fragment")
	}
}

func TestRunAllCancelled(t *testing.T) {
	cases, _ := makeCases(t, "a_driver.c", "b_driver.c")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			sink := &collectingSink{}
			result, err := newRunner(t, &scriptedRunner{}, parallel, 2).RunAll(ctx, cases, sink)
			require.Error(t, err)
			assert.ErrorIs(t, err, context.Canceled)
			require.NotNil(t, result)
			assert.Less(t, len(sink.fragments), len(cases))
		})
	}
}

func TestRunAllSinkError(t *testing.T) {
	cases, _ := makeCases(t, "a_driver.c")
	sink := FragmentSinkFunc(func(types.ReportFragment) error {
		return io.ErrClosedPipe
	})

	_, err := newRunner(t, &scriptedRunner{}, false, 0).RunAll(context.Background(), cases, sink)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestNewTestRunnerRejectsNegativeConcurrency(t *testing.T) {
	_, err := NewTestRunner(Config{Toolchain: testToolchain(), Log: testLogger(), Concurrency: -1})
	assert.Error(t, err)
}

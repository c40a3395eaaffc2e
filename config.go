package bettertest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/bettertest/flags"
	"github.com/ethereum-optimism/infra/bettertest/process"
	"github.com/ethereum-optimism/infra/bettertest/toolchain"
)

// Config holds the application configuration. It is built once at startup
// and passed to every component; nothing reads ambient global state.
type Config struct {
	TestDir          string // Root of the test corpus
	OutputDir        string // Directory for artifacts and capture logs
	ReportPath       string // JUnit report location
	Toolchain        toolchain.Toolchain
	Parallel         bool          // Run test cases on a worker pool
	Concurrency      int           // Number of workers in parallel mode (0 = auto-determine)
	ShowProgress     bool          // Whether to show periodic progress updates
	ProgressInterval time.Duration // Interval between progress updates when ShowProgress is 'true'
	ShowTable        bool          // Print the per-stage failure table after the summary
	Colored          bool          // Use ANSI colors in console output
	Log              log.Logger

	// Stdout receives the human-readable results, defaults to os.Stdout
	Stdout io.Writer
	// CmdRunner starts toolchain processes, defaults to process.NewExecRunner()
	CmdRunner process.Runner
	// Terminal is restored before the process exits on a panic
	Terminal *TerminalState
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}

	chain, err := loadToolchain(ctx)
	if err != nil {
		return nil, err
	}

	testDir, err := absPath("test directory", ctx.String(flags.TestDir.Name))
	if err != nil {
		return nil, err
	}
	outputDir, err := absPath("output directory", ctx.String(flags.OutputDir.Name))
	if err != nil {
		return nil, err
	}
	reportPath, err := absPath("report", ctx.String(flags.Report.Name))
	if err != nil {
		return nil, err
	}

	return &Config{
		TestDir:          testDir,
		OutputDir:        outputDir,
		ReportPath:       reportPath,
		Toolchain:        chain,
		Parallel:         ctx.Bool(flags.Multithreading.Name),
		Concurrency:      ctx.Int(flags.Concurrency.Name),
		ShowProgress:     ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		ShowTable:        ctx.Bool(flags.ShowTable.Name),
		Log:              log,
	}, nil
}

// loadToolchain starts from the toolchain file, if any, and applies the
// toolchain flags that were set explicitly
func loadToolchain(ctx *cli.Context) (toolchain.Toolchain, error) {
	chain := toolchain.Default()
	if path := ctx.String(flags.ToolchainConfig.Name); path != "" {
		var err error
		if chain, err = toolchain.LoadFile(path); err != nil {
			return chain, err
		}
	}

	overrides := []struct {
		flag   *cli.StringFlag
		target *string
	}{
		{flags.Compiler, &chain.Compiler},
		{flags.Assembler, &chain.Assembler},
		{flags.Linker, &chain.Linker},
		{flags.Arch, &chain.Arch},
		{flags.ABI, &chain.ABI},
		{flags.Simulator, &chain.Simulator},
		{flags.BuildDir, &chain.Build.Dir},
		{flags.BuildTarget, &chain.Build.Target},
	}
	for _, o := range overrides {
		if ctx.IsSet(o.flag.Name) {
			*o.target = ctx.String(o.flag.Name)
		}
	}
	if ctx.IsSet(flags.SkipBuild.Name) {
		chain.Build.Skip = ctx.Bool(flags.SkipBuild.Name)
	}

	return chain, chain.Validate()
}

func absPath(what, p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%s is required", what)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s '%s': %w", what, p, err)
	}
	return abs, nil
}

func (c *Config) stdout() io.Writer {
	if c.Stdout == nil {
		return os.Stdout
	}
	return c.Stdout
}

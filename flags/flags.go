package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/bettertest/toolchain"
)

const EnvVarPrefix = "BETTERTEST"

var (
	TestDir = &cli.StringFlag{
		Name:    "testdir",
		Value:   "compiler_tests",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TESTDIR"),
		Usage:   "Path to the test corpus from which to discover *_driver.c tests",
	}
	OutputDir = &cli.StringFlag{
		Name:    "output-dir",
		Value:   "bin/output",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OUTPUT_DIR"),
		Usage:   "Directory receiving build artifacts and per-stage capture logs",
	}
	Report = &cli.StringFlag{
		Name:    "report",
		Value:   "bin/junit.xml",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORT"),
		Usage:   "Path of the JUnit XML report",
	}
	ToolchainConfig = &cli.StringFlag{
		Name:    "toolchain-config",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TOOLCHAIN_CONFIG"),
		Usage:   "Optional YAML file describing the toolchain. Individual flags override it.",
	}
	Compiler = &cli.StringFlag{
		Name:    "compiler",
		Value:   toolchain.DefaultCompiler,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COMPILER"),
		Usage:   "Compiler under test",
	}
	Assembler = &cli.StringFlag{
		Name:    "assembler",
		Value:   toolchain.DefaultCrossGCC,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ASSEMBLER"),
		Usage:   "Cross assembler invoked on the compiler output",
	}
	Linker = &cli.StringFlag{
		Name:    "linker",
		Value:   toolchain.DefaultCrossGCC,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LINKER"),
		Usage:   "Cross linker combining the object file with the driver",
	}
	Arch = &cli.StringFlag{
		Name:    "arch",
		Value:   toolchain.DefaultArch,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ARCH"),
		Usage:   "Target architecture passed as -march",
	}
	ABI = &cli.StringFlag{
		Name:    "abi",
		Value:   toolchain.DefaultABI,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ABI"),
		Usage:   "Target ABI passed as -mabi",
	}
	Simulator = &cli.StringFlag{
		Name:    "simulator",
		Value:   toolchain.DefaultSimulator,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SIMULATOR"),
		Usage:   "Simulator running the linked binary",
	}
	BuildDir = &cli.StringFlag{
		Name:    "build-dir",
		Value:   ".",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "BUILD_DIR"),
		Usage:   "Directory passed to make -C when building the compiler",
	}
	BuildTarget = &cli.StringFlag{
		Name:    "build-target",
		Value:   toolchain.DefaultBuildTarget,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "BUILD_TARGET"),
		Usage:   "Make target that builds the compiler",
	}
	SkipBuild = &cli.BoolFlag{
		Name:    "skip-build",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SKIP_BUILD"),
		Usage:   "Do not run make before testing; the compiler must already exist",
	}
	Multithreading = &cli.BoolFlag{
		Name:    "multithreading",
		Aliases: []string{"m"},
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MULTITHREADING"),
		Usage:   "Run test cases in parallel. Output and report order become completion order.",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENCY"),
		Usage:   "Number of parallel workers with --multithreading. 0 picks one from the CPU count.",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_PROGRESS"),
		Usage:   "Periodically log how many test cases have completed",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   30 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates when --show-progress is enabled",
	}
	ShowTable = &cli.BoolFlag{
		Name:    "show-table",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_TABLE"),
		Usage:   "Print a per-stage failure breakdown after the summary",
	}
	Healthz = &cli.BoolFlag{
		Name:    "healthz.enabled",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ENABLED"),
		Usage:   "Serve /healthz while the run is in progress",
	}
)

var optionalFlags = []cli.Flag{
	TestDir,
	OutputDir,
	Report,
	ToolchainConfig,
	Compiler,
	Assembler,
	Linker,
	Arch,
	ABI,
	Simulator,
	BuildDir,
	BuildTarget,
	SkipBuild,
	Multithreading,
	Concurrency,
	ShowProgress,
	ProgressInterval,
	ShowTable,
	Healthz,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = optionalFlags
}

func CheckRequired(ctx *cli.Context) error {
	if ctx.Int(Concurrency.Name) < 0 {
		return fmt.Errorf("flag %s must not be negative", Concurrency.Name)
	}
	if ctx.IsSet(Concurrency.Name) && !ctx.Bool(Multithreading.Name) {
		return fmt.Errorf("flag %s requires --%s", Concurrency.Name, Multithreading.Name)
	}
	return opflags.CheckRequiredXor(ctx)
}

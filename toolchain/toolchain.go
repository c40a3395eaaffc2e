// Package toolchain describes the external compiler, assembler, linker and
// simulator the harness drives, and builds the compiler under test.
package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/bettertest/process"
	"github.com/ethereum-optimism/infra/bettertest/types"
)

// Default toolchain settings, matching the RISC-V cross toolchain and the spike simulator
const (
	DefaultCompiler     = "bin/c_compiler"
	DefaultCrossGCC     = "riscv64-unknown-elf-gcc"
	DefaultArch         = "rv32imfd"
	DefaultABI          = "ilp32d"
	DefaultSimulator    = "spike"
	DefaultProxyKernel  = "pk"
	DefaultMake         = "make"
	DefaultBuildTarget  = "bin/c_compiler"
	DefaultDriverSuffix = types.DefaultDriverSuffix
)

// Toolchain holds every external program the pipeline invokes
type Toolchain struct {
	Compiler      string   `yaml:"compiler"`
	Assembler     string   `yaml:"assembler"`
	Linker        string   `yaml:"linker"`
	Arch          string   `yaml:"arch"`
	ABI           string   `yaml:"abi"`
	Simulator     string   `yaml:"simulator"`
	SimulatorArgs []string `yaml:"simulator_args"`
	DriverSuffix  string   `yaml:"driver_suffix"`

	Build BuildConfig `yaml:"build"`
}

// BuildConfig describes how to produce the compiler binary before testing
type BuildConfig struct {
	Make   string `yaml:"make"`
	Dir    string `yaml:"dir"`
	Target string `yaml:"target"`
	Skip   bool   `yaml:"skip"`
}

// Default returns the toolchain used when nothing is configured
func Default() Toolchain {
	return Toolchain{
		Compiler:      DefaultCompiler,
		Assembler:     DefaultCrossGCC,
		Linker:        DefaultCrossGCC,
		Arch:          DefaultArch,
		ABI:           DefaultABI,
		Simulator:     DefaultSimulator,
		SimulatorArgs: []string{DefaultProxyKernel},
		DriverSuffix:  DefaultDriverSuffix,
		Build: BuildConfig{
			Make:   DefaultMake,
			Dir:    ".",
			Target: DefaultBuildTarget,
		},
	}
}

// LoadFile reads a YAML toolchain file on top of the defaults.
// Keys missing from the file keep their default value.
func LoadFile(path string) (Toolchain, error) {
	tc := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return tc, types.NewConfigurationError(fmt.Sprintf("failed to read toolchain file %s", path), err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&tc); err != nil {
		return tc, types.NewConfigurationError(fmt.Sprintf("failed to parse toolchain file %s", path), err)
	}

	// Relative paths in the file are relative to the file itself
	baseDir := filepath.Dir(path)
	tc.Compiler = resolvePath(baseDir, tc.Compiler)
	if !filepath.IsAbs(tc.Build.Dir) {
		tc.Build.Dir = filepath.Join(baseDir, tc.Build.Dir)
	}

	return tc, tc.Validate()
}

// resolvePath anchors relative paths that contain a directory component.
// Bare program names are left for PATH lookup.
func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) || !strings.ContainsRune(filepath.ToSlash(p), '/') {
		return p
	}
	return filepath.Join(baseDir, p)
}

// Validate checks that every required program is named
func (t Toolchain) Validate() error {
	required := []struct{ name, value string }{
		{"compiler", t.Compiler},
		{"assembler", t.Assembler},
		{"linker", t.Linker},
		{"simulator", t.Simulator},
		{"arch", t.Arch},
		{"abi", t.ABI},
	}
	for _, r := range required {
		if r.value == "" {
			return types.NewConfigurationError(fmt.Sprintf("toolchain %s must not be empty", r.name), nil)
		}
	}
	if !t.Build.Skip && t.Build.Target == "" {
		return types.NewConfigurationError("toolchain build target must not be empty", nil)
	}
	return nil
}

// ArchFlags returns the target architecture and ABI flags shared by the assembler and linker
func (t Toolchain) ArchFlags() []string {
	return []string{"-march=" + t.Arch, "-mabi=" + t.ABI}
}

// CompileCommand returns the compiler invocation producing assembly text
func (t Toolchain) CompileCommand(tc types.TestCase) process.Command {
	return process.Command{
		Name: t.Compiler,
		Args: []string{"-S", tc.Source, "-o", tc.AssemblyPath()},
	}
}

// AssembleCommand returns the assembler invocation producing the object file
func (t Toolchain) AssembleCommand(tc types.TestCase) process.Command {
	args := append(t.ArchFlags(), "-o", tc.ObjectPath(), "-c", tc.AssemblyPath())
	return process.Command{Name: t.Assembler, Args: args}
}

// LinkCommand returns the static link of the object file with the driver
func (t Toolchain) LinkCommand(tc types.TestCase) process.Command {
	args := append(t.ArchFlags(), "-static", "-o", tc.BinaryPath(), tc.ObjectPath(), tc.Driver)
	return process.Command{Name: t.Linker, Args: args}
}

// SimulateCommand returns the simulator invocation for the linked executable
func (t Toolchain) SimulateCommand(tc types.TestCase) process.Command {
	args := append(append([]string{}, t.SimulatorArgs...), tc.BinaryPath())
	return process.Command{Name: t.Simulator, Args: args}
}

// CommandFor returns the invocation of the given stage
func (t Toolchain) CommandFor(stage types.Stage, tc types.TestCase) process.Command {
	switch stage {
	case types.StageCompile:
		return t.CompileCommand(tc)
	case types.StageAssemble:
		return t.AssembleCommand(tc)
	case types.StageLink:
		return t.LinkCommand(tc)
	default:
		return t.SimulateCommand(tc)
	}
}

// BuildCompiler runs the build system to produce the compiler binary.
// Build output is forwarded to the logger; a failed build is a configuration error.
func (t Toolchain) BuildCompiler(ctx context.Context, runner process.Runner, logger log.Logger) error {
	if t.Build.Skip {
		logger.Info("Skipping toolchain build")
		return nil
	}

	var output bytes.Buffer
	cmd := process.Command{
		Name:   t.Build.Make,
		Args:   []string{"-C", t.Build.Dir, t.Build.Target},
		Stdout: &output,
		Stderr: &output,
	}
	logger.Info("Building toolchain", "command", cmd.String())

	code, err := runner.Run(ctx, cmd)
	if err != nil {
		return types.NewConfigurationError("failed to start toolchain build", err)
	}
	if code != 0 {
		logger.Error("Toolchain build failed", "exitCode", code, "output", output.String())
		return types.NewConfigurationError(fmt.Sprintf("toolchain build %q exited with code %d", cmd.String(), code), nil)
	}
	logger.Debug("Toolchain build output", "output", output.String())
	return nil
}

// CheckCompiler verifies that the compiler binary exists and is executable
func (t Toolchain) CheckCompiler() (string, error) {
	path, err := process.LookPath(t.Compiler)
	if err != nil {
		return "", types.NewConfigurationError(fmt.Sprintf("compiler %s not found", t.Compiler), err)
	}
	return path, nil
}

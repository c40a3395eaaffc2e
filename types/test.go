// Package types contains shared types used across the bettertest harness
package types

import (
	"fmt"
	"path/filepath"
	"strings"
)

// TestStatus represents the possible states of a test case execution
type TestStatus string

const (
	TestStatusPass TestStatus = "pass"
	TestStatusFail TestStatus = "fail"
)

// DefaultDriverSuffix marks the driver file of a test case
const DefaultDriverSuffix = "_driver.c"

// TestCase is a single discovered test. It is immutable once discovered.
type TestCase struct {
	// Driver is the path to the driver source that is linked against the compiled program.
	Driver string
	// Source is the program under test, derived from the driver name.
	Source string
	// LogBase is the output path prefix for every artifact and capture file of this test.
	LogBase string
	// RelPath is the driver path relative to the corpus root.
	RelPath string
}

// NewTestCase derives a TestCase from a driver file found under corpusRoot.
// The log base mirrors the driver's location under corpusRoot into outputDir,
// stripped of its final extension.
func NewTestCase(driver, corpusRoot, outputDir, driverSuffix string) (TestCase, error) {
	if driverSuffix == "" {
		driverSuffix = DefaultDriverSuffix
	}
	base := filepath.Base(driver)
	if !strings.HasSuffix(base, driverSuffix) {
		return TestCase{}, fmt.Errorf("driver %s does not end with %q", driver, driverSuffix)
	}

	rel, err := filepath.Rel(corpusRoot, driver)
	if err != nil {
		return TestCase{}, fmt.Errorf("driver %s is not under %s: %w", driver, corpusRoot, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return TestCase{}, fmt.Errorf("driver %s is not under %s", driver, corpusRoot)
	}

	return TestCase{
		Driver:  driver,
		Source:  filepath.Join(filepath.Dir(driver), SourceName(base, driverSuffix)),
		LogBase: filepath.Join(outputDir, strings.TrimSuffix(rel, filepath.Ext(rel))),
		RelPath: rel,
	}, nil
}

// SourceName returns the program-under-test file name for a driver file name:
// the driver marker is dropped and the driver's extension is kept,
// so "x_driver.c" becomes "x.c".
func SourceName(driverBase, driverSuffix string) string {
	stem := strings.TrimSuffix(driverBase, driverSuffix)
	return stem + filepath.Ext(driverSuffix)
}

// Name identifies the test case in console output and in the report
func (tc TestCase) Name() string {
	return tc.Source
}

// AssemblyPath is where the compiler writes its assembly output
func (tc TestCase) AssemblyPath() string {
	return tc.LogBase + ".s"
}

// ObjectPath is where the assembler writes the object file
func (tc TestCase) ObjectPath() string {
	return tc.LogBase + ".o"
}

// BinaryPath is where the linker writes the executable
func (tc TestCase) BinaryPath() string {
	return tc.LogBase
}

// Artifacts lists build products that must not survive into a rerun
func (tc TestCase) Artifacts() []string {
	return []string{tc.AssemblyPath(), tc.ObjectPath(), tc.BinaryPath()}
}

// StaleFiles lists everything a previous run of this test case may have left
// behind: build artifacts, capture files and the simulation log.
func (tc TestCase) StaleFiles() []string {
	files := tc.Artifacts()
	for _, stage := range Stages {
		if stage.HasCaptureFiles() {
			captures := CaptureFilesFor(tc.LogBase, stage)
			files = append(files, captures.Stdout, captures.Stderr)
		}
	}
	return append(files, tc.SimulationLogPath())
}

// SimulationLogPath holds the simulator's output
func (tc TestCase) SimulationLogPath() string {
	return tc.LogBase + "." + StageSimulate.LogPrefix() + ".log"
}

package types

import "fmt"

// Stage is one of the four ordered toolchain steps applied to a test case
type Stage int

const (
	StageCompile Stage = iota
	StageAssemble
	StageLink
	StageSimulate
)

// Stages lists every stage in pipeline order
var Stages = []Stage{StageCompile, StageAssemble, StageLink, StageSimulate}

// String implements the Stringer interface for Stage
func (s Stage) String() string {
	switch s {
	case StageCompile:
		return "compile"
	case StageAssemble:
		return "assemble"
	case StageLink:
		return "link"
	case StageSimulate:
		return "simulate"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// LogPrefix is the capture file infix used for this stage, e.g. "<base>.assembler.stderr.log"
func (s Stage) LogPrefix() string {
	switch s {
	case StageCompile:
		return "compiler"
	case StageAssemble:
		return "assembler"
	case StageLink:
		return "linker"
	case StageSimulate:
		return "simulation"
	default:
		return s.String()
	}
}

// HasCaptureFiles reports whether the stage writes a stdout/stderr capture pair.
// The simulator only writes a single output log.
func (s Stage) HasCaptureFiles() bool {
	return s != StageSimulate
}

// CaptureFiles holds the paths of the stdout/stderr capture pair of one stage
type CaptureFiles struct {
	Stdout string
	Stderr string
}

// CaptureFilesFor returns the capture pair of a stage for the given log base
func CaptureFilesFor(logBase string, stage Stage) CaptureFiles {
	prefix := logBase + "." + stage.LogPrefix()
	return CaptureFiles{
		Stdout: prefix + ".stdout.log",
		Stderr: prefix + ".stderr.log",
	}
}

// StageOutcome records how a stage of a test case finished
type StageOutcome struct {
	Stage    Stage
	Failed   bool
	ExitCode int
	Captures CaptureFiles // zero for the simulate stage
}

// FailureMessage is the human-readable failure description pointing at the capture logs
func (o StageOutcome) FailureMessage() string {
	if !o.Failed {
		return ""
	}
	if !o.Stage.HasCaptureFiles() {
		return "Fail: simulation did not exit with exitcode 0"
	}
	return fmt.Sprintf("Fail: see %s and %s", o.Captures.Stderr, o.Captures.Stdout)
}

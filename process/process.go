// Package process spawns the external toolchain processes driven by the harness.
// It is the only place that starts child processes, so tests can replace it.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/alessio/shellescape"
)

// Command describes one external process invocation
type Command struct {
	Name   string
	Args   []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line with shell quoting, for logs and diagnostics
func (c Command) String() string {
	return shellescape.QuoteCommand(append([]string{c.Name}, c.Args...))
}

// Runner executes commands. The exit code is meaningful only when err is nil;
// err reports that the process could not be started or waited for.
type Runner interface {
	Run(ctx context.Context, cmd Command) (exitCode int, err error)
}

var _ Runner = (*ExecRunner)(nil)

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// NewExecRunner creates a Runner backed by os/exec
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run starts the command and blocks until it exits or ctx is cancelled
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (int, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdout = cmd.Stdout
	c.Stderr = cmd.Stderr

	err := c.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("failed to run %s: %w", cmd.Name, err)
}

// LookPath resolves an executable the same way ExecRunner will
func LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

package reporting

import (
	"errors"
	"fmt"
	"io"

	"github.com/ethereum-optimism/infra/bettertest/types"
)

// ConsoleWriter prints the human-readable half of each fragment as it is drained
type ConsoleWriter struct {
	out io.Writer
}

func NewConsoleWriter(out io.Writer) *ConsoleWriter {
	return &ConsoleWriter{out: out}
}

func (c *ConsoleWriter) Consume(f types.ReportFragment) error {
	_, err := fmt.Fprintln(c.out, f.Line)
	return err
}

// PrintSummary prints the final passed/total line
func (c *ConsoleWriter) PrintSummary(passed, total int) error {
	_, err := fmt.Fprintf(c.out, "\nPassed %d/%d testcases\n", passed, total)
	return err
}

// Sink is anything that consumes drained fragments
type Sink interface {
	Consume(f types.ReportFragment) error
}

// MultiSink hands each fragment to every sink in order
type MultiSink []Sink

func (m MultiSink) Consume(f types.ReportFragment) error {
	var errs []error
	for _, s := range m {
		if err := s.Consume(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

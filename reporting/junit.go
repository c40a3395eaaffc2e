package reporting

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ethereum-optimism/infra/bettertest/types"
)

const (
	JUnitHeader    = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"
	JUnitSuiteName = "Integration test"
	junitFooter    = "</testsuite>\n"
)

var (
	ErrReportNotOpen = errors.New("report is not open")
	ErrReportClosed  = errors.New("report is already closed")
)

// JUnitWriter builds the JUnit report incrementally. The header and root
// element are written by Open, each consumed fragment is appended verbatim,
// and Close writes the closing tag. Everything written is flushed
// immediately so an interrupted run leaves a readable partial document.
//
// A JUnitWriter belongs to the single goroutine draining the result channel
// and is not safe for concurrent use.
type JUnitWriter struct {
	w      *bufio.Writer
	closer io.Closer
	path   string

	opened    bool
	closed    bool
	fragments int
}

// NewJUnitWriter creates a writer on top of w. If w is an io.Closer it is
// closed by Close and Abort.
func NewJUnitWriter(w io.Writer) *JUnitWriter {
	j := &JUnitWriter{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		j.closer = c
	}
	return j
}

// CreateJUnitFile creates or truncates the report file at path
func CreateJUnitFile(path string) (*JUnitWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file %s: %w", path, err)
	}
	j := NewJUnitWriter(f)
	j.path = path
	return j, nil
}

// Path returns the file the report is written to, if any
func (j *JUnitWriter) Path() string {
	return j.path
}

// Fragments returns the number of test case elements appended so far
func (j *JUnitWriter) Fragments() int {
	return j.fragments
}

// Open writes the XML declaration and opens the root element
func (j *JUnitWriter) Open() error {
	if j.opened {
		return fmt.Errorf("report is already open")
	}
	j.opened = true
	return j.write(fmt.Sprintf("%s<testsuite name=%q>\n", JUnitHeader, JUnitSuiteName))
}

// Consume appends the structured half of a fragment to the document
func (j *JUnitWriter) Consume(f types.ReportFragment) error {
	if err := j.checkWritable(); err != nil {
		return err
	}
	if err := j.write(f.XML); err != nil {
		return fmt.Errorf("failed to append %s to report: %w", f.Name, err)
	}
	j.fragments++
	return nil
}

// Close writes the closing root tag and releases the underlying writer
func (j *JUnitWriter) Close() error {
	if err := j.checkWritable(); err != nil {
		return err
	}
	j.closed = true
	err := j.write(junitFooter)
	return errors.Join(err, j.release())
}

// Abort releases the underlying writer without closing the root element.
// The document keeps every fragment appended so far.
func (j *JUnitWriter) Abort() error {
	if j.closed {
		return nil
	}
	j.closed = true
	return errors.Join(j.w.Flush(), j.release())
}

func (j *JUnitWriter) checkWritable() error {
	if !j.opened {
		return ErrReportNotOpen
	}
	if j.closed {
		return ErrReportClosed
	}
	return nil
}

func (j *JUnitWriter) write(s string) error {
	if _, err := j.w.WriteString(s); err != nil {
		return err
	}
	return j.w.Flush()
}

func (j *JUnitWriter) release() error {
	if j.closer == nil {
		return nil
	}
	return j.closer.Close()
}

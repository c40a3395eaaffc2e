package types

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// ReportFragment is the final outcome of one test case, rendered both for the
// console and for the structured report. Exactly one is produced per TestCase.
type ReportFragment struct {
	Name    string
	Status  TestStatus
	Outcome *StageOutcome // nil when the test passed
	Line    string        // human-readable block, without trailing newline
	XML     string        // structured fragment, with trailing newline
}

// TestCaseElement is the report element written for a single test case
type TestCaseElement struct {
	XMLName xml.Name      `xml:"testcase"`
	Name    string        `xml:"name,attr"`
	Error   *ErrorElement `xml:"error,omitempty"`
}

// ErrorElement is the inner failure element of a failing test case
type ErrorElement struct {
	Type    string `xml:"type,attr"`
	Message string `xml:"message,attr"`
	Text    string `xml:",chardata"`
}

// NewPassFragment builds the fragment of a test case whose pipeline completed
func NewPassFragment(tc TestCase) ReportFragment {
	return newFragment(tc, TestStatusPass, nil)
}

// NewFailFragment builds the fragment of a test case that stopped at the given stage.
// The outcome is always recorded as failed.
func NewFailFragment(tc TestCase, outcome StageOutcome) ReportFragment {
	outcome.Failed = true
	return newFragment(tc, TestStatusFail, &outcome)
}

func newFragment(tc TestCase, status TestStatus, outcome *StageOutcome) ReportFragment {
	elem := TestCaseElement{Name: tc.Name()}
	result := "Pass"
	if outcome != nil {
		msg := outcome.FailureMessage()
		elem.Error = &ErrorElement{Type: "error", Message: msg, Text: msg}
		result = msg
	}

	return ReportFragment{
		Name:    tc.Name(),
		Status:  status,
		Outcome: outcome,
		Line:    fmt.Sprintf("%s\n\t> %s", tc.Name(), result),
		XML:     renderElement(elem),
	}
}

// renderElement marshals a testcase element. Marshalling only fails on writer
// errors, which a bytes.Buffer never returns.
func renderElement(elem TestCaseElement) string {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(elem); err != nil {
		panic(fmt.Sprintf("encoding testcase element: %v", err))
	}
	buf.WriteByte('\n')
	return buf.String()
}

// Passed reports whether the fragment describes a passing test case
func (f ReportFragment) Passed() bool {
	return f.Status == TestStatusPass
}

package types

import (
	"encoding/xml"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTestCase(t *testing.T) {
	root := filepath.FromSlash("/corpus")
	out := filepath.FromSlash("/out")

	tests := []struct {
		name            string
		driver          string
		expectedSource  string
		expectedLogBase string
		expectErr       bool
	}{
		{
			name:            "nested driver",
			driver:          "/corpus/a/x_driver.c",
			expectedSource:  "/corpus/a/x.c",
			expectedLogBase: "/out/a/x_driver",
		},
		{
			name:            "numbered test name",
			driver:          "/corpus/custom/504-dot_product_driver.c",
			expectedSource:  "/corpus/custom/504-dot_product.c",
			expectedLogBase: "/out/custom/504-dot_product_driver",
		},
		{
			name:            "driver at corpus root",
			driver:          "/corpus/y_driver.c",
			expectedSource:  "/corpus/y.c",
			expectedLogBase: "/out/y_driver",
		},
		{
			name:      "not a driver",
			driver:    "/corpus/a/x.c",
			expectErr: true,
		},
		{
			name:      "outside corpus",
			driver:    "/elsewhere/x_driver.c",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, err := NewTestCase(filepath.FromSlash(tt.driver), root, out, DefaultDriverSuffix)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.FromSlash(tt.expectedSource), tc.Source)
			assert.Equal(t, filepath.FromSlash(tt.expectedLogBase), tc.LogBase)
			assert.Equal(t, tc.Source, tc.Name())
		})
	}
}

func TestTestCaseArtifacts(t *testing.T) {
	tc := TestCase{LogBase: "out/a/x_driver"}

	assert.Equal(t, []string{"out/a/x_driver.s", "out/a/x_driver.o", "out/a/x_driver"}, tc.Artifacts())
	assert.Equal(t, "out/a/x_driver.simulation.log", tc.SimulationLogPath())

	stale := tc.StaleFiles()
	assert.Len(t, stale, 10)
	assert.Contains(t, stale, "out/a/x_driver.linker.stderr.log")
	assert.Contains(t, stale, "out/a/x_driver.simulation.log")
}

func TestCaptureFilesFor(t *testing.T) {
	files := CaptureFilesFor("out/a/y_driver", StageAssemble)

	assert.Equal(t, "out/a/y_driver.assembler.stdout.log", files.Stdout)
	assert.Equal(t, "out/a/y_driver.assembler.stderr.log", files.Stderr)
}

func TestStageOutcomeFailureMessage(t *testing.T) {
	outcome := StageOutcome{
		Stage:    StageLink,
		Failed:   true,
		Captures: CaptureFilesFor("out/x_driver", StageLink),
	}
	assert.Equal(t, "Fail: see out/x_driver.linker.stderr.log and out/x_driver.linker.stdout.log", outcome.FailureMessage())

	sim := StageOutcome{Stage: StageSimulate, Failed: true}
	assert.Equal(t, "Fail: simulation did not exit with exitcode 0", sim.FailureMessage())

	assert.Empty(t, StageOutcome{Stage: StageCompile}.FailureMessage())
}

func TestFragments(t *testing.T) {
	tc := TestCase{Source: "tests/a/x.c", LogBase: "out/a/x_driver"}

	t.Run("pass", func(t *testing.T) {
		f := NewPassFragment(tc)
		assert.True(t, f.Passed())
		assert.Nil(t, f.Outcome)
		assert.Equal(t, "tests/a/x.c\n\t> Pass", f.Line)
		assert.Equal(t, "<testcase name=\"tests/a/x.c\"></testcase>\n", f.XML)
	})

	t.Run("fail", func(t *testing.T) {
		outcome := StageOutcome{Stage: StageCompile, Failed: true, ExitCode: 1, Captures: CaptureFilesFor(tc.LogBase, StageCompile)}
		f := NewFailFragment(tc, outcome)
		assert.False(t, f.Passed())
		assert.True(t, strings.HasPrefix(f.Line, "tests/a/x.c\n\t> Fail: see out/a/x_driver.compiler.stderr.log"))

		var elem TestCaseElement
		require.NoError(t, xml.Unmarshal([]byte(f.XML), &elem))
		require.NotNil(t, elem.Error)
		assert.Equal(t, "tests/a/x.c", elem.Name)
		assert.Equal(t, "error", elem.Error.Type)
		assert.Equal(t, outcome.FailureMessage(), elem.Error.Message)
	})

	t.Run("fail marks outcome failed", func(t *testing.T) {
		f := NewFailFragment(tc, StageOutcome{Stage: StageSimulate})
		require.NotNil(t, f.Outcome)
		assert.True(t, f.Outcome.Failed)
		assert.Equal(t, "tests/a/x.c\n\t> Fail: simulation did not exit with exitcode 0", f.Line)
	})

	t.Run("names are escaped", func(t *testing.T) {
		f := NewPassFragment(TestCase{Source: `a&b/<x>.c`})
		var elem TestCaseElement
		require.NoError(t, xml.Unmarshal([]byte(f.XML), &elem))
		assert.Equal(t, `a&b/<x>.c`, elem.Name)
	})
}

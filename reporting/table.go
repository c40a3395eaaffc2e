package reporting

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/bettertest/runner"
	"github.com/ethereum-optimism/infra/bettertest/types"
)

// PrintStageTable renders a breakdown of the run by the stage each failing
// test case stopped at. Colors are only used when colored is set.
func PrintStageTable(out io.Writer, result *runner.RunnerResult, colored bool) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	mode := "sequential"
	if result.Parallel {
		mode = "parallel"
	}
	t.SetTitle(fmt.Sprintf("Test Results (%s, %s)", mode, formatDuration(result.Duration)))

	t.AppendHeader(table.Row{"Stage", "Failed", "Share"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Share", Align: text.AlignRight},
	})

	for _, stage := range types.Stages {
		failed := result.StageFailures[stage]
		failedCell := fmt.Sprintf("%d", failed)
		if colored && failed > 0 {
			failedCell = text.FgRed.Sprint(failedCell)
		}
		t.AppendRow(table.Row{stage.String(), failedCell, formatShare(failed, result.Total)})
	}

	t.AppendFooter(table.Row{"Passed", fmt.Sprintf("%d/%d", result.Passed, result.Total), getResultString(result.Status)})

	switch {
	case !colored:
		t.SetStyle(table.StyleLight)
	case result.Status == types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.Render()
}

func formatShare(n, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}

// formatDuration formats a duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func getResultString(status types.TestStatus) string {
	if status == types.TestStatusPass {
		return "✓ pass"
	}
	return "✗ fail"
}

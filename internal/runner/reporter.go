package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Reporter receives progress events from the runner.
type Reporter interface {
	ReportStart(total int)
	ReportOutcome(outcome Outcome)
	ReportRunResult(result *RunResult)
}

type noopReporter struct{}

func (noopReporter) ReportStart(int)            {}
func (noopReporter) ReportOutcome(Outcome)      {}
func (noopReporter) ReportRunResult(*RunResult) {}

// consoleReporter prints per-test lines and a final summary table. With
// reportPath set it also writes the full RunResult as JSON.
type consoleReporter struct {
	verbose    bool
	reportPath string
}

// NewConsoleReporter creates the standard CLI reporter.
func NewConsoleReporter(verbose bool, reportPath string) Reporter {
	return &consoleReporter{verbose: verbose, reportPath: reportPath}
}

func (r *consoleReporter) ReportStart(total int) {
	fmt.Printf("🧪 Running %d test(s)\n\n", total)
}

func (r *consoleReporter) ReportOutcome(outcome Outcome) {
	symbol := outcomeSymbol(outcome)
	switch {
	case outcome.Skipped:
		fmt.Printf("%s %s (skipped)\n", symbol, outcome.Name)
	case outcome.Passed:
		fmt.Printf("%s %s (%v)\n", symbol, outcome.Name, time.Duration(outcome.DurationMs)*time.Millisecond)
		if r.verbose && outcome.Attempts > 1 {
			fmt.Printf("   🔄 Attempts: %d\n", outcome.Attempts)
		}
	default:
		fmt.Printf("%s %s (%v)\n", symbol, outcome.Name, time.Duration(outcome.DurationMs)*time.Millisecond)
		fmt.Printf("   ❌ Error: %s\n", outcome.Error)
		if outcome.Attempts > 1 {
			fmt.Printf("   🔄 Attempts: %d\n", outcome.Attempts)
		}
	}
}

func (r *consoleReporter) ReportRunResult(result *RunResult) {
	fmt.Printf("\n🏁 Run Complete\n")
	fmt.Printf("⏱️  Duration: %v\n\n", time.Duration(result.DurationMs)*time.Millisecond)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("TEST"),
		text.FgHiCyan.Sprint("KIND"),
		text.FgHiCyan.Sprint("RESULT"),
		text.FgHiCyan.Sprint("ATTEMPTS"),
		text.FgHiCyan.Sprint("DURATION"),
	})
	for _, outcome := range result.Outcomes {
		t.AppendRow(table.Row{
			outcome.Name,
			outcome.Kind,
			outcomeLabel(outcome),
			outcome.Attempts,
			time.Duration(outcome.DurationMs) * time.Millisecond,
		})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("total %d", result.Total), "",
		fmt.Sprintf("✅ %d  ❌ %d  ⏭️ %d", result.Passed, result.Failed, result.Skipped),
		"", "",
	})
	t.Render()

	if result.Success() {
		fmt.Printf("\n🎉 All tests passed!\n")
	} else {
		fmt.Printf("\n💔 Some tests failed\n")
	}

	if r.reportPath != "" {
		if err := r.saveReport(result); err != nil {
			fmt.Printf("⚠️  Failed to save report: %v\n", err)
		} else {
			fmt.Printf("📄 Report saved to: %s\n", r.reportPath)
		}
	}
}

// saveReport writes the run result as indented JSON.
func (r *consoleReporter) saveReport(result *RunResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(r.reportPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

func outcomeSymbol(outcome Outcome) string {
	switch {
	case outcome.Skipped:
		return "⏭️"
	case outcome.Passed:
		return "✅"
	default:
		return "❌"
	}
}

func outcomeLabel(outcome Outcome) string {
	switch {
	case outcome.Skipped:
		return "⏭️ skipped"
	case outcome.Passed:
		return "✅ passed"
	default:
		return "❌ failed"
	}
}

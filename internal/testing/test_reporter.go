package testing

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	sfstrings "signflow/pkg/strings"
)

// testReporter implements the TestReporter interface
type testReporter struct {
	verbose         bool
	debug           bool
	reportPath      string
	out             io.Writer
	parallelMode    bool
	scenarioBuffers map[string]string
	bufferMutex     sync.RWMutex
	lastReport      string
}

// NewTestReporter creates a new test reporter
func NewTestReporter(verbose, debug bool, reportPath string) TestReporter {
	return NewWriterReporter(verbose, debug, reportPath, os.Stdout)
}

// NewWriterReporter creates a test reporter printing to out.
func NewWriterReporter(verbose, debug bool, reportPath string, out io.Writer) TestReporter {
	return &testReporter{
		verbose:         verbose,
		debug:           debug,
		reportPath:      reportPath,
		out:             out,
		scenarioBuffers: make(map[string]string),
	}
}

func (r *testReporter) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format, args...)
}

// SetParallelMode enables or disables parallel output buffering
func (r *testReporter) SetParallelMode(parallel bool) {
	r.bufferMutex.Lock()
	defer r.bufferMutex.Unlock()

	r.parallelMode = parallel
	if parallel {
		r.scenarioBuffers = make(map[string]string)
	}
}

// ReportStart is called when test execution begins
func (r *testReporter) ReportStart(config TestConfiguration) {
	r.printf("🧪 Starting signflow e2e suite\n")
	r.printf("🏗️  Target: %s\n", r.stringOrDefault(string(config.Target), string(TargetFake)))

	if r.verbose {
		r.printf("\n⚙️  Configuration:\n")
		r.printf("   • Category: %s\n", r.stringOrDefault(string(config.Category), "all"))
		r.printf("   • Concept: %s\n", r.stringOrDefault(string(config.Concept), "all"))
		r.printf("   • Scenario: %s\n", r.stringOrDefault(config.Scenario, "all"))
		r.printf("   • Tags: %s\n", r.stringOrDefault(strings.Join(config.Tags, ", "), "any"))
		r.printf("   • Parallel workers: %d\n", config.Parallel)
		r.printf("   • Fail fast: %t\n", config.FailFast)
		r.printf("   • Debug mode: %t\n", r.debug)
		r.printf("   • Timeout: %v\n", config.Timeout)
		r.printf("   • Scenarios: %s\n", r.stringOrDefault(config.ConfigPath, "built-in"))
		if config.ReportPath != "" {
			r.printf("   • Report path: %s\n", config.ReportPath)
		}
		r.printf("\n")
	}
}

// ReportScenarioStart is called when a scenario begins
func (r *testReporter) ReportScenarioStart(scenario TestScenario) {
	if r.verbose {
		r.printf("🎯 Starting scenario: %s (%s/%s)\n", scenario.Name, scenario.Category, scenario.Concept)
		if scenario.Description != "" {
			r.printf("   📝 Description: %s\n", scenario.Description)
		}
		if len(scenario.Tags) > 0 {
			r.printf("   🏷️  Tags: %s\n", strings.Join(scenario.Tags, ", "))
		}
		if len(scenario.Requires) > 0 {
			r.printf("   🔧 Requires: %s\n", strings.Join(scenario.Requires, ", "))
		}
		r.printf("   📋 Steps: %d\n", len(scenario.Steps))
		if len(scenario.Cleanup) > 0 {
			r.printf("   🧹 Cleanup steps: %d\n", len(scenario.Cleanup))
		}
		if scenario.Timeout > 0 {
			r.printf("   ⏱️  Timeout: %v\n", scenario.Timeout)
		}
		r.printf("\n")
		return
	}

	// In parallel mode the start line is printed together with the result.
	r.bufferMutex.Lock()
	defer r.bufferMutex.Unlock()
	if r.parallelMode {
		r.scenarioBuffers[scenario.Name] = fmt.Sprintf("🎯 %s... ", scenario.Name)
		return
	}
	r.printf("🎯 %s... ", scenario.Name)
}

// ReportStepResult is called when a step completes
func (r *testReporter) ReportStepResult(stepResult TestStepResult) {
	if !r.verbose {
		return
	}

	r.bufferMutex.Lock()
	defer r.bufferMutex.Unlock()

	prefix := ""
	if r.parallelMode {
		prefix = "[" + stepResult.Scenario + "] "
	}
	r.printf("   %s%s Step: %s (%v)\n", prefix, r.getResultSymbol(stepResult.Result), stepResult.Step.ID, stepResult.Duration)
	if stepResult.Step.Description != "" {
		r.printf("      📝 Description: %s\n", stepResult.Step.Description)
	}
	r.printf("      🔧 Action: %s\n", stepResult.Step.Action)

	if len(stepResult.Step.Args) > 0 {
		r.printf("      📥 Arguments:\n")
		keys := make([]string, 0, len(stepResult.Step.Args))
		for k := range stepResult.Step.Args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			r.printf("         • %s: %s\n", key, r.formatValue(stepResult.Step.Args[key]))
		}
	}
	if stepResult.Step.Timeout > 0 {
		r.printf("      ⏱️  Timeout: %v\n", stepResult.Step.Timeout)
	}
	if stepResult.Response != nil && r.debug {
		r.printf("      📤 Response:\n%s\n", r.indentText(r.formatResponse(stepResult.Response), "         "))
	}
	if r.hasExpectations(stepResult.Step.Expected) {
		exp := stepResult.Step.Expected
		r.printf("      🎯 Expectations:\n")
		r.printf("         • Success: %t\n", exp.Success)
		if len(exp.Contains) > 0 {
			r.printf("         • Contains: %s\n", strings.Join(exp.Contains, ", "))
		}
		if len(exp.ErrorContains) > 0 {
			r.printf("         • Error contains: %s\n", strings.Join(exp.ErrorContains, ", "))
		}
		if len(exp.NotContains) > 0 {
			r.printf("         • Not contains: %s\n", strings.Join(exp.NotContains, ", "))
		}
		if len(exp.JSONPath) > 0 {
			r.printf("         • JSON path checks: %d\n", len(exp.JSONPath))
		}
	}
	if stepResult.Error != "" {
		r.printf("      ❌ Error: %s\n", stepResult.Error)
	}
	r.printf("\n")
}

// ReportScenarioResult is called when a scenario completes
func (r *testReporter) ReportScenarioResult(scenarioResult TestScenarioResult) {
	symbol := r.getResultSymbol(scenarioResult.Result)

	r.bufferMutex.Lock()
	defer r.bufferMutex.Unlock()

	if !r.verbose {
		if r.parallelMode {
			start, ok := r.scenarioBuffers[scenarioResult.Scenario.Name]
			delete(r.scenarioBuffers, scenarioResult.Scenario.Name)
			if !ok {
				start = fmt.Sprintf("🎯 %s... ", scenarioResult.Scenario.Name)
			}
			r.printf("%s%s (%v)\n", start, symbol, scenarioResult.Duration.Round(time.Millisecond))
		} else {
			r.printf("%s (%v)\n", symbol, scenarioResult.Duration.Round(time.Millisecond))
		}
		if scenarioResult.Result != ResultPassed && scenarioResult.Error != "" {
			r.printf("   ↳ %s\n", scenarioResult.Error)
		}
		return
	}

	r.printf("%s Scenario completed: %s (%v)\n", symbol, scenarioResult.Scenario.Name, scenarioResult.Duration)
	if scenarioResult.Error != "" {
		r.printf("   ❌ Scenario Error: %s\n", scenarioResult.Error)
	}

	passed, failed, errored := 0, 0, 0
	for _, stepResult := range scenarioResult.StepResults {
		switch stepResult.Result {
		case ResultPassed:
			passed++
		case ResultFailed:
			failed++
		case ResultError:
			errored++
		}
	}
	r.printf("   📊 Step Summary: %d total", len(scenarioResult.StepResults))
	if passed > 0 {
		r.printf(", %d ✅ passed", passed)
	}
	if failed > 0 {
		r.printf(", %d ❌ failed", failed)
	}
	if errored > 0 {
		r.printf(", %d 💥 errors", errored)
	}
	r.printf("\n")

	if failed > 0 || errored > 0 {
		r.printf("   🔍 Failed Steps:\n")
		for _, stepResult := range scenarioResult.StepResults {
			if stepResult.Result == ResultFailed || stepResult.Result == ResultError {
				r.printf("      %s %s: %s\n", r.getResultSymbol(stepResult.Result), stepResult.Step.ID, stepResult.Error)
			}
		}
	}
	if scenarioResult.Screenshot != "" {
		r.printf("   📸 Screenshot: %s\n", scenarioResult.Screenshot)
	}
	r.printf("\n")
}

// ReportSuiteResult is called when all tests complete
func (r *testReporter) ReportSuiteResult(suiteResult TestSuiteResult) {
	r.printf("\n🏁 Test Suite Complete\n")
	r.printf("⏱️  Duration: %v\n", suiteResult.Duration.Round(time.Millisecond))
	r.printf("%s\n", r.summaryTable(suiteResult))

	successRate := 0.0
	if suiteResult.TotalScenarios > 0 {
		successRate = float64(suiteResult.PassedScenarios) / float64(suiteResult.TotalScenarios) * 100
	}
	r.printf("📏 Success Rate: %.1f%%\n", successRate)

	if suiteResult.Succeeded() {
		r.printf("\n🎉 All tests passed!\n")
	} else {
		r.printf("\n💔 Some tests failed\n")
	}

	if r.reportPath != "" {
		path, err := r.saveDetailedReport(suiteResult)
		if err != nil {
			r.printf("⚠️  Failed to save detailed report: %v\n", err)
		} else {
			r.lastReport = path
			r.printf("📄 Detailed report saved to: %s\n", path)
		}
	}
}

// summaryTable renders one row per scenario followed by the totals.
func (r *testReporter) summaryTable(suiteResult TestSuiteResult) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Scenario", "Concept", "Result", "Steps", "Duration", "Detail"})
	for _, sr := range suiteResult.ScenarioResults {
		tw.AppendRow(table.Row{
			sr.Scenario.Name,
			sr.Scenario.Concept,
			r.colorResult(sr.Result),
			len(sr.StepResults),
			sr.Duration.Round(time.Millisecond),
			sfstrings.Truncate(sr.Error, sfstrings.DefaultDetailMaxLen),
		})
	}
	tw.AppendFooter(table.Row{
		fmt.Sprintf("%d scenarios", suiteResult.TotalScenarios),
		"",
		fmt.Sprintf("%d passed", suiteResult.PassedScenarios),
		fmt.Sprintf("%d failed", suiteResult.FailedScenarios),
		fmt.Sprintf("%d errors", suiteResult.ErrorScenarios),
		fmt.Sprintf("%d skipped", suiteResult.SkippedScenarios),
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	return tw.Render()
}

func (r *testReporter) colorResult(result TestResult) string {
	label := r.getResultSymbol(result) + " " + string(result)
	switch result {
	case ResultPassed:
		return text.FgGreen.Sprint(label)
	case ResultFailed, ResultError:
		return text.FgRed.Sprint(label)
	case ResultSkipped:
		return text.FgYellow.Sprint(label)
	}
	return label
}

// saveDetailedReport saves a detailed JSON report into the report directory
// and returns its path.
func (r *testReporter) saveDetailedReport(suiteResult TestSuiteResult) (string, error) {
	if err := os.MkdirAll(r.reportPath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	stamp := suiteResult.StartTime
	if stamp.IsZero() {
		stamp = time.Now()
	}
	filename := fmt.Sprintf("signflow-test-report-%s.json", stamp.Format("20060102-150405"))
	fullPath := filepath.Join(r.reportPath, filename)

	jsonData, err := json.MarshalIndent(suiteResult, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	if err := os.WriteFile(fullPath, jsonData, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return fullPath, nil
}

// getResultSymbol returns an appropriate symbol for the test result
func (r *testReporter) getResultSymbol(result TestResult) string {
	switch result {
	case ResultPassed:
		return "✅"
	case ResultFailed:
		return "❌"
	case ResultSkipped:
		return "⏭️"
	case ResultError:
		return "💥"
	default:
		return "❓"
	}
}

// hasExpectations checks if a TestExpectation has any meaningful values set
func (r *testReporter) hasExpectations(expected TestExpectation) bool {
	return len(expected.Contains) > 0 ||
		len(expected.ErrorContains) > 0 ||
		len(expected.NotContains) > 0 ||
		len(expected.JSONPath) > 0 ||
		!expected.Success
}

// formatValue formats a value for display in arguments
func (r *testReporter) formatValue(value interface{}) string {
	if value == nil {
		return "null"
	}
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case map[string]interface{}, []interface{}:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprintf("%v", value)
}

func (r *testReporter) formatResponse(response interface{}) string {
	b, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return sfstrings.Truncate(fmt.Sprintf("%v", response), 200)
	}
	return string(b)
}

// indentText adds indentation to each line of text
func (r *testReporter) indentText(s string, indent string) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}

func (r *testReporter) stringOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

package testing

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSuite() TestSuiteResult {
	start := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	passed := TestScenarioResult{
		Scenario: TestScenario{Name: "two-role-happy-path", Concept: ConceptEndToEnd},
		Result:   ResultPassed,
		Duration: 1200 * time.Millisecond,
	}
	failed := TestScenarioResult{
		Scenario: TestScenario{Name: "wrong-verification-code", Concept: ConceptPublicSigning},
		Result:   ResultFailed,
		Error:    "step code: path 'step': expected code, got identity",
	}
	return TestSuiteResult{
		RunID:           "run-1",
		StartTime:       start,
		EndTime:         start.Add(2 * time.Second),
		Duration:        2 * time.Second,
		TotalScenarios:  2,
		PassedScenarios: 1,
		FailedScenarios: 1,
		ScenarioResults: []TestScenarioResult{passed, failed},
	}
}

func TestWriterReporter_SuiteSummary(t *testing.T) {
	var out bytes.Buffer
	dir := t.TempDir()
	r := NewWriterReporter(false, false, dir, &out)

	r.ReportSuiteResult(sampleSuite())

	text := out.String()
	// Table footers render upper-cased.
	assert.Contains(t, strings.ToLower(text), "1 passed")
	assert.Contains(t, text, "two-role-happy-path")
	assert.Contains(t, text, "wrong-verification-code")
	assert.Contains(t, text, "Success Rate: 50.0%")
	assert.Contains(t, text, "Some tests failed")

	report := filepath.Join(dir, "signflow-test-report-20260301-093000.json")
	assert.Contains(t, text, report)
	data, err := os.ReadFile(report)
	require.NoError(t, err)

	var decoded TestSuiteResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Len(t, decoded.ScenarioResults, 2)
}

func TestWriterReporter_AllPassed(t *testing.T) {
	var out bytes.Buffer
	r := NewWriterReporter(true, false, "", &out)
	r.ReportSuiteResult(TestSuiteResult{TotalScenarios: 1, PassedScenarios: 1})
	assert.Contains(t, out.String(), "All tests passed")
	assert.NotContains(t, out.String(), "Detailed report")
}

func TestStructuredReporter_TracksScenarios(t *testing.T) {
	r := NewStructuredReporter(false, false, "").(StructuredTestReporter)

	empty, err := r.GetResultsAsJSON()
	require.NoError(t, err)
	assert.Contains(t, empty, "no_results")

	a := TestScenario{Name: "a"}
	b := TestScenario{Name: "b"}
	r.ReportStart(TestConfiguration{Parallel: 2})
	r.ReportScenarioStart(a)
	r.ReportScenarioStart(b)

	// Steps of parallel scenarios share ids; each lands with its own scenario.
	r.ReportStepResult(TestStepResult{Scenario: "b", Step: TestStep{ID: "open"}, Result: ResultFailed})
	r.ReportStepResult(TestStepResult{Scenario: "a", Step: TestStep{ID: "open"}, Result: ResultPassed})
	r.ReportStepResult(TestStepResult{Scenario: "a", Step: TestStep{ID: "code"}, Result: ResultPassed})

	r.ReportScenarioResult(TestScenarioResult{Scenario: b, Result: ResultFailed})
	r.ReportScenarioResult(TestScenarioResult{Scenario: a, Result: ResultPassed})

	states := r.GetScenarioStates()
	require.Len(t, states, 2)
	assert.Len(t, states["a"].StepResults, 2)
	assert.Len(t, states["b"].StepResults, 1)
	assert.Equal(t, "completed", states["a"].Status)
	assert.Equal(t, "failed", states["b"].Status)
	assert.Equal(t, "code", states["a"].CurrentStep)
	assert.Empty(t, states["a"].FailedStep)
	assert.Equal(t, "open", states["b"].FailedStep)

	suite := r.GetCurrentSuiteResult()
	require.NotNil(t, suite)
	assert.Equal(t, 2, suite.TotalScenarios)
	assert.Equal(t, 1, suite.PassedScenarios)
	assert.Equal(t, 1, suite.FailedScenarios)
	assert.Len(t, r.GetCurrentResults(), 2)

	// A new run starts from a clean slate.
	r.ReportStart(TestConfiguration{})
	assert.Empty(t, r.GetScenarioStates())
	assert.Empty(t, r.GetCurrentResults())
}

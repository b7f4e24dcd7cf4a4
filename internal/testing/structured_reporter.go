package testing

import (
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Scenario progress as seen by MCP clients polling test_get_results.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
)

// ScenarioState is the live view of one scenario in MCP server mode.
//
// Status is running, completed, failed, skipped or error. CurrentStep is
// the last step that reported and FailedStep the first one that did not
// pass.
type ScenarioState struct {
	Scenario    TestScenario     `json:"scenario"`
	StartTime   time.Time        `json:"start_time"`
	Status      string           `json:"status"`
	CurrentStep string           `json:"current_step,omitempty"`
	FailedStep  string           `json:"failed_step,omitempty"`
	StepResults []TestStepResult `json:"step_results"`
	Screenshot  string           `json:"screenshot,omitempty"`
}

// structuredReporter records everything in memory and never writes to
// stdio, which carries the MCP protocol stream.
type structuredReporter struct {
	mu      sync.RWMutex
	verbose bool
	debug   bool
	config  TestConfiguration
	states  map[string]*ScenarioState
	order   []TestScenarioResult
	suite   *TestSuiteResult
}

// NewStructuredReporter creates the reporter used in MCP server mode.
// reportPath is accepted for symmetry with the console reporter; results
// are fetched through GetResultsAsJSON instead of a file.
func NewStructuredReporter(verbose, debug bool, reportPath string) TestReporter {
	return &structuredReporter{
		verbose: verbose,
		debug:   debug,
		states:  make(map[string]*ScenarioState),
	}
}

func (r *structuredReporter) ReportStart(config TestConfiguration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.config = config
	r.states = make(map[string]*ScenarioState)
	r.order = nil
	r.suite = &TestSuiteResult{StartTime: time.Now(), Configuration: config}
}

func (r *structuredReporter) ReportScenarioStart(scenario TestScenario) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states[scenario.Name] = &ScenarioState{
		Scenario:  scenario,
		StartTime: time.Now(),
		Status:    StatusRunning,
	}
}

// ReportStepResult files the step under its own scenario; parallel runs
// interleave steps with the same ids.
func (r *structuredReporter) ReportStepResult(stepResult TestStepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[stepResult.Scenario]
	if !ok {
		return
	}
	state.StepResults = append(state.StepResults, stepResult)
	state.CurrentStep = stepResult.Step.ID
	if stepResult.Result != ResultPassed && state.FailedStep == "" {
		state.FailedStep = stepResult.Step.ID
	}
}

func (r *structuredReporter) ReportScenarioResult(scenarioResult TestScenarioResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.states[scenarioResult.Scenario.Name]; ok {
		state.Status = statusOf(scenarioResult.Result)
		state.Screenshot = scenarioResult.Screenshot
	}

	r.order = append(r.order, scenarioResult)
	if r.suite == nil {
		return
	}
	r.suite.ScenarioResults = append(r.suite.ScenarioResults, scenarioResult)
	r.suite.TotalScenarios = len(r.suite.ScenarioResults)
	switch scenarioResult.Result {
	case ResultPassed:
		r.suite.PassedScenarios++
	case ResultFailed:
		r.suite.FailedScenarios++
	case ResultSkipped:
		r.suite.SkippedScenarios++
	case ResultError:
		r.suite.ErrorScenarios++
	}
}

// ReportSuiteResult replaces the running tally with the runner's final
// result. Scenarios that never reported, e.g. after fail-fast, are closed.
func (r *structuredReporter) ReportSuiteResult(suiteResult TestSuiteResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.suite = &suiteResult
	for _, state := range r.states {
		if state.Status == StatusRunning {
			state.Status = StatusCompleted
		}
	}
}

func (r *structuredReporter) GetCurrentSuiteResult() *TestSuiteResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.suite == nil {
		return nil
	}
	suite := *r.suite
	suite.ScenarioResults = append([]TestScenarioResult(nil), r.suite.ScenarioResults...)
	return &suite
}

func (r *structuredReporter) GetScenarioStates() map[string]*ScenarioState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]*ScenarioState, len(r.states))
	for name, state := range r.states {
		c := *state
		c.StepResults = append([]TestStepResult(nil), state.StepResults...)
		states[name] = &c
	}
	return states
}

func (r *structuredReporter) GetCurrentResults() []TestScenarioResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]TestScenarioResult(nil), r.order...)
}

// GetResultsAsJSON renders the suite result, or a placeholder before the
// first run.
func (r *structuredReporter) GetResultsAsJSON() (string, error) {
	suite := r.GetCurrentSuiteResult()
	if suite == nil {
		return `{"status": "no_results", "message": "No test results available"}`, nil
	}
	data, err := json.MarshalIndent(suite, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetParallelMode is a no-op; nothing is printed that could interleave.
func (r *structuredReporter) SetParallelMode(parallel bool) {}

func statusOf(result TestResult) string {
	if result == ResultPassed {
		return StatusCompleted
	}
	return strings.ToLower(string(result))
}

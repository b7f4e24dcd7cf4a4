package testing

import (
	"context"
	"time"
)

// TestCategory represents the category of tests to execute
type TestCategory string

const (
	// CategoryBehavioral represents BDD-style behavioral tests
	CategoryBehavioral TestCategory = "behavioral"
	// CategoryIntegration represents integration and end-to-end tests
	CategoryIntegration TestCategory = "integration"
)

// TestConcept represents the part of the signing workflow being tested
type TestConcept string

const (
	// ConceptTemplate covers template authoring and field placement
	ConceptTemplate TestConcept = "template"
	// ConceptAgreement covers creating agreements from templates
	ConceptAgreement TestConcept = "agreement"
	// ConceptSigningLink covers issuing and regenerating signing links
	ConceptSigningLink TestConcept = "signing-link"
	// ConceptPublicSigning covers the public signing flow
	ConceptPublicSigning TestConcept = "public-signing"
	// ConceptEndToEnd covers flows spanning every model
	ConceptEndToEnd TestConcept = "end-to-end"
)

// AllCategories lists the valid categories in display order.
var AllCategories = []TestCategory{CategoryBehavioral, CategoryIntegration}

// AllConcepts lists the valid concepts in display order.
var AllConcepts = []TestConcept{
	ConceptTemplate, ConceptAgreement, ConceptSigningLink, ConceptPublicSigning, ConceptEndToEnd,
}

// ParseCategory validates a category name. The empty string means all.
func ParseCategory(s string) (TestCategory, error) {
	if s == "" {
		return "", nil
	}
	for _, c := range AllCategories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", &InvalidFilterError{Kind: "category", Value: s, Valid: categoryNames()}
}

// ParseConcept validates a concept name. The empty string means all.
func ParseConcept(s string) (TestConcept, error) {
	if s == "" {
		return "", nil
	}
	for _, c := range AllConcepts {
		if string(c) == s {
			return c, nil
		}
	}
	return "", &InvalidFilterError{Kind: "concept", Value: s, Valid: conceptNames()}
}

// TestResult represents the result of test execution
type TestResult string

const (
	// ResultPassed indicates the test passed successfully
	ResultPassed TestResult = "PASSED"
	// ResultFailed indicates an observed state disagreed with the expectation
	ResultFailed TestResult = "FAILED"
	// ResultSkipped indicates the scenario was skipped, either on request or
	// because a setup precondition is unavailable
	ResultSkipped TestResult = "SKIPPED"
	// ResultError indicates the harness itself failed
	ResultError TestResult = "ERROR"
)

// ExecutionMode represents the mode of test execution
type ExecutionMode string

const (
	// ExecutionModeCLI represents command line interface execution
	ExecutionModeCLI ExecutionMode = "cli"
	// ExecutionModeMCPServer represents MCP server execution via stdio
	ExecutionModeMCPServer ExecutionMode = "mcp-server"
)

// Target selects what scenarios run against.
type Target string

const (
	// TargetFake runs every scenario against its own in-memory fake CRM.
	TargetFake Target = "fake"
	// TargetChrome drives a real deployment through Chrome.
	TargetChrome Target = "chrome"
)

// TestLogger provides centralized logging for test execution
type TestLogger interface {
	// Debug logs debug-level messages (only shown when debug=true)
	Debug(format string, args ...interface{})
	// Info logs info-level messages (shown when verbose=true or debug=true)
	Info(format string, args ...interface{})
	// Error logs error-level messages (always shown)
	Error(format string, args ...interface{})
	// IsDebugEnabled returns whether debug logging is enabled
	IsDebugEnabled() bool
	// IsVerboseEnabled returns whether verbose logging is enabled
	IsVerboseEnabled() bool
}

// TestConfiguration defines the overall test execution configuration
type TestConfiguration struct {
	// Timeout is the overall test execution timeout
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Category filter for test execution
	Category TestCategory `yaml:"category,omitempty" json:"category,omitempty"`
	// Concept filter for test execution
	Concept TestConcept `yaml:"concept,omitempty" json:"concept,omitempty"`
	// Scenario filter for specific scenario execution
	Scenario string `yaml:"scenario,omitempty" json:"scenario,omitempty"`
	// Tags keeps only scenarios carrying at least one of these tags
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	// Parallel is the number of parallel test workers
	Parallel int `yaml:"parallel" json:"parallel"`
	// FailFast stops execution on first failure
	FailFast bool `yaml:"fail_fast" json:"fail_fast"`
	// Verbose enables detailed output
	Verbose bool `yaml:"verbose" json:"verbose"`
	// Debug enables debug logging
	Debug bool `yaml:"debug" json:"debug"`
	// ConfigPath is the path to test scenario definitions; empty uses the
	// built-in scenarios
	ConfigPath string `yaml:"config_path,omitempty" json:"config_path,omitempty"`
	// ReportPath is the path to save detailed test reports
	ReportPath string `yaml:"report_path,omitempty" json:"report_path,omitempty"`
	// Target selects the fake CRM or a real deployment
	Target Target `yaml:"target,omitempty" json:"target,omitempty"`
}

// TestScenario defines a single test scenario
type TestScenario struct {
	// Name is the unique identifier for the scenario
	Name string `yaml:"name" json:"name"`
	// Category is the test category (behavioral, integration)
	Category TestCategory `yaml:"category" json:"category"`
	// Concept is the workflow part being tested
	Concept TestConcept `yaml:"concept" json:"concept"`
	// Description provides human-readable scenario description
	Description string `yaml:"description" json:"description,omitempty"`
	// Requires names setup preconditions checked before the first step. A
	// missing precondition skips the scenario.
	Requires []string `yaml:"requires,omitempty" json:"requires,omitempty"`
	// Steps define the test execution steps
	Steps []TestStep `yaml:"steps" json:"steps"`
	// Cleanup defines teardown steps
	Cleanup []TestStep `yaml:"cleanup,omitempty" json:"cleanup,omitempty"`
	// Timeout for this specific scenario
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	// Tags for additional categorization
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	// Skip indicates whether this scenario should be skipped
	Skip bool `yaml:"skip,omitempty" json:"skip,omitempty"`
	// Targets restricts the scenario to some targets; empty means all
	Targets []Target `yaml:"targets,omitempty" json:"targets,omitempty"`
}

// RunsOn reports whether the scenario applies to target.
func (s TestScenario) RunsOn(target Target) bool {
	if len(s.Targets) == 0 {
		return true
	}
	for _, t := range s.Targets {
		if t == target {
			return true
		}
	}
	return false
}

// TestStep defines a single step within a test scenario
type TestStep struct {
	// ID is the step identifier
	ID string `yaml:"id" json:"id"`
	// Description explains what the step does
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// Action is the registered action to invoke
	Action string `yaml:"action" json:"action"`
	// Args are the action arguments; string values are templates over the
	// stored results of earlier steps
	Args map[string]interface{} `yaml:"args,omitempty" json:"args,omitempty"`
	// Expected defines the expected outcome
	Expected TestExpectation `yaml:"expected" json:"expected"`
	// Store saves the action's output under this name for later steps
	Store string `yaml:"store,omitempty" json:"store,omitempty"`
	// Timeout for this specific step
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// TestExpectation defines what result is expected from a test step
type TestExpectation struct {
	// Success indicates whether the action should succeed
	Success bool `yaml:"success" json:"success"`
	// ErrorContains checks if error message contains specific text
	ErrorContains []string `yaml:"error_contains,omitempty" json:"error_contains,omitempty"`
	// Contains checks if the rendered output contains specific text
	Contains []string `yaml:"contains,omitempty" json:"contains,omitempty"`
	// NotContains checks if the rendered output does not contain specific text
	NotContains []string `yaml:"not_contains,omitempty" json:"not_contains,omitempty"`
	// JSONPath checks output fields; keys are dot-separated paths
	JSONPath map[string]interface{} `yaml:"json_path,omitempty" json:"json_path,omitempty"`
}

// TestSuiteResult represents the overall result of test suite execution
type TestSuiteResult struct {
	// RunID identifies this execution in reports
	RunID string `json:"run_id"`
	// StartTime when test execution began
	StartTime time.Time `json:"start_time"`
	// EndTime when test execution completed
	EndTime time.Time `json:"end_time"`
	// Duration of test execution
	Duration time.Duration `json:"duration"`
	// TotalScenarios is the total number of scenarios executed
	TotalScenarios int `json:"total_scenarios"`
	// PassedScenarios is the number of scenarios that passed
	PassedScenarios int `json:"passed_scenarios"`
	// FailedScenarios is the number of scenarios that failed
	FailedScenarios int `json:"failed_scenarios"`
	// SkippedScenarios is the number of scenarios that were skipped
	SkippedScenarios int `json:"skipped_scenarios"`
	// ErrorScenarios is the number of scenarios that had errors
	ErrorScenarios int `json:"error_scenarios"`
	// ScenarioResults contains individual scenario results
	ScenarioResults []TestScenarioResult `json:"scenario_results"`
	// Configuration used for this test run
	Configuration TestConfiguration `json:"configuration"`
}

// Succeeded reports whether nothing failed or errored.
func (r *TestSuiteResult) Succeeded() bool {
	return r.FailedScenarios == 0 && r.ErrorScenarios == 0
}

// TestScenarioResult represents the result of a single test scenario
type TestScenarioResult struct {
	// Scenario is the scenario that was executed
	Scenario TestScenario `json:"scenario"`
	// Result is the overall result of the scenario
	Result TestResult `json:"result"`
	// StartTime when scenario execution began
	StartTime time.Time `json:"start_time"`
	// EndTime when scenario execution completed
	EndTime time.Time `json:"end_time"`
	// Duration of scenario execution
	Duration time.Duration `json:"duration"`
	// StepResults contains individual step results
	StepResults []TestStepResult `json:"step_results"`
	// Error message if the scenario failed, errored or was skipped
	Error string `json:"error,omitempty"`
	// Screenshot is the path of a failure screenshot, if one was taken
	Screenshot string `json:"screenshot,omitempty"`
}

// TestStepResult represents the result of a single test step
type TestStepResult struct {
	// Scenario names the scenario the step belongs to
	Scenario string `json:"scenario"`
	// Step is the step that was executed
	Step TestStep `json:"step"`
	// Result is the result of the step
	Result TestResult `json:"result"`
	// StartTime when step execution began
	StartTime time.Time `json:"start_time"`
	// EndTime when step execution completed
	EndTime time.Time `json:"end_time"`
	// Duration of step execution
	Duration time.Duration `json:"duration"`
	// Response is the action output
	Response interface{} `json:"response,omitempty"`
	// Error message if the step failed
	Error string `json:"error,omitempty"`
}

// TestRunner interface defines the test execution engine
type TestRunner interface {
	// Run executes test scenarios according to the configuration
	Run(ctx context.Context, config TestConfiguration, scenarios []TestScenario) (*TestSuiteResult, error)
}

// TestScenarioLoader interface defines how test scenarios are loaded
type TestScenarioLoader interface {
	// LoadScenarios loads test scenarios from the given path; an empty path
	// loads the built-in scenarios
	LoadScenarios(configPath string) ([]TestScenario, error)
	// FilterScenarios filters scenarios based on the configuration
	FilterScenarios(scenarios []TestScenario, config TestConfiguration) []TestScenario
}

// TestReporter interface defines how test results are reported
type TestReporter interface {
	// ReportStart is called when test execution begins
	ReportStart(config TestConfiguration)
	// ReportScenarioStart is called when a scenario begins
	ReportScenarioStart(scenario TestScenario)
	// ReportStepResult is called when a step completes
	ReportStepResult(stepResult TestStepResult)
	// ReportScenarioResult is called when a scenario completes
	ReportScenarioResult(scenarioResult TestScenarioResult)
	// ReportSuiteResult is called when all tests complete
	ReportSuiteResult(suiteResult TestSuiteResult)
	// SetParallelMode enables or disables parallel output buffering
	SetParallelMode(parallel bool)
}

// StructuredTestReporter extends TestReporter with methods for structured data access
// This is used in MCP server mode where results need to be queried programmatically
type StructuredTestReporter interface {
	TestReporter
	// GetCurrentSuiteResult returns the current test suite result
	GetCurrentSuiteResult() *TestSuiteResult
	// GetScenarioStates returns the current state of all scenarios
	GetScenarioStates() map[string]*ScenarioState
	// GetCurrentResults returns the current scenario results
	GetCurrentResults() []TestScenarioResult
	// GetResultsAsJSON returns the current results as JSON
	GetResultsAsJSON() (string, error)
}

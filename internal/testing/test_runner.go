package testing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"signflow/internal/setup"
)

// testRunner implements the TestRunner interface
type testRunner struct {
	loader       TestScenarioLoader
	reporter     TestReporter
	environments EnvironmentManager
	debug        bool
	logger       TestLogger
}

// NewTestRunner creates a new test runner
func NewTestRunner(loader TestScenarioLoader, reporter TestReporter, environments EnvironmentManager, debug bool) TestRunner {
	return NewTestRunnerWithLogger(loader, reporter, environments, debug, NewStdoutLogger(false, debug))
}

// NewTestRunnerWithLogger creates a new test runner with custom logger
func NewTestRunnerWithLogger(loader TestScenarioLoader, reporter TestReporter, environments EnvironmentManager, debug bool, logger TestLogger) TestRunner {
	return &testRunner{
		loader:       loader,
		reporter:     reporter,
		environments: environments,
		debug:        debug,
		logger:       logger,
	}
}

// Run executes test scenarios according to the configuration
func (r *testRunner) Run(ctx context.Context, config TestConfiguration, scenarios []TestScenario) (*TestSuiteResult, error) {
	if config.Target == "" {
		config.Target = TargetFake
	}
	result := &TestSuiteResult{
		RunID:         uuid.NewString(),
		StartTime:     time.Now(),
		Configuration: config,
	}

	r.reporter.ReportStart(config)

	filtered := r.loader.FilterScenarios(scenarios, config)
	result.TotalScenarios = len(filtered)
	result.ScenarioResults = make([]TestScenarioResult, 0, len(filtered))

	if len(filtered) == 0 {
		result.EndTime = time.Now()
		r.reporter.ReportSuiteResult(*result)
		return result, nil
	}

	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	if config.Parallel <= 1 {
		r.reporter.SetParallelMode(false)
		for _, scenario := range filtered {
			scenarioResult := r.runScenario(ctx, scenario, config)
			result.ScenarioResults = append(result.ScenarioResults, scenarioResult)
			r.updateCounters(result, scenarioResult)
			r.reporter.ReportScenarioResult(scenarioResult)

			if config.FailFast && scenarioResult.Result.failed() {
				r.logger.Debug("🛑 Fail-fast triggered by scenario: %s\n", scenario.Name)
				break
			}
		}
	} else {
		r.reporter.SetParallelMode(true)
		result.ScenarioResults = r.runScenariosParallel(ctx, filtered, config, result)
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	r.reporter.ReportSuiteResult(*result)

	if err := ctx.Err(); err != nil && errors.Is(err, context.DeadlineExceeded) {
		return result, fmt.Errorf("test run exceeded its timeout of %s", config.Timeout)
	}
	return result, nil
}

func (t TestResult) failed() bool {
	return t == ResultFailed || t == ResultError
}

// runScenariosParallel executes scenarios on a bounded errgroup. Each
// scenario gets its own environment. With fail-fast, scenarios that have not
// started when a failure comes in are never started; running ones finish.
func (r *testRunner) runScenariosParallel(ctx context.Context, scenarios []TestScenario, config TestConfiguration, suiteResult *TestSuiteResult) []TestScenarioResult {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		stopped atomic.Bool
		slots   = make([]*TestScenarioResult, len(scenarios))
	)
	g.SetLimit(config.Parallel)

	for i, scenario := range scenarios {
		g.Go(func() error {
			if stopped.Load() {
				r.logger.Debug("⏭️  Not starting %s after fail-fast\n", scenario.Name)
				return nil
			}
			r.logger.Debug("🔄 Worker executing scenario: %s\n", scenario.Name)
			scenarioResult := r.runScenario(ctx, scenario, config)

			mu.Lock()
			slots[i] = &scenarioResult
			r.updateCounters(suiteResult, scenarioResult)
			r.reporter.ReportScenarioResult(scenarioResult)
			mu.Unlock()

			if config.FailFast && scenarioResult.Result.failed() {
				r.logger.Debug("🛑 Fail-fast triggered by scenario: %s\n", scenario.Name)
				stopped.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()

	// Reports list scenarios in load order regardless of completion order.
	results := make([]TestScenarioResult, 0, len(scenarios))
	for _, res := range slots {
		if res != nil {
			results = append(results, *res)
		}
	}
	return results
}

// runScenario executes a single test scenario in a fresh environment
func (r *testRunner) runScenario(ctx context.Context, scenario TestScenario, config TestConfiguration) (result TestScenarioResult) {
	result = TestScenarioResult{
		Scenario:    scenario,
		StartTime:   time.Now(),
		StepResults: make([]TestStepResult, 0, len(scenario.Steps)+len(scenario.Cleanup)),
		Result:      ResultPassed,
	}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}()

	r.reporter.ReportScenarioStart(scenario)
	logger := WithScenarioPrefix(r.logger, scenario.Name)

	if scenario.Skip {
		result.Result = ResultSkipped
		result.Error = "scenario is marked skip"
		return result
	}
	if !scenario.RunsOn(config.Target) {
		result.Result = ResultSkipped
		result.Error = fmt.Sprintf("scenario does not run on the %s target", config.Target)
		return result
	}

	scenarioCtx := ctx
	if scenario.Timeout > 0 {
		var cancel context.CancelFunc
		scenarioCtx, cancel = context.WithTimeout(ctx, scenario.Timeout)
		defer cancel()
	}

	env, err := r.environments.CreateEnvironment(scenarioCtx, scenario, logger)
	if err != nil {
		if setup.IsUnavailable(err) {
			result.Result = ResultSkipped
		} else {
			result.Result = ResultError
		}
		result.Error = fmt.Sprintf("failed to create environment: %v", err)
		return result
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.environments.DestroyEnvironment(cleanupCtx, env, logger); err != nil {
			logger.Debug("⚠️  Failed to destroy environment %s: %v\n", env.ID, err)
		}
	}()

	scenarioContext := NewScenarioContext()
	scenarioContext.StoreResult("env", map[string]interface{}{
		"id":           env.ID,
		"target":       string(env.Target),
		"base_url":     env.BaseURL,
		"workspace_id": env.WorkspaceID,
	})

	if res, reason := r.ensurePreconditions(scenarioCtx, env, scenario, scenarioContext, logger); res != ResultPassed {
		result.Result = res
		result.Error = reason
		return result
	}

	for _, step := range scenario.Steps {
		stepResult := r.runStep(scenarioCtx, scenario.Name, step, env, scenarioContext, logger)
		result.StepResults = append(result.StepResults, stepResult)
		r.reporter.ReportStepResult(stepResult)

		if stepResult.Result != ResultPassed {
			result.Result = stepResult.Result
			result.Error = fmt.Sprintf("step %s: %s", step.ID, stepResult.Error)
			break
		}
	}

	if result.Result.failed() && env.ScreenshotDir != "" {
		result.Screenshot = r.screenshot(env, scenario, logger)
	}

	// Cleanup steps run regardless of the outcome, on a context that
	// outlives a scenario timeout.
	if len(scenario.Cleanup) > 0 {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
		defer cancel()
		for _, cleanupStep := range scenario.Cleanup {
			stepResult := r.runStep(cleanupCtx, scenario.Name, cleanupStep, env, scenarioContext, logger)
			result.StepResults = append(result.StepResults, stepResult)
			r.reporter.ReportStepResult(stepResult)

			if stepResult.Result.failed() && result.Result == ResultPassed {
				result.Result = stepResult.Result
				result.Error = fmt.Sprintf("cleanup step %s: %s", cleanupStep.ID, stepResult.Error)
			}
		}
	}

	return result
}

// ensurePreconditions runs the setup behind every required precondition and
// stores its output. A missing precondition skips the scenario.
func (r *testRunner) ensurePreconditions(ctx context.Context, env *Environment, scenario TestScenario, sc *ScenarioContext, logger TestLogger) (TestResult, string) {
	for _, name := range scenario.Requires {
		p, ok := Preconditions[name]
		if !ok {
			return ResultError, fmt.Sprintf("unknown precondition '%s'", name)
		}
		out, err := runAction(ctx, env, p.Action, p.Args)
		if setup.IsUnavailable(err) {
			logger.Info("⏭️  Precondition %s unavailable: %v\n", name, err)
			return ResultSkipped, fmt.Sprintf("precondition %s unavailable: %v", name, err)
		}
		if err != nil {
			return ResultError, fmt.Sprintf("precondition %s failed: %v", name, err)
		}
		sc.StoreResult(p.Store, out)
		logger.Debug("✅ Precondition %s satisfied\n", name)
	}
	return ResultPassed, ""
}

// runStep executes a single test step with template variable support
func (r *testRunner) runStep(ctx context.Context, scenarioName string, step TestStep, env *Environment, scenarioContext *ScenarioContext, logger TestLogger) TestStepResult {
	result := TestStepResult{
		Scenario:  scenarioName,
		Step:      step,
		StartTime: time.Now(),
		Result:    ResultPassed,
	}
	finish := func(res TestResult, msg string) TestStepResult {
		result.Result = res
		result.Error = msg
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		return result
	}

	resolvedArgs, err := NewTemplateProcessor(scenarioContext).ResolveArgs(step.Args)
	if err != nil {
		return finish(ResultError, fmt.Sprintf("template resolution failed: %v", err))
	}

	stepCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	response, err := runAction(stepCtx, env, step.Action, resolvedArgs)
	result.Response = response

	if step.Store != "" && response != nil {
		scenarioContext.StoreResult(step.Store, response)
		logger.Debug("💾 Step %s: stored result as '%s'\n", step.ID, step.Store)
	}

	switch {
	case err != nil && setup.IsUnavailable(err):
		return finish(ResultSkipped, err.Error())
	case err != nil && isHarnessError(err):
		return finish(ResultError, err.Error())
	case err != nil && ctx.Err() != nil:
		return finish(ResultError, fmt.Sprintf("scenario interrupted: %v", err))
	}

	if problems := r.checkExpectations(step.Expected, response, err); len(problems) > 0 {
		expErr := &expectationError{problems: problems}
		logger.Debug("❌ Step %s: %v\n", step.ID, expErr)
		if err != nil && step.Expected.Success {
			return finish(ResultFailed, fmt.Sprintf("%s: %v", step.Action, err))
		}
		return finish(ResultFailed, expErr.Error())
	}

	logger.Debug("✅ Step %s passed\n", step.ID)
	return finish(ResultPassed, "")
}

// isHarnessError reports errors that come from the scenario rather than the
// system under test.
func isHarnessError(err error) bool {
	var argErr *ArgumentError
	return errors.As(err, &argErr) || strings.HasPrefix(err.Error(), "unknown action")
}

// checkExpectations returns every way the step outcome disagrees with the
// expectation.
func (r *testRunner) checkExpectations(expected TestExpectation, response interface{}, err error) []string {
	var problems []string

	if expected.Success && err != nil {
		problems = append(problems, fmt.Sprintf("expected success but got error: %v", err))
	}
	if !expected.Success && err == nil {
		problems = append(problems, "expected failure but the action succeeded")
	}

	if len(expected.ErrorContains) > 0 {
		if err == nil {
			problems = append(problems, "expected an error message but there was no error")
		} else {
			for _, want := range expected.ErrorContains {
				if !containsText(err.Error(), want) {
					problems = append(problems, fmt.Sprintf("error %q does not contain %q", err.Error(), want))
				}
			}
		}
	}

	text := renderResponse(response)
	for _, want := range expected.Contains {
		if !containsText(text, want) {
			problems = append(problems, fmt.Sprintf("response does not contain %q", want))
		}
	}
	for _, unwanted := range expected.NotContains {
		if containsText(text, unwanted) {
			problems = append(problems, fmt.Sprintf("response contains %q", unwanted))
		}
	}

	for path, want := range expected.JSONPath {
		got, ok := lookupPath(response, path)
		if !ok {
			problems = append(problems, fmt.Sprintf("path '%s' not found in response", path))
			continue
		}
		if !compareValues(got, want) {
			problems = append(problems, fmt.Sprintf("path '%s': expected %v, got %v", path, want, got))
		}
	}
	return problems
}

// renderResponse returns the text content checks search.
func renderResponse(response interface{}) string {
	if response == nil {
		return ""
	}
	if s, ok := response.(string); ok {
		return s
	}
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Sprintf("%v", response)
	}
	return string(data)
}

// containsText checks if text contains the expected substring (case-insensitive)
func containsText(text, expected string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(expected))
}

// lookupPath walks a dot-separated path through maps and, with numeric
// segments, slices: "signers.0.name".
func lookupPath(v interface{}, path string) (interface{}, bool) {
	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]interface{}:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []interface{}:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// compareValues compares two values for equality, handling type conversions
func compareValues(actual, expected interface{}) bool {
	if actual == nil || expected == nil {
		return actual == expected
	}

	actualVal := reflect.ValueOf(actual)
	expectedVal := reflect.ValueOf(expected)

	if actualVal.Kind() == reflect.Slice || actualVal.Kind() == reflect.Array {
		if expectedVal.Kind() != reflect.Slice && expectedVal.Kind() != reflect.Array {
			return false
		}
		if actualVal.Len() != expectedVal.Len() {
			return false
		}
		for i := 0; i < actualVal.Len(); i++ {
			if !compareValues(actualVal.Index(i).Interface(), expectedVal.Index(i).Interface()) {
				return false
			}
		}
		return true
	}

	// Expected maps are subsets: keys the expectation leaves out are ignored.
	if actualVal.Kind() == reflect.Map && expectedVal.Kind() == reflect.Map {
		for _, key := range expectedVal.MapKeys() {
			actualValue := actualVal.MapIndex(key)
			if !actualValue.IsValid() {
				return false
			}
			if !compareValues(actualValue.Interface(), expectedVal.MapIndex(key).Interface()) {
				return false
			}
		}
		return true
	}

	if actualVal.Type().Comparable() && expectedVal.Type().Comparable() && actual == expected {
		return true
	}

	if expectedBool, ok := expected.(bool); ok {
		switch a := actual.(type) {
		case bool:
			return a == expectedBool
		case string:
			return a == strconv.FormatBool(expectedBool)
		}
		return false
	}

	if ef, ok := toFloat(expected); ok {
		if af, ok := toFloat(actual); ok {
			return af == ef
		}
	}

	// Expected strings that look like /regex/ match by pattern.
	if es, ok := expected.(string); ok && len(es) > 2 && strings.HasPrefix(es, "/") && strings.HasSuffix(es, "/") {
		if re, err := regexp.Compile(es[1 : len(es)-1]); err == nil {
			return re.MatchString(fmt.Sprintf("%v", actual))
		}
	}

	return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// updateCounters updates the result counters based on a scenario result
func (r *testRunner) updateCounters(suiteResult *TestSuiteResult, scenarioResult TestScenarioResult) {
	switch scenarioResult.Result {
	case ResultPassed:
		suiteResult.PassedScenarios++
	case ResultFailed:
		suiteResult.FailedScenarios++
	case ResultSkipped:
		suiteResult.SkippedScenarios++
	case ResultError:
		suiteResult.ErrorScenarios++
	}
}

// screenshot saves the page of a failed scenario and returns the file path.
func (r *testRunner) screenshot(env *Environment, scenario TestScenario, logger TestLogger) string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	png, err := env.Page.Screenshot(ctx)
	if err != nil {
		logger.Debug("⚠️  Screenshot failed: %v\n", err)
		return ""
	}
	if err := os.MkdirAll(env.ScreenshotDir, 0o755); err != nil {
		logger.Debug("⚠️  Screenshot directory: %v\n", err)
		return ""
	}
	path := filepath.Join(env.ScreenshotDir, fmt.Sprintf("%s-%s.png", sanitizeName(scenario.Name), env.ID))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		logger.Debug("⚠️  Screenshot write failed: %v\n", err)
		return ""
	}
	logger.Info("📸 Screenshot saved to %s\n", path)
	return path
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizeName(s string) string {
	return strings.Trim(unsafeName.ReplaceAllString(s, "-"), "-")
}

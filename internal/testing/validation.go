package testing

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ScenarioValidationResults represents the results of validating multiple scenarios
type ScenarioValidationResults struct {
	TotalScenarios    int                        `json:"total_scenarios"`
	ValidScenarios    int                        `json:"valid_scenarios"`
	TotalErrors       int                        `json:"total_errors"`
	ScenarioResults   []ScenarioValidationResult `json:"scenario_results"`
	ValidationSummary map[string]int             `json:"validation_summary"`
}

// ScenarioValidationResult represents the validation result for a single scenario
type ScenarioValidationResult struct {
	ScenarioName string                 `json:"scenario_name"`
	Valid        bool                   `json:"valid"`
	Errors       []ValidationError      `json:"errors,omitempty"`
	StepResults  []StepValidationResult `json:"step_results"`
}

// StepValidationResult represents the validation result for a single step
type StepValidationResult struct {
	StepID string            `json:"step_id"`
	Action string            `json:"action"`
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a validation error
type ValidationError struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Validation error types.
const (
	errUnknownAction       = "unknown_action"
	errUnexpectedArgument  = "unexpected_argument"
	errMissingArgument     = "missing_required_argument"
	errUnknownPrecondition = "unknown_precondition"
	errUnknownReference    = "unknown_reference"
	errStructure           = "invalid_structure"
)

// builtinResults are stored for every scenario before its first step.
var builtinResults = []string{"env"}

var (
	templateAction = regexp.MustCompile(`\{\{(.*?)\}\}`)
	fieldReference = regexp.MustCompile(`(?:^|[\s(|])\.([A-Za-z_][A-Za-z0-9_]*)`)
)

// ValidateScenarios checks scenarios against the action catalog: every step
// names a registered action with known arguments, every required argument
// is given, and every template only references results stored earlier.
func ValidateScenarios(scenarios []TestScenario) *ScenarioValidationResults {
	results := &ScenarioValidationResults{
		TotalScenarios:    len(scenarios),
		ScenarioResults:   make([]ScenarioValidationResult, 0, len(scenarios)),
		ValidationSummary: make(map[string]int),
	}

	for _, scenario := range scenarios {
		result := validateScenario(scenario)
		results.ScenarioResults = append(results.ScenarioResults, result)
		if result.Valid {
			results.ValidScenarios++
		}
		for _, err := range result.Errors {
			results.TotalErrors++
			results.ValidationSummary[err.Type]++
		}
		for _, step := range result.StepResults {
			for _, err := range step.Errors {
				results.TotalErrors++
				results.ValidationSummary[err.Type]++
			}
		}
	}
	return results
}

func validateScenario(scenario TestScenario) ScenarioValidationResult {
	result := ScenarioValidationResult{
		ScenarioName: scenario.Name,
		Valid:        true,
		StepResults:  make([]StepValidationResult, 0, len(scenario.Steps)+len(scenario.Cleanup)),
	}

	if err := validateScenarioStructure(scenario); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Type:    errStructure,
			Message: err.Error(),
		})
	}

	stored := make(map[string]bool)
	for _, name := range builtinResults {
		stored[name] = true
	}
	for _, req := range scenario.Requires {
		p, ok := Preconditions[req]
		if !ok {
			result.Errors = append(result.Errors, ValidationError{
				Type:       errUnknownPrecondition,
				Message:    fmt.Sprintf("unknown precondition '%s'", req),
				Field:      "requires",
				Suggestion: "Use one of: " + strings.Join(preconditionNames(), ", "),
			})
			continue
		}
		stored[p.Store] = true
	}

	for _, step := range scenario.Steps {
		sr := validateStep(step, stored)
		result.StepResults = append(result.StepResults, sr)
		if step.Store != "" {
			stored[step.Store] = true
		}
	}
	for _, step := range scenario.Cleanup {
		sr := validateStep(step, stored)
		result.StepResults = append(result.StepResults, sr)
		if step.Store != "" {
			stored[step.Store] = true
		}
	}

	if len(result.Errors) > 0 {
		result.Valid = false
	}
	for _, sr := range result.StepResults {
		if !sr.Valid {
			result.Valid = false
		}
	}
	return result
}

func validateStep(step TestStep, stored map[string]bool) StepValidationResult {
	result := StepValidationResult{StepID: step.ID, Action: step.Action, Valid: true}

	action, ok := LookupAction(step.Action)
	if !ok {
		result.Errors = append(result.Errors, ValidationError{
			Type:       errUnknownAction,
			Message:    fmt.Sprintf("action '%s' is not registered", step.Action),
			Field:      "action",
			Suggestion: suggestAction(step.Action),
		})
	} else {
		result.Errors = append(result.Errors, validateArguments(action, step.Args)...)
	}
	result.Errors = append(result.Errors, validateReferences(step.Args, stored)...)

	result.Valid = len(result.Errors) == 0
	return result
}

// validateArguments checks step arguments against the action's argument specs
func validateArguments(action Action, args map[string]interface{}) []ValidationError {
	var errs []ValidationError

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := action.Arg(name); !ok {
			errs = append(errs, ValidationError{
				Type:       errUnexpectedArgument,
				Message:    fmt.Sprintf("action '%s' does not take argument '%s'", action.Name, name),
				Field:      name,
				Suggestion: suggestArgs(action),
			})
		}
	}

	for _, spec := range action.Args {
		if !spec.Required {
			continue
		}
		if v, ok := args[spec.Name]; !ok || v == nil {
			errs = append(errs, ValidationError{
				Type:    errMissingArgument,
				Message: fmt.Sprintf("action '%s' requires argument '%s'", action.Name, spec.Name),
				Field:   spec.Name,
			})
		}
	}
	return errs
}

// validateReferences checks that templates only read stored results.
func validateReferences(value interface{}, stored map[string]bool) []ValidationError {
	var errs []ValidationError
	switch v := value.(type) {
	case string:
		for _, action := range templateAction.FindAllStringSubmatch(v, -1) {
			for _, ref := range fieldReference.FindAllStringSubmatch(action[1], -1) {
				if !stored[ref[1]] {
					errs = append(errs, ValidationError{
						Type:       errUnknownReference,
						Message:    fmt.Sprintf("template %q reads '%s', which no earlier step stores", v, ref[1]),
						Suggestion: "Add store: " + ref[1] + " to an earlier step or require a precondition that stores it",
					})
				}
			}
		}
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			errs = append(errs, validateReferences(v[k], stored)...)
		}
	case []interface{}:
		for _, item := range v {
			errs = append(errs, validateReferences(item, stored)...)
		}
	}
	return errs
}

func preconditionNames() []string {
	names := make([]string, 0, len(Preconditions))
	for name := range Preconditions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// suggestAction proposes registered actions sharing the unknown action's
// prefix, e.g. every sign.* action for a misspelt sign step.
func suggestAction(name string) string {
	prefix, _, _ := strings.Cut(name, ".")
	var matches []string
	for _, a := range Actions() {
		if strings.HasPrefix(a.Name, prefix+".") {
			matches = append(matches, a.Name)
		}
	}
	if len(matches) == 0 {
		return "Run 'signflow test --list-actions' to see the registered actions"
	}
	return "Did you mean one of: " + strings.Join(matches, ", ")
}

func suggestArgs(action Action) string {
	if len(action.Args) == 0 {
		return fmt.Sprintf("'%s' takes no arguments", action.Name)
	}
	names := make([]string, 0, len(action.Args))
	for _, a := range action.Args {
		names = append(names, a.Name)
	}
	return "Valid arguments: " + strings.Join(names, ", ")
}

// FormatValidationResults formats validation results for CLI output
func FormatValidationResults(results *ScenarioValidationResults, verbose bool) string {
	var output strings.Builder

	output.WriteString("🔍 Scenario Validation Results\n")
	output.WriteString("══════════════════════════════\n")
	output.WriteString(fmt.Sprintf("Total scenarios: %d\n", results.TotalScenarios))
	output.WriteString(fmt.Sprintf("Valid scenarios: %d\n", results.ValidScenarios))
	output.WriteString(fmt.Sprintf("Invalid scenarios: %d\n", results.TotalScenarios-results.ValidScenarios))
	output.WriteString(fmt.Sprintf("Total errors: %d\n", results.TotalErrors))

	if len(results.ValidationSummary) > 0 {
		output.WriteString("\n📊 Validation Summary:\n")
		types := make([]string, 0, len(results.ValidationSummary))
		for t := range results.ValidationSummary {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			output.WriteString(fmt.Sprintf("  %s: %d\n", t, results.ValidationSummary[t]))
		}
	}

	if verbose || results.TotalErrors > 0 {
		output.WriteString("\n📋 Scenario Details:\n")
		for _, scenarioResult := range results.ScenarioResults {
			status := "✅"
			if !scenarioResult.Valid {
				status = "❌"
			}
			output.WriteString(fmt.Sprintf("  %s %s\n", status, scenarioResult.ScenarioName))

			for _, err := range scenarioResult.Errors {
				writeValidationError(&output, "    ", err)
			}
			for _, step := range scenarioResult.StepResults {
				if step.Valid {
					if verbose {
						output.WriteString(fmt.Sprintf("    ✓ %s (%s)\n", step.StepID, step.Action))
					}
					continue
				}
				output.WriteString(fmt.Sprintf("    ✗ %s (%s)\n", step.StepID, step.Action))
				for _, err := range step.Errors {
					writeValidationError(&output, "      ", err)
				}
			}
		}
	}

	return output.String()
}

func writeValidationError(out *strings.Builder, indent string, err ValidationError) {
	out.WriteString(fmt.Sprintf("%s• %s: %s\n", indent, err.Type, err.Message))
	if err.Suggestion != "" {
		out.WriteString(fmt.Sprintf("%s  💡 %s\n", indent, err.Suggestion))
	}
}

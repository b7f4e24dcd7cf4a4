package testing

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"signflow/internal/testing/scenarios"
)

// scenarioLoader implements the TestScenarioLoader interface
type scenarioLoader struct {
	debug  bool
	logger TestLogger
}

// NewTestScenarioLoader creates a new test scenario loader
func NewTestScenarioLoader(debug bool) TestScenarioLoader {
	return NewTestScenarioLoaderWithLogger(debug, NewStdoutLogger(false, debug))
}

// NewTestScenarioLoaderWithLogger creates a new test scenario loader with custom logger
func NewTestScenarioLoaderWithLogger(debug bool, logger TestLogger) TestScenarioLoader {
	return &scenarioLoader{
		debug:  debug,
		logger: logger,
	}
}

// LoadScenarios loads test scenarios from a file or directory. An empty
// path loads the scenarios built into the binary.
func (l *scenarioLoader) LoadScenarios(configPath string) ([]TestScenario, error) {
	var (
		loaded []TestScenario
		err    error
	)

	switch {
	case configPath == "":
		l.logger.Debug("📁 Loading built-in test scenarios\n")
		loaded, err = l.loadScenariosFromFS(scenarios.FS, "built-in")
	default:
		l.logger.Debug("📁 Loading test scenarios from: %s\n", configPath)
		info, statErr := os.Stat(configPath)
		if os.IsNotExist(statErr) {
			return nil, fmt.Errorf("scenario path does not exist: %s", configPath)
		}
		if statErr != nil {
			return nil, fmt.Errorf("failed to stat scenario path: %w", statErr)
		}
		if info.IsDir() {
			loaded, err = l.loadScenariosFromFS(os.DirFS(configPath), configPath)
		} else {
			var scenario TestScenario
			scenario, err = l.loadScenarioFromFile(configPath)
			loaded = []TestScenario{scenario}
		}
	}
	if err != nil {
		return nil, err
	}

	if err := checkUniqueNames(loaded); err != nil {
		return nil, err
	}

	l.logger.Debug("📋 Loaded %d test scenarios\n", len(loaded))
	for _, scenario := range loaded {
		l.logger.Debug("  • %s (%s/%s) - %d steps\n", scenario.Name, scenario.Category, scenario.Concept, len(scenario.Steps))
	}
	return loaded, nil
}

// loadScenariosFromFS loads every YAML file below the root of fsys, sorted
// by path.
func (l *scenarioLoader) loadScenariosFromFS(fsys fs.FS, origin string) ([]TestScenario, error) {
	var loaded []TestScenario

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAMLFile(p) {
			return nil
		}
		l.logger.Debug("📄 Loading scenario file: %s\n", p)

		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		scenario, err := parseScenario(content, path.Join(origin, p))
		if err != nil {
			return err
		}
		loaded = append(loaded, scenario)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load scenarios from %s: %w", origin, err)
	}
	return loaded, nil
}

// loadScenarioFromFile loads a single scenario from a YAML file
func (l *scenarioLoader) loadScenarioFromFile(filePath string) (TestScenario, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return TestScenario{}, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}
	return parseScenario(content, filePath)
}

// parseScenario decodes and structurally checks one scenario. Unknown keys
// are rejected so typos do not silently drop expectations.
func parseScenario(content []byte, origin string) (TestScenario, error) {
	var scenario TestScenario
	dec := yaml.NewDecoder(strings.NewReader(string(content)))
	dec.KnownFields(true)
	if err := dec.Decode(&scenario); err != nil {
		return scenario, fmt.Errorf("failed to parse YAML in %s: %w", origin, err)
	}
	if err := validateScenarioStructure(scenario); err != nil {
		return scenario, fmt.Errorf("invalid scenario in %s: %w", origin, err)
	}
	return scenario, nil
}

// validateScenarioStructure validates that a scenario has required fields
func validateScenarioStructure(scenario TestScenario) error {
	if scenario.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if scenario.Category == "" {
		return fmt.Errorf("scenario category is required")
	}
	if _, err := ParseCategory(string(scenario.Category)); err != nil {
		return err
	}
	if scenario.Concept == "" {
		return fmt.Errorf("scenario concept is required")
	}
	if _, err := ParseConcept(string(scenario.Concept)); err != nil {
		return err
	}
	if len(scenario.Steps) == 0 {
		return fmt.Errorf("scenario must have at least one step")
	}
	for _, t := range scenario.Targets {
		if t != TargetFake && t != TargetChrome {
			return fmt.Errorf("unknown target '%s'", t)
		}
	}

	seen := make(map[string]bool)
	for i, step := range scenario.Steps {
		if err := validateStepStructure(step, seen); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	for i, step := range scenario.Cleanup {
		if err := validateStepStructure(step, seen); err != nil {
			return fmt.Errorf("cleanup step %d: %w", i+1, err)
		}
	}
	return nil
}

// validateStepStructure validates that a step has required fields
func validateStepStructure(step TestStep, seen map[string]bool) error {
	if step.ID == "" {
		return fmt.Errorf("step id is required")
	}
	if seen[step.ID] {
		return fmt.Errorf("duplicate step id '%s'", step.ID)
	}
	seen[step.ID] = true
	if step.Action == "" {
		return fmt.Errorf("step action is required")
	}
	if step.Timeout < 0 {
		return fmt.Errorf("step timeout cannot be negative")
	}
	return nil
}

func checkUniqueNames(loaded []TestScenario) error {
	seen := make(map[string]bool, len(loaded))
	for _, s := range loaded {
		if seen[s.Name] {
			return fmt.Errorf("duplicate scenario name '%s'", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// FilterScenarios filters scenarios based on the configuration
func (l *scenarioLoader) FilterScenarios(loaded []TestScenario, config TestConfiguration) []TestScenario {
	l.logger.Debug("🔍 Filtering scenarios based on configuration\n")
	l.logger.Debug("  • Category filter: %s\n", string(config.Category))
	l.logger.Debug("  • Concept filter: %s\n", string(config.Concept))
	l.logger.Debug("  • Scenario filter: %s\n", config.Scenario)
	l.logger.Debug("  • Tags filter: %s\n", strings.Join(config.Tags, ","))

	var filtered []TestScenario
	for _, scenario := range loaded {
		if config.Category != "" && scenario.Category != config.Category {
			continue
		}
		if config.Concept != "" && scenario.Concept != config.Concept {
			continue
		}
		if config.Scenario != "" && scenario.Name != config.Scenario {
			continue
		}
		if len(config.Tags) > 0 && !hasAnyTag(scenario, config.Tags) {
			continue
		}
		filtered = append(filtered, scenario)
	}

	l.logger.Debug("📊 Filtered to %d scenarios:\n", len(filtered))
	for _, scenario := range filtered {
		l.logger.Debug("  • %s (%s/%s)\n", scenario.Name, scenario.Category, scenario.Concept)
	}
	return filtered
}

func hasAnyTag(scenario TestScenario, tags []string) bool {
	for _, t := range tags {
		if slices.Contains(scenario.Tags, t) {
			return true
		}
	}
	return false
}

// SplitTags parses a comma-separated tag list, dropping empty entries.
func SplitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// isYAMLFile checks if a file has a YAML extension
func isYAMLFile(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	return ext == ".yaml" || ext == ".yml"
}

// ScenarioNames returns the sorted scenario names, for shell completion.
func ScenarioNames(loaded []TestScenario) []string {
	names := make([]string, 0, len(loaded))
	for _, scenario := range loaded {
		names = append(names, scenario.Name)
	}
	sort.Strings(names)
	return names
}

// LoadAndFilterScenarios provides a unified way to load and filter scenarios
func LoadAndFilterScenarios(config TestConfiguration, logger TestLogger) ([]TestScenario, error) {
	if logger == nil {
		logger = NewStdoutLogger(false, config.Debug)
	}
	loader := NewTestScenarioLoaderWithLogger(config.Debug, logger)
	loaded, err := loader.LoadScenarios(config.ConfigPath)
	if err != nil {
		return nil, err
	}
	return loader.FilterScenarios(loaded, config), nil
}

// LoadScenariosForCompletion provides a simple way to load scenarios for shell completion
// This uses minimal logging to avoid interfering with completion output
func LoadScenariosForCompletion(configPath string) []TestScenario {
	loaded, err := NewTestScenarioLoaderWithLogger(false, NewSilentLogger(false, false)).LoadScenarios(configPath)
	if err != nil {
		return nil
	}
	return loaded
}

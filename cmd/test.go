package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"signflow/internal/config"
	"signflow/internal/testing"
	sfstrings "signflow/pkg/strings"
)

var (
	testTimeout           time.Duration
	testVerbose           bool
	testDebug             bool
	testCategory          string
	testConcept           string
	testScenario          string
	testTags              string
	testConfigPath        string
	testReportPath        string
	testFailFast          bool
	testParallel          int
	testTarget            string
	testFake              bool
	testWatch             bool
	testMCPServer         bool
	testValidateScenarios bool
	testListActions       bool
	testSeedContacts      bool
	testKeepTemp          bool
)

// completeCategoryFlag provides shell completion for the category flag
func completeCategoryFlag(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	names := make([]string, len(testing.AllCategories))
	for i, c := range testing.AllCategories {
		names[i] = string(c)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

// completeConceptFlag provides shell completion for the concept flag
func completeConceptFlag(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	names := make([]string, len(testing.AllConcepts))
	for i, c := range testing.AllConcepts {
		names[i] = string(c)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

// completeScenarioFlag provides shell completion for the scenario flag by loading available scenarios
func completeScenarioFlag(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return testing.ScenarioNames(testing.LoadScenariosForCompletion(testConfigPath)), cobra.ShellCompDirectiveNoFileComp
}

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run agreement e-signature scenarios",
	Long: `The test command runs YAML scenarios that author templates, create
agreements, issue signing links and sign them through the public signing
flow, checking every observable state along the way.

By default every scenario gets its own in-memory fake CRM, so the suite
needs nothing installed and scenarios run in parallel safely. With
--target=chrome the same scenarios drive a real deployment configured in
signflow.yaml or SIGNFLOW_* environment variables. Scenarios whose setup is
unavailable there (no deployment, no Chrome, missing contacts) are skipped,
never failed.

Test Categories:
- behavioral: single-model behaviour
- integration: flows spanning several models

Concepts:
- template, agreement, signing-link, public-signing, end-to-end

Example usage:
  signflow test                                  # Run the built-in scenarios
  signflow test --concept=public-signing         # Run one concept
  signflow test --scenario=two-role-happy-path   # Run one scenario
  signflow test --tags=smoke --parallel=4        # Smoke tests, four workers
  signflow test --config=./scenarios --watch     # Rerun when scenarios change
  signflow test --target=chrome --seed-contacts  # Run against a deployment
  signflow test --validate-scenarios             # Check scenarios without running
  signflow test --list-actions                   # Show the step actions
  signflow test --mcp-server                     # Serve the framework over MCP (stdio)

Exit codes: 0 when every scenario passed or was skipped, 2 when one failed
or errored, 1 when the run itself could not happen.`,
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)

	// Test execution configuration
	testCmd.Flags().DurationVar(&testTimeout, "timeout", 10*time.Minute, "Overall test execution timeout")
	testCmd.Flags().StringVar(&testTarget, "target", string(testing.TargetFake), "What scenarios run against (fake, chrome)")
	testCmd.Flags().BoolVar(&testFake, "fake", false, "Run against the built-in fake CRM (same as --target=fake)")

	// Output and debugging
	testCmd.Flags().BoolVar(&testVerbose, "verbose", false, "Enable verbose test output")
	testCmd.Flags().BoolVar(&testDebug, "debug", false, "Enable debug output, including step responses")

	// Test selection and filtering
	testCmd.Flags().StringVar(&testCategory, "category", "", "Run tests for specific category (behavioral, integration)")
	testCmd.Flags().StringVar(&testConcept, "concept", "", "Run tests for specific concept (template, agreement, signing-link, public-signing, end-to-end)")
	testCmd.Flags().StringVar(&testScenario, "scenario", "", "Run specific test scenario by name")
	testCmd.Flags().StringVar(&testTags, "tags", "", "Comma-separated tags; scenarios carrying any of them run")

	// Test configuration and reporting
	testCmd.Flags().StringVar(&testConfigPath, "config", "", "Path to a scenario file or directory (default: built-in scenarios)")
	testCmd.Flags().StringVar(&testReportPath, "report", "", "Directory to save a detailed JSON report in")

	// Test execution control
	testCmd.Flags().BoolVar(&testFailFast, "fail-fast", false, "Stop test execution on first failure")
	testCmd.Flags().IntVar(&testParallel, "parallel", 1, "Number of parallel test workers (1-20)")
	testCmd.Flags().BoolVar(&testWatch, "watch", false, "Rerun the suite whenever scenario or fixture files change")
	testCmd.Flags().BoolVar(&testSeedContacts, "seed-contacts", false, "On the chrome target, create missing signer contacts instead of skipping")
	testCmd.Flags().BoolVar(&testKeepTemp, "keep-temp", false, "Keep the fake target's scratch files for debugging")

	// Alternative modes
	testCmd.Flags().BoolVar(&testMCPServer, "mcp-server", false, "Run as MCP server (stdio transport)")
	testCmd.Flags().BoolVar(&testValidateScenarios, "validate-scenarios", false, "Validate scenarios against the action catalog without running them")
	testCmd.Flags().BoolVar(&testListActions, "list-actions", false, "List the actions scenario steps can invoke")

	_ = testCmd.RegisterFlagCompletionFunc("category", completeCategoryFlag)
	_ = testCmd.RegisterFlagCompletionFunc("concept", completeConceptFlag)
	_ = testCmd.RegisterFlagCompletionFunc("scenario", completeScenarioFlag)
	_ = testCmd.RegisterFlagCompletionFunc("target", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{string(testing.TargetFake), string(testing.TargetChrome)}, cobra.ShellCompDirectiveNoFileComp
	})

	testCmd.MarkFlagsMutuallyExclusive("fake", "target")
	for _, mode := range []string{"mcp-server", "validate-scenarios", "list-actions"} {
		testCmd.MarkFlagsMutuallyExclusive(mode, "fail-fast")
		testCmd.MarkFlagsMutuallyExclusive(mode, "parallel")
		testCmd.MarkFlagsMutuallyExclusive(mode, "watch")
		testCmd.MarkFlagsMutuallyExclusive(mode, "report")
	}
	testCmd.MarkFlagsMutuallyExclusive("mcp-server", "validate-scenarios", "list-actions")
	testCmd.MarkFlagsMutuallyExclusive("mcp-server", "scenario")

	testCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if testParallel < 1 || testParallel > 20 {
			return fmt.Errorf("parallel workers must be between 1 and 20, got %d", testParallel)
		}
		if testFake {
			testTarget = string(testing.TargetFake)
		}
		switch testing.Target(testTarget) {
		case testing.TargetFake, testing.TargetChrome:
		default:
			return fmt.Errorf("unknown target '%s', must be '%s' or '%s'", testTarget, testing.TargetFake, testing.TargetChrome)
		}
		return nil
	}
}

// buildTestConfiguration turns the flags into a run configuration.
func buildTestConfiguration() (testing.TestConfiguration, error) {
	testConfig := testing.TestConfiguration{
		Timeout:    testTimeout,
		Parallel:   testParallel,
		FailFast:   testFailFast,
		Verbose:    testVerbose,
		Debug:      testDebug,
		ConfigPath: testConfigPath,
		ReportPath: testReportPath,
		Scenario:   testScenario,
		Tags:       testing.SplitTags(testTags),
		Target:     testing.Target(testTarget),
	}

	var err error
	if testConfig.Category, err = testing.ParseCategory(testCategory); err != nil {
		return testConfig, err
	}
	if testConfig.Concept, err = testing.ParseConcept(testConcept); err != nil {
		return testConfig, err
	}
	return testConfig, testing.ValidateConfiguration(testConfig)
}

func frameworkOptions(appConfig config.Config) testing.FrameworkOptions {
	return testing.FrameworkOptions{
		Verbose:      testVerbose,
		Debug:        testDebug,
		ReportPath:   testReportPath,
		Target:       testing.Target(testTarget),
		KeepTempDir:  testKeepTemp,
		SeedContacts: testSeedContacts,
		App:          appConfig,
	}
}

func runTest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if testListActions {
		return runListActions(cmd)
	}
	if testValidateScenarios {
		return runScenarioValidation(cmd)
	}

	appConfig, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if testMCPServer {
		server, err := testing.NewMCPServer(frameworkOptions(appConfig), testConfigPath, GetVersion())
		if err != nil {
			return fmt.Errorf("failed to create test MCP server: %w", err)
		}
		return server.Serve()
	}

	testConfig, err := buildTestConfiguration()
	if err != nil {
		return err
	}

	// Setup can take a while on the chrome target (fixture PDF, config);
	// show progress unless the run prints its own.
	var s *spinner.Spinner
	if !testVerbose && !testDebug {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Preparing test environment..."
		s.Writer = cmd.ErrOrStderr()
		s.Start()
	}
	framework, err := testing.NewTestFrameworkForMode(testing.ExecutionModeCLI, frameworkOptions(appConfig))
	if s != nil {
		s.Stop()
	}
	if err != nil {
		return fmt.Errorf("failed to create test framework: %w", err)
	}
	defer framework.Cleanup()

	if !testWatch {
		ok, err := runSuite(ctx, cmd, framework, testConfig)
		if err != nil {
			return err
		}
		if !ok {
			return errTestsFailed
		}
		return nil
	}

	paths := []string{testConfigPath}
	if appConfig.Fixtures.CoordinatesPath != "" {
		paths = append(paths, appConfig.Fixtures.CoordinatesPath)
	}
	watcher := testing.NewWatcher(paths, testing.DefaultWatchDebounce, framework.Logger)
	return watcher.Run(ctx, func(ctx context.Context) {
		if _, err := runSuite(ctx, cmd, framework, testConfig); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "❌ %v\n", err)
		}
	})
}

// runSuite loads the scenarios afresh and runs them. It reports whether
// nothing failed.
func runSuite(ctx context.Context, cmd *cobra.Command, framework *testing.TestFramework, testConfig testing.TestConfiguration) (bool, error) {
	scenarios, err := framework.Loader.LoadScenarios(testConfig.ConfigPath)
	if err != nil {
		return false, fmt.Errorf("failed to load test scenarios: %w", err)
	}
	if len(scenarios) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "⚠️  No test scenarios found in %s\n", testConfig.ConfigPath)
		return true, nil
	}

	result, err := framework.Runner.Run(ctx, testConfig, scenarios)
	if err != nil && result == nil {
		return false, fmt.Errorf("test execution failed: %w", err)
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  %v\n", err)
	}
	return result.Succeeded() && err == nil, nil
}

// runScenarioValidation checks scenarios against the action catalog.
func runScenarioValidation(cmd *cobra.Command) error {
	testConfig := testing.TestConfiguration{
		ConfigPath: testConfigPath,
		Scenario:   testScenario,
		Tags:       testing.SplitTags(testTags),
		Verbose:    testVerbose,
		Debug:      testDebug,
	}
	var err error
	if testConfig.Category, err = testing.ParseCategory(testCategory); err != nil {
		return err
	}
	if testConfig.Concept, err = testing.ParseConcept(testConcept); err != nil {
		return err
	}

	scenarios, err := testing.LoadAndFilterScenarios(testConfig, testing.NewStdoutLogger(testVerbose, testDebug))
	if err != nil {
		return fmt.Errorf("failed to load test scenarios: %w", err)
	}
	if len(scenarios) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "⚠️  No test scenarios matched\n")
		return nil
	}

	results := testing.ValidateScenarios(scenarios)
	fmt.Fprint(cmd.OutOrStdout(), testing.FormatValidationResults(results, testVerbose))

	if results.TotalErrors > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\n❌ Validation failed with %d errors\n", results.TotalErrors)
		return fmt.Errorf("validation failed")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n✅ All scenarios passed validation!\n")
	return nil
}

// runListActions prints the action catalog, optionally for one concept.
func runListActions(cmd *cobra.Command) error {
	concept, err := testing.ParseConcept(testConcept)
	if err != nil {
		return err
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Action", "Concept", "Arguments", "Description"})
	for _, a := range testing.Actions() {
		if concept != "" && a.Concept != concept {
			continue
		}
		argNames := make([]string, 0, len(a.Args))
		for _, arg := range a.Args {
			name := arg.Name
			if arg.Required {
				name += "*"
			}
			argNames = append(argNames, name)
		}
		tw.AppendRow(table.Row{a.Name, a.Concept, strings.Join(argNames, ", "), sfstrings.Truncate(a.Description, sfstrings.DefaultDetailMaxLen)})
	}
	tw.SetCaption("* required")
	tw.Render()
	return nil
}

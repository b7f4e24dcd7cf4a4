package testing

import (
	"fmt"
	"time"

	"signflow/internal/config"
)

// DefaultTestConfiguration returns a default test configuration
func DefaultTestConfiguration() TestConfiguration {
	return TestConfiguration{
		Timeout:  10 * time.Minute,
		Parallel: 1,
		Target:   TargetFake,
	}
}

// FrameworkOptions configure NewTestFrameworkForMode.
type FrameworkOptions struct {
	Verbose    bool
	Debug      bool
	ReportPath string
	Target     Target
	// KeepTempDir keeps the fake target's scratch files for inspection.
	KeepTempDir bool
	// SeedContacts lets chrome runs create missing signer contacts.
	SeedContacts bool
	// App configures the chrome target.
	App config.Config
}

// TestFramework holds all components needed for testing
type TestFramework struct {
	Runner       TestRunner
	Loader       TestScenarioLoader
	Reporter     TestReporter
	Environments EnvironmentManager
	Logger       TestLogger

	cleanup func() error
}

// NewTestFramework creates a CLI test framework against the fake target
func NewTestFramework(verbose, debug bool, reportPath string) (*TestFramework, error) {
	return NewTestFrameworkForMode(ExecutionModeCLI, FrameworkOptions{Verbose: verbose, Debug: debug, ReportPath: reportPath})
}

// NewTestFrameworkForMode creates a fully configured test framework for the specified execution mode
//
// Execution Modes:
//   - ExecutionModeCLI: Uses standard stdio output for reporting
//   - ExecutionModeMCPServer: Uses structured reporting that captures data without stdio output
//     to avoid contaminating the MCP protocol stream. Results can be retrieved programmatically.
func NewTestFrameworkForMode(mode ExecutionMode, opts FrameworkOptions) (*TestFramework, error) {
	var (
		logger   TestLogger
		reporter TestReporter
	)
	switch mode {
	case ExecutionModeMCPServer:
		logger = NewSilentLogger(opts.Verbose, opts.Debug)
		reporter = NewStructuredReporter(opts.Verbose, opts.Debug, opts.ReportPath)
	default:
		logger = NewStdoutLogger(opts.Verbose, opts.Debug)
		reporter = NewTestReporter(opts.Verbose, opts.Debug, opts.ReportPath)
	}

	tf := &TestFramework{
		Loader:   NewTestScenarioLoaderWithLogger(opts.Debug, logger),
		Reporter: reporter,
		Logger:   logger,
	}

	switch opts.Target {
	case TargetFake, "":
		fake, err := NewFakeEnvironmentManager(opts.KeepTempDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create environment manager: %w", err)
		}
		tf.Environments = fake
		tf.cleanup = fake.Cleanup
	case TargetChrome:
		tf.Environments = NewChromeEnvironmentManager(opts.App, opts.SeedContacts)
	default:
		return nil, fmt.Errorf("unknown target '%s', must be '%s' or '%s'", opts.Target, TargetFake, TargetChrome)
	}

	tf.Runner = NewTestRunnerWithLogger(tf.Loader, reporter, tf.Environments, opts.Debug, logger)
	return tf, nil
}

// Cleanup cleans up resources used by the test framework
func (tf *TestFramework) Cleanup() error {
	if tf.cleanup == nil {
		return nil
	}
	return tf.cleanup()
}

// ValidateConfiguration validates a test configuration
func ValidateConfiguration(config TestConfiguration) error {
	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if config.Parallel < 1 {
		return fmt.Errorf("parallel workers must be at least 1")
	}
	switch config.Target {
	case "", TargetFake, TargetChrome:
	default:
		return fmt.Errorf("unknown target '%s'", config.Target)
	}
	return nil
}

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"signflow/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeTestsFailed indicates the suite ran but a scenario failed or errored.
	ExitCodeTestsFailed = 2
)

// errTestsFailed is returned by commands whose run completed with failing
// scenarios. It maps to ExitCodeTestsFailed.
var errTestsFailed = errors.New("one or more scenarios failed")

var (
	logLevel   string
	logFormat  string
	configFile string
)

// rootCmd represents the base command for the signflow application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "signflow",
	Short: "End-to-end tests for CRM agreement e-signatures",
	Long: `signflow drives the template editor, agreement form and public signing
flow of a CRM deployment the way a user would, and checks that every
field lands, binds and signs where the reference document says it should.

Scenarios run against a built-in fake CRM by default, or against a real
deployment in Chrome with --target=chrome.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "signflow version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	if errors.Is(err, errTestsFailed) {
		return ExitCodeTestsFailed
	}
	return ExitCodeError
}

// initLogging installs the slog handler selected by the persistent flags.
// Logs go to stderr so reports on stdout stay parseable.
func initLogging() error {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	switch logFormat {
	case "", "text":
		logging.InitForCLI(level, os.Stderr)
	case "json":
		logging.InitForJSON(level, os.Stderr)
	default:
		return fmt.Errorf("unknown log format '%s', must be 'text' or 'json'", logFormat)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config-file", "", "Path to signflow.yaml (default: ./signflow.yaml)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newFixturesCmd())
	rootCmd.AddCommand(newFakeCRMCmd())
}

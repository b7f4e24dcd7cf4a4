//go:build e2e

package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"signflow/internal/config"
	signtest "signflow/internal/testing"
)

func TestBuiltinScenariosOnChrome(t *testing.T) {
	cfg, err := config.LoadConfig(os.Getenv("SIGNFLOW_CONFIG"))
	require.NoError(t, err)
	if !cfg.TargetConfigured() {
		t.Skip("no deployment configured; set SIGNFLOW_BASE_URL, SIGNFLOW_WORKSPACE_ID and SIGNFLOW_TOKEN")
	}

	framework, err := signtest.NewTestFrameworkForMode(signtest.ExecutionModeCLI, signtest.FrameworkOptions{
		Verbose:      testing.Verbose(),
		Target:       signtest.TargetChrome,
		SeedContacts: true,
		App:          cfg,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = framework.Cleanup() })

	scenarios, err := framework.Loader.LoadScenarios("")
	require.NoError(t, err)

	runConfig := signtest.DefaultTestConfiguration()
	runConfig.Target = signtest.TargetChrome
	runConfig.Timeout = 20 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), runConfig.Timeout)
	defer cancel()

	result, err := framework.Runner.Run(ctx, runConfig, framework.Loader.FilterScenarios(scenarios, runConfig))
	require.NoError(t, err)

	for _, r := range result.ScenarioResults {
		switch r.Result {
		case signtest.ResultFailed, signtest.ResultError:
			t.Errorf("%s: %s: %s", r.Scenario.Name, r.Result, r.Error)
		case signtest.ResultSkipped:
			t.Logf("%s skipped: %s", r.Scenario.Name, r.Error)
		}
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, env map[string]string) {
	t.Helper()
	original := lookupEnv
	lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	t.Cleanup(func() { lookupEnv = original })
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_DefaultOnly(t *testing.T) {
	withEnv(t, nil)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), cfg)
	assert.False(t, cfg.TargetConfigured())
}

func TestLoadConfig_FileOverride(t *testing.T) {
	withEnv(t, nil)
	path := writeConfig(t, `
app:
  baseURL: https://crm.example.com
  workspaceID: ws_1
auth:
  token: secret
timeouts:
  element: 5s
placement:
  fineSteps: 30
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://crm.example.com", cfg.App.BaseURL)
	assert.Equal(t, "https://crm.example.com", cfg.EffectiveAPIURL())
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Element)
	assert.Equal(t, 45*time.Second, cfg.Timeouts.PageLoad, "unset values keep defaults")
	assert.Equal(t, 30, cfg.Placement.FineSteps)
	assert.True(t, cfg.TargetConfigured())
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	withEnv(t, map[string]string{
		"SIGNFLOW_BASE_URL":     "https://env.example.com",
		"SIGNFLOW_API_URL":      "https://api.example.com",
		"SIGNFLOW_WORKSPACE_ID": "ws_env",
		"SIGNFLOW_TOKEN":        "tok",
		"SIGNFLOW_HEADLESS":     "false",
	})
	path := writeConfig(t, "app:\n  baseURL: https://file.example.com\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.App.BaseURL)
	assert.Equal(t, "https://api.example.com", cfg.EffectiveAPIURL())
	assert.Equal(t, "ws_env", cfg.App.WorkspaceID)
	assert.False(t, cfg.Browser.Headless)
}

func TestLoadConfig_InvalidHeadlessEnv(t *testing.T) {
	withEnv(t, map[string]string{"SIGNFLOW_HEADLESS": "maybe"})

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	var cfgErr ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "SIGNFLOW_HEADLESS", cfgErr.Field)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	withEnv(t, nil)
	path := writeConfig(t, "app: [unterminated")

	_, err := LoadConfig(path)
	require.Error(t, err)
	var cfgErr ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrorTypeParse, cfgErr.ErrorType)
}

func TestLoadConfig_ValidationErrorsCollected(t *testing.T) {
	withEnv(t, nil)
	path := writeConfig(t, `
app:
  baseURL: not-a-url
browser:
  windowWidth: -1
placement:
  coarseSteps: 5
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	var coll *ConfigurationErrorCollection
	require.ErrorAs(t, err, &coll)
	assert.Equal(t, 3, coll.Count())
	assert.Contains(t, coll.GetDetailedReport(), "app.baseURL")
	assert.Contains(t, coll.GetDetailedReport(), "placement.coarseSteps")
	assert.Contains(t, err.Error(), "3 configuration errors")
}

func TestValidate_FineStepsNotBelowCoarse(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Placement.FineSteps = 12

	errs := Validate(cfg, "test")
	require.True(t, errs.HasErrors())
	assert.Equal(t, "placement.fineSteps", errs.Errors[0].Field)
}

func TestConfigurationError_Formatting(t *testing.T) {
	e := NewConfigurationError("signflow.yaml", "timeouts.element", ErrorTypeValidation, "timeout must be positive")
	e.Suggestions = []string{"use a Go duration such as 10s"}

	assert.Equal(t, "[signflow.yaml/validation] timeouts.element: timeout must be positive", e.Error())
	assert.Contains(t, e.DetailedError(), "Suggestions:")
	assert.Contains(t, e.DetailedError(), "use a Go duration such as 10s")

	var empty ConfigurationErrorCollection
	assert.Equal(t, "no configuration errors", empty.Error())
}

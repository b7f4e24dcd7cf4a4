package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"signflow/pkg/logging"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when no path is given.
const DefaultConfigFile = "signflow.yaml"

// lookupEnv is swapped in tests.
var lookupEnv = os.LookupEnv

// LoadConfig loads configuration from path over the defaults, applies
// environment overrides and validates the result. A missing file is not an
// error.
func LoadConfig(path string) (Config, error) {
	config := GetDefaultConfig()
	if path == "" {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("ConfigLoader", "No config file found at %s, using defaults", path)
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, NewConfigurationError(path, "", ErrorTypeParse, err.Error())
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", path)
	}

	if err := applyEnv(&config); err != nil {
		return Config{}, err
	}

	if errs := Validate(config, path); errs.HasErrors() {
		return Config{}, errs
	}
	return config, nil
}

func applyEnv(c *Config) error {
	strVars := map[string]*string{
		"SIGNFLOW_BASE_URL":         &c.App.BaseURL,
		"SIGNFLOW_API_URL":          &c.App.APIURL,
		"SIGNFLOW_WORKSPACE_ID":     &c.App.WorkspaceID,
		"SIGNFLOW_TOKEN":            &c.Auth.Token,
		"SIGNFLOW_CHROME_PATH":      &c.Browser.ExecPath,
		"SIGNFLOW_DOCUMENT_PATH":    &c.Fixtures.DocumentPath,
		"SIGNFLOW_COORDINATES_PATH": &c.Fixtures.CoordinatesPath,
		"SIGNFLOW_CACHE_PATH":       &c.Fixtures.CachePath,
		"SIGNFLOW_SCREENSHOT_DIR":   &c.Browser.ScreenshotDir,
		"SIGNFLOW_AUTH_COOKIE_NAME": &c.Auth.CookieName,
	}
	for name, target := range strVars {
		if v, ok := lookupEnv(name); ok && v != "" {
			*target = v
		}
	}

	if v, ok := lookupEnv("SIGNFLOW_HEADLESS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return NewConfigurationError("env", "SIGNFLOW_HEADLESS", ErrorTypeValidation,
				fmt.Sprintf("invalid boolean %q", v))
		}
		c.Browser.Headless = b
	}
	return nil
}

package config

import "time"

const (
	// DefaultCookieName is the session cookie the web app reads the token from.
	DefaultCookieName = "session"

	// MinimumMotionSteps is the lower bound on interpolated drag steps.
	MinimumMotionSteps = 10
)

// GetDefaultConfig returns the built-in configuration.
func GetDefaultConfig() Config {
	return Config{
		Auth: AuthConfig{
			CookieName: DefaultCookieName,
		},
		Browser: BrowserConfig{
			Headless:     true,
			WindowWidth:  1440,
			WindowHeight: 1000,
		},
		Timeouts: TimeoutConfig{
			Micro:           300 * time.Millisecond,
			Fallback:        2 * time.Second,
			Element:         10 * time.Second,
			PageLoad:        45 * time.Second,
			TemplateApplied: 30 * time.Second,
		},
		Placement: PlacementConfig{
			SmallFieldThreshold: 30,
			CoarseSteps:         15,
			FineSteps:           25,
			StepDelay:           10 * time.Millisecond,
			FineStepDelay:       20 * time.Millisecond,
			PrecisionCorrection: true,
			SettleDelay:         300 * time.Millisecond,
		},
		Fixtures: FixtureConfig{
			DocumentPath: "testdata/reference.pdf",
			CachePath:    ".signflow/setup-cache.json",
		},
	}
}

package config

import "time"

// Config is the top-level configuration structure for signflow.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Auth      AuthConfig      `yaml:"auth"`
	Browser   BrowserConfig   `yaml:"browser"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Placement PlacementConfig `yaml:"placement"`
	Fixtures  FixtureConfig   `yaml:"fixtures"`
}

// AppConfig locates the CRM deployment under test.
type AppConfig struct {
	BaseURL     string `yaml:"baseURL,omitempty"`     // UI origin, e.g. https://crm.example.com
	APIURL      string `yaml:"apiURL,omitempty"`      // REST origin (default: BaseURL)
	WorkspaceID string `yaml:"workspaceID,omitempty"` // Workspace all /api/ws/{wsId} calls are scoped to
}

// AuthConfig holds the credentials used for both the REST client and the
// browser session.
type AuthConfig struct {
	Token      string `yaml:"token,omitempty"`
	CookieName string `yaml:"cookieName,omitempty"` // Session cookie carrying Token in the browser (default: session)
}

// BrowserConfig configures the chromedp allocator.
type BrowserConfig struct {
	Headless      bool   `yaml:"headless"`
	WindowWidth   int    `yaml:"windowWidth,omitempty"`
	WindowHeight  int    `yaml:"windowHeight,omitempty"`
	ExecPath      string `yaml:"execPath,omitempty"`
	ScreenshotDir string `yaml:"screenshotDir,omitempty"` // Failure screenshots are written here when set
}

// TimeoutConfig holds the per-wait bounds. Every wait fails on its own
// timeout instead of hanging.
type TimeoutConfig struct {
	Micro           time.Duration `yaml:"micro,omitempty"`           // Settle after actions with no observable completion
	Fallback        time.Duration `yaml:"fallback,omitempty"`        // Budget for each fallback locator
	Element         time.Duration `yaml:"element,omitempty"`         // Element visibility
	PageLoad        time.Duration `yaml:"pageLoad,omitempty"`        // Navigation and URL changes
	TemplateApplied time.Duration `yaml:"templateApplied,omitempty"` // "Template applied" acknowledgment
}

// PlacementConfig tunes the drag strategy of the field placement driver.
type PlacementConfig struct {
	SmallFieldThreshold float64       `yaml:"smallFieldThreshold,omitempty"` // Document units
	CoarseSteps         int           `yaml:"coarseSteps,omitempty"`
	FineSteps           int           `yaml:"fineSteps,omitempty"`
	StepDelay           time.Duration `yaml:"stepDelay,omitempty"`
	FineStepDelay       time.Duration `yaml:"fineStepDelay,omitempty"`
	PrecisionCorrection bool          `yaml:"precisionCorrection"`
	SettleDelay         time.Duration `yaml:"settleDelay,omitempty"`
}

// FixtureConfig locates the reference document, its coordinate map and the
// setup cache.
type FixtureConfig struct {
	DocumentPath    string `yaml:"documentPath,omitempty"`
	CoordinatesPath string `yaml:"coordinatesPath,omitempty"` // Empty uses the embedded fixture
	CachePath       string `yaml:"cachePath,omitempty"`
}

// TargetConfigured reports whether enough is configured to talk to a real
// deployment. Suites skip rather than fail when it is false.
func (c Config) TargetConfigured() bool {
	return c.App.BaseURL != "" && c.App.WorkspaceID != "" && c.Auth.Token != ""
}

// EffectiveAPIURL returns the REST origin, falling back to the UI origin.
func (c Config) EffectiveAPIURL() string {
	if c.App.APIURL != "" {
		return c.App.APIURL
	}
	return c.App.BaseURL
}

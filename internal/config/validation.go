package config

import (
	"fmt"
	"net/url"
	"time"
)

// Validate checks a fully merged configuration. source names where the
// values came from and is only used for reporting.
func Validate(c Config, source string) *ConfigurationErrorCollection {
	errs := &ConfigurationErrorCollection{}
	add := func(field, msg string, suggestions ...string) {
		e := NewConfigurationError(source, field, ErrorTypeValidation, msg)
		e.Suggestions = suggestions
		errs.Add(e)
	}

	for field, raw := range map[string]string{"app.baseURL": c.App.BaseURL, "app.apiURL": c.App.APIURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			add(field, fmt.Sprintf("invalid URL %q", raw), "use an absolute URL such as https://crm.example.com")
		}
	}

	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		add("browser.window", fmt.Sprintf("window size must be positive, got %dx%d",
			c.Browser.WindowWidth, c.Browser.WindowHeight))
	}

	for field, d := range map[string]time.Duration{
		"timeouts.micro":           c.Timeouts.Micro,
		"timeouts.fallback":        c.Timeouts.Fallback,
		"timeouts.element":         c.Timeouts.Element,
		"timeouts.pageLoad":        c.Timeouts.PageLoad,
		"timeouts.templateApplied": c.Timeouts.TemplateApplied,
	} {
		if d <= 0 {
			add(field, "timeout must be positive")
		}
	}

	if c.Placement.SmallFieldThreshold <= 0 {
		add("placement.smallFieldThreshold", "threshold must be positive")
	}
	if c.Placement.CoarseSteps < MinimumMotionSteps {
		add("placement.coarseSteps", fmt.Sprintf("at least %d steps required, got %d", MinimumMotionSteps, c.Placement.CoarseSteps))
	}
	if c.Placement.FineSteps < c.Placement.CoarseSteps {
		add("placement.fineSteps", "fine motion must not use fewer steps than coarse motion")
	}

	if c.Fixtures.CachePath == "" {
		add("fixtures.cachePath", "cache path is required")
	}

	return errs
}

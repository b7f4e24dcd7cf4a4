package mock

import (
	"time"

	"signflow/internal/browser"
	"signflow/internal/placement"
)

// Timeouts returns wait bounds sized for the simulated UI, which settles
// within a few render ticks.
func Timeouts() browser.Timeouts {
	return browser.Timeouts{
		Micro:           20 * time.Millisecond,
		Fallback:        100 * time.Millisecond,
		Element:         2 * time.Second,
		PageLoad:        3 * time.Second,
		TemplateApplied: 3 * time.Second,
	}
}

// Strategy returns a placement strategy without step delays. Drag precision
// is still exercised because the simulated editor counts pointer steps, not
// time.
func Strategy() placement.Strategy {
	s := placement.DefaultStrategy()
	s.Coarse.StepDelay = 0
	s.Fine.StepDelay = 0
	s.SettleDelay = 0
	return s
}

// Package placement drags freshly spawned template fields to their
// document-space coordinates.
//
// A field always spawns at the editor's default location. The driver locates
// it, grabs it at its center and drags it along a linearly interpolated path
// so its top-left corner lands on the mapped target. Small fields get a finer
// path and a final correction move because the editor's drag handler drops
// small targets when the pointer moves in large increments.
package placement

import (
	"time"

	"signflow/internal/config"
	"signflow/internal/geometry"
)

// MotionProfile is one way of moving the pointer during a drag.
type MotionProfile struct {
	Name                string
	Steps               int
	StepDelay           time.Duration
	PrecisionCorrection bool
}

// Strategy picks a motion profile per field size.
type Strategy struct {
	// SmallFieldThreshold is in document units; a field narrower or shorter
	// than this uses the Fine profile.
	SmallFieldThreshold float64
	Coarse              MotionProfile
	Fine                MotionProfile
	// SettleDelay is waited after the drop; the editor gives no signal when
	// its drop animation ends.
	SettleDelay time.Duration
}

// DefaultStrategy returns the built-in tuning.
func DefaultStrategy() Strategy {
	return StrategyFromConfig(config.GetDefaultConfig().Placement)
}

// StrategyFromConfig builds a strategy from configuration.
func StrategyFromConfig(c config.PlacementConfig) Strategy {
	return Strategy{
		SmallFieldThreshold: c.SmallFieldThreshold,
		Coarse: MotionProfile{
			Name:      "coarse",
			Steps:     c.CoarseSteps,
			StepDelay: c.StepDelay,
		},
		Fine: MotionProfile{
			Name:                "fine",
			Steps:               c.FineSteps,
			StepDelay:           c.FineStepDelay,
			PrecisionCorrection: c.PrecisionCorrection,
		},
		SettleDelay: c.SettleDelay,
	}
}

// IsSmall reports whether a field of the given document size needs fine motion.
func (s Strategy) IsSmall(size geometry.Size) bool {
	return size.Width < s.SmallFieldThreshold || size.Height < s.SmallFieldThreshold
}

// ProfileFor returns the motion profile for a field of the given document
// size. The step count never drops below config.MinimumMotionSteps.
func (s Strategy) ProfileFor(size geometry.Size) MotionProfile {
	p := s.Coarse
	if s.IsSmall(size) {
		p = s.Fine
	}
	if p.Steps < config.MinimumMotionSteps {
		p.Steps = config.MinimumMotionSteps
	}
	return p
}

// Path returns steps points interpolated linearly from from to to, excluding
// from and ending exactly at to.
func Path(from, to geometry.Point, steps int) []geometry.Point {
	if steps < 1 {
		steps = 1
	}
	path := make([]geometry.Point, steps)
	d := to.Sub(from)
	for i := 1; i < steps; i++ {
		f := float64(i) / float64(steps)
		path[i-1] = geometry.Point{X: from.X + d.X*f, Y: from.Y + d.Y*f}
	}
	path[steps-1] = to
	return path
}

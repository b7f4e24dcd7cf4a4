package placement

import (
	"context"
	"errors"
	"fmt"

	"signflow/internal/browser"
	"signflow/internal/fixtures"
	"signflow/internal/geometry"
	"signflow/internal/ui"
	"signflow/pkg/logging"
)

// ErrFieldNotSpawned means the editor did not create the field. It is a hard
// failure and is never retried.
var ErrFieldNotSpawned = errors.New("field was not spawned")

// Result describes one placement in document units.
type Result struct {
	Field     string
	Requested geometry.Point
	Actual    geometry.Point
	Delta     geometry.Point
	Profile   MotionProfile
	Locator   string
}

// Within reports whether the field landed within tol document units of the
// requested position on both axes.
func (r Result) Within(tol float64) bool {
	return geometry.WithinTolerance(r.Requested, r.Actual, tol)
}

// SpawnedFieldChain locates the field the editor just created: the selected
// field when the editor marks selection, otherwise the last field added.
var SpawnedFieldChain = browser.NewChain("spawned field",
	browser.Strategy{Name: "selected", Selector: ui.SelectedField},
	browser.Strategy{Name: "last-added", Selector: ui.AnyField.Last()},
)

// Driver performs placements on one page.
type Driver struct {
	page     browser.Page
	strategy Strategy
	timeouts browser.Timeouts
}

// NewDriver creates a placement driver.
func NewDriver(page browser.Page, strategy Strategy, timeouts browser.Timeouts) *Driver {
	return &Driver{page: page, strategy: strategy, timeouts: timeouts}
}

// Strategy returns the driver's tuning.
func (d *Driver) Strategy() Strategy { return d.strategy }

// Place drags the freshly spawned field so its top-left corner lands on
// coord's document position inside the container described by mapper.
func (d *Driver) Place(ctx context.Context, mapper *geometry.Mapper, coord fixtures.FieldCoord) (Result, error) {
	located, err := SpawnedFieldChain.Race(ctx, d.page, d.timeouts.Element, d.timeouts.Fallback)
	if err != nil {
		if errors.Is(err, browser.ErrNotFound) {
			return Result{}, fmt.Errorf("field %q: %w: %v", coord.Name, ErrFieldNotSpawned, err)
		}
		return Result{}, fmt.Errorf("field %q: failed to locate: %w", coord.Name, err)
	}
	sel := located.Selector

	box, err := d.page.BoundingBox(ctx, sel)
	if err != nil {
		return Result{}, fmt.Errorf("field %q: failed to measure: %w", coord.Name, err)
	}
	if box.Empty() {
		return Result{}, fmt.Errorf("field %q: %w: element has no area", coord.Name, ErrFieldNotSpawned)
	}

	requested := coord.TopLeft()
	target := mapper.ToScreen(requested)
	start := box.Center()
	// Keep the grab offset so the top-left corner, not the pointer, hits the target.
	end := target.Add(start.Sub(box.TopLeft()))
	profile := d.strategy.ProfileFor(coord.Size())

	logging.Debug("Placement", "Dragging %s (%s, %d steps) from %s to %s",
		coord.Name, profile.Name, profile.Steps, start, end)

	if err := d.drag(ctx, start, end, profile); err != nil {
		return Result{}, fmt.Errorf("field %q: drag failed: %w", coord.Name, err)
	}

	dropped, err := d.page.BoundingBox(ctx, sel)
	if err != nil {
		return Result{}, fmt.Errorf("field %q: failed to measure after drop: %w", coord.Name, err)
	}
	actual := mapper.ToDocument(dropped.TopLeft())

	res := Result{
		Field:     coord.Name,
		Requested: requested,
		Actual:    actual,
		Delta:     actual.Sub(requested),
		Profile:   profile,
		Locator:   located.Name,
	}
	logging.Debug("Placement", "Placed %s at %s (delta %s)", coord.Name, actual, res.Delta)
	return res, nil
}

func (d *Driver) drag(ctx context.Context, start, end geometry.Point, profile MotionProfile) error {
	if err := d.page.MouseMove(ctx, start); err != nil {
		return err
	}
	if err := d.page.MouseDown(ctx, start); err != nil {
		return err
	}
	for _, p := range Path(start, end, profile.Steps) {
		if err := d.page.MouseMove(ctx, p); err != nil {
			return err
		}
		if err := browser.Settle(ctx, profile.StepDelay); err != nil {
			return err
		}
	}
	if profile.PrecisionCorrection {
		if err := d.page.MouseMove(ctx, end.Add(geometry.Point{X: 1, Y: 1})); err != nil {
			return err
		}
		if err := d.page.MouseMove(ctx, end); err != nil {
			return err
		}
	}
	if err := d.page.MouseUp(ctx, end); err != nil {
		return err
	}
	return browser.Settle(ctx, d.strategy.SettleDelay)
}

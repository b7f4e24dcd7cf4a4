package ui

import (
	"context"
	"errors"
	"fmt"

	"signflow/internal/browser"
	"signflow/internal/geometry"
)

// SignatureMode is how a signature is produced in the modal.
type SignatureMode string

const (
	SignatureTyped SignatureMode = "type"
	SignatureDrawn SignatureMode = "draw"
)

// SignatureInput is what the signature modal is given.
type SignatureInput struct {
	Mode SignatureMode
	// Text is rendered in typed mode.
	Text string
}

// ErrEmptySignature is returned when typed mode has no text.
var ErrEmptySignature = errors.New("typed signature needs text")

// CompleteSignature fills the open signature modal and commits it with the
// explicit save action. It returns once the modal has closed.
func CompleteSignature(ctx context.Context, page browser.Page, in SignatureInput, t browser.Timeouts) error {
	if err := browser.WaitVisible(ctx, page, SignatureModal, t.Element); err != nil {
		return fmt.Errorf("signature modal did not open: %w", err)
	}

	switch in.Mode {
	case SignatureDrawn:
		if err := page.Click(ctx, SignatureDrawMode); err != nil {
			return err
		}
		if err := drawStroke(ctx, page); err != nil {
			return fmt.Errorf("failed to draw signature: %w", err)
		}
	default:
		if in.Text == "" {
			return ErrEmptySignature
		}
		if err := page.Click(ctx, SignatureTypeMode); err != nil {
			return err
		}
		if err := page.Fill(ctx, SignatureTextInput, in.Text); err != nil {
			return err
		}
	}

	if err := page.Click(ctx, SignatureSave); err != nil {
		return err
	}
	if err := browser.WaitHidden(ctx, page, SignatureModal, t.Element); err != nil {
		return fmt.Errorf("signature was not saved: %w", err)
	}
	return nil
}

// drawStroke draws a zigzag across the middle of the canvas.
func drawStroke(ctx context.Context, page browser.Page) error {
	box, err := page.BoundingBox(ctx, SignatureCanvas)
	if err != nil {
		return err
	}
	if box.Empty() {
		return errors.New("signature canvas has no area")
	}

	point := func(fx, fy float64) geometry.Point {
		return geometry.Point{X: box.X + box.Width*fx, Y: box.Y + box.Height*fy}
	}
	stroke := []geometry.Point{
		point(0.15, 0.6), point(0.3, 0.35), point(0.45, 0.65),
		point(0.6, 0.35), point(0.75, 0.65), point(0.85, 0.4),
	}

	if err := page.MouseDown(ctx, stroke[0]); err != nil {
		return err
	}
	for _, p := range stroke[1:] {
		if err := page.MouseMove(ctx, p); err != nil {
			return err
		}
	}
	return page.MouseUp(ctx, stroke[len(stroke)-1])
}

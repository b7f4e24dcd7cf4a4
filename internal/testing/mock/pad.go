package mock

import (
	"signflow/internal/geometry"
	"signflow/internal/ui"
)

// DrawnSignature is the value stored for a signature made on the canvas.
const DrawnSignature = "[drawn signature]"

// signaturePad is the modal that captures a typed or drawn signature. It only
// commits through its save button, and only when something was entered.
type signaturePad struct {
	modal   geometry.Box
	canvas  geometry.Box
	mode    ui.SignatureMode
	text    string
	strokes int
	drawing bool
	onSave  func(value string)
}

func newSignaturePad(anchor geometry.Point, onSave func(value string)) *signaturePad {
	modal := geometry.Box{X: anchor.X, Y: anchor.Y, Width: 480, Height: 260}
	return &signaturePad{
		modal:  modal,
		canvas: geometry.Box{X: modal.X + 20, Y: modal.Y + 60, Width: 440, Height: 140},
		mode:   ui.SignatureTyped,
		onSave: onSave,
	}
}

func (s *signaturePad) value() (string, bool) {
	switch s.mode {
	case ui.SignatureDrawn:
		return DrawnSignature, s.strokes > 0
	default:
		return s.text, s.text != ""
	}
}

func (s *signaturePad) render(d dom) {
	d.add(ui.SignatureModal, &element{box: s.modal})
	d.add(ui.SignatureTypeMode, button("Type", func() error {
		s.mode = ui.SignatureTyped
		return nil
	}))
	d.add(ui.SignatureDrawMode, button("Draw", func() error {
		s.mode = ui.SignatureDrawn
		return nil
	}))
	if s.mode == ui.SignatureDrawn {
		d.add(ui.SignatureCanvas, &element{box: s.canvas})
	} else {
		d.add(ui.SignatureTextInput, input(&s.text))
	}
	d.add(ui.SignatureSave, button("Save", func() error {
		if v, ok := s.value(); ok {
			s.onSave(v)
		}
		return nil
	}))
}

func (s *signaturePad) mouseDown(p geometry.Point) {
	s.drawing = s.mode == ui.SignatureDrawn && s.canvas.Contains(p)
}

func (s *signaturePad) mouseMove(geometry.Point) {}

func (s *signaturePad) mouseUp(geometry.Point) {
	if s.drawing {
		s.strokes++
	}
	s.drawing = false
}

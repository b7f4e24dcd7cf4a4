// Package geometry converts between document-space units and on-screen pixels.
//
// Field coordinates in fixtures are expressed against a fixed logical page
// (A4, 595x842 units). The rendered page container can have any size and the
// horizontal and vertical scale factors are kept independent, since browser
// rounding makes the rendered aspect ratio drift slightly from the page's.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrContainerNotRendered is returned when the container has no area yet.
	ErrContainerNotRendered = errors.New("container has zero width or height (not rendered yet)")
	// ErrInvalidPageSize is returned for a non-positive logical page size.
	ErrInvalidPageSize = errors.New("page size must be positive")
)

// Point is a position, either in screen pixels or document units depending
// on context.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns the vector from q to p.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Distance returns the euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

func (p Point) String() string {
	return fmt.Sprintf("(%.1f, %.1f)", p.X, p.Y)
}

// Box is an axis-aligned rectangle, typically an element's bounding box.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TopLeft returns the origin corner of the box.
func (b Box) TopLeft() Point { return Point{X: b.X, Y: b.Y} }

// Center returns the center of the box.
func (b Box) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Contains reports whether p lies inside the box (edges included).
func (b Box) Contains(p Point) bool {
	return p.X >= b.X && p.X <= b.X+b.Width && p.Y >= b.Y && p.Y <= b.Y+b.Height
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Size is a width/height pair.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PageSize is the logical size of a document page.
type PageSize = Size

// A4 is the reference page size used by the test document fixtures.
var A4 = PageSize{Width: 595, Height: 842}

// Mapper converts between document space and the screen space of one
// rendered page container.
type Mapper struct {
	container Box
	page      PageSize
	scaleX    float64
	scaleY    float64
}

// NewMapper builds a mapper for the given rendered container and logical page
// size. A container without area fails fast instead of producing infinities.
func NewMapper(container Box, page PageSize) (*Mapper, error) {
	if page.Width <= 0 || page.Height <= 0 {
		return nil, fmt.Errorf("%w: %vx%v", ErrInvalidPageSize, page.Width, page.Height)
	}
	if container.Empty() {
		return nil, fmt.Errorf("%w: %vx%v", ErrContainerNotRendered, container.Width, container.Height)
	}
	return &Mapper{
		container: container,
		page:      page,
		scaleX:    container.Width / page.Width,
		scaleY:    container.Height / page.Height,
	}, nil
}

// Scale returns the independent horizontal and vertical scale factors.
func (m *Mapper) Scale() (x, y float64) { return m.scaleX, m.scaleY }

// Container returns the container box the mapper was built for.
func (m *Mapper) Container() Box { return m.container }

// Page returns the logical page size.
func (m *Mapper) Page() PageSize { return m.page }

// ToScreen maps a document-space point to screen pixels.
func (m *Mapper) ToScreen(p Point) Point {
	return Point{
		X: m.container.X + p.X*m.scaleX,
		Y: m.container.Y + p.Y*m.scaleY,
	}
}

// ToDocument maps a screen point back to document units.
func (m *Mapper) ToDocument(p Point) Point {
	return Point{
		X: (p.X - m.container.X) / m.scaleX,
		Y: (p.Y - m.container.Y) / m.scaleY,
	}
}

// RectToScreen maps a document-space rectangle to a screen box.
func (m *Mapper) RectToScreen(r Box) Box {
	tl := m.ToScreen(r.TopLeft())
	return Box{X: tl.X, Y: tl.Y, Width: r.Width * m.scaleX, Height: r.Height * m.scaleY}
}

// BoxToDocument maps a screen box back to document units.
func (m *Mapper) BoxToDocument(b Box) Box {
	tl := m.ToDocument(b.TopLeft())
	return Box{X: tl.X, Y: tl.Y, Width: b.Width / m.scaleX, Height: b.Height / m.scaleY}
}

// WithinTolerance reports whether a and b are no further apart than tol on
// either axis.
func WithinTolerance(a, b Point, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol
}

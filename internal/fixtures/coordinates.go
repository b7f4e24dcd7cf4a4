// Package fixtures holds the document-space ground truth the authoring and
// signing models are verified against: the coordinate map of the reference
// document and the reference PDF itself.
package fixtures

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"signflow/internal/geometry"
)

// DocumentScope is the scope value for fields shared by all signers.
const DocumentScope = "document"

// PageCount is the number of pages in the reference document.
const PageCount = 3

//go:embed data/three-page-a4.json
var defaultCoordinates []byte

// FieldCoord is the document-space position and size of one field on one
// page of the reference document.
type FieldCoord struct {
	Name   string  `json:"name"`
	Type   string  `json:"type"`
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	// Scope is either DocumentScope (or empty) or the name of the signatory
	// role that owns the field.
	Scope string `json:"scope,omitempty"`
}

// IsDocumentScope reports whether the field is shared across signers.
func (f FieldCoord) IsDocumentScope() bool {
	return f.Scope == "" || f.Scope == DocumentScope
}

// TopLeft returns the document-space origin of the field.
func (f FieldCoord) TopLeft() geometry.Point {
	return geometry.Point{X: f.X, Y: f.Y}
}

// Rect returns the document-space rectangle of the field.
func (f FieldCoord) Rect() geometry.Box {
	return geometry.Box{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height}
}

// Size returns the field size in document units.
func (f FieldCoord) Size() geometry.Size {
	return geometry.Size{Width: f.Width, Height: f.Height}
}

// CoordinateMap is the companion JSON of the reference PDF.
type CoordinateMap struct {
	PageWidth  float64      `json:"pageWidth"`
	PageHeight float64      `json:"pageHeight"`
	Page1      []FieldCoord `json:"page1"`
	Page2      []FieldCoord `json:"page2"`
	Page3      []FieldCoord `json:"page3"`
}

// PageSize returns the logical page size of the document.
func (c *CoordinateMap) PageSize() geometry.PageSize {
	return geometry.PageSize{Width: c.PageWidth, Height: c.PageHeight}
}

// Page returns the fields of the 1-indexed page n, or nil when out of range.
func (c *CoordinateMap) Page(n int) []FieldCoord {
	switch n {
	case 1:
		return c.Page1
	case 2:
		return c.Page2
	case 3:
		return c.Page3
	default:
		return nil
	}
}

// All returns every field in page order.
func (c *CoordinateMap) All() []FieldCoord {
	all := make([]FieldCoord, 0, len(c.Page1)+len(c.Page2)+len(c.Page3))
	for p := 1; p <= PageCount; p++ {
		all = append(all, c.Page(p)...)
	}
	return all
}

// Roles returns the signatory role names in order of first appearance.
func (c *CoordinateMap) Roles() []string {
	var roles []string
	seen := make(map[string]bool)
	for _, f := range c.All() {
		if f.IsDocumentScope() || seen[f.Scope] {
			continue
		}
		seen[f.Scope] = true
		roles = append(roles, f.Scope)
	}
	return roles
}

// Lookup returns the field with the given name.
func (c *CoordinateMap) Lookup(name string) (FieldCoord, bool) {
	for _, f := range c.All() {
		if f.Name == name {
			return f, true
		}
	}
	return FieldCoord{}, false
}

// VisibleTo returns the fields a signer of role sees: the shared document
// fields and the role's own.
func (c *CoordinateMap) VisibleTo(role string) []FieldCoord {
	var out []FieldCoord
	for _, f := range c.All() {
		if f.IsDocumentScope() || f.Scope == role {
			out = append(out, f)
		}
	}
	return out
}

// WithoutRoles returns a copy where every role-scoped field is dropped, used
// to author zero-role templates from the same fixture.
func (c *CoordinateMap) WithoutRoles() *CoordinateMap {
	filter := func(in []FieldCoord) []FieldCoord {
		var out []FieldCoord
		for _, f := range in {
			if f.IsDocumentScope() {
				out = append(out, f)
			}
		}
		return out
	}
	return &CoordinateMap{
		PageWidth:  c.PageWidth,
		PageHeight: c.PageHeight,
		Page1:      filter(c.Page1),
		Page2:      filter(c.Page2),
		Page3:      filter(c.Page3),
	}
}

// Validate checks that every field sits on the page it is listed under, lies
// within the page and has a unique name.
func (c *CoordinateMap) Validate() error {
	if c.PageWidth <= 0 || c.PageHeight <= 0 {
		return fmt.Errorf("invalid page size %vx%v", c.PageWidth, c.PageHeight)
	}
	names := make(map[string]bool)
	for p := 1; p <= PageCount; p++ {
		for _, f := range c.Page(p) {
			if f.Name == "" {
				return fmt.Errorf("page %d: field without name", p)
			}
			if names[f.Name] {
				return fmt.Errorf("duplicate field name %q", f.Name)
			}
			names[f.Name] = true
			if f.Page != p {
				return fmt.Errorf("field %q listed on page %d but declares page %d", f.Name, p, f.Page)
			}
			if f.Type == "" {
				return fmt.Errorf("field %q has no type", f.Name)
			}
			if f.Width <= 0 || f.Height <= 0 {
				return fmt.Errorf("field %q has no area", f.Name)
			}
			if f.X < 0 || f.Y < 0 || f.X+f.Width > c.PageWidth || f.Y+f.Height > c.PageHeight {
				return fmt.Errorf("field %q (%v,%v %vx%v) exceeds page %vx%v",
					f.Name, f.X, f.Y, f.Width, f.Height, c.PageWidth, c.PageHeight)
			}
		}
	}
	return nil
}

// ParseCoordinates decodes and validates a coordinate map.
func ParseCoordinates(data []byte) (*CoordinateMap, error) {
	var m CoordinateMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse coordinate map: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid coordinate map: %w", err)
	}
	return &m, nil
}

// LoadCoordinates reads a coordinate map from disk. An empty path returns the
// embedded default fixture.
func LoadCoordinates(path string) (*CoordinateMap, error) {
	if path == "" {
		return DefaultCoordinates()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read coordinate map %s: %w", path, err)
	}
	return ParseCoordinates(data)
}

// DefaultCoordinates returns the embedded three-page A4 fixture.
func DefaultCoordinates() (*CoordinateMap, error) {
	return ParseCoordinates(defaultCoordinates)
}

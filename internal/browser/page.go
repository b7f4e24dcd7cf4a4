// Package browser is the boundary between the signing-flow models and the
// browser automation engine.
//
// Models talk to a Page. The production Page is Chrome, driven through
// chromedp; tests drive the models against the simulated UI in
// internal/testing/mock. Element lookups that have more than one plausible
// locator go through a Chain so the fallback decision is logged.
package browser

import (
	"context"
	"fmt"

	"signflow/internal/geometry"
)

// SelectorKind says how Selector.Value is interpreted.
type SelectorKind int

const (
	KindCSS SelectorKind = iota
	KindXPath
	// KindText matches the innermost elements whose text contains Value.
	KindText
)

func (k SelectorKind) String() string {
	switch k {
	case KindXPath:
		return "xpath"
	case KindText:
		return "text"
	default:
		return "css"
	}
}

// LastMatch selects the last element matched by a selector.
const LastMatch = -1

// Selector identifies one element on the page. Nth picks among several
// matches: 0 is the first match, LastMatch the last.
type Selector struct {
	Value string
	Kind  SelectorKind
	Nth   int
}

// CSS returns a CSS selector.
func CSS(v string) Selector { return Selector{Value: v, Kind: KindCSS} }

// XPath returns an XPath selector.
func XPath(v string) Selector { return Selector{Value: v, Kind: KindXPath} }

// Text returns a selector matching elements by visible text.
func Text(v string) Selector { return Selector{Value: v, Kind: KindText} }

// Last returns a copy of s selecting its last match.
func (s Selector) Last() Selector {
	s.Nth = LastMatch
	return s
}

// At returns a copy of s selecting its i-th match.
func (s Selector) At(i int) Selector {
	s.Nth = i
	return s
}

func (s Selector) String() string {
	switch s.Nth {
	case 0:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Value)
	case LastMatch:
		return fmt.Sprintf("%s(%s)[last]", s.Kind, s.Value)
	default:
		return fmt.Sprintf("%s(%s)[%d]", s.Kind, s.Value, s.Nth)
	}
}

// Page is the page-object surface the models drive. Every blocking call is
// bounded by ctx; callers derive per-wait deadlines with the helpers in this
// package rather than relying on the implementation.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)

	WaitVisible(ctx context.Context, sel Selector) error
	WaitHidden(ctx context.Context, sel Selector) error
	IsVisible(ctx context.Context, sel Selector) (bool, error)
	Count(ctx context.Context, sel Selector) (int, error)
	Text(ctx context.Context, sel Selector) (string, error)
	Attribute(ctx context.Context, sel Selector, name string) (string, error)
	BoundingBox(ctx context.Context, sel Selector) (geometry.Box, error)

	Click(ctx context.Context, sel Selector) error
	Fill(ctx context.Context, sel Selector, value string) error
	SetChecked(ctx context.Context, sel Selector, checked bool) error
	SetInputFiles(ctx context.Context, sel Selector, paths ...string) error

	MouseDown(ctx context.Context, p geometry.Point) error
	MouseMove(ctx context.Context, p geometry.Point) error
	MouseUp(ctx context.Context, p geometry.Point) error

	Screenshot(ctx context.Context) ([]byte, error)
}

package placement

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"signflow/internal/browser"
	"signflow/internal/fixtures"
	"signflow/internal/geometry"
	"signflow/internal/ui"
)

// dragPage simulates an editor canvas holding at most one spawned field.
type dragPage struct {
	spawned         bool
	selectionMarkup bool
	box             geometry.Box
	// maxStep is the largest pointer move the drag handler follows; a larger
	// jump drops the grip and the field stays put.
	maxStep  float64
	dragging bool
	grab     geometry.Point
	last     geometry.Point
	moves    int
}

func (p *dragPage) matches(sel browser.Selector) bool {
	if !p.spawned {
		return false
	}
	switch sel {
	case ui.SelectedField:
		return p.selectionMarkup
	case ui.AnyField.Last():
		return true
	}
	return false
}

func (p *dragPage) WaitVisible(ctx context.Context, sel browser.Selector) error {
	if p.matches(sel) {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *dragPage) IsVisible(_ context.Context, sel browser.Selector) (bool, error) {
	return p.matches(sel), nil
}

func (p *dragPage) BoundingBox(_ context.Context, sel browser.Selector) (geometry.Box, error) {
	if !p.matches(sel) {
		return geometry.Box{}, browser.ErrNotFound
	}
	return p.box, nil
}

func (p *dragPage) MouseDown(_ context.Context, pt geometry.Point) error {
	if p.box.Contains(pt) {
		p.dragging = true
		p.grab = pt.Sub(p.box.TopLeft())
	}
	p.last = pt
	return nil
}

func (p *dragPage) MouseMove(_ context.Context, pt geometry.Point) error {
	p.moves++
	if p.dragging && p.maxStep > 0 && pt.Distance(p.last) > p.maxStep {
		p.dragging = false
	}
	p.last = pt
	return nil
}

func (p *dragPage) MouseUp(_ context.Context, pt geometry.Point) error {
	if p.dragging {
		tl := pt.Sub(p.grab)
		p.box.X, p.box.Y = tl.X, tl.Y
	}
	p.dragging = false
	return nil
}

func (p *dragPage) WaitHidden(context.Context, browser.Selector) error       { return nil }
func (p *dragPage) Navigate(context.Context, string) error                   { return nil }
func (p *dragPage) URL(context.Context) (string, error)                      { return "", nil }
func (p *dragPage) Count(context.Context, browser.Selector) (int, error)     { return 0, nil }
func (p *dragPage) Text(context.Context, browser.Selector) (string, error)   { return "", nil }
func (p *dragPage) Click(context.Context, browser.Selector) error            { return nil }
func (p *dragPage) Fill(context.Context, browser.Selector, string) error     { return nil }
func (p *dragPage) SetChecked(context.Context, browser.Selector, bool) error { return nil }
func (p *dragPage) Screenshot(context.Context) ([]byte, error)               { return nil, nil }
func (p *dragPage) SetInputFiles(context.Context, browser.Selector, ...string) error {
	return nil
}
func (p *dragPage) Attribute(context.Context, browser.Selector, string) (string, error) {
	return "", nil
}

var testTimeouts = browser.Timeouts{
	Micro:    time.Millisecond,
	Fallback: 20 * time.Millisecond,
	Element:  100 * time.Millisecond,
	PageLoad: time.Second,
}

func testStrategy() Strategy {
	s := DefaultStrategy()
	s.Coarse.StepDelay = 0
	s.Fine.StepDelay = 0
	s.SettleDelay = 0
	return s
}

func testMapper(t *testing.T) *geometry.Mapper {
	t.Helper()
	m, err := geometry.NewMapper(geometry.Box{X: 100, Y: 150, Width: 714, Height: 1009}, geometry.A4)
	require.NoError(t, err)
	return m
}

func spawnedPage(size geometry.Size) *dragPage {
	return &dragPage{
		spawned:         true,
		selectionMarkup: true,
		box:             geometry.Box{X: 130, Y: 180, Width: size.Width * 1.2, Height: size.Height * 1.2},
	}
}

func TestStrategy_ProfileFor(t *testing.T) {
	s := DefaultStrategy()

	tests := []struct {
		name  string
		size  geometry.Size
		want  string
		steps int
	}{
		{"large field", geometry.Size{Width: 200, Height: 60}, "coarse", 15},
		{"short field", geometry.Size{Width: 200, Height: 22}, "fine", 25},
		{"narrow field", geometry.Size{Width: 18, Height: 40}, "fine", 25},
		{"exactly at threshold", geometry.Size{Width: 30, Height: 30}, "coarse", 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := s.ProfileFor(tt.size)
			assert.Equal(t, tt.want, p.Name)
			assert.Equal(t, tt.steps, p.Steps)
			assert.Equal(t, tt.want == "fine", p.PrecisionCorrection)
		})
	}
}

func TestStrategy_MinimumSteps(t *testing.T) {
	s := DefaultStrategy()
	s.Coarse.Steps = 3
	assert.Equal(t, 10, s.ProfileFor(geometry.Size{Width: 100, Height: 100}).Steps)
}

func TestPath_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		from := geometry.Point{X: rapid.Float64Range(-1000, 1000).Draw(t, "fx"), Y: rapid.Float64Range(-1000, 1000).Draw(t, "fy")}
		to := geometry.Point{X: rapid.Float64Range(-1000, 1000).Draw(t, "tx"), Y: rapid.Float64Range(-1000, 1000).Draw(t, "ty")}
		steps := rapid.IntRange(1, 60).Draw(t, "steps")

		path := Path(from, to, steps)
		if len(path) != steps {
			t.Fatalf("len(path) = %d, want %d", len(path), steps)
		}
		if path[len(path)-1] != to {
			t.Fatalf("path ends at %v, want %v", path[len(path)-1], to)
		}

		want := from.Distance(to) / float64(steps)
		prev := from
		for i, p := range path {
			if d := prev.Distance(p); math.Abs(d-want) > 1e-6 {
				t.Fatalf("step %d length %v, want %v", i, d, want)
			}
			prev = p
		}
	})
}

func TestPath_ClampsSteps(t *testing.T) {
	to := geometry.Point{X: 5, Y: 5}
	assert.Equal(t, []geometry.Point{to}, Path(geometry.Point{}, to, 0))
}

func TestDriver_Place(t *testing.T) {
	coord := fixtures.FieldCoord{Name: "company-name", Type: "text", Page: 1, X: 50, Y: 80, Width: 200, Height: 40}

	tests := []struct {
		name        string
		markup      bool
		wantLocator string
	}{
		{"selected marker", true, "selected"},
		{"last added fallback", false, "last-added"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := spawnedPage(coord.Size())
			page.selectionMarkup = tt.markup
			d := NewDriver(page, testStrategy(), testTimeouts)

			res, err := d.Place(context.Background(), testMapper(t), coord)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLocator, res.Locator)
			assert.Equal(t, "coarse", res.Profile.Name)
			assert.InDelta(t, 50, res.Actual.X, 1e-6)
			assert.InDelta(t, 80, res.Actual.Y, 1e-6)
			assert.True(t, res.Within(1))
			assert.Equal(t, 1+15, page.moves, "initial hover + path")
		})
	}
}

func TestDriver_Place_FallbackSkipsElementWait(t *testing.T) {
	coord := fixtures.FieldCoord{Name: "company-name", Type: "text", Page: 1, X: 50, Y: 80, Width: 200, Height: 40}
	page := spawnedPage(coord.Size())
	page.selectionMarkup = false

	slow := testTimeouts
	slow.Element = 10 * time.Second
	d := NewDriver(page, testStrategy(), slow)

	started := time.Now()
	res, err := d.Place(context.Background(), testMapper(t), coord)
	require.NoError(t, err)
	assert.Equal(t, "last-added", res.Locator)
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestDriver_Place_NotSpawned(t *testing.T) {
	page := &dragPage{}
	d := NewDriver(page, testStrategy(), testTimeouts)

	_, err := d.Place(context.Background(), testMapper(t), fixtures.FieldCoord{Name: "x", Width: 50, Height: 50})
	require.ErrorIs(t, err, ErrFieldNotSpawned)
	assert.Contains(t, err.Error(), `field "x"`)
}

func TestDriver_Place_SmallFieldNeedsFineMotion(t *testing.T) {
	coord := fixtures.FieldCoord{Name: "signer1-accept", Type: "checkbox", Page: 2, X: 400, Y: 700, Width: 18, Height: 18}
	mapper := testMapper(t)

	distance := func(p *dragPage) float64 {
		start := p.box.Center()
		end := mapper.ToScreen(coord.TopLeft()).Add(start.Sub(p.box.TopLeft()))
		return start.Distance(end)
	}

	// A handler that loses anything moving more than 1/20 of the way per step
	// keeps 25-step motion but drops 15-step motion.
	fine := spawnedPage(coord.Size())
	fine.maxStep = distance(fine) / 20
	res, err := NewDriver(fine, testStrategy(), testTimeouts).Place(context.Background(), mapper, coord)
	require.NoError(t, err)
	assert.Equal(t, "fine", res.Profile.Name)
	assert.True(t, res.Within(1), "delta %s", res.Delta)

	coarseOnly := testStrategy()
	coarseOnly.SmallFieldThreshold = 0
	coarse := spawnedPage(coord.Size())
	coarse.maxStep = distance(coarse) / 20
	res, err = NewDriver(coarse, coarseOnly, testTimeouts).Place(context.Background(), mapper, coord)
	require.NoError(t, err)
	assert.Equal(t, "coarse", res.Profile.Name)
	assert.False(t, res.Within(50), "coarse motion should have dropped the field")
}

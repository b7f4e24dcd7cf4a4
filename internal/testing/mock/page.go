package mock

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"signflow/internal/browser"
	"signflow/internal/geometry"
)

// pollEvery is how often the simulated page re-renders while waiting.
const pollEvery = 5 * time.Millisecond

// onePixelPNG is returned by Screenshot.
var onePixelPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0xf8, 0xff, 0xff, 0x3f,
	0x00, 0x05, 0xfe, 0x02, 0xfe, 0xa7, 0x35, 0x81, 0x84, 0x00, 0x00, 0x00,
	0x00, 0x49, 0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

// element is one rendered node. Only visible nodes are rendered.
type element struct {
	box     geometry.Box
	text    string
	attrs   map[string]string
	checked bool

	click  func() error
	fill   func(v string) error
	check  func(on bool) error
	upload func(paths []string) error
}

// dom is a render of the current view keyed by selector.
type dom map[string][]*element

func selectorKey(sel browser.Selector) string {
	return sel.Kind.String() + ":" + sel.Value
}

func (d dom) add(sel browser.Selector, e *element) *element {
	k := selectorKey(sel)
	d[k] = append(d[k], e)
	return e
}

// view is one screen of the simulated app. Views are only touched with the
// page lock held.
type view interface {
	render(d dom)
	mouseDown(p geometry.Point)
	mouseMove(p geometry.Point)
	mouseUp(p geometry.Point)
}

// notFoundView renders nothing.
type notFoundView struct{}

func (notFoundView) render(dom)               {}
func (notFoundView) mouseDown(geometry.Point) {}
func (notFoundView) mouseMove(geometry.Point) {}
func (notFoundView) mouseUp(geometry.Point)   {}

// Page is a simulated browser tab on the fake CRM. It implements
// browser.Page.
type Page struct {
	app *App

	mu     sync.Mutex
	origin string
	path   string
	view   view
}

var _ browser.Page = (*Page)(nil)

func (p *Page) render() dom {
	d := dom{}
	if p.view != nil {
		p.view.render(d)
	}
	return d
}

func (p *Page) lookup(sel browser.Selector) (*element, bool) {
	els := p.render()[selectorKey(sel)]
	i := sel.Nth
	if i == browser.LastMatch {
		i = len(els) - 1
	}
	if i < 0 || i >= len(els) {
		return nil, false
	}
	return els[i], true
}

// with runs fn against the element sel currently resolves to.
func (p *Page) with(ctx context.Context, sel browser.Selector, fn func(e *element) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.lookup(sel)
	if !ok {
		return fmt.Errorf("%s: %w", sel, browser.ErrNotFound)
	}
	return fn(e)
}

// goTo switches the view. Callers hold the lock.
func (p *Page) goTo(path string) {
	p.path = path
	p.view = p.app.route(p, path)
}

// setPath changes the URL without leaving the view, like a history push.
func (p *Page) setPath(path string) { p.path = path }

func (p *Page) Navigate(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.origin = strings.TrimSuffix(rawURL, u.RequestURI())
	p.goTo(u.Path)
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.origin + p.path, nil
}

func (p *Page) waitFor(ctx context.Context, cond func() bool) error {
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		ok := cond()
		p.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Page) WaitVisible(ctx context.Context, sel browser.Selector) error {
	return p.waitFor(ctx, func() bool {
		_, ok := p.lookup(sel)
		return ok
	})
}

func (p *Page) WaitHidden(ctx context.Context, sel browser.Selector) error {
	return p.waitFor(ctx, func() bool {
		_, ok := p.lookup(sel)
		return !ok
	})
}

func (p *Page) IsVisible(ctx context.Context, sel browser.Selector) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.lookup(sel)
	return ok, nil
}

func (p *Page) Count(ctx context.Context, sel browser.Selector) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.render()[selectorKey(sel)]), nil
}

func (p *Page) Text(ctx context.Context, sel browser.Selector) (string, error) {
	var text string
	err := p.with(ctx, sel, func(e *element) error {
		text = e.text
		return nil
	})
	return text, err
}

func (p *Page) Attribute(ctx context.Context, sel browser.Selector, name string) (string, error) {
	var v string
	err := p.with(ctx, sel, func(e *element) error {
		v = e.attrs[name]
		return nil
	})
	return v, err
}

func (p *Page) BoundingBox(ctx context.Context, sel browser.Selector) (geometry.Box, error) {
	var box geometry.Box
	err := p.with(ctx, sel, func(e *element) error {
		box = e.box
		return nil
	})
	return box, err
}

func (p *Page) Click(ctx context.Context, sel browser.Selector) error {
	return p.with(ctx, sel, func(e *element) error {
		if e.click == nil {
			return nil
		}
		return e.click()
	})
}

func (p *Page) Fill(ctx context.Context, sel browser.Selector, value string) error {
	return p.with(ctx, sel, func(e *element) error {
		if e.fill == nil {
			return fmt.Errorf("%s is not editable", sel)
		}
		return e.fill(value)
	})
}

func (p *Page) SetChecked(ctx context.Context, sel browser.Selector, checked bool) error {
	return p.with(ctx, sel, func(e *element) error {
		if e.check == nil {
			return fmt.Errorf("%s is not a checkbox", sel)
		}
		if e.checked == checked {
			return nil
		}
		return e.check(checked)
	})
}

func (p *Page) SetInputFiles(ctx context.Context, sel browser.Selector, paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("cannot upload %s: %w", path, err)
		}
	}
	return p.with(ctx, sel, func(e *element) error {
		if e.upload == nil {
			return fmt.Errorf("%s is not a file input", sel)
		}
		return e.upload(paths)
	})
}

func (p *Page) mouse(ctx context.Context, pt geometry.Point, fn func(v view, pt geometry.Point)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.view != nil {
		fn(p.view, pt)
	}
	return nil
}

func (p *Page) MouseDown(ctx context.Context, pt geometry.Point) error {
	return p.mouse(ctx, pt, view.mouseDown)
}

func (p *Page) MouseMove(ctx context.Context, pt geometry.Point) error {
	return p.mouse(ctx, pt, view.mouseMove)
}

func (p *Page) MouseUp(ctx context.Context, pt geometry.Point) error {
	return p.mouse(ctx, pt, view.mouseUp)
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	return append([]byte(nil), onePixelPNG...), nil
}

// input renders a text input bound to *v.
func input(v *string) *element {
	return &element{text: *v, fill: func(s string) error {
		*v = s
		return nil
	}}
}

// button renders a clickable element.
func button(text string, click func() error) *element {
	return &element{text: text, click: click}
}

// label renders static text.
func label(text string) *element { return &element{text: text} }

// checkbox renders a checkbox bound to *v.
func checkbox(v *bool) *element {
	return &element{checked: *v, check: func(on bool) error {
		*v = on
		return nil
	}}
}

package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/goccy/go-json"

	"signflow/internal/geometry"
	"signflow/pkg/logging"
)

// ChromeOptions configures a Chrome page.
type ChromeOptions struct {
	Headless     bool
	WindowWidth  int
	WindowHeight int
	ExecPath     string
	// Cookie, when set, is installed before the first navigation so the
	// session is authenticated.
	Cookie *Cookie
}

// Cookie is a session cookie.
type Cookie struct {
	Name   string
	Value  string
	Domain string
}

// Chrome is a Page backed by a chromedp-controlled Chrome tab.
type Chrome struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	cookie      *Cookie
	cookieSet   bool
	buttons     mouseButtons
}

var _ Page = (*Chrome)(nil)

// NewChrome starts a browser and opens a tab.
func NewChrome(ctx context.Context, opts ChromeOptions) (*Chrome, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			logging.Debug("Chrome", format, args...)
		}),
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			logging.Warn("Chrome", format, args...)
		}),
	)

	// Start the browser eagerly so launch failures surface here.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*runtime.EventExceptionThrown); ok {
			logging.Debug("Chrome", "page exception: %s", e.ExceptionDetails.Text)
		}
	})

	return &Chrome{ctx: tabCtx, cancel: cancel, allocCancel: allocCancel, cookie: opts.Cookie}, nil
}

// Close shuts the tab and the browser down.
func (c *Chrome) Close() {
	c.cancel()
	c.allocCancel()
}

// run executes actions on the tab bounded by the caller's ctx.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	var actions []chromedp.Action
	if c.cookie != nil && !c.cookieSet {
		cookie := *c.cookie
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookie(cookie.Name, cookie.Value).
				WithDomain(cookie.Domain).
				WithPath("/").
				WithHTTPOnly(true).
				Do(ctx)
		}))
	}
	actions = append(actions, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
	if err := c.run(ctx, actions...); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	c.cookieSet = true
	return nil
}

func (c *Chrome) URL(ctx context.Context) (string, error) {
	var u string
	if err := c.run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

// eval runs a JS function body against the selected element. The body sees
// the element as el and may return any JSON value.
func (c *Chrome) eval(ctx context.Context, sel Selector, body string, out interface{}) error {
	script := fmt.Sprintf(`(() => { const el = (%s).at(%d); %s })()`, resolveJS(sel), sel.Nth, body)
	return c.run(ctx, chromedp.Evaluate(script, out))
}

func (c *Chrome) IsVisible(ctx context.Context, sel Selector) (bool, error) {
	var visible bool
	err := c.eval(ctx, sel, `
		if (!el) return false;
		const r = el.getBoundingClientRect();
		const s = getComputedStyle(el);
		return r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';`, &visible)
	return visible, err
}

func (c *Chrome) waitFor(ctx context.Context, sel Selector, want bool) error {
	ticker := time.NewTicker(DefaultPollInterval)
	defer ticker.Stop()
	for {
		visible, err := c.IsVisible(ctx, sel)
		if err != nil {
			return err
		}
		if visible == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Chrome) WaitVisible(ctx context.Context, sel Selector) error {
	return c.waitFor(ctx, sel, true)
}

func (c *Chrome) WaitHidden(ctx context.Context, sel Selector) error {
	return c.waitFor(ctx, sel, false)
}

func (c *Chrome) Count(ctx context.Context, sel Selector) (int, error) {
	var n int
	err := c.run(ctx, chromedp.Evaluate(fmt.Sprintf(`(%s).length`, resolveJS(sel)), &n))
	return n, err
}

func (c *Chrome) Text(ctx context.Context, sel Selector) (string, error) {
	var text string
	err := c.eval(ctx, sel, `
		if (!el) throw new Error('element not found');
		return ('value' in el && el.tagName !== 'BUTTON') ? el.value : el.innerText;`, &text)
	return text, err
}

func (c *Chrome) Attribute(ctx context.Context, sel Selector, name string) (string, error) {
	var value string
	err := c.eval(ctx, sel, fmt.Sprintf(`
		if (!el) throw new Error('element not found');
		return el.getAttribute(%s) || '';`, jsString(name)), &value)
	return value, err
}

func (c *Chrome) BoundingBox(ctx context.Context, sel Selector) (geometry.Box, error) {
	var raw json.RawMessage
	err := c.eval(ctx, sel, `
		if (!el) return null;
		el.scrollIntoView({block: 'nearest', inline: 'nearest'});
		const r = el.getBoundingClientRect();
		return {x: r.x, y: r.y, width: r.width, height: r.height};`, &raw)
	if err != nil {
		return geometry.Box{}, err
	}
	if string(raw) == "null" || len(raw) == 0 {
		return geometry.Box{}, fmt.Errorf("%s: %w", sel, ErrNotFound)
	}
	var box geometry.Box
	if err := json.Unmarshal(raw, &box); err != nil {
		return geometry.Box{}, fmt.Errorf("failed to decode bounding box: %w", err)
	}
	return box, nil
}

func (c *Chrome) Click(ctx context.Context, sel Selector) error {
	box, err := c.BoundingBox(ctx, sel)
	if err != nil {
		return err
	}
	center := box.Center()
	return c.run(ctx, chromedp.MouseClickXY(center.X, center.Y))
}

func (c *Chrome) Fill(ctx context.Context, sel Selector, value string) error {
	var ok bool
	err := c.eval(ctx, sel, `
		if (!el) return false;
		el.focus();
		el.value = '';
		el.dispatchEvent(new Event('input', {bubbles: true}));
		return true;`, &ok)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", sel, ErrNotFound)
	}
	return c.run(ctx, chromedp.KeyEvent(value))
}

func (c *Chrome) SetChecked(ctx context.Context, sel Selector, checked bool) error {
	var current bool
	if err := c.eval(ctx, sel, `if (!el) throw new Error('element not found'); return !!el.checked;`, &current); err != nil {
		return err
	}
	if current == checked {
		return nil
	}
	return c.Click(ctx, sel)
}

func (c *Chrome) SetInputFiles(ctx context.Context, sel Selector, paths ...string) error {
	by := chromedp.ByQuery
	if sel.Kind != KindCSS {
		by = chromedp.BySearch
	}
	return c.run(ctx, chromedp.SetUploadFiles(sel.Value, paths, by, chromedp.NodeReady))
}

// mouseButtons tracks whether the left button is held between a press and
// a release, so moves report a drag only while it is down.
type mouseButtons struct {
	mu      sync.Mutex
	pressed bool
}

// apply records the transition for typ and returns the button and
// pressed-buttons mask the event should carry.
func (m *mouseButtons) apply(typ input.MouseType) (input.MouseButton, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch typ {
	case input.MousePressed:
		m.pressed = true
		return input.Left, 1
	case input.MouseReleased:
		m.pressed = false
		return input.Left, 0
	}
	if m.pressed {
		return input.Left, 1
	}
	return input.None, 0
}

func (c *Chrome) mouse(ctx context.Context, typ input.MouseType, p geometry.Point) error {
	button, mask := c.buttons.apply(typ)
	return c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(typ, p.X, p.Y).
			WithButton(button).
			WithButtons(mask).
			WithClickCount(1).
			Do(ctx)
	}))
}

func (c *Chrome) MouseDown(ctx context.Context, p geometry.Point) error {
	return c.mouse(ctx, input.MousePressed, p)
}

func (c *Chrome) MouseMove(ctx context.Context, p geometry.Point) error {
	return c.mouse(ctx, input.MouseMoved, p)
}

func (c *Chrome) MouseUp(ctx context.Context, p geometry.Point) error {
	return c.mouse(ctx, input.MouseReleased, p)
}

func (c *Chrome) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

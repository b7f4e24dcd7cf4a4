package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"signflow/internal/config"
)

var (
	// ErrTimeout is returned when a bounded wait expires.
	ErrTimeout = errors.New("timed out")
	// ErrNotFound is returned when no locator strategy matched.
	ErrNotFound = errors.New("element not found")
)

// DefaultPollInterval is used by the polling helpers.
const DefaultPollInterval = 100 * time.Millisecond

// Timeouts are the per-wait bounds the models use.
type Timeouts struct {
	Micro           time.Duration
	Fallback        time.Duration
	Element         time.Duration
	PageLoad        time.Duration
	TemplateApplied time.Duration
}

// TimeoutsFromConfig converts the configured timeouts.
func TimeoutsFromConfig(c config.TimeoutConfig) Timeouts {
	return Timeouts{
		Micro:           c.Micro,
		Fallback:        c.Fallback,
		Element:         c.Element,
		PageLoad:        c.PageLoad,
		TemplateApplied: c.TemplateApplied,
	}
}

// DefaultTimeouts returns the built-in timeouts.
func DefaultTimeouts() Timeouts {
	return TimeoutsFromConfig(config.GetDefaultConfig().Timeouts)
}

// bounded runs fn under its own timeout and maps expiry of that timeout, and
// only that timeout, to ErrTimeout.
func bounded(ctx context.Context, timeout time.Duration, what string, fn func(ctx context.Context) error) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(wctx)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && wctx.Err() != nil {
		return fmt.Errorf("%s after %s: %w", what, timeout, ErrTimeout)
	}
	return err
}

// WaitVisible waits up to timeout for sel to become visible.
func WaitVisible(ctx context.Context, page Page, sel Selector, timeout time.Duration) error {
	return bounded(ctx, timeout, "waiting for "+sel.String()+" to be visible", func(ctx context.Context) error {
		return page.WaitVisible(ctx, sel)
	})
}

// WaitHidden waits up to timeout for sel to disappear.
func WaitHidden(ctx context.Context, page Page, sel Selector, timeout time.Duration) error {
	return bounded(ctx, timeout, "waiting for "+sel.String()+" to be hidden", func(ctx context.Context) error {
		return page.WaitHidden(ctx, sel)
	})
}

// Poll evaluates cond every interval until it reports true, returns an error,
// or timeout expires.
func Poll(ctx context.Context, timeout, interval time.Duration, cond func(ctx context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return bounded(ctx, timeout, "polling", func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			ok, err := cond(ctx)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})
}

// WaitURL waits until the page URL matches pattern and returns the URL.
func WaitURL(ctx context.Context, page Page, pattern *regexp.Regexp, timeout time.Duration) (string, error) {
	var current string
	err := Poll(ctx, timeout, DefaultPollInterval, func(ctx context.Context) (bool, error) {
		u, err := page.URL(ctx)
		if err != nil {
			return false, err
		}
		current = u
		return pattern.MatchString(u), nil
	})
	if err != nil {
		return "", fmt.Errorf("url %q never matched %s: %w", current, pattern, err)
	}
	return current, nil
}

// WaitText waits until sel is visible and its text contains want.
func WaitText(ctx context.Context, page Page, sel Selector, want string, timeout time.Duration) error {
	var last string
	err := Poll(ctx, timeout, DefaultPollInterval, func(ctx context.Context) (bool, error) {
		visible, err := page.IsVisible(ctx, sel)
		if err != nil || !visible {
			return false, err
		}
		text, err := page.Text(ctx, sel)
		if err != nil {
			return false, err
		}
		last = text
		return strings.Contains(text, want), nil
	})
	if err != nil {
		return fmt.Errorf("%s text %q never contained %q: %w", sel, last, want, err)
	}
	return nil
}

// Settle sleeps for d. It is only for actions whose completion has no
// observable signal, such as a drop animation.
func Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

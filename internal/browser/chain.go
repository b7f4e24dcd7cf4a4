package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"signflow/pkg/logging"
)

// Strategy is one named way of locating an element.
type Strategy struct {
	Name     string
	Selector Selector
}

// Chain is an ordered list of strategies; the first one whose selector
// becomes visible wins.
type Chain struct {
	Name       string
	Strategies []Strategy
}

// NewChain builds a chain.
func NewChain(name string, strategies ...Strategy) Chain {
	return Chain{Name: name, Strategies: strategies}
}

// Resolve evaluates the strategies in order. The first strategy gets the full
// wait budget, every fallback the short fallback budget. The winning strategy is logged.
func (c Chain) Resolve(ctx context.Context, page Page, wait, fallback time.Duration) (Strategy, error) {
	if len(c.Strategies) == 0 {
		return Strategy{}, fmt.Errorf("%s: no strategies: %w", c.Name, ErrNotFound)
	}

	var tried []string
	for i, s := range c.Strategies {
		budget := fallback
		if i == 0 {
			budget = wait
		}
		err := WaitVisible(ctx, page, s.Selector, budget)
		if err == nil {
			if i == 0 {
				logging.Debug("Locator", "%s: matched primary strategy %q", c.Name, s.Name)
			} else {
				logging.Info("Locator", "%s: fell back to strategy %q after %s", c.Name, s.Name, strings.Join(tried, ", "))
			}
			return s, nil
		}
		if ctx.Err() != nil {
			return Strategy{}, ctx.Err()
		}
		if !errors.Is(err, ErrTimeout) {
			return Strategy{}, fmt.Errorf("%s: strategy %q: %w", c.Name, s.Name, err)
		}
		logging.Debug("Locator", "%s: strategy %q did not match within %s", c.Name, s.Name, budget)
		tried = append(tried, s.Name)
	}

	return Strategy{}, fmt.Errorf("%s: tried %s: %w", c.Name, strings.Join(tried, ", "), ErrNotFound)
}

// Race evaluates every strategy in one poll bounded by wait. The primary
// wins as soon as it is visible; a fallback is accepted once grace has
// passed, with chain order breaking ties. Use it where the fallbacks name
// the same element as the primary and a missing primary is routine.
func (c Chain) Race(ctx context.Context, page Page, wait, grace time.Duration) (Strategy, error) {
	if len(c.Strategies) == 0 {
		return Strategy{}, fmt.Errorf("%s: no strategies: %w", c.Name, ErrNotFound)
	}

	start := time.Now()
	winner := -1
	err := Poll(ctx, wait, DefaultPollInterval, func(ctx context.Context) (bool, error) {
		graceOver := time.Since(start) >= grace
		for i, s := range c.Strategies {
			if i > 0 && !graceOver {
				break
			}
			visible, err := page.IsVisible(ctx, s.Selector)
			if err != nil {
				return false, fmt.Errorf("%s: strategy %q: %w", c.Name, s.Name, err)
			}
			if visible {
				winner = i
				return true, nil
			}
		}
		return false, nil
	})
	if err == nil {
		s := c.Strategies[winner]
		if winner == 0 {
			logging.Debug("Locator", "%s: matched primary strategy %q", c.Name, s.Name)
		} else {
			logging.Info("Locator", "%s: fell back to strategy %q after %s", c.Name, s.Name, time.Since(start).Round(time.Millisecond))
		}
		return s, nil
	}
	if ctx.Err() != nil {
		return Strategy{}, ctx.Err()
	}
	if !errors.Is(err, ErrTimeout) {
		return Strategy{}, err
	}

	names := make([]string, len(c.Strategies))
	for i, s := range c.Strategies {
		names[i] = s.Name
	}
	return Strategy{}, fmt.Errorf("%s: tried %s: %w", c.Name, strings.Join(names, ", "), ErrNotFound)
}

// Selector resolves the chain and returns the winning selector.
func (c Chain) Selector(ctx context.Context, page Page, wait, fallback time.Duration) (Selector, error) {
	s, err := c.Resolve(ctx, page, wait, fallback)
	if err != nil {
		return Selector{}, err
	}
	return s.Selector, nil
}

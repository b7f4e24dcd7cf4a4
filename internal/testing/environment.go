package testing

import (
	"context"
	"errors"
	"fmt"

	"signflow/internal/agreements"
	"signflow/internal/browser"
	"signflow/internal/crm"
	"signflow/internal/fixtures"
	"signflow/internal/placement"
	"signflow/internal/publicsign"
	"signflow/internal/setup"
	"signflow/internal/signinglinks"
	"signflow/internal/templates"
	"signflow/internal/testing/mock"
)

// DefaultFixtureName names the template every signing scenario builds on.
const DefaultFixtureName = "signflow two-role fixture"

// ZeroRoleFixtureName names the role-less template fixture.
const ZeroRoleFixtureName = "signflow zero-role fixture"

// fixtureDefaults are the default values authored onto fixture templates.
var fixtureDefaults = map[string]string{"terms-note": "Net 30", "amount": "1200"}

// Environment is the world one scenario acts on: a single page, a REST
// client for the same workspace and the setup handles. It is never shared
// between scenarios.
type Environment struct {
	ID           string
	Target       Target
	Page         browser.Page
	API          *crm.Client
	BaseURL      string
	WorkspaceID  string
	Timeouts     browser.Timeouts
	Strategy     placement.Strategy
	Coordinates  *fixtures.CoordinateMap
	DocumentPath string
	Cache        *setup.Cache
	SeedContacts bool
	// ScreenshotDir receives a screenshot when a scenario fails. Empty
	// disables screenshots.
	ScreenshotDir string
	// Fake is the in-memory CRM behind a fake environment.
	Fake *mock.App

	links   *signinglinks.Lifecycle
	session *publicsign.Session
	closers []func() error
}

// ErrNoSession is returned by signing actions run before sign.open.
var ErrNoSession = errors.New("no signing session is open")

// OnClose registers fn to run when the environment is destroyed. Closers
// run in reverse order.
func (e *Environment) OnClose(fn func() error) {
	e.closers = append(e.closers, fn)
}

// Close releases everything the environment holds.
func (e *Environment) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// TemplateModel returns a fresh template authoring model on the page.
func (e *Environment) TemplateModel() *templates.Model {
	driver := placement.NewDriver(e.Page, e.Strategy, e.Timeouts)
	return templates.New(e.Page, driver, templates.Options{
		BaseURL:     e.BaseURL,
		WorkspaceID: e.WorkspaceID,
		Timeouts:    e.Timeouts,
		PageSize:    e.Coordinates.PageSize(),
	})
}

// AgreementModel returns an agreement model on the page.
func (e *Environment) AgreementModel() *agreements.Model {
	return agreements.New(e.Page, e.API, agreements.Options{
		BaseURL:     e.BaseURL,
		WorkspaceID: e.WorkspaceID,
		Timeouts:    e.Timeouts,
	})
}

// Links returns the environment's signing-link lifecycle. It is created once
// so invalidated codes are remembered for the whole scenario.
func (e *Environment) Links() *signinglinks.Lifecycle {
	if e.links == nil {
		e.links = signinglinks.New(e.API, e.WorkspaceID)
	}
	return e.links
}

// NewSession replaces the current signing session with a fresh one.
func (e *Environment) NewSession() *publicsign.Session {
	e.session = publicsign.New(e.Page, publicsign.Options{
		Timeouts: e.Timeouts,
		PageSize: e.Coordinates.PageSize(),
	})
	return e.session
}

// Session returns the open signing session.
func (e *Environment) Session() (*publicsign.Session, error) {
	if e.session == nil {
		return nil, ErrNoSession
	}
	return e.session, nil
}

// Ensurer returns a setup ensurer that authors missing fixture templates in
// the editor.
func (e *Environment) Ensurer() *setup.Ensurer {
	opts := []setup.Option{setup.WithCreator(e.authorFixture)}
	if e.SeedContacts {
		opts = append(opts, setup.WithContactSeeding())
	}
	return setup.NewEnsurer(e.API, e.Cache, opts...)
}

// FixtureKey returns the cache key of the fixture template with roleCount
// roles: the default two-role fixture or the zero-role one.
func (e *Environment) FixtureKey(roleCount int) (setup.FixtureKey, error) {
	switch roleCount {
	case 0:
		return setup.FixtureKey{Name: ZeroRoleFixtureName}, nil
	case len(e.Coordinates.Roles()):
		return setup.FixtureKey{Name: DefaultFixtureName, Roles: e.Coordinates.Roles()}, nil
	}
	return setup.FixtureKey{}, setup.Unavailable("no fixture with %d roles; the coordinate map declares %d", roleCount, len(e.Coordinates.Roles()))
}

func (e *Environment) authorFixture(ctx context.Context, key setup.FixtureKey) (string, error) {
	coords := e.Coordinates
	if len(key.Roles) == 0 {
		coords = coords.WithoutRoles()
	}
	authored, err := e.TemplateModel().Author(ctx, templates.Plan{
		Name:          key.Name,
		DocumentPath:  e.DocumentPath,
		Coordinates:   coords,
		Roles:         key.Roles,
		DefaultValues: fixtureDefaults,
	})
	if err != nil {
		return "", fmt.Errorf("failed to author %s: %w", key, err)
	}
	return authored.TemplateID, nil
}

// EnvironmentManager creates and destroys per-scenario environments.
type EnvironmentManager interface {
	// CreateEnvironment prepares an environment for scenario. An error
	// wrapping setup.ErrUnavailable skips the scenario.
	CreateEnvironment(ctx context.Context, scenario TestScenario, logger TestLogger) (*Environment, error)
	// DestroyEnvironment releases env.
	DestroyEnvironment(ctx context.Context, env *Environment, logger TestLogger) error
}

// Package setup provides the preconditions end-to-end scenarios build on: a
// template with a known role set and seeded contacts.
//
// Preconditions are verified, then reused, and only then recreated. A cached
// template id is always re-checked against the server because the
// environment can change between runs. When a precondition cannot be met the
// error wraps ErrUnavailable, which callers treat as a skip, not a failure.
package setup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"signflow/internal/crm"
	"signflow/pkg/logging"
)

// ErrUnavailable marks a missing precondition.
var ErrUnavailable = errors.New("setup unavailable")

// Unavailable returns an ErrUnavailable error with a formatted reason.
func Unavailable(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

// IsUnavailable reports whether err means a precondition is missing.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

// classify turns errors that describe the environment rather than the
// system under test into ErrUnavailable: an unreachable CRM or rejected
// credentials. Anything else, such as a 2xx body that does not decode, is
// returned as a failure.
func classify(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *crm.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s: credentials rejected: %v", ErrUnavailable, what, err)
		}
		return fmt.Errorf("%s: %w", what, err)
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// API is the REST surface the ensurer needs. *crm.Client implements it.
type API interface {
	GetTemplate(ctx context.Context, id string) (crm.Template, error)
	SearchTemplates(ctx context.Context, query string) ([]crm.Template, error)
	SearchContacts(ctx context.Context, query string) ([]crm.Contact, error)
	CreateContact(ctx context.Context, c crm.Contact) (crm.Contact, error)
}

// TemplateCreator builds a template for key and returns its id. It usually
// drives the template editor.
type TemplateCreator func(ctx context.Context, key FixtureKey) (string, error)

// Ensurer meets setup preconditions.
type Ensurer struct {
	api    API
	cache  *Cache
	create TemplateCreator
	// seedContacts allows Contacts to create missing contacts.
	seedContacts bool
	now          func() time.Time
}

// Option configures an Ensurer.
type Option func(*Ensurer)

// WithCreator lets the ensurer author a template when none can be reused.
// Without it a missing template is unavailable.
func WithCreator(fn TemplateCreator) Option {
	return func(e *Ensurer) { e.create = fn }
}

// WithContactSeeding lets the ensurer create missing contacts.
func WithContactSeeding() Option {
	return func(e *Ensurer) { e.seedContacts = true }
}

// NewEnsurer creates an ensurer. cache may be nil, in which case nothing is
// remembered between runs.
func NewEnsurer(api API, cache *Cache, opts ...Option) *Ensurer {
	e := &Ensurer{api: api, cache: cache, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

func roleNames(t crm.Template) []string {
	names := make([]string, 0, len(t.Roles))
	for _, r := range t.Roles {
		names = append(names, r.Name)
	}
	return names
}

// Template returns a server-side template matching key: the cached one if it
// still exists and still matches, else one found by name, else a new one.
func (e *Ensurer) Template(ctx context.Context, key FixtureKey) (crm.Template, error) {
	if t, ok, err := e.cached(ctx, key); err != nil || ok {
		return t, err
	}

	found, err := e.api.SearchTemplates(ctx, key.Name)
	if err != nil {
		return crm.Template{}, classify("search templates", err)
	}
	for _, t := range found {
		// Search results may be summaries; re-read before trusting the roles.
		full, err := e.api.GetTemplate(ctx, t.ID)
		if err != nil {
			return crm.Template{}, classify("read template "+t.ID, err)
		}
		if key.Matches(full.Name, roleNames(full)) {
			logging.Info("Setup", "Reusing template %s found by name %q", full.ID, key.Name)
			e.remember(key, full)
			return full, nil
		}
	}

	if e.create == nil {
		return crm.Template{}, Unavailable("no template %q with roles [%s]", key.Name, strings.Join(key.Roles, ", "))
	}
	id, err := e.create(ctx, key)
	if err != nil {
		return crm.Template{}, fmt.Errorf("failed to create template %q: %w", key.Name, err)
	}
	t, err := e.api.GetTemplate(ctx, id)
	if err != nil {
		return crm.Template{}, classify("read created template "+id, err)
	}
	if !key.Matches(t.Name, roleNames(t)) {
		return crm.Template{}, fmt.Errorf("created template %s has name %q and roles %v, want %s", id, t.Name, roleNames(t), key)
	}
	logging.Info("Setup", "Created template %s for %s", id, key)
	e.remember(key, t)
	return t, nil
}

// cached returns the cached template when it still exists and matches. A
// stale entry is dropped.
func (e *Ensurer) cached(ctx context.Context, key FixtureKey) (crm.Template, bool, error) {
	if e.cache == nil {
		return crm.Template{}, false, nil
	}
	entry, ok, err := e.cache.Get(key)
	if err != nil {
		logging.Warn("Setup", "Ignoring unreadable setup cache: %v", err)
		return crm.Template{}, false, nil
	}
	if !ok {
		return crm.Template{}, false, nil
	}

	t, err := e.api.GetTemplate(ctx, entry.TemplateID)
	switch {
	case crm.IsNotFound(err):
		logging.Info("Setup", "Cached template %s is gone, dropping it", entry.TemplateID)
	case err != nil:
		return crm.Template{}, false, classify("verify cached template", err)
	case key.Matches(t.Name, roleNames(t)):
		logging.Debug("Setup", "Reusing cached template %s", t.ID)
		return t, true, nil
	default:
		logging.Info("Setup", "Cached template %s no longer matches %s, dropping it", entry.TemplateID, key)
	}
	if err := e.cache.Delete(key); err != nil {
		logging.Warn("Setup", "Failed to drop stale cache entry: %v", err)
	}
	return crm.Template{}, false, nil
}

// remember caches t for key. A failed write only costs reuse on the next run.
func (e *Ensurer) remember(key FixtureKey, t crm.Template) {
	if e.cache == nil {
		return
	}
	err := e.cache.Put(key, Entry{TemplateID: t.ID, Name: t.Name, Roles: roleNames(t), UpdatedAt: e.now()})
	if err != nil {
		logging.Warn("Setup", "Failed to cache template %s: %v", t.ID, err)
	}
}

// Contacts returns a contact for each spec, matched by email. Missing
// contacts are created when seeding is enabled and unavailable otherwise.
func (e *Ensurer) Contacts(ctx context.Context, specs []crm.Contact) ([]crm.Contact, error) {
	out := make([]crm.Contact, 0, len(specs))
	for _, spec := range specs {
		c, err := e.contact(ctx, spec)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (e *Ensurer) contact(ctx context.Context, spec crm.Contact) (crm.Contact, error) {
	if spec.Email == "" {
		return crm.Contact{}, fmt.Errorf("contact %q has no email to match on", spec.FullName())
	}
	found, err := e.api.SearchContacts(ctx, spec.Email)
	if err != nil {
		return crm.Contact{}, classify("search contacts", err)
	}
	for _, c := range found {
		if strings.EqualFold(c.Email, spec.Email) {
			return c, nil
		}
	}
	if !e.seedContacts {
		return crm.Contact{}, Unavailable("contact %s is not seeded", spec.Email)
	}
	created, err := e.api.CreateContact(ctx, spec)
	if err != nil {
		return crm.Contact{}, classify("seed contact "+spec.Email, err)
	}
	logging.Info("Setup", "Seeded contact %s (%s)", created.ID, created.Email)
	return created, nil
}

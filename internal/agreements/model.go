// Package agreements models creating an agreement from a template in the
// agreement form, binding one contact to each signatory role.
//
// A template with R roles needs exactly R signers, the i-th resolved against
// routing order i+1. A template without roles takes a single contact. Signer
// slots only exist after the form acknowledges the template selection, so
// nothing is filled before that acknowledgment is visible.
package agreements

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"signflow/internal/browser"
	"signflow/internal/crm"
	"signflow/internal/ui"
	"signflow/pkg/logging"
)

var (
	// ErrSignerCountMismatch is returned when the request does not carry one
	// signer per role (or exactly one contact for a role-less template).
	ErrSignerCountMismatch = errors.New("signer count does not match template roles")
	// ErrNoContactMatch is returned when the contact search offers nothing.
	ErrNoContactMatch = errors.New("contact search returned no options")
	// ErrUnresolvedAccepted is returned when the form accepted a submission
	// with an unresolved signer.
	ErrUnresolvedAccepted = errors.New("agreement was created with an unresolved signer")
)

// TemplateResolver looks up templates. *crm.Client implements it.
type TemplateResolver interface {
	GetTemplate(ctx context.Context, id string) (crm.Template, error)
}

// ContactIdentity identifies the contact for one signer slot.
type ContactIdentity struct {
	Name  string
	Email string
}

// Query is what gets typed into the contact search.
func (c ContactIdentity) Query() string {
	if c.Email != "" {
		return c.Email
	}
	return c.Name
}

func (c ContactIdentity) String() string {
	if c.Name != "" && c.Email != "" {
		return fmt.Sprintf("%s <%s>", c.Name, c.Email)
	}
	return c.Query()
}

// Request describes an agreement to create. Signers are in routing order.
type Request struct {
	TemplateID string
	// Title is optional; the template's default or a generated title is used
	// otherwise.
	Title   string
	Signers []ContactIdentity
}

// Created is a submitted agreement.
type Created struct {
	ID         string
	TemplateID string
	Title      string
	RoleCount  int
}

// Options configures a Model.
type Options struct {
	BaseURL     string
	WorkspaceID string
	Timeouts    browser.Timeouts
}

// Model drives the agreement form on one page.
type Model struct {
	page      browser.Page
	templates TemplateResolver
	opts      Options
}

// New creates a model.
func New(page browser.Page, templates TemplateResolver, opts Options) *Model {
	return &Model{page: page, templates: templates, opts: opts}
}

func (m *Model) url(path string) string { return m.opts.BaseURL + path }

// expectedSigners returns how many identities a template takes.
func expectedSigners(t crm.Template) int {
	if t.RoleCount() == 0 {
		return 1
	}
	return t.RoleCount()
}

func searchFor(t crm.Template, i int) browser.Selector {
	if t.RoleCount() == 0 {
		return ui.ContactSearch
	}
	return ui.SignerSearch(i + 1)
}

// Create fills and submits the form and returns the new agreement's id from
// the detail URL.
func (m *Model) Create(ctx context.Context, req Request) (Created, error) {
	t, err := m.prepare(ctx, req)
	if err != nil {
		return Created{}, err
	}

	title, err := m.fillTitle(ctx, req.Title)
	if err != nil {
		return Created{}, err
	}
	for i, who := range req.Signers {
		if err := m.resolveContact(ctx, searchFor(t, i), who); err != nil {
			return Created{}, fmt.Errorf("signer %d: %w", i+1, err)
		}
	}

	id, err := m.submit(ctx)
	if err != nil {
		return Created{}, err
	}
	logging.Info("Agreements", "Created agreement %s %q from template %s with %d signer(s)", id, title, t.ID, len(req.Signers))
	return Created{ID: id, TemplateID: t.ID, Title: title, RoleCount: t.RoleCount()}, nil
}

// SubmitWithUnresolvedRole fills every signer except the one at roleIndex
// (0-based), submits, and returns the validation message the form shows.
// It fails with ErrUnresolvedAccepted if the form navigates to a detail view.
func (m *Model) SubmitWithUnresolvedRole(ctx context.Context, req Request, roleIndex int) (string, error) {
	t, err := m.prepare(ctx, req)
	if err != nil {
		return "", err
	}
	if t.RoleCount() == 0 || roleIndex < 0 || roleIndex >= t.RoleCount() {
		return "", fmt.Errorf("template %s has no role at index %d", t.ID, roleIndex)
	}

	if _, err := m.fillTitle(ctx, req.Title); err != nil {
		return "", err
	}
	for i, who := range req.Signers {
		if i == roleIndex {
			continue
		}
		if err := m.resolveContact(ctx, searchFor(t, i), who); err != nil {
			return "", fmt.Errorf("signer %d: %w", i+1, err)
		}
	}

	if err := m.page.Click(ctx, ui.CreateAgreement); err != nil {
		return "", err
	}
	waitErr := browser.WaitVisible(ctx, m.page, ui.FormError, m.opts.Timeouts.Element)

	u, err := m.page.URL(ctx)
	if err != nil {
		return "", err
	}
	if id, ok := ui.AgreementIDFromURL(u); ok {
		return "", fmt.Errorf("%w: %s", ErrUnresolvedAccepted, id)
	}
	if waitErr != nil {
		return "", fmt.Errorf("no validation error for unresolved signer %d: %w", roleIndex+1, waitErr)
	}
	msg, err := m.page.Text(ctx, ui.FormError)
	if err != nil {
		return "", err
	}
	logging.Debug("Agreements", "Unresolved signer %d rejected: %s", roleIndex+1, msg)
	return msg, nil
}

// SignerOrder returns the signer names the detail view lists, in display
// order.
func (m *Model) SignerOrder(ctx context.Context, agreementID string) ([]string, error) {
	if err := m.page.Navigate(ctx, m.url(ui.AgreementDetailPath(m.opts.WorkspaceID, agreementID))); err != nil {
		return nil, err
	}
	if err := browser.WaitVisible(ctx, m.page, ui.DetailSigner, m.opts.Timeouts.PageLoad); err != nil {
		return nil, fmt.Errorf("agreement %s has no signers listed: %w", agreementID, err)
	}
	n, err := m.page.Count(ctx, ui.DetailSigner)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		name, err := m.page.Text(ctx, ui.DetailSigner.At(i))
		if err != nil {
			return nil, err
		}
		names = append(names, strings.TrimSpace(name))
	}
	return names, nil
}

// prepare resolves the template, checks the signer count, opens the form and
// applies the template.
func (m *Model) prepare(ctx context.Context, req Request) (crm.Template, error) {
	t, err := m.templates.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return crm.Template{}, fmt.Errorf("failed to resolve template %s: %w", req.TemplateID, err)
	}
	if want := expectedSigners(t); len(req.Signers) != want {
		return crm.Template{}, fmt.Errorf("%w: template %s has %d role(s) and needs %d signer(s), got %d",
			ErrSignerCountMismatch, t.ID, t.RoleCount(), want, len(req.Signers))
	}
	if err := m.applyTemplate(ctx, t); err != nil {
		return crm.Template{}, err
	}
	return t, nil
}

func (m *Model) applyTemplate(ctx context.Context, t crm.Template) error {
	to := m.opts.Timeouts

	if err := m.page.Navigate(ctx, m.url(ui.AgreementNewPath(m.opts.WorkspaceID))); err != nil {
		return err
	}
	if err := browser.WaitVisible(ctx, m.page, ui.TemplateSelect, to.PageLoad); err != nil {
		return fmt.Errorf("agreement form did not load: %w", err)
	}
	if err := m.page.Fill(ctx, ui.TemplateSelect, t.Name); err != nil {
		return err
	}
	if err := browser.WaitVisible(ctx, m.page, ui.TemplateOption(t.ID), to.Element); err != nil {
		return fmt.Errorf("template %s is not offered: %w", t.ID, err)
	}
	if err := m.page.Click(ctx, ui.TemplateOption(t.ID)); err != nil {
		return err
	}
	if err := m.page.Click(ctx, ui.ApplyTemplateButton); err != nil {
		return err
	}
	if err := browser.WaitVisible(ctx, m.page, ui.TemplateAppliedToast, to.TemplateApplied); err != nil {
		return fmt.Errorf("template %s was not applied: %w", t.ID, err)
	}

	if t.RoleCount() == 0 {
		return browser.WaitVisible(ctx, m.page, ui.ContactSearch, to.Element)
	}
	n, err := m.page.Count(ctx, ui.SignerRole)
	if err != nil {
		return err
	}
	if n != t.RoleCount() {
		return fmt.Errorf("form shows %d signer role(s), template %s has %d", n, t.ID, t.RoleCount())
	}
	return nil
}

// fillTitle sets the title: the caller's, else the prefilled template title,
// else a generated one.
func (m *Model) fillTitle(ctx context.Context, title string) (string, error) {
	if title == "" {
		prefilled, err := m.page.Text(ctx, ui.AgreementTitleInput)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(prefilled) != "" {
			return prefilled, nil
		}
		title = "Agreement " + uuid.NewString()[:8]
		logging.Debug("Agreements", "Generated title %q", title)
	}
	if err := m.page.Fill(ctx, ui.AgreementTitleInput, title); err != nil {
		return "", err
	}
	return title, nil
}

// resolveContact types the identity into a search box, waits for at least
// one option and selects the first.
func (m *Model) resolveContact(ctx context.Context, search browser.Selector, who ContactIdentity) error {
	to := m.opts.Timeouts

	if err := browser.WaitVisible(ctx, m.page, search, to.Element); err != nil {
		return err
	}
	if err := m.page.Fill(ctx, search, who.Query()); err != nil {
		return err
	}
	err := browser.Poll(ctx, to.Element, browser.DefaultPollInterval, func(ctx context.Context) (bool, error) {
		n, err := m.page.Count(ctx, ui.ContactOption)
		return n >= 1, err
	})
	if errors.Is(err, browser.ErrTimeout) {
		return fmt.Errorf("%w for %s", ErrNoContactMatch, who)
	}
	if err != nil {
		return err
	}
	if err := m.page.Click(ctx, ui.ContactOption.At(0)); err != nil {
		return err
	}
	if who.Name != "" {
		if err := browser.WaitText(ctx, m.page, search, who.Name, to.Element); err != nil {
			return fmt.Errorf("selected contact is not %s: %w", who, err)
		}
	}
	return nil
}

// submit clicks create and waits for the detail URL. A visible form error
// ends the wait early.
func (m *Model) submit(ctx context.Context) (string, error) {
	if err := m.page.Click(ctx, ui.CreateAgreement); err != nil {
		return "", err
	}
	var id string
	err := browser.Poll(ctx, m.opts.Timeouts.PageLoad, browser.DefaultPollInterval, func(ctx context.Context) (bool, error) {
		u, err := m.page.URL(ctx)
		if err != nil {
			return false, err
		}
		var ok bool
		if id, ok = ui.AgreementIDFromURL(u); ok {
			return true, nil
		}
		if visible, err := m.page.IsVisible(ctx, ui.FormError); err != nil || !visible {
			return false, err
		}
		msg, err := m.page.Text(ctx, ui.FormError)
		if err != nil {
			return false, err
		}
		return false, fmt.Errorf("agreement form rejected the submission: %s", msg)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

package templates

import (
	"context"
	"fmt"
	"strconv"

	"signflow/internal/browser"
	"signflow/internal/crm"
	"signflow/internal/fixtures"
	"signflow/internal/geometry"
	"signflow/internal/placement"
	"signflow/internal/ui"
	"signflow/pkg/logging"
)

// Options configures a Model.
type Options struct {
	BaseURL     string
	WorkspaceID string
	Timeouts    browser.Timeouts
	// PageSize is the logical page size of the uploaded document.
	PageSize geometry.PageSize
	// PageCount bounds GoToPage.
	PageCount int
}

// FieldOptions carries the optional sub-steps of AddField.
type FieldOptions struct {
	// DefaultValue is applied to text and number fields when set.
	DefaultValue string
	// Signature completes signature and initials fields in document scope.
	Signature ui.SignatureInput
}

// AuthoredField records one added field.
type AuthoredField struct {
	Coord     fixtures.FieldCoord
	Scope     string // crm.ScopeDocument or crm.ScopeSignatory
	Role      string // role name for signatory fields
	Placement placement.Result
}

// Model drives the template editor on one page.
type Model struct {
	page   browser.Page
	driver *placement.Driver
	opts   Options

	state       State
	name        string
	templateID  string
	roles       []string
	roleIndex   int
	currentPage int
	fields      []AuthoredField
}

// New creates a model in the no-template state.
func New(page browser.Page, driver *placement.Driver, opts Options) *Model {
	if opts.PageCount == 0 {
		opts.PageCount = fixtures.PageCount
	}
	if opts.PageSize == (geometry.PageSize{}) {
		opts.PageSize = geometry.A4
	}
	return &Model{page: page, driver: driver, opts: opts}
}

// State returns the current authoring state.
func (m *Model) State() State { return m.state }

// CurrentPage returns the page new fields land on.
func (m *Model) CurrentPage() int { return m.currentPage }

// Roles returns the signatory roles known to this session in routing order.
func (m *Model) Roles() []string { return append([]string(nil), m.roles...) }

// Fields returns the fields added in this session.
func (m *Model) Fields() []AuthoredField { return append([]AuthoredField(nil), m.fields...) }

// TemplateID returns the id assigned on save or reopen.
func (m *Model) TemplateID() string { return m.templateID }

// Scope returns the current scope and, in signatory scope, the role name.
func (m *Model) Scope() (string, string) {
	if m.state == StateSignatoryScope {
		return crm.ScopeSignatory, m.roles[m.roleIndex]
	}
	return crm.ScopeDocument, ""
}

func (m *Model) url(path string) string { return m.opts.BaseURL + path }

// Create opens a new template, names it and uploads the document. The editor
// starts in document scope on page 1.
func (m *Model) Create(ctx context.Context, name, pdfPath string) error {
	if err := check("create", m.state); err != nil {
		return err
	}
	t := m.opts.Timeouts

	if err := m.page.Navigate(ctx, m.url(ui.TemplateNewPath(m.opts.WorkspaceID))); err != nil {
		return err
	}
	if err := browser.WaitVisible(ctx, m.page, ui.TemplateNameInput, t.PageLoad); err != nil {
		return err
	}
	if err := m.page.Fill(ctx, ui.TemplateNameInput, name); err != nil {
		return err
	}
	if err := m.page.SetInputFiles(ctx, ui.TemplateFileInput, pdfPath); err != nil {
		return fmt.Errorf("failed to upload %s: %w", pdfPath, err)
	}
	if err := browser.WaitVisible(ctx, m.page, ui.DocumentPage, t.PageLoad); err != nil {
		return fmt.Errorf("document did not render: %w", err)
	}

	m.name = name
	m.state = StateDocumentScope
	m.currentPage = 1
	logging.Info("TemplateAuthoring", "Created template %q", name)
	return nil
}

// Reopen starts editing an existing template in document scope on page 1.
func (m *Model) Reopen(ctx context.Context, id string) error {
	if err := check("reopen", m.state); err != nil {
		return err
	}
	if err := m.page.Navigate(ctx, m.url(ui.TemplateEditPath(m.opts.WorkspaceID, id))); err != nil {
		return err
	}
	if err := browser.WaitVisible(ctx, m.page, ui.DocumentPage, m.opts.Timeouts.PageLoad); err != nil {
		return fmt.Errorf("template %s did not open: %w", id, err)
	}
	m.templateID = id
	m.roles = nil
	m.fields = nil
	m.state = StateDocumentScope
	m.currentPage = 1
	return nil
}

// SelectDocumentFields switches to the shared document scope.
func (m *Model) SelectDocumentFields(ctx context.Context) error {
	if err := check("select document fields", m.state); err != nil {
		return err
	}
	if err := m.page.Click(ctx, ui.DocumentScopeTab); err != nil {
		return err
	}
	if err := browser.WaitText(ctx, m.page, ui.ActiveScope, "Document", m.opts.Timeouts.Element); err != nil {
		return err
	}
	m.state = StateDocumentScope
	return nil
}

// AddSignatory appends a signatory role. The scope does not change.
func (m *Model) AddSignatory(ctx context.Context, name string) error {
	if err := check("add signatory", m.state); err != nil {
		return err
	}
	for _, r := range m.roles {
		if r == name {
			return fmt.Errorf("signatory %q already exists", name)
		}
	}
	t := m.opts.Timeouts

	if err := m.page.Click(ctx, ui.AddSignatoryButton); err != nil {
		return err
	}
	if err := browser.WaitVisible(ctx, m.page, ui.SignatoryNameInput, t.Element); err != nil {
		return err
	}
	if err := m.page.Fill(ctx, ui.SignatoryNameInput, name); err != nil {
		return err
	}
	if err := m.page.Click(ctx, ui.SignatoryConfirm); err != nil {
		return err
	}
	if err := browser.WaitVisible(ctx, m.page, ui.SignatoryTab(name), t.Element); err != nil {
		return fmt.Errorf("signatory %q was not added: %w", name, err)
	}

	m.roles = append(m.roles, name)
	logging.Debug("TemplateAuthoring", "Added signatory %q (routing order %d)", name, len(m.roles))
	return nil
}

// SelectSignatory switches to the scope of the named role. On a reopened
// template the role is learned from the editor.
func (m *Model) SelectSignatory(ctx context.Context, name string) error {
	if err := check("select signatory", m.state); err != nil {
		return err
	}
	t := m.opts.Timeouts

	if err := browser.WaitVisible(ctx, m.page, ui.SignatoryTab(name), t.Element); err != nil {
		return fmt.Errorf("unknown signatory %q: %w", name, err)
	}
	if err := m.page.Click(ctx, ui.SignatoryTab(name)); err != nil {
		return err
	}
	if err := browser.WaitText(ctx, m.page, ui.ActiveScope, name, t.Element); err != nil {
		return err
	}

	idx := -1
	for i, r := range m.roles {
		if r == name {
			idx = i
		}
	}
	if idx < 0 {
		m.roles = append(m.roles, name)
		idx = len(m.roles) - 1
	}
	m.roleIndex = idx
	m.state = StateSignatoryScope
	return nil
}

// GoToPage moves to page n. The scope is unchanged.
func (m *Model) GoToPage(ctx context.Context, n int) error {
	if err := check("go to page", m.state); err != nil {
		return err
	}
	if n < 1 || n > m.opts.PageCount {
		return fmt.Errorf("page %d out of range 1..%d", n, m.opts.PageCount)
	}
	if err := m.page.Click(ctx, ui.PageNav(n)); err != nil {
		return err
	}
	if err := browser.WaitText(ctx, m.page, ui.CurrentPage, strconv.Itoa(n), m.opts.Timeouts.Element); err != nil {
		return err
	}
	m.currentPage = n
	return nil
}

// mapper measures the rendered page container.
func (m *Model) mapper(ctx context.Context) (*geometry.Mapper, error) {
	box, err := m.page.BoundingBox(ctx, ui.DocumentPage)
	if err != nil {
		return nil, fmt.Errorf("failed to measure document: %w", err)
	}
	return geometry.NewMapper(box, m.opts.PageSize)
}

// AddField spawns a field of coord.Type in the current scope and places it at
// coord. Signature and initials fields in document scope go through the
// signature modal; text and number fields take an optional default value.
func (m *Model) AddField(ctx context.Context, coord fixtures.FieldCoord, opts FieldOptions) (AuthoredField, error) {
	if err := check("add field", m.state); err != nil {
		return AuthoredField{}, err
	}
	if coord.Page != m.currentPage {
		return AuthoredField{}, fmt.Errorf("field %q belongs on page %d but the editor is on page %d", coord.Name, coord.Page, m.currentPage)
	}
	ft, err := crm.ParseFieldType(coord.Type)
	if err != nil {
		return AuthoredField{}, fmt.Errorf("field %q: %w", coord.Name, err)
	}
	t := m.opts.Timeouts

	mapper, err := m.mapper(ctx)
	if err != nil {
		return AuthoredField{}, err
	}
	if err := m.page.Click(ctx, ui.PaletteField(string(ft))); err != nil {
		return AuthoredField{}, err
	}
	res, err := m.driver.Place(ctx, mapper, coord)
	if err != nil {
		return AuthoredField{}, err
	}

	if err := browser.WaitVisible(ctx, m.page, ui.FieldNameInput, t.Element); err != nil {
		return AuthoredField{}, fmt.Errorf("field %q: properties did not open: %w", coord.Name, err)
	}
	if err := m.page.Fill(ctx, ui.FieldNameInput, coord.Name); err != nil {
		return AuthoredField{}, err
	}

	scope, role := m.Scope()
	if ft.IsSignatureLike() && scope == crm.ScopeDocument {
		if err := ui.CompleteSignature(ctx, m.page, opts.Signature, t); err != nil {
			return AuthoredField{}, fmt.Errorf("field %q: %w", coord.Name, err)
		}
	}
	if ft.AcceptsDefault() && opts.DefaultValue != "" {
		if err := browser.WaitVisible(ctx, m.page, ui.DefaultValueInput, t.Element); err != nil {
			return AuthoredField{}, err
		}
		if err := m.page.Fill(ctx, ui.DefaultValueInput, opts.DefaultValue); err != nil {
			return AuthoredField{}, err
		}
		if err := m.page.Click(ctx, ui.DefaultValueApply); err != nil {
			return AuthoredField{}, err
		}
	}

	f := AuthoredField{Coord: coord, Scope: scope, Role: role, Placement: res}
	m.fields = append(m.fields, f)
	logging.Debug("TemplateAuthoring", "Added %s field %q on page %d (%s %s)", ft, coord.Name, coord.Page, scope, role)
	return f, nil
}

// Save saves the template and returns its id. Saved is terminal.
func (m *Model) Save(ctx context.Context) (string, error) {
	if err := check("save", m.state); err != nil {
		return "", err
	}
	if err := m.page.Click(ctx, ui.SaveTemplateButton); err != nil {
		return "", err
	}
	// A reopened template already has its id in the URL, so the notice is
	// the only signal that this save went through.
	if err := browser.WaitVisible(ctx, m.page, ui.TemplateSavedNotice, m.opts.Timeouts.PageLoad); err != nil {
		return "", fmt.Errorf("template was not saved: %w", err)
	}

	var id string
	err := browser.Poll(ctx, m.opts.Timeouts.PageLoad, browser.DefaultPollInterval, func(ctx context.Context) (bool, error) {
		u, err := m.page.URL(ctx)
		if err != nil {
			return false, err
		}
		var ok bool
		id, ok = ui.TemplateIDFromURL(u)
		return ok, nil
	})
	if err != nil {
		return "", fmt.Errorf("template was not saved: %w", err)
	}

	m.templateID = id
	m.state = StateSaved
	logging.Info("TemplateAuthoring", "Saved template %q as %s with %d fields and %d roles", m.name, id, len(m.fields), len(m.roles))
	return id, nil
}

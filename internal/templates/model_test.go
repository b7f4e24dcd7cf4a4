package templates_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signflow/internal/crm"
	"signflow/internal/fixtures"
	"signflow/internal/geometry"
	"signflow/internal/placement"
	"signflow/internal/templates"
	"signflow/internal/testing/mock"
	"signflow/internal/ui"
)

type editorHarness struct {
	app   *mock.App
	page  *mock.Page
	model *templates.Model
	pdf   string
}

func newEditorHarness(t *testing.T, opts mock.Options) *editorHarness {
	t.Helper()
	app := mock.NewApp(opts)
	page := app.NewPage()
	pdf, err := fixtures.EnsureReferencePDF(filepath.Join(t.TempDir(), "reference.pdf"))
	require.NoError(t, err)

	driver := placement.NewDriver(page, mock.Strategy(), mock.Timeouts())
	model := templates.New(page, driver, templates.Options{
		BaseURL:     app.Options().BaseURL,
		WorkspaceID: app.Options().WorkspaceID,
		Timeouts:    mock.Timeouts(),
	})
	return &editorHarness{app: app, page: page, model: model, pdf: pdf}
}

func defaultCoordinates(t *testing.T) *fixtures.CoordinateMap {
	t.Helper()
	m, err := fixtures.DefaultCoordinates()
	require.NoError(t, err)
	return m
}

func TestAuthor_TwoRoleFixture(t *testing.T) {
	h := newEditorHarness(t, mock.Options{})
	coords := defaultCoordinates(t)
	ctx := context.Background()

	authored, err := h.model.Author(ctx, templates.Plan{
		Name:          "Two party agreement",
		DocumentPath:  h.pdf,
		Coordinates:   coords,
		DefaultValues: map[string]string{"terms-note": "Net 30", "amount": "1200", "signer1-accept": "ignored"},
	})
	require.NoError(t, err)
	assert.Equal(t, templates.StateSaved, h.model.State())
	assert.Equal(t, []string{"Signer 1", "Signer 2"}, authored.Roles)
	assert.Len(t, authored.Fields, len(coords.All()))

	tpl, err := h.app.Store().GetTemplate(authored.TemplateID)
	require.NoError(t, err)
	require.Len(t, tpl.Roles, 2)
	assert.Equal(t, "Signer 1", tpl.Roles[0].Name)
	assert.Equal(t, 1, tpl.Roles[0].RoutingOrder)
	assert.Equal(t, 2, tpl.Roles[1].RoutingOrder)
	assert.Equal(t, "reference.pdf", tpl.Document)

	byName := make(map[string]crm.Field, len(tpl.Fields))
	for _, f := range tpl.Fields {
		byName[f.Name] = f
	}
	roleIDs := map[string]string{tpl.Roles[0].Name: tpl.Roles[0].ID, tpl.Roles[1].Name: tpl.Roles[1].ID}
	for _, want := range coords.All() {
		got, ok := byName[want.Name]
		if !assert.True(t, ok, "field %s was not saved", want.Name) {
			continue
		}
		assert.Equal(t, want.Page, got.Page, want.Name)
		assert.Equal(t, crm.FieldType(want.Type), got.Type, want.Name)
		assert.True(t, geometry.WithinTolerance(geometry.Point{X: got.X, Y: got.Y}, want.TopLeft(), 50),
			"field %s landed at (%.1f,%.1f), want %s", want.Name, got.X, got.Y, want.TopLeft())
		if want.IsDocumentScope() {
			assert.Equal(t, crm.ScopeDocument, got.Scope, want.Name)
			assert.Empty(t, got.RoleID, want.Name)
		} else {
			assert.Equal(t, crm.ScopeSignatory, got.Scope, want.Name)
			assert.Equal(t, roleIDs[want.Scope], got.RoleID, want.Name)
		}
	}

	assert.Equal(t, "Net 30", byName["terms-note"].DefaultValue)
	assert.Equal(t, "1200", byName["amount"].DefaultValue)
	assert.Empty(t, byName["signer1-accept"].DefaultValue, "checkboxes take no default")
	assert.True(t, byName["signer1-comment"].Required)
	assert.False(t, byName["signer1-date"].Required, "auto-filled fields are not required")
}

func TestAuthor_ZeroRoles(t *testing.T) {
	h := newEditorHarness(t, mock.Options{})
	coords := defaultCoordinates(t).WithoutRoles()

	authored, err := h.model.Author(context.Background(), templates.Plan{
		Name:         "Receipt",
		DocumentPath: h.pdf,
		Coordinates:  coords,
	})
	require.NoError(t, err)
	assert.Empty(t, authored.Roles)

	tpl, err := h.app.Store().GetTemplate(authored.TemplateID)
	require.NoError(t, err)
	assert.Zero(t, tpl.RoleCount())
	assert.Len(t, tpl.DocumentFields(), len(coords.All()))
}

func TestAuthor_RejectsUndeclaredRole(t *testing.T) {
	h := newEditorHarness(t, mock.Options{})

	_, err := h.model.Author(context.Background(), templates.Plan{
		Name:         "Half declared",
		DocumentPath: h.pdf,
		Coordinates:  defaultCoordinates(t),
		Roles:        []string{"Signer 1"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Signer 2")
	assert.Equal(t, templates.StateNoTemplate, h.model.State(), "nothing is created for an invalid plan")
}

func TestModel_IllegalTransitions(t *testing.T) {
	h := newEditorHarness(t, mock.Options{})
	ctx := context.Background()
	coord, ok := defaultCoordinates(t).Lookup("company-name")
	require.True(t, ok)

	_, err := h.model.AddField(ctx, coord, templates.FieldOptions{})
	var te *templates.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, templates.StateNoTemplate, te.From)

	_, err = h.model.Save(ctx)
	require.ErrorAs(t, err, &te)

	require.NoError(t, h.model.Create(ctx, "Scratch", h.pdf))
	require.ErrorAs(t, h.model.Create(ctx, "Again", h.pdf), &te)
	assert.Equal(t, "create", te.Action)

	_, err = h.model.Save(ctx)
	require.NoError(t, err)
	require.ErrorAs(t, h.model.SelectDocumentFields(ctx), &te)
	assert.Equal(t, templates.StateSaved, te.From)
}

func TestModel_ScopeAndPages(t *testing.T) {
	h := newEditorHarness(t, mock.Options{})
	ctx := context.Background()
	coords := defaultCoordinates(t)

	require.NoError(t, h.model.Create(ctx, "Scoped", h.pdf))
	require.NoError(t, h.model.AddSignatory(ctx, "Buyer"))
	assert.Error(t, h.model.AddSignatory(ctx, "Buyer"), "duplicate role")

	scope, _ := h.model.Scope()
	assert.Equal(t, crm.ScopeDocument, scope, "adding a role keeps the scope")

	require.NoError(t, h.model.SelectSignatory(ctx, "Buyer"))
	require.NoError(t, h.model.GoToPage(ctx, 2))
	scope, role := h.model.Scope()
	assert.Equal(t, crm.ScopeSignatory, scope, "changing page keeps the scope")
	assert.Equal(t, "Buyer", role)
	assert.Equal(t, 2, h.model.CurrentPage())
	assert.Error(t, h.model.GoToPage(ctx, 4))

	onPage1, _ := coords.Lookup("signer1-name")
	_, err := h.model.AddField(ctx, onPage1, templates.FieldOptions{})
	assert.ErrorContains(t, err, "belongs on page 1")

	onPage2, _ := coords.Lookup("signer1-comment")
	added, err := h.model.AddField(ctx, onPage2, templates.FieldOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Buyer", added.Role)
	assert.True(t, added.Placement.Within(50))
	assert.Equal(t, "selected", added.Placement.Locator)

	assert.Error(t, h.model.SelectSignatory(ctx, "Nobody"))
}

func TestAddField_LastAddedFallback(t *testing.T) {
	h := newEditorHarness(t, mock.Options{DisableSelectionMarkup: true})
	ctx := context.Background()
	coord, _ := defaultCoordinates(t).Lookup("contract-number")

	require.NoError(t, h.model.Create(ctx, "Fallback", h.pdf))
	added, err := h.model.AddField(ctx, coord, templates.FieldOptions{})
	require.NoError(t, err)
	assert.Equal(t, "last-added", added.Placement.Locator)
	assert.True(t, added.Placement.Within(50))
}

func TestAddField_FinePathKeepsSmallFieldsInHand(t *testing.T) {
	// The editor drops a small field on any pointer step over 15px. The fine
	// profile's step count keeps a checkbox under that limit.
	h := newEditorHarness(t, mock.Options{SmallFieldMaxStep: 15})
	ctx := context.Background()
	coords := defaultCoordinates(t)

	require.NoError(t, h.model.Create(ctx, "Precision", h.pdf))
	require.NoError(t, h.model.AddSignatory(ctx, "Signer 1"))
	require.NoError(t, h.model.SelectSignatory(ctx, "Signer 1"))
	require.NoError(t, h.model.GoToPage(ctx, 2))

	accept, _ := coords.Lookup("signer1-accept")
	added, err := h.model.AddField(ctx, accept, templates.FieldOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fine", added.Placement.Profile.Name)
	assert.True(t, added.Placement.Within(50), "delta %s", added.Placement.Delta)
}

func TestAddField_DocumentSignatureNeedsModal(t *testing.T) {
	h := newEditorHarness(t, mock.Options{})
	ctx := context.Background()
	coord, _ := defaultCoordinates(t).Lookup("issuer-signature")

	require.NoError(t, h.model.Create(ctx, "Signed", h.pdf))
	_, err := h.model.AddField(ctx, coord, templates.FieldOptions{Signature: ui.SignatureInput{Mode: ui.SignatureTyped}})
	assert.ErrorIs(t, err, ui.ErrEmptySignature)

	// The modal is still open, so saving is refused.
	_, err = h.model.Save(ctx)
	assert.Error(t, err)
}

func TestReopen_AddsToExistingTemplate(t *testing.T) {
	h := newEditorHarness(t, mock.Options{})
	ctx := context.Background()
	coords := defaultCoordinates(t)

	authored, err := h.model.Author(ctx, templates.Plan{
		Name:         "Reopened",
		DocumentPath: h.pdf,
		Coordinates:  coords.WithoutRoles(),
	})
	require.NoError(t, err)

	require.NoError(t, h.model.Reopen(ctx, authored.TemplateID))
	require.NoError(t, h.model.AddSignatory(ctx, "Witness"))
	require.NoError(t, h.model.SelectSignatory(ctx, "Witness"))
	name, _ := coords.Lookup("signer1-name")
	_, err = h.model.AddField(ctx, name, templates.FieldOptions{})
	require.NoError(t, err)
	id, err := h.model.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, authored.TemplateID, id)

	tpl, err := h.app.Store().GetTemplate(id)
	require.NoError(t, err)
	require.Len(t, tpl.Roles, 1)
	assert.Equal(t, "Witness", tpl.Roles[0].Name)
	assert.Len(t, tpl.FieldsForRole(tpl.Roles[0].ID), 1)
	assert.Len(t, tpl.Fields, len(coords.WithoutRoles().All())+1)
}

package mock

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"signflow/internal/crm"
	"signflow/internal/geometry"
	"signflow/internal/ui"
)

// spawnSize is the document-unit size a freshly spawned field has.
var spawnSize = map[crm.FieldType]geometry.Size{
	crm.FieldSignature:    {Width: 180, Height: 50},
	crm.FieldInitials:     {Width: 60, Height: 28},
	crm.FieldCheckbox:     {Width: 18, Height: 18},
	crm.FieldDateSigned:   {Width: 120, Height: 20},
	crm.FieldCreationDate: {Width: 120, Height: 20},
	crm.FieldText:         {Width: 150, Height: 22},
	crm.FieldNumber:       {Width: 150, Height: 22},
}

func sizeFor(t crm.FieldType) geometry.Size {
	if s, ok := spawnSize[t]; ok {
		return s
	}
	return geometry.Size{Width: 200, Height: 22}
}

// paletteTypes are the field types the editor palette offers.
var paletteTypes = []crm.FieldType{
	crm.FieldSignature, crm.FieldInitials, crm.FieldDateSigned, crm.FieldText,
	crm.FieldNumber, crm.FieldCheckbox, crm.FieldFullName, crm.FieldCreationDate,
	crm.FieldContactName, crm.FieldContactEmail, crm.FieldContactPhone,
	crm.FieldContactCompany, crm.FieldContactAddress,
}

type editorField struct {
	id           string
	name         string
	typ          crm.FieldType
	role         string // empty for document scope
	page         int
	box          geometry.Box // screen
	defaultValue string
	signature    string
}

type editorRole struct {
	id   string
	name string
}

// editor is the template editor, for a new template or a reopened one.
type editor struct {
	app  *App
	page *Page

	templateID string
	name       string
	document   string
	uploaded   bool

	roles       []editorRole
	scope       string // active role name, empty for document scope
	currentPage int
	fields      []*editorField
	selected    *editorField

	addingRole   bool
	roleDraft    string
	defaultDraft string
	pad          *signaturePad
	notice       string
	saved        bool

	dragging *editorField
	grab     geometry.Point
	lastPos  geometry.Point
	lost     bool
}

func newEditor(app *App, page *Page) *editor {
	return &editor{app: app, page: page, currentPage: 1}
}

func openEditor(app *App, page *Page, t crm.Template) *editor {
	e := &editor{
		app:         app,
		page:        page,
		templateID:  t.ID,
		name:        t.Name,
		document:    t.Document,
		uploaded:    true,
		currentPage: 1,
	}
	names := make(map[string]string, len(t.Roles))
	for _, r := range t.Roles {
		e.roles = append(e.roles, editorRole{id: r.ID, name: r.Name})
		names[r.ID] = r.Name
	}
	m := app.editorMapper()
	for _, f := range t.Fields {
		e.fields = append(e.fields, &editorField{
			id:           f.ID,
			name:         f.Name,
			typ:          f.Type,
			role:         names[f.RoleID],
			page:         f.Page,
			box:          m.RectToScreen(geometry.Box{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height}),
			defaultValue: f.DefaultValue,
			signature:    "[saved]",
		})
	}
	return e
}

func (e *editor) roleIndex(name string) int {
	return slices.IndexFunc(e.roles, func(r editorRole) bool { return r.name == name })
}

func (e *editor) render(d dom) {
	d.add(ui.TemplateNameInput, input(&e.name))
	if !e.uploaded {
		d.add(ui.TemplateFileInput, &element{upload: func(paths []string) error {
			if len(paths) != 1 || !strings.EqualFold(filepath.Ext(paths[0]), ".pdf") {
				return errors.New("exactly one PDF document is required")
			}
			e.document = filepath.Base(paths[0])
			e.uploaded = true
			return nil
		}})
		return
	}

	d.add(ui.DocumentPage, &element{box: e.app.opts.EditorContainer})
	d.add(ui.CurrentPage, label(strconv.Itoa(e.currentPage)))
	for n := 1; n <= e.app.opts.PageCount; n++ {
		d.add(ui.PageNav(n), button(strconv.Itoa(n), func() error {
			e.currentPage = n
			e.selected = nil
			return nil
		}))
	}

	active := "Document"
	if e.scope != "" {
		active = e.scope
	}
	d.add(ui.ActiveScope, label(active))
	d.add(ui.DocumentScopeTab, button("Document", func() error {
		e.scope = ""
		e.selected = nil
		return nil
	}))
	for _, r := range e.roles {
		d.add(ui.SignatoryTab(r.name), button(r.name, func() error {
			e.scope = r.name
			e.selected = nil
			return nil
		}))
	}
	d.add(ui.AddSignatoryButton, button("Add signatory", func() error {
		e.addingRole = true
		e.roleDraft = ""
		return nil
	}))
	if e.addingRole {
		d.add(ui.SignatoryNameInput, input(&e.roleDraft))
		d.add(ui.SignatoryConfirm, button("Add", e.confirmRole))
	}

	for _, t := range paletteTypes {
		el := button(string(t), func() error {
			e.spawn(t)
			return nil
		})
		el.attrs = map[string]string{ui.AttrFieldType: string(t)}
		d.add(ui.PaletteField(string(t)), el)
	}

	for _, f := range e.fields {
		if f.page != e.currentPage {
			continue
		}
		el := &element{box: f.box, text: "Field", attrs: map[string]string{ui.AttrFieldType: string(f.typ)}}
		d.add(ui.AnyField, el)
		if f == e.selected && !e.app.opts.DisableSelectionMarkup {
			d.add(ui.SelectedField, el)
		}
	}
	if sel := e.selected; sel != nil {
		d.add(ui.FieldNameInput, input(&sel.name))
	}
	if e.selected != nil && e.selected.typ.AcceptsDefault() {
		d.add(ui.DefaultValueInput, input(&e.defaultDraft))
		d.add(ui.DefaultValueApply, button("Apply", func() error {
			e.selected.defaultValue = e.defaultDraft
			return nil
		}))
	}

	d.add(ui.SaveTemplateButton, button("Save", e.save))
	if e.notice != "" {
		d.add(ui.Toast, label(e.notice))
	}
	if e.saved {
		d.add(ui.TemplateSavedNotice, label("Template saved"))
	}
	if e.pad != nil {
		e.pad.render(d)
	}
}

func (e *editor) confirmRole() error {
	name := strings.TrimSpace(e.roleDraft)
	switch {
	case name == "":
		e.notice = "Signatory name is required"
	case e.roleIndex(name) >= 0:
		e.notice = fmt.Sprintf("Signatory %q already exists", name)
	default:
		e.roles = append(e.roles, editorRole{name: name})
		e.addingRole = false
		e.notice = ""
	}
	return nil
}

// spawn drops a new field near the container's top-left corner and selects
// it.
func (e *editor) spawn(t crm.FieldType) {
	if e.pad != nil {
		return
	}
	c := e.app.opts.EditorContainer
	size := sizeFor(t)
	sx, sy := e.app.editorMapper().Scale()
	f := &editorField{
		typ:  t,
		role: e.scope,
		page: e.currentPage,
		box:  geometry.Box{X: c.X + 20, Y: c.Y + 20, Width: size.Width * sx, Height: size.Height * sy},
	}
	e.fields = append(e.fields, f)
	e.selected = f
	e.defaultDraft = ""
}

// small reports whether f is below the small-field threshold in document
// units.
func (e *editor) small(f *editorField) bool {
	doc := e.app.editorMapper().BoxToDocument(f.box)
	th := e.app.opts.SmallFieldThreshold
	return doc.Width < th || doc.Height < th
}

func (e *editor) fieldAt(p geometry.Point) *editorField {
	for i := len(e.fields) - 1; i >= 0; i-- {
		f := e.fields[i]
		if f.page == e.currentPage && f.box.Contains(p) {
			return f
		}
	}
	return nil
}

func (e *editor) mouseDown(p geometry.Point) {
	if e.pad != nil {
		e.pad.mouseDown(p)
		return
	}
	f := e.fieldAt(p)
	if f == nil {
		return
	}
	e.dragging = f
	e.selected = f
	e.grab = p.Sub(f.box.TopLeft())
	e.lastPos = p
	e.lost = false
}

func (e *editor) mouseMove(p geometry.Point) {
	if e.pad != nil {
		e.pad.mouseMove(p)
		return
	}
	f := e.dragging
	if f == nil || e.lost {
		return
	}
	if limit := e.app.opts.SmallFieldMaxStep; limit > 0 && e.small(f) && p.Distance(e.lastPos) > limit {
		e.lost = true
		return
	}
	e.moveTo(f, p)
	e.lastPos = p
}

func (e *editor) moveTo(f *editorField, p geometry.Point) {
	tl := p.Sub(e.grab)
	f.box.X, f.box.Y = tl.X, tl.Y
}

func (e *editor) mouseUp(p geometry.Point) {
	if e.pad != nil {
		e.pad.mouseUp(p)
		return
	}
	f := e.dragging
	e.dragging = nil
	if f == nil {
		return
	}
	if !e.lost {
		e.moveTo(f, p)
	}
	if f.typ.IsSignatureLike() && f.role == "" && f.signature == "" {
		e.pad = newSignaturePad(geometry.Point{X: f.box.X, Y: f.box.Y + f.box.Height + 10}, func(v string) {
			f.signature = v
			e.pad = nil
		})
	}
}

// save converts the editor state to a template and stores it.
func (e *editor) save() error {
	if e.pad != nil {
		return nil
	}
	if strings.TrimSpace(e.name) == "" {
		e.notice = "Template name is required"
		return nil
	}
	for _, f := range e.fields {
		if f.typ.IsSignatureLike() && f.role == "" && f.signature == "" {
			e.notice = "Complete every document signature before saving"
			return nil
		}
	}

	store := e.app.store
	t := crm.Template{ID: e.templateID, Name: e.name, Document: e.document}
	roleIDs := make(map[string]string, len(e.roles))
	for i := range e.roles {
		if e.roles[i].id == "" {
			e.roles[i].id = store.NextID("role")
		}
		r := e.roles[i]
		roleIDs[r.name] = r.id
		t.Roles = append(t.Roles, crm.SignatoryRole{ID: r.id, Name: r.name, RoutingOrder: i + 1})
	}

	m := e.app.editorMapper()
	for _, f := range e.fields {
		doc := m.BoxToDocument(f.box)
		field := crm.Field{
			ID:           f.id,
			Name:         f.name,
			Type:         f.typ,
			Scope:        crm.ScopeDocument,
			Page:         f.page,
			X:            doc.X,
			Y:            doc.Y,
			Width:        doc.Width,
			Height:       doc.Height,
			DefaultValue: f.defaultValue,
		}
		if f.role != "" {
			field.Scope = crm.ScopeSignatory
			field.RoleID = roleIDs[f.role]
			field.Required = !f.typ.IsAutoFilled()
		}
		t.Fields = append(t.Fields, field)
	}

	var (
		saved crm.Template
		err   error
	)
	if e.templateID == "" {
		saved, err = store.CreateTemplate(t)
	} else {
		saved, err = store.UpdateTemplate(t)
	}
	if err != nil {
		e.notice = err.Error()
		return nil
	}

	for i, f := range saved.Fields {
		e.fields[i].id = f.ID
	}
	e.templateID = saved.ID
	e.saved = true
	e.notice = "Template saved"
	e.page.setPath(fmt.Sprintf("/ws/%s/agreement-templates/%s", e.app.opts.WorkspaceID, saved.ID))
	return nil
}

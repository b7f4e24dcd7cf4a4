package mock

import (
	"fmt"
	"strconv"
	"time"

	"signflow/internal/crm"
	"signflow/internal/geometry"
	"signflow/internal/ui"
)

type signerSlot struct {
	routingOrder int
	role         string
	query        string
	contact      *crm.Contact
}

// agreementForm is the agreement creation form. Signer slots only appear once
// the selected template has been applied.
type agreementForm struct {
	app  *App
	page *Page

	templateQuery string
	chosen        *crm.Template
	pending       *crm.Template
	applyAt       time.Time
	applied       *crm.Template

	title     string
	slots     []*signerSlot
	active    *signerSlot
	formError string
}

func newAgreementForm(app *App, page *Page) *agreementForm {
	return &agreementForm{app: app, page: page}
}

// apply finishes a pending template selection once its delay has passed.
func (f *agreementForm) apply() {
	if f.pending == nil || time.Now().Before(f.applyAt) {
		return
	}
	t := f.pending
	f.pending = nil
	f.applied = t
	if f.title == "" {
		f.title = t.Title
	}
	f.slots = nil
	f.active = nil
	if len(t.Roles) == 0 {
		f.slots = append(f.slots, &signerSlot{})
		return
	}
	for _, r := range t.Roles {
		f.slots = append(f.slots, &signerSlot{routingOrder: r.RoutingOrder, role: r.Name})
	}
}

func (f *agreementForm) render(d dom) {
	f.apply()

	d.add(ui.TemplateSelect, &element{text: f.templateQuery, fill: func(v string) error {
		f.templateQuery = v
		f.chosen = nil
		return nil
	}})
	if f.templateQuery != "" && f.chosen == nil {
		for _, t := range f.app.store.SearchTemplates(f.templateQuery) {
			el := button(t.Name, func() error {
				f.chosen = &t
				f.templateQuery = t.Name
				return nil
			})
			el.attrs = map[string]string{"data-id": t.ID}
			d.add(ui.TemplateOption(t.ID), el)
		}
	}
	d.add(ui.ApplyTemplateButton, button("Apply", func() error {
		if f.chosen == nil {
			f.formError = "Select a template"
			return nil
		}
		f.pending = f.chosen
		f.applyAt = time.Now().Add(f.app.opts.TemplateApplyDelay)
		f.applied = nil
		f.formError = ""
		return nil
	}))

	d.add(ui.AgreementTitleInput, input(&f.title))

	if f.applied != nil {
		d.add(ui.TemplateAppliedToast, label("Template applied"))
		for i, s := range f.slots {
			search := ui.ContactSearch
			if s.routingOrder > 0 {
				d.add(ui.SignerRole, label(fmt.Sprintf("Signer %d: %s", s.routingOrder, s.role)))
				search = ui.SignerSearch(s.routingOrder)
			}
			el := &element{
				box:   geometry.Box{X: 40, Y: 300 + float64(i)*60, Width: 320, Height: 32},
				text:  s.query,
				attrs: map[string]string{"data-routing-order": strconv.Itoa(s.routingOrder)},
				fill: func(v string) error {
					s.query = v
					s.contact = nil
					f.active = s
					return nil
				},
			}
			d.add(search, el)
		}
		if s := f.active; s != nil && s.contact == nil && s.query != "" {
			for _, c := range f.app.store.SearchContacts(s.query) {
				el := button(c.FullName(), func() error {
					s.contact = &c
					s.query = c.FullName()
					f.active = nil
					return nil
				})
				el.attrs = map[string]string{"data-id": c.ID}
				d.add(ui.ContactOption, el)
			}
		}
	}

	d.add(ui.CreateAgreement, button("Create", f.submit))
	if f.formError != "" {
		d.add(ui.FormError, label(f.formError))
	}
}

func (f *agreementForm) submit() error {
	if f.applied == nil {
		f.formError = "Select and apply a template"
		return nil
	}
	a := crm.Agreement{TemplateID: f.applied.ID, Title: f.title}
	for _, s := range f.slots {
		if s.contact == nil {
			if s.routingOrder == 0 {
				f.formError = "A contact is required"
			} else {
				f.formError = fmt.Sprintf("Signer %d (%s) is required", s.routingOrder, s.role)
			}
			return nil
		}
		if s.routingOrder == 0 {
			a.ContactID = s.contact.ID
			continue
		}
		a.Signers = append(a.Signers, crm.Signer{RoutingOrder: s.routingOrder, ContactID: s.contact.ID})
	}

	created, err := f.app.store.CreateAgreement(a)
	if err != nil {
		f.formError = err.Error()
		return nil
	}
	f.page.goTo(ui.AgreementDetailPath(f.app.opts.WorkspaceID, created.ID))
	return nil
}

func (f *agreementForm) mouseDown(geometry.Point) {}
func (f *agreementForm) mouseMove(geometry.Point) {}
func (f *agreementForm) mouseUp(geometry.Point)   {}

// agreementDetail lists the agreement's title and signers in routing order.
type agreementDetail struct {
	app       *App
	agreement crm.Agreement
}

func (v *agreementDetail) render(d dom) {
	a := v.agreement
	d.add(ui.DetailTitle, label(a.Title))
	if len(a.Signers) == 0 {
		if c, err := v.app.store.GetContact(a.ContactID); err == nil {
			d.add(ui.DetailSigner, label(c.FullName()))
		}
		return
	}
	for _, s := range a.Signers {
		el := label(s.Name)
		el.attrs = map[string]string{"data-routing-order": strconv.Itoa(s.RoutingOrder)}
		d.add(ui.DetailSigner, el)
	}
}

func (v *agreementDetail) mouseDown(geometry.Point) {}
func (v *agreementDetail) mouseMove(geometry.Point) {}
func (v *agreementDetail) mouseUp(geometry.Point)   {}

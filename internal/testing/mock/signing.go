package mock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"signflow/internal/crm"
	"signflow/internal/geometry"
	"signflow/internal/ui"
)

// CompletionText is shown once a signer has completed.
const CompletionText = "You have successfully signed the document."

type signStep int

const (
	stepCode signStep = iota
	stepIdentity
	stepFields
	stepComplete
	stepError
)

type signField struct {
	field   crm.Field
	value   string
	checked bool
	// locked fields are shown but not editable by the signer.
	locked bool
}

func (f *signField) filled() bool {
	if f.field.Type == crm.FieldCheckbox {
		return f.checked
	}
	return f.value != ""
}

// signingView is the public signing flow of one link token.
type signingView struct {
	app   *App
	token string

	step      signStep
	errorText string
	link      crm.SigningLink
	agreement crm.Agreement
	template  crm.Template
	contact   crm.Contact
	roleID    string

	codeDraft string
	codeError string
	attempts  int

	firstName, lastName, email, phone string
	consent                           bool
	identityError                     string

	fields      []*signField
	currentPage int
	pad         *signaturePad
	remaining   string
}

func newSigningView(app *App, su crm.SigningURL) *signingView {
	v := &signingView{app: app, token: su.Token, currentPage: 1}
	switch err := v.load(su); {
	case errors.Is(err, errLinkExpired):
		v.fail("This signing link has expired.")
	case err != nil:
		v.fail("This signing link is no longer valid.")
	}
	return v
}

var errLinkExpired = errors.New("signing link expired")

func (v *signingView) load(su crm.SigningURL) error {
	store := v.app.store
	link, err := store.ResolveToken(su.Token)
	if err != nil {
		return err
	}
	if link.AgreementID != su.AgreementID {
		return fmt.Errorf("token does not belong to agreement %s", su.AgreementID)
	}
	if ttl := v.app.opts.LinkTTL; ttl > 0 && store.Now().Sub(link.IssuedAt) > ttl {
		return errLinkExpired
	}
	a, err := store.GetAgreement(link.AgreementID)
	if err != nil {
		return err
	}
	if _, signed := store.SignedValues(a.ID, link.SignerIndex); signed {
		return fmt.Errorf("slot %d already signed", link.SignerIndex)
	}
	t, err := store.GetTemplate(a.TemplateID)
	if err != nil {
		return err
	}
	contactID := a.ContactID
	if len(a.Signers) > 0 {
		contactID = a.Signers[link.SignerIndex].ContactID
		v.roleID = a.Signers[link.SignerIndex].RoleID
	}
	c, err := store.GetContact(contactID)
	if err != nil {
		return err
	}
	v.link, v.agreement, v.template, v.contact = link, a, t, c
	return nil
}

func (v *signingView) fail(text string) {
	v.step = stepError
	v.errorText = text
	v.pad = nil
}

// current reports whether the view's token still resolves. A link
// regenerated after the page was opened invalidates the open page too.
func (v *signingView) current() bool {
	link, err := v.app.store.ResolveToken(v.token)
	return err == nil && link.Code == v.link.Code
}

func (v *signingView) render(d dom) {
	switch v.step {
	case stepError:
		d.add(ui.StepError, label(v.errorText))
	case stepCode:
		v.renderCode(d)
	case stepIdentity:
		v.renderIdentity(d)
	case stepFields:
		v.renderFields(d)
	case stepComplete:
		d.add(ui.StepComplete, label("Complete"))
		d.add(ui.CompletionMessage, label(CompletionText))
	}
}

func (v *signingView) renderCode(d dom) {
	d.add(ui.StepCode, label("Enter your verification code"))
	d.add(ui.CodeInput, input(&v.codeDraft))
	d.add(ui.CodeSubmit, button("Verify", func() error {
		if !v.current() {
			v.fail("This signing link is no longer valid.")
			return nil
		}
		if v.app.store.CodeUsed(v.token) {
			v.codeError = "This verification code has already been used"
			return nil
		}
		if strings.TrimSpace(v.codeDraft) == v.link.Code {
			v.step = stepIdentity
			v.codeError = ""
			return nil
		}
		v.attempts++
		if v.attempts >= v.app.opts.MaxCodeAttempts {
			v.fail("Too many invalid verification attempts.")
			return nil
		}
		v.codeError = "Invalid verification code"
		return nil
	}))
	if v.codeError != "" {
		d.add(ui.CodeError, label(v.codeError))
	}
}

func (v *signingView) renderIdentity(d dom) {
	d.add(ui.StepIdentity, label("Confirm your identity"))
	d.add(ui.FirstNameInput, input(&v.firstName))
	d.add(ui.LastNameInput, input(&v.lastName))
	d.add(ui.EmailInput, input(&v.email))
	d.add(ui.PhoneInput, input(&v.phone))
	d.add(ui.ConsentBox, checkbox(&v.consent))
	d.add(ui.IdentitySubmit, button("Continue", func() error {
		for _, s := range []string{v.firstName, v.lastName, v.email, v.phone} {
			if strings.TrimSpace(s) == "" {
				v.identityError = "All identity fields are required"
				return nil
			}
		}
		if !v.consent {
			v.identityError = "You must consent to sign electronically"
			return nil
		}
		if err := v.app.store.ConsumeCode(v.token); err != nil {
			v.fail("This signing link is no longer valid.")
			return nil
		}
		v.identityError = ""
		v.prepareFields()
		v.step = stepFields
		return nil
	}))
	if v.identityError != "" {
		d.add(ui.IdentityError, label(v.identityError))
	}
}

// prepareFields lays out the shared document fields and the signer's own
// fields with their prefilled values.
func (v *signingView) prepareFields() {
	v.fields = nil
	now := v.app.store.Now()
	fullName := strings.TrimSpace(v.firstName + " " + v.lastName)
	for _, f := range v.template.Fields {
		own := f.Scope == crm.ScopeSignatory && f.RoleID == v.roleID
		if f.Scope == crm.ScopeSignatory && !own {
			continue
		}
		sf := &signField{field: f, locked: !own}
		switch {
		case f.Type.IsContactDerived():
			sf.value = v.contact.ValueFor(f.Type)
			sf.locked = true
		case f.Type == crm.FieldFullName:
			sf.value = fullName
			sf.locked = true
		case f.Type == crm.FieldDateSigned:
			sf.value = now.Format(DateLayout)
			sf.locked = true
		case f.Type == crm.FieldCreationDate:
			sf.value = v.agreement.CreatedAt.Format(DateLayout)
			sf.locked = true
		case f.Type.IsSignatureLike() && !own:
			sf.value = "[signed]"
		default:
			sf.value = f.DefaultValue
		}
		v.fields = append(v.fields, sf)
	}
}

func (v *signingView) renderFields(d dom) {
	d.add(ui.StepFields, label("Review and sign"))
	d.add(ui.DocumentPage, &element{box: v.app.opts.SigningContainer})
	d.add(ui.CurrentPage, label(strconv.Itoa(v.currentPage)))
	for n := 1; n <= v.app.opts.PageCount; n++ {
		d.add(ui.PageNav(n), button(strconv.Itoa(n), func() error {
			v.currentPage = n
			return nil
		}))
	}

	m := v.app.signingMapper()
	for _, sf := range v.fields {
		f := sf.field
		if f.Page != v.currentPage {
			continue
		}
		el := &element{
			box:     m.RectToScreen(geometry.Box{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height}),
			text:    sf.value,
			checked: sf.checked,
			attrs: map[string]string{
				ui.AttrFieldID:       f.ID,
				ui.AttrFieldType:     string(f.Type),
				ui.AttrFieldName:     f.Name,
				ui.AttrFieldRequired: strconv.FormatBool(f.Required),
				ui.AttrFieldFilled:   strconv.FormatBool(sf.filled()),
				ui.AttrFieldPage:     strconv.Itoa(f.Page),
			},
		}
		if !sf.locked {
			v.bind(sf, el)
		}
		d.add(ui.SignField, el)
		d.add(ui.SignFieldByID(f.ID), el)
	}

	d.add(ui.CompleteButton, button("Complete", v.complete))
	if v.remaining != "" {
		d.add(ui.RequiredRemaining, label(v.remaining))
	}
	if v.pad != nil {
		v.pad.render(d)
	}
}

// bind wires the signer's interactions for an editable field.
func (v *signingView) bind(sf *signField, el *element) {
	switch t := sf.field.Type; {
	case t.IsSignatureLike():
		el.click = func() error {
			if v.pad == nil {
				v.pad = newSignaturePad(el.box.TopLeft(), func(value string) {
					sf.value = value
					v.pad = nil
				})
			}
			return nil
		}
	case t == crm.FieldCheckbox:
		el.check = func(on bool) error {
			sf.checked = on
			return nil
		}
		el.click = func() error {
			sf.checked = !sf.checked
			return nil
		}
	default:
		el.fill = func(s string) error {
			if t == crm.FieldNumber && s != "" {
				if _, err := strconv.ParseFloat(s, 64); err != nil {
					return fmt.Errorf("%q is not a number", s)
				}
			}
			sf.value = s
			return nil
		}
	}
}

func (v *signingView) complete() error {
	if v.pad != nil {
		return nil
	}
	if !v.current() {
		v.fail("This signing link is no longer valid.")
		return nil
	}
	missing := 0
	for _, sf := range v.fields {
		if sf.field.Required && !sf.filled() {
			missing++
		}
	}
	if missing > 0 {
		v.remaining = fmt.Sprintf("%d required fields remaining", missing)
		return nil
	}

	values := make(map[string]string, len(v.fields))
	for _, sf := range v.fields {
		if sf.field.Type == crm.FieldCheckbox {
			values[sf.field.ID] = strconv.FormatBool(sf.checked)
		} else {
			values[sf.field.ID] = sf.value
		}
	}
	if err := v.app.store.RecordSignature(v.token, values); err != nil {
		v.fail(err.Error())
		return nil
	}
	v.remaining = ""
	v.step = stepComplete
	return nil
}

func (v *signingView) mouseDown(p geometry.Point) {
	if v.pad != nil {
		v.pad.mouseDown(p)
	}
}

func (v *signingView) mouseMove(p geometry.Point) {
	if v.pad != nil {
		v.pad.mouseMove(p)
	}
}

func (v *signingView) mouseUp(p geometry.Point) {
	if v.pad != nil {
		v.pad.mouseUp(p)
	}
}

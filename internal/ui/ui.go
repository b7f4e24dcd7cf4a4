// Package ui is the selector catalogue and route table of the CRM web app.
// The signing-flow models locate elements only through these values, and the
// simulated UI in internal/testing/mock renders against the same catalogue.
package ui

import (
	"fmt"
	"regexp"
	"strconv"

	"signflow/internal/browser"
)

func testID(id string) browser.Selector {
	return browser.CSS(fmt.Sprintf(`[data-testid="%s"]`, id))
}

func testIDAttr(id, attr, value string) browser.Selector {
	return browser.CSS(fmt.Sprintf(`[data-testid="%s"][%s="%s"]`, id, attr, value))
}

// Routes.
func TemplateNewPath(ws string) string { return fmt.Sprintf("/ws/%s/agreement-templates/new", ws) }

func TemplateEditPath(ws, id string) string {
	return fmt.Sprintf("/ws/%s/agreement-templates/%s/edit", ws, id)
}

func AgreementNewPath(ws string) string { return fmt.Sprintf("/ws/%s/agreements/new", ws) }

func AgreementDetailPath(ws, id string) string { return fmt.Sprintf("/ws/%s/agreements/%s", ws, id) }

var (
	// TemplateSavedURL captures the template id after saving.
	TemplateSavedURL = regexp.MustCompile(`/agreement-templates/([A-Za-z0-9_-]+)(?:/edit)?$`)
	// AgreementDetailURL captures the agreement id on the detail view.
	AgreementDetailURL = regexp.MustCompile(`/agreements/([A-Za-z0-9_-]+)$`)
)

// TemplateIDFromURL extracts the template id from the editor URL after a save.
func TemplateIDFromURL(u string) (string, bool) {
	m := TemplateSavedURL.FindStringSubmatch(u)
	if m == nil || m[1] == "new" {
		return "", false
	}
	return m[1], true
}

// AgreementIDFromURL extracts the agreement id from a detail view URL. The
// creation form is not a detail view.
func AgreementIDFromURL(u string) (string, bool) {
	m := AgreementDetailURL.FindStringSubmatch(u)
	if m == nil || m[1] == "new" {
		return "", false
	}
	return m[1], true
}

// Shared.
var (
	DocumentPage = testID("document-page")
	CurrentPage  = testID("current-page")
	Toast        = testID("toast")
)

// PageNav selects the page navigation button of the 1-indexed page n.
func PageNav(n int) browser.Selector { return testIDAttr("page-nav", "data-page", strconv.Itoa(n)) }

// Template editor.
var (
	TemplateNameInput   = browser.CSS(`input[name="templateName"]`)
	TemplateFileInput   = browser.CSS(`input[type="file"][name="document"]`)
	DocumentScopeTab    = testID("scope-document")
	ActiveScope         = testID("active-scope")
	AddSignatoryButton  = testID("add-signatory")
	SignatoryNameInput  = testID("signatory-name-input")
	SignatoryConfirm    = testID("signatory-confirm")
	SelectedField       = browser.CSS(`.template-field.selected`)
	AnyField            = browser.CSS(`.template-field`)
	FieldText           = browser.Text("Field")
	FieldNameInput      = testID("field-name")
	DefaultValueInput   = testID("field-default-value")
	DefaultValueApply   = testID("field-default-apply")
	SaveTemplateButton  = testID("save-template")
	TemplateSavedNotice = browser.Text("Template saved")
)

// SignatoryTab selects the scope tab of the named signatory role.
func SignatoryTab(name string) browser.Selector {
	return testIDAttr("scope-signatory", "data-role", name)
}

// PaletteField selects the palette button that spawns a field of type t.
func PaletteField(t string) browser.Selector { return testIDAttr("palette-field", "data-type", t) }

// Signature modal, shared by template authoring and public signing.
var (
	SignatureModal     = testID("signature-modal")
	SignatureTypeMode  = testID("signature-mode-type")
	SignatureDrawMode  = testID("signature-mode-draw")
	SignatureTextInput = testID("signature-text")
	SignatureCanvas    = testID("signature-canvas")
	SignatureSave      = testID("signature-save")
)

// Agreement form and detail view.
var (
	TemplateSelect       = testID("template-select")
	ApplyTemplateButton  = testID("apply-template")
	TemplateAppliedToast = testID("template-applied")
	AgreementTitleInput  = browser.CSS(`input[name="title"]`)
	SignerRole           = testID("signer-role")
	ContactSearch        = testID("contact-search")
	ContactOption        = testID("contact-option")
	CreateAgreement      = testID("create-agreement")
	FormError            = testID("form-error")
	DetailSigner         = testID("detail-signer")
	DetailTitle          = testID("agreement-title")
)

// TemplateOption selects the dropdown option for a template id.
func TemplateOption(id string) browser.Selector { return testIDAttr("template-option", "data-id", id) }

// SignerSearch selects the contact search of the role at routing order n.
func SignerSearch(n int) browser.Selector {
	return testIDAttr("signer-search", "data-routing-order", strconv.Itoa(n))
}

// Public signing.
var (
	StepCode     = testID("step-code")
	StepIdentity = testID("step-identity")
	StepFields   = testID("step-fields")
	StepComplete = testID("step-complete")
	StepError    = testID("step-error")

	CodeInput  = browser.CSS(`input[name="verificationCode"]`)
	CodeSubmit = testID("verify-code")
	CodeError  = testID("code-error")

	FirstNameInput = browser.CSS(`input[name="firstName"]`)
	LastNameInput  = browser.CSS(`input[name="lastName"]`)
	EmailInput     = browser.CSS(`input[name="email"]`)
	PhoneInput     = browser.CSS(`input[name="phone"]`)
	ConsentBox     = browser.CSS(`input[name="consent"]`)
	IdentitySubmit = testID("identity-continue")
	IdentityError  = testID("identity-error")

	SignField         = testID("sign-field")
	CompleteButton    = testID("complete-signing")
	RequiredRemaining = testID("required-remaining")
	CompletionMessage = testID("completion-message")
)

// SignFieldByID selects one fillable field on the public signing page.
func SignFieldByID(id string) browser.Selector { return testIDAttr("sign-field", "data-field-id", id) }

// Field attributes exposed on SignField elements.
const (
	AttrFieldID       = "data-field-id"
	AttrFieldType     = "data-type"
	AttrFieldName     = "data-name"
	AttrFieldRequired = "data-required"
	AttrFieldFilled   = "data-filled"
	AttrFieldPage     = "data-page"
)

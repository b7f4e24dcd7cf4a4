// Package crm is the REST surface of the CRM consumed by the signing-flow
// models: workspace-scoped agreement templates, agreements, signing links and
// contacts under /api/ws/{wsId}/.
package crm

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// FieldType is the kind of a template field.
type FieldType string

const (
	FieldSignature      FieldType = "signature"
	FieldInitials       FieldType = "initials"
	FieldDateSigned     FieldType = "date-signed"
	FieldText           FieldType = "text"
	FieldNumber         FieldType = "number"
	FieldCheckbox       FieldType = "checkbox"
	FieldFullName       FieldType = "full-name"
	FieldCreationDate   FieldType = "creation-date"
	FieldContactName    FieldType = "contact.name"
	FieldContactEmail   FieldType = "contact.email"
	FieldContactPhone   FieldType = "contact.phone"
	FieldContactCompany FieldType = "contact.company"
	FieldContactAddress FieldType = "contact.address"
)

var fieldTypes = map[FieldType]bool{
	FieldSignature: true, FieldInitials: true, FieldDateSigned: true, FieldText: true,
	FieldNumber: true, FieldCheckbox: true, FieldFullName: true, FieldCreationDate: true,
	FieldContactName: true, FieldContactEmail: true, FieldContactPhone: true,
	FieldContactCompany: true, FieldContactAddress: true,
}

// ParseFieldType validates a field type name.
func ParseFieldType(s string) (FieldType, error) {
	t := FieldType(s)
	if !fieldTypes[t] {
		return "", fmt.Errorf("unknown field type %q", s)
	}
	return t, nil
}

// IsSignatureLike reports whether filling the field opens the signature modal.
func (t FieldType) IsSignatureLike() bool {
	return t == FieldSignature || t == FieldInitials
}

// IsContactDerived reports whether the field is pre-populated from the bound
// contact.
func (t FieldType) IsContactDerived() bool {
	return strings.HasPrefix(string(t), "contact.")
}

// AcceptsDefault reports whether the author may set a default value.
func (t FieldType) AcceptsDefault() bool {
	return t == FieldText || t == FieldNumber
}

// IsAutoFilled reports whether the signer never types into the field.
func (t FieldType) IsAutoFilled() bool {
	switch t {
	case FieldDateSigned, FieldCreationDate, FieldFullName:
		return true
	}
	return t.IsContactDerived()
}

// Field scopes.
const (
	ScopeDocument  = "document"
	ScopeSignatory = "signatory"
)

// SignatoryRole is a named slot in the signing order.
type SignatoryRole struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RoutingOrder int    `json:"routingOrder"`
}

// Field is a placed template field in document units.
type Field struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Type         FieldType `json:"type"`
	Scope        string    `json:"scope"`
	RoleID       string    `json:"roleId,omitempty"`
	Page         int       `json:"page"`
	X            float64   `json:"x"`
	Y            float64   `json:"y"`
	Width        float64   `json:"width"`
	Height       float64   `json:"height"`
	DefaultValue string    `json:"defaultValue,omitempty"`
	Required     bool      `json:"required"`
}

// Template is a reusable document definition.
type Template struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Document string `json:"document,omitempty"`
	// Title is the default title of agreements created from the template.
	Title     string          `json:"title,omitempty"`
	Roles     []SignatoryRole `json:"roles"`
	Fields    []Field         `json:"fields"`
	CreatedAt time.Time       `json:"createdAt,omitzero"`
}

// RoleCount returns the number of signatory roles.
func (t Template) RoleCount() int { return len(t.Roles) }

// RoleByOrder returns the role at the 1-indexed routing order.
func (t Template) RoleByOrder(order int) (SignatoryRole, bool) {
	for _, r := range t.Roles {
		if r.RoutingOrder == order {
			return r, true
		}
	}
	return SignatoryRole{}, false
}

// FieldsForRole returns the fields owned by roleID.
func (t Template) FieldsForRole(roleID string) []Field {
	var out []Field
	for _, f := range t.Fields {
		if f.Scope == ScopeSignatory && f.RoleID == roleID {
			out = append(out, f)
		}
	}
	return out
}

// DocumentFields returns the fields shared by every signer.
func (t Template) DocumentFields() []Field {
	var out []Field
	for _, f := range t.Fields {
		if f.Scope == ScopeDocument {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks that every field has exactly one scope and one page, and
// that signatory fields reference an existing role.
func (t Template) Validate() error {
	roles := make(map[string]bool, len(t.Roles))
	for i, r := range t.Roles {
		if r.RoutingOrder != i+1 {
			return fmt.Errorf("role %q has routing order %d, want %d", r.Name, r.RoutingOrder, i+1)
		}
		roles[r.ID] = true
	}
	for _, f := range t.Fields {
		if f.Page < 1 {
			return fmt.Errorf("field %s has no page", f.ID)
		}
		switch f.Scope {
		case ScopeDocument:
			if f.RoleID != "" {
				return fmt.Errorf("document field %s references role %s", f.ID, f.RoleID)
			}
		case ScopeSignatory:
			if !roles[f.RoleID] {
				return fmt.Errorf("field %s references unknown role %q", f.ID, f.RoleID)
			}
		default:
			return fmt.Errorf("field %s has invalid scope %q", f.ID, f.Scope)
		}
	}
	return nil
}

// AgreementStatus is the lifecycle state of an agreement.
type AgreementStatus string

const (
	StatusDraft      AgreementStatus = "draft"
	StatusCreated    AgreementStatus = "created"
	StatusLinkIssued AgreementStatus = "link-issued"
	StatusInProgress AgreementStatus = "in-progress"
	StatusCompleted  AgreementStatus = "completed"
)

// Signer binds a routing-order slot to a contact.
type Signer struct {
	RoutingOrder int    `json:"routingOrder"`
	RoleID       string `json:"roleId,omitempty"`
	ContactID    string `json:"contactId"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
}

// Agreement is created from exactly one template.
type Agreement struct {
	ID         string          `json:"id,omitempty"`
	TemplateID string          `json:"templateId"`
	Title      string          `json:"title"`
	Status     AgreementStatus `json:"status,omitempty"`
	// ContactID is set instead of Signers for templates without roles.
	ContactID string    `json:"contactId,omitempty"`
	Signers   []Signer  `json:"signers,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// SlotCount returns the number of signer slots: one per signer, or one for
// the single contact of a role-less agreement.
func (a Agreement) SlotCount() int {
	if len(a.Signers) > 0 {
		return len(a.Signers)
	}
	if a.ContactID != "" {
		return 1
	}
	return 0
}

// SigningLink is a public URL plus its out-of-band verification code.
type SigningLink struct {
	AgreementID string    `json:"agreementId"`
	SignerIndex int       `json:"signerIndex"`
	URL         string    `json:"url"`
	Token       string    `json:"token"`
	Code        string    `json:"code"`
	IssuedAt    time.Time `json:"issuedAt,omitzero"`
}

// UnknownSignerIndex marks a link response that did not name its slot.
const UnknownSignerIndex = -1

// UnmarshalJSON keeps an omitted signerIndex distinguishable from slot 0.
func (l *SigningLink) UnmarshalJSON(data []byte) error {
	type plain SigningLink
	p := plain{SignerIndex: UnknownSignerIndex}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = SigningLink(p)
	return nil
}

// Contact is a CRM contact.
type Contact struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
	Address   string `json:"address,omitempty"`
}

// FullName returns "First Last".
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// ValueFor returns the value a contact-derived field shows for c.
func (c Contact) ValueFor(t FieldType) string {
	switch t {
	case FieldContactName, FieldFullName:
		return c.FullName()
	case FieldContactEmail:
		return c.Email
	case FieldContactPhone:
		return c.Phone
	case FieldContactCompany:
		return c.Company
	case FieldContactAddress:
		return c.Address
	}
	return ""
}

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// ValidCode reports whether code is a 6-digit verification code.
func ValidCode(code string) bool { return codePattern.MatchString(code) }

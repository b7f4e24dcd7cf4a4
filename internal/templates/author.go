package templates

import (
	"context"
	"fmt"

	"signflow/internal/crm"
	"signflow/internal/fixtures"
	"signflow/internal/ui"
)

// DefaultSignatureText signs document-scope signature fields when a plan
// does not say otherwise.
const DefaultSignatureText = "Authorized Signatory"

// Plan describes a whole template to author from a coordinate fixture.
type Plan struct {
	Name         string
	DocumentPath string
	Coordinates  *fixtures.CoordinateMap
	// Roles defaults to the roles named in Coordinates.
	Roles         []string
	DefaultValues map[string]string
	Signature     ui.SignatureInput
}

// Authored is the outcome of Author.
type Authored struct {
	TemplateID string
	Name       string
	Roles      []string
	Fields     []AuthoredField
}

// Author creates, fills and saves a template. On each page the shared
// document fields are added first, then each role's fields in routing order.
func (m *Model) Author(ctx context.Context, plan Plan) (Authored, error) {
	if plan.Coordinates == nil {
		return Authored{}, fmt.Errorf("plan %q has no coordinates", plan.Name)
	}
	if plan.Signature == (ui.SignatureInput{}) {
		plan.Signature = ui.SignatureInput{Mode: ui.SignatureTyped, Text: DefaultSignatureText}
	}
	roles := plan.Roles
	if roles == nil {
		roles = plan.Coordinates.Roles()
	}
	known := make(map[string]bool, len(roles))
	for _, r := range roles {
		known[r] = true
	}
	for _, f := range plan.Coordinates.All() {
		if !f.IsDocumentScope() && !known[f.Scope] {
			return Authored{}, fmt.Errorf("field %q belongs to role %q which the plan does not declare", f.Name, f.Scope)
		}
	}

	if err := m.Create(ctx, plan.Name, plan.DocumentPath); err != nil {
		return Authored{}, err
	}
	for _, r := range roles {
		if err := m.AddSignatory(ctx, r); err != nil {
			return Authored{}, err
		}
	}

	for p := 1; p <= fixtures.PageCount; p++ {
		fields := plan.Coordinates.Page(p)
		if len(fields) == 0 {
			continue
		}
		if m.currentPage != p {
			if err := m.GoToPage(ctx, p); err != nil {
				return Authored{}, err
			}
		}

		if err := m.SelectDocumentFields(ctx); err != nil {
			return Authored{}, err
		}
		if err := m.addAll(ctx, plan, fields, func(f fixtures.FieldCoord) bool { return f.IsDocumentScope() }); err != nil {
			return Authored{}, err
		}

		for _, r := range roles {
			owned := func(f fixtures.FieldCoord) bool { return f.Scope == r }
			if !hasAny(fields, owned) {
				continue
			}
			if err := m.SelectSignatory(ctx, r); err != nil {
				return Authored{}, err
			}
			if err := m.addAll(ctx, plan, fields, owned); err != nil {
				return Authored{}, err
			}
		}
	}

	id, err := m.Save(ctx)
	if err != nil {
		return Authored{}, err
	}
	return Authored{TemplateID: id, Name: plan.Name, Roles: m.Roles(), Fields: m.Fields()}, nil
}

func (m *Model) addAll(ctx context.Context, plan Plan, fields []fixtures.FieldCoord, keep func(fixtures.FieldCoord) bool) error {
	for _, f := range fields {
		if !keep(f) {
			continue
		}
		opts := FieldOptions{Signature: plan.Signature}
		if v, ok := plan.DefaultValues[f.Name]; ok && crm.FieldType(f.Type).AcceptsDefault() {
			opts.DefaultValue = v
		}
		if _, err := m.AddField(ctx, f, opts); err != nil {
			return err
		}
	}
	return nil
}

func hasAny(fields []fixtures.FieldCoord, keep func(fixtures.FieldCoord) bool) bool {
	for _, f := range fields {
		if keep(f) {
			return true
		}
	}
	return false
}

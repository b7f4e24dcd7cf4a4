package testing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"signflow/internal/agreements"
	"signflow/internal/crm"
	"signflow/internal/publicsign"
	"signflow/internal/setup"
	"signflow/internal/signinglinks"
	"signflow/internal/templates"
	"signflow/internal/ui"
)

// DefaultTolerance is the placement tolerance in document units.
const DefaultTolerance = 50.0

// DefaultContacts are the contacts signing scenarios bind to signer slots,
// in routing order.
var DefaultContacts = []crm.Contact{
	{FirstName: "Ada", LastName: "Lovelace", Email: "ada.lovelace@signflow.test", Phone: "+44 20 7946 0001", Company: "Analytical Engines Ltd", Address: "12 St James's Square, London"},
	{FirstName: "Alan", LastName: "Turing", Email: "alan.turing@signflow.test", Phone: "+44 20 7946 0002", Company: "Bletchley Park Trust", Address: "Sherwood Drive, Bletchley"},
}

// ActionFunc runs one scenario step against an environment.
type ActionFunc func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error)

// ArgSpec describes one action argument.
type ArgSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// Action is a step a scenario can invoke.
type Action struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Concept     TestConcept `json:"concept"`
	Args        []ArgSpec   `json:"args,omitempty"`

	run ActionFunc
}

// Arg returns the spec of the named argument.
func (a Action) Arg(name string) (ArgSpec, bool) {
	for _, s := range a.Args {
		if s.Name == name {
			return s, true
		}
	}
	return ArgSpec{}, false
}

// Precondition is a named setup requirement a scenario can declare. Its
// output is stored under Store before the first step runs.
type Precondition struct {
	Name        string
	Store       string
	Description string
	Action      string
	Args        map[string]interface{}
}

// Preconditions lists the names accepted in a scenario's requires list.
var Preconditions = map[string]Precondition{
	"fixture-template": {
		Name:        "fixture-template",
		Store:       "template",
		Description: "the two-role fixture template exists",
		Action:      "setup.template",
	},
	"zero-role-template": {
		Name:        "zero-role-template",
		Store:       "zero_role_template",
		Description: "the role-less fixture template exists",
		Action:      "setup.template",
		Args:        map[string]interface{}{"roles": 0},
	},
	"contacts": {
		Name:        "contacts",
		Store:       "contacts",
		Description: "the default signer contacts exist",
		Action:      "setup.contacts",
	},
}

var actionCatalog = map[string]Action{}

func register(a Action) {
	if _, dup := actionCatalog[a.Name]; dup {
		panic("duplicate action " + a.Name)
	}
	actionCatalog[a.Name] = a
}

// LookupAction returns a registered action.
func LookupAction(name string) (Action, bool) {
	a, ok := actionCatalog[name]
	return a, ok
}

// Actions returns every registered action sorted by name.
func Actions() []Action {
	out := make([]Action, 0, len(actionCatalog))
	for _, a := range actionCatalog {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// runAction executes a registered action and converts its output into the
// generic form stored results and expectations work on.
func runAction(ctx context.Context, env *Environment, name string, args map[string]interface{}) (interface{}, error) {
	a, ok := LookupAction(name)
	if !ok {
		return nil, fmt.Errorf("unknown action '%s'", name)
	}
	out, err := a.run(ctx, env, actionArgs(args))
	if out == nil {
		return nil, err
	}
	generic, convErr := toGeneric(out)
	if convErr != nil {
		return nil, errors.Join(err, convErr)
	}
	return generic, err
}

// toGeneric turns typed action output into maps, slices and scalars.
func toGeneric(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode action output: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode action output: %w", err)
	}
	return out, nil
}

type templateOutput struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Roles      []string `json:"roles"`
	RoleCount  int      `json:"role_count"`
	FieldCount int      `json:"field_count"`
	// Pages counts fields per page number.
	Pages     map[string]int `json:"pages,omitempty"`
	Misplaced []string       `json:"misplaced"`
	MaxDelta  float64        `json:"max_delta,omitempty"`
}

func templateFrom(t crm.Template) templateOutput {
	out := templateOutput{ID: t.ID, Name: t.Name, RoleCount: t.RoleCount(), FieldCount: len(t.Fields), Roles: []string{}, Misplaced: []string{}}
	for _, r := range t.Roles {
		out.Roles = append(out.Roles, r.Name)
	}
	out.Pages = make(map[string]int)
	for _, f := range t.Fields {
		out.Pages[strconv.Itoa(f.Page)]++
	}
	return out
}

type contactOutput struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Company   string `json:"company"`
	Address   string `json:"address"`
}

func contactFrom(c crm.Contact) contactOutput {
	return contactOutput{
		ID: c.ID, Name: c.FullName(), FirstName: c.FirstName, LastName: c.LastName,
		Email: c.Email, Phone: c.Phone, Company: c.Company, Address: c.Address,
	}
}

type linkOutput struct {
	AgreementID string `json:"agreement_id"`
	SignerIndex int    `json:"signer_index"`
	URL         string `json:"url"`
	Token       string `json:"token"`
	Code        string `json:"code"`
}

func linkFrom(l crm.SigningLink) linkOutput {
	return linkOutput{AgreementID: l.AgreementID, SignerIndex: l.SignerIndex, URL: l.URL, Token: l.Token, Code: l.Code}
}

type regeneratedOutput struct {
	linkOutput
	PreviousCode string   `json:"previous_code"`
	Invalidated  []string `json:"invalidated"`
}

type existingLinkOutput struct {
	Found bool `json:"found"`
	linkOutput
}

type stepOutput struct {
	Step    string `json:"step"`
	Message string `json:"message,omitempty"`
}

func slotArgs(args actionArgs) (signinglinks.Slot, error) {
	id, err := args.String("agreement_id")
	if err != nil {
		return signinglinks.Slot{}, err
	}
	idx, err := args.IntOr("signer_index", 0)
	if err != nil {
		return signinglinks.Slot{}, err
	}
	if idx < 0 {
		return signinglinks.Slot{}, argErr("signer_index", "must not be negative, got %d", idx)
	}
	return signinglinks.Slot{AgreementID: id, SignerIndex: idx}, nil
}

// signersArg reads the signers list: each item is an email or a map with
// name and email.
func signersArg(args actionArgs) ([]agreements.ContactIdentity, error) {
	list, err := args.List("signers")
	if err != nil {
		return nil, err
	}
	out := make([]agreements.ContactIdentity, 0, len(list))
	for i, item := range list {
		switch v := item.(type) {
		case string:
			out = append(out, agreements.ContactIdentity{Email: v})
		case map[string]interface{}:
			name, _ := v["name"].(string)
			email, _ := v["email"].(string)
			if name == "" && email == "" {
				return nil, argErr("signers", "item %d has neither name nor email", i+1)
			}
			out = append(out, agreements.ContactIdentity{Name: name, Email: email})
		default:
			return nil, argErr("signers", "item %d must be an email or a map, got %T", i+1, item)
		}
	}
	return out, nil
}

// lookupContact finds a contact by email through the REST API.
func lookupContact(ctx context.Context, env *Environment, email string) (crm.Contact, error) {
	found, err := env.API.SearchContacts(ctx, email)
	if err != nil {
		return crm.Contact{}, fmt.Errorf("failed to search contact %s: %w", email, err)
	}
	for _, c := range found {
		if strings.EqualFold(c.Email, email) {
			return c, nil
		}
	}
	return crm.Contact{}, setup.Unavailable("contact %s does not exist", email)
}

func signatureArg(args actionArgs) (ui.SignatureInput, error) {
	text, err := args.StringOr("signature_text", "")
	if err != nil {
		return ui.SignatureInput{}, err
	}
	if text == "" {
		return ui.SignatureInput{Mode: ui.SignatureDrawn}, nil
	}
	return ui.SignatureInput{Mode: ui.SignatureTyped, Text: text}, nil
}

func init() {
	registerSetupActions()
	registerTemplateActions()
	registerAgreementActions()
	registerLinkActions()
	registerSigningActions()
}

func registerSetupActions() {
	register(Action{
		Name:        "setup.template",
		Description: "Find or create the fixture template with the given number of roles",
		Concept:     ConceptTemplate,
		Args: []ArgSpec{
			{Name: "roles", Type: "number", Description: "role count: 0 or the number of roles in the coordinate map (default)"},
		},
		run: func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error) {
			n, err := args.IntOr("roles", len(env.Coordinates.Roles()))
			if err != nil {
				return nil, err
			}
			key, err := env.FixtureKey(n)
			if err != nil {
				return nil, err
			}
			t, err := env.Ensurer().Template(ctx, key)
			if err != nil {
				return nil, err
			}
			return templateFrom(t), nil
		},
	})

	register(Action{
		Name:        "setup.contacts",
		Description: "Find, or seed when allowed, the default signer contacts",
		Concept:     ConceptAgreement,
		Args: []ArgSpec{
			{Name: "count", Type: "number", Description: "how many of the default contacts to ensure (default all)"},
		},
		run: func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error) {
			n, err := args.IntOr("count", len(DefaultContacts))
			if err != nil {
				return nil, err
			}
			if n < 1 || n > len(DefaultContacts) {
				return nil, argErr("count", "must be between 1 and %d, got %d", len(DefaultContacts), n)
			}
			contacts, err := env.Ensurer().Contacts(ctx, DefaultContacts[:n])
			if err != nil {
				return nil, err
			}
			out := struct {
				Count    int             `json:"count"`
				Contacts []contactOutput `json:"contacts"`
			}{Count: len(contacts)}
			for _, c := range contacts {
				out.Contacts = append(out.Contacts, contactFrom(c))
			}
			return out, nil
		},
	})
}

func registerTemplateActions() {
	register(Action{
		Name:        "template.author",
		Description: "Author a template from the coordinate map in the editor and save it",
		Concept:     ConceptTemplate,
		Args: []ArgSpec{
			{Name: "name", Type: "string", Required: true, Description: "template name"},
			{Name: "zero_roles", Type: "boolean", Description: "author only document-scope fields"},
			{Name: "tolerance", Type: "number", Description: "placement tolerance in document units (default 50)"},
		},
		run: func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error) {
			name, err := args.String("name")
			if err != nil {
				return nil, err
			}
			zero, err := args.BoolOr("zero_roles", false)
			if err != nil {
				return nil, err
			}
			tol, err := args.FloatOr("tolerance", DefaultTolerance)
			if err != nil {
				return nil, err
			}
			plan := templates.Plan{
				Name:          name,
				DocumentPath:  env.DocumentPath,
				Coordinates:   env.Coordinates,
				DefaultValues: fixtureDefaults,
			}
			if zero {
				plan.Coordinates = env.Coordinates.WithoutRoles()
				plan.Roles = []string{}
			}
			authored, err := env.TemplateModel().Author(ctx, plan)
			if err != nil {
				return nil, err
			}

			out := templateOutput{
				ID: authored.TemplateID, Name: authored.Name, Roles: authored.Roles,
				RoleCount: len(authored.Roles), FieldCount: len(authored.Fields),
				Pages: make(map[string]int), Misplaced: []string{},
			}
			if out.Roles == nil {
				out.Roles = []string{}
			}
			for _, f := range authored.Fields {
				out.Pages[strconv.Itoa(f.Coord.Page)]++
				d := f.Placement.Delta
				out.MaxDelta = max(out.MaxDelta, abs(d.X), abs(d.Y))
				if !f.Placement.Within(tol) {
					out.Misplaced = append(out.Misplaced, f.Coord.Name)
				}
			}
			if len(out.Misplaced) > 0 {
				return out, fmt.Errorf("%d field(s) landed outside %.0f units: %s", len(out.Misplaced), tol, strings.Join(out.Misplaced, ", "))
			}
			return out, nil
		},
	})

	register(Action{
		Name:        "template.verify",
		Description: "Read a saved template and check its fields against the coordinate map",
		Concept:     ConceptTemplate,
		Args: []ArgSpec{
			{Name: "id", Type: "string", Required: true, Description: "template id"},
			{Name: "tolerance", Type: "number", Description: "position tolerance in document units (default 50)"},
		},
		run: func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error) {
			id, err := args.String("id")
			if err != nil {
				return nil, err
			}
			tol, err := args.FloatOr("tolerance", DefaultTolerance)
			if err != nil {
				return nil, err
			}
			t, err := env.API.GetTemplate(ctx, id)
			if err != nil {
				return nil, err
			}
			out := templateFrom(t)
			if err := t.Validate(); err != nil {
				return out, fmt.Errorf("template %s is inconsistent: %w", id, err)
			}
			for _, f := range t.Fields {
				want, ok := env.Coordinates.Lookup(f.Name)
				if !ok {
					continue
				}
				dx, dy := abs(f.X-want.X), abs(f.Y-want.Y)
				out.MaxDelta = max(out.MaxDelta, dx, dy)
				if f.Page != want.Page || dx > tol || dy > tol {
					out.Misplaced = append(out.Misplaced, f.Name)
				}
			}
			if len(out.Misplaced) > 0 {
				return out, fmt.Errorf("%d field(s) are off their fixture position: %s", len(out.Misplaced), strings.Join(out.Misplaced, ", "))
			}
			return out, nil
		},
	})
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func registerAgreementActions() {
	signers := ArgSpec{Name: "signers", Type: "list", Required: true, Description: "signer emails (or name/email maps) in routing order"}
	templateID := ArgSpec{Name: "template_id", Type: "string", Required: true, Description: "template to create the agreement from"}
	title := ArgSpec{Name: "title", Type: "string", Description: "agreement title; generated when empty"}

	register(Action{
		Name:        "agreement.create",
		Description: "Create an agreement in the form, binding one contact per signer slot",
		Concept:     ConceptAgreement,
		Args:        []ArgSpec{templateID, title, signers},
		run: func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error) {
			req, err := agreementRequest(args)
			if err != nil {
				return nil, err
			}
			created, err := env.AgreementModel().Create(ctx, req)
			if err != nil {
				return nil, err
			}
			return struct {
				ID          string `json:"id"`
				TemplateID  string `json:"template_id"`
				Title       string `json:"title"`
				RoleCount   int    `json:"role_count"`
				SignerCount int    `json:"signer_count"`
			}{created.ID, created.TemplateID, created.Title, created.RoleCount, len(req.Signers)}, nil
		},
	})

	register(Action{
		Name:        "agreement.create_unresolved",
		Description: "Submit the agreement form leaving one signer slot unresolved and return the validation message",
		Concept:     ConceptAgreement,
		Args: []ArgSpec{templateID, title, signers,
			{Name: "role_index", Type: "number", Required: true, Description: "0-based signer slot left empty"},
		},
		run: func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error) {
			req, err := agreementRequest(args)
			if err != nil {
				return nil, err
			}
			idx, err := args.Int("role_index")
			if err != nil {
				return nil, err
			}
			msg, err := env.AgreementModel().SubmitWithUnresolvedRole(ctx, req, idx)
			if err != nil {
				return nil, err
			}
			return struct {
				Rejected bool   `json:"rejected"`
				Message  string `json:"message"`
			}{true, msg}, nil
		},
	})

	register(Action{
		Name:        "agreement.signer_order",
		Description: "Read the signer names the agreement detail view lists",
		Concept:     ConceptAgreement,
		Args:        []ArgSpec{{Name: "id", Type: "string", Required: true, Description: "agreement id"}},
		run: func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error) {
			id, err := args.String("id")
			if err != nil {
				return nil, err
			}
			names, err := env.AgreementModel().SignerOrder(ctx, id)
			if err != nil {
				return nil, err
			}
			return struct {
				Count   int      `json:"count"`
				Signers []string `json:"signers"`
			}{len(names), names}, nil
		},
	})

	register(Action{
		Name:        "agreement.get",
		Description: "Read an agreement through the REST API",
		Concept:     ConceptAgreement,
		Args:        []ArgSpec{{Name: "id", Type: "string", Required: true, Description: "agreement id"}},
		run: func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error) {
			id, err := args.String("id")
			if err != nil {
				return nil, err
			}
			a, err := env.API.GetAgreement(ctx, id)
			if err != nil {
				return nil, err
			}
			type signer struct {
				RoutingOrder int    `json:"routing_order"`
				ContactID    string `json:"contact_id"`
				Name         string `json:"name"`
				Email        string `json:"email"`
			}
			out := struct {
				ID         string   `json:"id"`
				TemplateID string   `json:"template_id"`
				Title      string   `json:"title"`
				Status     string   `json:"status"`
				SlotCount  int      `json:"slot_count"`
				ContactID  string   `json:"contact_id,omitempty"`
				Signers    []signer `json:"signers"`
			}{ID: a.ID, TemplateID: a.TemplateID, Title: a.Title, Status: string(a.Status), SlotCount: a.SlotCount(), ContactID: a.ContactID, Signers: []signer{}}
			for _, s := range a.Signers {
				out.Signers = append(out.Signers, signer{s.RoutingOrder, s.ContactID, s.Name, s.Email})
			}
			return out, nil
		},
	})
}

func agreementRequest(args actionArgs) (agreements.Request, error) {
	id, err := args.String("template_id")
	if err != nil {
		return agreements.Request{}, err
	}
	title, err := args.StringOr("title", "")
	if err != nil {
		return agreements.Request{}, err
	}
	signers, err := signersArg(args)
	if err != nil {
		return agreements.Request{}, err
	}
	return agreements.Request{TemplateID: id, Title: title, Signers: signers}, nil
}

func registerLinkActions() {
	slot := []ArgSpec{
		{Name: "agreement_id", Type: "string", Required: true, Description: "agreement id"},
		{Name: "signer_index", Type: "number", Description: "0-based signer slot (default 0)"},
	}

	register(Action{
		Name:        "link.generate",
		Description: "Issue the public signing link of a signer slot",
		Concept:     ConceptSigningLink,
		Args:        slot,
		run: func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error) {
			s, err := slotArgs(args)
			if err != nil {
				return nil, err
			}
			l, err := env.Links().Generate(ctx, s)
			if err != nil {
				return nil, err
			}
			return linkFrom(l), nil
		},
	})

	register(Action{
		Name:        "link.regenerate",
		Description: "Regenerate the link of a signer slot, invalidating every earlier code",
		Concept:     ConceptSigningLink,
		Args:        slot,
		run: func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error) {
			s, err := slotArgs(args)
			if err != nil {
				return nil, err
			}
			l, err := env.Links().Regenerate(ctx, s)
			if err != nil {
				return nil, err
			}
			out := regeneratedOutput{linkOutput: linkFrom(l), Invalidated: env.Links().InvalidatedCodes(s)}
			if n := len(out.Invalidated); n > 0 {
				out.PreviousCode = out.Invalidated[n-1]
			}
			return out, nil
		},
	})

	register(Action{
		Name:        "link.get",
		Description: "Read the current link of a signer slot without changing it",
		Concept:     ConceptSigningLink,
		Args:        slot,
		run: func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error) {
			s, err := slotArgs(args)
			if err != nil {
				return nil, err
			}
			l, err := env.Links().GetExisting(ctx, s)
			if err != nil {
				return nil, err
			}
			if l == nil {
				return existingLinkOutput{}, nil
			}
			return existingLinkOutput{Found: true, linkOutput: linkFrom(*l)}, nil
		},
	})
}

func registerSigningActions() {
	register(Action{
		Name:        "sign.open",
		Description: "Open a public signing link in a fresh signing session",
		Concept:     ConceptPublicSigning,
		Args:        []ArgSpec{{Name: "url", Type: "string", Required: true, Description: "public signing url"}},
		run: func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error) {
			u, err := args.String("url")
			if err != nil {
				return nil, err
			}
			step, err := env.NewSession().Open(ctx, u)
			return stepOutput{Step: step.String()}, err
		},
	})

	register(Action{
		Name:        "sign.verify_code",
		Description: "Submit a verification code; a wrong code is reported, not returned as an error",
		Concept:     ConceptPublicSigning,
		Args:        []ArgSpec{{Name: "code", Type: "string", Required: true, Description: "6-digit code"}},
		run: func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error) {
			code, err := args.String("code")
			if err != nil {
				return nil, err
			}
			s, err := env.Session()
			if err != nil {
				return nil, err
			}
			step, err := s.VerifyCode(ctx, code)
			if err != nil {
				return stepOutput{Step: step.String()}, err
			}
			out := stepOutput{Step: step.String()}
			if step != publicsign.StepIdentity {
				out.Message, err = s.CodeError(ctx)
			}
			return out, err
		},
	})

	register(Action{
		Name:        "sign.identity",
		Description: "Submit the identity step for a contact; explicit fields override the contact's values",
		Concept:     ConceptPublicSigning,
		Args: []ArgSpec{
			{Name: "contact", Type: "string", Description: "email of the contact whose identity is submitted"},
			{Name: "first_name", Type: "string", Description: "first name override"},
			{Name: "last_name", Type: "string", Description: "last name override"},
			{Name: "email", Type: "string", Description: "email override"},
			{Name: "phone", Type: "string", Description: "phone override"},
			{Name: "consent", Type: "boolean", Description: "tick the e-signature consent (default true)"},
		},
		run: func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error) {
			s, err := env.Session()
			if err != nil {
				return nil, err
			}
			id, err := identityArg(ctx, env, args)
			if err != nil {
				return nil, err
			}
			step, err := s.SubmitIdentity(ctx, id)
			if err != nil {
				return stepOutput{Step: step.String()}, err
			}
			out := stepOutput{Step: step.String()}
			if step != publicsign.StepFields {
				out.Message, err = s.IdentityError(ctx)
			}
			return out, err
		},
	})

	register(Action{
		Name:        "sign.fields",
		Description: "Read every rendered field of the signer",
		Concept:     ConceptPublicSigning,
		run: func(ctx context.Context, env *Environment, _ actionArgs) (interface{}, error) {
			s, err := env.Session()
			if err != nil {
				return nil, err
			}
			fields, err := s.Fields(ctx)
			if err != nil {
				return nil, err
			}
			type field struct {
				Name     string `json:"name"`
				Type     string `json:"type"`
				Page     int    `json:"page"`
				Required bool   `json:"required"`
				Filled   bool   `json:"filled"`
				Value    string `json:"value"`
			}
			out := struct {
				Count    int              `json:"count"`
				Required int              `json:"required"`
				Fields   []field          `json:"fields"`
				ByName   map[string]field `json:"by_name"`
			}{Fields: []field{}, ByName: make(map[string]field)}
			for _, f := range fields {
				ff := field{f.Name, string(f.Type), f.Page, f.Required, f.Filled, f.Value}
				out.Fields = append(out.Fields, ff)
				out.ByName[f.Name] = ff
				if f.Required {
					out.Required++
				}
			}
			out.Count = len(fields)
			return out, nil
		},
	})

	register(Action{
		Name:        "sign.verify_prefilled",
		Description: "Check that contact-derived fields show the bound contact's values",
		Concept:     ConceptPublicSigning,
		Args:        []ArgSpec{{Name: "contact", Type: "string", Required: true, Description: "email of the bound contact"}},
		run: func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error) {
			s, err := env.Session()
			if err != nil {
				return nil, err
			}
			email, err := args.String("contact")
			if err != nil {
				return nil, err
			}
			c, err := lookupContact(ctx, env, email)
			if err != nil {
				return nil, err
			}
			if err := s.VerifyPrefilled(ctx, c); err != nil {
				return nil, err
			}
			return contactFrom(c), nil
		},
	})

	register(Action{
		Name:        "sign.verify_positions",
		Description: "Check that a role's fields render within tolerance of their fixture positions",
		Concept:     ConceptPublicSigning,
		Args: []ArgSpec{
			{Name: "role", Type: "string", Required: true, Description: "role whose visible fields are checked"},
			{Name: "tolerance", Type: "number", Description: "tolerance in document units (default 50)"},
		},
		run: func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error) {
			s, err := env.Session()
			if err != nil {
				return nil, err
			}
			role, err := args.String("role")
			if err != nil {
				return nil, err
			}
			tol, err := args.FloatOr("tolerance", DefaultTolerance)
			if err != nil {
				return nil, err
			}
			expected := env.Coordinates.VisibleTo(role)
			if err := s.VerifyPositions(ctx, expected, tol); err != nil {
				return nil, err
			}
			return struct {
				Checked int `json:"checked"`
			}{len(expected)}, nil
		},
	})

	register(Action{
		Name:        "sign.fill_all",
		Description: "Fill every required empty field, plus any text field given explicitly",
		Concept:     ConceptPublicSigning,
		Args: []ArgSpec{
			{Name: "text", Type: "map", Description: "text values by field name"},
			{Name: "signature_text", Type: "string", Description: "type this signature instead of drawing one"},
		},
		run: func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error) {
			s, err := env.Session()
			if err != nil {
				return nil, err
			}
			text, err := args.StringMap("text")
			if err != nil {
				return nil, err
			}
			sig, err := signatureArg(args)
			if err != nil {
				return nil, err
			}
			n, err := s.Fill(ctx, publicsign.Values{Text: text, Signature: sig})
			return struct {
				Filled int `json:"filled"`
			}{n}, err
		},
	})

	register(Action{
		Name:        "sign.go_to_page",
		Description: "Show one page of the document",
		Concept:     ConceptPublicSigning,
		Args:        []ArgSpec{{Name: "page", Type: "number", Required: true, Description: "1-based page"}},
		run: func(ctx context.Context, env *Environment, args actionArgs) (interface{}, error) {
			s, err := env.Session()
			if err != nil {
				return nil, err
			}
			p, err := args.Int("page")
			if err != nil {
				return nil, err
			}
			if err := s.GoToPage(ctx, p); err != nil {
				return nil, err
			}
			return struct {
				Page int `json:"page"`
			}{p}, nil
		},
	})

	register(Action{
		Name:        "sign.try_complete",
		Description: "Press complete and report the step reached and any remaining-fields message",
		Concept:     ConceptPublicSigning,
		run: func(ctx context.Context, env *Environment, _ actionArgs) (interface{}, error) {
			s, err := env.Session()
			if err != nil {
				return nil, err
			}
			step, msg, err := s.TryComplete(ctx)
			return stepOutput{Step: step.String(), Message: msg}, err
		},
	})

	register(Action{
		Name:        "sign.complete",
		Description: "Complete signing; fails while required fields remain",
		Concept:     ConceptPublicSigning,
		run: func(ctx context.Context, env *Environment, _ actionArgs) (interface{}, error) {
			s, err := env.Session()
			if err != nil {
				return nil, err
			}
			msg, err := s.Complete(ctx)
			return stepOutput{Step: s.Step().String(), Message: msg}, err
		},
	})

	register(Action{
		Name:        "sign.history",
		Description: "Return every step the session observed, in order",
		Concept:     ConceptPublicSigning,
		run: func(_ context.Context, env *Environment, _ actionArgs) (interface{}, error) {
			s, err := env.Session()
			if err != nil {
				return nil, err
			}
			steps := []string{}
			for _, st := range s.History() {
				steps = append(steps, st.String())
			}
			return struct {
				Step  string   `json:"step"`
				Steps []string `json:"steps"`
			}{s.Step().String(), steps}, nil
		},
	})
}

func identityArg(ctx context.Context, env *Environment, args actionArgs) (publicsign.Identity, error) {
	var id publicsign.Identity
	if args.has("contact") {
		email, err := args.String("contact")
		if err != nil {
			return id, err
		}
		c, err := lookupContact(ctx, env, email)
		if err != nil {
			return id, err
		}
		id = publicsign.IdentityFor(c)
	}
	for key, dst := range map[string]*string{
		"first_name": &id.FirstName,
		"last_name":  &id.LastName,
		"email":      &id.Email,
		"phone":      &id.Phone,
	} {
		if !args.has(key) {
			continue
		}
		v, err := args.String(key)
		if err != nil {
			return id, err
		}
		*dst = v
	}
	consent, err := args.BoolOr("consent", true)
	if err != nil {
		return id, err
	}
	id.Consent = consent
	return id, nil
}

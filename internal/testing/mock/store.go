package mock

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"signflow/internal/crm"
)

// DateLayout formats dates shown on the signing page.
const DateLayout = "2006-01-02"

var (
	// ErrNotFound is returned for unknown ids. The API maps it to 404.
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned when a request breaks a server-side rule. The API
	// maps it to 422.
	ErrInvalid = errors.New("invalid request")
)

type slotKey struct {
	agreementID string
	index       int
}

type linkSlot struct {
	current crm.SigningLink
	// codes holds every code ever issued for the slot, oldest first.
	codes []string
	// used is set once the current code carried a signer past identity.
	used bool
}

// Store is the fake CRM's shared state. All methods are safe for concurrent
// use and return copies.
type Store struct {
	mu          sync.Mutex
	clock       Clock
	rng         *rand.Rand
	workspaceID string
	baseURL     string

	seq            map[string]int
	templates      map[string]crm.Template
	templateOrder  []string
	agreements     map[string]crm.Agreement
	agreementOrder []string
	contacts       map[string]crm.Contact
	contactOrder   []string
	links          map[slotKey]*linkSlot
	tokens         map[string]slotKey
	signed         map[slotKey]map[string]string
}

// NewStore creates an empty store. Signing URLs are rooted at baseURL.
func NewStore(workspaceID, baseURL string, clock Clock, seed uint64) *Store {
	if clock == nil {
		clock = RealClock{}
	}
	return &Store{
		clock:       clock,
		rng:         rand.New(rand.NewPCG(seed, seed^0x5eed)),
		workspaceID: workspaceID,
		baseURL:     strings.TrimRight(baseURL, "/"),
		seq:         make(map[string]int),
		templates:   make(map[string]crm.Template),
		agreements:  make(map[string]crm.Agreement),
		contacts:    make(map[string]crm.Contact),
		links:       make(map[slotKey]*linkSlot),
		tokens:      make(map[string]slotKey),
		signed:      make(map[slotKey]map[string]string),
	}
}

// WorkspaceID returns the only workspace the store serves.
func (s *Store) WorkspaceID() string { return s.workspaceID }

// Now returns the store clock's time.
func (s *Store) Now() time.Time { return s.clock.Now() }

// NextID returns a fresh id such as "tpl_3".
func (s *Store) NextID(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID(prefix)
}

func (s *Store) nextID(prefix string) string {
	s.seq[prefix]++
	return fmt.Sprintf("%s_%d", prefix, s.seq[prefix])
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

func cloneTemplate(t crm.Template) crm.Template {
	t.Roles = slices.Clone(t.Roles)
	t.Fields = slices.Clone(t.Fields)
	return t
}

func cloneAgreement(a crm.Agreement) crm.Agreement {
	a.Signers = slices.Clone(a.Signers)
	return a
}

// normalizeTemplate assigns missing role and field ids and routing orders.
func (s *Store) normalizeTemplate(t *crm.Template) error {
	if strings.TrimSpace(t.Name) == "" {
		return invalid("template name is required")
	}
	for i := range t.Roles {
		if t.Roles[i].ID == "" {
			t.Roles[i].ID = s.nextID("role")
		}
		if t.Roles[i].RoutingOrder == 0 {
			t.Roles[i].RoutingOrder = i + 1
		}
	}
	for i := range t.Fields {
		if t.Fields[i].ID == "" {
			t.Fields[i].ID = s.nextID("fld")
		}
		if _, err := crm.ParseFieldType(string(t.Fields[i].Type)); err != nil {
			return invalid("%v", err)
		}
	}
	if err := t.Validate(); err != nil {
		return invalid("%v", err)
	}
	return nil
}

// CreateTemplate stores a new template.
func (s *Store) CreateTemplate(t crm.Template) (crm.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t = cloneTemplate(t)
	if err := s.normalizeTemplate(&t); err != nil {
		return crm.Template{}, err
	}
	t.ID = s.nextID("tpl")
	t.CreatedAt = s.clock.Now()
	s.templates[t.ID] = t
	s.templateOrder = append(s.templateOrder, t.ID)
	return cloneTemplate(t), nil
}

// UpdateTemplate replaces an existing template.
func (s *Store) UpdateTemplate(t crm.Template) (crm.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.templates[t.ID]
	if !ok {
		return crm.Template{}, notFound("template", t.ID)
	}
	t = cloneTemplate(t)
	if err := s.normalizeTemplate(&t); err != nil {
		return crm.Template{}, err
	}
	t.CreatedAt = old.CreatedAt
	s.templates[t.ID] = t
	return cloneTemplate(t), nil
}

// GetTemplate returns a template by id.
func (s *Store) GetTemplate(id string) (crm.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[id]
	if !ok {
		return crm.Template{}, notFound("template", id)
	}
	return cloneTemplate(t), nil
}

// SearchTemplates returns templates whose name contains query, ignoring case,
// in creation order.
func (s *Store) SearchTemplates(query string) []crm.Template {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(query))
	out := []crm.Template{}
	for _, id := range s.templateOrder {
		t := s.templates[id]
		if strings.Contains(strings.ToLower(t.Name), q) {
			out = append(out, cloneTemplate(t))
		}
	}
	return out
}

// DeleteTemplate removes a template.
func (s *Store) DeleteTemplate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[id]; !ok {
		return notFound("template", id)
	}
	delete(s.templates, id)
	s.templateOrder = slices.DeleteFunc(s.templateOrder, func(v string) bool { return v == id })
	return nil
}

// CreateContact stores a contact.
func (s *Store) CreateContact(c crm.Contact) (crm.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.FullName() == "" || c.Email == "" {
		return crm.Contact{}, invalid("contact needs a name and an email")
	}
	c.ID = s.nextID("ct")
	s.contacts[c.ID] = c
	s.contactOrder = append(s.contactOrder, c.ID)
	return c, nil
}

// SeedContacts stores contacts and returns them with ids.
func (s *Store) SeedContacts(contacts ...crm.Contact) ([]crm.Contact, error) {
	out := make([]crm.Contact, 0, len(contacts))
	for _, c := range contacts {
		created, err := s.CreateContact(c)
		if err != nil {
			return nil, err
		}
		out = append(out, created)
	}
	return out, nil
}

// SearchContacts matches query against names, email and company, ignoring
// case. An empty query matches every contact.
func (s *Store) SearchContacts(query string) []crm.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(query))
	out := []crm.Contact{}
	for _, id := range s.contactOrder {
		c := s.contacts[id]
		hay := strings.ToLower(strings.Join([]string{c.FullName(), c.Email, c.Company}, " "))
		if strings.Contains(hay, q) {
			out = append(out, c)
		}
	}
	return out
}

// GetContact returns a contact by id.
func (s *Store) GetContact(id string) (crm.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok {
		return crm.Contact{}, notFound("contact", id)
	}
	return c, nil
}

// CreateAgreement validates the signer slots against the template's roles
// and stores the agreement. A template without roles takes exactly one
// contact; a template with R roles takes exactly R signers in routing order.
func (s *Store) CreateAgreement(a crm.Agreement) (crm.Agreement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[a.TemplateID]
	if !ok {
		return crm.Agreement{}, invalid("unknown template %q", a.TemplateID)
	}
	if strings.TrimSpace(a.Title) == "" {
		return crm.Agreement{}, invalid("title is required")
	}
	a = cloneAgreement(a)

	if len(t.Roles) == 0 {
		if len(a.Signers) > 0 {
			return crm.Agreement{}, invalid("template %s has no signatory roles", t.ID)
		}
		if _, ok := s.contacts[a.ContactID]; !ok {
			return crm.Agreement{}, invalid("a contact is required")
		}
	} else {
		if a.ContactID != "" {
			return crm.Agreement{}, invalid("template %s assigns contacts per signer", t.ID)
		}
		if len(a.Signers) != len(t.Roles) {
			return crm.Agreement{}, invalid("template %s has %d signatory roles, got %d signers", t.ID, len(t.Roles), len(a.Signers))
		}
		for i := range a.Signers {
			sg, role := &a.Signers[i], t.Roles[i]
			if sg.RoutingOrder == 0 {
				sg.RoutingOrder = i + 1
			}
			if sg.RoutingOrder != role.RoutingOrder {
				return crm.Agreement{}, invalid("signer %d has routing order %d, want %d", i+1, sg.RoutingOrder, role.RoutingOrder)
			}
			c, ok := s.contacts[sg.ContactID]
			if !ok {
				return crm.Agreement{}, invalid("Signer %d (%s) is required", role.RoutingOrder, role.Name)
			}
			sg.RoleID = role.ID
			sg.Name = c.FullName()
			sg.Email = c.Email
		}
	}

	a.ID = s.nextID("agr")
	a.Status = crm.StatusCreated
	a.CreatedAt = s.clock.Now()
	s.agreements[a.ID] = a
	s.agreementOrder = append(s.agreementOrder, a.ID)
	return cloneAgreement(a), nil
}

// GetAgreement returns an agreement by id.
func (s *Store) GetAgreement(id string) (crm.Agreement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agreements[id]
	if !ok {
		return crm.Agreement{}, notFound("agreement", id)
	}
	return cloneAgreement(a), nil
}

var patchableStatus = map[crm.AgreementStatus]bool{
	crm.StatusDraft: true, crm.StatusCreated: true, crm.StatusLinkIssued: true,
	crm.StatusInProgress: true, crm.StatusCompleted: true,
}

// PatchAgreement applies a partial update of title and status.
func (s *Store) PatchAgreement(id string, patch map[string]interface{}) (crm.Agreement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agreements[id]
	if !ok {
		return crm.Agreement{}, notFound("agreement", id)
	}
	for k, v := range patch {
		str, ok := v.(string)
		if !ok {
			return crm.Agreement{}, invalid("%s must be a string", k)
		}
		switch k {
		case "title":
			if strings.TrimSpace(str) == "" {
				return crm.Agreement{}, invalid("title is required")
			}
			a.Title = str
		case "status":
			st := crm.AgreementStatus(str)
			if !patchableStatus[st] {
				return crm.Agreement{}, invalid("unknown status %q", str)
			}
			a.Status = st
		default:
			return crm.Agreement{}, invalid("field %q cannot be patched", k)
		}
	}
	s.agreements[id] = a
	return cloneAgreement(a), nil
}

// newCode returns a 6-digit code not present in used.
func (s *Store) newCode(used []string) string {
	for {
		code := fmt.Sprintf("%06d", s.rng.IntN(1000000))
		if !slices.Contains(used, code) {
			return code
		}
	}
}

func (s *Store) newLink(key slotKey, used []string) crm.SigningLink {
	token := uuid.NewString()
	return crm.SigningLink{
		AgreementID: key.agreementID,
		SignerIndex: key.index,
		URL:         s.baseURL + crm.SigningPath(s.workspaceID, key.agreementID, token),
		Token:       token,
		Code:        s.newCode(used),
		IssuedAt:    s.clock.Now(),
	}
}

func (s *Store) slot(agreementID string, index int) (slotKey, error) {
	a, ok := s.agreements[agreementID]
	if !ok {
		return slotKey{}, notFound("agreement", agreementID)
	}
	if index < 0 || index >= a.SlotCount() {
		return slotKey{}, invalid("agreement %s has no signer %d", agreementID, index)
	}
	return slotKey{agreementID: agreementID, index: index}, nil
}

// IssueLink issues the signing link of a slot. Issuing again returns the
// current link unchanged.
func (s *Store) IssueLink(agreementID string, index int) (crm.SigningLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.slot(agreementID, index)
	if err != nil {
		return crm.SigningLink{}, err
	}
	if ls, ok := s.links[key]; ok {
		return ls.current, nil
	}

	link := s.newLink(key, nil)
	s.links[key] = &linkSlot{current: link, codes: []string{link.Code}}
	s.tokens[link.Token] = key

	a := s.agreements[agreementID]
	if a.Status == crm.StatusCreated || a.Status == crm.StatusDraft {
		a.Status = crm.StatusLinkIssued
		s.agreements[agreementID] = a
	}
	return link, nil
}

// RegenerateLink replaces the link of a slot. The previous token stops
// resolving and the new code differs from every code issued for the slot.
func (s *Store) RegenerateLink(agreementID string, index int) (crm.SigningLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.slot(agreementID, index)
	if err != nil {
		return crm.SigningLink{}, err
	}
	ls, ok := s.links[key]
	if !ok {
		return crm.SigningLink{}, notFound("signing link", fmt.Sprintf("%s/%d", agreementID, index))
	}

	link := s.newLink(key, ls.codes)
	delete(s.tokens, ls.current.Token)
	ls.current = link
	ls.used = false
	ls.codes = append(ls.codes, link.Code)
	s.tokens[link.Token] = key
	return link, nil
}

// GetLink returns the current link of a slot.
func (s *Store) GetLink(agreementID string, index int) (crm.SigningLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ls, ok := s.links[slotKey{agreementID: agreementID, index: index}]
	if !ok {
		return crm.SigningLink{}, notFound("signing link", fmt.Sprintf("%s/%d", agreementID, index))
	}
	return ls.current, nil
}

// IssuedCodes returns every code issued for a slot, oldest first.
func (s *Store) IssuedCodes(agreementID string, index int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ls, ok := s.links[slotKey{agreementID: agreementID, index: index}]
	if !ok {
		return nil
	}
	return slices.Clone(ls.codes)
}

// ConsumeCode marks the current code of the token's slot as spent. A
// regenerated link starts with an unspent code.
func (s *Store) ConsumeCode(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.tokens[token]
	if !ok {
		return notFound("signing token", token)
	}
	s.links[key].used = true
	return nil
}

// CodeUsed reports whether the current code of the token's slot has
// already carried a signer past the identity step.
func (s *Store) CodeUsed(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.tokens[token]
	return ok && s.links[key].used
}

// ResolveToken returns the current link a public token belongs to.
// Superseded tokens do not resolve.
func (s *Store) ResolveToken(token string) (crm.SigningLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.tokens[token]
	if !ok {
		return crm.SigningLink{}, notFound("signing token", token)
	}
	return s.links[key].current, nil
}

// RecordSignature stores the submitted values of a slot and advances the
// agreement: completed once every slot has signed, in progress before.
func (s *Store) RecordSignature(token string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.tokens[token]
	if !ok {
		return notFound("signing token", token)
	}
	s.signed[key] = values

	a := s.agreements[key.agreementID]
	done := 0
	for i := 0; i < a.SlotCount(); i++ {
		if _, ok := s.signed[slotKey{agreementID: a.ID, index: i}]; ok {
			done++
		}
	}
	if done == a.SlotCount() {
		a.Status = crm.StatusCompleted
	} else {
		a.Status = crm.StatusInProgress
	}
	s.agreements[a.ID] = a
	return nil
}

// SignedValues returns the values recorded for a slot.
func (s *Store) SignedValues(agreementID string, index int) (map[string]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.signed[slotKey{agreementID: agreementID, index: index}]
	return v, ok
}

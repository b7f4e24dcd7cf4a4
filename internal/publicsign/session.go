package publicsign

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"signflow/internal/browser"
	"signflow/internal/crm"
	"signflow/internal/fixtures"
	"signflow/internal/geometry"
	"signflow/internal/ui"
	"signflow/pkg/logging"
)

var (
	// ErrWrongStep is returned when an action is attempted outside its step.
	ErrWrongStep = errors.New("action not available at this step")
	// ErrBlocked is returned by Complete while required fields are empty.
	ErrBlocked = errors.New("completion blocked")
	// ErrNoStep is returned when no step marker becomes visible.
	ErrNoStep = errors.New("no signing step visible")
)

// stepMarkers maps each step to the element that marks it, most final first.
var stepMarkers = []struct {
	step Step
	sel  browser.Selector
}{
	{StepError, ui.StepError},
	{StepComplete, ui.StepComplete},
	{StepFields, ui.StepFields},
	{StepIdentity, ui.StepIdentity},
	{StepCode, ui.StepCode},
}

// Identity is what the identity step asks for.
type Identity struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Consent   bool
}

// IdentityFor returns a consenting identity built from a contact.
func IdentityFor(c crm.Contact) Identity {
	return Identity{FirstName: c.FirstName, LastName: c.LastName, Email: c.Email, Phone: c.Phone, Consent: true}
}

// Field is a field as the signing page renders it.
type Field struct {
	ID       string
	Name     string
	Type     crm.FieldType
	Page     int
	Required bool
	Filled   bool
	Value    string
	// Box is the rendered box in screen pixels, Position its top-left corner
	// in document units.
	Box      geometry.Box
	Position geometry.Point
}

// Values says how Fill completes the signer's fields.
type Values struct {
	// Text holds values for text and number fields by field name.
	Text      map[string]string
	Signature ui.SignatureInput
}

// Options configures a Session.
type Options struct {
	Timeouts  browser.Timeouts
	PageSize  geometry.PageSize
	PageCount int
}

// Session drives one signer through the public flow on one page.
type Session struct {
	page browser.Page
	opts Options

	step    Step
	history []Step
}

// New creates a session that has not opened a link yet.
func New(page browser.Page, opts Options) *Session {
	if opts.PageSize == (geometry.PageSize{}) {
		opts.PageSize = geometry.A4
	}
	if opts.PageCount == 0 {
		opts.PageCount = fixtures.PageCount
	}
	return &Session{page: page, opts: opts}
}

// Step returns the last observed step.
func (s *Session) Step() Step { return s.step }

// History returns every step observed, in order, without repeats.
func (s *Session) History() []Step { return append([]Step(nil), s.history...) }

func (s *Session) require(action string, want Step) error {
	if s.step != want {
		return fmt.Errorf("%w: %s needs step %s, at %s", ErrWrongStep, action, want, s.step)
	}
	return nil
}

// Open navigates to a public signing link and observes the first step.
func (s *Session) Open(ctx context.Context, link string) (Step, error) {
	if s.step != StepNone {
		return s.step, fmt.Errorf("%w: session already opened", ErrWrongStep)
	}
	if err := s.page.Navigate(ctx, link); err != nil {
		return s.step, err
	}
	return s.observe(ctx, s.opts.Timeouts.PageLoad)
}

// Observe reads the step currently shown and records the transition.
func (s *Session) Observe(ctx context.Context) (Step, error) {
	return s.observe(ctx, s.opts.Timeouts.Element)
}

func (s *Session) visibleStep(ctx context.Context) (Step, bool, error) {
	for _, m := range stepMarkers {
		ok, err := s.page.IsVisible(ctx, m.sel)
		if err != nil {
			return StepNone, false, err
		}
		if ok {
			return m.step, true, nil
		}
	}
	return StepNone, false, nil
}

func (s *Session) observe(ctx context.Context, timeout time.Duration) (Step, error) {
	var seen Step
	err := browser.Poll(ctx, timeout, browser.DefaultPollInterval, func(ctx context.Context) (bool, error) {
		step, ok, err := s.visibleStep(ctx)
		seen = step
		return ok, err
	})
	if err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			return s.step, fmt.Errorf("%w: %v", ErrNoStep, err)
		}
		return s.step, err
	}
	if err := s.advance(seen); err != nil {
		return s.step, err
	}
	return s.step, nil
}

func (s *Session) advance(next Step) error {
	if !Allowed(s.step, next) {
		return &TransitionError{From: s.step, To: next}
	}
	if next != s.step {
		logging.Debug("PublicSign", "Step %s -> %s", s.step, next)
		s.history = append(s.history, next)
	}
	s.step = next
	return nil
}

// settleUntil waits for any of sels after an action, then observes the step.
// The micro settle covers markers that were already visible before the
// action, such as a previous error message.
func (s *Session) settleUntil(ctx context.Context, sels ...browser.Selector) (Step, error) {
	if err := browser.Settle(ctx, s.opts.Timeouts.Micro); err != nil {
		return s.step, err
	}
	err := browser.Poll(ctx, s.opts.Timeouts.Element, browser.DefaultPollInterval, func(ctx context.Context) (bool, error) {
		for _, sel := range sels {
			if ok, err := s.page.IsVisible(ctx, sel); err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	})
	if err != nil {
		return s.step, err
	}
	return s.Observe(ctx)
}

// VerifyCode submits a verification code. A wrong code leaves the session at
// the code step (or at error once attempts run out) and is not an error.
func (s *Session) VerifyCode(ctx context.Context, code string) (Step, error) {
	if err := s.require("verify code", StepCode); err != nil {
		return s.step, err
	}
	if err := s.page.Fill(ctx, ui.CodeInput, code); err != nil {
		return s.step, err
	}
	if err := s.page.Click(ctx, ui.CodeSubmit); err != nil {
		return s.step, err
	}
	return s.settleUntil(ctx, ui.StepIdentity, ui.CodeError, ui.StepError)
}

// CodeError returns the code step's error message, or "" when none shows.
func (s *Session) CodeError(ctx context.Context) (string, error) {
	return s.optionalText(ctx, ui.CodeError)
}

// SubmitIdentity fills the identity step. Without consent, or with a
// missing value, the session stays at identity.
func (s *Session) SubmitIdentity(ctx context.Context, id Identity) (Step, error) {
	if err := s.require("submit identity", StepIdentity); err != nil {
		return s.step, err
	}
	inputs := []struct {
		sel   browser.Selector
		value string
	}{
		{ui.FirstNameInput, id.FirstName},
		{ui.LastNameInput, id.LastName},
		{ui.EmailInput, id.Email},
		{ui.PhoneInput, id.Phone},
	}
	for _, in := range inputs {
		if err := s.page.Fill(ctx, in.sel, in.value); err != nil {
			return s.step, err
		}
	}
	if err := s.page.SetChecked(ctx, ui.ConsentBox, id.Consent); err != nil {
		return s.step, err
	}
	if err := s.page.Click(ctx, ui.IdentitySubmit); err != nil {
		return s.step, err
	}
	return s.settleUntil(ctx, ui.StepFields, ui.IdentityError, ui.StepError)
}

// IdentityError returns the identity step's error message, or "".
func (s *Session) IdentityError(ctx context.Context) (string, error) {
	return s.optionalText(ctx, ui.IdentityError)
}

func (s *Session) optionalText(ctx context.Context, sel browser.Selector) (string, error) {
	ok, err := s.page.IsVisible(ctx, sel)
	if err != nil || !ok {
		return "", err
	}
	return s.page.Text(ctx, sel)
}

// GoToPage shows page n of the document.
func (s *Session) GoToPage(ctx context.Context, n int) error {
	if err := s.require("go to page", StepFields); err != nil {
		return err
	}
	if err := s.page.Click(ctx, ui.PageNav(n)); err != nil {
		return err
	}
	return browser.WaitText(ctx, s.page, ui.CurrentPage, strconv.Itoa(n), s.opts.Timeouts.Element)
}

// Fields reads every field on every page.
func (s *Session) Fields(ctx context.Context) ([]Field, error) {
	if err := s.require("read fields", StepFields); err != nil {
		return nil, err
	}
	var all []Field
	for p := 1; p <= s.opts.PageCount; p++ {
		fields, err := s.pageFields(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", p, err)
		}
		all = append(all, fields...)
	}
	return all, nil
}

func (s *Session) pageFields(ctx context.Context, p int) ([]Field, error) {
	if err := s.GoToPage(ctx, p); err != nil {
		return nil, err
	}
	container, err := s.page.BoundingBox(ctx, ui.DocumentPage)
	if err != nil {
		return nil, err
	}
	mapper, err := geometry.NewMapper(container, s.opts.PageSize)
	if err != nil {
		return nil, err
	}

	n, err := s.page.Count(ctx, ui.SignField)
	if err != nil {
		return nil, err
	}
	fields := make([]Field, 0, n)
	for i := 0; i < n; i++ {
		f, err := s.readField(ctx, ui.SignField.At(i), mapper)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func (s *Session) readField(ctx context.Context, sel browser.Selector, mapper *geometry.Mapper) (Field, error) {
	attr := func(name string) (string, error) { return s.page.Attribute(ctx, sel, name) }

	var f Field
	var err error
	if f.ID, err = attr(ui.AttrFieldID); err != nil {
		return Field{}, err
	}
	if f.Name, err = attr(ui.AttrFieldName); err != nil {
		return Field{}, err
	}
	typ, err := attr(ui.AttrFieldType)
	if err != nil {
		return Field{}, err
	}
	if f.Type, err = crm.ParseFieldType(typ); err != nil {
		return Field{}, err
	}
	page, err := attr(ui.AttrFieldPage)
	if err != nil {
		return Field{}, err
	}
	if f.Page, err = strconv.Atoi(page); err != nil {
		return Field{}, fmt.Errorf("bad page attribute %q: %w", page, err)
	}
	required, err := attr(ui.AttrFieldRequired)
	if err != nil {
		return Field{}, err
	}
	filled, err := attr(ui.AttrFieldFilled)
	if err != nil {
		return Field{}, err
	}
	f.Required, f.Filled = required == "true", filled == "true"
	if f.Value, err = s.page.Text(ctx, sel); err != nil {
		return Field{}, err
	}
	if f.Box, err = s.page.BoundingBox(ctx, sel); err != nil {
		return Field{}, err
	}
	f.Position = mapper.ToDocument(f.Box.TopLeft())
	return f, nil
}

// VerifyPrefilled checks that every contact-derived field shows the
// contact's value.
func (s *Session) VerifyPrefilled(ctx context.Context, contact crm.Contact) error {
	fields, err := s.Fields(ctx)
	if err != nil {
		return err
	}
	var errs []error
	checked := 0
	for _, f := range fields {
		if !f.Type.IsContactDerived() {
			continue
		}
		want := contact.ValueFor(f.Type)
		if want == "" {
			continue
		}
		checked++
		if strings.TrimSpace(f.Value) != want {
			errs = append(errs, fmt.Errorf("field %s (%s) shows %q, want %q", f.Name, f.Type, f.Value, want))
		}
	}
	logging.Debug("PublicSign", "Checked %d prefilled field(s)", checked)
	return errors.Join(errs...)
}

// VerifyPositions checks that each expected field is rendered within tol
// document units of its fixture position.
func (s *Session) VerifyPositions(ctx context.Context, expected []fixtures.FieldCoord, tol float64) error {
	fields, err := s.Fields(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}

	var errs []error
	for _, want := range expected {
		got, ok := byName[want.Name]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("field %s is not rendered", want.Name))
		case got.Page != want.Page:
			errs = append(errs, fmt.Errorf("field %s is on page %d, want %d", want.Name, got.Page, want.Page))
		case !geometry.WithinTolerance(got.Position, want.TopLeft(), tol):
			errs = append(errs, fmt.Errorf("field %s is at %s, want %s within %.0f", want.Name, got.Position, want.TopLeft(), tol))
		}
	}
	return errors.Join(errs...)
}

// Fill completes every required empty field plus any text field named in
// v.Text, and returns how many fields it filled.
func (s *Session) Fill(ctx context.Context, v Values) (int, error) {
	if err := s.require("fill fields", StepFields); err != nil {
		return 0, err
	}
	filled := 0
	for p := 1; p <= s.opts.PageCount; p++ {
		fields, err := s.pageFields(ctx, p)
		if err != nil {
			return filled, fmt.Errorf("page %d: %w", p, err)
		}
		for _, f := range fields {
			did, err := s.fillField(ctx, f, v)
			if err != nil {
				return filled, fmt.Errorf("field %s: %w", f.Name, err)
			}
			if did {
				filled++
			}
		}
	}
	logging.Debug("PublicSign", "Filled %d field(s)", filled)
	return filled, nil
}

func (s *Session) fillField(ctx context.Context, f Field, v Values) (bool, error) {
	if f.Type.IsAutoFilled() {
		return false, nil
	}
	explicit, hasExplicit := v.Text[f.Name]
	if !hasExplicit && (f.Filled || !f.Required) {
		return false, nil
	}
	sel := ui.SignFieldByID(f.ID)

	switch {
	case f.Type.IsSignatureLike():
		if err := s.page.Click(ctx, sel); err != nil {
			return false, err
		}
		sig := v.Signature
		if sig == (ui.SignatureInput{}) {
			sig = ui.SignatureInput{Mode: ui.SignatureDrawn}
		}
		return true, ui.CompleteSignature(ctx, s.page, sig, s.opts.Timeouts)
	case f.Type == crm.FieldCheckbox:
		return true, s.page.SetChecked(ctx, sel, true)
	default:
		value := explicit
		if !hasExplicit {
			value = placeholder(f)
		}
		return true, s.page.Fill(ctx, sel, value)
	}
}

func placeholder(f Field) string {
	if f.Type == crm.FieldNumber {
		return "42"
	}
	return "Test " + f.Name
}

// TryComplete presses complete. While required fields remain the session
// stays at fields and the returned message says how many.
func (s *Session) TryComplete(ctx context.Context) (Step, string, error) {
	if err := s.require("complete", StepFields); err != nil {
		return s.step, "", err
	}
	if err := s.page.Click(ctx, ui.CompleteButton); err != nil {
		return s.step, "", err
	}
	step, err := s.settleUntil(ctx, ui.StepComplete, ui.RequiredRemaining, ui.StepError)
	if err != nil {
		return step, "", err
	}
	if step != StepFields {
		return step, "", nil
	}
	msg, err := s.optionalText(ctx, ui.RequiredRemaining)
	return step, msg, err
}

// Complete finishes signing and returns the completion message.
func (s *Session) Complete(ctx context.Context) (string, error) {
	step, remaining, err := s.TryComplete(ctx)
	if err != nil {
		return "", err
	}
	if step != StepComplete {
		if remaining == "" {
			remaining = "flow is at step " + step.String()
		}
		return "", fmt.Errorf("%w: %s", ErrBlocked, remaining)
	}
	if err := browser.WaitVisible(ctx, s.page, ui.CompletionMessage, s.opts.Timeouts.Element); err != nil {
		return "", err
	}
	msg, err := s.page.Text(ctx, ui.CompletionMessage)
	if err != nil {
		return "", err
	}
	logging.Info("PublicSign", "Signing completed: %s", msg)
	return msg, nil
}

package publicsign_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signflow/internal/crm"
	"signflow/internal/fixtures"
	"signflow/internal/publicsign"
	"signflow/internal/testing/mock"
	"signflow/internal/ui"
)

var roleIDs = map[string]string{"Signer 1": "role_s1", "Signer 2": "role_s2"}

// fixtureTemplate mirrors what authoring the default fixture saves.
func fixtureTemplate(t *testing.T, coords *fixtures.CoordinateMap) crm.Template {
	t.Helper()
	tpl := crm.Template{
		Name: "Fixture template",
		Roles: []crm.SignatoryRole{
			{ID: roleIDs["Signer 1"], Name: "Signer 1"},
			{ID: roleIDs["Signer 2"], Name: "Signer 2"},
		},
	}
	for _, c := range coords.All() {
		f := crm.Field{
			Name: c.Name, Type: crm.FieldType(c.Type), Scope: crm.ScopeDocument,
			Page: c.Page, X: c.X, Y: c.Y, Width: c.Width, Height: c.Height,
		}
		if !c.IsDocumentScope() {
			f.Scope = crm.ScopeSignatory
			f.RoleID = roleIDs[c.Scope]
			f.Required = !f.Type.IsAutoFilled()
		}
		if c.Name == "terms-note" {
			f.DefaultValue = "Net 30"
		}
		tpl.Fields = append(tpl.Fields, f)
	}
	return tpl
}

type signingHarness struct {
	app       *mock.App
	clock     *mock.MockClock
	coords    *fixtures.CoordinateMap
	contacts  []crm.Contact
	agreement crm.Agreement
}

func newSigningHarness(t *testing.T, opts mock.Options) *signingHarness {
	t.Helper()
	clock := mock.NewMockClock(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))
	opts.Clock = clock
	app := mock.NewApp(opts)
	store := app.Store()

	coords, err := fixtures.DefaultCoordinates()
	require.NoError(t, err)
	tpl, err := store.CreateTemplate(fixtureTemplate(t, coords))
	require.NoError(t, err)
	contacts, err := store.SeedContacts(
		crm.Contact{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "+44 20 0000", Company: "Engines Ltd"},
		crm.Contact{FirstName: "Alan", LastName: "Turing", Email: "alan@example.com", Phone: "+44 20 1111", Company: "Bletchley", Address: "Bletchley Park"},
	)
	require.NoError(t, err)
	ag, err := store.CreateAgreement(crm.Agreement{
		TemplateID: tpl.ID,
		Title:      "Mutual NDA",
		Signers:    []crm.Signer{{ContactID: contacts[0].ID}, {ContactID: contacts[1].ID}},
	})
	require.NoError(t, err)

	return &signingHarness{app: app, clock: clock, coords: coords, contacts: contacts, agreement: ag}
}

func (h *signingHarness) link(t *testing.T, index int) crm.SigningLink {
	t.Helper()
	l, err := h.app.Store().IssueLink(h.agreement.ID, index)
	require.NoError(t, err)
	return l
}

func (h *signingHarness) session() *publicsign.Session {
	return publicsign.New(h.app.NewPage(), publicsign.Options{Timeouts: mock.Timeouts()})
}

// throughIdentity opens a link and passes the code and identity steps.
func (h *signingHarness) throughIdentity(t *testing.T, s *publicsign.Session, l crm.SigningLink, c crm.Contact) {
	t.Helper()
	ctx := context.Background()
	step, err := s.Open(ctx, l.URL)
	require.NoError(t, err)
	require.Equal(t, publicsign.StepCode, step)
	step, err = s.VerifyCode(ctx, l.Code)
	require.NoError(t, err)
	require.Equal(t, publicsign.StepIdentity, step)
	step, err = s.SubmitIdentity(ctx, publicsign.IdentityFor(c))
	require.NoError(t, err)
	require.Equal(t, publicsign.StepFields, step)
}

func TestSession_HappyPath(t *testing.T) {
	h := newSigningHarness(t, mock.Options{})
	ctx := context.Background()
	s := h.session()
	l := h.link(t, 0)

	h.throughIdentity(t, s, l, h.contacts[0])

	require.NoError(t, s.VerifyPrefilled(ctx, h.contacts[0]))
	require.NoError(t, s.VerifyPositions(ctx, h.coords.VisibleTo("Signer 1"), 50))

	fields, err := s.Fields(ctx)
	require.NoError(t, err)
	assert.Len(t, fields, len(h.coords.VisibleTo("Signer 1")))
	byName := make(map[string]publicsign.Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}
	assert.Equal(t, "2026-03-14", byName["signer1-date"].Value)
	assert.Equal(t, "Ada Lovelace", byName["signer1-full-name"].Value)
	assert.Equal(t, "Net 30", byName["terms-note"].Value)
	assert.NotContains(t, byName, "signer2-signature", "other signers' fields stay hidden")

	step, remaining, err := s.TryComplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, publicsign.StepFields, step)
	assert.Equal(t, "5 required fields remaining", remaining)

	n, err := s.Fill(ctx, publicsign.Values{
		Text:      map[string]string{"signer1-comment": "Looks good"},
		Signature: ui.SignatureInput{Mode: ui.SignatureTyped, Text: "A. Lovelace"},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	msg, err := s.Complete(ctx)
	require.NoError(t, err)
	assert.Equal(t, mock.CompletionText, msg)
	assert.Equal(t, publicsign.StepComplete, s.Step())
	assert.Equal(t, []publicsign.Step{
		publicsign.StepCode, publicsign.StepIdentity, publicsign.StepFields, publicsign.StepComplete,
	}, s.History())

	values, signed := h.app.Store().SignedValues(h.agreement.ID, 0)
	require.True(t, signed)
	assert.Equal(t, "Looks good", values[byName["signer1-comment"].ID])
	assert.Equal(t, "A. Lovelace", values[byName["signer1-signature"].ID])
	assert.Equal(t, "true", values[byName["signer1-accept"].ID])

	ag, err := h.app.Store().GetAgreement(h.agreement.ID)
	require.NoError(t, err)
	assert.Equal(t, crm.StatusInProgress, ag.Status, "one of two signers is done")
}

func TestSession_BothSignersComplete(t *testing.T) {
	h := newSigningHarness(t, mock.Options{})
	ctx := context.Background()

	for i, c := range h.contacts {
		s := h.session()
		h.throughIdentity(t, s, h.link(t, i), c)
		require.NoError(t, s.VerifyPrefilled(ctx, c))
		_, err := s.Fill(ctx, publicsign.Values{})
		require.NoError(t, err)
		_, err = s.Complete(ctx)
		require.NoError(t, err)
	}

	ag, err := h.app.Store().GetAgreement(h.agreement.ID)
	require.NoError(t, err)
	assert.Equal(t, crm.StatusCompleted, ag.Status)

	// A used link does not reopen the flow.
	s := h.session()
	step, err := s.Open(ctx, h.link(t, 0).URL)
	require.NoError(t, err)
	assert.Equal(t, publicsign.StepError, step)
}

func TestSession_WrongCodeNeverReachesIdentity(t *testing.T) {
	h := newSigningHarness(t, mock.Options{MaxCodeAttempts: 3})
	ctx := context.Background()
	s := h.session()
	l := h.link(t, 1)

	_, err := s.Open(ctx, l.URL)
	require.NoError(t, err)

	wrong := "000000"
	if l.Code == wrong {
		wrong = "111111"
	}
	for i := 0; i < 2; i++ {
		step, err := s.VerifyCode(ctx, wrong)
		require.NoError(t, err)
		assert.Equal(t, publicsign.StepCode, step)
		msg, err := s.CodeError(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Invalid verification code", msg)
	}

	step, err := s.VerifyCode(ctx, wrong)
	require.NoError(t, err)
	assert.Equal(t, publicsign.StepError, step, "attempts exhausted")
	assert.NotContains(t, s.History(), publicsign.StepIdentity)

	_, err = s.VerifyCode(ctx, l.Code)
	assert.ErrorIs(t, err, publicsign.ErrWrongStep)
}

func TestSession_RegeneratedCodeIsRejected(t *testing.T) {
	h := newSigningHarness(t, mock.Options{})
	ctx := context.Background()
	old := h.link(t, 0)
	fresh, err := h.app.Store().RegenerateLink(h.agreement.ID, 0)
	require.NoError(t, err)

	s := h.session()
	step, err := s.Open(ctx, old.URL)
	require.NoError(t, err)
	assert.Equal(t, publicsign.StepError, step, "the old link no longer resolves")

	s = h.session()
	_, err = s.Open(ctx, fresh.URL)
	require.NoError(t, err)
	step, err = s.VerifyCode(ctx, old.Code)
	require.NoError(t, err)
	assert.Equal(t, publicsign.StepCode, step)

	step, err = s.VerifyCode(ctx, fresh.Code)
	require.NoError(t, err)
	assert.Equal(t, publicsign.StepIdentity, step)
}

func TestSession_ExpiredLinkLandsOnError(t *testing.T) {
	h := newSigningHarness(t, mock.Options{LinkTTL: 72 * time.Hour})
	ctx := context.Background()
	l := h.link(t, 0)

	h.clock.Advance(71 * time.Hour)
	step, err := h.session().Open(ctx, l.URL)
	require.NoError(t, err)
	assert.Equal(t, publicsign.StepCode, step)

	h.clock.Advance(2 * time.Hour)
	step, err = h.session().Open(ctx, l.URL)
	require.NoError(t, err)
	assert.Equal(t, publicsign.StepError, step)
}

func TestSession_CodeIsSingleUse(t *testing.T) {
	h := newSigningHarness(t, mock.Options{})
	ctx := context.Background()
	l := h.link(t, 0)
	h.throughIdentity(t, h.session(), l, h.contacts[0])

	s := h.session()
	step, err := s.Open(ctx, l.URL)
	require.NoError(t, err)
	require.Equal(t, publicsign.StepCode, step)

	step, err = s.VerifyCode(ctx, l.Code)
	require.NoError(t, err)
	assert.Equal(t, publicsign.StepCode, step)
	assert.NotContains(t, s.History(), publicsign.StepIdentity)
	msg, err := s.CodeError(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg, "already been used")

	// A regenerated link carries a fresh, unspent code.
	fresh, err := h.app.Store().RegenerateLink(h.agreement.ID, 0)
	require.NoError(t, err)
	h.throughIdentity(t, h.session(), fresh, h.contacts[0])
}

func TestSession_IdentityNeedsConsent(t *testing.T) {
	h := newSigningHarness(t, mock.Options{})
	ctx := context.Background()
	s := h.session()
	l := h.link(t, 0)

	_, err := s.Open(ctx, l.URL)
	require.NoError(t, err)
	_, err = s.VerifyCode(ctx, l.Code)
	require.NoError(t, err)

	id := publicsign.IdentityFor(h.contacts[0])
	id.Consent = false
	step, err := s.SubmitIdentity(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, publicsign.StepIdentity, step)
	msg, err := s.IdentityError(ctx)
	require.NoError(t, err)
	assert.Equal(t, "You must consent to sign electronically", msg)

	id = publicsign.IdentityFor(h.contacts[0])
	id.Phone = ""
	step, err = s.SubmitIdentity(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, publicsign.StepIdentity, step)
	msg, err = s.IdentityError(ctx)
	require.NoError(t, err)
	assert.Equal(t, "All identity fields are required", msg)

	step, err = s.SubmitIdentity(ctx, publicsign.IdentityFor(h.contacts[0]))
	require.NoError(t, err)
	assert.Equal(t, publicsign.StepFields, step)
}

func TestSession_CompleteBlockedWhileRequiredRemain(t *testing.T) {
	h := newSigningHarness(t, mock.Options{})
	ctx := context.Background()
	s := h.session()
	h.throughIdentity(t, s, h.link(t, 1), h.contacts[1])

	_, err := s.Complete(ctx)
	assert.ErrorIs(t, err, publicsign.ErrBlocked)
	assert.ErrorContains(t, err, "required fields remaining")
	assert.Equal(t, publicsign.StepFields, s.Step())

	_, signed := h.app.Store().SignedValues(h.agreement.ID, 1)
	assert.False(t, signed)
}

func TestSession_VerifyPositionsReportsMisplacedFields(t *testing.T) {
	h := newSigningHarness(t, mock.Options{})
	ctx := context.Background()
	s := h.session()
	h.throughIdentity(t, s, h.link(t, 0), h.contacts[0])

	expected := h.coords.VisibleTo("Signer 1")
	moved := append([]fixtures.FieldCoord(nil), expected...)
	moved[0].X += 120
	moved = append(moved, fixtures.FieldCoord{Name: "ghost", Type: "text", Page: 1, X: 10, Y: 10})

	err := s.VerifyPositions(ctx, moved, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), moved[0].Name)
	assert.Contains(t, err.Error(), "ghost is not rendered")
}

func TestSession_VerifyPrefilledDetectsWrongContact(t *testing.T) {
	h := newSigningHarness(t, mock.Options{})
	ctx := context.Background()
	s := h.session()
	h.throughIdentity(t, s, h.link(t, 0), h.contacts[0])

	err := s.VerifyPrefilled(ctx, h.contacts[1])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signer1-name")
}

func TestSession_ActionsOutOfStep(t *testing.T) {
	s := publicsign.New(mock.NewApp(mock.Options{}).NewPage(), publicsign.Options{Timeouts: mock.Timeouts()})
	ctx := context.Background()

	_, err := s.VerifyCode(ctx, "123456")
	assert.ErrorIs(t, err, publicsign.ErrWrongStep)
	_, err = s.SubmitIdentity(ctx, publicsign.Identity{})
	assert.ErrorIs(t, err, publicsign.ErrWrongStep)
	_, err = s.Fill(ctx, publicsign.Values{})
	assert.ErrorIs(t, err, publicsign.ErrWrongStep)

	_, err = s.Open(ctx, "https://crm.test/ws/ws_test/nowhere")
	assert.ErrorIs(t, err, publicsign.ErrNoStep)
}

func TestAllowed(t *testing.T) {
	tests := []struct {
		from, to publicsign.Step
		want     bool
	}{
		{publicsign.StepNone, publicsign.StepCode, true},
		{publicsign.StepNone, publicsign.StepFields, false},
		{publicsign.StepCode, publicsign.StepIdentity, true},
		{publicsign.StepCode, publicsign.StepFields, false},
		{publicsign.StepIdentity, publicsign.StepCode, false},
		{publicsign.StepFields, publicsign.StepComplete, true},
		{publicsign.StepComplete, publicsign.StepError, false},
		{publicsign.StepError, publicsign.StepCode, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, publicsign.Allowed(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
	for _, s := range []publicsign.Step{publicsign.StepCode, publicsign.StepIdentity, publicsign.StepFields} {
		assert.True(t, publicsign.Allowed(s, publicsign.StepError), "error is reachable from %s", s)
		assert.False(t, s.Terminal())
	}
	assert.True(t, publicsign.StepComplete.Terminal())
	assert.Equal(t, "none", publicsign.StepNone.String())

	err := &publicsign.TransitionError{From: publicsign.StepCode, To: publicsign.StepFields}
	assert.Equal(t, "illegal signing transition code -> fields", err.Error())
}

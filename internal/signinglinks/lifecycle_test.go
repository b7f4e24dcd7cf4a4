package signinglinks_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signflow/internal/crm"
	"signflow/internal/signinglinks"
	"signflow/internal/testing/mock"
)

func newLifecycle(t *testing.T) (*signinglinks.Lifecycle, *mock.App, crm.Agreement) {
	t.Helper()
	app := mock.NewApp(mock.Options{Seed: 42})
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	client := crm.NewClient(context.Background(), srv.URL, app.Options().WorkspaceID, "")

	store := app.Store()
	cs, err := store.SeedContacts(
		crm.Contact{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		crm.Contact{FirstName: "Alan", LastName: "Turing", Email: "alan@example.com"},
	)
	require.NoError(t, err)
	tpl, err := store.CreateTemplate(crm.Template{
		Name:  "Two party",
		Roles: []crm.SignatoryRole{{Name: "Signer 1"}, {Name: "Signer 2"}},
	})
	require.NoError(t, err)
	ag, err := store.CreateAgreement(crm.Agreement{
		TemplateID: tpl.ID,
		Title:      "NDA",
		Signers:    []crm.Signer{{ContactID: cs[0].ID}, {ContactID: cs[1].ID}},
	})
	require.NoError(t, err)

	return signinglinks.New(client, app.Options().WorkspaceID), app, ag
}

func TestLifecycle_GenerateAndGetExisting(t *testing.T) {
	lc, _, ag := newLifecycle(t)
	ctx := context.Background()
	slot := signinglinks.Slot{AgreementID: ag.ID, SignerIndex: 1}

	none, err := lc.GetExisting(ctx, slot)
	require.NoError(t, err)
	assert.Nil(t, none, "no link is issued by reading")

	link, err := lc.Generate(ctx, slot)
	require.NoError(t, err)
	assert.True(t, crm.ValidCode(link.Code))
	assert.Equal(t, 1, link.SignerIndex)

	for i := 0; i < 2; i++ {
		got, err := lc.GetExisting(ctx, slot)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, link, *got, "reading is idempotent")
	}
	assert.Empty(t, lc.InvalidatedCodes(slot))
}

func TestLifecycle_RegenerateInvalidatesEveryPriorCode(t *testing.T) {
	lc, app, ag := newLifecycle(t)
	ctx := context.Background()
	slot := signinglinks.Slot{AgreementID: ag.ID, SignerIndex: 0}

	first, err := lc.Generate(ctx, slot)
	require.NoError(t, err)

	seen := []string{first.Code}
	for i := 0; i < 5; i++ {
		next, err := lc.Regenerate(ctx, slot)
		require.NoError(t, err)
		assert.NotContains(t, seen, next.Code)
		assert.Equal(t, seen, lc.InvalidatedCodes(slot))
		seen = append(seen, next.Code)
	}
	assert.Equal(t, seen, app.Store().IssuedCodes(ag.ID, 0))

	other := signinglinks.Slot{AgreementID: ag.ID, SignerIndex: 1}
	assert.Empty(t, lc.InvalidatedCodes(other), "slots are tracked separately")
}

func TestLifecycle_RegenerateLearnsExistingCode(t *testing.T) {
	lc, app, ag := newLifecycle(t)
	ctx := context.Background()
	slot := signinglinks.Slot{AgreementID: ag.ID, SignerIndex: 0}

	// Issued outside this lifecycle, e.g. by an earlier run.
	issued, err := app.Store().IssueLink(ag.ID, 0)
	require.NoError(t, err)

	_, err = lc.Regenerate(ctx, slot)
	require.NoError(t, err)
	assert.Equal(t, []string{issued.Code}, lc.InvalidatedCodes(slot))
}

func TestLifecycle_RegenerateWithoutLink(t *testing.T) {
	lc, _, ag := newLifecycle(t)

	_, err := lc.Regenerate(context.Background(), signinglinks.Slot{AgreementID: ag.ID, SignerIndex: 0})
	require.Error(t, err)
	assert.True(t, crm.IsNotFound(err))
}

// stubAPI hands out fixed links.
type stubAPI struct {
	created, regenerated crm.SigningLink
}

func (s *stubAPI) CreateSigningLink(context.Context, string, int) (crm.SigningLink, error) {
	return s.created, nil
}

func (s *stubAPI) RegenerateSigningLink(context.Context, string, int) (crm.SigningLink, error) {
	return s.regenerated, nil
}

func (s *stubAPI) GetSigningLink(context.Context, string, int) (crm.SigningLink, error) {
	return s.created, nil
}

func link(ws, agreementID string, index int, token, code string) crm.SigningLink {
	return crm.SigningLink{
		AgreementID: agreementID,
		SignerIndex: index,
		URL:         "https://crm.test" + crm.SigningPath(ws, agreementID, token),
		Token:       token,
		Code:        code,
	}
}

func TestLifecycle_RegenerateRejectsReusedCode(t *testing.T) {
	api := &stubAPI{
		created:     link("ws_1", "agr_1", 0, "tok1", "123456"),
		regenerated: link("ws_1", "agr_1", 0, "tok2", "123456"),
	}
	lc := signinglinks.New(api, "ws_1")
	slot := signinglinks.Slot{AgreementID: "agr_1"}

	_, err := lc.Generate(context.Background(), slot)
	require.NoError(t, err)
	_, err = lc.Regenerate(context.Background(), slot)
	assert.ErrorIs(t, err, signinglinks.ErrCodeReused)
	assert.Empty(t, lc.InvalidatedCodes(slot))
}

func TestLifecycle_Validate(t *testing.T) {
	lc := signinglinks.New(&stubAPI{}, "ws_1")
	slot := signinglinks.Slot{AgreementID: "agr_1", SignerIndex: 1}
	good := link("ws_1", "agr_1", 1, "tok", "004217")

	tests := []struct {
		name    string
		mutate  func(l *crm.SigningLink)
		wantErr error
	}{
		{"valid", func(*crm.SigningLink) {}, nil},
		{"not a public url", func(l *crm.SigningLink) { l.URL = "https://crm.test/ws/ws_1/agreements/agr_1" }, signinglinks.ErrInvalidLink},
		{"other agreement", func(l *crm.SigningLink) { l.URL = "https://crm.test" + crm.SigningPath("ws_1", "agr_2", "tok") }, signinglinks.ErrInvalidLink},
		{"other workspace", func(l *crm.SigningLink) { l.URL = "https://crm.test" + crm.SigningPath("ws_2", "agr_1", "tok") }, signinglinks.ErrInvalidLink},
		{"other signer", func(l *crm.SigningLink) { l.SignerIndex = 0 }, signinglinks.ErrInvalidLink},
		{"token mismatch", func(l *crm.SigningLink) { l.Token = "other" }, signinglinks.ErrInvalidLink},
		{"five digit code", func(l *crm.SigningLink) { l.Code = "12345" }, signinglinks.ErrInvalidCode},
		{"non numeric code", func(l *crm.SigningLink) { l.Code = "12a456" }, signinglinks.ErrInvalidCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := good
			tt.mutate(&l)
			err := lc.Validate(slot, l)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLifecycle_ToleratesOmittedSignerIndex(t *testing.T) {
	l := link("ws_1", "agr_1", crm.UnknownSignerIndex, "tok", "004217")
	api := &stubAPI{created: l}
	lc := signinglinks.New(api, "ws_1")
	slot := signinglinks.Slot{AgreementID: "agr_1", SignerIndex: 1}

	require.NoError(t, lc.Validate(slot, l))
	got, err := lc.Generate(context.Background(), slot)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SignerIndex)

	existing, err := lc.GetExisting(context.Background(), slot)
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, 1, existing.SignerIndex)
}

func TestSlot_String(t *testing.T) {
	assert.Equal(t, "agr_9/signer[2]", signinglinks.Slot{AgreementID: "agr_9", SignerIndex: 2}.String())
}

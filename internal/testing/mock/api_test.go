package mock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signflow/internal/crm"
)

func newTestAPI(t *testing.T, opts Options) (*App, *crm.Client) {
	t.Helper()
	app := NewApp(opts)
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	client := crm.NewClient(context.Background(), srv.URL, app.Options().WorkspaceID, opts.Token)
	return app, client
}

func twoRoleTemplate() crm.Template {
	return crm.Template{
		Name:  "Two party NDA",
		Title: "Mutual NDA",
		Roles: []crm.SignatoryRole{{Name: "Signer 1"}, {Name: "Signer 2"}},
	}
}

func seedContacts(t *testing.T, app *App) []crm.Contact {
	t.Helper()
	cs, err := app.Store().SeedContacts(
		crm.Contact{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "+44 20 0000", Company: "Engines Ltd"},
		crm.Contact{FirstName: "Alan", LastName: "Turing", Email: "alan@example.com", Phone: "+44 20 1111"},
	)
	require.NoError(t, err)
	return cs
}

func TestAPI_TemplateLifecycle(t *testing.T) {
	_, client := newTestAPI(t, Options{})
	ctx := context.Background()

	tpl := twoRoleTemplate()
	tpl.Fields = []crm.Field{
		{Type: crm.FieldText, Scope: crm.ScopeDocument, Page: 1, X: 10, Y: 10, Width: 100, Height: 20},
	}
	created, err := client.CreateTemplate(ctx, tpl)
	require.NoError(t, err)
	assert.Equal(t, "tpl_1", created.ID)
	require.Len(t, created.Roles, 2)
	assert.Equal(t, 1, created.Roles[0].RoutingOrder)
	assert.Equal(t, 2, created.Roles[1].RoutingOrder)
	assert.NotEmpty(t, created.Fields[0].ID)

	found, err := client.SearchTemplates(ctx, "nda")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, created.ID, found[0].ID)

	created.Name = "Renamed"
	updated, err := client.UpdateTemplate(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	_, err = client.GetTemplate(ctx, "tpl_404")
	assert.True(t, crm.IsNotFound(err))
}

func TestAPI_TemplateValidation(t *testing.T) {
	_, client := newTestAPI(t, Options{})

	_, err := client.CreateTemplate(context.Background(), crm.Template{
		Name:   "Broken",
		Fields: []crm.Field{{Type: crm.FieldText, Scope: crm.ScopeSignatory, RoleID: "role_x", Page: 1}},
	})
	var apiErr *crm.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "unknown role")
}

func TestAPI_BearerToken(t *testing.T) {
	app := NewApp(Options{Token: "secret"})
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()
	ctx := context.Background()

	bad := crm.NewClient(ctx, srv.URL, "ws_test", "wrong")
	_, err := bad.SearchTemplates(ctx, "")
	var apiErr *crm.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	good := crm.NewClient(ctx, srv.URL, "ws_test", "secret")
	_, err = good.SearchTemplates(ctx, "")
	assert.NoError(t, err)

	otherWS := crm.NewClient(ctx, srv.URL, "ws_other", "secret")
	_, err = otherWS.SearchTemplates(ctx, "")
	assert.True(t, crm.IsNotFound(err))
}

func TestAPI_AgreementSlots(t *testing.T) {
	app, client := newTestAPI(t, Options{})
	ctx := context.Background()
	cs := seedContacts(t, app)

	multi, err := client.CreateTemplate(ctx, twoRoleTemplate())
	require.NoError(t, err)
	single, err := client.CreateTemplate(ctx, crm.Template{Name: "Receipt"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		in      crm.Agreement
		wantErr string
	}{
		{
			name: "two roles two signers",
			in: crm.Agreement{TemplateID: multi.ID, Title: "NDA", Signers: []crm.Signer{
				{ContactID: cs[0].ID}, {ContactID: cs[1].ID},
			}},
		},
		{
			name:    "two roles one signer",
			in:      crm.Agreement{TemplateID: multi.ID, Title: "NDA", Signers: []crm.Signer{{ContactID: cs[0].ID}}},
			wantErr: "has 2 signatory roles, got 1 signers",
		},
		{
			name: "unresolved second signer",
			in: crm.Agreement{TemplateID: multi.ID, Title: "NDA", Signers: []crm.Signer{
				{ContactID: cs[0].ID}, {},
			}},
			wantErr: "Signer 2 (Signer 2) is required",
		},
		{
			name: "routing order out of place",
			in: crm.Agreement{TemplateID: multi.ID, Title: "NDA", Signers: []crm.Signer{
				{RoutingOrder: 2, ContactID: cs[0].ID}, {RoutingOrder: 1, ContactID: cs[1].ID},
			}},
			wantErr: "routing order",
		},
		{
			name: "zero roles single contact",
			in:   crm.Agreement{TemplateID: single.ID, Title: "Receipt", ContactID: cs[0].ID},
		},
		{
			name:    "zero roles without contact",
			in:      crm.Agreement{TemplateID: single.ID, Title: "Receipt"},
			wantErr: "a contact is required",
		},
		{
			name:    "missing title",
			in:      crm.Agreement{TemplateID: single.ID, ContactID: cs[0].ID},
			wantErr: "title is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := client.CreateAgreement(ctx, tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, crm.StatusCreated, got.Status)
			assert.False(t, got.CreatedAt.IsZero())
			for i, s := range got.Signers {
				assert.Equal(t, i+1, s.RoutingOrder)
				assert.Equal(t, cs[i].FullName(), s.Name)
			}
		})
	}
}

func TestAPI_LinkRegenerationInvalidatesCode(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))
	app, client := newTestAPI(t, Options{Clock: clock, Seed: 7})
	ctx := context.Background()
	cs := seedContacts(t, app)

	tpl, err := client.CreateTemplate(ctx, twoRoleTemplate())
	require.NoError(t, err)
	ag, err := client.CreateAgreement(ctx, crm.Agreement{TemplateID: tpl.ID, Title: "NDA", Signers: []crm.Signer{
		{ContactID: cs[0].ID}, {ContactID: cs[1].ID},
	}})
	require.NoError(t, err)

	_, err = client.GetSigningLink(ctx, ag.ID, 0)
	assert.True(t, crm.IsNotFound(err), "no link before issuing")
	_, err = client.RegenerateSigningLink(ctx, ag.ID, 0)
	assert.True(t, crm.IsNotFound(err), "cannot regenerate a link that was never issued")

	first, err := client.CreateSigningLink(ctx, ag.ID, 0)
	require.NoError(t, err)
	assert.True(t, crm.ValidCode(first.Code))
	su, err := crm.ParseSigningURL(first.URL)
	require.NoError(t, err)
	assert.Equal(t, ag.ID, su.AgreementID)
	assert.Equal(t, first.Token, su.Token)

	again, err := client.CreateSigningLink(ctx, ag.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, first, again, "issuing is idempotent")

	regenerated, err := client.RegenerateSigningLink(ctx, ag.ID, 0)
	require.NoError(t, err)
	assert.NotEqual(t, first.Code, regenerated.Code)
	assert.NotEqual(t, first.Token, regenerated.Token)

	_, err = app.Store().ResolveToken(first.Token)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{first.Code, regenerated.Code}, app.Store().IssuedCodes(ag.ID, 0))

	current, err := client.GetSigningLink(ctx, ag.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, regenerated, current)

	got, err := client.GetAgreement(ctx, ag.ID)
	require.NoError(t, err)
	assert.Equal(t, crm.StatusLinkIssued, got.Status)

	_, err = client.CreateSigningLink(ctx, ag.ID, 2)
	var apiErr *crm.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
}

func TestAPI_PatchAndContacts(t *testing.T) {
	app, client := newTestAPI(t, Options{})
	ctx := context.Background()
	cs := seedContacts(t, app)

	found, err := client.SearchContacts(ctx, "turing")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, cs[1].ID, found[0].ID)

	created, err := client.CreateContact(ctx, crm.Contact{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "ct_3", created.ID)

	tpl, err := client.CreateTemplate(ctx, crm.Template{Name: "Receipt"})
	require.NoError(t, err)
	ag, err := client.CreateAgreement(ctx, crm.Agreement{TemplateID: tpl.ID, Title: "Receipt", ContactID: created.ID})
	require.NoError(t, err)

	patched, err := client.PatchAgreement(ctx, ag.ID, map[string]interface{}{"title": "Receipt 2026"})
	require.NoError(t, err)
	assert.Equal(t, "Receipt 2026", patched.Title)

	_, err = client.PatchAgreement(ctx, ag.ID, map[string]interface{}{"templateId": "tpl_9"})
	assert.Error(t, err)
}

func TestHTTPServer_StartStop(t *testing.T) {
	srv := NewHTTPServer(NewApp(Options{}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	port, err := srv.Start(ctx)
	require.NoError(t, err)
	assert.NotZero(t, port)
	require.NoError(t, srv.WaitForReady(ctx))
	assert.True(t, srv.IsRunning())

	client := crm.NewClient(ctx, srv.Endpoint(), "ws_test", "")
	_, err = client.SearchTemplates(ctx, "")
	assert.NoError(t, err)

	require.NoError(t, srv.Stop(ctx))
	assert.False(t, srv.IsRunning())
	assert.Empty(t, srv.Endpoint())
	assert.NoError(t, srv.GetError())
}

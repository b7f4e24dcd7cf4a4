package crm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(context.Background(), srv.URL+"/", "ws 1", "tok", WithHTTPClient(srv.Client()))
}

func TestClient_SendsBearerTokenAndScopesPaths(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.Query().Get("search")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []Template{{ID: "tpl_1", Name: "Two roles"}},
		})
	})

	items, err := c.SearchTemplates(context.Background(), "Two roles")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "tpl_1", items[0].ID)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/api/ws/ws%201/agreement-templates", gotPath)
	assert.Equal(t, "Two roles", gotQuery)
	assert.Equal(t, "ws 1", c.WorkspaceID())
}

func TestClient_CreateRequiresID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"name":"x"}`))
	})

	_, err := c.CreateTemplate(context.Background(), Template{Name: "x"})
	assert.ErrorIs(t, err, ErrMissingID)
	_, err = c.CreateAgreement(context.Background(), Agreement{TemplateID: "t"})
	assert.ErrorIs(t, err, ErrMissingID)
	_, err = c.CreateContact(context.Background(), Contact{FirstName: "a"})
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestClient_APIErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		notFound bool
		message  string
	}{
		{"not found json", http.StatusNotFound, `{"error":"no such link"}`, true, "no such link"},
		{"validation message", http.StatusUnprocessableEntity, `{"message":"signer 2 unresolved"}`, false, "signer 2 unresolved"},
		{"plain text", http.StatusInternalServerError, "boom\n", false, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.GetSigningLink(context.Background(), "ag_1", 0)
			require.Error(t, err)
			assert.Equal(t, tt.notFound, IsNotFound(err))

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, "/api/ws/ws%201/agreements/ag_1/signers/0/link", apiErr.Path)
		})
	}
}

func TestSigningLink_OmittedSignerIndex(t *testing.T) {
	var l SigningLink
	require.NoError(t, json.Unmarshal([]byte(`{"agreementId":"ag_1","code":"123456"}`), &l))
	assert.Equal(t, UnknownSignerIndex, l.SignerIndex)
	assert.Equal(t, "123456", l.Code)

	require.NoError(t, json.Unmarshal([]byte(`{"signerIndex":0}`), &l))
	assert.Equal(t, 0, l.SignerIndex)
}

func TestClient_SigningLinkEndpoints(t *testing.T) {
	var calls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		_ = json.NewEncoder(w).Encode(SigningLink{AgreementID: "ag_1", SignerIndex: 1, Code: "123456"})
	})
	ctx := context.Background()

	_, err := c.CreateSigningLink(ctx, "ag_1", 1)
	require.NoError(t, err)
	_, err = c.RegenerateSigningLink(ctx, "ag_1", 1)
	require.NoError(t, err)
	link, err := c.GetSigningLink(ctx, "ag_1", 1)
	require.NoError(t, err)
	assert.Equal(t, "123456", link.Code)

	assert.Equal(t, []string{
		"POST /api/ws/ws 1/agreements/ag_1/signers/1/link",
		"POST /api/ws/ws 1/agreements/ag_1/signers/1/link/regenerate",
		"GET /api/ws/ws 1/agreements/ag_1/signers/1/link",
	}, calls)
}

func TestClient_PatchAgreementSendsJSON(t *testing.T) {
	var body map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(Agreement{ID: "ag_1", Title: "New"})
	})

	a, err := c.PatchAgreement(context.Background(), "ag_1", map[string]interface{}{"title": "New"})
	require.NoError(t, err)
	assert.Equal(t, "New", a.Title)
	assert.Equal(t, "New", body["title"])
}

func TestFieldType_Predicates(t *testing.T) {
	assert.True(t, FieldSignature.IsSignatureLike())
	assert.True(t, FieldInitials.IsSignatureLike())
	assert.False(t, FieldText.IsSignatureLike())

	assert.True(t, FieldContactAddress.IsContactDerived())
	assert.True(t, FieldContactAddress.IsAutoFilled())
	assert.True(t, FieldDateSigned.IsAutoFilled())
	assert.False(t, FieldCheckbox.IsAutoFilled())

	assert.True(t, FieldNumber.AcceptsDefault())
	assert.False(t, FieldSignature.AcceptsDefault())

	ft, err := ParseFieldType("contact.email")
	require.NoError(t, err)
	assert.Equal(t, FieldContactEmail, ft)
	_, err = ParseFieldType("barcode")
	assert.Error(t, err)
}

func TestTemplate_Validate(t *testing.T) {
	roles := []SignatoryRole{{ID: "r1", Name: "Signer 1", RoutingOrder: 1}, {ID: "r2", Name: "Signer 2", RoutingOrder: 2}}

	tests := []struct {
		name    string
		tpl     Template
		wantErr string
	}{
		{"valid", Template{Roles: roles, Fields: []Field{
			{ID: "f1", Scope: ScopeDocument, Page: 1},
			{ID: "f2", Scope: ScopeSignatory, RoleID: "r2", Page: 3},
		}}, ""},
		{"zero roles", Template{Fields: []Field{{ID: "f1", Scope: ScopeDocument, Page: 1}}}, ""},
		{"no page", Template{Fields: []Field{{ID: "f1", Scope: ScopeDocument}}}, "no page"},
		{"unknown role", Template{Roles: roles, Fields: []Field{{ID: "f1", Scope: ScopeSignatory, RoleID: "r9", Page: 1}}}, "unknown role"},
		{"document field with role", Template{Roles: roles, Fields: []Field{{ID: "f1", Scope: ScopeDocument, RoleID: "r1", Page: 1}}}, "references role"},
		{"bad scope", Template{Fields: []Field{{ID: "f1", Scope: "both", Page: 1}}}, "invalid scope"},
		{"routing gap", Template{Roles: []SignatoryRole{{ID: "r1", RoutingOrder: 2}}}, "routing order"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tpl.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTemplate_Accessors(t *testing.T) {
	tpl := Template{
		Roles: []SignatoryRole{{ID: "r1", RoutingOrder: 1}, {ID: "r2", RoutingOrder: 2}},
		Fields: []Field{
			{ID: "d", Scope: ScopeDocument},
			{ID: "a", Scope: ScopeSignatory, RoleID: "r1"},
			{ID: "b", Scope: ScopeSignatory, RoleID: "r2"},
		},
	}
	assert.Equal(t, 2, tpl.RoleCount())
	r, ok := tpl.RoleByOrder(2)
	require.True(t, ok)
	assert.Equal(t, "r2", r.ID)
	_, ok = tpl.RoleByOrder(3)
	assert.False(t, ok)
	assert.Len(t, tpl.DocumentFields(), 1)
	assert.Equal(t, "a", tpl.FieldsForRole("r1")[0].ID)
}

func TestContact_ValueFor(t *testing.T) {
	c := Contact{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Company: "Engines"}
	assert.Equal(t, "Ada Lovelace", c.ValueFor(FieldContactName))
	assert.Equal(t, "Ada Lovelace", c.ValueFor(FieldFullName))
	assert.Equal(t, "Engines", c.ValueFor(FieldContactCompany))
	assert.Equal(t, "", c.ValueFor(FieldText))
}

func TestValidCode(t *testing.T) {
	assert.True(t, ValidCode("012345"))
	assert.False(t, ValidCode("12345"))
	assert.False(t, ValidCode("12345a"))
	assert.False(t, ValidCode("1234567"))
}

func TestParseSigningURL(t *testing.T) {
	u, err := ParseSigningURL("https://crm.example.com" + SigningPath("ws1", "ag_1", "tok_abc"))
	require.NoError(t, err)
	assert.Equal(t, SigningURL{WorkspaceID: "ws1", AgreementID: "ag_1", Token: "tok_abc"}, u)

	_, err = ParseSigningURL("/public/ws1/agreement/ag_1/view/tok")
	assert.Error(t, err)
	_, err = ParseSigningURL("/public/ws1/agreement/ag_1/sign/")
	assert.Error(t, err)
}

package crm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"signflow/pkg/logging"
)

// ErrMissingID is returned when a create call succeeds without an id.
var ErrMissingID = errors.New("response has no id")

// APIError is a non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client calls the workspace-scoped REST API with a bearer token.
type Client struct {
	baseURL     string
	workspaceID string
	httpClient  *http.Client
}

// Option configures a Client.
type Option func(*options)

type options struct {
	base    *http.Client
	timeout time.Duration
}

// WithHTTPClient sets the client whose transport carries the authenticated
// requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.base = c }
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// NewClient creates a client for baseURL scoped to workspaceID. An empty
// token sends unauthenticated requests.
func NewClient(ctx context.Context, baseURL, workspaceID, token string, opts ...Option) *Client {
	o := options{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.base)
	}

	var hc *http.Client
	if token == "" {
		hc = &http.Client{}
		if o.base != nil {
			hc.Transport = o.base.Transport
		}
	} else {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		hc = oauth2.NewClient(ctx, src)
	}
	hc.Timeout = o.timeout

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		workspaceID: workspaceID,
		httpClient:  hc,
	}
}

// WorkspaceID returns the workspace the client is scoped to.
func (c *Client) WorkspaceID() string { return c.workspaceID }

func (c *Client) path(format string, args ...interface{}) string {
	escaped := make([]interface{}, len(args))
	for i, a := range args {
		if s, ok := a.(string); ok {
			escaped[i] = url.PathEscape(s)
		} else {
			escaped[i] = a
		}
	}
	return fmt.Sprintf("/api/ws/%s/", url.PathEscape(c.workspaceID)) + fmt.Sprintf(format, escaped...)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}
	logging.Debug("CRMClient", "%s %s -> %d", method, path, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Message
			if apiErr.Message == "" {
				apiErr.Message = payload.Error
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

// CreateTemplate creates a template and returns it with its id.
func (c *Client) CreateTemplate(ctx context.Context, t Template) (Template, error) {
	var out Template
	if err := c.do(ctx, http.MethodPost, c.path("agreement-templates"), t, &out); err != nil {
		return Template{}, err
	}
	if out.ID == "" {
		return Template{}, fmt.Errorf("create template: %w", ErrMissingID)
	}
	return out, nil
}

// UpdateTemplate replaces a template.
func (c *Client) UpdateTemplate(ctx context.Context, t Template) (Template, error) {
	var out Template
	if err := c.do(ctx, http.MethodPut, c.path("agreement-templates/%s", t.ID), t, &out); err != nil {
		return Template{}, err
	}
	return out, nil
}

// GetTemplate fetches a template by id.
func (c *Client) GetTemplate(ctx context.Context, id string) (Template, error) {
	var out Template
	if err := c.do(ctx, http.MethodGet, c.path("agreement-templates/%s", id), nil, &out); err != nil {
		return Template{}, err
	}
	return out, nil
}

// SearchTemplates lists templates whose name contains query.
func (c *Client) SearchTemplates(ctx context.Context, query string) ([]Template, error) {
	var out listResponse[Template]
	p := c.path("agreement-templates") + "?search=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// CreateAgreement creates an agreement.
func (c *Client) CreateAgreement(ctx context.Context, a Agreement) (Agreement, error) {
	var out Agreement
	if err := c.do(ctx, http.MethodPost, c.path("agreements"), a, &out); err != nil {
		return Agreement{}, err
	}
	if out.ID == "" {
		return Agreement{}, fmt.Errorf("create agreement: %w", ErrMissingID)
	}
	return out, nil
}

// PatchAgreement applies a partial update.
func (c *Client) PatchAgreement(ctx context.Context, id string, patch map[string]interface{}) (Agreement, error) {
	var out Agreement
	if err := c.do(ctx, http.MethodPatch, c.path("agreements/%s", id), patch, &out); err != nil {
		return Agreement{}, err
	}
	return out, nil
}

// GetAgreement fetches an agreement by id.
func (c *Client) GetAgreement(ctx context.Context, id string) (Agreement, error) {
	var out Agreement
	if err := c.do(ctx, http.MethodGet, c.path("agreements/%s", id), nil, &out); err != nil {
		return Agreement{}, err
	}
	return out, nil
}

func (c *Client) linkPath(agreementID string, signerIndex int) string {
	return c.path("agreements/%s/signers/%s/link", agreementID, strconv.Itoa(signerIndex))
}

// CreateSigningLink issues the link of a signer slot.
func (c *Client) CreateSigningLink(ctx context.Context, agreementID string, signerIndex int) (SigningLink, error) {
	var out SigningLink
	if err := c.do(ctx, http.MethodPost, c.linkPath(agreementID, signerIndex), nil, &out); err != nil {
		return SigningLink{}, err
	}
	return out, nil
}

// RegenerateSigningLink issues a new link and code, invalidating the old code.
func (c *Client) RegenerateSigningLink(ctx context.Context, agreementID string, signerIndex int) (SigningLink, error) {
	var out SigningLink
	if err := c.do(ctx, http.MethodPost, c.linkPath(agreementID, signerIndex)+"/regenerate", nil, &out); err != nil {
		return SigningLink{}, err
	}
	return out, nil
}

// GetSigningLink returns the current link of a slot. A slot without a link
// yields an error for which IsNotFound is true.
func (c *Client) GetSigningLink(ctx context.Context, agreementID string, signerIndex int) (SigningLink, error) {
	var out SigningLink
	if err := c.do(ctx, http.MethodGet, c.linkPath(agreementID, signerIndex), nil, &out); err != nil {
		return SigningLink{}, err
	}
	return out, nil
}

// SearchContacts lists contacts matching query.
func (c *Client) SearchContacts(ctx context.Context, query string) ([]Contact, error) {
	var out listResponse[Contact]
	p := c.path("contacts") + "?search=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// CreateContact creates a contact.
func (c *Client) CreateContact(ctx context.Context, contact Contact) (Contact, error) {
	var out Contact
	if err := c.do(ctx, http.MethodPost, c.path("contacts"), contact, &out); err != nil {
		return Contact{}, err
	}
	if out.ID == "" {
		return Contact{}, fmt.Errorf("create contact: %w", ErrMissingID)
	}
	return out, nil
}

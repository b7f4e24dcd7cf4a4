package crm

import (
	"fmt"
	"net/url"
	"regexp"
)

var signingPath = regexp.MustCompile(`^/public/([^/]+)/agreement/([^/]+)/sign/([^/]+)$`)

// SigningURL is a parsed public signing URL.
type SigningURL struct {
	WorkspaceID string
	AgreementID string
	Token       string
}

// SigningPath returns the public signing path for a link.
func SigningPath(workspaceID, agreementID, token string) string {
	return fmt.Sprintf("/public/%s/agreement/%s/sign/%s", workspaceID, agreementID, token)
}

// ParseSigningURL parses an absolute or path-only public signing URL.
func ParseSigningURL(raw string) (SigningURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return SigningURL{}, fmt.Errorf("invalid signing url %q: %w", raw, err)
	}
	m := signingPath.FindStringSubmatch(u.Path)
	if m == nil {
		return SigningURL{}, fmt.Errorf("signing url %q does not match /public/{ws}/agreement/{id}/sign/{token}", raw)
	}
	return SigningURL{WorkspaceID: m[1], AgreementID: m[2], Token: m[3]}, nil
}

package oauth2server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// OAuth2 Authorization Server Metadata
// See https://datatracker.ietf.org/doc/html/rfc8414
// The OpenID Connect discovery document shares these fields, the OIDC only
// ones are included as well.
type Metadata struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	JwksURI                          string   `json:"jwks_uri,omitempty"`
	UserinfoEndpoint                 string   `json:"userinfo_endpoint,omitempty"`
	EndSessionEndpoint               string   `json:"end_session_endpoint,omitempty"`
	RevocationEndpoint               string   `json:"revocation_endpoint,omitempty"`
	ScopesSupported                  []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported           []string `json:"response_types_supported,omitempty"`
	ResponseModesSupported           []string `json:"response_modes_supported,omitempty"`
	GrantTypesSupported              []string `json:"grant_types_supported,omitempty"`
	IdTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported,omitempty"`
	CodeChallengeMethodsSupported    []string `json:"code_challenge_methods_supported,omitempty"`
	AuthorizationDetailsTypes        []string `json:"authorization_details_types_supported,omitempty"`
}

const (
	WellKnownOAuthAuthorizationServer = "/.well-known/oauth-authorization-server"
	WellKnownOpenIDConfiguration      = "/.well-known/openid-configuration"
)

// FetchMetadata loads the metadata of the given issuer. The RFC 8414 location
// is tried first, many OpenID providers only publish the OIDC discovery
// document, which is used as fallback.
func FetchMetadata(ctx context.Context, httpClient *http.Client, issuer string) (*Metadata, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	issuer = strings.TrimSuffix(issuer, "/")

	var lastErr error
	for _, path := range []string{WellKnownOAuthAuthorizationServer, WellKnownOpenIDConfiguration} {
		metadata, err := fetchMetadataDocument(ctx, httpClient, issuer+path)
		if err == nil {
			return metadata, nil
		}
		slog.Debug("Metadata document not available", "url", issuer+path, "error", err)
		lastErr = err
	}
	return nil, fmt.Errorf("fetch metadata for %s: %w", issuer, lastErr)
}

func fetchMetadataDocument(ctx context.Context, httpClient *http.Client, url string) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	var metadata Metadata
	err = json.NewDecoder(resp.Body).Decode(&metadata)
	if err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	if metadata.Issuer == "" {
		return nil, fmt.Errorf("metadata from %s has no issuer", url)
	}

	return &metadata, nil
}

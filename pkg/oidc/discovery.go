package oidc

import (
	"context"
	"net/http"
	"strings"

	"github.com/gematik/zero-rar/pkg/oauth2server"
)

// DiscoveryDocument is the OpenID provider configuration.
type DiscoveryDocument = oauth2server.Metadata

func FetchDiscoveryDocument(ctx context.Context, httpClient *http.Client, issuer string) (*DiscoveryDocument, error) {
	return oauth2server.FetchMetadata(ctx, httpClient, strings.TrimSuffix(issuer, "/"))
}

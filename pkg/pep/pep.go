// Package pep verifies bearer access tokens issued by the authorization
// server and guards echo routes with them.
package pep

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gematik/zero-rar/pkg/oauth2server"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

type PEP struct {
	Config        Config
	httpClient    *http.Client
	issuer        string
	authzMetadata *oauth2server.Metadata
	keySet        jwk.Set
}

type Option func(*PEP) error

// WithHTTPClient sets the client used for metadata and key retrieval.
func WithHTTPClient(client *http.Client) Option {
	return func(p *PEP) error {
		p.httpClient = client
		return nil
	}
}

// WithStaticKeySet skips the metadata discovery and verifies tokens of the
// given issuer with a fixed key set.
func WithStaticKeySet(issuer string, keySet jwk.Set) Option {
	return func(p *PEP) error {
		p.issuer = issuer
		p.keySet = keySet
		return nil
	}
}

func New(ctx context.Context, config Config, opts ...Option) (*PEP, error) {
	if config.Realm == "" {
		config.Realm = DefaultRealm
	}
	p := &PEP{
		Config:     config,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	if p.keySet != nil {
		return p, nil
	}

	if err := p.reloadMetadata(ctx); err != nil {
		return nil, err
	}

	return p, nil
}

func NewFromConfigFile(ctx context.Context, path string, opts ...Option) (*PEP, error) {
	config, err := LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config file: %w", err)
	}

	return New(ctx, *config, opts...)
}

func (p *PEP) reloadMetadata(ctx context.Context) error {
	metadata, err := oauth2server.FetchMetadata(ctx, p.httpClient, p.Config.AuthzIssuer)
	if err != nil {
		return fmt.Errorf("fetch metadata: %w", err)
	}

	slog.Info("Fetched authz metadata", "issuer", metadata.Issuer, "jwks_uri", metadata.JwksURI)

	if metadata.JwksURI == "" {
		return fmt.Errorf("authz metadata of %s has no jwks_uri", metadata.Issuer)
	}

	p.authzMetadata = metadata
	p.issuer = metadata.Issuer

	jwksCache := jwk.NewCache(ctx)
	err = jwksCache.Register(
		metadata.JwksURI,
		jwk.WithMinRefreshInterval(15*time.Minute),
		jwk.WithHTTPClient(p.httpClient),
	)
	if err != nil {
		return fmt.Errorf("register jwks: %w", err)
	}
	// refresh signing keys
	_, err = jwksCache.Refresh(ctx, metadata.JwksURI)
	if err != nil {
		return fmt.Errorf("failed to fetch signing keys: %w", err)
	}

	slog.Info("Fetched signing keys", "jwks_uri", metadata.JwksURI)

	p.keySet = jwk.NewCachedSet(jwksCache, metadata.JwksURI)

	return nil
}

func (p *PEP) Issuer() string {
	return p.issuer
}

// Verify checks signature, issuer, audience and lifetime of the access token.
func (p *PEP) Verify(ctx context.Context, accessToken string) (*Claims, error) {
	token, err := jwt.ParseString(
		accessToken,
		jwt.WithContext(ctx),
		jwt.WithKeySet(p.keySet, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(true),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.Config.Audience),
		jwt.WithAcceptableSkew(p.Config.ClockSkew),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	)
	if err != nil {
		return nil, fmt.Errorf("verify access token: %w", err)
	}

	return claimsFromToken(token)
}

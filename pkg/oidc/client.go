// Package oidc is the relying party side of the OpenID Connect login.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gematik/zero-rar/pkg/oauth2"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	xoauth2 "golang.org/x/oauth2"
)

type Config struct {
	Issuer       string   `validate:"required,url"`
	ClientID     string   `validate:"required"`
	RedirectURI  string   `validate:"required,url"`
	Scopes       []string `validate:"required,min=1"`
	ResponseType string   `validate:"required"`
	ClientSecret string
	Audience     string
}

type Client struct {
	Config            *Config
	httpClient        *http.Client
	discoveryDocument *DiscoveryDocument
	keySet            jwk.Set
	oauth2Config      *xoauth2.Config
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(ctx context.Context, cfg *Config, opts ...Option) (*Client, error) {
	c := &Client{
		Config:     cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	var err error
	c.discoveryDocument, err = FetchDiscoveryDocument(ctx, c.httpClient, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch discovery document of %s: %w", cfg.Issuer, err)
	}

	// prepare the auto-refreshing signing key cache
	keyCache := jwk.NewCache(ctx)
	err = keyCache.Register(
		c.discoveryDocument.JwksURI,
		jwk.WithMinRefreshInterval(15*time.Minute),
		jwk.WithHTTPClient(c.httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register signing keys: %w", err)
	}
	_, err = keyCache.Refresh(ctx, c.discoveryDocument.JwksURI)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch signing keys: %w", err)
	}
	c.keySet = jwk.NewCachedSet(keyCache, c.discoveryDocument.JwksURI)

	c.oauth2Config = &xoauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: xoauth2.Endpoint{
			AuthURL:  c.discoveryDocument.AuthorizationEndpoint,
			TokenURL: c.discoveryDocument.TokenEndpoint,
		},
		RedirectURL: cfg.RedirectURI,
		Scopes:      cfg.Scopes,
	}

	return c, nil
}

// IssuesAccessToken reports whether the configured response type delivers an access token.
func (c *Client) IssuesAccessToken() bool {
	return oauth2.ResponseTypeIssuesAccessToken(c.Config.ResponseType)
}

// AuthCodeURL builds the authorization request. The options override the
// defaults derived from the config, e.g. scope or authorization_details.
func (c *Client) AuthCodeURL(state, nonce, verifier string, opts ...oauth2.ParameterOption) string {
	params := url.Values{}
	params.Set("nonce", nonce)
	oauth2.WithResponseType(c.Config.ResponseType)(params)
	oauth2.WithAudience(c.Config.Audience)(params)
	if strings.Contains(c.Config.ResponseType, "id_token") {
		params.Set("response_mode", "form_post")
	}

	for _, opt := range opts {
		opt(params)
	}

	authOpts := []xoauth2.AuthCodeOption{xoauth2.S256ChallengeOption(verifier)}
	for name := range params {
		authOpts = append(authOpts, xoauth2.SetAuthURLParam(name, params.Get(name)))
	}

	authURL := c.oauth2Config.AuthCodeURL(state, authOpts...)
	slog.Debug("Using OP AuthorizationEndpoint", "url", c.discoveryDocument.AuthorizationEndpoint)
	return authURL
}

// Exchange redeems the authorization code at the token endpoint.
func (c *Client) Exchange(ctx context.Context, code, verifier string) (*xoauth2.Token, error) {
	ctx = context.WithValue(ctx, xoauth2.HTTPClient, c.httpClient)
	token, err := c.oauth2Config.Exchange(ctx, code, xoauth2.VerifierOption(verifier))
	if err != nil {
		var retrieveErr *xoauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
			return nil, &oauth2.Error{
				Code:        retrieveErr.ErrorCode,
				Description: retrieveErr.ErrorDescription,
			}
		}
		return nil, fmt.Errorf("unable to exchange code for token: %w", err)
	}
	return token, nil
}

// ParseIDToken parses and verifies an ID token against the keys from the
// discovery document and checks the nonce of the login.
func (c *Client) ParseIDToken(ctx context.Context, serialized, nonce string) (jwt.Token, error) {
	token, err := jwt.ParseString(
		serialized,
		jwt.WithContext(ctx),
		jwt.WithKeySet(c.keySet, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(true),
		jwt.WithIssuer(c.discoveryDocument.Issuer),
		jwt.WithAudience(c.Config.ClientID),
		jwt.WithRequiredClaim("nonce"),
		jwt.WithClaimValue("nonce", nonce),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to parse id token: %w", err)
	}
	return token, nil
}

// EndSessionURL returns where to send the browser on logout. Providers
// without end_session_endpoint get the Auth0 style /v2/logout.
func (c *Client) EndSessionURL(idTokenHint, returnTo string) string {
	params := url.Values{}
	if endpoint := c.discoveryDocument.EndSessionEndpoint; endpoint != "" {
		params.Set("post_logout_redirect_uri", returnTo)
		params.Set("client_id", c.Config.ClientID)
		if idTokenHint != "" {
			params.Set("id_token_hint", idTokenHint)
		}
		return endpoint + "?" + params.Encode()
	}
	params.Set("client_id", c.Config.ClientID)
	params.Set("returnTo", returnTo)
	return strings.TrimSuffix(c.discoveryDocument.Issuer, "/") + "/v2/logout?" + params.Encode()
}

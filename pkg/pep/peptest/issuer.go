// Package peptest provides a mock authorization server for tests: it signs
// access tokens and serves its metadata and keys.
package peptest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gematik/zero-rar/pkg/oauth2"
	"github.com/gematik/zero-rar/pkg/oauth2server"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const DefaultAudience = "https://api.example.com"

type Issuer struct {
	Issuer   string
	Audience string
	// TokenHandler serves the token endpoint, if set
	TokenHandler http.HandlerFunc
	signingKey   jwk.Key
	publicKeys   jwk.Set
	server       *httptest.Server
}

// NewIssuer creates an issuer with a fresh RSA signing key. It does not
// serve anything until Serve is called.
func NewIssuer(issuer string) (*Issuer, error) {
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	signingKey, err := jwk.FromRaw(raw)
	if err != nil {
		return nil, err
	}
	if err := signingKey.Set(jwk.KeyIDKey, "test-key"); err != nil {
		return nil, err
	}
	if err := signingKey.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return nil, err
	}

	publicKey, err := signingKey.PublicKey()
	if err != nil {
		return nil, err
	}
	publicKey.Set(jwk.KeyIDKey, "test-key")
	publicKey.Set(jwk.AlgorithmKey, jwa.RS256)
	publicKeys := jwk.NewSet()
	if err := publicKeys.AddKey(publicKey); err != nil {
		return nil, err
	}

	return &Issuer{
		Issuer:     issuer,
		Audience:   DefaultAudience,
		signingKey: signingKey,
		publicKeys: publicKeys,
	}, nil
}

// Serve starts an http server publishing the OIDC discovery document and
// the public keys. The issuer is set to the server URL.
func (i *Issuer) Serve() *httptest.Server {
	mux := http.NewServeMux()
	i.server = httptest.NewServer(mux)
	i.Issuer = i.server.URL + "/"

	mux.HandleFunc(oauth2server.WellKnownOpenIDConfiguration, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(oauth2server.Metadata{
			Issuer:                i.Issuer,
			AuthorizationEndpoint: i.server.URL + "/authorize",
			TokenEndpoint:         i.server.URL + "/oauth/token",
			JwksURI:               i.server.URL + "/.well-known/jwks.json",
			EndSessionEndpoint:    i.server.URL + "/logout",
		})
	})
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if i.TokenHandler == nil {
			http.NotFound(w, r)
			return
		}
		i.TokenHandler(w, r)
	})
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(i.publicKeys)
	})

	return i.server
}

func (i *Issuer) KeySet() jwk.Set {
	return i.publicKeys
}

type TokenOption func(jwt.Token) error

func WithScope(scope string) TokenOption {
	return func(t jwt.Token) error {
		return t.Set("scope", scope)
	}
}

func WithAuthorizationDetails(details ...oauth2.AuthorizationDetails) TokenOption {
	return func(t jwt.Token) error {
		return t.Set(oauth2.AuthorizationDetailsParameter, details)
	}
}

func WithClaim(name string, value interface{}) TokenOption {
	return func(t jwt.Token) error {
		return t.Set(name, value)
	}
}

func WithExpiration(exp time.Time) TokenOption {
	return func(t jwt.Token) error {
		return t.Set(jwt.ExpirationKey, exp)
	}
}

// AccessToken returns a signed access token for the subject.
func (i *Issuer) AccessToken(subject string, opts ...TokenOption) (string, error) {
	return i.sign(subject, i.Audience, opts...)
}

// IDToken returns a signed id token for the client.
func (i *Issuer) IDToken(subject, clientID, nonce string, opts ...TokenOption) (string, error) {
	return i.sign(subject, clientID, append([]TokenOption{WithClaim("nonce", nonce)}, opts...)...)
}

func (i *Issuer) sign(subject, audience string, opts ...TokenOption) (string, error) {
	token := jwt.New()
	token.Set(jwt.IssuerKey, i.Issuer)
	token.Set(jwt.SubjectKey, subject)
	token.Set(jwt.AudienceKey, []string{audience})
	token.Set(jwt.IssuedAtKey, time.Now())
	token.Set(jwt.ExpirationKey, time.Now().Add(time.Hour))

	for _, opt := range opts {
		if err := opt(token); err != nil {
			return "", err
		}
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, i.signingKey))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

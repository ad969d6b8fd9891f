package oauth2

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/url"
)

// ParameterOption modifies the query parameters of an authorization request.
type ParameterOption func(params url.Values)

func WithScope(scope string) ParameterOption {
	return func(params url.Values) {
		if scope != "" {
			params.Set("scope", scope)
		}
	}
}

func WithAudience(audience string) ParameterOption {
	return func(params url.Values) {
		if audience != "" {
			params.Set("audience", audience)
		}
	}
}

func WithResponseType(responseType string) ParameterOption {
	return func(params url.Values) {
		if responseType != "" {
			params.Set("response_type", responseType)
		}
	}
}

// WithParameter sets an arbitrary request parameter, e.g. a serialized authorization_details.
func WithParameter(name, value string) ParameterOption {
	return func(params url.Values) {
		params.Set(name, value)
	}
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
}

// Error is the RFC 6749 error response, also delivered as query parameters on redirects.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Error codes used by this module.
const (
	ErrorCodeAccessDenied   = "access_denied"
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeServerError    = "server_error"
)

// ResponseTypeIssuesAccessToken reports whether the given OIDC response type
// results in an access token being delivered to the client.
func ResponseTypeIssuesAccessToken(responseType string) bool {
	switch responseType {
	case "code", "code id_token":
		return true
	}
	return false
}

const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-"

func GenerateCodeVerifier() string {
	n := 128
	ret := make([]byte, n)
	for i := 0; i < n; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			panic("Random number generation failed")
		}
		ret[i] = letters[num.Int64()]
	}

	return string(ret)
}

package pep

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gematik/zero-rar/pkg/oauth2"
	"github.com/gematik/zero-rar/pkg/util"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims of a verified access token.
type Claims struct {
	Subject              string
	Scopes               []string
	AuthorizationDetails *oauth2.AuthorizationDetails
	Private              map[string]interface{}
}

func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func (c *Claims) HasAllScopes(scopes ...string) bool {
	for _, required := range scopes {
		if !c.HasScope(required) {
			return false
		}
	}
	return true
}

// flat variant, some authorization servers put the approved transaction
// directly into the top level claims
type flatAuthorizationDetails struct {
	TransactionAmount   *float64 `json:"transaction_amount"`
	TransactionCurrency string   `json:"transaction_currency"`
	TransactionID       string   `json:"transaction_id"`
	Account             string   `json:"account"`
	Description         string   `json:"description"`
}

func claimsFromToken(token jwt.Token) (*Claims, error) {
	claims := &Claims{
		Subject: token.Subject(),
		Private: token.PrivateClaims(),
	}

	if scope, ok := claims.Private["scope"].(string); ok {
		claims.Scopes = strings.Fields(scope)
	}
	if permissions, ok := claims.Private["permissions"].([]interface{}); ok {
		for _, p := range permissions {
			if s, ok := p.(string); ok && !claims.HasScope(s) {
				claims.Scopes = append(claims.Scopes, s)
			}
		}
	}

	details, err := authorizationDetailsFromClaims(claims.Private)
	if err != nil {
		return nil, err
	}
	claims.AuthorizationDetails = details

	return claims, nil
}

// authorizationDetailsFromClaims returns nil when the token approves no
// transaction. A malformed claim approves nothing but keeps the token valid.
func authorizationDetailsFromClaims(private map[string]interface{}) (*oauth2.AuthorizationDetails, error) {
	if raw, ok := private[oauth2.AuthorizationDetailsParameter]; ok {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("encode authorization_details claim: %w", err)
		}
		details, err := oauth2.ParseAuthorizationDetails(data)
		if err != nil {
			slog.Warn("Ignoring unparsable authorization_details claim", "error", err)
			return nil, nil
		}
		if details == nil {
			return nil, nil
		}
		if err := util.Validate(details); err != nil {
			slog.Warn("Ignoring invalid authorization_details claim", "error", err)
			return nil, nil
		}
		return details, nil
	}

	flat, err := util.AnyToStruct[flatAuthorizationDetails](private)
	if err != nil {
		slog.Warn("Ignoring malformed flat authorization details", "error", err)
		return nil, nil
	}
	if flat.TransactionAmount == nil {
		return nil, nil
	}
	return &oauth2.AuthorizationDetails{
		Type:                oauth2.AuthorizationDetailsTypePayment,
		TransactionAmount:   flat.TransactionAmount,
		TransactionCurrency: flat.TransactionCurrency,
		TransactionID:       flat.TransactionID,
		Account:             flat.Account,
		Description:         flat.Description,
	}, nil
}

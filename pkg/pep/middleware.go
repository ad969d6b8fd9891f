package pep

import (
	"log/slog"
	"strings"

	"github.com/gematik/zero-rar/pkg/rar"
	"github.com/gematik/zero-rar/pkg/util"
	"github.com/labstack/echo/v4"
)

const claimsContextKey = "pep.claims"

// Authenticate rejects requests without a valid bearer token and stores the
// verified claims in the echo context.
func (p *PEP) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		scheme, accessToken, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || accessToken == "" {
			return rar.ErrMissingToken
		}

		claims, err := p.Verify(c.Request().Context(), strings.TrimSpace(accessToken))
		if err != nil {
			slog.Info("Access token rejected", "error", err, "path", c.Path())
			slog.Debug("Rejected access token", "token", util.JWSToText(accessToken))
			return rar.Wrap(rar.ErrUnauthenticated, err)
		}

		c.Set(claimsContextKey, claims)
		return next(c)
	}
}

// ClaimsFrom returns the claims stored by Authenticate, nil if there are none.
func ClaimsFrom(c echo.Context) *Claims {
	claims, _ := c.Get(claimsContextKey).(*Claims)
	return claims
}

// RequireScopes allows the request only if the token carries all scopes.
func RequireScopes(scopes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := ClaimsFrom(c)
			if claims == nil {
				return rar.ErrMissingToken
			}
			if !claims.HasAllScopes(scopes...) {
				e := *rar.ErrInsufficientScope
				e.Scope = strings.Join(scopes, " ")
				return &e
			}
			slog.Debug("Valid token with scopes", "scopes", scopes)
			return next(c)
		}
	}
}

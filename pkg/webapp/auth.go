package webapp

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gematik/zero-rar/pkg/oauth2"
	"github.com/gematik/zero-rar/pkg/rar"
	"github.com/gematik/zero-rar/pkg/session"
	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v2/jwt"
	xoauth2 "golang.org/x/oauth2"
)

func (s *Server) LoginEndpoint(c echo.Context) error {
	return s.startLogin(c, c.QueryParam("returnTo"))
}

// startLogin remembers the login in the session and sends the browser to
// the authorization server. opts override the default request parameters.
func (s *Server) startLogin(c echo.Context, returnTo string, opts ...oauth2.ParameterOption) error {
	// only local paths, never an open redirect
	if !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") {
		returnTo = "/"
	}

	state, err := s.states.Get()
	if err != nil {
		return fmt.Errorf("unable to generate state: %w", err)
	}
	login := &session.LoginState{
		State:     state,
		Nonce:     oauth2.GenerateCodeVerifier(),
		Verifier:  oauth2.GenerateCodeVerifier(),
		ReturnTo:  returnTo,
		CreatedAt: time.Now(),
	}

	current := session.Current(c)
	current.Login = login
	if err := s.binder.Save(c, current); err != nil {
		return err
	}

	authURL := s.oidc.AuthCodeURL(login.State, login.Nonce, login.Verifier, opts...)
	slog.Debug("Redirecting to authorization server", "return_to", returnTo)
	return c.Redirect(http.StatusFound, authURL)
}

// CallbackEndpoint receives the authorization response, either as query
// or as form_post.
func (s *Server) CallbackEndpoint(c echo.Context) error {
	current := session.Current(c)
	login := current.Login
	if login == nil {
		return rar.Elaborate(rar.ErrInvalidRequest, "No login in progress")
	}

	state := c.FormValue("state")
	if state != login.State {
		return rar.Elaborate(rar.ErrInvalidRequest, "State mismatch")
	}
	if err := s.states.Redeem(state); err != nil {
		return rar.Wrap(rar.Elaborate(rar.ErrInvalidRequest, "Login expired, please try again"), err)
	}

	current.Login = nil
	if err := s.binder.Save(c, current); err != nil {
		return err
	}

	if code := c.FormValue("error"); code != "" {
		if code == oauth2.ErrorCodeAccessDenied {
			return c.Redirect(http.StatusFound, "/prepare-transaction?error="+oauth2.ErrorCodeAccessDenied)
		}
		e := rar.Elaborate(rar.ErrUpstreamDenied, "%s", c.FormValue("error_description"))
		e.Code = code
		if e.Message == "" {
			e.Message = code
		}
		return e
	}

	var token *xoauth2.Token
	rawIDToken := c.FormValue("id_token")
	if code := c.FormValue("code"); code != "" {
		var err error
		token, err = s.oidc.Exchange(c.Request().Context(), code, login.Verifier)
		if err != nil {
			return rar.Wrap(rar.Elaborate(rar.ErrUpstreamDenied, "Unable to complete the login"), err)
		}
		if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
			rawIDToken = idToken
		}
	}
	if rawIDToken == "" {
		return rar.Elaborate(rar.ErrInvalidRequest, "No ID token in authorization response")
	}

	idToken, err := s.oidc.ParseIDToken(c.Request().Context(), rawIDToken, login.Nonce)
	if err != nil {
		return rar.Wrap(rar.Elaborate(rar.ErrUpstreamDenied, "Invalid ID token"), err)
	}

	current.User, err = userFromIDToken(c, idToken)
	if err != nil {
		return err
	}
	current.IDToken = rawIDToken
	current.Token = nil
	if s.oidc.IssuesAccessToken() {
		current.Token = token
	}
	if err := s.binder.Save(c, current); err != nil {
		return err
	}

	slog.Info("User logged in", "sub", current.User.Subject, "access_token", current.Token != nil)
	return c.Redirect(http.StatusFound, login.ReturnTo)
}

func userFromIDToken(c echo.Context, idToken jwt.Token) (*session.User, error) {
	claims, err := idToken.AsMap(c.Request().Context())
	if err != nil {
		return nil, fmt.Errorf("unable to read id token claims: %w", err)
	}
	user := &session.User{
		Subject: idToken.Subject(),
		Claims:  claims,
	}
	user.Name, _ = claims["name"].(string)
	user.Email, _ = claims["email"].(string)
	return user, nil
}

func (s *Server) LogoutEndpoint(c echo.Context) error {
	current := session.Current(c)
	logoutURL := s.oidc.EndSessionURL(current.IDToken, s.cfg.AppURL)
	if err := s.binder.Destroy(c, current); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, logoutURL)
}

// Package webapp is the relying party: it logs users in, calls the API with
// their access token and steps up the authorization when the API asks for
// a transaction-specific grant.
package webapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gematik/zero-rar/pkg/nonce"
	"github.com/gematik/zero-rar/pkg/oidc"
	"github.com/gematik/zero-rar/pkg/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/ksuid"
)

type Server struct {
	cfg          Config
	oidc         *oidc.Client
	api          *APIClient
	orchestrator *Orchestrator
	sessions     session.Manager
	binder       *session.CookieBinder
	states       nonce.Service
	echo         *echo.Echo
}

type Option func(*Server) error

// WithSessionManager replaces the in-memory session manager.
func WithSessionManager(m session.Manager) Option {
	return func(s *Server) error {
		s.sessions = m
		return nil
	}
}

func NewServer(cfg Config, oidcClient *oidc.Client, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		oidc:     oidcClient,
		api:      NewAPIClient(cfg.APIURL, cfg.APITimeout),
		sessions: session.NewMemoryManager(),
	}
	s.orchestrator = NewOrchestrator(s.api)

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	var err error
	s.states, err = nonce.NewService()
	if err != nil {
		return nil, err
	}

	cookieOptions := session.CookieOptions{
		Secret: cfg.SessionSecret,
		Secure: strings.HasPrefix(cfg.AppURL, "https://"),
	}
	// the form_post callback is a cross-site POST
	if cookieOptions.Secure && strings.Contains(cfg.ResponseType, "id_token") {
		cookieOptions.SameSite = http.SameSiteNoneMode
	}
	s.binder, err = session.NewCookieBinder(s.sessions, cookieOptions)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.Renderer = newTemplateRenderer()
	e.HTTPErrorHandler = s.httpErrorHandler
	e.Use(
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			Generator: func() string { return ksuid.New().String() },
		}),
		middleware.Logger(),
		middleware.Recover(),
		s.canonicalHost,
		ErrorLogMiddleware,
	)
	s.echo = e
	s.MountRoutes(e)

	return s, nil
}

func (s *Server) MountRoutes(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	g := e.Group("", s.binder.Middleware())
	g.GET("/", s.HomeEndpoint)
	g.GET("/login", s.LoginEndpoint)
	g.GET("/callback", s.CallbackEndpoint)
	g.POST("/callback", s.CallbackEndpoint)
	g.GET("/logout", s.LogoutEndpoint)

	g.GET("/user", s.UserEndpoint, s.requiresAuth)
	g.GET("/prepare-transaction", s.PrepareTransactionEndpoint, s.requiresAuth)
	g.GET("/resume-transaction", s.ResumeTransactionEndpoint, s.requiresAuth)
	g.POST("/submit-transaction", s.SubmitTransactionEndpoint, s.requiresAuth)
	g.GET("/balance", s.BalanceEndpoint, s.requiresAuth)
}

// canonicalHost redirects requests addressed to another host than the
// public URL of the app, so cookies and redirect URIs line up.
func (s *Server) canonicalHost(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !strings.Contains(s.cfg.AppURL, c.Request().Host) {
			return c.Redirect(http.StatusMovedPermanently, s.cfg.AppURL)
		}
		return next(c)
	}
}

func (s *Server) requiresAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if current := session.Current(c); current == nil || !current.Authenticated() {
			returnTo := c.Request().URL.Path
			if c.Request().Method == http.MethodGet {
				returnTo = c.Request().URL.RequestURI()
			}
			return c.Redirect(http.StatusFound, "/login?returnTo="+url.QueryEscape(returnTo))
		}
		return next(c)
	}
}

func ErrorLogMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if err != nil {
			slog.Error("Error", "error", err, "path", c.Path(), "remote_addr", c.RealIP())
		}
		return err
	}
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// ListenAndServe blocks until ctx is done or the server fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("WEB APP listening", "url", s.cfg.AppURL, "address", s.cfg.Address)
		errCh <- s.echo.Start(s.cfg.Address)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web app server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

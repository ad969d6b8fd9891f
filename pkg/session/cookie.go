package session

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
	echosession "github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

const (
	DefaultCookieName = "rar_session"
	sessionIDKey      = "sid"
	contextKey        = "session.current"
)

type CookieOptions struct {
	Name     string
	Secret   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   int
}

// CookieBinder ties a signed gorilla cookie holding only the session id to
// a session kept by the Manager.
type CookieBinder struct {
	manager Manager
	store   sessions.Store
	name    string
}

func NewCookieBinder(manager Manager, opts CookieOptions) (*CookieBinder, error) {
	if opts.Secret == "" {
		return nil, errors.New("session secret is required")
	}
	if opts.Name == "" {
		opts.Name = DefaultCookieName
	}
	if opts.MaxAge == 0 {
		opts.MaxAge = 86400
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}
	store := sessions.NewCookieStore([]byte(opts.Secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   opts.MaxAge,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	}
	return &CookieBinder{
		manager: manager,
		store:   store,
		name:    opts.Name,
	}, nil
}

// Middleware installs the cookie store and loads the session of the
// request, creating one when the cookie is missing or stale.
func (b *CookieBinder) Middleware() echo.MiddlewareFunc {
	storeMiddleware := echosession.Middleware(b.store)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return storeMiddleware(func(c echo.Context) error {
			s, err := b.load(c)
			if err != nil {
				return fmt.Errorf("unable to load session: %w", err)
			}
			c.Set(contextKey, s)
			return next(c)
		})
	}
}

func (b *CookieBinder) load(c echo.Context) (*Session, error) {
	cookie, err := echosession.Get(b.name, c)
	if err != nil {
		// tampered or signed with another secret, start over
		slog.Debug("discarding session cookie", "error", err)
	}
	if id, ok := cookie.Values[sessionIDKey].(string); ok && id != "" {
		s, err := b.manager.Get(c.Request().Context(), id)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	s, err := b.manager.Create(c.Request().Context())
	if err != nil {
		return nil, err
	}
	cookie.Values[sessionIDKey] = s.ID
	if err := cookie.Save(c.Request(), c.Response()); err != nil {
		return nil, fmt.Errorf("unable to write session cookie: %w", err)
	}
	return s, nil
}

// Current returns the session loaded by Middleware.
func Current(c echo.Context) *Session {
	s, _ := c.Get(contextKey).(*Session)
	return s
}

// Save stores the changes made to the current session.
func (b *CookieBinder) Save(c echo.Context, s *Session) error {
	c.Set(contextKey, s)
	return b.manager.Update(c.Request().Context(), s)
}

// Destroy deletes the session and expires the cookie.
func (b *CookieBinder) Destroy(c echo.Context, s *Session) error {
	if err := b.manager.Delete(c.Request().Context(), s.ID); err != nil {
		return err
	}
	cookie, _ := echosession.Get(b.name, c)
	cookie.Options.MaxAge = -1
	delete(cookie.Values, sessionIDKey)
	return cookie.Save(c.Request(), c.Response())
}

package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gematik/zero-rar/pkg/session"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepUpLastWriteWins(t *testing.T) {
	var state session.StepUp
	assert.False(t, state.HasPending())

	state = state.With(session.PendingTransaction{TransactionAmount: 50, TransactionID: "1"})
	state = state.With(session.PendingTransaction{TransactionAmount: 70, TransactionID: "2"})
	require.True(t, state.HasPending())
	assert.Equal(t, "2", state.Pending.TransactionID)
	assert.Equal(t, 70.0, state.Pending.TransactionAmount)

	assert.False(t, state.Cleared().HasPending())
}

func TestMemoryManager(t *testing.T) {
	ctx := context.Background()
	m := session.NewMemoryManager()

	s, err := m.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)

	s.User = &session.User{Subject: "alice"}
	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, got.User, "changes must not apply before Update")

	require.NoError(t, m.Update(ctx, s))
	got, err = m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.User.Subject)

	require.NoError(t, m.Delete(ctx, s.ID))
	_, err = m.Get(ctx, s.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.ErrorIs(t, m.Update(ctx, s), session.ErrNotFound)
}

func TestMemoryManagerConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	m := session.NewMemoryManager()
	s, err := m.Create(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(amount float64) {
			defer wg.Done()
			current, err := m.Get(ctx, s.ID)
			if err != nil {
				return
			}
			current.StepUp = current.StepUp.With(session.PendingTransaction{TransactionAmount: amount})
			m.Update(ctx, current)
		}(float64(i))
	}
	wg.Wait()

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.StepUp.HasPending())
}

func newEcho(t *testing.T, binder *session.CookieBinder) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.Use(binder.Middleware())
	e.GET("/whoami", func(c echo.Context) error {
		s := session.Current(c)
		if s.User == nil {
			return c.String(http.StatusOK, s.ID+":anonymous")
		}
		return c.String(http.StatusOK, s.ID+":"+s.User.Subject)
	})
	e.GET("/login", func(c echo.Context) error {
		s := session.Current(c)
		s.User = &session.User{Subject: "alice"}
		return binder.Save(c, s)
	})
	e.GET("/logout", func(c echo.Context) error {
		return binder.Destroy(c, session.Current(c))
	})
	return e
}

func do(e *echo.Echo, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCookieBinder(t *testing.T) {
	_, err := session.NewCookieBinder(session.NewMemoryManager(), session.CookieOptions{})
	require.Error(t, err, "secret is required")

	binder, err := session.NewCookieBinder(session.NewMemoryManager(), session.CookieOptions{Secret: "a-long-test-secret"})
	require.NoError(t, err)
	e := newEcho(t, binder)

	rec := do(e, "/whoami", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.DefaultCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	anonymous := rec.Body.String()
	assert.Contains(t, anonymous, ":anonymous")

	rec = do(e, "/login", cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies(), "known session must not rewrite the cookie")

	rec = do(e, "/whoami", cookies)
	assert.Contains(t, rec.Body.String(), ":alice")

	rec = do(e, "/logout", cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	expired := rec.Result().Cookies()
	require.Len(t, expired, 1)
	assert.True(t, expired[0].MaxAge < 0)

	// the old cookie now points to a deleted session and gets a fresh one
	rec = do(e, "/whoami", cookies)
	assert.Contains(t, rec.Body.String(), ":anonymous")
	assert.NotEqual(t, anonymous, rec.Body.String())
}

func TestCookieBinderRejectsForeignCookie(t *testing.T) {
	manager := session.NewMemoryManager()
	other, err := session.NewCookieBinder(manager, session.CookieOptions{Secret: "another-secret"})
	require.NoError(t, err)
	binder, err := session.NewCookieBinder(manager, session.CookieOptions{Secret: "a-long-test-secret"})
	require.NoError(t, err)

	rec := do(newEcho(t, other), "/login", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	foreign := rec.Result().Cookies()

	rec = do(newEcho(t, binder), "/whoami", foreign)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ":anonymous")
}

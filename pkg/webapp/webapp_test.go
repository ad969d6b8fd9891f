package webapp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gematik/zero-rar/pkg/api"
	"github.com/gematik/zero-rar/pkg/ledger"
	"github.com/gematik/zero-rar/pkg/oauth2"
	"github.com/gematik/zero-rar/pkg/oidc"
	"github.com/gematik/zero-rar/pkg/pep"
	"github.com/gematik/zero-rar/pkg/pep/peptest"
	"github.com/gematik/zero-rar/pkg/webapp"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	appURL   = "http://example.com"
	clientID = "web-app"
)

type grant struct {
	nonce   string
	details *oauth2.AuthorizationDetails
}

// authorizationServer plays the user agreeing (or not) at the authorization server.
type authorizationServer struct {
	issuer *peptest.Issuer
	server *httptest.Server
	mux    sync.Mutex
	grants map[string]grant
	// denyStepUp refuses authorization requests carrying authorization_details
	denyStepUp bool
	requests   []url.Values
}

func newAuthorizationServer(t *testing.T) *authorizationServer {
	t.Helper()
	issuer, err := peptest.NewIssuer("")
	require.NoError(t, err)
	as := &authorizationServer{issuer: issuer, grants: make(map[string]grant)}
	issuer.TokenHandler = as.token
	as.server = issuer.Serve()
	t.Cleanup(as.server.Close)
	return as
}

func (as *authorizationServer) authorize(t *testing.T, location string) string {
	t.Helper()
	authURL, err := url.Parse(location)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(location, as.server.URL+"/authorize"), "unexpected redirect %s", location)
	q := authURL.Query()

	as.mux.Lock()
	defer as.mux.Unlock()
	as.requests = append(as.requests, q)

	details, err := oauth2.ParseAuthorizationDetails([]byte(q.Get(oauth2.AuthorizationDetailsParameter)))
	require.NoError(t, err)

	callback := url.Values{"state": {q.Get("state")}}
	if details != nil && as.denyStepUp {
		callback.Set("error", oauth2.ErrorCodeAccessDenied)
		callback.Set("error_description", "user declined")
		return "/callback?" + callback.Encode()
	}

	code := fmt.Sprintf("code-%d", len(as.requests))
	as.grants[code] = grant{nonce: q.Get("nonce"), details: details}
	callback.Set("code", code)
	return "/callback?" + callback.Encode()
}

func (as *authorizationServer) lastRequest() url.Values {
	as.mux.Lock()
	defer as.mux.Unlock()
	return as.requests[len(as.requests)-1]
}

func (as *authorizationServer) token(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	as.mux.Lock()
	g, ok := as.grants[r.PostForm.Get("code")]
	delete(as.grants, r.PostForm.Get("code"))
	as.mux.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(oauth2.Error{Code: "invalid_grant"})
		return
	}

	opts := []peptest.TokenOption{peptest.WithScope("openid profile email read:reports")}
	if g.details != nil {
		opts = append(opts, peptest.WithAuthorizationDetails(*g.details))
	}
	accessToken, _ := as.issuer.AccessToken("alice", opts...)
	idToken, _ := as.issuer.IDToken("alice", clientID, g.nonce, peptest.WithClaim("name", "Alice"))
	json.NewEncoder(w).Encode(oauth2.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   3600,
		IDToken:     idToken,
	})
}

type testEnv struct {
	as      *authorizationServer
	handler http.Handler
	ledger  *ledger.Ledger
	cookies map[string]*http.Cookie
}

type envOption func(*webapp.Config)

func withResponseType(responseType string) envOption {
	return func(cfg *webapp.Config) { cfg.ResponseType = responseType }
}

func withAPIURL(apiURL string) envOption {
	return func(cfg *webapp.Config) { cfg.APIURL = apiURL }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()
	as := newAuthorizationServer(t)

	pepConfig := pep.Config{AuthzIssuer: as.issuer.Issuer, Audience: as.issuer.Audience}
	p, err := pep.New(ctx, pepConfig, pep.WithStaticKeySet(as.issuer.Issuer, as.issuer.KeySet()))
	require.NoError(t, err)
	apiConfig := api.Config{
		Address:        ":0",
		URL:            "http://localhost:8001",
		RequiredScopes: []string{"read:reports"},
		PEP:            pepConfig,
		Ledger:         api.LedgerConfig{Mode: ledger.ModeExpenses, InitialBalance: 1000, Seed: true},
	}
	l := api.NewLedger(apiConfig.Ledger)
	apiServer, err := api.NewServer(apiConfig, p, l)
	require.NoError(t, err)
	apiHTTP := httptest.NewServer(apiServer.Handler())
	t.Cleanup(apiHTTP.Close)

	cfg := webapp.Config{
		Address:       ":0",
		AppURL:        appURL,
		APIURL:        apiHTTP.URL,
		APITimeout:    5 * time.Second,
		Issuer:        as.server.URL,
		ClientID:      clientID,
		ResponseType:  "code",
		Scope:         "openid profile email",
		SessionSecret: "a-test-session-secret",
		Audience:      as.issuer.Audience,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client, err := oidc.NewClient(ctx, &oidc.Config{
		Issuer:       cfg.Issuer,
		ClientID:     cfg.ClientID,
		RedirectURI:  cfg.RedirectURI(),
		Scopes:       cfg.Scopes(),
		ResponseType: cfg.ResponseType,
		Audience:     cfg.Audience,
	}, oidc.WithHTTPClient(as.server.Client()))
	require.NoError(t, err)

	s, err := webapp.NewServer(cfg, client)
	require.NoError(t, err)

	return &testEnv{as: as, handler: s.Handler(), ledger: l, cookies: make(map[string]*http.Cookie)}
}

// do sends the request like a browser would, keeping cookies.
func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	for _, cookie := range env.cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	for _, cookie := range rec.Result().Cookies() {
		if cookie.MaxAge < 0 {
			delete(env.cookies, cookie.Name)
			continue
		}
		env.cookies[cookie.Name] = cookie
	}
	return rec
}

func (env *testEnv) get(path string) *httptest.ResponseRecorder {
	return env.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (env *testEnv) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return env.do(req)
}

// authorize follows a redirect to the authorization server and back to the callback.
func (env *testEnv) authorize(t *testing.T, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	t.Helper()
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	callback := env.as.authorize(t, rec.Header().Get(echo.HeaderLocation))
	return env.get(callback)
}

func (env *testEnv) login(t *testing.T) {
	t.Helper()
	rec := env.get("/login?returnTo=/user")
	rec = env.authorize(t, rec)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	require.Equal(t, "/user", rec.Header().Get(echo.HeaderLocation))
}

func (env *testEnv) balance(t *testing.T) float64 {
	t.Helper()
	balance, err := env.ledger.Balance(context.Background())
	require.NoError(t, err)
	return balance
}

func TestRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/prepare-transaction?transaction_amount=20")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?returnTo="+url.QueryEscape("/prepare-transaction?transaction_amount=20"), rec.Header().Get(echo.HeaderLocation))

	rec = env.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Log in")
}

func TestCanonicalHost(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/user", nil)
	req.Host = "127.0.0.1:3000"
	rec := env.do(req)
	require.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, appURL, rec.Header().Get(echo.HeaderLocation))
}

func TestLoginAndBalance(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	q := env.as.lastRequest()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid profile email", q.Get("scope"))
	assert.Equal(t, env.as.issuer.Audience, q.Get("audience"))
	assert.Empty(t, q.Get(oauth2.AuthorizationDetailsParameter))

	rec := env.get("/user")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Alice")

	rec = env.get("/balance")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Contains(t, body, "856.00")
	assert.Contains(t, body, "Pizza for a Coding Dojo session.")

	rec = env.get("/prepare-transaction")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="15"`)
}

func TestStepUpRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	rec := env.postForm("/submit-transaction", url.Values{"transaction_amount": {"50"}})
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, 856.0, env.balance(t), "denied transaction must not touch the ledger")

	rec = env.authorize(t, rec)
	q := env.as.lastRequest()
	assert.Equal(t, "openid profile email", q.Get("scope"))
	details, err := oauth2.ParseAuthorizationDetails([]byte(q.Get(oauth2.AuthorizationDetailsParameter)))
	require.NoError(t, err)
	require.NotNil(t, details)
	assert.Equal(t, oauth2.AuthorizationDetailsTypePayment, details.Type)
	assert.Equal(t, oauth2.Amount(50), details.TransactionAmount)
	assert.Equal(t, "USD", details.TransactionCurrency)
	assert.Equal(t, webapp.DefaultAccount, details.Account)
	assert.Len(t, details.TransactionID, 15)

	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	require.Equal(t, "/resume-transaction", rec.Header().Get(echo.HeaderLocation))

	rec = env.get("/resume-transaction")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Transaction complete")
	assert.Equal(t, 806.0, env.balance(t))

	// resuming again has nothing to resubmit
	rec = env.get("/resume-transaction")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "New transaction")
	assert.Equal(t, 806.0, env.balance(t))

	rec = env.get("/balance")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "806.00")
	assert.Contains(t, rec.Body.String(), "Transaction "+details.TransactionID)
}

func TestStepUpWithDifferentAmountStartsOver(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	// token now grants 50
	rec := env.authorize(t, env.postForm("/submit-transaction", url.Values{"transaction_amount": {"50"}}))
	require.Equal(t, "/resume-transaction", rec.Header().Get(echo.HeaderLocation))
	rec = env.get("/resume-transaction")
	require.Equal(t, http.StatusOK, rec.Code)
	first := env.as.lastRequest().Get(oauth2.AuthorizationDetailsParameter)

	// 60 is not covered by the 50 grant
	rec = env.postForm("/submit-transaction", url.Values{"transaction_amount": {"60"}})
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	env.authorize(t, rec)
	second := env.as.lastRequest().Get(oauth2.AuthorizationDetailsParameter)
	assert.NotEqual(t, first, second)
	assert.Contains(t, second, `"transaction_amount":60`)

	rec = env.get("/resume-transaction")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 746.0, env.balance(t))
}

func TestDeniedStepUp(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.as.denyStepUp = true

	rec := env.authorize(t, env.postForm("/submit-transaction", url.Values{"transaction_amount": {"5000"}}))
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	require.Equal(t, "/prepare-transaction?error=access_denied", rec.Header().Get(echo.HeaderLocation))

	rec = env.get("/prepare-transaction?error=access_denied")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "You are not authorized to make this transaction.")

	// the pending transaction is gone
	rec = env.get("/resume-transaction")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "New transaction")
	assert.Equal(t, 856.0, env.balance(t))
}

func TestAccessTokenRequired(t *testing.T) {
	env := newTestEnv(t, withResponseType("id_token"))

	rec := env.get("/login?returnTo=/balance")
	require.Equal(t, http.StatusFound, rec.Code)
	authURL, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	q := authURL.Query()
	assert.Equal(t, "form_post", q.Get("response_mode"))

	idToken, err := env.as.issuer.IDToken("alice", clientID, q.Get("nonce"))
	require.NoError(t, err)
	rec = env.postForm("/callback", url.Values{"state": {q.Get("state")}, "id_token": {idToken}})
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	require.Equal(t, "/balance", rec.Header().Get(echo.HeaderLocation))

	rec = env.get("/balance")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Access token required to complete this operation.")

	rec = env.postForm("/submit-transaction", url.Values{"transaction_amount": {"50"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 856.0, env.balance(t))
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/callback?code=x&state=y")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.get("/login")
	require.Equal(t, http.StatusFound, rec.Code)
	rec = env.get("/callback?code=x&state=forged")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "State mismatch")
}

func TestSubmitInvalidAmount(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	for _, amount := range []string{"lots", "", "NaN", "nan", "Inf", "+Inf", "-Infinity", "1e400"} {
		t.Run(amount, func(t *testing.T) {
			rec := env.postForm("/submit-transaction", url.Values{"transaction_amount": {amount}})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "Invalid transaction amount")
		})
	}
}

func TestUpstreamUnavailable(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	env := newTestEnv(t, withAPIURL(closed.URL))
	env.login(t)

	rec := env.get("/balance")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "The API is not reachable")
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	rec := env.get("/logout")
	require.Equal(t, http.StatusFound, rec.Code)
	logoutURL, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	assert.Equal(t, "/logout", logoutURL.Path)
	assert.Equal(t, appURL, logoutURL.Query().Get("post_logout_redirect_uri"))

	rec = env.get("/user")
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get("/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not Found")
}

// Package api is the resource server: it keeps the ledger and only accepts
// transactions that the access token explicitly authorizes.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gematik/zero-rar/pkg/ledger"
	"github.com/gematik/zero-rar/pkg/pep"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/ksuid"
)

type Server struct {
	cfg    Config
	pep    *pep.PEP
	ledger *ledger.Ledger
	realm  string
	echo   *echo.Echo
	now    func() time.Time
}

type Option func(*Server) error

// WithClock replaces time.Now for ledger entry dates.
func WithClock(now func() time.Time) Option {
	return func(s *Server) error {
		s.now = now
		return nil
	}
}

func NewServer(cfg Config, p *pep.PEP, l *ledger.Ledger, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		pep:    p,
		ledger: l,
		realm:  p.Config.Realm,
		now:    time.Now,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = s.httpErrorHandler
	e.Use(
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			Generator: func() string { return ksuid.New().String() },
		}),
		middleware.Logger(),
		middleware.Recover(),
		middleware.CORS(),
		metricsMiddleware,
		ErrorLogMiddleware,
	)
	s.echo = e
	s.MountRoutes(e)

	return s, nil
}

// NewLedger builds the ledger described by the config.
func NewLedger(cfg LedgerConfig) *ledger.Ledger {
	var seed []ledger.Entry
	if cfg.Seed {
		seed = ledger.DemoEntries(time.Now())
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ledger.ModeExpenses
	}
	return ledger.New(ledger.NewMemoryStore(seed...), mode, cfg.InitialBalance)
}

func (s *Server) MountRoutes(e *echo.Echo) {
	// public routes
	e.GET("/", s.RootEndpoint)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// private routes
	e.GET("/balance", s.BalanceEndpoint, s.pep.Authenticate)
	e.GET("/reports", s.ReportsEndpoint, s.pep.Authenticate, pep.RequireScopes(s.cfg.RequiredScopes...))
	e.POST("/transaction", s.TransactionEndpoint, s.pep.Authenticate)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// ListenAndServe blocks until ctx is done or the server fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "url", s.cfg.URL, "address", s.cfg.Address)
		errCh <- s.echo.Start(s.cfg.Address)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

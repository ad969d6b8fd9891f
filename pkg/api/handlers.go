package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gematik/zero-rar/pkg/pep"
	"github.com/gematik/zero-rar/pkg/rar"
	"github.com/labstack/echo/v4"
)

type BalanceResponse struct {
	Balance float64 `json:"balance"`
}

type TransactionResponse struct {
	Confirmed bool `json:"confirmed"`
}

// RootEndpoint answers unauthenticated requests so that browsers and
// liveness probes get a successful response.
func (s *Server) RootEndpoint(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) BalanceEndpoint(c echo.Context) error {
	balance, err := s.ledger.Balance(c.Request().Context())
	if err != nil {
		return err
	}
	slog.Info("Balance requested", "balance", balance, "subject", pep.ClaimsFrom(c).Subject)
	return c.JSON(http.StatusOK, BalanceResponse{Balance: balance})
}

func (s *Server) ReportsEndpoint(c echo.Context) error {
	entries, err := s.ledger.Store.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) TransactionEndpoint(c echo.Context) error {
	claims := pep.ClaimsFrom(c)

	var req rar.TransactionRequest
	if err := c.Bind(&req); err != nil {
		return rar.Wrap(rar.Elaborate(rar.ErrInvalidRequest, "Invalid transaction request"), err)
	}

	slog.Info("Transaction requested",
		"subject", claims.Subject,
		"transaction_id", req.TransactionID,
		"transaction_amount", req.TransactionAmount,
		"authorization_details", claims.AuthorizationDetails,
	)

	decision, err := rar.Authorize(claims.AuthorizationDetails, req, s.now())
	if err != nil {
		transactionDecisions.WithLabelValues("denied").Inc()
		return err
	}

	if err := s.ledger.Store.Append(c.Request().Context(), decision.Entry); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	transactionDecisions.WithLabelValues("granted").Inc()

	return c.JSON(http.StatusOK, TransactionResponse{Confirmed: true})
}

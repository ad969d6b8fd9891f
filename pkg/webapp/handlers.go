package webapp

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gematik/zero-rar/pkg/oauth2"
	"github.com/gematik/zero-rar/pkg/rar"
	"github.com/gematik/zero-rar/pkg/session"
	"github.com/labstack/echo/v4"
)

// DefaultTransactionAmount prefills the transaction form.
const DefaultTransactionAmount = "15"

func (s *Server) HomeEndpoint(c echo.Context) error {
	return c.Render(http.StatusOK, "home", map[string]interface{}{
		"user": session.Current(c).User,
	})
}

func (s *Server) UserEndpoint(c echo.Context) error {
	current := session.Current(c)
	data := map[string]interface{}{
		"user":     current.User,
		"id_token": current.IDToken,
	}
	if current.Token != nil {
		data["access_token"] = current.Token.AccessToken
		data["refresh_token"] = current.Token.RefreshToken
	}
	return c.Render(http.StatusOK, "user", data)
}

func (s *Server) renderTransactionForm(c echo.Context, errorMessage string) error {
	amount := c.QueryParam("transaction_amount")
	if amount == "" {
		amount = DefaultTransactionAmount
	}
	return c.Render(http.StatusOK, "transaction", map[string]interface{}{
		"user":               session.Current(c).User,
		"transaction_amount": amount,
		"error_message":      errorMessage,
	})
}

func (s *Server) PrepareTransactionEndpoint(c echo.Context) error {
	var errorMessage string
	if c.QueryParam("error") == oauth2.ErrorCodeAccessDenied {
		current := session.Current(c)
		current.StepUp = s.orchestrator.Abandon(current.StepUp)
		if err := s.binder.Save(c, current); err != nil {
			return err
		}
		errorMessage = rar.ErrUpstreamDenied.Message
	}
	return s.renderTransactionForm(c, errorMessage)
}

func (s *Server) SubmitTransactionEndpoint(c echo.Context) error {
	amount, err := strconv.ParseFloat(c.FormValue("transaction_amount"), 64)
	if err != nil {
		return rar.Wrap(rar.Elaborate(rar.ErrInvalidRequest, "Invalid transaction amount"), err)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return rar.Elaborate(rar.ErrInvalidRequest, "Invalid transaction amount")
	}
	req := rar.TransactionRequest{
		TransactionAmount: amount,
		Description:       c.FormValue("description"),
	}

	current := session.Current(c)
	next, outcome, err := s.orchestrator.Submit(c.Request().Context(), current.Token, current.StepUp, req)
	return s.handleOutcome(c, current, next, outcome, err)
}

func (s *Server) ResumeTransactionEndpoint(c echo.Context) error {
	current := session.Current(c)
	next, outcome, err := s.orchestrator.Resume(c.Request().Context(), current.Token, current.StepUp)
	return s.handleOutcome(c, current, next, outcome, err)
}

func (s *Server) handleOutcome(c echo.Context, current *session.Session, next session.StepUp, outcome Outcome, err error) error {
	current.StepUp = next
	if saveErr := s.binder.Save(c, current); saveErr != nil {
		return errors.Join(err, saveErr)
	}
	if err != nil {
		return err
	}

	switch outcome.Kind {
	case OutcomeCompleted:
		return c.Render(http.StatusOK, "transaction-complete", map[string]interface{}{
			"user": current.User,
		})
	case OutcomeStepUpRequired:
		return s.startLogin(c, "/resume-transaction",
			oauth2.WithAuthorizationDetails(*outcome.AuthorizationDetails),
			oauth2.WithScope(s.cfg.Scope),
		)
	case OutcomeNothingPending:
		return s.renderTransactionForm(c, "")
	}
	return fmt.Errorf("unexpected transaction outcome %s", outcome.Kind)
}

func (s *Server) BalanceEndpoint(c echo.Context) error {
	current := session.Current(c)
	if current.Token == nil {
		return rar.Wrap(rar.ErrAccessTokenRequired, nil)
	}

	ctx := c.Request().Context()
	balance, err := s.api.Balance(ctx, current.Token)
	if err != nil {
		return err
	}
	purchases, err := s.api.Reports(ctx, current.Token)
	if err != nil {
		return err
	}

	return c.Render(http.StatusOK, "balance", map[string]interface{}{
		"user":      current.User,
		"balance":   balance,
		"purchases": purchases,
	})
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := http.StatusText(status)

	var he *echo.HTTPError
	if e := rar.AsError(err); e != nil {
		if e.Status != 0 {
			status = e.Status
		}
		message = e.Message
	} else if errors.As(err, &he) {
		status = he.Code
		message = http.StatusText(he.Code)
	}
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		// never expose internals
		message = http.StatusText(status)
	}

	data := map[string]interface{}{
		"status":  status,
		"message": message,
	}
	if current := session.Current(c); current != nil {
		data["user"] = current.User
	}

	if renderErr := c.Render(status, "error", data); renderErr != nil {
		slog.Error("Unable to render error view", "error", renderErr)
	}
}

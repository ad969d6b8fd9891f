package webapp

import (
	"context"
	"log/slog"

	"github.com/gematik/zero-rar/pkg/oauth2"
	"github.com/gematik/zero-rar/pkg/rar"
	"github.com/gematik/zero-rar/pkg/session"
	xoauth2 "golang.org/x/oauth2"
)

// DefaultAccount is the debtor account put into payment authorization requests.
const DefaultAccount = "AB10458203746523457"

type OutcomeKind int

const (
	OutcomeCompleted OutcomeKind = iota
	// OutcomeStepUpRequired asks for a new login carrying AuthorizationDetails
	OutcomeStepUpRequired
	OutcomeNothingPending
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeStepUpRequired:
		return "step_up_required"
	case OutcomeNothingPending:
		return "nothing_pending"
	}
	return "unknown"
}

type Outcome struct {
	Kind                 OutcomeKind
	AuthorizationDetails *oauth2.AuthorizationDetails
}

type TransactionSubmitter interface {
	SubmitTransaction(ctx context.Context, token *xoauth2.Token, req rar.TransactionRequest) error
}

// Orchestrator drives the submit, step-up and resume cycle of a
// transaction. It does not touch the session itself: the step-up state
// goes in and the new state comes out.
type Orchestrator struct {
	api      TransactionSubmitter
	Account  string
	Currency string
}

func NewOrchestrator(api TransactionSubmitter) *Orchestrator {
	return &Orchestrator{
		api:      api,
		Account:  DefaultAccount,
		Currency: oauth2.DefaultTransactionCurrency,
	}
}

// Submit sends a new transaction. A step-up denial of the API makes it the
// pending transaction, replacing any previous one.
func (o *Orchestrator) Submit(ctx context.Context, token *xoauth2.Token, state session.StepUp, req rar.TransactionRequest) (session.StepUp, Outcome, error) {
	if token == nil {
		return state, Outcome{}, rar.Wrap(rar.ErrAccessTokenRequired, nil)
	}

	err := o.api.SubmitTransaction(ctx, token, req)
	if err == nil {
		stepUps.WithLabelValues(OutcomeCompleted.String()).Inc()
		return state.Cleared(), Outcome{Kind: OutcomeCompleted}, nil
	}

	denial := rar.AsError(err)
	if denial == nil || denial.Kind != rar.KindInsufficientAuthorizationDetails {
		return state, Outcome{}, err
	}

	pending := session.PendingTransaction{
		TransactionAmount: req.TransactionAmount,
		TransactionID:     denial.TransactionID,
		Description:       req.Description,
	}
	details := o.authorizationDetails(pending)
	slog.Info("Step-up required",
		"transaction_id", pending.TransactionID,
		"transaction_amount", pending.TransactionAmount,
	)
	stepUps.WithLabelValues(OutcomeStepUpRequired.String()).Inc()

	return state.With(pending), Outcome{Kind: OutcomeStepUpRequired, AuthorizationDetails: &details}, nil
}

// Resume resubmits the pending transaction with the token of the step-up
// login. Without a pending transaction nothing is sent.
func (o *Orchestrator) Resume(ctx context.Context, token *xoauth2.Token, state session.StepUp) (session.StepUp, Outcome, error) {
	if !state.HasPending() {
		return state, Outcome{Kind: OutcomeNothingPending}, nil
	}
	pending := state.Pending
	return o.Submit(ctx, token, state, rar.TransactionRequest{
		TransactionID:     pending.TransactionID,
		TransactionAmount: pending.TransactionAmount,
		Description:       pending.Description,
	})
}

// Abandon drops the pending transaction after the authorization server
// refused the step-up.
func (o *Orchestrator) Abandon(state session.StepUp) session.StepUp {
	if state.HasPending() {
		slog.Info("Step-up denied", "transaction_id", state.Pending.TransactionID)
		stepUps.WithLabelValues("denied").Inc()
	}
	return state.Cleared()
}

func (o *Orchestrator) authorizationDetails(pending session.PendingTransaction) oauth2.AuthorizationDetails {
	return oauth2.AuthorizationDetails{
		Type:                oauth2.AuthorizationDetailsTypePayment,
		TransactionAmount:   oauth2.Amount(pending.TransactionAmount),
		TransactionCurrency: o.Currency,
		TransactionID:       pending.TransactionID,
		Account:             o.Account,
		Description:         pending.Description,
	}
}

// Package session keeps the per-browser state of the web app on the
// server side. The browser only carries an opaque session id.
package session

import (
	"time"

	"golang.org/x/oauth2"
)

// User is the identity taken from the ID token of the last login.
type User struct {
	Subject string                 `json:"sub"`
	Name    string                 `json:"name,omitempty"`
	Email   string                 `json:"email,omitempty"`
	Claims  map[string]interface{} `json:"claims,omitempty"`
}

// LoginState is remembered between the redirect to the authorization
// server and the callback.
type LoginState struct {
	State     string
	Nonce     string
	Verifier  string
	ReturnTo  string
	CreatedAt time.Time
}

// PendingTransaction is a transaction the API rejected for missing
// authorization details, waiting to be resubmitted after step-up.
type PendingTransaction struct {
	TransactionAmount float64 `json:"transaction_amount"`
	TransactionID     string  `json:"transaction_id"`
	Description       string  `json:"description,omitempty"`
}

// StepUp holds at most one pending transaction. Setting a new one
// replaces the previous.
type StepUp struct {
	Pending *PendingTransaction
}

func (s StepUp) HasPending() bool {
	return s.Pending != nil
}

// With returns the state with p as the pending transaction.
func (s StepUp) With(p PendingTransaction) StepUp {
	return StepUp{Pending: &p}
}

// Cleared returns the state without a pending transaction.
func (s StepUp) Cleared() StepUp {
	return StepUp{}
}

type Session struct {
	ID        string
	CreatedAt time.Time
	User      *User
	IDToken   string
	// Token is nil when the login flow did not issue an access token
	Token  *oauth2.Token
	Login  *LoginState
	StepUp StepUp
}

func (s *Session) Authenticated() bool {
	return s.User != nil
}

// Logout forgets the user and tokens. Pending step-up state goes as well.
func (s *Session) Logout() {
	s.User = nil
	s.IDToken = ""
	s.Token = nil
	s.Login = nil
	s.StepUp = StepUp{}
}

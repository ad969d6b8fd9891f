package rar

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gematik/zero-rar/pkg/oauth2"
)

type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindInsufficientScope
	KindInsufficientAuthorizationDetails
	KindAccessTokenRequired
	KindUpstreamDenied
	KindUpstreamUnavailable
	KindInvalidRequest
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindInsufficientScope:
		return "insufficient_scope"
	case KindInsufficientAuthorizationDetails:
		return "insufficient_authorization_details"
	case KindAccessTokenRequired:
		return "access_token_required"
	case KindUpstreamDenied:
		return "upstream_denied"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindInvalidRequest:
		return "invalid_request"
	}
	return "internal"
}

// Error is rendered as a response at the service boundary.
type Error struct {
	Kind Kind `json:"-"`
	// HTTP status code used when the error is rendered as a response
	Status        int    `json:"status"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	TransactionID string `json:"transactionId,omitempty"`
	// Scope lists the required scopes of an insufficient_scope error
	Scope string `json:"-"`
	Err   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Code, e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind, so templates below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Challenge renders the WWW-Authenticate header value for this error.
func (e *Error) Challenge(realm string) string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf(`Bearer realm="%s"`, realm))
	// RFC 6750: no error code if the request lacked any authentication
	if e.Code == ErrMissingToken.Code {
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf(`, error="%s", error_description="%s"`, e.Code, strings.ReplaceAll(e.Message, `"`, "'")))
	if e.Scope != "" {
		sb.WriteString(fmt.Sprintf(`, scope="%s"`, e.Scope))
	}
	return sb.String()
}

var (
	ErrMissingToken = &Error{
		Kind:    KindUnauthenticated,
		Status:  http.StatusUnauthorized,
		Code:    "unauthorized",
		Message: "Unauthorized",
	}
	ErrUnauthenticated = &Error{
		Kind:    KindUnauthenticated,
		Status:  http.StatusUnauthorized,
		Code:    "invalid_token",
		Message: "Invalid token",
	}
	ErrInsufficientScope = &Error{
		Kind:    KindInsufficientScope,
		Status:  http.StatusForbidden,
		Code:    "insufficient_scope",
		Message: "Insufficient Scope",
	}
	ErrInsufficientAuthorizationDetails = &Error{
		Kind:    KindInsufficientAuthorizationDetails,
		Status:  http.StatusForbidden,
		Code:    oauth2.InsufficientAuthorizationDetails,
		Message: "Insufficient Authorization Details",
	}
	ErrAccessTokenRequired = &Error{
		Kind:    KindAccessTokenRequired,
		Status:  http.StatusForbidden,
		Code:    "access_token_required",
		Message: "Access token required to complete this operation. Please, use an OIDC flow that issues an access_token",
	}
	ErrUpstreamDenied = &Error{
		Kind:    KindUpstreamDenied,
		Status:  http.StatusForbidden,
		Code:    oauth2.ErrorCodeAccessDenied,
		Message: "You are not authorized to make this transaction. Perhaps you can try with a smaller transaction amount?",
	}
	ErrUpstreamUnavailable = &Error{
		Kind:    KindUpstreamUnavailable,
		Status:  http.StatusBadGateway,
		Code:    "upstream_unavailable",
		Message: "The API is not reachable",
	}
	ErrInvalidRequest = &Error{
		Kind:    KindInvalidRequest,
		Status:  http.StatusBadRequest,
		Code:    oauth2.ErrorCodeInvalidRequest,
		Message: "Invalid request",
	}
	ErrInternal = &Error{
		Kind:    KindInternal,
		Status:  http.StatusInternalServerError,
		Code:    oauth2.ErrorCodeServerError,
		Message: "Internal error",
	}
)

// Elaborate copies the template and replaces the message.
func Elaborate(template *Error, message string, a ...any) *Error {
	e := *template
	e.Message = fmt.Sprintf(message, a...)
	return &e
}

// Wrap copies the template and attaches the cause.
func Wrap(template *Error, err error) *Error {
	e := *template
	e.Err = err
	return &e
}

// NewInsufficientAuthorizationDetails mints a fresh transaction id for the denial.
func NewInsufficientAuthorizationDetails() (*Error, error) {
	id, err := NewTransactionID()
	if err != nil {
		return nil, err
	}
	e := *ErrInsufficientAuthorizationDetails
	e.TransactionID = id
	return &e, nil
}

// AsError returns the *Error in err's chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

package oauth2

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Rich Authorization Requests, see https://datatracker.ietf.org/doc/html/rfc9396

const (
	AuthorizationDetailsParameter    = "authorization_details"
	AuthorizationDetailsTypePayment  = "payment_initiation"
	InsufficientAuthorizationDetails = "insufficient_authorization_details"
	DefaultTransactionCurrency       = "USD"
)

// AuthorizationDetails describes a single payment the authorization server
// has approved for one transaction id. A nil TransactionAmount means no
// amount was approved, which is not the same as an approved 0.
type AuthorizationDetails struct {
	Type                string   `json:"type" validate:"required"`
	TransactionAmount   *float64 `json:"transaction_amount,omitempty" validate:"required"`
	TransactionCurrency string   `json:"transaction_currency,omitempty"`
	TransactionID       string   `json:"transaction_id,omitempty"`
	Account             string   `json:"account,omitempty"`
	Description         string   `json:"description,omitempty"`
}

// Amount is a helper to fill TransactionAmount.
func Amount(v float64) *float64 {
	return &v
}

// ApprovedAmount returns the approved amount and whether there is one.
func (d *AuthorizationDetails) ApprovedAmount() (float64, bool) {
	if d == nil || d.TransactionAmount == nil {
		return 0, false
	}
	return *d.TransactionAmount, true
}

// String serializes the details as sent in the authorization request.
func (d AuthorizationDetails) String() string {
	data, err := json.Marshal(d)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// WithAuthorizationDetails adds the JSON serialized details to the authorization request.
func WithAuthorizationDetails(details AuthorizationDetails) ParameterOption {
	return WithParameter(AuthorizationDetailsParameter, details.String())
}

// ParseAuthorizationDetails accepts both the RFC 9396 array form and a single
// object. From an array the first payment_initiation entry is returned, or the
// first entry if no entry has that type. It returns nil, nil for empty input.
func ParseAuthorizationDetails(data []byte) (*AuthorizationDetails, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	if data[0] == '[' {
		var list []AuthorizationDetails
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("decode authorization_details array: %w", err)
		}
		if len(list) == 0 {
			return nil, nil
		}
		for i := range list {
			if list[i].Type == AuthorizationDetailsTypePayment {
				return &list[i], nil
			}
		}
		return &list[0], nil
	}

	var details AuthorizationDetails
	if err := json.Unmarshal(data, &details); err != nil {
		return nil, fmt.Errorf("decode authorization_details: %w", err)
	}
	return &details, nil
}

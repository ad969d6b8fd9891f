// Package rar decides whether a transaction is covered by the
// authorization_details of a verified access token and signals the
// structured denial that triggers the step-up flow.
package rar

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gematik/zero-rar/pkg/ledger"
	"github.com/gematik/zero-rar/pkg/oauth2"
)

type TransactionRequest struct {
	TransactionID     string  `json:"transaction_id" form:"transaction_id"`
	TransactionAmount float64 `json:"transaction_amount" form:"transaction_amount"`
	Description       string  `json:"description" form:"description"`
}

type Decision struct {
	Entry ledger.Entry
}

// Authorize grants the transaction only if the requested amount equals the
// pre-approved amount exactly. Details without an amount approve nothing,
// not even 0. Every denial carries a newly generated
// transaction id.
func Authorize(details *oauth2.AuthorizationDetails, req TransactionRequest, now time.Time) (*Decision, error) {
	if details == nil {
		return nil, deny("Transaction denied: token has no authorization_details",
			"requested_amount", req.TransactionAmount,
			"transaction_id", req.TransactionID,
		)
	}

	grantedAmount, ok := details.ApprovedAmount()
	if !ok {
		return nil, deny("Transaction denied: authorization_details approve no amount",
			"requested_amount", req.TransactionAmount,
			"granted_transaction_id", details.TransactionID,
			"transaction_id", req.TransactionID,
		)
	}

	if req.TransactionAmount != grantedAmount {
		return nil, deny("Transaction denied: amount mismatch",
			"requested_amount", req.TransactionAmount,
			"granted_amount", grantedAmount,
			"granted_transaction_id", details.TransactionID,
			"transaction_id", req.TransactionID,
		)
	}

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Transaction %s", req.TransactionID)
	}

	slog.Info("Transaction granted",
		"amount", req.TransactionAmount,
		"granted_transaction_id", details.TransactionID,
	)

	return &Decision{
		Entry: ledger.Entry{
			Date:        now,
			Description: description,
			Value:       req.TransactionAmount,
		},
	}, nil
}

func deny(msg string, args ...any) error {
	e, err := NewInsufficientAuthorizationDetails()
	if err != nil {
		return Wrap(ErrInternal, err)
	}
	slog.Warn(msg, append(args, "new_transaction_id", e.TransactionID)...)
	return e
}

package rar

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const transactionIDDigits = 15

var transactionIDLimit = new(big.Int).Exp(big.NewInt(10), big.NewInt(transactionIDDigits), nil)

// NewTransactionID returns an opaque numeric string used to correlate a
// denial with the retried request.
func NewTransactionID() (string, error) {
	n, err := rand.Int(rand.Reader, transactionIDLimit)
	if err != nil {
		return "", fmt.Errorf("generate transaction id: %w", err)
	}
	return fmt.Sprintf("%0*d", transactionIDDigits, n), nil
}

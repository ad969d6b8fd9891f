// Package nonce hands out one-time values, used as the OIDC login state.
package nonce

import (
	"fmt"

	"github.com/hashicorp/go-secure-stdlib/nonceutil"
)

type Service interface {
	Get() (string, error)
	Redeem(nonceStr string) error
}

type hashicorpService struct {
	nonceService nonceutil.NonceService
}

// NewService creates an in-memory nonce service. Nonces expire after the
// nonceutil default validity and can be redeemed once.
func NewService() (Service, error) {
	nonceService := nonceutil.NewNonceService()
	err := nonceService.Initialize()
	if err != nil {
		return nil, fmt.Errorf("could not initialize nonce service: %w", err)
	}
	return &hashicorpService{nonceService}, nil
}

func (s *hashicorpService) Get() (string, error) {
	nonceStr, _, err := s.nonceService.Get()
	if err != nil {
		return "", err
	}
	return nonceStr, nil
}

func (s *hashicorpService) Redeem(nonceStr string) error {
	if nonceStr == "" || !s.nonceService.Redeem(nonceStr) {
		return fmt.Errorf("nonce '%s' is unknown or already redeemed", nonceStr)
	}
	return nil
}

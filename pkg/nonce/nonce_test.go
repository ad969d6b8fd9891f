package nonce_test

import (
	"testing"

	"github.com/gematik/zero-rar/pkg/nonce"
)

func TestService(t *testing.T) {
	service, err := nonce.NewService()
	if err != nil {
		t.Fatalf("creating nonce service: %v", err)
	}

	nonceStr, err := service.Get()
	if err != nil {
		t.Fatalf("getting nonce: %v", err)
	}

	another, err := service.Get()
	if err != nil {
		t.Fatalf("getting another nonce: %v", err)
	}
	if nonceStr == another {
		t.Fatalf("expected distinct nonces, got %s twice", nonceStr)
	}

	if err := service.Redeem(nonceStr); err != nil {
		t.Fatalf("redeeming nonce: %v", err)
	}

	// redeem again, expect error
	if err := service.Redeem(nonceStr); err == nil {
		t.Fatal("expected error redeeming already redeemed nonce")
	}

	if err := service.Redeem("made-up"); err == nil {
		t.Fatal("expected error redeeming unknown nonce")
	}

	if err := service.Redeem(""); err == nil {
		t.Fatal("expected error redeeming empty nonce")
	}
}

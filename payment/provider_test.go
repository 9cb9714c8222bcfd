package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storefront-service/store"
)

func TestHMACVerifierRoundTrip(t *testing.T) {
	v := NewHMACVerifier("secret")
	payload := map[string]string{
		"out_trade_no": "tx-1",
		"trade_no":     "ali-1",
		"total_amount": "25.00",
		"trade_status": "TRADE_SUCCESS",
	}
	payload["sign"] = v.Sign(payload)

	require.NoError(t, v.Verify(context.Background(), payload))
}

func TestHMACVerifierSignatureCoversAllFields(t *testing.T) {
	v := NewHMACVerifier("secret")
	payload := map[string]string{"a": "1", "b": "2"}
	payload["sign"] = v.Sign(payload)

	// Any change after signing must invalidate the signature.
	payload["b"] = "3"
	require.ErrorIs(t, v.Verify(context.Background(), payload), store.ErrUnauthorized)
}

func TestHMACVerifierIgnoresSignTypeField(t *testing.T) {
	v := NewHMACVerifier("secret")
	payload := map[string]string{"a": "1"}
	payload["sign"] = v.Sign(payload)
	// sign_type travels alongside the signature and is excluded from it.
	payload["sign_type"] = "HMAC-SHA256"

	require.NoError(t, v.Verify(context.Background(), payload))
}

func TestHMACVerifierRejections(t *testing.T) {
	v := NewHMACVerifier("secret")
	other := NewHMACVerifier("other-secret")
	payload := map[string]string{"a": "1"}

	// Missing signature.
	require.ErrorIs(t, v.Verify(context.Background(), payload), store.ErrUnauthorized)

	// Signed with the wrong secret.
	payload["sign"] = other.Sign(payload)
	require.ErrorIs(t, v.Verify(context.Background(), payload), store.ErrUnauthorized)

	// Garbage signature.
	payload["sign"] = "not-hex"
	require.ErrorIs(t, v.Verify(context.Background(), payload), store.ErrUnauthorized)
}

func TestHMACVerifierExpiredContext(t *testing.T) {
	v := NewHMACVerifier("secret")
	payload := map[string]string{"a": "1"}
	payload["sign"] = v.Sign(payload)

	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()

	// A timed-out verification is a rejection, never a pass.
	require.ErrorIs(t, v.Verify(ctx, payload), store.ErrUnauthorized)
}

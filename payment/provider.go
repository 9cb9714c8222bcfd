// Package payment normalizes asynchronous provider callbacks into one shape
// the reconciliation service can process, and hosts the signature
// verification capability each provider requires.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"storefront-service/model"
	"storefront-service/store"
)

// State is the provider's terminal verdict, reduced to the three outcomes
// reconciliation distinguishes.
type State string

const (
	StateSuccess State = "success"
	StateClosed  State = "closed"
	StateFailed  State = "failed"
)

// Notice is one parsed callback. TransactionID is the merchant-side id we
// handed to the provider at payment creation; ProviderRef is the provider's
// own trade number, kept for the audit payload.
type Notice struct {
	TransactionID string
	ProviderRef   string
	Amount        decimal.Decimal
	State         State
	Raw           map[string]string
}

// Provider parses a raw callback payload. Missing or unparseable required
// fields surface as ErrMalformedCallback.
type Provider interface {
	Method() model.PaymentMethod
	Parse(payload map[string]string) (*Notice, error)
}

// Verifier is the external signature-verification capability. A failed or
// timed-out verification is an ErrUnauthorized class failure, never success.
type Verifier interface {
	Verify(ctx context.Context, payload map[string]string) error
}

// HMACVerifier checks an hmac-sha256 signature over the sorted key=value
// pairs of the payload, the convention both supported providers follow.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(ctx context.Context, payload map[string]string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("signature verification timed out: %w", store.ErrUnauthorized)
	}
	sign := payload["sign"]
	if sign == "" {
		return fmt.Errorf("missing signature: %w", store.ErrUnauthorized)
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		if k == "sign" || k == "sign_type" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(payload[k])
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(sb.String()))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sign)) {
		return fmt.Errorf("bad signature: %w", store.ErrUnauthorized)
	}
	return nil
}

// Sign produces the signature Verify expects; used to build provider
// payloads in tests and local tooling.
func (v *HMACVerifier) Sign(payload map[string]string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		if k == "sign" || k == "sign_type" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(payload[k])
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(sb.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

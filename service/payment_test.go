package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"storefront-service/model"
	"storefront-service/payment"
	"storefront-service/store"
)

const callbackSecret = "test-callback-secret"

func registerProviders(env *testEnv) *payment.HMACVerifier {
	verifier := payment.NewHMACVerifier(callbackSecret)
	env.payments.Register(payment.Alipay{}, verifier)
	env.payments.Register(payment.Wechat{}, verifier)
	return verifier
}

// externalOrder creates a pending order plus its pending payment and returns
// both, ready for a provider callback.
func externalOrder(t *testing.T, env *testEnv, userID uint, method model.PaymentMethod) (*model.Order, *model.Payment) {
	t.Helper()
	ctx := context.Background()
	order, err := env.orders.Create(ctx, userID, 10, 1, method, "")
	require.NoError(t, err)
	p, err := env.payments.Create(ctx, order.ID, userID)
	require.NoError(t, err)
	return order, p
}

func alipayPayload(v *payment.HMACVerifier, txid, amount, status string) map[string]string {
	p := map[string]string{
		"out_trade_no": txid,
		"trade_no":     "2026083022001400001",
		"total_amount": amount,
		"trade_status": status,
	}
	p["sign"] = v.Sign(p)
	return p
}

func wechatPayload(v *payment.HMACVerifier, txid, totalFee, resultCode string) map[string]string {
	p := map[string]string{
		"return_code":    "SUCCESS",
		"result_code":    resultCode,
		"out_trade_no":   txid,
		"transaction_id": "4200001234202608309999",
		"total_fee":      totalFee,
	}
	p["sign"] = v.Sign(p)
	return p
}

func TestCallbackAlipaySuccessDelivers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	verifier := registerProviders(env)
	env.seedUser(1, "0.00")
	env.seedProduct(10, "25.00", 5, true)
	env.seedCards(t, 10, "ALIPAY-KEY")

	order, p := externalOrder(t, env, 1, model.MethodAlipay)

	result, err := env.payments.IngestCallback(ctx, model.MethodAlipay,
		alipayPayload(verifier, p.TransactionID, "25.00", "TRADE_SUCCESS"))
	require.NoError(t, err)
	require.Equal(t, "success", result.Status)

	got, err := env.store.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderDelivered, got.Status)
	require.Equal(t, "ALIPAY-KEY", got.DeliveryContent)

	settled, err := env.store.Payments().Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, model.PaymentSuccess, settled.Status)
	require.NotNil(t, settled.PaidAt)
	require.NotEmpty(t, settled.PaymentData)
}

func TestCallbackWechatMinorUnitsConvertExactly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	verifier := registerProviders(env)
	env.seedUser(1, "0.00")
	env.seedProduct(10, "19.99", 5, true)
	env.seedCards(t, 10, "WECHAT-KEY")

	order, p := externalOrder(t, env, 1, model.MethodWechat)

	// 19.99 yuan arrives as 1999 fen; the conversion back must be exact.
	result, err := env.payments.IngestCallback(ctx, model.MethodWechat,
		wechatPayload(verifier, p.TransactionID, "1999", "SUCCESS"))
	require.NoError(t, err)
	require.Equal(t, "success", result.Status)

	got, err := env.store.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderDelivered, got.Status)
}

func TestCallbackIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	verifier := registerProviders(env)
	env.seedUser(1, "0.00")
	env.seedProduct(10, "25.00", 5, true)
	env.seedCards(t, 10, "KEY-1", "KEY-2")

	order, p := externalOrder(t, env, 1, model.MethodAlipay)
	payload := alipayPayload(verifier, p.TransactionID, "25.00", "TRADE_SUCCESS")

	first, err := env.payments.IngestCallback(ctx, model.MethodAlipay, payload)
	require.NoError(t, err)
	require.Equal(t, "success", first.Status)

	// The provider retries; the duplicate is acknowledged without a second
	// delivery or a second card draw.
	second, err := env.payments.IngestCallback(ctx, model.MethodAlipay, payload)
	require.NoError(t, err)
	require.Equal(t, "success", second.Status)
	require.Equal(t, "already processed", second.Detail)

	used, err := env.cards.List(ctx, 10, model.CardUsed)
	require.NoError(t, err)
	require.Len(t, used, 1)

	got, err := env.store.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderDelivered, got.Status)
}

func TestCallbackConcurrentDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	verifier := registerProviders(env)
	env.seedUser(1, "0.00")
	env.seedProduct(10, "25.00", 5, true)
	env.seedCards(t, 10, "KEY-1", "KEY-2", "KEY-3")

	order, p := externalOrder(t, env, 1, model.MethodAlipay)
	payload := alipayPayload(verifier, p.TransactionID, "25.00", "TRADE_SUCCESS")

	const callers = 5
	results := make([]*CallbackResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.payments.IngestCallback(ctx, model.MethodAlipay, payload)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "success", results[i].Status)
	}

	got, err := env.store.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderDelivered, got.Status)

	used, err := env.cards.List(ctx, 10, model.CardUsed)
	require.NoError(t, err)
	require.Len(t, used, 1)
}

func TestCallbackAmountMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	verifier := registerProviders(env)
	env.seedUser(1, "0.00")
	env.seedProduct(10, "25.00", 5, true)
	env.seedCards(t, 10, "KEY")

	order, p := externalOrder(t, env, 1, model.MethodWechat)

	// 2499 fen is 24.99 yuan against a 25.00 payment.
	_, err := env.payments.IngestCallback(ctx, model.MethodWechat,
		wechatPayload(verifier, p.TransactionID, "2499", "SUCCESS"))
	require.ErrorIs(t, err, store.ErrAmountMismatch)

	// The mismatch is recorded on the payment; the order never advances.
	failed, err := env.store.Payments().Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, model.PaymentFailed, failed.Status)

	got, err := env.store.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderPending, got.Status)

	// A corrected notification still settles it.
	result, err := env.payments.IngestCallback(ctx, model.MethodWechat,
		wechatPayload(verifier, p.TransactionID, "2500", "SUCCESS"))
	require.NoError(t, err)
	require.Equal(t, "success", result.Status)

	got, err = env.store.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderDelivered, got.Status)
}

func TestCallbackBadSignatureRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	verifier := registerProviders(env)
	env.seedUser(1, "0.00")
	env.seedProduct(10, "25.00", 5, true)

	order, p := externalOrder(t, env, 1, model.MethodAlipay)

	payload := alipayPayload(verifier, p.TransactionID, "25.00", "TRADE_SUCCESS")
	payload["sign"] = "deadbeef"
	_, err := env.payments.IngestCallback(ctx, model.MethodAlipay, payload)
	require.ErrorIs(t, err, store.ErrUnauthorized)

	// Tampering after signing invalidates the signature too.
	payload = alipayPayload(verifier, p.TransactionID, "25.00", "TRADE_SUCCESS")
	payload["total_amount"] = "0.01"
	_, err = env.payments.IngestCallback(ctx, model.MethodAlipay, payload)
	require.ErrorIs(t, err, store.ErrUnauthorized)

	delete(payload, "sign")
	_, err = env.payments.IngestCallback(ctx, model.MethodAlipay, payload)
	require.ErrorIs(t, err, store.ErrUnauthorized)

	untouched, err := env.store.Payments().Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, model.PaymentPending, untouched.Status)

	got, err := env.store.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderPending, got.Status)
}

func TestCallbackVerificationTimeoutIsUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(1, "0.00")
	env.seedProduct(10, "25.00", 5, true)

	// An already-expired verification window must never be treated as a pass.
	timedOut := NewPayments(env.store, env.orders, NopPublisher{}, 0)
	verifier := payment.NewHMACVerifier(callbackSecret)
	timedOut.Register(payment.Alipay{}, verifier)

	_, p := externalOrder(t, env, 1, model.MethodAlipay)

	_, err := timedOut.IngestCallback(ctx, model.MethodAlipay,
		alipayPayload(verifier, p.TransactionID, "25.00", "TRADE_SUCCESS"))
	require.ErrorIs(t, err, store.ErrUnauthorized)
}

func TestCallbackMalformedPayloads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	verifier := registerProviders(env)

	cases := []struct {
		name    string
		method  model.PaymentMethod
		payload map[string]string
	}{
		{"alipay missing amount", model.MethodAlipay, map[string]string{
			"out_trade_no": "tx-1", "trade_no": "ali-1", "trade_status": "TRADE_SUCCESS",
		}},
		{"alipay unparseable amount", model.MethodAlipay, map[string]string{
			"out_trade_no": "tx-1", "trade_no": "ali-1", "total_amount": "abc", "trade_status": "TRADE_SUCCESS",
		}},
		{"wechat failed return_code", model.MethodWechat, map[string]string{
			"return_code": "FAIL", "out_trade_no": "tx-1", "transaction_id": "wx-1", "total_fee": "100",
		}},
		{"wechat fractional fee", model.MethodWechat, map[string]string{
			"return_code": "SUCCESS", "result_code": "SUCCESS",
			"out_trade_no": "tx-1", "transaction_id": "wx-1", "total_fee": "10.5",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.payload["sign"] = verifier.Sign(tc.payload)
			_, err := env.payments.IngestCallback(ctx, tc.method, tc.payload)
			require.ErrorIs(t, err, store.ErrMalformedCallback)
		})
	}

	// Balance is not an async provider.
	_, err := env.payments.IngestCallback(ctx, model.MethodBalance, map[string]string{})
	require.ErrorIs(t, err, store.ErrMalformedCallback)
}

func TestCallbackUnknownTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	verifier := registerProviders(env)

	_, err := env.payments.IngestCallback(ctx, model.MethodAlipay,
		alipayPayload(verifier, "no-such-transaction", "25.00", "TRADE_SUCCESS"))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCallbackClosedCancelsPaymentOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	verifier := registerProviders(env)
	env.seedUser(1, "0.00")
	env.seedProduct(10, "25.00", 5, true)

	order, p := externalOrder(t, env, 1, model.MethodAlipay)

	result, err := env.payments.IngestCallback(ctx, model.MethodAlipay,
		alipayPayload(verifier, p.TransactionID, "25.00", "TRADE_CLOSED"))
	require.NoError(t, err)
	require.Equal(t, "success", result.Status)
	require.Equal(t, "closed", result.Detail)

	cancelled, err := env.store.Payments().Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, model.PaymentCancelled, cancelled.Status)

	// The order stays pending so the buyer can open a fresh payment.
	got, err := env.store.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderPending, got.Status)
}

func TestCallbackProviderFailureMarksPaymentFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	verifier := registerProviders(env)
	env.seedUser(1, "0.00")
	env.seedProduct(10, "25.00", 5, true)

	order, p := externalOrder(t, env, 1, model.MethodWechat)

	result, err := env.payments.IngestCallback(ctx, model.MethodWechat,
		wechatPayload(verifier, p.TransactionID, "2500", "FAIL"))
	require.NoError(t, err)
	require.Equal(t, "success", result.Status)
	require.Equal(t, "failed", result.Detail)

	failed, err := env.store.Payments().Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, model.PaymentFailed, failed.Status)

	got, err := env.store.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderPending, got.Status)
}

func TestCallbackFulfillmentPendingStopsProviderRetries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	verifier := registerProviders(env)
	env.seedUser(1, "0.00")
	env.seedProduct(10, "25.00", 5, true)
	// No cards loaded.

	order, p := externalOrder(t, env, 1, model.MethodAlipay)

	// The money moved, so the provider gets a success even though delivery
	// is stuck waiting for restock.
	result, err := env.payments.IngestCallback(ctx, model.MethodAlipay,
		alipayPayload(verifier, p.TransactionID, "25.00", "TRADE_SUCCESS"))
	require.NoError(t, err)
	require.Equal(t, "success", result.Status)
	require.Equal(t, "fulfillment pending", result.Detail)

	got, err := env.store.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderPaid, got.Status)

	settled, err := env.store.Payments().Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, model.PaymentSuccess, settled.Status)
}

func TestPaymentCreateGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(1, "50.00")
	env.seedUser(2, "50.00")
	env.seedProduct(10, "10.00", model.UnlimitedStock, false)

	balanceOrder, err := env.orders.Create(ctx, 1, 10, 1, model.MethodBalance, "")
	require.NoError(t, err)
	_, err = env.payments.Create(ctx, balanceOrder.ID, 1)
	require.ErrorIs(t, err, store.ErrInvalidTransition)

	external, err := env.orders.Create(ctx, 1, 10, 1, model.MethodAlipay, "")
	require.NoError(t, err)
	_, err = env.payments.Create(ctx, external.ID, 2)
	require.ErrorIs(t, err, store.ErrForbidden)

	cancelled, err := env.orders.Cancel(ctx, external.ID, Actor{UserID: 1})
	require.NoError(t, err)
	_, err = env.payments.Create(ctx, cancelled.ID, 1)
	require.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestPaymentGetAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(1, "50.00")
	env.seedUser(2, "50.00")
	env.seedProduct(10, "10.00", model.UnlimitedStock, true)

	_, p := externalOrder(t, env, 1, model.MethodAlipay)

	_, err := env.payments.Get(ctx, p.ID, Actor{UserID: 2})
	require.ErrorIs(t, err, store.ErrForbidden)

	got, err := env.payments.Get(ctx, p.ID, Actor{UserID: 2, Admin: true})
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)

	mine, err := env.payments.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
}

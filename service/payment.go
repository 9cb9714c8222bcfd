package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-service/model"
	"storefront-service/payment"
	"storefront-service/store"
)

// Payments bridges provider settlement state to the order state machine:
// synchronous balance payments are handled by Orders.Pay, everything
// asynchronous lands here through IngestCallback.
type Payments struct {
	store  store.Store
	orders *Orders
	events EventPublisher

	providers     map[model.PaymentMethod]payment.Provider
	verifiers     map[model.PaymentMethod]payment.Verifier
	verifyTimeout time.Duration
}

func NewPayments(st store.Store, orders *Orders, events EventPublisher, verifyTimeout time.Duration) *Payments {
	return &Payments{
		store:         st,
		orders:        orders,
		events:        events,
		providers:     make(map[model.PaymentMethod]payment.Provider),
		verifiers:     make(map[model.PaymentMethod]payment.Verifier),
		verifyTimeout: verifyTimeout,
	}
}

// Register wires a provider and its signature-verification capability.
func (s *Payments) Register(p payment.Provider, v payment.Verifier) {
	s.providers[p.Method()] = p
	s.verifiers[p.Method()] = v
}

// Create opens (or returns) the pending Payment for an external-method
// order and hands back the merchant transaction id the provider must echo.
func (s *Payments) Create(ctx context.Context, orderID, userID uint) (*model.Payment, error) {
	order, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order %d: %w", orderID, store.ErrForbidden)
	}
	if !order.PaymentMethod.External() {
		return nil, fmt.Errorf("order %d pays by balance: %w", orderID, store.ErrInvalidTransition)
	}
	if order.Status != model.OrderPending {
		return nil, fmt.Errorf("order %d is %s: %w", orderID, order.Status, store.ErrInvalidTransition)
	}
	return s.orders.EnsurePendingPayment(ctx, order)
}

func (s *Payments) Get(ctx context.Context, id uint, actor Actor) (*model.Payment, error) {
	p, err := s.store.Payments().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && p.UserID != actor.UserID {
		return nil, fmt.Errorf("payment %d: %w", id, store.ErrForbidden)
	}
	return p, nil
}

func (s *Payments) List(ctx context.Context, userID uint) ([]*model.Payment, error) {
	return s.store.Payments().List(ctx, userID)
}

// CallbackResult is what goes back to the provider. Status is "success" for
// anything the provider should not retry, including duplicates.
type CallbackResult struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// IngestCallback processes one provider notification. It is idempotent and
// safe to call concurrently for the same transaction id: the payment row is
// locked for the duration of the transaction, so exactly one caller wins the
// transition and later ones observe the settled record.
func (s *Payments) IngestCallback(ctx context.Context, method model.PaymentMethod, payload map[string]string) (*CallbackResult, error) {
	provider, ok := s.providers[method]
	if !ok {
		return nil, fmt.Errorf("unknown payment provider %q: %w", method, store.ErrMalformedCallback)
	}

	notice, err := provider.Parse(payload)
	if err != nil {
		return nil, err
	}

	if err := s.verify(ctx, method, payload); err != nil {
		return nil, err
	}

	rawJSON, err := json.Marshal(notice.Raw)
	if err != nil {
		return nil, fmt.Errorf("encode callback payload: %w", err)
	}

	var (
		outcome   error
		settledID uint
	)
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.Payments().GetByTransactionID(ctx, notice.TransactionID, true)
		if err != nil {
			return err
		}

		// Providers retry; a settled payment is a no-op, never a second
		// delivery.
		if p.Status == model.PaymentSuccess {
			outcome = store.ErrAlreadyProcessed
			return nil
		}

		switch notice.State {
		case payment.StateSuccess:
			if !notice.Amount.Equal(p.Amount) {
				if err := tx.Payments().SetStatus(ctx, p.ID, model.PaymentFailed, nil, string(rawJSON)); err != nil {
					return err
				}
				outcome = fmt.Errorf("provider reported %s, payment is %s: %w",
					notice.Amount, p.Amount, store.ErrAmountMismatch)
				return nil
			}
			now := time.Now()
			if err := tx.Payments().SetStatus(ctx, p.ID, model.PaymentSuccess, &now, string(rawJSON)); err != nil {
				return err
			}
			if err := tx.Orders().MarkPaid(ctx, p.OrderID, now); err != nil {
				return err
			}
			settledID = p.OrderID

		case payment.StateClosed:
			return tx.Payments().SetStatus(ctx, p.ID, model.PaymentCancelled, nil, string(rawJSON))

		default:
			return tx.Payments().SetStatus(ctx, p.ID, model.PaymentFailed, nil, string(rawJSON))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if errors.Is(outcome, store.ErrAlreadyProcessed) {
		return &CallbackResult{Status: "success", Detail: "already processed"}, nil
	}
	if outcome != nil {
		return nil, outcome
	}

	if settledID == 0 {
		// Closed or failed verdicts settle the payment record only; the
		// order stays pending for a retry with a fresh payment.
		return &CallbackResult{Status: "success", Detail: string(notice.State)}, nil
	}

	s.events.PublishPaymentSucceededEvent(map[string]interface{}{
		"event_type": "payment.succeeded",
		"data": map[string]interface{}{
			"transaction_id": notice.TransactionID,
			"provider_ref":   notice.ProviderRef,
			"order_id":       settledID,
			"amount":         notice.Amount.String(),
		},
	})

	if _, err := s.orders.finishPayment(ctx, settledID); err != nil {
		if errors.Is(err, store.ErrFulfillmentPending) {
			// The money moved; the provider must not retry. Delivery waits
			// for an operator.
			return &CallbackResult{Status: "success", Detail: "fulfillment pending"}, nil
		}
		return nil, err
	}
	return &CallbackResult{Status: "success"}, nil
}

func (s *Payments) verify(ctx context.Context, method model.PaymentMethod, payload map[string]string) error {
	verifier, ok := s.verifiers[method]
	if !ok {
		return fmt.Errorf("no verifier for %q: %w", method, store.ErrUnauthorized)
	}
	vctx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()
	if err := verifier.Verify(vctx, payload); err != nil {
		if errors.Is(err, store.ErrUnauthorized) {
			return err
		}
		return fmt.Errorf("%v: %w", err, store.ErrUnauthorized)
	}
	return nil
}

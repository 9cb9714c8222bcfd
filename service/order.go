package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront-service/model"
	"storefront-service/store"
)

// Actor identifies who is invoking an operation. Admins may act on any
// order; regular users only on their own.
type Actor struct {
	UserID uint
	Admin  bool
}

func (a Actor) owns(o *model.Order) bool {
	return a.Admin || a.UserID == o.UserID
}

// Orders owns the order state machine (pending -> paid -> delivered, with
// cancel and refund branches) and the fulfillment engine that runs when an
// order becomes paid.
type Orders struct {
	store  store.Store
	vault  *Vault
	events EventPublisher
}

func NewOrders(st store.Store, vault *Vault, events EventPublisher) *Orders {
	return &Orders{store: st, vault: vault, events: events}
}

// Create snapshots the product's current name and price into a new pending
// order. Stock is only checked optimistically here; it is reserved at
// delivery time, so concurrent pending orders may overbook and get resolved
// at fulfillment.
func (s *Orders) Create(ctx context.Context, userID, productID uint, quantity int, method model.PaymentMethod, note string) (*model.Order, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity %d: %w", quantity, store.ErrInvalidQuantity)
	}
	if !method.Valid() {
		return nil, fmt.Errorf("payment method %q: %w", method, store.ErrMalformedCallback)
	}

	user, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, fmt.Errorf("user %d disabled: %w", userID, store.ErrForbidden)
	}

	product, err := s.store.Products().Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, fmt.Errorf("product %d: %w", productID, store.ErrProductInactive)
	}
	if !product.HasStock(quantity) {
		return nil, fmt.Errorf("product %d stock %d < %d: %w", productID, product.Stock, quantity, store.ErrInsufficientStock)
	}

	order := &model.Order{
		UserID:        userID,
		ProductID:     product.ID,
		ProductName:   product.Name,
		ProductPrice:  product.Price,
		Quantity:      quantity,
		TotalAmount:   product.Price.Mul(decimal.NewFromInt(int64(quantity))),
		PaymentMethod: method,
		Status:        model.OrderPending,
		UserNote:      note,
	}

	// The generator is re-callable: on an order number collision we mint a
	// fresh one and try again.
	for attempt := 0; attempt < 5; attempt++ {
		order.OrderNumber = GenerateOrderNumber()
		err = s.store.Orders().Create(ctx, order)
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return order, nil
	}
	return nil, fmt.Errorf("order number generation kept colliding: %w", err)
}

func (s *Orders) Get(ctx context.Context, id uint, actor Actor) (*model.Order, error) {
	order, err := s.store.Orders().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.owns(order) {
		return nil, fmt.Errorf("order %d: %w", id, store.ErrForbidden)
	}
	return order, nil
}

func (s *Orders) GetByNumber(ctx context.Context, number string, actor Actor) (*model.Order, error) {
	order, err := s.store.Orders().GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !actor.owns(order) {
		return nil, fmt.Errorf("order %s: %w", number, store.ErrForbidden)
	}
	return order, nil
}

func (s *Orders) List(ctx context.Context, userID uint, status model.OrderStatus) ([]*model.Order, error) {
	return s.store.Orders().List(ctx, userID, status)
}

// Pay settles a pending order. Balance orders debit the ledger and deliver
// synchronously. External-method orders only get a pending Payment record
// here; nothing marks them paid until the provider callback is reconciled.
func (s *Orders) Pay(ctx context.Context, orderID, userID uint) (*model.Order, error) {
	order, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order %d: %w", orderID, store.ErrForbidden)
	}
	if order.Status != model.OrderPending {
		return nil, fmt.Errorf("order %d is %s: %w", orderID, order.Status, store.ErrInvalidTransition)
	}

	if order.PaymentMethod.External() {
		if _, err := s.EnsurePendingPayment(ctx, order); err != nil {
			return nil, err
		}
		return order, nil
	}

	now := time.Now()
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if err := debit(ctx, tx, userID, order.TotalAmount); err != nil {
			return err
		}
		if err := tx.Orders().MarkPaid(ctx, orderID, now); err != nil {
			return err
		}
		// Audit record mirroring the external-payment shape.
		payment := &model.Payment{
			UserID:        userID,
			OrderID:       orderID,
			PaymentMethod: model.MethodBalance,
			Amount:        order.TotalAmount,
			Status:        model.PaymentSuccess,
			PaidAt:        &now,
		}
		return tx.Payments().Create(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	s.events.PublishOrderPaidEvent(orderEvent("order.paid", order, map[string]interface{}{
		"paid_at": now.Format(time.RFC3339),
	}))

	return s.finishPayment(ctx, orderID)
}

// EnsurePendingPayment returns the order's open Payment record, creating it
// with a fresh merchant transaction id if none exists. The provider must
// echo that id back in its callback.
func (s *Orders) EnsurePendingPayment(ctx context.Context, order *model.Order) (*model.Payment, error) {
	existing, err := s.store.Payments().GetByOrder(ctx, order.ID)
	if err == nil && existing.Status == model.PaymentPending {
		return existing, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	payment := &model.Payment{
		UserID:        order.UserID,
		OrderID:       order.ID,
		PaymentMethod: order.PaymentMethod,
		Amount:        order.TotalAmount,
		Status:        model.PaymentPending,
		TransactionID: uuid.NewString(),
	}
	if err := s.store.Payments().Create(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// finishPayment runs fulfillment for a freshly paid order. Fulfillment
// failure deliberately does not unwind the payment: the order stays paid and
// the caller sees ErrFulfillmentPending.
func (s *Orders) finishPayment(ctx context.Context, orderID uint) (*model.Order, error) {
	delivered, err := s.fulfill(ctx, orderID)
	if err != nil {
		order, getErr := s.store.Orders().Get(ctx, orderID)
		if getErr != nil {
			return nil, getErr
		}
		return order, err
	}
	return delivered, nil
}

// Deliver is the administrative manual trigger, and the only retry path for
// an order stuck in FulfillmentPending.
func (s *Orders) Deliver(ctx context.Context, orderID uint, actor Actor) (*model.Order, error) {
	if !actor.Admin {
		return nil, fmt.Errorf("deliver order %d: %w", orderID, store.ErrForbidden)
	}
	return s.fulfill(ctx, orderID)
}

// fulfill moves a paid order to delivered. Auto-delivery products draw one
// card from the pool and consume stock; everything commits atomically so a
// crash can never leave a used card without a delivered order.
func (s *Orders) fulfill(ctx context.Context, orderID uint) (*model.Order, error) {
	now := time.Now()
	var delivered *model.Order

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != model.OrderPaid {
			return fmt.Errorf("order %d is %s: %w", orderID, order.Status, store.ErrInvalidTransition)
		}

		product, err := tx.Products().Get(ctx, order.ProductID)
		if err != nil {
			return err
		}

		content := ""
		if product.AutoDelivery {
			card, err := tx.Cards().Allocate(ctx, product.ID, now)
			if err != nil {
				return err
			}
			if err := tx.Cards().MarkUsed(ctx, card.ID, order.UserID, order.ID, now); err != nil {
				return err
			}
			content, err = s.vault.Decrypt(card.EncryptedContent, card.CardSecret)
			if err != nil {
				return err
			}
			// The authoritative stock check; the optimistic one at creation
			// may have overbooked.
			if err := tx.Products().ConsumeStock(ctx, product.ID, order.Quantity); err != nil {
				return err
			}
		}

		if err := tx.Orders().MarkDelivered(ctx, orderID, content, now); err != nil {
			return err
		}
		delivered, err = tx.Orders().Get(ctx, orderID)
		return err
	})
	if errors.Is(err, store.ErrNoCardAvailable) || errors.Is(err, store.ErrInsufficientStock) {
		return nil, fmt.Errorf("order %d: %w (%w)", orderID, store.ErrFulfillmentPending, err)
	}
	if err != nil {
		return nil, err
	}

	s.events.PublishOrderDeliveredEvent(orderEvent("order.delivered", delivered, map[string]interface{}{
		"delivered_at": now.Format(time.RFC3339),
	}))
	return delivered, nil
}

// Cancel is legal from pending or paid. A paid balance order is refunded to
// the ledger in the same transaction that flips the state, so a racing
// cancel and delivery cannot both win.
func (s *Orders) Cancel(ctx context.Context, orderID uint, actor Actor) (*model.Order, error) {
	order, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.owns(order) {
		return nil, fmt.Errorf("order %d: %w", orderID, store.ErrForbidden)
	}
	if order.Status != model.OrderPending && order.Status != model.OrderPaid {
		return nil, fmt.Errorf("order %d is %s: %w", orderID, order.Status, store.ErrInvalidTransition)
	}
	from := order.Status

	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if from == model.OrderPaid && order.PaymentMethod == model.MethodBalance {
			if err := credit(ctx, tx, order.UserID, order.TotalAmount); err != nil {
				return err
			}
		}
		return tx.Orders().Transition(ctx, orderID, from, model.OrderCancelled)
	})
	if err != nil {
		return nil, err
	}

	s.events.PublishOrderCancelledEvent(orderEvent("order.cancelled", order, nil))
	return s.store.Orders().Get(ctx, orderID)
}

// Refund is legal only once delivered. Dispensed card content is not
// reclaimed; only the ledger effect reverses for balance orders.
func (s *Orders) Refund(ctx context.Context, orderID uint, actor Actor) (*model.Order, error) {
	order, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.owns(order) {
		return nil, fmt.Errorf("order %d: %w", orderID, store.ErrForbidden)
	}
	if order.Status != model.OrderDelivered {
		return nil, fmt.Errorf("order %d is %s: %w", orderID, order.Status, store.ErrInvalidTransition)
	}

	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if order.PaymentMethod == model.MethodBalance {
			if err := credit(ctx, tx, order.UserID, order.TotalAmount); err != nil {
				return err
			}
		}
		if err := tx.Orders().Transition(ctx, orderID, model.OrderDelivered, model.OrderRefunded); err != nil {
			return err
		}
		payment, err := tx.Payments().GetByOrder(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Payments().SetStatus(ctx, payment.ID, model.PaymentRefunded, nil, "")
	})
	if err != nil {
		return nil, err
	}

	s.events.PublishOrderRefundedEvent(orderEvent("order.refunded", order, nil))
	return s.store.Orders().Get(ctx, orderID)
}

func orderEvent(eventType string, o *model.Order, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"order_id":     o.ID,
		"order_number": o.OrderNumber,
		"user_id":      o.UserID,
		"product_id":   o.ProductID,
		"total_amount": o.TotalAmount.String(),
	}
	for k, v := range extra {
		data[k] = v
	}
	return map[string]interface{}{
		"event_type": eventType,
		"data":       data,
	}
}

// GenerateOrderNumber mints a human-referenceable order number: ORD, a
// second-resolution timestamp and a random 3 digit suffix. Uniqueness is
// enforced by the database; callers retry on collision.
func GenerateOrderNumber() string {
	suffix, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		// crypto/rand failing means the process is in much worse trouble
		// than a predictable suffix.
		suffix = big.NewInt(time.Now().UnixNano() % 1000)
	}
	return fmt.Sprintf("ORD%s%03d", time.Now().Format("20060102150405"), suffix.Int64())
}

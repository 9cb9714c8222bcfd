// Package store is the persistence boundary of the storefront core. Entities
// reference each other by id only; callers resolve relations through the
// repositories, never through materialized object graphs.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"storefront-service/model"
)

type UserRepo interface {
	Get(ctx context.Context, id uint) (*model.User, error)

	// Debit and Credit are the only legal mutators of a user's balance.
	// Both are atomic against concurrent mutations of the same user; Debit
	// fails with ErrInsufficientBalance instead of letting the balance go
	// negative.
	Debit(ctx context.Context, id uint, amount decimal.Decimal) error
	Credit(ctx context.Context, id uint, amount decimal.Decimal) error
}

type ProductRepo interface {
	Get(ctx context.Context, id uint) (*model.Product, error)
	List(ctx context.Context) ([]*model.Product, error)

	// ConsumeStock decrements stock by quantity and increments sold_count as
	// one atomic step. Unlimited-stock products only count the sale. This is
	// the authoritative stock check; it fails with ErrInsufficientStock when
	// the decrement would go negative.
	ConsumeStock(ctx context.Context, id uint, quantity int) error
}

type OrderRepo interface {
	Create(ctx context.Context, o *model.Order) error
	Get(ctx context.Context, id uint) (*model.Order, error)
	GetByNumber(ctx context.Context, number string) (*model.Order, error)
	List(ctx context.Context, userID uint, status model.OrderStatus) ([]*model.Order, error)

	// Transition is a compare-and-swap on order status: it succeeds only if
	// the row is still in from, so of two racing transitions exactly one
	// wins and the loser observes ErrInvalidTransition.
	Transition(ctx context.Context, id uint, from, to model.OrderStatus) error
	MarkPaid(ctx context.Context, id uint, at time.Time) error
	MarkDelivered(ctx context.Context, id uint, content string, at time.Time) error
}

type PaymentRepo interface {
	Create(ctx context.Context, p *model.Payment) error
	Get(ctx context.Context, id uint) (*model.Payment, error)
	GetByOrder(ctx context.Context, orderID uint) (*model.Payment, error)
	// GetByTransactionID with lock=true takes a row lock for the duration of
	// the enclosing transaction, serializing concurrent callbacks for the
	// same transaction id.
	GetByTransactionID(ctx context.Context, txid string, lock bool) (*model.Payment, error)
	List(ctx context.Context, userID uint) ([]*model.Payment, error)
	SetStatus(ctx context.Context, id uint, status model.PaymentStatus, paidAt *time.Time, rawData string) error
}

type CardRepo interface {
	Create(ctx context.Context, c *model.Card) error
	Get(ctx context.Context, id uint) (*model.Card, error)
	List(ctx context.Context, productID uint, status model.CardStatus) ([]*model.Card, error)
	CountAvailable(ctx context.Context, productID uint, now time.Time) (int, error)

	// Allocate picks one unused, unexpired card for the product under
	// row-level exclusivity: concurrent allocations never return the same
	// card, and the last card goes to exactly one caller.
	Allocate(ctx context.Context, productID uint, now time.Time) (*model.Card, error)
	// MarkUsed flips unused->used and stamps used_by/order_id/used_at
	// together.
	MarkUsed(ctx context.Context, cardID, userID, orderID uint, at time.Time) error
	SetStatus(ctx context.Context, cardID uint, from, to model.CardStatus) error
	Delete(ctx context.Context, cardID uint) error
}

// Tx is the set of repositories visible inside one transaction boundary.
type Tx interface {
	Users() UserRepo
	Products() ProductRepo
	Orders() OrderRepo
	Payments() PaymentRepo
	Cards() CardRepo
}

// Store exposes the repositories both for single-statement use and inside an
// atomic transaction via InTx. A non-nil error from fn rolls everything back.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

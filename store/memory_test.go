package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"storefront-service/model"
)

func TestInTxRollsBackOnError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.SeedUser(&model.User{ID: 1, Balance: decimal.NewFromInt(100), IsActive: true})
	m.SeedProduct(&model.Product{ID: 10, Name: "p", Price: decimal.NewFromInt(10), Stock: 5, IsActive: true})

	boom := errors.New("boom")
	err := m.InTx(ctx, func(tx Tx) error {
		if err := tx.Users().Debit(ctx, 1, decimal.NewFromInt(40)); err != nil {
			return err
		}
		if err := tx.Products().ConsumeStock(ctx, 10, 2); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Every write inside the failed transaction is gone.
	u, err := m.Users().Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, u.Balance.Equal(decimal.NewFromInt(100)))

	p, err := m.Products().Get(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 5, p.Stock)
	require.Equal(t, 0, p.SoldCount)
}

func TestInTxCommitsOnSuccess(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.SeedUser(&model.User{ID: 1, Balance: decimal.NewFromInt(100), IsActive: true})

	err := m.InTx(ctx, func(tx Tx) error {
		return tx.Users().Debit(ctx, 1, decimal.NewFromInt(40))
	})
	require.NoError(t, err)

	u, err := m.Users().Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, u.Balance.Equal(decimal.NewFromInt(60)))
}

func TestOrderTransitionIsCompareAndSwap(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	order := &model.Order{
		OrderNumber:   "ORD1",
		UserID:        1,
		ProductID:     10,
		Quantity:      1,
		TotalAmount:   decimal.NewFromInt(10),
		PaymentMethod: model.MethodBalance,
		Status:        model.OrderPending,
	}
	require.NoError(t, m.Orders().Create(ctx, order))

	require.NoError(t, m.Orders().Transition(ctx, order.ID, model.OrderPending, model.OrderCancelled))

	// The observed-from state is stale now; the swap must fail.
	err := m.Orders().Transition(ctx, order.ID, model.OrderPending, model.OrderCancelled)
	require.ErrorIs(t, err, ErrInvalidTransition)

	err = m.Orders().MarkPaid(ctx, order.ID, time.Now())
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOrderNumberUnique(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first := &model.Order{OrderNumber: "ORD1", Status: model.OrderPending, TotalAmount: decimal.Zero, ProductPrice: decimal.Zero}
	require.NoError(t, m.Orders().Create(ctx, first))

	dup := &model.Order{OrderNumber: "ORD1", Status: model.OrderPending, TotalAmount: decimal.Zero, ProductPrice: decimal.Zero}
	require.ErrorIs(t, m.Orders().Create(ctx, dup), ErrDuplicate)
}

func TestPaymentTransactionIDUnique(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first := &model.Payment{OrderID: 1, TransactionID: "tx-1", Amount: decimal.Zero, Status: model.PaymentPending}
	require.NoError(t, m.Payments().Create(ctx, first))

	dup := &model.Payment{OrderID: 2, TransactionID: "tx-1", Amount: decimal.Zero, Status: model.PaymentPending}
	require.ErrorIs(t, m.Payments().Create(ctx, dup), ErrDuplicate)

	// Balance payments carry no provider transaction id; blanks never collide.
	for i := 0; i < 2; i++ {
		p := &model.Payment{OrderID: uint(3 + i), Amount: decimal.Zero, Status: model.PaymentSuccess}
		require.NoError(t, m.Payments().Create(ctx, p))
	}
}

func TestAllocatePrefersOldestCard(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Cards().Create(ctx, &model.Card{
			ProductID:        10,
			EncryptedContent: "ct",
			CardSecret:       "ks",
			Status:           model.CardUnused,
		}))
	}

	card, err := m.Cards().Allocate(ctx, 10, now)
	require.NoError(t, err)
	require.Equal(t, uint(1), card.ID)

	require.NoError(t, m.Cards().MarkUsed(ctx, card.ID, 1, 1, now))

	next, err := m.Cards().Allocate(ctx, 10, now)
	require.NoError(t, err)
	require.Equal(t, uint(2), next.ID)

	// Double-marking the same card is refused.
	require.ErrorIs(t, m.Cards().MarkUsed(ctx, card.ID, 2, 2, now), ErrInvalidTransition)
}

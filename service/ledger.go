package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"storefront-service/store"
)

// Ledger owns every mutation of user balances. Order and payment code never
// writes a balance directly; it routes through these operations so the
// balance change commits in the same transaction as the order update.
type Ledger struct {
	store store.Store
}

func NewLedger(st store.Store) *Ledger {
	return &Ledger{store: st}
}

func (l *Ledger) Balance(ctx context.Context, userID uint) (decimal.Decimal, error) {
	u, err := l.store.Users().Get(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return u.Balance, nil
}

func (l *Ledger) Debit(ctx context.Context, userID uint, amount decimal.Decimal) error {
	return debit(ctx, l.store, userID, amount)
}

func (l *Ledger) Credit(ctx context.Context, userID uint, amount decimal.Decimal) error {
	return credit(ctx, l.store, userID, amount)
}

// debit and credit operate on any Tx so callers can fold the balance change
// into a larger transaction.

func debit(ctx context.Context, tx store.Tx, userID uint, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("debit %s: %w", amount, store.ErrInvalidAmount)
	}
	return tx.Users().Debit(ctx, userID, amount)
}

func credit(ctx context.Context, tx store.Tx, userID uint, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("credit %s: %w", amount, store.ErrInvalidAmount)
	}
	return tx.Users().Credit(ctx, userID, amount)
}

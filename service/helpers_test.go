package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"storefront-service/model"
	"storefront-service/store"
)

type testEnv struct {
	store    *store.Memory
	vault    *Vault
	orders   *Orders
	cards    *Cards
	payments *Payments
	ledger   *Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemory()
	vault, err := NewVault(testKey(t))
	require.NoError(t, err)
	orders := NewOrders(st, vault, NopPublisher{})
	return &testEnv{
		store:    st,
		vault:    vault,
		orders:   orders,
		cards:    NewCards(st, vault),
		payments: NewPayments(st, orders, NopPublisher{}, time.Second),
		ledger:   NewLedger(st),
	}
}

func (e *testEnv) seedUser(id uint, balance string) {
	e.store.SeedUser(&model.User{
		ID:       id,
		Username: "user",
		Balance:  decimal.RequireFromString(balance),
		IsActive: true,
	})
}

func (e *testEnv) seedProduct(id uint, price string, stock int, autoDelivery bool) {
	e.store.SeedProduct(&model.Product{
		ID:           id,
		Name:         "Game Key",
		Price:        decimal.RequireFromString(price),
		Stock:        stock,
		AutoDelivery: autoDelivery,
		IsActive:     true,
	})
}

func (e *testEnv) seedCards(t *testing.T, productID uint, contents ...string) []*model.Card {
	t.Helper()
	cards, err := e.cards.BatchCreate(context.Background(), productID, contents, nil)
	require.NoError(t, err)
	return cards
}

func (e *testEnv) balance(t *testing.T, userID uint) decimal.Decimal {
	t.Helper()
	b, err := e.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"storefront-service/model"
)

// Memory is an in-process Store used by tests and local development. A single
// mutex serializes state-changing operations, which gives the same atomicity
// guarantees the SQL implementation gets from transactions; InTx snapshots
// the state and restores it when the callback fails.
type Memory struct {
	mu sync.Mutex

	users    map[uint]*model.User
	products map[uint]*model.Product
	orders   map[uint]*model.Order
	payments map[uint]*model.Payment
	cards    map[uint]*model.Card

	nextOrder   uint
	nextPayment uint
	nextCard    uint
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[uint]*model.User),
		products: make(map[uint]*model.Product),
		orders:   make(map[uint]*model.Order),
		payments: make(map[uint]*model.Payment),
		cards:    make(map[uint]*model.Card),
	}
}

// SeedUser and SeedProduct install fixtures; they are test helpers, not part
// of the Store contract.
func (m *Memory) SeedUser(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
}

func (m *Memory) SeedProduct(p *model.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.products[p.ID] = &cp
}

type memSnapshot struct {
	users    map[uint]*model.User
	products map[uint]*model.Product
	orders   map[uint]*model.Order
	payments map[uint]*model.Payment
	cards    map[uint]*model.Card

	nextOrder, nextPayment, nextCard uint
}

func cloneMap[V any](src map[uint]*V) map[uint]*V {
	dst := make(map[uint]*V, len(src))
	for k, v := range src {
		cp := *v
		dst[k] = &cp
	}
	return dst
}

func (m *Memory) snapshot() memSnapshot {
	return memSnapshot{
		users:    cloneMap(m.users),
		products: cloneMap(m.products),
		orders:   cloneMap(m.orders),
		payments: cloneMap(m.payments),
		cards:    cloneMap(m.cards),

		nextOrder:   m.nextOrder,
		nextPayment: m.nextPayment,
		nextCard:    m.nextCard,
	}
}

func (m *Memory) restore(s memSnapshot) {
	m.users = s.users
	m.products = s.products
	m.orders = s.orders
	m.payments = s.payments
	m.cards = s.cards
	m.nextOrder = s.nextOrder
	m.nextPayment = s.nextPayment
	m.nextCard = s.nextCard
}

func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(&memTx{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// memTx exposes the raw repositories; the store mutex is already held.
type memTx struct{ m *Memory }

func (t *memTx) Users() UserRepo       { return rawUsers{t.m} }
func (t *memTx) Products() ProductRepo { return rawProducts{t.m} }
func (t *memTx) Orders() OrderRepo     { return rawOrders{t.m} }
func (t *memTx) Payments() PaymentRepo { return rawPayments{t.m} }
func (t *memTx) Cards() CardRepo       { return rawCards{t.m} }

// Top-level repository access locks per call.
func (m *Memory) Users() UserRepo       { return lockedUsers{m} }
func (m *Memory) Products() ProductRepo { return lockedProducts{m} }
func (m *Memory) Orders() OrderRepo     { return lockedOrders{m} }
func (m *Memory) Payments() PaymentRepo { return lockedPayments{m} }
func (m *Memory) Cards() CardRepo       { return lockedCards{m} }

// ====================== USERS ======================

type rawUsers struct{ m *Memory }

func (r rawUsers) Get(_ context.Context, id uint) (*model.User, error) {
	u, ok := r.m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (r rawUsers) Debit(_ context.Context, id uint, amount decimal.Decimal) error {
	u, ok := r.m.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if u.Balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	u.Balance = u.Balance.Sub(amount)
	return nil
}

func (r rawUsers) Credit(_ context.Context, id uint, amount decimal.Decimal) error {
	u, ok := r.m.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	u.Balance = u.Balance.Add(amount)
	return nil
}

type lockedUsers struct{ m *Memory }

func (r lockedUsers) Get(ctx context.Context, id uint) (*model.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawUsers(r).Get(ctx, id)
}

func (r lockedUsers) Debit(ctx context.Context, id uint, amount decimal.Decimal) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawUsers(r).Debit(ctx, id, amount)
}

func (r lockedUsers) Credit(ctx context.Context, id uint, amount decimal.Decimal) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawUsers(r).Credit(ctx, id, amount)
}

// ====================== PRODUCTS ======================

type rawProducts struct{ m *Memory }

func (r rawProducts) Get(_ context.Context, id uint) (*model.Product, error) {
	p, ok := r.m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (r rawProducts) List(_ context.Context) ([]*model.Product, error) {
	var list []*model.Product
	for _, p := range r.m.products {
		if p.IsActive {
			cp := *p
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r rawProducts) ConsumeStock(_ context.Context, id uint, quantity int) error {
	p, ok := r.m.products[id]
	if !ok {
		return fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if p.Stock != model.UnlimitedStock {
		if p.Stock < quantity {
			return ErrInsufficientStock
		}
		p.Stock -= quantity
	}
	p.SoldCount += quantity
	return nil
}

type lockedProducts struct{ m *Memory }

func (r lockedProducts) Get(ctx context.Context, id uint) (*model.Product, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawProducts(r).Get(ctx, id)
}

func (r lockedProducts) List(ctx context.Context) ([]*model.Product, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawProducts(r).List(ctx)
}

func (r lockedProducts) ConsumeStock(ctx context.Context, id uint, quantity int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawProducts(r).ConsumeStock(ctx, id, quantity)
}

// ====================== ORDERS ======================

type rawOrders struct{ m *Memory }

func (r rawOrders) Create(_ context.Context, o *model.Order) error {
	for _, existing := range r.m.orders {
		if existing.OrderNumber == o.OrderNumber {
			return fmt.Errorf("order number %s: %w", o.OrderNumber, ErrDuplicate)
		}
	}
	r.m.nextOrder++
	o.ID = r.m.nextOrder
	o.CreatedAt = time.Now()
	cp := *o
	r.m.orders[o.ID] = &cp
	return nil
}

func (r rawOrders) Get(_ context.Context, id uint) (*model.Order, error) {
	o, ok := r.m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (r rawOrders) GetByNumber(_ context.Context, number string) (*model.Order, error) {
	for _, o := range r.m.orders {
		if o.OrderNumber == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("order %s: %w", number, ErrNotFound)
}

func (r rawOrders) List(_ context.Context, userID uint, status model.OrderStatus) ([]*model.Order, error) {
	var list []*model.Order
	for _, o := range r.m.orders {
		if userID != 0 && o.UserID != userID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		cp := *o
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

func (r rawOrders) Transition(_ context.Context, id uint, from, to model.OrderStatus) error {
	o, ok := r.m.orders[id]
	if !ok || o.Status != from {
		return fmt.Errorf("order %d %s->%s: %w", id, from, to, ErrInvalidTransition)
	}
	o.Status = to
	return nil
}

func (r rawOrders) MarkPaid(_ context.Context, id uint, at time.Time) error {
	o, ok := r.m.orders[id]
	if !ok || o.Status != model.OrderPending {
		return fmt.Errorf("order %d pay: %w", id, ErrInvalidTransition)
	}
	o.Status = model.OrderPaid
	t := at
	o.PaidAt = &t
	return nil
}

func (r rawOrders) MarkDelivered(_ context.Context, id uint, content string, at time.Time) error {
	o, ok := r.m.orders[id]
	if !ok || o.Status != model.OrderPaid {
		return fmt.Errorf("order %d deliver: %w", id, ErrInvalidTransition)
	}
	o.Status = model.OrderDelivered
	o.DeliveryContent = content
	t := at
	o.DeliveredAt = &t
	return nil
}

type lockedOrders struct{ m *Memory }

func (r lockedOrders) Create(ctx context.Context, o *model.Order) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawOrders(r).Create(ctx, o)
}

func (r lockedOrders) Get(ctx context.Context, id uint) (*model.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawOrders(r).Get(ctx, id)
}

func (r lockedOrders) GetByNumber(ctx context.Context, number string) (*model.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawOrders(r).GetByNumber(ctx, number)
}

func (r lockedOrders) List(ctx context.Context, userID uint, status model.OrderStatus) ([]*model.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawOrders(r).List(ctx, userID, status)
}

func (r lockedOrders) Transition(ctx context.Context, id uint, from, to model.OrderStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawOrders(r).Transition(ctx, id, from, to)
}

func (r lockedOrders) MarkPaid(ctx context.Context, id uint, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawOrders(r).MarkPaid(ctx, id, at)
}

func (r lockedOrders) MarkDelivered(ctx context.Context, id uint, content string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawOrders(r).MarkDelivered(ctx, id, content, at)
}

// ====================== PAYMENTS ======================

type rawPayments struct{ m *Memory }

func (r rawPayments) Create(_ context.Context, p *model.Payment) error {
	if p.TransactionID != "" {
		for _, existing := range r.m.payments {
			if existing.TransactionID == p.TransactionID {
				return fmt.Errorf("transaction %s: %w", p.TransactionID, ErrDuplicate)
			}
		}
	}
	r.m.nextPayment++
	p.ID = r.m.nextPayment
	p.CreatedAt = time.Now()
	cp := *p
	r.m.payments[p.ID] = &cp
	return nil
}

func (r rawPayments) Get(_ context.Context, id uint) (*model.Payment, error) {
	p, ok := r.m.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %d: %w", id, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (r rawPayments) GetByOrder(_ context.Context, orderID uint) (*model.Payment, error) {
	var latest *model.Payment
	for _, p := range r.m.payments {
		if p.OrderID != orderID {
			continue
		}
		if latest == nil || p.ID > latest.ID {
			latest = p
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("payment for order %d: %w", orderID, ErrNotFound)
	}
	cp := *latest
	return &cp, nil
}

func (r rawPayments) GetByTransactionID(_ context.Context, txid string, _ bool) (*model.Payment, error) {
	for _, p := range r.m.payments {
		if p.TransactionID == txid {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("transaction %s: %w", txid, ErrNotFound)
}

func (r rawPayments) List(_ context.Context, userID uint) ([]*model.Payment, error) {
	var list []*model.Payment
	for _, p := range r.m.payments {
		if userID != 0 && p.UserID != userID {
			continue
		}
		cp := *p
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

func (r rawPayments) SetStatus(_ context.Context, id uint, status model.PaymentStatus, paidAt *time.Time, rawData string) error {
	p, ok := r.m.payments[id]
	if !ok {
		return fmt.Errorf("payment %d: %w", id, ErrNotFound)
	}
	p.Status = status
	if paidAt != nil {
		t := *paidAt
		p.PaidAt = &t
	}
	if rawData != "" {
		p.PaymentData = rawData
	}
	return nil
}

type lockedPayments struct{ m *Memory }

func (r lockedPayments) Create(ctx context.Context, p *model.Payment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawPayments(r).Create(ctx, p)
}

func (r lockedPayments) Get(ctx context.Context, id uint) (*model.Payment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawPayments(r).Get(ctx, id)
}

func (r lockedPayments) GetByOrder(ctx context.Context, orderID uint) (*model.Payment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawPayments(r).GetByOrder(ctx, orderID)
}

func (r lockedPayments) GetByTransactionID(ctx context.Context, txid string, lock bool) (*model.Payment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawPayments(r).GetByTransactionID(ctx, txid, lock)
}

func (r lockedPayments) List(ctx context.Context, userID uint) ([]*model.Payment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawPayments(r).List(ctx, userID)
}

func (r lockedPayments) SetStatus(ctx context.Context, id uint, status model.PaymentStatus, paidAt *time.Time, rawData string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawPayments(r).SetStatus(ctx, id, status, paidAt, rawData)
}

// ====================== CARDS ======================

type rawCards struct{ m *Memory }

func (r rawCards) Create(_ context.Context, c *model.Card) error {
	r.m.nextCard++
	c.ID = r.m.nextCard
	c.CreatedAt = time.Now()
	cp := *c
	r.m.cards[c.ID] = &cp
	return nil
}

func (r rawCards) Get(_ context.Context, id uint) (*model.Card, error) {
	c, ok := r.m.cards[id]
	if !ok {
		return nil, fmt.Errorf("card %d: %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (r rawCards) List(_ context.Context, productID uint, status model.CardStatus) ([]*model.Card, error) {
	var list []*model.Card
	for _, c := range r.m.cards {
		if productID != 0 && c.ProductID != productID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		cp := *c
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r rawCards) CountAvailable(_ context.Context, productID uint, now time.Time) (int, error) {
	n := 0
	for _, c := range r.m.cards {
		if c.ProductID == productID && c.Available(now) {
			n++
		}
	}
	return n, nil
}

func (r rawCards) Allocate(_ context.Context, productID uint, now time.Time) (*model.Card, error) {
	var pick *model.Card
	for _, c := range r.m.cards {
		if c.ProductID != productID || !c.Available(now) {
			continue
		}
		if pick == nil || c.ID < pick.ID {
			pick = c
		}
	}
	if pick == nil {
		return nil, fmt.Errorf("product %d: %w", productID, ErrNoCardAvailable)
	}
	cp := *pick
	return &cp, nil
}

func (r rawCards) MarkUsed(_ context.Context, cardID, userID, orderID uint, at time.Time) error {
	c, ok := r.m.cards[cardID]
	if !ok || c.Status != model.CardUnused {
		return fmt.Errorf("card %d: %w", cardID, ErrInvalidTransition)
	}
	c.Status = model.CardUsed
	u, o, t := userID, orderID, at
	c.UsedBy = &u
	c.OrderID = &o
	c.UsedAt = &t
	return nil
}

func (r rawCards) SetStatus(_ context.Context, cardID uint, from, to model.CardStatus) error {
	c, ok := r.m.cards[cardID]
	if !ok || c.Status != from {
		return fmt.Errorf("card %d %s->%s: %w", cardID, from, to, ErrInvalidTransition)
	}
	c.Status = to
	return nil
}

func (r rawCards) Delete(_ context.Context, cardID uint) error {
	if _, ok := r.m.cards[cardID]; !ok {
		return fmt.Errorf("card %d: %w", cardID, ErrNotFound)
	}
	delete(r.m.cards, cardID)
	return nil
}

type lockedCards struct{ m *Memory }

func (r lockedCards) Create(ctx context.Context, c *model.Card) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawCards(r).Create(ctx, c)
}

func (r lockedCards) Get(ctx context.Context, id uint) (*model.Card, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawCards(r).Get(ctx, id)
}

func (r lockedCards) List(ctx context.Context, productID uint, status model.CardStatus) ([]*model.Card, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawCards(r).List(ctx, productID, status)
}

func (r lockedCards) CountAvailable(ctx context.Context, productID uint, now time.Time) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawCards(r).CountAvailable(ctx, productID, now)
}

func (r lockedCards) Allocate(ctx context.Context, productID uint, now time.Time) (*model.Card, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawCards(r).Allocate(ctx, productID, now)
}

func (r lockedCards) MarkUsed(ctx context.Context, cardID, userID, orderID uint, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawCards(r).MarkUsed(ctx, cardID, userID, orderID, at)
}

func (r lockedCards) SetStatus(ctx context.Context, cardID uint, from, to model.CardStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawCards(r).SetStatus(ctx, cardID, from, to)
}

func (r lockedCards) Delete(ctx context.Context, cardID uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return rawCards(r).Delete(ctx, cardID)
}

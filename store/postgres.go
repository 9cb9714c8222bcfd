package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"storefront-service/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx so every repository query
// runs unchanged inside or outside a transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Postgres implements Store on a relational database using plain SQL.
type Postgres struct {
	db *sql.DB
	repos
}

type repos struct {
	users    userRepo
	products productRepo
	orders   orderRepo
	payments paymentRepo
	cards    cardRepo
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, repos: newRepos(db)}
}

func newRepos(q querier) repos {
	return repos{
		users:    userRepo{q},
		products: productRepo{q},
		orders:   orderRepo{q},
		payments: paymentRepo{q},
		cards:    cardRepo{q},
	}
}

func (r *repos) Users() UserRepo       { return &r.users }
func (r *repos) Products() ProductRepo { return &r.products }
func (r *repos) Orders() OrderRepo     { return &r.orders }
func (r *repos) Payments() PaymentRepo { return &r.payments }
func (r *repos) Cards() CardRepo       { return &r.cards }

type pgTx struct{ repos }

func (s *Postgres) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	wrapped := &pgTx{repos: newRepos(tx)}
	if err := fn(wrapped); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ====================== USERS ======================

type userRepo struct{ q querier }

func (r *userRepo) Get(ctx context.Context, id uint) (*model.User, error) {
	query := `
	SELECT id, username, email, balance, is_admin, is_active, created_at, updated_at
	FROM users WHERE id = $1
	`
	var u model.User
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.Email, &u.Balance,
		&u.IsAdmin, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (r *userRepo) Debit(ctx context.Context, id uint, amount decimal.Decimal) error {
	// The balance >= amount guard in the WHERE clause is what keeps the
	// balance non-negative under concurrent debits.
	query := `
	UPDATE users SET balance = balance - $1, updated_at = NOW()
	WHERE id = $2 AND balance >= $1
	`
	res, err := r.q.ExecContext(ctx, query, amount, id)
	if err != nil {
		return fmt.Errorf("debit user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrInsufficientBalance
	}
	return nil
}

func (r *userRepo) Credit(ctx context.Context, id uint, amount decimal.Decimal) error {
	query := `
	UPDATE users SET balance = balance + $1, updated_at = NOW()
	WHERE id = $2
	`
	res, err := r.q.ExecContext(ctx, query, amount, id)
	if err != nil {
		return fmt.Errorf("credit user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return nil
}

// ====================== PRODUCTS ======================

type productRepo struct{ q querier }

const productCols = `id, name, "desc", price, category_id, stock, sold_count, auto_delivery, is_active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*model.Product, error) {
	var p model.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Desc, &p.Price, &p.CategoryID,
		&p.Stock, &p.SoldCount, &p.AutoDelivery, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepo) Get(ctx context.Context, id uint) (*model.Product, error) {
	p, err := scanProduct(r.q.QueryRowContext(ctx,
		`SELECT `+productCols+` FROM products WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

func (r *productRepo) List(ctx context.Context) ([]*model.Product, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+productCols+` FROM products WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var list []*model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *productRepo) ConsumeStock(ctx context.Context, id uint, quantity int) error {
	query := `
	UPDATE products
	SET stock = CASE WHEN stock = -1 THEN stock ELSE stock - $1 END,
	    sold_count = sold_count + $1,
	    updated_at = NOW()
	WHERE id = $2 AND (stock = -1 OR stock >= $1)
	`
	res, err := r.q.ExecContext(ctx, query, quantity, id)
	if err != nil {
		return fmt.Errorf("consume stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrInsufficientStock
	}
	return nil
}

// ====================== ORDERS ======================

type orderRepo struct{ q querier }

const orderCols = `id, order_number, user_id, product_id, product_name, product_price,
	quantity, total_amount, payment_method, status, delivery_content,
	delivered_at, user_note, admin_note, created_at, updated_at, paid_at`

func scanOrder(row interface{ Scan(...any) error }) (*model.Order, error) {
	var (
		o           model.Order
		content     sql.NullString
		deliveredAt sql.NullTime
		paidAt      sql.NullTime
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.ProductID, &o.ProductName,
		&o.ProductPrice, &o.Quantity, &o.TotalAmount, &o.PaymentMethod,
		&o.Status, &content, &deliveredAt, &o.UserNote, &o.AdminNote,
		&o.CreatedAt, &o.UpdatedAt, &paidAt,
	)
	if err != nil {
		return nil, err
	}
	o.DeliveryContent = content.String
	if deliveredAt.Valid {
		t := deliveredAt.Time
		o.DeliveredAt = &t
	}
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}
	return &o, nil
}

func (r *orderRepo) Create(ctx context.Context, o *model.Order) error {
	query := `
	INSERT INTO orders
	(order_number, user_id, product_id, product_name, product_price,
	 quantity, total_amount, payment_method, status, user_note, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())
	RETURNING id, created_at
	`
	err := r.q.QueryRowContext(ctx, query,
		o.OrderNumber, o.UserID, o.ProductID, o.ProductName, o.ProductPrice,
		o.Quantity, o.TotalAmount, o.PaymentMethod, o.Status, o.UserNote,
	).Scan(&o.ID, &o.CreatedAt)
	if isDuplicate(err) {
		return fmt.Errorf("order number %s: %w", o.OrderNumber, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepo) Get(ctx context.Context, id uint) (*model.Order, error) {
	o, err := scanOrder(r.q.QueryRowContext(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return o, nil
}

func (r *orderRepo) GetByNumber(ctx context.Context, number string) (*model.Order, error) {
	o, err := scanOrder(r.q.QueryRowContext(ctx,
		`SELECT `+orderCols+` FROM orders WHERE order_number = $1`, number))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", number, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return o, nil
}

func (r *orderRepo) List(ctx context.Context, userID uint, status model.OrderStatus) ([]*model.Order, error) {
	query := `SELECT ` + orderCols + ` FROM orders WHERE 1=1`
	var args []any
	if userID != 0 {
		args = append(args, userID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var list []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

func (r *orderRepo) Transition(ctx context.Context, id uint, from, to model.OrderStatus) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		to, id, from)
	if err != nil {
		return fmt.Errorf("transition order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %d %s->%s: %w", id, from, to, ErrInvalidTransition)
	}
	return nil
}

func (r *orderRepo) MarkPaid(ctx context.Context, id uint, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE orders SET status = $1, paid_at = $2, updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		model.OrderPaid, at, id, model.OrderPending)
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %d pay: %w", id, ErrInvalidTransition)
	}
	return nil
}

func (r *orderRepo) MarkDelivered(ctx context.Context, id uint, content string, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE orders SET status = $1, delivery_content = $2, delivered_at = $3, updated_at = NOW()
		 WHERE id = $4 AND status = $5`,
		model.OrderDelivered, content, at, id, model.OrderPaid)
	if err != nil {
		return fmt.Errorf("mark order delivered: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %d deliver: %w", id, ErrInvalidTransition)
	}
	return nil
}

// ====================== PAYMENTS ======================

type paymentRepo struct{ q querier }

const paymentCols = `id, user_id, order_id, payment_method, amount, status,
	transaction_id, payment_data, created_at, updated_at, paid_at`

func scanPayment(row interface{ Scan(...any) error }) (*model.Payment, error) {
	var (
		p      model.Payment
		txid   sql.NullString
		data   sql.NullString
		paidAt sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.OrderID, &p.PaymentMethod, &p.Amount,
		&p.Status, &txid, &data, &p.CreatedAt, &p.UpdatedAt, &paidAt,
	)
	if err != nil {
		return nil, err
	}
	p.TransactionID = txid.String
	p.PaymentData = data.String
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}
	return &p, nil
}

func (r *paymentRepo) Create(ctx context.Context, p *model.Payment) error {
	query := `
	INSERT INTO payments
	(user_id, order_id, payment_method, amount, status, transaction_id, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),NOW(),NOW())
	RETURNING id, created_at
	`
	err := r.q.QueryRowContext(ctx, query,
		p.UserID, p.OrderID, p.PaymentMethod, p.Amount, p.Status, p.TransactionID,
	).Scan(&p.ID, &p.CreatedAt)
	if isDuplicate(err) {
		return fmt.Errorf("transaction %s: %w", p.TransactionID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepo) Get(ctx context.Context, id uint) (*model.Payment, error) {
	p, err := scanPayment(r.q.QueryRowContext(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query payment: %w", err)
	}
	return p, nil
}

func (r *paymentRepo) GetByOrder(ctx context.Context, orderID uint) (*model.Payment, error) {
	p, err := scanPayment(r.q.QueryRowContext(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1`,
		orderID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment for order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query payment: %w", err)
	}
	return p, nil
}

func (r *paymentRepo) GetByTransactionID(ctx context.Context, txid string, lock bool) (*model.Payment, error) {
	query := `SELECT ` + paymentCols + ` FROM payments WHERE transaction_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	p, err := scanPayment(r.q.QueryRowContext(ctx, query, txid))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %s: %w", txid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query payment: %w", err)
	}
	return p, nil
}

func (r *paymentRepo) List(ctx context.Context, userID uint) ([]*model.Payment, error) {
	query := `SELECT ` + paymentCols + ` FROM payments`
	var args []any
	if userID != 0 {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var list []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *paymentRepo) SetStatus(ctx context.Context, id uint, status model.PaymentStatus, paidAt *time.Time, rawData string) error {
	query := `
	UPDATE payments
	SET status = $1,
	    paid_at = COALESCE($2, paid_at),
	    payment_data = CASE WHEN $3 = '' THEN payment_data ELSE $3 END,
	    updated_at = NOW()
	WHERE id = $4
	`
	var at sql.NullTime
	if paidAt != nil {
		at = sql.NullTime{Time: *paidAt, Valid: true}
	}
	res, err := r.q.ExecContext(ctx, query, status, at, rawData, id)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("payment %d: %w", id, ErrNotFound)
	}
	return nil
}

// ====================== CARDS ======================

type cardRepo struct{ q querier }

const cardCols = `id, product_id, encrypted_content, card_secret, status,
	used_by, order_id, used_at, expires_at, created_at, updated_at`

func scanCard(row interface{ Scan(...any) error }) (*model.Card, error) {
	var (
		c         model.Card
		usedBy    sql.NullInt64
		orderID   sql.NullInt64
		usedAt    sql.NullTime
		expiresAt sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.ProductID, &c.EncryptedContent, &c.CardSecret, &c.Status,
		&usedBy, &orderID, &usedAt, &expiresAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if usedBy.Valid {
		v := uint(usedBy.Int64)
		c.UsedBy = &v
	}
	if orderID.Valid {
		v := uint(orderID.Int64)
		c.OrderID = &v
	}
	if usedAt.Valid {
		t := usedAt.Time
		c.UsedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	return &c, nil
}

func (r *cardRepo) Create(ctx context.Context, c *model.Card) error {
	query := `
	INSERT INTO cards (product_id, encrypted_content, card_secret, status, expires_at, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,NOW(),NOW())
	RETURNING id, created_at
	`
	var expires sql.NullTime
	if c.ExpiresAt != nil {
		expires = sql.NullTime{Time: *c.ExpiresAt, Valid: true}
	}
	err := r.q.QueryRowContext(ctx, query,
		c.ProductID, c.EncryptedContent, c.CardSecret, c.Status, expires,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

func (r *cardRepo) Get(ctx context.Context, id uint) (*model.Card, error) {
	c, err := scanCard(r.q.QueryRowContext(ctx,
		`SELECT `+cardCols+` FROM cards WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("card %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query card: %w", err)
	}
	return c, nil
}

func (r *cardRepo) List(ctx context.Context, productID uint, status model.CardStatus) ([]*model.Card, error) {
	query := `SELECT ` + cardCols + ` FROM cards WHERE 1=1`
	var args []any
	if productID != 0 {
		args = append(args, productID)
		query += fmt.Sprintf(" AND product_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	defer rows.Close()

	var list []*model.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (r *cardRepo) CountAvailable(ctx context.Context, productID uint, now time.Time) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cards
		 WHERE product_id = $1 AND status = $2 AND (expires_at IS NULL OR expires_at > $3)`,
		productID, model.CardUnused, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count cards: %w", err)
	}
	return n, nil
}

func (r *cardRepo) Allocate(ctx context.Context, productID uint, now time.Time) (*model.Card, error) {
	// SKIP LOCKED keeps two concurrent deliveries for the same product from
	// ever selecting the same row, without blocking unrelated products.
	query := `
	SELECT ` + cardCols + ` FROM cards
	WHERE product_id = $1 AND status = $2 AND (expires_at IS NULL OR expires_at > $3)
	ORDER BY id
	LIMIT 1
	FOR UPDATE SKIP LOCKED
	`
	c, err := scanCard(r.q.QueryRowContext(ctx, query, productID, model.CardUnused, now))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %d: %w", productID, ErrNoCardAvailable)
	}
	if err != nil {
		return nil, fmt.Errorf("allocate card: %w", err)
	}
	return c, nil
}

func (r *cardRepo) MarkUsed(ctx context.Context, cardID, userID, orderID uint, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE cards SET status = $1, used_by = $2, order_id = $3, used_at = $4, updated_at = NOW()
		 WHERE id = $5 AND status = $6`,
		model.CardUsed, userID, orderID, at, cardID, model.CardUnused)
	if err != nil {
		return fmt.Errorf("mark card used: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("card %d: %w", cardID, ErrInvalidTransition)
	}
	return nil
}

func (r *cardRepo) SetStatus(ctx context.Context, cardID uint, from, to model.CardStatus) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE cards SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		to, cardID, from)
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("card %d %s->%s: %w", cardID, from, to, ErrInvalidTransition)
	}
	return nil
}

func (r *cardRepo) Delete(ctx context.Context, cardID uint) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM cards WHERE id = $1`, cardID)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("card %d: %w", cardID, ErrNotFound)
	}
	return nil
}

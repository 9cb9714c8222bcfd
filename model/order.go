package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
	OrderRefunded  OrderStatus = "refunded"
)

// CanTransitionTo reports whether to is a legal next state. Every transition
// site goes through this so illegal moves fail uniformly.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	switch s {
	case OrderPending:
		return to == OrderPaid || to == OrderCancelled
	case OrderPaid:
		return to == OrderDelivered || to == OrderCancelled
	case OrderDelivered:
		return to == OrderRefunded
	case OrderCancelled, OrderRefunded:
		return false
	}
	return false
}

type PaymentMethod string

const (
	MethodBalance PaymentMethod = "balance"
	MethodAlipay  PaymentMethod = "alipay"
	MethodWechat  PaymentMethod = "wechat"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodBalance, MethodAlipay, MethodWechat:
		return true
	}
	return false
}

// External reports whether settlement happens through an asynchronous
// provider callback rather than the internal balance ledger.
func (m PaymentMethod) External() bool {
	return m != MethodBalance
}

type Order struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	OrderNumber string `gorm:"size:50;uniqueIndex;not null" json:"order_number"`
	UserID      uint   `gorm:"index;not null" json:"user_id"`

	// Snapshot taken at creation; later product edits never change an order.
	ProductID    uint            `gorm:"index;not null" json:"product_id"`
	ProductName  string          `gorm:"size:200;not null" json:"product_name"`
	ProductPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"product_price"`

	Quantity      int             `gorm:"not null;default:1" json:"quantity"`
	TotalAmount   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	PaymentMethod PaymentMethod   `gorm:"size:20;not null" json:"payment_method"`
	Status        OrderStatus     `gorm:"size:20;index;not null;default:'pending'" json:"status"`

	DeliveryContent string     `gorm:"type:text" json:"delivery_content,omitempty"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty"`

	UserNote  string `gorm:"type:text" json:"user_note,omitempty"`
	AdminNote string `gorm:"type:text" json:"admin_note,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

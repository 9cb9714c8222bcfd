package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSuccess   PaymentStatus = "success"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Terminal reports whether the payment record can no longer change.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentSuccess, PaymentCancelled, PaymentRefunded:
		return true
	case PaymentPending, PaymentFailed:
		return false
	}
	return false
}

// Payment is the provider-facing settlement record, kept separate from the
// order so duplicate provider callbacks are detected independently of order
// state.
type Payment struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	UserID  uint `gorm:"index;not null" json:"user_id"`
	OrderID uint `gorm:"index;not null" json:"order_id"`

	PaymentMethod PaymentMethod   `gorm:"size:20;not null" json:"payment_method"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status        PaymentStatus   `gorm:"size:20;index;not null;default:'pending'" json:"status"`

	// TransactionID is the merchant-side id handed to the provider and echoed
	// back in callbacks; unique when present.
	TransactionID string `gorm:"size:100;uniqueIndex" json:"transaction_id,omitempty"`
	// PaymentData holds the raw provider payload as received, for audit.
	PaymentData string `gorm:"type:text" json:"payment_data,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

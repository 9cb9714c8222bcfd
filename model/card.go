package model

import "time"

type CardStatus string

const (
	CardUnused  CardStatus = "unused"
	CardUsed    CardStatus = "used"
	CardLocked  CardStatus = "locked"
	CardExpired CardStatus = "expired"
)

// Card is a single-use delivery secret scoped to one product. It moves from
// unused to used exactly once; used_by, order_id and used_at are set together
// in that same transition.
type Card struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	ProductID uint `gorm:"index;not null" json:"product_id"`

	EncryptedContent string `gorm:"type:text;not null" json:"-"`
	// CardSecret is the per-card key material mixed into the vault key, so one
	// leaked ciphertext never exposes another card.
	CardSecret string `gorm:"size:128;not null" json:"-"`

	Status  CardStatus `gorm:"size:20;index;not null;default:'unused'" json:"status"`
	UsedBy  *uint      `gorm:"index" json:"used_by,omitempty"`
	OrderID *uint      `gorm:"index" json:"order_id,omitempty"`
	UsedAt  *time.Time `json:"used_at,omitempty"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExpiredAt reports logical expiry: an unused card past its deadline is
// unusable even before its row is flipped to expired.
func (c *Card) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// Available reports whether the card can still be allocated to an order.
func (c *Card) Available(now time.Time) bool {
	return c.Status == CardUnused && !c.ExpiredAt(now)
}

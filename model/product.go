package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnlimitedStock is the sentinel meaning "never runs out"; delivery skips the
// stock decrement for it but still counts the sale.
const UnlimitedStock = -1

type Category struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"size:50;not null" json:"name"`
	Desc      string `gorm:"type:text" json:"desc"`
	SortOrder int    `gorm:"default:0" json:"sort_order"`
	IsActive  bool   `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Product struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Name       string          `gorm:"size:200;not null" json:"name"`
	Desc       string          `gorm:"type:text" json:"desc"`
	Price      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	CategoryID uint            `gorm:"index" json:"category_id"`

	Stock        int  `gorm:"not null;default:-1" json:"stock"`
	SoldCount    int  `gorm:"not null;default:0" json:"sold_count"`
	AutoDelivery bool `gorm:"not null;default:true" json:"auto_delivery"`
	IsActive     bool `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasStock is the optimistic check used at order creation. The authoritative
// check happens again at delivery time inside the fulfillment transaction.
func (p *Product) HasStock(quantity int) bool {
	return p.Stock == UnlimitedStock || p.Stock >= quantity
}

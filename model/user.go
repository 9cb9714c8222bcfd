package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	Username string          `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email    string          `gorm:"size:100;uniqueIndex" json:"email"`
	Balance  decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"balance"`
	IsAdmin  bool            `gorm:"not null;default:false" json:"is_admin"`
	IsActive bool            `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UsageEvent is one charge applied to a user record. Events are an append-only
// journal; deleting a user leaves them in place.
type UsageEvent struct {
	ID          uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	Username    string          `json:"username" gorm:"size:255;not null;index"`
	Model       string          `json:"model" gorm:"size:100;not null;index"`
	Cost        decimal.Decimal `json:"cost" gorm:"type:decimal(20,8);not null"`
	Tokens      int64           `json:"tokens" gorm:"not null"`
	TokensLeft  int64           `json:"tokens_left" gorm:"not null"`
	MonthToDate decimal.Decimal `json:"month_to_date" gorm:"type:decimal(20,8);not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"index"`
}

// BeforeCreate sets UUID before creating the record.
func (e *UsageEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

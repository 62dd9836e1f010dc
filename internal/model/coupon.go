package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Coupon grants tokens for one model and can be redeemed once.
type Coupon struct {
	ID         uuid.UUID      `json:"id" gorm:"type:char(36);primaryKey"`
	Code       string         `json:"code" gorm:"uniqueIndex;size:64;not null"`
	Model      string         `json:"model" gorm:"size:100;not null"`
	Tokens     int64          `json:"tokens" gorm:"not null"`
	RedeemedBy *string        `json:"redeemed_by,omitempty" gorm:"size:255;index"`
	RedeemedAt *time.Time     `json:"redeemed_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate sets UUID before creating the record.
func (c *Coupon) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Redeemed reports whether the coupon has been used.
func (c *Coupon) Redeemed() bool {
	return c.RedeemedBy != nil
}

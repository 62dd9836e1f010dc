package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"secretari/internal/errors"
	"secretari/internal/model"
)

// CouponRepository defines coupon persistence operations.
type CouponRepository interface {
	Create(ctx context.Context, coupon *model.Coupon) error
	FindByCode(ctx context.Context, code string) (*model.Coupon, error)
	// Redeem marks an unredeemed coupon as used by username and returns it.
	Redeem(ctx context.Context, code, username string) (*model.Coupon, error)
	// Release undoes a redemption whose credit could not be applied.
	Release(ctx context.Context, code string) error
	// Transaction methods
	WithTransaction(ctx context.Context, fn func(ctx context.Context, repo CouponRepository) error) error
}

type couponRepository struct {
	db *gorm.DB
}

// NewCouponRepository creates a new coupon repository.
func NewCouponRepository(db *gorm.DB) CouponRepository {
	return &couponRepository{db: db}
}

// Create creates a new coupon.
func (r *couponRepository) Create(ctx context.Context, coupon *model.Coupon) error {
	return r.db.WithContext(ctx).Create(coupon).Error
}

// FindByCode finds a coupon by its code.
func (r *couponRepository) FindByCode(ctx context.Context, code string) (*model.Coupon, error) {
	var coupon model.Coupon
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

// Redeem locks the coupon row, checks it is unused and marks it redeemed.
func (r *couponRepository) Redeem(ctx context.Context, code, username string) (*model.Coupon, error) {
	var coupon model.Coupon
	err := r.WithTransaction(ctx, func(ctx context.Context, repo CouponRepository) error {
		tx := repo.(*couponRepository).db.WithContext(ctx)
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ?", code).First(&coupon).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.ErrInvalidCoupon
			}
			return err
		}
		if coupon.Redeemed() {
			return errors.ErrInvalidCoupon
		}

		now := time.Now()
		res := tx.Model(&model.Coupon{}).
			Where("code = ? AND redeemed_by IS NULL", code).
			Updates(map[string]interface{}{"redeemed_by": username, "redeemed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.ErrInvalidCoupon
		}
		coupon.RedeemedBy = &username
		coupon.RedeemedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// Release clears the redemption of a coupon.
func (r *couponRepository) Release(ctx context.Context, code string) error {
	return r.db.WithContext(ctx).Model(&model.Coupon{}).
		Where("code = ?", code).
		Updates(map[string]interface{}{"redeemed_by": nil, "redeemed_at": nil}).Error
}

// WithTransaction executes a function within a database transaction.
func (r *couponRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo CouponRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &couponRepository{db: tx}
		return fn(ctx, txRepo)
	})
}

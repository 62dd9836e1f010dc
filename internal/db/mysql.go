package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"secretari/internal/model"
)

// NewMySQL returns a connected GORM DB instance.
func NewMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the usage journal and coupon tables.
// With reset set, both tables are dropped first.
func Migrate(db *gorm.DB, reset bool) error {
	if reset {
		if err := db.Migrator().DropTable(&model.UsageEvent{}, &model.Coupon{}); err != nil {
			return fmt.Errorf("drop tables: %w", err)
		}
	}
	if err := db.AutoMigrate(&model.UsageEvent{}, &model.Coupon{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

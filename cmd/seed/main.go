package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"secretari/internal/cache"
	"secretari/internal/config"
	"secretari/internal/db"
	"secretari/internal/errors"
	"secretari/internal/model"
	"secretari/internal/repository"
	"secretari/internal/service"
	"secretari/internal/store"
)

// CouponFile is the YAML layout read by the coupons command.
type CouponFile struct {
	Coupons []struct {
		Code   string `yaml:"code"`
		Model  string `yaml:"model"`
		Tokens int64  `yaml:"tokens"`
	} `yaml:"coupons"`
}

var rootCmd = &cobra.Command{
	Use:   "seed",
	Short: "Secretari seeding tool",
	Long:  "Creates admin accounts and imports coupons using the server's environment configuration",
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Create or promote an admin account",
	RunE:  seedAdmin,
}

var couponsCmd = &cobra.Command{
	Use:   "coupons",
	Short: "Import coupons from a YAML file",
	RunE:  seedCoupons,
}

var (
	username   string
	password   string
	couponPath string
)

func init() {
	adminCmd.Flags().StringVarP(&username, "username", "u", "", "Username (required)")
	adminCmd.Flags().StringVarP(&password, "password", "p", "", "Password (required)")
	adminCmd.MarkFlagRequired("username")
	adminCmd.MarkFlagRequired("password")

	couponsCmd.Flags().StringVarP(&couponPath, "file", "f", "coupons.yaml", "Coupon file path")

	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(couponsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newAccountService wires the account service the same way the server does,
// without the usage journal.
func newAccountService(ctx context.Context) (service.AccountService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Store.Backend == "memory" {
		return nil, nil, fmt.Errorf("STORE_BACKEND=memory cannot be seeded from a separate process")
	}

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(gormDB, false); err != nil {
		return nil, nil, err
	}
	log.Println("Connected to database")

	cacheClient := cache.New(cache.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPass,
		DB:           cfg.RedisDB,
		DialTimeout:  cfg.Store.DialTimeout,
		ReadTimeout:  cfg.Store.ReadTimeout,
		WriteTimeout: cfg.Store.WriteTimeout,
	})

	recordStore := store.NewRetrying(store.NewRedisStore(cacheClient.Redis(), cfg.Store.Prefix), store.RetryConfig{
		CallTimeout: cfg.Store.CallTimeout,
		MaxRetries:  cfg.Store.MaxRetries,
		Base:        cfg.Store.RetryBase,
	})

	session := store.NewSession(recordStore, cfg.Store.AppKey, cfg.Store.IdleTimeout)
	if err := session.Login(ctx); err != nil {
		return nil, nil, fmt.Errorf("record store login: %w", err)
	}

	svc := service.NewAccountService(
		repository.NewUserRecordRepository(recordStore, session),
		repository.NewUsageEventRepository(gormDB),
		repository.NewCouponRepository(gormDB),
		nil,
		session,
		cfg.Catalog,
	)
	cleanup := func() {
		cacheClient.Close()
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return svc, cleanup, nil
}

func seedAdmin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	accounts, cleanup, err := newAccountService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	_, err = accounts.Register(ctx, service.RegisterInput{Username: username, Password: password})
	switch {
	case errors.Is(err, errors.ErrConflict):
		log.Printf("User %s already registered, promoting", username)
	case err != nil:
		return fmt.Errorf("register %s: %w", username, err)
	default:
		log.Printf("Registered %s", username)
	}

	role := model.RoleAdmin
	rec, err := accounts.Update(ctx, username, service.UpdateInput{Role: &role}, true)
	if err != nil {
		return fmt.Errorf("promote %s: %w", username, err)
	}

	log.Printf("Admin ready: %s (container %s)", rec.Username, rec.ContainerID)
	return nil
}

func seedCoupons(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(couponPath)
	if err != nil {
		return fmt.Errorf("read coupon file: %w", err)
	}

	var file CouponFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse coupon file: %w", err)
	}
	log.Printf("Read %d coupons from %s", len(file.Coupons), couponPath)

	ctx := cmd.Context()
	accounts, cleanup, err := newAccountService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	coupons := make([]model.Coupon, 0, len(file.Coupons))
	for _, c := range file.Coupons {
		coupons = append(coupons, model.Coupon{Code: c.Code, Model: c.Model, Tokens: c.Tokens})
	}

	count, err := accounts.IssueCoupons(ctx, coupons)
	if err != nil {
		return fmt.Errorf("import coupons (%d created): %w", count, err)
	}

	log.Printf("Seed completed successfully!")
	log.Printf("  - Coupons created: %d", count)
	return nil
}

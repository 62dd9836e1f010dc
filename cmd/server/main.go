package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "secretari/docs" // swagger docs

	"github.com/labstack/echo/v4"

	"secretari/internal/auth"
	"secretari/internal/cache"
	"secretari/internal/chat"
	"secretari/internal/config"
	"secretari/internal/db"
	"secretari/internal/handler"
	"secretari/internal/repository"
	"secretari/internal/router"
	"secretari/internal/service"
	"secretari/internal/store"
)

// @title Secretari API
// @version 1.0
// @description Chat assistant backend with per-user token accounting, coupons and JWT authentication.
// @host localhost:8080
// @BasePath /secretari
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database init: %v", err)
	}
	if cfg.ResetDB {
		log.Println("RESET_DB=true detected, dropping usage and coupon tables...")
	}
	if err := db.Migrate(gormDB, cfg.ResetDB); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	cacheClient := cache.New(cache.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPass,
		DB:           cfg.RedisDB,
		DialTimeout:  cfg.Store.DialTimeout,
		ReadTimeout:  cfg.Store.ReadTimeout,
		WriteTimeout: cfg.Store.WriteTimeout,
	})
	defer cacheClient.Close()

	recordStore := newRecordStore(cfg, cacheClient)
	session := store.NewSession(recordStore, cfg.Store.AppKey, cfg.Store.IdleTimeout)
	if err := session.Login(ctx); err != nil {
		log.Fatalf("record store login: %v", err)
	}
	log.Printf("Logged into %s record store, root container %s", cfg.Store.Backend, session.Root())

	// Initialize repositories
	recordRepo := repository.NewUserRecordRepository(recordStore, session)
	usageRepo := repository.NewUsageEventRepository(gormDB)
	couponRepo := repository.NewCouponRepository(gormDB)

	journal := service.NewJournal(usageRepo)
	defer journal.Close()

	// Initialize auth components
	jwtService := auth.NewJWTService(cfg.JWTSecret)
	tokenStore := auth.NewTokenStore(cacheClient)

	// Initialize services
	accountService := service.NewAccountService(recordRepo, usageRepo, couponRepo, journal, session, cfg.Catalog)
	authService := service.NewAuthService(accountService, jwtService, tokenStore)
	chatService := chat.NewService(accountService, chat.EchoCompleter{Tokens: cfg.EchoTokens, Cost: cfg.EchoCost}, cfg.Catalog)

	e := echo.New()
	e.HideBanner = true

	// Register routes
	router.Register(e, cfg, router.Handlers{
		Auth:    handler.NewAuthHandler(authService),
		User:    handler.NewUserHandler(accountService),
		Account: handler.NewAccountHandler(accountService),
		Coupon:  handler.NewCouponHandler(accountService),
		Product: handler.NewProductHandler(cfg.ProductIDs),
		Chat:    handler.NewChatHandler(chatService),
	}, authService)

	log.Printf("Swagger documentation available at: %s", swaggerURL(cfg.SwaggerHost, cfg.ServerPort))

	go func() {
		addr := ":" + cfg.ServerPort
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}

// newRecordStore picks the record store backend. Redis calls are retried
// with backoff and bounded by a per-call timeout.
func newRecordStore(cfg *config.Config, cacheClient *cache.Client) store.Store {
	if cfg.Store.Backend == "memory" {
		log.Println("STORE_BACKEND=memory, user records will not survive a restart")
		return store.NewMemoryStore()
	}
	return store.NewRetrying(store.NewRedisStore(cacheClient.Redis(), cfg.Store.Prefix), store.RetryConfig{
		CallTimeout: cfg.Store.CallTimeout,
		MaxRetries:  cfg.Store.MaxRetries,
		Base:        cfg.Store.RetryBase,
	})
}

func swaggerURL(host, port string) string {
	if host == "" {
		return "http://localhost:" + port + "/swagger/index.html"
	}
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host + "/swagger/index.html"
	}
	return "http://" + host + "/swagger/index.html"
}

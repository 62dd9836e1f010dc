package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort  string
	BaseRoute   string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	JWTSecret   string
	SwaggerHost string
	ResetDB     bool

	Store   StoreConfig
	Catalog *Catalog

	// ProductIDs is the raw JSON list of in-app purchase product ids served to iOS clients.
	ProductIDs string

	EchoTokens int64
	EchoCost   decimal.Decimal
}

// StoreConfig configures the remote record store and its session.
type StoreConfig struct {
	Backend      string
	Prefix       string
	AppKey       string
	CallTimeout  time.Duration
	MaxRetries   uint64
	RetryBase    time.Duration
	IdleTimeout  time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Load builds Config from environment with sensible defaults.
func Load() (*Config, error) {
	catalog := DefaultCatalog()
	if path := os.Getenv("MODELS_FILE"); path != "" {
		c, err := LoadCatalog(path)
		if err != nil {
			return nil, err
		}
		catalog = c
	}

	echoCost, err := decimal.NewFromString(getEnv("ECHO_COST", "0.01"))
	if err != nil {
		return nil, fmt.Errorf("parse ECHO_COST: %w", err)
	}

	return &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		BaseRoute:   strings.TrimRight(getEnv("BASE_ROUTE", "/secretari"), "/"),
		MySQLDSN:    getEnv("MYSQL_DSN", "user:password@tcp(localhost:3306)/secretari?charset=utf8mb4&parseTime=True&loc=Local"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:     getEnvInt("REDIS_DB", 0),
		RedisPass:   os.Getenv("REDIS_PASSWORD"),
		JWTSecret:   getEnv("JWT_SECRET", "change-me"),
		SwaggerHost: os.Getenv("SWAGGER_HOST"),
		ResetDB:     os.Getenv("RESET_DB") == "true",
		Store: StoreConfig{
			Backend:      getEnv("STORE_BACKEND", "redis"),
			Prefix:       getEnv("STORE_PREFIX", "secretari"),
			AppKey:       getEnv("STORE_APP_KEY", "AJCHAT_APP_USER_ACCOUNT_KEY"),
			CallTimeout:  getEnvDuration("STORE_CALL_TIMEOUT", 3*time.Second),
			MaxRetries:   uint64(getEnvInt("STORE_MAX_RETRIES", 3)),
			RetryBase:    getEnvDuration("STORE_RETRY_BASE", 100*time.Millisecond),
			IdleTimeout:  getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Catalog:    catalog,
		ProductIDs: getEnv("PRODUCT_IDS_IOS", "[]"),
		EchoTokens: int64(getEnvInt("ECHO_TOKENS", 100)),
		EchoCost:   echoCost,
	}, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

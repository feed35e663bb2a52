package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds everything the service reads from the environment.
type Config struct {
	Port string `validate:"required,numeric"`

	APIKey         string `validate:"required"`
	AuthToken      string `validate:"required"`
	PrivateSalt    string
	GatewayBaseURL string `validate:"required,url"`

	Amount  decimal.Decimal
	Purpose string `validate:"required"`
	Webhook string `validate:"required,url"`

	StoreDriver    string `validate:"oneof=postgres sqlite memory"`
	DBUsername     string `validate:"required_if=StoreDriver postgres"`
	DBPassword     string
	DBHost         string `validate:"required_if=StoreDriver postgres"`
	DBPort         string `validate:"omitempty,numeric"`
	DBName         string `validate:"required_if=StoreDriver postgres"`
	DBSSLMode      string
	DBMaxOpenConns int `validate:"gte=1"`
	SQLitePath     string

	RedisAddr  string
	PendingTTL time.Duration `validate:"gt=0"`

	DispatchMaxInFlight int `validate:"gte=1"`
}

// Load reads configuration from the environment, after loading a .env file
// when one is present.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using process environment")
	}

	amount, err := decimal.NewFromString(getenv("AMOUNT", "0"))
	if err != nil {
		return Config{}, fmt.Errorf("parsing AMOUNT: %w", err)
	}

	cfg := Config{
		Port:                getenv("PORT", "8080"),
		APIKey:              strings.TrimSpace(getenv("API_KEY", "")),
		AuthToken:           strings.TrimSpace(getenv("AUTH_TOKEN", "")),
		PrivateSalt:         strings.TrimSpace(getenv("PRIVATE_SALT", "")),
		GatewayBaseURL:      strings.TrimRight(getenv("INSTAMOJO_BASE_URL", "https://www.instamojo.com/api/1.1"), "/"),
		Amount:              amount,
		Purpose:             getenv("PURPOSE", ""),
		Webhook:             getenv("WEBHOOK", ""),
		StoreDriver:         strings.ToLower(getenv("STORE_DRIVER", StoreDriverPostgres)),
		DBUsername:          getenv("DB_USERNAME", ""),
		DBPassword:          getenv("DB_PASSWORD", ""),
		DBHost:              getenv("DB_HOST", ""),
		DBPort:              getenv("DB_PORT", "5432"),
		DBName:              getenv("DB_NAME", "apnadb"),
		DBSSLMode:           getenv("DB_SSLMODE", "require"),
		DBMaxOpenConns:      getenvInt("DB_MAX_OPEN_CONNS", 10),
		SQLitePath:          getenv("SQLITE_PATH", "apna.db"),
		RedisAddr:           getenv("REDIS_ADDR", ""),
		PendingTTL:          getenvDuration("PENDING_TTL", 24*time.Hour),
		DispatchMaxInFlight: getenvInt("DISPATCH_MAX_IN_FLIGHT", 64),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !c.Amount.IsPositive() {
		return fmt.Errorf("invalid configuration: AMOUNT must be positive, got %s", c.Amount)
	}
	return nil
}

// PostgresDSN assembles the connection string from the configured credentials.
func (c Config) PostgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUsername, c.DBPassword),
		Host:   c.DBHost + ":" + c.DBPort,
		Path:   "/" + c.DBName,
	}
	q := url.Values{}
	if c.DBSSLMode != "" {
		q.Set("sslmode", c.DBSSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", v)
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", v)
		return fallback
	}
	return d
}

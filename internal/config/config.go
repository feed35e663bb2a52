package config

import "time"

const (
	// Gateway HTTP client timeout; the gateway call sits on the request path
	GatewayTimeout = 10 * time.Second

	// Circuit breaker opens after this many consecutive gateway failures
	GatewayBreakerFailures = 5
	GatewayBreakerCooldown = 30 * time.Second

	ShutdownTimeout = 10 * time.Second

	// Gateway status that completes an intent
	StatusCredit = "Credit"

	// Record fields used as keys
	FieldUniqueCode       = "UniqueCode"
	FieldPaymentRequestID = "id"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
)

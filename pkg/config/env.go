package config

const EnvPrefix = "CRAFTSTORE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv        = "CRAFTSTORE_APP_ENV"
	EnvPort          = "CRAFTSTORE_APP_PORT"
	EnvPublicBaseURL = "CRAFTSTORE_PUBLIC_BASE_URL"
	EnvLogLevel      = "CRAFTSTORE_LOG_LEVEL"
	EnvLogWarnStack  = "CRAFTSTORE_LOG_WARN_STACK"

	EnvDBDSN      = "CRAFTSTORE_DB_DSN"
	EnvDBHost     = "CRAFTSTORE_DB_HOST"
	EnvDBPort     = "CRAFTSTORE_DB_PORT"
	EnvDBUser     = "CRAFTSTORE_DB_USER"
	EnvDBPassword = "CRAFTSTORE_DB_PASSWORD"
	EnvDBName     = "CRAFTSTORE_DB_NAME"
	EnvDBSSLMode  = "CRAFTSTORE_DB_SSLMODE"

	EnvRedisURL            = "CRAFTSTORE_REDIS_URL"
	EnvRedisIdempotencyTTL = "CRAFTSTORE_REDIS_IDEMPOTENCY_TTL"

	EnvJWTSecret  = "CRAFTSTORE_JWT_SECRET"
	EnvJWTIssuer  = "CRAFTSTORE_JWT_ISSUER"
	EnvJWTExpMins = "CRAFTSTORE_JWT_EXPIRATION_MINUTES"

	EnvUseSQLite   = "CRAFTSTORE_USE_SQLITE"
	EnvAutoMigrate = "CRAFTSTORE_AUTO_MIGRATE"

	EnvStripeAPIKey           = "CRAFTSTORE_STRIPE_API_KEY"
	EnvStripeSecret           = "CRAFTSTORE_STRIPE_SECRET"
	EnvStripeEnv              = "CRAFTSTORE_STRIPE_ENV"
	EnvStripeAllowedCountries = "CRAFTSTORE_STRIPE_ALLOWED_COUNTRIES"

	EnvCheckoutSuccessPath    = "CRAFTSTORE_CHECKOUT_SUCCESS_PATH"
	EnvCheckoutCancelPath     = "CRAFTSTORE_CHECKOUT_CANCEL_PATH"
	EnvCheckoutHandoffTTL     = "CRAFTSTORE_CHECKOUT_HANDOFF_TTL"
	EnvCheckoutCartTTL        = "CRAFTSTORE_CHECKOUT_CART_TTL"
	EnvCheckoutRetryAttempts  = "CRAFTSTORE_CHECKOUT_RETRY_ATTEMPTS"
	EnvCheckoutRetryBaseDelay = "CRAFTSTORE_CHECKOUT_RETRY_BASE_DELAY"
	EnvCheckoutPaymentRate    = "CRAFTSTORE_CHECKOUT_PAYMENT_RATE_LIMIT"
	EnvCheckoutPaymentWindow  = "CRAFTSTORE_CHECKOUT_PAYMENT_RATE_WINDOW"

	EnvSweepInterval  = "CRAFTSTORE_RECONCILE_SWEEP_INTERVAL"
	EnvSweepMinAge    = "CRAFTSTORE_RECONCILE_SWEEP_MIN_AGE"
	EnvSweepBatchSize = "CRAFTSTORE_RECONCILE_SWEEP_BATCH_SIZE"

	EnvCORSAllowedOrigins = "CRAFTSTORE_CORS_ALLOWED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

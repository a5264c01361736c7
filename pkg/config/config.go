package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App            AppConfig
	DB             DBConfig
	Redis          RedisConfig
	JWT            JWTConfig
	FeatureFlags   FeatureFlagsConfig
	Stripe         StripeConfig
	Checkout       CheckoutConfig
	Reconciliation ReconciliationConfig
	CORS           CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env           string `envconfig:"CRAFTSTORE_APP_ENV" required:"true"`
	Port          string `envconfig:"CRAFTSTORE_APP_PORT" required:"true"`
	PublicBaseURL string `envconfig:"CRAFTSTORE_PUBLIC_BASE_URL" default:"http://localhost:3000"`
	LogLevel      string `envconfig:"CRAFTSTORE_LOG_LEVEL" default:"info"`
	LogWarnStack  bool   `envconfig:"CRAFTSTORE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CRAFTSTORE_DB_DSN"`
	Driver string `envconfig:"CRAFTSTORE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CRAFTSTORE_DB_HOST"`
	LegacyPort     int    `envconfig:"CRAFTSTORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CRAFTSTORE_DB_USER"`
	LegacyPassword string `envconfig:"CRAFTSTORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"CRAFTSTORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"CRAFTSTORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CRAFTSTORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CRAFTSTORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CRAFTSTORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CRAFTSTORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL            string        `envconfig:"CRAFTSTORE_REDIS_URL" required:"true"`
	Address        string        `envconfig:"CRAFTSTORE_REDIS_ADDR"`
	Password       string        `envconfig:"CRAFTSTORE_REDIS_PASSWORD"`
	DB             int           `envconfig:"CRAFTSTORE_REDIS_DB" default:"0"`
	PoolSize       int           `envconfig:"CRAFTSTORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns   int           `envconfig:"CRAFTSTORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout    time.Duration `envconfig:"CRAFTSTORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout    time.Duration `envconfig:"CRAFTSTORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout   time.Duration `envconfig:"CRAFTSTORE_REDIS_WRITE_TIMEOUT" default:"5s"`
	IdempotencyTTL time.Duration `envconfig:"CRAFTSTORE_REDIS_IDEMPOTENCY_TTL" default:"24h"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CRAFTSTORE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CRAFTSTORE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CRAFTSTORE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CRAFTSTORE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CRAFTSTORE_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey           string   `envconfig:"CRAFTSTORE_STRIPE_API_KEY"`
	Secret           string   `envconfig:"CRAFTSTORE_STRIPE_SECRET"`
	Env              string   `envconfig:"CRAFTSTORE_STRIPE_ENV" default:"test"`
	AllowedCountries []string `envconfig:"CRAFTSTORE_STRIPE_ALLOWED_COUNTRIES" default:"US"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Configured reports whether processor credentials are present at all.
func (s StripeConfig) Configured() bool {
	return strings.TrimSpace(s.APIKey) != "" && strings.TrimSpace(s.Secret) != ""
}

type CheckoutConfig struct {
	SuccessPath    string        `envconfig:"CRAFTSTORE_CHECKOUT_SUCCESS_PATH" default:"/payment-success"`
	CancelPath     string        `envconfig:"CRAFTSTORE_CHECKOUT_CANCEL_PATH" default:"/payment-failure"`
	HandoffTTL     time.Duration `envconfig:"CRAFTSTORE_CHECKOUT_HANDOFF_TTL" default:"24h"`
	CartTTL        time.Duration `envconfig:"CRAFTSTORE_CHECKOUT_CART_TTL" default:"720h"`
	RetryAttempts  int           `envconfig:"CRAFTSTORE_CHECKOUT_RETRY_ATTEMPTS" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"CRAFTSTORE_CHECKOUT_RETRY_BASE_DELAY" default:"100ms"`

	// PaymentRateLimit caps session-opening requests per caller per window; 0 disables it.
	PaymentRateLimit  int           `envconfig:"CRAFTSTORE_CHECKOUT_PAYMENT_RATE_LIMIT" default:"10"`
	PaymentRateWindow time.Duration `envconfig:"CRAFTSTORE_CHECKOUT_PAYMENT_RATE_WINDOW" default:"1m"`
}

func (c CheckoutConfig) validate() error {
	if !strings.HasPrefix(c.SuccessPath, "/") || !strings.HasPrefix(c.CancelPath, "/") {
		return fmt.Errorf("%s and %s must be absolute paths", EnvCheckoutSuccessPath, EnvCheckoutCancelPath)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("%s must not be negative", EnvCheckoutRetryAttempts)
	}
	return nil
}

type ReconciliationConfig struct {
	SweepInterval  time.Duration `envconfig:"CRAFTSTORE_RECONCILE_SWEEP_INTERVAL" default:"5m"`
	SweepMinAge    time.Duration `envconfig:"CRAFTSTORE_RECONCILE_SWEEP_MIN_AGE" default:"30m"`
	SweepBatchSize int           `envconfig:"CRAFTSTORE_RECONCILE_SWEEP_BATCH_SIZE" default:"50"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CRAFTSTORE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.DSN = "file:craftstore.db?cache=shared"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	PayFast      PayFastConfig
	Platform     PlatformConfig
	Courier      CourierConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VELDMART_APP_ENV" required:"true"`
	Port         string `envconfig:"VELDMART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VELDMART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VELDMART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"VELDMART_DB_DSN"`
	Driver string `envconfig:"VELDMART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VELDMART_DB_HOST"`
	LegacyPort     int    `envconfig:"VELDMART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VELDMART_DB_USER"`
	LegacyPassword string `envconfig:"VELDMART_DB_PASSWORD"`
	LegacyName     string `envconfig:"VELDMART_DB_NAME"`
	LegacySSLMode  string `envconfig:"VELDMART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VELDMART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VELDMART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VELDMART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VELDMART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VELDMART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VELDMART_REDIS_ADDR"`
	Password     string        `envconfig:"VELDMART_REDIS_PASSWORD"`
	DB           int           `envconfig:"VELDMART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VELDMART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VELDMART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VELDMART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VELDMART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VELDMART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"VELDMART_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"VELDMART_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"VELDMART_JWT_EXPIRATION_MINUTES" default:"60"`
}

// PayFastConfig carries merchant credentials and the ITN verification knobs.
type PayFastConfig struct {
	MerchantID  string   `envconfig:"VELDMART_PAYFAST_MERCHANT_ID" required:"true"`
	MerchantKey string   `envconfig:"VELDMART_PAYFAST_MERCHANT_KEY" required:"true"`
	Passphrase  string   `envconfig:"VELDMART_PAYFAST_PASSPHRASE"`
	ProcessURL  string   `envconfig:"VELDMART_PAYFAST_PROCESS_URL" default:"https://www.payfast.co.za/eng/process"`
	ReturnURL   string   `envconfig:"VELDMART_PAYFAST_RETURN_URL" required:"true"`
	CancelURL   string   `envconfig:"VELDMART_PAYFAST_CANCEL_URL" required:"true"`
	NotifyURL   string   `envconfig:"VELDMART_PAYFAST_NOTIFY_URL" required:"true"`
	AllowedIPs  []string `envconfig:"VELDMART_PAYFAST_ALLOWED_IPS"`
	SkipIPCheck bool     `envconfig:"VELDMART_PAYFAST_SKIP_IP_CHECK" default:"false"`
}

// PlatformConfig holds marketplace money rules.
type PlatformConfig struct {
	FeeRate                    float64 `envconfig:"VELDMART_PLATFORM_FEE_RATE" default:"0.10"`
	TaxRate                    float64 `envconfig:"VELDMART_PLATFORM_TAX_RATE" default:"0.15"`
	FreeShippingThresholdCents int     `envconfig:"VELDMART_FREE_SHIPPING_THRESHOLD_CENTS" default:"50000"`
	FlatShippingFeeCents       int     `envconfig:"VELDMART_FLAT_SHIPPING_FEE_CENTS" default:"5000"`
	MinPayoutCents             int     `envconfig:"VELDMART_MIN_PAYOUT_CENTS" default:"10000"`
	Currency                   string  `envconfig:"VELDMART_CURRENCY" default:"ZAR"`
}

type CourierConfig struct {
	CourierGuyBaseURL string        `envconfig:"VELDMART_COURIER_GUY_BASE_URL" default:"https://api.thecourierguy.co.za"`
	CourierGuyAPIKey  string        `envconfig:"VELDMART_COURIER_GUY_API_KEY"`
	FastwayBaseURL    string        `envconfig:"VELDMART_FASTWAY_BASE_URL" default:"https://api.fastway.co.za"`
	FastwayAPIKey     string        `envconfig:"VELDMART_FASTWAY_API_KEY"`
	PudoBaseURL       string        `envconfig:"VELDMART_PUDO_BASE_URL" default:"https://api.pudo.co.za"`
	PudoAPIKey        string        `envconfig:"VELDMART_PUDO_API_KEY"`
	RequestTimeout    time.Duration `envconfig:"VELDMART_COURIER_REQUEST_TIMEOUT" default:"15s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"VELDMART_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"VELDMART_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"VELDMART_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"VELDMART_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"VELDMART_PUBSUB_ORDERS_TOPIC" default:"vm-order-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"VELDMART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"VELDMART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"VELDMART_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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

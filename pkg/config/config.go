package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	Provider    ProviderConfig
	Marketplace MarketplaceConfig
	Webhook     WebhookConfig
	RateLimit   RateLimitConfig
	Idempotency IdempotencyConfig
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
	Env          string   `envconfig:"VOUCHER_APP_ENV" required:"true"`
	Port         string   `envconfig:"VOUCHER_APP_PORT" default:"3000"`
	LogLevel     string   `envconfig:"VOUCHER_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"VOUCHER_LOG_WARN_STACK" default:"false"`
	StaticDir    string   `envconfig:"VOUCHER_STATIC_DIR"`
	CORSOrigins  []string `envconfig:"VOUCHER_CORS_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	Driver      string `envconfig:"VOUCHER_DB_DRIVER" default:"sqlite"`
	DSN         string `envconfig:"VOUCHER_DB_DSN"`
	AutoMigrate bool   `envconfig:"VOUCHER_AUTO_MIGRATE" default:"true"`

	MaxOpenConns    int           `envconfig:"VOUCHER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VOUCHER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VOUCHER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VOUCHER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the embedded sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

// RedisConfig is optional. An empty URL disables idempotency replay and rate limiting.
type RedisConfig struct {
	URL          string        `envconfig:"VOUCHER_REDIS_URL"`
	PoolSize     int           `envconfig:"VOUCHER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VOUCHER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VOUCHER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VOUCHER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VOUCHER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

type ProviderConfig struct {
	BaseURL string        `envconfig:"VOUCHER_PROVIDER_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"VOUCHER_PROVIDER_API_KEY" required:"true"`
	Country string        `envconfig:"VOUCHER_PROVIDER_COUNTRY" default:"6"`
	Timeout time.Duration `envconfig:"VOUCHER_PROVIDER_TIMEOUT" default:"10s"`
}

type MarketplaceConfig struct {
	BaseURL string        `envconfig:"VOUCHER_MARKETPLACE_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"VOUCHER_MARKETPLACE_API_KEY"`
	Timeout time.Duration `envconfig:"VOUCHER_MARKETPLACE_TIMEOUT" default:"10s"`
}

type WebhookConfig struct {
	OTPSecret string `envconfig:"VOUCHER_OTP_WEBHOOK_SECRET" required:"true"`
	MaxBodyKB int    `envconfig:"VOUCHER_WEBHOOK_MAX_BODY_KB" default:"1024"`
}

type RateLimitConfig struct {
	StartWindow     time.Duration `envconfig:"VOUCHER_RATE_LIMIT_START_WINDOW" default:"1m"`
	StartIPLimit    int           `envconfig:"VOUCHER_RATE_LIMIT_START_IP_LIMIT" default:"20"`
	StartOrderLimit int           `envconfig:"VOUCHER_RATE_LIMIT_START_ORDER_LIMIT" default:"5"`
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"VOUCHER_IDEMPOTENCY_TTL" default:"24h"`
}

func (db *DBConfig) ensureDSN() error {
	switch strings.ToLower(strings.TrimSpace(db.Driver)) {
	case "", DriverSQLite:
		db.Driver = DriverSQLite
		if strings.TrimSpace(db.DSN) == "" {
			db.DSN = DefaultSQLiteDSN
		}
		return nil
	case DriverPostgres:
		db.Driver = DriverPostgres
		if strings.TrimSpace(db.DSN) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DriverPostgres)
		}
		return nil
	default:
		return fmt.Errorf("unsupported %s %q", EnvDBDriver, db.Driver)
	}
}

package config

const (
	EnvPrefix = "VOUCHER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DefaultSQLiteDSN = "data.sqlite"
)

const (
	EnvAppEnv             = "VOUCHER_APP_ENV"
	EnvPort               = "VOUCHER_APP_PORT"
	EnvDBDriver           = "VOUCHER_DB_DRIVER"
	EnvDBDSN              = "VOUCHER_DB_DSN"
	EnvRedisURL           = "VOUCHER_REDIS_URL"
	EnvProviderBaseURL    = "VOUCHER_PROVIDER_BASE_URL"
	EnvProviderAPIKey     = "VOUCHER_PROVIDER_API_KEY"
	EnvProviderCountry    = "VOUCHER_PROVIDER_COUNTRY"
	EnvMarketplaceBaseURL = "VOUCHER_MARKETPLACE_BASE_URL"
	EnvOTPWebhookSecret   = "VOUCHER_OTP_WEBHOOK_SECRET"
	EnvCORSOrigins        = "VOUCHER_CORS_ORIGINS"
)

package config

// EnvPrefix is passed to envconfig; individual fields carry explicit names.
const EnvPrefix = "VELDMART"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "VELDMART_APP_ENV"
	EnvPort     = "VELDMART_APP_PORT"
	EnvDBDSN    = "VELDMART_DB_DSN"
	EnvDBHost   = "VELDMART_DB_HOST"
	EnvDBUser   = "VELDMART_DB_USER"
	EnvDBName   = "VELDMART_DB_NAME"
	EnvRedisURL = "VELDMART_REDIS_URL"

	EnvJWTSecret  = "VELDMART_JWT_SECRET"
	EnvJWTIssuer  = "VELDMART_JWT_ISSUER"
	EnvJWTExpMins = "VELDMART_JWT_EXPIRATION_MINUTES"

	EnvPayFastMerchantID  = "VELDMART_PAYFAST_MERCHANT_ID"
	EnvPayFastMerchantKey = "VELDMART_PAYFAST_MERCHANT_KEY"
	EnvPayFastPassphrase  = "VELDMART_PAYFAST_PASSPHRASE"
	EnvPayFastReturnURL   = "VELDMART_PAYFAST_RETURN_URL"
	EnvPayFastCancelURL   = "VELDMART_PAYFAST_CANCEL_URL"
	EnvPayFastNotifyURL   = "VELDMART_PAYFAST_NOTIFY_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

package config

const (
	EnvPrefix = "GIFTDROP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "GIFTDROP_APP_ENV"
	EnvPort     = "GIFTDROP_APP_PORT"
	EnvLogLevel = "GIFTDROP_LOG_LEVEL"

	EnvDBDSN  = "GIFTDROP_DB_DSN"
	EnvDBHost = "GIFTDROP_DB_HOST"
	EnvDBUser = "GIFTDROP_DB_USER"
	EnvDBName = "GIFTDROP_DB_NAME"

	EnvRedisURL = "GIFTDROP_REDIS_URL"

	EnvCryptoPayAPIToken    = "GIFTDROP_CRYPTO_PAY_API_TOKEN"
	EnvCryptoPayWebhookPath = "GIFTDROP_CRYPTO_PAY_WEBHOOK_PATH"
	EnvCryptoPayTimeout     = "GIFTDROP_CRYPTO_PAY_TIMEOUT"

	EnvTelegramBotToken = "GIFTDROP_TELEGRAM_BOT_TOKEN"
	EnvTelegramAdminIDs = "GIFTDROP_TELEGRAM_ADMIN_IDS"

	EnvReconcilerInterval  = "GIFTDROP_RECONCILER_INTERVAL"
	EnvReconcilerBatchSize = "GIFTDROP_RECONCILER_BATCH_SIZE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	CryptoPay    CryptoPayConfig
	Telegram     TelegramConfig
	Reconciler   ReconcilerConfig
	FeatureFlags FeatureFlagsConfig
	Outbox       OutboxConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Telegram.parseAdminIDs(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GIFTDROP_APP_ENV" required:"true"`
	Port         string `envconfig:"GIFTDROP_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"GIFTDROP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GIFTDROP_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"GIFTDROP_LOG_FORMAT" default:"json"`
	PublicURL    string `envconfig:"GIFTDROP_PUBLIC_URL"`
	CORSOrigins  string `envconfig:"GIFTDROP_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"GIFTDROP_DB_DSN"`
	Driver string `envconfig:"GIFTDROP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GIFTDROP_DB_HOST"`
	LegacyPort     int    `envconfig:"GIFTDROP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GIFTDROP_DB_USER"`
	LegacyPassword string `envconfig:"GIFTDROP_DB_PASSWORD"`
	LegacyName     string `envconfig:"GIFTDROP_DB_NAME"`
	LegacySSLMode  string `envconfig:"GIFTDROP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GIFTDROP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GIFTDROP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GIFTDROP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GIFTDROP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL                    string        `envconfig:"GIFTDROP_REDIS_URL" required:"true"`
	Address                string        `envconfig:"GIFTDROP_REDIS_ADDR"`
	Password               string        `envconfig:"GIFTDROP_REDIS_PASSWORD"`
	DB                     int           `envconfig:"GIFTDROP_REDIS_DB" default:"0"`
	PoolSize               int           `envconfig:"GIFTDROP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns           int           `envconfig:"GIFTDROP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout            time.Duration `envconfig:"GIFTDROP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout            time.Duration `envconfig:"GIFTDROP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout           time.Duration `envconfig:"GIFTDROP_REDIS_WRITE_TIMEOUT" default:"5s"`
	IdempotencyTTL         time.Duration `envconfig:"GIFTDROP_IDEMPOTENCY_TTL" default:"24h"`
	IdempotencyInFlightTTL time.Duration `envconfig:"GIFTDROP_IDEMPOTENCY_IN_FLIGHT_TTL" default:"30s"`
}

// CryptoPayConfig holds the payment gateway credentials and invoice knobs.
type CryptoPayConfig struct {
	APIToken        string        `envconfig:"GIFTDROP_CRYPTO_PAY_API_TOKEN" required:"true"`
	BaseURL         string        `envconfig:"GIFTDROP_CRYPTO_PAY_BASE_URL" default:"https://pay.crypt.bot/api"`
	WebhookPath     string        `envconfig:"GIFTDROP_CRYPTO_PAY_WEBHOOK_PATH" required:"true"`
	VerifySignature bool          `envconfig:"GIFTDROP_CRYPTO_PAY_VERIFY_SIGNATURE" default:"true"`
	Timeout         time.Duration `envconfig:"GIFTDROP_CRYPTO_PAY_TIMEOUT" default:"10s"`
	InvoiceExpiry   time.Duration `envconfig:"GIFTDROP_CRYPTO_PAY_INVOICE_EXPIRY" default:"30s"`
}

type TelegramConfig struct {
	BotToken        string        `envconfig:"GIFTDROP_TELEGRAM_BOT_TOKEN" required:"true"`
	BotName         string        `envconfig:"GIFTDROP_TELEGRAM_BOT_NAME"`
	APIBaseURL      string        `envconfig:"GIFTDROP_TELEGRAM_API_BASE_URL" default:"https://api.telegram.org"`
	AdminIDsRaw     string        `envconfig:"GIFTDROP_TELEGRAM_ADMIN_IDS"`
	InitDataMaxAge  time.Duration `envconfig:"GIFTDROP_TELEGRAM_INIT_DATA_MAX_AGE" default:"24h"`
	RequestTimeout  time.Duration `envconfig:"GIFTDROP_TELEGRAM_TIMEOUT" default:"10s"`
	AllowDebugLogin bool          `envconfig:"GIFTDROP_TELEGRAM_ALLOW_DEBUG_LOGIN" default:"false"`

	AdminIDs []int64 `ignored:"true"`
}

// IsAdmin reports whether the telegram account may manage the gift catalog.
func (t TelegramConfig) IsAdmin(telegramID int64) bool {
	for _, id := range t.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

func (t *TelegramConfig) parseAdminIDs() error {
	t.AdminIDs = nil
	for _, part := range strings.Split(t.AdminIDsRaw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid telegram id %q", EnvTelegramAdminIDs, part)
		}
		t.AdminIDs = append(t.AdminIDs, id)
	}
	return nil
}

// ReconcilerConfig drives the invoice monitor sweeps.
type ReconcilerConfig struct {
	Interval            time.Duration `envconfig:"GIFTDROP_RECONCILER_INTERVAL" default:"5s"`
	BatchSize           int           `envconfig:"GIFTDROP_RECONCILER_BATCH_SIZE" default:"50"`
	InvoiceHardExpiry   time.Duration `envconfig:"GIFTDROP_INVOICE_HARD_EXPIRY" default:"1h"`
	InvoiceRetention    time.Duration `envconfig:"GIFTDROP_INVOICE_RETENTION" default:"24h"`
	MaintenanceInterval time.Duration `envconfig:"GIFTDROP_MAINTENANCE_INTERVAL" default:"1h"`
	LockTTL             time.Duration `envconfig:"GIFTDROP_RECONCILER_LOCK_TTL" default:"1m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate    bool `envconfig:"GIFTDROP_AUTO_MIGRATE" default:"false"`
	MetricsEnabled bool `envconfig:"GIFTDROP_METRICS_ENABLED" default:"true"`
}

// RateLimitConfig throttles invoice creation per telegram account.
type RateLimitConfig struct {
	BuyWindow time.Duration `envconfig:"GIFTDROP_RATE_LIMIT_BUY_WINDOW" default:"1m"`
	BuyLimit  int           `envconfig:"GIFTDROP_RATE_LIMIT_BUY_LIMIT" default:"10"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"GIFTDROP_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"GIFTDROP_OUTBOX_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"GIFTDROP_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int           `envconfig:"GIFTDROP_OUTBOX_RETENTION_DAYS" default:"30"`
	IdempotencyTTL time.Duration `envconfig:"GIFTDROP_OUTBOX_IDEMPOTENCY_TTL" default:"720h"`
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

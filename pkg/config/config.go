package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "genbot"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Telegram     TelegramConfig
	Payments     PaymentsConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Sweep        SweepConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !cfg.FeatureFlags.UseSQLite && cfg.DB.DSN == "" {
		return nil, fmt.Errorf("GENBOT_DB_DSN is required")
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GENBOT_APP_ENV" required:"true"`
	Port         string `envconfig:"GENBOT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"GENBOT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GENBOT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GENBOT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"GENBOT_DB_DSN"`
	Driver string `envconfig:"GENBOT_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"GENBOT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GENBOT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GENBOT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GENBOT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	// URL wins when both are set; with neither, redis bootstrap fails.
	URL          string        `envconfig:"GENBOT_REDIS_URL"`
	Address      string        `envconfig:"GENBOT_REDIS_ADDR"`
	Password     string        `envconfig:"GENBOT_REDIS_PASSWORD"`
	DB           int           `envconfig:"GENBOT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GENBOT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GENBOT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GENBOT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GENBOT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GENBOT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// TelegramConfig carries the bot credentials plus the operator chat list the
// reconciler alerts. Operator ids are injected here instead of being read from
// globals inside business logic.
type TelegramConfig struct {
	BotToken        string  `envconfig:"GENBOT_TELEGRAM_BOT_TOKEN" required:"true"`
	OperatorChatIDs []int64 `envconfig:"GENBOT_TELEGRAM_OPERATOR_CHAT_IDS"`
	ParseMode       string  `envconfig:"GENBOT_TELEGRAM_PARSE_MODE" default:"HTML"`
}

type PaymentsConfig struct {
	YooKassa  YooKassaConfig
	Stars     StarsConfig
	Cryptomus CryptomusConfig

	// IdempotencyTTL bounds how long a provider charge id is remembered for
	// duplicate-delivery rejection.
	IdempotencyTTL time.Duration `envconfig:"GENBOT_PAYMENTS_IDEMPOTENCY_TTL" default:"168h"`
}

type YooKassaConfig struct {
	ShopID      string        `envconfig:"GENBOT_YOOKASSA_SHOP_ID"`
	SecretKey   string        `envconfig:"GENBOT_YOOKASSA_SECRET_KEY"`
	BaseURL     string        `envconfig:"GENBOT_YOOKASSA_BASE_URL" default:"https://api.yookassa.ru/v3"`
	Timeout     time.Duration `envconfig:"GENBOT_YOOKASSA_TIMEOUT" default:"15s"`
	FeePercent  float64       `envconfig:"GENBOT_YOOKASSA_FEE_PERCENT" default:"3.5"`
	FeeFixed    float64       `envconfig:"GENBOT_YOOKASSA_FEE_FIXED" default:"0"`
	WebhookAuth string        `envconfig:"GENBOT_YOOKASSA_WEBHOOK_AUTH"`
}

type StarsConfig struct {
	FeePercent float64 `envconfig:"GENBOT_STARS_FEE_PERCENT" default:"30"`
}

type CryptomusConfig struct {
	MerchantID  string  `envconfig:"GENBOT_CRYPTOMUS_MERCHANT_ID"`
	APIKey      string  `envconfig:"GENBOT_CRYPTOMUS_API_KEY"`
	FeePercent  float64 `envconfig:"GENBOT_CRYPTOMUS_FEE_PERCENT" default:"2"`
	WebhookAuth string  `envconfig:"GENBOT_CRYPTOMUS_WEBHOOK_AUTH"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"GENBOT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"GENBOT_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"GENBOT_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"GENBOT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"GENBOT_PUBSUB_NOTIFICATION_TOPIC" default:"gb-notification-events"`
	NotificationSubscription string `envconfig:"GENBOT_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GENBOT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GENBOT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GENBOT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// SweepConfig bounds the periodic batch jobs. Batches keep a single failed
// commit from taking the whole sweep down with it.
type SweepConfig struct {
	Interval     time.Duration `envconfig:"GENBOT_SWEEP_INTERVAL" default:"1h"`
	RenewalBatch int           `envconfig:"GENBOT_SWEEP_RENEWAL_BATCH" default:"100"`
}

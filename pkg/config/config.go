package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Policy       PolicyConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"SERVIGO_APP_ENV" required:"true"`
	Port         string `envconfig:"SERVIGO_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"SERVIGO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SERVIGO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SERVIGO_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SERVIGO_DB_DSN"`
	Driver string `envconfig:"SERVIGO_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"SERVIGO_DB_HOST"`
	Port     int    `envconfig:"SERVIGO_DB_PORT" default:"5432"`
	User     string `envconfig:"SERVIGO_DB_USER"`
	Password string `envconfig:"SERVIGO_DB_PASSWORD"`
	Name     string `envconfig:"SERVIGO_DB_NAME"`
	SSLMode  string `envconfig:"SERVIGO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SERVIGO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SERVIGO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SERVIGO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SERVIGO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either SERVIGO_DB_DSN or host/user/name settings are required")
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.Name,
	}
	query := dsn.Query()
	query.Set("sslmode", d.SSLMode)
	dsn.RawQuery = query.Encode()
	d.DSN = dsn.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"SERVIGO_REDIS_URL"`
	Address      string        `envconfig:"SERVIGO_REDIS_ADDR"`
	Password     string        `envconfig:"SERVIGO_REDIS_PASSWORD"`
	DB           int           `envconfig:"SERVIGO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SERVIGO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SERVIGO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SERVIGO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SERVIGO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SERVIGO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SERVIGO_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SERVIGO_JWT_ISSUER" default:"servigo"`
	ExpirationMinutes int    `envconfig:"SERVIGO_JWT_EXPIRATION_MINUTES" default:"60"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"SERVIGO_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"SERVIGO_PUBSUB_DOMAIN_TOPIC" default:"servigo-domain-events"`
	DomainSubscription string `envconfig:"SERVIGO_PUBSUB_DOMAIN_SUBSCRIPTION" default:"servigo-dispatcher"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SERVIGO_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SERVIGO_OUTBOX_POLL_INTERVAL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SERVIGO_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"SERVIGO_OUTBOX_RETENTION_DAYS" default:"14"`

	IdempotencyTTL time.Duration `envconfig:"SERVIGO_OUTBOX_IDEMPOTENCY_TTL" default:"720h"`
}

type CronConfig struct {
	SweepInterval   time.Duration `envconfig:"SERVIGO_CRON_SWEEP_INTERVAL" default:"15m"`
	LockKey         string        `envconfig:"SERVIGO_CRON_LOCK_KEY" default:"servigo:cron:lock"`
	LockTTL         time.Duration `envconfig:"SERVIGO_CRON_LOCK_TTL" default:"30m"`
	DisputeAgeAlert time.Duration `envconfig:"SERVIGO_CRON_DISPUTE_AGE_ALERT" default:"720h"`
}

// PolicyConfig carries the commercial policy knobs. Percentages are expressed
// as fractions (0.036 = 3.6%). Defaults mirror the reference policy; every
// value is overridable so policy changes never touch transition handlers.
type PolicyConfig struct {
	Version                  int           `envconfig:"SERVIGO_POLICY_VERSION" default:"1"`
	ProcessorFeePct          float64       `envconfig:"SERVIGO_POLICY_PROCESSOR_FEE_PCT" default:"0.036"`
	PlatformCommissionPct    float64       `envconfig:"SERVIGO_POLICY_PLATFORM_COMMISSION_PCT" default:"0.06"`
	LoyaltyFundSharePct      float64       `envconfig:"SERVIGO_POLICY_LOYALTY_FUND_SHARE_PCT" default:"0.10"`
	AmbassadorCommissionPct  float64       `envconfig:"SERVIGO_POLICY_AMBASSADOR_COMMISSION_PCT" default:"0.05"`
	PointsConversionFactor   float64       `envconfig:"SERVIGO_POLICY_POINTS_CONVERSION_FACTOR" default:"10"`
	EarlyCancellationPct     float64       `envconfig:"SERVIGO_POLICY_EARLY_CANCELLATION_PCT" default:"0.10"`
	LateCancellationPct      float64       `envconfig:"SERVIGO_POLICY_LATE_CANCELLATION_PCT" default:"0.25"`
	LateCancelProviderPct    float64       `envconfig:"SERVIGO_POLICY_LATE_CANCEL_PROVIDER_PCT" default:"0.15"`
	LateCancellationCutoff   time.Duration `envconfig:"SERVIGO_POLICY_LATE_CANCELLATION_CUTOFF" default:"2h"`
	RatingWindow             time.Duration `envconfig:"SERVIGO_POLICY_RATING_WINDOW" default:"72h"`
	StandardWarrantyDuration time.Duration `envconfig:"SERVIGO_POLICY_STANDARD_WARRANTY" default:"72h"`
	PremiumWarrantyDuration  time.Duration `envconfig:"SERVIGO_POLICY_PREMIUM_WARRANTY" default:"168h"`
	ReminderLeadTime         time.Duration `envconfig:"SERVIGO_POLICY_REMINDER_LEAD_TIME" default:"24h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SERVIGO_FEATURE_AUTO_MIGRATE" default:"false"`
}

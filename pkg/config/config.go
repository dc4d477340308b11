package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "GEMTRADE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv      = "GEMTRADE_APP_ENV"
	EnvPort        = "GEMTRADE_APP_PORT"
	EnvLogLevel    = "GEMTRADE_LOG_LEVEL"
	EnvDBDSN       = "GEMTRADE_DB_DSN"
	EnvDBHost      = "GEMTRADE_DB_HOST"
	EnvDBUser      = "GEMTRADE_DB_USER"
	EnvDBName      = "GEMTRADE_DB_NAME"
	EnvRedisURL    = "GEMTRADE_REDIS_URL"
	EnvJWTSecret   = "GEMTRADE_JWT_SECRET"
	EnvJWTIssuer   = "GEMTRADE_JWT_ISSUER"
	EnvUseSQLite   = "GEMTRADE_USE_SQLITE"
	EnvSQLitePath  = "GEMTRADE_SQLITE_PATH"
	EnvTransaction = "GEMTRADE_SALES_TRANSACTIONAL"
	EnvCASAttempts = "GEMTRADE_LEDGER_MAX_CAS_ATTEMPTS"
	EnvGCPProject  = "GEMTRADE_GCP_PROJECT_ID"
	EnvSalesTopic  = "GEMTRADE_PUBSUB_SALES_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Sales        SalesConfig
	Ledger       LedgerConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Maintenance  MaintenanceConfig
	CORS         CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		return &cfg, nil
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GEMTRADE_APP_ENV" required:"true"`
	Port         string `envconfig:"GEMTRADE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"GEMTRADE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GEMTRADE_LOG_WARN_STACK" default:"false"`
	// MetricsAddr is where background workers expose /metrics. Empty disables it.
	MetricsAddr string `envconfig:"GEMTRADE_WORKER_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN        string `envconfig:"GEMTRADE_DB_DSN"`
	Driver     string `envconfig:"GEMTRADE_DB_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"GEMTRADE_SQLITE_PATH" default:"gemtrade.db"`

	LegacyHost     string `envconfig:"GEMTRADE_DB_HOST"`
	LegacyPort     int    `envconfig:"GEMTRADE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GEMTRADE_DB_USER"`
	LegacyPassword string `envconfig:"GEMTRADE_DB_PASSWORD"`
	LegacyName     string `envconfig:"GEMTRADE_DB_NAME"`
	LegacySSLMode  string `envconfig:"GEMTRADE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GEMTRADE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GEMTRADE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GEMTRADE_DB_CONN_MAX_LIFETIME" default:"1h"`
	// SlowQueryThreshold logs statements slower than this at warn level.
	// Zero silences SQL logging entirely.
	SlowQueryThreshold time.Duration `envconfig:"GEMTRADE_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
	ConnMaxIdleTime    time.Duration `envconfig:"GEMTRADE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// RedisConfig is optional; an empty URL and address disables idempotency
// records and the redis-backed sale code counter.
type RedisConfig struct {
	URL          string        `envconfig:"GEMTRADE_REDIS_URL"`
	Address      string        `envconfig:"GEMTRADE_REDIS_ADDR"`
	Password     string        `envconfig:"GEMTRADE_REDIS_PASSWORD"`
	DB           int           `envconfig:"GEMTRADE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GEMTRADE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GEMTRADE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GEMTRADE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GEMTRADE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GEMTRADE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"GEMTRADE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type JWTConfig struct {
	Secret string `envconfig:"GEMTRADE_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"GEMTRADE_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"GEMTRADE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"GEMTRADE_AUTO_MIGRATE" default:"false"`
}

type SalesConfig struct {
	// Transactional runs each sale operation inside one database transaction.
	// When false every step commits on its own and failures are compensated.
	Transactional bool   `envconfig:"GEMTRADE_SALES_TRANSACTIONAL" default:"true"`
	CodePrefix    string `envconfig:"GEMTRADE_SALES_CODE_PREFIX" default:"SL"`
}

type LedgerConfig struct {
	MaxCASAttempts int `envconfig:"GEMTRADE_LEDGER_MAX_CAS_ATTEMPTS" default:"5"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"GEMTRADE_EVENTING_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"GEMTRADE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"GEMTRADE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GEMTRADE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	SalesTopic string `envconfig:"GEMTRADE_PUBSUB_SALES_TOPIC" default:"gemtrade-sale-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GEMTRADE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GEMTRADE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GEMTRADE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type MaintenanceConfig struct {
	Interval            time.Duration `envconfig:"GEMTRADE_MAINTENANCE_INTERVAL" default:"1h"`
	OutboxRetentionDays int           `envconfig:"GEMTRADE_MAINTENANCE_OUTBOX_RETENTION_DAYS" default:"30"`
	DriftReportLimit    int           `envconfig:"GEMTRADE_MAINTENANCE_DRIFT_REPORT_LIMIT" default:"100"`
}

func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
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

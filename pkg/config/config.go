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

	EnvDBDSN  = "MEDIAFORGE_DB_DSN"
	EnvDBHost = "MEDIAFORGE_DB_HOST"
	EnvDBUser = "MEDIAFORGE_DB_USER"
	EnvDBName = "MEDIAFORGE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Providers    ProvidersConfig
	Generation   GenerationConfig
	S3           S3Config
	Media        MediaConfig
	Payments     PaymentsConfig
	Credits      CreditsConfig
	Sweeper      SweeperConfig
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
	Env          string `envconfig:"MEDIAFORGE_APP_ENV" required:"true"`
	Port         string `envconfig:"MEDIAFORGE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MEDIAFORGE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MEDIAFORGE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MEDIAFORGE_DB_DSN"`
	Driver string `envconfig:"MEDIAFORGE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MEDIAFORGE_DB_HOST"`
	LegacyPort     int    `envconfig:"MEDIAFORGE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MEDIAFORGE_DB_USER"`
	LegacyPassword string `envconfig:"MEDIAFORGE_DB_PASSWORD"`
	LegacyName     string `envconfig:"MEDIAFORGE_DB_NAME"`
	LegacySSLMode  string `envconfig:"MEDIAFORGE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MEDIAFORGE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MEDIAFORGE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MEDIAFORGE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MEDIAFORGE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MEDIAFORGE_REDIS_URL"`
	Address      string        `envconfig:"MEDIAFORGE_REDIS_ADDR"`
	Password     string        `envconfig:"MEDIAFORGE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MEDIAFORGE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MEDIAFORGE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MEDIAFORGE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MEDIAFORGE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MEDIAFORGE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MEDIAFORGE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MEDIAFORGE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MEDIAFORGE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MEDIAFORGE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"MEDIAFORGE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"MEDIAFORGE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"MEDIAFORGE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"MEDIAFORGE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"MEDIAFORGE_ARGON_KEY_LEN" default:"32"`
}

type RateLimitConfig struct {
	GenerateWindow time.Duration `envconfig:"MEDIAFORGE_RATE_LIMIT_GENERATE_WINDOW" default:"1m"`
	GenerateLimit  int           `envconfig:"MEDIAFORGE_RATE_LIMIT_GENERATE_LIMIT" default:"10"`
	LoginWindow    time.Duration `envconfig:"MEDIAFORGE_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginLimit     int           `envconfig:"MEDIAFORGE_RATE_LIMIT_LOGIN_LIMIT" default:"5"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MEDIAFORGE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MEDIAFORGE_AUTO_MIGRATE" default:"false"`
}

// ProvidersConfig carries the rotating credential pools per provider family.
// Each list is an ordered CSV of interchangeable API keys; rotation walks the
// list in order when a key reports quota exhaustion.
type ProvidersConfig struct {
	InferenceKeys []string `envconfig:"MEDIAFORGE_PROVIDER_INFERENCE_KEYS"`
	QueueKeys     []string `envconfig:"MEDIAFORGE_PROVIDER_QUEUE_KEYS"`
	SessionKeys   []string `envconfig:"MEDIAFORGE_PROVIDER_SESSION_KEYS"`

	InferenceBaseURL string `envconfig:"MEDIAFORGE_PROVIDER_INFERENCE_BASE_URL"`
	QueueBaseURL     string `envconfig:"MEDIAFORGE_PROVIDER_QUEUE_BASE_URL"`
	SessionBaseURL   string `envconfig:"MEDIAFORGE_PROVIDER_SESSION_BASE_URL"`
}

// GenerationConfig bounds each provider attempt. The full polling budget
// (PollAttempts x PollInterval) must fit inside AttemptTimeout, otherwise
// queued jobs hit the attempt deadline before the poller gives up.
type GenerationConfig struct {
	MaxRetries     int           `envconfig:"MEDIAFORGE_GENERATION_MAX_RETRIES" default:"2"`
	RetryDelay     time.Duration `envconfig:"MEDIAFORGE_GENERATION_RETRY_DELAY" default:"3s"`
	AttemptTimeout time.Duration `envconfig:"MEDIAFORGE_GENERATION_ATTEMPT_TIMEOUT" default:"4m"`
	PollInterval   time.Duration `envconfig:"MEDIAFORGE_GENERATION_POLL_INTERVAL" default:"4s"`
	PollAttempts   int           `envconfig:"MEDIAFORGE_GENERATION_POLL_ATTEMPTS" default:"45"`
}

type S3Config struct {
	Endpoint      string `envconfig:"MEDIAFORGE_S3_ENDPOINT"`
	Region        string `envconfig:"MEDIAFORGE_S3_REGION" required:"true"`
	AccessKey     string `envconfig:"MEDIAFORGE_S3_ACCESS_KEY" required:"true"`
	SecretKey     string `envconfig:"MEDIAFORGE_S3_SECRET_KEY" required:"true"`
	Bucket        string `envconfig:"MEDIAFORGE_S3_BUCKET" required:"true"`
	PublicBaseURL string `envconfig:"MEDIAFORGE_S3_PUBLIC_BASE_URL" required:"true"`
	UsePathStyle  bool   `envconfig:"MEDIAFORGE_S3_USE_PATH_STYLE" default:"false"`
}

type MediaConfig struct {
	MaxFetchMB  int           `envconfig:"MEDIAFORGE_MEDIA_MAX_FETCH_MB" default:"100"`
	TempTTL     time.Duration `envconfig:"MEDIAFORGE_MEDIA_TEMP_TTL" default:"24h"`
	TempMaxKeep int           `envconfig:"MEDIAFORGE_MEDIA_TEMP_MAX_KEEP" default:"10"`
}

type PaymentsConfig struct {
	WebhookSecret  string        `envconfig:"MEDIAFORGE_PAYMENTS_WEBHOOK_SECRET" required:"true"`
	ReplayGuardTTL time.Duration `envconfig:"MEDIAFORGE_PAYMENTS_REPLAY_GUARD_TTL" default:"168h"`
}

type CreditsConfig struct {
	SignupBonus int64 `envconfig:"MEDIAFORGE_CREDITS_SIGNUP_BONUS" default:"1000"`
}

type SweeperConfig struct {
	Interval       time.Duration `envconfig:"MEDIAFORGE_SWEEPER_INTERVAL" default:"10m"`
	IdempotencyTTL time.Duration `envconfig:"MEDIAFORGE_SWEEPER_IDEMPOTENCY_TTL" default:"720h"`
	MetricsPort    string        `envconfig:"MEDIAFORGE_SWEEPER_METRICS_PORT" default:"9091"`
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

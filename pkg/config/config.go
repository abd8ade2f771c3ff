package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "YCSYH"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names referenced outside of struct tags.
const (
	EnvAppEnv            = "YCSYH_APP_ENV"
	EnvPort              = "YCSYH_APP_PORT"
	EnvDBDSN             = "YCSYH_DB_DSN"
	EnvDBHost            = "YCSYH_DB_HOST"
	EnvDBUser            = "YCSYH_DB_USER"
	EnvDBName            = "YCSYH_DB_NAME"
	EnvRedisURL          = "YCSYH_REDIS_URL"
	EnvJWTSecret         = "YCSYH_JWT_SECRET"
	EnvJWTIssuer         = "YCSYH_JWT_ISSUER"
	EnvJWTExpMins        = "YCSYH_JWT_EXPIRATION_MINUTES"
	EnvBaseURL           = "YCSYH_BASE_URL"
	EnvStripeKey         = "YCSYH_STRIPE_API_KEY"
	EnvStripeHook        = "YCSYH_STRIPE_WEBHOOK_SECRET"
	EnvGCPProjectID      = "YCSYH_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic = "YCSYH_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub   = "YCSYH_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvStorageBucket     = "YCSYH_STORAGE_BUCKET"
	EnvCronSchedule      = "YCSYH_CRON_SCHEDULE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	Store         StoreConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Stripe        StripeConfig
	Sendgrid      SendgridConfig
	Storage       StorageConfig
	Cron          CronConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Store.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Cron.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"YCSYH_APP_ENV" required:"true"`
	Port         string `envconfig:"YCSYH_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"YCSYH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"YCSYH_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"YCSYH_SERVICE_KIND" default:"api"`
	// MetricsAddr enables a /metrics listener on the background workers.
	MetricsAddr string `envconfig:"YCSYH_METRICS_ADDR"`
}

// StoreConfig holds storefront-facing settings.
type StoreConfig struct {
	BaseURL        string   `envconfig:"YCSYH_BASE_URL" required:"true"`
	Currency       string   `envconfig:"YCSYH_CURRENCY" default:"gbp"`
	AllowedOrigins []string `envconfig:"YCSYH_CORS_ALLOWED_ORIGINS"`
}

func (s *StoreConfig) validate() error {
	u, err := url.Parse(strings.TrimSpace(s.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", EnvBaseURL)
	}
	s.BaseURL = strings.TrimRight(u.String(), "/")
	s.Currency = strings.ToLower(strings.TrimSpace(s.Currency))
	return nil
}

type DBConfig struct {
	DSN string `envconfig:"YCSYH_DB_DSN"`

	LegacyHost     string `envconfig:"YCSYH_DB_HOST"`
	LegacyPort     int    `envconfig:"YCSYH_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"YCSYH_DB_USER"`
	LegacyPassword string `envconfig:"YCSYH_DB_PASSWORD"`
	LegacyName     string `envconfig:"YCSYH_DB_NAME"`
	LegacySSLMode  string `envconfig:"YCSYH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"YCSYH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"YCSYH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"YCSYH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"YCSYH_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"YCSYH_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
	ConnectAttempts    int           `envconfig:"YCSYH_DB_CONNECT_ATTEMPTS" default:"5"`
}

type RedisConfig struct {
	URL          string        `envconfig:"YCSYH_REDIS_URL" required:"true"`
	Password     string        `envconfig:"YCSYH_REDIS_PASSWORD"`
	PoolSize     int           `envconfig:"YCSYH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"YCSYH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"YCSYH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"YCSYH_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"YCSYH_REDIS_WRITE_TIMEOUT" default:"3s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"YCSYH_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"YCSYH_JWT_ISSUER" default:"ycsyh"`
	ExpirationMinutes int    `envconfig:"YCSYH_JWT_EXPIRATION_MINUTES" default:"10080"`
	CookieName        string `envconfig:"YCSYH_AUTH_COOKIE_NAME" default:"auth-token"`
}

// TTL returns the access token lifetime.
func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"YCSYH_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"YCSYH_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"YCSYH_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"YCSYH_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"YCSYH_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"YCSYH_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"YCSYH_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"YCSYH_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
}

// FeatureFlagsConfig toggles optional behavior. ArchiveContracts stores each
// generated license PDF in object storage.
type FeatureFlagsConfig struct {
	AutoMigrate      bool `envconfig:"YCSYH_AUTO_MIGRATE" default:"false"`
	ArchiveContracts bool `envconfig:"YCSYH_ARCHIVE_CONTRACTS" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL   time.Duration `envconfig:"YCSYH_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	StripeWebhookTTL       time.Duration `envconfig:"YCSYH_STRIPE_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	CheckoutIdempotencyTTL time.Duration `envconfig:"YCSYH_CHECKOUT_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"YCSYH_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"YCSYH_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"YCSYH_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"YCSYH_PUBSUB_ORDERS_TOPIC" default:"ycsyh-order-events"`
	OrdersSubscription string `envconfig:"YCSYH_PUBSUB_ORDERS_SUBSCRIPTION" default:"ycsyh-order-events-analytics"`
	// MaxOutstanding caps unacked messages held by the sales consumer.
	MaxOutstanding int `envconfig:"YCSYH_PUBSUB_MAX_OUTSTANDING" default:"20"`
	// PublishDelay is how long the publisher batches before sending.
	PublishDelay time.Duration `envconfig:"YCSYH_PUBSUB_PUBLISH_DELAY" default:"10ms"`
}

type BigQueryConfig struct {
	Dataset    string `envconfig:"YCSYH_BIGQUERY_DATASET" default:"ycsyh"`
	SalesTable string `envconfig:"YCSYH_BIGQUERY_SALES_TABLE" default:"sales_events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"YCSYH_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"YCSYH_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"YCSYH_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"YCSYH_OUTBOX_RETENTION" default:"720h"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"YCSYH_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"YCSYH_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"YCSYH_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SendgridConfig struct {
	APIKey      string `envconfig:"YCSYH_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"YCSYH_SENDGRID_FROM_EMAIL"`
	FromName    string `envconfig:"YCSYH_SENDGRID_FROM_NAME" default:"YCSYH"`
}

// StorageConfig points at an S3-compatible bucket.
type StorageConfig struct {
	Bucket          string        `envconfig:"YCSYH_STORAGE_BUCKET"`
	Region          string        `envconfig:"YCSYH_STORAGE_REGION" default:"eu-west-2"`
	Endpoint        string        `envconfig:"YCSYH_STORAGE_ENDPOINT"`
	AccessKeyID     string        `envconfig:"YCSYH_STORAGE_ACCESS_KEY_ID"`
	SecretAccessKey string        `envconfig:"YCSYH_STORAGE_SECRET_ACCESS_KEY"`
	UsePathStyle    bool          `envconfig:"YCSYH_STORAGE_USE_PATH_STYLE" default:"false"`
	PublicBaseURL   string        `envconfig:"YCSYH_STORAGE_PUBLIC_BASE_URL"`
	PresignExpiry   time.Duration `envconfig:"YCSYH_STORAGE_PRESIGN_EXPIRY" default:"15m"`
}

type CronConfig struct {
	Schedule           string        `envconfig:"YCSYH_CRON_SCHEDULE" default:"@every 15m"`
	LockTTL            time.Duration `envconfig:"YCSYH_CRON_LOCK_TTL" default:"10m"`
	JobTimeout         time.Duration `envconfig:"YCSYH_CRON_JOB_TIMEOUT" default:"5m"`
	CheckoutPendingTTL time.Duration `envconfig:"YCSYH_CHECKOUT_PENDING_TTL" default:"48h"`
}

// checkoutSessionLifetime is how long Stripe keeps a Checkout session payable.
const checkoutSessionLifetime = 24 * time.Hour

func (c CronConfig) validate() error {
	if c.CheckoutPendingTTL <= checkoutSessionLifetime {
		return fmt.Errorf("YCSYH_CHECKOUT_PENDING_TTL must exceed %s, got %s", checkoutSessionLifetime, c.CheckoutPendingTTL)
	}
	return nil
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	missing := []string{}
	for _, name := range legacyDBEnvVars {
		if legacyValues[name] == "" {
			missing = append(missing, name)
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

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

	EnvDBDSN  = "CARTAVIVA_DB_DSN"
	EnvDBHost = "CARTAVIVA_DB_HOST"
	EnvDBUser = "CARTAVIVA_DB_USER"
	EnvDBName = "CARTAVIVA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App       AppConfig
	Service   ServiceConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Trade     TradeConfig
	RateLimit RateLimitConfig
	Sweeper   SweeperConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	Outbox    OutboxConfig
	Features  FeatureFlagsConfig
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
	Env          string `envconfig:"CARTAVIVA_APP_ENV" required:"true"`
	Port         string `envconfig:"CARTAVIVA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CARTAVIVA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CARTAVIVA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CARTAVIVA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CARTAVIVA_DB_DSN"`
	Driver string `envconfig:"CARTAVIVA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CARTAVIVA_DB_HOST"`
	LegacyPort     int    `envconfig:"CARTAVIVA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CARTAVIVA_DB_USER"`
	LegacyPassword string `envconfig:"CARTAVIVA_DB_PASSWORD"`
	LegacyName     string `envconfig:"CARTAVIVA_DB_NAME"`
	LegacySSLMode  string `envconfig:"CARTAVIVA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CARTAVIVA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CARTAVIVA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CARTAVIVA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CARTAVIVA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CARTAVIVA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CARTAVIVA_REDIS_ADDR"`
	Password     string        `envconfig:"CARTAVIVA_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARTAVIVA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CARTAVIVA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CARTAVIVA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CARTAVIVA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARTAVIVA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARTAVIVA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CARTAVIVA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CARTAVIVA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CARTAVIVA_JWT_EXPIRATION_MINUTES" default:"60"`
}

// TradeConfig holds the deadline windows and pricing knobs of the trade
// lifecycle. Deadlines are bound once, at the transition that creates the
// obligation they limit.
type TradeConfig struct {
	SellerResponseWindow time.Duration `envconfig:"CARTAVIVA_TRADE_SELLER_RESPONSE_WINDOW" default:"24h"`
	DeliveryWindow       time.Duration `envconfig:"CARTAVIVA_TRADE_DELIVERY_WINDOW" default:"144h"`
	BuyerConfirmWindow   time.Duration `envconfig:"CARTAVIVA_TRADE_BUYER_CONFIRM_WINDOW" default:"240h"`
	RatingWindow         time.Duration `envconfig:"CARTAVIVA_TRADE_RATING_WINDOW" default:"336h"`
	ReservationTTL       time.Duration `envconfig:"CARTAVIVA_TRADE_RESERVATION_TTL" default:"24h"`
	ShippingFlatCentimos int64         `envconfig:"CARTAVIVA_TRADE_SHIPPING_FLAT_CENTIMOS" default:"600"`
	TaxRatePercent       string        `envconfig:"CARTAVIVA_TRADE_TAX_RATE_PERCENT" default:"0"`
}

type RateLimitConfig struct {
	Requests int           `envconfig:"CARTAVIVA_RATE_LIMIT_REQUESTS" default:"120"`
	Window   time.Duration `envconfig:"CARTAVIVA_RATE_LIMIT_WINDOW" default:"1m"`
}

type SweeperConfig struct {
	Interval time.Duration `envconfig:"CARTAVIVA_SWEEPER_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"CARTAVIVA_SWEEPER_LOCK_TTL" default:"10m"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"CARTAVIVA_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	TradeEventsTopic        string `envconfig:"CARTAVIVA_PUBSUB_TRADE_EVENTS_TOPIC" default:"cv-trade-events"`
	TradeEventsSubscription string `envconfig:"CARTAVIVA_PUBSUB_TRADE_EVENTS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CARTAVIVA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CARTAVIVA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CARTAVIVA_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CARTAVIVA_AUTO_MIGRATE" default:"false"`
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

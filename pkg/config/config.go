package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Payment   PaymentConfig
	Telemetry TelemetryConfig
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
	Env          string `envconfig:"SHOPTRACE_APP_ENV" default:"development"`
	Port         string `envconfig:"SHOPTRACE_APP_PORT" default:"3000"`
	LogLevel     string `envconfig:"SHOPTRACE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPTRACE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPTRACE_DB_DSN"`
	Driver string `envconfig:"SHOPTRACE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"SHOPTRACE_DB_HOST"`
	Port     int    `envconfig:"SHOPTRACE_DB_PORT" default:"5432"`
	User     string `envconfig:"SHOPTRACE_DB_USER"`
	Password string `envconfig:"SHOPTRACE_DB_PASSWORD"`
	Name     string `envconfig:"SHOPTRACE_DB_NAME"`
	SSLMode  string `envconfig:"SHOPTRACE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOPTRACE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPTRACE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPTRACE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPTRACE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"SHOPTRACE_DB_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPTRACE_REDIS_URL"`
	Address      string        `envconfig:"SHOPTRACE_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"SHOPTRACE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPTRACE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPTRACE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPTRACE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPTRACE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPTRACE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPTRACE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type CacheConfig struct {
	OrderTTL       time.Duration `envconfig:"SHOPTRACE_CACHE_ORDER_TTL" default:"5m"`
	ProductTTL     time.Duration `envconfig:"SHOPTRACE_CACHE_PRODUCT_TTL" default:"10m"`
	ProductListTTL time.Duration `envconfig:"SHOPTRACE_CACHE_PRODUCT_LIST_TTL" default:"1m"`
}

type PaymentConfig struct {
	FailureRate float64       `envconfig:"SHOPTRACE_PAYMENT_FAILURE_RATE" default:"0.1"`
	MinLatency  time.Duration `envconfig:"SHOPTRACE_PAYMENT_MIN_LATENCY" default:"100ms"`
	MaxLatency  time.Duration `envconfig:"SHOPTRACE_PAYMENT_MAX_LATENCY" default:"400ms"`
}

type TelemetryConfig struct {
	// Mode selects the span exporter: otlp, stdout, or none.
	Mode        string `envconfig:"SHOPTRACE_TELEMETRY_MODE" default:"otlp"`
	Endpoint    string `envconfig:"SHOPTRACE_TELEMETRY_ENDPOINT"`
	Insecure    bool   `envconfig:"SHOPTRACE_TELEMETRY_INSECURE" default:"true"`
	ServiceName string `envconfig:"SHOPTRACE_TELEMETRY_SERVICE_NAME" default:"shoptrace-api"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

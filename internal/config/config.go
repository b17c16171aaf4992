package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix  = "BLOODBANK"
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	JWT       JWTConfig
	Inventory InventoryConfig
	Redis     RedisConfig
	CORS      CORSConfig
}

// Load reads configs/.env when present and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{"configs/.env"}
	}
	for _, f := range envFiles {
		// Missing files are fine; the environment may already be populated.
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Inventory.validate(); err != nil {
		return nil, err
	}
	if cfg.App.IsProd() && cfg.JWT.Secret == defaultJWTSecret {
		return nil, fmt.Errorf("BLOODBANK_JWT_SECRET must be set in %s", AppEnvProd)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env       string `envconfig:"BLOODBANK_APP_ENV" default:"dev"`
	Port      string `envconfig:"BLOODBANK_APP_PORT" default:"8080"`
	LogLevel  string `envconfig:"BLOODBANK_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"BLOODBANK_LOG_FORMAT" default:"json"`
	Metrics   bool   `envconfig:"BLOODBANK_METRICS_ENABLED" default:"true"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"BLOODBANK_DB_DSN"`

	Host     string `envconfig:"BLOODBANK_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"BLOODBANK_DB_PORT" default:"5432"`
	User     string `envconfig:"BLOODBANK_DB_USER" default:"postgres"`
	Password string `envconfig:"BLOODBANK_DB_PASSWORD" default:"postgres"`
	Name     string `envconfig:"BLOODBANK_DB_NAME" default:"bloodbank"`
	SSLMode  string `envconfig:"BLOODBANK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BLOODBANK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BLOODBANK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BLOODBANK_DB_CONN_MAX_LIFETIME" default:"1h"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.Name == "" {
		return fmt.Errorf("either BLOODBANK_DB_DSN or BLOODBANK_DB_HOST/BLOODBANK_DB_NAME must be set")
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	d.DSN = u.String()
	return nil
}

const defaultJWTSecret = "dev_insecure_secret"

type JWTConfig struct {
	Secret string        `envconfig:"BLOODBANK_JWT_SECRET" default:"dev_insecure_secret"`
	Issuer string        `envconfig:"BLOODBANK_JWT_ISSUER" default:"bloodbank"`
	TTL    time.Duration `envconfig:"BLOODBANK_JWT_TTL" default:"24h"`
}

type InventoryConfig struct {
	// LowStockThreshold applies to every blood group without an override.
	LowStockThreshold int `envconfig:"BLOODBANK_LOW_STOCK_THRESHOLD" default:"5"`
	// LowStockOverrides is a comma list such as "O+:10,AB-:2".
	LowStockOverrides map[string]int `envconfig:"BLOODBANK_LOW_STOCK_OVERRIDES"`
	DonationCooldown  time.Duration  `envconfig:"BLOODBANK_DONATION_COOLDOWN" default:"2160h"`
}

func (i InventoryConfig) validate() error {
	if i.LowStockThreshold < 0 {
		return fmt.Errorf("low stock threshold must not be negative")
	}
	for group, v := range i.LowStockOverrides {
		if v < 0 {
			return fmt.Errorf("low stock override for %s must not be negative", group)
		}
	}
	if i.DonationCooldown < 0 {
		return fmt.Errorf("donation cooldown must not be negative")
	}
	return nil
}

type RedisConfig struct {
	URL            string        `envconfig:"BLOODBANK_REDIS_URL"`
	PoolSize       int           `envconfig:"BLOODBANK_REDIS_POOL_SIZE" default:"10"`
	DialTimeout    time.Duration `envconfig:"BLOODBANK_REDIS_DIAL_TIMEOUT" default:"5s"`
	IdempotencyTTL time.Duration `envconfig:"BLOODBANK_IDEMPOTENCY_TTL" default:"24h"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"BLOODBANK_CORS_ALLOWED_ORIGINS" default:"http://localhost:5173,http://127.0.0.1:5173"`
}

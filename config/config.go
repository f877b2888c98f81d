package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	AES       AESConfig       `mapstructure:"aes"`
	Log       LogConfig       `mapstructure:"log"`
	Lightning LightningConfig `mapstructure:"lightning"`
	Rates     RatesConfig     `mapstructure:"rates"`
	Withdraw  WithdrawConfig  `mapstructure:"withdraw"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
	// PublicURL is the externally reachable base used to build LNURL callbacks.
	// Empty means derive it from the incoming request.
	PublicURL string `mapstructure:"public_url"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// MigrateURL returns the DSN in the form expected by the pgx/v5 migrate driver.
func (d DatabaseConfig) MigrateURL() string {
	return "pgx5" + strings.TrimPrefix(d.DSN(), "postgres")
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

type LightningConfig struct {
	Backend           string        `mapstructure:"backend"` // lnd, fake
	LND               LNDConfig     `mapstructure:"lnd"`
	PaymentTimeout    time.Duration `mapstructure:"payment_timeout"`
	FeeReserveMinMsat int64         `mapstructure:"fee_reserve_min_msat"`
	FeeReservePercent float64       `mapstructure:"fee_reserve_percent"`
}

// FeeReserve returns the routing fee budget held back for a payment of amountMsat.
func (l LightningConfig) FeeReserve(amountMsat int64) int64 {
	reserve := int64(float64(amountMsat) * l.FeeReservePercent / 100)
	if reserve < l.FeeReserveMinMsat {
		return l.FeeReserveMinMsat
	}
	return reserve
}

type LNDConfig struct {
	Host         string `mapstructure:"host"`
	TLSCertPath  string `mapstructure:"tls_cert_path"`
	MacaroonPath string `mapstructure:"macaroon_path"`
}

type RatesConfig struct {
	FixedRate  float64       `mapstructure:"fixed_rate"` // fiat per BTC for the "fixed" provider
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries uint64        `mapstructure:"max_retries"`
}

type WithdrawConfig struct {
	MaxUses  int           `mapstructure:"max_uses"`
	ClaimTTL time.Duration `mapstructure:"claim_ttl"`
}

type RateLimitConfig struct {
	WithdrawPerMinute int `mapstructure:"withdraw_per_minute"`
	AdminPerMinute    int `mapstructure:"admin_per_minute"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
	Environment  string `mapstructure:"environment"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: ATMGW_.
// Nested keys use underscore: ATMGW_DATABASE_HOST, ATMGW_LIGHTNING_BACKEND, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.public_url", "")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "lnurl_atm")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "lnurl-atm-gateway")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("lightning.backend", "fake")
	v.SetDefault("lightning.lnd.host", "localhost:10009")
	v.SetDefault("lightning.lnd.tls_cert_path", "")
	v.SetDefault("lightning.lnd.macaroon_path", "")
	v.SetDefault("lightning.payment_timeout", "60s")
	v.SetDefault("lightning.fee_reserve_min_msat", 2000)
	v.SetDefault("lightning.fee_reserve_percent", 1.0)
	v.SetDefault("rates.fixed_rate", 0)
	v.SetDefault("rates.cache_ttl", "60s")
	v.SetDefault("rates.timeout", "5s")
	v.SetDefault("rates.max_retries", 2)
	v.SetDefault("withdraw.max_uses", 10)
	v.SetDefault("withdraw.claim_ttl", "5m")
	v.SetDefault("ratelimit.withdraw_per_minute", 30)
	v.SetDefault("ratelimit.admin_per_minute", 120)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.service_name", "lnurl-atm-gateway")
	v.SetDefault("telemetry.environment", "development")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: ATMGW_DATABASE_HOST -> database.host
	v.SetEnvPrefix("ATMGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	switch c.Lightning.Backend {
	case "lnd", "fake":
	default:
		return fmt.Errorf("unsupported lightning backend %q", c.Lightning.Backend)
	}
	if c.Withdraw.MaxUses < 1 {
		return fmt.Errorf("withdraw.max_uses must be at least 1")
	}
	if c.Lightning.FeeReservePercent < 0 || c.Lightning.FeeReserveMinMsat < 0 {
		return fmt.Errorf("fee reserve must not be negative")
	}
	return nil
}

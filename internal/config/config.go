// AngelaMos | 2026
// config.go

package config

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const minSigningKeyLength = 32

type Config struct {
	App           AppConfig         `koanf:"app"`
	Server        ServerConfig      `koanf:"server"`
	Database      DatabaseConfig    `koanf:"database"`
	Redis         RedisConfig       `koanf:"redis"`
	JWT           JWTConfig         `koanf:"jwt"`
	SignedToken   SignedTokenConfig `koanf:"signed_token"`
	Auth          AuthConfig        `koanf:"auth"`
	Security      SecurityConfig    `koanf:"security"`
	Notify        NotifyConfig      `koanf:"notify"`
	RateLimit     RateLimitConfig   `koanf:"rate_limit"`
	AuthRateLimit RateLimitConfig   `koanf:"auth_rate_limit"`
	CORS          CORSConfig        `koanf:"cors"`
	Log           LogConfig         `koanf:"log"`
	Otel          OtelConfig        `koanf:"otel"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

// JWTConfig holds the HS256 access-token settings. The signing key is loaded
// once at startup and never rotated at runtime.
type JWTConfig struct {
	SigningKey         string        `koanf:"signing_key"`
	Issuer             string        `koanf:"issuer"`
	Audience           string        `koanf:"audience"`
	AccessTokenExpire  time.Duration `koanf:"access_token_expire"`
	RefreshTokenExpire time.Duration `koanf:"refresh_token_expire"`
}

type SignedTokenConfig struct {
	Secret string        `koanf:"secret"`
	TTL    time.Duration `koanf:"ttl"`
}

type AuthConfig struct {
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	FrontendURL     string        `koanf:"frontend_url"`
}

// SecurityConfig.LegacyPasswordFallback enables the plaintext-password
// migration path. It is meant to be switched off once every seeded account
// has logged in at least once.
type SecurityConfig struct {
	LegacyPasswordFallback bool `koanf:"legacy_password_fallback"`
}

type NotifyConfig struct {
	Driver  string        `koanf:"driver"`
	Stream  string        `koanf:"stream"`
	MaxLen  int64         `koanf:"max_len"`
	Timeout time.Duration `koanf:"timeout"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Burst    int           `koanf:"burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

var (
	cfg     *Config
	loadErr error
	once    sync.Once
)

// Load reads configuration once per process; later calls return the same
// result.
func Load(configPath string) (*Config, error) {
	once.Do(func() {
		cfg, loadErr = load(configPath)
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call Load() first")
	}
	return cfg
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	out := &Config{}
	if err := k.Unmarshal("", out); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(out); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return out, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "Petlove Backoffice API",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",

		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",
		"database.auto_migrate":       false,

		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,

		"jwt.access_token_expire":  "60m",
		"jwt.refresh_token_expire": "168h",
		"jwt.issuer":               "petlove-backoffice",
		"jwt.audience":             "petlove-backoffice-api",

		"signed_token.ttl": "60m",

		"auth.cleanup_interval": "1h",
		"auth.frontend_url":     "http://localhost:3000",

		"security.legacy_password_fallback": true,

		"notify.driver":  "redis",
		"notify.stream":  "notifications:email",
		"notify.max_len": 10000,
		"notify.timeout": "5s",

		"rate_limit.requests": 100,
		"rate_limit.window":   "1m",
		"rate_limit.burst":    20,

		"auth_rate_limit.requests": 10,
		"auth_rate_limit.window":   "1m",
		"auth_rate_limit.burst":    5,

		"cors.allowed_origins": []string{"http://localhost:3000"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"PUT",
			"PATCH",
			"DELETE",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		"cors.allow_credentials": true,
		"cors.max_age":           300,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "petlove-backoffice-api",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_URL":                "database.url",
	"DATABASE_AUTO_MIGRATE":       "database.auto_migrate",
	"REDIS_URL":                   "redis.url",
	"ENVIRONMENT":                 "app.environment",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"JWT_SIGNING_KEY":             "jwt.signing_key",
	"JWT_ISSUER":                  "jwt.issuer",
	"JWT_AUDIENCE":                "jwt.audience",
	"JWT_ACCESS_TOKEN_EXPIRE":     "jwt.access_token_expire",
	"JWT_REFRESH_TOKEN_EXPIRE":    "jwt.refresh_token_expire",
	"SIGNED_TOKEN_SECRET":         "signed_token.secret",
	"SIGNED_TOKEN_TTL":            "signed_token.ttl",
	"AUTH_CLEANUP_INTERVAL":       "auth.cleanup_interval",
	"FRONTEND_URL":                "auth.frontend_url",
	"LEGACY_PASSWORD_FALLBACK":    "security.legacy_password_fallback",
	"NOTIFY_DRIVER":               "notify.driver",
	"NOTIFY_STREAM":               "notify.stream",
	"NOTIFY_TIMEOUT":              "notify.timeout",
	"RATE_LIMIT_REQUESTS":         "rate_limit.requests",
	"RATE_LIMIT_WINDOW":           "rate_limit.window",
	"RATE_LIMIT_BURST":            "rate_limit.burst",
	"AUTH_RATE_LIMIT_REQUESTS":    "auth_rate_limit.requests",
	"AUTH_RATE_LIMIT_BURST":       "auth_rate_limit.burst",
	"OTEL_ENDPOINT":               "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validate(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.JWT.SigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required")
	}

	if len(c.JWT.SigningKey) < minSigningKeyLength {
		return fmt.Errorf(
			"JWT_SIGNING_KEY must be at least %d bytes",
			minSigningKeyLength,
		)
	}

	if c.JWT.Issuer == "" || c.JWT.Audience == "" {
		return fmt.Errorf("jwt.issuer and jwt.audience are required")
	}

	if c.JWT.AccessTokenExpire <= 0 {
		return fmt.Errorf("jwt.access_token_expire must be positive")
	}

	if c.JWT.RefreshTokenExpire <= 0 {
		return fmt.Errorf("jwt.refresh_token_expire must be positive")
	}

	if c.SignedToken.Secret == "" {
		return fmt.Errorf("SIGNED_TOKEN_SECRET is required")
	}

	if c.SignedToken.TTL <= 0 {
		return fmt.Errorf("signed_token.ttl must be positive")
	}

	if !slices.Contains([]string{"redis", "log"}, c.Notify.Driver) {
		return fmt.Errorf("notify.driver must be one of redis, log")
	}

	if c.Notify.Timeout <= 0 {
		return fmt.Errorf("notify.timeout must be positive")
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				)
			}
		}
	}

	if c.App.Environment == "production" {
		if c.Otel.Enabled && c.Otel.Insecure {
			return fmt.Errorf("OTEL_INSECURE must be false in production")
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

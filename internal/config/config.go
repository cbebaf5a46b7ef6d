package config

import (
	"fmt"
	"time"

	"github.com/pmapp/authsvc/internal/guard"
	"github.com/pmapp/authsvc/internal/password"
	pkgconfig "github.com/pmapp/authsvc/pkg/config"
	"github.com/pmapp/authsvc/pkg/database"
)

// Guard backends.
const (
	GuardMemory = "memory"
	GuardRedis  = "redis"
)

// minSecretLength mirrors auth.MinSecretLength; kept local so config has no
// dependency on token signing.
const minSecretLength = 32

// Config holds all configuration for the auth service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppName     string `env:"APP_NAME" envDefault:"PM App"`

	// HTTP server
	HTTPPort int `env:"AUTH_HTTP_PORT" envDefault:"8001"`

	// PostgreSQL
	PostgresHost         string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort         int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser         string `env:"POSTGRES_USER" envDefault:"pmapp"`
	PostgresPass         string `env:"POSTGRES_PASSWORD" envDefault:"pmapp_secret"`
	PostgresDB           string `env:"AUTH_DB_NAME" envDefault:"auth_db"`
	PostgresSSL          string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns           int32  `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns           int32  `env:"DB_MIN_CONNS" envDefault:"5"`
	SlowQueryMillis      int    `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`
	RunMigrationsOnStart bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	// Redis, used when GuardBackend is "redis"
	GuardBackend  string `env:"GUARD_BACKEND" envDefault:"memory"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	EventsEnabled bool     `env:"EVENTS_ENABLED" envDefault:"false"`
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Tracing
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// JWT
	JWTAccessSecret       string `env:"JWT_ACCESS_SECRET"`
	JWTRefreshSecret      string `env:"JWT_REFRESH_SECRET"`
	AccessTokenTTLMinutes int    `env:"ACCESS_TOKEN_TTL_MINUTES" envDefault:"15"`
	RefreshTokenTTLDays   int    `env:"REFRESH_TOKEN_TTL_DAYS" envDefault:"7"`
	RefreshReuseRevokeAll bool   `env:"REFRESH_REUSE_REVOKE_ALL" envDefault:"false"`

	// OTP
	OTPTTLMinutes      int `env:"OTP_TTL_MINUTES" envDefault:"10"`
	OTPLength          int `env:"OTP_LENGTH" envDefault:"6"`
	OTPCooldownSeconds int `env:"OTP_COOLDOWN_SECONDS" envDefault:"60"`

	// Login lockout
	LockoutThreshold int `env:"LOGIN_LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutMinutes   int `env:"LOGIN_LOCKOUT_MINUTES" envDefault:"5"`

	// Argon2id cost for passwords and codes
	PasswordArgonMemoryKiB   uint32 `env:"PASSWORD_ARGON_MEMORY_KIB" envDefault:"65536"`
	PasswordArgonTime        uint32 `env:"PASSWORD_ARGON_TIME" envDefault:"3"`
	PasswordArgonParallelism uint8  `env:"PASSWORD_ARGON_PARALLELISM" envDefault:"1"`
	OTPArgonMemoryKiB        uint32 `env:"OTP_ARGON_MEMORY_KIB" envDefault:"49152"`
	OTPArgonTime             uint32 `env:"OTP_ARGON_TIME" envDefault:"2"`
	OTPArgonParallelism      uint8  `env:"OTP_ARGON_PARALLELISM" envDefault:"1"`

	// Mail
	SMTPHost string `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort int    `env:"SMTP_PORT" envDefault:"1025"`
	SMTPUser string `env:"SMTP_USER" envDefault:""`
	SMTPPass string `env:"SMTP_PASS" envDefault:""`
	MailFrom string `env:"MAIL_FROM" envDefault:"no-reply@pmapp.local"`

	// Per-IP limiter on credential routes
	RateLimitWindowSeconds int  `env:"RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`
	RateLimitMax           int  `env:"RATE_LIMIT_MAX" envDefault:"5"`
	RateLimitTrustProxy    bool `env:"RATE_LIMIT_TRUST_PROXY" envDefault:"false"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and secrets.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if len(c.JWTAccessSecret) < minSecretLength {
		return fmt.Errorf("JWT_ACCESS_SECRET must be at least %d characters long, got %d", minSecretLength, len(c.JWTAccessSecret))
	}
	if len(c.JWTRefreshSecret) < minSecretLength {
		return fmt.Errorf("JWT_REFRESH_SECRET must be at least %d characters long, got %d", minSecretLength, len(c.JWTRefreshSecret))
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	positive := []struct {
		name  string
		value int
	}{
		{"ACCESS_TOKEN_TTL_MINUTES", c.AccessTokenTTLMinutes},
		{"REFRESH_TOKEN_TTL_DAYS", c.RefreshTokenTTLDays},
		{"OTP_TTL_MINUTES", c.OTPTTLMinutes},
		{"LOGIN_LOCKOUT_THRESHOLD", c.LockoutThreshold},
		{"LOGIN_LOCKOUT_MINUTES", c.LockoutMinutes},
		{"RATE_LIMIT_WINDOW_SECONDS", c.RateLimitWindowSeconds},
		{"RATE_LIMIT_MAX", c.RateLimitMax},
	}
	for _, p := range positive {
		if p.value < 1 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	if c.OTPCooldownSeconds < 0 {
		return fmt.Errorf("OTP_COOLDOWN_SECONDS must not be negative, got %d", c.OTPCooldownSeconds)
	}
	if c.OTPLength < 4 || c.OTPLength > 12 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 12, got %d", c.OTPLength)
	}

	if err := c.PasswordParams().Validate(); err != nil {
		return fmt.Errorf("PASSWORD_ARGON_*: %w", err)
	}
	if err := c.OTPParams().Validate(); err != nil {
		return fmt.Errorf("OTP_ARGON_*: %w", err)
	}

	switch c.GuardBackend {
	case GuardMemory, GuardRedis:
	default:
		return fmt.Errorf("GUARD_BACKEND must be %q or %q, got %q", GuardMemory, GuardRedis, c.GuardBackend)
	}

	if c.EventsEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when EVENTS_ENABLED is set")
	}
	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Postgres returns the pool settings for the auth database.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
	}
}

// Redis returns the connection settings used by the redis guard backend.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// AccessTokenTTL returns the access token lifetime.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token and session lifetime.
func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLDays) * 24 * time.Hour
}

// OTPTTL returns how long an issued code stays valid.
func (c *Config) OTPTTL() time.Duration {
	return time.Duration(c.OTPTTLMinutes) * time.Minute
}

// OTPCooldown returns the minimum gap between two codes sent to one address.
func (c *Config) OTPCooldown() time.Duration {
	return time.Duration(c.OTPCooldownSeconds) * time.Second
}

// RateLimitWindow returns the per-IP limiter window.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// SlowQueryThreshold returns the duration above which queries are logged.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryMillis) * time.Millisecond
}

// LockoutPolicy returns the login lockout settings.
func (c *Config) LockoutPolicy() guard.LockoutPolicy {
	return guard.LockoutPolicy{
		Threshold: c.LockoutThreshold,
		Duration:  time.Duration(c.LockoutMinutes) * time.Minute,
	}
}

// PasswordParams returns the Argon2id cost for password hashes.
func (c *Config) PasswordParams() password.Params {
	p := password.DefaultParams()
	p.Memory = c.PasswordArgonMemoryKiB
	p.Time = c.PasswordArgonTime
	p.Parallelism = c.PasswordArgonParallelism
	return p
}

// OTPParams returns the Argon2id cost for one-time code hashes.
func (c *Config) OTPParams() password.Params {
	p := password.DefaultParams()
	p.Memory = c.OTPArgonMemoryKiB
	p.Time = c.OTPArgonTime
	p.Parallelism = c.OTPArgonParallelism
	return p
}

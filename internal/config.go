package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Lockout       LockoutConfig       `mapstructure:"lockout"`
	OTP           OTPConfig           `mapstructure:"otp"`
	TwoFactor     TwoFactorConfig     `mapstructure:"two_factor"`
	Invitation    InvitationConfig    `mapstructure:"invitation"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	OpenAPIPath       string        `mapstructure:"openapi_path"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

// RedisConfig is optional. An empty Addr keeps the token blacklist in postgres.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type SecurityConfig struct {
	AccessTokenSecret        string        `mapstructure:"access_token_secret" validate:"required,min=32"`
	RefreshTokenSecret       string        `mapstructure:"refresh_token_secret" validate:"required,min=32"`
	BackupCodeSecret         string        `mapstructure:"backup_code_secret" validate:"required,min=32"`
	AccessTokenDuration      time.Duration `mapstructure:"access_token_duration"`
	RememberMeAccessDuration time.Duration `mapstructure:"remember_me_access_duration"`
	RefreshTokenDuration     time.Duration `mapstructure:"refresh_token_duration"`
	BCryptCost               int           `mapstructure:"bcrypt_cost" validate:"required,min=10,max=15"`
	Issuer                   string        `mapstructure:"issuer"`
}

type LockoutConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Duration  time.Duration `mapstructure:"duration"`
}

type OTPConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
}

type TwoFactorConfig struct {
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	Skew            uint          `mapstructure:"skew"`
	BackupCodeCount int           `mapstructure:"backup_code_count"`
	Issuer          string        `mapstructure:"issuer"`
}

type InvitationConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	AcceptURL string        `mapstructure:"accept_url"`
}

// RateLimitRule is expressed as "N per period" to mirror throttle scopes (5/m, 3/h).
type RateLimitRule struct {
	Requests int           `mapstructure:"requests"`
	Per      time.Duration `mapstructure:"per"`
}

type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Login          RateLimitRule `mapstructure:"login"`
	Signup         RateLimitRule `mapstructure:"signup"`
	FinalizeSignup RateLimitRule `mapstructure:"finalize_signup"`
	OTPVerify      RateLimitRule `mapstructure:"otp_verify"`
	OTPResend      RateLimitRule `mapstructure:"otp_resend"`
	TwoFactor      RateLimitRule `mapstructure:"two_factor"`
	Refresh        RateLimitRule `mapstructure:"refresh"`
	EnableTwoFA    RateLimitRule `mapstructure:"enable_two_factor"`
}

type NotificationConfig struct {
	GatewayURL     string        `mapstructure:"gateway_url"`
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxWorkers     int           `mapstructure:"max_workers"`
	JobQueueSize   int           `mapstructure:"job_queue_size"`
	WorkerPoolSize int           `mapstructure:"worker_pool_size"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
	Env    string `mapstructure:"env"`
}

// ApplyDefaults fills zero values with the production defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.OpenAPIPath == "" {
		c.Server.OpenAPIPath = "./api/openapi.yml"
	}
	if c.Security.AccessTokenDuration == 0 {
		c.Security.AccessTokenDuration = time.Hour
	}
	if c.Security.RememberMeAccessDuration == 0 {
		c.Security.RememberMeAccessDuration = 14 * 24 * time.Hour
	}
	if c.Security.RefreshTokenDuration == 0 {
		c.Security.RefreshTokenDuration = 7 * 24 * time.Hour
	}
	if c.Security.BCryptCost == 0 {
		c.Security.BCryptCost = 12
	}
	if c.Security.Issuer == "" {
		c.Security.Issuer = "tenant-auth"
	}
	if c.Lockout.Threshold == 0 {
		c.Lockout.Threshold = 5
	}
	if c.Lockout.Duration == 0 {
		c.Lockout.Duration = 30 * time.Minute
	}
	if c.OTP.TTL == 0 {
		c.OTP.TTL = 60 * time.Minute
	}
	if c.OTP.MaxAttempts == 0 {
		c.OTP.MaxAttempts = 3
	}
	if c.OTP.BlockDuration == 0 {
		c.OTP.BlockDuration = 15 * time.Minute
	}
	if c.TwoFactor.SessionTTL == 0 {
		c.TwoFactor.SessionTTL = 5 * time.Minute
	}
	if c.TwoFactor.Skew == 0 {
		c.TwoFactor.Skew = 6
	}
	if c.TwoFactor.BackupCodeCount == 0 {
		c.TwoFactor.BackupCodeCount = 5
	}
	if c.TwoFactor.Issuer == "" {
		c.TwoFactor.Issuer = c.Security.Issuer
	}
	if c.Invitation.TTL == 0 {
		c.Invitation.TTL = 7 * 24 * time.Hour
	}
	defaultRule(&c.RateLimit.Login, 5, time.Minute)
	defaultRule(&c.RateLimit.Signup, 3, time.Hour)
	defaultRule(&c.RateLimit.FinalizeSignup, 3, time.Hour)
	defaultRule(&c.RateLimit.OTPVerify, 5, time.Minute)
	defaultRule(&c.RateLimit.OTPResend, 3, time.Hour)
	defaultRule(&c.RateLimit.TwoFactor, 5, time.Minute)
	defaultRule(&c.RateLimit.Refresh, 20, time.Minute)
	defaultRule(&c.RateLimit.EnableTwoFA, 10, time.Hour)
	if c.Notification.Timeout == 0 {
		c.Notification.Timeout = 10 * time.Second
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "json"
	}
}

func defaultRule(r *RateLimitRule, requests int, per time.Duration) {
	if r.Requests == 0 {
		r.Requests = requests
	}
	if r.Per == 0 {
		r.Per = per
	}
}

// LoadConfigFromEnv builds the config for container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("PORT", 8080),
			BaseURL:           getEnv("BASE_URL", ""),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("WRITE_TIMEOUT", 15*time.Second),
			OpenAPIPath:       getEnv("OPENAPI_PATH", "./api/openapi.yml"),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", ""),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "tenant-auth"),
		},
		Security: SecurityConfig{
			AccessTokenSecret:  getEnv("ACCESS_TOKEN_SECRET", ""),
			RefreshTokenSecret: getEnv("REFRESH_TOKEN_SECRET", ""),
			BackupCodeSecret:   getEnv("BACKUP_CODE_SECRET", ""),
			BCryptCost:         getEnvAsInt("BCRYPT_COST", 12),
			Issuer:             getEnv("TOKEN_ISSUER", "tenant-auth"),
		},
		Invitation: InvitationConfig{
			AcceptURL: getEnv("INVITATION_ACCEPT_URL", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled: getEnv("RATE_LIMIT_ENABLED", "true") == "true",
		},
		Notification: NotificationConfig{
			GatewayURL:     getEnv("NOTIFICATION_GATEWAY_URL", ""),
			APIKey:         getEnv("NOTIFICATION_API_KEY", ""),
			MaxWorkers:     getEnvAsInt("NOTIFICATION_MAX_WORKERS", 5),
			JobQueueSize:   getEnvAsInt("NOTIFICATION_JOB_QUEUE_SIZE", 100),
			WorkerPoolSize: getEnvAsInt("NOTIFICATION_WORKER_POOL_SIZE", 5),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
				Env:    getEnv("APP_ENV", "production"),
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Lockout.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("lockout config: %v", err))
	}

	if err := c.OTP.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("otp config: %v", err))
	}

	if err := c.TwoFactor.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("two factor config: %v", err))
	}

	if err := c.Notification.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("notification config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.AccessTokenSecret) < 32 {
		return errors.New("access token secret must be at least 32 characters")
	}
	if len(c.RefreshTokenSecret) < 32 {
		return errors.New("refresh token secret must be at least 32 characters")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("access and refresh token secrets must differ")
	}
	if len(c.BackupCodeSecret) < 32 {
		return errors.New("backup code secret must be at least 32 characters")
	}
	if c.BCryptCost < 10 || c.BCryptCost > 15 {
		return errors.New("bcrypt_cost must be between 10 and 15")
	}
	if c.RefreshTokenDuration <= c.AccessTokenDuration {
		return errors.New("refresh_token_duration must exceed access_token_duration")
	}
	return nil
}

func (c *LockoutConfig) Validate() error {
	if c.Threshold < 1 {
		return errors.New("threshold must be positive")
	}
	if c.Duration <= 0 {
		return errors.New("duration must be positive")
	}
	return nil
}

func (c *OTPConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.New("max_attempts must be positive")
	}
	if c.TTL <= 0 || c.BlockDuration <= 0 {
		return errors.New("ttl and block_duration must be positive")
	}
	return nil
}

func (c *TwoFactorConfig) Validate() error {
	if c.SessionTTL <= 0 {
		return errors.New("session_ttl must be positive")
	}
	if c.BackupCodeCount < 1 {
		return errors.New("backup_code_count must be positive")
	}
	return nil
}

func (c *NotificationConfig) Validate() error {
	if c.GatewayURL == "" {
		return nil
	}
	if _, err := url.ParseRequestURI(c.GatewayURL); err != nil {
		return fmt.Errorf("invalid gateway_url: %w", err)
	}
	return nil
}
